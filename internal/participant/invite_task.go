package participant

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalmesh/focus/internal/bridge"
	"github.com/signalmesh/focus/internal/colibri"
	"github.com/signalmesh/focus/internal/common"
	"github.com/signalmesh/focus/internal/sourcequeue"
	"github.com/signalmesh/focus/internal/sources"
	"github.com/signalmesh/focus/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// ErrNoBridgeAvailable is the user-facing rejection when the selector has no
// eligible bridge for a new participant (spec.md §4.G step 1).
var ErrNoBridgeAvailable = errors.New("participant: no bridge available")

// ErrCancelled is returned by Run when its ctx is cancelled before the
// session-initiate is sent. The conference cancels that ctx when the
// participant leaves or the conference ends; the selected bridge going
// offline does not cancel the task.
var ErrCancelled = errors.New("participant: invite task cancelled")

// Coordinator is what an invite task needs from the owning conference
// controller (spec.md §4.H) — the glue to components B, D, E and F. It
// exists so this package doesn't import conference (which imports this
// package to hold Participant records), and so the task's orchestration
// logic can be tested without a real conference.
type Coordinator interface {
	// SelectBridge asks the bridge selector (D) for a bridge for p.
	SelectBridge(ctx context.Context, p *Participant) (bridge.Bridge, error)
	// Allocate asks the Colibri manager (E) for a slot for p on br.
	Allocate(ctx context.Context, p *Participant, br bridge.Bridge) (colibri.Allocation, error)
	// ExpireAllocation releases an allocation created for a task that was
	// then cancelled before reaching Established.
	ExpireAllocation(ctx context.Context, alloc colibri.Allocation)
	// StartExpirationWatchdog starts p's sessionExpirationTimeout watchdog.
	StartExpirationWatchdog(p *Participant) *common.WatchdogChannel
	// TransmitInitiate asks the Jingle layer (F) to send session-initiate,
	// including updates already filtered/coalesced through p's signaling queue.
	TransmitInitiate(ctx context.Context, p *Participant, updates []sourcequeue.SignalingUpdate) error
	// ConferenceSourcesExcept returns the conference's current source map
	// minus id's own sources — the payload step 4 sends.
	ConferenceSourcesExcept(id sources.EndpointID) sources.View
}

// Run executes the invite task's steps 1-4 (spec.md §4.G): select a bridge,
// build an offer, allocate a Colibri slot, and send session-initiate. It
// returns once session-initiate has been transmitted; the later
// session-accept (or timeout) is handled by the conference's message loop,
// via HandleAccept.
//
// If ctx is cancelled before the allocate step, Run returns ErrCancelled
// without having created any Colibri allocation. If ctx is cancelled after
// allocate but before session-initiate is sent, the allocation is expired
// and Run returns ErrCancelled with no fan-out having occurred.
func Run(ctx context.Context, p *Participant, coordinator Coordinator) error {
	t := telemetry.New(ctx, "invite", attribute.String("participant_id", string(p.ID)))
	defer t.End()
	ctx = t.Context()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	br, err := coordinator.SelectBridge(ctx, p)
	if err != nil {
		t.Fail(err)
		return fmt.Errorf("%w: %v", ErrNoBridgeAvailable, err)
	}
	p.Bridge = br
	t.AddEvent("bridge selected", attribute.String("bridge", br.JID.String()))

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	alloc, err := coordinator.Allocate(ctx, p, br)
	if err != nil {
		t.Fail(err)
		return err
	}
	p.Allocation = alloc
	t.AddEvent("colibri allocated")

	if err := ctx.Err(); err != nil {
		coordinator.ExpireAllocation(ctx, alloc)
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	watchdog := coordinator.StartExpirationWatchdog(p)
	if err := p.Session.Initiate(watchdog, p.BuildOffer()); err != nil {
		watchdog.Close()
		coordinator.ExpireAllocation(ctx, alloc)
		t.Fail(err)
		return err
	}

	initial := coordinator.ConferenceSourcesExcept(p.ID)
	p.Signaling.AddSources(initial)
	updates := p.Signaling.Update()

	if err := coordinator.TransmitInitiate(ctx, p, updates); err != nil {
		p.Session.Terminate(0)
		coordinator.ExpireAllocation(ctx, alloc)
		t.Fail(err)
		return err
	}

	return nil
}

// HandleAccept runs step 5 (spec.md §4.G): marks the session Established,
// applies the peer-accepted sources via the validator, and flushes every
// other participant's signaling queue so they learn about the new sources.
// applyAccepted should call into the validator (B) and fanOutOthers into
// every other participant's SourceSignaling + Jingle session (C, F); both
// are left to the caller since they require conference-wide state this
// package doesn't hold.
func HandleAccept(p *Participant, acceptedFromPeer sources.EndpointSourceSet, applyAccepted func(sources.EndpointSourceSet) (sources.EndpointSourceSet, error), fanOutOthers func()) error {
	if err := p.Session.Accept(); err != nil {
		return err
	}

	if _, err := applyAccepted(acceptedFromPeer); err != nil {
		return err
	}

	fanOutOthers()
	return nil
}
