package conference

import (
	"context"

	"github.com/signalmesh/focus/internal/bridge"
	"github.com/signalmesh/focus/internal/colibri"
	"github.com/signalmesh/focus/internal/common"
	"github.com/signalmesh/focus/internal/participant"
	"github.com/signalmesh/focus/internal/sourcequeue"
	"github.com/signalmesh/focus/internal/sources"
	"github.com/signalmesh/focus/internal/transport"
)

// Conference implements participant.Coordinator, supplying everything the
// invite task needs from components B, D, E and F without participant
// importing this package (spec.md §4.G/§4.H).
var _ participant.Coordinator = (*Conference)(nil)

// SelectBridge asks the bridge selector (D) for a bridge for p, pinning to
// whatever version is already committed for this conference and preferring
// bridges already carrying it.
func (c *Conference) SelectBridge(ctx context.Context, p *participant.Participant) (bridge.Bridge, error) {
	conferenceBridges := make(map[string]struct{}, len(c.participants))
	pinnedVersion := c.pinnedVersion
	for _, other := range c.participants {
		if other.Bridge.JID.String() == "" {
			continue
		}
		conferenceBridges[other.Bridge.JID.String()] = struct{}{}
		if pinnedVersion == "" {
			pinnedVersion = other.Bridge.Version
		}
	}

	var requiredFeatures []string
	if p.Capabilities.Video {
		requiredFeatures = append(requiredFeatures, "video")
	}

	return bridge.Select(bridge.SelectionInput{
		Candidates:          c.bridges.All(),
		ConferenceBridges:   conferenceBridges,
		PinnedVersion:       pinnedVersion,
		Region:              p.Capabilities.Region,
		RequiredFeatures:    requiredFeatures,
		HighStressThreshold: c.config.BridgeHighStressThreshold,
	})
}

// Allocate asks the Colibri manager (E) for a slot for p on br.
func (c *Conference) Allocate(ctx context.Context, p *participant.Participant, br bridge.Bridge) (colibri.Allocation, error) {
	offer := offerPayload(p.BuildOffer())
	return c.colibriMgr.Allocate(ctx, br.JID, string(p.ID), offer)
}

// ExpireAllocation releases an allocation for a task cancelled before
// reaching Established.
func (c *Conference) ExpireAllocation(ctx context.Context, alloc colibri.Allocation) {
	if err := c.colibriMgr.Expire(ctx, alloc.ParticipantID); err != nil {
		c.log.WithError(err).WithField("participant_id", alloc.ParticipantID).Warn("failed to expire abandoned allocation")
	}
}

// StartExpirationWatchdog starts p's sessionExpirationTimeout watchdog
// (spec.md §4.F): if it fires before Accept, the conference posts a
// sessionTimeoutMessage back through its own message loop rather than
// mutating state from the watchdog's own goroutine.
func (c *Conference) StartExpirationWatchdog(p *participant.Participant) *common.WatchdogChannel {
	cfg := common.WatchdogConfig{
		Timeout:   c.config.SessionExpirationTimeout,
		OnTimeout: func() { c.post(sessionTimeoutMessage{id: p.ID}) },
	}
	return cfg.Start()
}

// TransmitInitiate asks the transport substrate to send session-initiate,
// carrying whatever initial source view p's signaling queue produces.
func (c *Conference) TransmitInitiate(ctx context.Context, p *participant.Participant, updates []sourcequeue.SignalingUpdate) error {
	initial := make(map[sources.EndpointID]sources.EndpointSourceSet, len(updates))
	for _, u := range updates {
		if u.Action != sourcequeue.Add {
			continue
		}
		for _, id := range u.Sources.Endpoints() {
			initial[id] = initial[id].Union(u.Sources.Get(id))
		}
	}

	return c.substrate.SendAndForget(ctx, p.JID, transport.SessionInitiate{
		To:       p.JID,
		Contents: p.BuildOffer(),
		Sources:  sources.NewView(initial),
	})
}

// ConferenceSourcesExcept returns the conference's current sources minus
// id's own, the payload the invite task filters through id's signaling
// queue before sending session-initiate.
func (c *Conference) ConferenceSourcesExcept(id sources.EndpointID) sources.View {
	return c.sourceMap.View().Except(id)
}
