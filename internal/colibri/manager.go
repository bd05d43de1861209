// Package colibri implements the Colibri session manager described in
// spec.md §4.E: one allocation per (conference, participant), with
// at-most-one-concurrent-creator semantics for the underlying per-bridge
// conference object and retry of idempotent follow-up operations.
package colibri

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/signalmesh/focus/internal/sources"
	"github.com/signalmesh/focus/internal/telemetry"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
	"mellium.im/xmpp/jid"
)

// Config bounds the manager's retry behaviour for idempotent operations.
type Config struct {
	// RetryMaxElapsedTime bounds how long updateSources/updateTransport/expire
	// retry before giving up; zero disables retrying (single attempt).
	RetryMaxElapsedTime time.Duration
}

// Manager owns every ColibriAllocation for one conference. It is safe for
// concurrent use: allocate is called from each participant's own invite
// task, potentially racing other participants choosing the same bridge.
type Manager struct {
	conferenceID string
	transport    Transport
	config       Config
	log          *logrus.Entry

	creation singleflight.Group

	mu          sync.Mutex
	created     map[string]struct{} // bridge jid -> conference object exists there
	allocations map[string]Allocation // participant id -> allocation
	disposed    bool
}

// New creates a Manager for one conference.
func New(conferenceID string, transport Transport, config Config, log *logrus.Entry) *Manager {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Manager{
		conferenceID: conferenceID,
		transport:    transport,
		config:       config,
		log:          log.WithField("conf_id", conferenceID),
		created:      make(map[string]struct{}),
		allocations:  make(map[string]Allocation),
	}
}

// Allocate returns participantID's ColibriAllocation on bridge, creating the
// remote conference object first if this manager hasn't already done so on
// that bridge. Concurrent Allocate calls for the same bridge share exactly
// one CreateConference attempt: all either proceed together after it
// succeeds, or all observe the same error.
func (m *Manager) Allocate(ctx context.Context, bridge jid.JID, participantID string, offer Offer) (Allocation, error) {
	t := telemetry.New(ctx, "colibri.allocate",
		attribute.String("bridge", bridge.String()), attribute.String("participant_id", participantID))
	defer t.End()
	ctx = t.Context()

	if m.isDisposed() {
		t.Fail(ErrConferenceDisposed)
		return Allocation{}, ErrConferenceDisposed
	}

	bridgeKey := bridge.String()
	if !m.hasCreated(bridgeKey) {
		_, err, shared := m.creation.Do(bridgeKey, func() (interface{}, error) {
			return nil, m.transport.CreateConference(ctx, bridge, m.conferenceID)
		})
		if err != nil {
			t.Fail(err)
			return Allocation{}, err
		}
		t.AddEvent("conference object created", attribute.Bool("shared_with_concurrent_caller", shared))
		m.markCreated(bridgeKey)
	}

	alloc, err := m.transport.AllocateParticipant(ctx, bridge, m.conferenceID, participantID, offer)
	if err != nil {
		t.Fail(err)
		return Allocation{}, err
	}

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		// Lost the race with expireConference: unwind immediately.
		_ = m.transport.Expire(ctx, alloc)
		return Allocation{}, ErrConferenceDisposed
	}
	m.allocations[participantID] = alloc
	m.mu.Unlock()

	return alloc, nil
}

// UpdateSources pushes a source delta for participantID's allocation,
// retrying transient failures since the operation is idempotent.
func (m *Manager) UpdateSources(ctx context.Context, participantID string, add, remove sources.EndpointSourceSet) error {
	alloc, err := m.lookup(participantID)
	if err != nil {
		return err
	}
	return m.retry(ctx, func() error { return m.transport.UpdateSources(ctx, alloc, add, remove) })
}

// UpdateTransport pushes updated transport info for participantID's
// allocation, retrying transient failures.
func (m *Manager) UpdateTransport(ctx context.Context, participantID string, transport TransportDescription) error {
	alloc, err := m.lookup(participantID)
	if err != nil {
		return err
	}
	return m.retry(ctx, func() error { return m.transport.UpdateTransport(ctx, alloc, transport) })
}

// Expire releases participantID's allocation. A no-op if the manager is
// already disposed or the participant has no allocation.
func (m *Manager) Expire(ctx context.Context, participantID string) error {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return nil
	}
	alloc, ok := m.allocations[participantID]
	delete(m.allocations, participantID)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return m.retry(ctx, func() error { return m.transport.Expire(ctx, alloc) })
}

// ExpireConference releases every remaining allocation and marks the
// manager disposed; every subsequent operation becomes a no-op (Expire) or
// returns ErrConferenceDisposed (Allocate/UpdateSources/UpdateTransport).
func (m *Manager) ExpireConference(ctx context.Context) {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.disposed = true
	remaining := m.allocations
	m.allocations = make(map[string]Allocation)
	m.mu.Unlock()

	for participantID, alloc := range remaining {
		if err := m.retry(ctx, func() error { return m.transport.Expire(ctx, alloc) }); err != nil {
			m.log.WithError(err).WithField("participant_id", participantID).Warn("failed to expire allocation during conference teardown")
		}
	}
}

func (m *Manager) lookup(participantID string) (Allocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return Allocation{}, ErrConferenceDisposed
	}
	alloc, ok := m.allocations[participantID]
	if !ok {
		return Allocation{}, ErrUnknownAllocation
	}
	return alloc, nil
}

func (m *Manager) hasCreated(bridgeKey string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.created[bridgeKey]
	return ok
}

func (m *Manager) markCreated(bridgeKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created[bridgeKey] = struct{}{}
}

func (m *Manager) isDisposed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disposed
}

func (m *Manager) retry(ctx context.Context, op func() error) error {
	if m.config.RetryMaxElapsedTime <= 0 {
		return op()
	}
	exp := backoff.NewExponentialBackOff()
	exp.MaxElapsedTime = m.config.RetryMaxElapsedTime
	return backoff.Retry(op, backoff.WithContext(exp, ctx))
}
