// Package admin implements the boundary admin operations described in
// spec.md §6: get health, get statistics, pin/unpin a conference to a
// bridge version. These are plain methods with no transport layer of their
// own — whatever HTTP/IQ surface a deployment wants sits on top of this.
package admin

import (
	"errors"
	"sync"
	"time"

	"github.com/signalmesh/focus/internal/bridge"
	"github.com/signalmesh/focus/internal/conference"
)

// ErrUnknownConference is returned by PinVersion/UnpinVersion for a
// conference id this Manager never registered (or that has since ended).
var ErrUnknownConference = errors.New("admin: unknown conference")

// Status is the focus's overall health as surfaced to an operator.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
)

// Health is the result of a GetHealth call.
type Health struct {
	Status Status
	Reason string
}

// Statistics is the result of a GetStatistics call.
type Statistics struct {
	ConferenceCount int
}

// Manager tracks every live conference and the bridge registry, answering
// the admin surface's read operations and applying its one write operation
// (a version pin) to the named conference (spec.md §4.H fan-out of
// SelectBridge's PinnedVersion).
//
// A fatal condition — the bridge registry empty for longer than
// emptyBridgeGracePeriod — is surfaced via GetHealth without ending any
// already-running conference (spec.md §7 fatal-error policy); it is up to
// the caller to stop admitting new conferences while degraded.
type Manager struct {
	bridges                *bridge.Registry
	emptyBridgeGracePeriod time.Duration

	mu                sync.Mutex
	conferences       map[string]*conference.Conference
	emptyBridgesSince time.Time
}

// New creates a Manager bound to bridges' registry.
func New(bridges *bridge.Registry, emptyBridgeGracePeriod time.Duration) *Manager {
	return &Manager{
		bridges:                bridges,
		emptyBridgeGracePeriod: emptyBridgeGracePeriod,
		conferences:            make(map[string]*conference.Conference),
	}
}

// RegisterConference starts tracking c and removes it automatically once
// c.Done() fires, so a caller never has to remember to unregister.
func (m *Manager) RegisterConference(c *conference.Conference) {
	m.mu.Lock()
	m.conferences[c.ID()] = c
	m.mu.Unlock()

	go func() {
		<-c.Done()
		m.mu.Lock()
		delete(m.conferences, c.ID())
		m.mu.Unlock()
	}()
}

// GetHealth reports StatusDegraded once the bridge registry has been empty
// continuously for longer than emptyBridgeGracePeriod.
func (m *Manager) GetHealth(now time.Time) Health {
	empty := len(m.bridges.All()) == 0

	m.mu.Lock()
	defer m.mu.Unlock()

	if !empty {
		m.emptyBridgesSince = time.Time{}
		return Health{Status: StatusHealthy}
	}

	if m.emptyBridgesSince.IsZero() {
		m.emptyBridgesSince = now
	}
	if now.Sub(m.emptyBridgesSince) > m.emptyBridgeGracePeriod {
		return Health{Status: StatusDegraded, Reason: "bridge registry empty"}
	}
	return Health{Status: StatusHealthy}
}

// GetStatistics reports the number of currently tracked conferences.
func (m *Manager) GetStatistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Statistics{ConferenceCount: len(m.conferences)}
}

// PinVersion forces conferenceID's future bridge selections to version.
func (m *Manager) PinVersion(conferenceID, version string) error {
	c, err := m.lookup(conferenceID)
	if err != nil {
		return err
	}
	c.PinVersion(version)
	return nil
}

// UnpinVersion removes a previously set version pin.
func (m *Manager) UnpinVersion(conferenceID string) error {
	c, err := m.lookup(conferenceID)
	if err != nil {
		return err
	}
	c.UnpinVersion()
	return nil
}

func (m *Manager) lookup(conferenceID string) (*conference.Conference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conferences[conferenceID]
	if !ok {
		return nil, ErrUnknownConference
	}
	return c, nil
}
