// Package bridge implements the bridge registry and selector described in
// spec.md §4.D: the set of media-routing bridges available to a conference,
// their health/load state, and the pure selection algorithm that picks one
// for a new participant.
//
// Nothing here talks to a bridge directly — that's internal/colibri's job.
// The registry only tracks what the latest BridgeStatusReport (spec.md §6)
// told us.
package bridge

import (
	"time"

	"mellium.im/xmpp/jid"
)

// Bridge is one media-routing bridge known to the registry.
type Bridge struct {
	JID        jid.JID
	Region     string
	Version    string
	RelayID    string
	Stress     float64
	Features   map[string]struct{}
	LastReport time.Time

	Failing      bool
	FailingUntil time.Time
}

// HasFeature reports whether the bridge advertised feature in its last
// status report.
func (b Bridge) HasFeature(feature string) bool {
	_, ok := b.Features[feature]
	return ok
}

// Operational reports whether the bridge is eligible for selection: not
// currently failing and not considered offline (offline is determined by
// the registry, which evicts rather than flags — see Registry.Sweep).
func (b Bridge) Operational(now time.Time) bool {
	if b.Failing && now.Before(b.FailingUntil) {
		return false
	}
	return true
}
