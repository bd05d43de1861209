package bridge

import (
	"sort"
	"time"

	"mellium.im/xmpp/jid"
)

// Config bounds the registry's health bookkeeping.
type Config struct {
	// Lost is how long a bridge may go without a status report before it's
	// considered offline and evicted from the registry (spec.md §4.D: T_lost).
	Lost time.Duration
	// FailureResetThreshold is how long a bridge that reported an allocation
	// error stays in the failing state.
	FailureResetThreshold time.Duration
}

// Registry tracks every bridge known to this focus instance, keyed by jid.
// Like the rest of conference state it is not safe for concurrent use by
// itself; callers serialize access the same way a conference serializes
// access to its ConferenceSourceMap.
type Registry struct {
	config  Config
	bridges map[string]*Bridge
}

// New creates an empty Registry.
func New(config Config) *Registry {
	return &Registry{config: config, bridges: make(map[string]*Bridge)}
}

// ReportStatus ingests a BridgeStatusReport, creating the bridge entry if
// this is the first time we've heard from it.
func (r *Registry) ReportStatus(id jid.JID, stress float64, region, version, relayID string, features map[string]struct{}, now time.Time) {
	key := id.String()
	b, ok := r.bridges[key]
	if !ok {
		b = &Bridge{JID: id}
		r.bridges[key] = b
	}
	b.Stress = stress
	b.Region = region
	b.Version = version
	b.RelayID = relayID
	b.Features = features
	b.LastReport = now
}

// MarkFailing puts a bridge into the failing state following an allocation
// error, per spec.md §4.D.
func (r *Registry) MarkFailing(id jid.JID, now time.Time) {
	if b, ok := r.bridges[id.String()]; ok {
		b.Failing = true
		b.FailingUntil = now.Add(r.config.FailureResetThreshold)
	}
}

// Sweep evicts every bridge that hasn't reported within Config.Lost of now,
// and clears the failing flag on any bridge whose FailingUntil has passed.
// Should be called periodically by the owning process.
func (r *Registry) Sweep(now time.Time) {
	for key, b := range r.bridges {
		if now.Sub(b.LastReport) >= r.config.Lost {
			delete(r.bridges, key)
			continue
		}
		if b.Failing && !now.Before(b.FailingUntil) {
			b.Failing = false
		}
	}
}

// Get returns a copy of the bridge state for id, and whether it's known.
func (r *Registry) Get(id jid.JID) (Bridge, bool) {
	b, ok := r.bridges[id.String()]
	if !ok {
		return Bridge{}, false
	}
	return *b, true
}

// All returns a snapshot of every known bridge, sorted by jid for
// deterministic iteration in callers (notably the selector's tie-breaking).
func (r *Registry) All() []Bridge {
	result := make([]Bridge, 0, len(r.bridges))
	for _, b := range r.bridges {
		result = append(result, *b)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].JID.String() < result[j].JID.String() })
	return result
}

// Remove drops a bridge from the registry outright, e.g. on an explicit
// bridge-going-away notification.
func (r *Registry) Remove(id jid.JID) {
	delete(r.bridges, id.String())
}
