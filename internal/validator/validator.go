// Package validator implements the ConferenceSourceMap described in
// spec.md §3/§4.B: the one mutable entity a conference owns for its media
// source state, plus the tryAdd/tryRemove operations that enforce
// uniqueness, grouping and msid invariants while mutating it.
//
// A ConferenceSourceMap is not safe for concurrent use by itself — like
// every other piece of conference state it is expected to live behind the
// owning conference's single logical lock (spec.md §5); readers elsewhere
// take an immutable sources.View instead of touching it directly.
package validator

import (
	"fmt"

	"github.com/signalmesh/focus/internal/sources"
)

// Config bounds how much a single endpoint may publish.
type Config struct {
	MaxSourcesPerEndpoint int
	MaxGroupsPerEndpoint  int
}

// ConferenceSourceMap is the authoritative, mutable mapping from endpoint to
// its currently-advertised sources for one conference.
type ConferenceSourceMap struct {
	config    Config
	endpoints map[sources.EndpointID]sources.EndpointSourceSet
}

// New creates an empty ConferenceSourceMap.
func New(config Config) *ConferenceSourceMap {
	return &ConferenceSourceMap{
		config:    config,
		endpoints: make(map[sources.EndpointID]sources.EndpointSourceSet),
	}
}

// View returns an immutable snapshot for readers outside the owning conference.
func (m *ConferenceSourceMap) View() sources.View {
	return sources.NewView(m.endpoints)
}

// Get returns the current set for one endpoint, the zero value if unknown.
func (m *ConferenceSourceMap) Get(endpoint sources.EndpointID) sources.EndpointSourceSet {
	return m.endpoints[endpoint]
}

// RemoveEndpoint drops an endpoint's entry wholesale (participant left) and
// returns what it had been advertising, so the caller can fan out removals.
func (m *ConferenceSourceMap) RemoveEndpoint(endpoint sources.EndpointID) sources.EndpointSourceSet {
	existing := m.endpoints[endpoint]
	delete(m.endpoints, endpoint)
	return existing
}

// TryAdd attempts to merge delta into endpoint's current set. On success it
// returns the subset of delta that was genuinely new (already-present
// sources/groups are silently deduplicated). On failure nothing is mutated.
func (m *ConferenceSourceMap) TryAdd(endpoint sources.EndpointID, delta sources.EndpointSourceSet) (sources.EndpointSourceSet, error) {
	if delta.Empty() {
		return sources.EndpointSourceSet{}, nil
	}

	for _, s := range delta.Sources() {
		if s.Ssrc == 0 {
			return sources.EndpointSourceSet{}, fmt.Errorf("%w: ssrc=%d", ErrInvalidSsrc, s.Ssrc)
		}
	}

	for _, g := range delta.Groups() {
		if g.Semantics == sources.FID && len(g.Ssrcs) != 2 {
			return sources.EndpointSourceSet{}, fmt.Errorf("%w: %s", ErrInvalidFidGroup, g)
		}
	}

	existing := m.endpoints[endpoint]
	candidateSet := existing.Union(delta)

	newSsrcs := make(map[uint32]struct{})
	for _, s := range delta.Sources() {
		owner, found := m.findSsrcOwner(s.Ssrc)
		switch {
		case !found:
			newSsrcs[s.Ssrc] = struct{}{}
		case owner.endpoint == endpoint && owner.mediaType == s.MediaType && owner.msid == s.Msid:
			// Exact duplicate of what this endpoint already advertised: dedup, not an error.
		default:
			return sources.EndpointSourceSet{}, fmt.Errorf("%w: ssrc=%d held by endpoint=%s type=%s msid=%q",
				ErrSsrcAlreadyUsed, s.Ssrc, owner.endpoint, owner.mediaType, owner.msid)
		}
	}

	candidate := m.cloneEndpoints()
	candidate[endpoint] = candidateSet

	if err := validateInvariants(candidate, endpoint); err != nil {
		return sources.EndpointSourceSet{}, err
	}

	if candidateSet.SourceCount() > m.config.MaxSourcesPerEndpoint {
		return sources.EndpointSourceSet{}, fmt.Errorf("%w: endpoint=%s count=%d max=%d",
			ErrSsrcLimitExceeded, endpoint, candidateSet.SourceCount(), m.config.MaxSourcesPerEndpoint)
	}
	if candidateSet.GroupCount() > m.config.MaxGroupsPerEndpoint {
		return sources.EndpointSourceSet{}, fmt.Errorf("%w: endpoint=%s count=%d max=%d",
			ErrGroupLimitExceeded, endpoint, candidateSet.GroupCount(), m.config.MaxGroupsPerEndpoint)
	}

	// Everything checks out: commit, and report only what's genuinely new.
	m.endpoints[endpoint] = candidateSet

	var acceptedSources []sources.Source
	for _, s := range delta.Sources() {
		if _, isNew := newSsrcs[s.Ssrc]; isNew {
			acceptedSources = append(acceptedSources, s)
		}
	}

	var acceptedGroups []sources.SourceGroup
	for _, g := range delta.Groups() {
		if !existing.HasGroup(g) {
			acceptedGroups = append(acceptedGroups, g)
		}
	}

	return sources.NewEndpointSourceSet(acceptedSources, acceptedGroups), nil
}

// TryRemove removes delta from endpoint's current set. Every named source
// and group must currently be held, or the call fails with
// ErrSourceDoesNotExist / ErrSourceGroupDoesNotExist and nothing is mutated.
// The remaining state must still satisfy all invariants; a partial removal
// that leaves a dangling group reference or newly-conflicting msid is
// rejected the same way.
func (m *ConferenceSourceMap) TryRemove(endpoint sources.EndpointID, delta sources.EndpointSourceSet) (sources.EndpointSourceSet, error) {
	if delta.Empty() {
		return sources.EndpointSourceSet{}, nil
	}

	existing := m.endpoints[endpoint]

	for _, s := range delta.Sources() {
		if !existing.HasSource(s) {
			return sources.EndpointSourceSet{}, fmt.Errorf("%w: %s", ErrSourceDoesNotExist, s)
		}
	}
	for _, g := range delta.Groups() {
		if !existing.HasGroup(g) {
			return sources.EndpointSourceSet{}, fmt.Errorf("%w: %s", ErrSourceGroupDoesNotExist, g)
		}
	}

	candidateSet := existing.Subtract(delta)
	candidate := m.cloneEndpoints()
	candidate[endpoint] = candidateSet

	if err := validateInvariants(candidate, endpoint); err != nil {
		return sources.EndpointSourceSet{}, err
	}

	m.endpoints[endpoint] = candidateSet
	return delta, nil
}

type ssrcOwner struct {
	endpoint  sources.EndpointID
	mediaType sources.MediaType
	msid      string
}

func (m *ConferenceSourceMap) findSsrcOwner(ssrc uint32) (ssrcOwner, bool) {
	for id, set := range m.endpoints {
		if s, ok := set.SourceBySsrc(ssrc); ok {
			return ssrcOwner{endpoint: id, mediaType: s.MediaType, msid: s.Msid}, true
		}
	}
	return ssrcOwner{}, false
}

func (m *ConferenceSourceMap) cloneEndpoints() map[sources.EndpointID]sources.EndpointSourceSet {
	clone := make(map[sources.EndpointID]sources.EndpointSourceSet, len(m.endpoints))
	for id, set := range m.endpoints {
		clone[id] = set
	}
	return clone
}

// validateInvariants checks the group/msid invariants of candidate[target]
// against the groups it defines, and the conference-wide non-grouped msid
// uniqueness invariant across every endpoint in candidate.
func validateInvariants(candidate map[sources.EndpointID]sources.EndpointSourceSet, target sources.EndpointID) error {
	targetSet := candidate[target]

	for _, g := range targetSet.Groups() {
		var msid string
		for i, ssrc := range g.Ssrcs {
			s, ok := targetSet.SourceBySsrc(ssrc)
			if !ok {
				return fmt.Errorf("%w: group=%s ssrc=%d", ErrMissingSourceForGroup, g, ssrc)
			}
			if s.Msid == "" {
				return fmt.Errorf("%w: group=%s ssrc=%d", ErrRequiredParameterMissing, g, ssrc)
			}
			if i == 0 {
				msid = s.Msid
			} else if s.Msid != msid {
				return fmt.Errorf("%w: group=%s", ErrGroupMsidMismatch, g)
			}
		}
	}

	type claim struct {
		endpoint sources.EndpointID
		ssrc     uint32
	}
	claims := make(map[string]claim) // key: mediaType|msid -> first claimant

	for endpointID, set := range candidate {
		grouped := groupedSsrcs(set)
		for _, s := range set.Sources() {
			if s.Msid == "" {
				continue
			}
			if _, isGrouped := grouped[s.Ssrc]; isGrouped {
				continue
			}
			key := string(s.MediaType) + "|" + s.Msid
			if existing, found := claims[key]; found && (existing.endpoint != endpointID || existing.ssrc != s.Ssrc) {
				return fmt.Errorf("%w: mediaType=%s msid=%q ssrc=%d conflicts with endpoint=%s ssrc=%d",
					ErrMsidConflict, s.MediaType, s.Msid, s.Ssrc, existing.endpoint, existing.ssrc)
			}
			claims[key] = claim{endpoint: endpointID, ssrc: s.Ssrc}
		}
	}

	return nil
}

func groupedSsrcs(set sources.EndpointSourceSet) map[uint32]struct{} {
	grouped := make(map[uint32]struct{})
	for _, g := range set.Groups() {
		for _, ssrc := range g.Ssrcs {
			grouped[ssrc] = struct{}{}
		}
	}
	return grouped
}
