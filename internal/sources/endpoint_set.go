package sources

import "golang.org/x/exp/maps"

// EndpointSourceSet is the immutable value describing everything one
// endpoint (participant) currently advertises: its Sources, keyed by ssrc
// (two sources sharing an ssrc cannot coexist within one endpoint regardless
// of media type, spec.md §3), and its SourceGroups, keyed by (semantics, ssrcs).
//
// All mutating-looking operations (Union, Subtract, StripSimulcast) return a
// new value; the receiver is never modified.
type EndpointSourceSet struct {
	sources map[uint32]Source
	groups  map[string]SourceGroup
}

// NewEndpointSourceSet builds a set from sources and groups. Empty groups are
// silently dropped, matching ingest behaviour.
func NewEndpointSourceSet(srcs []Source, groups []SourceGroup) EndpointSourceSet {
	set := EndpointSourceSet{
		sources: make(map[uint32]Source, len(srcs)),
		groups:  make(map[string]SourceGroup, len(groups)),
	}
	for _, s := range srcs {
		set.sources[s.Ssrc] = s
	}
	for _, g := range groups {
		if g.Empty() {
			continue
		}
		set.groups[g.key()] = g
	}
	return set
}

// Empty reports whether the set carries neither sources nor groups.
func (e EndpointSourceSet) Empty() bool {
	return len(e.sources) == 0 && len(e.groups) == 0
}

// Sources returns a defensive copy of the contained sources.
func (e EndpointSourceSet) Sources() []Source {
	return maps.Values(e.sources)
}

// Groups returns a defensive copy of the contained groups.
func (e EndpointSourceSet) Groups() []SourceGroup {
	return maps.Values(e.groups)
}

// SourceCount reports the number of distinct ssrcs held.
func (e EndpointSourceSet) SourceCount() int {
	return len(e.sources)
}

// GroupCount reports the number of distinct groups held.
func (e EndpointSourceSet) GroupCount() int {
	return len(e.groups)
}

// HasSource reports whether a source with this exact ssrc+mediaType is present.
func (e EndpointSourceSet) HasSource(s Source) bool {
	existing, ok := e.sources[s.Ssrc]
	return ok && existing.Equal(s)
}

// SourceBySsrc looks up a source purely by ssrc, regardless of media type.
func (e EndpointSourceSet) SourceBySsrc(ssrc uint32) (Source, bool) {
	s, ok := e.sources[ssrc]
	return s, ok
}

// HasGroup reports whether an equal group is present.
func (e EndpointSourceSet) HasGroup(g SourceGroup) bool {
	existing, ok := e.groups[g.key()]
	return ok && existing.Equal(g)
}

// Union returns a new set containing everything in e plus everything in
// other; entries in other take precedence when ssrcs/group keys collide.
func (e EndpointSourceSet) Union(other EndpointSourceSet) EndpointSourceSet {
	result := EndpointSourceSet{
		sources: make(map[uint32]Source, len(e.sources)+len(other.sources)),
		groups:  make(map[string]SourceGroup, len(e.groups)+len(other.groups)),
	}
	for k, v := range e.sources {
		result.sources[k] = v
	}
	for k, v := range other.sources {
		result.sources[k] = v
	}
	for k, v := range e.groups {
		result.groups[k] = v
	}
	for k, v := range other.groups {
		result.groups[k] = v
	}
	return result
}

// Subtract returns a new set containing everything in e except the sources
// and groups also present (by ssrc / group key) in other.
func (e EndpointSourceSet) Subtract(other EndpointSourceSet) EndpointSourceSet {
	result := EndpointSourceSet{
		sources: make(map[uint32]Source, len(e.sources)),
		groups:  make(map[string]SourceGroup, len(e.groups)),
	}
	for k, v := range e.sources {
		if _, found := other.sources[k]; !found {
			result.sources[k] = v
		}
	}
	for k, v := range e.groups {
		if _, found := other.groups[k]; !found {
			result.groups[k] = v
		}
	}
	return result
}

// StripSimulcast removes all SIM groups, keeping only the primary ssrc (the
// first entry) of each simulcast layer together with its paired FID/FEC-FR
// group, if any. Idempotent: StripSimulcast(StripSimulcast(x)) == StripSimulcast(x).
func (e EndpointSourceSet) StripSimulcast() EndpointSourceSet {
	dropped := make(map[uint32]struct{})

	for _, g := range e.groups {
		if g.Semantics != SIM || len(g.Ssrcs) == 0 {
			continue
		}
		for _, ssrc := range g.Ssrcs[1:] {
			dropped[ssrc] = struct{}{}
		}
	}

	for _, g := range e.groups {
		if g.Semantics == SIM || len(g.Ssrcs) == 0 {
			continue
		}
		if _, isDropped := dropped[g.Ssrcs[0]]; isDropped {
			for _, ssrc := range g.Ssrcs[1:] {
				dropped[ssrc] = struct{}{}
			}
		}
	}

	result := EndpointSourceSet{
		sources: make(map[uint32]Source, len(e.sources)),
		groups:  make(map[string]SourceGroup, len(e.groups)),
	}

	for ssrc, s := range e.sources {
		if _, isDropped := dropped[ssrc]; !isDropped {
			result.sources[ssrc] = s
		}
	}

	for key, g := range e.groups {
		if g.Semantics == SIM {
			continue
		}
		referencesDropped := false
		for _, ssrc := range g.Ssrcs {
			if _, isDropped := dropped[ssrc]; isDropped {
				referencesDropped = true
				break
			}
		}
		if !referencesDropped {
			result.groups[key] = g
		}
	}

	return result
}

// Equal reports whether e and other contain exactly the same sources and groups.
func (e EndpointSourceSet) Equal(other EndpointSourceSet) bool {
	if len(e.sources) != len(other.sources) || len(e.groups) != len(other.groups) {
		return false
	}
	for ssrc, s := range e.sources {
		os, ok := other.sources[ssrc]
		if !ok || !s.Equal(os) || s.Msid != os.Msid {
			return false
		}
	}
	for key, g := range e.groups {
		og, ok := other.groups[key]
		if !ok || !g.Equal(og) {
			return false
		}
	}
	return true
}
