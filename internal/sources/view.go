package sources

import "golang.org/x/exp/maps"

// EndpointID identifies a participant within a conference's source map —
// typically the MUC occupant jid, kept here as an opaque comparable key so
// this package doesn't need to know about jid.JID.
type EndpointID string

// View is an immutable snapshot of a ConferenceSourceMap: every endpoint's
// EndpointSourceSet at the moment the snapshot was taken. The validator
// (package validator) is the only thing that ever builds or mutates the
// underlying map; everyone else — the signaling queue, the invite task, the
// admin surface — only ever sees a View.
type View struct {
	endpoints map[EndpointID]EndpointSourceSet
}

// NewView builds a View over a defensive copy of endpoints.
func NewView(endpoints map[EndpointID]EndpointSourceSet) View {
	copied := make(map[EndpointID]EndpointSourceSet, len(endpoints))
	for id, set := range endpoints {
		copied[id] = set
	}
	return View{endpoints: copied}
}

// Get returns the EndpointSourceSet for id, or the zero value if absent.
func (v View) Get(id EndpointID) EndpointSourceSet {
	return v.endpoints[id]
}

// Endpoints returns the ids present in this view.
func (v View) Endpoints() []EndpointID {
	return maps.Keys(v.endpoints)
}

// Len reports the number of endpoints with an entry, including entries
// whose set is empty.
func (v View) Len() int {
	return len(v.endpoints)
}

// Except returns a new View with one endpoint removed — used to build the
// "everyone else's sources" payload sent to a given participant.
func (v View) Except(id EndpointID) View {
	result := make(map[EndpointID]EndpointSourceSet, len(v.endpoints))
	for otherID, set := range v.endpoints {
		if otherID != id {
			result[otherID] = set
		}
	}
	return NewView(result)
}

// Flatten merges every endpoint's set into one EndpointSourceSet, discarding
// the endpoint identity. Used when a recipient's filtering doesn't care who
// published what, only what ssrcs/groups exist.
func (v View) Flatten() EndpointSourceSet {
	result := EndpointSourceSet{}
	for _, set := range v.endpoints {
		result = result.Union(set)
	}
	return result
}
