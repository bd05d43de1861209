// Package sourcequeue implements the per-recipient source signaling queue
// described in spec.md §4.C: it coalesces add/remove source deltas for one
// recipient into the minimal ordered sequence of SignalingUpdates, applying
// that recipient's capability filters (audio/video, simulcast stripping,
// single-video-stream) along the way.
package sourcequeue

import (
	"github.com/signalmesh/focus/internal/sources"
)

// Action is the kind of change a SignalingUpdate describes.
type Action int

const (
	Add Action = iota
	Remove
)

func (a Action) String() string {
	if a == Add {
		return "add"
	}
	return "remove"
}

// SignalingUpdate is one coalesced, filtered change ready to hand to a
// Jingle session for transmission (spec.md §3).
type SignalingUpdate struct {
	Action  Action
	Sources sources.View
}

// Options are fixed for the lifetime of a SourceSignaling: they describe
// what the recipient is capable of receiving.
type Options struct {
	Audio                                  bool
	Video                                  bool
	StripSimulcast                         bool
	SupportsReceivingMultipleVideoStreams bool
}

type pendingOp struct {
	action Action
	delta  sources.View
}

// SourceSignaling is the signaling queue for one recipient. It is not safe
// for concurrent use — like the rest of a conference's state it is expected
// to be driven from the owning conference's single message loop.
type SourceSignaling struct {
	options Options

	// raw is this recipient's view of the full, unfiltered conference source
	// state, updated only when update() commits queued operations.
	raw map[sources.EndpointID]sources.EndpointSourceSet
	// known is raw with this recipient's filters applied — i.e. what we
	// believe the recipient has actually been told about.
	known map[sources.EndpointID]sources.EndpointSourceSet

	pending []pendingOp
}

// New creates an empty queue for a recipient with the given capabilities.
func New(options Options) *SourceSignaling {
	return &SourceSignaling{
		options: options,
		raw:     make(map[sources.EndpointID]sources.EndpointSourceSet),
		known:   make(map[sources.EndpointID]sources.EndpointSourceSet),
	}
}

// AddSources enqueues an add of delta; nothing is sent until Update() runs.
func (q *SourceSignaling) AddSources(delta sources.View) {
	if delta.Len() == 0 {
		return
	}
	q.pending = append(q.pending, pendingOp{action: Add, delta: delta})
}

// RemoveSources enqueues a remove of delta; nothing is sent until Update() runs.
func (q *SourceSignaling) RemoveSources(delta sources.View) {
	if delta.Len() == 0 {
		return
	}
	q.pending = append(q.pending, pendingOp{action: Remove, delta: delta})
}

// Reset drops the pending queue and replaces the recipient's known state
// wholesale with snapshot, with no emitted updates — used when (re)syncing a
// recipient out of band, e.g. the source map sent inside a session-initiate.
func (q *SourceSignaling) Reset(snapshot sources.View) {
	q.pending = nil
	q.raw = make(map[sources.EndpointID]sources.EndpointSourceSet)
	q.known = make(map[sources.EndpointID]sources.EndpointSourceSet)

	for _, id := range snapshot.Endpoints() {
		set := snapshot.Get(id)
		q.raw[id] = set
		q.known[id] = q.filter(set)
	}
}

// Known returns the recipient's currently-believed-known state, post-filter.
func (q *SourceSignaling) Known() sources.View {
	return sources.NewView(q.known)
}

// Update flushes the pending queue, returning the minimal ordered list of
// SignalingUpdates needed to bring the recipient's known state up to date.
// Calling Update() again with no intervening Add/RemoveSources returns an
// empty slice (spec.md §8 idempotence property).
func (q *SourceSignaling) Update() []SignalingUpdate {
	if len(q.pending) == 0 {
		return nil
	}

	newRaw := make(map[sources.EndpointID]sources.EndpointSourceSet, len(q.raw))
	for id, set := range q.raw {
		newRaw[id] = set
	}

	for _, op := range q.pending {
		for _, id := range op.delta.Endpoints() {
			delta := op.delta.Get(id)
			current := newRaw[id]
			if op.action == Add {
				newRaw[id] = current.Union(delta)
			} else {
				newRaw[id] = current.Subtract(delta)
			}
		}
	}
	q.pending = nil

	touched := make(map[sources.EndpointID]struct{}, len(newRaw)+len(q.raw))
	for id := range newRaw {
		touched[id] = struct{}{}
	}
	for id := range q.raw {
		touched[id] = struct{}{}
	}

	adds := make(map[sources.EndpointID]sources.EndpointSourceSet)
	removes := make(map[sources.EndpointID]sources.EndpointSourceSet)

	for id := range touched {
		newFiltered := q.filter(newRaw[id])
		oldFiltered := q.known[id]

		added, removed := diff(oldFiltered, newFiltered)
		if !added.Empty() {
			adds[id] = added
		}
		if !removed.Empty() {
			removes[id] = removed
		}

		if newFiltered.Empty() {
			delete(q.known, id)
		} else {
			q.known[id] = newFiltered
		}
		if newRaw[id].Empty() {
			delete(newRaw, id)
		}
	}
	q.raw = newRaw

	var updates []SignalingUpdate
	if len(removes) > 0 {
		updates = append(updates, SignalingUpdate{Action: Remove, Sources: sources.NewView(removes)})
	}
	if len(adds) > 0 {
		updates = append(updates, SignalingUpdate{Action: Add, Sources: sources.NewView(adds)})
	}
	return updates
}

// filter applies this recipient's capability options to a raw per-endpoint
// source set, in the order spec.md §4.C lists: media type, then simulcast
// stripping, then single-video-stream reduction.
func (q *SourceSignaling) filter(set sources.EndpointSourceSet) sources.EndpointSourceSet {
	filtered := filterByMediaType(set, q.options.Audio, q.options.Video)
	if q.options.StripSimulcast {
		filtered = filtered.StripSimulcast()
	}
	if !q.options.SupportsReceivingMultipleVideoStreams {
		filtered = reduceToSingleVideoStream(filtered)
	}
	return filtered
}

// diff reports what must be added/removed to turn oldSet into newSet,
// treating a source whose ssrc is present in both but whose other fields
// changed as a replacement (appears in both added and removed).
func diff(oldSet, newSet sources.EndpointSourceSet) (added, removed sources.EndpointSourceSet) {
	var addedSources, removedSources []sources.Source
	for _, s := range newSet.Sources() {
		if old, ok := oldSet.SourceBySsrc(s.Ssrc); !ok || old != s {
			addedSources = append(addedSources, s)
		}
	}
	for _, s := range oldSet.Sources() {
		if newS, ok := newSet.SourceBySsrc(s.Ssrc); !ok || newS != s {
			removedSources = append(removedSources, s)
		}
	}

	var addedGroups, removedGroups []sources.SourceGroup
	for _, g := range newSet.Groups() {
		if !oldSet.HasGroup(g) {
			addedGroups = append(addedGroups, g)
		}
	}
	for _, g := range oldSet.Groups() {
		if !newSet.HasGroup(g) {
			removedGroups = append(removedGroups, g)
		}
	}

	return sources.NewEndpointSourceSet(addedSources, addedGroups), sources.NewEndpointSourceSet(removedSources, removedGroups)
}
