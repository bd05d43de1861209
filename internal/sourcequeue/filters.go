package sourcequeue

import (
	"sort"

	"github.com/signalmesh/focus/internal/sources"
)

// filterSourcesAndGroups keeps only the sources keepSource accepts, and drops
// any group that now references a source no longer present — the same
// "don't leave a dangling group reference" rule StripSimulcast follows.
func filterSourcesAndGroups(set sources.EndpointSourceSet, keepSource func(sources.Source) bool) sources.EndpointSourceSet {
	var kept []sources.Source
	keptSsrcs := make(map[uint32]struct{})
	for _, s := range set.Sources() {
		if keepSource(s) {
			kept = append(kept, s)
			keptSsrcs[s.Ssrc] = struct{}{}
		}
	}

	var keptGroups []sources.SourceGroup
	for _, g := range set.Groups() {
		allPresent := true
		for _, ssrc := range g.Ssrcs {
			if _, ok := keptSsrcs[ssrc]; !ok {
				allPresent = false
				break
			}
		}
		if allPresent {
			keptGroups = append(keptGroups, g)
		}
	}

	return sources.NewEndpointSourceSet(kept, keptGroups)
}

// filterByMediaType drops audio sources if !wantAudio and video sources if
// !wantVideo. Application (data channel) sources always pass through.
func filterByMediaType(set sources.EndpointSourceSet, wantAudio, wantVideo bool) sources.EndpointSourceSet {
	return filterSourcesAndGroups(set, func(s sources.Source) bool {
		switch s.MediaType {
		case sources.Audio:
			return wantAudio
		case sources.Video:
			return wantVideo
		default:
			return true
		}
	})
}

// reduceToSingleVideoStream keeps at most one video source, for recipients
// that can't render more than one remote video stream per endpoint. A
// desktop-share source always wins over a camera source; ties are broken by
// lowest ssrc so the choice is a deterministic function of the input (and
// therefore update() stays idempotent on an unchanged source set).
func reduceToSingleVideoStream(set sources.EndpointSourceSet) sources.EndpointSourceSet {
	var videos []sources.Source
	for _, s := range set.Sources() {
		if s.MediaType == sources.Video {
			videos = append(videos, s)
		}
	}
	if len(videos) <= 1 {
		return set
	}

	sort.Slice(videos, func(i, j int) bool { return videos[i].Ssrc < videos[j].Ssrc })

	winner := videos[0]
	for _, v := range videos {
		if v.VideoType == sources.VideoTypeDesktop {
			winner = v
			break
		}
	}

	return filterSourcesAndGroups(set, func(s sources.Source) bool {
		return s.MediaType != sources.Video || s.Ssrc == winner.Ssrc
	})
}
