package bridge

import (
	"errors"
	"sort"
)

// ErrNoEligibleBridge is returned when every candidate was filtered out.
var ErrNoEligibleBridge = errors.New("bridge: no eligible bridge for selection")

// stressEpsilon is the precision within which two stress values are
// considered tied, per spec.md §4.D.
const stressEpsilon = 0.01

// defaultHighStressThreshold is the ceiling below which a bridge already
// serving a conference is kept rather than moved, per spec.md §4.D pass
// 2(a), used whenever SelectionInput.HighStressThreshold is left at zero
// (configuration surface key bridge.highStressThreshold).
const defaultHighStressThreshold = 0.5

// SelectionInput bundles everything the Selector needs; it holds no state of
// its own, so construction is cheap and Select is pure given its input.
type SelectionInput struct {
	// Candidates is every bridge known to the registry.
	Candidates []Bridge
	// ConferenceBridges is the set of bridges already carrying this
	// conference (by jid string), used for pass 2(a) stickiness. The
	// single-version constraint is enforced through PinnedVersion alone.
	ConferenceBridges map[string]struct{}
	// PinnedVersion is the version already committed to for this conference,
	// if any bridge has joined it yet.
	PinnedVersion string
	// Region is the requesting participant's region, if known.
	Region string
	// RequiredFeatures must all be present on a bridge for it to be eligible.
	RequiredFeatures []string
	// HighStressThreshold overrides defaultHighStressThreshold when non-zero.
	HighStressThreshold float64
}

// Select picks a bridge for a new participant per spec.md §4.D's 3-pass
// algorithm. It does not mutate the registry; the caller is responsible for
// recording the outcome (e.g. adding the chosen bridge to ConferenceBridges
// for future calls).
func Select(in SelectionInput) (Bridge, error) {
	eligible := filterEligible(in)
	if len(eligible) == 0 {
		return Bridge{}, ErrNoEligibleBridge
	}

	if sticky, ok := preferStickyBridge(eligible, in); ok {
		return sticky, nil
	}

	if regional, ok := lowestStressInRegion(eligible, in.Region); ok {
		return regional, nil
	}

	return lowestStressGlobal(eligible, in.Region), nil
}

// filterEligible implements pass 1: drop failing/non-operational bridges,
// version-mismatched bridges (hard constraint, pass 3 folded in here since
// it's a precondition rather than a tie-break), and feature-incomplete ones.
func filterEligible(in SelectionInput) []Bridge {
	var out []Bridge
	for _, b := range in.Candidates {
		if b.Failing {
			continue
		}
		if in.PinnedVersion != "" && b.Version != in.PinnedVersion {
			continue
		}
		if !hasAllFeatures(b, in.RequiredFeatures) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func hasAllFeatures(b Bridge, required []string) bool {
	for _, f := range required {
		if !b.HasFeature(f) {
			return false
		}
	}
	return true
}

// preferStickyBridge implements pass 2(a): a bridge already in this
// conference is kept as long as its stress is below highStressThreshold.
// Among multiple conference bridges meeting that bar, the lowest-stress one
// wins (tie-broken the same way as the global pass).
func preferStickyBridge(eligible []Bridge, in SelectionInput) (Bridge, bool) {
	threshold := in.HighStressThreshold
	if threshold == 0 {
		threshold = defaultHighStressThreshold
	}

	var candidates []Bridge
	for _, b := range eligible {
		if _, inConference := in.ConferenceBridges[b.JID.String()]; inConference && b.Stress < threshold {
			candidates = append(candidates, b)
		}
	}
	if len(candidates) == 0 {
		return Bridge{}, false
	}
	return pickLowestStress(candidates, in.Region), true
}

// lowestStressInRegion implements pass 2(b): the lowest-stress bridge in the
// participant's region, if any is eligible and a region was given.
func lowestStressInRegion(eligible []Bridge, region string) (Bridge, bool) {
	if region == "" {
		return Bridge{}, false
	}
	var inRegion []Bridge
	for _, b := range eligible {
		if b.Region == region {
			inRegion = append(inRegion, b)
		}
	}
	if len(inRegion) == 0 {
		return Bridge{}, false
	}
	return pickLowestStress(inRegion, region), true
}

// lowestStressGlobal implements pass 2(c): the globally lowest-stress
// eligible bridge, tie-broken by region match then jid order.
func lowestStressGlobal(eligible []Bridge, region string) Bridge {
	return pickLowestStress(eligible, region)
}

// pickLowestStress returns the lowest-stress bridge in bridges, treating
// stresses within stressEpsilon of each other as tied and breaking ties by
// region match to preferredRegion, then by jid lexicographic order.
func pickLowestStress(bridges []Bridge, preferredRegion string) Bridge {
	sorted := make([]Bridge, len(bridges))
	copy(sorted, bridges)

	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if diff := a.Stress - b.Stress; diff < -stressEpsilon || diff > stressEpsilon {
			return a.Stress < b.Stress
		}
		aMatch, bMatch := a.Region == preferredRegion, b.Region == preferredRegion
		if aMatch != bMatch {
			return aMatch
		}
		return a.JID.String() < b.JID.String()
	})

	return sorted[0]
}
