package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mellium.im/xmpp/jid"
)

func j(t *testing.T, s string) jid.JID {
	t.Helper()
	parsed, err := jid.Parse(s)
	require.NoError(t, err)
	return parsed
}

func TestReportStatusCreatesAndUpdatesBridge(t *testing.T) {
	r := New(Config{Lost: time.Minute, FailureResetThreshold: time.Minute})
	id := j(t, "bridge-a@example.com")
	now := time.Unix(1000, 0)

	r.ReportStatus(id, 0.2, "rA", "v1", "relay-1", nil, now)
	b, ok := r.Get(id)
	require.True(t, ok)
	assert.Equal(t, 0.2, b.Stress)
	assert.Equal(t, "rA", b.Region)

	r.ReportStatus(id, 0.4, "rA", "v1", "relay-1", nil, now.Add(time.Second))
	b, _ = r.Get(id)
	assert.Equal(t, 0.4, b.Stress)
}

func TestSweepEvictsLostBridge(t *testing.T) {
	r := New(Config{Lost: 10 * time.Second, FailureResetThreshold: time.Minute})
	id := j(t, "bridge-a@example.com")
	now := time.Unix(1000, 0)
	r.ReportStatus(id, 0.1, "rA", "v1", "", nil, now)

	r.Sweep(now.Add(5 * time.Second))
	_, ok := r.Get(id)
	assert.True(t, ok)

	r.Sweep(now.Add(11 * time.Second))
	_, ok = r.Get(id)
	assert.False(t, ok)
}

func TestSweepClearsExpiredFailingState(t *testing.T) {
	r := New(Config{Lost: time.Hour, FailureResetThreshold: 10 * time.Second})
	id := j(t, "bridge-a@example.com")
	now := time.Unix(1000, 0)
	r.ReportStatus(id, 0.1, "rA", "v1", "", nil, now)
	r.MarkFailing(id, now)

	b, _ := r.Get(id)
	assert.True(t, b.Failing)

	r.Sweep(now.Add(11 * time.Second))
	b, _ = r.Get(id)
	assert.False(t, b.Failing)
}

func TestSelectNoEligibleBridge(t *testing.T) {
	_, err := Select(SelectionInput{})
	assert.ErrorIs(t, err, ErrNoEligibleBridge)
}

func TestSelectFiltersFailingBridges(t *testing.T) {
	a := Bridge{JID: j(t, "a@x"), Stress: 0.1, Failing: true}
	b := Bridge{JID: j(t, "b@x"), Stress: 0.5}

	chosen, err := Select(SelectionInput{Candidates: []Bridge{a, b}})
	require.NoError(t, err)
	assert.Equal(t, b.JID, chosen.JID)
}

func TestSelectFiltersVersionMismatch(t *testing.T) {
	a := Bridge{JID: j(t, "a@x"), Stress: 0.1, Version: "v2"}
	b := Bridge{JID: j(t, "b@x"), Stress: 0.5, Version: "v1"}

	chosen, err := Select(SelectionInput{Candidates: []Bridge{a, b}, PinnedVersion: "v1"})
	require.NoError(t, err)
	assert.Equal(t, b.JID, chosen.JID)
}

func TestSelectFiltersMissingRequiredFeature(t *testing.T) {
	a := Bridge{JID: j(t, "a@x"), Stress: 0.1, Features: map[string]struct{}{}}
	b := Bridge{JID: j(t, "b@x"), Stress: 0.5, Features: map[string]struct{}{"av1": {}}}

	chosen, err := Select(SelectionInput{Candidates: []Bridge{a, b}, RequiredFeatures: []string{"av1"}})
	require.NoError(t, err)
	assert.Equal(t, b.JID, chosen.JID)
}

func TestSelectPrefersStickyBridgeBelowHighStressThreshold(t *testing.T) {
	sticky := Bridge{JID: j(t, "sticky@x"), Stress: 0.4, Region: "rB"}
	lower := Bridge{JID: j(t, "lower@x"), Stress: 0.05, Region: "rA"}

	chosen, err := Select(SelectionInput{
		Candidates:        []Bridge{sticky, lower},
		ConferenceBridges: map[string]struct{}{sticky.JID.String(): {}},
		Region:            "rA",
	})
	require.NoError(t, err)
	assert.Equal(t, sticky.JID, chosen.JID)
}

func TestSelectIgnoresStickyBridgeAboveHighStressThreshold(t *testing.T) {
	sticky := Bridge{JID: j(t, "sticky@x"), Stress: 0.9, Region: "rB"}
	lower := Bridge{JID: j(t, "lower@x"), Stress: 0.05, Region: "rA"}

	chosen, err := Select(SelectionInput{
		Candidates:        []Bridge{sticky, lower},
		ConferenceBridges: map[string]struct{}{sticky.JID.String(): {}},
		Region:            "rA",
	})
	require.NoError(t, err)
	assert.Equal(t, lower.JID, chosen.JID)
}

func TestSelectPrefersRegionMatchOverGlobalLowestOutsideStickyCase(t *testing.T) {
	inRegion := Bridge{JID: j(t, "in-region@x"), Stress: 0.3, Region: "rC"}
	global := Bridge{JID: j(t, "global@x"), Stress: 0.1, Region: "rA"}

	chosen, err := Select(SelectionInput{
		Candidates: []Bridge{inRegion, global},
		Region:     "rC",
	})
	require.NoError(t, err)
	assert.Equal(t, inRegion.JID, chosen.JID)
}

func TestSelectFallsBackToGlobalLowestStressWhenNoRegionMatch(t *testing.T) {
	a := Bridge{JID: j(t, "a@x"), Stress: 0.3, Region: "rA"}
	b := Bridge{JID: j(t, "b@x"), Stress: 0.1, Region: "rB"}

	chosen, err := Select(SelectionInput{Candidates: []Bridge{a, b}, Region: "rZ"})
	require.NoError(t, err)
	assert.Equal(t, b.JID, chosen.JID)
}

func TestSelectTieBreaksByRegionThenJid(t *testing.T) {
	a := Bridge{JID: j(t, "z-bridge@x"), Stress: 0.200, Region: "rA"}
	b := Bridge{JID: j(t, "a-bridge@x"), Stress: 0.204, Region: "rZ"}

	chosen, err := Select(SelectionInput{Candidates: []Bridge{a, b}, Region: "rA"})
	require.NoError(t, err)
	assert.Equal(t, a.JID, chosen.JID, "within stress epsilon, region match must win over jid order")
}

func TestSelectTieBreaksByJidWhenNeitherMatchesRegion(t *testing.T) {
	a := Bridge{JID: j(t, "z-bridge@x"), Stress: 0.200, Region: "rY"}
	b := Bridge{JID: j(t, "a-bridge@x"), Stress: 0.204, Region: "rZ"}

	chosen, err := Select(SelectionInput{Candidates: []Bridge{a, b}, Region: "rA"})
	require.NoError(t, err)
	assert.Equal(t, b.JID, chosen.JID)
}

// Scenario 6 (spec.md §8): three bridges A, B, C with stresses 0.1, 0.3, 0.8
// in regions rA, rB, rC. A participant in rC initially selects C (region
// match beats lower-stress-elsewhere since pass 2(b) runs before 2(c)... but
// here C is the only bridge in rC, so it's both the regional AND lone choice
// for that participant). After C fails, the region fallback lands on A
// (lowest stress globally). Before the reset elapses, a second participant
// in rC still avoids C.
func TestScenarioBridgeFailover(t *testing.T) {
	a := Bridge{JID: j(t, "bridge-a@x"), Stress: 0.1, Region: "rA"}
	b := Bridge{JID: j(t, "bridge-b@x"), Stress: 0.3, Region: "rB"}
	c := Bridge{JID: j(t, "bridge-c@x"), Stress: 0.8, Region: "rC"}

	candidates := []Bridge{a, b, c}

	chosen, err := Select(SelectionInput{Candidates: candidates, Region: "rC"})
	require.NoError(t, err)
	assert.Equal(t, c.JID, chosen.JID, "only bridge in rC, so it wins pass 2(b) despite high stress")

	c.Failing = true
	candidatesAfterFailure := []Bridge{a, b, c}

	chosen, err = Select(SelectionInput{Candidates: candidatesAfterFailure, Region: "rC"})
	require.NoError(t, err)
	assert.Equal(t, a.JID, chosen.JID, "C filtered out; no bridge left in rC so falls through to lowest global stress")

	chosen, err = Select(SelectionInput{Candidates: candidatesAfterFailure, Region: "rC"})
	require.NoError(t, err)
	assert.Equal(t, a.JID, chosen.JID, "second rC participant before reset still avoids C")
}

func TestSelectEnforcesSingleVersionConferenceHardConstraint(t *testing.T) {
	pinned := Bridge{JID: j(t, "pinned@x"), Stress: 0.5, Version: "v1"}
	other := Bridge{JID: j(t, "other@x"), Stress: 0.01, Version: "v2"}

	_, err := Select(SelectionInput{
		Candidates:        []Bridge{other},
		ConferenceBridges: map[string]struct{}{pinned.JID.String(): {}},
		PinnedVersion:     "v1",
	})
	assert.ErrorIs(t, err, ErrNoEligibleBridge)
}
