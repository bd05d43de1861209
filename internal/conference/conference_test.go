package conference

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/signalmesh/focus/internal/bridge"
	"github.com/signalmesh/focus/internal/colibri"
	"github.com/signalmesh/focus/internal/sources"
	"github.com/signalmesh/focus/internal/transport"
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

// fakeColibriTransport is an in-memory double for colibri.Transport, just
// enough to let the conference's invite tasks reach OfferSent.
type fakeColibriTransport struct {
	mu  sync.Mutex
	seq int
}

func (f *fakeColibriTransport) CreateConference(ctx context.Context, b jid.JID, conferenceID string) error {
	return nil
}

func (f *fakeColibriTransport) AllocateParticipant(ctx context.Context, b jid.JID, conferenceID, participantID string, offer colibri.Offer) (colibri.Allocation, error) {
	f.mu.Lock()
	f.seq++
	f.mu.Unlock()
	return colibri.Allocation{Bridge: b, ConferenceID: conferenceID, ParticipantID: participantID}, nil
}

func (f *fakeColibriTransport) UpdateSources(ctx context.Context, alloc colibri.Allocation, add, remove sources.EndpointSourceSet) error {
	return nil
}

func (f *fakeColibriTransport) UpdateTransport(ctx context.Context, alloc colibri.Allocation, td colibri.TransportDescription) error {
	return nil
}

func (f *fakeColibriTransport) Expire(ctx context.Context, alloc colibri.Allocation) error { return nil }

// fakeSubstrate records every message sent, keyed by recipient.
type fakeSubstrate struct {
	mu   sync.Mutex
	sent map[string][]interface{}
}

func newFakeSubstrate() *fakeSubstrate {
	return &fakeSubstrate{sent: make(map[string][]interface{})}
}

func (f *fakeSubstrate) SendAndForget(ctx context.Context, to jid.JID, msg interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[to.String()] = append(f.sent[to.String()], msg)
	return nil
}

func (f *fakeSubstrate) SendRequest(ctx context.Context, to jid.JID, msg interface{}, timeout time.Duration) (interface{}, error) {
	return nil, nil
}

func (f *fakeSubstrate) Subscribe(handler func(from jid.JID, msg interface{})) {}

func (f *fakeSubstrate) messagesTo(id jid.JID) []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]interface{}{}, f.sent[id.String()]...)
}

func testConfig() Config {
	return Config{
		MaxAudioSenders:          8,
		MaxVideoSenders:          8,
		MaxSourcesPerEndpoint:    16,
		MaxGroupsPerEndpoint:     8,
		SingleParticipantTimeout: time.Hour,
		SessionExpirationTimeout: time.Hour,
		InviteConcurrency:        4,
	}
}

// newTestConference wires a Conference with fake transport/substrate and
// drives its message loop on a background goroutine for the test's lifetime.
func newTestConference(t *testing.T) (*Conference, *fakeSubstrate) {
	t.Helper()
	return newTestConferenceWithConfig(t, testConfig())
}

func newTestConferenceWithConfig(t *testing.T, cfg Config) (*Conference, *fakeSubstrate) {
	t.Helper()
	substrate := newFakeSubstrate()
	registry := bridge.New(bridge.Config{Lost: time.Hour, FailureResetThreshold: time.Hour})
	registry.ReportStatus(j(t, "bridge1@example.com"), 0.1, "regionA", "v1", "relay1", nil, time.Now())

	mgr := colibri.New("conf-1", &fakeColibriTransport{}, colibri.Config{}, nil)
	c := New("conf-1", cfg, substrate, registry, mgr)

	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	t.Cleanup(cancel)

	return c, substrate
}

func joinMember(c *Conference, memberJID jid.JID) {
	c.HandleMucEvent(transport.MucEvent{
		Kind: transport.MemberJoined,
		Member: transport.MemberIdentity{
			JID:           memberJID,
			Role:          "participant",
			SupportsAudio: true,
			SupportsVideo: true,
		},
	})
}

func TestInviteReachesOfferSent(t *testing.T) {
	c, substrate := newTestConference(t)
	alice := j(t, "alice@example.com/res")

	joinMember(c, alice)

	require.Eventually(t, func() bool {
		return len(substrate.messagesTo(alice)) > 0
	}, time.Second, 5*time.Millisecond, "expected session-initiate to be sent to alice")

	msgs := substrate.messagesTo(alice)
	_, ok := msgs[0].(transport.SessionInitiate)
	assert.True(t, ok, "expected a SessionInitiate, got %T", msgs[0])

	require.Eventually(t, func() bool {
		p, ok := c.participants[sources.EndpointID(alice.String())]
		return ok && p.Session.State().String() == "offer-sent"
	}, time.Second, 5*time.Millisecond)
}

func TestSessionAcceptFansOutToLateJoiner(t *testing.T) {
	c, substrate := newTestConference(t)
	alice := j(t, "alice@example.com/res")
	bob := j(t, "bob@example.com/res")

	joinMember(c, alice)
	require.Eventually(t, func() bool { return len(substrate.messagesTo(alice)) > 0 }, time.Second, 5*time.Millisecond)

	aliceSet := sources.NewEndpointSourceSet([]sources.Source{{Ssrc: 111, MediaType: sources.Audio, Msid: "a-audio"}}, nil)
	c.HandleSessionAccept(sources.EndpointID(alice.String()), aliceSet)

	require.Eventually(t, func() bool {
		return c.sourceMap.View().Get(sources.EndpointID(alice.String())).HasSource(sources.Source{Ssrc: 111, MediaType: sources.Audio})
	}, time.Second, 5*time.Millisecond, "alice's accepted sources should be committed")

	joinMember(c, bob)
	require.Eventually(t, func() bool { return len(substrate.messagesTo(bob)) > 0 }, time.Second, 5*time.Millisecond)

	initiate, ok := substrate.messagesTo(bob)[0].(transport.SessionInitiate)
	require.True(t, ok)
	assert.True(t, initiate.Sources.Get(sources.EndpointID(alice.String())).HasSource(sources.Source{Ssrc: 111, MediaType: sources.Audio}),
		"bob's session-initiate should already carry alice's established sources")
}

func TestLeaveBeforeAcceptExpiresParticipant(t *testing.T) {
	c, substrate := newTestConference(t)
	alice := j(t, "alice@example.com/res")

	joinMember(c, alice)
	require.Eventually(t, func() bool { return len(substrate.messagesTo(alice)) > 0 }, time.Second, 5*time.Millisecond)

	c.HandleMucEvent(transport.MucEvent{Kind: transport.MemberLeft, Member: transport.MemberIdentity{JID: alice}})

	require.Eventually(t, func() bool {
		_, exists := c.participants[sources.EndpointID(alice.String())]
		return !exists
	}, time.Second, 5*time.Millisecond, "participant record should be released once torn down")
}

func TestSenderLimitRejectsExcessAudioSenders(t *testing.T) {
	c, substrate := newTestConference(t)
	c.config.MaxAudioSenders = 1

	alice := j(t, "alice@example.com/res")
	bob := j(t, "bob@example.com/res")

	joinMember(c, alice)
	require.Eventually(t, func() bool { return len(substrate.messagesTo(alice)) > 0 }, time.Second, 5*time.Millisecond)
	c.HandleSessionAccept(sources.EndpointID(alice.String()),
		sources.NewEndpointSourceSet([]sources.Source{{Ssrc: 1, MediaType: sources.Audio}}, nil))

	require.Eventually(t, func() bool {
		return c.sourceMap.View().Get(sources.EndpointID(alice.String())).HasSource(sources.Source{Ssrc: 1, MediaType: sources.Audio})
	}, time.Second, 5*time.Millisecond)

	joinMember(c, bob)
	require.Eventually(t, func() bool { return len(substrate.messagesTo(bob)) > 0 }, time.Second, 5*time.Millisecond)
	c.HandleSessionAccept(sources.EndpointID(bob.String()),
		sources.NewEndpointSourceSet([]sources.Source{{Ssrc: 2, MediaType: sources.Audio}}, nil))

	// Give the rejected accept a moment to be processed, then confirm bob's
	// source never lands in the conference-wide map.
	time.Sleep(50 * time.Millisecond)
	view := c.sourceMap.View()
	assert.True(t, view.Get(sources.EndpointID(alice.String())).HasSource(sources.Source{Ssrc: 1, MediaType: sources.Audio}))
	assert.False(t, view.Get(sources.EndpointID(bob.String())).HasSource(sources.Source{Ssrc: 2, MediaType: sources.Audio}),
		"bob's audio source should have been rejected once the audio sender cap was hit")
}

func TestEmptyGraceAppliesOnlyBeforeFirstJoin(t *testing.T) {
	cfg := testConfig()
	cfg.SingleParticipantTimeout = 30 * time.Millisecond
	c, _ := newTestConferenceWithConfig(t, cfg)

	select {
	case <-c.Done():
		t.Fatal("conference ended before its grace period elapsed")
	case <-time.After(10 * time.Millisecond):
	}

	require.Eventually(t, func() bool {
		select {
		case <-c.Done():
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond, "conference should end once the first-join grace period expires")
}

func TestConferenceEndsImmediatelyWhenLastParticipantLeavesAfterRunning(t *testing.T) {
	cfg := testConfig()
	cfg.SingleParticipantTimeout = time.Hour
	c, substrate := newTestConferenceWithConfig(t, cfg)
	alice := j(t, "alice@example.com/res")

	joinMember(c, alice)
	require.Eventually(t, func() bool { return len(substrate.messagesTo(alice)) > 0 }, time.Second, 5*time.Millisecond)
	require.Equal(t, Running, c.State())

	c.HandleMucEvent(transport.MucEvent{Kind: transport.MemberLeft, Member: transport.MemberIdentity{JID: alice}})

	require.Eventually(t, func() bool {
		select {
		case <-c.Done():
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond, "a Running conference draining to zero participants should end immediately, with no second grace period")
}
