package participant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/signalmesh/focus/internal/bridge"
	"github.com/signalmesh/focus/internal/colibri"
	"github.com/signalmesh/focus/internal/common"
	"github.com/signalmesh/focus/internal/jingle"
	"github.com/signalmesh/focus/internal/sourcequeue"
	"github.com/signalmesh/focus/internal/sources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mellium.im/xmpp/jid"
)

type fakeCoordinator struct {
	bridge       bridge.Bridge
	selectErr    error
	allocation   colibri.Allocation
	allocateErr  error
	expired      []colibri.Allocation
	transmitErr  error
	transmitted  []sourcequeue.SignalingUpdate
	conferenceView sources.View
}

func (f *fakeCoordinator) SelectBridge(ctx context.Context, p *Participant) (bridge.Bridge, error) {
	return f.bridge, f.selectErr
}

func (f *fakeCoordinator) Allocate(ctx context.Context, p *Participant, br bridge.Bridge) (colibri.Allocation, error) {
	return f.allocation, f.allocateErr
}

func (f *fakeCoordinator) ExpireAllocation(ctx context.Context, alloc colibri.Allocation) {
	f.expired = append(f.expired, alloc)
}

func (f *fakeCoordinator) StartExpirationWatchdog(p *Participant) *common.WatchdogChannel {
	cfg := common.WatchdogConfig{Timeout: time.Hour, OnTimeout: func() {}}
	return cfg.Start()
}

func (f *fakeCoordinator) TransmitInitiate(ctx context.Context, p *Participant, updates []sourcequeue.SignalingUpdate) error {
	f.transmitted = updates
	return f.transmitErr
}

func (f *fakeCoordinator) ConferenceSourcesExcept(id sources.EndpointID) sources.View {
	return f.conferenceView
}

func testJID(t *testing.T) jid.JID {
	t.Helper()
	j, err := jid.Parse("alice@example.com/conf")
	require.NoError(t, err)
	return j
}

func newTestParticipant(t *testing.T) *Participant {
	return New("alice", testJID(t), Capabilities{Audio: true, Video: true, SupportsReceivingMultipleVideoStreams: true})
}

func TestRunHappyPath(t *testing.T) {
	p := newTestParticipant(t)
	other := sources.NewView(map[sources.EndpointID]sources.EndpointSourceSet{
		"bob": sources.NewEndpointSourceSet([]sources.Source{{Ssrc: 1, MediaType: sources.Audio}}, nil),
	})
	f := &fakeCoordinator{conferenceView: other}

	err := Run(context.Background(), p, f)
	require.NoError(t, err)
	assert.Equal(t, jingle.OfferSent, p.Session.State())
	require.Len(t, f.transmitted, 1)
	assert.True(t, f.transmitted[0].Sources.Get("bob").HasSource(sources.Source{Ssrc: 1, MediaType: sources.Audio}))
}

func TestRunNoBridgeAvailable(t *testing.T) {
	p := newTestParticipant(t)
	f := &fakeCoordinator{selectErr: bridge.ErrNoEligibleBridge}

	err := Run(context.Background(), p, f)
	assert.ErrorIs(t, err, ErrNoBridgeAvailable)
	assert.Equal(t, jingle.Created, p.Session.State())
}

func TestRunAllocateFailurePropagates(t *testing.T) {
	p := newTestParticipant(t)
	wantErr := errors.New("allocate failed")
	f := &fakeCoordinator{allocateErr: wantErr}

	err := Run(context.Background(), p, f)
	assert.ErrorIs(t, err, wantErr)
}

func TestRunCancelledBeforeAllocateExpiresNothing(t *testing.T) {
	p := newTestParticipant(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &fakeCoordinator{}

	err := Run(ctx, p, f)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Empty(t, f.expired)
}

func TestHandleAcceptAppliesSourcesAndFansOut(t *testing.T) {
	p := newTestParticipant(t)
	require.NoError(t, p.Session.Initiate(nil, p.BuildOffer()))

	applyCalled := false
	fanOutCalled := false
	err := HandleAccept(p, sources.EndpointSourceSet{}, func(s sources.EndpointSourceSet) (sources.EndpointSourceSet, error) {
		applyCalled = true
		return s, nil
	}, func() { fanOutCalled = true })

	require.NoError(t, err)
	assert.True(t, applyCalled)
	assert.True(t, fanOutCalled)
	assert.Equal(t, jingle.Established, p.Session.State())
}

func TestHandleAcceptPropagatesValidatorError(t *testing.T) {
	p := newTestParticipant(t)
	require.NoError(t, p.Session.Initiate(nil, p.BuildOffer()))

	wantErr := errors.New("msid conflict")
	err := HandleAccept(p, sources.EndpointSourceSet{}, func(s sources.EndpointSourceSet) (sources.EndpointSourceSet, error) {
		return sources.EndpointSourceSet{}, wantErr
	}, func() { t.Fatal("fan-out must not run when apply fails") })

	assert.ErrorIs(t, err, wantErr)
}
