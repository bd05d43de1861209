package jingle

import (
	"testing"
	"time"

	"github.com/signalmesh/focus/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mellium.im/xmpp/jid"
)

func startWatchdog(fired chan<- struct{}) *common.WatchdogChannel {
	cfg := common.WatchdogConfig{
		Timeout:   20 * time.Millisecond,
		OnTimeout: func() { fired <- struct{}{} },
	}
	return cfg.Start()
}

func testPeerJID(t *testing.T) jid.JID {
	t.Helper()
	parsed, err := jid.Parse("alice@example.com/res")
	require.NoError(t, err)
	return parsed
}

func TestInitiateTransitionsToOfferSent(t *testing.T) {
	s := New(testPeerJID(t))
	fired := make(chan struct{}, 1)
	err := s.Initiate(startWatchdog(fired), []string{"audio"})
	require.NoError(t, err)
	assert.Equal(t, OfferSent, s.State())
	assert.Equal(t, []string{"audio"}, s.LastSentOffer())
	assert.Equal(t, 1, s.PendingAcks())
}

func TestInitiateTwiceIsInvalid(t *testing.T) {
	s := New(testPeerJID(t))
	require.NoError(t, s.Initiate(startWatchdog(make(chan struct{}, 1)), []string{"audio"}))

	err := s.Initiate(startWatchdog(make(chan struct{}, 1)), []string{"audio"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAcceptTransitionsToEstablishedAndCancelsExpiration(t *testing.T) {
	s := New(testPeerJID(t))
	fired := make(chan struct{}, 1)
	require.NoError(t, s.Initiate(startWatchdog(fired), []string{"audio"}))

	err := s.Accept()
	require.NoError(t, err)
	assert.Equal(t, Established, s.State())

	select {
	case <-fired:
		t.Fatal("expiration watchdog should have been cancelled on accept")
	case <-time.After(40 * time.Millisecond):
	}
}

func TestAcceptBeforeInitiateIsInvalid(t *testing.T) {
	s := New(testPeerJID(t))
	err := s.Accept()
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDuplicateAcceptIsRejected(t *testing.T) {
	s := New(testPeerJID(t))
	require.NoError(t, s.Initiate(startWatchdog(make(chan struct{}, 1)), []string{"audio"}))
	require.NoError(t, s.Accept())

	err := s.Accept()
	assert.ErrorIs(t, err, ErrDuplicateAccept)
	assert.Equal(t, Established, s.State(), "a rejected duplicate accept must not disturb state")
}

func TestTimeoutTerminatesOfferSentSession(t *testing.T) {
	s := New(testPeerJID(t))
	require.NoError(t, s.Initiate(startWatchdog(make(chan struct{}, 1)), []string{"audio"}))

	err := s.Timeout()
	require.NoError(t, err)
	assert.Equal(t, Terminated, s.State())
	assert.Equal(t, ReasonOfferTimeout, s.TerminationReason())
}

func TestTimeoutAfterEstablishedIsInvalid(t *testing.T) {
	s := New(testPeerJID(t))
	require.NoError(t, s.Initiate(startWatchdog(make(chan struct{}, 1)), []string{"audio"}))
	require.NoError(t, s.Accept())

	err := s.Timeout()
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestExpirationWatchdogFiresTimeoutEndToEnd(t *testing.T) {
	s := New(testPeerJID(t))
	fired := make(chan struct{}, 1)
	require.NoError(t, s.Initiate(startWatchdog(fired), []string{"audio"}))

	select {
	case <-fired:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expiration watchdog never fired")
	}
	require.NoError(t, s.Timeout())
	assert.Equal(t, Terminated, s.State())
}

func TestRequireEstablishedGuardsSourceOperations(t *testing.T) {
	s := New(testPeerJID(t))
	assert.ErrorIs(t, s.RequireEstablished(), ErrNotEstablished)

	require.NoError(t, s.Initiate(startWatchdog(make(chan struct{}, 1)), []string{"audio"}))
	assert.ErrorIs(t, s.RequireEstablished(), ErrNotEstablished)

	require.NoError(t, s.Accept())
	assert.NoError(t, s.RequireEstablished())
}

func TestTerminateIsIdempotent(t *testing.T) {
	s := New(testPeerJID(t))
	require.NoError(t, s.Initiate(startWatchdog(make(chan struct{}, 1)), []string{"audio"}))
	require.NoError(t, s.Accept())

	s.Terminate(ReasonLocalTerminate)
	assert.Equal(t, Terminated, s.State())
	assert.Equal(t, ReasonLocalTerminate, s.TerminationReason())

	s.Terminate(ReasonPeerTerminate)
	assert.Equal(t, ReasonLocalTerminate, s.TerminationReason(), "second terminate must not overwrite the first reason")
}

func TestTerminateFromCreatedState(t *testing.T) {
	s := New(testPeerJID(t))
	s.Terminate(ReasonLocalTerminate)
	assert.Equal(t, Terminated, s.State())
}

func TestAckRetiresPendingSends(t *testing.T) {
	s := New(testPeerJID(t))
	require.NoError(t, s.Initiate(startWatchdog(make(chan struct{}, 1)), []string{"audio"}))
	require.Equal(t, 1, s.PendingAcks())

	s.RecordSend()
	s.RecordSend()
	assert.Equal(t, 3, s.PendingAcks())

	s.Ack()
	assert.Equal(t, 0, s.PendingAcks())
}

func TestSidIsStableAndPeerJIDRecorded(t *testing.T) {
	peer := testPeerJID(t)
	s := New(peer)

	assert.NotEmpty(t, s.Sid())
	assert.Equal(t, s.Sid(), s.Sid())
	assert.Equal(t, peer, s.PeerJID())
}
