// Package jingle implements the per-participant session state machine
// described in spec.md §4.F: Created → OfferSent → Established → Terminated,
// plus the duplicate/ordering guards that state machine relies on.
//
// A Session only tracks state and validates transitions; it does not itself
// talk to B (validator) or C (sourcequeue) or Colibri — those are the
// conference controller's job (spec.md §4.H), driven by the side effects
// each transition here reports back. Like every other piece of conference
// state, a Session is not safe for concurrent use by itself: it is driven
// serially from the owning conference's single message loop, which is what
// gives callers the "processed serially" / "observed in send order"
// guarantees spec.md §4.F asks for.
package jingle

import (
	"errors"

	"github.com/google/uuid"
	"github.com/signalmesh/focus/internal/common"
	"mellium.im/xmpp/jid"
)

// State is a Session's position in the Created→OfferSent→Established→Terminated chain.
type State int

const (
	Created State = iota
	OfferSent
	Established
	Terminated
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case OfferSent:
		return "offer-sent"
	case Established:
		return "established"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

var (
	// ErrInvalidTransition is returned when an event doesn't apply to the
	// session's current state (e.g. a session-accept while still Created).
	ErrInvalidTransition = errors.New("jingle: invalid transition for current state")
	// ErrDuplicateAccept is returned by Accept when the session
	// has already reached Established.
	ErrDuplicateAccept = errors.New("jingle: duplicate session-accept")
	// ErrNotEstablished is returned by operations that require an Established
	// session (source add/remove, transport-info) when it isn't.
	ErrNotEstablished = errors.New("jingle: session is not established")
)

// TerminationReason records why a session reached Terminated, for logging
// and for the conference controller to decide what cleanup is owed.
type TerminationReason int

const (
	ReasonUnspecified TerminationReason = iota
	ReasonOfferTimeout
	ReasonPeerTerminate
	ReasonLocalTerminate
)

// Session is one participant's Jingle session: `{sid, state, peerJid,
// lastSentOffer, pendingAcks}` (spec.md §3). expiration, the watchdog
// attached by Initiate, is closed the moment Established is reached or the
// session otherwise terminates; while it runs, its owner calls Timeout when
// it fires.
type Session struct {
	sid               string
	state             State
	terminationReason TerminationReason
	expiration        *common.WatchdogChannel
	peerJID           jid.JID
	lastSentOffer     []string
	pendingAcks       int
}

// New creates a session in the Created state, bound to peerJID and
// identified by a freshly generated sid.
func New(peerJID jid.JID) *Session {
	return &Session{sid: uuid.NewString(), state: Created, peerJID: peerJID}
}

// Sid returns this session's identifier, generated once at New and stable
// for the session's lifetime.
func (s *Session) Sid() string {
	return s.sid
}

// PeerJID returns the JID of the participant this session negotiates with.
func (s *Session) PeerJID() jid.JID {
	return s.peerJID
}

// State returns the session's current state.
func (s *Session) State() State {
	return s.state
}

// TerminationReason returns why the session terminated; meaningless unless
// State() == Terminated.
func (s *Session) TerminationReason() TerminationReason {
	return s.terminationReason
}

// LastSentOffer returns the media contents from the most recent
// session-initiate sent on this session (empty before Initiate is called).
func (s *Session) LastSentOffer() []string {
	return s.lastSentOffer
}

// PendingAcks returns how many signaling messages sent on this session are
// still awaiting the per-session ordering guarantee's implicit
// acknowledgement: any further inbound message from the peer (see Ack)
// retires every send that preceded it (spec.md §4.F: "messages emitted from
// one session are observed by the peer in send order").
func (s *Session) PendingAcks() int {
	return s.pendingAcks
}

// RecordSend marks one signaling message as sent on this session, owed by
// every caller that transmits something through it (session-initiate,
// source-add, source-remove).
func (s *Session) RecordSend() {
	s.pendingAcks++
}

// Ack retires every signaling message sent before the peer's next inbound
// message on this session, per the send-order guarantee in spec.md §4.F.
func (s *Session) Ack() {
	s.pendingAcks = 0
}

// Initiate transitions Created → OfferSent, recording offer as the session's
// lastSentOffer and attaching the expiration watchdog the caller started for
// this session (spec.md: "Sessions beyond OfferSent are bounded by a
// sessionExpirationTimeout"). Side effect owed by the caller: transmit
// session-initiate.
func (s *Session) Initiate(expiration *common.WatchdogChannel, offer []string) error {
	if s.state != Created {
		return ErrInvalidTransition
	}
	s.state = OfferSent
	s.expiration = expiration
	s.lastSentOffer = offer
	s.RecordSend()
	return nil
}

// Accept transitions OfferSent → Established. A second call after reaching
// Established is rejected as a duplicate rather than silently ignored, so
// the caller can send an error response (spec.md §4.F). Side effects owed
// by the caller: validate sources, commit to the validator, fan out via the
// signaling queue, and cancel the expiration watchdog (done here).
func (s *Session) Accept() error {
	switch s.state {
	case OfferSent:
		s.state = Established
		s.cancelExpiration()
		return nil
	case Established:
		return ErrDuplicateAccept
	default:
		return ErrInvalidTransition
	}
}

// Timeout transitions OfferSent → Terminated when the expiration watchdog
// fires before the peer accepted. A no-op (returns ErrInvalidTransition) if
// the session already moved past OfferSent, since the watchdog is cancelled
// on Accept but a race against an in-flight fire is still possible.
func (s *Session) Timeout() error {
	if s.state != OfferSent {
		return ErrInvalidTransition
	}
	s.terminate(ReasonOfferTimeout)
	return nil
}

// RequireEstablished returns ErrNotEstablished unless the session is
// Established — the guard source-add/source-remove/transport-info handling
// must pass before touching the validator or Colibri.
func (s *Session) RequireEstablished() error {
	if s.state != Established {
		return ErrNotEstablished
	}
	return nil
}

// Terminate transitions any non-terminal state to Terminated, per spec's
// "any, local/peer terminate -> Terminated" row. Idempotent: terminating an
// already-Terminated session is a no-op, not an error, since both the local
// and peer paths may race to tear down the same session.
func (s *Session) Terminate(reason TerminationReason) {
	if s.state == Terminated {
		return
	}
	s.terminate(reason)
}

func (s *Session) terminate(reason TerminationReason) {
	s.state = Terminated
	s.terminationReason = reason
	s.cancelExpiration()
}

func (s *Session) cancelExpiration() {
	if s.expiration != nil {
		s.expiration.Close()
		s.expiration = nil
	}
}
