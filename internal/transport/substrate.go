package transport

import (
	"context"
	"time"

	"mellium.im/xmpp/jid"
)

// Substrate is the abstract signaling connection spec.md §6 requires: the
// core never touches XML, only this. A real implementation adapts these
// calls to IQ get/set and fire-and-forget stanzas; that adapter is an
// external collaborator and out of scope here.
type Substrate interface {
	// SendAndForget transmits msg to to without awaiting a reply.
	SendAndForget(ctx context.Context, to jid.JID, msg interface{}) error
	// SendRequest transmits msg to to and awaits a typed reply, failing with
	// context.DeadlineExceeded-compatible behaviour after timeout.
	SendRequest(ctx context.Context, to jid.JID, msg interface{}, timeout time.Duration) (interface{}, error)
	// Subscribe registers handler to receive every inbound message addressed
	// to the local jid (IQ get/set). Subscribe may be called multiple times
	// to register independent handlers.
	Subscribe(handler func(from jid.JID, msg interface{}))
}

// MemberRole is a MUC occupant's role (moderator, participant, visitor, ...);
// left as an opaque string since the core only ever compares/forwards it.
type MemberRole string

// MemberIdentity is what a MUC presence advertises about a joining member:
// identity, role, capability advertisement, and optional region/statsId.
type MemberIdentity struct {
	JID          jid.JID
	Role         MemberRole
	StatsID      string
	Region       string
	SupportsAudio bool
	SupportsVideo bool
	SupportsData  bool
	StripSimulcast bool
	SupportsReceivingMultipleVideoStreams bool
}

// MucEvent is the tagged union of events a joined chat room can raise.
// Exactly one of the embedded fields is meaningful per event, selected by Kind.
type MucEventKind int

const (
	MemberJoined MucEventKind = iota
	MemberLeft
	MemberRoleChanged
	PresenceUpdated
	RoomDestroyed
)

// MucEvent is one membership/presence event from a joined room.
type MucEvent struct {
	Kind     MucEventKind
	Member   MemberIdentity
	NewRole  MemberRole
}

// Room is the "chat room" abstraction spec.md §6 requires.
type Room interface {
	// Events returns the channel of membership/presence events for this room.
	Events() <-chan MucEvent
	// PublishPresence advertises the focus's own state via a presence extension.
	PublishPresence(ctx context.Context, extension interface{}) error
}
