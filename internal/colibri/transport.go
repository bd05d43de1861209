package colibri

import (
	"context"

	"github.com/signalmesh/focus/internal/sources"
	"mellium.im/xmpp/jid"
)

// Offer is the opaque session description a participant sent in its
// session-initiate/accept; the manager forwards it to the bridge without
// interpreting it (SDP/Colibri encoding lives in internal/transport).
type Offer []byte

// TransportDescription is an opaque ICE/DTLS payload carried by a
// transport-info message and forwarded to the bridge unparsed.
type TransportDescription []byte

// Allocation is one participant's slot inside a bridge-hosted conference.
type Allocation struct {
	Bridge        jid.JID
	ConferenceID  string
	ParticipantID string
	// Answer is the bridge's session description for this participant,
	// returned from AllocateParticipant.
	Answer Offer
}

// Transport is the external collaborator that actually talks Colibri to a
// bridge — request/response over the messaging substrate (spec.md §6). The
// manager is agnostic of how that conversation is encoded on the wire.
type Transport interface {
	// CreateConference asks bridge to create the remote conference object
	// for conferenceID. Called at most once per (conference, bridge) by the
	// manager regardless of how many participants request it concurrently.
	CreateConference(ctx context.Context, bridge jid.JID, conferenceID string) error
	// AllocateParticipant asks bridge for a participant's slot in an
	// already-created conference.
	AllocateParticipant(ctx context.Context, bridge jid.JID, conferenceID, participantID string, offer Offer) (Allocation, error)
	// UpdateSources pushes a source add/remove to the bridge for an existing allocation.
	UpdateSources(ctx context.Context, alloc Allocation, add, remove sources.EndpointSourceSet) error
	// UpdateTransport pushes updated ICE/DTLS info for an existing allocation.
	UpdateTransport(ctx context.Context, alloc Allocation, transport TransportDescription) error
	// Expire releases one participant's allocation.
	Expire(ctx context.Context, alloc Allocation) error
}
