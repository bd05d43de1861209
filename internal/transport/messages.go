// Package transport defines the typed messages the core exchanges with the
// outside world (spec.md §6) and the "messaging substrate" abstraction it's
// carried over. The core is agnostic of XML/wire encoding — these are plain
// Go values; a real XMPP/Colibri stanza codec is an external collaborator
// that adapts between these types and the wire, and is out of scope here.
package transport

import (
	"github.com/signalmesh/focus/internal/colibri"
	"github.com/signalmesh/focus/internal/sources"
	"mellium.im/xmpp/jid"
)

// ConferenceRequest is the inbound message asking the focus to create or
// join a conference for room (spec.md §6).
type ConferenceRequest struct {
	Room       jid.JID           `json:"room"`
	Ready      *bool             `json:"ready,omitempty"`
	SessionID  string            `json:"sessionId,omitempty"`
	Identity   string            `json:"identity,omitempty"`
	MachineUID string            `json:"machineUid,omitempty"`
	Vnode      string            `json:"vnode,omitempty"`
	FocusJID   *jid.JID          `json:"focusJid,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// ConferenceResponse mirrors ConferenceRequest's shape, with Ready set to
// indicate whether the focus has joined the room.
type ConferenceResponse struct {
	Room       jid.JID           `json:"room"`
	Ready      bool              `json:"ready"`
	SessionID  string            `json:"sessionId,omitempty"`
	Identity   string            `json:"identity,omitempty"`
	MachineUID string            `json:"machineUid,omitempty"`
	Vnode      string            `json:"vnode,omitempty"`
	FocusJID   *jid.JID          `json:"focusJid,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// SessionInitiate carries the conference's initial source map (already
// filtered through the recipient's signaling queue) alongside the session
// offer's media contents.
type SessionInitiate struct {
	To       jid.JID
	Contents []string
	Sources  sources.View
}

// SessionAccept is the peer's answer to a SessionInitiate.
type SessionAccept struct {
	From    jid.JID
	Sources sources.EndpointSourceSet
}

// SourceAdd/SourceRemove carry an in-session source delta, in either direction.
type SourceAdd struct {
	Peer  jid.JID
	Delta sources.EndpointSourceSet
}

type SourceRemove struct {
	Peer  jid.JID
	Delta sources.EndpointSourceSet
}

// TransportInfo carries opaque ICE/DTLS info exchanged mid-session.
type TransportInfo struct {
	Peer        jid.JID
	Description colibri.TransportDescription
}

// SessionTerminate notifies the peer (or is received from it) that a
// session is ending.
type SessionTerminate struct {
	Peer   jid.JID
	Reason string
}

// ColibriAllocate/ColibriUpdate/ColibriExpire are the Colibri-facing
// counterparts sent to a bridge rather than a peer.
type ColibriAllocate struct {
	Bridge       jid.JID
	ConferenceID string
	Participant  string
	Offer        colibri.Offer
}

type ColibriUpdate struct {
	Bridge       jid.JID
	ConferenceID string
	Participant  string
	AddSources   sources.EndpointSourceSet
	RemoveSources sources.EndpointSourceSet
	Transport    colibri.TransportDescription
}

type ColibriExpire struct {
	Bridge       jid.JID
	ConferenceID string
	Participant  string
}

// BridgeStatusReport is the periodic health/load report a bridge publishes.
type BridgeStatusReport struct {
	JID      jid.JID
	Stress   float64
	Region   string
	Version  string
	RelayID  string
	Features map[string]struct{}
}
