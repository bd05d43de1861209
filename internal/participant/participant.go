// Package participant implements the Participant record and invite task
// described in spec.md §4.G: what a conference tracks for one MUC member,
// and the bounded-concurrency task that brings a newly-joined member into
// the conference by coordinating the bridge selector (D), the Colibri
// manager (E) and the Jingle session (F).
package participant

import (
	"github.com/signalmesh/focus/internal/bridge"
	"github.com/signalmesh/focus/internal/colibri"
	"github.com/signalmesh/focus/internal/jingle"
	"github.com/signalmesh/focus/internal/sourcequeue"
	"github.com/signalmesh/focus/internal/sources"
	"mellium.im/xmpp/jid"
)

// Capabilities is what a participant advertised about what it can send and
// receive — drives both the offer the invite task builds and the signaling
// queue options it creates (spec.md §4.C, §4.G).
type Capabilities struct {
	Audio                                  bool
	Video                                  bool
	Data                                   bool
	StripSimulcast                         bool
	SupportsReceivingMultipleVideoStreams bool
	Region                                 string
}

// Participant is one MUC member's conference-side record. Like the rest of
// a conference's state it lives behind the owning conference's single
// logical lock; Bridge is a weak reference (a copy of the registry's
// record, spec.md §4.H resource policy), while Session is created by New
// and owned by the Participant.
type Participant struct {
	ID           sources.EndpointID
	JID          jid.JID
	Capabilities Capabilities

	Session   *jingle.Session
	Signaling *sourcequeue.SourceSignaling

	// Bridge is a copy of the bridge this participant was placed on at
	// selection time — a weak reference in the sense that the registry, not
	// the participant, owns the authoritative Bridge entry.
	Bridge bridge.Bridge

	// Allocation is this participant's Colibri slot, valid once the invite
	// task's allocate step has completed.
	Allocation colibri.Allocation
}

// New creates a Participant record in its initial (pre-invite) state.
func New(id sources.EndpointID, participantJID jid.JID, caps Capabilities) *Participant {
	return &Participant{
		ID:           id,
		JID:          participantJID,
		Capabilities: caps,
		Session:      jingle.New(participantJID),
		Signaling: sourcequeue.New(sourcequeue.Options{
			Audio:                                  caps.Audio,
			Video:                                  caps.Video,
			StripSimulcast:                         caps.StripSimulcast,
			SupportsReceivingMultipleVideoStreams: caps.SupportsReceivingMultipleVideoStreams,
		}),
	}
}

// BuildOffer lists the media contents this participant's offer should carry:
// audio, video iff Capabilities.Video, a data channel iff Capabilities.Data.
// Audio is always offered.
func (p *Participant) BuildOffer() []string {
	contents := []string{"audio"}
	if p.Capabilities.Video {
		contents = append(contents, "video")
	}
	if p.Capabilities.Data {
		contents = append(contents, "data")
	}
	return contents
}
