package conference

import (
	"github.com/signalmesh/focus/internal/sources"
	"github.com/signalmesh/focus/internal/transport"
)

// message is the tagged union processed by Conference's single main loop —
// every mutation of conference state happens here (spec.md §5). Go has no
// sum types, so like the rest of this codebase we switch on concrete types.
type message interface{ isConferenceMessage() }

type mucEventMessage struct{ event transport.MucEvent }

func (mucEventMessage) isConferenceMessage() {}

type sessionAcceptMessage struct {
	id       sources.EndpointID
	accepted sources.EndpointSourceSet
}

func (sessionAcceptMessage) isConferenceMessage() {}

type sessionTimeoutMessage struct{ id sources.EndpointID }

func (sessionTimeoutMessage) isConferenceMessage() {}

type sourceAddMessage struct {
	id    sources.EndpointID
	delta sources.EndpointSourceSet
}

func (sourceAddMessage) isConferenceMessage() {}

type sourceRemoveMessage struct {
	id    sources.EndpointID
	delta sources.EndpointSourceSet
}

func (sourceRemoveMessage) isConferenceMessage() {}

type transportInfoMessage struct {
	id          sources.EndpointID
	description []byte
}

func (transportInfoMessage) isConferenceMessage() {}

type sessionTerminateMessage struct{ id sources.EndpointID }

func (sessionTerminateMessage) isConferenceMessage() {}

type emptyGraceExpiredMessage struct{}

func (emptyGraceExpiredMessage) isConferenceMessage() {}

type pinVersionMessage struct{ version string }

func (pinVersionMessage) isConferenceMessage() {}
