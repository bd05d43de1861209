package conference

import "errors"

// Capacity errors (spec.md §7): the action is rejected, existing conference
// state is left intact.
var (
	ErrSenderCountExceeded     = errors.New("conference: sender count exceeded")
	ErrConferenceEnded         = errors.New("conference: conference has ended")
	ErrParticipantNotFound     = errors.New("conference: participant not found")
	ErrUnexpectedSessionState  = errors.New("conference: unexpected session state for this operation")
)
