package colibri

import "errors"

// Allocation failure kinds, spec.md §4.E. A Transport implementation's
// CreateConference/AllocateParticipant must return one of these (wrapped or
// bare, errors.Is-compatible) on failure so callers can tell them apart.
var (
	ErrAllocateTimeout  = errors.New("colibri: allocate timed out")
	ErrAllocateRejected = errors.New("colibri: bridge rejected allocation")
	ErrBridgeGoingAway  = errors.New("colibri: bridge is going away")
)

// ErrConferenceDisposed is returned by Allocate/UpdateSources/UpdateTransport
// once ExpireConference has run, rather than panicking on stale use; Expire
// is a no-op returning nil in that case.
var ErrConferenceDisposed = errors.New("colibri: conference manager disposed")

// ErrUnknownAllocation is returned by UpdateSources/UpdateTransport when given
// a participant id with no current allocation; Expire returns nil for such an
// id.
var ErrUnknownAllocation = errors.New("colibri: no allocation for participant")
