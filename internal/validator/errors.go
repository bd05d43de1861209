package validator

import "errors"

// The validation error taxonomy from spec.md §4.B. Each is a sentinel so
// callers can use errors.Is; wrapping with fmt.Errorf adds the offending
// ssrc/endpoint for logs without breaking that comparison.
var (
	ErrInvalidSsrc              = errors.New("invalid ssrc")
	ErrSsrcAlreadyUsed          = errors.New("ssrc already used")
	ErrSsrcLimitExceeded        = errors.New("ssrc limit exceeded")
	ErrGroupLimitExceeded       = errors.New("group limit exceeded")
	ErrRequiredParameterMissing = errors.New("required parameter missing")
	ErrGroupMsidMismatch        = errors.New("group msid mismatch")
	ErrInvalidFidGroup          = errors.New("invalid fid group")
	ErrMsidConflict             = errors.New("msid conflict")
	ErrMissingSourceForGroup    = errors.New("missing source for group")
	ErrSourceDoesNotExist       = errors.New("source does not exist")
	ErrSourceGroupDoesNotExist  = errors.New("source group does not exist")
)
