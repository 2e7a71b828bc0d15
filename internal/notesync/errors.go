package notesync

import "errors"

// Kind classifies a sync failure so callers can branch without matching
// on message text.
type Kind string

const (
	KindAuthRequired             Kind = "auth_required"
	KindNotFound                 Kind = "not_found"
	KindValidation               Kind = "validation"
	KindRemoteFailure            Kind = "remote_failure"
	KindSummarizationUnavailable Kind = "summarization_unavailable"
)

type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// IsKind reports whether err is a sync error of the given kind.
func IsKind(err error, kind Kind) bool {
	var syncErr *Error
	if !errors.As(err, &syncErr) {
		return false
	}
	return syncErr.Kind == kind
}

func syncError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}
