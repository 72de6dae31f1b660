package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a failure so callers can decide between retrying,
// falling back and giving up
type Kind string

const (
	KindTransientNetwork    Kind = "transient_network"
	KindTransientExtraction Kind = "transient_extraction"
	KindPersistenceConflict Kind = "persistence_conflict"
	KindPersistenceFailure  Kind = "persistence_failure"
	KindFatalLoop           Kind = "fatal_loop"
	KindInputValidation     Kind = "input_validation"
	KindHTTPStatus          Kind = "http_status"
	KindUnknown             Kind = "unknown"
)

// Error is a classified error carrying the operation that produced it
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s error: %s", e.Op, e.Kind, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error with a message
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies an existing error. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind anywhere in its chain
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// IsRetryable checks if an error kind should be retried
func IsRetryable(kind Kind) bool {
	switch kind {
	case KindTransientNetwork, KindTransientExtraction, KindPersistenceFailure:
		return true
	case KindPersistenceConflict, KindFatalLoop, KindInputValidation:
		return false
	default:
		return false
	}
}

// IsPermanent reports whether retrying err on a later run cannot help: an
// HTTP status that is never retried, or rejected input
func IsPermanent(err error) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindHTTPStatus:
		return !IsRetryableStatusCode(e.Code)
	case KindInputValidation:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429:
		return true
	case 500, 502, 503, 504:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}
