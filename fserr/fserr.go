package fserr

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind is the coarse category of a filesystem error. Kind values are part
// of the wire contract and must not change.
type Kind string

const (
	// KindIllegalPath marks paths an operation refuses to touch: the root
	// where forbidden, dot segments, or an ignored path for an operation
	// that requires visibility.
	KindIllegalPath Kind = "ILLEGAL_PATH"
	// KindNotFound marks references to nodes that do not exist.
	KindNotFound Kind = "NOT_FOUND"
	// KindTypeMismatch marks operations that expected a file but found a
	// directory, or vice versa.
	KindTypeMismatch Kind = "TYPE_MISMATCH"
	// KindNotEmpty marks non-recursive deletion of a non-empty directory.
	KindNotEmpty Kind = "NOT_EMPTY"
	// KindTimeout marks a deadline proxy call that exceeded its budget.
	KindTimeout Kind = "TIMEOUT"
	// KindConnection marks an RPC bridge connection that failed to
	// establish or was lost.
	KindConnection Kind = "CONNECTION"
	// KindUnsupported marks entries or operations outside the contract's
	// file/directory model.
	KindUnsupported Kind = "UNSUPPORTED"
	// KindUnexpected marks internal failures with no better category.
	KindUnexpected Kind = "UNEXPECTED"
)

// Error is the standardized filesystem error. Kind and Message survive a
// trip over the RPC wire; the cause does not.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	cause   error
}

// New creates an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that keeps err reachable via errors.Unwrap. A nil
// err yields nil.
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf("%s: %s", message, err.Error()),
		cause:   err,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error with the same Kind, so sentinel comparisons like
// errors.Is(err, fserr.New(fserr.KindNotFound, "")) work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// IsKind reports whether err is (or wraps) an Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or KindUnexpected for errors outside
// the taxonomy. A nil err yields the empty kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// Encode converts any error into its wire form: taxonomy errors keep
// their kind and message, everything else degrades to KindUnexpected.
// A nil err yields nil.
func Encode(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return &Error{Kind: e.Kind, Message: e.Message}
	}
	return &Error{Kind: KindUnexpected, Message: err.Error()}
}

// Decode reconstructs an Error from its JSON wire form.
func Decode(data []byte) (*Error, error) {
	var e Error
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal error: %w", err)
	}
	if e.Kind == "" {
		e.Kind = KindUnexpected
	}
	return &e, nil
}
