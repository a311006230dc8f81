package brokererr

import "fmt"

// Error is the concrete error type returned by every broker component.
// It satisfies errors.Is against the sentinel for its Kind.
type Error struct {
	kind    Kind
	message string
	path    string
	cause   error
}

// New builds an Error of the given kind. path may be empty when the error
// is not associated with a remote or local filesystem path.
func New(kind Kind, message string, path string) *Error {
	return &Error{kind: kind, message: message, path: path}
}

// Wrap builds an Error of the given kind, chaining cause so that
// errors.Unwrap reaches the underlying failure (e.g. the raw *net.OpError
// from a dial, or the sftp package's status error).
func Wrap(kind Kind, message string, path string, cause error) *Error {
	return &Error{kind: kind, message: message, path: path, cause: cause}
}

// Kind returns the error's category.
func (e *Error) Kind() Kind {
	return e.kind
}

// AffectedPath returns the filesystem or remote path this error concerns,
// or the empty string when not applicable.
func (e *Error) AffectedPath() string {
	return e.path
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.path != "" {
		return fmt.Sprintf("%s: %s (%s)", e.kind, e.message, e.path)
	}

	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is the sentinel for this error's Kind, so
// callers can write errors.Is(err, brokererr.ErrTimeout) regardless of
// whether err is a *brokererr.Error or one of its wrapped causes.
func (e *Error) Is(target error) bool {
	sentinel, ok := sentinelByKind[e.kind]
	if !ok {
		return false
	}

	return sentinel == target
}

// Suggestions returns remediation suggestions for this error's Kind, or
// nil when the kind has no actionable remediation.
func (e *Error) Suggestions() []string {
	return suggestionsFor(e.kind)
}
