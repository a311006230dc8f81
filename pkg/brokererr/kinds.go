// Package brokererr provides typed, actionable errors shared across every
// broker component: a closed Kind enum, a sentinel per kind for errors.Is
// matching, and remediation suggestions for kinds where that makes sense.
package brokererr

import "errors"

// Kind categorizes a broker error for programmatic handling and for
// picking a set of remediation suggestions.
type Kind string

// Exported kinds.
const (
	KindAuthFailed          Kind = "auth_failed"
	KindUnreachable         Kind = "unreachable"
	KindTimeout             Kind = "timeout"
	KindPoolExhausted       Kind = "pool_exhausted"
	KindNotConnected        Kind = "not_connected"
	KindNoSuchPath          Kind = "no_such_path"
	KindPermissionDenied    Kind = "permission_denied"
	KindServerCommandFailed Kind = "server_command_failed"
	KindSizeMismatch        Kind = "size_mismatch"
	KindCancelled           Kind = "cancelled"
	KindInternal             Kind = "internal"
)

// Sentinels usable with errors.Is against any Error of the matching Kind.
var (
	ErrAuthFailed          = errors.New("authentication failed")
	ErrUnreachable         = errors.New("host unreachable")
	ErrTimeout             = errors.New("operation timed out")
	ErrPoolExhausted       = errors.New("connection pool exhausted")
	ErrNotConnected        = errors.New("session not connected")
	ErrNoSuchPath          = errors.New("no such file or directory")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrServerCommandFailed = errors.New("remote command failed")
	ErrSizeMismatch        = errors.New("transferred size mismatch")
	ErrCancelled           = errors.New("operation cancelled")
	ErrInternal            = errors.New("internal broker error")
)

var sentinelByKind = map[Kind]error{
	KindAuthFailed:          ErrAuthFailed,
	KindUnreachable:         ErrUnreachable,
	KindTimeout:             ErrTimeout,
	KindPoolExhausted:       ErrPoolExhausted,
	KindNotConnected:        ErrNotConnected,
	KindNoSuchPath:          ErrNoSuchPath,
	KindPermissionDenied:    ErrPermissionDenied,
	KindServerCommandFailed: ErrServerCommandFailed,
	KindSizeMismatch:        ErrSizeMismatch,
	KindCancelled:           ErrCancelled,
	KindInternal:            ErrInternal,
}
