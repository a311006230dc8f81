package cmdexec

import (
	"errors"

	"golang.org/x/crypto/ssh"
)

// exitStatusError mirrors the subset of *ssh.ExitError this package needs,
// so buildResult doesn't depend on the ssh package's concrete error type
// beyond this one translation point.
type exitStatusError struct {
	ExitStatus int
}

func asExitStatusError(err error, out **exitStatusError) bool {
	var sshExitErr *ssh.ExitError
	if errors.As(err, &sshExitErr) {
		*out = &exitStatusError{ExitStatus: sshExitErr.ExitStatus()}

		return true
	}

	return false
}
