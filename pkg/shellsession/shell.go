// Package shellsession implements the Shell Session Manager: PTY-backed
// interactive shells multiplexed over each session's dedicated connection.
package shellsession

import (
	"bytes"
	"io"
	"regexp"
	"sync"

	"golang.org/x/crypto/ssh"

	"github.com/sshbroker/engine/pkg/sshpool"
)

// State is a shell's lifecycle state.
type State string

// Exported states.
const (
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateClosing      State = "closing"
	StateClosed       State = "closed"
)

// cdPattern detects a cd command on the input side so the manager can
// inject a synchronous pwd and keep the shell's tracked cwd current.
var cdPattern = regexp.MustCompile(`^cd\s+\S+`) //nolint:gochecknoglobals // compiled once, read-only

// Shell is a PTY-backed interactive stream bound to a session's dedicated
// connection. Its byte loop follows a reader-goroutine-to-channel adapter:
// one goroutine reads from the SSH stdout pipe and forwards chunks to Data,
// it never re-emits events synchronously from arbitrary callers.
type Shell struct {
	ID        string
	SessionID string

	sshSession *ssh.Session
	stdin      io.WriteCloser
	handle     *sshpool.Handle

	Data  chan []byte
	Close chan struct{}

	mu       sync.RWMutex
	state    State
	rows     int
	cols     int
	cwd      string
	probing  bool
	probeBuf bytes.Buffer
}

// State returns the shell's current lifecycle state.
func (s *Shell) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

func (s *Shell) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = state
}

// Cwd returns the shell's last-known current working directory.
func (s *Shell) Cwd() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cwd
}

func (s *Shell) setCwd(cwd string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cwd = cwd
}

// Dimensions returns the shell's current terminal size.
func (s *Shell) Dimensions() (rows, cols int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.rows, s.cols
}

func (s *Shell) setDimensions(rows, cols int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows, s.cols = rows, cols
}

// detectCd reports whether a chunk of input bytes contains a cd invocation
// that should trigger a pwd probe.
func detectCd(input []byte) bool {
	return cdPattern.Match(input)
}

// parseCwdReply extracts the new working directory from the reply to an
// injected `pwd`: the first line that begins with '/'.
func parseCwdReply(output string) (string, bool) {
	start := 0

	for i := 0; i < len(output); i++ {
		if output[i] == '\n' {
			line := output[start:i]
			if len(line) > 0 && line[0] == '/' {
				return line, true
			}

			start = i + 1
		}
	}

	if len(output) > start {
		line := output[start:]
		if len(line) > 0 && line[0] == '/' {
			return line, true
		}
	}

	return "", false
}
