package shellsession

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"github.com/sshbroker/engine/pkg/brokererr"
	"github.com/sshbroker/engine/pkg/sshpool"
)

// CwdPersister is the external session-storage collaborator that the Shell
// Session Manager notifies whenever a shell's tracked working directory
// changes. The broker wires this to whatever the host application uses to
// remember per-shell state across reconnects.
type CwdPersister interface {
	PersistCwd(shellID, cwd string)
}

type noopPersister struct{}

func (noopPersister) PersistCwd(string, string) {}

const readChunkSize = 4096

// Manager creates, writes to, resizes and closes PTY-backed shells, always
// on a session's dedicated connection so bulk transfer paths never contend
// with interactive latency.
type Manager struct {
	pools     *sshpool.Manager
	logger    zerolog.Logger
	persister CwdPersister

	mu     sync.Mutex
	shells map[string]*Shell
}

// NewManager constructs a Manager. persister may be nil, in which case cwd
// changes are tracked in memory only.
func NewManager(pools *sshpool.Manager, logger zerolog.Logger, persister CwdPersister) *Manager {
	if persister == nil {
		persister = noopPersister{}
	}

	return &Manager{
		pools:     pools,
		logger:    logger,
		persister: persister,
		shells:    make(map[string]*Shell),
	}
}

// OpenShell allocates a PTY with term xterm-256color sized rows x cols. If
// a shell with this id already exists it is torn down first — listeners
// removed, stream ended, close awaited — before the replacement is created.
func (m *Manager) OpenShell(ctx context.Context, sessionID, shellID string, rows, cols int) (*Shell, error) {
	m.mu.Lock()
	if existing, ok := m.shells[shellID]; ok {
		delete(m.shells, shellID)
		m.mu.Unlock()
		m.teardown(existing)
		m.mu.Lock()
	}
	m.mu.Unlock()

	handle, err := m.pools.GetConnection(ctx, sessionID, sshpool.ConnectionTerminal)
	if err != nil {
		return nil, err
	}

	sshSession, err := handle.Conn.Client.NewSession()
	if err != nil {
		handle.Release()

		return nil, brokererr.Wrap(brokererr.KindInternal, "failed to open ssh session for shell", sessionID, err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}

	if err := sshSession.RequestPty("xterm-256color", rows, cols, modes); err != nil {
		sshSession.Close()
		handle.Release()

		return nil, brokererr.Wrap(brokererr.KindInternal, "failed to allocate pty", sessionID, err)
	}

	stdin, err := sshSession.StdinPipe()
	if err != nil {
		sshSession.Close()
		handle.Release()

		return nil, brokererr.Wrap(brokererr.KindInternal, "failed to open shell stdin", sessionID, err)
	}

	stdout, err := sshSession.StdoutPipe()
	if err != nil {
		sshSession.Close()
		handle.Release()

		return nil, brokererr.Wrap(brokererr.KindInternal, "failed to open shell stdout", sessionID, err)
	}

	if err := sshSession.Shell(); err != nil {
		sshSession.Close()
		handle.Release()

		return nil, brokererr.Wrap(brokererr.KindInternal, "failed to start shell", sessionID, err)
	}

	shell := &Shell{
		ID:        shellID,
		SessionID: sessionID,
		sshSession: sshSession,
		stdin:      stdin,
		handle:     handle,
		Data:       make(chan []byte, 64),
		Close:      make(chan struct{}),
		state:      StateReady,
		rows:       rows,
		cols:       cols,
	}

	m.mu.Lock()
	m.shells[shellID] = shell
	m.mu.Unlock()

	go m.readLoop(shell, stdout)

	return shell, nil
}

// readLoop is the reader-goroutine-to-channel adapter: one goroutine reads
// the PTY's stdout and forwards chunks to Data. Any stream error
// transitions the shell directly to Closed and publishes a close event by
// closing shell.Close.
func (m *Manager) readLoop(shell *Shell, stdout io.Reader) {
	buf := make([]byte, readChunkSize)

	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			m.deliver(shell, chunk)
		}

		if err != nil {
			m.mu.Lock()
			delete(m.shells, shell.ID)
			m.mu.Unlock()

			shell.setState(StateClosed)
			close(shell.Close)
			shell.handle.Release()

			return
		}
	}
}

func (m *Manager) deliver(shell *Shell, chunk []byte) {
	shell.mu.Lock()
	probing := shell.probing
	if probing {
		shell.probeBuf.Write(chunk)
	}
	shell.mu.Unlock()

	shell.Data <- chunk

	if !probing {
		return
	}

	shell.mu.Lock()
	cwd, ok := parseCwdReply(shell.probeBuf.String())
	if ok {
		shell.probing = false
		shell.probeBuf.Reset()
		shell.cwd = cwd
	}
	shell.mu.Unlock()

	if ok {
		m.persister.PersistCwd(shell.ID, cwd)
	}
}

// Write sends bytes to the shell's stdin. When the bytes match a cd
// invocation, a synchronous pwd is injected afterward so the manager can
// learn the shell's new working directory from the next reply line that
// begins with '/'.
func (m *Manager) Write(shellID string, data []byte) error {
	shell, err := m.lookup(shellID)
	if err != nil {
		return err
	}

	isCd := detectCd(data)
	if isCd {
		shell.mu.Lock()
		shell.probing = true
		shell.probeBuf.Reset()
		shell.mu.Unlock()
	}

	if _, err := shell.stdin.Write(data); err != nil {
		return brokererr.Wrap(brokererr.KindNotConnected, "failed to write to shell", shellID, err)
	}

	if isCd {
		if _, err := shell.stdin.Write([]byte("pwd\n")); err != nil {
			return brokererr.Wrap(brokererr.KindNotConnected, "failed to inject pwd probe", shellID, err)
		}
	}

	return nil
}

// Resize changes the shell's PTY window size.
func (m *Manager) Resize(shellID string, rows, cols int) error {
	shell, err := m.lookup(shellID)
	if err != nil {
		return err
	}

	if err := shell.sshSession.WindowChange(rows, cols); err != nil {
		return brokererr.Wrap(brokererr.KindInternal, "failed to resize pty", shellID, err)
	}

	shell.setDimensions(rows, cols)

	return nil
}

// CloseShell tears down a shell: the consumer requested closure, so this
// is the graceful counterpart to readLoop's error-driven teardown.
func (m *Manager) CloseShell(shellID string) error {
	m.mu.Lock()
	shell, ok := m.shells[shellID]
	if ok {
		delete(m.shells, shellID)
	}
	m.mu.Unlock()

	if !ok {
		return brokererr.New(brokererr.KindNotConnected, "unknown shell", shellID)
	}

	m.teardown(shell)

	return nil
}

func (m *Manager) teardown(shell *Shell) {
	shell.setState(StateClosing)
	shell.sshSession.Close()
	<-shell.Close
}

func (m *Manager) lookup(shellID string) (*Shell, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	shell, ok := m.shells[shellID]
	if !ok {
		return nil, brokererr.New(brokererr.KindNotConnected, "unknown shell", shellID)
	}

	return shell, nil
}
