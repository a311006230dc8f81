package sshpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/sshbroker/engine/internal/config"
	"github.com/sshbroker/engine/pkg/brokererr"
	"github.com/sshbroker/engine/pkg/sshconn"
)

// ConnectionRole identifies which of the three connection patterns a
// getConnection call is for.
type ConnectionRole string

// Exported connection roles.
const (
	ConnectionTerminal ConnectionRole = "terminal"
	ConnectionCommand  ConnectionRole = "command"
	ConnectionTransfer ConnectionRole = "transfer"
)

// Priority bands. 0 is highest, matching the specification's acquisition
// ordering.
const (
	PriorityTransfer = 0
	PriorityCommand  = 1
)

// Handle wraps a borrowed Connection together with the release function
// appropriate to the role it was acquired under. For terminal connections
// release is a no-op, since the dedicated connection is never returned to
// a pool.
type Handle struct {
	Conn    *sshconn.Connection
	release func()
}

// Release returns the connection to its owning pool, or does nothing for
// a dedicated terminal connection.
func (h *Handle) Release() {
	if h.release != nil {
		h.release()
	}
}

type sessionPools struct {
	session   *sshconn.Session
	dedicated *pool
	shared    *pool
	transfer  *pool
}

// Manager owns every session's dedicated connection, shared pool and
// transfer pool, and the health-check sweep across all of them.
type Manager struct {
	factory *sshconn.Factory
	cfg     *config.Config
	logger  zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*sessionPools
}

// NewManager constructs a Manager backed by factory for dialing new
// connections.
func NewManager(factory *sshconn.Factory, cfg *config.Config, logger zerolog.Logger) *Manager {
	return &Manager{
		factory:  factory,
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*sessionPools),
	}
}

// Register warms up a new session: the dedicated connection is created
// synchronously, the transfer pool's minimum is pre-created
// asynchronously, and the shared pool warms lazily on first acquire.
func (m *Manager) Register(ctx context.Context, session *sshconn.Session) error {
	dial := func(ctx context.Context) (*sshconn.Connection, error) {
		return m.factory.Dial(ctx, session)
	}

	sp := &sessionPools{
		session:   session,
		dedicated: newPool("dedicated", session, 1, 1, m.cfg.SharedPool.AcquireWait, m.cfg.SharedPool.ProbeFreshness, dial),
		shared: newPool(RoleShared, session, m.cfg.SharedPool.Min, m.cfg.SharedPool.Max,
			m.cfg.SharedPool.AcquireWait, m.cfg.SharedPool.ProbeFreshness, dial),
		transfer: newPool(RoleTransfer, session, m.cfg.TransferPool.Min, m.cfg.TransferPool.Max,
			m.cfg.TransferPool.AcquireWait, m.cfg.TransferPool.ProbeFreshness, dial),
	}

	if err := sp.dedicated.warmTo(ctx, 1); err != nil {
		return fmt.Errorf("failed to warm dedicated connection: %w", err)
	}

	m.mu.Lock()
	m.sessions[session.ID] = sp
	m.mu.Unlock()

	go func() {
		if err := sp.transfer.warmTo(context.Background(), m.cfg.TransferPool.Min); err != nil {
			m.logger.Warn().Err(err).Str("session", session.ID).Msg("failed to pre-warm transfer pool minimum")
		}
	}()

	return nil
}

// GetConnection acquires a connection for the given session and role. For
// ConnectionTerminal it returns (or lazily creates) the dedicated
// connection with a no-op release. For ConnectionCommand/ConnectionTransfer
// it acquires from the corresponding pool at the role's priority band.
func (m *Manager) GetConnection(ctx context.Context, sessionID string, role ConnectionRole) (*Handle, error) {
	sp, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	switch role {
	case ConnectionTerminal:
		if sp.dedicated.size() == 0 {
			if warmErr := sp.dedicated.warmTo(ctx, 1); warmErr != nil {
				return nil, brokererr.Wrap(brokererr.KindUnreachable, "failed to create dedicated connection", sp.session.Host, warmErr)
			}
		}

		conn, acquireErr := sp.dedicated.acquire(ctx, 0)
		if acquireErr != nil {
			return nil, acquireErr
		}

		// The dedicated connection goes straight back to its pool so every
		// terminal caller shares it; the handle's release is a no-op.
		sp.dedicated.release(conn)

		return &Handle{Conn: conn}, nil

	case ConnectionCommand:
		conn, acquireErr := sp.shared.acquire(ctx, PriorityCommand)
		if acquireErr != nil {
			return nil, acquireErr
		}

		return &Handle{Conn: conn, release: func() { sp.shared.release(conn) }}, nil

	case ConnectionTransfer:
		conn, acquireErr := sp.transfer.acquire(ctx, PriorityTransfer)
		if acquireErr != nil {
			return nil, acquireErr
		}

		return &Handle{Conn: conn, release: func() { sp.transfer.release(conn) }}, nil

	default:
		return nil, fmt.Errorf("unknown connection role %q", role) //nolint:err113 // programmer error, not a remote failure
	}
}

// IsConnected reports whether sessionID is currently registered.
func (m *Manager) IsConnected(sessionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.sessions[sessionID]

	return ok
}

// DisconnectSession drains both pools in parallel, ends the dedicated
// connection, and forgets the session.
func (m *Manager) DisconnectSession(sessionID string) error {
	sp, err := m.lookup(sessionID)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup

	errs := make([]error, 2)

	wg.Add(2)

	go func() { defer wg.Done(); errs[0] = sp.shared.drain() }()
	go func() { defer wg.Done(); errs[1] = sp.transfer.drain() }()

	wg.Wait()

	dedicatedErr := sp.dedicated.drain()

	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	for _, e := range errs {
		if e != nil {
			return e
		}
	}

	return dedicatedErr
}

// HealthCheck verifies the aliveness of every idle connection across every
// session's pools, evicting dead entries so the next acquire redials.
func (m *Manager) HealthCheck() {
	m.mu.RLock()
	all := make([]*sessionPools, 0, len(m.sessions))
	for _, sp := range m.sessions {
		all = append(all, sp)
	}
	m.mu.RUnlock()

	for _, sp := range all {
		m.sweepPool(sp.dedicated)
		m.sweepPool(sp.shared)
		m.sweepPool(sp.transfer)
	}
}

func (m *Manager) sweepPool(p *pool) {
	idle := p.size()

	for i := 0; i < idle; i++ {
		select {
		case conn, ok := <-p.slots:
			if !ok {
				return
			}

			if err := conn.Ping(); err != nil {
				m.logger.Warn().Str("connection", conn.ID).Msg("health check evicting dead connection")
				_ = conn.Close()
				atomic.AddInt32(&p.actualSize, -1)

				continue
			}

			select {
			case p.slots <- conn:
			default:
				_ = conn.Close()
				atomic.AddInt32(&p.actualSize, -1)
			}
		default:
			return
		}
	}
}

func (m *Manager) lookup(sessionID string) (*sessionPools, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sp, ok := m.sessions[sessionID]
	if !ok {
		return nil, brokererr.New(brokererr.KindNotConnected, "session not registered", sessionID)
	}

	return sp, nil
}
