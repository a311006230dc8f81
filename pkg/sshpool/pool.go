// Package sshpool implements the Pool Manager: per-session dedicated,
// shared and transfer connection pools with priority-banded acquisition
// and health checking.
package sshpool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sshbroker/engine/pkg/brokererr"
	"github.com/sshbroker/engine/pkg/sshconn"
)

// Role distinguishes the three acquisition patterns a pooled connection
// serves.
type Role string

// Exported roles.
const (
	RoleShared   Role = "shared"
	RoleTransfer Role = "transfer"
)

// pool is a channel-based semaphore of live connections for one
// (session, role) pair, generalizing the teacher's SFTP client pool from
// "SFTP client" to "pooled SSH connection".
type pool struct {
	role    Role
	session *sshconn.Session
	dial    func(ctx context.Context) (*sshconn.Connection, error)

	slots      chan *sshconn.Connection
	minSize    int
	maxSize    int
	targetSize int32
	actualSize int32

	acquireWait    time.Duration
	probeFreshness time.Duration

	mu      sync.Mutex
	closed  bool
	waiters map[int][]chan *sshconn.Connection
}

func newPool(role Role, session *sshconn.Session, minSize, maxSize int, acquireWait, probeFreshness time.Duration, dial func(ctx context.Context) (*sshconn.Connection, error)) *pool {
	return &pool{
		role:           role,
		session:        session,
		dial:           dial,
		slots:          make(chan *sshconn.Connection, maxSize),
		minSize:        minSize,
		maxSize:        maxSize,
		targetSize:     int32(minSize), //nolint:gosec // minSize is small and user-configured
		acquireWait:    acquireWait,
		probeFreshness: probeFreshness,
		waiters:        make(map[int][]chan *sshconn.Connection),
	}
}

// warmTo synchronously dials connections until the pool reaches n,
// clamped to [minSize, maxSize]. Used for the dedicated connection (n=1)
// and for pre-warming the transfer pool minimum.
func (p *pool) warmTo(ctx context.Context, n int) error {
	clamped := min(max(n, p.minSize), p.maxSize)

	for int(atomic.LoadInt32(&p.actualSize)) < clamped {
		conn, err := p.dial(ctx)
		if err != nil {
			return err
		}

		atomic.AddInt32(&p.actualSize, 1)
		p.slots <- conn
	}

	return nil
}

// acquire blocks until a connection is available or the pool's
// acquire-timeout elapses, validating freshness before handing it back.
// priority 0 is served before priority 1, etc; ties within a band are
// broken LIFO (the most recently queued waiter wins) to maximize cache
// locality of recently active connections.
func (p *pool) acquire(ctx context.Context, priority int) (*sshconn.Connection, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	if closed {
		return nil, brokererr.New(brokererr.KindNotConnected, "pool closed", p.session.Host)
	}

	select {
	case conn, ok := <-p.slots:
		if !ok {
			return nil, brokererr.New(brokererr.KindNotConnected, "pool closed", p.session.Host)
		}

		return p.validate(ctx, conn)
	default:
	}

	if int(atomic.LoadInt32(&p.actualSize)) < int(atomic.LoadInt32(&p.targetSize)) {
		conn, err := p.dial(ctx)
		if err == nil {
			atomic.AddInt32(&p.actualSize, 1)

			return conn, nil
		}
	}

	acquireCtx, cancel := context.WithTimeout(ctx, p.acquireWait)
	defer cancel()

	wait := make(chan *sshconn.Connection, 1)

	p.mu.Lock()
	p.waiters[priority] = append(p.waiters[priority], wait)
	p.mu.Unlock()

	select {
	case conn, ok := <-wait:
		if !ok {
			return nil, brokererr.New(brokererr.KindNotConnected, "pool closed", p.session.Host)
		}

		return p.validate(ctx, conn)
	case <-acquireCtx.Done():
		p.removeWaiter(priority, wait)

		return nil, brokererr.New(brokererr.KindPoolExhausted, "acquire-timeout elapsed", p.session.Host)
	}
}

func (p *pool) removeWaiter(priority int, target chan *sshconn.Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()

	band := p.waiters[priority]
	for i, ch := range band {
		if ch == target {
			p.waiters[priority] = append(band[:i], band[i+1:]...)

			return
		}
	}
}

// handoff delivers conn directly to the highest-priority waiting waiter,
// if any, bypassing the slots channel. Returns true if a waiter consumed
// the connection.
func (p *pool) handoff(conn *sshconn.Connection) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.waiters) == 0 {
		return false
	}

	priorities := make([]int, 0, len(p.waiters))
	for pr, band := range p.waiters {
		if len(band) > 0 {
			priorities = append(priorities, pr)
		}
	}

	if len(priorities) == 0 {
		return false
	}

	best := priorities[0]
	for _, pr := range priorities[1:] {
		if pr < best {
			best = pr
		}
	}

	band := p.waiters[best]
	last := band[len(band)-1]
	p.waiters[best] = band[:len(band)-1]

	last <- conn

	return true
}

// validate runs the spec's 30s probe-freshness check: connections used
// recently skip the round-trip probe entirely.
func (p *pool) validate(ctx context.Context, conn *sshconn.Connection) (*sshconn.Connection, error) {
	if time.Since(conn.LastUsedAt()) < p.probeFreshness {
		conn.Touch()

		return conn, nil
	}

	if err := conn.Ping(); err != nil {
		atomic.AddInt32(&p.actualSize, -1)

		replacement, dialErr := p.dial(ctx)
		if dialErr != nil {
			return nil, brokererr.Wrap(brokererr.KindUnreachable, "stale connection evicted, redial failed", p.session.Host, dialErr)
		}

		atomic.AddInt32(&p.actualSize, 1)

		return replacement, nil
	}

	conn.Touch()

	return conn, nil
}

// release returns conn to the pool, implementing lazy scale-down: if
// actualSize has drifted above targetSize, the connection is closed
// instead of being returned.
func (p *pool) release(conn *sshconn.Connection) {
	if conn == nil {
		return
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	if closed || !conn.Ready() {
		atomic.AddInt32(&p.actualSize, -1)
		_ = conn.Close()

		return
	}

	if p.handoff(conn) {
		return
	}

	for {
		target := atomic.LoadInt32(&p.targetSize)
		actual := atomic.LoadInt32(&p.actualSize)

		if actual <= target {
			break
		}

		if atomic.CompareAndSwapInt32(&p.actualSize, actual, actual-1) {
			_ = conn.Close()

			return
		}
	}

	select {
	case p.slots <- conn:
	default:
		atomic.AddInt32(&p.actualSize, -1)
		_ = conn.Close()
	}
}

// resize changes the pool's target size, clamped to [minSize, maxSize].
func (p *pool) resize(targetSize int) {
	clamped := min(max(targetSize, p.minSize), p.maxSize)
	atomic.StoreInt32(&p.targetSize, int32(clamped)) //nolint:gosec // clamped to user-configured bounds
}

func (p *pool) size() int {
	return int(atomic.LoadInt32(&p.actualSize))
}

func (p *pool) targetSizeValue() int {
	return int(atomic.LoadInt32(&p.targetSize))
}

// drain closes the pool and every connection currently idle in it. It does
// not wait for borrowed connections to be released; those are closed when
// release observes the closed flag.
func (p *pool) drain() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()

		return nil
	}

	p.closed = true
	waiters := p.waiters
	p.waiters = make(map[int][]chan *sshconn.Connection)
	p.mu.Unlock()

	for _, band := range waiters {
		for _, ch := range band {
			close(ch)
		}
	}

	close(p.slots)

	var firstErr error

	for conn := range p.slots {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	atomic.StoreInt32(&p.actualSize, 0)
	atomic.StoreInt32(&p.targetSize, 0)

	return firstErr
}
