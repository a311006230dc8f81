package sshconn

import (
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// Connection is a live SSH channel to a Session. It is owned exclusively by
// whichever pool (or the dedicated-connection registry) created it.
type Connection struct {
	ID        string
	SessionID string
	Client    *ssh.Client

	createdAt time.Time

	mu         sync.RWMutex
	lastUsedAt time.Time
	ready      bool
}

// NewConnection wraps an already-established SSH client as a Connection
// owned by id/sessionID. Used by the Factory after a successful dial, and
// by tests that wrap a fake or in-memory SSH client.
func NewConnection(id, sessionID string, client *ssh.Client) *Connection {
	now := time.Now()

	return &Connection{
		ID:         id,
		SessionID:  sessionID,
		Client:     client,
		createdAt:  now,
		lastUsedAt: now,
		ready:      true,
	}
}

// LastUsedAt returns the last time this connection was handed to a caller.
func (c *Connection) LastUsedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.lastUsedAt
}

// Touch records that the connection has just been used, resetting the
// idle clock the pool's probe-freshness check measures against.
func (c *Connection) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastUsedAt = time.Now()
}

// CreatedAt returns the connection's creation timestamp.
func (c *Connection) CreatedAt() time.Time {
	return c.createdAt
}

// Ready reports whether the connection is currently believed usable.
func (c *Connection) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.ready
}

// MarkDead flags the connection as no longer usable, e.g. after a failed
// health-check probe.
func (c *Connection) MarkDead() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ready = false
}

// Close tears down the underlying SSH client.
func (c *Connection) Close() error {
	c.mu.Lock()
	c.ready = false
	c.mu.Unlock()

	if c.Client == nil {
		return nil
	}

	return c.Client.Close() //nolint:wrapcheck // caller wraps with connection context
}

// Ping runs a trivial round-trip (an exec session running `true`) to verify the
// connection is still alive. Used by the pool's probe-freshness check and
// by the health-check sweep.
func (c *Connection) Ping() error {
	session, err := c.Client.NewSession()
	if err != nil {
		c.MarkDead()

		return err //nolint:wrapcheck // caller classifies into brokererr kinds
	}
	defer session.Close()

	if err := session.Run("true"); err != nil {
		c.MarkDead()

		return err //nolint:wrapcheck // caller classifies into brokererr kinds
	}

	return nil
}
