package sshconn

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/crypto/ssh"

	"github.com/sshbroker/engine/internal/config"
	"github.com/sshbroker/engine/pkg/brokererr"
)

// Factory dials, authenticates and keeps alive SSH connections on behalf of
// the Pool Manager. One Factory is shared across every session; it keeps a
// per-session circuit breaker so a dead host stops being hammered.
type Factory struct {
	cfg    config.ConnectionConfig
	logger zerolog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewFactory constructs a Factory from engine configuration.
func NewFactory(cfg config.ConnectionConfig, logger zerolog.Logger) *Factory {
	return &Factory{
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Dial opens a TCP connection to session, performs the SSH handshake and
// authentication, and returns a ready Connection with keepalive running.
// Repeated failures for the same session trip that session's circuit
// breaker, short-circuiting further attempts until the cooldown elapses.
func (f *Factory) Dial(ctx context.Context, session *Session) (*Connection, error) {
	breaker := f.breakerFor(session.ID)

	result, err := breaker.Execute(func() (interface{}, error) {
		return f.dial(ctx, session)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, brokererr.Wrap(brokererr.KindUnreachable, "circuit breaker open for session, host recently failed repeatedly", session.Host, err)
		}

		return nil, err
	}

	return result.(*Connection), nil //nolint:forcetypeassert // breaker.Execute always returns what dial produced
}

func (f *Factory) breakerFor(sessionID string) *gobreaker.CircuitBreaker {
	f.mu.Lock()
	defer f.mu.Unlock()

	if b, ok := f.breakers[sessionID]; ok {
		return b
	}

	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        sessionID,
		MaxRequests: 1,
		Timeout:     f.cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= f.cfg.BreakerMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			f.logger.Warn().Str("session", name).Str("from", from.String()).Str("to", to.String()).Msg("connection circuit breaker state change")
		},
	})

	f.breakers[sessionID] = b

	return b
}

func (f *Factory) dial(ctx context.Context, session *Session) (*Connection, error) {
	dialCtx, cancel := context.WithTimeout(ctx, f.cfg.DialTimeout)
	defer cancel()

	methods, err := authMethods(session.Credential)
	if err != nil {
		return nil, brokererr.Wrap(brokererr.KindAuthFailed, "no usable authentication method", session.Host, err)
	}

	sshConfig := &ssh.ClientConfig{
		User:            session.Username,
		Auth:            methods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // host key verification is delegated to the external session-storage collaborator
		Timeout:         f.cfg.DialTimeout,
	}

	var dialer net.Dialer

	netConn, err := dialer.DialContext(dialCtx, "tcp", session.Addr())
	if err != nil {
		if dialCtx.Err() != nil {
			return nil, brokererr.Wrap(brokererr.KindTimeout, "dial timed out", session.Host, err)
		}

		return nil, brokererr.Wrap(brokererr.KindUnreachable, "tcp dial failed", session.Host, err)
	}

	if deadline, ok := dialCtx.Deadline(); ok {
		_ = netConn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, session.Addr(), sshConfig)
	if err != nil {
		netConn.Close()

		if dialCtx.Err() != nil {
			return nil, brokererr.Wrap(brokererr.KindTimeout, "ssh handshake timed out", session.Host, err)
		}

		return nil, brokererr.Wrap(brokererr.KindAuthFailed, "ssh handshake failed", session.Host, err)
	}

	_ = netConn.SetDeadline(time.Time{})

	client := ssh.NewClient(sshConn, chans, reqs)
	conn := NewConnection(uuid.NewString(), session.ID, client)

	f.startKeepalive(conn)

	return conn, nil
}

// startKeepalive runs a background ticker that sends a keepalive request on
// the connection's transport; after enough consecutive misses it marks the
// connection dead so the owning pool evicts it on next use.
func (f *Factory) startKeepalive(conn *Connection) {
	go func() {
		ticker := time.NewTicker(f.cfg.KeepaliveInterval)
		defer ticker.Stop()

		missed := 0

		for range ticker.C {
			if !conn.Ready() {
				return
			}

			_, _, err := conn.Client.SendRequest("keepalive@sshbroker", true, nil)
			if err != nil {
				missed++
				if missed >= f.cfg.KeepaliveMaxMissed {
					f.logger.Warn().Str("connection", conn.ID).Msg("keepalive missed too many times, marking connection dead")
					conn.MarkDead()

					return
				}

				continue
			}

			missed = 0
		}
	}()
}
