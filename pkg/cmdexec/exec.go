// Package cmdexec implements the Command Executor: one-shot command
// execution over a pooled connection with buffered, size-capped output.
package cmdexec

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/sshbroker/engine/internal/config"
	"github.com/sshbroker/engine/pkg/brokererr"
	"github.com/sshbroker/engine/pkg/sshpool"
)

// Result is the outcome of a one-shot remote command execution.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Executor runs one-shot commands over the shared pool, falling back to
// the dedicated connection if the shared pool cannot produce one.
type Executor struct {
	pools  *sshpool.Manager
	cfg    config.CommandConfig
	logger zerolog.Logger
}

// NewExecutor constructs an Executor.
func NewExecutor(pools *sshpool.Manager, cfg config.CommandConfig, logger zerolog.Logger) *Executor {
	return &Executor{pools: pools, cfg: cfg, logger: logger}
}

// Exec runs command on sessionID and returns its captured stdout, stderr
// and verbatim exit code. Output is capped at cfg.MaxOutputSize per stream.
// Command output may include interior newlines, which are preserved
// end-to-end.
func (e *Executor) Exec(ctx context.Context, sessionID, command string) (*Result, error) {
	execCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	handle, err := e.pools.GetConnection(execCtx, sessionID, sshpool.ConnectionCommand)
	if err != nil {
		e.logger.Warn().Err(err).Str("session", sessionID).Msg("shared pool exhausted, falling back to dedicated connection")

		handle, err = e.pools.GetConnection(execCtx, sessionID, sshpool.ConnectionTerminal)
		if err != nil {
			return nil, err
		}
	}
	defer handle.Release()

	sshSession, err := handle.Conn.Client.NewSession()
	if err != nil {
		return nil, brokererr.Wrap(brokererr.KindInternal, "failed to open command session", sessionID, err)
	}
	defer sshSession.Close()

	var stdoutBuf, stderrBuf cappedBuffer

	stdoutBuf.limit = e.cfg.MaxOutputSize
	stderrBuf.limit = e.cfg.MaxOutputSize

	sshSession.Stdout = &stdoutBuf
	sshSession.Stderr = &stderrBuf

	done := make(chan error, 1)

	go func() { done <- sshSession.Run(command) }()

	select {
	case <-execCtx.Done():
		sshSession.Close()

		return nil, brokererr.New(brokererr.KindTimeout, "command timed out", command)
	case runErr := <-done:
		return buildResult(stdoutBuf.buf.String(), stderrBuf.buf.String(), runErr)
	}
}

func buildResult(stdout, stderr string, runErr error) (*Result, error) {
	if runErr == nil {
		return &Result{Stdout: stdout, Stderr: stderr, ExitCode: 0}, nil
	}

	var exitErr *exitStatusError
	if asExitStatusError(runErr, &exitErr) {
		return &Result{Stdout: stdout, Stderr: stderr, ExitCode: exitErr.ExitStatus}, nil
	}

	return nil, brokererr.Wrap(brokererr.KindServerCommandFailed, "remote command failed", "", runErr)
}

// cappedBuffer truncates writes once limit bytes have been accumulated,
// instead of growing without bound on a runaway or malicious command.
type cappedBuffer struct {
	buf   bytes.Buffer
	limit int64
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	remaining := c.limit - int64(c.buf.Len())
	if remaining <= 0 {
		return len(p), nil
	}

	if int64(len(p)) > remaining {
		c.buf.Write(p[:remaining])

		return len(p), nil
	}

	return c.buf.Write(p) //nolint:wrapcheck // bytes.Buffer.Write never fails
}

var _ io.Writer = (*cappedBuffer)(nil)
