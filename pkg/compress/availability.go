package compress

import (
	"context"
	"fmt"
	"sync"

	"github.com/sshbroker/engine/pkg/cmdexec"
)

// toolsByMethod lists the remote binaries RemoteCompressCommand and
// RemoteDecompressCommand shell out to for each method.
var toolsByMethod = map[Method][]string{ //nolint:gochecknoglobals // static lookup table, read-only
	MethodGzip:  {"gzip", "gunzip"},
	MethodBzip2: {"tar", "bzip2", "bunzip2"},
	MethodXZ:    {"tar", "xz", "unxz"},
}

// Runner is the subset of the Command Executor's surface availability
// detection needs; satisfied by *cmdexec.Executor.
type Runner interface {
	Exec(ctx context.Context, sessionID, command string) (*cmdexec.Result, error)
}

// Availability detects, once per session, whether a compression method's
// remote tools are present, and caches the result.
type Availability struct {
	runner Runner

	mu    sync.Mutex
	cache map[string]map[Method]bool
}

// NewAvailability constructs an Availability checker backed by runner.
func NewAvailability(runner Runner) *Availability {
	return &Availability{runner: runner, cache: make(map[string]map[Method]bool)}
}

// IsAvailable reports whether method's remote tools are present on
// sessionID, running `which <tool>` for every tool the method needs the
// first time it's asked and caching the result thereafter.
func (a *Availability) IsAvailable(ctx context.Context, sessionID string, method Method) (bool, error) {
	if method == MethodNone {
		return true, nil
	}

	a.mu.Lock()
	perSession, ok := a.cache[sessionID]
	if !ok {
		perSession = make(map[Method]bool)
		a.cache[sessionID] = perSession
	}

	cached, ok := perSession[method]
	a.mu.Unlock()

	if ok {
		return cached, nil
	}

	tools, known := toolsByMethod[method]
	if !known {
		return false, fmt.Errorf("unknown compression method %q", method) //nolint:err113 // programmer error, not a remote failure
	}

	command := "which " + tools[0]
	for _, tool := range tools[1:] {
		command += " && which " + tool
	}

	result, err := a.runner.Exec(ctx, sessionID, command)
	available := err == nil && result.ExitCode == 0

	a.mu.Lock()
	a.cache[sessionID][method] = available
	a.mu.Unlock()

	return available, nil
}
