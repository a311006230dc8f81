// Package broker implements the Event/IPC Surface (C9): the single point
// where the core reaches out to whatever external UI embeds it. A typed
// request/response command channel plus a broadcast event channel are the
// only things a consumer ever touches; everything else in this module is
// reachable only through them.
package broker

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/sshbroker/engine/internal/config"
	"github.com/sshbroker/engine/pkg/cmdexec"
	"github.com/sshbroker/engine/pkg/compress"
	"github.com/sshbroker/engine/pkg/sftpcache"
	"github.com/sshbroker/engine/pkg/shellsession"
	"github.com/sshbroker/engine/pkg/sshconn"
	"github.com/sshbroker/engine/pkg/sshpool"
	"github.com/sshbroker/engine/pkg/transfer"
)

const eventBusBuffer = 256

// Engine wires every core component behind the command/event surface.
// Constructing one is the entire integration point a host application
// needs: everything else (connection factory, pool manager, shell session
// manager, command executor, SFTP cache, transfer engine) is an
// implementation detail reachable only through Dispatch and Subscribe.
type Engine struct {
	factory  *sshconn.Factory
	pools    *sshpool.Manager
	shells   *shellsession.Manager
	executor *cmdexec.Executor
	sftp     *sftpcache.Cache
	avail    *compress.Availability
	transfer *transfer.Engine
	events   *EventBus
	logger   zerolog.Logger

	sessions map[string]*sshconn.Session
}

// NewEngine constructs a fully wired Engine from cfg. persister may be nil
// (shell cwd tracking stays in-memory only).
func NewEngine(cfg *config.Config, logger zerolog.Logger, persister shellsession.CwdPersister) *Engine {
	factory := sshconn.NewFactory(cfg.Connection, logger)
	pools := sshpool.NewManager(factory, cfg, logger)
	shells := shellsession.NewManager(pools, logger, persister)
	executor := cmdexec.NewExecutor(pools, cfg.Command, logger)
	sftp := sftpcache.NewCache(pools, executor, cfg.SFTP, logger)
	avail := compress.NewAvailability(executor)
	events := NewEventBus(eventBusBuffer)
	xfer := transfer.NewEngine(sftp, executor, avail, cfg.Transfer, logger, events)

	return &Engine{
		factory:  factory,
		pools:    pools,
		shells:   shells,
		executor: executor,
		sftp:     sftp,
		avail:    avail,
		transfer: xfer,
		events:   events,
		logger:   logger,
		sessions: make(map[string]*sshconn.Session),
	}
}

// Subscribe returns the broadcast event channel. There is one logical
// consumer; adding or removing downstream listeners never touches core
// logic, per the documented isolation guarantee.
func (e *Engine) Subscribe() <-chan Event {
	return e.events.Subscribe()
}

func (e *Engine) shellReaderLoop(ctx context.Context, shell *shellsession.Shell) {
	for {
		select {
		case data, ok := <-shell.Data:
			if !ok {
				e.events.PublishShellClosed(shell.ID)

				return
			}

			e.events.PublishShellData(shell.ID, data)
		case <-shell.Close:
			e.events.PublishShellClosed(shell.ID)

			return
		case <-ctx.Done():
			return
		}
	}
}
