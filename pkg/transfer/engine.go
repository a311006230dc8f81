package transfer

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/sshbroker/engine/internal/config"
	"github.com/sshbroker/engine/pkg/brokererr"
	"github.com/sshbroker/engine/pkg/cmdexec"
	"github.com/sshbroker/engine/pkg/compress"
	"github.com/sshbroker/engine/pkg/sftpcache"
)

// Engine is the C6 Transfer Engine: it owns task lifecycle (start/pause/
// resume/cancel) and strategy selection, driving the chunked download/
// upload machinery and the compressed pipeline on top of the SFTP Client
// Cache and Command Executor.
type Engine struct {
	cache        *sftpcache.Cache
	executor     *cmdexec.Executor
	availability *compress.Availability
	cfg          config.TransferConfig
	logger       zerolog.Logger
	publisher    Publisher
	registry     *Registry
}

// NewEngine constructs an Engine. publisher may be nil, in which case
// events are discarded (useful in tests, and for callers that only read
// task state through the Registry).
func NewEngine(cache *sftpcache.Cache, executor *cmdexec.Executor, availability *compress.Availability, cfg config.TransferConfig, logger zerolog.Logger, publisher Publisher) *Engine {
	if publisher == nil {
		publisher = discardPublisher{}
	}

	return &Engine{
		cache:        cache,
		executor:     executor,
		availability: availability,
		cfg:          cfg,
		logger:       logger,
		publisher:    publisher,
		registry:     NewRegistry(),
	}
}

// Registry exposes the engine's task registry, e.g. for IPC-surface status
// queries.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// selectK implements the documented per-file strategy selection, returning
// the chunk fan-out to use: 1 (basic/serial streaming through the same
// chunked machinery) unless parallel is set and the file clears the
// parallel-pipeline size threshold for its direction.
func (e *Engine) selectK(size int64, parallel bool, direction Direction, maxChunks int) int {
	if maxChunks <= 0 {
		maxChunks = e.cfg.DefaultMaxChunks
	}

	if !parallel {
		return 1
	}

	threshold := e.cfg.ParallelDownloadMinBytes
	if direction == DirectionUpload {
		threshold = e.cfg.ParallelUploadMinBytes
	}

	if size < threshold {
		return 1
	}

	if direction == DirectionDownload {
		return OptimalDownloadChunks(size, maxChunks)
	}

	return maxChunks
}

func compressionMethod(requested string) (compress.Method, bool) {
	method := compress.Method(requested)
	if method == "" || method == compress.MethodNone {
		return compress.MethodNone, false
	}

	return method, true
}

// StartDownload begins downloading file from sessionID, choosing a
// strategy per the documented rules, and runs the transfer on its own
// goroutine; the call itself returns as soon as the task is registered
// (the ack the IPC surface reports back to its caller).
func (e *Engine) StartDownload(ctx context.Context, taskID, sessionID string, file FileSpec, cfg Config) error {
	task := NewTask(taskID, sessionID, DirectionDownload, []FileSpec{file}, cfg)
	e.registry.Register(task)
	task.setCurrentFile(file.SourcePath)

	go e.runDownloadTask(ctx, task, sessionID, file, cfg)

	return nil
}

func (e *Engine) runDownloadTask(ctx context.Context, task *Task, sessionID string, file FileSpec, cfg Config) {
	task.setStatus(StatusRunning)

	handle, err := e.cache.EnsureClient(ctx, sessionID)
	if err != nil {
		e.failTask(task, err)

		return
	}

	connectionID := handle.ConnectionID

	method, compressed := compressionMethod(cfg.Compression)

	if compressed {
		err = e.runCompressedDownload(ctx, task, e.publisher, sessionID, connectionID, file.SourcePath, file.DestPath, method, cfg.Parallel, cfg.MaxChunks, e.cfg)
	} else {
		k := e.selectK(file.Size, cfg.Parallel, DirectionDownload, cfg.MaxChunks)
		tempPath := file.DestPath + ".part"
		err = e.runDownload(ctx, task, e.publisher, e.cache, connectionID, file.SourcePath, tempPath, file.DestPath, file.Size, k, e.cfg)
	}

	e.finishTask(task, err)
}

// StartUpload begins uploading files to sessionID, one at a time in the
// order given, choosing a strategy per file.
func (e *Engine) StartUpload(ctx context.Context, taskID, sessionID string, files []FileSpec, cfg Config) error {
	task := NewTask(taskID, sessionID, DirectionUpload, files, cfg)
	e.registry.Register(task)

	go e.runUploadTask(ctx, task, sessionID, files, cfg)

	return nil
}

func (e *Engine) runUploadTask(ctx context.Context, task *Task, sessionID string, files []FileSpec, cfg Config) {
	task.setStatus(StatusRunning)

	handle, err := e.cache.EnsureClient(ctx, sessionID)
	if err != nil {
		e.failTask(task, err)

		return
	}

	connectionID := handle.ConnectionID
	method, compressed := compressionMethod(cfg.Compression)

	for _, file := range files {
		if task.Cancelled() {
			break
		}

		task.setCurrentFile(file.SourcePath)

		if compressed {
			err = e.runCompressedUpload(ctx, task, e.publisher, sessionID, connectionID, file.SourcePath, file.DestPath, method, cfg.Parallel, cfg.MaxChunks, e.cfg, e.logger)
		} else {
			k := e.selectK(file.Size, cfg.Parallel, DirectionUpload, cfg.MaxChunks)
			err = e.runUpload(ctx, task, e.publisher, e.cache, connectionID, file.SourcePath, file.DestPath, file.Size, k, e.cfg)
		}

		if err != nil {
			break
		}

		task.completeFile()
	}

	e.finishTask(task, err)
}

// finishTask routes a finished task's outcome to exactly one terminal
// event: cancelled if the token fired, error if err is non-nil, completed
// otherwise.
func (e *Engine) finishTask(task *Task, err error) {
	if task.Cancelled() {
		e.cleanupTempPaths(task)
		task.setStatus(StatusCancelled)
		e.publisher.PublishCancelled(CancelledEvent{TaskID: task.ID, Direction: task.Direction})

		return
	}

	if err != nil {
		e.failTask(task, err)

		return
	}

	task.setStatus(StatusCompleted)
	e.publisher.PublishCompleted(CompletedEvent{TaskID: task.ID, Direction: task.Direction, ArtifactPath: task.ArtifactPath()})
}

func (e *Engine) failTask(task *Task, err error) {
	e.cleanupTempPaths(task)
	task.setStatus(StatusFailed)
	e.publisher.PublishError(ErrorEvent{TaskID: task.ID, Direction: task.Direction, Err: err})
}

// cleanupTempPaths removes every intermediate file a task tracked, local
// ones directly and remote ones (marked "remote:<path>") via the command
// executor. Best-effort: cleanup failures are logged, not propagated,
// since the task is already on its terminal path.
func (e *Engine) cleanupTempPaths(task *Task) {
	for _, p := range task.TempPaths() {
		if remotePath, ok := asRemoteTempPath(p); ok {
			e.cleanupRemote(task.SessionID, remotePath)

			continue
		}

		if err := removeLocal(p); err != nil {
			e.logger.Warn().Err(err).Str("path", p).Msg("failed to remove local temp file during cleanup")
		}
	}

	task.ClearTempPaths()
}

func asRemoteTempPath(p string) (string, bool) {
	const prefix = "remote:"
	if len(p) > len(prefix) && p[:len(prefix)] == prefix {
		return p[len(prefix):], true
	}

	return "", false
}

// Pause cancels the task and marks it paused. Upload resume is explicitly
// out of scope for this version, so pause is cancel-with-a-different-
// status for both directions, per the documented decision.
func (e *Engine) Pause(taskID string) error {
	task, err := e.registry.Lookup(taskID)
	if err != nil {
		return err
	}

	task.SetResumePosition(task.snapshotProgress(PhaseTransferring).Transferred)
	task.Cancel()
	task.setStatus(StatusPaused)

	return nil
}

// Resume restarts taskID as a new task reusing its id, carrying over its
// recorded resume position. Only meaningful for downloads whose
// intermediate file is still on disk; for any other case the caller should
// start a fresh task instead.
func (e *Engine) Resume(ctx context.Context, taskID string) error {
	task, err := e.registry.Lookup(taskID)
	if err != nil {
		return err
	}

	if task.Direction != DirectionDownload {
		return brokererr.New(brokererr.KindInternal, "upload resume is not supported", taskID)
	}

	if task.Status() != StatusPaused {
		return brokererr.New(brokererr.KindInternal, "task is not paused", taskID)
	}

	file := task.Files[0]

	resumed := NewTask(taskID, task.SessionID, DirectionDownload, task.Files, task.Config)
	resumed.SetResumePosition(task.ResumePosition())
	e.registry.Register(resumed)

	go e.runDownloadTask(ctx, resumed, resumed.SessionID, file, resumed.Config)

	return nil
}

// Cancel fires taskID's cancellation token; idempotent and a no-op for an
// unknown or already-terminal task.
func (e *Engine) Cancel(taskID string) error {
	e.registry.Cancel(taskID)

	return nil
}

func removeLocal(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}

	return nil
}
