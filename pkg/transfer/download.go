package transfer

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/sshbroker/engine/internal/config"
	"github.com/sshbroker/engine/pkg/brokererr"
	"github.com/sshbroker/engine/pkg/sftpcache"
	"github.com/sshbroker/engine/pkg/transfer/rangeio"
)

// runDownload pre-sizes tempPath to size, fans out k chunk workers reading
// remotePath via connectionID's SFTP handle and writing into tempPath at
// their chunk's absolute offset, polls progress every 100ms, verifies the
// final size, and renames tempPath to destPath. Basic (non-parallel)
// downloads are simply k=1: the same machinery, one worker, one chunk —
// the invariants (no gap, no overlap, mandatory size verification) hold
// identically regardless of fan-out.
func (e *Engine) runDownload(
	ctx context.Context, task *Task, publisher Publisher, cache *sftpcache.Cache, connectionID, remotePath, tempPath, destPath string,
	size int64, k int, cfg config.TransferConfig,
) error {
	if err := rangeio.Allocate(tempPath, size); err != nil {
		return brokererr.Wrap(brokererr.KindInternal, "failed to pre-size destination file", tempPath, err)
	}

	task.AddTempPath(tempPath)

	if size == 0 {
		return finalizeDownload(task, tempPath, destPath, size)
	}

	chunks := ApplyResumePosition(PlanChunks(size, k), task.ResumePosition())

	var downloaded atomic.Int64
	for _, c := range chunks {
		downloaded.Add(c.Downloaded)
	}

	task.recordTransferred(downloaded.Load())

	pollerCtx, stopPoller := context.WithCancel(ctx)
	defer stopPoller()

	go e.pollProgress(pollerCtx, task, publisher)

	buf := newAdaptiveBuffer(cfg.InitialBufferSize, cfg.MinBufferSize, cfg.MaxBufferSize, cfg.AdaptiveFactor)

	go adaptBufferLoop(pollerCtx, task, buf, cfg.AdaptiveThresholdBytes)

	group, groupCtx := errgroup.WithContext(ctx)

	for _, c := range chunks {
		chunk := c
		if chunk.Downloaded >= chunk.Size() {
			continue
		}

		group.Go(func() error {
			return e.downloadChunk(groupCtx, task, cache, connectionID, remotePath, tempPath, chunk, &downloaded, buf, cfg)
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}

	return finalizeDownload(task, tempPath, destPath, size)
}

func (e *Engine) downloadChunk(
	ctx context.Context, task *Task, cache *sftpcache.Cache, connectionID, remotePath, tempPath string,
	chunk Chunk, downloaded *atomic.Int64, buf *adaptiveBuffer, cfg config.TransferConfig,
) error {
	offset := chunk.Start + chunk.Downloaded
	remaining := chunk.Size() - chunk.Downloaded

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = cfg.ChunkRetryBaseBackoff

	policy := backoff.WithMaxRetries(expBackoff, uint64(cfg.ChunkMaxRetries))

	return backoff.Retry(func() error {
		if task.Cancelled() {
			return backoff.Permanent(brokererr.New(brokererr.KindCancelled, "download cancelled", remotePath))
		}

		data, err := rangeio.ReadRangeBuf(ctx, cache, connectionID, remotePath, offset, remaining, buf.size())
		if err != nil {
			return fmt.Errorf("chunk %d read failed: %w", chunk.Index, err)
		}

		if err := rangeio.WriteAt(tempPath, offset, data); err != nil {
			return backoff.Permanent(err)
		}

		downloaded.Add(int64(len(data)))
		task.recordTransferred(downloaded.Load())

		return nil
	}, policy)
}

// adaptBufferLoop re-evaluates buf's size once a second from the task's
// rolling speed window, per the documented adaptive-buffering rule.
func adaptBufferLoop(ctx context.Context, task *Task, buf *adaptiveBuffer, thresholdBytesPerSec float64) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			buf.adjust(task.samples.speedBytesPerSec(), thresholdBytesPerSec)
		}
	}
}

func (e *Engine) pollProgress(ctx context.Context, task *Task, publisher Publisher) {
	ticker := time.NewTicker(100 * time.Millisecond) //nolint:mnd // documented 100ms poll interval
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			publisher.PublishProgress(task.snapshotProgress(PhaseTransferring))
		}
	}
}

func finalizeDownload(task *Task, tempPath, destPath string, announcedSize int64) error {
	info, err := os.Stat(tempPath)
	if err != nil {
		return brokererr.Wrap(brokererr.KindInternal, "failed to stat downloaded file", tempPath, err)
	}

	if info.Size() != announcedSize {
		_ = os.Remove(tempPath)

		return brokererr.New(brokererr.KindSizeMismatch,
			fmt.Sprintf("downloaded %d bytes, expected %d", info.Size(), announcedSize), destPath)
	}

	if err := os.Rename(tempPath, destPath); err != nil {
		return brokererr.Wrap(brokererr.KindInternal, "failed to commit downloaded file", destPath, err)
	}

	task.ClearTempPaths()
	task.SetArtifactPath(destPath)

	return nil
}
