package transfer

import (
	"context"
	"fmt"
	"os"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/sshbroker/engine/internal/config"
	"github.com/sshbroker/engine/pkg/brokererr"
	"github.com/sshbroker/engine/pkg/sftpcache"
)

// runUpload pre-creates remotePath empty, then fans out k chunk workers
// each reading its byte range from localPath and writing it at the same
// absolute offset into remotePath through one pinned SFTP write handle
// (opening/closing per chunk is expensive over SFTP). Progress is reported
// via the max-uploaded-position rule: the largest completed chunk end, which
// keeps the count monotonic but can exceed the contiguous completed prefix
// when chunks finish out of order.
func (e *Engine) runUpload(
	ctx context.Context, task *Task, publisher Publisher, cache *sftpcache.Cache, connectionID, localPath, remotePath string,
	size int64, k int, cfg config.TransferConfig,
) error {
	if err := cache.CreateEmptyFile(connectionID, remotePath); err != nil {
		return err
	}

	task.AddTempPath(remoteTempMarker(remotePath))

	if size == 0 {
		task.SetArtifactPath(remotePath)
		task.ClearTempPaths()

		return nil
	}

	localFile, err := os.Open(localPath) // #nosec G304 - path supplied by the caller that owns the upload
	if err != nil {
		return brokererr.Wrap(brokererr.KindInternal, "failed to open local file for upload", localPath, err)
	}
	defer func() { _ = localFile.Close() }()

	handle, err := cache.OpenForRandomWrite(connectionID, remotePath)
	if err != nil {
		return err
	}
	defer func() { _ = handle.Close() }()

	pollerCtx, stopPoller := context.WithCancel(ctx)
	defer stopPoller()

	go e.pollProgress(pollerCtx, task, publisher)

	chunks := PlanChunks(size, k)

	group, groupCtx := errgroup.WithContext(ctx)

	for _, c := range chunks {
		chunk := c

		group.Go(func() error {
			return e.uploadChunk(groupCtx, task, localFile, handle, chunk, cfg)
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}

	task.SetArtifactPath(remotePath)
	task.ClearTempPaths()

	return nil
}

func (e *Engine) uploadChunk(
	ctx context.Context, task *Task, localFile *os.File, handle *sftpcache.RandomWriteHandle, chunk Chunk, cfg config.TransferConfig,
) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = cfg.ChunkRetryBaseBackoff

	policy := backoff.WithMaxRetries(expBackoff, uint64(cfg.ChunkMaxRetries))

	return backoff.Retry(func() error {
		if task.Cancelled() {
			return backoff.Permanent(brokererr.New(brokererr.KindCancelled, "upload cancelled", ""))
		}

		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}

		data := make([]byte, chunk.Size())
		if _, err := localFile.ReadAt(data, chunk.Start); err != nil {
			return fmt.Errorf("chunk %d local read failed: %w", chunk.Index, err)
		}

		if err := handle.WriteAt(chunk.Start, data); err != nil {
			return fmt.Errorf("chunk %d remote write failed: %w", chunk.Index, err)
		}

		task.advanceMaxUploadedPosition(chunk.End)

		return nil
	}, policy)
}

// remoteTempMarker tracks a remote path created for an in-progress upload
// so a cancel can clean it up; upload resume is out of scope for the first
// version, so unlike downloads no local resume bookkeeping is kept for it.
func remoteTempMarker(remotePath string) string {
	return "remote:" + remotePath
}
