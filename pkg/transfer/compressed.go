package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sshbroker/engine/internal/config"
	"github.com/sshbroker/engine/pkg/brokererr"
	"github.com/sshbroker/engine/pkg/compress"
)

func copyAll(dst io.Writer, src io.Reader) (int64, error) {
	n, err := io.Copy(dst, src)
	if err != nil {
		return n, fmt.Errorf("failed to copy stream: %w", err)
	}

	return n, nil
}

// phaseScaledPublisher rescales progress percentages from a wrapped
// sub-transfer's own [0,100] range into [lo,hi] before forwarding, letting
// the plain chunked download/upload machinery drive the middle phase of a
// compressed pipeline without knowing it is one.
type phaseScaledPublisher struct {
	inner  Publisher
	lo, hi float64
	phase  Phase
}

func (p phaseScaledPublisher) PublishProgress(ev ProgressEvent) {
	ev.Percentage = p.lo + ev.Percentage/100*(p.hi-p.lo) //nolint:mnd // percentage scale
	ev.Phase = p.phase
	p.inner.PublishProgress(ev)
}

func (p phaseScaledPublisher) PublishCompleted(ev CompletedEvent) { p.inner.PublishCompleted(ev) }
func (p phaseScaledPublisher) PublishError(ev ErrorEvent)         { p.inner.PublishError(ev) }
func (p phaseScaledPublisher) PublishCancelled(ev CancelledEvent) { p.inner.PublishCancelled(ev) }

func archiveExtension(method compress.Method) string {
	if method == compress.MethodGzip {
		return ".gz"
	}

	return ".tar" + compress.Resolve(method).FileExtension
}

func randomArtifactName() string {
	return uuid.NewString()[:8] //nolint:mnd // short, collision-tolerable token for /tmp artifact names
}

// runCompressedDownload implements the documented three-phase compressed
// download: (1) a remote command writes a compressed artifact under /tmp,
// (2) the artifact is downloaded through the ordinary chunked download path
// with progress rescaled into [10,90], (3) the artifact is extracted
// locally: gzip output is written straight to localDest, while tar-based
// archives are unpacked into localDest's directory under the archived
// entry's own name, with no rename to localDest. Any failure removes both
// the remote and local intermediates before returning.
func (e *Engine) runCompressedDownload(
	ctx context.Context, task *Task, publisher Publisher, sessionID, connectionID, remoteSrc, localDest string,
	method compress.Method, parallel bool, requestedMaxChunks int, cfg config.TransferConfig,
) error {
	available, err := e.availability.IsAvailable(ctx, sessionID, method)
	if err != nil {
		return err
	}

	if !available {
		return brokererr.New(brokererr.KindInternal, "compression tools unavailable on remote host", remoteSrc)
	}

	remoteTmp := "/tmp/" + randomArtifactName() + archiveExtension(method)
	task.AddTempPath("remote:" + remoteTmp)

	publisher.PublishProgress(ProgressEvent{TaskID: task.ID, Direction: DirectionDownload, Phase: PhaseCompressing, CurrentFile: remoteSrc})

	compressCmd := compress.RemoteCompressCommand(method, remoteSrc, remoteTmp)

	result, err := e.executor.Exec(ctx, sessionID, compressCmd)
	if err != nil || result.ExitCode != 0 {
		e.cleanupRemote(sessionID, remoteTmp)

		return brokererr.Wrap(brokererr.KindServerCommandFailed, "remote compression command failed", remoteSrc, err)
	}

	publisher.PublishProgress(ProgressEvent{TaskID: task.ID, Direction: DirectionDownload, Phase: PhaseCompressing, Percentage: 10}) //nolint:mnd // phase boundary

	entry, err := e.cache.Stat(connectionID, remoteTmp)
	if err != nil {
		e.cleanupRemote(sessionID, remoteTmp)

		return err
	}

	localArtifact := filepath.Join(localTempDir(task.ID), filepath.Base(remoteTmp))

	k := e.selectK(entry.Size, parallel, DirectionDownload, requestedMaxChunks)

	scaled := phaseScaledPublisher{inner: publisher, lo: 10, hi: 90, phase: PhaseTransferring} //nolint:mnd // phase bounds

	if err := e.runDownload(ctx, task, scaled, e.cache, connectionID, remoteTmp, localArtifact+".part", localArtifact, entry.Size, k, cfg); err != nil {
		e.cleanupRemote(sessionID, remoteTmp)
		_ = os.Remove(localArtifact)

		return err
	}

	e.cleanupRemote(sessionID, remoteTmp)

	publisher.PublishProgress(ProgressEvent{TaskID: task.ID, Direction: DirectionDownload, Phase: PhaseExtracting, Percentage: 90}) //nolint:mnd // phase boundary

	if err := extractLocally(ctx, method, localArtifact, localDest); err != nil {
		_ = os.Remove(localArtifact)

		return err
	}

	_ = os.Remove(localArtifact)
	_ = os.RemoveAll(localTempDir(task.ID))

	task.ClearTempPaths()
	task.SetArtifactPath(localDest)

	publisher.PublishProgress(ProgressEvent{TaskID: task.ID, Direction: DirectionDownload, Phase: PhaseExtracting, Percentage: 100}) //nolint:mnd // phase boundary

	return nil
}

// runCompressedUpload mirrors the download pipeline: (1) compress localSrc
// locally, (2) upload the artifact through the ordinary chunked upload
// path, (3) invoke the matching remote decompressor. Only gzip is
// guaranteed locally; any other requested method falls back to gzip with a
// logged notice, matching the documented upload-side limitation.
func (e *Engine) runCompressedUpload(
	ctx context.Context, task *Task, publisher Publisher, sessionID, connectionID, localSrc, remoteDest string,
	requested compress.Method, parallel bool, requestedMaxChunks int, cfg config.TransferConfig, logger zerolog.Logger,
) error {
	method := requested
	if method != compress.MethodGzip {
		logger.Info().Str("requested", string(requested)).Msg("local compression falling back to gzip")

		method = compress.MethodGzip
	}

	localArtifact := filepath.Join(localTempDir(task.ID), randomArtifactName()+".gz")
	task.AddTempPath(localArtifact)

	publisher.PublishProgress(ProgressEvent{TaskID: task.ID, Direction: DirectionUpload, Phase: PhaseCompressing, CurrentFile: localSrc})

	if err := compressLocally(method, localSrc, localArtifact); err != nil {
		_ = os.Remove(localArtifact)

		return err
	}

	publisher.PublishProgress(ProgressEvent{TaskID: task.ID, Direction: DirectionUpload, Phase: PhaseCompressing, Percentage: 10}) //nolint:mnd // phase boundary

	info, err := os.Stat(localArtifact)
	if err != nil {
		_ = os.Remove(localArtifact)

		return brokererr.Wrap(brokererr.KindInternal, "failed to stat compressed artifact", localArtifact, err)
	}

	remoteTmp := "/tmp/" + randomArtifactName() + ".gz"
	task.AddTempPath("remote:" + remoteTmp)

	k := e.selectK(info.Size(), parallel, DirectionUpload, requestedMaxChunks)

	scaled := phaseScaledPublisher{inner: publisher, lo: 10, hi: 90, phase: PhaseTransferring} //nolint:mnd // phase bounds

	if err := e.runUpload(ctx, task, scaled, e.cache, connectionID, localArtifact, remoteTmp, info.Size(), k, cfg); err != nil {
		_ = os.Remove(localArtifact)
		e.cleanupRemote(sessionID, remoteTmp)

		return err
	}

	_ = os.Remove(localArtifact)

	publisher.PublishProgress(ProgressEvent{TaskID: task.ID, Direction: DirectionUpload, Phase: PhaseExtracting, Percentage: 90}) //nolint:mnd // phase boundary

	decompressCmd := compress.RemoteDecompressCommand(method, remoteTmp, remoteDest)

	result, err := e.executor.Exec(ctx, sessionID, decompressCmd)
	if err != nil || result.ExitCode != 0 {
		e.cleanupRemote(sessionID, remoteTmp)

		return brokererr.Wrap(brokererr.KindServerCommandFailed, "remote decompression command failed", remoteDest, err)
	}

	e.cleanupRemote(sessionID, remoteTmp)

	task.ClearTempPaths()
	task.SetArtifactPath(remoteDest)

	publisher.PublishProgress(ProgressEvent{TaskID: task.ID, Direction: DirectionUpload, Phase: PhaseExtracting, Percentage: 100}) //nolint:mnd // phase boundary

	return nil
}

func compressLocally(method compress.Method, src, dst string) error {
	in, err := os.Open(src) // #nosec G304 - path supplied by the caller that owns the upload
	if err != nil {
		return brokererr.Wrap(brokererr.KindInternal, "failed to open source file for compression", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst) // #nosec G304 - path is a generated temp artifact
	if err != nil {
		return brokererr.Wrap(brokererr.KindInternal, "failed to create compressed artifact", dst, err)
	}
	defer func() { _ = out.Close() }()

	writer, err := method.Writer(out)
	if err != nil {
		return brokererr.Wrap(brokererr.KindInternal, "failed to open compressor", dst, err)
	}

	if _, err := copyAll(writer, in); err != nil {
		return brokererr.Wrap(brokererr.KindInternal, "failed to compress file", src, err)
	}

	if err := writer.Close(); err != nil {
		return brokererr.Wrap(brokererr.KindInternal, "failed to flush compressor", dst, err)
	}

	return nil
}

// extractLocally decompresses a downloaded archive into destPath. gzip
// (single file) is handled in-process; tar-based archives shell out to the
// local tar binary, since Go's standard library has no tar-with-compression
// convenience and every teacher-adjacent archive workflow in the corpus
// shells out to tar for directory archives.
func extractLocally(ctx context.Context, method compress.Method, archivePath, destPath string) error {
	if method == compress.MethodGzip {
		return extractGzipInProcess(archivePath, destPath)
	}

	destDir := filepath.Dir(destPath)
	if err := os.MkdirAll(destDir, 0o750); err != nil { //nolint:mnd // matches teacher's DefaultDirPermissions
		return brokererr.Wrap(brokererr.KindInternal, "failed to create extraction directory", destDir, err)
	}

	args := compress.LocalTarExtractArgs(method, archivePath, destDir)

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // argv is built entirely from known flags and caller-controlled paths

	if output, err := cmd.CombinedOutput(); err != nil {
		return brokererr.Wrap(brokererr.KindInternal, fmt.Sprintf("local tar extraction failed: %s", output), archivePath, err)
	}

	return nil
}

func extractGzipInProcess(archivePath, destPath string) error {
	in, err := os.Open(archivePath) // #nosec G304 - path is a generated temp artifact
	if err != nil {
		return brokererr.Wrap(brokererr.KindInternal, "failed to open compressed artifact", archivePath, err)
	}
	defer func() { _ = in.Close() }()

	reader, err := compress.MethodGzip.Reader(in)
	if err != nil {
		return brokererr.Wrap(brokererr.KindInternal, "failed to open decompressor", archivePath, err)
	}
	defer func() { _ = reader.Close() }()

	if err := os.MkdirAll(filepath.Dir(destPath), 0o750); err != nil { //nolint:mnd // matches teacher's DefaultDirPermissions
		return brokererr.Wrap(brokererr.KindInternal, "failed to create destination directory", filepath.Dir(destPath), err)
	}

	out, err := os.Create(destPath) // #nosec G304 - destination chosen by the caller that owns the download
	if err != nil {
		return brokererr.Wrap(brokererr.KindInternal, "failed to create destination file", destPath, err)
	}
	defer func() { _ = out.Close() }()

	if _, err := copyAll(out, reader); err != nil {
		return brokererr.Wrap(brokererr.KindInternal, "failed to extract archive", archivePath, err)
	}

	return nil
}

func (e *Engine) cleanupRemote(sessionID, remotePath string) {
	_, _ = e.executor.Exec(context.Background(), sessionID, compress.RemoveCommand(remotePath))
}

func localTempDir(taskID string) string {
	return filepath.Join(os.TempDir(), "sshbroker-"+taskID)
}
