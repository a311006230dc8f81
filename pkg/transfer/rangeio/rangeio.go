// Package rangeio provides positional (pwrite/pread-style) access to local
// files and remote SFTP ranges for chunked, concurrent transfers.
package rangeio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sshbroker/engine/pkg/sftpcache"
)

const (
	// DefaultDirPermissions matches the teacher's fileops default.
	DefaultDirPermissions = 0o750
	filePermissions       = 0o640
	// subReadSize is the chunk worker's sub-read unit against C5.readRange.
	subReadSize = 64 * 1024
)

// ErrShortRead is returned by ReadRange when the remote stream reports EOF
// (or delivers nothing) before length bytes have been delivered.
var ErrShortRead = errors.New("rangeio: short read before EOF")

// Allocate creates (or truncates) the file at path to exactly size bytes,
// creating parent directories as needed. Mirrors the teacher's
// CopyFile/CopyFileWithStats directory-creation discipline, generalized to
// pre-sizing rather than streaming a whole file.
func Allocate(path string, size int64) error {
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		return fmt.Errorf("failed to create destination directory %s: %w", dir, err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, filePermissions) // #nosec G304 - path is controlled by caller
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	if err := file.Truncate(size); err != nil {
		return fmt.Errorf("failed to pre-size destination file %s to %d bytes: %w", path, size, err)
	}

	return nil
}

// WriteAt writes data at the given absolute offset into the file at path.
// Safe for concurrent callers writing disjoint ranges of the same path: each
// call opens its own *os.File handle and os.File.WriteAt is itself safe for
// concurrent use at non-overlapping offsets.
func WriteAt(path string, offset int64, data []byte) error {
	file, err := os.OpenFile(path, os.O_WRONLY, filePermissions) // #nosec G304 - path is controlled by caller
	if err != nil {
		return fmt.Errorf("failed to open %s for positional write: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.WriteAt(data, offset); err != nil {
		return fmt.Errorf("failed to write %d bytes at offset %d in %s: %w", len(data), offset, path, err)
	}

	return nil
}

// RangeReader is the subset of the SFTP Client Cache's surface ReadRange
// needs; satisfied by *sftpcache.Cache.
type RangeReader interface {
	ReadRangeBytes(connectionID, remotePath string, offset, length int64) ([]byte, int64, error)
}

// ReadRange reads length bytes starting at offset from remotePath on
// connectionID in subReadSize sub-reads, retrying short sub-reads until
// either length bytes have been delivered or the stream reports EOF. Mirrors
// the teacher's buffered-copy-loop discipline (fixed-size buffer, checked
// each iteration) narrowed to a bounded positional range instead of a whole
// file.
func ReadRange(ctx context.Context, reader RangeReader, connectionID, remotePath string, offset, length int64) ([]byte, error) {
	return ReadRangeBuf(ctx, reader, connectionID, remotePath, offset, length, subReadSize)
}

// ReadRangeBuf is ReadRange with an explicit sub-read size, letting a caller
// (the adaptive-buffering download path) grow or shrink the unit each
// ReadRangeBytes call requests based on observed throughput.
func ReadRangeBuf(ctx context.Context, reader RangeReader, connectionID, remotePath string, offset, length, bufSize int64) ([]byte, error) {
	if bufSize <= 0 {
		bufSize = subReadSize
	}

	result := make([]byte, 0, length)

	for int64(len(result)) < length {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("range read of %s cancelled: %w", remotePath, err)
		}

		want := length - int64(len(result))
		if want > bufSize {
			want = bufSize
		}

		chunk, _, err := reader.ReadRangeBytes(connectionID, remotePath, offset+int64(len(result)), want)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to read range [%d,%d) of %s: %w", offset, offset+length, remotePath, err)
		}

		result = append(result, chunk...)

		if (err != nil || len(chunk) == 0) && int64(len(result)) < length {
			return result, fmt.Errorf("%w: got %d of %d bytes from %s", ErrShortRead, len(result), length, remotePath)
		}
	}

	return result, nil
}

var _ RangeReader = (*sftpcache.Cache)(nil)
