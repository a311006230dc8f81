package sftpcache

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path"
	"sync"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"

	"github.com/sshbroker/engine/internal/config"
	"github.com/sshbroker/engine/pkg/brokererr"
	"github.com/sshbroker/engine/pkg/cmdexec"
	"github.com/sshbroker/engine/pkg/sshpool"
)

// Encoding selects how readRange/writeText represent file content as text.
type Encoding string

// Exported encodings.
const (
	EncodingUTF8   Encoding = "utf8"
	EncodingBase64 Encoding = "base64"
)

// Cache manages one SFTPHandle per connection id, backed by a *sftp.Client
// drawn from the transfer pool.
type Cache struct {
	pools    *sshpool.Manager
	executor *cmdexec.Executor
	cfg      config.SFTPConfig
	logger   zerolog.Logger

	mu      sync.Mutex
	handles map[string]*SFTPHandle
}

// NewCache constructs a Cache.
func NewCache(pools *sshpool.Manager, executor *cmdexec.Executor, cfg config.SFTPConfig, logger zerolog.Logger) *Cache {
	return &Cache{
		pools:    pools,
		executor: executor,
		cfg:      cfg,
		logger:   logger,
		handles:  make(map[string]*SFTPHandle),
	}
}

// ConnectionID returns the `sftp-<sessionId>` convention name consumers
// must use to address this session's SFTP namespace.
func ConnectionID(sessionID string) string {
	return "sftp-" + sessionID
}

// CreateClient opens a fresh SFTP subsystem over a transfer-pool connection
// for sessionID and registers it under its sftp-<sessionId> connection id,
// tearing down and replacing any existing handle for that id first.
func (c *Cache) CreateClient(ctx context.Context, sessionID string) (*SFTPHandle, error) {
	connectionID := ConnectionID(sessionID)

	c.mu.Lock()
	if existing, ok := c.handles[connectionID]; ok {
		delete(c.handles, connectionID)
		c.mu.Unlock()
		_ = existing.client.Close()
		existing.release()
		c.mu.Lock()
	}
	c.mu.Unlock()

	handle, err := c.pools.GetConnection(ctx, sessionID, sshpool.ConnectionTransfer)
	if err != nil {
		return nil, err
	}

	client, err := sftp.NewClient(handle.Conn.Client, sftp.UseConcurrentWrites(true))
	if err != nil {
		handle.Release()

		return nil, brokererr.Wrap(brokererr.KindInternal, "failed to create sftp client", sessionID, err)
	}

	sh := newHandle(connectionID, sessionID, client, handle.Release)

	c.mu.Lock()
	c.handles[connectionID] = sh
	c.mu.Unlock()

	return sh, nil
}

// EnsureClient returns the existing handle for sessionID's connection id, or
// creates one if none exists yet. Unlike CreateClient, it never tears down
// an existing handle — used by the transfer engine so starting a transfer
// never disrupts an interactive SFTP browsing session on the same
// connection id.
func (c *Cache) EnsureClient(ctx context.Context, sessionID string) (*SFTPHandle, error) {
	connectionID := ConnectionID(sessionID)

	c.mu.Lock()
	existing, ok := c.handles[connectionID]
	c.mu.Unlock()

	if ok {
		return existing, nil
	}

	return c.CreateClient(ctx, sessionID)
}

// ReadDir lists path, serving from the handle's directory cache when
// useCache is true and a cached listing exists.
func (c *Cache) ReadDir(connectionID, dirPath string, useCache bool) ([]FileEntry, error) {
	handle, err := c.lookup(connectionID)
	if err != nil {
		return nil, err
	}

	if useCache {
		if entries, ok := handle.cachedDir(dirPath); ok {
			return entries, nil
		}
	}

	infos, err := handle.client.ReadDir(dirPath)
	if err != nil {
		return nil, brokererr.Wrap(brokererr.KindNoSuchPath, "failed to read directory", dirPath, err)
	}

	entries := make([]FileEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, FileEntry{
			Name:        info.Name(),
			Path:        path.Join(dirPath, info.Name()),
			Size:        info.Size(),
			ModTime:     info.ModTime().Unix(),
			Permissions: uint32(info.Mode().Perm()),
			IsDirectory: info.IsDir(),
		})
	}

	handle.storeDir(dirPath, entries)

	return entries, nil
}

// Stat returns metadata for a single remote path.
func (c *Cache) Stat(connectionID, remotePath string) (*FileEntry, error) {
	handle, err := c.lookup(connectionID)
	if err != nil {
		return nil, err
	}

	info, statErr := handle.client.Stat(remotePath)
	if statErr != nil {
		return nil, brokererr.Wrap(brokererr.KindNoSuchPath, "stat failed", remotePath, statErr)
	}

	return &FileEntry{
		Name:        info.Name(),
		Path:        remotePath,
		Size:        info.Size(),
		ModTime:     info.ModTime().Unix(),
		Permissions: uint32(info.Mode().Perm()),
		IsDirectory: info.IsDir(),
	}, nil
}

// ReadRange reads length bytes starting at offset from remotePath, or from
// offset to EOF when length is negative, and encodes the result as text.
// It returns the file's total size alongside the bytes actually read.
func (c *Cache) ReadRange(connectionID, remotePath string, offset, length int64, enc Encoding) (content string, totalSize, bytesRead int64, err error) {
	handle, err := c.lookup(connectionID)
	if err != nil {
		return "", 0, 0, err
	}

	file, err := handle.client.Open(remotePath)
	if err != nil {
		return "", 0, 0, brokererr.Wrap(brokererr.KindNoSuchPath, "failed to open remote file", remotePath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", 0, 0, brokererr.Wrap(brokererr.KindInternal, "failed to stat open file", remotePath, err)
	}

	totalSize = info.Size()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return "", totalSize, 0, brokererr.Wrap(brokererr.KindInternal, "failed to seek", remotePath, err)
	}

	var data []byte
	if length < 0 {
		data, err = io.ReadAll(file)
	} else {
		data = make([]byte, length)

		var n int
		n, err = io.ReadFull(file, data)
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			data = data[:n]
			err = nil
		}
	}

	if err != nil {
		return "", totalSize, 0, brokererr.Wrap(brokererr.KindInternal, "failed to read range", remotePath, err)
	}

	return encodeText(data, enc), totalSize, int64(len(data)), nil
}

// ReadRangeBytes is ReadRange's raw-byte counterpart used internally by the
// transfer engine's chunk workers, bypassing the text-encoding step the IPC
// surface's readRange channel needs.
func (c *Cache) ReadRangeBytes(connectionID, remotePath string, offset, length int64) ([]byte, int64, error) {
	handle, err := c.lookup(connectionID)
	if err != nil {
		return nil, 0, err
	}

	file, err := handle.client.Open(remotePath)
	if err != nil {
		return nil, 0, brokererr.Wrap(brokererr.KindNoSuchPath, "failed to open remote file", remotePath, err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, 0, brokererr.Wrap(brokererr.KindInternal, "failed to seek", remotePath, err)
	}

	data := make([]byte, length)

	n, err := io.ReadFull(file, data)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return data[:n], int64(n), io.EOF
	}

	if err != nil {
		return nil, 0, brokererr.Wrap(brokererr.KindInternal, "failed to read range", remotePath, err)
	}

	return data, int64(n), nil
}

// CreateEmptyFile creates (or truncates) remotePath to zero length, used by
// parallel upload to pre-create the destination before chunk workers begin
// writing at their assigned offsets.
func (c *Cache) CreateEmptyFile(connectionID, remotePath string) error {
	handle, err := c.lookup(connectionID)
	if err != nil {
		return err
	}

	file, err := handle.client.Create(remotePath)
	if err != nil {
		return brokererr.Wrap(brokererr.KindPermissionDenied, "failed to create remote file", remotePath, err)
	}
	defer file.Close()

	handle.invalidateParent(path.Dir(remotePath))

	return nil
}

// WriteChunkAt opens remotePath for random-access writes and writes data at
// the given absolute offset; semantics are at-offset and idempotent, so
// repeated writes of the same chunk (e.g. after a retry) are safe. Callers
// may pin a single *sftp.File across chunks via OpenForRandomWrite instead
// of paying per-chunk open/close cost.
func (c *Cache) WriteChunkAt(connectionID, remotePath string, offset int64, data []byte) error {
	handle, err := c.lookup(connectionID)
	if err != nil {
		return err
	}

	file, err := handle.client.OpenFile(remotePath, os.O_WRONLY)
	if err != nil {
		return brokererr.Wrap(brokererr.KindPermissionDenied, "failed to open remote file for write", remotePath, err)
	}
	defer file.Close()

	if _, err := file.WriteAt(data, offset); err != nil {
		return brokererr.Wrap(brokererr.KindInternal, "failed to write chunk", remotePath, err)
	}

	return nil
}

// RandomWriteHandle is a pinned remote file handle for writing multiple
// chunks without reopening between them.
type RandomWriteHandle struct {
	file *sftp.File
}

// OpenForRandomWrite opens remotePath once for the lifetime of an upload so
// chunk workers sharing connectionID's underlying SFTP session can write
// their chunks without an open/close per chunk. The caller must Close it
// when all chunks have been written.
func (c *Cache) OpenForRandomWrite(connectionID, remotePath string) (*RandomWriteHandle, error) {
	handle, err := c.lookup(connectionID)
	if err != nil {
		return nil, err
	}

	file, err := handle.client.OpenFile(remotePath, os.O_WRONLY)
	if err != nil {
		return nil, brokererr.Wrap(brokererr.KindPermissionDenied, "failed to open remote file for write", remotePath, err)
	}

	return &RandomWriteHandle{file: file}, nil
}

// WriteAt writes data at the given absolute offset. Safe for concurrent
// callers writing disjoint ranges: the underlying SFTP protocol serializes
// requests per in-flight pwrite but does not require the ranges not overlap
// in time, only in space.
func (h *RandomWriteHandle) WriteAt(offset int64, data []byte) error {
	if _, err := h.file.WriteAt(data, offset); err != nil {
		return fmt.Errorf("failed to write chunk at offset %d: %w", offset, err)
	}

	return nil
}

// Close releases the pinned handle.
func (h *RandomWriteHandle) Close() error {
	if err := h.file.Close(); err != nil {
		return fmt.Errorf("failed to close pinned write handle: %w", err)
	}

	return nil
}

// WriteText writes content (decoded per enc) to remotePath, creating or
// truncating it, and invalidates the cached listing of its parent
// directory.
func (c *Cache) WriteText(connectionID, remotePath, content string, enc Encoding) error {
	handle, err := c.lookup(connectionID)
	if err != nil {
		return err
	}

	data, err := decodeText(content, enc)
	if err != nil {
		return brokererr.Wrap(brokererr.KindInternal, "failed to decode content", remotePath, err)
	}

	file, err := handle.client.Create(remotePath)
	if err != nil {
		return brokererr.Wrap(brokererr.KindPermissionDenied, "failed to create remote file", remotePath, err)
	}
	defer file.Close()

	if _, err := file.Write(data); err != nil {
		return brokererr.Wrap(brokererr.KindInternal, "failed to write remote file", remotePath, err)
	}

	handle.invalidateParent(path.Dir(remotePath))

	return nil
}

// ExecuteCommand proxies to the Command Executor, matching C5's documented
// surface (`executeCommand` is a thin pass-through to C4).
func (c *Cache) ExecuteCommand(ctx context.Context, sessionID, command string) (*cmdexec.Result, error) {
	return c.executor.Exec(ctx, sessionID, command)
}

// ClearCache invalidates a single cached directory listing, or the whole
// cache for connectionID when dirPath is empty.
func (c *Cache) ClearCache(connectionID, dirPath string) error {
	handle, err := c.lookup(connectionID)
	if err != nil {
		return err
	}

	handle.clearCache(dirPath)

	return nil
}

// Close tears down the SFTP subsystem for connectionID and releases its
// underlying pooled connection.
func (c *Cache) Close(connectionID string) error {
	c.mu.Lock()
	handle, ok := c.handles[connectionID]
	if ok {
		delete(c.handles, connectionID)
	}
	c.mu.Unlock()

	if !ok {
		return nil
	}

	err := handle.client.Close()
	handle.release()

	if err != nil {
		return fmt.Errorf("failed to close sftp client: %w", err)
	}

	return nil
}

func (c *Cache) lookup(connectionID string) (*SFTPHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	handle, ok := c.handles[connectionID]
	if !ok {
		return nil, brokererr.New(brokererr.KindNotConnected, "unknown sftp connection id", connectionID)
	}

	return handle, nil
}

func encodeText(data []byte, enc Encoding) string {
	if enc == EncodingBase64 {
		return base64.StdEncoding.EncodeToString(data)
	}

	return string(data)
}

func decodeText(content string, enc Encoding) ([]byte, error) {
	if enc == EncodingBase64 {
		return base64.StdEncoding.DecodeString(content)
	}

	return []byte(content), nil
}

