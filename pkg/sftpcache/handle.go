// Package sftpcache implements the SFTP Client Cache: one logical SFTP
// handle per connection id, with a per-handle directory listing cache and
// an insertion-order path history.
package sftpcache

import (
	"sync"

	"github.com/pkg/sftp"
)

const pathHistoryLimit = 50

// FileEntry describes one remote directory entry.
type FileEntry struct {
	Name        string
	Path        string
	Size        int64
	ModTime     int64
	Permissions uint32
	IsDirectory bool
	Owner       string
	Group       string
}

// SFTPHandle is one logical SFTP connection: `sftp-<sessionId>` by
// convention. It owns a directory cache and a path history, and is shared
// with the borrowing transfer task for its duration.
type SFTPHandle struct {
	ConnectionID string
	SessionID    string
	client       *sftp.Client
	release      func()

	mu          sync.RWMutex
	dirCache    map[string][]FileEntry
	pathHistory []string
}

func newHandle(connectionID, sessionID string, client *sftp.Client, release func()) *SFTPHandle {
	return &SFTPHandle{
		ConnectionID: connectionID,
		SessionID:    sessionID,
		client:       client,
		release:      release,
		dirCache:     make(map[string][]FileEntry),
	}
}

func (h *SFTPHandle) cachedDir(path string) ([]FileEntry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	entries, ok := h.dirCache[path]

	return entries, ok
}

func (h *SFTPHandle) storeDir(path string, entries []FileEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.dirCache[path] = entries
	h.recordPath(path)
}

// recordPath appends path to the insertion-order history, deduplicating
// and capping the list at pathHistoryLimit entries (oldest dropped first).
func (h *SFTPHandle) recordPath(path string) {
	for _, p := range h.pathHistory {
		if p == path {
			return
		}
	}

	h.pathHistory = append(h.pathHistory, path)
	if len(h.pathHistory) > pathHistoryLimit {
		h.pathHistory = h.pathHistory[len(h.pathHistory)-pathHistoryLimit:]
	}
}

// PathHistory returns a copy of the handle's insertion-order path history.
func (h *SFTPHandle) PathHistory() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, len(h.pathHistory))
	copy(out, h.pathHistory)

	return out
}

// clearCache invalidates the directory cache for path, or the whole cache
// when path is empty.
func (h *SFTPHandle) clearCache(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if path == "" {
		h.dirCache = make(map[string][]FileEntry)

		return
	}

	delete(h.dirCache, path)
}

// invalidateParent drops the cached listing for the directory containing
// path, since a successful write/rename under it makes that listing stale.
func (h *SFTPHandle) invalidateParent(dir string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.dirCache, dir)
}
