package fsadapter

import (
	"sync"

	"github.com/marmos91/sftpws/internal/sftpclient"
)

// fdEntry is the per-open-file state the kernel's fh uint64 maps to: the
// virtual path, the wire handle it was opened under, and (for regular
// files opened for writing) the coalescing write buffer of spec.md §4.F.
// Directory handles never reach this table: Readdir is stateless.
type fdEntry struct {
	path   string
	handle sftpclient.Handle
	wbuf   *writeBuffer
}

// fdTable hands out kernel-facing fh values and tracks the wire handle
// and write buffer behind each one. A plain incrementing counter plus
// map is enough here: unlike safefs's [1,1024] wire handle space, the
// kernel-facing fh has no protocol-imposed ceiling.
type fdTable struct {
	mu      sync.Mutex
	next    uint64
	entries map[uint64]*fdEntry
}

func newFDTable() *fdTable {
	return &fdTable{next: 1, entries: make(map[uint64]*fdEntry)}
}

// allocate registers a freshly opened file handle and returns its fh.
func (t *fdTable) allocate(path string, h sftpclient.Handle) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	fh := t.next
	t.next++
	t.entries[fh] = &fdEntry{path: path, handle: h}
	return fh
}

// get returns the entry for fh, or nil if it is unknown (stale fh after
// a reconnect, or a caller bug).
func (t *fdTable) get(fh uint64) *fdEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries[fh]
}

// release drops fh from the table and returns its entry, if any, so the
// caller can flush/close it.
func (t *fdTable) release(fh uint64) *fdEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entries[fh]
	delete(t.entries, fh)
	return e
}

// releaseAll drops every entry, used when the underlying channel drops
// (spec.md §4.F: ready→init on channel close invalidates all handles
// the caller held, since the wire handles no longer mean anything to a
// freshly (re)dialed session).
func (t *fdTable) releaseAll() []*fdEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	all := make([]*fdEntry, 0, len(t.entries))
	for _, e := range t.entries {
		all = append(all, e)
	}
	t.entries = make(map[uint64]*fdEntry)
	return all
}
