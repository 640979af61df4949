package safefs

import (
	"os"
	"sync"

	"github.com/marmos91/sftpws/internal/sftperr"
)

type slotKind int

const (
	kindFile slotKind = iota
	kindDir
)

// slot is one handle-table entry (spec.md §4.E Handle allocation): the
// underlying OS handle, a busy flag, and a FIFO queue of deferred
// actions enforcing the per-handle serialization invariant (at most one
// operation in flight against a given handle at a time).
type slot struct {
	kind slotKind
	path string

	f *os.File

	dirEntries []os.DirEntry
	dirPos     int

	mu      sync.Mutex
	running bool
	queue   []func()
}

// serialize runs task with this slot exclusively held. If another task is
// already running, task is appended to the FIFO queue and runs later —
// possibly on the goroutine currently draining the queue, not the
// caller's own goroutine — but serialize always blocks its caller until
// task has completed.
func (s *slot) serialize(task func()) {
	done := make(chan struct{})
	wrapped := func() {
		task()
		close(done)
	}

	s.mu.Lock()
	if s.running {
		s.queue = append(s.queue, wrapped)
		s.mu.Unlock()
		<-done
		return
	}
	s.running = true
	s.mu.Unlock()

	wrapped()
	s.drain()
}

func (s *slot) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		next()
	}
}

// allocate assigns s the first free handle after the round-robin cursor,
// scanning up to 1024 slots and wrapping from 1024 back to 1 (spec.md
// §4.E Handle allocation).
func (fs *FS) allocate(s *slot) (uint32, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for i := 0; i < 1024; i++ {
		fs.cursor++
		if fs.cursor > 1024 {
			fs.cursor = 1
		}
		if fs.slots[fs.cursor] == nil {
			fs.slots[fs.cursor] = s
			return uint32(fs.cursor), nil
		}
	}
	return 0, sftperr.NewTooManyFilesError()
}

func (fs *FS) slotFor(h uint32) (*slot, error) {
	if h < 1 || h > 1024 {
		return nil, sftperr.NewFailureError("invalid handle")
	}
	fs.mu.Lock()
	s := fs.slots[h]
	fs.mu.Unlock()
	if s == nil {
		return nil, sftperr.NewFailureError("unknown handle")
	}
	return s, nil
}

func (fs *FS) free(h uint32) {
	fs.mu.Lock()
	fs.slots[h] = nil
	fs.mu.Unlock()
}

// openHandles returns every currently-assigned handle in ascending order.
func (fs *FS) openHandles() []uint32 {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var handles []uint32
	for h := 1; h <= 1024; h++ {
		if fs.slots[h] != nil {
			handles = append(handles, uint32(h))
		}
	}
	return handles
}

// HandleCount reports the number of currently-assigned handles, for the
// Session's handle-table gauge.
func (fs *FS) HandleCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n := 0
	for h := 1; h <= 1024; h++ {
		if fs.slots[h] != nil {
			n++
		}
	}
	return n
}
