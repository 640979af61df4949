// Package tracker implements the optional read-tracking feature of
// spec.md §4.F: remember which paths were recently accessed, so a
// companion process can prioritize re-fetching only what's actually
// being read, instead of the whole tree.
package tracker

import (
	"bufio"
	"os"
	"sort"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"
)

// Config mirrors the readTracking option group of spec.md §6.
type Config struct {
	// Path is the file accessed paths are periodically flushed to.
	Path string
	// TTL bounds how long a path is remembered as "recently touched".
	TTL time.Duration
	// FlushInterval is how often Touch-accumulated paths are written out.
	FlushInterval time.Duration
	// ModifiedThreshold: a touch is recorded only when the observed mtime
	// is within this many seconds of time.Now(), filtering out
	// attribute-cache warms of long-untouched files.
	ModifiedThreshold time.Duration
}

// Tracker is a TTL set of accessed paths with periodic flush-to-file.
type Tracker struct {
	cfg  Config
	set  *cache.Cache
	mu   sync.Mutex
	stop chan struct{}
	once sync.Once
}

// New constructs a Tracker and starts its flush loop when cfg.Path is
// set.
func New(cfg Config) *Tracker {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	t := &Tracker{
		cfg:  cfg,
		set:  cache.New(cfg.TTL, cfg.TTL*2),
		stop: make(chan struct{}),
	}
	if cfg.Path != "" {
		go t.flushLoop()
	}
	return t
}

// Touch records path as recently accessed, gated by ModifiedThreshold:
// a mtime far in the past means this access didn't actually change
// anything recently, so it's not interesting to a cache-warming reader.
func (t *Tracker) Touch(path string, mtimeUnix int64) {
	if t.cfg.ModifiedThreshold > 0 {
		age := time.Since(time.Unix(mtimeUnix, 0))
		if age > t.cfg.ModifiedThreshold {
			return
		}
	}
	t.set.Set(path, struct{}{}, cache.DefaultExpiration)
}

// Snapshot returns the currently tracked paths, sorted.
func (t *Tracker) Snapshot() []string {
	items := t.set.Items()
	paths := make([]string, 0, len(items))
	for k := range items {
		paths = append(paths, k)
	}
	sort.Strings(paths)
	return paths
}

// Stop halts the flush loop.
func (t *Tracker) Stop() {
	t.once.Do(func() { close(t.stop) })
}

func (t *Tracker) flushLoop() {
	ticker := time.NewTicker(t.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			_ = t.flush()
		}
	}
}

func (t *Tracker) flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.Create(t.cfg.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, p := range t.Snapshot() {
		if _, err := w.WriteString(p + "\n"); err != nil {
			return err
		}
	}
	return w.Flush()
}
