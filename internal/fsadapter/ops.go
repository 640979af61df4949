// Package fsadapter implements the cached kernel-callback adapter of
// spec.md §4.F: a flat, FUSE-shaped operation surface (Ops) backed by a
// sftpclient.Client, with attribute/directory/link TTL caches, write
// coalescing, chunked I/O, auto-reconnect, and an optional bulk metadata
// prefetch. fuse.Attr/fuse.StatfsOut/syscall.Errno (from
// github.com/hanwen/go-fuse/v2/fuse) are the value types exchanged at the
// kernel-callback boundary, matching how the corpus's go-fuse-based
// filesystems shape that edge — this package never performs the actual
// kernel mount itself; internal/fusebridge does.
package fsadapter

import (
	"context"
	"sync"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	cache "github.com/patrickmn/go-cache"

	"github.com/marmos91/sftpws/internal/channel"
	"github.com/marmos91/sftpws/internal/fsadapter/metadata"
	"github.com/marmos91/sftpws/internal/fsadapter/tracker"
	"github.com/marmos91/sftpws/internal/logger"
	"github.com/marmos91/sftpws/internal/sftpclient"
	"github.com/marmos91/sftpws/pkg/metrics"
)

// Ops is the kernel filesystem callback surface of spec.md §4.F: one
// entry per FUSE-style operation. Every method fails with syscall.ENOTCONN
// when the adapter is not in the ready state (enforced centrally by
// Adapter.guard, not repeated per method).
type Ops interface {
	Init(ctx context.Context) syscall.Errno
	Statfs(ctx context.Context, path string) (*fuse.StatfsOut, syscall.Errno)
	Getattr(ctx context.Context, path string) (*fuse.Attr, syscall.Errno)
	Fgetattr(ctx context.Context, path string, fh uint64) (*fuse.Attr, syscall.Errno)
	Flush(ctx context.Context, path string, fh uint64) syscall.Errno
	Fsync(ctx context.Context, path string, fh uint64, datasync bool) syscall.Errno
	Fsyncdir(ctx context.Context, path string, fh uint64, datasync bool) syscall.Errno
	Readdir(ctx context.Context, path string) ([]string, syscall.Errno)
	Truncate(ctx context.Context, path string, size uint64) syscall.Errno
	Ftruncate(ctx context.Context, path string, fh uint64, size uint64) syscall.Errno
	Readlink(ctx context.Context, path string) (string, syscall.Errno)
	Chown(ctx context.Context, path string, uid, gid uint32) syscall.Errno
	Utimens(ctx context.Context, path string, atime, mtime time.Time) syscall.Errno
	Chmod(ctx context.Context, path string, mode uint32) syscall.Errno
	Open(ctx context.Context, path string, flags int) (fh uint64, errno syscall.Errno)
	Read(ctx context.Context, path string, fh uint64, dest []byte, offset int64) (n int, errno syscall.Errno)
	Write(ctx context.Context, path string, fh uint64, data []byte, offset int64) (n int, errno syscall.Errno)
	Release(ctx context.Context, path string, fh uint64) syscall.Errno
	Releasedir(ctx context.Context, path string, fh uint64) syscall.Errno
	Create(ctx context.Context, path string, mode uint32) (fh uint64, errno syscall.Errno)
	Unlink(ctx context.Context, path string) syscall.Errno
	Rename(ctx context.Context, oldPath, newPath string) syscall.Errno
	Link(ctx context.Context, oldPath, newPath string) syscall.Errno
	Symlink(ctx context.Context, target, link string) syscall.Errno
	Mkdir(ctx context.Context, path string, mode uint32) syscall.Errno
	Rmdir(ctx context.Context, path string) syscall.Errno
}

// Dialer produces a fresh channel.Channel for (re)connecting; supplied by
// the caller so tests can inject an in-memory pair instead of a real
// WebSocket dial.
type Dialer func(ctx context.Context) (channel.Channel, error)

// Config mirrors the client-side options of spec.md §6's table.
type Config struct {
	CacheTimeout     time.Duration
	CacheStatTimeout time.Duration
	CacheDirTimeout  time.Duration
	CacheLinkTimeout time.Duration
	Reconnect        bool
	HidePath         string
	MetadataFile     string
	Tracker          *tracker.Config
	// IOChunkSize caps a single wire Read/Write call, in bytes. Zero means
	// defaultChunkSize.
	IOChunkSize int
	// Metrics is optional; nil disables cache metrics collection.
	Metrics metrics.CacheMetrics
}

const (
	defaultCacheTimeout = 20 * time.Second
	backoffStart        = 1000 * time.Millisecond
	backoffFactor       = 1.3
	backoffCap          = 7500 * time.Millisecond
)

// Adapter implements Ops against a sftpclient.Client, maintaining the
// lifecycle state machine, TTL caches, per-fd write coalescing, and an
// open-file-descriptor table (spec.md §4.F).
type Adapter struct {
	dial      Dialer
	reconnect bool
	hidePath  string

	mu     sync.Mutex
	st     state
	client *sftpclient.Client
	stopCh chan struct{}

	attrTTL, dirTTL, linkTTL time.Duration
	attrCache                *cache.Cache
	dirCache                 *cache.Cache
	linkCache                *cache.Cache

	fds *fdTable

	tracker     *tracker.Tracker
	metadata    *metadata.Prefetch
	ioChunkSize int
	metrics     metrics.CacheMetrics
}

// New constructs an Adapter in the init state; call Start to begin
// connecting.
func New(dial Dialer, cfg Config) *Adapter {
	base := cfg.CacheTimeout
	if base <= 0 {
		base = defaultCacheTimeout
	}
	attrTTL, dirTTL, linkTTL := base, base, base
	if cfg.CacheStatTimeout > 0 {
		attrTTL = cfg.CacheStatTimeout
	}
	if cfg.CacheDirTimeout > 0 {
		dirTTL = cfg.CacheDirTimeout
	}
	if cfg.CacheLinkTimeout > 0 {
		linkTTL = cfg.CacheLinkTimeout
	}

	ioChunkSize := cfg.IOChunkSize
	if ioChunkSize <= 0 {
		ioChunkSize = defaultChunkSize
	}

	a := &Adapter{
		dial:        dial,
		reconnect:   cfg.Reconnect,
		hidePath:    cfg.HidePath,
		st:          stateInit,
		attrTTL:     attrTTL,
		dirTTL:      dirTTL,
		linkTTL:     linkTTL,
		attrCache:   newBackedCache(attrTTL),
		dirCache:    newBackedCache(dirTTL),
		linkCache:   newBackedCache(linkTTL),
		fds:         newFDTable(),
		ioChunkSize: ioChunkSize,
		metrics:     cfg.Metrics,
	}
	if cfg.Tracker != nil {
		a.tracker = tracker.New(*cfg.Tracker)
	}
	if cfg.MetadataFile != "" {
		if pf, err := metadata.Load(cfg.MetadataFile, dirTTL); err == nil {
			a.metadata = pf
		} else {
			logger.Warn("fsadapter: bulk metadata prefetch disabled", "error", err)
		}
	}
	return a
}

// negativeAttr is stored in attrCache for a path known not to exist.
type negativeAttr struct {
	errno syscall.Errno
}

// guard returns ENOTCONN unless the adapter is ready, otherwise returns
// the live client (spec.md §4.F "All entries fail with ENOTCONN when the
// session is not in the ready state").
func (a *Adapter) guard() (*sftpclient.Client, syscall.Errno) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.st != stateReady {
		return nil, syscall.ENOTCONN
	}
	return a.client, 0
}
