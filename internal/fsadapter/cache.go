package fsadapter

import (
	"path"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	cache "github.com/patrickmn/go-cache"

	"github.com/marmos91/sftpws/pkg/metrics"
)

const (
	cacheNameAttr = "attr"
	cacheNameDir  = "dir"
	cacheNameLink = "link"
)

// attrCacheGet reports a cached attribute lookup: found tells the caller
// whether anything was cached at all; when found and errno is non-zero,
// the entry is a negative cache hit (spec.md §4.F: "a path known not to
// exist is cached too, so a repeated failed lookup doesn't round-trip").
func (a *Adapter) attrCacheGet(p string) (attr *fuse.Attr, errno syscall.Errno, found bool) {
	v, ok := a.attrCache.Get(p)
	if !ok {
		metrics.RecordMiss(a.metrics, cacheNameAttr)
		return nil, 0, false
	}
	switch t := v.(type) {
	case negativeAttr:
		metrics.RecordNegativeHit(a.metrics, cacheNameAttr)
		return nil, t.errno, true
	case *fuse.Attr:
		metrics.RecordHit(a.metrics, cacheNameAttr)
		return t, 0, true
	default:
		return nil, 0, false
	}
}

func (a *Adapter) attrCachePut(p string, attr *fuse.Attr) {
	a.attrCache.Set(p, attr, a.attrTTL)
}

func (a *Adapter) attrCachePutNegative(p string, errno syscall.Errno) {
	a.attrCache.Set(p, negativeAttr{errno: errno}, a.attrTTL)
}

func (a *Adapter) linkCacheGet(p string) (string, bool) {
	v, ok := a.linkCache.Get(p)
	if !ok {
		metrics.RecordMiss(a.metrics, cacheNameLink)
		return "", false
	}
	metrics.RecordHit(a.metrics, cacheNameLink)
	target, _ := v.(string)
	return target, true
}

func (a *Adapter) linkCachePut(p, target string) {
	a.linkCache.Set(p, target, a.linkTTL)
}

// dirCacheGet returns the cached child-name listing for a directory.
func (a *Adapter) dirCacheGet(p string) ([]string, bool) {
	v, ok := a.dirCache.Get(p)
	if !ok {
		metrics.RecordMiss(a.metrics, cacheNameDir)
		return nil, false
	}
	metrics.RecordHit(a.metrics, cacheNameDir)
	names, _ := v.([]string)
	return names, true
}

func (a *Adapter) dirCachePut(p string, names []string) {
	a.dirCache.Set(p, names, a.dirTTL)
}

// invalidate applies spec.md §4.F's invalidation rule: mutating path p
// drops p's attribute and link entries, plus the directory listing for
// both p itself (in case it was a directory) and its parent (since the
// mutation changes the parent's child set or the child's metadata as
// seen via readdir-driven prefetch).
func (a *Adapter) invalidate(p string) {
	a.attrCache.Delete(p)
	a.linkCache.Delete(p)
	a.dirCache.Delete(p)
	a.dirCache.Delete(parentOf(p))
	metrics.RecordInvalidate(a.metrics, cacheNameAttr)
	metrics.RecordInvalidate(a.metrics, cacheNameDir)
	metrics.RecordInvalidate(a.metrics, cacheNameLink)
}

func parentOf(p string) string {
	dir := path.Dir(p)
	if dir == "." {
		return "/"
	}
	return dir
}

// newBackedCache builds a go-cache instance with the expiry/cleanup
// relationship the rest of the adapter assumes (cleanup interval is
// twice the TTL, so expired-but-not-yet-swept entries never linger more
// than two TTL windows past expiry; go-cache never returns them from Get).
func newBackedCache(ttl time.Duration) *cache.Cache {
	return cache.New(ttl, ttl*2)
}
