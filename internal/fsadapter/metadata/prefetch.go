// Package metadata implements the optional bulk metadata prefetch file
// of spec.md §4.F: a sorted, two-NUL-delimited dump of path/attribute
// records that lets a readdir on a still-fresh snapshot skip the
// OPENDIR/READDIR/CLOSE round trip entirely.
package metadata

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hanwen/go-fuse/v2/fuse"
	lz4 "github.com/hungys/go-lz4"
)

// recordDelimiter separates records in the metadata file.
const recordDelimiter = "\x00\x00"

// Record is one parsed prefetch entry.
type Record struct {
	Path      string
	MtimeSec  int64
	AtimeSec  int64
	Blocks    uint64
	Size      uint64
	ModeOctal uint32
}

// Prefetch holds the parsed snapshot and watches its source file for
// changes so freshness can be judged without polling os.Stat on every
// lookup.
type Prefetch struct {
	filePath string
	ttl      time.Duration

	mu       sync.RWMutex
	records  []Record
	loadedAt time.Time

	watcher *fsnotify.Watcher
}

// Load parses filePath (transparently LZ4-decompressing it when it ends
// in ".lz4") and starts watching it for subsequent writes.
func Load(filePath string, ttl time.Duration) (*Prefetch, error) {
	p := &Prefetch{filePath: filePath, ttl: ttl}
	if err := p.reload(); err != nil {
		return nil, err
	}
	if w, err := fsnotify.NewWatcher(); err == nil {
		p.watcher = w
		if err := w.Add(filePath); err == nil {
			go p.watchLoop()
		}
	}
	return p, nil
}

func (p *Prefetch) watchLoop() {
	for event := range p.watcher.Events {
		if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
			_ = p.reload()
		}
	}
}

// Close stops watching the metadata file.
func (p *Prefetch) Close() error {
	if p.watcher != nil {
		return p.watcher.Close()
	}
	return nil
}

func (p *Prefetch) reload() error {
	raw, err := os.ReadFile(p.filePath)
	if err != nil {
		return err
	}
	if strings.HasSuffix(p.filePath, ".lz4") {
		raw, err = decompress(raw)
		if err != nil {
			return err
		}
	}

	recs, err := parseRecords(raw)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.records = recs
	p.loadedAt = time.Now()
	p.mu.Unlock()
	return nil
}

// decompress expands a framed LZ4 payload: a 4-byte little-endian
// uncompressed-size header followed by the compressed block, matching
// how a bulk export tool sizes its output buffer up front.
func decompress(framed []byte) ([]byte, error) {
	if len(framed) < 4 {
		return nil, fmt.Errorf("metadata: truncated lz4 header")
	}
	size := int(framed[0]) | int(framed[1])<<8 | int(framed[2])<<16 | int(framed[3])<<24
	dst := make([]byte, size)
	n, err := lz4.Decompress(framed[4:], dst)
	if err != nil {
		return nil, fmt.Errorf("metadata: lz4 decompress: %w", err)
	}
	return dst[:n], nil
}

// parseRecords splits the two-NUL-delimited record stream and parses
// each "relative_path\0mtime_sec atime_sec blocks size mode" entry. The
// mode field is read as an octal number (e.g. 100644); a symbolic mode
// string such as "-rw-r--r--" is not parsed and yields mode 0.
func parseRecords(raw []byte) ([]Record, error) {
	chunks := bytes.Split(raw, []byte(recordDelimiter))
	recs := make([]Record, 0, len(chunks))
	for _, chunk := range chunks {
		if len(chunk) == 0 {
			continue
		}
		parts := bytes.SplitN(chunk, []byte{0}, 2)
		if len(parts) != 2 {
			continue
		}
		relPath := string(parts[0])
		fields := strings.Fields(string(parts[1]))
		if len(fields) != 5 {
			continue
		}
		mtime, _ := strconv.ParseInt(fields[0], 10, 64)
		atime, _ := strconv.ParseInt(fields[1], 10, 64)
		blocks, _ := strconv.ParseUint(fields[2], 10, 64)
		size, _ := strconv.ParseUint(fields[3], 10, 64)
		mode, _ := strconv.ParseUint(fields[4], 8, 32)
		recs = append(recs, Record{
			Path:      relPath,
			MtimeSec:  mtime,
			AtimeSec:  atime,
			Blocks:    blocks,
			Size:      size,
			ModeOctal: uint32(mode),
		})
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Path < recs[j].Path })
	return recs, nil
}

// Lookup locates dir's immediate children via binary search plus a
// forward walk, calling put for each child's derived attribute, and
// returns their leaf names. ok is false when the snapshot is stale or
// dir has no entries, telling the caller to fall back to a live
// readdir.
func (p *Prefetch) Lookup(dir string, put func(path string, attr *fuse.Attr)) (names []string, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if time.Since(p.loadedAt) > p.ttl {
		return nil, false
	}

	prefix := strings.TrimPrefix(dir, "/")
	var searchPrefix string
	if prefix == "" {
		searchPrefix = ""
	} else {
		searchPrefix = prefix + "/"
	}

	idx := sort.Search(len(p.records), func(i int) bool {
		return p.records[i].Path >= searchPrefix
	})

	var found []string
	for i := idx; i < len(p.records); i++ {
		rec := p.records[i]
		if !strings.HasPrefix(rec.Path, searchPrefix) {
			break
		}
		rest := rec.Path[len(searchPrefix):]
		if rest == "" || strings.Contains(rest, "/") {
			continue // not an immediate child
		}
		found = append(found, rest)
		put("/"+rec.Path, recordToAttr(rec))
	}
	if len(found) == 0 {
		return nil, false
	}
	return found, true
}

func recordToAttr(rec Record) *fuse.Attr {
	return &fuse.Attr{
		Size:   rec.Size,
		Blocks: rec.Blocks,
		Atime:  uint64(rec.AtimeSec),
		Mtime:  uint64(rec.MtimeSec),
		Ctime:  uint64(rec.MtimeSec),
		Mode:   rec.ModeOctal,
		Nlink:  1,
	}
}
