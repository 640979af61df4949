package fsadapter

import (
	"context"
	"sort"
	"sync"

	"github.com/marmos91/sftpws/internal/sftpclient"
	"github.com/marmos91/sftpws/internal/sftperr"
)

// writeRecord is one buffered write awaiting flush.
type writeRecord struct {
	offset int64
	data   []byte
}

// coalesceThreshold is the record count past which writeBuffer.append
// forces a flush (spec.md §4.F write coalescing).
const coalesceThreshold = 50

// writeBuffer accumulates writes for one open file handle and merges
// contiguous records together before sending them over the wire, so a
// caller issuing many small sequential writes (the common case for
// buffered I/O above this layer) costs one wire round trip instead of
// many.
type writeBuffer struct {
	mu      sync.Mutex
	records []writeRecord
}

// append stages a write and reports whether the buffer has crossed the
// coalescing threshold and should be flushed.
func (w *writeBuffer) append(offset int64, data []byte) (shouldFlush bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	w.records = append(w.records, writeRecord{offset: offset, data: cp})
	return len(w.records) > coalesceThreshold
}

// merge sorts the staged records by offset and coalesces any that are
// contiguous (or overlapping, last-write-wins on the overlap) into a
// single record, minimizing the number of wire Write calls flush must
// issue.
func (w *writeBuffer) merge() []writeRecord {
	if len(w.records) == 0 {
		return nil
	}
	arrival := make([]writeRecord, len(w.records))
	for i, r := range w.records {
		arrival[i] = writeRecord{offset: r.offset, data: append([]byte(nil), r.data...)}
	}
	sort.Slice(w.records, func(i, j int) bool {
		return w.records[i].offset < w.records[j].offset
	})

	merged := make([]writeRecord, 0, len(w.records))
	cur := w.records[0]
	for _, rec := range w.records[1:] {
		curEnd := cur.offset + int64(len(cur.data))
		if rec.offset <= curEnd {
			// Contiguous or overlapping: extend/overwrite the tail.
			overlap := curEnd - rec.offset
			if overlap < 0 {
				overlap = 0
			}
			if int64(len(rec.data)) > overlap {
				cur.data = append(cur.data, rec.data[overlap:]...)
			}
			relEnd := rec.offset - cur.offset + int64(len(rec.data))
			if relEnd > int64(len(cur.data)) {
				cur.data = cur.data[:relEnd]
			}
			copy(cur.data[rec.offset-cur.offset:], rec.data)
		} else {
			merged = append(merged, cur)
			cur = rec
		}
	}
	merged = append(merged, cur)

	// Re-apply every record in arrival order so the latest write wins on
	// any overlap, whatever its offset.
	for _, rec := range arrival {
		for i := range merged {
			m := &merged[i]
			if rec.offset >= m.offset && rec.offset+int64(len(rec.data)) <= m.offset+int64(len(m.data)) {
				copy(m.data[rec.offset-m.offset:], rec.data)
				break
			}
		}
	}
	return merged
}

// flush sends every staged record over the wire in ≤chunkSize pieces and
// clears the buffer. ENOENT is swallowed when swallowENOENT is set
// (spec.md §4.F: a file unlinked after being opened for write should not
// surface an error from the implicit flush on release).
func (w *writeBuffer) flush(ctx context.Context, client *sftpclient.Client, h sftpclient.Handle, chunkSize int, swallowENOENT bool) error {
	w.mu.Lock()
	records := w.merge()
	w.records = nil
	w.mu.Unlock()

	for _, rec := range records {
		off := rec.offset
		data := rec.data
		for len(data) > 0 {
			n := len(data)
			if n > chunkSize {
				n = chunkSize
			}
			if err := client.Write(ctx, h, uint64(off), data[:n]); err != nil {
				if swallowENOENT && sftperr.IsNoSuchFile(err) {
					return nil
				}
				return err
			}
			off += int64(n)
			data = data[n:]
		}
	}
	return nil
}
