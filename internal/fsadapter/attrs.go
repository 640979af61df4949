package fsadapter

import (
	"strconv"
	"strings"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/marmos91/sftpws/internal/wire"
)

// blocksExtKey is the EXTENDED attribute key a server may set to carry
// the block count directly, bypassing the longname-parsing fallback.
const blocksExtKey = "blocks"

// toFuseAttr converts a wire.Attrs plus its accompanying longname text
// into the fuse.Attr value the kernel callback surface exchanges
// (spec.md §4.F "Attribute post-processing"): ctime is synthesized as
// mtime since the wire protocol carries no ctime field, and blocks is
// read from an EXTENDED attribute if present, else parsed out of
// longname's first numeric field.
func toFuseAttr(attrs *wire.Attrs, longname string) *fuse.Attr {
	out := &fuse.Attr{Nlink: 1}

	if attrs.Size != nil {
		out.Size = *attrs.Size
	}
	if attrs.Perms != nil {
		out.Mode = *attrs.Perms
	}
	if attrs.ATime != nil {
		out.Atime = uint64(*attrs.ATime)
	}
	if attrs.MTime != nil {
		out.Mtime = uint64(*attrs.MTime)
		out.Ctime = out.Mtime
	}
	if attrs.UID != nil {
		out.Owner.Uid = *attrs.UID
	}
	if attrs.GID != nil {
		out.Owner.Gid = *attrs.GID
	}

	out.Blocks = blocksFromAttrs(attrs, longname, out.Size)
	return out
}

// blocksFromAttrs implements the blocks-derivation fallback chain: an
// explicit EXTENDED "blocks" attribute wins, then the first numeric
// field in longname, then a 512-byte-block estimate from size.
func blocksFromAttrs(attrs *wire.Attrs, longname string, size uint64) uint64 {
	for _, ext := range attrs.Extended {
		if ext.Key != blocksExtKey {
			continue
		}
		if n, err := strconv.ParseUint(strings.TrimSpace(ext.Value), 10, 64); err == nil {
			return n
		}
	}

	for _, field := range strings.Fields(longname) {
		if n, err := strconv.ParseUint(field, 10, 64); err == nil {
			return n
		}
	}

	return (size + 511) / 512
}
