// Package sftpserver implements the server protocol engine of spec.md
// §4.D: one Session per accepted channel, decoding requests, dispatching
// them to a safe filesystem, and encoding responses. Grounded on the
// teacher's decode → dispatch → encode handler shape
// (internal/protocol/nfs/dispatch.go's HandlerResult/dispatch-table
// pattern), adapted from RPC-procedure dispatch to SFTP packet-type
// dispatch.
package sftpserver

import (
	"context"

	"github.com/marmos91/sftpws/internal/proto"
	"github.com/marmos91/sftpws/internal/wire"
)

// VFSStat mirrors sftpclient.VFSStat — the statvfs@openssh.com extended
// reply body (spec.md §4.C/§6).
type VFSStat struct {
	BlockSize    uint64
	FragmentSize uint64
	Blocks       uint64
	BlocksFree   uint64
	BlocksAvail  uint64
	Files        uint64
	FilesFree    uint64
	FilesAvail   uint64
	FSID         uint64
	Flags        uint64
	NameMax      uint64
}

// Backend is the safe-filesystem contract a Session dispatches onto
// (spec.md §4.E, implemented by internal/safefs). Handles are the small
// integers of spec.md §3 Handle ([1, 1024]); handle allocation, busy-slot
// serialization, path jailing, the read-only gate, and UID/GID hiding are
// entirely the Backend's responsibility — Session only wire-encodes and
// decodes.
//
// Every method returns a *sftperr.Error (or nil) as its error value;
// Session translates it into the matching STATUS code.
type Backend interface {
	Open(ctx context.Context, path string, flags proto.OpenFlag, attrs *wire.Attrs) (handle uint32, err error)
	Close(ctx context.Context, handle uint32) error
	Read(ctx context.Context, handle uint32, position uint64, length uint32) ([]byte, error)
	Write(ctx context.Context, handle uint32, position uint64, data []byte) error
	Lstat(ctx context.Context, path string) (*wire.Attrs, error)
	Stat(ctx context.Context, path string) (*wire.Attrs, error)
	Fstat(ctx context.Context, handle uint32) (*wire.Attrs, error)
	Setstat(ctx context.Context, path string, attrs *wire.Attrs) error
	Fsetstat(ctx context.Context, handle uint32, attrs *wire.Attrs) error
	Opendir(ctx context.Context, path string) (handle uint32, err error)
	Readdir(ctx context.Context, handle uint32) (items []wire.Item, eof bool, err error)
	Unlink(ctx context.Context, path string) error
	Mkdir(ctx context.Context, path string, attrs *wire.Attrs) error
	Rmdir(ctx context.Context, path string) error
	Realpath(ctx context.Context, path string) (string, error)
	Rename(ctx context.Context, oldPath, newPath string, flags proto.RenameFlag) error
	Readlink(ctx context.Context, path string) (string, error)
	Symlink(ctx context.Context, target, link string) error
	Link(ctx context.Context, oldPath, newPath string) error
	Fcopy(ctx context.Context, srcHandle uint32, srcPos uint64, length uint64, dstHandle uint32, dstPos uint64) error
	Fhash(ctx context.Context, handle uint32, alg string, pos, length uint64, blockSize uint32) (algUsed string, digest []byte, err error)
	Statvfs(ctx context.Context, path string) (*VFSStat, error)

	// Features reports which extensions this backend/session supports,
	// echoed on VERSION (spec.md §4.C Handshake).
	Features() FeatureSet

	// Shutdown closes every handle this backend still has open, in
	// ascending handle-ID order (spec.md §4.D Shutdown). Called once, when
	// the owning channel closes.
	Shutdown(ctx context.Context)
}

// FeatureSet is the extension table advertised on VERSION.
type FeatureSet struct {
	Hardlink      bool
	PosixRename   bool
	CopyData      bool
	CheckFileHash bool
	StatVFS       bool
}
