// Package fusebridge is the external FUSE bridge of spec.md §4.F/cmd's
// client CLI: it wraps a fsadapter.Ops in a pathfs.FileSystem so
// cmd/sftpwsfs can hand it to go-fuse's mount machinery. fsadapter itself
// stays kernel-agnostic (see internal/fsadapter's package doc); this
// package is the only place syscall.Errno gets translated to fuse.Status
// and a real kernel mountpoint gets created.
//
// Grounded on the go-fuse convention (documented on RawFileSystem, and
// followed identically by pathfs.FileSystem/nodefs.File) of embedding a
// default no-op implementation and overriding only the methods a given
// filesystem actually supports, rather than hand-writing every method of
// the interface.
package fusebridge

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/hanwen/go-fuse/v2/fuse/nodefs"
	"github.com/hanwen/go-fuse/v2/fuse/pathfs"

	"github.com/marmos91/sftpws/internal/fsadapter"
)

// status converts an Ops syscall.Errno result into a fuse.Status, the
// pair of the wire boundary's error taxonomy at this package's edge
// (spec.md §7 taxonomy already collapsed into syscall.Errno by the time
// it reaches here).
func status(e syscall.Errno) fuse.Status {
	if e == 0 {
		return fuse.OK
	}
	return fuse.Status(e)
}

// fs adapts a fsadapter.Ops to pathfs.FileSystem. Every method not
// overridden here falls back to DefaultFileSystem's ENOSYS behavior —
// this protocol has no extended-attribute or device-node support
// (spec.md §4.F Non-goals), so those are left unimplemented rather than
// faked.
type fs struct {
	pathfs.FileSystem
	ops fsadapter.Ops
}

// New wraps ops as a pathfs.FileSystem ready for pathfs.NewPathNodeFs.
func New(ops fsadapter.Ops) pathfs.FileSystem {
	return &fs{FileSystem: pathfs.NewDefaultFileSystem(), ops: ops}
}

func (f *fs) String() string { return "sftpwsfs" }

func (f *fs) GetAttr(name string, _ *fuse.Context) (*fuse.Attr, fuse.Status) {
	attr, errno := f.ops.Getattr(context.Background(), path(name))
	return attr, status(errno)
}

func (f *fs) Chmod(name string, mode uint32, _ *fuse.Context) fuse.Status {
	return status(f.ops.Chmod(context.Background(), path(name), mode))
}

func (f *fs) Chown(name string, uid, gid uint32, _ *fuse.Context) fuse.Status {
	return status(f.ops.Chown(context.Background(), path(name), uid, gid))
}

func (f *fs) Utimens(name string, atime, mtime *time.Time, _ *fuse.Context) fuse.Status {
	var at, mt time.Time
	if atime != nil {
		at = *atime
	}
	if mtime != nil {
		mt = *mtime
	}
	return status(f.ops.Utimens(context.Background(), path(name), at, mt))
}

func (f *fs) Truncate(name string, size uint64, _ *fuse.Context) fuse.Status {
	return status(f.ops.Truncate(context.Background(), path(name), size))
}

// Access is not modeled by Ops: permission enforcement happens
// server-side over the wire (spec.md §4.E), so the kernel-facing bridge
// admits every access check and lets the actual operation fail with
// EACCES/EPERM if the server rejects it.
func (f *fs) Access(name string, mode uint32, _ *fuse.Context) fuse.Status {
	return fuse.OK
}

func (f *fs) Link(oldName, newName string, _ *fuse.Context) fuse.Status {
	return status(f.ops.Link(context.Background(), path(oldName), path(newName)))
}

func (f *fs) Mkdir(name string, mode uint32, _ *fuse.Context) fuse.Status {
	return status(f.ops.Mkdir(context.Background(), path(name), mode))
}

func (f *fs) Rename(oldName, newName string, _ *fuse.Context) fuse.Status {
	return status(f.ops.Rename(context.Background(), path(oldName), path(newName)))
}

func (f *fs) Rmdir(name string, _ *fuse.Context) fuse.Status {
	return status(f.ops.Rmdir(context.Background(), path(name)))
}

func (f *fs) Unlink(name string, _ *fuse.Context) fuse.Status {
	return status(f.ops.Unlink(context.Background(), path(name)))
}

func (f *fs) Symlink(value, linkName string, _ *fuse.Context) fuse.Status {
	return status(f.ops.Symlink(context.Background(), value, path(linkName)))
}

func (f *fs) Readlink(name string, _ *fuse.Context) (string, fuse.Status) {
	target, errno := f.ops.Readlink(context.Background(), path(name))
	return target, status(errno)
}

func (f *fs) OpenDir(name string, _ *fuse.Context) ([]fuse.DirEntry, fuse.Status) {
	names, errno := f.ops.Readdir(context.Background(), path(name))
	if errno != 0 {
		return nil, status(errno)
	}
	entries := make([]fuse.DirEntry, len(names))
	for i, n := range names {
		entries[i] = fuse.DirEntry{Name: n}
	}
	return entries, fuse.OK
}

func (f *fs) StatFs(name string) *fuse.StatfsOut {
	out, errno := f.ops.Statfs(context.Background(), path(name))
	if errno != 0 {
		return nil
	}
	return out
}

func (f *fs) Open(name string, flags uint32, _ *fuse.Context) (nodefs.File, fuse.Status) {
	fh, errno := f.ops.Open(context.Background(), path(name), int(flags))
	if errno != 0 {
		return nil, status(errno)
	}
	return newFile(f.ops, path(name), fh), fuse.OK
}

func (f *fs) Create(name string, flags uint32, mode uint32, _ *fuse.Context) (nodefs.File, fuse.Status) {
	fh, errno := f.ops.Create(context.Background(), path(name), mode)
	if errno != 0 {
		return nil, status(errno)
	}
	return newFile(f.ops, path(name), fh), fuse.OK
}

func (f *fs) OnMount(nodeFs *pathfs.PathNodeFs) {
	if errno := f.ops.Init(context.Background()); errno != 0 {
		fmt.Printf("sftpwsfs: warning: adapter not ready at mount time: %v\n", errno)
	}
}

// path maps a pathfs-relative name ("" at the root, "a/b" for children)
// onto the leading-slash virtual paths fsadapter.Ops expects.
func path(name string) string {
	if name == "" {
		return "/"
	}
	return "/" + name
}

// file adapts the (path, handle) pair Ops.Open/Create returns to
// nodefs.File, the per-descriptor interface pathfs uses for
// read/write/flush/release.
type file struct {
	nodefs.File
	ops  fsadapter.Ops
	path string
	fh   uint64
}

func newFile(ops fsadapter.Ops, p string, fh uint64) nodefs.File {
	return &file{File: nodefs.NewDefaultFile(), ops: ops, path: p, fh: fh}
}

func (fl *file) String() string { return fmt.Sprintf("sftpwsfs.file(%s)", fl.path) }

func (fl *file) Read(dest []byte, off int64) (fuse.ReadResult, fuse.Status) {
	n, errno := fl.ops.Read(context.Background(), fl.path, fl.fh, dest, off)
	if errno != 0 {
		return nil, status(errno)
	}
	return fuse.ReadResultData(dest[:n]), fuse.OK
}

func (fl *file) Write(data []byte, off int64) (uint32, fuse.Status) {
	n, errno := fl.ops.Write(context.Background(), fl.path, fl.fh, data, off)
	return uint32(n), status(errno)
}

func (fl *file) Flush() fuse.Status {
	return status(fl.ops.Flush(context.Background(), fl.path, fl.fh))
}

func (fl *file) Release() {
	_ = fl.ops.Release(context.Background(), fl.path, fl.fh)
}

func (fl *file) Fsync(flags int) fuse.Status {
	return status(fl.ops.Fsync(context.Background(), fl.path, fl.fh, flags != 0))
}

func (fl *file) Truncate(size uint64) fuse.Status {
	return status(fl.ops.Ftruncate(context.Background(), fl.path, fl.fh, size))
}

func (fl *file) GetAttr(out *fuse.Attr) fuse.Status {
	attr, errno := fl.ops.Fgetattr(context.Background(), fl.path, fl.fh)
	if errno != 0 {
		return status(errno)
	}
	*out = *attr
	return fuse.OK
}

func (fl *file) Chown(uid, gid uint32) fuse.Status {
	return status(fl.ops.Chown(context.Background(), fl.path, uid, gid))
}

func (fl *file) Chmod(perms uint32) fuse.Status {
	return status(fl.ops.Chmod(context.Background(), fl.path, perms))
}

func (fl *file) Utimens(atime, mtime *time.Time) fuse.Status {
	var at, mt time.Time
	if atime != nil {
		at = *atime
	}
	if mtime != nil {
		mt = *mtime
	}
	return status(fl.ops.Utimens(context.Background(), fl.path, at, mt))
}
