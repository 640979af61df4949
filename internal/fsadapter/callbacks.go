package fsadapter

import (
	"context"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/marmos91/sftpws/internal/proto"
	"github.com/marmos91/sftpws/internal/wire"
)

// Init implements Ops.Init: the wire handshake already happened during
// connectOnce, so this is just a readiness check.
func (a *Adapter) Init(ctx context.Context) syscall.Errno {
	_, errno := a.guard()
	return errno
}

// Statfs implements Ops.Statfs.
func (a *Adapter) Statfs(ctx context.Context, path string) (*fuse.StatfsOut, syscall.Errno) {
	client, errno := a.guard()
	if errno != 0 {
		return nil, errno
	}
	vfs, err := client.Statvfs(ctx, path)
	if err != nil {
		return nil, toErrno(err)
	}
	return &fuse.StatfsOut{
		Blocks:  vfs.Blocks,
		Bfree:   vfs.BlocksFree,
		Bavail:  vfs.BlocksAvail,
		Files:   vfs.Files,
		Ffree:   vfs.FilesFree,
		Bsize:   uint32(vfs.BlockSize),
		NameLen: uint32(vfs.NameMax),
		Frsize:  uint32(vfs.FragmentSize),
	}, 0
}

// Getattr implements Ops.Getattr, consulting and populating the
// attribute cache (including negative caching of missing paths).
func (a *Adapter) Getattr(ctx context.Context, path string) (*fuse.Attr, syscall.Errno) {
	client, errno := a.guard()
	if errno != 0 {
		return nil, errno
	}
	if path == a.hidePath {
		return nil, syscall.ENOENT
	}
	if attr, errno, found := a.attrCacheGet(path); found {
		return attr, errno
	}

	attrs, err := client.Lstat(ctx, path)
	if err != nil {
		e := toErrno(err)
		if e == syscall.ENOENT {
			a.attrCachePutNegative(path, e)
		}
		return nil, e
	}
	fa := toFuseAttr(attrs, "")
	a.attrCachePut(path, fa)
	if a.tracker != nil {
		a.tracker.Touch(path, int64(fa.Mtime))
	}
	return fa, 0
}

// Fgetattr implements Ops.Fgetattr via the handle's fstat, bypassing the
// path-keyed attribute cache since the caller already holds an open
// reference.
func (a *Adapter) Fgetattr(ctx context.Context, path string, fh uint64) (*fuse.Attr, syscall.Errno) {
	client, errno := a.guard()
	if errno != 0 {
		return nil, errno
	}
	e := a.fds.get(fh)
	if e == nil {
		return nil, syscall.EBADF
	}
	attrs, err := client.Fstat(ctx, e.handle)
	if err != nil {
		return nil, toErrno(err)
	}
	fa := toFuseAttr(attrs, "")
	a.attrCachePut(path, fa)
	return fa, 0
}

// Flush implements Ops.Flush: push any coalesced writes for fh to the
// wire without releasing the handle.
func (a *Adapter) Flush(ctx context.Context, path string, fh uint64) syscall.Errno {
	client, errno := a.guard()
	if errno != 0 {
		return errno
	}
	e := a.fds.get(fh)
	if e == nil {
		return syscall.EBADF
	}
	if e.wbuf == nil {
		return 0
	}
	if err := e.wbuf.flush(ctx, client, e.handle, a.ioChunkSize, false); err != nil {
		return toErrno(err)
	}
	a.invalidate(path)
	return 0
}

// Fsync implements Ops.Fsync identically to Flush: the protocol has no
// separate durability barrier beyond "the write landed server-side".
func (a *Adapter) Fsync(ctx context.Context, path string, fh uint64, datasync bool) syscall.Errno {
	return a.Flush(ctx, path, fh)
}

// Fsyncdir implements Ops.Fsyncdir: directories are never buffered, so
// this is a no-op once connected.
func (a *Adapter) Fsyncdir(ctx context.Context, path string, fh uint64, datasync bool) syscall.Errno {
	_, errno := a.guard()
	return errno
}

// Readdir implements Ops.Readdir, consulting the directory-listing cache
// and the bulk metadata prefetch before falling back to OPENDIR/READDIR.
func (a *Adapter) Readdir(ctx context.Context, path string) ([]string, syscall.Errno) {
	client, errno := a.guard()
	if errno != 0 {
		return nil, errno
	}
	if names, ok := a.dirCacheGet(path); ok {
		return names, 0
	}

	if a.metadata != nil {
		if names, ok := a.metadata.Lookup(path, a.attrCachePut); ok {
			a.dirCachePut(path, names)
			return names, 0
		}
	}

	h, err := client.Opendir(ctx, path)
	if err != nil {
		return nil, toErrno(err)
	}
	defer client.CloseHandle(ctx, h)

	var names []string
	for {
		items, eof, err := client.Readdir(ctx, h)
		if err != nil {
			return nil, toErrno(err)
		}
		for _, it := range items {
			names = append(names, it.Filename)
			if it.Attrs != nil {
				childPath := joinPath(path, it.Filename)
				a.attrCachePut(childPath, toFuseAttr(it.Attrs, it.Longname))
			}
		}
		if eof {
			break
		}
	}
	a.dirCachePut(path, names)
	return names, 0
}

// Truncate implements Ops.Truncate.
func (a *Adapter) Truncate(ctx context.Context, path string, size uint64) syscall.Errno {
	client, errno := a.guard()
	if errno != 0 {
		return errno
	}
	if err := client.Setstat(ctx, path, &wire.Attrs{Size: &size}); err != nil {
		return toErrno(err)
	}
	a.invalidate(path)
	return 0
}

// Ftruncate implements Ops.Ftruncate.
func (a *Adapter) Ftruncate(ctx context.Context, path string, fh uint64, size uint64) syscall.Errno {
	client, errno := a.guard()
	if errno != 0 {
		return errno
	}
	e := a.fds.get(fh)
	if e == nil {
		return syscall.EBADF
	}
	if err := client.Fsetstat(ctx, e.handle, &wire.Attrs{Size: &size}); err != nil {
		return toErrno(err)
	}
	a.invalidate(path)
	return 0
}

// Readlink implements Ops.Readlink, consulting the link cache.
func (a *Adapter) Readlink(ctx context.Context, path string) (string, syscall.Errno) {
	client, errno := a.guard()
	if errno != 0 {
		return "", errno
	}
	if target, ok := a.linkCacheGet(path); ok {
		return target, 0
	}
	target, err := client.Readlink(ctx, path)
	if err != nil {
		return "", toErrno(err)
	}
	a.linkCachePut(path, target)
	return target, 0
}

// Chown implements Ops.Chown.
func (a *Adapter) Chown(ctx context.Context, path string, uid, gid uint32) syscall.Errno {
	client, errno := a.guard()
	if errno != 0 {
		return errno
	}
	if err := client.Setstat(ctx, path, &wire.Attrs{UID: &uid, GID: &gid}); err != nil {
		return toErrno(err)
	}
	a.invalidate(path)
	return 0
}

// Utimens implements Ops.Utimens.
func (a *Adapter) Utimens(ctx context.Context, path string, atime, mtime time.Time) syscall.Errno {
	client, errno := a.guard()
	if errno != 0 {
		return errno
	}
	at := uint32(atime.Unix())
	mt := uint32(mtime.Unix())
	if err := client.Setstat(ctx, path, &wire.Attrs{ATime: &at, MTime: &mt}); err != nil {
		return toErrno(err)
	}
	a.invalidate(path)
	return 0
}

// Chmod implements Ops.Chmod.
func (a *Adapter) Chmod(ctx context.Context, path string, mode uint32) syscall.Errno {
	client, errno := a.guard()
	if errno != 0 {
		return errno
	}
	if err := client.Setstat(ctx, path, &wire.Attrs{Perms: &mode}); err != nil {
		return toErrno(err)
	}
	a.invalidate(path)
	return 0
}

// Open implements Ops.Open.
func (a *Adapter) Open(ctx context.Context, path string, flags int) (uint64, syscall.Errno) {
	client, errno := a.guard()
	if errno != 0 {
		return 0, errno
	}
	h, err := client.Open(ctx, path, toWireOpenFlag(flags), nil)
	if err != nil {
		return 0, toErrno(err)
	}
	fh := a.fds.allocate(path, h)
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		a.fds.get(fh).wbuf = &writeBuffer{}
	}
	return fh, 0
}

// Create implements Ops.Create.
func (a *Adapter) Create(ctx context.Context, path string, mode uint32) (uint64, syscall.Errno) {
	client, errno := a.guard()
	if errno != 0 {
		return 0, errno
	}
	perms := mode
	h, err := client.Open(ctx, path, proto.OpenRead|proto.OpenWrite|proto.OpenCreat|proto.OpenTrunc, &wire.Attrs{Perms: &perms})
	if err != nil {
		return 0, toErrno(err)
	}
	fh := a.fds.allocate(path, h)
	a.fds.get(fh).wbuf = &writeBuffer{}
	a.invalidate(path)
	return fh, 0
}

// defaultChunkSize caps a single wire Read/Write call when Config.IOChunkSize
// is unset, matching safefs's fcopy chunk budget so no frame exceeds the
// protocol's comfortable payload size.
const defaultChunkSize = 1 << 20

// Read implements Ops.Read: loop issuing ≤ioChunkSize wire reads until
// dest is filled or the server reports EOF.
func (a *Adapter) Read(ctx context.Context, path string, fh uint64, dest []byte, offset int64) (int, syscall.Errno) {
	client, errno := a.guard()
	if errno != 0 {
		return 0, errno
	}
	e := a.fds.get(fh)
	if e == nil {
		return 0, syscall.EBADF
	}

	total := 0
	for total < len(dest) {
		want := len(dest) - total
		if want > a.ioChunkSize {
			want = a.ioChunkSize
		}
		data, err := client.Read(ctx, e.handle, uint64(offset)+uint64(total), uint32(want))
		if err != nil {
			if errno := toErrno(err); errno == 0 {
				break // EOF
			} else if total == 0 {
				return 0, errno
			} else {
				break
			}
		}
		n := copy(dest[total:], data)
		total += n
		if n < want {
			break
		}
	}
	return total, 0
}

// Write implements Ops.Write: stage into the per-fd coalescing buffer,
// flushing when the record threshold is crossed.
func (a *Adapter) Write(ctx context.Context, path string, fh uint64, data []byte, offset int64) (int, syscall.Errno) {
	client, errno := a.guard()
	if errno != 0 {
		return 0, errno
	}
	e := a.fds.get(fh)
	if e == nil {
		return 0, syscall.EBADF
	}
	if e.wbuf == nil {
		e.wbuf = &writeBuffer{}
	}
	if e.wbuf.append(offset, data) {
		if err := e.wbuf.flush(ctx, client, e.handle, a.ioChunkSize, false); err != nil {
			return 0, toErrno(err)
		}
	}
	a.invalidate(path)
	return len(data), 0
}

// Release implements Ops.Release: flush any buffered writes (swallowing
// ENOENT, since the file may have been unlinked while open) and close
// the wire handle.
func (a *Adapter) Release(ctx context.Context, path string, fh uint64) syscall.Errno {
	client, errno := a.guard()
	if errno != 0 {
		return errno
	}
	e := a.fds.release(fh)
	if e == nil {
		return syscall.EBADF
	}
	if e.wbuf != nil {
		if err := e.wbuf.flush(ctx, client, e.handle, a.ioChunkSize, true); err != nil {
			return toErrno(err)
		}
	}
	if err := client.CloseHandle(ctx, e.handle); err != nil {
		return toErrno(err)
	}
	return 0
}

// Releasedir implements Ops.Releasedir. Readdir is stateless (it never
// allocates a wire directory handle, answering from cache or a
// self-contained OPENDIR/READDIR/CLOSE round trip), so there is nothing
// to release here beyond the readiness check.
func (a *Adapter) Releasedir(ctx context.Context, path string, fh uint64) syscall.Errno {
	_, errno := a.guard()
	return errno
}

// Unlink implements Ops.Unlink.
func (a *Adapter) Unlink(ctx context.Context, path string) syscall.Errno {
	client, errno := a.guard()
	if errno != 0 {
		return errno
	}
	if err := client.Unlink(ctx, path); err != nil {
		return toErrno(err)
	}
	a.invalidate(path)
	return 0
}

// Rename implements Ops.Rename, requesting overwrite semantics (the
// kernel has already resolved POSIX rename's implicit-replace rule by
// the time this callback fires).
func (a *Adapter) Rename(ctx context.Context, oldPath, newPath string) syscall.Errno {
	client, errno := a.guard()
	if errno != 0 {
		return errno
	}
	if err := client.Rename(ctx, oldPath, newPath, proto.RenameOverwrite); err != nil {
		return toErrno(err)
	}
	a.invalidate(oldPath)
	a.invalidate(newPath)
	return 0
}

// Link implements Ops.Link.
func (a *Adapter) Link(ctx context.Context, oldPath, newPath string) syscall.Errno {
	client, errno := a.guard()
	if errno != 0 {
		return errno
	}
	if err := client.Link(ctx, oldPath, newPath); err != nil {
		return toErrno(err)
	}
	a.invalidate(newPath)
	return 0
}

// Symlink implements Ops.Symlink.
func (a *Adapter) Symlink(ctx context.Context, target, link string) syscall.Errno {
	client, errno := a.guard()
	if errno != 0 {
		return errno
	}
	if err := client.Symlink(ctx, target, link); err != nil {
		return toErrno(err)
	}
	a.invalidate(link)
	return 0
}

// Mkdir implements Ops.Mkdir.
func (a *Adapter) Mkdir(ctx context.Context, path string, mode uint32) syscall.Errno {
	client, errno := a.guard()
	if errno != 0 {
		return errno
	}
	perms := mode
	if err := client.Mkdir(ctx, path, &wire.Attrs{Perms: &perms}); err != nil {
		return toErrno(err)
	}
	a.invalidate(path)
	return 0
}

// Rmdir implements Ops.Rmdir.
func (a *Adapter) Rmdir(ctx context.Context, path string) syscall.Errno {
	client, errno := a.guard()
	if errno != 0 {
		return errno
	}
	if err := client.Rmdir(ctx, path); err != nil {
		return toErrno(err)
	}
	a.invalidate(path)
	return 0
}

// toWireOpenFlag maps a POSIX open(2) flag int onto proto.OpenFlag.
func toWireOpenFlag(flags int) proto.OpenFlag {
	var f proto.OpenFlag
	switch flags & syscall.O_ACCMODE {
	case syscall.O_RDONLY:
		f |= proto.OpenRead
	case syscall.O_WRONLY:
		f |= proto.OpenWrite
	case syscall.O_RDWR:
		f |= proto.OpenRead | proto.OpenWrite
	}
	if flags&syscall.O_APPEND != 0 {
		f |= proto.OpenAppend
	}
	if flags&syscall.O_CREAT != 0 {
		f |= proto.OpenCreat
	}
	if flags&syscall.O_TRUNC != 0 {
		f |= proto.OpenTrunc
	}
	if flags&syscall.O_EXCL != 0 {
		f |= proto.OpenExcl
	}
	return f
}

func joinPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}
