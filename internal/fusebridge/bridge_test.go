package fusebridge

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/require"
)

// fakeOps is a minimal fsadapter.Ops double recording calls and letting
// tests script a canned errno/return value per path.
type fakeOps struct {
	attr     *fuse.Attr
	attrErr  syscall.Errno
	names    []string
	namesErr syscall.Errno
	readData []byte
	readErr  syscall.Errno
	gotPaths []string
}

func (f *fakeOps) record(p string) { f.gotPaths = append(f.gotPaths, p) }

func (f *fakeOps) Init(ctx context.Context) syscall.Errno { return 0 }
func (f *fakeOps) Statfs(ctx context.Context, path string) (*fuse.StatfsOut, syscall.Errno) {
	return &fuse.StatfsOut{}, 0
}
func (f *fakeOps) Getattr(ctx context.Context, path string) (*fuse.Attr, syscall.Errno) {
	f.record(path)
	return f.attr, f.attrErr
}
func (f *fakeOps) Fgetattr(ctx context.Context, path string, fh uint64) (*fuse.Attr, syscall.Errno) {
	return f.attr, f.attrErr
}
func (f *fakeOps) Flush(ctx context.Context, path string, fh uint64) syscall.Errno { return 0 }
func (f *fakeOps) Fsync(ctx context.Context, path string, fh uint64, datasync bool) syscall.Errno {
	return 0
}
func (f *fakeOps) Fsyncdir(ctx context.Context, path string, fh uint64, datasync bool) syscall.Errno {
	return 0
}
func (f *fakeOps) Readdir(ctx context.Context, path string) ([]string, syscall.Errno) {
	f.record(path)
	return f.names, f.namesErr
}
func (f *fakeOps) Truncate(ctx context.Context, path string, size uint64) syscall.Errno { return 0 }
func (f *fakeOps) Ftruncate(ctx context.Context, path string, fh uint64, size uint64) syscall.Errno {
	return 0
}
func (f *fakeOps) Readlink(ctx context.Context, path string) (string, syscall.Errno) { return "", 0 }
func (f *fakeOps) Chown(ctx context.Context, path string, uid, gid uint32) syscall.Errno { return 0 }
func (f *fakeOps) Utimens(ctx context.Context, path string, atime, mtime time.Time) syscall.Errno {
	return 0
}
func (f *fakeOps) Chmod(ctx context.Context, path string, mode uint32) syscall.Errno { return 0 }
func (f *fakeOps) Open(ctx context.Context, path string, flags int) (uint64, syscall.Errno) {
	f.record(path)
	return 42, 0
}
func (f *fakeOps) Read(ctx context.Context, path string, fh uint64, dest []byte, offset int64) (int, syscall.Errno) {
	n := copy(dest, f.readData)
	return n, f.readErr
}
func (f *fakeOps) Write(ctx context.Context, path string, fh uint64, data []byte, offset int64) (int, syscall.Errno) {
	return len(data), 0
}
func (f *fakeOps) Release(ctx context.Context, path string, fh uint64) syscall.Errno    { return 0 }
func (f *fakeOps) Releasedir(ctx context.Context, path string, fh uint64) syscall.Errno { return 0 }
func (f *fakeOps) Create(ctx context.Context, path string, mode uint32) (uint64, syscall.Errno) {
	return 7, 0
}
func (f *fakeOps) Unlink(ctx context.Context, path string) syscall.Errno          { return 0 }
func (f *fakeOps) Rename(ctx context.Context, oldPath, newPath string) syscall.Errno { return 0 }
func (f *fakeOps) Link(ctx context.Context, oldPath, newPath string) syscall.Errno   { return 0 }
func (f *fakeOps) Symlink(ctx context.Context, target, link string) syscall.Errno    { return 0 }
func (f *fakeOps) Mkdir(ctx context.Context, path string, mode uint32) syscall.Errno { return 0 }
func (f *fakeOps) Rmdir(ctx context.Context, path string) syscall.Errno              { return 0 }

func TestStatusMapsZeroToOK(t *testing.T) {
	require.Equal(t, fuse.OK, status(0))
}

func TestStatusMapsErrnoThrough(t *testing.T) {
	require.Equal(t, fuse.Status(syscall.ENOENT), status(syscall.ENOENT))
}

func TestPathMapsRootAndChildren(t *testing.T) {
	require.Equal(t, "/", path(""))
	require.Equal(t, "/a/b", path("a/b"))
}

func TestGetAttrTranslatesPathAndErrno(t *testing.T) {
	ops := &fakeOps{attr: &fuse.Attr{Size: 123}, attrErr: 0}
	bridge := New(ops).(*fs)

	attr, st := bridge.GetAttr("dir/file", nil)
	require.Equal(t, fuse.OK, st)
	require.Equal(t, uint64(123), attr.Size)
	require.Equal(t, []string{"/dir/file"}, ops.gotPaths)
}

func TestGetAttrSurfacesErrno(t *testing.T) {
	ops := &fakeOps{attrErr: syscall.ENOENT}
	bridge := New(ops).(*fs)

	_, st := bridge.GetAttr("missing", nil)
	require.Equal(t, fuse.Status(syscall.ENOENT), st)
}

func TestOpenDirMapsNamesToEntries(t *testing.T) {
	ops := &fakeOps{names: []string{"a", "b"}}
	bridge := New(ops).(*fs)

	entries, st := bridge.OpenDir("", nil)
	require.Equal(t, fuse.OK, st)
	require.Len(t, entries, 2)
	require.Equal(t, "a", entries[0].Name)
	require.Equal(t, []string{"/"}, ops.gotPaths)
}

func TestOpenDirSurfacesErrno(t *testing.T) {
	ops := &fakeOps{namesErr: syscall.EACCES}
	bridge := New(ops).(*fs)

	entries, st := bridge.OpenDir("locked", nil)
	require.Nil(t, entries)
	require.Equal(t, fuse.Status(syscall.EACCES), st)
}

func TestAccessAlwaysOK(t *testing.T) {
	bridge := New(&fakeOps{}).(*fs)
	require.Equal(t, fuse.OK, bridge.Access("anything", 0, nil))
}

func TestOpenReturnsFileHandleReadingThroughOps(t *testing.T) {
	ops := &fakeOps{readData: []byte("hello")}
	bridge := New(ops).(*fs)

	f, st := bridge.Open("greeting.txt", 0, nil)
	require.Equal(t, fuse.OK, st)
	require.NotNil(t, f)

	dest := make([]byte, 5)
	res, rst := f.Read(dest, 0)
	require.Equal(t, fuse.OK, rst)
	data, bst := res.Bytes(dest)
	require.Equal(t, fuse.OK, bst)
	require.Equal(t, "hello", string(data))
}
