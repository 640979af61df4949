package safefs

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/marmos91/sftpws/internal/proto"
	"github.com/marmos91/sftpws/internal/sftperr"
	"github.com/marmos91/sftpws/internal/sftpserver"
	"github.com/marmos91/sftpws/internal/wire"
	"github.com/marmos91/sftpws/pkg/bufpool"
)

func toOSFlag(flags proto.OpenFlag) int {
	var f int
	switch {
	case flags&proto.OpenRead != 0 && flags&proto.OpenWrite != 0:
		f = os.O_RDWR
	case flags&proto.OpenWrite != 0:
		f = os.O_WRONLY
	default:
		f = os.O_RDONLY
	}
	if flags&proto.OpenCreat != 0 {
		f |= os.O_CREATE
	}
	if flags&proto.OpenTrunc != 0 {
		f |= os.O_TRUNC
	}
	if flags&proto.OpenAppend != 0 {
		f |= os.O_APPEND
	}
	if flags&proto.OpenExcl != 0 {
		f |= os.O_EXCL
	}
	return f
}

// unixMode packs m's permission bits together with a POSIX file-type bit,
// matching what lstat(2)/stat(2) report on the wire.
func unixMode(m os.FileMode) uint32 {
	perm := uint32(m.Perm())
	switch {
	case m&os.ModeSymlink != 0:
		return perm | 0o120000
	case m&os.ModeDir != 0:
		return perm | 0o040000
	default:
		return perm | 0o100000
	}
}

func (fs *FS) attrsFromInfo(info os.FileInfo) *wire.Attrs {
	size := uint64(info.Size())
	perms := unixMode(info.Mode())
	mtime := uint32(info.ModTime().Unix())
	a := &wire.Attrs{Size: &size, Perms: &perms, ATime: &mtime, MTime: &mtime}
	if !fs.hideUIDGID {
		if st, ok := info.Sys().(*syscall.Stat_t); ok {
			uid, gid := st.Uid, st.Gid
			a.UID = &uid
			a.GID = &gid
		}
	}
	return a
}

func longname(name string, info os.FileInfo) string {
	return fmt.Sprintf("%s %12d %s %s", info.Mode().String(), info.Size(), info.ModTime().Format("Jan 02 15:04"), name)
}

// Open implements Backend.Open (spec.md §4.E read-only gate: any flag
// beyond plain read is rejected without touching the filesystem when the
// backend is read-only).
func (fs *FS) Open(ctx context.Context, path string, flags proto.OpenFlag, attrs *wire.Attrs) (uint32, error) {
	if fs.readOnly && flags&^proto.OpenRead != 0 {
		return 0, sftperr.NewReadOnlyError(path)
	}
	real := fs.ToRealPath(path)
	perm := os.FileMode(0o644)
	if attrs != nil && attrs.Perms != nil {
		perm = os.FileMode(*attrs.Perms & 0o7777)
	}
	f, err := os.OpenFile(real, toOSFlag(flags), perm)
	if err != nil {
		return 0, mapOSError(err, "OPEN", path)
	}
	s := &slot{kind: kindFile, path: path, f: f}
	h, aerr := fs.allocate(s)
	if aerr != nil {
		f.Close()
		return 0, aerr
	}
	return h, nil
}

func (fs *FS) Close(ctx context.Context, h uint32) error {
	s, err := fs.slotFor(h)
	if err != nil {
		return err
	}
	var closeErr error
	s.serialize(func() {
		if s.f != nil {
			closeErr = s.f.Close()
		}
	})
	fs.free(h)
	if closeErr != nil {
		return mapOSError(closeErr, "CLOSE", s.path)
	}
	return nil
}

func (fs *FS) Read(ctx context.Context, h uint32, position uint64, length uint32) ([]byte, error) {
	s, serr := fs.slotFor(h)
	if serr != nil {
		return nil, serr
	}
	buf := make([]byte, length)
	var n int
	var rerr error
	s.serialize(func() {
		n, rerr = s.f.ReadAt(buf, int64(position))
	})
	if rerr != nil && rerr != io.EOF {
		return nil, mapOSError(rerr, "READ", s.path)
	}
	if n == 0 && rerr == io.EOF {
		return nil, sftperr.NewEOFError()
	}
	return buf[:n], nil
}

func (fs *FS) Write(ctx context.Context, h uint32, position uint64, data []byte) error {
	if fs.readOnly {
		return sftperr.NewReadOnlyError("")
	}
	s, serr := fs.slotFor(h)
	if serr != nil {
		return serr
	}
	var werr error
	s.serialize(func() {
		_, werr = s.f.WriteAt(data, int64(position))
	})
	if werr != nil {
		return mapOSError(werr, "WRITE", s.path)
	}
	return nil
}

func (fs *FS) Lstat(ctx context.Context, path string) (*wire.Attrs, error) {
	return fs.statPath(path, os.Lstat)
}

func (fs *FS) Stat(ctx context.Context, path string) (*wire.Attrs, error) {
	return fs.statPath(path, os.Stat)
}

func (fs *FS) statPath(path string, statFn func(string) (os.FileInfo, error)) (*wire.Attrs, error) {
	real := fs.ToRealPath(path)
	info, err := statFn(real)
	if err != nil {
		return nil, mapOSError(err, "STAT", path)
	}
	return fs.attrsFromInfo(info), nil
}

func (fs *FS) Fstat(ctx context.Context, h uint32) (*wire.Attrs, error) {
	s, serr := fs.slotFor(h)
	if serr != nil {
		return nil, serr
	}
	var info os.FileInfo
	var err error
	s.serialize(func() { info, err = s.f.Stat() })
	if err != nil {
		return nil, mapOSError(err, "FSTAT", s.path)
	}
	return fs.attrsFromInfo(info), nil
}

func (fs *FS) Setstat(ctx context.Context, path string, attrs *wire.Attrs) error {
	if fs.readOnly {
		return sftperr.NewReadOnlyError(path)
	}
	real := fs.ToRealPath(path)
	if err := fs.applyAttrs(real, attrs); err != nil {
		return mapOSError(err, "SETSTAT", path)
	}
	return nil
}

func (fs *FS) Fsetstat(ctx context.Context, h uint32, attrs *wire.Attrs) error {
	if fs.readOnly {
		return sftperr.NewReadOnlyError("")
	}
	s, serr := fs.slotFor(h)
	if serr != nil {
		return serr
	}
	var err error
	s.serialize(func() { err = fs.applyAttrsFile(s.f, attrs) })
	if err != nil {
		return mapOSError(err, "FSETSTAT", s.path)
	}
	return nil
}

// applyAttrs and applyAttrsFile silently drop inbound uid/gid fields when
// hideUIDGID is set (spec.md §4.E UID/GID hiding), rather than rejecting
// the request.
func (fs *FS) applyAttrs(real string, attrs *wire.Attrs) error {
	if attrs == nil {
		return nil
	}
	if attrs.Size != nil {
		if err := os.Truncate(real, int64(*attrs.Size)); err != nil {
			return err
		}
	}
	if attrs.Perms != nil {
		if err := os.Chmod(real, os.FileMode(*attrs.Perms&0o7777)); err != nil {
			return err
		}
	}
	if !fs.hideUIDGID && (attrs.UID != nil || attrs.GID != nil) {
		uid, gid := -1, -1
		if attrs.UID != nil {
			uid = int(*attrs.UID)
		}
		if attrs.GID != nil {
			gid = int(*attrs.GID)
		}
		if err := os.Chown(real, uid, gid); err != nil {
			return err
		}
	}
	if attrs.ATime != nil || attrs.MTime != nil {
		atime, mtime := time.Now(), time.Now()
		if attrs.ATime != nil {
			atime = time.Unix(int64(*attrs.ATime), 0)
		}
		if attrs.MTime != nil {
			mtime = time.Unix(int64(*attrs.MTime), 0)
		}
		if err := os.Chtimes(real, atime, mtime); err != nil {
			return err
		}
	}
	return nil
}

func (fs *FS) applyAttrsFile(f *os.File, attrs *wire.Attrs) error {
	if attrs == nil {
		return nil
	}
	if attrs.Size != nil {
		if err := f.Truncate(int64(*attrs.Size)); err != nil {
			return err
		}
	}
	if attrs.Perms != nil {
		if err := f.Chmod(os.FileMode(*attrs.Perms & 0o7777)); err != nil {
			return err
		}
	}
	if !fs.hideUIDGID && (attrs.UID != nil || attrs.GID != nil) {
		uid, gid := -1, -1
		if attrs.UID != nil {
			uid = int(*attrs.UID)
		}
		if attrs.GID != nil {
			gid = int(*attrs.GID)
		}
		if err := f.Chown(uid, gid); err != nil {
			return err
		}
	}
	if attrs.ATime != nil || attrs.MTime != nil {
		atime, mtime := time.Now(), time.Now()
		if attrs.ATime != nil {
			atime = time.Unix(int64(*attrs.ATime), 0)
		}
		if attrs.MTime != nil {
			mtime = time.Unix(int64(*attrs.MTime), 0)
		}
		if err := os.Chtimes(f.Name(), atime, mtime); err != nil {
			return err
		}
	}
	return nil
}

func (fs *FS) Opendir(ctx context.Context, path string) (uint32, error) {
	real := fs.ToRealPath(path)
	entries, err := os.ReadDir(real)
	if err != nil {
		return 0, mapOSError(err, "OPENDIR", path)
	}
	s := &slot{kind: kindDir, path: path, dirEntries: entries}
	h, aerr := fs.allocate(s)
	if aerr != nil {
		return 0, aerr
	}
	return h, nil
}

// readdirBatch bounds how many entries a single READDIR response carries;
// the client's dir cache drains the handle across as many calls as it
// takes to reach EOF.
const readdirBatch = 256

func (fs *FS) Readdir(ctx context.Context, h uint32) ([]wire.Item, bool, error) {
	s, serr := fs.slotFor(h)
	if serr != nil {
		return nil, false, serr
	}
	var items []wire.Item
	var eof bool
	s.serialize(func() {
		if s.dirPos >= len(s.dirEntries) {
			eof = true
			return
		}
		end := s.dirPos + readdirBatch
		if end > len(s.dirEntries) {
			end = len(s.dirEntries)
		}
		for _, de := range s.dirEntries[s.dirPos:end] {
			info, ierr := de.Info()
			if ierr != nil {
				continue
			}
			items = append(items, wire.Item{
				Filename: de.Name(),
				Longname: longname(de.Name(), info),
				Attrs:    fs.attrsFromInfo(info),
			})
		}
		s.dirPos = end
	})
	return items, eof, nil
}

func (fs *FS) Unlink(ctx context.Context, path string) error {
	if fs.readOnly {
		return sftperr.NewReadOnlyError(path)
	}
	if err := os.Remove(fs.ToRealPath(path)); err != nil {
		return mapOSError(err, "REMOVE", path)
	}
	return nil
}

func (fs *FS) Mkdir(ctx context.Context, path string, attrs *wire.Attrs) error {
	if fs.readOnly {
		return sftperr.NewReadOnlyError(path)
	}
	perm := os.FileMode(0o755)
	if attrs != nil && attrs.Perms != nil {
		perm = os.FileMode(*attrs.Perms & 0o7777)
	}
	if err := os.Mkdir(fs.ToRealPath(path), perm); err != nil {
		return mapOSError(err, "MKDIR", path)
	}
	return nil
}

func (fs *FS) Rmdir(ctx context.Context, path string) error {
	if fs.readOnly {
		return sftperr.NewReadOnlyError(path)
	}
	if err := os.Remove(fs.ToRealPath(path)); err != nil {
		return mapOSError(err, "RMDIR", path)
	}
	return nil
}

func (fs *FS) Realpath(ctx context.Context, path string) (string, error) {
	real := fs.ToRealPath(path)
	resolved, err := filepath.EvalSymlinks(real)
	if err != nil {
		resolved = real
	}
	return fs.ToVirtualPath(resolved), nil
}

func (fs *FS) Rename(ctx context.Context, oldPath, newPath string, flags proto.RenameFlag) error {
	if fs.readOnly {
		return sftperr.NewReadOnlyError(oldPath)
	}
	oldReal := fs.ToRealPath(oldPath)
	newReal := fs.ToRealPath(newPath)
	if flags == proto.RenameDefault {
		if _, err := os.Lstat(newReal); err == nil {
			return sftperr.NewFailureError("destination already exists").WithCommand("RENAME").WithPath(newPath)
		}
	}
	if err := os.Rename(oldReal, newReal); err != nil {
		return mapOSError(err, "RENAME", oldPath)
	}
	return nil
}

func (fs *FS) Readlink(ctx context.Context, path string) (string, error) {
	target, err := os.Readlink(fs.ToRealPath(path))
	if err != nil {
		return "", mapOSError(err, "READLINK", path)
	}
	return target, nil
}

func (fs *FS) Symlink(ctx context.Context, target, link string) error {
	if fs.readOnly {
		return sftperr.NewReadOnlyError(link)
	}
	if err := os.Symlink(target, fs.ToRealPath(link)); err != nil {
		return mapOSError(err, "SYMLINK", link)
	}
	return nil
}

func (fs *FS) Link(ctx context.Context, oldPath, newPath string) error {
	if fs.readOnly {
		return sftperr.NewReadOnlyError(oldPath)
	}
	if err := os.Link(fs.ToRealPath(oldPath), fs.ToRealPath(newPath)); err != nil {
		return mapOSError(err, "LINK", oldPath)
	}
	return nil
}

const fcopyChunk = 1 << 20

// Fcopy implements the copy-data extension (spec.md §4.E fcopy): a
// read-then-write loop in ≤1MiB chunks, since no library in this
// module's dependency corpus wraps a platform copy syscall (e.g.
// copy_file_range). The chunk buffer comes from bufpool's large tier
// rather than a fresh allocation per call. Both handles are acquired
// busy before the loop starts; when source and destination are the
// same handle it is acquired once.
func (fs *FS) Fcopy(ctx context.Context, srcH uint32, srcPos uint64, length uint64, dstH uint32, dstPos uint64) error {
	if fs.readOnly {
		return sftperr.NewReadOnlyError("")
	}
	srcSlot, serr := fs.slotFor(srcH)
	if serr != nil {
		return serr
	}
	dstSlot, derr := fs.slotFor(dstH)
	if derr != nil {
		return derr
	}

	var opErr error
	task := func() {
		remaining := length
		sp, dp := int64(srcPos), int64(dstPos)
		buf := bufpool.Get(fcopyChunk)
		defer bufpool.Put(buf)
		for remaining > 0 {
			n := fcopyChunk
			if uint64(n) > remaining {
				n = int(remaining)
			}
			read, rerr := srcSlot.f.ReadAt(buf[:n], sp)
			if read > 0 {
				if _, werr := dstSlot.f.WriteAt(buf[:read], dp); werr != nil {
					opErr = werr
					return
				}
				sp += int64(read)
				dp += int64(read)
				remaining -= uint64(read)
			}
			if rerr != nil {
				if rerr == io.EOF || read < n {
					return
				}
				opErr = rerr
				return
			}
		}
	}

	if srcH == dstH {
		srcSlot.serialize(task)
	} else {
		first, second := srcSlot, dstSlot
		if dstH < srcH {
			first, second = dstSlot, srcSlot
		}
		first.serialize(func() {
			second.serialize(task)
		})
	}
	if opErr != nil {
		return mapOSError(opErr, "FCOPY", srcSlot.path)
	}
	return nil
}

var hashFactories = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha224": sha256.New224,
	"sha256": sha256.New,
	"sha384": sha512.New384,
	"sha512": sha512.New,
	"crc32":  func() hash.Hash { return crc32.NewIEEE() },
}

// Fhash implements the check-file-handle extension (spec.md §4.E fhash):
// per-block digest computation over [pos, pos+length). A trailing
// `*@sftp.ws` suffix selects an implementation-specific algorithm name,
// stripped before lookup but echoed back unchanged.
func (fs *FS) Fhash(ctx context.Context, h uint32, alg string, pos, length uint64, blockSize uint32) (string, []byte, error) {
	s, serr := fs.slotFor(h)
	if serr != nil {
		return "", nil, serr
	}
	base := strings.TrimSuffix(alg, "@sftp.ws")
	newHash, ok := hashFactories[base]
	if !ok {
		return "", nil, sftperr.NewNotSupportedError(fmt.Sprintf("fhash algorithm %q", alg))
	}
	if blockSize == 0 {
		return "", nil, sftperr.NewIOError("Unable to read data")
	}

	var digest []byte
	var opErr error
	s.serialize(func() {
		buf := bufpool.Get(int(blockSize))
		defer bufpool.Put(buf)
		remaining := length
		offset := int64(pos)
		for remaining > 0 {
			n := uint64(blockSize)
			if n > remaining {
				n = remaining
			}
			read, rerr := s.f.ReadAt(buf[:n], offset)
			if uint64(read) != n {
				opErr = sftperr.NewIOError("Unable to read data")
				return
			}
			if rerr != nil && rerr != io.EOF {
				opErr = rerr
				return
			}
			hasher := newHash()
			hasher.Write(buf[:n])
			digest = append(digest, hasher.Sum(nil)...)
			offset += int64(n)
			remaining -= n
		}
	})
	if opErr != nil {
		if sErr, ok := opErr.(*sftperr.Error); ok {
			return "", nil, sErr
		}
		return "", nil, mapOSError(opErr, "FHASH", s.path)
	}
	return alg, digest, nil
}

func (fs *FS) Statvfs(ctx context.Context, path string) (*sftpserver.VFSStat, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(fs.ToRealPath(path), &st); err != nil {
		return nil, mapOSError(err, "STATVFS", path)
	}
	return &sftpserver.VFSStat{
		BlockSize:    uint64(st.Bsize),
		FragmentSize: uint64(st.Bsize),
		Blocks:       st.Blocks,
		BlocksFree:   st.Bfree,
		BlocksAvail:  st.Bavail,
		Files:        st.Files,
		FilesFree:    st.Ffree,
		FilesAvail:   st.Ffree,
		NameMax:      uint64(st.Namelen),
	}, nil
}

// Shutdown closes every still-open handle in ascending order (spec.md
// §4.D Shutdown).
func (fs *FS) Shutdown(ctx context.Context) {
	handles := fs.openHandles()
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	for _, h := range handles {
		_ = fs.Close(ctx, h)
	}
}
