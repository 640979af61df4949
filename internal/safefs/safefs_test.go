package safefs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/marmos91/sftpws/internal/proto"
	"github.com/marmos91/sftpws/internal/sftperr"
	"github.com/marmos91/sftpws/internal/wire"
)

func newTestFS(t *testing.T, cfg Config) *FS {
	t.Helper()
	if cfg.VirtualRoot == "" {
		cfg.VirtualRoot = t.TempDir()
	}
	fs, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return fs
}

func TestToRealPathJailsEscapeAttempts(t *testing.T) {
	root := t.TempDir()
	fs := newTestFS(t, Config{VirtualRoot: root})

	cases := map[string]string{
		"/foo":          filepath.Join(root, "foo"),
		"/../etc/passwd": filepath.Join(root, "etc", "passwd"),
		"/a/../../b":     filepath.Join(root, "b"),
		"/":              root,
	}
	for virtual, want := range cases {
		if got := fs.ToRealPath(virtual); got != want {
			t.Errorf("ToRealPath(%q) = %q, want %q", virtual, got, want)
		}
	}
}

func TestToVirtualPathRejectsEscape(t *testing.T) {
	root := t.TempDir()
	fs := newTestFS(t, Config{VirtualRoot: root})

	if got := fs.ToVirtualPath(filepath.Join(root, "sub", "file")); got != "/sub/file" {
		t.Fatalf("got %q", got)
	}
	if got := fs.ToVirtualPath(filepath.Dir(root)); got != "/" {
		t.Fatalf("escaping path should map to \"/\", got %q", got)
	}
}

func TestOpenWriteReadClose(t *testing.T) {
	root := t.TempDir()
	fs := newTestFS(t, Config{VirtualRoot: root})
	ctx := context.Background()

	h, err := fs.Open(ctx, "/file.txt", proto.OpenRead|proto.OpenWrite|proto.OpenCreat, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := fs.Write(ctx, h, 0, []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := fs.Read(ctx, h, 0, 5)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("got %q", data)
	}
	if _, err := fs.Read(ctx, h, 5, 10); !sftperr.IsEOF(err) {
		t.Fatalf("expected EOF past end of file, got %v", err)
	}
	if err := fs.Close(ctx, h); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestReadOnlyBlocksMutation(t *testing.T) {
	root := t.TempDir()
	fs := newTestFS(t, Config{VirtualRoot: root, ReadOnly: true})
	ctx := context.Background()

	if _, err := fs.Open(ctx, "/file.txt", proto.OpenRead|proto.OpenWrite|proto.OpenCreat, nil); !sftperr.IsReadOnly(err) {
		t.Fatalf("expected read-only error, got %v", err)
	}
	if err := fs.Mkdir(ctx, "/d", nil); !sftperr.IsReadOnly(err) {
		t.Fatalf("expected read-only error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "d")); !os.IsNotExist(err) {
		t.Fatalf("read-only Mkdir must not touch the filesystem")
	}
}

func TestHideUIDGIDStripsOutboundFields(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "f"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	fs := newTestFS(t, Config{VirtualRoot: root, HideUIDGID: true})

	attrs, err := fs.Lstat(context.Background(), "/f")
	if err != nil {
		t.Fatalf("Lstat: %v", err)
	}
	if attrs.UID != nil || attrs.GID != nil {
		t.Fatalf("expected uid/gid stripped, got uid=%v gid=%v", attrs.UID, attrs.GID)
	}
}

func TestHandleTableExhaustionReturnsTooManyFiles(t *testing.T) {
	root := t.TempDir()
	fs := newTestFS(t, Config{VirtualRoot: root})
	ctx := context.Background()

	var handles []uint32
	for i := 0; i < 1024; i++ {
		h, err := fs.Opendir(ctx, "/")
		if err != nil {
			t.Fatalf("Opendir %d: %v", i, err)
		}
		handles = append(handles, h)
	}
	if _, err := fs.Opendir(ctx, "/"); err == nil {
		t.Fatalf("expected a too-many-files error, got nil")
	} else if !isCodeErr(err, "ENFILE") {
		t.Fatalf("expected ENFILE, got %v", err)
	}
	for _, h := range handles {
		_ = fs.Close(ctx, h)
	}
}

func isCodeErr(err error, code string) bool {
	sErr, ok := err.(*sftperr.Error)
	return ok && string(sErr.Code) == code
}

func TestFcopySameHandle(t *testing.T) {
	root := t.TempDir()
	fs := newTestFS(t, Config{VirtualRoot: root})
	ctx := context.Background()

	h, err := fs.Open(ctx, "/f", proto.OpenRead|proto.OpenWrite|proto.OpenCreat, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := fs.Write(ctx, h, 0, []byte("abcdef")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := fs.Fcopy(ctx, h, 0, 3, h, 3); err != nil {
		t.Fatalf("Fcopy: %v", err)
	}
	data, err := fs.Read(ctx, h, 0, 6)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "abcabc" {
		t.Fatalf("got %q", data)
	}
}

func TestFcopyAcrossHandles(t *testing.T) {
	root := t.TempDir()
	fs := newTestFS(t, Config{VirtualRoot: root})
	ctx := context.Background()

	src, err := fs.Open(ctx, "/src", proto.OpenRead|proto.OpenWrite|proto.OpenCreat, nil)
	if err != nil {
		t.Fatalf("Open src: %v", err)
	}
	if err := fs.Write(ctx, src, 0, []byte("copy-me")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	dst, err := fs.Open(ctx, "/dst", proto.OpenRead|proto.OpenWrite|proto.OpenCreat, nil)
	if err != nil {
		t.Fatalf("Open dst: %v", err)
	}
	if err := fs.Fcopy(ctx, src, 0, 7, dst, 0); err != nil {
		t.Fatalf("Fcopy: %v", err)
	}
	data, err := fs.Read(ctx, dst, 0, 7)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "copy-me" {
		t.Fatalf("got %q", data)
	}
}

func TestFhashMD5(t *testing.T) {
	root := t.TempDir()
	fs := newTestFS(t, Config{VirtualRoot: root})
	ctx := context.Background()

	h, err := fs.Open(ctx, "/f", proto.OpenRead|proto.OpenWrite|proto.OpenCreat, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := fs.Write(ctx, h, 0, []byte("0123456789")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	alg, digest, err := fs.Fhash(ctx, h, "md5", 0, 10, 5)
	if err != nil {
		t.Fatalf("Fhash: %v", err)
	}
	if alg != "md5" {
		t.Fatalf("got alg %q", alg)
	}
	if len(digest) != 32 {
		t.Fatalf("expected two concatenated 16-byte md5 digests, got %d bytes", len(digest))
	}
}

func TestFhashExtendedAlgorithmSuffix(t *testing.T) {
	root := t.TempDir()
	fs := newTestFS(t, Config{VirtualRoot: root})
	ctx := context.Background()

	h, err := fs.Open(ctx, "/f", proto.OpenRead|proto.OpenWrite|proto.OpenCreat, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := fs.Write(ctx, h, 0, []byte("abcd")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	alg, digest, err := fs.Fhash(ctx, h, "sha256@sftp.ws", 0, 4, 4)
	if err != nil {
		t.Fatalf("Fhash: %v", err)
	}
	if alg != "sha256@sftp.ws" {
		t.Fatalf("expected the requested algorithm name echoed back, got %q", alg)
	}
	if len(digest) != 32 {
		t.Fatalf("got %d bytes", len(digest))
	}
}

func TestRenameDefaultRejectsExistingDestination(t *testing.T) {
	root := t.TempDir()
	fs := newTestFS(t, Config{VirtualRoot: root})
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(root, "a"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "b"), []byte("b"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := fs.Rename(ctx, "/a", "/b", proto.RenameDefault); err == nil {
		t.Fatalf("expected rename onto an existing destination to fail")
	}
	if err := fs.Rename(ctx, "/a", "/b", proto.RenameOverwrite); err != nil {
		t.Fatalf("RenameOverwrite should succeed: %v", err)
	}
}

func TestShutdownClosesOpenHandles(t *testing.T) {
	root := t.TempDir()
	fs := newTestFS(t, Config{VirtualRoot: root})
	ctx := context.Background()

	h, err := fs.Open(ctx, "/f", proto.OpenRead|proto.OpenWrite|proto.OpenCreat, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	fs.Shutdown(ctx)
	if _, err := fs.Read(ctx, h, 0, 1); err == nil {
		t.Fatalf("expected handle to be invalid after Shutdown")
	}
}

func TestSetstatTruncatesAndChmods(t *testing.T) {
	root := t.TempDir()
	fs := newTestFS(t, Config{VirtualRoot: root})
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(root, "f"), []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}
	size := uint64(4)
	perms := uint32(0o600)
	if err := fs.Setstat(ctx, "/f", &wire.Attrs{Size: &size, Perms: &perms}); err != nil {
		t.Fatalf("Setstat: %v", err)
	}
	info, err := os.Stat(filepath.Join(root, "f"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 4 {
		t.Fatalf("expected truncated size 4, got %d", info.Size())
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected mode 0600, got %o", info.Mode().Perm())
	}
}

func TestSetstatIgnoresUIDGIDWhenHidden(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "f"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	fs := newTestFS(t, Config{VirtualRoot: root, HideUIDGID: true})

	uid := uint32(9999)
	if err := fs.Setstat(context.Background(), "/f", &wire.Attrs{UID: &uid}); err != nil {
		t.Fatalf("Setstat should silently ignore uid when hidden, got error: %v", err)
	}
}
