// Package safefs implements the safe filesystem wrapper of spec.md §4.E:
// virtual-root jailing, read-only gating, UID/GID hiding, handle
// allocation with per-handle serialization, and the fcopy/fhash
// extensions. FS implements sftpserver.Backend directly against the host
// POSIX filesystem via os/syscall — the teacher's storage layer talks to
// Postgres, not local disk, so this package is grounded in the teacher's
// error-wrapping idiom (a typed error constructed from the low-level
// failure, never the raw error passed upward) rather than its file I/O,
// which has no local-disk equivalent in the corpus.
package safefs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/marmos91/sftpws/internal/pathutil"
	"github.com/marmos91/sftpws/internal/sftperr"
	"github.com/marmos91/sftpws/internal/sftpserver"
)

// Config mirrors the server-side options of spec.md §6's table.
type Config struct {
	VirtualRoot string
	ReadOnly    bool
	HideUIDGID  bool
}

// FS is the safe filesystem wrapper, one instance per session (spec.md §3
// Session: "On the server, binds a safe filesystem, ... a virtual root,
// read-only flag, hide-UID-GID flag").
type FS struct {
	root       string
	readOnly   bool
	hideUIDGID bool

	mu     sync.Mutex
	slots  [1025]*slot
	cursor int
}

// New resolves root to an absolute path and constructs an FS jailed to
// it. root must already exist and be a directory.
func New(cfg Config) (*FS, error) {
	root := cfg.VirtualRoot
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("safefs: resolve working directory: %w", err)
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("safefs: resolve virtual root %q: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("safefs: virtual root %q: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("safefs: virtual root %q is not a directory", abs)
	}
	return &FS{
		root:       filepath.Clean(abs),
		readOnly:   cfg.ReadOnly,
		hideUIDGID: cfg.HideUIDGID,
	}, nil
}

// Features reports the extensions this backend always supports; safefs
// implements every optional extension the protocol defines.
func (fs *FS) Features() sftpserver.FeatureSet {
	return sftpserver.FeatureSet{
		Hardlink:      true,
		PosixRename:   true,
		CopyData:      true,
		CheckFileHash: true,
		StatVFS:       true,
	}
}

// ToRealPath resolves a client-given virtual path into an absolute real
// path confined to the root (spec.md §4.E Purpose). The virtual path is
// normalized first — ".." segments are resolved syntactically against a
// virtual "/" — so no resulting real path can lie above root regardless
// of how many ".." segments the client sends.
func (fs *FS) ToRealPath(virtual string) string {
	clean := pathutil.Normalize(virtual)
	if !strings.HasPrefix(clean, "/") {
		clean = "/" + clean
	}
	clean = strings.TrimPrefix(clean, "/")
	return filepath.Join(fs.root, filepath.FromSlash(clean))
}

// ToVirtualPath strips the root prefix from a real path, returning "/" if
// real does not lie under root (spec.md §4.E "Path returned to the
// client").
func (fs *FS) ToVirtualPath(real string) string {
	real = filepath.Clean(real)
	if real == fs.root {
		return "/"
	}
	prefix := fs.root + string(filepath.Separator)
	if !strings.HasPrefix(real, prefix) {
		return "/"
	}
	return "/" + filepath.ToSlash(strings.TrimPrefix(real, prefix))
}

// mapOSError translates a stdlib filesystem error into the structured
// taxonomy of spec.md §7, grounded on the teacher's mapPgError pattern of
// never returning a raw driver error across a component boundary.
func mapOSError(err error, command, path string) *sftperr.Error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, os.ErrNotExist):
		return sftperr.NewNoSuchFileError(path).WithCommand(command)
	case errors.Is(err, os.ErrPermission):
		return sftperr.NewPermissionDeniedError(path).WithCommand(command)
	default:
		return sftperr.NewFailureError(err.Error()).WithCommand(command).WithPath(path)
	}
}
