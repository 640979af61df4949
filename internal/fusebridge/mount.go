package fusebridge

import (
	"fmt"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/hanwen/go-fuse/v2/fuse/nodefs"
	"github.com/hanwen/go-fuse/v2/fuse/pathfs"

	"github.com/marmos91/sftpws/internal/fsadapter"
)

// Server is a mounted filesystem; Serve blocks until Unmount is called or
// the kernel tears the mount down.
type Server struct {
	fuse *fuse.Server
}

// Mount attaches ops to mountpoint, following the standard
// pathfs.NewPathNodeFs → nodefs.NewFileSystemConnector → fuse.NewServer
// construction every go-fuse pathfs-based filesystem uses.
func Mount(ops fsadapter.Ops, mountpoint string, debug bool) (*Server, error) {
	pathNodeFs := pathfs.NewPathNodeFs(New(ops), nil)
	conn := nodefs.NewFileSystemConnector(pathNodeFs.Root(), nodefs.NewOptions())
	srv, err := fuse.NewServer(conn.RawFS(), mountpoint, &fuse.MountOptions{
		Name:   "sftpwsfs",
		FsName: "sftpws",
		Debug:  debug,
	})
	if err != nil {
		return nil, fmt.Errorf("fusebridge: mount %s: %w", mountpoint, err)
	}
	return &Server{fuse: srv}, nil
}

// Serve blocks, dispatching kernel requests until the filesystem is
// unmounted.
func (s *Server) Serve() {
	s.fuse.Serve()
}

// Unmount requests the kernel tear down the mount.
func (s *Server) Unmount() error {
	return s.fuse.Unmount()
}

// WaitMount blocks until the mount handshake has completed, so callers
// know the mountpoint is ready for use before returning control (e.g. to
// a shell script waiting on the mount command).
func (s *Server) WaitMount() error {
	return s.fuse.WaitMount()
}
