package sftpclient

import (
	"context"
	"fmt"

	"github.com/marmos91/sftpws/internal/logger"
	"github.com/marmos91/sftpws/internal/proto"
	"github.com/marmos91/sftpws/internal/sftperr"
	"github.com/marmos91/sftpws/internal/wire"
)

// Open sends OPEN and returns the allocated handle (spec.md §4.C/§6).
func (c *Client) Open(ctx context.Context, path string, flags proto.OpenFlag, attrs *wire.Attrs) (Handle, error) {
	pkt, err := c.do(ctx, proto.TypeOpen, "OPEN", path, "", func(w *wire.Writer) {
		w.String(path)
		w.Uint32(uint32(flags))
		w.WriteAttrs(attrs)
	})
	if err != nil {
		return nil, err
	}
	if pkt.Type != proto.TypeHandle {
		return nil, unexpectedResponse("OPEN", pkt.Type)
	}
	h, err := wire.NewReader(pkt.Payload).Opaque()
	if err != nil {
		return nil, sftperr.NewFailureError("malformed HANDLE response").WithCommand("OPEN").WithPath(path)
	}
	return Handle(h), nil
}

// CloseHandle sends CLOSE for an open handle.
func (c *Client) CloseHandle(ctx context.Context, h Handle) error {
	_, err := c.do(ctx, proto.TypeClose, "CLOSE", "", h.String(), func(w *wire.Writer) {
		w.Opaque(h)
	})
	return err
}

// Read sends READ, retrying up to 4 times on a zero-length DATA response
// before surfacing EIO on the 5th attempt (spec.md §4.C Read edge case). A
// STATUS(EOF) response yields an empty, non-error result. A request for
// zero bytes is satisfied locally without a round trip.
func (c *Client) Read(ctx context.Context, h Handle, position uint64, length uint32) ([]byte, error) {
	if length == 0 {
		return []byte{}, nil
	}
	if length > proto.MaxReadLength {
		return nil, sftperr.NewIOError("read length exceeds maximum").WithCommand("READ").WithHandle(h.String())
	}

	for attempt := 1; attempt <= 5; attempt++ {
		pkt, err := c.do(ctx, proto.TypeRead, "READ", "", h.String(), func(w *wire.Writer) {
			w.Opaque(h)
			w.Uint64(position)
			w.Uint32(length)
		})
		if err != nil {
			if sftperr.IsEOF(err) {
				return []byte{}, nil
			}
			return nil, err
		}
		if pkt.Type != proto.TypeData {
			return nil, unexpectedResponse("READ", pkt.Type)
		}
		data, derr := wire.NewReader(pkt.Payload).Opaque()
		if derr != nil {
			return nil, sftperr.NewFailureError("malformed DATA response").WithCommand("READ").WithHandle(h.String())
		}
		if len(data) == 0 {
			if attempt == 5 {
				return nil, sftperr.NewIOError("zero-length read retried too many times").WithCommand("READ").WithHandle(h.String())
			}
			logger.Debug("zero-length READ, retrying", logger.Attempt(attempt), logger.HandleHex(h.String()))
			continue
		}
		return data, nil
	}
	return nil, sftperr.NewIOError("read failed").WithCommand("READ").WithHandle(h.String())
}

// Write sends WRITE. len(data) must not exceed 1 MiB (spec.md §4.C
// Constraints); larger writes are the caller's responsibility to split.
func (c *Client) Write(ctx context.Context, h Handle, position uint64, data []byte) error {
	if len(data) > proto.MaxWriteLength {
		return sftperr.NewIOError("write length exceeds maximum").WithCommand("WRITE").WithHandle(h.String())
	}
	_, err := c.do(ctx, proto.TypeWrite, "WRITE", "", h.String(), func(w *wire.Writer) {
		w.Opaque(h)
		w.Uint64(position)
		w.Opaque(data)
	})
	return err
}

// Lstat sends LSTAT.
func (c *Client) Lstat(ctx context.Context, path string) (*wire.Attrs, error) {
	return c.statLike(ctx, proto.TypeLstat, "LSTAT", path)
}

// Stat sends STAT.
func (c *Client) Stat(ctx context.Context, path string) (*wire.Attrs, error) {
	return c.statLike(ctx, proto.TypeStat, "STAT", path)
}

func (c *Client) statLike(ctx context.Context, pt proto.PacketType, command, path string) (*wire.Attrs, error) {
	pkt, err := c.do(ctx, pt, command, path, "", func(w *wire.Writer) {
		w.String(path)
	})
	if err != nil {
		return nil, err
	}
	if pkt.Type != proto.TypeAttrs {
		return nil, unexpectedResponse(command, pkt.Type)
	}
	attrs, aerr := wire.NewReader(pkt.Payload).ReadAttrs()
	if aerr != nil {
		return nil, sftperr.NewFailureError("malformed ATTRS response").WithCommand(command).WithPath(path)
	}
	return attrs, nil
}

// Fstat sends FSTAT.
func (c *Client) Fstat(ctx context.Context, h Handle) (*wire.Attrs, error) {
	pkt, err := c.do(ctx, proto.TypeFstat, "FSTAT", "", h.String(), func(w *wire.Writer) {
		w.Opaque(h)
	})
	if err != nil {
		return nil, err
	}
	if pkt.Type != proto.TypeAttrs {
		return nil, unexpectedResponse("FSTAT", pkt.Type)
	}
	attrs, aerr := wire.NewReader(pkt.Payload).ReadAttrs()
	if aerr != nil {
		return nil, sftperr.NewFailureError("malformed ATTRS response").WithCommand("FSTAT").WithHandle(h.String())
	}
	return attrs, nil
}

// Setstat sends SETSTAT.
func (c *Client) Setstat(ctx context.Context, path string, attrs *wire.Attrs) error {
	_, err := c.do(ctx, proto.TypeSetstat, "SETSTAT", path, "", func(w *wire.Writer) {
		w.String(path)
		w.WriteAttrs(attrs)
	})
	return err
}

// Fsetstat sends FSETSTAT.
func (c *Client) Fsetstat(ctx context.Context, h Handle, attrs *wire.Attrs) error {
	_, err := c.do(ctx, proto.TypeFsetstat, "FSETSTAT", "", h.String(), func(w *wire.Writer) {
		w.Opaque(h)
		w.WriteAttrs(attrs)
	})
	return err
}

// Opendir sends OPENDIR and returns the allocated directory handle.
func (c *Client) Opendir(ctx context.Context, path string) (Handle, error) {
	pkt, err := c.do(ctx, proto.TypeOpendir, "OPENDIR", path, "", func(w *wire.Writer) {
		w.String(path)
	})
	if err != nil {
		return nil, err
	}
	if pkt.Type != proto.TypeHandle {
		return nil, unexpectedResponse("OPENDIR", pkt.Type)
	}
	h, rerr := wire.NewReader(pkt.Payload).Opaque()
	if rerr != nil {
		return nil, sftperr.NewFailureError("malformed HANDLE response").WithCommand("OPENDIR").WithPath(path)
	}
	return Handle(h), nil
}

// Readdir sends READDIR. eof is true once the directory is exhausted
// (signaled on the wire as STATUS(EOF), not an error condition).
func (c *Client) Readdir(ctx context.Context, h Handle) (items []wire.Item, eof bool, err error) {
	pkt, derr := c.do(ctx, proto.TypeReaddir, "READDIR", "", h.String(), func(w *wire.Writer) {
		w.Opaque(h)
	})
	if derr != nil {
		if sftperr.IsEOF(derr) {
			return nil, true, nil
		}
		return nil, false, derr
	}
	if pkt.Type != proto.TypeName {
		return nil, false, unexpectedResponse("READDIR", pkt.Type)
	}
	items, rerr := wire.NewReader(pkt.Payload).ReadNameList()
	if rerr != nil {
		return nil, false, sftperr.NewFailureError("malformed NAME response").WithCommand("READDIR").WithHandle(h.String())
	}
	return items, false, nil
}

// Unlink sends REMOVE.
func (c *Client) Unlink(ctx context.Context, path string) error {
	_, err := c.do(ctx, proto.TypeRemove, "REMOVE", path, "", func(w *wire.Writer) {
		w.String(path)
	})
	return err
}

// Mkdir sends MKDIR.
func (c *Client) Mkdir(ctx context.Context, path string, attrs *wire.Attrs) error {
	_, err := c.do(ctx, proto.TypeMkdir, "MKDIR", path, "", func(w *wire.Writer) {
		w.String(path)
		w.WriteAttrs(attrs)
	})
	return err
}

// Rmdir sends RMDIR.
func (c *Client) Rmdir(ctx context.Context, path string) error {
	_, err := c.do(ctx, proto.TypeRmdir, "RMDIR", path, "", func(w *wire.Writer) {
		w.String(path)
	})
	return err
}

// Realpath sends REALPATH and returns the canonical path.
func (c *Client) Realpath(ctx context.Context, path string) (string, error) {
	pkt, err := c.do(ctx, proto.TypeRealpath, "REALPATH", path, "", func(w *wire.Writer) {
		w.String(path)
	})
	if err != nil {
		return "", err
	}
	if pkt.Type != proto.TypeName {
		return "", unexpectedResponse("REALPATH", pkt.Type)
	}
	items, rerr := wire.NewReader(pkt.Payload).ReadNameList()
	if rerr != nil || len(items) == 0 {
		return "", sftperr.NewFailureError("malformed NAME response").WithCommand("REALPATH").WithPath(path)
	}
	return items[0].Filename, nil
}

// Rename sends RENAME. flags=0 uses the plain RENAME packet; flags=1
// (OVERWRITE) requires the posix-rename extension and is rejected
// client-side with ENOSYS when unsupported, without sending anything
// (spec.md §4.C Rename flags).
func (c *Client) Rename(ctx context.Context, oldPath, newPath string, flags proto.RenameFlag) error {
	switch flags {
	case proto.RenameDefault:
		_, err := c.do(ctx, proto.TypeRename, "RENAME", oldPath, "", func(w *wire.Writer) {
			w.String(oldPath)
			w.String(newPath)
		})
		return err
	case proto.RenameOverwrite:
		if !c.Features().PosixRename {
			return sftperr.NewNotSupportedError("RENAME with OVERWRITE").WithCommand("RENAME").WithPath(oldPath)
		}
		_, err := c.doExtended(ctx, proto.ExtPosixRename, "RENAME", oldPath, "", func(w *wire.Writer) {
			w.String(oldPath)
			w.String(newPath)
		})
		return err
	default:
		return sftperr.NewNotSupportedError(fmt.Sprintf("RENAME with unknown flag %d", flags)).WithCommand("RENAME").WithPath(oldPath)
	}
}

// Readlink sends READLINK and returns the link target.
func (c *Client) Readlink(ctx context.Context, path string) (string, error) {
	pkt, err := c.do(ctx, proto.TypeReadlink, "READLINK", path, "", func(w *wire.Writer) {
		w.String(path)
	})
	if err != nil {
		return "", err
	}
	if pkt.Type != proto.TypeName {
		return "", unexpectedResponse("READLINK", pkt.Type)
	}
	items, rerr := wire.NewReader(pkt.Payload).ReadNameList()
	if rerr != nil || len(items) == 0 {
		return "", sftperr.NewFailureError("malformed NAME response").WithCommand("READLINK").WithPath(path)
	}
	return items[0].Filename, nil
}

// Symlink sends SYMLINK.
func (c *Client) Symlink(ctx context.Context, target, link string) error {
	_, err := c.do(ctx, proto.TypeSymlink, "SYMLINK", link, "", func(w *wire.Writer) {
		w.String(target)
		w.String(link)
	})
	return err
}

// Link creates a hard link via the hardlink@openssh.com extension,
// rejected client-side with ENOSYS when the peer didn't negotiate it.
func (c *Client) Link(ctx context.Context, oldPath, newPath string) error {
	if !c.Features().Hardlink {
		return sftperr.NewNotSupportedError("LINK").WithCommand("LINK").WithPath(oldPath)
	}
	_, err := c.doExtended(ctx, proto.ExtHardlink, "LINK", oldPath, "", func(w *wire.Writer) {
		w.String(oldPath)
		w.String(newPath)
	})
	return err
}

// Fcopy performs a server-side handle-to-handle copy via the copy-data
// extension.
func (c *Client) Fcopy(ctx context.Context, srcH Handle, srcPos uint64, length uint64, dstH Handle, dstPos uint64) error {
	if !c.Features().CopyData {
		return sftperr.NewNotSupportedError("FCOPY").WithCommand("FCOPY").WithHandle(srcH.String())
	}
	_, err := c.doExtended(ctx, proto.ExtCopyData, "FCOPY", "", srcH.String(), func(w *wire.Writer) {
		w.Opaque(srcH)
		w.Uint64(srcPos)
		w.Uint64(length)
		w.Opaque(dstH)
		w.Uint64(dstPos)
	})
	return err
}

// Fhash computes a block digest of an open handle's contents via the
// check-file-handle extension, returning the algorithm actually used and
// the concatenated per-block digest bytes.
func (c *Client) Fhash(ctx context.Context, h Handle, alg string, pos, length uint64, blockSize uint32) (string, []byte, error) {
	if !c.Features().CheckFileHash {
		return "", nil, sftperr.NewNotSupportedError("FHASH").WithCommand("FHASH").WithHandle(h.String())
	}
	pkt, err := c.doExtended(ctx, proto.ExtCheckFileHash, "FHASH", "", h.String(), func(w *wire.Writer) {
		w.Opaque(h)
		w.String(alg)
		w.Uint64(pos)
		w.Uint64(length)
		w.Uint32(blockSize)
	})
	if err != nil {
		return "", nil, err
	}
	if pkt.Type != proto.TypeExtendedReply {
		return "", nil, unexpectedResponse("FHASH", pkt.Type)
	}
	r := wire.NewReader(pkt.Payload)
	algName, aerr := r.String()
	if aerr != nil {
		return "", nil, sftperr.NewFailureError("malformed EXTENDED_REPLY").WithCommand("FHASH").WithHandle(h.String())
	}
	digest, derr := r.Opaque()
	if derr != nil {
		return "", nil, sftperr.NewFailureError("malformed EXTENDED_REPLY").WithCommand("FHASH").WithHandle(h.String())
	}
	return algName, digest, nil
}

// Statvfs retrieves filesystem-level statistics via the
// statvfs@openssh.com extension.
func (c *Client) Statvfs(ctx context.Context, path string) (*VFSStat, error) {
	if !c.Features().StatVFS {
		return nil, sftperr.NewNotSupportedError("STATVFS").WithCommand("STATVFS").WithPath(path)
	}
	pkt, err := c.doExtended(ctx, proto.ExtStatVFS, "STATVFS", path, "", func(w *wire.Writer) {
		w.String(path)
	})
	if err != nil {
		return nil, err
	}
	if pkt.Type != proto.TypeExtendedReply {
		return nil, unexpectedResponse("STATVFS", pkt.Type)
	}
	r := wire.NewReader(pkt.Payload)
	if _, err := r.String(); err != nil {
		return nil, sftperr.NewFailureError("malformed EXTENDED_REPLY").WithCommand("STATVFS").WithPath(path)
	}
	vals := make([]uint64, 11)
	for i := range vals {
		v, err := r.Uint64()
		if err != nil {
			return nil, sftperr.NewFailureError("malformed EXTENDED_REPLY").WithCommand("STATVFS").WithPath(path)
		}
		vals[i] = v
	}
	return &VFSStat{
		BlockSize:    vals[0],
		FragmentSize: vals[1],
		Blocks:       vals[2],
		BlocksFree:   vals[3],
		BlocksAvail:  vals[4],
		Files:        vals[5],
		FilesFree:    vals[6],
		FilesAvail:   vals[7],
		FSID:         vals[8],
		Flags:        vals[9],
		NameMax:      vals[10],
	}, nil
}
