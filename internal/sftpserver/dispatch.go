package sftpserver

import (
	"context"

	"github.com/marmos91/sftpws/internal/logger"
	"github.com/marmos91/sftpws/internal/proto"
	"github.com/marmos91/sftpws/internal/sftperr"
	"github.com/marmos91/sftpws/internal/wire"
)

// handlerFunc decodes pkt's payload, calls the Backend, and returns the
// fully-encoded response packet. Errors are reported inline as a STATUS
// response, never by a second return value — every handler always
// produces a packet to send.
type handlerFunc func(ctx context.Context, s *Session, id uint32, pkt *wire.Packet) *wire.Writer

// dispatchTable maps the non-EXTENDED packet types of spec.md §4.D to
// their handlers. Built once at init, grounded on the teacher's
// procedure-table dispatch pattern (internal/protocol/nfs/dispatch.go).
var dispatchTable map[proto.PacketType]handlerFunc

func init() {
	dispatchTable = map[proto.PacketType]handlerFunc{
		proto.TypeOpen:     handleOpen,
		proto.TypeClose:    handleClose,
		proto.TypeRead:     handleRead,
		proto.TypeWrite:    handleWrite,
		proto.TypeLstat:    handleLstat,
		proto.TypeFstat:    handleFstat,
		proto.TypeSetstat:  handleSetstat,
		proto.TypeFsetstat: handleFsetstat,
		proto.TypeOpendir:  handleOpendir,
		proto.TypeReaddir:  handleReaddir,
		proto.TypeRemove:   handleRemove,
		proto.TypeMkdir:    handleMkdir,
		proto.TypeRmdir:    handleRmdir,
		proto.TypeRealpath: handleRealpath,
		proto.TypeStat:     handleStat,
		proto.TypeRename:   handleRename,
		proto.TypeReadlink: handleReadlink,
		proto.TypeSymlink:  handleSymlink,
	}
}

// dispatch routes a non-EXTENDED packet to its handler. Unknown types
// produce STATUS(BAD_MESSAGE) (spec.md §4.D Session).
func (s *Session) dispatch(ctx context.Context, pkt *wire.Packet) *wire.Writer {
	h, ok := dispatchTable[pkt.Type]
	if !ok {
		logger.DebugCtx(ctx, "sftpserver: unknown packet type")
		return statusResponse(pkt.ID, sftperr.New(sftperr.Code("EBADMSG"), "unrecognized packet type").WithCommand(pkt.Type.String()))
	}
	return h(ctx, s, pkt.ID, pkt)
}

// extendedTable maps EXTENDED request names to their handlers.
var extendedTable map[string]handlerFunc

func init() {
	extendedTable = map[string]handlerFunc{
		proto.ExtPosixRename:   handleExtPosixRename,
		proto.ExtHardlink:      handleExtHardlink,
		proto.ExtCopyData:      handleExtCopyData,
		proto.ExtCheckFileHash: handleExtCheckFileHash,
		proto.ExtStatVFS:       handleExtStatVFS,
	}
}

// dispatchExtended routes an EXTENDED packet by name. Unknown names
// produce STATUS(OP_UNSUPPORTED) (spec.md §4.D Session).
func (s *Session) dispatchExtended(ctx context.Context, pkt *wire.Packet) *wire.Writer {
	h, ok := extendedTable[pkt.ExtName]
	if !ok {
		return statusResponse(pkt.ID, sftperr.NewNotSupportedError(pkt.ExtName))
	}
	return h(ctx, s, pkt.ID, pkt)
}

func handleOpen(ctx context.Context, s *Session, id uint32, pkt *wire.Packet) *wire.Writer {
	r := wire.NewReader(pkt.Payload)
	path, err := r.String()
	if err != nil {
		return statusResponse(id, malformed("OPEN"))
	}
	flagBits, err := r.Uint32()
	if err != nil {
		return statusResponse(id, malformed("OPEN"))
	}
	attrs, err := r.ReadAttrs()
	if err != nil {
		return statusResponse(id, malformed("OPEN"))
	}
	h, oerr := s.backend.Open(ctx, path, proto.OpenFlag(flagBits), attrs)
	if oerr != nil {
		return statusResponse(id, oerr)
	}
	w := wire.EncodePacketHeader(proto.TypeHandle, id, "")
	w.Opaque(encodeHandle(h))
	return w
}

func handleClose(ctx context.Context, s *Session, id uint32, pkt *wire.Packet) *wire.Writer {
	h, hErr := readHandle(pkt)
	if hErr != nil {
		return statusResponse(id, hErr)
	}
	return statusResponse(id, s.backend.Close(ctx, h))
}

func handleRead(ctx context.Context, s *Session, id uint32, pkt *wire.Packet) *wire.Writer {
	r := wire.NewReader(pkt.Payload)
	hBytes, err := r.Opaque()
	if err != nil {
		return statusResponse(id, malformed("READ"))
	}
	h, hErr := decodeHandle(hBytes)
	if hErr != nil {
		return statusResponse(id, hErr)
	}
	position, err := r.Uint64()
	if err != nil {
		return statusResponse(id, malformed("READ"))
	}
	length, err := r.Uint32()
	if err != nil {
		return statusResponse(id, malformed("READ"))
	}
	data, rerr := s.backend.Read(ctx, h, position, length)
	if rerr != nil {
		return statusResponse(id, rerr)
	}
	w := wire.EncodePacketHeader(proto.TypeData, id, "")
	w.Opaque(data)
	return w
}

func handleWrite(ctx context.Context, s *Session, id uint32, pkt *wire.Packet) *wire.Writer {
	r := wire.NewReader(pkt.Payload)
	hBytes, err := r.Opaque()
	if err != nil {
		return statusResponse(id, malformed("WRITE"))
	}
	h, hErr := decodeHandle(hBytes)
	if hErr != nil {
		return statusResponse(id, hErr)
	}
	position, err := r.Uint64()
	if err != nil {
		return statusResponse(id, malformed("WRITE"))
	}
	data, err := r.Opaque()
	if err != nil {
		return statusResponse(id, malformed("WRITE"))
	}
	return statusResponse(id, s.backend.Write(ctx, h, position, data))
}

func handleLstat(ctx context.Context, s *Session, id uint32, pkt *wire.Packet) *wire.Writer {
	path, err := wire.NewReader(pkt.Payload).String()
	if err != nil {
		return statusResponse(id, malformed("LSTAT"))
	}
	attrs, aerr := s.backend.Lstat(ctx, path)
	return attrsResponse(id, attrs, aerr)
}

func handleStat(ctx context.Context, s *Session, id uint32, pkt *wire.Packet) *wire.Writer {
	path, err := wire.NewReader(pkt.Payload).String()
	if err != nil {
		return statusResponse(id, malformed("STAT"))
	}
	attrs, aerr := s.backend.Stat(ctx, path)
	return attrsResponse(id, attrs, aerr)
}

func handleFstat(ctx context.Context, s *Session, id uint32, pkt *wire.Packet) *wire.Writer {
	h, hErr := readHandle(pkt)
	if hErr != nil {
		return statusResponse(id, hErr)
	}
	attrs, aerr := s.backend.Fstat(ctx, h)
	return attrsResponse(id, attrs, aerr)
}

func attrsResponse(id uint32, attrs *wire.Attrs, err error) *wire.Writer {
	if err != nil {
		return statusResponse(id, err)
	}
	w := wire.EncodePacketHeader(proto.TypeAttrs, id, "")
	w.WriteAttrs(attrs)
	return w
}

func handleSetstat(ctx context.Context, s *Session, id uint32, pkt *wire.Packet) *wire.Writer {
	r := wire.NewReader(pkt.Payload)
	path, err := r.String()
	if err != nil {
		return statusResponse(id, malformed("SETSTAT"))
	}
	attrs, err := r.ReadAttrs()
	if err != nil {
		return statusResponse(id, malformed("SETSTAT"))
	}
	return statusResponse(id, s.backend.Setstat(ctx, path, attrs))
}

func handleFsetstat(ctx context.Context, s *Session, id uint32, pkt *wire.Packet) *wire.Writer {
	r := wire.NewReader(pkt.Payload)
	hBytes, err := r.Opaque()
	if err != nil {
		return statusResponse(id, malformed("FSETSTAT"))
	}
	h, hErr := decodeHandle(hBytes)
	if hErr != nil {
		return statusResponse(id, hErr)
	}
	attrs, err := r.ReadAttrs()
	if err != nil {
		return statusResponse(id, malformed("FSETSTAT"))
	}
	return statusResponse(id, s.backend.Fsetstat(ctx, h, attrs))
}

func handleOpendir(ctx context.Context, s *Session, id uint32, pkt *wire.Packet) *wire.Writer {
	path, err := wire.NewReader(pkt.Payload).String()
	if err != nil {
		return statusResponse(id, malformed("OPENDIR"))
	}
	h, oerr := s.backend.Opendir(ctx, path)
	if oerr != nil {
		return statusResponse(id, oerr)
	}
	w := wire.EncodePacketHeader(proto.TypeHandle, id, "")
	w.Opaque(encodeHandle(h))
	return w
}

func handleReaddir(ctx context.Context, s *Session, id uint32, pkt *wire.Packet) *wire.Writer {
	h, hErr := readHandle(pkt)
	if hErr != nil {
		return statusResponse(id, hErr)
	}
	items, eof, rerr := s.backend.Readdir(ctx, h)
	if rerr != nil {
		return statusResponse(id, rerr)
	}
	if eof {
		return statusResponse(id, sftperr.NewEOFError())
	}
	w := wire.EncodePacketHeader(proto.TypeName, id, "")
	w.WriteNameList(items)
	return w
}

func handleRemove(ctx context.Context, s *Session, id uint32, pkt *wire.Packet) *wire.Writer {
	path, err := wire.NewReader(pkt.Payload).String()
	if err != nil {
		return statusResponse(id, malformed("REMOVE"))
	}
	return statusResponse(id, s.backend.Unlink(ctx, path))
}

func handleMkdir(ctx context.Context, s *Session, id uint32, pkt *wire.Packet) *wire.Writer {
	r := wire.NewReader(pkt.Payload)
	path, err := r.String()
	if err != nil {
		return statusResponse(id, malformed("MKDIR"))
	}
	attrs, err := r.ReadAttrs()
	if err != nil {
		return statusResponse(id, malformed("MKDIR"))
	}
	return statusResponse(id, s.backend.Mkdir(ctx, path, attrs))
}

func handleRmdir(ctx context.Context, s *Session, id uint32, pkt *wire.Packet) *wire.Writer {
	path, err := wire.NewReader(pkt.Payload).String()
	if err != nil {
		return statusResponse(id, malformed("RMDIR"))
	}
	return statusResponse(id, s.backend.Rmdir(ctx, path))
}

func handleRealpath(ctx context.Context, s *Session, id uint32, pkt *wire.Packet) *wire.Writer {
	path, err := wire.NewReader(pkt.Payload).String()
	if err != nil {
		return statusResponse(id, malformed("REALPATH"))
	}
	resolved, rerr := s.backend.Realpath(ctx, path)
	if rerr != nil {
		return statusResponse(id, rerr)
	}
	w := wire.EncodePacketHeader(proto.TypeName, id, "")
	w.WriteNameList([]wire.Item{{Filename: resolved}})
	return w
}

func handleRename(ctx context.Context, s *Session, id uint32, pkt *wire.Packet) *wire.Writer {
	r := wire.NewReader(pkt.Payload)
	oldPath, err := r.String()
	if err != nil {
		return statusResponse(id, malformed("RENAME"))
	}
	newPath, err := r.String()
	if err != nil {
		return statusResponse(id, malformed("RENAME"))
	}
	return statusResponse(id, s.backend.Rename(ctx, oldPath, newPath, proto.RenameDefault))
}

func handleReadlink(ctx context.Context, s *Session, id uint32, pkt *wire.Packet) *wire.Writer {
	path, err := wire.NewReader(pkt.Payload).String()
	if err != nil {
		return statusResponse(id, malformed("READLINK"))
	}
	target, lerr := s.backend.Readlink(ctx, path)
	if lerr != nil {
		return statusResponse(id, lerr)
	}
	w := wire.EncodePacketHeader(proto.TypeName, id, "")
	w.WriteNameList([]wire.Item{{Filename: target}})
	return w
}

func handleSymlink(ctx context.Context, s *Session, id uint32, pkt *wire.Packet) *wire.Writer {
	r := wire.NewReader(pkt.Payload)
	target, err := r.String()
	if err != nil {
		return statusResponse(id, malformed("SYMLINK"))
	}
	link, err := r.String()
	if err != nil {
		return statusResponse(id, malformed("SYMLINK"))
	}
	return statusResponse(id, s.backend.Symlink(ctx, target, link))
}

func handleExtPosixRename(ctx context.Context, s *Session, id uint32, pkt *wire.Packet) *wire.Writer {
	r := wire.NewReader(pkt.Payload)
	oldPath, err := r.String()
	if err != nil {
		return statusResponse(id, malformed("RENAME"))
	}
	newPath, err := r.String()
	if err != nil {
		return statusResponse(id, malformed("RENAME"))
	}
	return statusResponse(id, s.backend.Rename(ctx, oldPath, newPath, proto.RenameOverwrite))
}

func handleExtHardlink(ctx context.Context, s *Session, id uint32, pkt *wire.Packet) *wire.Writer {
	r := wire.NewReader(pkt.Payload)
	oldPath, err := r.String()
	if err != nil {
		return statusResponse(id, malformed("LINK"))
	}
	newPath, err := r.String()
	if err != nil {
		return statusResponse(id, malformed("LINK"))
	}
	return statusResponse(id, s.backend.Link(ctx, oldPath, newPath))
}

func handleExtCopyData(ctx context.Context, s *Session, id uint32, pkt *wire.Packet) *wire.Writer {
	r := wire.NewReader(pkt.Payload)
	srcBytes, err := r.Opaque()
	if err != nil {
		return statusResponse(id, malformed("FCOPY"))
	}
	srcH, hErr := decodeHandle(srcBytes)
	if hErr != nil {
		return statusResponse(id, hErr)
	}
	srcPos, err := r.Uint64()
	if err != nil {
		return statusResponse(id, malformed("FCOPY"))
	}
	length, err := r.Uint64()
	if err != nil {
		return statusResponse(id, malformed("FCOPY"))
	}
	dstBytes, err := r.Opaque()
	if err != nil {
		return statusResponse(id, malformed("FCOPY"))
	}
	dstH, hErr := decodeHandle(dstBytes)
	if hErr != nil {
		return statusResponse(id, hErr)
	}
	dstPos, err := r.Uint64()
	if err != nil {
		return statusResponse(id, malformed("FCOPY"))
	}
	return statusResponse(id, s.backend.Fcopy(ctx, srcH, srcPos, length, dstH, dstPos))
}

func handleExtCheckFileHash(ctx context.Context, s *Session, id uint32, pkt *wire.Packet) *wire.Writer {
	r := wire.NewReader(pkt.Payload)
	hBytes, err := r.Opaque()
	if err != nil {
		return statusResponse(id, malformed("FHASH"))
	}
	h, hErr := decodeHandle(hBytes)
	if hErr != nil {
		return statusResponse(id, hErr)
	}
	alg, err := r.String()
	if err != nil {
		return statusResponse(id, malformed("FHASH"))
	}
	pos, err := r.Uint64()
	if err != nil {
		return statusResponse(id, malformed("FHASH"))
	}
	length, err := r.Uint64()
	if err != nil {
		return statusResponse(id, malformed("FHASH"))
	}
	blockSize, err := r.Uint32()
	if err != nil {
		return statusResponse(id, malformed("FHASH"))
	}
	algUsed, digest, ferr := s.backend.Fhash(ctx, h, alg, pos, length, blockSize)
	if ferr != nil {
		return statusResponse(id, ferr)
	}
	w := wire.EncodePacketHeader(proto.TypeExtendedReply, id, "")
	w.String(algUsed)
	w.Opaque(digest)
	return w
}

func handleExtStatVFS(ctx context.Context, s *Session, id uint32, pkt *wire.Packet) *wire.Writer {
	path, err := wire.NewReader(pkt.Payload).String()
	if err != nil {
		return statusResponse(id, malformed("STATVFS"))
	}
	stat, serr := s.backend.Statvfs(ctx, path)
	if serr != nil {
		return statusResponse(id, serr)
	}
	w := wire.EncodePacketHeader(proto.TypeExtendedReply, id, "")
	w.String(proto.ExtStatVFS)
	w.Uint64(stat.BlockSize)
	w.Uint64(stat.FragmentSize)
	w.Uint64(stat.Blocks)
	w.Uint64(stat.BlocksFree)
	w.Uint64(stat.BlocksAvail)
	w.Uint64(stat.Files)
	w.Uint64(stat.FilesFree)
	w.Uint64(stat.FilesAvail)
	w.Uint64(stat.FSID)
	w.Uint64(stat.Flags)
	w.Uint64(stat.NameMax)
	return w
}

func readHandle(pkt *wire.Packet) (uint32, error) {
	hBytes, err := wire.NewReader(pkt.Payload).Opaque()
	if err != nil {
		return 0, malformed(pkt.Type.String())
	}
	return decodeHandle(hBytes)
}

func malformed(command string) error {
	return sftperr.New(sftperr.Code("EBADMSG"), "malformed request body").WithCommand(command)
}
