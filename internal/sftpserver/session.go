package sftpserver

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/sftpws/internal/channel"
	"github.com/marmos91/sftpws/internal/logger"
	"github.com/marmos91/sftpws/internal/proto"
	"github.com/marmos91/sftpws/internal/sftperr"
	"github.com/marmos91/sftpws/internal/wire"
	"github.com/marmos91/sftpws/pkg/metrics"
)

var activeSessions atomic.Int64

// Session binds one accepted Channel to one Backend (spec.md §4.D
// Session, §3 Session "on the server"). Over the WebSocket channel,
// scheduling is single-threaded cooperative: OnMessage delivers one packet
// at a time, and Session processes it to completion (including any
// blocking Backend call) before the channel layer delivers the next
// (spec.md §5 Scheduling). The in-memory channel delivers each message on
// its own goroutine, so packets arriving over it can be processed
// concurrently.
type Session struct {
	id      string
	ch      channel.Channel
	backend Backend
	ctx     context.Context
	cancel  context.CancelFunc
	metrics metrics.SessionMetrics
}

// handleCounter is an optional Backend extension (implemented by
// internal/safefs.FS) a Session probes via type assertion to drive the
// handle-table gauge without adding it to the required Backend contract.
type handleCounter interface {
	HandleCount() int
}

// Option configures optional Session behavior not carried by the
// required (ch, backend) pair.
type Option func(*Session)

// WithMetrics attaches a SessionMetrics sink; nil (the default) disables
// metrics collection with zero overhead.
func WithMetrics(m metrics.SessionMetrics) Option {
	return func(s *Session) { s.metrics = m }
}

// NewSession binds backend to ch and begins serving requests immediately.
func NewSession(ch channel.Channel, backend Backend, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:      uuid.NewString(),
		ch:      ch,
		backend: backend,
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	metrics.SetActiveSessions(s.metrics, int(activeSessions.Add(1)))
	ch.OnMessage(s.handleMessage)
	ch.OnClose(s.handleClose)
	return s
}

// ID returns this session's unique identifier, used as the connection-ID
// correlating every log line and metric this session produces
// (logger.LogContext.WithConnectionID).
func (s *Session) ID() string {
	return s.id
}

func (s *Session) logCtx(procedure string) context.Context {
	lc := logger.NewLogContext("").WithConnectionID(s.id).WithProcedure(procedure)
	return logger.WithContext(s.ctx, lc)
}

func (s *Session) handleMessage(data []byte) {
	pkt, err := wire.DecodePacket(data)
	if err != nil {
		logger.Debug("sftpserver: malformed packet, closing channel", logger.ConnectionID(s.id), logger.Err(err))
		_ = s.ch.Close(channel.CloseProtocolError, "malformed packet")
		return
	}

	if pkt.Type == proto.TypeInit {
		s.handleInit(pkt)
		return
	}
	if !pkt.HasID {
		logger.Debug("sftpserver: non-INIT packet missing request id", logger.ConnectionID(s.id), logger.Procedure(pkt.Type.String()))
		_ = s.ch.Close(channel.CloseProtocolError, "missing request id")
		return
	}

	procedure := pkt.Type.String()
	ctx := s.logCtx(procedure)

	metrics.RecordRequestStart(s.metrics, procedure)
	start := time.Now()
	var resp *wire.Writer
	if pkt.Type == proto.TypeExtended {
		resp = s.dispatchExtended(ctx, pkt)
	} else {
		resp = s.dispatch(ctx, pkt)
	}
	metrics.RecordRequestEnd(s.metrics, procedure)
	outcome := ""
	if resp == nil {
		outcome = "no_response"
	}
	metrics.RecordRequest(s.metrics, procedure, time.Since(start), outcome)
	if hc, ok := s.backend.(handleCounter); ok {
		metrics.SetActiveHandles(s.metrics, hc.HandleCount())
	}
	if resp == nil {
		return
	}
	if err := s.ch.Send(wire.FinishPacket(resp.Bytes())); err != nil {
		logger.DebugCtx(ctx, "sftpserver: send failed", logger.Err(err))
	}
}

// handleInit answers INIT with VERSION, echoing this session's negotiated
// extensions (spec.md §4.C Handshake, server side of the same exchange).
func (s *Session) handleInit(pkt *wire.Packet) {
	r := wire.NewReader(pkt.Payload)
	version, err := r.Uint32()
	if err != nil || version != proto.ProtocolVersion {
		_ = s.ch.Close(channel.CloseProtocolError, "version mismatch")
		return
	}

	fs := s.backend.Features()
	w := wire.EncodePacketHeader(proto.TypeVersion, 0, "")
	w.Uint32(proto.ProtocolVersion)
	if fs.Hardlink {
		w.String(proto.ExtHardlink)
		w.String("1")
	}
	if fs.PosixRename {
		w.String(proto.ExtPosixRename)
		w.String("1")
	}
	if fs.CopyData {
		w.String(proto.ExtCopyData)
		w.String("1")
	}
	if fs.CheckFileHash {
		w.String(proto.ExtCheckFileHash)
		w.String("1")
	}
	if fs.StatVFS {
		w.String(proto.ExtStatVFS)
		w.String("1")
	}
	if err := s.ch.Send(wire.FinishPacket(w.Bytes())); err != nil {
		logger.Debug("sftpserver: failed to send VERSION", logger.ConnectionID(s.id), logger.Err(err))
	}
}

func (s *Session) handleClose(err error) {
	s.cancel()
	s.backend.Shutdown(context.Background())
	metrics.SetActiveSessions(s.metrics, int(activeSessions.Add(-1)))
	if s.metrics != nil {
		reason := "normal"
		if err != nil {
			reason = "error"
		}
		s.metrics.RecordSessionClosed(reason)
	}
}

// statusResponse encodes a STATUS packet for id: StatusOK with an empty
// description on success, or the translated code/message on err.
func statusResponse(id uint32, err error) *wire.Writer {
	w := wire.EncodePacketHeader(proto.TypeStatus, id, "")
	code, msg := errorToStatus(err)
	w.Uint32(uint32(code))
	w.String(msg)
	return w
}

// errorToStatus maps a *sftperr.Error back onto the wire STATUS table of
// spec.md §4.C. Local conditions with no dedicated STATUS code (EROFS,
// ENFILE, EIO) surface as a generic FAILURE, the description carrying the
// specific reason.
func errorToStatus(err error) (proto.StatusCode, string) {
	if err == nil {
		return proto.StatusOK, ""
	}
	sErr, ok := err.(*sftperr.Error)
	if !ok {
		return proto.StatusFailure, err.Error()
	}
	switch sErr.Code {
	case sftperr.CodeEOF:
		return proto.StatusEOF, sErr.Description
	case sftperr.CodeNoEnt:
		return proto.StatusNoSuchFile, sErr.Description
	case sftperr.CodeAccess:
		return proto.StatusPermissionDenied, sErr.Description
	case sftperr.CodeNotConn:
		return proto.StatusNoConnection, sErr.Description
	case sftperr.CodeShutdown:
		return proto.StatusConnectionLost, sErr.Description
	case sftperr.CodeNotSupported:
		return proto.StatusOpUnsupported, sErr.Description
	case sftperr.Code("EBADMSG"):
		return proto.StatusBadMessage, sErr.Description
	default:
		return proto.StatusFailure, sErr.Description
	}
}

// encodeHandle renders a server handle (spec.md §3 Handle: "exactly 4
// bytes encoding a 32-bit big-endian integer") as opaque wire bytes.
func encodeHandle(h uint32) []byte {
	return []byte{byte(h >> 24), byte(h >> 16), byte(h >> 8), byte(h)}
}

// decodeHandle parses a 4-byte opaque handle. Any other length is a
// protocol error (spec.md §3 Handle).
func decodeHandle(opaque []byte) (uint32, error) {
	if len(opaque) != 4 {
		return 0, sftperr.NewFailureError("malformed handle")
	}
	return uint32(opaque[0])<<24 | uint32(opaque[1])<<16 | uint32(opaque[2])<<8 | uint32(opaque[3]), nil
}
