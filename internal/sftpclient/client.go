// Package sftpclient implements the client protocol engine of spec.md
// §4.C: request-ID allocation, the INIT/VERSION handshake, STATUS-to-error
// translation, and one method per wire operation. The request/response
// correlation is grounded on the reference sftp package's clientConn
// (inflight map[uint32]chan<- result, broadcastErr on channel teardown),
// adapted to this module's Channel abstraction instead of a raw net.Conn.
package sftpclient

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/marmos91/sftpws/internal/channel"
	"github.com/marmos91/sftpws/internal/logger"
	"github.com/marmos91/sftpws/internal/proto"
	"github.com/marmos91/sftpws/internal/sftperr"
	"github.com/marmos91/sftpws/internal/wire"
)

// Handle is an opaque server-allocated token (spec.md §3 Handle). The
// client never interprets its bytes, only echoes them back on later
// requests.
type Handle []byte

// String renders the handle as hex, for logging.
func (h Handle) String() string {
	return fmt.Sprintf("%x", []byte(h))
}

// FeatureSet records which optional extensions the peer negotiated during
// the handshake (spec.md §3 Feature set).
type FeatureSet struct {
	Hardlink      bool
	PosixRename   bool
	CopyData      bool
	CheckFileHash bool
	StatVFS       bool
}

// VFSStat is the statvfs@openssh.com extended reply body. spec.md does not
// enumerate its fields explicitly; this follows the conventional OpenSSH
// statvfs extension layout (eleven big-endian uint64 fields after the
// EXTENDED_REPLY's algorithm-name string).
type VFSStat struct {
	BlockSize    uint64
	FragmentSize uint64
	Blocks       uint64
	BlocksFree   uint64
	BlocksAvail  uint64
	Files        uint64
	FilesFree    uint64
	FilesAvail   uint64
	FSID         uint64
	Flags        uint64
	NameMax      uint64
}

type result struct {
	pkt *wire.Packet
	err error
}

type request struct {
	command  string
	path     string
	handle   string
	resultCh chan result
}

// Client is the client-side protocol engine bound to exactly one Channel
// (spec.md §3 Session, client side).
type Client struct {
	ch channel.Channel

	mu          sync.Mutex
	requests    map[uint32]*request
	pendingInit *request
	nextID      uint32
	closed      bool
	features    FeatureSet
}

// NewClient binds a protocol engine to ch. Handshake must be called before
// any other operation.
func NewClient(ch channel.Channel) *Client {
	c := &Client{
		ch:       ch,
		requests: make(map[uint32]*request),
		nextID:   1,
	}
	ch.OnMessage(c.handleMessage)
	ch.OnClose(c.handleClose)
	return c
}

// Features returns the extension set negotiated during Handshake.
func (c *Client) Features() FeatureSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.features
}

// Close tears down the channel, failing every outstanding request with
// ESHUTDOWN (spec.md §4.C Teardown).
func (c *Client) Close() error {
	return c.ch.Close(channel.CloseNormal, "")
}

// Handshake sends INIT and waits for VERSION (spec.md §4.C Handshake). It
// must be called exactly once, before any other operation.
func (c *Client) Handshake(ctx context.Context) error {
	req := &request{command: "INIT", resultCh: make(chan result, 1)}

	c.mu.Lock()
	if c.pendingInit != nil {
		c.mu.Unlock()
		return sftperr.NewFailureError("handshake already in progress").WithCommand("INIT")
	}
	c.pendingInit = req
	c.mu.Unlock()

	w := wire.EncodePacketHeader(proto.TypeInit, 0, "")
	w.Uint32(proto.ProtocolVersion)
	if err := c.ch.Send(wire.FinishPacket(w.Bytes())); err != nil {
		c.mu.Lock()
		c.pendingInit = nil
		c.mu.Unlock()
		return err
	}

	select {
	case res := <-req.resultCh:
		if res.err != nil {
			return res.err
		}
		return c.handleVersion(res.pkt)
	case <-ctx.Done():
		c.mu.Lock()
		c.pendingInit = nil
		c.mu.Unlock()
		return ctx.Err()
	}
}

func (c *Client) handleVersion(pkt *wire.Packet) error {
	if pkt.Type != proto.TypeVersion {
		_ = c.ch.Close(channel.CloseProtocolError, "expected VERSION")
		return sftperr.NewFailureError("protocol error: expected VERSION packet").WithCommand("INIT")
	}

	r := wire.NewReader(pkt.Payload)
	version, err := r.Uint32()
	if err != nil || version != proto.ProtocolVersion {
		_ = c.ch.Close(channel.CloseProtocolError, "version mismatch")
		return sftperr.NewFailureError("protocol error: version mismatch").WithCommand("INIT")
	}

	var fs FeatureSet
	for r.Remaining() > 0 {
		name, err := r.String()
		if err != nil {
			break
		}
		value, err := r.String()
		if err != nil {
			break
		}
		switch name {
		case proto.ExtHardlink:
			fs.Hardlink = strings.Contains(value, "1")
		case proto.ExtPosixRename:
			fs.PosixRename = strings.Contains(value, "1")
		}
	}
	// spec.md §4.C Handshake: these three are unconditionally enabled after
	// a successful VERSION exchange, regardless of whether the peer listed
	// them.
	fs.CopyData = true
	fs.CheckFileHash = true
	fs.StatVFS = true

	c.mu.Lock()
	c.features = fs
	c.mu.Unlock()
	return nil
}

// allocateID returns a free request ID, skipping any currently in use
// (spec.md §4.C Request ID allocation). Callers must hold c.mu.
func (c *Client) allocateID() uint32 {
	for {
		id := c.nextID
		c.nextID++
		if c.nextID == 0 {
			c.nextID = 1
		}
		if id == 0 {
			continue
		}
		if _, busy := c.requests[id]; !busy {
			return id
		}
	}
}

func (c *Client) do(ctx context.Context, pt proto.PacketType, command, path, handle string, build func(w *wire.Writer)) (*wire.Packet, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, sftperr.NewNotConnectedError().WithCommand(command).WithPath(path).WithHandle(handle)
	}
	id := c.allocateID()
	req := &request{command: command, path: path, handle: handle, resultCh: make(chan result, 1)}
	c.requests[id] = req
	c.mu.Unlock()

	w := wire.EncodePacketHeader(pt, id, "")
	build(w)
	if err := c.ch.Send(wire.FinishPacket(w.Bytes())); err != nil {
		c.mu.Lock()
		delete(c.requests, id)
		c.mu.Unlock()
		return nil, err
	}
	return c.await(ctx, id, req, command, path, handle)
}

func (c *Client) doExtended(ctx context.Context, extName, command, path, handle string, build func(w *wire.Writer)) (*wire.Packet, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, sftperr.NewNotConnectedError().WithCommand(command).WithPath(path).WithHandle(handle)
	}
	id := c.allocateID()
	req := &request{command: command, path: path, handle: handle, resultCh: make(chan result, 1)}
	c.requests[id] = req
	c.mu.Unlock()

	w := wire.EncodePacketHeader(proto.TypeExtended, id, extName)
	build(w)
	if err := c.ch.Send(wire.FinishPacket(w.Bytes())); err != nil {
		c.mu.Lock()
		delete(c.requests, id)
		c.mu.Unlock()
		return nil, err
	}
	return c.await(ctx, id, req, command, path, handle)
}

// await blocks until the request's response arrives or ctx is canceled.
func (c *Client) await(ctx context.Context, id uint32, req *request, command, path, handle string) (*wire.Packet, error) {
	select {
	case res := <-req.resultCh:
		return c.finish(res, command, path, handle)
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.requests, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (c *Client) finish(res result, command, path, handle string) (*wire.Packet, error) {
	if res.err != nil {
		return nil, res.err
	}
	pkt := res.pkt
	if pkt.Type != proto.TypeStatus {
		return pkt, nil
	}

	r := wire.NewReader(pkt.Payload)
	code, err := r.Uint32()
	if err != nil {
		return nil, sftperr.NewFailureError("malformed STATUS response").WithCommand(command).WithPath(path).WithHandle(handle)
	}
	if proto.StatusCode(code) == proto.StatusOK {
		return pkt, nil
	}
	msg, _ := r.String()
	sErr := sftperr.StatusCodeToError(code, msg).WithCommand(command)
	if path != "" {
		sErr = sErr.WithPath(path)
	}
	if handle != "" {
		sErr = sErr.WithHandle(handle)
	}
	return nil, sErr
}

func (c *Client) handleMessage(data []byte) {
	pkt, err := wire.DecodePacket(data)
	if err != nil {
		logger.Debug("sftpclient: malformed packet, closing channel", logger.Err(err))
		_ = c.ch.Close(channel.CloseProtocolError, "malformed packet")
		return
	}

	if pkt.Type == proto.TypeVersion {
		c.mu.Lock()
		req := c.pendingInit
		c.pendingInit = nil
		c.mu.Unlock()
		if req == nil {
			logger.Debug("sftpclient: unexpected VERSION packet")
			_ = c.ch.Close(channel.CloseProtocolError, "unexpected VERSION")
			return
		}
		req.resultCh <- result{pkt: pkt}
		return
	}

	if !pkt.HasID {
		logger.Debug("sftpclient: response packet missing request id", logger.Procedure(pkt.Type.String()))
		_ = c.ch.Close(channel.CloseProtocolError, "missing request id")
		return
	}

	c.mu.Lock()
	req, ok := c.requests[pkt.ID]
	if ok {
		delete(c.requests, pkt.ID)
	}
	c.mu.Unlock()

	if !ok {
		// spec.md §7 Fatal: a response referring to an unknown request ID.
		logger.Debug("sftpclient: response for unknown request id", logger.RequestID(pkt.ID))
		_ = c.ch.Close(channel.CloseProtocolError, "unknown request id")
		return
	}
	req.resultCh <- result{pkt: pkt}
}

func (c *Client) handleClose(err error) {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	shutdownErr := sftperr.NewShutdownError(reason)

	c.mu.Lock()
	c.closed = true
	pending := c.requests
	c.requests = make(map[uint32]*request)
	initReq := c.pendingInit
	c.pendingInit = nil
	c.mu.Unlock()

	for _, req := range pending {
		req.resultCh <- result{err: shutdownErr}
	}
	if initReq != nil {
		initReq.resultCh <- result{err: shutdownErr}
	}
}

func unexpectedResponse(command string, got proto.PacketType) *sftperr.Error {
	return sftperr.NewFailureError(fmt.Sprintf("unexpected %s response to %s", got, command)).WithCommand(command)
}
