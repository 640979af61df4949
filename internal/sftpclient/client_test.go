package sftpclient

import (
	"context"
	"testing"
	"time"

	"github.com/marmos91/sftpws/internal/channel"
	"github.com/marmos91/sftpws/internal/proto"
	"github.com/marmos91/sftpws/internal/wire"
)

// fakeServer answers packets on the server side of a memory channel pair
// using a caller-supplied handler, so each test can script exactly the
// responses it needs without a full sftpserver.
type fakeServer struct {
	ch      channel.Channel
	handle  func(pkt *wire.Packet) (pt proto.PacketType, build func(*wire.Writer))
}

func newFakeServer(ch channel.Channel, handle func(pkt *wire.Packet) (proto.PacketType, func(*wire.Writer))) *fakeServer {
	s := &fakeServer{ch: ch, handle: handle}
	ch.OnMessage(s.onMessage)
	return s
}

func (s *fakeServer) onMessage(data []byte) {
	pkt, err := wire.DecodePacket(data)
	if err != nil {
		return
	}
	pt, build := s.handle(pkt)
	if pt == 0 {
		return
	}
	var w *wire.Writer
	if pkt.Type == proto.TypeInit {
		w = wire.EncodePacketHeader(pt, 0, "")
	} else {
		w = wire.EncodePacketHeader(pt, pkt.ID, "")
	}
	if build != nil {
		build(w)
	}
	_ = s.ch.Send(wire.FinishPacket(w.Bytes()))
}

func statusOK(w *wire.Writer) {
	w.Uint32(uint32(proto.StatusOK))
	w.String("")
}

func dialHandshake(t *testing.T, handle func(pkt *wire.Packet) (proto.PacketType, func(*wire.Writer))) *Client {
	t.Helper()
	clientCh, serverCh := channel.NewMemoryPair()
	newFakeServer(serverCh, handle)
	c := NewClient(clientCh)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Handshake(ctx); err != nil {
		t.Fatalf("handshake: %v", err)
	}
	return c
}

func TestHandshakeNegotiatesExtensions(t *testing.T) {
	c := dialHandshake(t, func(pkt *wire.Packet) (proto.PacketType, func(*wire.Writer)) {
		if pkt.Type != proto.TypeInit {
			t.Fatalf("expected INIT, got %s", pkt.Type)
		}
		return proto.TypeVersion, func(w *wire.Writer) {
			w.Uint32(proto.ProtocolVersion)
			w.String(proto.ExtHardlink)
			w.String("1")
			w.String(proto.ExtPosixRename)
			w.String("1")
		}
	})

	fs := c.Features()
	if !fs.Hardlink || !fs.PosixRename {
		t.Fatalf("expected hardlink and posix-rename negotiated, got %+v", fs)
	}
	if !fs.CopyData || !fs.CheckFileHash || !fs.StatVFS {
		t.Fatalf("expected copy-data/check-file-handle/statvfs unconditionally enabled, got %+v", fs)
	}
}

func TestHandshakeWithoutOptionalExtensions(t *testing.T) {
	c := dialHandshake(t, func(pkt *wire.Packet) (proto.PacketType, func(*wire.Writer)) {
		return proto.TypeVersion, func(w *wire.Writer) {
			w.Uint32(proto.ProtocolVersion)
		}
	})

	fs := c.Features()
	if fs.Hardlink || fs.PosixRename {
		t.Fatalf("did not expect hardlink/posix-rename without negotiation, got %+v", fs)
	}
}

func TestOpenReadClose(t *testing.T) {
	const content = "hello world"
	c := dialHandshake(t, func(pkt *wire.Packet) (proto.PacketType, func(*wire.Writer)) {
		switch pkt.Type {
		case proto.TypeInit:
			return proto.TypeVersion, func(w *wire.Writer) { w.Uint32(proto.ProtocolVersion) }
		case proto.TypeOpen:
			return proto.TypeHandle, func(w *wire.Writer) { w.Opaque([]byte("h1")) }
		case proto.TypeRead:
			return proto.TypeData, func(w *wire.Writer) { w.Opaque([]byte(content)) }
		case proto.TypeClose:
			return proto.TypeStatus, statusOK
		default:
			t.Fatalf("unexpected packet type %s", pkt.Type)
		}
		return 0, nil
	})

	ctx := context.Background()
	h, err := c.Open(ctx, "/foo", proto.OpenRead, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if h.String() != Handle([]byte("h1")).String() {
		t.Fatalf("unexpected handle %q", h)
	}

	data, err := c.Read(ctx, h, 0, 4096)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != content {
		t.Fatalf("got %q, want %q", data, content)
	}

	if err := c.CloseHandle(ctx, h); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestReadZeroLengthRetryThenEIO(t *testing.T) {
	c := dialHandshake(t, func(pkt *wire.Packet) (proto.PacketType, func(*wire.Writer)) {
		switch pkt.Type {
		case proto.TypeInit:
			return proto.TypeVersion, func(w *wire.Writer) { w.Uint32(proto.ProtocolVersion) }
		case proto.TypeRead:
			return proto.TypeData, func(w *wire.Writer) { w.Opaque(nil) }
		default:
			t.Fatalf("unexpected packet type %s", pkt.Type)
		}
		return 0, nil
	})

	ctx := context.Background()
	_, err := c.Read(ctx, Handle("h"), 0, 4096)
	if err == nil {
		t.Fatal("expected EIO after repeated zero-length reads")
	}
}

func TestReadZeroLengthRequestShortCircuits(t *testing.T) {
	c := dialHandshake(t, func(pkt *wire.Packet) (proto.PacketType, func(*wire.Writer)) {
		if pkt.Type == proto.TypeInit {
			return proto.TypeVersion, func(w *wire.Writer) { w.Uint32(proto.ProtocolVersion) }
		}
		t.Fatalf("did not expect a wire round trip for a zero-length read")
		return 0, nil
	})

	data, err := c.Read(context.Background(), Handle("h"), 0, 0)
	if err != nil || len(data) != 0 {
		t.Fatalf("got (%v, %v), want (empty, nil)", data, err)
	}
}

func TestReadEOFStatusReturnsEmptyNoError(t *testing.T) {
	c := dialHandshake(t, func(pkt *wire.Packet) (proto.PacketType, func(*wire.Writer)) {
		switch pkt.Type {
		case proto.TypeInit:
			return proto.TypeVersion, func(w *wire.Writer) { w.Uint32(proto.ProtocolVersion) }
		case proto.TypeRead:
			return proto.TypeStatus, func(w *wire.Writer) {
				w.Uint32(uint32(proto.StatusEOF))
				w.String("eof")
			}
		default:
			t.Fatalf("unexpected packet type %s", pkt.Type)
		}
		return 0, nil
	})

	data, err := c.Read(context.Background(), Handle("h"), 0, 4096)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("expected empty data on EOF, got %q", data)
	}
}

func TestRenameOverwriteRejectedWithoutFeature(t *testing.T) {
	c := dialHandshake(t, func(pkt *wire.Packet) (proto.PacketType, func(*wire.Writer)) {
		return proto.TypeVersion, func(w *wire.Writer) { w.Uint32(proto.ProtocolVersion) }
	})

	err := c.Rename(context.Background(), "/a", "/b", proto.RenameOverwrite)
	if err == nil {
		t.Fatal("expected rejection of RENAME overwrite without posix-rename negotiated")
	}
}

func TestRenameOverwriteUsesExtendedWhenNegotiated(t *testing.T) {
	var sawExtended bool
	c := dialHandshake(t, func(pkt *wire.Packet) (proto.PacketType, func(*wire.Writer)) {
		switch pkt.Type {
		case proto.TypeInit:
			return proto.TypeVersion, func(w *wire.Writer) {
				w.Uint32(proto.ProtocolVersion)
				w.String(proto.ExtPosixRename)
				w.String("1")
			}
		case proto.TypeExtended:
			if pkt.ExtName == proto.ExtPosixRename {
				sawExtended = true
			}
			return proto.TypeStatus, statusOK
		default:
			t.Fatalf("unexpected packet type %s", pkt.Type)
		}
		return 0, nil
	})

	if err := c.Rename(context.Background(), "/a", "/b", proto.RenameOverwrite); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if !sawExtended {
		t.Fatal("expected RENAME overwrite to use the posix-rename extension")
	}
}

func TestStatusErrorTranslation(t *testing.T) {
	c := dialHandshake(t, func(pkt *wire.Packet) (proto.PacketType, func(*wire.Writer)) {
		switch pkt.Type {
		case proto.TypeInit:
			return proto.TypeVersion, func(w *wire.Writer) { w.Uint32(proto.ProtocolVersion) }
		case proto.TypeLstat:
			return proto.TypeStatus, func(w *wire.Writer) {
				w.Uint32(uint32(proto.StatusNoSuchFile))
				w.String("no such file")
			}
		default:
			t.Fatalf("unexpected packet type %s", pkt.Type)
		}
		return 0, nil
	})

	_, err := c.Lstat(context.Background(), "/missing")
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestRequestIDAllocationSkipsInUse(t *testing.T) {
	clientCh, _ := channel.NewMemoryPair()
	c := NewClient(clientCh)

	c.mu.Lock()
	c.requests[1] = &request{}
	c.requests[2] = &request{}
	c.nextID = 1
	first := c.allocateID()
	c.mu.Unlock()

	if first != 3 {
		t.Fatalf("expected allocateID to skip ids 1 and 2, got %d", first)
	}
}

func TestRequestIDAllocationWrapsAndSkipsZero(t *testing.T) {
	clientCh, _ := channel.NewMemoryPair()
	c := NewClient(clientCh)

	c.mu.Lock()
	c.nextID = 0xFFFFFFFF
	first := c.allocateID()
	second := c.allocateID()
	c.mu.Unlock()

	if first != 0xFFFFFFFF {
		t.Fatalf("expected first allocated id 0xFFFFFFFF, got %d", first)
	}
	if second != 1 {
		t.Fatalf("expected wraparound to skip 0 and land on 1, got %d", second)
	}
}

func TestTeardownFailsOutstandingRequestsWithShutdown(t *testing.T) {
	clientCh, serverCh := channel.NewMemoryPair()
	// The fake server answers VERSION then never answers LSTAT, so the
	// request is still outstanding when the channel is torn down.
	newFakeServer(serverCh, func(pkt *wire.Packet) (proto.PacketType, func(*wire.Writer)) {
		if pkt.Type == proto.TypeInit {
			return proto.TypeVersion, func(w *wire.Writer) { w.Uint32(proto.ProtocolVersion) }
		}
		return 0, nil
	})
	c := NewClient(clientCh)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Handshake(ctx); err != nil {
		t.Fatalf("handshake: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Lstat(context.Background(), "/never-answered")
		errCh <- err
	}()

	// Give the goroutine time to register the request before tearing down.
	time.Sleep(20 * time.Millisecond)
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected ESHUTDOWN after teardown")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for outstanding request to fail")
	}
}
