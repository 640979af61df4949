package wire

import (
	"fmt"

	"github.com/marmos91/sftpws/internal/proto"
)

// Packet is a fully decoded wire packet (spec.md §3 Packet): its type, the
// request ID (zero/absent for INIT and VERSION), the extension name (only
// for EXTENDED), and the remaining type-specific payload.
type Packet struct {
	Type      proto.PacketType
	HasID     bool
	ID        uint32
	ExtName   string
	Payload   []byte
}

// DecodePacket parses a single packet body (everything after the u32 length
// prefix, which the channel layer already stripped — see internal/channel).
func DecodePacket(body []byte) (*Packet, error) {
	r := NewReader(body)
	typeByte, err := r.Byte()
	if err != nil {
		return nil, fmt.Errorf("decode packet type: %w", err)
	}
	pt := proto.PacketType(typeByte)

	p := &Packet{Type: pt}
	if pt.HasRequestID() {
		id, err := r.Uint32()
		if err != nil {
			return nil, fmt.Errorf("decode request id: %w", err)
		}
		p.HasID = true
		p.ID = id
	}
	if pt == proto.TypeExtended {
		name, err := r.String()
		if err != nil {
			return nil, fmt.Errorf("decode extension name: %w", err)
		}
		p.ExtName = name
	}
	p.Payload = r.Rest()
	return p, nil
}

// EncodePacketHeader starts a new Writer with the type byte, request ID (if
// applicable), and extension name (if EXTENDED) already written. Callers
// append the type-specific payload with further Writer calls, then pass the
// result to FinishPacket.
func EncodePacketHeader(pt proto.PacketType, id uint32, extName string) *Writer {
	w := NewWriter()
	w.Byte(byte(pt))
	if pt.HasRequestID() {
		w.Uint32(id)
	}
	if pt == proto.TypeExtended {
		w.String(extName)
	}
	return w
}
