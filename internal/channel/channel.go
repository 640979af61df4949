// Package channel implements the framed binary message transport of
// spec.md §4.B: a WebSocket connection carrying exactly one SFTP session,
// with a close-code-to-error-taxonomy mapping and the "reject non-binary
// frames" rule.
package channel

import (
	"github.com/marmos91/sftpws/internal/sftperr"
)

// Channel is the framed binary transport every protocol engine (client and
// server) is built on top of. Exactly one Channel backs one session
// (spec.md §4.B Rule).
type Channel interface {
	// Send transmits a single binary message. After Close, Send silently
	// drops the message (spec.md §4.B Rule).
	Send(data []byte) error

	// OnMessage registers the callback invoked for each inbound binary
	// message. Only one callback is supported; registering again replaces
	// the previous one.
	OnMessage(fn func(data []byte))

	// OnClose registers the callback invoked once when the channel closes,
	// whether locally or remotely initiated. err is nil for a normal close
	// (close code 1000).
	OnClose(fn func(err error))

	// Close closes the channel, sending code/reason to the peer if the
	// transport is still open.
	Close(code int, reason string) error
}

// Standard WebSocket close codes this module cares about (RFC 6455 §7.4.1).
const (
	CloseNormal            = 1000
	CloseGoingAway         = 1001
	CloseProtocolError     = 1002
	CloseAbnormal          = 1006
	CloseInvalidData       = 1007
	ClosePolicyViolation   = 1008
	CloseMessageTooBig     = 1009
	CloseInternalErrorA    = 1010
	CloseInternalErrorB    = 1011
	CloseTLSHandshakeError = 1015
)

// CloseCodeToError maps a received WebSocket close code to the structured
// error taxonomy of spec.md §4.B. established indicates whether the
// channel ever reached the open state; if it did not, the result is always
// ECONNREFUSED regardless of code, per spec.md §4.B.
func CloseCodeToError(code int, reason string, established bool) error {
	if code == CloseNormal {
		return nil
	}
	if !established {
		return econnrefused()
	}
	switch code {
	case CloseGoingAway:
		return sftperr.New("X_GOINGAWAY", "peer is going away")
	case CloseProtocolError:
		return sftperr.New("EPROTOTYPE", "protocol error")
	case CloseAbnormal:
		return sftperr.New("ECONNABORTED", "connection aborted")
	case CloseInvalidData:
		return sftperr.New("EINVALIDDATA", "invalid message data")
	case ClosePolicyViolation:
		return sftperr.New("EPROHIBITED", "prohibited message")
	case CloseMessageTooBig:
		return sftperr.New("EMSGSIZE", "message too large")
	case CloseInternalErrorA, CloseInternalErrorB:
		return sftperr.New("ECONNRESET", reason)
	case CloseTLSHandshakeError:
		return sftperr.New("ESECURE", "secure negotiation failure")
	default:
		return sftperr.New("EFAILURE", "channel closed")
	}
}

func econnrefused() error {
	return sftperr.New("ECONNREFUSED", "connection refused")
}
