package channel

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/marmos91/sftpws/internal/logger"
)

// Subprotocol is the WebSocket subprotocol this module negotiates
// (spec.md §6).
const Subprotocol = "sftp"

// Dial opens a client-side channel to url (ws:// or wss://), negotiating
// Subprotocol and presenting authHeader as the Authorization header if
// non-empty (spec.md §6 credential-conveyance contract).
func Dial(ctx context.Context, url, authHeader string) (Channel, error) {
	dialer := websocket.Dialer{Subprotocols: []string{Subprotocol}}
	header := http.Header{}
	if authHeader != "" {
		header.Set("Authorization", authHeader)
	}
	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return NewFromConn(conn), nil
}

// wsChannel adapts a *websocket.Conn to the Channel interface.
type wsChannel struct {
	conn *websocket.Conn

	mu          sync.Mutex
	closed      bool
	established bool

	onMessage func(data []byte)
	onClose   func(err error)

	readOnce sync.Once
}

// NewFromConn wraps an already-established *websocket.Conn. The channel
// is always marked established, since conn has completed the WebSocket
// opening handshake (spec.md §4.B: only a channel that never opened maps
// close events to ECONNREFUSED).
func NewFromConn(conn *websocket.Conn) Channel {
	c := &wsChannel{conn: conn, established: true}
	conn.SetCloseHandler(func(code int, text string) error {
		c.handleClose(code, text)
		return nil
	})
	return c
}

func (c *wsChannel) OnMessage(fn func(data []byte)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
	c.readOnce.Do(c.startReadLoop)
}

func (c *wsChannel) OnClose(fn func(err error)) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

func (c *wsChannel) startReadLoop() {
	go func() {
		for {
			msgType, data, err := c.conn.ReadMessage()
			if err != nil {
				if ce, ok := err.(*websocket.CloseError); ok {
					c.handleClose(ce.Code, ce.Text)
				} else {
					c.handleClose(CloseAbnormal, err.Error())
				}
				return
			}
			if msgType != websocket.BinaryMessage {
				// spec.md §4.B: reject non-binary frames with a protocol
				// error that closes the channel with code 1007.
				_ = c.Close(CloseInvalidData, "text frames are not accepted")
				return
			}
			c.mu.Lock()
			cb := c.onMessage
			c.mu.Unlock()
			if cb != nil {
				cb(data)
			}
		}
	}()
}

func (c *wsChannel) handleClose(code int, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cb := c.onClose
	established := c.established
	c.mu.Unlock()

	if cb != nil {
		cb(CloseCodeToError(code, reason, established))
	}
}

func (c *wsChannel) Send(data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		// spec.md §4.B: after local close, further sends are silently
		// dropped.
		return nil
	}
	c.mu.Unlock()

	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		logger.Debug("channel send failed", "error", err)
		return err
	}
	return nil
}

func (c *wsChannel) Close(code int, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cb := c.onClose
	established := c.established
	c.mu.Unlock()

	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadlineNow())
	err := c.conn.Close()

	if cb != nil {
		cb(CloseCodeToError(code, reason, established))
	}
	return err
}
