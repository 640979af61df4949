package channel

import "sync"

// memChannel is an in-process Channel with no network involved, used to
// test the client/server protocol engines against each other directly
// (grounded in the teacher's preference for fast in-process tests over
// containerized integration tests).
type memChannel struct {
	mu        sync.Mutex
	closed    bool
	peer      *memChannel
	onMessage func(data []byte)
	onClose   func(err error)
}

// NewMemoryPair returns two Channels wired directly to each other: sends on
// one are delivered asynchronously (via a new goroutine, to avoid
// reentrancy) to the other's OnMessage callback.
func NewMemoryPair() (client Channel, server Channel) {
	a := &memChannel{}
	b := &memChannel{}
	a.peer = b
	b.peer = a
	return a, b
}

func (c *memChannel) OnMessage(fn func(data []byte)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

func (c *memChannel) OnClose(fn func(err error)) {
	c.mu.Lock()
	c.onClose = fn
	c.mu.Unlock()
}

func (c *memChannel) Send(data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	peer := c.peer
	c.mu.Unlock()

	// Copy: the sender may reuse/mutate its buffer after Send returns.
	cp := make([]byte, len(data))
	copy(cp, data)

	peer.mu.Lock()
	cb := peer.onMessage
	peerClosed := peer.closed
	peer.mu.Unlock()

	if cb != nil && !peerClosed {
		go cb(cp)
	}
	return nil
}

func (c *memChannel) Close(code int, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cb := c.onClose
	peer := c.peer
	c.mu.Unlock()

	if cb != nil {
		cb(CloseCodeToError(code, reason, true))
	}

	// Propagate the close to the peer as an abnormal remote close, unless
	// it already initiated its own close.
	peer.mu.Lock()
	if !peer.closed {
		peer.closed = true
		peerCb := peer.onClose
		peer.mu.Unlock()
		if peerCb != nil {
			peerCb(CloseCodeToError(CloseAbnormal, reason, true))
		}
	} else {
		peer.mu.Unlock()
	}
	return nil
}
