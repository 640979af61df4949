package fsadapter

import (
	"context"
	"time"

	"github.com/marmos91/sftpws/internal/logger"
	"github.com/marmos91/sftpws/internal/sftpclient"
)

// state is the adapter lifecycle of spec.md §4.F: init → connecting →
// ready → closed (terminal), with ready falling back to init on channel
// close and then retrying via connecting if auto-reconnect is enabled.
type state int32

const (
	stateInit state = iota
	stateConnecting
	stateReady
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateInit:
		return "init"
	case stateConnecting:
		return "connecting"
	case stateReady:
		return "ready"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Start attempts the initial connection and, once the channel is up,
// keeps the adapter reconnecting across channel failures until End is
// called. It returns once the first connection attempt (success or
// failure) completes; reconnects after that run in the background.
func (a *Adapter) Start(ctx context.Context) {
	a.mu.Lock()
	if a.st == stateClosed {
		a.mu.Unlock()
		return
	}
	a.stopCh = make(chan struct{})
	a.mu.Unlock()

	a.connectOnce(ctx)
	go a.reconnectLoop(ctx)
}

// End transitions the adapter to closed, a terminal state: no further
// reconnect attempts are made and Ops calls return ENOTCONN.
func (a *Adapter) End() {
	a.mu.Lock()
	if a.st == stateClosed {
		a.mu.Unlock()
		return
	}
	a.st = stateClosed
	client := a.client
	a.client = nil
	stopCh := a.stopCh
	a.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	if client != nil {
		_ = client.Close()
	}
	if a.tracker != nil {
		a.tracker.Stop()
	}
	if a.metadata != nil {
		_ = a.metadata.Close()
	}
}

// connectOnce performs a single init→connecting→ready attempt, on
// failure returning to init (spec.md §4.F Lifecycle).
func (a *Adapter) connectOnce(ctx context.Context) {
	a.mu.Lock()
	if a.st == stateClosed {
		a.mu.Unlock()
		return
	}
	a.st = stateConnecting
	a.mu.Unlock()

	ch, err := a.dial(ctx)
	if err != nil {
		logger.WarnCtx(ctx, "fsadapter: dial failed", "error", err)
		a.mu.Lock()
		if a.st != stateClosed {
			a.st = stateInit
		}
		a.mu.Unlock()
		return
	}

	client := sftpclient.NewClient(ch)
	if err := client.Handshake(ctx); err != nil {
		logger.WarnCtx(ctx, "fsadapter: handshake failed", "error", err)
		_ = client.Close()
		a.mu.Lock()
		if a.st != stateClosed {
			a.st = stateInit
		}
		a.mu.Unlock()
		return
	}

	a.mu.Lock()
	if a.st == stateClosed {
		a.mu.Unlock()
		_ = client.Close()
		return
	}
	a.client = client
	a.st = stateReady
	a.mu.Unlock()

	ch.OnClose(func(closeErr error) {
		a.handleChannelClosed(ctx, closeErr)
	})
}

// handleChannelClosed implements the "ready + channel close → init" edge
// (spec.md §4.F): any handle the caller held is now invalid (they must
// reopen), but the caches survive.
func (a *Adapter) handleChannelClosed(ctx context.Context, closeErr error) {
	a.mu.Lock()
	if a.st == stateClosed {
		a.mu.Unlock()
		return
	}
	a.st = stateInit
	a.client = nil
	a.mu.Unlock()

	a.fds.releaseAll()
	logger.WarnCtx(ctx, "fsadapter: channel closed", "error", closeErr)
}

// reconnectLoop retries connectOnce with exponential backoff
// (1000ms → ×1.3 → capped at 7500ms, indefinitely) whenever the adapter
// is not ready and reconnect is enabled.
func (a *Adapter) reconnectLoop(ctx context.Context) {
	if !a.reconnect {
		return
	}
	backoff := backoffStart
	a.mu.Lock()
	stopCh := a.stopCh
	a.mu.Unlock()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			a.mu.Lock()
			needsConnect := a.st == stateInit
			a.mu.Unlock()
			if !needsConnect {
				backoff = backoffStart
				continue
			}
			a.connectOnce(ctx)
			a.mu.Lock()
			stillNotReady := a.st != stateReady
			a.mu.Unlock()
			if stillNotReady {
				select {
				case <-stopCh:
					return
				case <-time.After(backoff):
				}
				backoff = time.Duration(float64(backoff) * backoffFactor)
				if backoff > backoffCap {
					backoff = backoffCap
				}
			} else {
				backoff = backoffStart
			}
		}
	}
}
