package channel

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

func deadlineNow() time.Time {
	return time.Now().Add(2 * time.Second)
}

// Upgrader wraps gorilla/websocket's HTTP-to-WebSocket upgrade, pinning the
// "sftp" subprotocol (spec.md §6) and exposing the Basic-auth observation
// contract of spec.md §6 Authentication.
type Upgrader struct {
	upgrader websocket.Upgrader

	// CheckOrigin, if set, is forwarded to the underlying
	// websocket.Upgrader. Left nil to accept same-origin and explicit
	// tooling/CLI clients that don't send an Origin header at all.
	CheckOrigin func(r *http.Request) bool
}

// NewUpgrader returns an Upgrader with sensible read/write buffer sizes for
// this protocol's chunked I/O (spec.md §4.C read/write 1MiB cap).
func NewUpgrader() *Upgrader {
	u := &Upgrader{}
	u.upgrader = websocket.Upgrader{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		Subprotocols:    []string{Subprotocol},
		CheckOrigin:     func(r *http.Request) bool { return u.CheckOrigin == nil || u.CheckOrigin(r) },
	}
	return u
}

// AuthError is returned by Upgrade when the caller's authenticate function
// rejected the request's Authorization header (absent or present), after
// a 401 has been written. Info carries the request's
// sftp-authenticate-info header, if any.
type AuthError struct {
	Realm string
	Info  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("X_NOAUTH: authentication required (realm=%q)", e.Realm)
}

// Upgrade accepts an incoming HTTP request as a WebSocket channel. If
// authenticate is non-nil, it is called with the request's Authorization
// header value (empty string if absent); returning false responds with
// HTTP 401 and a WWW-Authenticate: Basic header before the handshake is
// attempted, short-circuiting without ever opening a channel.
func Upgrade(w http.ResponseWriter, r *http.Request, realm string, authenticate func(authHeader string) bool) (Channel, error) {
	if authenticate != nil {
		authHeader := r.Header.Get("Authorization")
		if !authenticate(authHeader) {
			w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", realm))
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return nil, &AuthError{Realm: realm, Info: r.Header.Get("sftp-authenticate-info")}
		}
	}

	up := NewUpgrader()
	conn, err := up.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(conn.Subprotocol(), Subprotocol) {
		_ = conn.Close()
		return nil, fmt.Errorf("channel: peer did not negotiate the %q subprotocol", Subprotocol)
	}
	return NewFromConn(conn), nil
}
