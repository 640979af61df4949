package channel

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCloseCodeMapping(t *testing.T) {
	cases := []struct {
		code        int
		established bool
		wantCode    string
	}{
		{CloseNormal, true, ""},
		{CloseGoingAway, true, "X_GOINGAWAY"},
		{CloseProtocolError, true, "EPROTOTYPE"},
		{CloseAbnormal, true, "ECONNABORTED"},
		{CloseAbnormal, false, "ECONNREFUSED"},
		{CloseInternalErrorA, true, "ECONNRESET"},
		{CloseInternalErrorB, true, "ECONNRESET"},
		{CloseTLSHandshakeError, true, "ESECURE"},
		{9999, true, "EFAILURE"},
	}
	for _, tc := range cases {
		err := CloseCodeToError(tc.code, "reason", tc.established)
		if tc.wantCode == "" {
			require.NoError(t, err)
			continue
		}
		require.Error(t, err)
		require.Contains(t, err.Error(), tc.wantCode)
	}
}

func TestMemoryPairSendReceive(t *testing.T) {
	client, server := NewMemoryPair()

	var mu sync.Mutex
	var got []byte
	done := make(chan struct{})
	server.OnMessage(func(data []byte) {
		mu.Lock()
		got = data
		mu.Unlock()
		close(done)
	})

	require.NoError(t, client.Send([]byte{1, 2, 3}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []byte{1, 2, 3}, got)
}

func TestMemoryPairCloseNotifiesBothSides(t *testing.T) {
	client, server := NewMemoryPair()

	clientClosed := make(chan error, 1)
	serverClosed := make(chan error, 1)
	client.OnClose(func(err error) { clientClosed <- err })
	server.OnClose(func(err error) { serverClosed <- err })

	require.NoError(t, client.Close(CloseNormal, "bye"))

	select {
	case err := <-clientClosed:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("client close callback never fired")
	}

	select {
	case err := <-serverClosed:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("server close callback never fired")
	}
}

func TestSendAfterCloseIsSilentlyDropped(t *testing.T) {
	client, _ := NewMemoryPair()
	require.NoError(t, client.Close(CloseNormal, ""))
	require.NoError(t, client.Send([]byte{1}))
}
