package sse

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srittau/eventstreamd/internal/filter"
)

func newTestListener(t *testing.T) (*Listener, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	l := NewListener(server, "sysA", nil, time.Hour, "")
	t.Cleanup(func() { client.Close() })
	return l, client
}

func readChunk(t *testing.T, client net.Conn) string {
	t.Helper()
	buf := make([]byte, 4096)
	n, err := client.Read(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestListener_Notify_WritesMatchingEvent(t *testing.T) {
	l, client := newTestListener(t)
	done := make(chan struct{})
	go func() {
		l.Notify("upd", []byte(`{"x":1}`), "7")
		close(done)
	}()
	chunk := readChunk(t, client)
	assert.Contains(t, chunk, "event: upd\r\ndata: {\"x\":1}\r\nid: 7\r\n\r\n")
	<-done
}

func TestListener_Notify_FilteredOutSendsNothing(t *testing.T) {
	f, err := filter.Parse("x=2")
	require.NoError(t, err)
	client, server := net.Pipe()
	defer client.Close()
	l := NewListener(server, "sysA", []*filter.Filter{f}, time.Hour, "")

	notified := make(chan struct{})
	go func() {
		l.Notify("upd", []byte(`{"x":1}`), "")
		close(notified)
	}()
	<-notified
	assert.False(t, l.Closed())
}

func TestListener_Disconnect_IsIdempotent(t *testing.T) {
	l, client := newTestListener(t)
	// Close the peer first: terminate()'s own write of the final chunk
	// would otherwise block forever on net.Pipe's synchronous semantics
	// with nobody left to read it.
	client.Close()
	l.Disconnect()
	l.Disconnect()
	l.Disconnect()
	assert.True(t, l.Closed())
}

func TestListener_WatchDisconnect_ClosesOnPeerClose(t *testing.T) {
	l, client := newTestListener(t)
	go l.watchDisconnect()
	client.Close()
	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("listener did not close after peer disconnect")
	}
}

func TestListener_PingLoop_StopsOnClose(t *testing.T) {
	l, client := newTestListener(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.PingLoop(ctx)
	readChunk(t, client) // first ping
	client.Close()
	l.Disconnect()
	assert.True(t, l.Closed())
}

func TestListener_LogoutAt_PastTimeFiresImmediately(t *testing.T) {
	l, client := newTestListener(t)
	go l.LogoutAt(context.Background(), time.Now().Add(-time.Minute))
	chunk := readChunk(t, client)
	assert.Contains(t, chunk, "event: logout")
	assert.Contains(t, chunk, `"reason":"expire"`)
	readChunk(t, client) // drain the terminating zero-length chunk
}

func TestListener_RemoteHost(t *testing.T) {
	l, _ := newTestListener(t)
	assert.NotEmpty(t, l.RemoteHost())
}

func TestListener_String(t *testing.T) {
	l, _ := newTestListener(t)
	assert.Regexp(t, `^#\d+$`, l.String())
}
