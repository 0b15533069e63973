package sse

import (
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func attachListener(t *testing.T, d *Dispatcher, ctx context.Context, subsystem string) (client net.Conn, done chan struct{}) {
	t.Helper()
	client, server := net.Pipe()
	done = make(chan struct{})
	go func() {
		d.HandleListener(ctx, server, "", subsystem, nil, nil, time.Hour)
		close(done)
	}()
	return client, done
}

func readOne(t *testing.T, client net.Conn) string {
	t.Helper()
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 4096)
	n, err := client.Read(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestDispatcher_Notify_DeliversInRegistrationOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := NewDispatcher(ctx)

	var clients [3]net.Conn
	var dones [3]chan struct{}
	// Attach one at a time so that registration order is clients[0..2],
	// and read each listener's initial ping before attaching the next.
	for i := range clients {
		clients[i], dones[i] = attachListener(t, d, ctx, "sysA")
		require.Eventually(t, func() bool { return d.Stats().TotalConnections == int64(i+1) }, time.Second, time.Millisecond)
		readOne(t, clients[i]) // initial ping
	}

	go d.Notify("sysA", "upd", []byte(`{}`), "")

	// Notify blocks on writing to listener[0] until it's read, then [1],
	// then [2] -- reading out of that order would time out.
	for i, c := range clients {
		chunk := readOne(t, c)
		assert.Contains(t, chunk, "event: upd", "listener %d", i)
	}

	for _, c := range clients {
		c.Close()
	}
	for _, done := range dones {
		<-done
	}
}

func TestDispatcher_Notify_FanoutIsolatesDeadListener(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := NewDispatcher(ctx)

	deadClient, deadDone := attachListener(t, d, ctx, "sysA")
	aliveClient, aliveDone := attachListener(t, d, ctx, "sysA")
	require.Eventually(t, func() bool { return d.Stats().TotalConnections == 2 }, time.Second, time.Millisecond)
	readOne(t, aliveClient) // initial ping

	// Kill the first listener's connection before the notify; it is torn
	// down and dropped from the registry, and delivery to the second is
	// unaffected.
	deadClient.Close()
	<-deadDone

	d.Notify("sysA", "upd", []byte(`{}`), "")

	chunk := readOne(t, aliveClient)
	assert.Contains(t, chunk, "event: upd")

	aliveClient.Close()
	<-aliveDone
}

func TestDispatcher_Notify_UnknownSubsystemIsNotAnError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := NewDispatcher(ctx)
	d.Notify("does-not-exist", "upd", []byte(`{}`), "")
}

func TestDispatcher_Stats_Monotonic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := NewDispatcher(ctx)

	assert.Equal(t, int64(0), d.Stats().TotalConnections)

	client, done := attachListener(t, d, ctx, "sysA")
	require.Eventually(t, func() bool { return d.Stats().TotalConnections == 1 }, time.Second, time.Millisecond)

	client.Close()
	<-done

	assert.Equal(t, int64(1), d.Stats().TotalConnections)
}

func TestDispatcher_DisconnectAll_TerminatesEveryListener(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := NewDispatcher(ctx)

	client1, done1 := attachListener(t, d, ctx, "sysA")
	client2, done2 := attachListener(t, d, ctx, "sysB")
	// net.Pipe is unbuffered: keep reading so the initial pings and the
	// terminating chunks written on teardown do not block.
	go func() { _, _ = io.Copy(io.Discard, client1) }()
	go func() { _, _ = io.Copy(io.Discard, client2) }()
	require.Eventually(t, func() bool { return d.Stats().TotalConnections == 2 }, time.Second, time.Millisecond)

	d.DisconnectAll()

	<-done1
	<-done2
	assert.Empty(t, d.AllListeners())
}

func TestDispatcher_HandleListener_ExpiryLogsOutAndUnregisters(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := NewDispatcher(ctx)

	client, server := net.Pipe()
	defer client.Close()
	done := make(chan struct{})
	expire := time.Now().Add(-time.Minute)
	go func() {
		d.HandleListener(ctx, server, "", "sysA", nil, &expire, time.Hour)
		close(done)
	}()

	// The initial ping and the logout event race for the connection.
	chunk := readOne(t, client)
	if strings.Contains(chunk, "event: ping") {
		chunk = readOne(t, client)
	}
	assert.Contains(t, chunk, "event: logout")
	go func() { _, _ = io.Copy(io.Discard, client) }() // drain the rest

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleListener did not return after expiry")
	}
	assert.Empty(t, d.AllListeners())
}
