package ingest

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notification struct {
	subsystem, eventType, id string
	data                     []byte
}

type fakeNotifier struct {
	mu  sync.Mutex
	got []notification
}

func (f *fakeNotifier) Notify(subsystem, eventType string, data []byte, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, notification{subsystem, eventType, id, append([]byte(nil), data...)})
}

func (f *fakeNotifier) snapshot() []notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notification(nil), f.got...)
}

func TestServer_HandleNotify(t *testing.T) {
	fn := &fakeNotifier{}
	s := NewServer(fn)
	client, server := net.Pipe()
	go s.handle(server)

	_, err := client.Write([]byte(`{"action":"notify","subsystem":"sysA","event":"upd","data":{"x":1},"id":"7"}` + "\n"))
	require.NoError(t, err)
	require.NoError(t, client.Close())

	require.Eventually(t, func() bool { return len(fn.snapshot()) == 1 }, time.Second, time.Millisecond)
	got := fn.snapshot()[0]
	assert.Equal(t, "sysA", got.subsystem)
	assert.Equal(t, "upd", got.eventType)
	assert.Equal(t, "7", got.id)
	assert.JSONEq(t, `{"x":1}`, string(got.data))
}

func TestServer_UnknownActionIgnored(t *testing.T) {
	fn := &fakeNotifier{}
	s := NewServer(fn)
	client, server := net.Pipe()
	go s.handle(server)

	_, err := client.Write([]byte(`{"action":"bogus"}` + "\n"))
	require.NoError(t, err)
	require.NoError(t, client.Close())

	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, fn.snapshot())
}

func TestServer_MalformedLineSkipped(t *testing.T) {
	fn := &fakeNotifier{}
	s := NewServer(fn)
	client, server := net.Pipe()
	go s.handle(server)

	_, err := client.Write([]byte("not json\n"))
	require.NoError(t, err)
	_, err = client.Write([]byte(`{"action":"notify","subsystem":"sysA","event":"e","data":{},"id":"1"}` + "\n"))
	require.NoError(t, err)
	require.NoError(t, client.Close())

	require.Eventually(t, func() bool { return len(fn.snapshot()) == 1 }, time.Second, time.Millisecond)
}

func TestServer_MissingFieldDropped(t *testing.T) {
	fn := &fakeNotifier{}
	s := NewServer(fn)
	client, server := net.Pipe()
	go s.handle(server)

	_, err := client.Write([]byte(`{"action":"notify","subsystem":"sysA","event":"e","id":"1"}` + "\n"))
	require.NoError(t, err)
	require.NoError(t, client.Close())

	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, fn.snapshot())
}
