package sse

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apex/log"

	"github.com/srittau/eventstreamd/internal/filter"
)

// ErrDisconnected signals that a write to a listener's connection failed
// because the peer has gone away. It never crosses a dispatcher boundary;
// it is swallowed at the point a single listener's delivery is attempted.
var ErrDisconnected = errors.New("connection lost")

// recheckInterval bounds how long LogoutAt waits between checks of the
// wall clock, so that large expiry horizons and clock jumps are both
// tolerated instead of requiring a single multi-hour timer.
const recheckInterval = 60 * time.Second

var listenerIDCounter atomic.Int64

// Listener is one connected SSE client: its filters, its writer, and the
// supervisory tasks (ping, logout) that race to tear it down.
//
// A Listener never holds a reference back to the Dispatcher that owns it;
// removal from the registry is driven by the dispatcher
// observing Listener.Closed(), not by the listener calling back in.
type Listener struct {
	id             int64
	subsystem      string
	filters        []*filter.Filter
	conn           net.Conn
	w              *bufio.Writer
	connectionTime time.Time
	referer        string
	pingInterval   time.Duration

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

// NewListener constructs a Listener for an already-accepted connection.
// The caller is responsible for registering it with a Dispatcher.
func NewListener(conn net.Conn, subsystem string, filters []*filter.Filter, pingInterval time.Duration, referer string) *Listener {
	return &Listener{
		id:             listenerIDCounter.Add(1),
		subsystem:      subsystem,
		filters:        filters,
		conn:           conn,
		w:              bufio.NewWriter(conn),
		connectionTime: time.Now(),
		referer:        referer,
		pingInterval:   pingInterval,
		closed:         make(chan struct{}),
	}
}

// String renders the listener as "#<id>" for log lines.
func (l *Listener) String() string {
	return "#" + strconv.FormatInt(l.id, 10)
}

// ID is the listener's monotonically increasing identity.
func (l *Listener) ID() int64 { return l.id }

// Subsystem is the channel this listener subscribed to.
func (l *Listener) Subsystem() string { return l.subsystem }

// Filters are the predicates a notification must pass to reach this
// listener.
func (l *Listener) Filters() []*filter.Filter { return l.filters }

// ConnectionTime is when the listener was registered.
func (l *Listener) ConnectionTime() time.Time { return l.connectionTime }

// Referer is the value of the request's Referer header, if any.
func (l *Listener) Referer() string { return l.referer }

// RemoteHost is the peer's address, without port.
func (l *Listener) RemoteHost() string {
	host, _, err := net.SplitHostPort(l.conn.RemoteAddr().String())
	if err != nil {
		return l.conn.RemoteAddr().String()
	}
	return host
}

// Closed reports whether the listener has transitioned to its terminal
// state (Registered -> Active -> Closed).
func (l *Listener) Closed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed exactly once, when the listener
// transitions to Closed, regardless of which of disconnect-detect,
// expiry, or global shutdown caused it.
func (l *Listener) Done() <-chan struct{} {
	return l.closed
}

// Notify evaluates the listener's filters against data (the raw JSON bytes
// of the notification payload) and, if all pass, writes a JSONEvent of
// type/data/id. A write failure (the peer disconnected) is swallowed:
// fanout must not abort because one client went away.
func (l *Listener) Notify(eventType string, data []byte, id string) {
	if !filter.MatchAll(l.filters, data) {
		log.Debugf("notifying client %s: not all filters matched", l)
		return
	}
	log.Debugf("notifying client %s", l)
	ev := Event{Type: eventType, Data: string(data), ID: id}
	if err := l.writeEvent(ev); err != nil {
		l.terminate()
	}
}

// PingLoop emits a PingEvent, then suspends for the configured ping
// interval and repeats, until the listener is closed or ctx is cancelled.
// It is the listener's primary liveness probe: a failed ping write tears
// the listener down just as surely as an observed peer disconnect.
func (l *Listener) PingLoop(ctx context.Context) {
	for {
		if err := l.writeEvent(NewPingEvent()); err != nil {
			l.terminate()
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-l.closed:
			return
		case <-time.After(l.pingInterval):
		}
	}
}

// LogoutAt suspends until wall-clock UTC reaches t, rechecking at most
// every recheckInterval to tolerate clock jumps and long horizons, then
// writes a LogoutEvent and tears the listener down. If t is already in the
// past, it does not wait: the LogoutEvent is written at once.
func (l *Listener) LogoutAt(ctx context.Context, t time.Time) {
	for {
		now := time.Now().UTC()
		if !now.Before(t) {
			break
		}
		wait := t.Sub(now)
		if wait > recheckInterval {
			wait = recheckInterval
		}
		select {
		case <-ctx.Done():
			return
		case <-l.closed:
			return
		case <-time.After(wait):
		}
	}
	_ = l.writeEvent(NewLogoutEvent())
	l.terminate()
}

// watchDisconnect blocks reading a single byte from the connection. SSE
// clients send nothing after the request, so this unblocks only when the
// peer closes its half of the connection (or resets it) -- the Go
// equivalent of polling StreamReader.at_eof() before every write.
func (l *Listener) watchDisconnect() {
	buf := make([]byte, 1)
	_, _ = l.conn.Read(buf)
	l.terminate()
}

// writeEvent writes a single event as one SSE chunk, failing with
// ErrDisconnected if the listener has already been torn down or the
// write itself fails.
func (l *Listener) writeEvent(ev Event) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	select {
	case <-l.closed:
		return ErrDisconnected
	default:
	}
	if err := WriteChunk(l.w, ev.Bytes()); err != nil {
		return ErrDisconnected
	}
	return nil
}

// terminate is the single idempotent transition to the Closed state. It
// is safe to call from any of the three triggers (disconnect-detect,
// expiry, global shutdown) any number of times; only the first call has
// an effect.
func (l *Listener) terminate() {
	l.closeOnce.Do(func() {
		close(l.closed)
		l.writeMu.Lock()
		_ = WriteLastChunk(l.w)
		_ = l.conn.Close()
		l.writeMu.Unlock()
	})
}

// Disconnect is the public, idempotent teardown entry point used by
// Dispatcher.DisconnectAll.
func (l *Listener) Disconnect() {
	l.terminate()
}
