package sse

import (
	"context"
	"net"
	"time"

	"github.com/apex/log"

	"github.com/srittau/eventstreamd/internal/filter"
)

// Dispatcher is the subsystem -> listener registry and the fanout routine.
// Its state (the listener map and the connection counters) is owned by a
// single goroutine (run), which every other method reaches only through
// channels: no explicit lock is needed when exactly one goroutine ever
// touches the map.
type Dispatcher struct {
	registerCh      chan registerReq
	unregisterCh    chan *Listener
	notifyCh        chan notifyReq
	allListenersCh  chan chan []*Listener
	statsCh         chan chan Stats
	disconnectAllCh chan chan struct{}
}

type registerReq struct {
	listener *Listener
	done     chan struct{}
}

type notifyReq struct {
	subsystem string
	eventType string
	data      []byte
	id        string
	done      chan struct{}
}

// NewDispatcher creates a Dispatcher and starts its owning goroutine.
// Cancel ctx to stop it (after calling DisconnectAll).
func NewDispatcher(ctx context.Context) *Dispatcher {
	d := &Dispatcher{
		registerCh:      make(chan registerReq),
		unregisterCh:    make(chan *Listener),
		notifyCh:        make(chan notifyReq),
		allListenersCh:  make(chan chan []*Listener),
		statsCh:         make(chan chan Stats),
		disconnectAllCh: make(chan chan struct{}),
	}
	go d.run(ctx)
	return d
}

func (d *Dispatcher) run(ctx context.Context) {
	listeners := make(map[string][]*Listener)
	stats := Stats{StartTime: time.Now()}

	for {
		select {
		case <-ctx.Done():
			return

		case req := <-d.registerCh:
			listeners[req.listener.Subsystem()] = append(listeners[req.listener.Subsystem()], req.listener)
			stats.TotalConnections++
			close(req.done)

		case l := <-d.unregisterCh:
			bucket := listeners[l.Subsystem()]
			for i, other := range bucket {
				if other == l {
					bucket = append(bucket[:i], bucket[i+1:]...)
					break
				}
			}
			listeners[l.Subsystem()] = bucket
			log.Infof("client %s disconnected from subsystem '%s'", l, l.Subsystem())

		case req := <-d.notifyCh:
			// Snapshot: the listeners are copied into a fresh slice, so
			// appends and removals on listeners[req.subsystem] during
			// delivery cannot affect the listeners we're about to notify.
			snapshot := append([]*Listener(nil), listeners[req.subsystem]...)
			for _, l := range snapshot {
				l.Notify(req.eventType, req.data, req.id)
			}
			listeners[req.subsystem] = dropClosed(listeners[req.subsystem])
			log.Infof("notified %d listeners about '%s' event in subsystem '%s'", len(snapshot), req.eventType, req.subsystem)
			close(req.done)

		case reply := <-d.allListenersCh:
			var all []*Listener
			for _, bucket := range listeners {
				all = append(all, bucket...)
			}
			reply <- all

		case reply := <-d.statsCh:
			reply <- stats

		case done := <-d.disconnectAllCh:
			for _, bucket := range listeners {
				for _, l := range bucket {
					l.Disconnect()
				}
			}
			listeners = make(map[string][]*Listener)
			close(done)
		}
	}
}

func dropClosed(bucket []*Listener) []*Listener {
	out := bucket[:0]
	for _, l := range bucket {
		if !l.Closed() {
			out = append(out, l)
		}
	}
	return out
}

// HandleListener registers a new listener for subsystem, logs it, and runs
// its supervisory tasks (always a ping loop; a logout task too if expire
// is set) until the first of them completes, then tears it down and
// removes it from the registry. It blocks for the lifetime of the
// connection.
func (d *Dispatcher) HandleListener(
	ctx context.Context,
	conn net.Conn,
	referer string,
	subsystem string,
	filters []*filter.Filter,
	expire *time.Time,
	pingInterval time.Duration,
) {
	l := NewListener(conn, subsystem, filters, pingInterval, referer)

	done := make(chan struct{})
	d.registerCh <- registerReq{listener: l, done: done}
	<-done

	logListenerAdded(l)

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go l.watchDisconnect()
	go l.PingLoop(taskCtx)
	if expire != nil {
		go l.LogoutAt(taskCtx, *expire)
	}

	<-l.Done()
	cancel()

	d.unregisterCh <- l
}

func logListenerAdded(l *Listener) {
	entry := log.WithField("subsystem", l.Subsystem())
	if len(l.Filters()) > 0 {
		strs := make([]string, 0, len(l.Filters()))
		for _, f := range l.Filters() {
			strs = append(strs, f.String())
		}
		entry = entry.WithField("filters", strs)
	}
	entry.Infof("client %s subscribed to subsystem '%s'", l, l.Subsystem())
}

// Notify delivers a notification to every listener currently registered
// for subsystem, in registration order, applying each listener's filters.
// A missing subsystem is not an error: it behaves as an empty bucket.
// Notify blocks until delivery to the current listener snapshot has
// completed.
func (d *Dispatcher) Notify(subsystem, eventType string, data []byte, id string) {
	done := make(chan struct{})
	d.notifyCh <- notifyReq{subsystem: subsystem, eventType: eventType, data: data, id: id, done: done}
	<-done
}

// AllListeners returns every listener currently registered, across all
// subsystems, for use by the /stats endpoint.
func (d *Dispatcher) AllListeners() []*Listener {
	reply := make(chan []*Listener)
	d.allListenersCh <- reply
	return <-reply
}

// Stats returns the current connection counters.
func (d *Dispatcher) Stats() Stats {
	reply := make(chan Stats)
	d.statsCh <- reply
	return <-reply
}

// DisconnectAll tears down every registered listener and clears the
// registry. It blocks until every listener has been torn down.
func (d *Dispatcher) DisconnectAll() {
	done := make(chan struct{})
	d.disconnectAllCh <- done
	<-done
}
