// Package ingest implements the producer ingress: a local stream socket
// that accepts newline-delimited JSON "notify" commands and hands them to
// a Dispatcher.
package ingest

import (
	"bufio"
	"io"
	"net"

	"github.com/apex/log"
	"github.com/buger/jsonparser"
)

// Notifier is the subset of Dispatcher the producer ingress depends on.
type Notifier interface {
	Notify(subsystem, eventType string, data []byte, id string)
}

// Server accepts producer connections on a listener (normally a Unix
// domain socket) and feeds every "notify" command it reads to a Notifier.
type Server struct {
	dispatcher Notifier
}

// NewServer creates a producer ingress bound to dispatcher.
func NewServer(dispatcher Notifier) *Server {
	return &Server{dispatcher: dispatcher}
}

// Serve accepts connections from ln until it is closed. Each connection
// is handled in its own goroutine; a connection ends when its reader
// reaches EOF.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			s.handleLine(line)
		}
		if err != nil {
			if err != io.EOF {
				log.WithError(err).Warn("producer connection read error")
			}
			return
		}
	}
}

// handleLine parses a single newline-delimited JSON command. Malformed
// lines, and lines with an unrecognized or missing "action", are logged
// and skipped; they never tear down the connection.
func (s *Server) handleLine(line []byte) {
	action, err := jsonparser.GetString(line, "action")
	if err != nil {
		log.WithError(err).Warn("received invalid JSON on producer socket")
		return
	}
	switch action {
	case "notify":
		s.handleNotify(line)
	default:
		log.Warnf("received unknown action '%s'", action)
	}
}

// handleNotify extracts subsystem, event, data, and id from a "notify"
// command. All four fields are mandatory; if any is missing or the wrong
// type, the message is dropped with a log entry.
func (s *Server) handleNotify(line []byte) {
	subsystem, err := jsonparser.GetString(line, "subsystem")
	if err != nil {
		log.WithError(err).Error("notify message missing 'subsystem'")
		return
	}
	event, err := jsonparser.GetString(line, "event")
	if err != nil {
		log.WithError(err).Error("notify message missing 'event'")
		return
	}
	data, dataType, _, err := jsonparser.Get(line, "data")
	if err != nil || dataType != jsonparser.Object {
		log.Error("notify message missing or non-object 'data'")
		return
	}
	id, err := jsonparser.GetString(line, "id")
	if err != nil {
		log.WithError(err).Error("notify message missing 'id'")
		return
	}
	s.dispatcher.Notify(subsystem, event, data, id)
}
