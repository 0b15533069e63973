// Package httpapi implements the consumer-facing HTTP ingress: the
// /events and /stats endpoints. Parsing and framing are hand-rolled over
// a raw net.Conn rather than built on net/http, because the wire contract
// needs control net/http does not expose: rejecting non-ASCII header
// bytes, accepting only HTTP/1.1, signalling 501 for an unrecognized
// method, and writing SSE chunks with an explicit hex-size frame.
package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/apex/log"

	"github.com/srittau/eventstreamd/internal/auth"
	"github.com/srittau/eventstreamd/internal/filter"
	"github.com/srittau/eventstreamd/internal/sse"
)

// Dispatcher is the subset of *sse.Dispatcher the HTTP ingress depends on.
type Dispatcher interface {
	HandleListener(ctx context.Context, conn net.Conn, referer, subsystem string, filters []*filter.Filter, expire *time.Time, pingInterval time.Duration)
	AllListeners() []*sse.Listener
	Stats() sse.Stats
}

// Server is the HTTP consumer ingress.
type Server struct {
	dispatcher   Dispatcher
	checker      auth.Checker
	pingInterval time.Duration
}

// NewServer builds an HTTP ingress. checker is consulted on every request;
// pass auth.AllowAll{} if no auth adapter is configured.
func NewServer(dispatcher Dispatcher, checker auth.Checker, pingInterval time.Duration) *Server {
	if checker == nil {
		checker = auth.AllowAll{}
	}
	return &Server{dispatcher: dispatcher, checker: checker, pingInterval: pingInterval}
}

// Serve accepts connections from ln until it is closed. ctx is handed to
// every connection's handler; cancelling it does not stop the accept loop.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handle(ctx, conn)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	w := bufio.NewWriter(conn)
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("panic handling HTTP request: %v", rec)
			_ = writeError(w, internalServerError())
			_ = conn.Close()
		}
	}()

	r := bufio.NewReader(conn)
	head, err := readRequestHead(r)
	if err != nil {
		s.writeFailure(w, err)
		_ = conn.Close()
		return
	}

	closeConn := s.route(ctx, conn, w, head)
	if closeConn {
		_ = conn.Close()
	}
}

func (s *Server) writeFailure(w *bufio.Writer, err error) {
	httpErr, ok := err.(*Error)
	if !ok {
		httpErr = internalServerError()
	}
	if writeErr := writeError(w, httpErr); writeErr != nil {
		log.WithError(writeErr).Warn("failed writing HTTP error response")
	}
}

// route dispatches a parsed request to its handler and reports whether the
// caller should close the connection once the handler returns. /events
// keeps the connection open under the dispatcher's control (it returns
// only once the attached listener is torn down), so it reports false.
func (s *Server) route(ctx context.Context, conn net.Conn, w *bufio.Writer, head *requestHead) (closeConn bool) {
	path := head.url.Path
	switch path {
	case "/events":
		if head.method != http.MethodGet {
			s.writeFailure(w, methodNotAllowed(head.method))
			return true
		}
		s.handleEvents(ctx, conn, w, head)
		return false
	case "/stats":
		if head.method != http.MethodGet {
			s.writeFailure(w, methodNotAllowed(head.method))
			return true
		}
		s.handleStats(ctx, w, head)
		return true
	default:
		s.writeFailure(w, notFound(path))
		return true
	}
}

func (s *Server) handleEvents(ctx context.Context, conn net.Conn, w *bufio.Writer, head *requestHead) {
	attached := false
	defer func() {
		if !attached {
			_ = conn.Close()
		}
	}()

	query := head.url.Query()
	subsystems, ok := query["subsystem"]
	if !ok || len(subsystems) == 0 || subsystems[0] == "" {
		s.writeFailure(w, argumentError("subsystem", "missing argument"))
		return
	}
	subsystem := subsystems[0]

	filters := make([]*filter.Filter, 0, len(query["filter"]))
	for _, raw := range query["filter"] {
		f, err := filter.Parse(raw)
		if err != nil {
			s.writeFailure(w, argumentError("filter", "could not parse filter"))
			return
		}
		filters = append(filters, f)
	}

	result, err := s.checker.CheckAuth(ctx, "events", head.headers, subsystem)
	if err != nil {
		s.writeFailure(w, mapAuthError(err))
		return
	}

	headers := append(defaultHeaders(),
		Header{Name: "Transfer-Encoding", Value: "chunked"},
		Header{Name: "Content-Type", Value: "text/event-stream"},
		Header{Name: "Connection", Value: "keep-alive"},
		Header{Name: "Keep-Alive", Value: "timeout=5, max=100"},
	)
	if origin := head.headers.Get("Origin"); origin != "" {
		headers = append(headers,
			Header{Name: "Access-Control-Allow-Credentials", Value: "true"},
			Header{Name: "Access-Control-Allow-Origin", Value: origin},
		)
	}
	if err := writeHead(w, http.StatusOK, headers); err != nil {
		return
	}
	if err := w.Flush(); err != nil {
		return
	}

	referer := head.headers.Get("Referer")
	attached = true
	s.dispatcher.HandleListener(ctx, conn, referer, subsystem, filters, result.Expire, s.pingInterval)
}

func (s *Server) handleStats(ctx context.Context, w *bufio.Writer, head *requestHead) {
	if _, err := s.checker.CheckAuth(ctx, "stats", head.headers, ""); err != nil {
		s.writeFailure(w, mapAuthError(err))
		return
	}

	stats := sse.BuildJSONStats(s.dispatcher.Stats(), s.dispatcher.AllListeners())
	body, err := json.Marshal(stats)
	if err != nil {
		log.WithError(err).Error("encoding /stats response")
		s.writeFailure(w, internalServerError())
		return
	}

	headers := append(defaultHeaders(),
		Header{Name: "Connection", Value: "close"},
		Header{Name: "Content-Type", Value: "application/json"},
		Header{Name: "Content-Length", Value: strconv.Itoa(len(body))},
	)
	if err := writeResponse(w, http.StatusOK, headers, string(body)); err != nil {
		log.WithError(err).Warn("failed writing /stats response")
	}
}

func mapAuthError(err error) *Error {
	switch e := err.(type) {
	case *auth.Unauthorized:
		if e.Authenticate == "" {
			return internalServerError()
		}
		return unauthorized(e.Authenticate)
	case auth.Forbidden:
		return forbidden()
	case *auth.PluginError:
		return internalServerError()
	default:
		return internalServerError()
	}
}
