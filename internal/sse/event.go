// Package sse implements the event-stream wire format, the per-connection
// listener state machine, and the fanout dispatcher.
package sse

import (
	"bufio"
	"encoding/json"
	"fmt"
)

// Event is a single server-sent event. Type is not required by the SSE
// protocol itself, but every event the dispatcher emits carries one.
type Event struct {
	Type string
	Data string
	ID   string
}

// NewPingEvent builds the keep-alive event the ping loop emits on a timer.
func NewPingEvent() Event {
	return Event{Type: "ping"}
}

// NewJSONEvent builds an event whose data is the JSON encoding of payload.
// If payload is already a string it is passed through verbatim.
func NewJSONEvent(eventType string, payload any, id string) (Event, error) {
	if s, ok := payload.(string); ok {
		return Event{Type: eventType, Data: s, ID: id}, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encoding event payload: %w", err)
	}
	return Event{Type: eventType, Data: string(b), ID: id}, nil
}

// NewLogoutEvent builds the event sent to a listener whose session expired.
func NewLogoutEvent() Event {
	ev, _ := NewJSONEvent("logout", map[string]string{"reason": "expire"}, "")
	return ev
}

// Bytes serializes the event for use in an event stream: a sequence of
// "field: value" lines terminated by "\r\n", ended by a blank "\r\n".
func (e Event) Bytes() []byte {
	var buf []byte
	buf = append(buf, "event: "...)
	buf = append(buf, e.Type...)
	buf = append(buf, "\r\n"...)
	buf = append(buf, "data: "...)
	buf = append(buf, e.Data...)
	buf = append(buf, "\r\n"...)
	if e.ID != "" {
		buf = append(buf, "id: "...)
		buf = append(buf, e.ID...)
		buf = append(buf, "\r\n"...)
	}
	buf = append(buf, "\r\n"...)
	return buf
}

// WriteChunk writes data as a single HTTP chunked-transfer-encoding frame:
// "<hex-size>\r\n<data>\r\n". A zero-length data slice is the terminating
// chunk.
func WriteChunk(w *bufio.Writer, data []byte) error {
	if _, err := fmt.Fprintf(w, "%x\r\n", len(data)); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if _, err := w.Write([]byte("\r\n")); err != nil {
		return err
	}
	return w.Flush()
}

// WriteLastChunk writes the zero-length chunk that marks end-of-stream.
func WriteLastChunk(w *bufio.Writer) error {
	return WriteChunk(w, nil)
}
