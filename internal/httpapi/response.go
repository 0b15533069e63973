package httpapi

import (
	"bufio"
	"fmt"
	"net/http"
	"time"
)

func defaultHeaders() []Header {
	return []Header{
		{Name: "Date", Value: time.Now().UTC().Format(http.TimeFormat)},
		{Name: "Server", Value: "eventstreamd"},
	}
}

// writeHead writes the status line and headers, terminated by the blank
// line that separates headers from body. It never writes a body itself.
func writeHead(w *bufio.Writer, status int, headers []Header) error {
	if _, err := fmt.Fprintf(w, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status)); err != nil {
		return err
	}
	for _, h := range headers {
		if _, err := fmt.Fprintf(w, "%s: %s\r\n", h.Name, h.Value); err != nil {
			return err
		}
	}
	_, err := w.WriteString("\r\n")
	return err
}

func writeResponse(w *bufio.Writer, status int, headers []Header, body string) error {
	if err := writeHead(w, status, headers); err != nil {
		return err
	}
	if _, err := w.WriteString(body); err != nil {
		return err
	}
	return w.Flush()
}

func writeError(w *bufio.Writer, err *Error) error {
	headers := append(defaultHeaders(), err.Headers...)
	return writeResponse(w, err.Status, headers, err.Message+"\r\n")
}
