package httpapi

import (
	"bufio"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"
)

// requestHead is a parsed request line plus headers, hand-rolled rather
// than net/http's automatic parsing because the protocol contract calls
// for behavior net/http does not expose -- rejecting non-ASCII header
// bytes, accepting only HTTP/1.1, and answering an unrecognized method
// with 501 rather than silently routing it.
type requestHead struct {
	method  string
	path    string
	url     *url.URL
	headers http.Header
}

var allowedMethods = map[string]bool{
	"HEAD": true, "GET": true, "POST": true, "PUT": true,
}

// readRequestHead reads the request line and headers up to the blank
// line that terminates them. It never reads a body; callers that need one
// (this server never does) would continue reading from r themselves.
func readRequestHead(r *bufio.Reader) (*requestHead, error) {
	line, err := readHeaderLine(r)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return nil, badRequest("invalid request line")
	}
	method, path, httpTag := parts[0], parts[1], parts[2]
	if httpTag != "HTTP/1.1" {
		return nil, badRequest("unsupported HTTP version")
	}
	if !allowedMethods[method] {
		return nil, errNotImplemented
	}

	u, err := url.Parse(path)
	if err != nil {
		return nil, badRequest("invalid request target")
	}

	headers := make(http.Header)
	for {
		line, err := readHeaderLine(r)
		if err != nil {
			return nil, err
		}
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ": ")
		if !ok {
			return nil, badRequest("invalid header line")
		}
		headers.Add(name, value)
	}

	return &requestHead{method: method, path: path, url: u, headers: headers}, nil
}

func readHeaderLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", badRequest("unexpected end of request")
	}
	if !utf8.ValidString(line) || !isASCII(line) {
		return "", badRequest("non-ASCII characters in header")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}

// errNotImplemented signals an unrecognized method token; the server
// writes it like any other Error, as a 501 with a one-line message body.
var errNotImplemented = &Error{Status: 501, Message: "Not Implemented"}
