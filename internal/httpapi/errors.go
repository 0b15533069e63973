package httpapi

import (
	"fmt"
	"net/http"
)

// Header is a single response header, kept as a pair rather than
// http.Header so the hand-rolled writer in response.go can emit them in a
// fixed, deliberate order instead of Go's map iteration order.
type Header struct {
	Name  string
	Value string
}

// Error is an HTTP-visible failure: a status code, a message that becomes
// the (one-line) response body, and any headers the status requires (the
// 401 case needs WWW-Authenticate).
type Error struct {
	Status  int
	Message string
	Headers []Header
}

func (e *Error) Error() string { return e.Message }

func badRequest(message string) *Error {
	return &Error{Status: http.StatusBadRequest, Message: message}
}

// argumentError renders "name: message" for an /events query-argument
// failure.
func argumentError(name, message string) *Error {
	return badRequest(fmt.Sprintf("%s: %s", name, message))
}

func notFound(path string) *Error {
	return &Error{Status: http.StatusNotFound, Message: fmt.Sprintf("'%s' not found", path)}
}

func methodNotAllowed(method string) *Error {
	return &Error{Status: http.StatusMethodNotAllowed, Message: fmt.Sprintf("method %s not allowed", method)}
}

func unauthorized(challenge string) *Error {
	return &Error{
		Status:  http.StatusUnauthorized,
		Message: "Unauthorized",
		Headers: []Header{{Name: "WWW-Authenticate", Value: challenge}},
	}
}

func forbidden() *Error {
	return &Error{Status: http.StatusForbidden, Message: "Forbidden"}
}

func internalServerError() *Error {
	return &Error{Status: http.StatusInternalServerError, Message: "Internal Server Error"}
}
