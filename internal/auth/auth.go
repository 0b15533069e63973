// Package auth defines the pluggable authorization boundary that sits in
// front of the HTTP consumer endpoints. A Checker is injected at server
// construction, with the no-auth case being a default allow-all
// implementation.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Result is what a Checker returns when it permits the request through.
// Expire, if set, is the wall-clock time at which the resulting listener
// must be logged out. Data is opaque to the core and only threaded
// through for a Checker's own bookkeeping.
type Result struct {
	Expire *time.Time
	Data   any
}

// Unauthorized is returned by a Checker to demand credentials. Authenticate
// is mandatory and becomes the response's WWW-Authenticate header; a
// Checker that omits it has committed a PluginError.
type Unauthorized struct {
	Authenticate string
}

func (e *Unauthorized) Error() string { return "unauthorized" }

// Forbidden is returned by a Checker to deny the request outright.
type Forbidden struct{}

func (Forbidden) Error() string { return "forbidden" }

// PluginError signals a malformed Checker response, e.g. an Unauthorized
// with no Authenticate challenge. It always renders as a 500.
type PluginError struct {
	Plugin  string
	Message string
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("auth plugin %q: %s", e.Plugin, e.Message)
}

// Checker is the auth adapter contract. route is "events" or "stats";
// headers are the request's HTTP headers, verbatim; subsystem is the
// subsystem being subscribed to on "events" (empty on "stats"), letting a
// Checker restrict a subsystem to particular tokens.
type Checker interface {
	CheckAuth(ctx context.Context, route string, headers http.Header, subsystem string) (Result, error)
}

// AllowAll is the default Checker used when no auth adapter is configured:
// every request is admitted with no expiry.
type AllowAll struct{}

func (AllowAll) CheckAuth(context.Context, string, http.Header, string) (Result, error) {
	return Result{}, nil
}
