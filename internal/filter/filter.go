// Package filter implements the tiny predicate language used to narrow an
// /events subscription to a subset of notifications.
//
// A filter is a tagged variant over {string, date, integer} rather than a
// class hierarchy: the three kinds share one evaluation routine and differ
// only in how they pull a value out of a JSON payload and how they compare
// it. Evaluation never errors — a missing path or a type mismatch between
// the filter and the payload is simply "predicate false".
package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/buger/jsonparser"

	"github.com/srittau/eventstreamd/internal/dateparse"
)

// ErrInvalidFilter is returned (wrapped with details) when a filter string
// does not match the expected grammar.
var ErrInvalidFilter = errors.New("invalid filter")

// Kind identifies the dynamic type a Filter's value was parsed as, which in
// turn determines how the filter pulls its field out of a JSON payload.
type Kind int

const (
	KindString Kind = iota
	KindDate
	KindInt
)

// Filter is a single field/operator/value predicate, evaluated against a
// JSON payload.
type Filter struct {
	source   string
	fieldKey []string
	kind     Kind
	operator string
	strVal   string
	intVal   int64
	dateVal  time.Time
}

// String returns the exact source the filter was parsed from. The /stats
// endpoint relies on this being stable across the filter's lifetime.
func (f *Filter) String() string {
	return f.source
}

// Eval reports whether message (a raw JSON object) satisfies the filter.
// It never returns an error: any lookup failure, type mismatch, or
// unparseable value is treated as a non-match.
func (f *Filter) Eval(message []byte) bool {
	switch f.kind {
	case KindInt:
		v, err := jsonparser.GetInt(message, f.fieldKey...)
		if err != nil {
			return false
		}
		return compareInt(v, f.intVal, f.operator)
	case KindDate:
		s, err := jsonparser.GetString(message, f.fieldKey...)
		if err != nil {
			return false
		}
		d, err := dateparse.ParseISODate(s)
		if err != nil {
			return false
		}
		return compareTime(d, f.dateVal, f.operator)
	default: // KindString
		s, err := jsonparser.GetString(message, f.fieldKey...)
		if err != nil {
			return false
		}
		return compareString(s, f.strVal, f.operator)
	}
}

func compareString(a, b, op string) bool {
	switch op {
	case "=":
		return a == b
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	default:
		return false
	}
}

func compareInt(a, b int64, op string) bool {
	switch op {
	case "=":
		return a == b
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	case ">=":
		return a >= b
	default:
		return false
	}
}

func compareTime(a, b time.Time, op string) bool {
	switch op {
	case "=":
		return a.Equal(b)
	case "<":
		return a.Before(b)
	case "<=":
		return a.Before(b) || a.Equal(b)
	case ">":
		return a.After(b)
	case ">=":
		return a.After(b) || a.Equal(b)
	default:
		return false
	}
}

var (
	filterRe = regexp.MustCompile(`^([a-z.-]+)(=|>=|<=|<|>)(.*)$`)
)

// Parse parses a single filter expression, e.g. "foo.bar<='ABC'".
func Parse(s string) (*Filter, error) {
	m := filterRe.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("%w: '%s'", ErrInvalidFilter, s)
	}
	field := strings.ReplaceAll(m[1], ".", "/")
	operator := m[2]

	f := &Filter{
		source:   s,
		fieldKey: splitFieldPath(field),
		operator: operator,
	}

	raw := m[3]
	switch {
	case len(raw) >= 2 && strings.HasPrefix(raw, "'") && strings.HasSuffix(raw, "'"):
		f.kind = KindString
		f.strVal = raw[1 : len(raw)-1]
	default:
		if d, err := dateparse.ParseISODate(raw); err == nil {
			f.kind = KindDate
			f.dateVal = d
			return f, nil
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: '%s'", ErrInvalidFilter, s)
		}
		f.kind = KindInt
		f.intVal = n
	}
	return f, nil
}

func splitFieldPath(field string) []string {
	parts := strings.Split(field, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MatchAll reports whether message satisfies every filter in filters. An
// empty filter list always matches.
func MatchAll(filters []*Filter, message []byte) bool {
	for _, f := range filters {
		if !f.Eval(message) {
			return false
		}
	}
	return true
}
