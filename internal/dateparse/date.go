// Package dateparse parses the ISO-8601 date forms accepted by the filter
// language: "YYYY-MM-DD" and the dashless "YYYYMMDD".
package dateparse

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var isoDateRe = regexp.MustCompile(`^(\d\d\d\d)-?(\d\d)-?(\d\d)$`)

// ParseISODate parses s as an ISO-8601 calendar date. It rejects anything
// that isn't exactly four digits, two digits, two digits (with or without
// dashes), and any value that doesn't name a real calendar day.
func ParseISODate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("invalid date '%s'", s)
	}
	m := isoDateRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, fmt.Errorf("invalid date '%s'", s)
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, fmt.Errorf("invalid date '%s'", s)
	}
	return t, nil
}
