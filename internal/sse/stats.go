package sse

import "time"

// Stats is the read-only view of the dispatcher's counters.
type Stats struct {
	StartTime        time.Time
	TotalConnections int64
}

// ConnectionStats is the per-listener shape the /stats endpoint reports.
type ConnectionStats struct {
	Subsystem      string   `json:"subsystem"`
	Filters        []string `json:"filters"`
	ConnectionTime string   `json:"connection-time"`
	RemoteHost     *string  `json:"remote-host"`
	Referer        string   `json:"referer,omitempty"`
}

// JSONStats is the /stats response body shape.
type JSONStats struct {
	StartTime        string            `json:"start-time"`
	TotalConnections int64             `json:"total-connections"`
	Connections      []ConnectionStats `json:"connections"`
}

// BuildJSONStats assembles the /stats response from a stats snapshot and
// the listeners alive at the time of the request.
func BuildJSONStats(stats Stats, listeners []*Listener) JSONStats {
	conns := make([]ConnectionStats, 0, len(listeners))
	for _, l := range listeners {
		filterStrs := make([]string, 0, len(l.Filters()))
		for _, f := range l.Filters() {
			filterStrs = append(filterStrs, f.String())
		}
		host := l.RemoteHost()
		c := ConnectionStats{
			Subsystem:      l.Subsystem(),
			Filters:        filterStrs,
			ConnectionTime: l.ConnectionTime().Format(time.RFC3339Nano),
			RemoteHost:     &host,
		}
		if l.Referer() != "" {
			c.Referer = l.Referer()
		}
		conns = append(conns, c)
	}
	return JSONStats{
		StartTime:        stats.StartTime.Format(time.RFC3339Nano),
		TotalConnections: stats.TotalConnections,
		Connections:      conns,
	}
}
