// Package tz re-expresses result timestamps in a requested time zone.
package tz

import (
	"log/slog"
	"time"

	"github.com/xtxerr/logbook/internal/history/types"
	"github.com/xtxerr/logbook/internal/logging"
)

// Layout is the timestamp form used after conversion.
const Layout = "2006-01-02T15:04:05.000-07:00"

// Info describes the zone a response was converted to.
type Info struct {
	Name     string `json:"name"`
	Offset   string `json:"offset"`
	Fallback bool   `json:"fallback,omitempty"`
}

// Converter converts timestamps. The zero value is not usable; use New.
type Converter struct {
	local *time.Location
	log   *slog.Logger
}

// New creates a converter that falls back to local. A nil local means time.Local.
func New(local *time.Location) *Converter {
	if local == nil {
		local = time.Local
	}
	return &Converter{local: local, log: logging.Component("tz")}
}

// Location returns the named zone. An empty name selects the local zone;
// an unknown name falls back to it with fallback set.
func (c *Converter) Location(name string) (loc *time.Location, fallback bool) {
	if name == "" {
		return c.local, false
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		c.log.Warn("unknown time zone, using local zone", "timezone", name, "error", err)
		return c.local, true
	}
	return loc, false
}

// Describe returns the zone info of loc as observed at t.
func Describe(loc *time.Location, at time.Time, fallback bool) Info {
	return Info{
		Name:     loc.String(),
		Offset:   at.In(loc).Format("-07:00"),
		Fallback: fallback,
	}
}

// Format renders t in loc.
func Format(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(Layout)
}

// ConvertRows rewrites the timestamp of each row in place. Rows whose
// timestamp does not parse are left unchanged.
func ConvertRows(rows []types.Row, loc *time.Location) {
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		ts, ok := row[0].(string)
		if !ok {
			continue
		}
		t, err := time.Parse(types.TimestampLayout, ts)
		if err != nil {
			continue
		}
		row[0] = Format(t, loc)
	}
}
