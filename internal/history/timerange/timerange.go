// Package timerange turns the time-range query parameters of a history request
// into a validated [from, to) interval.
//
// Accepted forms, in priority order:
//
//	start + duration   deprecated; start=now behaves like duration only
//	duration           to = now, from = to - duration
//	from + duration    to = from + duration
//	to + duration      from = to - duration
//	from               to = now
//	from + to          as given
package timerange

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xtxerr/logbook/internal/errors"
	"github.com/xtxerr/logbook/internal/history/types"
)

// AcceptedForms is included in every range error.
const AcceptedForms = "accepted forms: duration; from+duration; to+duration; from; from+to; start+duration (deprecated)"

// Accepted datetime layouts, named in datetime errors.
const (
	LayoutWithOffset    = "2006-01-02T15:04:05Z"
	LayoutWithoutOffset = "2006-01-02T15:04:05"
)

var durationPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

var durationUnits = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
}

// localLayouts are tried for datetimes without an explicit offset.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Params are the raw query parameters.
type Params struct {
	Duration string
	From     string
	To       string
	Start    string
	UseUTC   bool
}

// Resolver resolves Params against a clock and a local zone.
type Resolver struct {
	now   func() time.Time
	local *time.Location
}

// NewResolver creates a resolver using the wall clock and the process zone.
func NewResolver() *Resolver {
	return &Resolver{now: time.Now, local: time.Local}
}

// WithClock returns a copy of r using now as its clock.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	c := *r
	c.now = now
	return &c
}

// WithLocation returns a copy of r interpreting offset-less datetimes in loc.
func (r *Resolver) WithLocation(loc *time.Location) *Resolver {
	c := *r
	c.local = loc
	return &c
}

// Resolve applies the priority rules and validates from < to.
func (r *Resolver) Resolve(p Params) (types.TimeRange, error) {
	p.Duration = strings.TrimSpace(p.Duration)
	p.From = strings.TrimSpace(p.From)
	p.To = strings.TrimSpace(p.To)
	p.Start = strings.TrimSpace(p.Start)

	hasDur, hasFrom, hasTo, hasStart := p.Duration != "", p.From != "", p.To != "", p.Start != ""

	var dur time.Duration
	if hasDur {
		d, err := ParseDuration(p.Duration)
		if err != nil {
			return types.TimeRange{}, err
		}
		dur = d
	}

	var tr types.TimeRange

	switch {
	case hasStart && hasDur:
		if strings.EqualFold(p.Start, "now") {
			to := r.now().UTC()
			tr = types.TimeRange{From: to.Add(-dur), To: to}
			break
		}
		to, err := r.ParseDatetime(p.Start, p.UseUTC)
		if err != nil {
			return types.TimeRange{}, err
		}
		tr = types.TimeRange{From: to.Add(-dur), To: to}

	case hasStart:
		return types.TimeRange{}, fmt.Errorf("start requires duration; %s: %w", AcceptedForms, errors.ErrInvalidTimeRange)

	case hasDur && !hasFrom && !hasTo:
		to := r.now().UTC()
		tr = types.TimeRange{From: to.Add(-dur), To: to}

	case hasDur && hasFrom && !hasTo:
		from, err := r.ParseDatetime(p.From, p.UseUTC)
		if err != nil {
			return types.TimeRange{}, err
		}
		tr = types.TimeRange{From: from, To: from.Add(dur)}

	case hasDur && hasTo && !hasFrom:
		to, err := r.ParseDatetime(p.To, p.UseUTC)
		if err != nil {
			return types.TimeRange{}, err
		}
		tr = types.TimeRange{From: to.Add(-dur), To: to}

	case !hasDur && hasFrom && !hasTo:
		from, err := r.ParseDatetime(p.From, p.UseUTC)
		if err != nil {
			return types.TimeRange{}, err
		}
		tr = types.TimeRange{From: from, To: r.now().UTC()}

	case !hasDur && hasFrom && hasTo:
		from, err := r.ParseDatetime(p.From, p.UseUTC)
		if err != nil {
			return types.TimeRange{}, err
		}
		to, err := r.ParseDatetime(p.To, p.UseUTC)
		if err != nil {
			return types.TimeRange{}, err
		}
		tr = types.TimeRange{From: from, To: to}

	default:
		return types.TimeRange{}, fmt.Errorf("unsupported parameter combination; %s: %w", AcceptedForms, errors.ErrInvalidTimeRange)
	}

	if err := tr.Validate(); err != nil {
		return types.TimeRange{}, err
	}
	return tr, nil
}

// ParseDuration parses "<N><s|m|h|d>".
func ParseDuration(s string) (time.Duration, error) {
	m := durationPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("%q does not match <number><s|m|h|d>: %w", s, errors.ErrInvalidDuration)
	}

	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q: %v: %w", s, err, errors.ErrInvalidDuration)
	}

	unit := durationUnits[m[2]]
	if n > math.MaxInt64/int64(unit) {
		return 0, fmt.Errorf("%q is too large: %w", s, errors.ErrInvalidDuration)
	}

	return time.Duration(n) * unit, nil
}

// DurationMillis parses s like ParseDuration and returns milliseconds.
func DurationMillis(s string) (int64, error) {
	d, err := ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return d.Milliseconds(), nil
}

// ParseDatetime parses an ISO-8601 datetime and returns it in UTC.
// Strings with an offset or Z keep it; others are read in the resolver's
// local zone, or UTC when useUTC is set.
func (r *Resolver) ParseDatetime(s string, useUTC bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}

	loc := r.local
	if useUTC || loc == nil {
		loc = time.UTC
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("cannot parse %q, expected %s or %s: %w",
		s, LayoutWithOffset, LayoutWithoutOffset, errors.ErrInvalidDatetime)
}

// =============================================================================
// Resolution
// =============================================================================

// DefaultResolution returns the bucket width splitting tr into about buckets
// buckets, at least one millisecond.
func DefaultResolution(tr types.TimeRange, buckets int) int64 {
	if buckets <= 0 {
		buckets = 1
	}
	ms := tr.Span().Milliseconds() / int64(buckets)
	if ms < 1 {
		return 1
	}
	return ms
}

// ParseResolution parses an explicit bucket width: milliseconds as an integer,
// or a duration such as 1m. Empty means "use the default" and yields 0.
func ParseResolution(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("resolution %q must be positive: %w", s, errors.ErrInvalidResolution)
		}
		return n, nil
	}

	d, err := ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("resolution %q is neither milliseconds nor <number><s|m|h|d>: %w", s, errors.ErrInvalidResolution)
	}
	return d.Milliseconds(), nil
}
