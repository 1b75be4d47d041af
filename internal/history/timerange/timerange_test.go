package timerange

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/xtxerr/logbook/internal/errors"
	"github.com/xtxerr/logbook/internal/history/types"
)

var fixedNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func testResolver() *Resolver {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		berlin = time.FixedZone("CEST", 2*3600)
	}
	return NewResolver().
		WithClock(func() time.Time { return fixedNow }).
		WithLocation(berlin)
}

func TestParseDuration(t *testing.T) {
	factors := map[string]int64{"s": 1000, "m": 60000, "h": 3600000, "d": 86400000}

	for unit, factor := range factors {
		for _, n := range []int64{0, 1, 5, 90, 3650} {
			s := fmt.Sprintf("%d%s", n, unit)
			ms, err := DurationMillis(s)
			if err != nil {
				t.Fatalf("DurationMillis(%q): %v", s, err)
			}
			if ms != n*factor {
				t.Errorf("DurationMillis(%q) = %d, want %d", s, ms, n*factor)
			}
		}
	}
}

func TestParseDurationInvalid(t *testing.T) {
	for _, s := range []string{"", "h", "1", "1w", "-1h", "1.5h", "1 h", "h1", "99999999999999999999d"} {
		if _, err := ParseDuration(s); !errors.Is(err, errors.ErrInvalidDuration) {
			t.Errorf("ParseDuration(%q): expected ErrInvalidDuration, got %v", s, err)
		}
	}
}

func TestResolveDurationOnly(t *testing.T) {
	tr, err := testResolver().Resolve(Params{Duration: "1h"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !tr.To.Equal(fixedNow) {
		t.Errorf("to = %v, want %v", tr.To, fixedNow)
	}
	if tr.Span() != time.Hour {
		t.Errorf("span = %v, want 1h", tr.Span())
	}
}

func TestResolveDurationOnlyWallClock(t *testing.T) {
	before := time.Now()
	tr, err := NewResolver().Resolve(Params{Duration: "15m"})
	after := time.Now()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if tr.To.Before(before.Add(-time.Second)) || tr.To.After(after.Add(time.Second)) {
		t.Errorf("to %v not within [%v, %v]", tr.To, before, after)
	}
	if !tr.From.Equal(tr.To.Add(-15 * time.Minute)) {
		t.Errorf("from = %v, want to-15m", tr.From)
	}
	if tr.To.Location() != time.UTC {
		t.Errorf("expected UTC, got %v", tr.To.Location())
	}
}

func TestResolveFromTo(t *testing.T) {
	for _, useUTC := range []bool{false, true} {
		tr, err := testResolver().Resolve(Params{
			From:   "2026-10-01T00:00:00Z",
			To:     "2026-10-02T06:30:00+02:00",
			UseUTC: useUTC,
		})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}

		wantFrom := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
		wantTo := time.Date(2026, 10, 2, 4, 30, 0, 0, time.UTC)
		if !tr.From.Equal(wantFrom) || !tr.To.Equal(wantTo) {
			t.Errorf("useUTC=%v: got [%v, %v)", useUTC, tr.From, tr.To)
		}
	}
}

func TestResolveForms(t *testing.T) {
	r := testResolver()

	tests := []struct {
		name     string
		params   Params
		wantFrom time.Time
		wantTo   time.Time
	}{
		{
			name:     "from+duration",
			params:   Params{From: "2026-10-17T08:00:00Z", Duration: "2h"},
			wantFrom: time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC),
		},
		{
			name:     "to+duration",
			params:   Params{To: "2026-10-17T08:00:00Z", Duration: "30m"},
			wantFrom: time.Date(2026, 10, 17, 7, 30, 0, 0, time.UTC),
			wantTo:   time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC),
		},
		{
			name:     "from only",
			params:   Params{From: "2026-10-17T08:00:00Z"},
			wantFrom: time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC),
			wantTo:   fixedNow,
		},
		{
			name:     "legacy start now",
			params:   Params{Start: "now", Duration: "1d"},
			wantFrom: fixedNow.Add(-24 * time.Hour),
			wantTo:   fixedNow,
		},
		{
			name:     "legacy start datetime",
			params:   Params{Start: "2026-10-17T08:00:00Z", Duration: "1h"},
			wantFrom: time.Date(2026, 10, 17, 7, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC),
		},
		{
			name:     "offset-less with useUTC",
			params:   Params{From: "2026-10-17T08:00:00", To: "2026-10-17T09:00:00", UseUTC: true},
			wantFrom: time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC),
		},
		{
			name:     "offset-less in local zone",
			params:   Params{From: "2026-10-17T08:00:00", To: "2026-10-17T09:00:00"},
			wantFrom: time.Date(2026, 10, 17, 6, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2026, 10, 17, 7, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := r.Resolve(tt.params)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if !tr.From.Equal(tt.wantFrom) || !tr.To.Equal(tt.wantTo) {
				t.Errorf("got [%v, %v), want [%v, %v)", tr.From, tr.To, tt.wantFrom, tt.wantTo)
			}
		})
	}
}

func TestResolveInvalidCombinations(t *testing.T) {
	r := testResolver()

	combos := []Params{
		{},
		{To: "2026-10-17T08:00:00Z"},
		{From: "2026-10-17T08:00:00Z", To: "2026-10-17T09:00:00Z", Duration: "1h"},
		{Start: "now"},
	}

	for _, p := range combos {
		_, err := r.Resolve(p)
		if !errors.Is(err, errors.ErrInvalidTimeRange) {
			t.Errorf("Resolve(%+v): expected ErrInvalidTimeRange, got %v", p, err)
			continue
		}
		if !strings.Contains(err.Error(), AcceptedForms) {
			t.Errorf("error should list accepted forms: %v", err)
		}
	}
}

func TestResolveRejectsEmptyOrInvertedRange(t *testing.T) {
	r := testResolver()

	if _, err := r.Resolve(Params{From: "2026-10-17T09:00:00Z", To: "2026-10-17T08:00:00Z"}); !errors.Is(err, errors.ErrInvalidTimeRange) {
		t.Errorf("inverted: expected ErrInvalidTimeRange, got %v", err)
	}
	if _, err := r.Resolve(Params{Duration: "0s"}); !errors.Is(err, errors.ErrInvalidTimeRange) {
		t.Errorf("zero duration: expected ErrInvalidTimeRange, got %v", err)
	}
}

func TestResolveMalformedDatetime(t *testing.T) {
	_, err := testResolver().Resolve(Params{From: "yesterday", Duration: "1h"})
	if !errors.Is(err, errors.ErrInvalidDatetime) {
		t.Fatalf("expected ErrInvalidDatetime, got %v", err)
	}
	msg := err.Error()
	for _, want := range []string{"yesterday", LayoutWithOffset, LayoutWithoutOffset} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q should contain %q", msg, want)
		}
	}
}

func TestDefaultResolution(t *testing.T) {
	tr := types.TimeRange{From: fixedNow.Add(-time.Hour), To: fixedNow}
	if got := DefaultResolution(tr, 500); got != 7200 {
		t.Errorf("DefaultResolution = %d, want 7200", got)
	}

	tiny := types.TimeRange{From: fixedNow, To: fixedNow.Add(10 * time.Millisecond)}
	if got := DefaultResolution(tiny, 500); got != 1 {
		t.Errorf("DefaultResolution = %d, want 1", got)
	}
}

func TestParseResolution(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"60000", 60000, false},
		{"1m", 60000, false},
		{"0", 0, true},
		{"-5", 0, true},
		{"fast", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseResolution(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseResolution(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, errors.ErrInvalidResolution) {
			t.Errorf("ParseResolution(%q): expected ErrInvalidResolution, got %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("ParseResolution(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}
