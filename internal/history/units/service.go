// Package units converts query results from base units into the preferred
// display units published by a unit preference provider.
package units

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	defaults "github.com/xtxerr/logbook/config"
	"github.com/xtxerr/logbook/internal/history/types"
	"github.com/xtxerr/logbook/internal/logging"
	"github.com/xtxerr/logbook/internal/metrics"
	xsync "github.com/xtxerr/logbook/internal/sync"
)

// DefaultDisplayFormat is used when a path declares none.
const DefaultDisplayFormat = "0.00"

// Options configures a Service.
type Options struct {
	// TTL is how long a loaded table is reused.
	TTL time.Duration

	// Timeout bounds one provider call.
	Timeout time.Duration

	// TargetUnits overrides the preferred unit per path.
	TargetUnits map[string]string
}

// Service caches the conversion table and applies it to results.
// It is safe for concurrent use.
type Service struct {
	provider Provider
	opts     Options
	now      func() time.Time
	log      *slog.Logger

	mu       sync.Mutex
	table    Table
	loadedAt time.Time
	formulas map[string]*Formula

	warned xsync.ResettableOnce
}

// NewService creates a service around provider.
func NewService(provider Provider, opts Options) *Service {
	if opts.TTL <= 0 {
		opts.TTL = defaults.DefaultUnitsCacheTTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.DefaultUnitsProviderTimeout
	}
	return &Service{
		provider: provider,
		opts:     opts,
		now:      time.Now,
		log:      logging.Component("units"),
		formulas: make(map[string]*Formula),
	}
}

// WithClock replaces the clock. For tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.warned.SetClock(now)
	return s
}

// Table returns the cached table, loading it when missing or older than the
// TTL. An empty table is not cached.
func (s *Service) Table(ctx context.Context) (Table, error) {
	s.mu.Lock()
	if s.table != nil && s.now().Sub(s.loadedAt) < s.opts.TTL {
		t := s.table
		s.mu.Unlock()
		return t, nil
	}
	s.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	table, err := s.provider.Conversions(fetchCtx)
	if err != nil {
		metrics.UnitProviderFailuresTotal.Inc()
		s.warned.ResetAfter(s.opts.TTL, s.now())
		s.warned.Do(func() {
			s.log.Warn("unit conversions unavailable, returning base units", "error", err)
		})
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(table) == 0 {
		s.table = nil
		return table, nil
	}

	s.table = table
	s.loadedAt = s.now()
	s.warned.Reset()
	return table, nil
}

// Invalidate drops the cached table.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.table = nil
	s.mu.Unlock()
}

// Resolve picks the conversion for path: the configured target unit, else
// the provider's preferred unit, else the first conversion in sorted order.
func (s *Service) Resolve(table Table, path string) (types.Conversion, bool) {
	pc, ok := table[path]
	if !ok || len(pc.Conversions) == 0 {
		return types.Conversion{}, false
	}

	target := ""
	if t, ok := s.opts.TargetUnits[path]; ok {
		if _, ok := pc.Conversions[t]; ok {
			target = t
		}
	}
	if target == "" {
		if _, ok := pc.Conversions[pc.TargetUnit]; ok {
			target = pc.TargetUnit
		}
	}
	if target == "" {
		units := make([]string, 0, len(pc.Conversions))
		for u := range pc.Conversions {
			units = append(units, u)
		}
		sort.Strings(units)
		target = units[0]
	}

	uc := pc.Conversions[target]
	format := pc.DisplayFormat
	if format == "" {
		format = DefaultDisplayFormat
	}

	return types.Conversion{
		BaseUnit:       pc.BaseUnit,
		TargetUnit:     target,
		Formula:        uc.Formula,
		InverseFormula: uc.InverseFormula,
		Symbol:         uc.Symbol,
		DisplayFormat:  format,
		Category:       pc.Category,
	}, true
}

// Applied describes a conversion pass.
type Applied struct {
	// Units holds the conversion used per requested path.
	Units map[string]types.Conversion

	// Formatted parallels the result rows, with converted cells rendered
	// as display strings. Nil when nothing was converted.
	Formatted []types.Row
}

// Apply converts the numeric scalar cells of res in place, including their
// derived columns. Composite and non-numeric cells are left unchanged.
// A provider failure skips conversion without error.
func (s *Service) Apply(ctx context.Context, res *types.Result) *Applied {
	applied := &Applied{Units: make(map[string]types.Conversion)}

	table, err := s.Table(ctx)
	if err != nil || len(table) == 0 {
		return applied
	}

	formulas := make([]*Formula, len(res.Columns))
	convs := make([]*types.Conversion, len(res.Columns))

	for i, col := range res.Columns {
		if col.Kind != types.KindScalar {
			continue
		}
		conv, ok := s.Resolve(table, col.Source)
		if !ok {
			continue
		}
		f, err := s.formula(conv.Formula)
		if err != nil {
			s.log.Warn("skipping conversion", "path", col.Source, "unit", conv.TargetUnit, "error", err)
			continue
		}
		formulas[i] = f
		convs[i] = &conv
		applied.Units[col.Source] = conv
	}

	if len(applied.Units) == 0 {
		return applied
	}

	applied.Formatted = make([]types.Row, len(res.Rows))
	for r, row := range res.Rows {
		formatted := make(types.Row, len(row))
		copy(formatted, row)

		for i, f := range formulas {
			idx := i + 1
			if f == nil || idx >= len(row) {
				continue
			}
			v, ok := row[idx].(float64)
			if !ok {
				continue
			}
			out, err := f.Eval(v)
			if err != nil {
				// The column already carries the target unit.
				row[idx] = nil
				formatted[idx] = nil
				continue
			}
			row[idx] = out
			formatted[idx] = Format(out, convs[i].DisplayFormat, convs[i].Symbol)
		}

		applied.Formatted[r] = formatted
	}

	return applied
}

// formula returns the compiled formula for src, caching it.
func (s *Service) formula(src string) (*Formula, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.formulas[src]; ok {
		return f, nil
	}
	f, err := ParseFormula(src)
	if err != nil {
		return nil, err
	}
	s.formulas[src] = f
	return f, nil
}

// Decimals returns the number of decimals of a display format such as
// "0", "0.0" or "0.000".
func Decimals(format string) int {
	_, frac, ok := strings.Cut(format, ".")
	if !ok {
		return 0
	}
	return len(frac)
}

// Format renders v with the decimals of format, followed by symbol.
func Format(v float64, format, symbol string) string {
	d := Decimals(format)
	p := math.Pow(10, float64(d))
	s := fmt.Sprintf("%.*f", d, math.Round(v*p)/p)
	if symbol == "" {
		return s
	}
	return s + " " + symbol
}
