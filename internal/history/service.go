// Package history runs the history query pipeline: time range and path
// parsing, per-path aggregation, merging, and the optional moving average,
// summary, unit and time zone stages. It also fronts the discovery scans
// with the path and context caches.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	defaults "github.com/xtxerr/logbook/config"
	"github.com/xtxerr/logbook/internal/errors"
	"github.com/xtxerr/logbook/internal/history/cache"
	"github.com/xtxerr/logbook/internal/history/derived"
	"github.com/xtxerr/logbook/internal/history/merge"
	"github.com/xtxerr/logbook/internal/history/pathspec"
	"github.com/xtxerr/logbook/internal/history/query"
	"github.com/xtxerr/logbook/internal/history/summary"
	"github.com/xtxerr/logbook/internal/history/timerange"
	"github.com/xtxerr/logbook/internal/history/types"
	"github.com/xtxerr/logbook/internal/history/tz"
	"github.com/xtxerr/logbook/internal/history/units"
	"github.com/xtxerr/logbook/internal/logging"
	"github.com/xtxerr/logbook/internal/validation"
)

// Options configures a Service.
type Options struct {
	// DefaultContext is used when a request names none.
	DefaultContext string

	// MaxPaths limits the paths of one request (0 = unlimited).
	MaxPaths int

	// QueryTimeout bounds the aggregation phase (0 = request context only).
	QueryTimeout time.Duration

	// CacheTTL and CacheCapacity size the path and context caches.
	CacheTTL      time.Duration
	CacheCapacity int

	// Location is the local zone for offset-less datetimes and time
	// conversion. Nil means time.Local.
	Location *time.Location

	// Now replaces the clock. For tests.
	Now func() time.Time
}

// Service is the history query pipeline. It is safe for concurrent use.
type Service struct {
	engine   *query.Engine
	units    *units.Service
	resolver *timerange.Resolver
	derived  *derived.Calculator
	summary  *summary.Calculator
	tz       *tz.Converter
	paths    *cache.TTLCache[[]string]
	contexts *cache.TTLCache[[]string]
	opts     Options
	log      *slog.Logger
}

// NewService wires the pipeline. unitService may be nil, which disables
// unit conversion.
func NewService(engine *query.Engine, unitService *units.Service, opts Options) *Service {
	if opts.DefaultContext == "" {
		opts.DefaultContext = defaults.DefaultContext
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaults.DefaultDiscoveryCacheTTL
	}
	if opts.CacheCapacity <= 0 {
		opts.CacheCapacity = defaults.DefaultDiscoveryCacheCapacity
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	resolver := timerange.NewResolver().WithLocation(opts.Location)
	paths := cache.New[[]string]("paths", opts.CacheTTL, opts.CacheCapacity)
	contexts := cache.New[[]string]("contexts", opts.CacheTTL, opts.CacheCapacity)
	if opts.Now != nil {
		resolver = resolver.WithClock(opts.Now)
		paths = paths.WithClock(opts.Now)
		contexts = contexts.WithClock(opts.Now)
	}

	return &Service{
		engine:   engine,
		units:    unitService,
		resolver: resolver,
		derived:  derived.New(),
		summary:  summary.New(),
		tz:       tz.New(opts.Location),
		paths:    paths,
		contexts: contexts,
		opts:     opts,
		log:      logging.Component("history"),
	}
}

// ValuesRequest is a parsed /values request.
type ValuesRequest struct {
	Context    string
	Time       timerange.Params
	Paths      string
	Resolution string
	BBox       string

	IncludeMovingAverages bool
	IncludeSummary        bool
	ConvertUnits          bool
	ConvertTimesToLocal   bool
	Timezone              string
}

// ValueMeta describes one data column.
type ValueMeta struct {
	Path          string `json:"path"`
	Method        string `json:"method"`
	Unit          string `json:"unit,omitempty"`
	Symbol        string `json:"symbol,omitempty"`
	DisplayFormat string `json:"displayFormat,omitempty"`
}

// RangeInfo is the resolved range.
type RangeInfo struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// UnitInfo describes the conversion applied to a path.
type UnitInfo struct {
	BaseUnit      string `json:"baseUnit"`
	TargetUnit    string `json:"targetUnit"`
	Symbol        string `json:"symbol,omitempty"`
	Category      string `json:"category,omitempty"`
	DisplayFormat string `json:"displayFormat,omitempty"`
}

// RefreshInfo tells polling clients when to ask again.
type RefreshInfo struct {
	Enabled         bool   `json:"enabled"`
	IntervalSeconds int    `json:"intervalSeconds"`
	NextRefresh     string `json:"nextRefresh"`
}

// ValuesResponse is the /values payload.
type ValuesResponse struct {
	Context   string              `json:"context"`
	Range     RangeInfo           `json:"range"`
	Values    []ValueMeta         `json:"values"`
	Data      []types.Row         `json:"data"`
	Formatted []types.Row         `json:"formatted,omitempty"`
	Summary   map[string]any      `json:"summary,omitempty"`
	Units     map[string]UnitInfo `json:"units,omitempty"`
	Timezone  *tz.Info            `json:"timezone,omitempty"`
	Refresh   *RefreshInfo        `json:"refresh,omitempty"`
	BBox      string              `json:"bbox,omitempty"`

	// Resolution is the bucket width used, in milliseconds.
	Resolution int64 `json:"-"`
}

// Values runs the full pipeline for req.
func (s *Service) Values(ctx context.Context, req ValuesRequest) (*ValuesResponse, error) {
	contextName, err := s.context(req.Context)
	if err != nil {
		return nil, err
	}
	ctx = logging.ContextWithVesselContext(ctx, contextName)

	tr, err := s.resolver.Resolve(req.Time)
	if err != nil {
		return nil, err
	}

	specs, err := s.specs(req.Paths)
	if err != nil {
		return nil, err
	}

	resolution, err := timerange.ParseResolution(req.Resolution)
	if err != nil {
		return nil, err
	}
	if resolution == 0 {
		resolution = timerange.DefaultResolution(tr, defaults.DefaultBucketsPerRange)
	}

	qctx := ctx
	if s.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, s.opts.QueryTimeout)
		defer cancel()
	}

	series, err := s.engine.Run(qctx, query.Request{
		Context:    contextName,
		Range:      tr,
		Resolution: resolution,
		Specs:      specs,
	})
	if err != nil {
		return nil, err
	}

	result := merge.Merge(series)
	if req.IncludeMovingAverages {
		result = s.derived.Apply(result)
	}

	resp := &ValuesResponse{
		Context:    contextName,
		Range:      RangeInfo{From: types.FormatTimestamp(tr.From), To: types.FormatTimestamp(tr.To)},
		BBox:       req.BBox,
		Resolution: resolution,
	}

	if req.IncludeSummary {
		resp.Summary = s.summary.Summarize(result)
	}

	var applied *units.Applied
	if req.ConvertUnits && s.units != nil {
		applied = s.units.Apply(ctx, result)
		resp.Formatted = applied.Formatted
		if len(applied.Units) > 0 {
			resp.Units = make(map[string]UnitInfo, len(applied.Units))
			for path, c := range applied.Units {
				resp.Units[path] = UnitInfo{
					BaseUnit:      c.BaseUnit,
					TargetUnit:    c.TargetUnit,
					Symbol:        c.Symbol,
					Category:      c.Category,
					DisplayFormat: c.DisplayFormat,
				}
			}
		}
	}

	resp.Values = make([]ValueMeta, len(result.Columns))
	for i, col := range result.Columns {
		meta := ValueMeta{Path: col.Path, Method: string(col.Method)}
		if applied != nil {
			if c, ok := applied.Units[col.Source]; ok {
				meta.Unit = c.TargetUnit
				meta.Symbol = c.Symbol
				meta.DisplayFormat = c.DisplayFormat
			}
		}
		resp.Values[i] = meta
	}

	if req.ConvertTimesToLocal || req.Timezone != "" {
		loc, fallback := s.tz.Location(req.Timezone)
		tz.ConvertRows(result.Rows, loc)
		tz.ConvertRows(resp.Formatted, loc)
		resp.Range = RangeInfo{From: tz.Format(tr.From, loc), To: tz.Format(tr.To, loc)}
		info := tz.Describe(loc, tr.To, fallback)
		resp.Timezone = &info
	}

	resp.Data = result.Rows
	if resp.Data == nil {
		resp.Data = []types.Row{}
	}

	s.log.Debug("values served",
		"request_id", logging.RequestIDFromContext(ctx),
		"context", contextName,
		"paths", len(specs),
		"rows", len(resp.Data),
		"resolution_ms", resolution)

	return resp, nil
}

// Paths returns the paths of contextName holding data within the requested range.
func (s *Service) Paths(ctx context.Context, contextName string, params timerange.Params) ([]string, error) {
	contextName, err := s.context(contextName)
	if err != nil {
		return nil, err
	}
	tr, err := s.resolver.Resolve(params)
	if err != nil {
		return nil, err
	}

	return s.paths.GetOrLoad(ctx, cache.NewKey(contextName, tr.From, tr.To), func(ctx context.Context) ([]string, error) {
		return s.engine.AvailablePaths(ctx, contextName, tr)
	})
}

// Contexts returns the contexts holding data within the requested range.
func (s *Service) Contexts(ctx context.Context, params timerange.Params) ([]string, error) {
	tr, err := s.resolver.Resolve(params)
	if err != nil {
		return nil, err
	}

	return s.contexts.GetOrLoad(ctx, cache.NewKey("", tr.From, tr.To), func(ctx context.Context) ([]string, error) {
		return s.engine.AvailableContexts(ctx, tr)
	})
}

// Ping checks the query engine.
func (s *Service) Ping(ctx context.Context) error {
	return s.engine.Ping(ctx)
}

// CacheStats returns the path and context cache counters.
func (s *Service) CacheStats() (paths, contexts cache.Stats) {
	return s.paths.Stats(), s.contexts.Stats()
}

// context validates a requested context, applying the default.
func (s *Service) context(name string) (string, error) {
	if name == "" {
		name = s.opts.DefaultContext
	}
	if _, err := s.engine.Layout().ResolveContext(name); err != nil {
		return "", err
	}
	return name, nil
}

// specs parses and validates the path list.
func (s *Service) specs(list string) ([]types.PathSpec, error) {
	specs := pathspec.Parse(list)
	if len(specs) == 0 {
		return nil, errors.NewMissingField("paths")
	}
	if s.opts.MaxPaths > 0 && len(specs) > s.opts.MaxPaths {
		return nil, fmt.Errorf("%d paths, limit %d: %w", len(specs), s.opts.MaxPaths, errors.ErrTooManyPaths)
	}
	for _, spec := range specs {
		if _, err := validation.ParseSignalPath(spec.Path); err != nil {
			return nil, err
		}
	}
	return specs, nil
}
