// Package query executes bucketed aggregation queries against the Parquet
// store with DuckDB, one query per requested path, and runs the discovery
// scans behind the path and context caches.
package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/logbook/internal/errors"
	"github.com/xtxerr/logbook/internal/history/pathspec"
	"github.com/xtxerr/logbook/internal/history/schema"
	"github.com/xtxerr/logbook/internal/history/types"
	"github.com/xtxerr/logbook/internal/logging"
	"github.com/xtxerr/logbook/internal/metrics"
	"github.com/xtxerr/logbook/internal/storage/layout"
	"github.com/xtxerr/logbook/internal/validation"
)

// bucketAlias names the bucket column of every aggregation query.
const bucketAlias = "_bucket"

// jsonAlias names the value_json aggregate of scalar queries.
const jsonAlias = "_json"

// Options configures the engine.
type Options struct {
	// MemoryLimit is passed to DuckDB's memory_limit (empty = DuckDB default).
	MemoryLimit string

	// Threads is DuckDB's thread count (0 = DuckDB default).
	Threads int

	// MaxParallel caps concurrent path queries within one Run.
	MaxParallel int

	// TimestampColumn holds the sample time.
	TimestampColumn string
}

// Engine runs history queries. It is safe for concurrent use.
type Engine struct {
	db       *sql.DB
	layout   *layout.Layout
	probe    *schema.Probe
	opts     Options
	log      *slog.Logger
	closed   atomic.Bool
	executed atomic.Int64
	failed   atomic.Int64

	// afterAcquire runs once a path query holds its connection. For tests.
	afterAcquire func(ctx context.Context)
}

// Request is one history query.
type Request struct {
	Context    string
	Range      types.TimeRange
	Resolution int64
	Specs      []types.PathSpec
}

// Stats holds engine counters.
type Stats struct {
	QueriesExecuted int64
	QueriesFailed   int64
}

// New opens an in-memory DuckDB database and applies opts.
func New(l *layout.Layout, probe *schema.Probe, opts Options) (*Engine, error) {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 1
	}
	if opts.TimestampColumn == "" {
		opts.TimestampColumn = "signalk_timestamp"
	}

	// Open in-memory DuckDB database
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	// Configure DuckDB
	if opts.MemoryLimit != "" {
		if _, err := db.Exec("SET memory_limit = " + validation.QuoteLiteral(opts.MemoryLimit)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set memory limit: %w", err)
		}
	}
	if opts.Threads > 0 {
		if _, err := db.Exec(fmt.Sprintf("SET threads = %d", opts.Threads)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set threads: %w", err)
		}
	}

	return &Engine{
		db:     db,
		layout: l,
		probe:  probe,
		opts:   opts,
		log:    logging.Component("query"),
	}, nil
}

// Close closes the database.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	return e.db.Close()
}

// Ping checks that DuckDB answers.
func (e *Engine) Ping(ctx context.Context) error {
	if e.closed.Load() {
		return errors.ErrEngineClosed
	}
	var one int
	return e.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

// DBStats exposes connection pool statistics.
func (e *Engine) DBStats() sql.DBStats {
	return e.db.Stats()
}

// Stats returns engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		QueriesExecuted: e.executed.Load(),
		QueriesFailed:   e.failed.Load(),
	}
}

// Layout returns the store layout the engine reads.
func (e *Engine) Layout() *layout.Layout {
	return e.layout
}

// Run queries every path concurrently and returns one series per path, in
// request order. A failing path yields an empty series. When ctx ends before all
// paths finished, Run returns ctx.Err() and no series.
func (e *Engine) Run(ctx context.Context, req Request) ([]types.Series, error) {
	if e.closed.Load() {
		return nil, errors.ErrEngineClosed
	}
	if err := req.Range.Validate(); err != nil {
		return nil, err
	}
	if req.Resolution <= 0 {
		return nil, fmt.Errorf("resolution %d: %w", req.Resolution, errors.ErrInvalidResolution)
	}

	series := make([]types.Series, len(req.Specs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.MaxParallel)

	for i, spec := range req.Specs {
		g.Go(func() error {
			s, err := e.QueryPath(gctx, req, spec)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logging.WithContext(ctx).Warn("path query failed",
					"component", "query", "path", spec.Path, "error", err)
				series[i] = types.Series{Spec: spec, Kind: s.Kind}
				return nil
			}
			series[i] = s
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return series, nil
}

// QueryPath runs the aggregation query of one spec. The returned series
// always carries the decided kind, also on error.
func (e *Engine) QueryPath(ctx context.Context, req Request, spec types.PathSpec) (series types.Series, err error) {
	series = types.Series{Spec: spec, Kind: types.KindScalar}
	start := time.Now()

	defer func() {
		result := "ok"
		switch {
		case err != nil && errors.IsCanceled(err):
			result = "canceled"
		case err != nil:
			result = "error"
			e.failed.Add(1)
		case series.Empty():
			result = "empty"
		}
		kind := series.Kind.String()
		metrics.PathQueriesTotal.WithLabelValues(kind, result).Inc()
		metrics.PathQueryDurationSeconds.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	if err := ctx.Err(); err != nil {
		return series, err
	}

	dir, err := e.layout.PathDir(req.Context, spec.Path)
	if err != nil {
		return series, err
	}

	components, err := e.probe.Schema(ctx, dir)
	if err != nil {
		return series, fmt.Errorf("probe schema: %w", err)
	}
	if components.IsComposite() {
		series.Kind = types.KindComposite
	}

	glob := layout.Glob(dir)
	matches, err := filepath.Glob(glob)
	if err != nil {
		return series, fmt.Errorf("glob %s: %w", glob, err)
	}
	if len(matches) == 0 {
		return series, nil
	}

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return series, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	e.executed.Add(1)
	if e.afterAcquire != nil {
		e.afterAcquire(ctx)
	}

	if series.Kind == types.KindComposite {
		series.Points, err = e.queryComposite(ctx, conn, glob, req, spec, components)
	} else {
		series.Points, err = e.queryScalar(ctx, conn, glob, req, spec)
	}
	if err != nil {
		series.Points = nil
		return series, err
	}

	return series, nil
}

// baseQuery returns a builder with the bucket column, source and range filter.
func (e *Engine) baseQuery(glob string, req Request) *Builder {
	ts := e.opts.TimestampColumn
	return NewBuilder().
		SelectAs(BucketExpr(ts), bucketAlias, req.Resolution, req.Resolution).
		FromParquet(glob).
		Where(RangeCond(ts), sqlTimestamp(req.Range.From), sqlTimestamp(req.Range.To)).
		GroupBy(bucketAlias).
		OrderBy(bucketAlias)
}

// queryScalar aggregates the numeric value, preferring a structured
// value_json object when the files carry that column.
func (e *Engine) queryScalar(ctx context.Context, conn *sql.Conn, glob string, req Request, spec types.PathSpec) ([]types.Point, error) {
	columns, err := describe(ctx, conn, glob)
	if err != nil {
		return nil, err
	}
	_, hasValue := columns[schema.ValueColumn]
	_, hasJSON := columns[schema.JSONColumn]
	if !hasValue && !hasJSON {
		return nil, nil
	}

	ts := e.opts.TimestampColumn
	fn := pathspec.AggregateFunction(spec.Method)

	// Files written before the value column existed still bind.
	valueExpr := "CAST(NULL AS DOUBLE)"
	var present []string
	if hasValue {
		valueExpr = NumericExpr(schema.ValueColumn)
		present = append(present, schema.ValueColumn)
	}

	b := e.baseQuery(glob, req).
		SelectAs(Aggregate(fn, valueExpr, ts), spec.QueryResultName)

	if hasJSON {
		jsonFn := pathspec.FuncFirst
		if fn == pathspec.FuncLast {
			jsonFn = pathspec.FuncLast
		}
		b.SelectAs(fmt.Sprintf("CAST(%s AS VARCHAR)", Aggregate(jsonFn, Ident(schema.JSONColumn), ts)), jsonAlias)
		present = append(present, schema.JSONColumn)
	}
	b.Where(AnyNotNull(present...))

	query, args, err := b.Build()
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var points []types.Point
	for rows.Next() {
		var (
			bucket int64
			value  sql.NullFloat64
			raw    sql.NullString
		)
		dest := []any{&bucket, &value}
		if hasJSON {
			dest = append(dest, &raw)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		p := types.Point{Timestamp: types.BucketTimestamp(bucket), Bucket: bucket}
		if raw.Valid {
			if obj := decodeObject(raw.String); obj != nil {
				p.Object = obj
			}
		}
		if p.Object == nil && value.Valid {
			v := value.Float64
			p.Scalar = &v
		}
		if p.Object == nil && p.Scalar == nil {
			continue
		}
		points = append(points, p)
	}

	return points, rows.Err()
}

// queryComposite aggregates every component in one grouped query.
func (e *Engine) queryComposite(ctx context.Context, conn *sql.Conn, glob string, req Request, spec types.PathSpec, components types.ComponentSchema) ([]types.Point, error) {
	ts := e.opts.TimestampColumn
	fn := pathspec.AggregateFunction(spec.Method)
	if fn == pathspec.FuncNthValue {
		fn = pathspec.FuncFirst
	}

	b := e.baseQuery(glob, req)
	cols := make([]string, len(components))

	for i, c := range components {
		cols[i] = c.Column
		alias := "c_" + c.Name

		switch c.DataType {
		case types.DataNumeric:
			b.SelectAs(Aggregate(fn, NumericExpr(c.Column), ts), alias)
		case types.DataString, types.DataBoolean:
			b.SelectAs(Aggregate(pathspec.FuncFirst, Ident(c.Column), ts), alias)
		default:
			b.SelectAs(fmt.Sprintf("CAST(%s AS VARCHAR)", Aggregate(pathspec.FuncFirst, Ident(c.Column), ts)), alias)
		}
	}
	b.Where(AnyNotNull(cols...))

	query, args, err := b.Build()
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var points []types.Point
	for rows.Next() {
		var bucket int64
		values := make([]any, len(components))
		dest := make([]any, len(components)+1)
		dest[0] = &bucket
		for i := range values {
			dest[i+1] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		obj := make(map[string]any, len(components))
		for i, c := range components {
			if v := normalize(values[i]); v != nil {
				obj[c.Name] = v
			}
		}
		if len(obj) == 0 {
			continue
		}

		points = append(points, types.Point{
			Timestamp: types.BucketTimestamp(bucket),
			Bucket:    bucket,
			Object:    obj,
		})
	}

	return points, rows.Err()
}

// describe returns the column names of the files matching glob.
func describe(ctx context.Context, conn *sql.Conn, glob string) (map[string]string, error) {
	query := fmt.Sprintf("DESCRIBE SELECT * FROM read_parquet(%s, union_by_name=true)", validation.QuoteLiteral(glob))

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("describe: %w", err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	columns := make(map[string]string)
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan describe: %w", err)
		}

		// column_name, column_type, null, key, default, extra
		name, _ := values[0].(string)
		typ := ""
		if len(values) > 1 {
			typ, _ = values[1].(string)
		}
		columns[name] = typ
	}

	return columns, rows.Err()
}

// sqlTimestamp renders a bound for CAST(? AS TIMESTAMP).
func sqlTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05.000")
}

// decodeObject returns raw decoded as a JSON object, or nil.
func decodeObject(raw string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil
	}
	return obj
}

// normalize maps driver values onto JSON-friendly cell values.
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		return x
	case float32:
		return float64(x)
	case int64:
		return float64(x)
	case int32:
		return float64(x)
	case []byte:
		return string(x)
	default:
		return x
	}
}
