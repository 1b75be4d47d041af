package query

import (
	"context"
	"time"

	"github.com/xtxerr/logbook/internal/history/types"
	"github.com/xtxerr/logbook/internal/metrics"
	"github.com/xtxerr/logbook/internal/storage/layout"
	"github.com/xtxerr/logbook/internal/storage/parquet"
)

// AvailablePaths returns the paths of context that hold data overlapping tr.
func (e *Engine) AvailablePaths(ctx context.Context, contextName string, tr types.TimeRange) ([]string, error) {
	start := time.Now()
	defer func() {
		metrics.DiscoveryScanDurationSeconds.WithLabelValues("paths").Observe(time.Since(start).Seconds())
	}()

	dir, err := e.layout.ContextDir(contextName)
	if err != nil {
		return nil, err
	}

	entries, err := layout.Paths(dir)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.anyOverlaps(entry.Files, tr) {
			paths = append(paths, entry.Path)
		}
	}

	return paths, nil
}

// AvailableContexts returns the contexts holding any data overlapping tr.
func (e *Engine) AvailableContexts(ctx context.Context, tr types.TimeRange) ([]string, error) {
	start := time.Now()
	defer func() {
		metrics.DiscoveryScanDurationSeconds.WithLabelValues("contexts").Observe(time.Since(start).Seconds())
	}()

	contexts, err := e.layout.Contexts()
	if err != nil {
		return nil, err
	}

	var out []string
	for _, c := range contexts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		entries, err := layout.Paths(c.Dir)
		if err != nil {
			e.log.Warn("skipping unreadable context", "context", c.Context, "error", err)
			continue
		}
		for _, entry := range entries {
			if e.anyOverlaps(entry.Files, tr) {
				out = append(out, c.Context)
				break
			}
		}
	}

	return out, nil
}

// anyOverlaps reports whether any file's timestamp statistics overlap tr.
func (e *Engine) anyOverlaps(files []string, tr types.TimeRange) bool {
	for _, f := range files {
		if e.overlaps(f, tr) {
			return true
		}
	}
	return false
}

// overlaps reads the footer statistics of the timestamp column. Files
// without usable statistics are assumed to overlap; unreadable files do not.
func (e *Engine) overlaps(file string, tr types.TimeRange) bool {
	lo, hi, ok, err := parquet.StringBounds(file, e.opts.TimestampColumn)
	if err != nil {
		e.log.Debug("skipping unreadable file", "file", file, "error", err)
		return false
	}
	if !ok {
		return true
	}

	oldest, err1 := time.Parse(time.RFC3339Nano, lo)
	newest, err2 := time.Parse(time.RFC3339Nano, hi)
	if err1 != nil || err2 != nil {
		return true
	}

	return oldest.Before(tr.To) && !newest.Before(tr.From)
}
