// Package schema decides whether a signal path holds scalar or composite
// values by reading the Parquet footers of its newest files.
//
// A composite path stores one column per component, named value_<component>.
// value_json is a scalar fallback column, not a component.
package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xtxerr/logbook/internal/history/cache"
	"github.com/xtxerr/logbook/internal/history/types"
	"github.com/xtxerr/logbook/internal/logging"
	"github.com/xtxerr/logbook/internal/storage/layout"
	"github.com/xtxerr/logbook/internal/storage/parquet"
	"github.com/xtxerr/logbook/internal/validation"
)

// Column names.
const (
	ComponentPrefix = "value_"
	JSONColumn      = "value_json"
	ValueColumn     = "value"
)

// errNoFiles keeps an empty directory out of the cache.
var errNoFiles = errors.New("no parquet files")

// Probe reads component schemas and caches them per path directory.
type Probe struct {
	sampleFiles int
	cache       *cache.TTLCache[types.ComponentSchema]
}

// NewProbe creates a probe that inspects up to sampleFiles newest files per
// path and keeps results for ttl.
func NewProbe(sampleFiles int, ttl time.Duration) *Probe {
	if sampleFiles <= 0 {
		sampleFiles = 1
	}
	return &Probe{
		sampleFiles: sampleFiles,
		cache:       cache.New[types.ComponentSchema]("schema", ttl, 1024),
	}
}

// Schema returns the component schema of the path stored in dir.
// An empty schema means scalar, including when dir holds no files. A
// directory without files is not cached, so its first files are picked up
// on the next call.
func (p *Probe) Schema(ctx context.Context, dir string) (types.ComponentSchema, error) {
	sch, err := p.cache.GetOrLoad(ctx, cache.Key{Context: dir}, func(ctx context.Context) (types.ComponentSchema, error) {
		return p.read(ctx, dir)
	})
	if errors.Is(err, errNoFiles) {
		return nil, nil
	}
	return sch, err
}

// Invalidate drops the cached schema of dir.
func (p *Probe) Invalidate(dir string) {
	p.cache.Delete(cache.Key{Context: dir})
}

func (p *Probe) read(ctx context.Context, dir string) (types.ComponentSchema, error) {
	files, err := layout.Files(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, errNoFiles
	}
	if len(files) > p.sampleFiles {
		files = files[:p.sampleFiles]
	}

	var (
		out    types.ComponentSchema
		seen   = make(map[string]bool)
		failed int
	)

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		info, err := parquet.GetFileInfo(f)
		if err != nil {
			failed++
			logging.Component("schema").Debug("skipping unreadable file", "file", f, "error", err)
			continue
		}

		for _, col := range info.Columns {
			name, ok := ComponentName(col.Name)
			if !ok || seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, types.Component{
				Name:     name,
				Column:   col.Name,
				DataType: dataType(col.Class),
			})
		}
	}

	if failed > 0 && failed == len(files) {
		return nil, fmt.Errorf("no readable files in %s", dir)
	}

	return out, nil
}

// ComponentName returns the component of a value_<component> column.
// Components must be plain identifiers.
func ComponentName(column string) (string, bool) {
	if column == JSONColumn || !strings.HasPrefix(column, ComponentPrefix) {
		return "", false
	}
	name := strings.TrimPrefix(column, ComponentPrefix)
	if validation.ValidateSegment(name, validation.PathSegmentRules()) != nil {
		return "", false
	}
	return name, true
}

func dataType(c parquet.ColumnClass) types.DataType {
	switch c {
	case parquet.ClassNumeric:
		return types.DataNumeric
	case parquet.ClassString:
		return types.DataString
	case parquet.ClassBoolean:
		return types.DataBoolean
	default:
		return types.DataUnknown
	}
}
