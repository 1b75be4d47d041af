// Package merge aligns per-path series into timestamp-keyed rows.
package merge

import (
	"sort"

	"github.com/xtxerr/logbook/internal/history/types"
)

// Merge combines series into one result with a column per series, in input
// order. Rows are keyed by bucket timestamp and sorted ascending; a path
// without a point in a bucket leaves that cell nil.
func Merge(series []types.Series) *types.Result {
	result := &types.Result{
		Columns: make([]types.Column, len(series)),
	}

	width := len(series) + 1
	rows := make(map[string]types.Row)

	for i, s := range series {
		result.Columns[i] = types.Column{
			Path:   s.Spec.Path,
			Source: s.Spec.Path,
			Method: s.Spec.Method,
			Kind:   s.Kind,
		}

		for _, p := range s.Points {
			row, ok := rows[p.Timestamp]
			if !ok {
				row = make(types.Row, width)
				row[0] = p.Timestamp
				rows[p.Timestamp] = row
			}
			row[i+1] = p.Value()
		}
	}

	result.Rows = make([]types.Row, 0, len(rows))
	for _, row := range rows {
		result.Rows = append(result.Rows, row)
	}

	// The fixed timestamp layout sorts lexically.
	sort.Slice(result.Rows, func(a, b int) bool {
		return result.Rows[a].Timestamp() < result.Rows[b].Timestamp()
	})

	return result
}
