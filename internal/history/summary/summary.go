// Package summary computes per-path statistics over a merged result,
// with percentiles from a DDSketch.
package summary

import (
	"math"
	"sort"

	"github.com/DataDog/sketches-go/ddsketch"

	defaults "github.com/xtxerr/logbook/config"
	"github.com/xtxerr/logbook/internal/history/types"
)

// Stats summarizes the numeric values of one series.
type Stats struct {
	Count int64   `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P90   float64 `json:"p90"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`

	// First and Last are the bucket timestamps of the first and last value.
	First string `json:"first"`
	Last  string `json:"last"`
}

// Aggregate maintains running statistics of one series. It is not safe for
// concurrent use.
type Aggregate struct {
	count  int64
	sum    float64
	min    float64
	max    float64
	first  string
	last   string
	sketch *ddsketch.DDSketch
}

// NewAggregate creates an aggregate whose percentiles have the given relative accuracy.
func NewAggregate(accuracy float64) *Aggregate {
	agg := &Aggregate{
		min: math.MaxFloat64,
		max: -math.MaxFloat64,
	}

	sketch, err := ddsketch.NewDefaultDDSketch(accuracy)
	if err == nil {
		agg.sketch = sketch
	}

	return agg
}

// Add adds a value observed in the bucket ts. Rows arrive in time order.
func (a *Aggregate) Add(value float64, ts string) {
	a.count++
	a.sum += value

	if value < a.min {
		a.min = value
	}
	if value > a.max {
		a.max = value
	}

	if a.first == "" {
		a.first = ts
	}
	a.last = ts

	if a.sketch != nil {
		// DDSketch rejects values outside its indexable range; those only miss the percentiles.
		_ = a.sketch.Add(value)
	}
}

// Count returns the number of values added.
func (a *Aggregate) Count() int64 {
	return a.count
}

// Result returns the statistics. A zero Stats is returned when nothing was added.
func (a *Aggregate) Result() Stats {
	if a.count == 0 {
		return Stats{}
	}

	s := Stats{
		Count: a.count,
		Min:   a.min,
		Max:   a.max,
		Mean:  a.sum / float64(a.count),
		First: a.first,
		Last:  a.last,
	}

	if a.sketch != nil && !a.sketch.IsEmpty() {
		qs, err := a.sketch.GetValuesAtQuantiles([]float64{0.50, 0.90, 0.95, 0.99})
		if err == nil {
			s.P50, s.P90, s.P95, s.P99 = qs[0], qs[1], qs[2], qs[3]
		}
	}

	return s
}

// Calculator summarizes merged results.
type Calculator struct {
	Accuracy float64
}

// New returns a calculator with the default sketch accuracy.
func New() *Calculator {
	return &Calculator{Accuracy: defaults.DefaultSummaryAccuracy}
}

// Summarize returns statistics per requested path. Scalar paths map to a
// Stats, composite paths to a map of numeric field to Stats. Derived columns
// are skipped, and paths without numeric values are omitted.
func (c *Calculator) Summarize(res *types.Result) map[string]any {
	out := make(map[string]any)

	for i, col := range res.Columns {
		if col.Derived {
			continue
		}
		idx := i + 1

		switch col.Kind {
		case types.KindComposite:
			fields := make(map[string]*Aggregate)
			for _, row := range res.Rows {
				obj, ok := row[idx].(map[string]any)
				if !ok {
					continue
				}
				for k, v := range obj {
					x, ok := v.(float64)
					if !ok {
						continue
					}
					agg := fields[k]
					if agg == nil {
						agg = NewAggregate(c.Accuracy)
						fields[k] = agg
					}
					agg.Add(x, row.Timestamp())
				}
			}
			if len(fields) == 0 {
				continue
			}
			stats := make(map[string]Stats, len(fields))
			for _, k := range sortedKeys(fields) {
				stats[k] = fields[k].Result()
			}
			out[col.Path] = stats

		default:
			agg := NewAggregate(c.Accuracy)
			for _, row := range res.Rows {
				if x, ok := row[idx].(float64); ok {
					agg.Add(x, row.Timestamp())
				}
			}
			if agg.Count() > 0 {
				out[col.Path] = agg.Result()
			}
		}
	}

	return out
}

func sortedKeys(m map[string]*Aggregate) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
