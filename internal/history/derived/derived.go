// Package derived adds exponential and simple moving averages to a merged
// result.
//
// Scalar columns are followed by two new columns, <path>.ema and <path>.sma.
// Composite objects gain <field>_ema and <field>_sma entries for each numeric
// field. Samples that are nil or not numeric leave the running state untouched.
package derived

import (
	"math"

	defaults "github.com/xtxerr/logbook/config"
	"github.com/xtxerr/logbook/internal/history/types"
)

// Column suffixes.
const (
	EMASuffix = "ema"
	SMASuffix = "sma"
)

// Calculator computes moving averages.
type Calculator struct {
	Alpha     float64
	Window    int
	Precision int
}

// New returns a calculator with the default smoothing factor, window and precision.
func New() *Calculator {
	return &Calculator{
		Alpha:     defaults.EMAAlpha,
		Window:    defaults.SMAWindow,
		Precision: defaults.DerivedPrecision,
	}
}

// state is the running state of one numeric series.
type state struct {
	ema    *float64
	window []float64
}

func (s *state) add(v float64, alpha float64, size int) {
	if s.ema == nil {
		e := v
		s.ema = &e
	} else {
		e := alpha*v + (1-alpha)*(*s.ema)
		s.ema = &e
	}

	s.window = append(s.window, v)
	if len(s.window) > size {
		s.window = s.window[len(s.window)-size:]
	}
}

func (s *state) sma() float64 {
	var sum float64
	for _, v := range s.window {
		sum += v
	}
	return sum / float64(len(s.window))
}

// Apply returns a new result with moving-average columns. The input is not modified.
func (c *Calculator) Apply(in *types.Result) *types.Result {
	out := &types.Result{}

	// Output index of each input column.
	positions := make([]int, len(in.Columns))
	next := 1
	for i, col := range in.Columns {
		positions[i] = next
		out.Columns = append(out.Columns, col)
		next++

		if col.Kind == types.KindScalar {
			out.Columns = append(out.Columns,
				types.Column{Path: col.Path + "." + EMASuffix, Source: col.Source, Method: col.Method, Kind: types.KindScalar, Derived: true},
				types.Column{Path: col.Path + "." + SMASuffix, Source: col.Source, Method: col.Method, Kind: types.KindScalar, Derived: true},
			)
			next += 2
		}
	}

	scalars := make([]state, len(in.Columns))
	fields := make([]map[string]*state, len(in.Columns))
	for i := range fields {
		fields[i] = make(map[string]*state)
	}

	out.Rows = make([]types.Row, len(in.Rows))
	for r, row := range in.Rows {
		dst := make(types.Row, next)
		dst[0] = row.Timestamp()

		for i, col := range in.Columns {
			var cell any
			if i+1 < len(row) {
				cell = row[i+1]
			}
			pos := positions[i]

			if col.Kind == types.KindComposite {
				dst[pos] = c.composite(cell, fields[i])
				continue
			}

			dst[pos] = cell
			v, ok := cell.(float64)
			if !ok {
				continue
			}
			st := &scalars[i]
			st.add(v, c.Alpha, c.Window)
			dst[pos+1] = c.round(*st.ema)
			dst[pos+2] = c.round(st.sma())
		}

		out.Rows[r] = dst
	}

	return out
}

// composite returns a copy of an object cell with derived fields added.
func (c *Calculator) composite(cell any, states map[string]*state) any {
	obj, ok := cell.(map[string]any)
	if !ok {
		return cell
	}

	dst := make(map[string]any, len(obj)*3)
	for k, v := range obj {
		dst[k] = v
	}

	for k, v := range obj {
		x, ok := v.(float64)
		if !ok {
			continue
		}
		st := states[k]
		if st == nil {
			st = &state{}
			states[k] = st
		}
		st.add(x, c.Alpha, c.Window)
		dst[k+"_"+EMASuffix] = c.round(*st.ema)
		dst[k+"_"+SMASuffix] = c.round(st.sma())
	}

	return dst
}

func (c *Calculator) round(v float64) float64 {
	p := math.Pow(10, float64(c.Precision))
	return math.Round(v*p) / p
}
