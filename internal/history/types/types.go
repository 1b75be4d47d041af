// Package types defines the request-scoped values that flow through the
// history pipeline: ranges, path specs, per-path series and merged rows.
package types

import (
	"fmt"
	"time"

	"github.com/xtxerr/logbook/internal/errors"
)

// TimestampLayout is the fixed, lexically sortable form of every bucket timestamp.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// BucketTimestamp renders a bucket boundary given in epoch milliseconds.
func BucketTimestamp(bucketMs int64) string {
	return FormatTimestamp(time.UnixMilli(bucketMs))
}

// =============================================================================
// Time range
// =============================================================================

// TimeRange is a half-open [From, To) interval.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Span returns To - From.
func (r TimeRange) Span() time.Duration {
	return r.To.Sub(r.From)
}

// Validate checks From < To.
func (r TimeRange) Validate() error {
	if !r.From.Before(r.To) {
		return fmt.Errorf("from %s is not before to %s: %w",
			r.From.Format(time.RFC3339), r.To.Format(time.RFC3339), errors.ErrInvalidTimeRange)
	}
	return nil
}

// =============================================================================
// Path specs
// =============================================================================

// Method is a per-bucket aggregation method.
type Method string

const (
	MethodAverage     Method = "average"
	MethodMin         Method = "min"
	MethodMax         Method = "max"
	MethodFirst       Method = "first"
	MethodLast        Method = "last"
	MethodMid         Method = "mid"
	MethodMiddleIndex Method = "middle_index"
)

// Methods lists every accepted method.
var Methods = []Method{
	MethodAverage, MethodMin, MethodMax, MethodFirst, MethodLast, MethodMid, MethodMiddleIndex,
}

// Valid reports whether m is an accepted method.
func (m Method) Valid() bool {
	for _, v := range Methods {
		if m == v {
			return true
		}
	}
	return false
}

// PathSpec is one requested signal path.
type PathSpec struct {
	Path            string
	Method          Method
	QueryResultName string
}

// =============================================================================
// Component schema
// =============================================================================

// DataType is the declared type of a composite component.
type DataType string

const (
	DataNumeric DataType = "numeric"
	DataString  DataType = "string"
	DataBoolean DataType = "boolean"
	DataUnknown DataType = "unknown"
)

// Component is one named sub-field of a composite path.
type Component struct {
	Name     string
	Column   string
	DataType DataType
}

// ComponentSchema is the ordered component list of a composite path.
// An empty schema means the path is scalar.
type ComponentSchema []Component

// IsComposite reports whether the schema describes a composite path.
func (s ComponentSchema) IsComposite() bool {
	return len(s) > 0
}

// =============================================================================
// Series
// =============================================================================

// Kind is the shape of a path's values, decided once per request.
type Kind int

const (
	KindScalar Kind = iota
	KindComposite
)

// String returns the kind name.
func (k Kind) String() string {
	if k == KindComposite {
		return "composite"
	}
	return "scalar"
}

// Point is one bucket of a series. Exactly one of Scalar and Object is set,
// or neither for an empty bucket. Scalar paths carry an Object only when a
// structured fallback value won over the numeric aggregate.
type Point struct {
	Timestamp string
	Bucket    int64
	Scalar    *float64
	Object    map[string]any
}

// Value returns the cell value: float64, map[string]any or nil.
func (p Point) Value() any {
	switch {
	case p.Object != nil:
		return p.Object
	case p.Scalar != nil:
		return *p.Scalar
	default:
		return nil
	}
}

// Series is the bucketed result of one path.
type Series struct {
	Spec   PathSpec
	Kind   Kind
	Points []Point
}

// Empty reports whether the series has no points.
func (s *Series) Empty() bool {
	return len(s.Points) == 0
}

// =============================================================================
// Merged result
// =============================================================================

// Row is [timestamp, cell_1, ...]. Cells are nil, float64 or map[string]any.
type Row []any

// Timestamp returns the row timestamp.
func (r Row) Timestamp() string {
	if len(r) == 0 {
		return ""
	}
	s, _ := r[0].(string)
	return s
}

// Column describes one data column of a merged result.
type Column struct {
	// Path is the signal path, or path.ema / path.sma for derived columns.
	Path string

	// Source is the requested path this column belongs to.
	Source string

	Method Method
	Kind   Kind

	// Derived marks ema/sma columns.
	Derived bool
}

// Result is the merged, row-aligned output of a query.
type Result struct {
	Columns []Column
	Rows    []Row
}

// ColumnIndex returns the row index (timestamp is index 0) of the first
// column belonging to path, or -1.
func (r *Result) ColumnIndex(path string) int {
	for i, c := range r.Columns {
		if c.Path == path {
			return i + 1
		}
	}
	return -1
}

// =============================================================================
// Unit conversion
// =============================================================================

// Conversion describes how to convert one path from its base unit to a target unit.
type Conversion struct {
	BaseUnit       string
	TargetUnit     string
	Formula        string
	InverseFormula string
	Symbol         string
	DisplayFormat  string
	Category       string
}
