// Package pathspec parses "path[:method]" lists into aggregation specs.
package pathspec

import (
	"strings"

	"github.com/xtxerr/logbook/internal/history/types"
)

// Aggregate function names.
const (
	FuncAvg      = "avg"
	FuncMin      = "min"
	FuncMax      = "max"
	FuncFirst    = "first"
	FuncLast     = "last"
	FuncMedian   = "median"
	FuncNthValue = "nth_value"
)

var functions = map[types.Method]string{
	types.MethodAverage:     FuncAvg,
	types.MethodMin:         FuncMin,
	types.MethodMax:         FuncMax,
	types.MethodFirst:       FuncFirst,
	types.MethodLast:        FuncLast,
	types.MethodMid:         FuncMedian,
	types.MethodMiddleIndex: FuncNthValue,
}

// Parse splits a comma-separated list of path[:method] expressions.
// Whitespace is trimmed and empty entries are skipped. A missing or unknown
// method becomes average. Paths are not validated here.
func Parse(list string) []types.PathSpec {
	var specs []types.PathSpec

	for _, expr := range strings.Split(list, ",") {
		expr = strings.TrimSpace(expr)
		if expr == "" {
			continue
		}
		if spec, ok := ParseOne(expr); ok {
			specs = append(specs, spec)
		}
	}

	return specs
}

// ParseOne parses a single path[:method] expression.
func ParseOne(expr string) (types.PathSpec, bool) {
	path, method, _ := strings.Cut(strings.TrimSpace(expr), ":")
	path = strings.TrimSpace(path)
	if path == "" {
		return types.PathSpec{}, false
	}

	m := types.Method(strings.TrimSpace(method))
	if !m.Valid() {
		m = types.MethodAverage
	}

	return types.PathSpec{
		Path:            path,
		Method:          m,
		QueryResultName: QueryResultName(path),
	}, true
}

// QueryResultName returns the SQL alias for path.
func QueryResultName(path string) string {
	return strings.ReplaceAll(path, ".", "_")
}

// AggregateFunction maps a method to its aggregate function name.
// Unknown methods map to avg.
func AggregateFunction(m types.Method) string {
	if fn, ok := functions[m]; ok {
		return fn
	}
	return FuncAvg
}
