package pathspec

import (
	"testing"

	"github.com/xtxerr/logbook/internal/history/types"
)

func TestParse(t *testing.T) {
	specs := Parse(" navigation.speedOverGround:max , navigation.position,, environment.wind.speedApparent:bogus,:min ")

	if len(specs) != 3 {
		t.Fatalf("expected 3 specs, got %d: %+v", len(specs), specs)
	}

	want := []types.PathSpec{
		{Path: "navigation.speedOverGround", Method: types.MethodMax, QueryResultName: "navigation_speedOverGround"},
		{Path: "navigation.position", Method: types.MethodAverage, QueryResultName: "navigation_position"},
		{Path: "environment.wind.speedApparent", Method: types.MethodAverage, QueryResultName: "environment_wind_speedApparent"},
	}
	for i := range want {
		if specs[i] != want[i] {
			t.Errorf("spec %d = %+v, want %+v", i, specs[i], want[i])
		}
	}
}

func TestParseEmpty(t *testing.T) {
	if specs := Parse(""); len(specs) != 0 {
		t.Errorf("expected no specs, got %+v", specs)
	}
	if specs := Parse(" , ,"); len(specs) != 0 {
		t.Errorf("expected no specs, got %+v", specs)
	}
}

func TestAggregateFunction(t *testing.T) {
	tests := []struct {
		method types.Method
		want   string
	}{
		{types.MethodAverage, "avg"},
		{types.MethodMin, "min"},
		{types.MethodMax, "max"},
		{types.MethodFirst, "first"},
		{types.MethodLast, "last"},
		{types.MethodMid, "median"},
		{types.MethodMiddleIndex, "nth_value"},
		{types.Method("unknown"), "avg"},
	}

	for _, tt := range tests {
		if got := AggregateFunction(tt.method); got != tt.want {
			t.Errorf("AggregateFunction(%s) = %s, want %s", tt.method, got, tt.want)
		}
	}
}

func TestEveryMethodParses(t *testing.T) {
	for _, m := range types.Methods {
		spec, ok := ParseOne("a.b:" + string(m))
		if !ok || spec.Method != m {
			t.Errorf("ParseOne(a.b:%s) = %+v, %v", m, spec, ok)
		}
	}
}
