package units

import (
	"errors"
	"math"
	"testing"

	lberrors "github.com/xtxerr/logbook/internal/errors"
)

func TestFormulaEval(t *testing.T) {
	tests := []struct {
		src   string
		value float64
		want  float64
	}{
		{"value * 1.94384", 10, 19.4384},
		{"value - 273.15", 300, 26.85},
		{"(value - 32) * 5 / 9", 212, 100},
		{"-value", 3, -3},
		{"value", 7, 7},
		{"value * 180 / 3.141592653589793", math.Pi, 180},
		{"+value + -1", 2, 1},
		{"1e3 * value", 2, 2000},
	}
	for _, tt := range tests {
		f, err := ParseFormula(tt.src)
		if err != nil {
			t.Errorf("ParseFormula(%q): %v", tt.src, err)
			continue
		}
		got, err := f.Eval(tt.value)
		if err != nil {
			t.Errorf("Eval(%q): %v", tt.src, err)
			continue
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%q(%g) = %g, want %g", tt.src, tt.value, got, tt.want)
		}
	}
}

func TestFormulaRejects(t *testing.T) {
	bad := []string{
		"",
		"os.Exit(1)",
		"value ** 2",
		"value % 2",
		"x + 1",
		`"value"`,
		"value[0]",
		"func() {}",
		"value << 2",
		"!value",
		"value +",
	}
	for _, src := range bad {
		if _, err := ParseFormula(src); !errors.Is(err, lberrors.ErrInvalidFormula) {
			t.Errorf("ParseFormula(%q) = %v, want ErrInvalidFormula", src, err)
		}
	}
}

func TestFormulaNonFinite(t *testing.T) {
	f, err := ParseFormula("1 / value")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Eval(0); err == nil {
		t.Error("expected error for division by zero")
	}
}
