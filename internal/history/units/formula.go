package units

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"math"
	"strconv"

	"github.com/xtxerr/logbook/internal/errors"
)

// Variable is the only identifier a formula may reference.
const Variable = "value"

// Formula is a parsed arithmetic expression over Variable. Only numbers,
// the variable, + - * /, unary minus and parentheses are accepted.
type Formula struct {
	src  string
	expr ast.Expr
}

// ParseFormula parses and checks src.
func ParseFormula(src string) (*Formula, error) {
	expr, err := parser.ParseExpr(src)
	if err != nil {
		return nil, fmt.Errorf("%q: %v: %w", src, err, errors.ErrInvalidFormula)
	}
	if err := check(expr); err != nil {
		return nil, fmt.Errorf("%q: %v: %w", src, err, errors.ErrInvalidFormula)
	}
	return &Formula{src: src, expr: expr}, nil
}

// String returns the source expression.
func (f *Formula) String() string {
	return f.src
}

// Eval evaluates the formula for value. Non-finite results are errors.
func (f *Formula) Eval(value float64) (float64, error) {
	v, err := eval(f.expr, value)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q at %g: non-finite result: %w", f.src, value, errors.ErrInvalidFormula)
	}
	return v, nil
}

func check(e ast.Expr) error {
	switch n := e.(type) {
	case *ast.BasicLit:
		if n.Kind != token.INT && n.Kind != token.FLOAT {
			return fmt.Errorf("unsupported literal %s", n.Value)
		}
		return nil
	case *ast.Ident:
		if n.Name != Variable {
			return fmt.Errorf("unknown identifier %s", n.Name)
		}
		return nil
	case *ast.ParenExpr:
		return check(n.X)
	case *ast.UnaryExpr:
		if n.Op != token.SUB && n.Op != token.ADD {
			return fmt.Errorf("unsupported operator %s", n.Op)
		}
		return check(n.X)
	case *ast.BinaryExpr:
		switch n.Op {
		case token.ADD, token.SUB, token.MUL, token.QUO:
		default:
			return fmt.Errorf("unsupported operator %s", n.Op)
		}
		if err := check(n.X); err != nil {
			return err
		}
		return check(n.Y)
	default:
		return fmt.Errorf("unsupported expression %T", e)
	}
}

func eval(e ast.Expr, value float64) (float64, error) {
	switch n := e.(type) {
	case *ast.BasicLit:
		return strconv.ParseFloat(n.Value, 64)
	case *ast.Ident:
		return value, nil
	case *ast.ParenExpr:
		return eval(n.X, value)
	case *ast.UnaryExpr:
		x, err := eval(n.X, value)
		if err != nil {
			return 0, err
		}
		if n.Op == token.SUB {
			return -x, nil
		}
		return x, nil
	case *ast.BinaryExpr:
		x, err := eval(n.X, value)
		if err != nil {
			return 0, err
		}
		y, err := eval(n.Y, value)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case token.ADD:
			return x + y, nil
		case token.SUB:
			return x - y, nil
		case token.MUL:
			return x * y, nil
		default:
			return x / y, nil
		}
	default:
		return 0, fmt.Errorf("unsupported expression %T: %w", e, errors.ErrInvalidFormula)
	}
}
