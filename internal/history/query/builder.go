package query

import (
	"fmt"
	"strings"

	"github.com/xtxerr/logbook/internal/history/pathspec"
	"github.com/xtxerr/logbook/internal/validation"
)

// Builder assembles one SELECT statement. Identifiers are quoted, the file
// glob is embedded as an escaped literal, and every other value is bound
// through a ? placeholder. Arguments are returned in clause order.
type Builder struct {
	selects    []string
	selectArgs []any

	from string

	where     []string
	whereArgs []any

	groupBy []string
	orderBy []string

	err error
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Select adds a select expression. args bind the expression's placeholders.
func (b *Builder) Select(expr string, args ...any) *Builder {
	b.check("select", expr, args)
	b.selects = append(b.selects, expr)
	b.selectArgs = append(b.selectArgs, args...)
	return b
}

// SelectAs adds a select expression under a quoted alias.
func (b *Builder) SelectAs(expr, alias string, args ...any) *Builder {
	return b.Select(expr+" AS "+Ident(alias), args...)
}

// FromParquet reads every file matching glob, unifying columns by name.
func (b *Builder) FromParquet(glob string) *Builder {
	b.from = fmt.Sprintf("read_parquet(%s, union_by_name=true)", validation.QuoteLiteral(glob))
	return b
}

// Where adds a condition joined with AND.
func (b *Builder) Where(cond string, args ...any) *Builder {
	b.check("where", cond, args)
	b.where = append(b.where, "("+cond+")")
	b.whereArgs = append(b.whereArgs, args...)
	return b
}

// GroupBy adds grouping expressions or select aliases.
func (b *Builder) GroupBy(exprs ...string) *Builder {
	b.groupBy = append(b.groupBy, exprs...)
	return b
}

// OrderBy adds ordering expressions or select aliases.
func (b *Builder) OrderBy(exprs ...string) *Builder {
	b.orderBy = append(b.orderBy, exprs...)
	return b
}

// check records a mismatch between placeholders and arguments.
func (b *Builder) check(clause, expr string, args []any) {
	if b.err != nil {
		return
	}
	if n := strings.Count(expr, "?"); n != len(args) {
		b.err = fmt.Errorf("%s %q: %d placeholders, %d args", clause, expr, n, len(args))
	}
}

// Build returns the statement and its arguments.
func (b *Builder) Build() (string, []any, error) {
	if b.err != nil {
		return "", nil, b.err
	}
	if len(b.selects) == 0 {
		return "", nil, fmt.Errorf("no select expressions")
	}
	if b.from == "" {
		return "", nil, fmt.Errorf("no source")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(b.selects, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(b.from)
	if len(b.where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.where, " AND "))
	}
	if len(b.groupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(b.groupBy, ", "))
	}
	if len(b.orderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(b.orderBy, ", "))
	}

	args := make([]any, 0, len(b.selectArgs)+len(b.whereArgs))
	args = append(args, b.selectArgs...)
	args = append(args, b.whereArgs...)

	return sb.String(), args, nil
}

// =============================================================================
// Expressions
// =============================================================================

// Ident quotes a column name or alias.
func Ident(name string) string {
	return validation.QuoteIdentifier(name)
}

// TimestampExpr converts the timestamp column to TIMESTAMP. Unparseable
// values become NULL and fall out of every range filter.
func TimestampExpr(tsColumn string) string {
	return fmt.Sprintf("TRY_CAST(%s AS TIMESTAMP)", Ident(tsColumn))
}

// BucketExpr computes floor(epoch_ms / width) * width. It takes the width twice.
func BucketExpr(tsColumn string) string {
	return fmt.Sprintf("(epoch_ms(%s) // CAST(? AS BIGINT)) * CAST(? AS BIGINT)", TimestampExpr(tsColumn))
}

// RangeCond restricts the timestamp to [from, to). It takes both bounds.
func RangeCond(tsColumn string) string {
	ts := TimestampExpr(tsColumn)
	return fmt.Sprintf("%s >= CAST(? AS TIMESTAMP) AND %s < CAST(? AS TIMESTAMP)", ts, ts)
}

// NumericExpr casts a column to DOUBLE, yielding NULL for non-numeric values.
func NumericExpr(column string) string {
	return fmt.Sprintf("TRY_CAST(%s AS DOUBLE)", Ident(column))
}

// AnyNotNull is true when at least one of the columns is non-null.
func AnyNotNull(columns ...string) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = Ident(c) + " IS NOT NULL"
	}
	return strings.Join(parts, " OR ")
}

// Aggregate applies an aggregate function name (see pathspec.AggregateFunction)
// to expr. Order-sensitive functions order by the timestamp and skip NULLs.
func Aggregate(fn, expr, tsColumn string) string {
	ts := TimestampExpr(tsColumn)
	nonNull := fmt.Sprintf("FILTER (WHERE %s IS NOT NULL)", expr)

	switch fn {
	case pathspec.FuncFirst, pathspec.FuncLast:
		return fmt.Sprintf("%s(%s ORDER BY %s) %s", fn, expr, ts, nonNull)
	case pathspec.FuncNthValue:
		// Middle element of the ordered non-null values, falling back to the first.
		return fmt.Sprintf(
			"COALESCE(list_extract(list(%s ORDER BY %s) %s, CAST(count(%s) // 2 + 1 AS BIGINT)), first(%s ORDER BY %s) %s)",
			expr, ts, nonNull, expr, expr, ts, nonNull)
	case pathspec.FuncAvg, pathspec.FuncMin, pathspec.FuncMax, pathspec.FuncMedian:
		return fmt.Sprintf("%s(%s)", fn, expr)
	default:
		return fmt.Sprintf("%s(%s)", pathspec.FuncAvg, expr)
	}
}
