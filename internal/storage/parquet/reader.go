package parquet

import (
	"bytes"
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"
)

// ColumnClass is the coarse value class of a column.
type ColumnClass string

const (
	ClassNumeric ColumnClass = "numeric"
	ClassString  ColumnClass = "string"
	ClassBoolean ColumnClass = "boolean"
	ClassUnknown ColumnClass = "unknown"
)

// Column describes one top-level column of a file.
type Column struct {
	Name     string
	Class    ColumnClass
	Optional bool
}

// FileInfo holds the footer facts the query layer needs.
type FileInfo struct {
	Path    string
	Size    int64
	NumRows int64
	Columns []Column
}

// openFile opens path and parses its footer only.
func openFile(path string) (*os.File, *parquet.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open file: %w", err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat file: %w", err)
	}

	pf, err := parquet.OpenFile(f, stat.Size(),
		parquet.SkipPageIndex(true),
		parquet.SkipBloomFilters(true),
	)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("read footer %s: %w", path, err)
	}

	return f, pf, nil
}

// GetFileInfo returns the columns and row count of a Parquet file.
func GetFileInfo(path string) (*FileInfo, error) {
	f, pf, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info := &FileInfo{
		Path:    path,
		Size:    pf.Size(),
		NumRows: pf.NumRows(),
	}

	for _, field := range pf.Schema().Fields() {
		info.Columns = append(info.Columns, Column{
			Name:     field.Name(),
			Class:    classify(field),
			Optional: field.Optional(),
		})
	}

	return info, nil
}

func classify(field parquet.Field) ColumnClass {
	if !field.Leaf() {
		return ClassUnknown
	}

	switch field.Type().Kind() {
	case parquet.Double, parquet.Float, parquet.Int32, parquet.Int64:
		return ClassNumeric
	case parquet.ByteArray:
		return ClassString
	case parquet.Boolean:
		return ClassBoolean
	default:
		return ClassUnknown
	}
}

// StringBounds returns the minimum and maximum of a string column across
// all row groups, taken from footer statistics. ok is false when any row
// group lacks usable statistics for the column.
func StringBounds(path, column string) (min, max string, ok bool, err error) {
	f, pf, err := openFile(path)
	if err != nil {
		return "", "", false, err
	}
	defer f.Close()

	leaf, found := pf.Schema().Lookup(column)
	if !found || leaf.Node.Type().Kind() != parquet.ByteArray {
		return "", "", false, nil
	}

	md := pf.Metadata()
	if md == nil || len(md.RowGroups) == 0 {
		return "", "", false, nil
	}

	var lo, hi []byte
	for _, rg := range md.RowGroups {
		if leaf.ColumnIndex >= len(rg.Columns) {
			return "", "", false, nil
		}
		stats := rg.Columns[leaf.ColumnIndex].MetaData.Statistics

		rgMin, rgMax := stats.MinValue, stats.MaxValue
		if len(rgMin) == 0 || len(rgMax) == 0 {
			// Files from older writers only fill the deprecated fields.
			rgMin, rgMax = stats.Min, stats.Max
		}
		if len(rgMin) == 0 || len(rgMax) == 0 {
			return "", "", false, nil
		}

		if lo == nil || bytes.Compare(rgMin, lo) < 0 {
			lo = rgMin
		}
		if hi == nil || bytes.Compare(rgMax, hi) > 0 {
			hi = rgMax
		}
	}

	return string(lo), string(hi), true, nil
}
