package testing

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/xtxerr/logbook/internal/storage/layout"
	"github.com/xtxerr/logbook/internal/storage/parquet"
)

// Store is a throwaway Parquet tree below t.TempDir().
type Store struct {
	t      *testing.T
	Root   string
	Layout *layout.Layout
}

// NewStore creates an empty store. selfContext may be empty.
func NewStore(t *testing.T, selfContext string) *Store {
	t.Helper()

	root := t.TempDir()
	l, err := layout.New(root, selfContext)
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	return &Store{t: t, Root: l.Root(), Layout: l}
}

// Dir returns the directory of path within context.
func (s *Store) Dir(context, path string) string {
	s.t.Helper()
	dir, err := s.Layout.PathDir(context, path)
	if err != nil {
		s.t.Fatalf("path dir %s %s: %v", context, path, err)
	}
	return dir
}

// WriteRows writes rows as file into the directory of context/path and
// returns the file path.
func WriteRows[T any](s *Store, context, path, file string, rows []T) string {
	s.t.Helper()

	full := filepath.Join(s.Dir(context, path), file)
	if err := parquet.WriteFile(full, rows, parquet.DefaultOptions()); err != nil {
		s.t.Fatalf("write %s: %v", full, err)
	}
	return full
}

// Sample is one scalar observation. A nil Value writes a null.
type Sample struct {
	At    time.Time
	Value *float64
}

// WriteScalar writes scalar samples for context/path.
func (s *Store) WriteScalar(context, path, file string, samples []Sample) string {
	s.t.Helper()

	rows := make([]parquet.ScalarRow, len(samples))
	for i, sm := range samples {
		ts := parquet.FormatTimestamp(sm.At)
		rows[i] = parquet.ScalarRow{
			SignalKTimestamp:  ts,
			ReceivedTimestamp: ts,
			Context:           context,
			Path:              path,
			Value:             sm.Value,
			Source:            "fixture",
		}
	}
	return WriteRows(s, context, path, file, rows)
}

// PositionSample is one position observation. Nil components are written as nulls.
type PositionSample struct {
	At        time.Time
	Latitude  *float64
	Longitude *float64
	Altitude  *float64
}

// WritePositions writes composite position samples for context/path.
func (s *Store) WritePositions(context, path, file string, samples []PositionSample) string {
	s.t.Helper()

	rows := make([]parquet.PositionRow, len(samples))
	for i, sm := range samples {
		ts := parquet.FormatTimestamp(sm.At)
		rows[i] = parquet.PositionRow{
			SignalKTimestamp:  ts,
			ReceivedTimestamp: ts,
			Context:           context,
			Path:              path,
			Latitude:          sm.Latitude,
			Longitude:         sm.Longitude,
			Altitude:          sm.Altitude,
			Source:            "fixture",
		}
	}
	return WriteRows(s, context, path, file, rows)
}

// JSONSample is one observation of a path with a value_json fallback column.
type JSONSample struct {
	At    time.Time
	Value *string
	JSON  *string
}

// WriteJSON writes samples with a value_json column for context/path.
func (s *Store) WriteJSON(context, path, file string, samples []JSONSample) string {
	s.t.Helper()

	rows := make([]parquet.JSONRow, len(samples))
	for i, sm := range samples {
		ts := parquet.FormatTimestamp(sm.At)
		rows[i] = parquet.JSONRow{
			SignalKTimestamp:  ts,
			ReceivedTimestamp: ts,
			Context:           context,
			Path:              path,
			Value:             sm.Value,
			ValueJSON:         sm.JSON,
			Source:            "fixture",
		}
	}
	return WriteRows(s, context, path, file, rows)
}

// F returns a pointer to v.
func F(v float64) *float64 { return &v }

// S returns a pointer to v.
func S(v string) *string { return &v }
