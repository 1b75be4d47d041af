package parquet

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
)

// TimestampLayout is the string form of signalk_timestamp and received_timestamp.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Options configures the Parquet writer.
type Options struct {
	// Compression algorithm
	Compression CompressionType

	// RowGroupSize is the maximum number of rows per row group (0 = library default)
	RowGroupSize int64

	// PageSize is the target page buffer size in bytes
	PageSize int
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// DefaultOptions returns default Parquet options.
func DefaultOptions() Options {
	return Options{
		Compression: CompressionSnappy,
		PageSize:    1024 * 1024, // 1MB
	}
}

// ParseCompressionType parses a compression type string.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionSnappy
	}
}

func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// =============================================================================
// Row shapes
// =============================================================================

// ScalarRow is one sample of a numeric signal path.
type ScalarRow struct {
	SignalKTimestamp  string   `parquet:"signalk_timestamp"`
	ReceivedTimestamp string   `parquet:"received_timestamp"`
	Context           string   `parquet:"context,dict"`
	Path              string   `parquet:"path,dict"`
	Value             *float64 `parquet:"value,optional"`
	Source            string   `parquet:"source,optional,dict"`
}

// JSONRow is one sample of a path whose values are sometimes structured and
// stored as encoded JSON next to the raw value.
type JSONRow struct {
	SignalKTimestamp  string  `parquet:"signalk_timestamp"`
	ReceivedTimestamp string  `parquet:"received_timestamp"`
	Context           string  `parquet:"context,dict"`
	Path              string  `parquet:"path,dict"`
	Value             *string `parquet:"value,optional"`
	ValueJSON         *string `parquet:"value_json,optional"`
	Source            string  `parquet:"source,optional,dict"`
}

// PositionRow is one sample of a composite position path with one column per
// component. Any component may be missing.
type PositionRow struct {
	SignalKTimestamp  string   `parquet:"signalk_timestamp"`
	ReceivedTimestamp string   `parquet:"received_timestamp"`
	Context           string   `parquet:"context,dict"`
	Path              string   `parquet:"path,dict"`
	Latitude          *float64 `parquet:"value_latitude,optional"`
	Longitude         *float64 `parquet:"value_longitude,optional"`
	Altitude          *float64 `parquet:"value_altitude,optional"`
	Source            string   `parquet:"source,optional,dict"`
}

// AttitudeRow is one sample of a composite path mixing numeric and string components.
type AttitudeRow struct {
	SignalKTimestamp  string   `parquet:"signalk_timestamp"`
	ReceivedTimestamp string   `parquet:"received_timestamp"`
	Context           string   `parquet:"context,dict"`
	Path              string   `parquet:"path,dict"`
	Roll              *float64 `parquet:"value_roll,optional"`
	Pitch             *float64 `parquet:"value_pitch,optional"`
	Yaw               *float64 `parquet:"value_yaw,optional"`
	Mode              *string  `parquet:"value_mode,optional"`
	Stabilized        *bool    `parquet:"value_stabilized,optional"`
	Source            string   `parquet:"source,optional,dict"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// =============================================================================
// Writer
// =============================================================================

// Writer writes rows of one shape to a Parquet file.
type Writer[T any] struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[T]
	rowCount int64
	closed   bool
}

// NewWriter creates a Parquet writer for rows of type T.
func NewWriter[T any](path string, opts Options) (*Writer[T], error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	writerOpts := []parquet.WriterOption{
		parquet.Compression(getCompression(opts.Compression)),
	}
	if opts.PageSize > 0 {
		writerOpts = append(writerOpts, parquet.PageBufferSize(opts.PageSize))
	}
	if opts.RowGroupSize > 0 {
		writerOpts = append(writerOpts, parquet.MaxRowsPerRowGroup(opts.RowGroupSize))
	}

	return &Writer[T]{
		path:   path,
		file:   f,
		writer: parquet.NewGenericWriter[T](f, writerOpts...),
	}, nil
}

// Write appends rows to the file.
func (w *Writer[T]) Write(rows []T) error {
	if len(rows) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	n, err := w.writer.Write(rows)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}

	w.rowCount += int64(n)
	return nil
}

// Close flushes the footer and closes the file.
func (w *Writer[T]) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}

	return w.file.Close()
}

// RowCount returns the number of rows written.
func (w *Writer[T]) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Path returns the file path.
func (w *Writer[T]) Path() string {
	return w.path
}

// WriteFile writes rows to a new file at path in one go.
func WriteFile[T any](path string, rows []T, opts Options) error {
	w, err := NewWriter[T](path, opts)
	if err != nil {
		return err
	}
	if err := w.Write(rows); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = fmt.Errorf("parquet writer is closed")
