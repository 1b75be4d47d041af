// logbook-seed writes a synthetic passage into a Parquet data tree so a fresh
// logbookd has something to answer.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/xtxerr/logbook/internal/logging"
	"github.com/xtxerr/logbook/internal/storage/layout"
	"github.com/xtxerr/logbook/internal/storage/parquet"
)

var log = logging.Component("seed")

func main() {
	dataDir := flag.String("data-dir", "./data", "parquet data directory")
	context := flag.String("context", "vessels.self", "context to write")
	selfContext := flag.String("self-context", "", "concrete context vessels.self resolves to")
	duration := flag.Duration("duration", 6*time.Hour, "length of the passage, ending now")
	interval := flag.Duration("interval", 10*time.Second, "sample interval")
	compression := flag.String("compression", "snappy", "compression: none, snappy, zstd, lz4, gzip")
	flag.Parse()

	if *interval <= 0 || *duration < *interval {
		fmt.Fprintln(os.Stderr, "duration must be at least one interval")
		os.Exit(2)
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		fatal("create data directory", err)
	}
	tree, err := layout.New(*dataDir, *selfContext)
	if err != nil {
		fatal("open data tree", err)
	}

	opts := parquet.DefaultOptions()
	opts.Compression = parquet.ParseCompressionType(*compression)

	end := time.Now().UTC().Truncate(*interval)
	start := end.Add(-*duration)
	p := passage{start: start}

	name := fmt.Sprintf("seed_%s.parquet", start.Format("20060102T150405"))

	sog, err := openWriter[parquet.ScalarRow](tree, *context, "navigation.speedOverGround", name, opts)
	if err != nil {
		fatal("open writer", err)
	}
	cog, err := openWriter[parquet.ScalarRow](tree, *context, "navigation.courseOverGroundTrue", name, opts)
	if err != nil {
		fatal("open writer", err)
	}
	pos, err := openWriter[parquet.PositionRow](tree, *context, "navigation.position", name, opts)
	if err != nil {
		fatal("open writer", err)
	}
	writers := []interface{ Close() error }{sog, cog, pos}

	const batchSize = 1000
	var (
		sogBatch []parquet.ScalarRow
		cogBatch []parquet.ScalarRow
		posBatch []parquet.PositionRow
	)
	flush := func() {
		if err := sog.Write(sogBatch); err != nil {
			fatal("write speed", err)
		}
		if err := cog.Write(cogBatch); err != nil {
			fatal("write course", err)
		}
		if err := pos.Write(posBatch); err != nil {
			fatal("write position", err)
		}
		sogBatch, cogBatch, posBatch = sogBatch[:0], cogBatch[:0], posBatch[:0]
	}

	for at := start; !at.After(end); at = at.Add(*interval) {
		ts := parquet.FormatTimestamp(at)
		speed, course, lat, lon := p.at(at)

		sogBatch = append(sogBatch, parquet.ScalarRow{
			SignalKTimestamp: ts, ReceivedTimestamp: ts,
			Context: *context, Path: "navigation.speedOverGround",
			Value: parquet.Float(speed), Source: "seed",
		})
		cogBatch = append(cogBatch, parquet.ScalarRow{
			SignalKTimestamp: ts, ReceivedTimestamp: ts,
			Context: *context, Path: "navigation.courseOverGroundTrue",
			Value: parquet.Float(course), Source: "seed",
		})
		posBatch = append(posBatch, parquet.PositionRow{
			SignalKTimestamp: ts, ReceivedTimestamp: ts,
			Context: *context, Path: "navigation.position",
			Latitude: parquet.Float(lat), Longitude: parquet.Float(lon), Source: "seed",
		})

		if len(sogBatch) == batchSize {
			flush()
		}
	}
	if len(sogBatch) > 0 {
		flush()
	}

	for _, w := range writers {
		if err := w.Close(); err != nil {
			fatal("close writer", err)
		}
	}

	log.Info("seeded",
		"context", *context,
		"from", start.Format(time.RFC3339),
		"to", end.Format(time.RFC3339),
		"rows", sog.RowCount(),
		"file", name)
}

func openWriter[T any](tree *layout.Layout, context, path, name string, opts parquet.Options) (*parquet.Writer[T], error) {
	dir, err := tree.PathDir(context, path)
	if err != nil {
		return nil, err
	}
	return parquet.NewWriter[T](filepath.Join(dir, name), opts)
}

// passage is a slow loop off Helsinki with a speed that drifts between 4 and 7 knots.
type passage struct {
	start time.Time
}

func (p passage) at(t time.Time) (speed, course, lat, lon float64) {
	hours := t.Sub(p.start).Hours()
	phase := 2 * math.Pi * hours / 6

	speed = 2.8 + 0.8*math.Sin(phase*3) // m/s
	course = math.Mod(phase+math.Pi/2, 2*math.Pi)
	lat = 60.10 + 0.05*math.Sin(phase)
	lon = 24.90 + 0.10*math.Cos(phase)
	return speed, course, lat, lon
}

func fatal(msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}
