// Package parquet implements the Parquet side of the store.
//
// The package provides:
//   - GetFileInfo and StringBounds, footer-only readers used for component
//     schema discovery and time-range pruning
//   - a generic Writer for the store's row shapes (scalar, JSON fallback and
//     composite component columns), used by the seeding tool and tests
//   - support for multiple compression algorithms (snappy, zstd, lz4, gzip)
package parquet
