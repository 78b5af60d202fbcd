// Package ir provides the value layer shared by every other package:
// column types, sealed SQL literal values, result rows, canonical
// encoding and query fingerprints.
//
// This package contains leaf types only. All other internal packages
// import ir; ir imports nothing internal. This keeps the value layer
// free of circular dependencies.
//
// Key design constraints:
//   - Value is a sealed interface; backends switch on it exhaustively
//   - Null is an explicit value, never a nil interface
//   - Canonical encoding is byte-stable, so equal queries hash equally
//   - Default is a marker for inserts, never a query literal
package ir
