// Package internaldefs holds the metric names and bucket boundaries shared by
// the exporters.
//
// # What this package must NOT do
//
//   - Perform I/O.
package internaldefs
