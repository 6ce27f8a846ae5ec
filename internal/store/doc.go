// Package store keeps a SQLite history of notebook runs.
//
// Each harness report becomes one row in runs plus one row per cell in
// cell_results. Runs are numbered by a logical seq assigned at write time;
// all listings order by seq ASC, id ASC COLLATE BINARY and never by wall
// time, so two stores fed the same reports list them identically.
//
// Diagnostics are stored as canonical JSON so stored rows are byte-stable.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
