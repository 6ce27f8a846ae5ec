// Package ir provides the data model shared by every nbverify package:
// notebook cells, their resolved execution policy, and the output records
// an interpreter emits while running a cell.
//
// This package contains type definitions and canonical encodings only. All
// other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - OutputRecord is a closed union (Stream, DisplayDatum, ErrorOutput)
//   - Records keep the interpreter's emission order
//   - Canonical JSON has no floats and no nulls
package ir
