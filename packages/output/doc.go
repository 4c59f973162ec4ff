// Package output renders run results.
//
// Supported output formats:
//   - console: coloured terminal output
//   - json: one JSON document per invocation
//   - junit: JUnit XML, one suite per file and one case per step
//   - tap: TAP version 13, one test point per step
//
// Every formatter receives file verdicts through FormatResult as they
// complete and writes any accumulated document in Flush.
package output
