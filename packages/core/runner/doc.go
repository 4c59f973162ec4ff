// Package runner executes a single tkrun test document.
//
// A TestContext is created from a file identifier and its raw source
// (NewTestContext, or LoadFile for files on disk). Runner.Run parses it,
// seeds its variable table and runs the steps strictly in order:
//
//	Pending -> Running(step i) -> Running(step i+1) | Completed | Failed | Cancelled
//
// Assertion failures are recorded and the run continues. Parse errors,
// unresolved placeholders and transport errors on non-optional steps stop
// the run; the remaining steps are reported as not attempted. Cancellation
// is checked between steps and yields a partial, cancelled verdict.
package runner
