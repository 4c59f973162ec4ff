package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/abdul-hamid-achik/tkrun/packages/core/driver"
	"github.com/abdul-hamid-achik/tkrun/packages/core/runner"
)

// Formatter renders file verdicts as they complete and a summary at the end.
type Formatter interface {
	FormatResult(result *runner.FileVerdict)
	FormatError(err error)
	FormatHeader(version string)
	Flush(summary *driver.Summary) error
}

// Options shared by every formatter.
type Options struct {
	Writer  io.Writer
	Verbose bool
	NoColor bool
}

// New returns the formatter for name. An empty name means console.
func New(name string, opts Options) (Formatter, error) {
	switch strings.ToLower(name) {
	case "", "console":
		consoleOpts := []ConsoleOption{WithVerbose(opts.Verbose), WithNoColor(opts.NoColor)}
		if opts.Writer != nil {
			consoleOpts = append(consoleOpts, WithWriter(opts.Writer))
		}
		return NewConsoleFormatter(consoleOpts...), nil
	case "json":
		var jsonOpts []JSONOption
		if opts.Writer != nil {
			jsonOpts = append(jsonOpts, JSONWithWriter(opts.Writer))
		}
		return NewJSONFormatter(jsonOpts...), nil
	case "junit":
		var junitOpts []JUnitOption
		if opts.Writer != nil {
			junitOpts = append(junitOpts, JUnitWithWriter(opts.Writer))
		}
		return NewJUnitFormatter(junitOpts...), nil
	case "tap":
		var tapOpts []TAPOption
		if opts.Writer != nil {
			tapOpts = append(tapOpts, TAPWithWriter(opts.Writer))
		}
		return NewTAPFormatter(tapOpts...), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (use console, json, junit or tap)", name)
	}
}

// formatValue formats a value for display, summarising large values
func formatValue(v any, maxLen int) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case []any:
		return fmt.Sprintf("[array with %d items]", len(val))
	case map[string]any:
		return fmt.Sprintf("{object with %d keys}", len(val))
	case string:
		v = fmt.Sprintf("%q", val)
	}
	str := fmt.Sprintf("%v", v)
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}

// stepName falls back to the position when a step has no name.
func stepName(s *runner.StepVerdict) string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("step %d", s.Index+1)
}
