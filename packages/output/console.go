package output

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/abdul-hamid-achik/tkrun/packages/core/driver"
	"github.com/abdul-hamid-achik/tkrun/packages/core/runner"
)

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

func (f *ConsoleFormatter) FormatResult(result *runner.FileVerdict) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(f.writer, "\n%s\n\n", bold(result.File))

	for _, w := range result.Warnings {
		fmt.Fprintf(f.writer, "  %s %s\n", yellow("warning:"), w)
	}

	for _, s := range result.Steps {
		name := stepName(s)
		switch s.Status {
		case runner.StepSkipped:
			fmt.Fprintf(f.writer, "  %s %s\n", yellow("-"), name)
			continue
		case runner.StepNotAttempted:
			fmt.Fprintf(f.writer, "  %s %s %s\n", yellow("·"), name, yellow("(not attempted)"))
			continue
		case runner.StepErrored:
			fmt.Fprintf(f.writer, "  %s %s %s\n", red("x"), name, red(fmt.Sprintf("(%v)", s.Error)))
			continue
		}

		symbol := green("✓")
		if s.Status == runner.StepFailed {
			symbol = red("✗")
		}
		fmt.Fprintf(f.writer, "  %s %s %s\n", symbol, name, cyan(fmt.Sprintf("(%dms)", s.Duration.Milliseconds())))

		if f.verbose && s.Request != nil {
			fmt.Fprintf(f.writer, "    %s %s\n", s.Request.Method, s.Request.URL)
		}
		if f.verbose && s.Response != nil {
			fmt.Fprintf(f.writer, "    Status: %d\n", s.Response.StatusCode)
		}
		if f.verbose && s.Attempts > 1 {
			fmt.Fprintf(f.writer, "    Attempts: %d\n", s.Attempts)
		}

		for _, a := range s.FailedAssertions() {
			fmt.Fprintf(f.writer, "    %s %s %s\n", red("→"), a.Subject, a.Operator)
			fmt.Fprintf(f.writer, "      Expected: %s\n", formatValue(a.Expected, 100))
			fmt.Fprintf(f.writer, "      Actual:   %s\n", formatValue(a.Actual, 100))
			if a.Message != "" {
				fmt.Fprintf(f.writer, "      %s\n", a.Message)
			}
		}

		if f.verbose && s.Captures != nil && s.Captures.Len() > 0 {
			fmt.Fprintf(f.writer, "    Captures:\n")
			for pair := s.Captures.Oldest(); pair != nil; pair = pair.Next() {
				fmt.Fprintf(f.writer, "      %s = %s\n", pair.Key, formatValue(pair.Value, 100))
			}
		}
		for _, d := range s.Diagnostics {
			fmt.Fprintf(f.writer, "    %s %s\n", yellow("note:"), d)
		}
	}

	if result.Err != nil {
		fmt.Fprintf(f.writer, "  %s %v\n", red(fmt.Sprintf("%s error:", phaseLabel(result.Phase))), result.Err)
	}

	fmt.Fprintf(f.writer, "\nSteps: ")
	if n := result.Count(runner.StepPassed); n > 0 {
		fmt.Fprintf(f.writer, "%s, ", green(fmt.Sprintf("%d passed", n)))
	}
	if n := result.Count(runner.StepFailed) + result.Count(runner.StepErrored); n > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d failed", n)))
	}
	if n := result.Count(runner.StepSkipped) + result.Count(runner.StepNotAttempted); n > 0 {
		fmt.Fprintf(f.writer, "%s, ", yellow(fmt.Sprintf("%d skipped", n)))
	}
	fmt.Fprintf(f.writer, "%d total\n", len(result.Steps))
	fmt.Fprintf(f.writer, "Time:  %dms\n", result.Duration.Milliseconds())
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(f.writer, "%s %s\n", bold("tkrun"), version)
}

// Flush prints the totals across files. Single-file runs have nothing to add.
func (f *ConsoleFormatter) Flush(summary *driver.Summary) error {
	if summary == nil || summary.Total() < 2 {
		return nil
	}
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(f.writer, "\n%s ", bold("Files:"))
	if summary.Passed > 0 {
		fmt.Fprintf(f.writer, "%s, ", green(fmt.Sprintf("%d passed", summary.Passed)))
	}
	if summary.Failed > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d failed", summary.Failed)))
	}
	if summary.Cancelled > 0 {
		fmt.Fprintf(f.writer, "%s, ", yellow(fmt.Sprintf("%d cancelled", summary.Cancelled)))
	}
	fmt.Fprintf(f.writer, "%d total\n", summary.Total())
	if summary.Latency.Count > 0 {
		fmt.Fprintf(f.writer, "Latency: p50 %dms, p95 %dms, p99 %dms\n",
			summary.Latency.P50.Milliseconds(), summary.Latency.P95.Milliseconds(), summary.Latency.P99.Milliseconds())
	}
	_, err := fmt.Fprintf(f.writer, "Time:  %dms\n\n", summary.Duration.Milliseconds())
	return err
}

func phaseLabel(p runner.Phase) string {
	if p == runner.PhaseNone {
		return "run"
	}
	return string(p)
}
