package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/tkrun/packages/core/driver"
	"github.com/abdul-hamid-achik/tkrun/packages/core/runner"
)

// JSONOutput represents the complete JSON output structure
type JSONOutput struct {
	Summary  JSONSummary `json:"summary"`
	Files    []JSONFile  `json:"files"`
	Duration float64     `json:"duration"`
	Time     string      `json:"time"`
}

type JSONSummary struct {
	Files     int            `json:"files"`
	Passed    int            `json:"passed"`
	Failed    int            `json:"failed"`
	Cancelled int            `json:"cancelled"`
	Steps     map[string]int `json:"steps"`
	Latency   *JSONLatency   `json:"latency,omitempty"`
}

type JSONLatency struct {
	Count int64   `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

type JSONFile struct {
	File     string     `json:"file"`
	State    string     `json:"state"`
	Passed   bool       `json:"passed"`
	Duration float64    `json:"duration"`
	Phase    string     `json:"phase,omitempty"`
	Error    string     `json:"error,omitempty"`
	Warnings []string   `json:"warnings,omitempty"`
	Steps    []JSONStep `json:"steps"`
}

type JSONStep struct {
	Name        string          `json:"name"`
	Status      string          `json:"status"`
	Passed      bool            `json:"passed"`
	Optional    bool            `json:"optional,omitempty"`
	Duration    float64         `json:"duration"`
	Attempts    int             `json:"attempts,omitempty"`
	Error       string          `json:"error,omitempty"`
	Request     *JSONRequest    `json:"request,omitempty"`
	Response    *JSONResponse   `json:"response,omitempty"`
	Assertions  []JSONAssertion `json:"assertions,omitempty"`
	Captures    map[string]any  `json:"captures,omitempty"`
	Diagnostics []string        `json:"diagnostics,omitempty"`
}

type JSONRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

type JSONResponse struct {
	StatusCode int               `json:"statusCode"`
	Status     string            `json:"status"`
	Headers    map[string]string `json:"headers,omitempty"`
	Duration   float64           `json:"duration"`
}

type JSONAssertion struct {
	Subject  string `json:"subject"`
	Operator string `json:"operator"`
	Expected any    `json:"expected"`
	Actual   any    `json:"actual"`
	Passed   bool   `json:"passed"`
	Message  string `json:"message,omitempty"`
}

// JSONFormatter accumulates results and writes one document on Flush.
type JSONFormatter struct {
	writer io.Writer
	files  []JSONFile
	now    func() time.Time
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer: os.Stdout,
		files:  make([]JSONFile, 0),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

func (f *JSONFormatter) FormatResult(result *runner.FileVerdict) {
	file := JSONFile{
		File:     result.File,
		State:    result.State.String(),
		Passed:   result.Passed,
		Duration: millis(result.Duration),
		Phase:    string(result.Phase),
		Steps:    make([]JSONStep, 0, len(result.Steps)),
	}
	if result.Err != nil {
		file.Error = result.Err.Error()
	}
	for _, w := range result.Warnings {
		file.Warnings = append(file.Warnings, w.String())
	}

	for _, s := range result.Steps {
		step := JSONStep{
			Name:        stepName(s),
			Status:      string(s.Status),
			Passed:      s.Passed,
			Optional:    s.Optional,
			Duration:    millis(s.Duration),
			Attempts:    s.Attempts,
			Diagnostics: s.Diagnostics,
		}
		if s.Error != nil {
			step.Error = s.Error.Error()
		}
		if s.Request != nil {
			step.Request = &JSONRequest{
				Method:  s.Request.Method,
				URL:     s.Request.URL,
				Headers: s.Request.Headers,
			}
		}
		if s.Response != nil {
			step.Response = &JSONResponse{
				StatusCode: s.Response.StatusCode,
				Status:     s.Response.Status,
				Headers:    s.Response.Headers,
				Duration:   millis(s.Response.Duration),
			}
		}
		for _, a := range s.Assertions {
			step.Assertions = append(step.Assertions, JSONAssertion{
				Subject:  a.Subject,
				Operator: a.Operator,
				Expected: a.Expected,
				Actual:   a.Actual,
				Passed:   a.Passed,
				Message:  a.Message,
			})
		}
		if s.Captures != nil && s.Captures.Len() > 0 {
			step.Captures = make(map[string]any, s.Captures.Len())
			for pair := s.Captures.Oldest(); pair != nil; pair = pair.Next() {
				step.Captures[pair.Key] = pair.Value
			}
		}
		file.Steps = append(file.Steps, step)
	}

	f.files = append(f.files, file)
}

func (f *JSONFormatter) FormatError(err error) {
	// Errors are included in the file results
}

func (f *JSONFormatter) FormatHeader(version string) {
	// No header needed for JSON output
}

// Flush writes the accumulated JSON output
func (f *JSONFormatter) Flush(summary *driver.Summary) error {
	out := JSONOutput{
		Files: f.files,
		Time:  f.now().Format(time.RFC3339),
	}
	if summary != nil {
		out.Duration = millis(summary.Duration)
		out.Summary = JSONSummary{
			Files:     summary.Total(),
			Passed:    summary.Passed,
			Failed:    summary.Failed,
			Cancelled: summary.Cancelled,
			Steps:     make(map[string]int, len(summary.Steps)),
		}
		for status, n := range summary.Steps {
			out.Summary.Steps[string(status)] = n
		}
		if l := summary.Latency; l.Count > 0 {
			out.Summary.Latency = &JSONLatency{
				Count: l.Count,
				Min:   millis(l.Min),
				Max:   millis(l.Max),
				Mean:  millis(l.Mean),
				P50:   millis(l.P50),
				P95:   millis(l.P95),
				P99:   millis(l.P99),
			}
		}
	}

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
