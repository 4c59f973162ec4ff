package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/abdul-hamid-achik/tkrun/packages/core/runner"
)

// Histogram range: 1us to 60s, 3 significant digits.
const (
	minLatencyUs = 1
	maxLatencyUs = 60_000_000
)

type Summary struct {
	Files     []*runner.FileVerdict
	Passed    int
	Failed    int
	Cancelled int
	Steps     map[runner.StepStatus]int
	Duration  time.Duration
	Latency   Latency
}

// Latency summarises the request time of every step that got a response,
// measured on its final attempt.
type Latency struct {
	Count int64
	Min   time.Duration
	Max   time.Duration
	Mean  time.Duration
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
}

// Summarize aggregates file verdicts. nil verdicts are not allowed.
func Summarize(verdicts []*runner.FileVerdict, duration time.Duration) *Summary {
	s := &Summary{
		Files:    verdicts,
		Steps:    make(map[runner.StepStatus]int),
		Duration: duration,
	}
	hist := hdrhistogram.New(minLatencyUs, maxLatencyUs, 3)

	for _, v := range verdicts {
		switch {
		case v.State == runner.StateCancelled:
			s.Cancelled++
		case v.Passed:
			s.Passed++
		default:
			s.Failed++
		}

		for _, step := range v.Steps {
			s.Steps[step.Status]++
			if step.Response == nil {
				continue
			}
			latencyUs := step.Response.Duration.Microseconds()
			if latencyUs < minLatencyUs {
				latencyUs = minLatencyUs
			}
			if latencyUs > maxLatencyUs {
				latencyUs = maxLatencyUs
			}
			_ = hist.RecordValue(latencyUs)
		}
	}

	if hist.TotalCount() > 0 {
		s.Latency = Latency{
			Count: hist.TotalCount(),
			Min:   time.Duration(hist.Min()) * time.Microsecond,
			Max:   time.Duration(hist.Max()) * time.Microsecond,
			Mean:  time.Duration(hist.Mean()) * time.Microsecond,
			P50:   time.Duration(hist.ValueAtQuantile(50)) * time.Microsecond,
			P95:   time.Duration(hist.ValueAtQuantile(95)) * time.Microsecond,
			P99:   time.Duration(hist.ValueAtQuantile(99)) * time.Microsecond,
		}
	}
	return s
}

func (s *Summary) Total() int {
	return len(s.Files)
}

// Err is non-nil when any file failed or was cancelled.
func (s *Summary) Err() error {
	if s.Failed == 0 && s.Cancelled == 0 {
		return nil
	}
	return &FailedError{Total: s.Total(), Failed: s.Failed, Cancelled: s.Cancelled}
}

// FailedError is the aggregate failure of a multi-file run.
type FailedError struct {
	Total     int
	Failed    int
	Cancelled int
}

func (e *FailedError) Error() string {
	if e.Cancelled > 0 {
		return fmt.Sprintf("%d of %d files failed, %d cancelled", e.Failed, e.Total, e.Cancelled)
	}
	return fmt.Sprintf("%d of %d files failed", e.Failed, e.Total)
}

// Unwrap lets callers detect a cancelled run with errors.Is(err,
// context.Canceled).
func (e *FailedError) Unwrap() error {
	if e.Cancelled > 0 {
		return context.Canceled
	}
	return nil
}
