// Package metrics records run outcomes as Prometheus metrics and writes
// them in the text exposition format, for node_exporter's textfile
// collector or a CI artifact.
package metrics

import (
	"bytes"
	"io"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/abdul-hamid-achik/tkrun/packages/core/runner"
)

// Collector implements runner.Observer. It is safe for concurrent use.
type Collector struct {
	registry        *prometheus.Registry
	filesTotal      *prometheus.CounterVec
	stepsTotal      *prometheus.CounterVec
	assertionsTotal *prometheus.CounterVec
	responsesTotal  *prometheus.CounterVec
	fileDuration    *prometheus.HistogramVec
	stepDuration    *prometheus.HistogramVec
}

var _ runner.Observer = (*Collector)(nil)

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	c := &Collector{
		registry: registry,
		filesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "tkrun_files_total", Help: "Test files run, by outcome"},
			[]string{"status"},
		),
		stepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "tkrun_steps_total", Help: "Steps run, by status"},
			[]string{"status"},
		),
		assertionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "tkrun_assertions_total", Help: "Assertions evaluated, by result"},
			[]string{"result"},
		),
		responsesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "tkrun_responses_total", Help: "Responses received, by status code"},
			[]string{"code"},
		),
		fileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tkrun_file_duration_seconds",
				Help:    "Test file duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tkrun_step_duration_seconds",
				Help:    "Step duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(c.filesTotal, c.stepsTotal, c.assertionsTotal, c.responsesTotal, c.fileDuration, c.stepDuration)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) StepFinished(_ string, step *runner.StepVerdict) {
	status := string(step.Status)
	c.stepsTotal.WithLabelValues(status).Inc()
	c.stepDuration.WithLabelValues(status).Observe(step.Duration.Seconds())

	for _, a := range step.Assertions {
		result := "passed"
		if !a.Passed {
			result = "failed"
		}
		c.assertionsTotal.WithLabelValues(result).Inc()
	}
	if step.Response != nil {
		c.responsesTotal.WithLabelValues(strconv.Itoa(step.Response.StatusCode)).Inc()
	}
}

// FileFinished counts the file. Steps that never ran are counted here,
// since the runner does not report them one by one.
func (c *Collector) FileFinished(v *runner.FileVerdict) {
	status := FileStatus(v)
	c.filesTotal.WithLabelValues(status).Inc()
	c.fileDuration.WithLabelValues(status).Observe(v.Duration.Seconds())

	if n := v.Count(runner.StepNotAttempted); n > 0 {
		c.stepsTotal.WithLabelValues(string(runner.StepNotAttempted)).Add(float64(n))
	}
}

// FileStatus is the outcome label for a file: passed, failed or cancelled.
func FileStatus(v *runner.FileVerdict) string {
	switch {
	case v.State == runner.StateCancelled:
		return "cancelled"
	case v.Passed:
		return "passed"
	default:
		return "failed"
	}
}

// WriteTo writes every metric in the text exposition format.
func (c *Collector) WriteTo(w io.Writer) (int64, error) {
	metricFamilies, err := c.registry.Gather()
	if err != nil {
		return 0, err
	}
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range metricFamilies {
		if err := enc.Encode(family); err != nil {
			return 0, err
		}
	}
	return buf.WriteTo(w)
}

// Write writes all metrics to a Prometheus text file.
func (c *Collector) Write(path string) error {
	var buf bytes.Buffer
	if _, err := c.WriteTo(&buf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
