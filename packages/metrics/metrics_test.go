package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/tkrun/packages/assertions"
	"github.com/abdul-hamid-achik/tkrun/packages/core/runner"
	"github.com/abdul-hamid-achik/tkrun/packages/http"
)

func TestCollector_Observe(t *testing.T) {
	c := NewCollector()

	c.StepFinished("a.tk.yaml", &runner.StepVerdict{
		Status:   runner.StepFailed,
		Duration: 20 * time.Millisecond,
		Response: &http.Response{StatusCode: 404},
		Assertions: []*assertions.Result{
			{Passed: true},
			{Passed: false},
			{Passed: false},
		},
	})
	c.StepFinished("a.tk.yaml", &runner.StepVerdict{Status: runner.StepPassed, Response: &http.Response{StatusCode: 200}})
	c.FileFinished(&runner.FileVerdict{
		File:  "a.tk.yaml",
		State: runner.StateFailed,
		Steps: []*runner.StepVerdict{
			{Status: runner.StepFailed},
			{Status: runner.StepPassed},
			{Status: runner.StepNotAttempted},
		},
	})
	c.FileFinished(&runner.FileVerdict{File: "b.tk.yaml", State: runner.StateCancelled})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.stepsTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.stepsTotal.WithLabelValues("not-attempted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.assertionsTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.responsesTotal.WithLabelValues("404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.filesTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.filesTotal.WithLabelValues("cancelled")))
}

func TestCollector_Write(t *testing.T) {
	c := NewCollector()
	c.StepFinished("a.tk.yaml", &runner.StepVerdict{Status: runner.StepPassed})
	c.FileFinished(&runner.FileVerdict{File: "a.tk.yaml", State: runner.StateCompleted, Passed: true})

	path := filepath.Join(t.TempDir(), "tkrun.prom")
	require.NoError(t, c.Write(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `tkrun_files_total{status="passed"} 1`)
	assert.Contains(t, text, `tkrun_steps_total{status="passed"} 1`)
	assert.True(t, strings.Contains(text, "# TYPE tkrun_step_duration_seconds histogram"))
}

func TestFileStatus(t *testing.T) {
	assert.Equal(t, "passed", FileStatus(&runner.FileVerdict{State: runner.StateCompleted, Passed: true}))
	assert.Equal(t, "failed", FileStatus(&runner.FileVerdict{State: runner.StateCompleted}))
	assert.Equal(t, "failed", FileStatus(&runner.FileVerdict{State: runner.StateFailed}))
	assert.Equal(t, "cancelled", FileStatus(&runner.FileVerdict{State: runner.StateCancelled}))
}
