package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/tkrun/packages/core/driver"
	"github.com/abdul-hamid-achik/tkrun/packages/core/env"
	"github.com/abdul-hamid-achik/tkrun/packages/core/runner"
	"github.com/abdul-hamid-achik/tkrun/packages/history"
	"github.com/abdul-hamid-achik/tkrun/packages/output"
)

func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := nethttp.NewServeMux()
	mux.HandleFunc("/ping", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/broken", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.WriteHeader(nethttp.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeTest(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func stepDoc(url string) string {
	return fmt.Sprintf(`
- name: ping
  GET: %s
  assert:
    - status == 200
`, url)
}

func testSettings() *settings {
	return &settings{
		environment:     &env.Environment{Variables: map[string]any{}},
		variables:       map[string]any{},
		timeout:         5 * time.Second,
		concurrency:     1,
		output:          "json",
		noColor:         true,
		followRedirects: true,
		validateSSL:     true,
	}
}

func runSession(t *testing.T, s *settings, ctx context.Context, target string, single bool) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	sess, err := newSession(s, &buf, zap.NewNop())
	require.NoError(t, err)
	defer sess.Close()
	err = sess.run(ctx, target, single)
	return buf.String(), err
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"tagged", withExitCode(ExitParseError, errors.New("bad")), ExitParseError},
		{"wrapped tag", fmt.Errorf("outer: %w", withExitCode(ExitConfigError, errors.New("bad"))), ExitConfigError},
		{"cancelled", context.Canceled, ExitCancelled},
		{"anything else", errors.New("boom"), ExitTestFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCodeFor(tt.err))
		})
	}
	assert.Nil(t, withExitCode(ExitParseError, nil))
}

func TestPhaseExitCode(t *testing.T) {
	assert.Equal(t, ExitTestFailure, phaseExitCode(runner.PhaseNone))
	assert.Equal(t, ExitUsageError, phaseExitCode(runner.PhaseLoad))
	assert.Equal(t, ExitParseError, phaseExitCode(runner.PhaseParse))
	assert.Equal(t, ExitResolutionError, phaseExitCode(runner.PhaseResolve))
	assert.Equal(t, ExitNetworkError, phaseExitCode(runner.PhaseWait))
	assert.Equal(t, ExitNetworkError, phaseExitCode(runner.PhaseTransport))
	assert.Equal(t, ExitCancelled, phaseExitCode(runner.PhaseCancel))
}

func TestSession_SingleFilePasses(t *testing.T) {
	srv := newAPI(t)
	path := writeTest(t, t.TempDir(), "ping.tk.yaml", stepDoc(srv.URL+"/ping"))

	out, err := runSession(t, testSettings(), context.Background(), path, true)
	require.NoError(t, err)

	var doc output.JSONOutput
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, 1, doc.Summary.Passed)
	require.Len(t, doc.Files, 1)
	assert.Equal(t, "passed", doc.Files[0].Steps[0].Status)
}

func TestSession_SingleFileExitCodes(t *testing.T) {
	srv := newAPI(t)
	dir := t.TempDir()

	dead := httptest.NewServer(nethttp.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	tests := []struct {
		name    string
		content string
		want    int
	}{
		{"assertion failure", stepDoc(srv.URL + "/broken"), ExitTestFailure},
		{"parse error", "steps: [", ExitParseError},
		{"unbound variable", stepDoc("${nope}/ping"), ExitResolutionError},
		{"connection refused", stepDoc(deadURL + "/ping"), ExitNetworkError},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTest(t, dir, fmt.Sprintf("case%d.tk.yaml", i), tt.content)
			_, err := runSession(t, testSettings(), context.Background(), path, true)
			require.Error(t, err)
			assert.Equal(t, tt.want, exitCodeFor(err))
		})
	}
}

func TestSession_DirectoryRecordsHistoryAndMetrics(t *testing.T) {
	srv := newAPI(t)
	dir := t.TempDir()
	writeTest(t, dir, "a.tk.yaml", stepDoc(srv.URL+"/ping"))
	writeTest(t, dir, "b.tk.yml", stepDoc(srv.URL+"/broken"))
	writeTest(t, dir, "notes.yaml", "not a test")

	state := t.TempDir()
	s := testSettings()
	s.history = filepath.Join(state, "history.db")
	s.metricsFile = filepath.Join(state, "tkrun.prom")
	s.environment.Name = "ci"

	out, err := runSession(t, s, context.Background(), dir, false)
	require.Error(t, err)
	assert.Equal(t, ExitTestFailure, exitCodeFor(err))

	var fe *driver.FailedError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 2, fe.Total)
	assert.Equal(t, 1, fe.Failed)

	var doc output.JSONOutput
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, 2, doc.Summary.Files)

	metricsText, err := os.ReadFile(s.metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(metricsText), `tkrun_files_total{status="failed"} 1`)
	assert.Contains(t, string(metricsText), `tkrun_files_total{status="passed"} 1`)

	store, err := history.Open(s.history)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "ci", runs[0].Environment)
	assert.Equal(t, 1, runs[0].Failed)
}

func TestSession_DirectoryWithoutTests(t *testing.T) {
	_, err := runSession(t, testSettings(), context.Background(), t.TempDir(), false)
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, exitCodeFor(err))
}

func TestSession_Cancelled(t *testing.T) {
	srv := newAPI(t)
	dir := t.TempDir()
	writeTest(t, dir, "a.tk.yaml", stepDoc(srv.URL+"/ping"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runSession(t, testSettings(), ctx, dir, false)
	require.Error(t, err)
	assert.Equal(t, ExitCancelled, exitCodeFor(err))
}

func TestSession_OutputFile(t *testing.T) {
	srv := newAPI(t)
	path := writeTest(t, t.TempDir(), "ping.tk.yaml", stepDoc(srv.URL+"/ping"))

	s := testSettings()
	s.output = "junit"
	s.outputFile = filepath.Join(t.TempDir(), "report.xml")

	out, err := runSession(t, s, context.Background(), path, true)
	require.NoError(t, err)
	assert.Empty(t, out)

	report, err := os.ReadFile(s.outputFile)
	require.NoError(t, err)
	assert.Contains(t, string(report), `<testcase name="ping"`)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	writeTest(t, dir, "ok.tk.yaml", stepDoc("http://localhost/ping"))

	out, err := execute(t, "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Valid:")
	assert.Contains(t, out, "(1 steps)")

	writeTest(t, dir, "bad.tk.yaml", "steps: [")
	_, err = execute(t, "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitParseError, exitCodeFor(err))
}

func TestListCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeTest(t, dir, "ok.tk.yaml", stepDoc("http://localhost/ping"))

	out, err := execute(t, "list", path)
	require.NoError(t, err)
	assert.Contains(t, out, "- ping: GET http://localhost/ping")
}

func TestHistoryCommand(t *testing.T) {
	db := filepath.Join(t.TempDir(), "history.db")
	store, err := history.Open(db)
	require.NoError(t, err)
	summary := driver.Summarize([]*runner.FileVerdict{{File: "a.tk.yaml", State: runner.StateCompleted, Passed: true}}, time.Second)
	id, err := store.Record(context.Background(), "./tests", "dev", time.Now(), summary)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	out, err := execute(t, "history", "--history", db)
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "./tests")

	out, err = execute(t, "history", "--history", db, "--run", id)
	require.NoError(t, err)
	assert.Contains(t, out, "a.tk.yaml")

	// flags keep their values between executions of the shared root command
	historyRunFlag = ""
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tkrun version")
}

func TestUnknownFlagIsUsageError(t *testing.T) {
	_, err := execute(t, "list", "--no-such-flag")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, exitCodeFor(err))
}

func TestWatchRelevant(t *testing.T) {
	assert.True(t, relevant("tests/a.tk.yaml", "tests", false))
	assert.False(t, relevant("tests/notes.yaml", "tests", false))
	assert.True(t, relevant("./a.tk.yaml", "a.tk.yaml", true))
	assert.False(t, relevant("b.tk.yaml", "a.tk.yaml", true))
}
