package runner

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/tkrun/packages/assertions"
	"github.com/abdul-hamid-achik/tkrun/packages/core/env"
	"github.com/abdul-hamid-achik/tkrun/packages/core/parser"
	tkhttp "github.com/abdul-hamid-achik/tkrun/packages/http"
)

func runSource(t *testing.T, cfg *Config, source string) (*FileVerdict, error) {
	t.Helper()
	return NewRunner(cfg).Run(context.Background(), NewTestContext("inline.tk.yaml", source))
}

func closedURL(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return "http://" + addr
}

func jsonServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func statuses(v *FileVerdict) []StepStatus {
	out := make([]StepStatus, len(v.Steps))
	for i, s := range v.Steps {
		out[i] = s.Status
	}
	return out
}

func TestNewTestContext(t *testing.T) {
	tc := NewTestContext("suite/a.tk.yaml", "- GET: /a\n")

	assert.Equal(t, "suite/a.tk.yaml", tc.File)
	assert.Equal(t, "- GET: /a\n", tc.Source)
	assert.Nil(t, tc.Plan)
	require.NotNil(t, tc.Vars)
	assert.Equal(t, 0, tc.Vars.Len())
	assert.Empty(t, tc.Steps)
	assert.Equal(t, StatePending, tc.State)
	assert.Equal(t, -1, tc.Current)
}

func TestNewRunner(t *testing.T) {
	t.Run("with nil config", func(t *testing.T) {
		r := NewRunner(nil)
		assert.NotNil(t, r)
		assert.NotNil(t, r.client)
		assert.NotNil(t, r.config)
	})

	t.Run("with shared client", func(t *testing.T) {
		client := tkhttp.NewClient()
		r := NewRunner(&Config{Bail: true}, WithClient(client))
		assert.Same(t, client, r.client)
		assert.True(t, r.config.Bail)
	})
}

func TestRunner_ScenarioA_SinglePassingStep(t *testing.T) {
	server := jsonServer(t, `{"status": "ok"}`)

	verdict, err := runSource(t, &Config{Variables: map[string]any{"base": server.URL}}, `
- name: health
  GET: ${base}/health
  assert:
    - status == 200
`)
	require.NoError(t, err)

	assert.True(t, verdict.Passed)
	assert.Equal(t, StateCompleted, verdict.State)
	assert.Equal(t, PhaseNone, verdict.Phase)
	require.Len(t, verdict.Steps, 1)

	step := verdict.Steps[0]
	assert.Equal(t, StepPassed, step.Status)
	assert.Equal(t, 1, step.Attempts)
	require.Len(t, step.Assertions, 1)
	assert.True(t, step.Assertions[0].Passed)
	assert.Equal(t, 200, step.Assertions[0].Actual)
	assert.Equal(t, server.URL+"/health", step.Request.URL)
	assert.Equal(t, 200, step.Response.StatusCode)
	assert.Equal(t, http.MethodGet, step.Request.Method)
}

func TestRunner_SyntheticPlanWithoutSettings(t *testing.T) {
	server := jsonServer(t, `{"status": "ok"}`)

	tc := NewTestContext("synthetic.tk.yaml", "")
	tc.Plan = &parser.Plan{
		Steps: []*parser.Step{{
			Name:       "health",
			Request:    &parser.Request{Method: http.MethodGet, URL: server.URL + "/health"},
			Assertions: []*parser.Assertion{{Subject: "status", Operator: parser.OpEquals, Expected: 200}},
		}},
	}

	verdict, err := NewRunner(nil).Run(context.Background(), tc)
	require.NoError(t, err)
	assert.True(t, verdict.Passed)
	assert.Equal(t, []StepStatus{StepPassed}, statuses(verdict))
	assert.NotNil(t, tc.Plan.Settings)
}

func TestRunner_ScenarioB_CaptureFeedsNextStep(t *testing.T) {
	var gotAuth, gotVia string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/login":
			_, _ = w.Write([]byte(`{"token": "abc123"}`))
		case "/me":
			gotAuth = r.Header.Get("Authorization")
			gotVia = r.URL.Query().Get("via")
			_, _ = w.Write([]byte(`{"id": 1}`))
		}
	}))
	defer server.Close()

	verdict, err := runSource(t, &Config{Variables: map[string]any{"base": server.URL}}, `
- name: login
  POST: ${base}/login
  json:
    user: ada
  capture:
    token: body.token
- name: me
  GET: ${base}/me?via=${login.token}
  headers:
    Authorization: Bearer ${token}
  assert:
    - status == 200
`)
	require.NoError(t, err)
	require.True(t, verdict.Passed)

	assert.Equal(t, "Bearer abc123", gotAuth)
	assert.Equal(t, "abc123", gotVia)
	assert.Equal(t, "Bearer abc123", verdict.Steps[1].Request.Header("Authorization"))

	token, ok := verdict.Steps[0].Captures.Get("token")
	require.True(t, ok)
	assert.Equal(t, "abc123", token)
}

func TestRunner_CaptureNotVisibleToOwnStep(t *testing.T) {
	server := jsonServer(t, `{"token": "abc123"}`)

	verdict, err := runSource(t, &Config{Variables: map[string]any{"base": server.URL}}, `
- name: login
  GET: ${base}/login
  assert:
    - body.token == ${token}
  capture:
    token: body.token
`)
	var re *env.ResolutionError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "token", re.Name)
	assert.Equal(t, StepErrored, verdict.Steps[0].Status)
}

func TestRunner_ScenarioC_UnboundVariable(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	verdict, err := runSource(t, &Config{Variables: map[string]any{"base": server.URL}}, `
- GET: ${base}/first
- GET: ${base}/items/${missing}
- GET: ${base}/third
`)
	require.Error(t, err)

	var re *env.ResolutionError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "missing", re.Name)
	assert.Equal(t, "url", re.Field)
	assert.Contains(t, err.Error(), "${missing}")

	assert.False(t, verdict.Passed)
	assert.Equal(t, StateFailed, verdict.State)
	assert.Equal(t, PhaseResolve, verdict.Phase)
	assert.Equal(t, []StepStatus{StepPassed, StepErrored, StepNotAttempted}, statuses(verdict))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestRunner_BadBuiltinArgumentsAreResolutionErrors(t *testing.T) {
	for _, call := range []string{"randomString(-1)", "random(0, 9223372036854775807)"} {
		t.Run(call, func(t *testing.T) {
			verdict, err := runSource(t, nil, "- GET: http://127.0.0.1/${"+call+"}\n")
			require.Error(t, err)

			var re *env.ResolutionError
			require.True(t, errors.As(err, &re))
			assert.Equal(t, PhaseResolve, verdict.Phase)
			assert.Equal(t, []StepStatus{StepErrored}, statuses(verdict))
		})
	}
}

func TestRunner_DefaultValueAvoidsResolutionError(t *testing.T) {
	server := jsonServer(t, `{}`)

	verdict, err := runSource(t, &Config{Variables: map[string]any{"base": server.URL}}, `
- GET: ${base}/items?page=${page:-1}
`)
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/items?page=1", verdict.Steps[0].Request.URL)
}

func TestRunner_AssertionFailureDoesNotAbort(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	verdict, err := runSource(t, &Config{Variables: map[string]any{"base": server.URL}}, `
- GET: ${base}/ok
  assert:
    - status == 200
- GET: ${base}/missing
  assert:
    - status == 200
    - duration < 60000
    - header X-Request-Id exists
- GET: ${base}/ok
  assert:
    - status == 200
`)
	require.NoError(t, err)

	assert.False(t, verdict.Passed)
	assert.Equal(t, StateCompleted, verdict.State)
	assert.Equal(t, []StepStatus{StepPassed, StepFailed, StepPassed}, statuses(verdict))
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))

	failed := verdict.Steps[1]
	require.Len(t, failed.Assertions, 3, "every assertion is evaluated")
	assert.False(t, failed.Assertions[0].Passed)
	assert.Equal(t, 404, failed.Assertions[0].Actual)
	assert.Equal(t, 200, failed.Assertions[0].Expected)
	assert.True(t, failed.Assertions[1].Passed)
	assert.False(t, failed.Assertions[2].Passed)
	assert.Len(t, failed.FailedAssertions(), 2)

	var failure *assertions.Failure
	require.True(t, errors.As(failed.Error, &failure))
	assert.Len(t, failure.Results, 2)
	assert.Equal(t, 3, failure.Total)
}

func TestRunner_BailStopsAfterFailedStep(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	source := `
- GET: ${base}/a
  assert:
    - status == 200
- GET: ${base}/b
`
	cfg := &Config{Bail: true, Variables: map[string]any{"base": server.URL}}
	verdict, err := runSource(t, cfg, source)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, verdict.State)
	assert.False(t, verdict.Passed)
	assert.Equal(t, []StepStatus{StepFailed, StepNotAttempted}, statuses(verdict))

	verdict, err = runSource(t, &Config{Variables: map[string]any{"base": server.URL}}, `
config:
  stop_on_failure: true
steps:
  - GET: ${base}/a
    assert:
      - status == 200
  - GET: ${base}/b
`)
	require.NoError(t, err)
	assert.Equal(t, []StepStatus{StepFailed, StepNotAttempted}, statuses(verdict))
}

func TestRunner_TransportErrorAbortsRemainingSteps(t *testing.T) {
	server := jsonServer(t, `{}`)

	verdict, err := runSource(t, &Config{Variables: map[string]any{"base": server.URL, "dead": closedURL(t)}}, `
- GET: ${base}/a
- GET: ${dead}/b
- GET: ${base}/c
- GET: ${base}/d
`)
	var terr *tkhttp.TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, tkhttp.KindConnection, terr.Kind)

	assert.Equal(t, StateFailed, verdict.State)
	assert.Equal(t, PhaseTransport, verdict.Phase)
	assert.Equal(t, []StepStatus{StepPassed, StepErrored, StepNotAttempted, StepNotAttempted}, statuses(verdict))
	assert.Nil(t, verdict.Steps[1].Response)
}

func TestRunner_OptionalStepTransportError(t *testing.T) {
	server := jsonServer(t, `{}`)

	verdict, err := runSource(t, &Config{Variables: map[string]any{"base": server.URL, "dead": closedURL(t)}}, `
- GET: ${dead}/probe
  optional: true
  capture:
    never: body.id
- GET: ${base}/b
  assert:
    - status == 200
`)
	require.NoError(t, err)
	assert.True(t, verdict.Passed)
	assert.Equal(t, StateCompleted, verdict.State)
	assert.Equal(t, []StepStatus{StepErrored, StepPassed}, statuses(verdict))
	assert.Equal(t, 0, verdict.Steps[0].Captures.Len())
	assert.NotEmpty(t, verdict.Steps[0].Diagnostics)
}

func TestRunner_StepTimeoutIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, err := runSource(t, &Config{Variables: map[string]any{"base": server.URL}}, `
- GET: ${base}/slow
  timeout: 50ms
`)
	var terr *tkhttp.TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, tkhttp.KindTimeout, terr.Kind)
}

func TestRunner_RetryOnStatus(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	verdict, err := runSource(t, &Config{Variables: map[string]any{"base": server.URL}}, `
- GET: ${base}/flaky
  retry:
    attempts: 3
    delay: 10ms
    on_status: [503]
  assert:
    - status == 200
`)
	require.NoError(t, err)
	assert.True(t, verdict.Passed)
	assert.Equal(t, 3, verdict.Steps[0].Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRunner_RetryStopsOnUnlistedStatus(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	verdict, err := runSource(t, &Config{Variables: map[string]any{"base": server.URL}}, `
- GET: ${base}/broken
  retry: {attempts: 5, delay: 10ms, on_status: [503]}
  assert:
    - status == 200
`)
	require.NoError(t, err)
	assert.Equal(t, StepFailed, verdict.Steps[0].Status)
	assert.Equal(t, 1, verdict.Steps[0].Attempts)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRunner_NoImplicitRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := runSource(t, &Config{Variables: map[string]any{"base": server.URL}}, `
- GET: ${base}/a
  assert:
    - status == 200
`)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRunner_SkipAndWhen(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	verdict, err := runSource(t, &Config{Variables: map[string]any{"base": server.URL, "stage": "dev"}}, `
- GET: ${base}/a
  skip: not deployed yet
- GET: ${base}/b
  when: stage == "prod"
- GET: ${base}/c
  when: stage == "dev"
`)
	require.NoError(t, err)
	assert.True(t, verdict.Passed)
	assert.Equal(t, []StepStatus{StepSkipped, StepSkipped, StepPassed}, statuses(verdict))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Equal(t, []string{"skipped: not deployed yet"}, verdict.Steps[0].Diagnostics)
	assert.Equal(t, 2, verdict.Count(StepSkipped))
}

func TestRunner_AssertionsSeeResolvedRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Echo", r.Header.Get("X-Trace"))
		_, _ = w.Write(body)
	}))
	defer server.Close()

	verdict, err := runSource(t, &Config{Variables: map[string]any{"base": server.URL, "who": "ada", "expected": 200}}, `
- POST: ${base}/echo
  headers:
    X-Trace: trace-${who}
  json:
    name: ${who}
  assert:
    - status == ${expected}
    - body.name == ${request.body.name}
    - header X-Echo == ${request.headers.X-Trace}
`)
	require.NoError(t, err)
	require.True(t, verdict.Passed, "%v", verdict.Steps[0].Error)
	assert.Equal(t, "ada", verdict.Steps[0].Assertions[1].Expected)
	assert.Equal(t, "trace-ada", verdict.Steps[0].Assertions[2].Expected)
}

func TestRunner_VariablePrecedence(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := &Config{
		Environment: &env.Environment{Name: "staging", Variables: map[string]any{"a": "env", "b": "env"}},
		Variables:   map[string]any{"base": server.URL, "b": "flag"},
	}
	_, err := runSource(t, cfg, `
vars:
  a: plan
  b: plan
  c: plan
steps:
  - GET: ${base}/?a=${a}&b=${b}&c=${c}
`)
	require.NoError(t, err)
	assert.Equal(t, "a=env&b=flag&c=plan", got)
}

func TestRunner_EmptyPlanPasses(t *testing.T) {
	verdict, err := runSource(t, nil, "# nothing to do\n")
	require.NoError(t, err)
	assert.True(t, verdict.Passed)
	assert.Equal(t, StateCompleted, verdict.State)
	assert.Empty(t, verdict.Steps)
}

func TestRunner_ParseError(t *testing.T) {
	verdict, err := runSource(t, nil, "- GET: /a\n  frobnicate: 1\n")

	var pe *parser.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, StateFailed, verdict.State)
	assert.Equal(t, PhaseParse, verdict.Phase)
	assert.False(t, verdict.Passed)
	assert.Empty(t, verdict.Steps)
}

func TestRunner_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	verdict, err := NewRunner(nil).Run(ctx, NewTestContext("x.tk.yaml", "- GET: http://127.0.0.1/\n"))

	var ce *CancellationError
	require.True(t, errors.As(err, &ce))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, StateCancelled, verdict.State)
	assert.Equal(t, PhaseCancel, verdict.Phase)
	assert.False(t, verdict.Passed)
}

func TestRunner_CancelledBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/first" {
			cancel()
			time.Sleep(20 * time.Millisecond)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tc := NewTestContext("x.tk.yaml", `
- GET: ${base}/first
  assert:
    - status == 200
- GET: ${base}/second
`)
	verdict, err := NewRunner(&Config{Variables: map[string]any{"base": server.URL}}).Run(ctx, tc)

	var ce *CancellationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 1, ce.Step)
	assert.Equal(t, StateCancelled, verdict.State)
	assert.Equal(t, StateCancelled, tc.State)
	assert.Equal(t, []StepStatus{StepPassed, StepNotAttempted}, statuses(verdict))
}

func TestRunner_ContextMustBeFresh(t *testing.T) {
	server := jsonServer(t, `{}`)
	r := NewRunner(&Config{Variables: map[string]any{"base": server.URL}})
	tc := NewTestContext("x.tk.yaml", "- GET: ${base}/a\n")

	_, err := r.Run(context.Background(), tc)
	require.NoError(t, err)

	_, err = r.Run(context.Background(), tc)
	require.Error(t, err)

	tc.Reset()
	verdict, err := r.Run(context.Background(), tc)
	require.NoError(t, err)
	assert.True(t, verdict.Passed)
}

func TestRunner_Idempotent(t *testing.T) {
	server := jsonServer(t, `{"items": [1, 2, 3], "name": "ada"}`)
	source := `
- GET: ${base}/items
  assert:
    - status == 200
    - body.items length 3
    - body.name == "bob"
  capture:
    first: body.items[0]
- GET: ${base}/items/${first}
`
	type shape struct {
		Status  StepStatus
		Results []bool
		Actual  []any
	}
	project := func(v *FileVerdict) []shape {
		var out []shape
		for _, s := range v.Steps {
			sh := shape{Status: s.Status}
			for _, a := range s.Assertions {
				sh.Results = append(sh.Results, a.Passed)
				sh.Actual = append(sh.Actual, a.Actual)
			}
			out = append(out, sh)
		}
		return out
	}

	r := NewRunner(&Config{Variables: map[string]any{"base": server.URL}})
	first, err := r.Run(context.Background(), NewTestContext("x.tk.yaml", source))
	require.NoError(t, err)
	second, err := r.Run(context.Background(), NewTestContext("x.tk.yaml", source))
	require.NoError(t, err)

	assert.Equal(t, project(first), project(second))
	assert.Equal(t, first.Passed, second.Passed)
}

func TestRunner_WaitFor(t *testing.T) {
	var ready atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" && !ready.Load() {
			ready.Store(true)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	verdict, err := runSource(t, &Config{Variables: map[string]any{"base": server.URL}}, `
config:
  wait_for:
    url: ${base}/health
    timeout: 2s
    interval: 10ms
steps:
  - GET: ${base}/a
`)
	require.NoError(t, err)
	assert.True(t, verdict.Passed)
}

func TestRunner_WaitForTimesOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	verdict, err := runSource(t, &Config{Variables: map[string]any{"base": server.URL}}, `
config:
  wait_for:
    url: ${base}/health
    timeout: 100ms
    interval: 20ms
steps:
  - GET: ${base}/a
`)
	var we *WaitError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, 503, we.Status)
	assert.Equal(t, PhaseWait, verdict.Phase)
	assert.Equal(t, []StepStatus{StepNotAttempted}, statuses(verdict))
}

type recordingObserver struct {
	mu    sync.Mutex
	steps []string
	files []string
}

func (o *recordingObserver) StepFinished(file string, step *StepVerdict) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.steps = append(o.steps, step.Name+":"+string(step.Status))
}

func (o *recordingObserver) FileFinished(v *FileVerdict) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.files = append(o.files, v.File+":"+v.State.String())
}

func TestRunner_Observer(t *testing.T) {
	server := jsonServer(t, `{}`)
	obs := &recordingObserver{}

	r := NewRunner(&Config{Variables: map[string]any{"base": server.URL}}, WithObserver(obs))
	_, err := r.Run(context.Background(), NewTestContext("obs.tk.yaml", `
- name: one
  GET: ${base}/1
- name: two
  GET: ${base}/2
  assert:
    - status == 201
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"one:passed", "two:failed"}, obs.steps)
	assert.Equal(t, []string{"obs.tk.yaml:completed"}, obs.files)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.tk.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- GET: /users\n"), 0o644))

	tc, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, tc.File)
	assert.Equal(t, "- GET: /users\n", tc.Source)
	assert.Equal(t, StatePending, tc.State)

	_, err = LoadFile(filepath.Join(dir, "missing.tk.yaml"))
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, PhaseLoad, PhaseOf(err))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestFileVerdict_JSONState(t *testing.T) {
	b, err := json.Marshal(struct{ State State }{StateCancelled})
	require.NoError(t, err)
	assert.JSONEq(t, `{"State": "cancelled"}`, string(b))
}
