package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/tkrun/packages/assertions"
	"github.com/abdul-hamid-achik/tkrun/packages/builtin"
	"github.com/abdul-hamid-achik/tkrun/packages/capture"
	"github.com/abdul-hamid-achik/tkrun/packages/core/env"
	"github.com/abdul-hamid-achik/tkrun/packages/core/parser"
	"github.com/abdul-hamid-achik/tkrun/packages/http"
)

const (
	// DefaultRetryDelay is used when a retry directive has no delay
	DefaultRetryDelay = time.Second
)

type Runner struct {
	client   *http.Client
	config   *Config
	funcs    *builtin.Registry
	logger   *zap.Logger
	observer Observer
}

type Config struct {
	// Environment is the named environment selected from the config file.
	Environment *env.Environment
	// Variables are bound after the plan and the environment, so they win.
	Variables map[string]any
	// Timeout is the per-step default when neither the step nor the
	// document sets one.
	Timeout time.Duration
	// Bail stops a file at its first failed step.
	Bail bool
}

type Option func(*Runner)

// WithClient shares one client, and its rate limit, between runners.
func WithClient(c *http.Client) Option {
	return func(r *Runner) {
		if c != nil {
			r.client = c
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithObserver(o Observer) Option {
	return func(r *Runner) {
		if o != nil {
			r.observer = o
		}
	}
}

func WithFunctions(reg *builtin.Registry) Option {
	return func(r *Runner) {
		if reg != nil {
			r.funcs = reg
		}
	}
}

func NewRunner(cfg *Config, opts ...Option) *Runner {
	if cfg == nil {
		cfg = &Config{}
	}

	r := &Runner{
		config:   cfg,
		funcs:    builtin.NewRegistry(),
		logger:   zap.NewNop(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.client == nil {
		clientOpts := []http.ClientOption{http.WithLogger(r.logger)}
		if cfg.Timeout > 0 {
			clientOpts = append(clientOpts, http.WithTimeout(cfg.Timeout))
		}
		r.client = http.NewClient(clientOpts...)
	}
	return r
}

// Run executes every step of tc in order and returns the file verdict.
// The returned error is the fatal error that stopped the run, if any;
// assertion failures are reported only through the verdict.
func (r *Runner) Run(ctx context.Context, tc *TestContext) (*FileVerdict, error) {
	if tc.State != StatePending {
		return nil, fmt.Errorf("%s: test context is %s, not pending", tc.File, tc.State)
	}

	start := time.Now()
	verdict := &FileVerdict{File: tc.File}
	tc.State = StateRunning

	finish := func(state State, err error) (*FileVerdict, error) {
		tc.State = state
		verdict.State = state
		verdict.Steps = tc.Steps
		verdict.Err = err
		verdict.Phase = PhaseOf(err)
		verdict.Passed = state == StateCompleted && stepsPassed(tc.Steps)
		verdict.Duration = time.Since(start)
		r.observer.FileFinished(verdict)
		r.logger.Debug("file finished",
			zap.String("file", tc.File),
			zap.Stringer("state", state),
			zap.Bool("passed", verdict.Passed),
			zap.Duration("duration", verdict.Duration))
		return verdict, err
	}

	if err := ctx.Err(); err != nil {
		return finish(StateCancelled, &CancellationError{File: tc.File, Step: 0, Err: err})
	}

	if tc.Plan == nil {
		plan, err := parser.Parse(tc.Source, tc.File)
		if err != nil {
			return finish(StateFailed, err)
		}
		tc.Plan = plan
	}
	if tc.Plan.Settings == nil {
		tc.Plan.Settings = &parser.Settings{}
	}
	verdict.Warnings = tc.Plan.Warnings
	for _, w := range tc.Plan.Warnings {
		r.logger.Warn("test document warning", zap.String("file", tc.File), zap.Int("line", w.Line), zap.String("message", w.Message))
	}

	r.seed(tc)
	resolver := env.NewResolver(tc.Vars, env.WithFunctions(r.funcs))
	steps := tc.Plan.Steps

	if wf := tc.Plan.Settings.WaitFor; wf != nil {
		if err := r.waitForService(ctx, wf, resolver); err != nil {
			tc.Steps = append(tc.Steps, notAttempted(steps, "service did not become ready")...)
			if ctx.Err() != nil {
				return finish(StateCancelled, &CancellationError{File: tc.File, Step: 0, Err: ctx.Err()})
			}
			return finish(StateFailed, err)
		}
	}

	bail := r.config.Bail || tc.Plan.Settings.StopOnFailure
	for i, step := range steps {
		tc.Current = i

		if err := ctx.Err(); err != nil {
			tc.Steps = append(tc.Steps, notAttempted(steps[i:], "run cancelled")...)
			return finish(StateCancelled, &CancellationError{File: tc.File, Step: i, Err: err})
		}

		sv, fatal := r.runStep(ctx, tc, resolver, step)
		tc.Steps = append(tc.Steps, sv)
		r.observer.StepFinished(tc.File, sv)
		r.logger.Debug("step finished",
			zap.String("file", tc.File),
			zap.Int("index", i),
			zap.String("name", sv.Name),
			zap.String("status", string(sv.Status)),
			zap.Int("attempts", sv.Attempts),
			zap.Duration("duration", sv.Duration),
			zap.Error(sv.Error))

		if fatal != nil {
			tc.Steps = append(tc.Steps, notAttempted(steps[i+1:], fmt.Sprintf("step %q aborted the run", step.Name))...)
			return finish(StateFailed, fatal)
		}

		if bail && sv.Status == StepFailed {
			tc.Steps = append(tc.Steps, notAttempted(steps[i+1:], fmt.Sprintf("stopped after step %q failed", step.Name))...)
			break
		}
	}

	return finish(StateCompleted, nil)
}

// seed binds plan variables, then the environment, then explicit
// variables. Later sources win.
func (r *Runner) seed(tc *TestContext) {
	resolver := env.NewResolver(tc.Vars, env.WithFunctions(r.funcs))
	for _, v := range tc.Plan.Variables {
		// Plan variables may refer to earlier ones; unresolvable values
		// are kept raw so the step using them reports the error.
		if value, err := resolver.ResolveValue("vars."+v.Name, v.Value); err == nil {
			tc.Vars.Set(v.Name, value)
		} else {
			tc.Vars.Set(v.Name, v.Value)
		}
	}
	if r.config.Environment != nil {
		tc.Vars.SetAll(r.config.Environment.Variables)
	}
	tc.Vars.SetAll(r.config.Variables)
}

func (r *Runner) runStep(ctx context.Context, tc *TestContext, resolver *env.Resolver, step *parser.Step) (*StepVerdict, error) {
	sv := &StepVerdict{
		Name:     step.Name,
		Index:    step.Index,
		Optional: step.Optional,
		Captures: orderedmap.New[string, any](),
	}
	start := time.Now()
	defer func() { sv.Duration = time.Since(start) }()

	if step.Skip != "" {
		sv.Status, sv.Passed = StepSkipped, true
		sv.Diagnostics = append(sv.Diagnostics, "skipped: "+step.Skip)
		return sv, nil
	}

	if step.When != "" {
		run, err := assertions.EvalBool(step.When, conditionEnv(tc.Vars))
		if err != nil {
			sv.Status, sv.Error = StepErrored, err
			return sv, fmt.Errorf("step %q: when: %w", step.Name, err)
		}
		if !run {
			sv.Status, sv.Passed = StepSkipped, true
			sv.Diagnostics = append(sv.Diagnostics, "skipped: condition not met: "+step.When)
			return sv, nil
		}
	}

	req, err := http.BuildRequest(step.Request, resolver)
	if err != nil {
		return r.stepError(sv, step, err)
	}
	req.SetTimeout(r.stepTimeout(tc.Plan, step))
	sv.Request = req

	checks, err := r.resolveAssertions(tc.Vars, req, step.Assertions)
	if err != nil {
		return r.stepError(sv, step, err)
	}

	resp, results, err := r.dispatch(ctx, tc, step, req, checks, sv)
	if err != nil {
		return r.stepError(sv, step, err)
	}

	sv.Response = resp
	sv.Assertions = results
	if failure := assertions.NewFailure(step.Name, results); failure != nil {
		sv.Status, sv.Error = StepFailed, failure
	} else {
		sv.Status, sv.Passed = StepPassed, true
	}

	if len(step.Captures) > 0 {
		captured := capture.ExtractAll(resp, step.Captures)
		for pair := captured.Values.Oldest(); pair != nil; pair = pair.Next() {
			tc.Vars.SetCapture(step.Name, pair.Key, pair.Value)
		}
		sv.Captures = captured.Values
		for _, miss := range captured.Misses {
			sv.Diagnostics = append(sv.Diagnostics, fmt.Sprintf("capture %s: %s", miss.Name, miss.Reason))
		}
	}

	return sv, nil
}

// stepError records err on the step. Transport errors on optional steps
// are the only errors that do not stop the run.
func (r *Runner) stepError(sv *StepVerdict, step *parser.Step, err error) (*StepVerdict, error) {
	sv.Status, sv.Error = StepErrored, err

	var terr *http.TransportError
	if step.Optional && errors.As(err, &terr) {
		sv.Diagnostics = append(sv.Diagnostics, "optional step: "+err.Error())
		return sv, nil
	}
	return sv, err
}

func (r *Runner) stepTimeout(plan *parser.Plan, step *parser.Step) time.Duration {
	if step.Timeout > 0 {
		return step.Timeout
	}
	if plan.Settings != nil && plan.Settings.Timeout > 0 {
		return plan.Settings.Timeout
	}
	return r.config.Timeout
}

// resolveAssertions substitutes placeholders in subjects and expected
// values. The step's own resolved request is visible as request.*.
func (r *Runner) resolveAssertions(vars *env.VariableTable, req *http.Request, list []*parser.Assertion) ([]*parser.Assertion, error) {
	if len(list) == 0 {
		return nil, nil
	}

	scope := vars.Clone()
	scope.Set("request", req.Snapshot())
	resolver := env.NewResolver(scope, env.WithFunctions(r.funcs))

	out := make([]*parser.Assertion, len(list))
	for i, a := range list {
		field := fmt.Sprintf("assert[%d]", i)
		subject, err := resolver.ResolveString(field, a.Subject)
		if err != nil {
			return nil, err
		}
		expected := a.Expected
		// expr sources are compiled, not interpolated
		if a.Operator != parser.OpExpr {
			expected, err = resolver.ResolveValue(field, a.Expected)
			if err != nil {
				return nil, err
			}
		}
		out[i] = &parser.Assertion{
			Subject:  subject,
			Operator: a.Operator,
			Expected: expected,
			Line:     a.Line,
		}
	}
	return out, nil
}

// dispatch sends the request, repeating it as the step's retry directive
// allows. The request itself is not cancelled with ctx; only the wait
// between attempts is.
func (r *Runner) dispatch(ctx context.Context, tc *TestContext, step *parser.Step, req *http.Request, checks []*parser.Assertion, sv *StepVerdict) (*http.Response, []*assertions.Result, error) {
	maxRetries := 0
	retryDelay := DefaultRetryDelay
	var retryOnStatuses []int

	if step.Retry != nil {
		maxRetries = step.Retry.Attempts
		if step.Retry.Delay > 0 {
			retryDelay = step.Retry.Delay
		}
		retryOnStatuses = step.Retry.OnStatus
	}

	opts := []assertions.EvaluatorOption{
		assertions.WithBaseDir(filepath.Dir(tc.File)),
		assertions.WithVariables(tc.Vars.All()),
	}
	dispatchCtx := context.WithoutCancel(ctx)

	var (
		resp    *http.Response
		results []*assertions.Result
		err     error
	)
	for attempt := 0; attempt <= maxRetries; attempt++ {
		sv.Attempts = attempt + 1
		resp, err = r.client.Do(dispatchCtx, req)
		if err == nil {
			results = assertions.EvaluateAll(resp, checks, opts...)
			if assertions.AllPassed(results) {
				return resp, results, nil
			}
		}

		var terr *http.TransportError
		if errors.As(err, &terr) && terr.Kind == http.KindInvalidRequest {
			return nil, nil, err
		}

		if len(retryOnStatuses) > 0 && resp != nil && err == nil {
			shouldRetry := false
			for _, status := range retryOnStatuses {
				if resp.StatusCode == status {
					shouldRetry = true
					break
				}
			}
			if !shouldRetry {
				return resp, results, nil
			}
		}

		if attempt < maxRetries {
			r.logger.Debug("retrying step",
				zap.String("step", step.Name),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", retryDelay))
			select {
			case <-ctx.Done():
				return r.lastAttempt(resp, results, err)
			case <-time.After(retryDelay):
			}
		}
	}

	return r.lastAttempt(resp, results, err)
}

func (r *Runner) lastAttempt(resp *http.Response, results []*assertions.Result, err error) (*http.Response, []*assertions.Result, error) {
	if err != nil {
		return nil, nil, err
	}
	return resp, results, nil
}

// conditionEnv exposes plain variables to `when` expressions. Step
// qualified captures contain dots and are left out.
func conditionEnv(vars *env.VariableTable) map[string]any {
	all := vars.All()
	out := make(map[string]any, len(all))
	for k, v := range all {
		if !strings.Contains(k, ".") {
			out[k] = v
		}
	}
	return out
}

func notAttempted(steps []*parser.Step, reason string) []*StepVerdict {
	out := make([]*StepVerdict, len(steps))
	for i, s := range steps {
		out[i] = &StepVerdict{
			Name:        s.Name,
			Index:       s.Index,
			Status:      StepNotAttempted,
			Optional:    s.Optional,
			Captures:    orderedmap.New[string, any](),
			Diagnostics: []string{reason},
		}
	}
	return out
}

// stepsPassed is true when no step failed. Errors on optional steps do not
// count against the file.
func stepsPassed(steps []*StepVerdict) bool {
	for _, s := range steps {
		switch s.Status {
		case StepPassed, StepSkipped:
		case StepErrored:
			if !s.Optional {
				return false
			}
		default:
			return false
		}
	}
	return true
}
