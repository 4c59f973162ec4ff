package assertions

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
)

// EvalBool compiles and runs a boolean expr-lang expression against env.
// An empty expression is true.
func EvalBool(code string, env map[string]any) (bool, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return true, nil
	}

	program, err := expr.Compile(code, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("compile expression %q: %w", code, err)
	}
	output, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("eval expression %q: %w", code, err)
	}
	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q did not return bool (got %T)", code, output)
	}
	return result, nil
}

// exprEnv exposes the response and the run variables to expressions.
// Response fields shadow variables of the same name.
func (e *Evaluator) exprEnv() map[string]any {
	env := make(map[string]any, len(e.variables)+4)
	for k, v := range e.variables {
		if !strings.Contains(k, ".") {
			env[k] = v
		}
	}

	headers := make(map[string]any, len(e.response.Headers))
	for k, v := range e.response.Headers {
		headers[k] = v
		headers[strings.ToLower(k)] = v
	}

	var body any = e.response.BodyString()
	if e.bodyJSON.Exists() {
		body = e.bodyJSON.Value()
	}

	env["status"] = e.response.StatusCode
	env["headers"] = headers
	env["body"] = body
	env["duration"] = e.response.DurationMs()
	return env
}

func (e *Evaluator) evalExpr(expected any) (bool, string) {
	code, ok := expected.(string)
	if !ok {
		return false, fmt.Sprintf("expression must be a string, got %T", expected)
	}
	passed, err := EvalBool(code, e.exprEnv())
	if err != nil {
		return false, err.Error()
	}
	if !passed {
		return false, fmt.Sprintf("expected %q to be true", code)
	}
	return true, ""
}
