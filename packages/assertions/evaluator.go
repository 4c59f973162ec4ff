package assertions

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/abdul-hamid-achik/tkrun/packages/core/parser"
	"github.com/abdul-hamid-achik/tkrun/packages/http"
)

type Result struct {
	Passed   bool
	Message  string
	Expected any
	Actual   any
	Subject  string
	Operator string
}

func (r *Result) String() string {
	if r.Operator == parser.OpExpr.String() {
		return fmt.Sprintf("expr %v: %s", r.Expected, r.Message)
	}
	if r.Message == "" {
		return fmt.Sprintf("%s %s %v", r.Subject, r.Operator, r.Expected)
	}
	return fmt.Sprintf("%s %s %v: %s", r.Subject, r.Operator, r.Expected, r.Message)
}

type Evaluator struct {
	response  *http.Response
	bodyJSON  gjson.Result
	baseDir   string // Base directory for resolving schema file paths
	variables map[string]any
}

// EvaluatorOption is a functional option for configuring an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithBaseDir sets the directory schema paths are resolved against.
func WithBaseDir(dir string) EvaluatorOption {
	return func(e *Evaluator) {
		e.baseDir = dir
	}
}

// WithVariables makes run variables visible to expr assertions.
func WithVariables(vars map[string]any) EvaluatorOption {
	return func(e *Evaluator) {
		e.variables = vars
	}
}

func NewEvaluator(resp *http.Response, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{response: resp}
	if resp.IsJSON() {
		e.bodyJSON = gjson.ParseBytes(resp.Body)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Evaluator) Evaluate(assertion *parser.Assertion) *Result {
	result := &Result{
		Subject:  assertion.Subject,
		Operator: assertion.Operator.String(),
		Expected: assertion.Expected,
	}

	if assertion.Operator == parser.OpExpr {
		result.Passed, result.Message = e.evalExpr(assertion.Expected)
		return result
	}

	actual, err := e.getActualValue(assertion.Subject)
	if err != nil {
		result.Passed = false
		result.Message = err.Error()
		return result
	}
	result.Actual = actual

	passed, msg := e.compare(actual, assertion.Operator, assertion.Expected)
	result.Passed = passed
	result.Message = msg

	if assertion.Operator == parser.OpLength {
		result.Actual = computeLength(actual)
	}

	return result
}

func (e *Evaluator) getActualValue(subject string) (any, error) {
	switch {
	case subject == "status":
		return e.response.StatusCode, nil
	case subject == "duration":
		return e.response.DurationMs(), nil
	case strings.HasPrefix(subject, "header"):
		headerName := strings.TrimSpace(strings.TrimPrefix(subject, "header"))
		if headerName == "" {
			return e.response.Headers, nil
		}
		if !e.response.HasHeader(headerName) {
			return nil, nil
		}
		return e.response.Header(headerName), nil
	case subject == "body" || strings.HasPrefix(subject, "body.") || strings.HasPrefix(subject, "body["):
		return e.getBodyValue(strings.TrimPrefix(subject, "body"))
	default:
		return e.getBodyValue("." + subject)
	}
}

var bracketIndex = regexp.MustCompile(`\[(\d+)\]`)

// convertBracketNotation converts array bracket notation to gjson dot notation
// e.g., "[0].id" -> "0.id", "items[0].tags[1]" -> "items.0.tags.1"
func convertBracketNotation(path string) string {
	result := bracketIndex.ReplaceAllString(path, ".$1")
	return strings.TrimPrefix(result, ".")
}

// BodyPath reads a gjson path (bracket indices allowed) out of a JSON
// document. The second result is false when the path does not exist.
func BodyPath(body []byte, path string) (any, bool) {
	path = convertBracketNotation(strings.TrimPrefix(path, "."))
	if path == "" {
		v := gjson.ParseBytes(body)
		return v.Value(), v.Exists()
	}
	v := gjson.GetBytes(body, path)
	if !v.Exists() {
		return nil, false
	}
	return v.Value(), true
}

func (e *Evaluator) getBodyValue(path string) (any, error) {
	if !e.bodyJSON.Exists() {
		if path == "" {
			return e.response.BodyString(), nil
		}
		return nil, fmt.Errorf("response body is not JSON, cannot read %q", "body"+path)
	}

	path = convertBracketNotation(strings.TrimPrefix(path, "."))
	if path == "" {
		return e.bodyJSON.Value(), nil
	}

	result := e.bodyJSON.Get(path)
	if !result.Exists() {
		return nil, nil
	}
	return result.Value(), nil
}

// EvaluateAll evaluates every assertion, in order, without stopping at the
// first failure.
func EvaluateAll(resp *http.Response, assertions []*parser.Assertion, opts ...EvaluatorOption) []*Result {
	evaluator := NewEvaluator(resp, opts...)
	results := make([]*Result, len(assertions))
	for i, a := range assertions {
		results[i] = evaluator.Evaluate(a)
	}
	return results
}
