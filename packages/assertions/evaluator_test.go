package assertions

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/tkrun/packages/core/parser"
	"github.com/abdul-hamid-achik/tkrun/packages/http"
)

func createResponse(statusCode int, body string, headers map[string]string) *http.Response {
	if headers == nil {
		headers = make(map[string]string)
	}
	if _, ok := headers["Content-Type"]; !ok {
		headers["Content-Type"] = "application/json"
	}
	return &http.Response{
		StatusCode: statusCode,
		Headers:    headers,
		Body:       []byte(body),
		Duration:   100 * time.Millisecond,
	}
}

func TestEvaluator_StatusCode(t *testing.T) {
	e := NewEvaluator(createResponse(200, `{}`, nil))

	result := e.Evaluate(&parser.Assertion{Subject: "status", Operator: parser.OpEquals, Expected: 200})
	assert.True(t, result.Passed)
	assert.Equal(t, 200, result.Actual)

	result = e.Evaluate(&parser.Assertion{Subject: "status", Operator: parser.OpEquals, Expected: 201})
	assert.False(t, result.Passed)
	assert.Equal(t, "expected 201, got 200", result.Message)
}

func TestEvaluator_Body(t *testing.T) {
	body := `{"user": {"name": "ada", "age": 36, "roles": ["admin", "dev"]}, "items": [{"id": 1}, {"id": 2}], "active": true}`
	e := NewEvaluator(createResponse(200, body, nil))

	tests := []struct {
		name      string
		assertion *parser.Assertion
		passed    bool
	}{
		{"nested string", &parser.Assertion{Subject: "body.user.name", Operator: parser.OpEquals, Expected: "ada"}, true},
		{"number vs int", &parser.Assertion{Subject: "body.user.age", Operator: parser.OpEquals, Expected: 36}, true},
		{"greater", &parser.Assertion{Subject: "body.user.age", Operator: parser.OpGreaterThan, Expected: 30}, true},
		{"less or equal fails", &parser.Assertion{Subject: "body.user.age", Operator: parser.OpLessOrEqual, Expected: 18}, false},
		{"bracket index", &parser.Assertion{Subject: "body.items[1].id", Operator: parser.OpEquals, Expected: 2}, true},
		{"length", &parser.Assertion{Subject: "body.items", Operator: parser.OpLength, Expected: 2}, true},
		{"includes", &parser.Assertion{Subject: "body.user.roles", Operator: parser.OpIncludes, Expected: "dev"}, true},
		{"not includes", &parser.Assertion{Subject: "body.user.roles", Operator: parser.OpNotIncludes, Expected: "ops"}, true},
		{"contains on array", &parser.Assertion{Subject: "body.user.roles", Operator: parser.OpContains, Expected: "admin"}, true},
		{"boolean", &parser.Assertion{Subject: "body.active", Operator: parser.OpEquals, Expected: true}, true},
		{"exists", &parser.Assertion{Subject: "body.user", Operator: parser.OpExists}, true},
		{"missing exists", &parser.Assertion{Subject: "body.nope", Operator: parser.OpExists}, false},
		{"missing not exists", &parser.Assertion{Subject: "body.nope", Operator: parser.OpNotExists}, true},
		{"type object", &parser.Assertion{Subject: "body.user", Operator: parser.OpType, Expected: "object"}, true},
		{"type array", &parser.Assertion{Subject: "body.items", Operator: parser.OpType, Expected: "array"}, true},
		{"in", &parser.Assertion{Subject: "body.user.name", Operator: parser.OpIn, Expected: []any{"ada", "grace"}}, true},
		{"not in", &parser.Assertion{Subject: "body.user.name", Operator: parser.OpNotIn, Expected: []any{"grace"}}, true},
		{"matches", &parser.Assertion{Subject: "body.user.name", Operator: parser.OpMatches, Expected: "^a.a$"}, true},
		{"starts with", &parser.Assertion{Subject: "body.user.name", Operator: parser.OpStartsWith, Expected: "ad"}, true},
		{"ends with", &parser.Assertion{Subject: "body.user.name", Operator: parser.OpEndsWith, Expected: "x"}, false},
		{"each", &parser.Assertion{Subject: "body.items", Operator: parser.OpEach, Expected: map[string]any{"type": "object"}}, true},
		{"bare path", &parser.Assertion{Subject: "user.name", Operator: parser.OpEquals, Expected: "ada"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := e.Evaluate(tt.assertion)
			assert.Equal(t, tt.passed, result.Passed, result.Message)
		})
	}
}

func TestEvaluator_NonJSONBody(t *testing.T) {
	resp := createResponse(200, "plain text", map[string]string{"Content-Type": "text/plain"})
	e := NewEvaluator(resp)

	result := e.Evaluate(&parser.Assertion{Subject: "body", Operator: parser.OpContains, Expected: "plain"})
	assert.True(t, result.Passed)

	result = e.Evaluate(&parser.Assertion{Subject: "body.id", Operator: parser.OpExists})
	assert.False(t, result.Passed)
	assert.Contains(t, result.Message, "not JSON")
}

func TestEvaluator_Header(t *testing.T) {
	resp := createResponse(200, `{}`, map[string]string{
		"Content-Type": "application/json; charset=utf-8",
		"X-Empty":      "",
	})
	e := NewEvaluator(resp)

	assert.True(t, e.Evaluate(&parser.Assertion{Subject: "header content-type", Operator: parser.OpContains, Expected: "json"}).Passed)
	assert.True(t, e.Evaluate(&parser.Assertion{Subject: "header X-Empty", Operator: parser.OpExists}).Passed)
	assert.False(t, e.Evaluate(&parser.Assertion{Subject: "header X-Missing", Operator: parser.OpExists}).Passed)
	assert.True(t, e.Evaluate(&parser.Assertion{Subject: "header X-Missing", Operator: parser.OpNotExists}).Passed)
}

func TestEvaluator_Duration(t *testing.T) {
	e := NewEvaluator(createResponse(200, `{}`, nil))

	assert.True(t, e.Evaluate(&parser.Assertion{Subject: "duration", Operator: parser.OpLessThan, Expected: 500}).Passed)
	assert.False(t, e.Evaluate(&parser.Assertion{Subject: "duration", Operator: parser.OpLessThan, Expected: 50}).Passed)
}

func TestEvaluator_Schema(t *testing.T) {
	dir := t.TempDir()
	schema := `{"type": "object", "required": ["id"], "properties": {"id": {"type": "integer"}}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "item.json"), []byte(schema), 0o644))

	e := NewEvaluator(createResponse(200, `{"id": 5}`, nil), WithBaseDir(dir))
	result := e.Evaluate(&parser.Assertion{Subject: "body", Operator: parser.OpSchema, Expected: "item.json"})
	assert.True(t, result.Passed, result.Message)

	e = NewEvaluator(createResponse(200, `{"id": "x"}`, nil), WithBaseDir(dir))
	result = e.Evaluate(&parser.Assertion{Subject: "body", Operator: parser.OpSchema, Expected: "item.json"})
	assert.False(t, result.Passed)
	assert.Contains(t, result.Message, "schema validation failed")
}

func TestEvaluator_InlineSchema(t *testing.T) {
	e := NewEvaluator(createResponse(200, `{"name": "ada"}`, nil))
	result := e.Evaluate(&parser.Assertion{
		Subject:  "body",
		Operator: parser.OpSchema,
		Expected: map[string]any{"type": "object", "required": []any{"name"}},
	})
	assert.True(t, result.Passed, result.Message)
}

func TestEvaluator_Schema_PathTraversal(t *testing.T) {
	e := NewEvaluator(createResponse(200, `{}`, nil), WithBaseDir(t.TempDir()))
	result := e.Evaluate(&parser.Assertion{Subject: "body", Operator: parser.OpSchema, Expected: "../../etc/passwd"})
	assert.False(t, result.Passed)
	assert.Contains(t, result.Message, "path traversal")
}

func TestEvaluator_Expr(t *testing.T) {
	resp := createResponse(201, `{"ok": true, "items": [1, 2, 3]}`, map[string]string{"Content-Type": "application/json", "X-Id": "9"})
	e := NewEvaluator(resp, WithVariables(map[string]any{"expected_count": 3, "login.token": "skip"}))

	tests := []struct {
		code   string
		passed bool
	}{
		{"status == 201", true},
		{"body.ok && len(body.items) == expected_count", true},
		{`headers["X-Id"] == "9"`, true},
		{"duration < 1000", true},
		{"status == 200", false},
		{"nope > 1", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			result := e.Evaluate(&parser.Assertion{Subject: "expr", Operator: parser.OpExpr, Expected: tt.code})
			assert.Equal(t, tt.passed, result.Passed, result.Message)
		})
	}
}

func TestEvalBool(t *testing.T) {
	ok, err := EvalBool("", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = EvalBool(`env == "staging"`, map[string]any{"env": "staging"})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = EvalBool("1 + 1", map[string]any{})
	assert.Error(t, err)
}

func TestEvaluateAll_NoShortCircuit(t *testing.T) {
	resp := createResponse(500, `{"error": "boom"}`, nil)
	results := EvaluateAll(resp, []*parser.Assertion{
		{Subject: "status", Operator: parser.OpEquals, Expected: 200},
		{Subject: "body.error", Operator: parser.OpEquals, Expected: "boom"},
		{Subject: "body.id", Operator: parser.OpExists},
	})

	require.Len(t, results, 3)
	assert.False(t, results[0].Passed)
	assert.True(t, results[1].Passed)
	assert.False(t, results[2].Passed)
	assert.False(t, AllPassed(results))

	failure := NewFailure("create user", results)
	require.NotNil(t, failure)
	assert.Len(t, failure.Results, 2)
	assert.Equal(t, 3, failure.Total)
	assert.Contains(t, failure.Error(), "create user: 2 of 3 assertions failed")

	var target *Failure
	assert.True(t, errors.As(error(failure), &target))
}

func TestNewFailure_AllPassed(t *testing.T) {
	assert.Nil(t, NewFailure("x", []*Result{{Passed: true}}))
}

func TestBodyPath(t *testing.T) {
	body := []byte(`{"data": [{"id": "a1"}]}`)

	v, ok := BodyPath(body, "data[0].id")
	assert.True(t, ok)
	assert.Equal(t, "a1", v)

	_, ok = BodyPath(body, "data[3].id")
	assert.False(t, ok)

	v, ok = BodyPath(body, "")
	assert.True(t, ok)
	assert.IsType(t, map[string]any{}, v)
}

func TestValidatePathWithinBase(t *testing.T) {
	assert.NoError(t, validatePathWithinBase("/home/u/p/file.json", "/home/u/p"))
	assert.Error(t, validatePathWithinBase("/home/u/p/../../etc/passwd", "/home/u/p"))
	assert.NoError(t, validatePathWithinBase("/any/path", ""))
}
