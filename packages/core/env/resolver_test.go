package env

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(vars map[string]any) *Resolver {
	table := NewVariableTable()
	table.SetAll(vars)
	return NewResolver(table, WithEnvLookup(func(key string) (string, bool) {
		if key == "API_HOST" {
			return "api.internal", true
		}
		return "", false
	}))
}

func TestResolver_ResolveString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		vars     map[string]any
		expected string
	}{
		{
			name:     "no placeholders",
			input:    "hello world",
			expected: "hello world",
		},
		{
			name:     "simple variable",
			input:    "hello ${name}",
			vars:     map[string]any{"name": "world"},
			expected: "hello world",
		},
		{
			name:     "multiple variables",
			input:    "${greeting} ${name}!",
			vars:     map[string]any{"greeting": "Hello", "name": "World"},
			expected: "Hello World!",
		},
		{
			name:     "number interpolated",
			input:    "/users/${id}",
			vars:     map[string]any{"id": 42},
			expected: "/users/42",
		},
		{
			name:     "step-qualified capture wins over walk",
			input:    "${login.token}",
			vars:     map[string]any{"login.token": "abc", "login": map[string]any{"token": "zzz"}},
			expected: "abc",
		},
		{
			name:     "dotted walk into structured value",
			input:    "${user.roles.1}",
			vars:     map[string]any{"user": map[string]any{"roles": []any{"reader", "admin"}}},
			expected: "admin",
		},
		{
			name:     "default used when unbound",
			input:    "${region:-eu-west-1}",
			expected: "eu-west-1",
		},
		{
			name:     "default ignored when bound",
			input:    "${region:-eu-west-1}",
			vars:     map[string]any{"region": "us-east-2"},
			expected: "us-east-2",
		},
		{
			name:     "process environment",
			input:    "https://${env.API_HOST}/v1",
			expected: "https://api.internal/v1",
		},
		{
			name:     "nested placeholder",
			input:    "${url_${stage}}",
			vars:     map[string]any{"stage": "prod", "url_prod": "https://prod"},
			expected: "https://prod",
		},
		{
			name:     "chained binding",
			input:    "${endpoint}",
			vars:     map[string]any{"endpoint": "${base}/users", "base": "http://x"},
			expected: "http://x/users",
		},
		{
			name:     "builtin call",
			input:    `Basic ${base64("u:p")}`,
			expected: "Basic dTpw",
		},
		{
			name:     "structured value becomes json",
			input:    "q=${filter}",
			vars:     map[string]any{"filter": map[string]any{"a": 1}},
			expected: `q={"a":1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver(tt.vars)
			got, err := r.ResolveString("url", tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestResolver_Unbound(t *testing.T) {
	r := newTestResolver(map[string]any{"base": "http://x"})

	_, err := r.ResolveString("headers.Authorization", "Bearer ${token}")
	require.Error(t, err)

	var re *ResolutionError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "token", re.Name)
	assert.Equal(t, "headers.Authorization", re.Field)
	assert.Equal(t, ReasonUnbound, re.Reason)
	assert.Equal(t, "cannot resolve ${token} in headers.Authorization: variable is not defined", err.Error())
}

func TestResolver_UnsetEnv(t *testing.T) {
	r := newTestResolver(nil)

	_, err := r.ResolveString("url", "${env.MISSING}")
	var re *ResolutionError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "env.MISSING", re.Name)
	assert.Equal(t, ReasonEnvUnset, re.Reason)
}

func TestResolver_DepthLimit(t *testing.T) {
	r := newTestResolver(map[string]any{"loop": "${loop}"})

	_, err := r.ResolveString("url", "x${loop}")
	var re *ResolutionError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, ReasonTooDeep, re.Reason)

	_, err = r.ResolveValue("body", "${loop}")
	require.True(t, errors.As(err, &re))
	assert.Equal(t, ReasonTooDeep, re.Reason)
}

func TestResolver_FunctionError(t *testing.T) {
	r := newTestResolver(nil)

	_, err := r.ResolveString("body", "${random(x, 2)}")
	var re *ResolutionError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "random(x, 2)", re.Name)
	assert.NotNil(t, re.Err)
}

func TestResolver_ResolveValuePreservesTypes(t *testing.T) {
	r := newTestResolver(map[string]any{
		"user": map[string]any{"id": 7, "tags": []any{"a", "b"}},
		"name": "ada",
		"on":   true,
	})

	body := map[string]any{
		"id":      "${user.id}",
		"tags":    "${user.tags}",
		"active":  "${on}",
		"label":   "user-${user.id}",
		"nested":  []any{"${name}", 3},
		"literal": 1.5,
	}

	got, err := r.ResolveValue("body", body)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"id":      7,
		"tags":    []any{"a", "b"},
		"active":  true,
		"label":   "user-7",
		"nested":  []any{"ada", 3},
		"literal": 1.5,
	}, got)
}

func TestResolver_ResolveValueFieldNames(t *testing.T) {
	r := newTestResolver(nil)

	_, err := r.ResolveValue("body", map[string]any{"items": []any{"ok", "${gone}"}})
	var re *ResolutionError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "body.items[1]", re.Field)
}

func TestVariableTable(t *testing.T) {
	table := NewVariableTable()
	table.Set("a", 1)
	table.Set("a", 2)
	table.SetCapture("login", "token", "t1")

	v, ok := table.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, v)

	v, ok = table.Get("login.token")
	require.True(t, ok)
	assert.Equal(t, "t1", v)
	v, ok = table.Get("token")
	require.True(t, ok)
	assert.Equal(t, "t1", v)

	clone := table.Clone()
	clone.Set("a", 3)
	v, _ = table.Get("a")
	assert.Equal(t, 2, v)

	assert.Equal(t, []string{"a", "login.token", "token"}, table.Names())
	assert.Equal(t, 3, table.Len())

	_, ok = table.Lookup("login.missing")
	assert.False(t, ok)
}

func TestHasPlaceholders(t *testing.T) {
	assert.True(t, HasPlaceholders("a ${b} c"))
	assert.False(t, HasPlaceholders("a $b {c}"))
	assert.False(t, HasPlaceholders("${}"))
}
