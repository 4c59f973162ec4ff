package env

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/abdul-hamid-achik/tkrun/packages/builtin"
)

// MaxDepth bounds how many substitution passes a single value may need.
const MaxDepth = 10

// placeholderPattern matches innermost placeholders first, so
// ${a_${b}} resolves ${b} before ${a_...}.
var placeholderPattern = regexp.MustCompile(`\$\{([^{}]+)\}`)

var wholePattern = regexp.MustCompile(`^\$\{([^{}]+)\}$`)

// Resolver substitutes ${...} placeholders against a VariableTable.
type Resolver struct {
	vars      *VariableTable
	funcs     *builtin.Registry
	lookupEnv func(string) (string, bool)
}

// ResolverOption is a functional option for configuring a Resolver.
type ResolverOption func(*Resolver)

func WithFunctions(reg *builtin.Registry) ResolverOption {
	return func(r *Resolver) {
		r.funcs = reg
	}
}

// WithEnvLookup replaces os.LookupEnv for ${env.NAME} placeholders.
func WithEnvLookup(fn func(string) (string, bool)) ResolverOption {
	return func(r *Resolver) {
		r.lookupEnv = fn
	}
}

func NewResolver(vars *VariableTable, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		vars:      vars,
		funcs:     builtin.NewRegistry(),
		lookupEnv: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HasPlaceholders reports whether s still contains a ${...} reference.
func HasPlaceholders(s string) bool {
	return placeholderPattern.MatchString(s)
}

// ResolveString substitutes every placeholder in s. field is only used to
// label errors.
func (r *Resolver) ResolveString(field, s string) (string, error) {
	for depth := 0; HasPlaceholders(s); depth++ {
		if depth >= MaxDepth {
			m := placeholderPattern.FindStringSubmatch(s)
			return "", &ResolutionError{Name: m[1], Field: field, Reason: ReasonTooDeep}
		}

		var firstErr error
		s = placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
			if firstErr != nil {
				return match
			}
			v, err := r.evaluate(field, match[2:len(match)-1])
			if err != nil {
				firstErr = err
				return match
			}
			return Stringify(v)
		})
		if firstErr != nil {
			return "", firstErr
		}
	}
	return s, nil
}

// ResolveValue resolves placeholders inside structured values. A string
// that is exactly one placeholder keeps the bound value's type, so
// `id: ${user.id}` stays a number.
func (r *Resolver) ResolveValue(field string, v any) (any, error) {
	switch val := v.(type) {
	case string:
		return r.resolveScalar(field, val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			key, err := r.ResolveString(field, k)
			if err != nil {
				return nil, err
			}
			resolved, err := r.ResolveValue(field+"."+k, item)
			if err != nil {
				return nil, err
			}
			out[key] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := r.ResolveValue(fmt.Sprintf("%s[%d]", field, i), item)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

func (r *Resolver) resolveScalar(field, s string) (any, error) {
	for depth := 0; depth < MaxDepth; depth++ {
		m := wholePattern.FindStringSubmatch(s)
		if m == nil {
			return r.ResolveString(field, s)
		}
		v, err := r.evaluate(field, m[1])
		if err != nil {
			return nil, err
		}
		str, ok := v.(string)
		if !ok {
			return v, nil
		}
		if !HasPlaceholders(str) {
			return str, nil
		}
		s = str
	}
	m := placeholderPattern.FindStringSubmatch(s)
	return nil, &ResolutionError{Name: m[1], Field: field, Reason: ReasonTooDeep}
}

// evaluate gives a value to the inside of one placeholder.
func (r *Resolver) evaluate(field, expr string) (any, error) {
	expr = strings.TrimSpace(expr)

	if builtin.IsCall(expr) {
		v, err := r.funcs.Call(expr)
		if err != nil {
			return nil, &ResolutionError{Name: expr, Field: field, Err: err}
		}
		return v, nil
	}

	name, fallback, hasDefault := strings.Cut(expr, ":-")
	name = strings.TrimSpace(name)

	if strings.HasPrefix(name, "env.") {
		key := strings.TrimPrefix(name, "env.")
		if v, ok := r.lookupEnv(key); ok {
			return v, nil
		}
		if hasDefault {
			return fallback, nil
		}
		return nil, &ResolutionError{Name: name, Field: field, Reason: ReasonEnvUnset}
	}

	if v, ok := r.vars.Lookup(name); ok {
		return v, nil
	}
	if hasDefault {
		return fallback, nil
	}
	return nil, &ResolutionError{Name: name, Field: field, Reason: ReasonUnbound}
}

// Stringify renders a bound value for interpolation into a larger string.
// Structured values are written as JSON.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", val)
	}
}
