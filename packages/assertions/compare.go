package assertions

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/tkrun/packages/core/parser"
)

func (e *Evaluator) compare(actual any, op parser.AssertionOperator, expected any) (bool, string) {
	switch op {
	case parser.OpEquals:
		return equals(actual, expected)
	case parser.OpNotEquals:
		return negate(passedOf(equals(actual, expected)), fmt.Sprintf("expected not to equal %v", expected))
	case parser.OpGreaterThan:
		return compareNumeric(actual, expected, ">")
	case parser.OpGreaterOrEqual:
		return compareNumeric(actual, expected, ">=")
	case parser.OpLessThan:
		return compareNumeric(actual, expected, "<")
	case parser.OpLessOrEqual:
		return compareNumeric(actual, expected, "<=")
	case parser.OpContains:
		return contains(actual, expected)
	case parser.OpNotContains:
		return negate(passedOf(contains(actual, expected)), fmt.Sprintf("expected not to contain %v", expected))
	case parser.OpStartsWith:
		return startsWith(actual, expected)
	case parser.OpEndsWith:
		return endsWith(actual, expected)
	case parser.OpMatches:
		return matches(actual, expected)
	case parser.OpExists:
		return exists(actual)
	case parser.OpNotExists:
		return negate(passedOf(exists(actual)), "expected not to exist")
	case parser.OpLength:
		return length(actual, expected)
	case parser.OpIncludes:
		return includes(actual, expected)
	case parser.OpNotIncludes:
		return negate(passedOf(includes(actual, expected)), fmt.Sprintf("expected not to include %v", expected))
	case parser.OpIn:
		return in(actual, expected)
	case parser.OpNotIn:
		return negate(passedOf(in(actual, expected)), fmt.Sprintf("expected not to be in %v", expected))
	case parser.OpType:
		return typeCheck(actual, expected)
	case parser.OpSchema:
		return e.schema(actual, expected)
	case parser.OpEach:
		return each(actual, expected)
	default:
		return false, fmt.Sprintf("unknown operator: %v", op)
	}
}

func negate(passed bool, msg string) (bool, string) {
	if passed {
		return false, msg
	}
	return true, ""
}

func passedOf(passed bool, _ string) bool {
	return passed
}

func equals(actual, expected any) (bool, string) {
	if reflect.DeepEqual(actual, expected) {
		return true, ""
	}

	actualNum, aOk := toFloat64(actual)
	expectedNum, eOk := toFloat64(expected)
	if aOk && eOk && actualNum == expectedNum {
		return true, ""
	}

	if !isComposite(actual) && !isComposite(expected) && fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", expected) {
		return true, ""
	}

	return false, fmt.Sprintf("expected %v, got %v", expected, actual)
}

func isComposite(v any) bool {
	switch v.(type) {
	case []any, map[string]any:
		return true
	}
	return false
}

func compareNumeric(actual, expected any, op string) (bool, string) {
	actualNum, aOk := toFloat64(actual)
	expectedNum, eOk := toFloat64(expected)

	if !aOk || !eOk {
		return false, fmt.Sprintf("cannot compare non-numeric values: %v %s %v", actual, op, expected)
	}

	var passed bool
	switch op {
	case ">":
		passed = actualNum > expectedNum
	case ">=":
		passed = actualNum >= expectedNum
	case "<":
		passed = actualNum < expectedNum
	case "<=":
		passed = actualNum <= expectedNum
	}

	if passed {
		return true, ""
	}
	return false, fmt.Sprintf("expected %v %s %v", actual, op, expected)
}

func contains(actual, expected any) (bool, string) {
	if arr, ok := actual.([]any); ok {
		return includes(arr, expected)
	}
	actualStr := fmt.Sprintf("%v", actual)
	expectedStr := fmt.Sprintf("%v", expected)
	if actual != nil && strings.Contains(actualStr, expectedStr) {
		return true, ""
	}
	return false, fmt.Sprintf("expected '%v' to contain '%v'", actual, expected)
}

func startsWith(actual, expected any) (bool, string) {
	actualStr := fmt.Sprintf("%v", actual)
	expectedStr := fmt.Sprintf("%v", expected)
	if strings.HasPrefix(actualStr, expectedStr) {
		return true, ""
	}
	return false, fmt.Sprintf("expected '%v' to start with '%v'", actual, expected)
}

func endsWith(actual, expected any) (bool, string) {
	actualStr := fmt.Sprintf("%v", actual)
	expectedStr := fmt.Sprintf("%v", expected)
	if strings.HasSuffix(actualStr, expectedStr) {
		return true, ""
	}
	return false, fmt.Sprintf("expected '%v' to end with '%v'", actual, expected)
}

func matches(actual, expected any) (bool, string) {
	actualStr := fmt.Sprintf("%v", actual)
	pattern := fmt.Sprintf("%v", expected)

	pattern = strings.TrimPrefix(pattern, "/")
	pattern = strings.TrimSuffix(pattern, "/")

	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Sprintf("invalid regex pattern: %v", err)
	}

	if re.MatchString(actualStr) {
		return true, ""
	}
	return false, fmt.Sprintf("expected '%v' to match /%v/", actual, pattern)
}

func exists(actual any) (bool, string) {
	if actual == nil {
		return false, "expected to exist"
	}
	return true, ""
}

// computeLength returns the length of a value, or -1 if length cannot be computed
func computeLength(actual any) int {
	switch v := actual.(type) {
	case string:
		return len(v)
	case []any:
		return len(v)
	case map[string]any:
		return len(v)
	default:
		if actual == nil {
			return -1
		}
		rv := reflect.ValueOf(actual)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
			return rv.Len()
		default:
			return -1
		}
	}
}

func length(actual, expected any) (bool, string) {
	expectedLen, ok := toInt(expected)
	if !ok {
		return false, fmt.Sprintf("expected length must be a number, got %v", expected)
	}

	actualLen := computeLength(actual)
	if actualLen == -1 {
		return false, fmt.Sprintf("cannot get length of %T", actual)
	}

	if actualLen == expectedLen {
		return true, ""
	}
	return false, fmt.Sprintf("expected length %d, got %d", expectedLen, actualLen)
}

func includes(actual, expected any) (bool, string) {
	arr, ok := actual.([]any)
	if !ok {
		return false, fmt.Sprintf("expected array, got %T", actual)
	}

	for _, item := range arr {
		if passed, _ := equals(item, expected); passed {
			return true, ""
		}
	}
	return false, fmt.Sprintf("expected array to include %v", expected)
}

func in(actual, expected any) (bool, string) {
	arr, ok := expected.([]any)
	if !ok {
		return false, fmt.Sprintf("expected array for 'in' operator, got %T", expected)
	}

	for _, item := range arr {
		if passed, _ := equals(actual, item); passed {
			return true, ""
		}
	}
	return false, fmt.Sprintf("expected %v to be in %v", actual, expected)
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64, float32, int, int64, int32:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return reflect.TypeOf(v).String()
	}
}

func typeCheck(actual, expected any) (bool, string) {
	expectedType := fmt.Sprintf("%v", expected)
	actualType := typeName(actual)
	if actualType == expectedType {
		return true, ""
	}
	return false, fmt.Sprintf("expected type %s, got %s", expectedType, actualType)
}

// each applies expected to every element: a plain value means equality,
// a mapping such as {type: string} or {gt: 0} names operators.
func each(actual, expected any) (bool, string) {
	arr, ok := actual.([]any)
	if !ok {
		return false, fmt.Sprintf("expected array for 'each' operator, got %T", actual)
	}

	checks, isMap := expected.(map[string]any)
	for i, item := range arr {
		if !isMap {
			if passed, msg := equals(item, expected); !passed {
				return false, fmt.Sprintf("item[%d]: %s", i, msg)
			}
			continue
		}
		for op, val := range checks {
			passed, msg := applyOperator(item, op, val)
			if !passed {
				return false, fmt.Sprintf("item[%d]: %s", i, msg)
			}
		}
	}
	return true, ""
}

func applyOperator(actual any, op string, expected any) (bool, string) {
	switch op {
	case "==", "equals", "eq":
		return equals(actual, expected)
	case "!=", "not_equals", "ne":
		return negate(passedOf(equals(actual, expected)), fmt.Sprintf("expected not to equal %v", expected))
	case ">", "gt":
		return compareNumeric(actual, expected, ">")
	case ">=", "gte":
		return compareNumeric(actual, expected, ">=")
	case "<", "lt":
		return compareNumeric(actual, expected, "<")
	case "<=", "lte":
		return compareNumeric(actual, expected, "<=")
	case "contains":
		return contains(actual, expected)
	case "starts_with":
		return startsWith(actual, expected)
	case "ends_with":
		return endsWith(actual, expected)
	case "matches":
		return matches(actual, expected)
	case "exists":
		return exists(actual)
	case "type":
		return typeCheck(actual, expected)
	default:
		return false, fmt.Sprintf("unknown operator in each: %s", op)
	}
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i, true
		}
	}
	return 0, false
}
