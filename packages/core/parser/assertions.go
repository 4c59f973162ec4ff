package parser

import (
	"strings"

	"gopkg.in/yaml.v3"
)

var operatorWords = map[string]AssertionOperator{
	"==":          OpEquals,
	"!=":          OpNotEquals,
	">":           OpGreaterThan,
	">=":          OpGreaterOrEqual,
	"<":           OpLessThan,
	"<=":          OpLessOrEqual,
	"contains":    OpContains,
	"!contains":   OpNotContains,
	"startswith":  OpStartsWith,
	"endswith":    OpEndsWith,
	"matches":     OpMatches,
	"exists":      OpExists,
	"!exists":     OpNotExists,
	"length":      OpLength,
	"includes":    OpIncludes,
	"!includes":   OpNotIncludes,
	"in":          OpIn,
	"!in":         OpNotIn,
	"type":        OpType,
	"each":        OpEach,
	"schema":      OpSchema,
}

// operatorKeys are the mapping-form spellings.
var operatorKeys = map[string]AssertionOperator{
	"equals":       OpEquals,
	"eq":           OpEquals,
	"not_equals":   OpNotEquals,
	"ne":           OpNotEquals,
	"gt":           OpGreaterThan,
	"gte":          OpGreaterOrEqual,
	"lt":           OpLessThan,
	"lte":          OpLessOrEqual,
	"contains":     OpContains,
	"not_contains": OpNotContains,
	"starts_with":  OpStartsWith,
	"ends_with":    OpEndsWith,
	"matches":      OpMatches,
	"exists":       OpExists,
	"not_exists":   OpNotExists,
	"length":       OpLength,
	"includes":     OpIncludes,
	"not_includes": OpNotIncludes,
	"in":           OpIn,
	"not_in":       OpNotIn,
	"type":         OpType,
	"each":         OpEach,
	"schema":       OpSchema,
}

func (p *Parser) parseAssertions(node *yaml.Node) ([]*Assertion, error) {
	if isNull(node) {
		return nil, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, p.errorf(node, "assert", "expected a list of assertions")
	}

	var assertions []*Assertion
	for _, item := range node.Content {
		switch item.Kind {
		case yaml.ScalarNode:
			a, err := p.parseAssertionString(item)
			if err != nil {
				return nil, err
			}
			assertions = append(assertions, a)
		case yaml.MappingNode:
			as, err := p.parseAssertionMapping(item)
			if err != nil {
				return nil, err
			}
			assertions = append(assertions, as...)
		default:
			return nil, p.errorf(item, "assert", "assertion must be a string or a mapping")
		}
	}
	return assertions, nil
}

// parseAssertionString handles the one-line form: `subject operator expected`,
// with `header <Name>` as a two-word subject.
func (p *Parser) parseAssertionString(node *yaml.Node) (*Assertion, error) {
	rest := strings.TrimSpace(node.Value)
	subject, rest := cutField(rest)
	if subject == "" {
		return nil, p.errorf(node, "assert", "empty assertion")
	}
	if subject == "header" || subject == "headers" {
		var name string
		name, rest = cutField(rest)
		if name == "" {
			return nil, p.errorf(node, "assert", "header assertion needs a header name")
		}
		subject = "header " + name
	}

	opWord, rest := cutField(rest)
	if opWord == "" {
		return nil, p.errorf(node, "assert", "assertion %q has no operator", node.Value)
	}
	op, ok := operatorWords[strings.ToLower(opWord)]
	if !ok {
		return nil, p.errorf(node, "assert", "unknown operator %q", opWord)
	}

	a := &Assertion{
		Subject:  NormalizeSubject(subject),
		Operator: op,
		Line:     node.Line,
	}
	if op == OpExists || op == OpNotExists {
		return a, nil
	}
	if rest == "" {
		return nil, p.errorf(node, "assert", "operator %q needs an expected value", opWord)
	}

	var expected any
	if err := yaml.Unmarshal([]byte(rest), &expected); err != nil {
		expected = rest
	}
	a.Expected = expected
	return a, nil
}

func (p *Parser) parseAssertionMapping(node *yaml.Node) ([]*Assertion, error) {
	var assertions []*Assertion
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		switch key.Value {
		case "status":
			as, err := p.parseOperands(value, "status", "assert.status", OpEquals)
			if err != nil {
				return nil, err
			}
			assertions = append(assertions, as...)
		case "duration":
			as, err := p.parseOperands(value, "duration", "assert.duration", OpLessThan)
			if err != nil {
				return nil, err
			}
			assertions = append(assertions, as...)
		case "header", "headers":
			as, err := p.parseTargeted(value, "assert.header", "name", func(name string) string {
				return "header " + name
			})
			if err != nil {
				return nil, err
			}
			assertions = append(assertions, as...)
		case "body", "json":
			as, err := p.parseTargeted(value, "assert.body", "path", func(path string) string {
				return NormalizeSubject(joinPath("body", path))
			})
			if err != nil {
				return nil, err
			}
			assertions = append(assertions, as...)
		case "schema":
			var schema any
			if value.Kind == yaml.MappingNode {
				if err := value.Decode(&schema); err != nil {
					return nil, p.errorf(value, "assert.schema", "%v", err)
				}
			} else {
				s, err := p.scalarString(value, "assert.schema")
				if err != nil {
					return nil, err
				}
				schema = s
			}
			assertions = append(assertions, &Assertion{Subject: "body", Operator: OpSchema, Expected: schema, Line: key.Line})
		case "expr", "ok":
			s, err := p.scalarString(value, "assert."+key.Value)
			if err != nil {
				return nil, err
			}
			assertions = append(assertions, &Assertion{Subject: "expr", Operator: OpExpr, Expected: s, Line: key.Line})
		default:
			return nil, p.errorf(key, "assert."+key.Value, "unknown assertion kind")
		}
	}
	return assertions, nil
}

// parseOperands reads either a bare expected value (using def as the
// operator) or a mapping of operator keys to expected values.
func (p *Parser) parseOperands(node *yaml.Node, subject, key string, def AssertionOperator) ([]*Assertion, error) {
	if node.Kind != yaml.MappingNode {
		var expected any
		if err := node.Decode(&expected); err != nil {
			return nil, p.errorf(node, key, "%v", err)
		}
		return []*Assertion{{Subject: subject, Operator: def, Expected: expected, Line: node.Line}}, nil
	}

	var assertions []*Assertion
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		a, err := p.operandAssertion(subject, key, k, v)
		if err != nil {
			return nil, err
		}
		assertions = append(assertions, a)
	}
	if len(assertions) == 0 {
		return nil, p.errorf(node, key, "no operator given")
	}
	return assertions, nil
}

// parseTargeted handles header and body mappings, where one key names the
// target (header name or body path) and the others are operators.
func (p *Parser) parseTargeted(node *yaml.Node, key, targetKey string, subjectOf func(string) string) ([]*Assertion, error) {
	if node.Kind != yaml.MappingNode {
		return nil, p.errorf(node, key, "expected a mapping with %q and an operator", targetKey)
	}

	target := ""
	var targetSeen bool
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == targetKey {
			s, err := p.scalarString(node.Content[i+1], key+"."+targetKey)
			if err != nil {
				return nil, err
			}
			target, targetSeen = s, true
		}
	}
	if !targetSeen && targetKey == "name" {
		return nil, p.errorf(node, key+".name", "missing required field")
	}

	subject := subjectOf(target)
	var assertions []*Assertion
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if k.Value == targetKey {
			continue
		}
		a, err := p.operandAssertion(subject, key, k, v)
		if err != nil {
			return nil, err
		}
		assertions = append(assertions, a)
	}
	if len(assertions) == 0 {
		return nil, p.errorf(node, key, "no operator given")
	}
	return assertions, nil
}

func (p *Parser) operandAssertion(subject, key string, k, v *yaml.Node) (*Assertion, error) {
	op, ok := operatorKeys[k.Value]
	if !ok {
		return nil, p.errorf(k, key+"."+k.Value, "unknown operator")
	}

	a := &Assertion{Subject: subject, Operator: op, Line: k.Line}
	if op == OpExists || op == OpNotExists {
		want, err := p.parseBool(v, key+"."+k.Value)
		if err != nil {
			return nil, err
		}
		if !want {
			a.Operator = negateExists(op)
		}
		return a, nil
	}

	var expected any
	if err := v.Decode(&expected); err != nil {
		return nil, p.errorf(v, key+"."+k.Value, "%v", err)
	}
	a.Expected = expected
	return a, nil
}

func negateExists(op AssertionOperator) AssertionOperator {
	if op == OpExists {
		return OpNotExists
	}
	return OpExists
}

func (p *Parser) parseCaptures(node *yaml.Node) ([]*Capture, error) {
	if isNull(node) {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, p.errorf(node, "capture", "expected a mapping of names to sources")
	}

	var captures []*Capture
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		switch value.Kind {
		case yaml.ScalarNode:
			if isNull(value) || value.Value == "" {
				return nil, p.errorf(value, "capture."+key.Value, "missing capture source")
			}
			source, path := ParseCaptureSource(value.Value)
			captures = append(captures, &Capture{Name: key.Value, Source: source, Path: path, Line: key.Line})
		case yaml.MappingNode:
			c, err := p.parseCaptureMapping(key, value)
			if err != nil {
				return nil, err
			}
			captures = append(captures, c)
		default:
			return nil, p.errorf(value, "capture."+key.Value, "capture source must be a string or a mapping")
		}
	}
	return captures, nil
}

func (p *Parser) parseCaptureMapping(key, node *yaml.Node) (*Capture, error) {
	c := &Capture{Name: key.Value, Line: key.Line}
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		s, err := p.scalarString(v, "capture."+key.Value+"."+k.Value)
		if err != nil {
			return nil, err
		}
		switch k.Value {
		case "from":
			switch s {
			case "body", "json":
				c.Source = CaptureBody
			case "header", "headers":
				c.Source = CaptureHeader
			case "status":
				c.Source = CaptureStatus
			case "duration":
				c.Source = CaptureDuration
			default:
				return nil, p.errorf(v, "capture."+key.Value+".from", "unknown capture source %q", s)
			}
		case "path", "name":
			c.Path = s
		default:
			return nil, p.errorf(k, "capture."+key.Value+"."+k.Value, "unknown capture field")
		}
	}
	if c.Source == CaptureHeader && c.Path == "" {
		return nil, p.errorf(node, "capture."+key.Value+".path", "header capture needs a header name")
	}
	return c, nil
}

// ParseCaptureSource splits a capture expression such as `body.user.id`,
// `header.Location`, `$.resp.json.token` or `status` into its source and path.
func ParseCaptureSource(expr string) (CaptureSource, string) {
	subject := NormalizeSubject(strings.TrimSpace(expr))
	switch {
	case subject == "status":
		return CaptureStatus, ""
	case subject == "duration":
		return CaptureDuration, ""
	case strings.HasPrefix(subject, "header "):
		return CaptureHeader, strings.TrimSpace(strings.TrimPrefix(subject, "header "))
	case subject == "body":
		return CaptureBody, ""
	case strings.HasPrefix(subject, "body."):
		return CaptureBody, strings.TrimPrefix(subject, "body.")
	case strings.HasPrefix(subject, "body["):
		return CaptureBody, strings.TrimPrefix(subject, "body")
	default:
		return CaptureBody, subject
	}
}

// NormalizeSubject maps the accepted subject spellings onto the canonical
// `status`, `duration`, `header <Name>` and `body[.path]` forms.
func NormalizeSubject(subject string) string {
	s := strings.TrimSpace(subject)
	s = strings.TrimPrefix(s, "$.")
	s = strings.TrimPrefix(s, "resp.")
	s = strings.TrimPrefix(s, "response.")

	switch {
	case s == "status" || s == "status_code" || s == "code":
		return "status"
	case s == "duration" || s == "time":
		return "duration"
	case s == "json":
		return "body"
	case strings.HasPrefix(s, "json.") || strings.HasPrefix(s, "json["):
		return "body" + strings.TrimPrefix(s, "json")
	case strings.HasPrefix(s, "headers."):
		return "header " + strings.TrimPrefix(s, "headers.")
	case strings.HasPrefix(s, "header."):
		return "header " + strings.TrimPrefix(s, "header.")
	case strings.HasPrefix(s, "headers "):
		return "header " + strings.TrimSpace(strings.TrimPrefix(s, "headers "))
	}
	return s
}

func joinPath(root, path string) string {
	path = strings.TrimSpace(path)
	switch {
	case path == "" || path == "$":
		return root
	case strings.HasPrefix(path, "$."):
		return root + "." + strings.TrimPrefix(path, "$.")
	case strings.HasPrefix(path, "["):
		return root + path
	}
	return root + "." + path
}

func cutField(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i+1:])
}
