package parser

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var httpMethods = map[string]bool{
	"GET":     true,
	"POST":    true,
	"PUT":     true,
	"PATCH":   true,
	"DELETE":  true,
	"HEAD":    true,
	"OPTIONS": true,
}

var yamlLinePattern = regexp.MustCompile(`line (\d+)`)

type Parser struct {
	file string
	plan *Plan
}

// ParseFile reads path and parses it. The read is the only I/O; Parse
// itself is pure.
func ParseFile(path string) (*Plan, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(string(content), path)
}

// Parse turns a YAML test document into a Plan. The same input always
// yields the same Plan; placeholders are left untouched.
func Parse(input, filename string) (*Plan, error) {
	p := &Parser{
		file: filename,
		plan: &Plan{File: filename, Settings: &Settings{}},
	}
	if err := p.parse(input); err != nil {
		return nil, err
	}
	return p.plan, nil
}

func (p *Parser) parse(input string) error {
	if strings.TrimSpace(input) == "" {
		return nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(input), &doc); err != nil {
		return p.yamlError(err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil
	}

	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		return p.parseSteps(root)
	case yaml.MappingNode:
		return p.parseDocument(root)
	case yaml.ScalarNode:
		if root.Tag == "!!null" {
			return nil
		}
	}
	return p.errorf(root, "", "document must be a list of steps or a mapping with a 'steps' key")
}

func (p *Parser) parseDocument(root *yaml.Node) error {
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		switch key.Value {
		case "steps":
			if value.Kind != yaml.SequenceNode {
				if isNull(value) {
					continue
				}
				return p.errorf(value, "steps", "expected a list of steps")
			}
			if err := p.parseSteps(value); err != nil {
				return err
			}
		case "vars", "variables":
			if err := p.parseVariables(value); err != nil {
				return err
			}
		case "config":
			if err := p.parseSettings(value); err != nil {
				return err
			}
		case "name", "description":
		default:
			p.warnf(key, key.Value, "unknown top-level key %q ignored", key.Value)
		}
	}
	return nil
}

func (p *Parser) parseVariables(node *yaml.Node) error {
	if isNull(node) {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return p.errorf(node, "vars", "expected a mapping of variable names to values")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		var v any
		if err := value.Decode(&v); err != nil {
			return p.errorf(value, "vars."+key.Value, "%v", err)
		}
		p.plan.Variables = append(p.plan.Variables, &Variable{
			Name:  key.Value,
			Value: v,
			Line:  key.Line,
		})
	}
	return nil
}

func (p *Parser) parseSettings(node *yaml.Node) error {
	if isNull(node) {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return p.errorf(node, "config", "expected a mapping")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		switch key.Value {
		case "timeout":
			d, err := p.parseDuration(value, "config.timeout")
			if err != nil {
				return err
			}
			p.plan.Settings.Timeout = d
		case "stop_on_failure", "bail":
			b, err := p.parseBool(value, "config."+key.Value)
			if err != nil {
				return err
			}
			p.plan.Settings.StopOnFailure = b
		case "wait_for":
			wf, err := p.parseWaitFor(value)
			if err != nil {
				return err
			}
			p.plan.Settings.WaitFor = wf
		default:
			p.warnf(key, "config."+key.Value, "unknown config key %q ignored", key.Value)
		}
	}
	return nil
}

func (p *Parser) parseWaitFor(node *yaml.Node) (*WaitFor, error) {
	wf := &WaitFor{Status: 200, Timeout: 30 * time.Second, Interval: time.Second}
	if node.Kind == yaml.ScalarNode {
		wf.URL = node.Value
		return wf, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, p.errorf(node, "config.wait_for", "expected a URL or a mapping")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		var err error
		switch key.Value {
		case "url":
			wf.URL, err = p.scalarString(value, "config.wait_for.url")
		case "status":
			if value.Kind != yaml.ScalarNode || value.Decode(&wf.Status) != nil {
				err = p.errorf(value, "config.wait_for.status", "expected a status code")
			}
		case "timeout":
			wf.Timeout, err = p.parseDuration(value, "config.wait_for.timeout")
		case "interval":
			wf.Interval, err = p.parseDuration(value, "config.wait_for.interval")
		default:
			err = p.errorf(key, "config.wait_for."+key.Value, "unknown wait_for field")
		}
		if err != nil {
			return nil, err
		}
	}
	if wf.URL == "" {
		return nil, p.errorf(node, "config.wait_for.url", "missing required field")
	}
	return wf, nil
}

func (p *Parser) parseSteps(node *yaml.Node) error {
	for _, item := range node.Content {
		step, err := p.parseStep(item, len(p.plan.Steps))
		if err != nil {
			return err
		}
		p.plan.Steps = append(p.plan.Steps, step)
	}
	return nil
}

func (p *Parser) parseStep(node *yaml.Node, index int) (*Step, error) {
	if node.Kind != yaml.MappingNode {
		return nil, p.errorf(node, fmt.Sprintf("steps[%d]", index), "step must be a mapping")
	}

	step := &Step{Index: index, Line: node.Line}
	var (
		req         *Request
		shorthand   *Request
		headersNode *yaml.Node
		bodyNode    *yaml.Node
		bodyKind    BodyType
		authNode    *yaml.Node
	)

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		k := key.Value

		switch {
		case k == "name" || k == "title":
			s, err := p.scalarString(value, k)
			if err != nil {
				return nil, err
			}
			step.Name = s
		case k == "request":
			r, err := p.parseRequest(value)
			if err != nil {
				return nil, err
			}
			req = r
		case httpMethods[k]:
			if shorthand != nil {
				return nil, p.errorf(key, k, "step declares more than one request method (%s and %s)", shorthand.Method, k)
			}
			url, err := p.scalarString(value, k)
			if err != nil {
				return nil, err
			}
			shorthand = &Request{Method: k, URL: url, Line: key.Line}
		case k == "headers":
			headersNode = value
		case k == "body":
			bodyNode, bodyKind = value, bodyKindOf(value)
		case k == "json":
			bodyNode, bodyKind = value, BodyJSON
		case k == "auth":
			authNode = value
		case k == "assert" || k == "asserts":
			assertions, err := p.parseAssertions(value)
			if err != nil {
				return nil, err
			}
			step.Assertions = append(step.Assertions, assertions...)
		case k == "capture" || k == "exports":
			captures, err := p.parseCaptures(value)
			if err != nil {
				return nil, err
			}
			step.Captures = append(step.Captures, captures...)
		case k == "timeout":
			d, err := p.parseDuration(value, k)
			if err != nil {
				return nil, err
			}
			step.Timeout = d
		case k == "optional":
			b, err := p.parseBool(value, k)
			if err != nil {
				return nil, err
			}
			step.Optional = b
		case k == "retry":
			r, err := p.parseRetry(value)
			if err != nil {
				return nil, err
			}
			step.Retry = r
		case k == "when":
			s, err := p.scalarString(value, k)
			if err != nil {
				return nil, err
			}
			step.When = s
		case k == "skip":
			reason, err := p.parseSkip(value)
			if err != nil {
				return nil, err
			}
			step.Skip = reason
		default:
			return nil, p.errorf(key, k, "unknown step directive")
		}
	}

	switch {
	case req != nil && shorthand != nil:
		return nil, p.errorf(node, "request", "step has both a 'request' block and a %s shorthand", shorthand.Method)
	case req == nil && shorthand == nil:
		return nil, p.errorf(node, "request", "step has no request (expected 'request' or a method key such as GET)")
	case req == nil:
		req = shorthand
	}

	if headersNode != nil {
		if len(req.Headers) > 0 {
			return nil, p.errorf(headersNode, "headers", "headers given both on the step and in its request")
		}
		headers, err := p.parseHeaders(headersNode)
		if err != nil {
			return nil, err
		}
		req.Headers = headers
	}
	if bodyNode != nil {
		if req.BodyKind != BodyNone {
			return nil, p.errorf(bodyNode, "body", "body given both on the step and in its request")
		}
		if err := p.setBody(req, bodyNode, bodyKind); err != nil {
			return nil, err
		}
	}
	if authNode != nil {
		if req.Auth != nil {
			return nil, p.errorf(authNode, "auth", "auth given both on the step and in its request")
		}
		auth, err := p.parseAuth(authNode)
		if err != nil {
			return nil, err
		}
		req.Auth = auth
	}

	step.Request = req
	if step.Name == "" {
		step.Name = req.Method + " " + req.URL
	}
	return step, nil
}

func (p *Parser) parseRequest(node *yaml.Node) (*Request, error) {
	if node.Kind != yaml.MappingNode {
		return nil, p.errorf(node, "request", "expected a mapping")
	}
	req := &Request{Line: node.Line}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		switch key.Value {
		case "method":
			s, err := p.scalarString(value, "request.method")
			if err != nil {
				return nil, err
			}
			method := strings.ToUpper(strings.TrimSpace(s))
			if !httpMethods[method] {
				return nil, p.errorf(value, "request.method", "unsupported method %q", s)
			}
			req.Method = method
		case "url":
			s, err := p.scalarString(value, "request.url")
			if err != nil {
				return nil, err
			}
			req.URL = s
		case "headers":
			headers, err := p.parseHeaders(value)
			if err != nil {
				return nil, err
			}
			req.Headers = headers
		case "body":
			if err := p.setBody(req, value, bodyKindOf(value)); err != nil {
				return nil, err
			}
		case "json":
			if err := p.setBody(req, value, BodyJSON); err != nil {
				return nil, err
			}
		case "auth":
			auth, err := p.parseAuth(value)
			if err != nil {
				return nil, err
			}
			req.Auth = auth
		default:
			return nil, p.errorf(key, "request."+key.Value, "unknown request field")
		}
	}

	if req.Method == "" {
		return nil, p.errorf(node, "request.method", "missing required field")
	}
	if strings.TrimSpace(req.URL) == "" {
		return nil, p.errorf(node, "request.url", "missing required field")
	}
	return req, nil
}

func (p *Parser) parseHeaders(node *yaml.Node) ([]*Header, error) {
	if isNull(node) {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, p.errorf(node, "headers", "expected a mapping of header names to values")
	}
	var headers []*Header
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if value.Kind != yaml.ScalarNode {
			return nil, p.errorf(value, "headers."+key.Value, "header value must be a scalar")
		}
		headers = append(headers, &Header{
			Key:   key.Value,
			Value: value.Value,
			Line:  key.Line,
		})
	}
	return headers, nil
}

func (p *Parser) setBody(req *Request, node *yaml.Node, kind BodyType) error {
	if isNull(node) {
		return nil
	}
	var v any
	if err := node.Decode(&v); err != nil {
		return p.errorf(node, "body", "%v", err)
	}
	req.Body = v
	req.BodyKind = kind
	return nil
}

func bodyKindOf(node *yaml.Node) BodyType {
	if node.Kind == yaml.ScalarNode {
		return BodyRaw
	}
	return BodyJSON
}

func (p *Parser) parseAuth(node *yaml.Node) (*AuthConfig, error) {
	if node.Kind != yaml.MappingNode {
		return nil, p.errorf(node, "auth", "expected a mapping with a 'type' key")
	}
	fields := make(map[string]string)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		s, err := p.scalarString(value, "auth."+key.Value)
		if err != nil {
			return nil, err
		}
		fields[key.Value] = s
	}

	switch strings.ToLower(fields["type"]) {
	case "basic":
		return &AuthConfig{Type: AuthBasic, Params: []string{fields["username"], fields["password"]}}, nil
	case "bearer":
		return &AuthConfig{Type: AuthBearer, Params: []string{fields["token"]}}, nil
	case "apikey", "api_key":
		name := fields["header"]
		if name == "" {
			name = "X-API-Key"
		}
		return &AuthConfig{Type: AuthAPIKey, Params: []string{name, fields["value"]}}, nil
	case "":
		return nil, p.errorf(node, "auth.type", "missing required field")
	default:
		return nil, p.errorf(node, "auth.type", "unsupported auth type %q", fields["type"])
	}
}

func (p *Parser) parseRetry(node *yaml.Node) (*Retry, error) {
	if node.Kind == yaml.ScalarNode {
		n, err := strconv.Atoi(node.Value)
		if err != nil || n < 0 {
			return nil, p.errorf(node, "retry", "expected a non-negative attempt count")
		}
		return &Retry{Attempts: n}, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, p.errorf(node, "retry", "expected a mapping or an attempt count")
	}

	retry := &Retry{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		switch key.Value {
		case "attempts":
			n, err := strconv.Atoi(value.Value)
			if err != nil || n < 0 || value.Kind != yaml.ScalarNode {
				return nil, p.errorf(value, "retry.attempts", "expected a non-negative integer")
			}
			retry.Attempts = n
		case "delay":
			d, err := p.parseDuration(value, "retry.delay")
			if err != nil {
				return nil, err
			}
			retry.Delay = d
		case "on_status", "on":
			var statuses []int
			if err := value.Decode(&statuses); err != nil {
				return nil, p.errorf(value, "retry."+key.Value, "expected a list of status codes")
			}
			retry.OnStatus = statuses
		default:
			return nil, p.errorf(key, "retry."+key.Value, "unknown retry field")
		}
	}
	return retry, nil
}

func (p *Parser) parseSkip(node *yaml.Node) (string, error) {
	if node.Kind != yaml.ScalarNode {
		return "", p.errorf(node, "skip", "expected a reason or a boolean")
	}
	if node.Tag == "!!bool" {
		b, err := p.parseBool(node, "skip")
		if err != nil {
			return "", err
		}
		if b {
			return "skipped", nil
		}
		return "", nil
	}
	return node.Value, nil
}

func (p *Parser) parseDuration(node *yaml.Node, key string) (time.Duration, error) {
	if node.Kind != yaml.ScalarNode {
		return 0, p.errorf(node, key, "expected a duration")
	}
	if node.Tag == "!!int" {
		ms, err := strconv.Atoi(node.Value)
		if err != nil || ms < 0 {
			return 0, p.errorf(node, key, "expected a non-negative number of milliseconds")
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(node.Value)
	if err != nil || d < 0 {
		return 0, p.errorf(node, key, "invalid duration %q (use 500ms, 2s, 1m or milliseconds)", node.Value)
	}
	return d, nil
}

func (p *Parser) parseBool(node *yaml.Node, key string) (bool, error) {
	var b bool
	if node.Kind != yaml.ScalarNode || node.Decode(&b) != nil {
		return false, p.errorf(node, key, "expected true or false")
	}
	return b, nil
}

func (p *Parser) scalarString(node *yaml.Node, key string) (string, error) {
	if node.Kind != yaml.ScalarNode || node.Tag == "!!null" {
		return "", p.errorf(node, key, "expected a string")
	}
	return node.Value, nil
}

func (p *Parser) errorf(node *yaml.Node, key, format string, args ...any) *ParseError {
	return &ParseError{
		File:    p.file,
		Line:    node.Line,
		Column:  node.Column,
		Key:     key,
		Message: fmt.Sprintf(format, args...),
	}
}

func (p *Parser) warnf(node *yaml.Node, key, format string, args ...any) {
	p.plan.Warnings = append(p.plan.Warnings, &Warning{
		Line:    node.Line,
		Column:  node.Column,
		Key:     key,
		Message: fmt.Sprintf(format, args...),
	})
}

func (p *Parser) yamlError(err error) *ParseError {
	line := 0
	if m := yamlLinePattern.FindStringSubmatch(err.Error()); m != nil {
		line, _ = strconv.Atoi(m[1])
	}
	return &ParseError{
		File:    p.file,
		Line:    line,
		Message: strings.TrimPrefix(err.Error(), "yaml: "),
	}
}

func isNull(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && node.Tag == "!!null"
}
