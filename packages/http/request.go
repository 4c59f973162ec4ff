package http

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/tkrun/packages/core/env"
	"github.com/abdul-hamid-achik/tkrun/packages/core/parser"
)

type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
	// Payload is the resolved body before encoding, kept so assertions can
	// refer to request.body.
	Payload any
	Timeout time.Duration
}

func NewRequest(method, requestURL string) *Request {
	return &Request{
		Method:  method,
		URL:     requestURL,
		Headers: make(map[string]string),
	}
}

func (r *Request) SetHeader(key, value string) *Request {
	r.Headers[key] = value
	return r
}

func (r *Request) SetBody(body []byte) *Request {
	r.Body = body
	return r
}

func (r *Request) SetTimeout(d time.Duration) *Request {
	r.Timeout = d
	return r
}

// Header looks a header up case-insensitively.
func (r *Request) Header(key string) string {
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func (r *Request) hasHeader(key string) bool {
	for k := range r.Headers {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

// Resolver is the placeholder substitution BuildRequest needs.
type Resolver interface {
	ResolveString(field, s string) (string, error)
	ResolveValue(field string, v any) (any, error)
}

// BuildRequest resolves a parsed request into a dispatchable one. Fields are
// resolved in a fixed order (headers and auth, URL, body) and the first
// failure is returned unchanged, so a *env.ResolutionError stays
// inspectable with errors.As.
func BuildRequest(req *parser.Request, resolver Resolver) (*Request, error) {
	r := NewRequest(req.Method, req.URL)

	for _, h := range req.Headers {
		v, err := resolver.ResolveString("headers."+h.Key, h.Value)
		if err != nil {
			return nil, err
		}
		r.SetHeader(h.Key, v)
	}

	if req.Auth != nil {
		params := make([]string, len(req.Auth.Params))
		for i, p := range req.Auth.Params {
			v, err := resolver.ResolveString("auth", p)
			if err != nil {
				return nil, err
			}
			params[i] = v
		}
		applyAuth(r, req.Auth.Type, params)
	}

	u, err := resolver.ResolveString("url", req.URL)
	if err != nil {
		return nil, err
	}
	r.URL = u

	if req.BodyKind == parser.BodyNone {
		return r, nil
	}

	payload, err := resolver.ResolveValue("body", req.Body)
	if err != nil {
		return nil, err
	}
	r.Payload = payload

	switch req.BodyKind {
	case parser.BodyJSON:
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, invalidRequest(r, fmt.Errorf("encode json body: %w", err))
		}
		r.SetBody(b)
		if !r.hasHeader("Content-Type") {
			r.SetHeader("Content-Type", "application/json")
		}
	case parser.BodyRaw:
		r.SetBody([]byte(env.Stringify(payload)))
	}
	return r, nil
}

func applyAuth(r *Request, authType parser.AuthType, params []string) {
	switch authType {
	case parser.AuthBasic:
		if len(params) >= 2 {
			creds := params[0] + ":" + params[1]
			r.SetHeader("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(creds)))
		}
	case parser.AuthBearer:
		if len(params) >= 1 {
			r.SetHeader("Authorization", "Bearer "+params[0])
		}
	case parser.AuthAPIKey:
		if len(params) >= 2 {
			r.SetHeader(params[0], params[1])
		}
	}
}

// Snapshot returns the request as plain values, for binding as
// request.method, request.url, request.headers and request.body.
func (r *Request) Snapshot() map[string]any {
	headers := make(map[string]any, len(r.Headers))
	keys := make([]string, 0, len(r.Headers))
	for k := range r.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		headers[k] = r.Headers[k]
	}

	body := r.Payload
	if body == nil && len(r.Body) > 0 {
		body = string(r.Body)
	}
	return map[string]any{
		"method":  r.Method,
		"url":     r.URL,
		"headers": headers,
		"body":    body,
	}
}
