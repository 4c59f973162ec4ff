package capture

import (
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/abdul-hamid-achik/tkrun/packages/assertions"
	"github.com/abdul-hamid-achik/tkrun/packages/core/parser"
	"github.com/abdul-hamid-achik/tkrun/packages/http"
)

type Extractor struct {
	response *http.Response
	isJSON   bool
}

func NewExtractor(resp *http.Response) *Extractor {
	return &Extractor{
		response: resp,
		isJSON:   resp.IsJSON(),
	}
}

// Extract returns the captured value, or an error describing why the
// source had nothing at that path.
func (e *Extractor) Extract(c *parser.Capture) (any, error) {
	switch c.Source {
	case parser.CaptureBody:
		return e.extractFromBody(c.Path)
	case parser.CaptureHeader:
		return e.extractFromHeader(c.Path)
	case parser.CaptureStatus:
		return e.response.StatusCode, nil
	case parser.CaptureDuration:
		return e.response.DurationMs(), nil
	default:
		return nil, fmt.Errorf("unknown capture source %v", c.Source)
	}
}

func (e *Extractor) extractFromBody(path string) (any, error) {
	if !e.isJSON {
		if path == "" {
			return e.response.BodyString(), nil
		}
		return nil, fmt.Errorf("response body is not JSON, cannot read %q", path)
	}

	v, ok := assertions.BodyPath(e.response.Body, path)
	if !ok {
		return nil, fmt.Errorf("path %q not found in response body", path)
	}
	return v, nil
}

func (e *Extractor) extractFromHeader(name string) (any, error) {
	if !e.response.HasHeader(name) {
		return nil, fmt.Errorf("header %q not present in response", name)
	}
	return e.response.Header(name), nil
}

// Miss records a capture whose source had no value.
type Miss struct {
	Name   string
	Reason string
}

type Result struct {
	Values *orderedmap.OrderedMap[string, any]
	Misses []Miss
}

// ExtractAll runs every capture in declaration order. Misses are reported,
// not treated as failures.
func ExtractAll(resp *http.Response, captures []*parser.Capture) *Result {
	extractor := NewExtractor(resp)
	result := &Result{Values: orderedmap.New[string, any]()}

	for _, c := range captures {
		value, err := extractor.Extract(c)
		if err != nil {
			result.Misses = append(result.Misses, Miss{Name: c.Name, Reason: err.Error()})
			continue
		}
		result.Values.Set(c.Name, value)
	}

	return result
}
