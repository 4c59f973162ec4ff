package parser

import (
	"fmt"
	"time"
)

// Plan is the executable form of one test document. Step order is
// execution order.
type Plan struct {
	File      string
	Variables []*Variable
	Steps     []*Step
	Settings  *Settings
	Warnings  []*Warning
}

// Settings holds document-level execution options from the `config` key.
type Settings struct {
	Timeout       time.Duration
	StopOnFailure bool
	WaitFor       *WaitFor
}

// WaitFor delays the first step until URL answers with Status.
type WaitFor struct {
	URL      string
	Status   int
	Timeout  time.Duration
	Interval time.Duration
}

type Variable struct {
	Name  string
	Value any
	Line  int
}

type Step struct {
	Name       string
	Index      int
	Request    *Request
	Assertions []*Assertion
	Captures   []*Capture
	Timeout    time.Duration
	Optional   bool
	Retry      *Retry
	When       string
	Skip       string
	Line       int
}

// Retry is the step-level retry directive. The executor never retries on
// its own.
type Retry struct {
	Attempts int
	Delay    time.Duration
	OnStatus []int
}

type Request struct {
	Method   string
	URL      string
	Headers  []*Header
	Body     any
	BodyKind BodyType
	Auth     *AuthConfig
	Line     int
}

type Header struct {
	Key   string
	Value string
	Line  int
}

type BodyType int

const (
	BodyNone BodyType = iota
	BodyRaw
	BodyJSON
)

type AuthConfig struct {
	Type   AuthType
	Params []string
}

type AuthType int

const (
	AuthNone AuthType = iota
	AuthBasic
	AuthBearer
	AuthAPIKey
)

type Assertion struct {
	Subject  string
	Operator AssertionOperator
	Expected any
	Line     int
}

type AssertionOperator int

const (
	OpEquals AssertionOperator = iota
	OpNotEquals
	OpGreaterThan
	OpGreaterOrEqual
	OpLessThan
	OpLessOrEqual
	OpContains
	OpNotContains
	OpStartsWith
	OpEndsWith
	OpMatches
	OpExists
	OpNotExists
	OpLength
	OpIncludes
	OpNotIncludes
	OpIn
	OpNotIn
	OpType
	OpEach
	OpSchema
	OpExpr
)

func (op AssertionOperator) String() string {
	switch op {
	case OpEquals:
		return "=="
	case OpNotEquals:
		return "!="
	case OpGreaterThan:
		return ">"
	case OpGreaterOrEqual:
		return ">="
	case OpLessThan:
		return "<"
	case OpLessOrEqual:
		return "<="
	case OpContains:
		return "contains"
	case OpNotContains:
		return "!contains"
	case OpStartsWith:
		return "startsWith"
	case OpEndsWith:
		return "endsWith"
	case OpMatches:
		return "matches"
	case OpExists:
		return "exists"
	case OpNotExists:
		return "!exists"
	case OpLength:
		return "length"
	case OpIncludes:
		return "includes"
	case OpNotIncludes:
		return "!includes"
	case OpIn:
		return "in"
	case OpNotIn:
		return "!in"
	case OpType:
		return "type"
	case OpEach:
		return "each"
	case OpSchema:
		return "schema"
	case OpExpr:
		return "expr"
	default:
		return "unknown"
	}
}

type Capture struct {
	Name   string
	Source CaptureSource
	Path   string
	Line   int
}

type CaptureSource int

const (
	CaptureBody CaptureSource = iota
	CaptureHeader
	CaptureStatus
	CaptureDuration
)

func (s CaptureSource) String() string {
	switch s {
	case CaptureBody:
		return "body"
	case CaptureHeader:
		return "header"
	case CaptureStatus:
		return "status"
	case CaptureDuration:
		return "duration"
	default:
		return "unknown"
	}
}

// Warning is a non-fatal diagnostic, e.g. an unknown top-level key.
type Warning struct {
	Line    int
	Column  int
	Key     string
	Message string
}

func (w *Warning) String() string {
	return fmt.Sprintf("line %d: %s", w.Line, w.Message)
}

type ParseError struct {
	File    string
	Line    int
	Column  int
	Key     string
	Message string
}

func (e *ParseError) Error() string {
	msg := e.Message
	if e.Key != "" {
		msg = e.Key + ": " + msg
	}
	if e.File != "" {
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, msg)
	}
	return fmt.Sprintf("line %d: %s", e.Line, msg)
}
