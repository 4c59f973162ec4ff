package env

import "fmt"

const (
	ReasonUnbound  = "variable is not defined"
	ReasonTooDeep  = "placeholders nested deeper than the resolution limit"
	ReasonEnvUnset = "environment variable is not set"
)

// ResolutionError reports a placeholder that could not be given a value.
// Field names the request part being resolved (url, headers.Accept, body,
// assert[2]).
type ResolutionError struct {
	Name   string
	Field  string
	Reason string
	Err    error
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("cannot resolve ${%s}", e.Name)
	if e.Field != "" {
		msg += " in " + e.Field
	}
	switch {
	case e.Err != nil:
		msg += ": " + e.Err.Error()
	case e.Reason != "":
		msg += ": " + e.Reason
	}
	return msg
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}
