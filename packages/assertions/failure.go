package assertions

import (
	"fmt"
	"strings"
)

// Failure is the error recorded on a step whose response was received but
// did not satisfy every assertion. It never aborts a run by itself.
type Failure struct {
	Step    string
	Total   int
	Results []*Result
}

func (f *Failure) Error() string {
	parts := make([]string, len(f.Results))
	for i, r := range f.Results {
		parts[i] = r.String()
	}
	return fmt.Sprintf("%s: %d of %d assertions failed: %s", f.Step, len(f.Results), f.Total, strings.Join(parts, "; "))
}

// NewFailure returns nil when every result passed.
func NewFailure(step string, results []*Result) *Failure {
	var failed []*Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &Failure{Step: step, Total: len(results), Results: failed}
}

func AllPassed(results []*Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
