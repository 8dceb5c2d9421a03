package engine

import (
	"fmt"

	"github.com/goplus/upsync/internal/fault"
)

// State is a step of a run.
type State string

const (
	Checking    State = "checking"
	Fetching    State = "fetching"
	Customizing State = "customizing"
	Done        State = "done"
	Verifying   State = "verifying"
)

// RunError is the terminal error of a run.
type RunError struct {
	Library string
	State   State
	Err     error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Library, e.State, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// Kind returns the fault kind of the underlying error.
func (e *RunError) Kind() fault.Kind { return fault.KindOf(e.Err) }
