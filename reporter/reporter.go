// Package reporter files grading results with external systems. A Reporter
// entity's mod field selects the implementation: "null" discards the result,
// "moodle" writes the grade back to a Moodle LMS, subject to the reporter's
// policy fields (due date, prerequisite, only-higher).
package reporter

import (
	"context"
	"errors"
	"fmt"

	"github.com/sharedcode/grader"
)

// Reporter mods.
const (
	ModNull   = "null"
	ModMoodle = "moodle"
)

// Recipient is the graded user as the reporter needs to see them.
type Recipient struct {
	AuthMod  string
	MoodleID string
}

// Outcome of one filing attempt. The run engine records Message on the
// run's output; a rejection never changes the run's status. Err carries the
// coded error behind a rejection.
type Outcome struct {
	Accepted bool
	Message  string
	Err      error
}

func accepted(format string, args ...any) Outcome {
	return Outcome{Accepted: true, Message: fmt.Sprintf(format, args...)}
}

func rejected(err error) Outcome {
	msg := err.Error()
	var ge grader.Error
	if errors.As(err, &ge) && ge.Err != nil {
		msg = ge.Err.Error()
	}
	return Outcome{Accepted: false, Message: msg, Err: err}
}

// Reporter files one result. Policy refusals and transport faults alike come
// back as rejected Outcomes; File never panics the run.
type Reporter interface {
	File(ctx context.Context, usr Recipient, grade float64, comment string) Outcome
}

// Factory builds a reporter from a Reporter entity's stored fields.
type Factory func(fields map[string]string) (Reporter, error)

// Registry maps reporter mods to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry builds the registry with the builtin mods registered. The
// moodle configuration carries the service account the moodle reporter
// authenticates with.
func NewRegistry(cfg grader.MoodleConfig) *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(ModNull, func(map[string]string) (Reporter, error) {
		return nullReporter{}, nil
	})
	r.Register(ModMoodle, func(fields map[string]string) (Reporter, error) {
		return newMoodleReporter(cfg, fields)
	})
	return r
}

// Register adds or replaces a reporter mod.
func (r *Registry) Register(mod string, factory Factory) {
	r.factories[mod] = factory
}

// Lookup builds a reporter for the mod from the entity's fields, or returns
// an UnknownReporter coded error.
func (r *Registry) Lookup(mod string, fields map[string]string) (Reporter, error) {
	f, ok := r.factories[mod]
	if !ok {
		return nil, grader.Error{Code: grader.UnknownReporter, UserData: mod,
			Err: fmt.Errorf("reporter mod %q not registered", mod)}
	}
	return f(fields)
}

// nullReporter accepts everything and reports nowhere.
type nullReporter struct{}

func (nullReporter) File(ctx context.Context, usr Recipient, grade float64, comment string) Outcome {
	return accepted("discarded")
}
