// Package tester maps a Test's declared tester kind to a grading strategy
// and runs it against a submission inside a sandbox directory. Three kinds
// are registered: "script" (instructor grader script prints the score),
// "io" (submission output compared against a reference solution over input
// vectors) and "null" (immediate zero, for smoke tests).
package tester

import (
	"context"
	"fmt"

	"github.com/sharedcode/grader"
	"github.com/sharedcode/grader/filestore"
)

// Tester kinds.
const (
	KindScript = "script"
	KindIO     = "io"
	KindNull   = "null"
)

// Well-known file keys.
const (
	KeyScript     = "script"
	KeySolution   = "solution"
	KeyInput      = "input"
	KeySubmission = "submission"
	KeyStdin      = "stdin"
	KeyArgs       = "args"
)

// SourceFile is one file referenced by a Test or Submission: its role key,
// its display name, and the blob store path holding its content.
type SourceFile struct {
	Key  string
	Name string
	Path string
}

// Spec is everything a grader needs to grade one (Test, Submission) pair.
type Spec struct {
	MaxScore        float64
	PathScript      string
	TestFiles       []SourceFile
	SubmissionFiles []SourceFile
	Limits          grader.SandboxLimits
}

// Result of one grading. Status is one of the terminal run statuses; the
// engine persists it verbatim.
type Result struct {
	Status  string
	Retcode int
	Score   float64
	Output  string
}

// Grader grades one spec. Returned errors are internal plumbing faults only;
// grading verdicts (bad submission, hung solution, unparseable score) are
// encoded in the Result.
type Grader interface {
	Grade(ctx context.Context, spec Spec) (Result, error)
}

// Registry maps tester kinds to grader constructors.
type Registry struct {
	factories map[string]func() Grader
}

// NewRegistry builds the registry with the builtin kinds registered. Blobs
// supplies file content to the graders.
func NewRegistry(blobs filestore.BlobStore) *Registry {
	r := &Registry{factories: make(map[string]func() Grader)}
	r.Register(KindScript, func() Grader { return &scriptGrader{blobs: blobs} })
	r.Register(KindIO, func() Grader { return &ioGrader{blobs: blobs} })
	r.Register(KindNull, func() Grader { return nullGrader{} })
	return r
}

// Register adds or replaces a tester kind.
func (r *Registry) Register(kind string, factory func() Grader) {
	r.factories[kind] = factory
}

// Lookup returns a grader for the kind, or an UnknownTester coded error.
func (r *Registry) Lookup(kind string) (Grader, error) {
	f, ok := r.factories[kind]
	if !ok {
		return nil, grader.Error{Code: grader.UnknownTester, UserData: kind,
			Err: fmt.Errorf("tester kind %q not registered", kind)}
	}
	return f(), nil
}

// clampScore bounds a parsed score to [0, max].
func clampScore(s, max float64) float64 {
	if s < 0 {
		return 0
	}
	if s > max {
		return max
	}
	return s
}
