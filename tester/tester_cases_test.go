package tester

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/sharedcode/grader"
	"github.com/sharedcode/grader/filestore"
)

var ctx = context.Background()

func requireSh(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func testLimits() grader.SandboxLimits {
	return grader.SandboxLimits{
		CPUSeconds:  5,
		MemoryBytes: 256 * 1024 * 1024,
		Processes:   32,
		OpenFiles:   64,
		WallSeconds: 5,
	}
}

type fixture struct {
	blobs    filestore.BlobStore
	registry *Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	blobs := filestore.NewBlobStore(t.TempDir(), nil)
	return &fixture{blobs: blobs, registry: NewRegistry(blobs)}
}

func (f *fixture) blob(t *testing.T, key, name, content string) SourceFile {
	t.Helper()
	path, err := f.blobs.Write(ctx, grader.NewUUID(), name, strings.NewReader(content))
	if err != nil {
		t.Fatalf("blob write failed: %v", err)
	}
	return SourceFile{Key: key, Name: name, Path: path}
}

func TestRegistryLookup(t *testing.T) {
	f := newFixture(t)
	for _, kind := range []string{KindScript, KindIO, KindNull} {
		if _, err := f.registry.Lookup(kind); err != nil {
			t.Errorf("Lookup(%s) failed: %v", kind, err)
		}
	}
	if _, err := f.registry.Lookup("fancy"); !grader.IsErrorCode(err, grader.UnknownTester) {
		t.Errorf("Lookup(fancy) err = %v, want UnknownTester", err)
	}
}

func TestNullGrader(t *testing.T) {
	f := newFixture(t)
	g, _ := f.registry.Lookup(KindNull)
	r, err := g.Grade(ctx, Spec{MaxScore: 10, Limits: testLimits()})
	if err != nil {
		t.Fatalf("Grade failed: %v", err)
	}
	want := Result{Status: grader.StatusComplete, Retcode: 0, Score: 0, Output: ""}
	if r != want {
		t.Errorf("null grade = %+v, want %+v", r, want)
	}
}

const gradeByArgs = `#!/bin/sh
# Scores 10 when the submission prints "ok", otherwise 5.
out=$("./$1")
echo "submission said: $out"
if [ "$out" = "ok" ]; then
	echo 10
else
	echo 5
fi
`

func TestScriptGraderGoodSubmission(t *testing.T) {
	requireSh(t)
	f := newFixture(t)
	g, _ := f.registry.Lookup(KindScript)
	r, err := g.Grade(ctx, Spec{
		MaxScore:        10,
		TestFiles:       []SourceFile{f.blob(t, KeyScript, "grade.sh", gradeByArgs)},
		SubmissionFiles: []SourceFile{f.blob(t, KeySubmission, "add.sh", "#!/bin/sh\necho ok\n")},
		Limits:          testLimits(),
	})
	if err != nil {
		t.Fatalf("Grade failed: %v", err)
	}
	if r.Status != grader.StatusComplete || r.Retcode != 0 {
		t.Fatalf("grade = %+v", r)
	}
	if r.Score != 10 {
		t.Errorf("score = %v, want 10", r.Score)
	}
	if r.Output == "" {
		t.Error("output should not be empty")
	}
}

func TestScriptGraderBadSubmission(t *testing.T) {
	requireSh(t)
	f := newFixture(t)
	g, _ := f.registry.Lookup(KindScript)
	r, err := g.Grade(ctx, Spec{
		MaxScore:        10,
		TestFiles:       []SourceFile{f.blob(t, KeyScript, "grade.sh", gradeByArgs)},
		SubmissionFiles: []SourceFile{f.blob(t, KeySubmission, "add.sh", "#!/bin/sh\necho wrong\n")},
		Limits:          testLimits(),
	})
	if err != nil {
		t.Fatalf("Grade failed: %v", err)
	}
	if r.Status != grader.StatusComplete || r.Retcode != 0 {
		t.Fatalf("grade = %+v", r)
	}
	if r.Score >= 10 || r.Score < 0 {
		t.Errorf("score = %v, want 0 <= score < 10", r.Score)
	}
}

func TestScriptGraderPathScript(t *testing.T) {
	requireSh(t)
	f := newFixture(t)
	g, _ := f.registry.Lookup(KindScript)
	r, err := g.Grade(ctx, Spec{
		MaxScore:        10,
		PathScript:      "grade.sh",
		TestFiles:       []SourceFile{f.blob(t, "", "grade.sh", gradeByArgs)},
		SubmissionFiles: []SourceFile{f.blob(t, KeySubmission, "add.sh", "#!/bin/sh\necho ok\n")},
		Limits:          testLimits(),
	})
	if err != nil {
		t.Fatalf("Grade failed: %v", err)
	}
	if r.Status != grader.StatusComplete || r.Score != 10 {
		t.Errorf("grade = %+v", r)
	}
}

func TestScriptGraderMissingScript(t *testing.T) {
	requireSh(t)
	f := newFixture(t)
	g, _ := f.registry.Lookup(KindScript)
	r, err := g.Grade(ctx, Spec{
		MaxScore:        10,
		SubmissionFiles: []SourceFile{f.blob(t, KeySubmission, "add.sh", "#!/bin/sh\necho ok\n")},
		Limits:          testLimits(),
	})
	if err != nil {
		t.Fatalf("Grade failed: %v", err)
	}
	if r.Status != grader.StatusCompleteExceptionRun || r.Retcode == 0 || r.Score != 0 {
		t.Errorf("grade = %+v, want complete-exception-run", r)
	}
}

func TestScriptGraderDuplicateScriptKey(t *testing.T) {
	requireSh(t)
	f := newFixture(t)
	g, _ := f.registry.Lookup(KindScript)
	r, err := g.Grade(ctx, Spec{
		MaxScore: 10,
		TestFiles: []SourceFile{
			f.blob(t, KeyScript, "grade.sh", gradeByArgs),
			f.blob(t, KeyScript, "grade2.sh", gradeByArgs),
		},
		SubmissionFiles: []SourceFile{f.blob(t, KeySubmission, "add.sh", "#!/bin/sh\necho ok\n")},
		Limits:          testLimits(),
	})
	if err != nil {
		t.Fatalf("Grade failed: %v", err)
	}
	if r.Status != grader.StatusCompleteExceptionRun {
		t.Errorf("status = %s, want complete-exception-run", r.Status)
	}
}

func TestScriptGraderUnparseableScore(t *testing.T) {
	requireSh(t)
	f := newFixture(t)
	g, _ := f.registry.Lookup(KindScript)
	r, err := g.Grade(ctx, Spec{
		MaxScore:        10,
		TestFiles:       []SourceFile{f.blob(t, KeyScript, "grade.sh", "#!/bin/sh\necho banana\n")},
		SubmissionFiles: []SourceFile{f.blob(t, KeySubmission, "add.sh", "#!/bin/sh\necho ok\n")},
		Limits:          testLimits(),
	})
	if err != nil {
		t.Fatalf("Grade failed: %v", err)
	}
	if r.Status != grader.StatusCompleteExceptionEval || r.Score != 0 {
		t.Errorf("grade = %+v, want complete-exception-eval", r)
	}
}

func TestScriptGraderScriptFails(t *testing.T) {
	requireSh(t)
	f := newFixture(t)
	g, _ := f.registry.Lookup(KindScript)
	r, err := g.Grade(ctx, Spec{
		MaxScore:        10,
		TestFiles:       []SourceFile{f.blob(t, KeyScript, "grade.sh", "#!/bin/sh\nexit 2\n")},
		SubmissionFiles: []SourceFile{f.blob(t, KeySubmission, "add.sh", "#!/bin/sh\necho ok\n")},
		Limits:          testLimits(),
	})
	if err != nil {
		t.Fatalf("Grade failed: %v", err)
	}
	if r.Status != grader.StatusCompleteError || r.Retcode != 2 || r.Score != 0 {
		t.Errorf("grade = %+v, want complete-error retcode 2", r)
	}
}

func TestScriptGraderCPULimit(t *testing.T) {
	requireSh(t)
	f := newFixture(t)
	g, _ := f.registry.Lookup(KindScript)
	l := testLimits()
	l.CPUSeconds = 1
	l.WallSeconds = 20
	r, err := g.Grade(ctx, Spec{
		MaxScore:        10,
		TestFiles:       []SourceFile{f.blob(t, KeyScript, "grade.sh", "#!/bin/sh\nwhile :; do :; done\n")},
		SubmissionFiles: []SourceFile{f.blob(t, KeySubmission, "add.sh", "#!/bin/sh\necho ok\n")},
		Limits:          l,
	})
	if err != nil {
		t.Fatalf("Grade failed: %v", err)
	}
	if r.Status != grader.StatusCompleteError {
		t.Errorf("status = %q, want %q", r.Status, grader.StatusCompleteError)
	}
	if r.Retcode == 0 {
		t.Error("limit-killed grader reported retcode 0")
	}
	if r.Score != 0 {
		t.Errorf("score = %v, want 0", r.Score)
	}
}

func TestParseScore(t *testing.T) {
	cases := []struct {
		stdout string
		want   float64
		ok     bool
	}{
		{"10\n", 10, true},
		{"checking add.sh\n7.5\n\n", 7.5, true},
		{"banana\n", 0, false},
		{"", 0, false},
		{"10\nbanana\n", 0, false},
	}
	for _, c := range cases {
		got, ok := parseScore(c.stdout)
		if got != c.want || ok != c.ok {
			t.Errorf("parseScore(%q) = %v, %v; want %v, %v", c.stdout, got, ok, c.want, c.ok)
		}
	}
}

const echoSolution = "#!/bin/sh\ncat\n"

func TestIOGraderAllPass(t *testing.T) {
	requireSh(t)
	f := newFixture(t)
	g, _ := f.registry.Lookup(KindIO)
	r, err := g.Grade(ctx, Spec{
		MaxScore: 10,
		TestFiles: []SourceFile{
			f.blob(t, KeySolution, "sol.sh", echoSolution),
			f.blob(t, KeyInput, "in1.txt", "1 2\n"),
			f.blob(t, KeyInput, "in2.txt", "3 4\n"),
			f.blob(t, KeyInput, "in3.txt", "5 6\n"),
		},
		SubmissionFiles: []SourceFile{f.blob(t, KeySubmission, "add.sh", echoSolution)},
		Limits:          testLimits(),
	})
	if err != nil {
		t.Fatalf("Grade failed: %v", err)
	}
	if r.Status != grader.StatusComplete || r.Score != 10 {
		t.Errorf("grade = %+v, want complete score 10", r)
	}
}

func TestIOGraderPartialPass(t *testing.T) {
	requireSh(t)
	f := newFixture(t)
	g, _ := f.registry.Lookup(KindIO)
	// Submission echoes a constant; only the matching vector passes.
	r, err := g.Grade(ctx, Spec{
		MaxScore: 10,
		TestFiles: []SourceFile{
			f.blob(t, KeySolution, "sol.sh", echoSolution),
			f.blob(t, KeyInput, "in1.txt", "fixed\n"),
			f.blob(t, KeyInput, "in2.txt", "other\n"),
		},
		SubmissionFiles: []SourceFile{f.blob(t, KeySubmission, "add.sh", "#!/bin/sh\necho fixed\n")},
		Limits:          testLimits(),
	})
	if err != nil {
		t.Fatalf("Grade failed: %v", err)
	}
	if r.Status != grader.StatusComplete || r.Score != 5 {
		t.Errorf("grade = %+v, want complete score 5", r)
	}
}

func TestIOGraderSolutionHangs(t *testing.T) {
	requireSh(t)
	f := newFixture(t)
	g, _ := f.registry.Lookup(KindIO)
	l := testLimits()
	l.WallSeconds = 1
	r, err := g.Grade(ctx, Spec{
		MaxScore: 10,
		TestFiles: []SourceFile{
			f.blob(t, KeySolution, "sol.sh", "#!/bin/sh\nsleep 60\n"),
			f.blob(t, KeyInput, "in1.txt", "1 2\n"),
		},
		SubmissionFiles: []SourceFile{f.blob(t, KeySubmission, "add.sh", echoSolution)},
		Limits:          l,
	})
	if err != nil {
		t.Fatalf("Grade failed: %v", err)
	}
	if r.Status != grader.StatusComplete || r.Retcode != 124 || r.Score != 0 {
		t.Errorf("grade = %+v, want complete retcode 124 score 0", r)
	}
}

func TestIOGraderSubmissionHangFailsCaseOnly(t *testing.T) {
	requireSh(t)
	f := newFixture(t)
	g, _ := f.registry.Lookup(KindIO)
	l := testLimits()
	l.WallSeconds = 1
	// Submission hangs unless the input is "quick".
	sub := "#!/bin/sh\nread line\nif [ \"$line\" = \"quick\" ]; then echo \"$line\"; else sleep 60; fi\n"
	r, err := g.Grade(ctx, Spec{
		MaxScore: 10,
		TestFiles: []SourceFile{
			f.blob(t, KeySolution, "sol.sh", echoSolution),
			f.blob(t, KeyInput, "in1.txt", "quick\n"),
			f.blob(t, KeyInput, "in2.txt", "slow\n"),
		},
		SubmissionFiles: []SourceFile{f.blob(t, KeySubmission, "add.sh", sub)},
		Limits:          l,
	})
	if err != nil {
		t.Fatalf("Grade failed: %v", err)
	}
	if r.Status != grader.StatusComplete || r.Score != 5 {
		t.Errorf("grade = %+v, want complete score 5", r)
	}
}

func TestIOGraderMissingSolution(t *testing.T) {
	requireSh(t)
	f := newFixture(t)
	g, _ := f.registry.Lookup(KindIO)
	r, err := g.Grade(ctx, Spec{
		MaxScore:        10,
		TestFiles:       []SourceFile{f.blob(t, KeyInput, "in1.txt", "1\n")},
		SubmissionFiles: []SourceFile{f.blob(t, KeySubmission, "add.sh", echoSolution)},
		Limits:          testLimits(),
	})
	if err != nil {
		t.Fatalf("Grade failed: %v", err)
	}
	if r.Status != grader.StatusCompleteExceptionRun {
		t.Errorf("status = %s, want complete-exception-run", r.Status)
	}
}

func TestMatchOutput(t *testing.T) {
	cases := []struct {
		want, got string
		match     bool
	}{
		{"3\n", "3\n", true},
		{"3\n", "3", true},
		{"3  \n", "3\n", true},
		{"3\n", "4\n", false},
		{"a\nb\n", "a \nb\n", true},
		{"a\nb\n", "a\nc\n", false},
	}
	for _, c := range cases {
		if got := matchOutput(c.want, c.got); got != c.match {
			t.Errorf("matchOutput(%q, %q) = %v, want %v", c.want, c.got, got, c.match)
		}
	}
}

func TestPrepFilenameCollision(t *testing.T) {
	f := newFixture(t)
	g, _ := f.registry.Lookup(KindScript)
	r, err := g.Grade(ctx, Spec{
		MaxScore: 10,
		TestFiles: []SourceFile{
			f.blob(t, KeyScript, "same.sh", gradeByArgs),
		},
		SubmissionFiles: []SourceFile{f.blob(t, KeySubmission, "same.sh", echoSolution)},
		Limits:          testLimits(),
	})
	if err != nil {
		t.Fatalf("Grade failed: %v", err)
	}
	if r.Status != grader.StatusCompleteExceptionRun {
		t.Errorf("status = %s, want complete-exception-run on name collision", r.Status)
	}
}
