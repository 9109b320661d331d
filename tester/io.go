package tester

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sharedcode/grader"
	"github.com/sharedcode/grader/filestore"
	"github.com/sharedcode/grader/sandbox"
)

// ioGrader runs the reference solution and the submission against the Test's
// input vectors and scores by matching outputs, byte-exact modulo trailing
// whitespace.
type ioGrader struct {
	blobs filestore.BlobStore
}

func (g *ioGrader) Grade(ctx context.Context, spec Spec) (Result, error) {
	sb, err := prepare(ctx, g.blobs, spec)
	if err != nil {
		return prepFailure(err), nil
	}
	defer sb.cleanup()

	solution, err := sb.uniqueTestFile(KeySolution)
	if err != nil {
		return prepFailure(err), nil
	}
	subNames := sb.subKey[KeySubmission]
	if len(subNames) != 1 {
		return prepFailure(fmt.Errorf("submission needs exactly one file with key %q, has %d",
			KeySubmission, len(subNames))), nil
	}
	submission := subNames[0]

	inputs := sb.inputFiles()
	if len(inputs) == 0 {
		return Result{Status: grader.StatusComplete, Retcode: 0, Score: 0,
			Output: "no input vectors\n"}, nil
	}

	var out strings.Builder
	passed := 0
	for _, input := range inputs {
		stdin, rerr := os.ReadFile(sb.path(input))
		if rerr != nil {
			return prepFailure(rerr), nil
		}

		ref, rerr := g.runCase(ctx, sb, solution, stdin, spec.Limits)
		if rerr != nil {
			return prepFailure(rerr), nil
		}
		if ref.TimedOut || ref.Retcode != 0 {
			// A broken reference solution voids the whole test; surface its
			// retcode (124 on hang) so the instructor sees what happened.
			fmt.Fprintf(&out, "case %s: reference solution failed (retcode %d)\n", input, ref.Retcode)
			return Result{Status: grader.StatusComplete, Retcode: ref.Retcode, Score: 0,
				Output: out.String()}, nil
		}

		sub, serr := g.runCase(ctx, sb, submission, stdin, spec.Limits)
		if serr != nil || sub.TimedOut || sub.Retcode != 0 {
			// Submission fault fails this case only.
			fmt.Fprintf(&out, "case %s: fail\n", input)
			continue
		}
		if matchOutput(ref.Stdout, sub.Stdout) {
			passed++
			fmt.Fprintf(&out, "case %s: pass\n", input)
		} else {
			fmt.Fprintf(&out, "case %s: fail\n", input)
		}
	}
	fmt.Fprintf(&out, "passed %d of %d\n", passed, len(inputs))

	return Result{
		Status:  grader.StatusComplete,
		Retcode: 0,
		Score:   clampScore(spec.MaxScore*float64(passed)/float64(len(inputs)), spec.MaxScore),
		Output:  out.String(),
	}, nil
}

func (g *ioGrader) runCase(ctx context.Context, sb *sandboxDir, program string, stdin []byte, limits grader.SandboxLimits) (sandbox.Result, error) {
	res, err := sandbox.Execute(ctx, sandbox.Command{
		Argv:          []string{"./" + program},
		Dir:           sb.dir,
		Stdin:         bytes.NewReader(stdin),
		Limits:        limits,
		CaptureOutput: true,
	})
	if err != nil && grader.IsErrorCode(err, grader.SpawnFailed) {
		// A program that cannot even exec (bad shebang and the like) is a
		// failed run, not a grader fault.
		return sandbox.Result{Retcode: 126}, nil
	}
	return res, err
}

// matchOutput compares two outputs byte-exact modulo trailing whitespace on
// the whole stream and on each line.
func matchOutput(want, got string) bool {
	normalize := func(s string) string {
		lines := strings.Split(s, "\n")
		for i := range lines {
			lines[i] = strings.TrimRight(lines[i], " \t\r")
		}
		joined := strings.Join(lines, "\n")
		return strings.TrimRight(joined, " \t\r\n")
	}
	return normalize(want) == normalize(got)
}
