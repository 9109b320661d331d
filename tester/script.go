package tester

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sharedcode/grader"
	"github.com/sharedcode/grader/filestore"
	"github.com/sharedcode/grader/sandbox"
)

// scriptGrader runs an instructor-provided grader script against the
// submission. The script's last non-empty stdout line is the score.
type scriptGrader struct {
	blobs filestore.BlobStore
}

func (g *scriptGrader) Grade(ctx context.Context, spec Spec) (Result, error) {
	sb, err := prepare(ctx, g.blobs, spec)
	if err != nil {
		return prepFailure(err), nil
	}
	defer sb.cleanup()

	// Locate the grader script: explicit path_script wins, else the unique
	// Test file keyed "script".
	var script string
	if spec.PathScript != "" {
		script = filestore.SanitizeName(spec.PathScript)
		if !sb.allNames[script] {
			return prepFailure(fmt.Errorf("no such file in sandbox: %s", script)), nil
		}
	} else {
		script, err = sb.uniqueTestFile(KeyScript)
		if err != nil {
			return prepFailure(err), nil
		}
	}

	subName, viaStdin, err := sb.submissionFile()
	if err != nil {
		return prepFailure(err), nil
	}

	cmd := sandbox.Command{
		Dir:           sb.dir,
		Limits:        spec.Limits,
		CaptureOutput: true,
	}
	if viaStdin {
		cmd.Argv = []string{"./" + script}
		ba, rerr := os.ReadFile(sb.path(subName))
		if rerr != nil {
			return prepFailure(rerr), nil
		}
		cmd.Stdin = bytes.NewReader(ba)
	} else {
		cmd.Argv = []string{"./" + script, subName}
	}

	res, err := sandbox.Execute(ctx, cmd)
	if err != nil {
		// The grader script itself would not spawn; that is a test setup
		// problem, not a submission verdict.
		return prepFailure(err), nil
	}

	output := res.Stdout + res.Stderr
	if res.Truncated {
		output += truncationMarker
	}
	if res.TimedOut || res.Retcode != 0 {
		return Result{Status: grader.StatusCompleteError, Retcode: res.Retcode, Score: 0, Output: output}, nil
	}

	score, ok := parseScore(res.Stdout)
	if !ok {
		return Result{Status: grader.StatusCompleteExceptionEval, Retcode: res.Retcode, Score: 0, Output: output}, nil
	}
	return Result{
		Status:  grader.StatusComplete,
		Retcode: res.Retcode,
		Score:   clampScore(score, spec.MaxScore),
		Output:  output,
	}, nil
}

const truncationMarker = "\nWARNING: Output Truncated"

// parseScore extracts the last non-empty stdout line as a float score.
func parseScore(stdout string) (float64, bool) {
	lines := strings.Split(stdout, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		f, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// prepFailure is the grader-preconditions-failed verdict.
func prepFailure(err error) Result {
	return Result{
		Status:  grader.StatusCompleteExceptionRun,
		Retcode: 1,
		Score:   0,
		Output:  err.Error(),
	}
}
