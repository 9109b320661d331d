package tester

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sharedcode/grader"
	"github.com/sharedcode/grader/filestore"
)

// Singular role keys: at most one file may carry each within its side.
var singularKeys = map[string]bool{
	KeyScript:     true,
	KeySolution:   true,
	KeySubmission: true,
	KeyStdin:      true,
	KeyArgs:       true,
}

// sandboxDir is a materialized scratch directory holding the Test's and the
// Submission's files, indexed by role key and by placed filename.
type sandboxDir struct {
	dir      string
	testKey  map[string][]string // role key -> placed filenames
	subKey   map[string][]string
	allNames map[string]bool
}

// placedName decides the sandbox filename of a source file: its display name
// when set, else the blob path basename, else its role key.
func placedName(f SourceFile) string {
	if f.Name != "" {
		return filestore.SanitizeName(f.Name)
	}
	if f.Path != "" {
		return filestore.SanitizeName(filepath.Base(f.Path))
	}
	return filestore.SanitizeName(f.Key)
}

// prepare materializes the sandbox: a fresh temp directory with every Test
// and Submission file copied in under its placed name, scripts executable.
// Duplicate singular role keys and filename collisions are refused.
func prepare(ctx context.Context, blobs filestore.BlobStore, spec Spec) (*sandboxDir, error) {
	dir, err := os.MkdirTemp("", "grader-run-")
	if err != nil {
		return nil, grader.Error{Code: grader.FileIOError, Err: err}
	}
	sb := &sandboxDir{
		dir:      dir,
		testKey:  make(map[string][]string),
		subKey:   make(map[string][]string),
		allNames: make(map[string]bool),
	}
	place := func(files []SourceFile, index map[string][]string) error {
		seen := make(map[string]bool)
		for _, f := range files {
			if singularKeys[f.Key] && seen[f.Key] {
				return fmt.Errorf("duplicate file key %q", f.Key)
			}
			seen[f.Key] = true
			name := placedName(f)
			if sb.allNames[name] {
				return fmt.Errorf("filename collision in sandbox: %q", name)
			}
			sb.allNames[name] = true
			ba, err := blobs.Read(ctx, f.Path)
			if err != nil {
				return err
			}
			// Everything lands executable; graders and submissions alike
			// may be scripts invoked directly.
			if err := os.WriteFile(filepath.Join(dir, name), ba, 0o755); err != nil {
				return err
			}
			if f.Key != "" {
				index[f.Key] = append(index[f.Key], name)
			}
		}
		return nil
	}
	if err := place(spec.TestFiles, sb.testKey); err != nil {
		sb.cleanup()
		return nil, err
	}
	if err := place(spec.SubmissionFiles, sb.subKey); err != nil {
		sb.cleanup()
		return nil, err
	}
	return sb, nil
}

func (sb *sandboxDir) cleanup() {
	if sb.dir != "" {
		os.RemoveAll(sb.dir)
	}
}

// uniqueTestFile resolves the single Test file carrying a role key.
func (sb *sandboxDir) uniqueTestFile(key string) (string, error) {
	names := sb.testKey[key]
	if len(names) != 1 {
		return "", fmt.Errorf("test needs exactly one file with key %q, has %d", key, len(names))
	}
	return names[0], nil
}

// submissionFile resolves the submission program and how it is handed to a
// grader script: as an argv argument (keys "submission"/"args") or on stdin
// (key "stdin").
func (sb *sandboxDir) submissionFile() (name string, viaStdin bool, err error) {
	for _, key := range []string{KeySubmission, KeyArgs, KeyStdin} {
		if names := sb.subKey[key]; len(names) == 1 {
			return names[0], key == KeyStdin, nil
		}
	}
	return "", false, fmt.Errorf("submission needs exactly one file keyed %q, %q or %q",
		KeySubmission, KeyArgs, KeyStdin)
}

// inputFiles lists the Test's input vectors, lexicographic by name for
// stable case ordering.
func (sb *sandboxDir) inputFiles() []string {
	names := append([]string(nil), sb.testKey[KeyInput]...)
	sort.Strings(names)
	return names
}

func (sb *sandboxDir) path(name string) string {
	return filepath.Join(sb.dir, name)
}
