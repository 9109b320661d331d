package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	log "log/slog"

	"github.com/sharedcode/grader"
	"github.com/sharedcode/grader/reporter"
	"github.com/sharedcode/grader/store"
	"github.com/sharedcode/grader/tester"
)

// CreateRun validates the (test, submission) pair, inserts a queued run and
// hands it to the pool. A full queue deletes the fresh record and returns
// Busy.
func (s *Server) CreateRun(ctx context.Context, owner, testID, subID grader.UUID) (grader.UUID, error) {
	testAsn, err := s.client.Hash(KindTest, testID, TestSchema).GetField(ctx, FieldAssignment)
	if err != nil {
		return grader.NilUUID, err
	}
	subAsn, err := s.client.Hash(KindSubmission, subID, SubmissionSchema).GetField(ctx, FieldAssignment)
	if err != nil {
		return grader.NilUUID, err
	}
	if testAsn != subAsn {
		return grader.NilUUID, grader.Error{Code: grader.MalformedInput,
			Err: fmt.Errorf("test %s and submission %s belong to different assignments",
				testID.String(), subID.String())}
	}
	id, err := s.create(ctx, KindRun, RunSchema, owner, map[string]string{
		FieldTest:       testID.String(),
		FieldSubmission: subID.String(),
		FieldStatus:     grader.StatusQueued,
		FieldRetcode:    "",
		FieldScore:      "",
		FieldOutput:     "",
	})
	if err != nil {
		return grader.NilUUID, err
	}
	if err := s.pool.Enqueue(id); err != nil {
		// No orphan queued records on overflow.
		if derr := s.client.Hash(KindRun, id, RunSchema).Delete(ctx); derr != nil {
			log.Warn("orphan run cleanup failed", "run", id.String(), "error", derr)
		}
		return grader.NilUUID, err
	}
	return id, nil
}

// CreateRuns creates one run per test of the assignment, for one submission.
func (s *Server) CreateRuns(ctx context.Context, owner, asn, subID grader.UUID) ([]grader.UUID, error) {
	subAsn, err := s.client.Hash(KindSubmission, subID, SubmissionSchema).GetField(ctx, FieldAssignment)
	if err != nil {
		return nil, err
	}
	if subAsn != asn.String() {
		return nil, grader.Error{Code: grader.MalformedInput,
			Err: fmt.Errorf("submission %s does not belong to assignment %s", subID.String(), asn.String())}
	}
	tests, err := s.ListByAssignment(ctx, KindTest, asn)
	if err != nil {
		return nil, err
	}
	var ids []grader.UUID
	for _, raw := range tests {
		testID, err := grader.ParseUUID(raw)
		if err != nil {
			continue
		}
		id, err := s.CreateRun(ctx, owner, testID, subID)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ListRunsOfSubmission scans the run kind for records of one submission.
func (s *Server) ListRunsOfSubmission(ctx context.Context, subID grader.UUID) ([]string, error) {
	runs, err := s.client.ListKind(ctx, KindRun)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, raw := range runs {
		rid, err := grader.ParseUUID(raw)
		if err != nil {
			continue
		}
		sub, err := s.client.Hash(KindRun, rid, RunSchema).GetField(ctx, FieldSubmission)
		if err != nil {
			if grader.IsErrorCode(err, grader.ObjectDNE) {
				continue
			}
			return nil, err
		}
		if sub == subID.String() {
			out = append(out, raw)
		}
	}
	return out, nil
}

// DeleteRun cancels the run's worker job if in flight, then removes the
// record.
func (s *Server) DeleteRun(ctx context.Context, id grader.UUID) error {
	s.pool.Cancel(id)
	return s.client.Hash(KindRun, id, RunSchema).Delete(ctx)
}

// executeRun is the worker-side sequence: guard the queued state, grade,
// persist the terminal verdict, then fan out to the test's reporters.
func (s *Server) executeRun(ctx context.Context, id grader.UUID) {
	h := s.client.Hash(KindRun, id, RunSchema)
	status, err := h.GetField(ctx, FieldStatus)
	if err != nil {
		// Deleted between enqueue and pickup.
		log.Warn("run vanished before execution", "run", id.String(), "error", err)
		return
	}
	if status != grader.StatusQueued {
		log.Warn("refusing run not in queued state", "run", id.String(), "status", status)
		return
	}
	if err := h.SetField(ctx, FieldStatus, grader.StatusRunning); err != nil {
		log.Error("run state write failed", "run", id.String(), "error", err)
		return
	}
	log.Info("run started", "run", id.String())

	res := s.grade(ctx, h)
	err = h.Update(ctx, map[string]string{
		FieldStatus:  res.Status,
		FieldRetcode: strconv.Itoa(res.Retcode),
		FieldScore:   strconv.FormatFloat(res.Score, 'f', -1, 64),
		FieldOutput:  res.Output,
	})
	if err != nil {
		log.Error("run verdict write failed", "run", id.String(), "error", err)
		return
	}
	log.Info("run graded", "run", id.String(), "status", res.Status, "score", res.Score)

	s.report(ctx, h, res)
}

// grade assembles the tester spec from the run's test and submission and
// invokes the grader. Assembly faults grade as complete-exception-run.
func (s *Server) grade(ctx context.Context, h store.Hash) tester.Result {
	fail := func(err error) tester.Result {
		return tester.Result{Status: grader.StatusCompleteExceptionRun, Retcode: 1, Output: err.Error()}
	}
	run, err := h.Get(ctx)
	if err != nil {
		return fail(err)
	}
	testID, err := grader.ParseUUID(run[FieldTest])
	if err != nil {
		return fail(err)
	}
	subID, err := grader.ParseUUID(run[FieldSubmission])
	if err != nil {
		return fail(err)
	}
	test, err := s.client.Hash(KindTest, testID, TestSchema).Get(ctx)
	if err != nil {
		return fail(err)
	}
	g, err := s.testers.Lookup(test[FieldTester])
	if err != nil {
		return fail(err)
	}
	maxScore := 0.0
	if test[FieldMaxScore] != "" {
		if maxScore, err = strconv.ParseFloat(test[FieldMaxScore], 64); err != nil {
			return fail(err)
		}
	}
	testFiles, err := s.sourceFiles(ctx, KindTest, testID)
	if err != nil {
		return fail(err)
	}
	subFiles, err := s.sourceFiles(ctx, KindSubmission, subID)
	if err != nil {
		return fail(err)
	}
	res, err := g.Grade(ctx, tester.Spec{
		MaxScore:        maxScore,
		PathScript:      test[FieldPathScript],
		TestFiles:       testFiles,
		SubmissionFiles: subFiles,
		Limits:          s.cfg.SandboxLimits,
	})
	if err != nil {
		return fail(err)
	}
	return res
}

// sourceFiles resolves a record's file references into tester source files.
func (s *Server) sourceFiles(ctx context.Context, kind string, id grader.UUID) ([]tester.SourceFile, error) {
	refs, err := s.client.RefSet(kind, id, RefFiles).List(ctx)
	if err != nil {
		return nil, err
	}
	files := make([]tester.SourceFile, 0, len(refs))
	for _, raw := range refs {
		fid, err := grader.ParseUUID(raw)
		if err != nil {
			return nil, err
		}
		f, err := s.client.Hash(KindFile, fid, FileSchema).Get(ctx)
		if err != nil {
			return nil, err
		}
		files = append(files, tester.SourceFile{
			Key:  f[FieldKey],
			Name: f[FieldName],
			Path: f[FieldPath],
		})
	}
	return files, nil
}

// report files the graded score with each of the test's reporters, appending
// one outcome line per reporter to the run's output. Rejections are recorded,
// never escalated; the run's status stands.
func (s *Server) report(ctx context.Context, h store.Hash, res tester.Result) {
	run, err := h.Get(ctx)
	if err != nil {
		return
	}
	testID, err := grader.ParseUUID(run[FieldTest])
	if err != nil {
		return
	}
	refs, err := s.client.RefSet(KindTest, testID, RefReporters).List(ctx)
	if err != nil || len(refs) == 0 {
		return
	}
	usr := s.recipient(ctx, run[store.FieldOwner])

	var lines strings.Builder
	for _, raw := range refs {
		rid, err := grader.ParseUUID(raw)
		if err != nil {
			continue
		}
		outcome := s.fileOne(ctx, rid, usr, res)
		verdict := "ok"
		if !outcome.Accepted {
			verdict = "err"
		}
		fmt.Fprintf(&lines, "\nreporter %s: %s %s", rid.String(), verdict, outcome.Message)
		log.Info("reporter outcome", "run", h.UUID().String(), "reporter", rid.String(),
			"accepted", outcome.Accepted, "message", outcome.Message)
	}
	if err := h.SetField(ctx, FieldOutput, run[FieldOutput]+lines.String()); err != nil {
		log.Error("reporter outcome write failed", "run", h.UUID().String(), "error", err)
	}
}

// fileOne builds and invokes a single reporter.
func (s *Server) fileOne(ctx context.Context, rid grader.UUID, usr reporter.Recipient, res tester.Result) reporter.Outcome {
	fields, err := s.client.Hash(KindReporter, rid, nil).Get(ctx)
	if err != nil {
		return reporter.Outcome{Accepted: false, Message: err.Error(), Err: err}
	}
	rep, err := s.reporters.Lookup(fields[FieldMod], fields)
	if err != nil {
		return reporter.Outcome{Accepted: false, Message: err.Error(), Err: err}
	}
	return rep.File(ctx, usr, res.Score, res.Output)
}

// recipient loads the run owner's user record, if there is one.
func (s *Server) recipient(ctx context.Context, owner string) reporter.Recipient {
	uid, err := grader.ParseUUID(owner)
	if err != nil {
		return reporter.Recipient{}
	}
	u, err := s.client.Hash(KindUser, uid, UserSchema).Get(ctx)
	if err != nil {
		return reporter.Recipient{}
	}
	return reporter.Recipient{AuthMod: u[FieldAuthMod], MoodleID: u[FieldMoodleID]}
}
