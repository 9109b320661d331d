package engine

import (
	"context"
	"strconv"

	"github.com/sharedcode/grader"
)

// CreateTest inserts a test under an assignment. The tester kind must be
// registered.
func (s *Server) CreateTest(ctx context.Context, owner, asn grader.UUID, name, testerKind string, maxScore float64, pathScript string) (grader.UUID, error) {
	if err := s.mustExist(ctx, KindAssignment, asn); err != nil {
		return grader.NilUUID, err
	}
	if _, err := s.testers.Lookup(testerKind); err != nil {
		return grader.NilUUID, err
	}
	return s.create(ctx, KindTest, TestSchema, owner, map[string]string{
		FieldName:       name,
		FieldTester:     testerKind,
		FieldMaxScore:   strconv.FormatFloat(maxScore, 'f', -1, 64),
		FieldPathScript: pathScript,
		FieldAssignment: asn.String(),
	})
}

// UpdateTest writes a partial test record. A tester change is re-validated.
func (s *Server) UpdateTest(ctx context.Context, id grader.UUID, partial map[string]string) error {
	if kind, ok := partial[FieldTester]; ok {
		if _, err := s.testers.Lookup(kind); err != nil {
			return err
		}
	}
	return s.client.Hash(KindTest, id, TestSchema).Update(ctx, partial)
}

// DeleteTest drops the test's reference sets first, then the record.
func (s *Server) DeleteTest(ctx context.Context, id grader.UUID) error {
	for _, field := range []string{RefFiles, RefReporters} {
		if err := s.client.RefSet(KindTest, id, field).Delete(ctx); err != nil {
			return err
		}
	}
	return s.client.Hash(KindTest, id, TestSchema).Delete(ctx)
}

// AttachTestFiles adds File references to a test.
func (s *Server) AttachTestFiles(ctx context.Context, id grader.UUID, fileIDs []string) error {
	return s.attach(ctx, KindTest, id, RefFiles, KindFile, fileIDs)
}

// DetachTestFiles removes File references from a test.
func (s *Server) DetachTestFiles(ctx context.Context, id grader.UUID, fileIDs []string) error {
	return s.client.RefSet(KindTest, id, RefFiles).Remove(ctx, fileIDs)
}

// ListTestFiles lists a test's File references.
func (s *Server) ListTestFiles(ctx context.Context, id grader.UUID) ([]string, error) {
	if err := s.mustExist(ctx, KindTest, id); err != nil {
		return nil, err
	}
	return s.client.RefSet(KindTest, id, RefFiles).List(ctx)
}

// AttachTestReporters adds Reporter references to a test.
func (s *Server) AttachTestReporters(ctx context.Context, id grader.UUID, reporterIDs []string) error {
	return s.attach(ctx, KindTest, id, RefReporters, KindReporter, reporterIDs)
}

// DetachTestReporters removes Reporter references from a test.
func (s *Server) DetachTestReporters(ctx context.Context, id grader.UUID, reporterIDs []string) error {
	return s.client.RefSet(KindTest, id, RefReporters).Remove(ctx, reporterIDs)
}

// ListTestReporters lists a test's Reporter references.
func (s *Server) ListTestReporters(ctx context.Context, id grader.UUID) ([]string, error) {
	if err := s.mustExist(ctx, KindTest, id); err != nil {
		return nil, err
	}
	return s.client.RefSet(KindTest, id, RefReporters).List(ctx)
}

// CreateSubmission inserts a submission under an assignment.
func (s *Server) CreateSubmission(ctx context.Context, owner, asn grader.UUID) (grader.UUID, error) {
	if err := s.mustExist(ctx, KindAssignment, asn); err != nil {
		return grader.NilUUID, err
	}
	return s.create(ctx, KindSubmission, SubmissionSchema, owner, map[string]string{
		FieldAssignment: asn.String(),
	})
}

// UpdateSubmission writes a partial submission record.
func (s *Server) UpdateSubmission(ctx context.Context, id grader.UUID, partial map[string]string) error {
	return s.client.Hash(KindSubmission, id, SubmissionSchema).Update(ctx, partial)
}

// DeleteSubmission drops the submission's file references, then the record.
func (s *Server) DeleteSubmission(ctx context.Context, id grader.UUID) error {
	if err := s.client.RefSet(KindSubmission, id, RefFiles).Delete(ctx); err != nil {
		return err
	}
	return s.client.Hash(KindSubmission, id, SubmissionSchema).Delete(ctx)
}

// AttachSubmissionFiles adds File references to a submission.
func (s *Server) AttachSubmissionFiles(ctx context.Context, id grader.UUID, fileIDs []string) error {
	return s.attach(ctx, KindSubmission, id, RefFiles, KindFile, fileIDs)
}

// DetachSubmissionFiles removes File references from a submission.
func (s *Server) DetachSubmissionFiles(ctx context.Context, id grader.UUID, fileIDs []string) error {
	return s.client.RefSet(KindSubmission, id, RefFiles).Remove(ctx, fileIDs)
}

// ListSubmissionFiles lists a submission's File references.
func (s *Server) ListSubmissionFiles(ctx context.Context, id grader.UUID) ([]string, error) {
	if err := s.mustExist(ctx, KindSubmission, id); err != nil {
		return nil, err
	}
	return s.client.RefSet(KindSubmission, id, RefFiles).List(ctx)
}
