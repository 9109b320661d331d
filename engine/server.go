package engine

import (
	"context"
	"fmt"
	"io"

	log "log/slog"

	"github.com/sharedcode/grader"
	"github.com/sharedcode/grader/filestore"
	"github.com/sharedcode/grader/reporter"
	"github.com/sharedcode/grader/store"
	"github.com/sharedcode/grader/tester"
)

// Server is the facade the request layer drives: entity CRUD, reference set
// management, file ingestion and run creation. One Server owns the worker
// pool; construct it once per process.
type Server struct {
	cfg       *grader.Config
	client    *store.Client
	blobs     filestore.BlobStore
	testers   *tester.Registry
	reporters *reporter.Registry
	pool      *Pool
}

func NewServer(cfg *grader.Config, client *store.Client, blobs filestore.BlobStore) *Server {
	s := &Server{
		cfg:       cfg,
		client:    client,
		blobs:     blobs,
		testers:   tester.NewRegistry(blobs),
		reporters: reporter.NewRegistry(cfg.Moodle),
	}
	s.pool = NewPool(cfg.WorkerCount, cfg.QueueDepth, s.executeRun)
	return s
}

// Start launches the worker pool. Runs enqueue only after Start.
func (s *Server) Start(ctx context.Context) {
	s.pool.Start(ctx)
}

// Shutdown drains the pool, cancelling in-flight runs, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.pool.Shutdown(ctx)
}

// create inserts a fresh record of kind under a new UUID.
func (s *Server) create(ctx context.Context, kind string, schema store.Schema, owner grader.UUID, fields map[string]string) (grader.UUID, error) {
	id := grader.NewUUID()
	data := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		data[k] = v
	}
	data[store.FieldOwner] = owner.String()
	if err := s.client.Hash(kind, id, schema).Create(ctx, data); err != nil {
		return grader.NilUUID, err
	}
	return id, nil
}

// Get fetches a record of any kind.
func (s *Server) Get(ctx context.Context, kind string, id grader.UUID) (map[string]string, error) {
	return s.client.Hash(kind, id, nil).Get(ctx)
}

// List scans all UUIDs of a kind.
func (s *Server) List(ctx context.Context, kind string) ([]string, error) {
	return s.client.ListKind(ctx, kind)
}

// ListByAssignment scans a kind and keeps records whose assignment field
// matches. Tests and Submissions are contained this way.
func (s *Server) ListByAssignment(ctx context.Context, kind string, asn grader.UUID) ([]string, error) {
	ids, err := s.client.ListKind(ctx, kind)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, raw := range ids {
		id, err := grader.ParseUUID(raw)
		if err != nil {
			continue
		}
		owner, err := s.client.Hash(kind, id, schemaFor(kind)).GetField(ctx, FieldAssignment)
		if err != nil {
			if grader.IsErrorCode(err, grader.ObjectDNE) {
				continue
			}
			return nil, err
		}
		if owner == asn.String() {
			out = append(out, raw)
		}
	}
	return out, nil
}

// mustExist verifies a record of kind is present.
func (s *Server) mustExist(ctx context.Context, kind string, id grader.UUID) error {
	ok, err := s.client.Hash(kind, id, nil).Exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return grader.Error{Code: grader.ObjectDNE, UserData: id.String(),
			Err: fmt.Errorf("%s %s does not exist", kind, id.String())}
	}
	return nil
}

// referencedBy reports whether any record of holderKind references id in the
// given reference set field.
func (s *Server) referencedBy(ctx context.Context, holderKind, field string, id grader.UUID) (bool, error) {
	holders, err := s.client.ListKind(ctx, holderKind)
	if err != nil {
		return false, err
	}
	for _, raw := range holders {
		hid, err := grader.ParseUUID(raw)
		if err != nil {
			continue
		}
		ok, err := s.client.RefSet(holderKind, hid, field).Contains(ctx, id.String())
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// attach adds member UUIDs to a record's reference set after verifying the
// holder and every member exist.
func (s *Server) attach(ctx context.Context, kind string, id grader.UUID, field, memberKind string, members []string) error {
	if err := s.mustExist(ctx, kind, id); err != nil {
		return err
	}
	for _, raw := range members {
		mid, err := grader.ParseUUID(raw)
		if err != nil {
			return err
		}
		if err := s.mustExist(ctx, memberKind, mid); err != nil {
			return err
		}
	}
	return s.client.RefSet(kind, id, field).Add(ctx, members)
}

// CreateFile stores the blob and its metadata record.
func (s *Server) CreateFile(ctx context.Context, owner grader.UUID, key, name string, content io.Reader) (grader.UUID, error) {
	id := grader.NewUUID()
	path, err := s.blobs.Write(ctx, id, name, content)
	if err != nil {
		return grader.NilUUID, err
	}
	data := map[string]string{
		FieldKey:         key,
		FieldName:        filestore.SanitizeName(name),
		FieldPath:        path,
		store.FieldOwner: owner.String(),
	}
	if err := s.client.Hash(KindFile, id, FileSchema).Create(ctx, data); err != nil {
		s.blobs.Remove(ctx, path)
		return grader.NilUUID, err
	}
	return id, nil
}

// IngestArchive expands a zip stream into one File per regular entry, keyed
// "from_<archive-name>". Entries extract in parallel.
func (s *Server) IngestArchive(ctx context.Context, owner grader.UUID, archiveName string, ra io.ReaderAt, size int64) ([]grader.UUID, error) {
	entries, err := filestore.ZipEntries(ra, size)
	if err != nil {
		return nil, err
	}
	key := filestore.ArchiveKey(archiveName)
	ids := make([]grader.UUID, len(entries))
	tr := grader.NewTaskRunner(ctx, 4)
	for i, e := range entries {
		i, e := i, e
		tr.Go(func() error {
			rc, err := e.Open()
			if err != nil {
				return grader.Error{Code: grader.MalformedInput, UserData: e.Name, Err: err}
			}
			defer rc.Close()
			id, err := s.CreateFile(ctx, owner, key, e.Name, rc)
			if err != nil {
				return err
			}
			ids[i] = id
			return nil
		})
	}
	if err := tr.Wait(); err != nil {
		// Best effort rollback of the entries that did land.
		for _, id := range ids {
			if !id.IsNil() {
				s.DeleteFile(ctx, id)
			}
		}
		return nil, err
	}
	return ids, nil
}

// DeleteFile removes the record and then its blob. Refused with InUse while
// any Test or Submission references the file.
func (s *Server) DeleteFile(ctx context.Context, id grader.UUID) error {
	for _, holder := range []string{KindTest, KindSubmission} {
		used, err := s.referencedBy(ctx, holder, RefFiles, id)
		if err != nil {
			return err
		}
		if used {
			return grader.Error{Code: grader.InUse, UserData: id.String(),
				Err: fmt.Errorf("file %s is referenced by a %s", id.String(), holder)}
		}
	}
	h := s.client.Hash(KindFile, id, FileSchema)
	path, err := h.GetField(ctx, FieldPath)
	if err != nil {
		return err
	}
	if err := h.Delete(ctx); err != nil {
		return err
	}
	if path != "" {
		if err := s.blobs.Remove(ctx, path); err != nil {
			log.Warn("blob removal failed after record delete", "file", id.String(), "error", err)
		}
	}
	return nil
}

// CreateReporter validates the mod against the registry, fills moodle policy
// defaults and inserts the record.
func (s *Server) CreateReporter(ctx context.Context, owner grader.UUID, fields map[string]string) (grader.UUID, error) {
	mod := fields[FieldMod]
	data := make(map[string]string, len(fields))
	for k, v := range fields {
		data[k] = v
	}
	if mod == reporter.ModMoodle {
		applyMoodleDefaults(data)
	}
	// A registry build exercises the mod's field parsing up front.
	if _, err := s.reporters.Lookup(mod, data); err != nil {
		return grader.NilUUID, err
	}
	return s.create(ctx, KindReporter, reporterSchemaFor(mod), owner, data)
}

// UpdateReporter writes a partial reporter record under the schema of its
// stored mod.
func (s *Server) UpdateReporter(ctx context.Context, id grader.UUID, partial map[string]string) error {
	mod, err := s.client.Hash(KindReporter, id, ReporterSchema).GetField(ctx, FieldMod)
	if err != nil {
		return err
	}
	return s.client.Hash(KindReporter, id, reporterSchemaFor(mod)).Update(ctx, partial)
}

// DeleteReporter is refused with InUse while any Test references it.
func (s *Server) DeleteReporter(ctx context.Context, id grader.UUID) error {
	used, err := s.referencedBy(ctx, KindTest, RefReporters, id)
	if err != nil {
		return err
	}
	if used {
		return grader.Error{Code: grader.InUse, UserData: id.String(),
			Err: fmt.Errorf("reporter %s is referenced by a test", id.String())}
	}
	return s.client.Hash(KindReporter, id, ReporterSchema).Delete(ctx)
}

// CreateAssignment inserts an assignment record.
func (s *Server) CreateAssignment(ctx context.Context, owner grader.UUID, name, env string) (grader.UUID, error) {
	return s.create(ctx, KindAssignment, AssignmentSchema, owner,
		map[string]string{FieldName: name, FieldEnv: env})
}

// UpdateAssignment writes a partial assignment record.
func (s *Server) UpdateAssignment(ctx context.Context, id grader.UUID, partial map[string]string) error {
	return s.client.Hash(KindAssignment, id, AssignmentSchema).Update(ctx, partial)
}

// DeleteAssignment cascades: every contained Test, Submission and their Runs
// go first, in parallel, then the assignment record itself.
func (s *Server) DeleteAssignment(ctx context.Context, id grader.UUID) error {
	tests, err := s.ListByAssignment(ctx, KindTest, id)
	if err != nil {
		return err
	}
	subs, err := s.ListByAssignment(ctx, KindSubmission, id)
	if err != nil {
		return err
	}
	runs, err := s.runsOfTests(ctx, tests)
	if err != nil {
		return err
	}
	tr := grader.NewTaskRunner(ctx, 8)
	for _, raw := range runs {
		rid, err := grader.ParseUUID(raw)
		if err != nil {
			continue
		}
		tr.Go(func() error { return s.DeleteRun(ctx, rid) })
	}
	if err := tr.Wait(); err != nil {
		return err
	}
	tr = grader.NewTaskRunner(ctx, 8)
	for _, raw := range tests {
		tid, err := grader.ParseUUID(raw)
		if err != nil {
			continue
		}
		tr.Go(func() error { return s.DeleteTest(ctx, tid) })
	}
	for _, raw := range subs {
		sid, err := grader.ParseUUID(raw)
		if err != nil {
			continue
		}
		tr.Go(func() error { return s.DeleteSubmission(ctx, sid) })
	}
	if err := tr.Wait(); err != nil {
		return err
	}
	return s.client.Hash(KindAssignment, id, AssignmentSchema).Delete(ctx)
}

// runsOfTests scans the run kind for records referencing any of the tests.
func (s *Server) runsOfTests(ctx context.Context, tests []string) ([]string, error) {
	members := make(map[string]bool, len(tests))
	for _, t := range tests {
		members[t] = true
	}
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
		t, err := s.client.Hash(KindRun, rid, RunSchema).GetField(ctx, FieldTest)
		if err != nil {
			if grader.IsErrorCode(err, grader.ObjectDNE) {
				continue
			}
			return nil, err
		}
		if members[t] {
			out = append(out, raw)
		}
	}
	return out, nil
}
