package rest_api

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sharedcode/grader"
	"github.com/sharedcode/grader/engine"
)

// ArchiveKey is the multipart field name that triggers zip expansion on
// upload instead of a plain file create.
const ArchiveKey = "archive"

type graderRestApi struct {
	srv *engine.Server
}

func NewGraderRestApi(srv *engine.Server) *graderRestApi {
	return &graderRestApi{srv: srv}
}

// fail translates engine error codes to HTTP statuses.
func fail(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case grader.IsErrorCode(err, grader.ObjectDNE):
		code = http.StatusNotFound
	case grader.IsErrorCode(err, grader.Unauthenticated):
		code = http.StatusUnauthorized
	case grader.IsErrorCode(err, grader.Forbidden):
		code = http.StatusForbidden
	case grader.IsErrorCode(err, grader.BadUUID),
		grader.IsErrorCode(err, grader.MalformedInput),
		grader.IsErrorCode(err, grader.SchemaViolation),
		grader.IsErrorCode(err, grader.InUse),
		grader.IsErrorCode(err, grader.Busy),
		grader.IsErrorCode(err, grader.Duplicate),
		grader.IsErrorCode(err, grader.UnknownTester),
		grader.IsErrorCode(err, grader.UnknownReporter):
		code = http.StatusBadRequest
	}
	c.IndentedJSON(code, gin.H{"message": err.Error()})
}

// pathUUID parses a UUID path parameter. A malformed UUID addresses nothing,
// so it reads as 404.
func pathUUID(c *gin.Context, name string) (grader.UUID, bool) {
	id, err := grader.ParseUUID(c.Param(name))
	if err != nil {
		c.IndentedJSON(http.StatusNotFound, gin.H{"message": "no such resource"})
		return grader.NilUUID, false
	}
	return id, true
}

// record responds with the single-record envelope { "<uuid>": {fields} }.
func record(c *gin.Context, id grader.UUID, fields map[string]string) {
	c.IndentedJSON(http.StatusOK, gin.H{id.String(): fields})
}

// listing responds with the listing envelope { "<kind>": [uuids] }.
func listing(c *gin.Context, plural string, ids []string) {
	if ids == nil {
		ids = []string{}
	}
	c.IndentedJSON(http.StatusOK, gin.H{plural: ids})
}

// uuidStrings flattens typed UUIDs for the listing envelope.
func uuidStrings(ids []grader.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// Welcome godoc
// @Summary Welcome banner
// @Description Welcome responds with a human-readable service banner.
// @Tags Service
// @Produce json
// @Success 200 {object} map[string]any
// @Router / [get]
func (gra *graderRestApi) Welcome(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, gin.H{"message": "Welcome to the grader API"})
}

// ListFiles godoc
// @Summary ListFiles returns all file UUIDs
// @Tags Files
// @Produce json
// @Success 200 {object} map[string][]string
// @Router /files/ [get]
// @Security BasicAuth
func (gra *graderRestApi) ListFiles(c *gin.Context) {
	ids, err := gra.srv.List(c.Request.Context(), engine.KindFile)
	if err != nil {
		fail(c, err)
		return
	}
	listing(c, "files", ids)
}

// CreateFiles godoc
// @Summary CreateFiles ingests a multipart upload
// @Description One File per part, keyed by field name; an "archive" part is
// @Description expanded as a zip, one File per entry.
// @Tags Files
// @Accept mpfd
// @Produce json
// @Failure 400 {object} map[string]any
// @Success 200 {object} map[string][]string
// @Router /files/ [post]
// @Security BasicAuth
func (gra *graderRestApi) CreateFiles(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		fail(c, grader.Error{Code: grader.MalformedInput, Err: err})
		return
	}
	owner := currentUser(c).id
	var created []grader.UUID
	for key, headers := range form.File {
		for _, fh := range headers {
			ids, err := gra.ingestPart(c, owner, key, fh)
			if err != nil {
				// Roll back the parts that did land.
				for _, id := range created {
					gra.srv.DeleteFile(c.Request.Context(), id)
				}
				fail(c, err)
				return
			}
			created = append(created, ids...)
		}
	}
	listing(c, "files", uuidStrings(created))
}

func (gra *graderRestApi) ingestPart(c *gin.Context, owner grader.UUID, key string, fh *multipart.FileHeader) ([]grader.UUID, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, grader.Error{Code: grader.MalformedInput, Err: err}
	}
	defer f.Close()
	if key == ArchiveKey {
		ba, err := io.ReadAll(f)
		if err != nil {
			return nil, grader.Error{Code: grader.MalformedInput, Err: err}
		}
		return gra.srv.IngestArchive(c.Request.Context(), owner, fh.Filename,
			bytes.NewReader(ba), int64(len(ba)))
	}
	id, err := gra.srv.CreateFile(c.Request.Context(), owner, key, fh.Filename, f)
	if err != nil {
		return nil, err
	}
	return []grader.UUID{id}, nil
}

// GetFile godoc
// @Summary GetFile returns one file record
// @Tags Files
// @Produce json
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string]map[string]string
// @Router /files/{uuid}/ [get]
// @Security BasicAuth
func (gra *graderRestApi) GetFile(c *gin.Context) {
	gra.getRecord(c, engine.KindFile)
}

// DeleteFile godoc
// @Summary DeleteFile removes a file record and its blob
// @Description Refused with 400 while a test or submission references it.
// @Tags Files
// @Produce json
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string]any
// @Router /files/{uuid}/ [delete]
// @Security BasicAuth
func (gra *graderRestApi) DeleteFile(c *gin.Context) {
	id, ok := pathUUID(c, "uuid")
	if !ok {
		return
	}
	if err := gra.srv.DeleteFile(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{"message": "deleted"})
}

func (gra *graderRestApi) getRecord(c *gin.Context, kind string) {
	id, ok := pathUUID(c, "uuid")
	if !ok {
		return
	}
	fields, err := gra.srv.Get(c.Request.Context(), kind, id)
	if err != nil {
		fail(c, err)
		return
	}
	record(c, id, fields)
}

// ListReporters godoc
// @Summary ListReporters returns all reporter UUIDs
// @Tags Reporters
// @Produce json
// @Success 200 {object} map[string][]string
// @Router /reporters/ [get]
// @Security BasicAuth
func (gra *graderRestApi) ListReporters(c *gin.Context) {
	ids, err := gra.srv.List(c.Request.Context(), engine.KindReporter)
	if err != nil {
		fail(c, err)
		return
	}
	listing(c, "reporters", ids)
}

// CreateReporter godoc
// @Summary CreateReporter inserts a reporter record
// @Tags Reporters
// @Accept json
// @Produce json
// @Failure 400 {object} map[string]any
// @Success 200 {object} map[string]map[string]string
// @Router /reporters/ [post]
// @Security BasicAuth
func (gra *graderRestApi) CreateReporter(c *gin.Context) {
	var body map[string]string
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, grader.Error{Code: grader.MalformedInput, Err: err})
		return
	}
	id, err := gra.srv.CreateReporter(c.Request.Context(), currentUser(c).id, body)
	if err != nil {
		fail(c, err)
		return
	}
	gra.respondWith(c, engine.KindReporter, id)
}

// UpdateReporter godoc
// @Summary UpdateReporter writes a partial reporter record
// @Tags Reporters
// @Accept json
// @Produce json
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string]map[string]string
// @Router /reporters/{uuid}/ [put]
// @Security BasicAuth
func (gra *graderRestApi) UpdateReporter(c *gin.Context) {
	id, ok := pathUUID(c, "uuid")
	if !ok {
		return
	}
	var body map[string]string
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, grader.Error{Code: grader.MalformedInput, Err: err})
		return
	}
	if err := gra.srv.UpdateReporter(c.Request.Context(), id, body); err != nil {
		fail(c, err)
		return
	}
	gra.respondWith(c, engine.KindReporter, id)
}

// GetReporter godoc
// @Summary GetReporter returns one reporter record
// @Tags Reporters
// @Produce json
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string]map[string]string
// @Router /reporters/{uuid}/ [get]
// @Security BasicAuth
func (gra *graderRestApi) GetReporter(c *gin.Context) {
	gra.getRecord(c, engine.KindReporter)
}

// DeleteReporter godoc
// @Summary DeleteReporter removes a reporter record
// @Tags Reporters
// @Produce json
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string]any
// @Router /reporters/{uuid}/ [delete]
// @Security BasicAuth
func (gra *graderRestApi) DeleteReporter(c *gin.Context) {
	id, ok := pathUUID(c, "uuid")
	if !ok {
		return
	}
	if err := gra.srv.DeleteReporter(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{"message": "deleted"})
}

// respondWith fetches the record back and responds with its envelope.
func (gra *graderRestApi) respondWith(c *gin.Context, kind string, id grader.UUID) {
	fields, err := gra.srv.Get(c.Request.Context(), kind, id)
	if err != nil {
		fail(c, err)
		return
	}
	record(c, id, fields)
}
