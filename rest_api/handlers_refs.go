package rest_api

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/sharedcode/grader"
)

// refOps bundles the engine calls behind one reference set route.
type refOps struct {
	plural string
	list   func(ctx context.Context, id grader.UUID) ([]string, error)
	add    func(ctx context.Context, id grader.UUID, members []string) error
	remove func(ctx context.Context, id grader.UUID, members []string) error
}

func (gra *graderRestApi) listRefs(c *gin.Context, ops refOps) {
	id, ok := pathUUID(c, "uuid")
	if !ok {
		return
	}
	refs, err := ops.list(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	listing(c, ops.plural, refs)
}

func (gra *graderRestApi) mutateRefs(c *gin.Context, ops refOps, mutate func(ctx context.Context, id grader.UUID, members []string) error) {
	id, ok := pathUUID(c, "uuid")
	if !ok {
		return
	}
	var body map[string][]string
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, grader.Error{Code: grader.MalformedInput, Err: err})
		return
	}
	if err := mutate(c.Request.Context(), id, body[ops.plural]); err != nil {
		fail(c, err)
		return
	}
	refs, err := ops.list(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	listing(c, ops.plural, refs)
}

func (gra *graderRestApi) testFileOps() refOps {
	return refOps{
		plural: "files",
		list:   gra.srv.ListTestFiles,
		add:    gra.srv.AttachTestFiles,
		remove: gra.srv.DetachTestFiles,
	}
}

func (gra *graderRestApi) testReporterOps() refOps {
	return refOps{
		plural: "reporters",
		list:   gra.srv.ListTestReporters,
		add:    gra.srv.AttachTestReporters,
		remove: gra.srv.DetachTestReporters,
	}
}

func (gra *graderRestApi) submissionFileOps() refOps {
	return refOps{
		plural: "files",
		list:   gra.srv.ListSubmissionFiles,
		add:    gra.srv.AttachSubmissionFiles,
		remove: gra.srv.DetachSubmissionFiles,
	}
}

// ListTestFiles godoc
// @Summary ListTestFiles returns the test's file references
// @Tags Tests
// @Produce json
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string][]string
// @Router /tests/{uuid}/files/ [get]
// @Security BasicAuth
func (gra *graderRestApi) ListTestFiles(c *gin.Context) {
	gra.listRefs(c, gra.testFileOps())
}

// AddTestFiles godoc
// @Summary AddTestFiles attaches file references to the test
// @Description Body: { "files": [uuids] }. Every UUID must resolve.
// @Tags Tests
// @Accept json
// @Produce json
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string][]string
// @Router /tests/{uuid}/files/ [put]
// @Security BasicAuth
func (gra *graderRestApi) AddTestFiles(c *gin.Context) {
	ops := gra.testFileOps()
	gra.mutateRefs(c, ops, ops.add)
}

// RemoveTestFiles godoc
// @Summary RemoveTestFiles detaches file references from the test
// @Tags Tests
// @Accept json
// @Produce json
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string][]string
// @Router /tests/{uuid}/files/ [delete]
// @Security BasicAuth
func (gra *graderRestApi) RemoveTestFiles(c *gin.Context) {
	ops := gra.testFileOps()
	gra.mutateRefs(c, ops, ops.remove)
}

// ListTestReporters godoc
// @Summary ListTestReporters returns the test's reporter references
// @Tags Tests
// @Produce json
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string][]string
// @Router /tests/{uuid}/reporters/ [get]
// @Security BasicAuth
func (gra *graderRestApi) ListTestReporters(c *gin.Context) {
	gra.listRefs(c, gra.testReporterOps())
}

// AddTestReporters godoc
// @Summary AddTestReporters attaches reporter references to the test
// @Tags Tests
// @Accept json
// @Produce json
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string][]string
// @Router /tests/{uuid}/reporters/ [put]
// @Security BasicAuth
func (gra *graderRestApi) AddTestReporters(c *gin.Context) {
	ops := gra.testReporterOps()
	gra.mutateRefs(c, ops, ops.add)
}

// RemoveTestReporters godoc
// @Summary RemoveTestReporters detaches reporter references from the test
// @Tags Tests
// @Accept json
// @Produce json
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string][]string
// @Router /tests/{uuid}/reporters/ [delete]
// @Security BasicAuth
func (gra *graderRestApi) RemoveTestReporters(c *gin.Context) {
	ops := gra.testReporterOps()
	gra.mutateRefs(c, ops, ops.remove)
}

// ListSubmissionFiles godoc
// @Summary ListSubmissionFiles returns the submission's file references
// @Tags Submissions
// @Produce json
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string][]string
// @Router /submissions/{uuid}/files/ [get]
// @Security BasicAuth
func (gra *graderRestApi) ListSubmissionFiles(c *gin.Context) {
	gra.listRefs(c, gra.submissionFileOps())
}

// AddSubmissionFiles godoc
// @Summary AddSubmissionFiles attaches file references to the submission
// @Tags Submissions
// @Accept json
// @Produce json
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string][]string
// @Router /submissions/{uuid}/files/ [put]
// @Security BasicAuth
func (gra *graderRestApi) AddSubmissionFiles(c *gin.Context) {
	ops := gra.submissionFileOps()
	gra.mutateRefs(c, ops, ops.add)
}

// RemoveSubmissionFiles godoc
// @Summary RemoveSubmissionFiles detaches file references from the submission
// @Tags Submissions
// @Accept json
// @Produce json
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string][]string
// @Router /submissions/{uuid}/files/ [delete]
// @Security BasicAuth
func (gra *graderRestApi) RemoveSubmissionFiles(c *gin.Context) {
	ops := gra.submissionFileOps()
	gra.mutateRefs(c, ops, ops.remove)
}
