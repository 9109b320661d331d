package rest_api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sharedcode/grader/engine"
)

// ListRuns godoc
// @Summary ListRuns returns the submission's run UUIDs
// @Tags Runs
// @Produce json
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string][]string
// @Router /assignments/{asn}/submissions/{sub}/runs/ [get]
// @Security BasicAuth
func (gra *graderRestApi) ListRuns(c *gin.Context) {
	sub, ok := pathUUID(c, "sub")
	if !ok {
		return
	}
	ids, err := gra.srv.ListRunsOfSubmission(c.Request.Context(), sub)
	if err != nil {
		fail(c, err)
		return
	}
	listing(c, "runs", ids)
}

// CreateRuns godoc
// @Summary CreateRuns grades the submission against every test
// @Description One run per test of the assignment, queued to the worker
// @Description pool. A full queue responds 400 with the runs created so far.
// @Tags Runs
// @Produce json
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string][]string
// @Router /assignments/{asn}/submissions/{sub}/runs/ [post]
// @Security BasicAuth
func (gra *graderRestApi) CreateRuns(c *gin.Context) {
	asn, ok := pathUUID(c, "asn")
	if !ok {
		return
	}
	sub, ok := pathUUID(c, "sub")
	if !ok {
		return
	}
	ids, err := gra.srv.CreateRuns(c.Request.Context(), currentUser(c).id, asn, sub)
	if err != nil {
		fail(c, err)
		return
	}
	listing(c, "runs", uuidStrings(ids))
}

// GetRun godoc
// @Summary GetRun returns one run record
// @Description Poll this until status carries a "complete" prefix.
// @Tags Runs
// @Produce json
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string]map[string]string
// @Router /assignments/{asn}/submissions/{sub}/runs/{run}/ [get]
// @Security BasicAuth
func (gra *graderRestApi) GetRun(c *gin.Context) {
	id, ok := pathUUID(c, "run")
	if !ok {
		return
	}
	fields, err := gra.srv.Get(c.Request.Context(), engine.KindRun, id)
	if err != nil {
		fail(c, err)
		return
	}
	record(c, id, fields)
}

// DeleteRun godoc
// @Summary DeleteRun cancels and removes a run
// @Description A running run's sandbox process group is killed.
// @Tags Runs
// @Produce json
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string]any
// @Router /assignments/{asn}/submissions/{sub}/runs/{run}/ [delete]
// @Security BasicAuth
func (gra *graderRestApi) DeleteRun(c *gin.Context) {
	id, ok := pathUUID(c, "run")
	if !ok {
		return
	}
	if err := gra.srv.DeleteRun(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{"message": "deleted"})
}
