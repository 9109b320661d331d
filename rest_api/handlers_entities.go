package rest_api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sharedcode/grader"
	"github.com/sharedcode/grader/engine"
)

// ListAssignments godoc
// @Summary ListAssignments returns all assignment UUIDs
// @Tags Assignments
// @Produce json
// @Success 200 {object} map[string][]string
// @Router /assignments/ [get]
// @Security BasicAuth
func (gra *graderRestApi) ListAssignments(c *gin.Context) {
	ids, err := gra.srv.List(c.Request.Context(), engine.KindAssignment)
	if err != nil {
		fail(c, err)
		return
	}
	listing(c, "assignments", ids)
}

// CreateAssignment godoc
// @Summary CreateAssignment inserts an assignment record
// @Tags Assignments
// @Accept json
// @Produce json
// @Failure 400 {object} map[string]any
// @Success 200 {object} map[string]map[string]string
// @Router /assignments/ [post]
// @Security BasicAuth
func (gra *graderRestApi) CreateAssignment(c *gin.Context) {
	var body struct {
		Name string `json:"name"`
		Env  string `json:"env"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, grader.Error{Code: grader.MalformedInput, Err: err})
		return
	}
	id, err := gra.srv.CreateAssignment(c.Request.Context(), currentUser(c).id, body.Name, body.Env)
	if err != nil {
		fail(c, err)
		return
	}
	gra.respondWith(c, engine.KindAssignment, id)
}

// GetAssignment godoc
// @Summary GetAssignment returns one assignment record
// @Tags Assignments
// @Produce json
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string]map[string]string
// @Router /assignments/{asn}/ [get]
// @Security BasicAuth
func (gra *graderRestApi) GetAssignment(c *gin.Context) {
	id, ok := pathUUID(c, "asn")
	if !ok {
		return
	}
	fields, err := gra.srv.Get(c.Request.Context(), engine.KindAssignment, id)
	if err != nil {
		fail(c, err)
		return
	}
	record(c, id, fields)
}

// UpdateAssignment godoc
// @Summary UpdateAssignment writes a partial assignment record
// @Tags Assignments
// @Accept json
// @Produce json
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string]map[string]string
// @Router /assignments/{asn}/ [put]
// @Security BasicAuth
func (gra *graderRestApi) UpdateAssignment(c *gin.Context) {
	id, ok := pathUUID(c, "asn")
	if !ok {
		return
	}
	var body map[string]string
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, grader.Error{Code: grader.MalformedInput, Err: err})
		return
	}
	if err := gra.srv.UpdateAssignment(c.Request.Context(), id, body); err != nil {
		fail(c, err)
		return
	}
	gra.respondWith(c, engine.KindAssignment, id)
}

// DeleteAssignment godoc
// @Summary DeleteAssignment cascades over tests, submissions and runs
// @Tags Assignments
// @Produce json
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string]any
// @Router /assignments/{asn}/ [delete]
// @Security BasicAuth
func (gra *graderRestApi) DeleteAssignment(c *gin.Context) {
	id, ok := pathUUID(c, "asn")
	if !ok {
		return
	}
	if err := gra.srv.DeleteAssignment(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{"message": "deleted"})
}

// ListAssignmentTests godoc
// @Summary ListAssignmentTests returns the assignment's test UUIDs
// @Tags Tests
// @Produce json
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string][]string
// @Router /assignments/{asn}/tests/ [get]
// @Security BasicAuth
func (gra *graderRestApi) ListAssignmentTests(c *gin.Context) {
	gra.listContained(c, engine.KindTest, "tests")
}

// CreateTest godoc
// @Summary CreateTest inserts a test under the assignment
// @Tags Tests
// @Accept json
// @Produce json
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string]map[string]string
// @Router /assignments/{asn}/tests/ [post]
// @Security BasicAuth
func (gra *graderRestApi) CreateTest(c *gin.Context) {
	asn, ok := pathUUID(c, "asn")
	if !ok {
		return
	}
	var body struct {
		Name       string  `json:"name"`
		Tester     string  `json:"tester"`
		MaxScore   float64 `json:"maxscore"`
		PathScript string  `json:"path_script"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, grader.Error{Code: grader.MalformedInput, Err: err})
		return
	}
	id, err := gra.srv.CreateTest(c.Request.Context(), currentUser(c).id, asn,
		body.Name, body.Tester, body.MaxScore, body.PathScript)
	if err != nil {
		fail(c, err)
		return
	}
	gra.respondWith(c, engine.KindTest, id)
}

// ListAssignmentSubmissions godoc
// @Summary ListAssignmentSubmissions returns the assignment's submission UUIDs
// @Tags Submissions
// @Produce json
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string][]string
// @Router /assignments/{asn}/submissions/ [get]
// @Security BasicAuth
func (gra *graderRestApi) ListAssignmentSubmissions(c *gin.Context) {
	gra.listContained(c, engine.KindSubmission, "submissions")
}

// CreateSubmission godoc
// @Summary CreateSubmission inserts a submission under the assignment
// @Tags Submissions
// @Produce json
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string]map[string]string
// @Router /assignments/{asn}/submissions/ [post]
// @Security BasicAuth
func (gra *graderRestApi) CreateSubmission(c *gin.Context) {
	asn, ok := pathUUID(c, "asn")
	if !ok {
		return
	}
	id, err := gra.srv.CreateSubmission(c.Request.Context(), currentUser(c).id, asn)
	if err != nil {
		fail(c, err)
		return
	}
	gra.respondWith(c, engine.KindSubmission, id)
}

func (gra *graderRestApi) listContained(c *gin.Context, kind, plural string) {
	asn, ok := pathUUID(c, "asn")
	if !ok {
		return
	}
	ids, err := gra.srv.ListByAssignment(c.Request.Context(), kind, asn)
	if err != nil {
		fail(c, err)
		return
	}
	listing(c, plural, ids)
}

// ListTests godoc
// @Summary ListTests returns all test UUIDs
// @Tags Tests
// @Produce json
// @Success 200 {object} map[string][]string
// @Router /tests/ [get]
// @Security BasicAuth
func (gra *graderRestApi) ListTests(c *gin.Context) {
	ids, err := gra.srv.List(c.Request.Context(), engine.KindTest)
	if err != nil {
		fail(c, err)
		return
	}
	listing(c, "tests", ids)
}

// GetTest godoc
// @Summary GetTest returns one test record
// @Tags Tests
// @Produce json
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string]map[string]string
// @Router /tests/{uuid}/ [get]
// @Security BasicAuth
func (gra *graderRestApi) GetTest(c *gin.Context) {
	gra.getRecord(c, engine.KindTest)
}

// UpdateTest godoc
// @Summary UpdateTest writes a partial test record
// @Tags Tests
// @Accept json
// @Produce json
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string]map[string]string
// @Router /tests/{uuid}/ [put]
// @Security BasicAuth
func (gra *graderRestApi) UpdateTest(c *gin.Context) {
	id, ok := pathUUID(c, "uuid")
	if !ok {
		return
	}
	var body map[string]string
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, grader.Error{Code: grader.MalformedInput, Err: err})
		return
	}
	if err := gra.srv.UpdateTest(c.Request.Context(), id, body); err != nil {
		fail(c, err)
		return
	}
	gra.respondWith(c, engine.KindTest, id)
}

// DeleteTest godoc
// @Summary DeleteTest removes a test record and its reference sets
// @Tags Tests
// @Produce json
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string]any
// @Router /tests/{uuid}/ [delete]
// @Security BasicAuth
func (gra *graderRestApi) DeleteTest(c *gin.Context) {
	id, ok := pathUUID(c, "uuid")
	if !ok {
		return
	}
	if err := gra.srv.DeleteTest(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{"message": "deleted"})
}

// ListSubmissions godoc
// @Summary ListSubmissions returns all submission UUIDs
// @Tags Submissions
// @Produce json
// @Success 200 {object} map[string][]string
// @Router /submissions/ [get]
// @Security BasicAuth
func (gra *graderRestApi) ListSubmissions(c *gin.Context) {
	ids, err := gra.srv.List(c.Request.Context(), engine.KindSubmission)
	if err != nil {
		fail(c, err)
		return
	}
	listing(c, "submissions", ids)
}

// GetSubmission godoc
// @Summary GetSubmission returns one submission record
// @Tags Submissions
// @Produce json
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string]map[string]string
// @Router /submissions/{uuid}/ [get]
// @Security BasicAuth
func (gra *graderRestApi) GetSubmission(c *gin.Context) {
	gra.getRecord(c, engine.KindSubmission)
}

// UpdateSubmission godoc
// @Summary UpdateSubmission writes a partial submission record
// @Tags Submissions
// @Accept json
// @Produce json
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string]map[string]string
// @Router /submissions/{uuid}/ [put]
// @Security BasicAuth
func (gra *graderRestApi) UpdateSubmission(c *gin.Context) {
	id, ok := pathUUID(c, "uuid")
	if !ok {
		return
	}
	var body map[string]string
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, grader.Error{Code: grader.MalformedInput, Err: err})
		return
	}
	if err := gra.srv.UpdateSubmission(c.Request.Context(), id, body); err != nil {
		fail(c, err)
		return
	}
	gra.respondWith(c, engine.KindSubmission, id)
}

// DeleteSubmission godoc
// @Summary DeleteSubmission removes a submission record and its references
// @Tags Submissions
// @Produce json
// @Failure 404 {object} map[string]any
// @Success 200 {object} map[string]any
// @Router /submissions/{uuid}/ [delete]
// @Security BasicAuth
func (gra *graderRestApi) DeleteSubmission(c *gin.Context) {
	id, ok := pathUUID(c, "uuid")
	if !ok {
		return
	}
	if err := gra.srv.DeleteSubmission(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, gin.H{"message": "deleted"})
}
