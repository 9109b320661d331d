package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sharedcode/grader"
	"github.com/sharedcode/grader/encoding"
)

const (
	tokenPath = "/login/token.php"
	restPath  = "/webservice/rest/server.php"
)

// wsClient is a minimal Moodle web services client covering the three REST
// functions grade filing needs. All calls are form-encoded POSTs returning
// JSON.
type wsClient struct {
	host   string
	token  string
	client *http.Client
}

// dialWS authenticates the service account against login/token.php and
// returns a client holding the issued token.
func dialWS(ctx context.Context, cfg grader.MoodleConfig) (*wsClient, error) {
	c := &wsClient{
		host:   strings.TrimRight(cfg.Host, "/"),
		client: &http.Client{Timeout: 30 * time.Second},
	}
	form := url.Values{}
	form.Set("username", cfg.Username)
	form.Set("password", cfg.Password)
	form.Set("service", cfg.Service)
	var reply struct {
		Token string `json:"token"`
		Error string `json:"error"`
	}
	if err := c.post(ctx, c.host+tokenPath, form, &reply); err != nil {
		return nil, err
	}
	if reply.Token == "" {
		return nil, grader.Error{Code: grader.LMSUnreachable,
			Err: fmt.Errorf("token auth failed: %s", reply.Error)}
	}
	c.token = reply.Token
	return c, nil
}

// call invokes one wsfunction and decodes the JSON reply into out.
func (c *wsClient) call(ctx context.Context, function string, args url.Values, out any) error {
	form := url.Values{}
	for k, vs := range args {
		form[k] = vs
	}
	form.Set("wstoken", c.token)
	form.Set("wsfunction", function)
	form.Set("moodlewsrestformat", "json")
	return c.post(ctx, c.host+restPath, form, out)
}

func (c *wsClient) post(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return grader.Error{Code: grader.LMSUnreachable, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.client.Do(req)
	if err != nil {
		return grader.Error{Code: grader.LMSUnreachable, Err: err}
	}
	defer resp.Body.Close()
	ba, err := io.ReadAll(resp.Body)
	if err != nil {
		return grader.Error{Code: grader.LMSUnreachable, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return grader.Error{Code: grader.LMSUnreachable,
			Err: fmt.Errorf("%s returned %s", endpoint, resp.Status)}
	}
	// Moodle signals faults with a 200 carrying an exception envelope.
	var fault struct {
		Exception string `json:"exception"`
		Message   string `json:"message"`
	}
	if encoding.DefaultMarshaler.Unmarshal(ba, &fault) == nil && fault.Exception != "" {
		return grader.Error{Code: grader.LMSUnreachable,
			Err: fmt.Errorf("%s: %s", fault.Exception, fault.Message)}
	}
	if out == nil {
		return nil
	}
	if err := encoding.DefaultMarshaler.Unmarshal(ba, out); err != nil {
		return grader.Error{Code: grader.LMSUnreachable,
			Err: fmt.Errorf("decoding %s reply: %w", endpoint, err)}
	}
	return nil
}

// assignmentDueDate scans mod_assign_get_assignments for the assignment and
// returns its duedate as a unix timestamp. Zero means no due date.
func (c *wsClient) assignmentDueDate(ctx context.Context, asnID int) (int64, error) {
	var reply struct {
		Courses []struct {
			Assignments []struct {
				ID      int   `json:"id"`
				DueDate int64 `json:"duedate"`
			} `json:"assignments"`
		} `json:"courses"`
	}
	if err := c.call(ctx, "mod_assign_get_assignments", url.Values{}, &reply); err != nil {
		return 0, err
	}
	for _, course := range reply.Courses {
		for _, asn := range course.Assignments {
			if asn.ID == asnID {
				return asn.DueDate, nil
			}
		}
	}
	return 0, grader.Error{Code: grader.ObjectDNE,
		Err: fmt.Errorf("assignment %d not found in moodle", asnID)}
}

// latestGrade returns the grade of the user's highest-attemptnumber attempt
// on the assignment. found is false when the user has no grade yet.
func (c *wsClient) latestGrade(ctx context.Context, asnID, usrID int) (grade float64, found bool, err error) {
	args := url.Values{}
	args.Set("assignmentids[0]", strconv.Itoa(asnID))
	var reply struct {
		Assignments []struct {
			Grades []struct {
				UserID        json.Number `json:"userid"`
				AttemptNumber json.Number `json:"attemptnumber"`
				Grade         json.Number `json:"grade"`
			} `json:"grades"`
		} `json:"assignments"`
	}
	if err := c.call(ctx, "mod_assign_get_grades", args, &reply); err != nil {
		return 0, false, err
	}
	// An assignment nobody has been graded on comes back absent from the
	// reply; that is "no grade yet", not a fault.
	if len(reply.Assignments) == 0 {
		return 0, false, nil
	}
	lastNum := int64(-1)
	for _, g := range reply.Assignments[len(reply.Assignments)-1].Grades {
		uid, _ := g.UserID.Int64()
		if int(uid) != usrID {
			continue
		}
		num, _ := g.AttemptNumber.Int64()
		if num > lastNum {
			lastNum = num
			grade, _ = g.Grade.Float64()
			found = true
		}
	}
	return grade, found, nil
}

// saveGrade writes the grade and feedback comment to the assignment.
func (c *wsClient) saveGrade(ctx context.Context, asnID, usrID int, grade float64, comment string) error {
	args := url.Values{}
	args.Set("assignmentid", strconv.Itoa(asnID))
	args.Set("userid", strconv.Itoa(usrID))
	args.Set("grade", strconv.FormatFloat(grade, 'f', -1, 64))
	args.Set("attemptnumber", "-1")
	args.Set("addattempt", "0")
	args.Set("workflowstate", "Graded")
	args.Set("applytoall", "0")
	args.Set("plugindata[assignfeedbackcomments_editor][text]", comment)
	args.Set("plugindata[assignfeedbackcomments_editor][format]", "2")
	return c.call(ctx, "mod_assign_save_grade", args, nil)
}
