package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sharedcode/grader"
)

var ctx = context.Background()

// gradeAttempt is one stored attempt in the fake LMS.
type gradeAttempt struct {
	UserID        int     `json:"userid"`
	AttemptNumber int     `json:"attemptnumber"`
	Grade         float64 `json:"grade"`
}

type savedGrade struct {
	AsnID   int
	UserID  int
	Grade   string
	Comment string
}

// fakeLMS is a minimal Moodle web services endpoint: token auth plus the
// three mod_assign functions the reporter calls.
type fakeLMS struct {
	duedates map[int]int64
	grades   map[int][]gradeAttempt
	saved    []savedGrade
	denyAuth bool
}

func (f *fakeLMS) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login/token.php", func(w http.ResponseWriter, r *http.Request) {
		if f.denyAuth {
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid login"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"token": "d34db33f"})
	})
	mux.HandleFunc("/webservice/rest/server.php", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.FormValue("wstoken") != "d34db33f" {
			json.NewEncoder(w).Encode(map[string]string{
				"exception": "moodle_exception", "message": "invalid token"})
			return
		}
		switch r.FormValue("wsfunction") {
		case "mod_assign_get_assignments":
			type asn struct {
				ID      int   `json:"id"`
				DueDate int64 `json:"duedate"`
			}
			var asns []asn
			for id, due := range f.duedates {
				asns = append(asns, asn{ID: id, DueDate: due})
			}
			json.NewEncoder(w).Encode(map[string]any{
				"courses": []map[string]any{{"assignments": asns}},
			})
		case "mod_assign_get_grades":
			var asnID int
			fmt.Sscanf(r.FormValue("assignmentids[0]"), "%d", &asnID)
			attempts, ok := f.grades[asnID]
			if !ok {
				json.NewEncoder(w).Encode(map[string]any{"assignments": []any{}})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"assignments": []map[string]any{{"grades": attempts}},
			})
		case "mod_assign_save_grade":
			var s savedGrade
			fmt.Sscanf(r.FormValue("assignmentid"), "%d", &s.AsnID)
			fmt.Sscanf(r.FormValue("userid"), "%d", &s.UserID)
			s.Grade = r.FormValue("grade")
			s.Comment = r.FormValue("plugindata[assignfeedbackcomments_editor][text]")
			f.saved = append(f.saved, s)
			w.Write([]byte("null"))
		default:
			json.NewEncoder(w).Encode(map[string]string{
				"exception": "moodle_exception", "message": "unknown function"})
		}
	})
	return mux
}

// newMoodle spins up a fake LMS and builds a moodle reporter against it.
func newMoodle(t *testing.T, lms *fakeLMS, fields map[string]string) (*fakeLMS, Reporter) {
	t.Helper()
	srv := httptest.NewServer(lms.handler())
	t.Cleanup(srv.Close)
	cfg := grader.MoodleConfig{
		Host: srv.URL, Username: "grader", Password: "hunter2", Service: "grading",
	}
	r, err := NewRegistry(cfg).Lookup(ModMoodle, fields)
	if err != nil {
		t.Fatalf("building moodle reporter: %v", err)
	}
	return lms, r
}

func moodleUser() Recipient {
	return Recipient{AuthMod: "moodle", MoodleID: "42"}
}

func basicFields() map[string]string {
	return map[string]string{"moodle_asn_id": "101"}
}

func TestNullReporter(t *testing.T) {
	r, err := NewRegistry(grader.MoodleConfig{}).Lookup(ModNull, nil)
	if err != nil {
		t.Fatalf("Lookup(null) failed: %v", err)
	}
	if o := r.File(ctx, Recipient{}, 5, "x"); !o.Accepted {
		t.Errorf("null reporter rejected: %+v", o)
	}
}

func TestRegistryUnknownMod(t *testing.T) {
	_, err := NewRegistry(grader.MoodleConfig{}).Lookup("carrier-pigeon", nil)
	if !grader.IsErrorCode(err, grader.UnknownReporter) {
		t.Errorf("err = %v, want UnknownReporter", err)
	}
}

func TestMoodleBadAssignmentID(t *testing.T) {
	_, err := NewRegistry(grader.MoodleConfig{}).Lookup(ModMoodle,
		map[string]string{"moodle_asn_id": "banana"})
	if !grader.IsErrorCode(err, grader.MalformedInput) {
		t.Errorf("err = %v, want MalformedInput", err)
	}
}

func TestMoodleFilesGrade(t *testing.T) {
	lms, r := newMoodle(t, &fakeLMS{duedates: map[int]int64{101: 0}}, basicFields())
	o := r.File(ctx, moodleUser(), 7.5, "good work")
	if !o.Accepted {
		t.Fatalf("rejected: %+v", o)
	}
	if len(lms.saved) != 1 {
		t.Fatalf("saved %d grades, want 1", len(lms.saved))
	}
	s := lms.saved[0]
	if s.AsnID != 101 || s.UserID != 42 || s.Grade != "7.5" || s.Comment != "good work" {
		t.Errorf("saved = %+v", s)
	}
}

func TestMoodleAuthmodGuard(t *testing.T) {
	lms, r := newMoodle(t, &fakeLMS{duedates: map[int]int64{101: 0}}, basicFields())
	o := r.File(ctx, Recipient{AuthMod: "local", MoodleID: "42"}, 7.5, "")
	if o.Accepted || !grader.IsErrorCode(o.Err, grader.Forbidden) {
		t.Errorf("outcome = %+v, want Forbidden rejection", o)
	}
	if len(lms.saved) != 0 {
		t.Error("grade was saved despite authmod guard")
	}
}

func TestMoodleTokenRefused(t *testing.T) {
	_, r := newMoodle(t, &fakeLMS{denyAuth: true}, basicFields())
	o := r.File(ctx, moodleUser(), 7.5, "")
	if o.Accepted || !grader.IsErrorCode(o.Err, grader.LMSUnreachable) {
		t.Errorf("outcome = %+v, want LMSUnreachable rejection", o)
	}
}

func TestMoodleDueDatePassed(t *testing.T) {
	past := time.Now().Add(-time.Hour).Unix()
	lms, r := newMoodle(t, &fakeLMS{duedates: map[int]int64{101: past}}, basicFields())
	o := r.File(ctx, moodleUser(), 7.5, "")
	if o.Accepted || !grader.IsErrorCode(o.Err, grader.DueDatePassed) {
		t.Errorf("outcome = %+v, want DueDatePassed rejection", o)
	}
	if len(lms.saved) != 0 {
		t.Error("grade was saved despite due date")
	}
}

func TestMoodleDueDateInFuture(t *testing.T) {
	future := time.Now().Add(time.Hour).Unix()
	lms, r := newMoodle(t, &fakeLMS{duedates: map[int]int64{101: future}}, basicFields())
	if o := r.File(ctx, moodleUser(), 7.5, ""); !o.Accepted {
		t.Fatalf("rejected: %+v", o)
	}
	if len(lms.saved) != 1 {
		t.Error("grade was not saved")
	}
}

func TestMoodleDueDateIgnored(t *testing.T) {
	past := time.Now().Add(-time.Hour).Unix()
	fields := basicFields()
	fields["moodle_respect_duedate"] = "0"
	lms, r := newMoodle(t, &fakeLMS{duedates: map[int]int64{101: past}}, fields)
	if o := r.File(ctx, moodleUser(), 7.5, ""); !o.Accepted {
		t.Fatalf("rejected: %+v", o)
	}
	if len(lms.saved) != 1 {
		t.Error("grade was not saved")
	}
}

func TestMoodleOnlyHigher(t *testing.T) {
	attempts := []gradeAttempt{
		{UserID: 42, AttemptNumber: 0, Grade: 4.0},
		{UserID: 42, AttemptNumber: 1, Grade: 8.0},
		{UserID: 7, AttemptNumber: 0, Grade: 10.0},
	}
	cases := []struct {
		name   string
		grade  float64
		accept bool
	}{
		{"lower than latest attempt", 6.0, false},
		{"equal to latest attempt", 8.0, true},
		{"higher than latest attempt", 9.0, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			lms, r := newMoodle(t, &fakeLMS{
				duedates: map[int]int64{101: 0},
				grades:   map[int][]gradeAttempt{101: attempts},
			}, basicFields())
			o := r.File(ctx, moodleUser(), c.grade, "")
			if o.Accepted != c.accept {
				t.Fatalf("grade %.1f: outcome = %+v, want accepted=%v", c.grade, o, c.accept)
			}
			if !c.accept && !grader.IsErrorCode(o.Err, grader.NotHigher) {
				t.Errorf("err = %v, want NotHigher", o.Err)
			}
			if got := len(lms.saved); got != map[bool]int{true: 1, false: 0}[c.accept] {
				t.Errorf("saved %d grades", got)
			}
		})
	}
}

func TestMoodleOnlyHigherNoPriorGrade(t *testing.T) {
	lms, r := newMoodle(t, &fakeLMS{
		duedates: map[int]int64{101: 0},
		grades:   map[int][]gradeAttempt{101: {{UserID: 7, AttemptNumber: 0, Grade: 10}}},
	}, basicFields())
	if o := r.File(ctx, moodleUser(), 1.0, ""); !o.Accepted {
		t.Fatalf("rejected: %+v", o)
	}
	if len(lms.saved) != 1 {
		t.Error("grade was not saved")
	}
}

func TestMoodlePrereq(t *testing.T) {
	fields := basicFields()
	fields["moodle_prereq_id"] = "55"
	fields["moodle_prereq_min"] = "5"
	cases := []struct {
		name    string
		prereqs []gradeAttempt
		code    grader.ErrorCode
		accept  bool
	}{
		{"prereq not attempted", nil, grader.PrereqMissing, false},
		{"prereq too low", []gradeAttempt{{UserID: 42, AttemptNumber: 0, Grade: 3}}, grader.PrereqNotMet, false},
		{"prereq met", []gradeAttempt{{UserID: 42, AttemptNumber: 0, Grade: 6}}, 0, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			grades := map[int][]gradeAttempt{55: c.prereqs}
			lms, r := newMoodle(t, &fakeLMS{
				duedates: map[int]int64{101: 0, 55: 0},
				grades:   grades,
			}, fields)
			o := r.File(ctx, moodleUser(), 7.5, "")
			if o.Accepted != c.accept {
				t.Fatalf("outcome = %+v, want accepted=%v", o, c.accept)
			}
			if !c.accept && !grader.IsErrorCode(o.Err, c.code) {
				t.Errorf("err = %v, want code %d", o.Err, c.code)
			}
			if c.accept && len(lms.saved) != 1 {
				t.Error("grade was not saved")
			}
		})
	}
}

func TestMoodleCommentTruncation(t *testing.T) {
	lms, r := newMoodle(t, &fakeLMS{duedates: map[int]int64{101: 0}}, basicFields())
	long := strings.Repeat("x", 5000)
	if o := r.File(ctx, moodleUser(), 7.5, long); !o.Accepted {
		t.Fatalf("rejected: %+v", o)
	}
	got := lms.saved[0].Comment
	if len(got) != maxCommentLen {
		t.Errorf("comment length = %d, want %d", len(got), maxCommentLen)
	}
	if !strings.HasSuffix(got, truncationMarker) {
		t.Error("truncated comment is missing the warning marker")
	}
}

func TestTruncateCommentShortUntouched(t *testing.T) {
	if got := truncateComment("short"); got != "short" {
		t.Errorf("truncateComment(short) = %q", got)
	}
}
