package reporter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	log "log/slog"

	"github.com/sharedcode/grader"
)

// Extra Reporter entity fields admitted when mod is "moodle", with the
// defaults applied to absent or empty values.
var (
	MoodleExtraFields = []string{
		"moodle_asn_id", "moodle_respect_duedate", "moodle_only_higher",
		"moodle_prereq_id", "moodle_prereq_min",
	}
	MoodleExtraDefaults = map[string]string{
		"moodle_respect_duedate": "1",
		"moodle_only_higher":     "1",
		"moodle_prereq_id":       "0",
		"moodle_prereq_min":      "0",
	}
)

const maxCommentLen = 2000

const truncationMarker = "\nWARNING: Output Truncated"

// moodleReporter writes grades back to a Moodle assignment, enforcing the
// reporter's policy fields before filing.
type moodleReporter struct {
	cfg            grader.MoodleConfig
	asnID          int
	respectDuedate bool
	onlyHigher     bool
	prereqID       int
	prereqMin      float64

	now func() time.Time
}

func newMoodleReporter(cfg grader.MoodleConfig, fields map[string]string) (Reporter, error) {
	asnID, err := strconv.Atoi(fields["moodle_asn_id"])
	if err != nil {
		return nil, grader.Error{Code: grader.MalformedInput,
			Err: fmt.Errorf("bad moodle_asn_id %q: %w", fields["moodle_asn_id"], err)}
	}
	r := &moodleReporter{
		cfg:            cfg,
		asnID:          asnID,
		respectDuedate: boolField(fields, "moodle_respect_duedate"),
		onlyHigher:     boolField(fields, "moodle_only_higher"),
		now:            time.Now,
	}
	if r.prereqID, err = strconv.Atoi(defaulted(fields, "moodle_prereq_id")); err != nil {
		return nil, grader.Error{Code: grader.MalformedInput,
			Err: fmt.Errorf("bad moodle_prereq_id %q: %w", fields["moodle_prereq_id"], err)}
	}
	if r.prereqMin, err = strconv.ParseFloat(defaulted(fields, "moodle_prereq_min"), 64); err != nil {
		return nil, grader.Error{Code: grader.MalformedInput,
			Err: fmt.Errorf("bad moodle_prereq_min %q: %w", fields["moodle_prereq_min"], err)}
	}
	return r, nil
}

func defaulted(fields map[string]string, key string) string {
	if v := fields[key]; v != "" {
		return v
	}
	return MoodleExtraDefaults[key]
}

func boolField(fields map[string]string, key string) bool {
	n, err := strconv.Atoi(defaulted(fields, key))
	if err != nil {
		return true
	}
	return n != 0
}

func (r *moodleReporter) File(ctx context.Context, usr Recipient, grade float64, comment string) Outcome {
	if usr.AuthMod != ModMoodle {
		return rejected(grader.Error{Code: grader.Forbidden,
			Err: fmt.Errorf("user authmod %q, moodle reporter requires %q", usr.AuthMod, ModMoodle)})
	}
	usrID, err := strconv.Atoi(usr.MoodleID)
	if err != nil {
		return rejected(grader.Error{Code: grader.MalformedInput,
			Err: fmt.Errorf("bad moodle_id %q: %w", usr.MoodleID, err)})
	}

	ws, err := dialWS(ctx, r.cfg)
	if err != nil {
		return rejected(err)
	}

	if r.respectDuedate {
		due, err := ws.assignmentDueDate(ctx, r.asnID)
		if err != nil {
			return rejected(err)
		}
		// Zero means the assignment has no due date.
		if due > 0 && r.now().Unix() > due {
			return rejected(grader.Error{Code: grader.DueDatePassed,
				Err: fmt.Errorf("due date %s has passed, no grade written",
					time.Unix(due, 0).Format(time.RFC3339))})
		}
	}

	if r.prereqID != 0 && r.prereqMin != 0 {
		prereq, found, err := ws.latestGrade(ctx, r.prereqID, usrID)
		if err != nil {
			return rejected(err)
		}
		if !found {
			return rejected(grader.Error{Code: grader.PrereqMissing,
				Err: fmt.Errorf("no grade on prerequisite assignment %d, no grade written", r.prereqID)})
		}
		if prereq < r.prereqMin {
			return rejected(grader.Error{Code: grader.PrereqNotMet,
				Err: fmt.Errorf("prerequisite assignment %d grade %.2f is below required %.2f, no grade written",
					r.prereqID, prereq, r.prereqMin)})
		}
	}

	if r.onlyHigher {
		prev, found, err := ws.latestGrade(ctx, r.asnID, usrID)
		if err != nil {
			return rejected(err)
		}
		if found && grade < prev {
			return rejected(grader.Error{Code: grader.NotHigher,
				Err: fmt.Errorf("previous grade %.2f is greater than %.2f, no grade written", prev, grade)})
		}
	}

	comment = truncateComment(comment)
	if err := ws.saveGrade(ctx, r.asnID, usrID, grade, comment); err != nil {
		log.Error("moodle save_grade failed", "assignment", r.asnID, "user", usrID, "error", err)
		return rejected(err)
	}
	log.Info("grade filed with moodle", "assignment", r.asnID, "user", usrID, "grade", grade)
	return accepted("grade %.2f filed with moodle assignment %d", grade, r.asnID)
}

// truncateComment bounds the feedback comment to 2000 bytes, marker included.
func truncateComment(comment string) string {
	max := maxCommentLen - len(truncationMarker)
	if len(comment) <= max {
		return comment
	}
	return comment[:max] + truncationMarker
}
