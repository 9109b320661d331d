// Package engine ties the object repository, file store, testers and
// reporters together: typed entity repositories, the server facade the
// request layer calls, the run state machine and the worker pool that
// executes runs.
package engine

import (
	"github.com/sharedcode/grader/reporter"
	"github.com/sharedcode/grader/store"
)

// Entity kinds, namespacing the repository keys.
const (
	KindFile       = "file"
	KindReporter   = "reporter"
	KindAssignment = "assignment"
	KindTest       = "test"
	KindSubmission = "submission"
	KindRun        = "run"
	KindUser       = "user"
)

// Reference set fields.
const (
	RefFiles     = "files"
	RefReporters = "reporters"
)

// Entity-specific hash fields.
const (
	FieldKey        = "key"
	FieldName       = "name"
	FieldPath       = "path"
	FieldMod        = "mod"
	FieldEnv        = "env"
	FieldTester     = "tester"
	FieldMaxScore   = "maxscore"
	FieldPathScript = "path_script"
	FieldAssignment = "assignment"
	FieldTest       = "test"
	FieldSubmission = "submission"
	FieldStatus     = "status"
	FieldRetcode    = "retcode"
	FieldScore      = "score"
	FieldOutput     = "output"
	FieldUsername   = "username"
	FieldPassword   = "password"
	FieldToken      = "token"
	FieldAuthMod    = "authmod"
	FieldMoodleID   = "moodle_id"
)

var base = store.Schema(store.BaseSchema)

// Per-kind schemas. Create requires the exact field set; updates any subset.
var (
	FileSchema       = base.Extend(FieldKey, FieldName, FieldPath)
	ReporterSchema   = base.Extend(FieldMod)
	AssignmentSchema = base.Extend(FieldName, FieldEnv)
	TestSchema       = base.Extend(FieldName, FieldTester, FieldMaxScore, FieldPathScript, FieldAssignment)
	SubmissionSchema = base.Extend(FieldAssignment)
	RunSchema        = base.Extend(FieldTest, FieldSubmission, FieldStatus, FieldRetcode, FieldScore, FieldOutput)
	UserSchema       = base.Extend(FieldUsername, FieldPassword, FieldToken, FieldAuthMod, FieldMoodleID)
)

// MoodleReporterSchema admits the moodle policy fields on top of the base
// reporter schema. Only reporters with mod "moodle" use it.
var MoodleReporterSchema = ReporterSchema.Extend(reporter.MoodleExtraFields...)

// schemaFor returns the hash schema of an entity kind.
func schemaFor(kind string) store.Schema {
	switch kind {
	case KindFile:
		return FileSchema
	case KindReporter:
		return ReporterSchema
	case KindAssignment:
		return AssignmentSchema
	case KindTest:
		return TestSchema
	case KindSubmission:
		return SubmissionSchema
	case KindRun:
		return RunSchema
	case KindUser:
		return UserSchema
	}
	return base
}

// reporterSchemaFor picks the reporter schema by mod.
func reporterSchemaFor(mod string) store.Schema {
	if mod == reporter.ModMoodle {
		return MoodleReporterSchema
	}
	return ReporterSchema
}

// applyMoodleDefaults fills absent moodle policy fields with their defaults
// so the created record carries the full schema.
func applyMoodleDefaults(fields map[string]string) {
	for k, v := range reporter.MoodleExtraDefaults {
		if fields[k] == "" {
			fields[k] = v
		}
	}
}
