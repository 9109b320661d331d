// Package grader defines the core types and helpers shared across the online
// grading service: UUID identities, the service error code taxonomy, process
// configuration, logging setup, retry helpers, and the bounded task runner.
// Concrete subsystems live in subpackages: store (Redis object repository),
// filestore (uploaded file blobs), sandbox (limited subprocess execution),
// grader (test graders), reporter (grade reporters such as Moodle), engine
// (run state machine and worker pool) and rest_api (HTTP facade).
// It is a foundational package that other components build upon.
package grader
