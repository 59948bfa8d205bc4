package app

import (
	"time"

	"github.com/google/uuid"
)

// OperationServe is the long-running stdio server. Its stdout carries responses, so its
// log lines go to the log file only.
const OperationServe = "serve"

// Operation identifies one CLI invocation. ID tags every log line of the run.
type Operation struct {
	ID        string
	Name      string
	StartedAt time.Time
}

// NewOperation creates an operation named after the CLI command being run.
func NewOperation(name string, now time.Time) *Operation {
	return &Operation{
		ID:        now.UTC().Format("20060102T150405Z") + "-" + uuid.NewString()[:8],
		Name:      name,
		StartedAt: now.UTC(),
	}
}

// MirrorsToStderr reports whether log lines are also written to stderr.
func (op *Operation) MirrorsToStderr() bool {
	return op.Name != OperationServe
}
