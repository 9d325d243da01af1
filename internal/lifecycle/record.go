// Package lifecycle drives third-party packages through the validation
// pipeline: ingest into an isolated sandbox, test and collaborate, destroy
// the sandbox, and conscript approved packages into the persistent
// environment.
package lifecycle

import "time"

// Status is the lifecycle state of a package under validation.
type Status string

const (
	StatusPending       Status = "pending"
	StatusIngesting     Status = "ingesting"
	StatusTesting       Status = "testing"
	StatusCollaborating Status = "collaborating"
	StatusFailed        Status = "failed"
	StatusApproved      Status = "approved"
	StatusConscripted   Status = "conscripted"
	StatusDestroyed     Status = "destroyed"
)

// Terminal reports whether no further transition leaves this status.
func (s Status) Terminal() bool {
	return s == StatusConscripted || s == StatusDestroyed
}

// Record tracks one package through the pipeline. A Record lives in the
// controller's active set from Ingest until KillDestroy archives it.
type Record struct {
	Name    string
	Version string
	Status  Status

	SandboxID string

	IngestTime  time.Time
	TestTime    time.Time
	InstallTime time.Time

	// CustomTestProgram holds caller-supplied Python appended to the
	// generated test program, empty for the stock program.
	CustomTestProgram string

	ErrorLog   []string
	SuccessLog []string

	// ValidationResults maps test names to "pass" or "fail" as parsed from
	// the program output.
	ValidationResults map[string]string

	Dependencies []string
}

// NewRecord creates a pending Record for a package.
func NewRecord(name, version string) *Record {
	return &Record{
		Name:              name,
		Version:           version,
		Status:            StatusPending,
		ValidationResults: make(map[string]string),
	}
}

// Spec returns the installer requirement string, pinning the version when one
// was requested.
func (r *Record) Spec() string {
	if r.Version == "" {
		return r.Name
	}
	return r.Name + "==" + r.Version
}

// Fail moves the record to failed and logs the reason.
func (r *Record) Fail(reason string) {
	r.Status = StatusFailed
	r.ErrorLog = append(r.ErrorLog, reason)
}
