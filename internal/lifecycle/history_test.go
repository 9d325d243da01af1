package lifecycle

import (
	"testing"
	"time"
)

func TestSnapshot(t *testing.T) {
	r := NewRecord("requests", "2.31.0")
	r.Status = StatusConscripted
	r.SandboxID = "requests-abc12345"
	r.ErrorLog = []string{"warning: no version information found"}
	r.SuccessLog = []string{"sandbox provisioned"}
	r.ValidationResults["basic_import"] = "pass"
	r.Dependencies = []string{"urllib3", "certifi"}

	at := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	e := snapshot(r, at)

	if e.Name != "requests" || e.Status != StatusConscripted {
		t.Errorf("entry = %s/%s, want requests/%s", e.Name, e.Status, StatusConscripted)
	}
	if !e.ArchivedAt.Equal(at) {
		t.Errorf("ArchivedAt = %v, want %v", e.ArchivedAt, at)
	}
	if len(e.Dependencies) != 2 || e.Dependencies[0] != "urllib3" {
		t.Errorf("Dependencies = %v", e.Dependencies)
	}

	// The snapshot must not alias the live record's collections.
	r.Dependencies[0] = "mutated"
	r.ValidationResults["basic_import"] = "fail"
	if e.Dependencies[0] != "urllib3" {
		t.Error("snapshot aliases the record's dependency slice")
	}
	if e.ValidationResults["basic_import"] != "pass" {
		t.Error("snapshot aliases the record's validation results")
	}
}
