package lifecycle

import "time"

// HistoryEntry is the flattened snapshot of a Record archived when its
// sandbox is destroyed. Entries are append-only.
type HistoryEntry struct {
	Name              string
	Version           string
	Status            Status
	SandboxID         string
	IngestTime        time.Time
	TestTime          time.Time
	InstallTime       time.Time
	ArchivedAt        time.Time
	ErrorLog          []string
	SuccessLog        []string
	ValidationResults map[string]string
	Dependencies      []string
}

// HistoryStore persists archived lifecycle records.
type HistoryStore interface {
	// Append stores one archived entry. Stores may cap total entries by
	// discarding the oldest.
	Append(entry *HistoryEntry) error

	// ByPackage returns entries for a package name, newest first.
	ByPackage(name string) ([]*HistoryEntry, error)

	// ByStatus returns entries with a final status, newest first.
	ByStatus(status Status) ([]*HistoryEntry, error)

	// Recent returns up to limit entries, newest first.
	Recent(limit int) ([]*HistoryEntry, error)
}

// snapshot flattens a Record into an archive entry.
func snapshot(r *Record, at time.Time) *HistoryEntry {
	results := make(map[string]string, len(r.ValidationResults))
	for k, v := range r.ValidationResults {
		results[k] = v
	}
	return &HistoryEntry{
		Name:              r.Name,
		Version:           r.Version,
		Status:            r.Status,
		SandboxID:         r.SandboxID,
		IngestTime:        r.IngestTime,
		TestTime:          r.TestTime,
		InstallTime:       r.InstallTime,
		ArchivedAt:        at,
		ErrorLog:          append([]string(nil), r.ErrorLog...),
		SuccessLog:        append([]string(nil), r.SuccessLog...),
		ValidationResults: results,
		Dependencies:      append([]string(nil), r.Dependencies...),
	}
}
