package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/elci-group/snakepit/internal/lifecycle"
)

// historyModel is the GORM row for one archived lifecycle record. Log and
// result collections are stored as JSON text.
type historyModel struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"index;size:255"`
	Version   string `gorm:"size:64"`
	Status    string `gorm:"index;size:32"`
	SandboxID string `gorm:"size:255"`

	IngestTime  time.Time
	TestTime    time.Time
	InstallTime time.Time
	ArchivedAt  time.Time `gorm:"index"`

	ErrorLog          string `gorm:"type:text"`
	SuccessLog        string `gorm:"type:text"`
	ValidationResults string `gorm:"type:text"`
	Dependencies      string `gorm:"type:text"`
}

func (historyModel) TableName() string { return "history" }

// Append stores one archived entry, then discards the oldest rows beyond the
// configured cap.
func (h *HistoryDB) Append(entry *lifecycle.HistoryEntry) error {
	row, err := toModel(entry)
	if err != nil {
		return err
	}
	if err := h.db.Create(row).Error; err != nil {
		return fmt.Errorf("appending history entry: %w", err)
	}
	return h.enforceCap()
}

// ByPackage returns entries for a package name, newest first.
func (h *HistoryDB) ByPackage(name string) ([]*lifecycle.HistoryEntry, error) {
	var rows []historyModel
	if err := h.db.Where("name = ?", name).Order("id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying history for %s: %w", name, err)
	}
	return fromModels(rows)
}

// ByStatus returns entries with a final status, newest first.
func (h *HistoryDB) ByStatus(status lifecycle.Status) ([]*lifecycle.HistoryEntry, error) {
	var rows []historyModel
	if err := h.db.Where("status = ?", string(status)).Order("id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying history by status %s: %w", status, err)
	}
	return fromModels(rows)
}

// Recent returns up to limit entries, newest first.
func (h *HistoryDB) Recent(limit int) ([]*lifecycle.HistoryEntry, error) {
	var rows []historyModel
	if err := h.db.Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying recent history: %w", err)
	}
	return fromModels(rows)
}

// enforceCap deletes the oldest rows once the table exceeds MaxEntries.
func (h *HistoryDB) enforceCap() error {
	if h.maxEntries <= 0 {
		return nil
	}
	var count int64
	if err := h.db.Model(&historyModel{}).Count(&count).Error; err != nil {
		return fmt.Errorf("counting history rows: %w", err)
	}
	excess := count - int64(h.maxEntries)
	if excess <= 0 {
		return nil
	}
	var ids []uint
	if err := h.db.Model(&historyModel{}).Order("id ASC").Limit(int(excess)).Pluck("id", &ids).Error; err != nil {
		return fmt.Errorf("selecting oldest history rows: %w", err)
	}
	if err := h.db.Delete(&historyModel{}, ids).Error; err != nil {
		return fmt.Errorf("pruning history rows: %w", err)
	}
	return nil
}

func toModel(e *lifecycle.HistoryEntry) (*historyModel, error) {
	errorLog, err := json.Marshal(e.ErrorLog)
	if err != nil {
		return nil, fmt.Errorf("encoding error log: %w", err)
	}
	successLog, err := json.Marshal(e.SuccessLog)
	if err != nil {
		return nil, fmt.Errorf("encoding success log: %w", err)
	}
	results, err := json.Marshal(e.ValidationResults)
	if err != nil {
		return nil, fmt.Errorf("encoding validation results: %w", err)
	}
	deps, err := json.Marshal(e.Dependencies)
	if err != nil {
		return nil, fmt.Errorf("encoding dependencies: %w", err)
	}
	return &historyModel{
		Name:              e.Name,
		Version:           e.Version,
		Status:            string(e.Status),
		SandboxID:         e.SandboxID,
		IngestTime:        e.IngestTime,
		TestTime:          e.TestTime,
		InstallTime:       e.InstallTime,
		ArchivedAt:        e.ArchivedAt,
		ErrorLog:          string(errorLog),
		SuccessLog:        string(successLog),
		ValidationResults: string(results),
		Dependencies:      string(deps),
	}, nil
}

func fromModel(row historyModel) (*lifecycle.HistoryEntry, error) {
	entry := &lifecycle.HistoryEntry{
		Name:        row.Name,
		Version:     row.Version,
		Status:      lifecycle.Status(row.Status),
		SandboxID:   row.SandboxID,
		IngestTime:  row.IngestTime,
		TestTime:    row.TestTime,
		InstallTime: row.InstallTime,
		ArchivedAt:  row.ArchivedAt,
	}
	if row.ErrorLog != "" {
		if err := json.Unmarshal([]byte(row.ErrorLog), &entry.ErrorLog); err != nil {
			return nil, fmt.Errorf("decoding error log: %w", err)
		}
	}
	if row.SuccessLog != "" {
		if err := json.Unmarshal([]byte(row.SuccessLog), &entry.SuccessLog); err != nil {
			return nil, fmt.Errorf("decoding success log: %w", err)
		}
	}
	if row.ValidationResults != "" {
		if err := json.Unmarshal([]byte(row.ValidationResults), &entry.ValidationResults); err != nil {
			return nil, fmt.Errorf("decoding validation results: %w", err)
		}
	}
	if row.Dependencies != "" {
		if err := json.Unmarshal([]byte(row.Dependencies), &entry.Dependencies); err != nil {
			return nil, fmt.Errorf("decoding dependencies: %w", err)
		}
	}
	return entry, nil
}

func fromModels(rows []historyModel) ([]*lifecycle.HistoryEntry, error) {
	entries := make([]*lifecycle.HistoryEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := fromModel(row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// compile-time interface check
var _ lifecycle.HistoryStore = (*HistoryDB)(nil)
