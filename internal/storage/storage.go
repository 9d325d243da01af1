// Package storage persists archived lifecycle records using GORM. SQLite via
// glebarez/sqlite (pure Go, no CGO) is the default; PostgreSQL is available
// for shared deployments. All GORM usage is confined to this package, the
// lifecycle domain types remain ORM-free.
package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and configures the history backend.
type Config struct {
	Driver      string // sqlite or postgres
	SQLitePath  string
	PostgresDSN string

	// MaxEntries caps the number of retained history rows; older rows are
	// discarded on append. Zero keeps everything.
	MaxEntries int
}

// HistoryDB is a GORM-backed history store.
type HistoryDB struct {
	db         *gorm.DB
	maxEntries int
	logger     *slog.Logger
}

// Open connects to the configured backend and migrates the history table.
func Open(cfg Config, slogger *slog.Logger) (*HistoryDB, error) {
	gormLogger := logger.New(
		slogAdapter{slogger},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
	gormCfg := &gorm.Config{
		Logger:  gormLogger,
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	var db *gorm.DB
	var err error
	switch cfg.Driver {
	case DriverSQLite, "":
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite path is required")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0750); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		dsn := fmt.Sprintf("%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)", cfg.SQLitePath)
		db, err = gorm.Open(sqlite.Open(dsn), gormCfg)
	case DriverPostgres:
		db, err = gorm.Open(postgres.Open(cfg.PostgresDSN), gormCfg)
	default:
		return nil, fmt.Errorf("unknown history driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	if err := db.AutoMigrate(&historyModel{}); err != nil {
		return nil, fmt.Errorf("migrating history table: %w", err)
	}

	slogger.Info("history store opened",
		slog.String("driver", driverName(cfg.Driver)),
		slog.Int("max_entries", cfg.MaxEntries),
	)
	return &HistoryDB{db: db, maxEntries: cfg.MaxEntries, logger: slogger}, nil
}

// Close releases the underlying database connection.
func (h *HistoryDB) Close() error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func driverName(d string) string {
	if d == "" {
		return DriverSQLite
	}
	return d
}

// slogAdapter wraps *slog.Logger for GORM's logger.Writer interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (s slogAdapter) Printf(format string, args ...any) {
	s.logger.Info(fmt.Sprintf(format, args...))
}
