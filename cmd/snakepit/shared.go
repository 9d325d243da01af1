package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	goutils "github.com/jkaninda/go-utils"

	"github.com/elci-group/snakepit/internal/config"
	"github.com/elci-group/snakepit/internal/installer"
	"github.com/elci-group/snakepit/internal/lifecycle"
	"github.com/elci-group/snakepit/internal/observability"
	"github.com/elci-group/snakepit/internal/sandbox"
	"github.com/elci-group/snakepit/internal/storage"
	"github.com/elci-group/snakepit/internal/validation"
	"github.com/elci-group/snakepit/internal/workspace"
)

// SharedComponents holds all initialized subsystems the commands require.
// Built once by initShared, torn down by Cleanup.
type SharedComponents struct {
	Config     *config.Config
	Logger     *slog.Logger
	Workspace  *workspace.Workspace
	History    *storage.HistoryDB
	Metrics    *observability.Collector // nil = metrics disabled
	Backend    sandbox.Backend
	Controller *lifecycle.Controller

	cleanups []func()
}

// Cleanup runs all deferred cleanup functions in reverse order.
func (sc *SharedComponents) Cleanup() {
	for i := len(sc.cleanups) - 1; i >= 0; i-- {
		sc.cleanups[i]()
	}
}

func (sc *SharedComponents) addCleanup(fn func()) {
	sc.cleanups = append(sc.cleanups, fn)
}

// loadConfig loads configuration, preferring the --config flag over the
// SNAKEPIT_CONFIG env var.
func loadConfig() (*config.Config, error) {
	return config.Load(goutils.Env("SNAKEPIT_CONFIG", configPath))
}

// newLogger builds the JSON logger at the configured level.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// initShared performs the common initialization shared by all pipeline
// commands. Callers must call sc.Cleanup() when done.
func initShared(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*SharedComponents, error) {
	sc := &SharedComponents{
		Config: cfg,
		Logger: logger,
	}

	// Workspace.
	ws, err := initWorkspace(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing workspace: %w", err)
	}
	if err := ws.EnsureAll(); err != nil {
		return nil, fmt.Errorf("creating workspace directories: %w", err)
	}
	sc.Workspace = ws
	logger.Debug("workspace initialized", slog.String("root", ws.Root))

	// History store.
	history, err := initHistory(cfg, ws, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing history store: %w", err)
	}
	sc.History = history
	sc.addCleanup(func() {
		if err := history.Close(); err != nil {
			logger.Error("closing history store", slog.String("error", err.Error()))
		}
	})

	// Metrics.
	if cfg.Metrics {
		sc.Metrics = observability.NewCollector()
		logger.Debug("metrics collector initialized")
	}

	// Sandbox backend.
	backend, engine := sandbox.Detect(ctx, cfg.Sandbox.Engine, logger)
	sc.Backend = backend
	var provisioner sandbox.Provisioner
	switch backend {
	case sandbox.BackendContainer:
		provisioner = sandbox.NewContainerProvisioner(engine, cfg.Sandbox.Image, cfg.BuildTimeout(), logger)
	default:
		provisioner = sandbox.NewVenvProvisioner(cfg.Sandbox.Python, cfg.BuildTimeout(), logger)
	}
	logger.Debug("sandbox backend selected",
		slog.String("backend", string(backend)),
		slog.String("engine", engine),
	)

	// Validation pipeline.
	level, err := validation.ParseLevel(cfg.Validation.Level)
	if err != nil {
		sc.Cleanup()
		return nil, err
	}
	generator := validation.NewGenerator(cfg.Validation.PassThreshold, cfg.Validation.ImportTimeBudgetS)
	validator := validation.NewValidator(provisioner, cfg.ValidationTimeout(), logger)
	inst := installer.NewCommandInstaller(cfg.Installer.Binary, cfg.InstallTimeout(), logger)

	sc.Controller = lifecycle.NewController(lifecycle.Options{
		Provisioner: provisioner,
		Generator:   generator,
		Validator:   validator,
		Installer:   inst,
		History:     history,
		Metrics:     sc.Metrics,
		SandboxRoot: ws.SandboxesDir(),
		Level:       level,
		DryRun:      cfg.Installer.DryRun,
		Logger:      logger,
	})

	return sc, nil
}

// initWorkspace creates the workspace, resolving the root from config or
// defaults.
func initWorkspace(cfg *config.Config) (*workspace.Workspace, error) {
	if cfg.Workspace == "" {
		return workspace.Default()
	}
	return workspace.New(cfg.Workspace)
}

// initHistory opens the configured history backend, deriving the SQLite path
// from the workspace when not set explicitly.
func initHistory(cfg *config.Config, ws *workspace.Workspace, logger *slog.Logger) (*storage.HistoryDB, error) {
	sqlitePath := cfg.History.SQLitePath
	if sqlitePath == "" {
		sqlitePath = ws.DatabasePath()
	}
	return storage.Open(storage.Config{
		Driver:      cfg.History.Driver,
		SQLitePath:  sqlitePath,
		PostgresDSN: cfg.History.PostgresDSN,
		MaxEntries:  cfg.History.MaxEntries,
	}, logger)
}

// readCustomProgram loads a caller-supplied Python test fragment.
func readCustomProgram(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading custom test program %s: %w", path, err)
	}
	return string(data), nil
}

// splitSpec splits "name==version" into its parts; a bare name has an empty
// version.
func splitSpec(spec string) (name, version string) {
	for i := 0; i+1 < len(spec); i++ {
		if spec[i] == '=' && spec[i+1] == '=' {
			return spec[:i], spec[i+2:]
		}
	}
	return spec, ""
}
