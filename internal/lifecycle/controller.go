package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/elci-group/snakepit/internal/installer"
	"github.com/elci-group/snakepit/internal/observability"
	"github.com/elci-group/snakepit/internal/sandbox"
	"github.com/elci-group/snakepit/internal/validation"
)

var (
	// ErrNotActive is returned for operations on a package with no live
	// sandbox.
	ErrNotActive = errors.New("package is not active")

	// ErrNotApproved is returned when conscription is requested for a
	// package that has not passed validation.
	ErrNotApproved = errors.New("package is not approved")
)

// runner validates a provisioned sandbox. Satisfied by *validation.Validator.
type runner interface {
	Validate(ctx context.Context, sb *sandbox.Sandbox, level validation.Level) (*validation.Result, error)
}

// managed pairs an active record with its live sandbox.
type managed struct {
	record  *Record
	sandbox *sandbox.Sandbox
}

// Options configures a Controller. Provisioner, Generator and Validator are
// required; History and Metrics may be nil.
type Options struct {
	Provisioner sandbox.Provisioner
	Generator   *validation.Generator
	Validator   runner
	Installer   installer.Installer
	History     HistoryStore
	Metrics     *observability.Collector

	// SandboxRoot is the directory sandbox workspaces are created under.
	SandboxRoot string

	// Level selects the validation depth for every package.
	Level validation.Level

	// DryRun makes conscription record success without invoking the
	// installer.
	DryRun bool

	Logger *slog.Logger
}

// Controller owns the active package set and drives each package through the
// pipeline. Safe for concurrent use.
type Controller struct {
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	active map[string]*managed
}

// NewController creates a Controller from options.
func NewController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Controller{
		opts:   opts,
		logger: logger,
		active: make(map[string]*managed),
	}
}

// Ingest provisions an isolated sandbox for the package and writes the
// generated test program into it. An already-active package is destroyed
// first so the new sandbox replaces it.
func (c *Controller) Ingest(ctx context.Context, name, version, customProgram string) error {
	c.mu.Lock()
	_, exists := c.active[name]
	c.mu.Unlock()
	if exists {
		c.logger.Warn("package already active, replacing sandbox", slog.String("package", name))
		c.KillDestroy(ctx, name)
	}

	start := time.Now()
	record := NewRecord(name, version)
	record.Status = StatusIngesting
	record.IngestTime = start
	record.CustomTestProgram = customProgram

	id := name + "-" + uuid.NewString()[:8]
	record.SandboxID = id
	sb := &sandbox.Sandbox{
		ID:          id,
		Dir:         filepath.Join(c.opts.SandboxRoot, id),
		PackageName: name,
		PackageSpec: record.Spec(),
	}

	c.mu.Lock()
	c.active[name] = &managed{record: record, sandbox: sb}
	c.opts.Metrics.SetActivePackages(len(c.active))
	c.mu.Unlock()

	c.logger.Info("ingesting package",
		slog.String("package", name),
		slog.String("sandbox", id),
		slog.String("backend", string(c.opts.Provisioner.Backend())),
	)

	var program string
	if customProgram != "" {
		program = c.opts.Generator.Generate(name, c.opts.Level, customProgram)
	} else {
		program = c.opts.Generator.Generate(name, c.opts.Level)
	}

	if err := c.opts.Provisioner.Create(ctx, sb, program); err != nil {
		record.Fail(fmt.Sprintf("sandbox creation failed: %v", err))
		c.opts.Metrics.RecordSandboxBuild(string(c.opts.Provisioner.Backend()), "failed")
		return fmt.Errorf("ingesting %s: %w", name, err)
	}

	record.Status = StatusTesting
	record.SuccessLog = append(record.SuccessLog, "sandbox provisioned")
	c.opts.Metrics.RecordSandboxBuild(string(c.opts.Provisioner.Backend()), "built")
	c.opts.Metrics.RecordPhase("ingest", time.Since(start))
	return nil
}

// TestCollaborate runs the sandboxed test program and interprets its output.
// A passing run approves the package; everything else, including validator
// errors, moves it to failed. The returned bool reports approval.
func (c *Controller) TestCollaborate(ctx context.Context, name string) (bool, error) {
	m, ok := c.lookup(name)
	if !ok {
		return false, fmt.Errorf("testing %s: %w", name, ErrNotActive)
	}
	record := m.record

	start := time.Now()
	record.Status = StatusCollaborating
	record.TestTime = start

	c.logger.Info("testing package", slog.String("package", name), slog.String("sandbox", record.SandboxID))

	result, err := c.opts.Validator.Validate(ctx, m.sandbox, c.opts.Level)
	if err != nil {
		record.Fail(fmt.Sprintf("validation error: %v", err))
		c.opts.Metrics.RecordValidation(string(c.opts.Provisioner.Backend()), "error", 0)
		return false, nil
	}

	for test, outcome := range result.TestResults {
		record.ValidationResults[test] = outcome
	}
	record.ValidationResults["score"] = strconv.FormatFloat(result.Score, 'f', 2, 64)
	record.ValidationResults["exit_code"] = strconv.Itoa(result.ExitCode)
	record.ValidationResults["stdout"] = result.Stdout
	record.ValidationResults["stderr"] = result.Stderr
	record.ErrorLog = append(record.ErrorLog, result.Errors...)
	// Warning lines already carry their own marker text; keep them verbatim.
	record.ErrorLog = append(record.ErrorLog, result.Warnings...)
	for _, issue := range result.SecurityIssues {
		record.ErrorLog = append(record.ErrorLog, "security: "+issue)
		if category, _, found := strings.Cut(issue, ":"); found {
			c.opts.Metrics.RecordSecurityFinding(category)
		}
	}

	status := "failed"
	if result.Passed {
		record.Status = StatusApproved
		record.SuccessLog = append(record.SuccessLog, fmt.Sprintf("validation passed with score %.2f", result.Score))
		status = "passed"
	} else {
		reason := fmt.Sprintf("validation failed with score %.2f", result.Score)
		if result.TimedOut {
			reason = "validation timed out"
		}
		record.Fail(reason)
	}

	c.opts.Metrics.RecordValidation(string(c.opts.Provisioner.Backend()), status, result.Score)
	c.opts.Metrics.RecordPhase("test_collaborate", time.Since(start))
	return result.Passed, nil
}

// KillDestroy tears down the package's sandbox and archives its record. The
// record is always archived and removed from the active set, even when the
// backend teardown fails; the returned bool reports a clean teardown. A
// package with no live sandbox returns false.
func (c *Controller) KillDestroy(ctx context.Context, name string) bool {
	c.mu.Lock()
	m, ok := c.active[name]
	if ok {
		delete(c.active, name)
		c.opts.Metrics.SetActivePackages(len(c.active))
	}
	c.mu.Unlock()
	if !ok {
		c.logger.Warn("destroy requested for inactive package", slog.String("package", name))
		return false
	}

	start := time.Now()
	clean := true
	if err := c.opts.Provisioner.Destroy(ctx, m.sandbox); err != nil {
		c.logger.Error("sandbox teardown failed",
			slog.String("package", name),
			slog.String("sandbox", m.sandbox.ID),
			slog.Any("error", err),
		)
		m.record.ErrorLog = append(m.record.ErrorLog, fmt.Sprintf("teardown failed: %v", err))
		clean = false
	}

	// Conscripted packages keep their final status in the archive; every
	// other outcome ends as destroyed.
	if m.record.Status != StatusConscripted {
		m.record.Status = StatusDestroyed
	}

	if c.opts.History != nil {
		if err := c.opts.History.Append(snapshot(m.record, time.Now())); err != nil {
			c.logger.Error("archiving record failed", slog.String("package", name), slog.Any("error", err))
			clean = false
		}
	}

	c.opts.Metrics.RecordPhase("kill_destroy", time.Since(start))
	c.logger.Info("sandbox destroyed",
		slog.String("package", name),
		slog.String("sandbox", m.sandbox.ID),
		slog.Bool("clean", clean),
	)
	return clean
}

// ConscriptInstall installs an approved package into the persistent
// environment and destroys its sandbox. Only approved packages may be
// conscripted. Installer failure moves the record to failed and leaves the
// sandbox alive for inspection.
func (c *Controller) ConscriptInstall(ctx context.Context, name string) (bool, error) {
	m, ok := c.lookup(name)
	if !ok {
		return false, fmt.Errorf("conscripting %s: %w", name, ErrNotActive)
	}
	record := m.record
	if record.Status != StatusApproved {
		return false, fmt.Errorf("conscripting %s (status %s): %w", name, record.Status, ErrNotApproved)
	}

	start := time.Now()
	record.InstallTime = start

	if c.opts.DryRun {
		record.Status = StatusConscripted
		record.SuccessLog = append(record.SuccessLog, "dry run: install skipped")
		c.logger.Info("dry run, skipping install", slog.String("package", name))
		c.KillDestroy(ctx, name)
		return true, nil
	}

	c.logger.Info("conscripting package", slog.String("package", name), slog.String("spec", record.Spec()))

	stderr, err := c.opts.Installer.Install(ctx, record.Spec())
	if err != nil {
		reason := fmt.Sprintf("install failed: %v", err)
		if trimmed := strings.TrimSpace(stderr); trimmed != "" {
			reason = fmt.Sprintf("install failed: %v: %s", err, trimmed)
		}
		record.Fail(reason)
		return false, nil
	}

	record.Status = StatusConscripted
	record.SuccessLog = append(record.SuccessLog, "installed into persistent environment")
	c.opts.Metrics.RecordPhase("conscript_install", time.Since(start))
	c.KillDestroy(ctx, name)
	return true, nil
}

// HandlePackage runs the full pipeline for one package. Failed ingests and
// failed validations destroy the sandbox before returning; a failed install
// keeps it for inspection. The returned bool reports conscription.
func (c *Controller) HandlePackage(ctx context.Context, name, version, customProgram string) (bool, error) {
	if err := c.Ingest(ctx, name, version, customProgram); err != nil {
		c.KillDestroy(ctx, name)
		return false, err
	}

	approved, err := c.TestCollaborate(ctx, name)
	if err != nil {
		c.KillDestroy(ctx, name)
		return false, err
	}
	if !approved {
		c.KillDestroy(ctx, name)
		return false, nil
	}

	return c.ConscriptInstall(ctx, name)
}

// ListActive returns the records of all packages with a live sandbox.
func (c *Controller) ListActive() []*Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	records := make([]*Record, 0, len(c.active))
	for _, m := range c.active {
		records = append(records, m.record)
	}
	return records
}

// PackageStatus returns the status of an active package.
func (c *Controller) PackageStatus(name string) (Status, bool) {
	m, ok := c.lookup(name)
	if !ok {
		return "", false
	}
	return m.record.Status, true
}

// CleanupAll destroys every active sandbox.
func (c *Controller) CleanupAll(ctx context.Context) {
	c.mu.Lock()
	names := make([]string, 0, len(c.active))
	for name := range c.active {
		names = append(names, name)
	}
	c.mu.Unlock()

	for _, name := range names {
		c.KillDestroy(ctx, name)
	}
}

func (c *Controller) lookup(name string) (*managed, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.active[name]
	return m, ok
}
