package lifecycle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/elci-group/snakepit/internal/sandbox"
	"github.com/elci-group/snakepit/internal/validation"
)

type fakeProvisioner struct {
	mu         sync.Mutex
	createErr  error
	destroyErr error
	created    []string
	destroyed  []string
	programs   map[string]string
}

func (f *fakeProvisioner) Backend() sandbox.Backend { return sandbox.BackendVenv }

func (f *fakeProvisioner) Create(_ context.Context, sb *sandbox.Sandbox, program string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, sb.ID)
	if f.programs == nil {
		f.programs = make(map[string]string)
	}
	f.programs[sb.ID] = program
	return nil
}

func (f *fakeProvisioner) Run(context.Context, *sandbox.Sandbox, time.Duration) (*sandbox.RunResult, error) {
	return &sandbox.RunResult{}, nil
}

func (f *fakeProvisioner) Destroy(_ context.Context, sb *sandbox.Sandbox) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = append(f.destroyed, sb.ID)
	return f.destroyErr
}

type fakeRunner struct {
	result *validation.Result
	err    error
}

func (f *fakeRunner) Validate(context.Context, *sandbox.Sandbox, validation.Level) (*validation.Result, error) {
	return f.result, f.err
}

type fakeInstaller struct {
	mu     sync.Mutex
	specs  []string
	stderr string
	err    error
	delay  time.Duration
}

func (f *fakeInstaller) Install(ctx context.Context, spec string) (string, error) {
	f.mu.Lock()
	f.specs = append(f.specs, spec)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.stderr, f.err
}

type memHistory struct {
	mu      sync.Mutex
	entries []*HistoryEntry
}

func (m *memHistory) Append(e *HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memHistory) ByPackage(name string) ([]*HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*HistoryEntry
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].Name == name {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

func (m *memHistory) ByStatus(status Status) ([]*HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*HistoryEntry
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].Status == status {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

func (m *memHistory) Recent(limit int) ([]*HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*HistoryEntry
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

type fixture struct {
	controller  *Controller
	provisioner *fakeProvisioner
	runner      *fakeRunner
	installer   *fakeInstaller
	history     *memHistory
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		provisioner: &fakeProvisioner{},
		runner: &fakeRunner{result: &validation.Result{
			Passed: true,
			Score:  1.0,
			TestResults: map[string]string{
				"basic_import": "pass",
			},
		}},
		installer: &fakeInstaller{},
		history:   &memHistory{},
	}
	opts := Options{
		Provisioner: f.provisioner,
		Generator:   validation.NewGenerator(0, 0),
		Validator:   f.runner,
		Installer:   f.installer,
		History:     f.history,
		SandboxRoot: t.TempDir(),
		Level:       validation.LevelStandard,
	}
	if mutate != nil {
		mutate(&opts)
	}
	f.controller = NewController(opts)
	return f
}

func TestHandlePackage_FullPipeline(t *testing.T) {
	f := newFixture(t, nil)

	conscripted, err := f.controller.HandlePackage(context.Background(), "flask", "3.0.0", "")
	if err != nil {
		t.Fatalf("HandlePackage: %v", err)
	}
	if !conscripted {
		t.Fatal("conscripted = false, want true")
	}

	if got := f.installer.specs; len(got) != 1 || got[0] != "flask==3.0.0" {
		t.Errorf("installer specs = %v, want [flask==3.0.0]", got)
	}
	if len(f.provisioner.created) != 1 || len(f.provisioner.destroyed) != 1 {
		t.Errorf("created=%v destroyed=%v, want one each", f.provisioner.created, f.provisioner.destroyed)
	}
	if len(f.controller.ListActive()) != 0 {
		t.Error("active set not empty after pipeline")
	}

	entries, _ := f.history.ByPackage("flask")
	if len(entries) != 1 {
		t.Fatalf("history entries = %d, want 1", len(entries))
	}
	if entries[0].Status != StatusConscripted {
		t.Errorf("archived status = %s, want conscripted", entries[0].Status)
	}
	if entries[0].ValidationResults["basic_import"] != "pass" {
		t.Errorf("validation results not archived: %v", entries[0].ValidationResults)
	}
}

func TestHandlePackage_IngestFailureDestroysSandbox(t *testing.T) {
	f := newFixture(t, nil)
	f.provisioner.createErr = errors.New("image build failed")

	conscripted, err := f.controller.HandlePackage(context.Background(), "badpkg", "", "")
	if err == nil {
		t.Fatal("expected ingest error")
	}
	if conscripted {
		t.Error("conscripted = true after ingest failure")
	}
	if len(f.installer.specs) != 0 {
		t.Error("installer invoked after ingest failure")
	}
	if len(f.provisioner.destroyed) != 1 {
		t.Errorf("destroyed = %v, want sandbox torn down", f.provisioner.destroyed)
	}

	entries, _ := f.history.ByPackage("badpkg")
	if len(entries) != 1 {
		t.Fatalf("history entries = %d, want 1", len(entries))
	}
	if entries[0].Status != StatusDestroyed {
		t.Errorf("archived status = %s, want destroyed", entries[0].Status)
	}
	joined := strings.Join(entries[0].ErrorLog, "\n")
	if !strings.Contains(joined, "sandbox creation failed") {
		t.Errorf("error log missing creation failure: %q", joined)
	}
}

func TestHandlePackage_ValidationFailureSkipsInstall(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.result = &validation.Result{Passed: false, Score: 0.4}

	conscripted, err := f.controller.HandlePackage(context.Background(), "flaky", "", "")
	if err != nil {
		t.Fatalf("HandlePackage: %v", err)
	}
	if conscripted {
		t.Error("conscripted = true, want false")
	}
	if len(f.installer.specs) != 0 {
		t.Error("installer invoked for failed validation")
	}
	if len(f.provisioner.destroyed) != 1 {
		t.Error("sandbox not destroyed after failed validation")
	}
}

func TestTestCollaborate_ArchivesRawEvidence(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.result = &validation.Result{
		Passed:      true,
		Score:       1.0,
		ExitCode:    0,
		Stdout:      "PASS basic_import: import successful\nScore: 1.00 (1/1 tests passed)\n",
		Stderr:      "DeprecationWarning: old API\n",
		TestResults: map[string]string{"basic_import": "pass"},
		Warnings:    []string{"warning: no changelog entry found"},
	}

	conscripted, err := f.controller.HandlePackage(context.Background(), "requests", "2.31.0", "")
	if err != nil {
		t.Fatalf("HandlePackage: %v", err)
	}
	if !conscripted {
		t.Fatal("conscripted = false, want true")
	}

	entries, _ := f.history.ByPackage("requests")
	if len(entries) != 1 {
		t.Fatalf("history entries = %d, want 1", len(entries))
	}
	got := entries[0].ValidationResults
	if !strings.Contains(got["stdout"], "Score: 1.00") {
		t.Errorf("stdout not archived: %q", got["stdout"])
	}
	if !strings.Contains(got["stderr"], "DeprecationWarning") {
		t.Errorf("stderr not archived: %q", got["stderr"])
	}
	if got["score"] != "1.00" {
		t.Errorf("score = %q, want 1.00", got["score"])
	}
	if got["exit_code"] != "0" {
		t.Errorf("exit_code = %q, want 0", got["exit_code"])
	}
	joined := strings.Join(entries[0].ErrorLog, "\n")
	if !strings.Contains(joined, "no changelog entry found") {
		t.Errorf("warnings not folded into the record: %q", joined)
	}
}

func TestTestCollaborate_ValidatorErrorMeansFailed(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.result = nil
	f.runner.err = errors.New("sandbox vanished")

	if err := f.controller.Ingest(context.Background(), "ghost", "", ""); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	approved, err := f.controller.TestCollaborate(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("TestCollaborate: %v", err)
	}
	if approved {
		t.Error("approved = true after validator error")
	}
	status, ok := f.controller.PackageStatus("ghost")
	if !ok || status != StatusFailed {
		t.Errorf("status = %s (%v), want failed", status, ok)
	}
}

func TestConscriptInstall_RequiresApproval(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.controller.Ingest(context.Background(), "eager", "", ""); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	_, err := f.controller.ConscriptInstall(context.Background(), "eager")
	if !errors.Is(err, ErrNotApproved) {
		t.Errorf("err = %v, want ErrNotApproved", err)
	}
	if len(f.installer.specs) != 0 {
		t.Error("installer invoked without approval")
	}
}

func TestConscriptInstall_InstallFailureKeepsSandbox(t *testing.T) {
	f := newFixture(t, nil)
	f.installer.err = errors.New("exit status 1")
	f.installer.stderr = "no matching distribution"

	if err := f.controller.Ingest(context.Background(), "flask", "", ""); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if _, err := f.controller.TestCollaborate(context.Background(), "flask"); err != nil {
		t.Fatalf("TestCollaborate: %v", err)
	}

	conscripted, err := f.controller.ConscriptInstall(context.Background(), "flask")
	if err != nil {
		t.Fatalf("ConscriptInstall: %v", err)
	}
	if conscripted {
		t.Error("conscripted = true, want false")
	}
	status, ok := f.controller.PackageStatus("flask")
	if !ok {
		t.Fatal("sandbox destroyed after install failure, want kept for inspection")
	}
	if status != StatusFailed {
		t.Errorf("status = %s, want failed", status)
	}
	records := f.controller.ListActive()
	joined := strings.Join(records[0].ErrorLog, "\n")
	if !strings.Contains(joined, "no matching distribution") {
		t.Errorf("installer stderr not recorded: %q", joined)
	}
}

func TestConscriptInstall_DryRun(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.DryRun = true })

	conscripted, err := f.controller.HandlePackage(context.Background(), "flask", "3.0.0", "")
	if err != nil {
		t.Fatalf("HandlePackage: %v", err)
	}
	if !conscripted {
		t.Fatal("dry run must report success")
	}
	if len(f.installer.specs) != 0 {
		t.Error("installer invoked in dry run")
	}

	entries, _ := f.history.ByStatus(StatusConscripted)
	if len(entries) != 1 {
		t.Fatalf("conscripted history entries = %d, want 1", len(entries))
	}
}

func TestKillDestroy_InactivePackage(t *testing.T) {
	f := newFixture(t, nil)
	if f.controller.KillDestroy(context.Background(), "never-seen") {
		t.Error("destroy of inactive package reported success")
	}
	if len(f.history.entries) != 0 {
		t.Error("inactive destroy produced a history entry")
	}
}

func TestKillDestroy_Idempotent(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.controller.Ingest(context.Background(), "once", "", ""); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if !f.controller.KillDestroy(context.Background(), "once") {
		t.Error("first destroy failed")
	}
	if f.controller.KillDestroy(context.Background(), "once") {
		t.Error("second destroy reported success")
	}
	if len(f.provisioner.destroyed) != 1 {
		t.Errorf("backend destroy calls = %d, want 1", len(f.provisioner.destroyed))
	}
	if len(f.history.entries) != 1 {
		t.Errorf("history entries = %d, want 1", len(f.history.entries))
	}
}

func TestKillDestroy_TeardownErrorStillArchives(t *testing.T) {
	f := newFixture(t, nil)
	f.provisioner.destroyErr = errors.New("image in use")

	if err := f.controller.Ingest(context.Background(), "stuck", "", ""); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if f.controller.KillDestroy(context.Background(), "stuck") {
		t.Error("dirty teardown reported clean")
	}
	if len(f.controller.ListActive()) != 0 {
		t.Error("record left in active set after teardown failure")
	}
	entries, _ := f.history.ByPackage("stuck")
	if len(entries) != 1 {
		t.Fatalf("history entries = %d, want 1", len(entries))
	}
}

func TestIngest_ReplacesActiveSandbox(t *testing.T) {
	f := newFixture(t, nil)

	if err := f.controller.Ingest(context.Background(), "dup", "1.0", ""); err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	if err := f.controller.Ingest(context.Background(), "dup", "2.0", ""); err != nil {
		t.Fatalf("second Ingest: %v", err)
	}

	if len(f.provisioner.destroyed) != 1 {
		t.Errorf("destroyed = %v, want old sandbox torn down", f.provisioner.destroyed)
	}
	records := f.controller.ListActive()
	if len(records) != 1 {
		t.Fatalf("active records = %d, want 1", len(records))
	}
	if records[0].Version != "2.0" {
		t.Errorf("active version = %s, want 2.0", records[0].Version)
	}
}

func TestIngest_CustomProgramAppended(t *testing.T) {
	f := newFixture(t, nil)
	custom := "def test_custom():\n    return True, \"ok\"\n"

	if err := f.controller.Ingest(context.Background(), "custom-pkg", "", custom); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	records := f.controller.ListActive()
	program := f.provisioner.programs[records[0].SandboxID]
	if !strings.Contains(program, "def test_custom():") {
		t.Error("custom fragment missing from generated program")
	}
}

func TestHandlePackage_TimeoutReturnsPromptly(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.result = &validation.Result{Passed: false, TimedOut: true, ExitCode: -1}

	start := time.Now()
	conscripted, err := f.controller.HandlePackage(context.Background(), "slowpkg", "", "")
	if err != nil {
		t.Fatalf("HandlePackage: %v", err)
	}
	if conscripted {
		t.Error("timed-out validation must not conscript")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("pipeline took %s, want prompt failure", elapsed)
	}

	entries, _ := f.history.ByPackage("slowpkg")
	if len(entries) != 1 {
		t.Fatalf("history entries = %d, want 1", len(entries))
	}
	joined := strings.Join(entries[0].ErrorLog, "\n")
	if !strings.Contains(joined, "timed out") {
		t.Errorf("timeout not recorded: %q", joined)
	}
}

func TestCleanupAll(t *testing.T) {
	f := newFixture(t, nil)
	for _, name := range []string{"a", "b", "c"} {
		if err := f.controller.Ingest(context.Background(), name, "", ""); err != nil {
			t.Fatalf("Ingest %s: %v", name, err)
		}
	}

	f.controller.CleanupAll(context.Background())

	if len(f.controller.ListActive()) != 0 {
		t.Error("active set not empty after CleanupAll")
	}
	if len(f.provisioner.destroyed) != 3 {
		t.Errorf("destroyed = %d, want 3", len(f.provisioner.destroyed))
	}
}
