package sandbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// venvCreateTimeout bounds the interpreter bootstrap itself; the package
// install has its own (configurable) timeout.
const venvCreateTimeout = 60 * time.Second

// VenvProvisioner backs sandboxes with a fresh private virtualenv per
// validation attempt. It is the fallback when no container engine is
// available: weaker isolation (shared kernel and filesystem view), but the
// package never touches the host interpreter's site-packages.
type VenvProvisioner struct {
	python         string // host interpreter used to seed the venv
	installTimeout time.Duration
	logger         *slog.Logger
}

// NewVenvProvisioner creates a virtualenv-backed provisioner.
func NewVenvProvisioner(python string, installTimeout time.Duration, logger *slog.Logger) *VenvProvisioner {
	if python == "" {
		python = "python3"
	}
	if installTimeout == 0 {
		installTimeout = 120 * time.Second
	}
	if logger == nil {
		logger = discardLogger()
	}
	return &VenvProvisioner{
		python:         python,
		installTimeout: installTimeout,
		logger:         logger,
	}
}

// Backend returns BackendVenv.
func (p *VenvProvisioner) Backend() Backend { return BackendVenv }

// Create bootstraps a private interpreter under the sandbox directory,
// installs the package into it, and writes the test program alongside.
func (p *VenvProvisioner) Create(ctx context.Context, sb *Sandbox, testProgram string) error {
	if err := os.MkdirAll(sb.Dir, 0750); err != nil {
		return fmt.Errorf("creating sandbox dir: %w", err)
	}

	venvDir := filepath.Join(sb.Dir, "venv")

	p.logger.Info("creating venv sandbox",
		slog.String("sandbox", sb.ID),
		slog.String("package", sb.PackageSpec),
	)

	result := runCommand(ctx, venvCreateTimeout, "", p.python, "-m", "venv", venvDir)
	if result.TimedOut {
		return fmt.Errorf("venv creation timed out after %s", venvCreateTimeout)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("venv creation failed: %s", tail(result.Stderr, 2048))
	}

	pipPath := filepath.Join(venvDir, "bin", "pip")
	result = runCommand(ctx, p.installTimeout, "", pipPath, "install", sb.PackageSpec)
	if result.TimedOut {
		return fmt.Errorf("package install timed out after %s", p.installTimeout)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("package install failed: %s", tail(result.Stderr, 2048))
	}

	if err := os.WriteFile(filepath.Join(sb.Dir, testProgramFile), []byte(testProgram), 0640); err != nil {
		return fmt.Errorf("writing test program: %w", err)
	}

	sb.PythonPath = filepath.Join(venvDir, "bin", "python")
	sb.SourceRoot = filepath.Join(venvDir, "lib")

	p.logger.Info("venv sandbox ready",
		slog.String("sandbox", sb.ID),
		slog.String("python", sb.PythonPath),
	)
	return nil
}

// Run invokes the private interpreter on the copied-in test program.
func (p *VenvProvisioner) Run(ctx context.Context, sb *Sandbox, timeout time.Duration) (*RunResult, error) {
	if sb.PythonPath == "" {
		return nil, fmt.Errorf("sandbox %s has no interpreter", sb.ID)
	}

	p.logger.Info("running venv test program",
		slog.String("sandbox", sb.ID),
		slog.Duration("timeout", timeout),
	)

	result := runCommand(ctx, timeout, sb.Dir, sb.PythonPath, filepath.Join(sb.Dir, testProgramFile))
	if result.TimedOut {
		p.logger.Warn("venv run timed out",
			slog.String("sandbox", sb.ID),
			slog.Duration("timeout", timeout),
		)
	}
	return result, nil
}

// Destroy removes the sandbox directory, interpreter and all.
func (p *VenvProvisioner) Destroy(_ context.Context, sb *Sandbox) error {
	if err := os.RemoveAll(sb.Dir); err != nil {
		return fmt.Errorf("removing sandbox dir %s: %w", sb.Dir, err)
	}
	return nil
}

// discardLogger is the nil-logger fallback used by all provisioners.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
