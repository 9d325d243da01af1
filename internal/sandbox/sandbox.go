// Package sandbox provides disposable, isolated environments for validating
// untrusted packages. A package is never imported on the host — it is
// installed into a sandbox, exercised there, and the sandbox is destroyed.
//
// Two backends are provided: a container backend (podman or docker) and a
// virtualenv backend used when no container engine is available. The backend
// is detected once at startup and threaded through construction.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"syscall"
	"time"
)

const (
	// maxOutputBytes caps stdout/stderr to prevent OOM from chatty test programs.
	maxOutputBytes = 1 << 20 // 1 MB

	// detectTimeout bounds the engine version probe.
	detectTimeout = 5 * time.Second
)

// Backend identifies the isolation mechanism backing a sandbox.
type Backend string

const (
	// BackendContainer isolates via an ephemeral container image per sandbox.
	BackendContainer Backend = "container"
	// BackendVenv isolates via a private virtualenv interpreter per sandbox.
	BackendVenv Backend = "venv"
)

// Sandbox is one disposable execution environment, owned by exactly one
// package record for the duration of a validation attempt.
type Sandbox struct {
	ID          string // unique per validation attempt
	Dir         string // private directory keyed by ID
	PackageName string // package under validation
	PackageSpec string // name or name==version, passed to the package installer

	// Backend-specific state, populated by Create.
	ImageTag   string // container backend: image tag validate-<ID>
	PythonPath string // venv backend: private interpreter binary
	SourceRoot string // venv backend: installed-package tree for security scanning
}

// RunResult captures the outcome of executing the test program in a sandbox.
// A timeout or spawn failure is a result, not an error — the executor never
// raises past its boundary.
type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
}

// Provisioner creates, executes in, and destroys sandboxes for one backend.
type Provisioner interface {
	// Backend reports which isolation mechanism this provisioner uses.
	Backend() Backend

	// Create allocates the sandbox directory, installs the package into the
	// isolated environment, and copies in the test program source.
	Create(ctx context.Context, sb *Sandbox, testProgram string) error

	// Run executes the test program inside the sandbox with a hard wall-clock
	// timeout. The returned error is reserved for programmer errors; all
	// environmental failures fold into the RunResult.
	Run(ctx context.Context, sb *Sandbox, timeout time.Duration) (*RunResult, error)

	// Destroy removes the sandbox's resources. Image removal is best-effort;
	// directory removal failures are returned so the caller can log them,
	// but must never re-block the lifecycle.
	Destroy(ctx context.Context, sb *Sandbox) error
}

// Detect probes for an available container engine and returns the backend to
// use for the process lifetime. It tries podman first, then docker, each with
// a short version-check timeout. When preferred is non-empty only that engine
// is probed. The venv backend is the fallback.
func Detect(ctx context.Context, preferred string, logger *slog.Logger) (Backend, string) {
	engines := []string{"podman", "docker"}
	if preferred != "" {
		engines = []string{preferred}
	}

	for _, engine := range engines {
		probeCtx, cancel := context.WithTimeout(ctx, detectTimeout)
		err := exec.CommandContext(probeCtx, engine, "--version").Run()
		cancel()
		if err == nil {
			logger.Info("detected container engine", slog.String("engine", engine))
			return BackendContainer, engine
		}
	}

	logger.Warn("no container engine detected, falling back to venv sandbox")
	return BackendVenv, ""
}

// runCommand executes a command with a hard timeout, capped output capture,
// and process-group isolation. Spawn failures and timeouts fold into the
// RunResult rather than an error.
func runCommand(ctx context.Context, timeout time.Duration, dir string, name string, args ...string) *RunResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}

	// The child runs in its own process group so a timeout kills everything
	// it spawned, not just the immediate process.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		// Negative PID = kill the entire process group.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdoutBuf, remaining: maxOutputBytes}
	cmd.Stderr = &limitedWriter{w: &stderrBuf, remaining: maxOutputBytes}

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	result := &RunResult{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Duration: duration,
	}

	if runErr != nil {
		if ctx.Err() != nil {
			result.TimedOut = true
			result.ExitCode = -1
			return result
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			// Spawn-level failure (binary missing, permission denied).
			result.ExitCode = -1
			if result.Stderr != "" {
				result.Stderr += "\n"
			}
			result.Stderr += runErr.Error()
		}
	}

	return result
}

// limitedWriter wraps a writer and stops writing after a byte limit.
// Excess data is silently discarded (not an error — just capped).
type limitedWriter struct {
	w         io.Writer
	remaining int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.remaining <= 0 {
		return len(p), nil // Silently discard.
	}
	if len(p) > lw.remaining {
		p = p[:lw.remaining]
	}
	n, err := lw.w.Write(p)
	lw.remaining -= n
	return n, err
}
