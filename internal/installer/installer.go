// Package installer invokes the external package installer that performs the
// real download/build/install into the persistent environment. The installer
// is an opaque external command: it either succeeds or fails.
package installer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const defaultTimeout = 300 * time.Second

// Installer installs an approved package into the persistent environment.
type Installer interface {
	// Install runs `<binary> install <spec>` and returns captured stderr
	// alongside any failure.
	Install(ctx context.Context, spec string) (stderr string, err error)
}

// CommandInstaller shells out to an installer binary. When no binary is
// configured it discovers one: a `snakepit` binary on PATH, falling back to
// `pip`.
type CommandInstaller struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewCommandInstaller creates a CommandInstaller. An empty binary enables
// discovery at first use.
func NewCommandInstaller(binary string, timeout time.Duration, logger *slog.Logger) *CommandInstaller {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &CommandInstaller{
		binary:  binary,
		timeout: timeout,
		logger:  logger,
	}
}

// Install invokes the external installer with a hard timeout.
func (c *CommandInstaller) Install(ctx context.Context, spec string) (string, error) {
	binary := c.binary
	if binary == "" {
		binary = discoverBinary(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.Info("invoking installer",
		slog.String("binary", binary),
		slog.String("spec", spec),
		slog.Duration("timeout", c.timeout),
	)

	cmd := exec.CommandContext(ctx, binary, "install", spec)
	var stderrBuf strings.Builder
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	stderr := stderrBuf.String()

	if ctx.Err() == context.DeadlineExceeded {
		return stderr, fmt.Errorf("install timed out after %s", c.timeout)
	}
	if err != nil {
		return stderr, fmt.Errorf("installer %s failed: %w", binary, err)
	}

	c.logger.Info("installer succeeded", slog.String("spec", spec))
	return stderr, nil
}

// discoverBinary probes for a usable installer, preferring the native
// snakepit binary over plain pip.
func discoverBinary(ctx context.Context) string {
	for _, candidate := range []string{"snakepit", "pip"} {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := exec.CommandContext(probeCtx, candidate, "--version").Run()
		cancel()
		if err == nil {
			return candidate
		}
	}
	return "pip"
}
