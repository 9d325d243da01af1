package validation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/elci-group/snakepit/internal/sandbox"
)

// Result is the structured outcome of one validation run.
type Result struct {
	Passed         bool
	Score          float64
	TimedOut       bool
	ExitCode       int
	Stdout         string
	Stderr         string
	TestResults    map[string]string
	Warnings       []string
	Errors         []string
	SecurityIssues []string
	Duration       time.Duration
}

// Validator composes the sandbox executor with the output parsers and the
// static security scan.
type Validator struct {
	provisioner sandbox.Provisioner
	patterns    *OutputPatterns
	security    []SecurityCategory
	timeout     time.Duration
	logger      *slog.Logger
}

// NewValidator creates a Validator running test programs through the given
// provisioner with the given execution timeout.
func NewValidator(p sandbox.Provisioner, timeout time.Duration, logger *slog.Logger) *Validator {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Validator{
		provisioner: p,
		patterns:    DefaultOutputPatterns(),
		security:    DefaultSecurityCategories(),
		timeout:     timeout,
		logger:      logger,
	}
}

// Validate runs the sandbox's test program and interprets its output.
// Timeouts and non-zero exits are reported in the Result, never as an error;
// the returned error is reserved for programmer errors (sandbox not created).
func (v *Validator) Validate(ctx context.Context, sb *sandbox.Sandbox, level Level) (*Result, error) {
	run, err := v.provisioner.Run(ctx, sb, v.timeout)
	if err != nil {
		return nil, fmt.Errorf("executing test program: %w", err)
	}

	parsed := v.patterns.ParseOutput(run.Stdout)
	result := &Result{
		Passed:      run.ExitCode == 0 && !run.TimedOut,
		Score:       parsed.Score,
		TimedOut:    run.TimedOut,
		ExitCode:    run.ExitCode,
		Stdout:      run.Stdout,
		Stderr:      run.Stderr,
		TestResults: parsed.TestResults,
		Warnings:    parsed.Warnings,
		Errors:      ParseErrors(run.Stderr),
		Duration:    run.Duration,
	}

	if run.TimedOut {
		result.Errors = append(result.Errors, fmt.Sprintf("validation timed out after %s", v.timeout))
	} else if !parsed.ScoreFound {
		result.Warnings = append(result.Warnings, "no parseable summary line in test output")
	}

	if level.IncludesSecurityScan() {
		if sb.SourceRoot != "" {
			result.SecurityIssues = SecurityScan(sb.SourceRoot, v.security, v.logger)
		} else {
			// Container sandboxes keep the installed tree inside the image;
			// there is no host path to walk.
			result.Warnings = append(result.Warnings, "security scan skipped: source tree not reachable from host")
		}
	}

	v.logger.Info("validation completed",
		slog.String("package", sb.PackageName),
		slog.String("level", string(level)),
		slog.Bool("passed", result.Passed),
		slog.Float64("score", result.Score),
		slog.Bool("timed_out", result.TimedOut),
		slog.Duration("duration", result.Duration),
	)

	return result, nil
}
