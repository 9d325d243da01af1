package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const (
	// imageTagPrefix names validation images so orphans are easy to spot
	// in `docker images` output.
	imageTagPrefix = "validate-"

	// rmiTimeout bounds best-effort image removal at destroy time.
	rmiTimeout = 30 * time.Second

	testProgramFile = "test_program.py"
)

// ContainerProvisioner backs sandboxes with ephemeral container images.
// Each validation attempt builds its own image (tagged validate-<sandboxID>)
// whose build installs the package under validation; running the image runs
// the test program. Nothing from the sandbox ever touches the host
// interpreter.
type ContainerProvisioner struct {
	engine       string // "podman" or "docker"
	image        string // base image for the build manifest
	buildTimeout time.Duration
	logger       *slog.Logger
}

// NewContainerProvisioner creates a container-backed provisioner for the
// given engine binary.
func NewContainerProvisioner(engine, image string, buildTimeout time.Duration, logger *slog.Logger) *ContainerProvisioner {
	if image == "" {
		image = "python:3.11-slim"
	}
	if buildTimeout == 0 {
		buildTimeout = 120 * time.Second
	}
	if logger == nil {
		logger = discardLogger()
	}
	return &ContainerProvisioner{
		engine:       engine,
		image:        image,
		buildTimeout: buildTimeout,
		logger:       logger,
	}
}

// Backend returns BackendContainer.
func (p *ContainerProvisioner) Backend() Backend { return BackendContainer }

// Create writes the build manifest and test program into the sandbox
// directory and builds the validation image. On failure no image is tagged,
// but a partial sandbox directory may remain — callers invoke Destroy to
// reclaim it.
func (p *ContainerProvisioner) Create(ctx context.Context, sb *Sandbox, testProgram string) error {
	if err := os.MkdirAll(sb.Dir, 0750); err != nil {
		return fmt.Errorf("creating sandbox dir: %w", err)
	}

	manifest := p.buildManifest(sb.PackageSpec)
	if err := os.WriteFile(filepath.Join(sb.Dir, "Dockerfile"), []byte(manifest), 0640); err != nil {
		return fmt.Errorf("writing build manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(sb.Dir, testProgramFile), []byte(testProgram), 0640); err != nil {
		return fmt.Errorf("writing test program: %w", err)
	}

	tag := imageTagPrefix + sb.ID
	p.logger.Info("building sandbox image",
		slog.String("engine", p.engine),
		slog.String("tag", tag),
		slog.String("package", sb.PackageSpec),
		slog.Duration("timeout", p.buildTimeout),
	)

	result := runCommand(ctx, p.buildTimeout, "", p.engine, "build", "-t", tag, sb.Dir)
	if result.TimedOut {
		return fmt.Errorf("image build timed out after %s", p.buildTimeout)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("image build failed: %s", tail(result.Stderr, 2048))
	}

	sb.ImageTag = tag
	p.logger.Info("sandbox image built",
		slog.String("tag", tag),
		slog.Duration("duration", result.Duration),
	)
	return nil
}

// Run executes the previously built validation image. The container is
// discarded afterwards (--rm).
func (p *ContainerProvisioner) Run(ctx context.Context, sb *Sandbox, timeout time.Duration) (*RunResult, error) {
	if sb.ImageTag == "" {
		return nil, fmt.Errorf("sandbox %s has no built image", sb.ID)
	}

	p.logger.Info("running sandbox image",
		slog.String("tag", sb.ImageTag),
		slog.Duration("timeout", timeout),
	)

	result := runCommand(ctx, timeout, "", p.engine, "run", "--rm", sb.ImageTag)
	if result.TimedOut {
		p.logger.Warn("sandbox run timed out",
			slog.String("tag", sb.ImageTag),
			slog.Duration("timeout", timeout),
		)
	}
	return result, nil
}

// Destroy removes the validation image (best-effort) and the sandbox
// directory (unconditionally). An image removal failure is swallowed;
// a directory removal failure is returned.
func (p *ContainerProvisioner) Destroy(ctx context.Context, sb *Sandbox) error {
	if sb.ImageTag != "" {
		result := runCommand(ctx, rmiTimeout, "", p.engine, "rmi", "-f", sb.ImageTag)
		if result.ExitCode != 0 {
			// The image may never have been tagged, or was already removed.
			p.logger.Debug("image removal failed",
				slog.String("tag", sb.ImageTag),
				slog.String("stderr", tail(result.Stderr, 512)),
			)
		}
	}

	if err := os.RemoveAll(sb.Dir); err != nil {
		return fmt.Errorf("removing sandbox dir %s: %w", sb.Dir, err)
	}
	return nil
}

// buildManifest synthesizes the Dockerfile for one validation attempt.
// The package install happens at build time so a failing install surfaces
// as a build failure, before anything runs.
func (p *ContainerProvisioner) buildManifest(packageSpec string) string {
	return fmt.Sprintf(`FROM %s

RUN pip install --no-cache-dir %s

WORKDIR /test
COPY %s /test/

CMD ["python", "/test/%s"]
`, p.image, packageSpec, testProgramFile, testProgramFile)
}

// tail returns at most the last n bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
