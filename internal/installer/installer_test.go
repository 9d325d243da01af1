package installer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeScript creates an executable fake installer.
func writeScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-installer")
	if err := os.WriteFile(path, []byte(content), 0750); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestInstall_Success(t *testing.T) {
	bin := writeScript(t, "#!/bin/sh\nexit 0\n")
	inst := NewCommandInstaller(bin, 10*time.Second, nil)

	stderr, err := inst.Install(context.Background(), "requests==2.31.0")
	if err != nil {
		t.Fatalf("Install: %v (stderr: %s)", err, stderr)
	}
}

func TestInstall_FailureCapturesStderr(t *testing.T) {
	bin := writeScript(t, "#!/bin/sh\necho 'no matching distribution' >&2\nexit 1\n")
	inst := NewCommandInstaller(bin, 10*time.Second, nil)

	stderr, err := inst.Install(context.Background(), "nonexistent-pkg")
	if err == nil {
		t.Fatal("expected error for failing installer")
	}
	if !strings.Contains(stderr, "no matching distribution") {
		t.Errorf("stderr = %q, want captured installer output", stderr)
	}
}

func TestInstall_Timeout(t *testing.T) {
	bin := writeScript(t, "#!/bin/sh\nsleep 10\n")
	inst := NewCommandInstaller(bin, 1*time.Second, nil)

	start := time.Now()
	_, err := inst.Install(context.Background(), "slow-pkg")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("error = %q, want timeout", err)
	}
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Errorf("timeout took %s, want ~1s", elapsed)
	}
}

func TestInstall_ReceivesSpec(t *testing.T) {
	out := filepath.Join(t.TempDir(), "args")
	bin := writeScript(t, "#!/bin/sh\necho \"$@\" > "+out+"\nexit 0\n")
	inst := NewCommandInstaller(bin, 10*time.Second, nil)

	if _, err := inst.Install(context.Background(), "flask==3.0.0"); err != nil {
		t.Fatalf("Install: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(string(data)); got != "install flask==3.0.0" {
		t.Errorf("installer args = %q, want %q", got, "install flask==3.0.0")
	}
}
