package harness

import (
	"context"
	"os"
	"runtime"
	"strings"
	"testing"
)

func TestSessionPathsAreDistinct(t *testing.T) {
	a, err := NewSession("demo")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer func() {
		_ = a.Close()
	}()
	b, err := NewSession("demo")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer func() {
		_ = b.Close()
	}()

	if a.ObjectPath == b.ObjectPath || a.ExePath == b.ExePath {
		t.Fatalf("sessions with the same name collided: %q vs %q", a.ObjectPath, b.ObjectPath)
	}
	if !strings.Contains(a.ObjectPath, "demo") {
		t.Errorf("object path %q does not carry the artifact name", a.ObjectPath)
	}
}

func TestSessionWriteAndClose(t *testing.T) {
	s, err := NewSession("roundtrip")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := s.WriteObject([]byte{0x7f, 'E', 'L', 'F'}); err != nil {
		t.Fatalf("WriteObject: %v", err)
	}
	got, err := os.ReadFile(s.ObjectPath)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("read back %d bytes, want 4", len(got))
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(s.ObjectPath); !os.IsNotExist(err) {
		t.Fatalf("object file survived Close")
	}
	// Closing twice is fine; files are already gone.
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestRunExitCode(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skipf("needs /bin/sh semantics, running on %s", runtime.GOOS)
	}
	dir := t.TempDir()
	script := dir + "/exit24.sh"
	if err := os.WriteFile(script, []byte("#!/bin/sh\nexit 24\n"), 0o700); err != nil { // #nosec G306 -- test script must be executable
		t.Fatalf("write script: %v", err)
	}
	code, err := Run(context.Background(), script)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != 24 {
		t.Fatalf("exit code = %d, want 24", code)
	}
}

func TestRunPassesExtraEnv(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skipf("needs /bin/sh semantics, running on %s", runtime.GOOS)
	}
	dir := t.TempDir()
	script := dir + "/envcheck.sh"
	body := "#!/bin/sh\n[ \"$ANVIL_PROBE\" = \"yes\" ] && exit 0\nexit 1\n"
	if err := os.WriteFile(script, []byte(body), 0o700); err != nil { // #nosec G306 -- test script must be executable
		t.Fatalf("write script: %v", err)
	}
	code, err := Run(context.Background(), script, "ANVIL_PROBE=yes")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != 0 {
		t.Fatalf("extra env not passed, exit code = %d", code)
	}
}

func TestRunMissingExecutable(t *testing.T) {
	if _, err := Run(context.Background(), "/nonexistent/anvil-test-binary"); err == nil {
		t.Fatalf("running a missing binary succeeded")
	}
}
