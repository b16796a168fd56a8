package security

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"warden/internal/domain"
)

func newTestGate(t *testing.T, dir string, allowed []string) *CommandGate {
	t.Helper()
	sandbox := newTestSandbox(t, dir, []RootEntry{dirRoot(t, dir)})
	return NewCommandGate(func() []string { return allowed }, sandbox, 5*time.Second, 64*1024)
}

func TestGateRejectsUnlistedCommand(t *testing.T) {
	gate := newTestGate(t, t.TempDir(), []string{"ls"})

	_, err := gate.Check("rm", []string{"-rf"})
	if !errors.Is(err, domain.ErrCommandNotAllowed) {
		t.Errorf("expected ErrCommandNotAllowed, got %v", err)
	}
}

func TestGateAllowsListedCommandWithFlags(t *testing.T) {
	gate := newTestGate(t, t.TempDir(), []string{"ls"})

	if _, err := gate.Check("ls", []string{"-la"}); err != nil {
		t.Errorf("ls -la should pass: %v", err)
	}
}

func TestGateRejectsUnsafeFlagCharacters(t *testing.T) {
	gate := newTestGate(t, t.TempDir(), []string{"ls"})

	tests := []string{"-l;rm", "-l|cat", "-l$(id)", "-l a", "-l`x`"}
	for _, flag := range tests {
		if _, err := gate.Check("ls", []string{flag}); !errors.Is(err, domain.ErrCommandNotAllowed) {
			t.Errorf("flag %q: expected ErrCommandNotAllowed, got %v", flag, err)
		}
	}
}

func TestGateRejectsLongFlags(t *testing.T) {
	gate := newTestGate(t, t.TempDir(), []string{"ls"})

	if _, err := gate.Check("ls", []string{"--all"}); !errors.Is(err, domain.ErrCommandNotAllowed) {
		t.Errorf("long flag: expected ErrCommandNotAllowed, got %v", err)
	}
}

func TestGateRejectsFlagLetterOutsidePerCommandSet(t *testing.T) {
	gate := newTestGate(t, t.TempDir(), []string{"ls"})

	if _, err := gate.Check("ls", []string{"-z"}); !errors.Is(err, domain.ErrCommandNotAllowed) {
		t.Errorf("ls -z: expected ErrCommandNotAllowed, got %v", err)
	}
}

func TestGateCommandOutsideFlagTableAcceptsNoFlags(t *testing.T) {
	gate := newTestGate(t, t.TempDir(), []string{"pwd"})

	if _, err := gate.Check("pwd", nil); err != nil {
		t.Errorf("pwd with no args should pass: %v", err)
	}
	if _, err := gate.Check("pwd", []string{"-L"}); !errors.Is(err, domain.ErrCommandNotAllowed) {
		t.Errorf("pwd -L: expected ErrCommandNotAllowed, got %v", err)
	}
}

func TestGateResolvesBareArgumentsThroughSandbox(t *testing.T) {
	dir := t.TempDir()
	gate := newTestGate(t, dir, []string{"cat"})

	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	checked, err := gate.Check("cat", []string{"f.txt"})
	if err != nil {
		t.Fatal(err)
	}
	if len(checked) != 1 || !filepath.IsAbs(checked[0]) {
		t.Errorf("bare arg should be replaced by resolved absolute path, got %v", checked)
	}
}

func TestGateBareArgumentOutsideSandboxDenied(t *testing.T) {
	gate := newTestGate(t, t.TempDir(), []string{"cat"})

	_, err := gate.Check("cat", []string{"../etc/passwd"})
	if !errors.Is(err, domain.ErrPathOutsideSandbox) {
		t.Errorf("expected ErrPathOutsideSandbox, got %v", err)
	}
}

func TestGateStripsDirectoryFromCommand(t *testing.T) {
	gate := newTestGate(t, t.TempDir(), []string{"ls"})

	// "/bin/ls" reduces to base "ls"; execution uses the base only.
	if _, err := gate.Check("/bin/ls", nil); err != nil {
		t.Errorf("command with directory prefix should reduce to base: %v", err)
	}
}

func TestGateAllowlistReloadTakesEffect(t *testing.T) {
	dir := t.TempDir()
	allowed := []string{}
	sandbox := newTestSandbox(t, dir, []RootEntry{dirRoot(t, dir)})
	gate := NewCommandGate(func() []string { return allowed }, sandbox, time.Second, 1024)

	if _, err := gate.Check("ls", nil); err == nil {
		t.Fatal("expected denial before allowlist update")
	}
	allowed = []string{"ls"}
	if _, err := gate.Check("ls", nil); err != nil {
		t.Errorf("allowlist update should take effect without rebuild: %v", err)
	}
}

func TestGateRunCapturesOutput(t *testing.T) {
	dir := t.TempDir()
	gate := newTestGate(t, dir, []string{"ls"})

	if err := os.WriteFile(filepath.Join(dir, "present.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := gate.Run(context.Background(), "ls", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Stdout, "present.txt") {
		t.Errorf("stdout = %q, want listing containing present.txt", res.Stdout)
	}
}

func TestCappedBufferTruncates(t *testing.T) {
	b := &cappedBuffer{max: 4}

	n, err := b.Write([]byte("abcdefgh"))
	if err != nil || n != 8 {
		t.Fatalf("write: n=%d err=%v", n, err)
	}
	if b.String() != "abcd" {
		t.Errorf("buffer = %q, want %q", b.String(), "abcd")
	}
	if !b.truncated {
		t.Error("expected truncated flag")
	}
}
