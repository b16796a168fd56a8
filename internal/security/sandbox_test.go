package security

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"warden/internal/domain"
)

func newTestSandbox(t *testing.T, dir string, roots []RootEntry) *Sandbox {
	t.Helper()
	s, err := NewSandbox(dir, func() []RootEntry { return roots })
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func dirRoot(t *testing.T, dir string) RootEntry {
	t.Helper()
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatal(err)
	}
	return RootEntry{Path: resolved, IsDir: true}
}

func TestSandboxResolveValid(t *testing.T) {
	dir := t.TempDir()
	sandbox := newTestSandbox(t, dir, []RootEntry{dirRoot(t, dir)})

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0644); err != nil {
		t.Fatal(err)
	}

	resolved, err := sandbox.Resolve("notes.txt")
	if err != nil {
		t.Fatalf("valid path should pass: %v", err)
	}
	if filepath.Base(resolved) != "notes.txt" {
		t.Errorf("resolved = %q, want notes.txt under workspace", resolved)
	}
}

func TestSandboxRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	sandbox := newTestSandbox(t, dir, []RootEntry{dirRoot(t, dir)})

	tests := []string{
		"../etc/passwd",
		"a/../../b",
		"..",
		"sub/../../outside.txt",
	}
	for _, path := range tests {
		if _, err := sandbox.Resolve(path); !errors.Is(err, domain.ErrPathOutsideSandbox) {
			t.Errorf("path %q: expected ErrPathOutsideSandbox, got %v", path, err)
		}
	}
}

func TestSandboxAllowsDotsInFilename(t *testing.T) {
	dir := t.TempDir()
	sandbox := newTestSandbox(t, dir, []RootEntry{dirRoot(t, dir)})

	if err := os.WriteFile(filepath.Join(dir, "notes..md"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := sandbox.Resolve("notes..md"); err != nil {
		t.Errorf("filename containing dots should pass: %v", err)
	}
}

func TestSandboxRejectsAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	sandbox := newTestSandbox(t, dir, []RootEntry{dirRoot(t, dir)})

	if _, err := sandbox.Resolve("/etc/passwd"); !errors.Is(err, domain.ErrPathOutsideSandbox) {
		t.Errorf("absolute path: expected ErrPathOutsideSandbox, got %v", err)
	}
}

func TestSandboxDeniedSegments(t *testing.T) {
	dir := t.TempDir()
	sandbox := newTestSandbox(t, dir, []RootEntry{dirRoot(t, dir)})

	tests := []string{
		".git/config",
		".env",
		"node_modules/pkg/index.js",
		"sub/__pycache__/mod.pyc",
		".GIT/config", // case-insensitive
	}
	for _, path := range tests {
		if _, err := sandbox.Resolve(path); !errors.Is(err, domain.ErrPathOutsideSandbox) {
			t.Errorf("path %q: expected ErrPathOutsideSandbox, got %v", path, err)
		}
	}
}

func TestSandboxNewFileUnderExistingAncestor(t *testing.T) {
	dir := t.TempDir()
	sandbox := newTestSandbox(t, dir, []RootEntry{dirRoot(t, dir)})

	resolved, err := sandbox.Resolve("newdir/newfile.txt")
	if err != nil {
		t.Fatalf("new file under workspace should pass: %v", err)
	}
	if filepath.Base(resolved) != "newfile.txt" {
		t.Errorf("resolved = %q", resolved)
	}
}

func TestSandboxSymlinkEscape(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	sandbox := newTestSandbox(t, dir, []RootEntry{dirRoot(t, dir)})

	if err := os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("s"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(dir, "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if _, err := sandbox.Resolve("link/secret.txt"); !errors.Is(err, domain.ErrPathOutsideSandbox) {
		t.Errorf("symlink escape: expected ErrPathOutsideSandbox, got %v", err)
	}
}

func TestSandboxSymlinkIntoDeniedSegment(t *testing.T) {
	dir := t.TempDir()
	sandbox := newTestSandbox(t, dir, []RootEntry{dirRoot(t, dir)})

	// A link whose own name is clean but whose target is a denylisted
	// directory inside the root.
	gitDir := filepath.Join(dir, ".git")
	if err := os.Mkdir(gitDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(gitDir, "config"), []byte("c"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(gitDir, filepath.Join(dir, "innocent")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if _, err := sandbox.Resolve("innocent/config"); !errors.Is(err, domain.ErrPathOutsideSandbox) {
		t.Errorf("symlink into denied segment: expected ErrPathOutsideSandbox, got %v", err)
	}
}

func TestSandboxFileEntryExactMatch(t *testing.T) {
	dir := t.TempDir()
	allowFile := filepath.Join(dir, "allow.txt")
	if err := os.WriteFile(allowFile, []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("b"), 0644); err != nil {
		t.Fatal(err)
	}

	resolved, err := filepath.EvalSymlinks(allowFile)
	if err != nil {
		t.Fatal(err)
	}
	sandbox := newTestSandbox(t, dir, []RootEntry{{Path: resolved, IsDir: false}})

	if _, err := sandbox.Resolve("allow.txt"); err != nil {
		t.Errorf("file entry should admit its own path: %v", err)
	}
	if _, err := sandbox.Resolve("other.txt"); !errors.Is(err, domain.ErrPathOutsideSandbox) {
		t.Errorf("file entry must not admit siblings, got %v", err)
	}
}

func TestSandboxFileEntryTypeMismatch(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}

	resolved, err := filepath.EvalSymlinks(sub)
	if err != nil {
		t.Fatal(err)
	}
	// Policy declares a file entry but the path is actually a directory.
	sandbox := newTestSandbox(t, dir, []RootEntry{{Path: resolved, IsDir: false}})

	if _, err := sandbox.Resolve("sub"); !errors.Is(err, domain.ErrPathOutsideSandbox) {
		t.Errorf("type mismatch should deny, got %v", err)
	}
}

func TestSandboxEmptyRootsDenyAll(t *testing.T) {
	dir := t.TempDir()
	sandbox := newTestSandbox(t, dir, nil)

	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := sandbox.Resolve("f.txt"); !errors.Is(err, domain.ErrPathOutsideSandbox) {
		t.Errorf("empty roots must fail closed, got %v", err)
	}
}

func TestSandboxReloadPicksUpNewRoots(t *testing.T) {
	dir := t.TempDir()
	var roots []RootEntry
	sandbox, err := NewSandbox(dir, func() []RootEntry { return roots })
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := sandbox.Resolve("f.txt"); err == nil {
		t.Fatal("expected denial before roots exist")
	}

	roots = []RootEntry{dirRoot(t, dir)}
	if _, err := sandbox.Resolve("f.txt"); err != nil {
		t.Errorf("resolution after roots update should pass: %v", err)
	}
}
