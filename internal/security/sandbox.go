package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"warden/internal/domain"
)

// RootEntry is one allowed containment root from the policy snapshot.
// A directory entry admits its whole subtree; a file entry admits exactly
// that file and is the more specific match when both could apply.
type RootEntry struct {
	Path  string
	IsDir bool
}

// deniedSegments are path segments rejected unconditionally, regardless of
// allowlist membership. Compared case-insensitively.
var deniedSegments = map[string]bool{
	".git":         true,
	".env":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
}

// Sandbox resolves requested relative paths to canonical absolute paths and
// decides containment against the policy's allowed roots. It is a pure
// function of its inputs plus the filesystem; nothing is cached between
// calls. Roots are read through a provider function so a policy reload is
// picked up without rebuilding the sandbox.
type Sandbox struct {
	workspace string // absolute, symlink-resolved
	roots     func() []RootEntry
	foldCase  bool
}

// NewSandbox creates a sandbox anchored at the workspace directory. The
// roots provider returns the current policy snapshot's allowed roots; an
// empty result means every filesystem path is denied (fail closed).
func NewSandbox(workspace string, roots func() []RootEntry) (*Sandbox, error) {
	abs, err := filepath.Abs(workspace)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("eval symlinks for workspace: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("stat workspace: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace %q is not a directory", resolved)
	}
	return &Sandbox{workspace: resolved, roots: roots, foldCase: CaseInsensitiveFS()}, nil
}

// Workspace returns the resolved workspace root.
func (s *Sandbox) Workspace() string { return s.workspace }

// Resolve validates a requested path and returns its canonical absolute
// form, or a denial. Absolute input is rejected outright; traversal is
// rejected at the segment level, so a filename merely containing ".." (such
// as "notes..md") passes; symlinks are resolved before containment so a
// link pointing outside an allowed root cannot escape.
func (s *Sandbox) Resolve(requested string) (string, error) {
	const op = "Sandbox.Resolve"

	if filepath.IsAbs(requested) {
		return "", domain.NewDomainError(op, domain.ErrPathOutsideSandbox,
			fmt.Sprintf("absolute path %q not allowed", requested))
	}
	if err := s.checkSegments(requested); err != nil {
		return "", err
	}

	joined := s.workspace
	if requested != "" && requested != "." {
		joined = filepath.Join(s.workspace, requested)
	}

	resolved, err := s.canonicalize(joined)
	if err != nil {
		return "", domain.NewDomainError(op, domain.ErrPathOutsideSandbox, err.Error())
	}

	root, err := s.contained(resolved)
	if err != nil {
		return "", err
	}
	if err := s.checkResolvedSegments(resolved, root); err != nil {
		return "", err
	}
	return resolved, nil
}

// checkSegments rejects ".." segments and denylisted segments. The check is
// per segment, not substring: "notes..md" is a legitimate file name.
func (s *Sandbox) checkSegments(requested string) error {
	const op = "Sandbox.Resolve"
	for _, seg := range strings.FieldsFunc(filepath.ToSlash(requested), func(r rune) bool {
		return r == '/'
	}) {
		if seg == "." || seg == "" {
			continue
		}
		if seg == ".." {
			return domain.NewDomainError(op, domain.ErrPathOutsideSandbox,
				fmt.Sprintf("path traversal segment in %q", requested))
		}
		if deniedSegments[strings.ToLower(seg)] {
			return domain.NewDomainError(op, domain.ErrPathOutsideSandbox,
				fmt.Sprintf("denied segment %q in %q", seg, requested))
		}
	}
	return nil
}

// canonicalize resolves symlinks. For a target that does not exist yet
// (write-new-file case), it recursively canonicalizes the nearest existing
// ancestor and rejoins the remaining component, so containment is decided
// on the directory the file would actually land in.
func (s *Sandbox) canonicalize(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	parent := filepath.Dir(path)
	if parent == path {
		return "", fmt.Errorf("no existing ancestor for %q", path)
	}
	resolvedParent, err := s.canonicalize(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(path)), nil
}

// contained checks the canonical path against the allowed roots and
// returns the matched entry. File entries are checked before directory
// entries (more specific wins); when the target exists its actual type
// must agree with the matched entry.
func (s *Sandbox) contained(resolved string) (RootEntry, error) {
	const op = "Sandbox.Resolve"
	roots := s.roots()

	for _, r := range roots {
		if !r.IsDir && s.samePath(resolved, r.Path) {
			return r, s.typeAgrees(resolved, r)
		}
	}
	for _, r := range roots {
		if r.IsDir && (s.samePath(resolved, r.Path) || s.hasPrefix(resolved, r.Path)) {
			return r, s.typeAgrees(resolved, r)
		}
	}
	return RootEntry{}, domain.NewDomainError(op, domain.ErrPathOutsideSandbox,
		fmt.Sprintf("resolved %q is outside all allowed roots", resolved))
}

// checkResolvedSegments re-runs the denied-segment check on the canonical
// path below the matched root. A symlink inside an allowed root can point
// at a denylisted directory without a denied name ever appearing in the
// requested path; EvalSymlinks has already eliminated "..", so only the
// denylist needs the second pass.
func (s *Sandbox) checkResolvedSegments(resolved string, root RootEntry) error {
	const op = "Sandbox.Resolve"
	rest := resolved[len(root.Path):]
	for _, seg := range strings.FieldsFunc(filepath.ToSlash(rest), func(r rune) bool {
		return r == '/'
	}) {
		if deniedSegments[strings.ToLower(seg)] {
			return domain.NewDomainError(op, domain.ErrPathOutsideSandbox,
				fmt.Sprintf("denied segment %q in resolved path %q", seg, resolved))
		}
	}
	return nil
}

func (s *Sandbox) typeAgrees(resolved string, r RootEntry) error {
	info, err := os.Stat(resolved)
	if err != nil {
		// Target does not exist yet; ancestor containment already held.
		return nil
	}
	if !r.IsDir && info.IsDir() {
		return domain.NewDomainError("Sandbox.Resolve", domain.ErrPathOutsideSandbox,
			fmt.Sprintf("%q matched a file entry but is a directory", resolved))
	}
	if r.IsDir && s.samePath(resolved, r.Path) && !info.IsDir() {
		return domain.NewDomainError("Sandbox.Resolve", domain.ErrPathOutsideSandbox,
			fmt.Sprintf("%q matched a directory entry but is a file", resolved))
	}
	return nil
}

func (s *Sandbox) samePath(a, b string) bool {
	if s.foldCase {
		return strings.EqualFold(a, b)
	}
	return a == b
}

func (s *Sandbox) hasPrefix(path, root string) bool {
	prefix := root + string(os.PathSeparator)
	if s.foldCase {
		return len(path) >= len(prefix) && strings.EqualFold(path[:len(prefix)], prefix)
	}
	return strings.HasPrefix(path, prefix)
}
