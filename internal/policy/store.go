// Package policy loads the permission policy file and answers the single
// question the runtime cares about: may this agent run this tool with these
// arguments, and does it need explicit confirmation?
package policy

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"warden/internal/domain"
	"warden/internal/security"
)

// policyFile is the on-disk shape of the policy document.
type policyFile struct {
	Version                int      `yaml:"version"`
	AllowPaths             []string `yaml:"allow_paths"`
	AllowCommands          []string `yaml:"allow_commands"`
	DenyTools              []string `yaml:"deny_tools"`
	RequireConfirmationFor []string `yaml:"require_confirmation_for"`
}

// Snapshot is an immutable view of the loaded policy. No component mutates
// a snapshot after creation; Reload swaps in a fresh one.
type Snapshot struct {
	Version       int
	Roots         []security.RootEntry
	AllowCommands []string
	DenyTools     map[string]bool
	ConfirmTools  map[string]bool
}

// EmptySnapshot is the deny-all state used when no policy file exists:
// no roots, no commands, nothing confirmed into existence.
func EmptySnapshot() *Snapshot {
	return &Snapshot{
		DenyTools:    map[string]bool{},
		ConfirmTools: map[string]bool{},
	}
}

// Store owns the current policy snapshot. Reads are lock-free via an
// atomic pointer; Reload atomically swaps the snapshot rather than
// mutating fields in place.
type Store struct {
	path      string
	workspace string
	snap      atomic.Pointer[Snapshot]
	logger    *slog.Logger
}

// NewStore loads the policy at path. A missing file is not an error: it
// yields the empty (deny-all) snapshot. A file that exists but does not
// parse is a startup configuration fault.
func NewStore(path, workspace string, logger *slog.Logger) (*Store, error) {
	st := &Store{path: path, workspace: workspace, logger: logger}
	if err := st.Reload(); err != nil {
		return nil, err
	}
	return st, nil
}

// Snapshot returns the current immutable policy snapshot.
func (st *Store) Snapshot() *Snapshot { return st.snap.Load() }

// Roots returns the current allowed filesystem roots; shaped as a provider
// for the sandbox so reloads are picked up per resolution.
func (st *Store) Roots() []security.RootEntry { return st.Snapshot().Roots }

// Commands returns the current command allowlist, for the command gate.
func (st *Store) Commands() []string { return st.Snapshot().AllowCommands }

// Reload re-reads the policy file and atomically swaps the snapshot.
func (st *Store) Reload() error {
	data, err := os.ReadFile(st.path)
	if os.IsNotExist(err) {
		if st.logger != nil {
			st.logger.Warn("policy file missing, running deny-all", "path", st.path)
		}
		st.snap.Store(EmptySnapshot())
		return nil
	}
	if err != nil {
		return domain.NewDomainError("policy.Reload", domain.ErrConfigLoad, err.Error())
	}

	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return domain.NewDomainError("policy.Reload", domain.ErrConfigLoad,
			fmt.Sprintf("parse %s: %v", st.path, err))
	}

	snap, err := st.buildSnapshot(&pf)
	if err != nil {
		return err
	}
	st.snap.Store(snap)
	if st.logger != nil {
		st.logger.Info("policy loaded",
			"path", st.path,
			"version", snap.Version,
			"roots", len(snap.Roots),
			"commands", len(snap.AllowCommands))
	}
	return nil
}

// buildSnapshot resolves allow_paths into canonical root entries. Relative
// entries are anchored at the workspace. An entry that does not exist is
// kept as a directory root: containment still works for files created
// under it later.
func (st *Store) buildSnapshot(pf *policyFile) (*Snapshot, error) {
	snap := &Snapshot{
		Version:       pf.Version,
		AllowCommands: append([]string(nil), pf.AllowCommands...),
		DenyTools:     make(map[string]bool, len(pf.DenyTools)),
		ConfirmTools:  make(map[string]bool, len(pf.RequireConfirmationFor)),
	}
	for _, t := range pf.DenyTools {
		snap.DenyTools[t] = true
	}
	for _, t := range pf.RequireConfirmationFor {
		snap.ConfirmTools[t] = true
	}

	for _, p := range pf.AllowPaths {
		abs := p
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(st.workspace, p)
		}
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			abs = resolved
		} else {
			abs = filepath.Clean(abs)
		}

		isDir := true
		if info, err := os.Stat(abs); err == nil {
			isDir = info.IsDir()
		}
		snap.Roots = append(snap.Roots, security.RootEntry{Path: abs, IsDir: isDir})
	}
	return snap, nil
}
