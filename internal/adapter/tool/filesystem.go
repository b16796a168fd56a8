package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"warden/internal/domain"
	"warden/internal/security"
)

// FilesystemTool provides sandboxed file read/write/list. Every path goes
// through the sandbox resolver; the handler itself never sees an
// unresolved path.
type FilesystemTool struct {
	sandbox  *security.Sandbox
	maxWrite int
	logger   *slog.Logger
}

// NewFilesystemTool creates the filesystem tool. maxWrite bounds write
// payload size in bytes.
func NewFilesystemTool(sandbox *security.Sandbox, maxWrite int, logger *slog.Logger) *FilesystemTool {
	if maxWrite <= 0 {
		maxWrite = 1024 * 1024
	}
	return &FilesystemTool{sandbox: sandbox, maxWrite: maxWrite, logger: logger}
}

func (t *FilesystemTool) Name() string { return "filesystem" }
func (t *FilesystemTool) Description() string {
	return "Read, write, and list files within the allowed roots"
}
func (t *FilesystemTool) Capabilities() []domain.Capability {
	return []domain.Capability{domain.CapabilityFilesystem}
}

func (t *FilesystemTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"action": {"type": "string", "enum": ["read", "write", "list"], "description": "The file operation to perform"},
				"path": {"type": "string", "description": "File or directory path, relative to the workspace"},
				"content": {"type": "string", "description": "Content to write (write action only)"}
			},
			"required": ["action"],
			"additionalProperties": false
		}`),
	}
}

type filesystemParams struct {
	Action  string `json:"action"`
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
}

func (t *FilesystemTool) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	return Execute(ctx, "tool.filesystem", t.logger, params,
		Dispatch(func(p filesystemParams) string { return p.Action }, ActionMap[filesystemParams]{
			"read":  t.readFile,
			"write": t.writeFile,
			"list":  t.listDir,
		}),
	)
}

func (t *FilesystemTool) readFile(_ context.Context, p filesystemParams) (any, error) {
	resolved, err := t.sandbox.Resolve(p.Path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	t.logger.Debug("filesystem read", "path", resolved, "size", len(data))
	return map[string]any{"path": p.Path, "content": string(data)}, nil
}

func (t *FilesystemTool) writeFile(_ context.Context, p filesystemParams) (any, error) {
	if len(p.Content) > t.maxWrite {
		return nil, domain.NewDomainError("FilesystemTool.write", domain.ErrInvalidInput,
			fmt.Sprintf("content exceeds %d byte limit", t.maxWrite))
	}

	resolved, err := t.sandbox.Resolve(p.Path)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return nil, fmt.Errorf("create parent dir: %w", err)
	}
	if err := os.WriteFile(resolved, []byte(p.Content), 0o644); err != nil {
		return nil, fmt.Errorf("write file: %w", err)
	}

	t.logger.Debug("filesystem write", "path", resolved, "size", len(p.Content))
	return map[string]any{"path": p.Path, "bytes": len(p.Content)}, nil
}

func (t *FilesystemTool) listDir(_ context.Context, p filesystemParams) (any, error) {
	resolved, err := t.sandbox.Resolve(p.Path)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		return nil, fmt.Errorf("list dir: %w", err)
	}

	type dirEntry struct {
		Name  string `json:"name"`
		IsDir bool   `json:"is_dir"`
	}
	out := make([]dirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, dirEntry{Name: e.Name(), IsDir: e.IsDir()})
	}
	return map[string]any{"path": p.Path, "entries": out}, nil
}
