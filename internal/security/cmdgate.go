package security

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"warden/internal/domain"
)

// safeFlagChars is the full character set permitted inside a flag argument.
// Shell metacharacters never appear here, so nothing that reaches a parsed
// argument can be reinterpreted by a shell — and execution is argv-array
// only, so there is no shell in the first place.
const safeFlagChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_=."

// commandFlags lists the short-flag letters each allowlisted command may
// take. Commands absent from this table accept no flags at all.
var commandFlags = map[string]string{
	"ls":   "lahrRt1",
	"cat":  "nbs",
	"head": "ncq",
	"tail": "ncq",
	"wc":   "lwcm",
	"grep": "inrvclE",
}

// CommandGate validates and executes allowlisted commands. Bare (non-flag)
// arguments are treated as paths and must pass the sandbox resolver; flag
// arguments are checked character by character.
type CommandGate struct {
	allowedFn func() []string
	sandbox   *Sandbox
	timeout   time.Duration
	maxOutput int64
}

// NewCommandGate creates a gate over the given sandbox. Both a timeout and
// an output ceiling are mandatory; zero values fall back to conservative
// defaults rather than "unlimited".
func NewCommandGate(allowed func() []string, sandbox *Sandbox, timeout time.Duration, maxOutput int64) *CommandGate {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxOutput <= 0 {
		maxOutput = 256 * 1024
	}
	return &CommandGate{
		allowedFn: allowed,
		sandbox:   sandbox,
		timeout:   timeout,
		maxOutput: maxOutput,
	}
}

// isAllowed re-reads the allowlist on every check so a policy reload takes
// effect without rebuilding the gate.
func (g *CommandGate) isAllowed(base string) bool {
	for _, c := range g.allowedFn() {
		if c == base {
			return true
		}
	}
	return false
}

// Check validates a proposed command invocation. It returns the argument
// list with bare path arguments replaced by their canonical resolved form.
func (g *CommandGate) Check(command string, args []string) ([]string, error) {
	const op = "CommandGate.Check"

	base := filepath.Base(command)
	if !g.isAllowed(base) {
		return nil, domain.NewDomainError(op, domain.ErrCommandNotAllowed,
			fmt.Sprintf("command %q (base %q) not in allowlist", command, base))
	}

	checked := make([]string, 0, len(args))
	for _, arg := range args {
		if strings.HasPrefix(arg, "-") {
			if err := g.checkFlag(base, arg); err != nil {
				return nil, err
			}
			checked = append(checked, arg)
			continue
		}
		resolved, err := g.sandbox.Resolve(arg)
		if err != nil {
			return nil, err
		}
		checked = append(checked, resolved)
	}
	return checked, nil
}

func (g *CommandGate) checkFlag(command, flag string) error {
	const op = "CommandGate.Check"

	for _, r := range flag {
		if !strings.ContainsRune(safeFlagChars, r) {
			return domain.NewDomainError(op, domain.ErrCommandNotAllowed,
				fmt.Sprintf("flag %q contains unsafe character %q", flag, r))
		}
	}

	letters, accepts := commandFlags[command]
	if !accepts {
		return domain.NewDomainError(op, domain.ErrCommandNotAllowed,
			fmt.Sprintf("command %q accepts no flags, got %q", command, flag))
	}
	if strings.HasPrefix(flag, "--") {
		return domain.NewDomainError(op, domain.ErrCommandNotAllowed,
			fmt.Sprintf("long flags are not allowed, got %q", flag))
	}
	for _, r := range flag[1:] {
		if !strings.ContainsRune(letters, r) {
			return domain.NewDomainError(op, domain.ErrCommandNotAllowed,
				fmt.Sprintf("flag letter %q not allowed for %q", r, command))
		}
	}
	return nil
}

// RunResult holds the captured output of a gated process run.
type RunResult struct {
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	Truncated bool   `json:"truncated,omitempty"`
	ExitError string `json:"exit_error,omitempty"`
}

// Run validates the invocation with Check, then executes it with an
// argv-array (no shell), a hard timeout, and a bounded output capture.
// The process runs in the sandbox workspace.
func (g *CommandGate) Run(ctx context.Context, command string, args []string) (*RunResult, error) {
	checked, err := g.Check(command, args)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, filepath.Base(command), checked...)
	cmd.Dir = g.sandbox.Workspace()

	stdout := &cappedBuffer{max: g.maxOutput}
	stderr := &cappedBuffer{max: g.maxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	runErr := cmd.Run()

	res := &RunResult{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.truncated || stderr.truncated,
	}
	if runErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, domain.NewDomainError("CommandGate.Run", domain.ErrToolFailure,
				fmt.Sprintf("command %q timed out after %s", command, g.timeout))
		}
		res.ExitError = runErr.Error()
	}
	return res, nil
}

// cappedBuffer keeps at most max bytes and drops the rest. Write never
// fails so the child process is not killed by a full pipe.
type cappedBuffer struct {
	buf       bytes.Buffer
	max       int64
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.max - int64(b.buf.Len())
	if room <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if int64(len(p)) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) String() string { return b.buf.String() }
