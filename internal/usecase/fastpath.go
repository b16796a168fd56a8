package usecase

import (
	"encoding/json"
	"regexp"
	"strings"

	"warden/internal/domain"
)

// Fast-path prefixes map directly to a tool call with no further parsing.
// They are checked before any heuristic so a power user's explicit syntax
// never gets reinterpreted.
var (
	rememberPrefix = regexp.MustCompile(`^remember:\s*(.+)$`)
	recallPrefix   = regexp.MustCompile(`^recall:\s*(.+)$`)
	runPrefix      = regexp.MustCompile(`^run:\s*(.+)$`)
)

// fastpath resolves explicit prefix syntax. Returns nil when the input
// carries no recognized prefix.
func fastpath(input string) *domain.RouteResult {
	if m := rememberPrefix.FindStringSubmatch(input); m != nil {
		return callTool("remember", map[string]any{"text": strings.TrimSpace(m[1])})
	}
	if m := recallPrefix.FindStringSubmatch(input); m != nil {
		return callTool("recall", map[string]any{"query": strings.TrimSpace(m[1])})
	}
	if m := runPrefix.FindStringSubmatch(input); m != nil {
		return runCommandCall(m[1])
	}
	return nil
}

// runCommandCall splits a command line into argv. The split is whitespace
// only: quoting and shell metacharacters are not interpreted, because the
// gate executes argv directly with no shell.
func runCommandCall(line string) *domain.RouteResult {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return domain.RouteError(domain.NewDomainError("router", domain.ErrInvalidInput, "empty command"))
	}
	args := map[string]any{"command": fields[0]}
	if len(fields) > 1 {
		args["args"] = fields[1:]
	}
	return callTool("run_cmd", args)
}

func callTool(name string, args map[string]any) *domain.RouteResult {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return domain.RouteError(domain.NewDomainError("router", domain.ErrInvalidInput, err.Error()))
	}
	return domain.RouteCall(&domain.ToolCall{Name: name, Arguments: raw})
}
