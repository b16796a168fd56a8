package usecase

import (
	"regexp"
	"strings"
	"time"

	"warden/internal/domain"
)

// Heuristic patterns cover common natural phrasings deterministically, so
// the planner is a fallback, not the norm. Task phrasings are matched
// before the generic show/read pattern: "show my tasks" is a task listing,
// never a file read.
var (
	listTasksRe = regexp.MustCompile(`(?i)^(?:list|show)\s+(?:my\s+|all\s+)?(?:tasks|todos?)\s*$`)
	addTaskRe   = regexp.MustCompile(`(?i)^(?:add\s+(?:a\s+)?task|todo)[:\s]+(.+)$`)
	doneTaskRe  = regexp.MustCompile(`(?i)^(?:done|complete|finish)\s+(?:task\s+)?(\S+)\s*$`)
	remindRe    = regexp.MustCompile(`(?i)^remind\s+me\s+(?:to\s+)?(.+)$`)
	readFileRe  = regexp.MustCompile(`(?i)^(?:read|show|open|cat)\s+(?:file\s+)?(\S+)\s*$`)
	listDirRe   = regexp.MustCompile(`(?i)^(?:list|ls)\s+(?:dir(?:ectory)?\s+|files\s+(?:in\s+)?)?(\S*)\s*$`)
	runRe       = regexp.MustCompile(`(?i)^run\s+(.+)$`)
	timeRe      = regexp.MustCompile(`(?i)^what(?:'s| is)?\s+the\s+time\??$|^what\s+time\s+is\s+it\??$`)
)

// heuristics resolves common phrasings to tool calls. Returns nil when no
// pattern matches, handing the input to the next router stage.
func heuristics(input string, now time.Time) *domain.RouteResult {
	// Task phrasings first so "show my tasks" never reads a file named
	// "my" and "list tasks" never lists a directory named "tasks".
	if listTasksRe.MatchString(input) {
		return callTool("tasks", map[string]any{"action": "list"})
	}
	if m := addTaskRe.FindStringSubmatch(input); m != nil {
		return addTaskCall(m[1], now)
	}
	if m := doneTaskRe.FindStringSubmatch(input); m != nil {
		return callTool("tasks", map[string]any{"action": "done", "id": m[1]})
	}
	if m := remindRe.FindStringSubmatch(input); m != nil {
		return remindCall(m[1])
	}
	if timeRe.MatchString(input) {
		return callTool("current_time", nil)
	}
	if m := runRe.FindStringSubmatch(input); m != nil {
		return runCommandCall(m[1])
	}
	if m := readFileRe.FindStringSubmatch(input); m != nil && looksLikePath(m[1]) {
		return callTool("filesystem", map[string]any{"action": "read", "path": m[1]})
	}
	if m := listDirRe.FindStringSubmatch(input); m != nil {
		path := m[1]
		if path == "" {
			path = "."
		}
		return callTool("filesystem", map[string]any{"action": "list", "path": path})
	}
	return nil
}

func addTaskCall(text string, now time.Time) *domain.RouteResult {
	text, priority := parsePriority(strings.TrimSpace(text))
	title, due := parseDue(text, now)

	args := map[string]any{"action": "add", "title": title}
	if due != nil {
		args["due"] = due.Format(time.RFC3339)
	}
	if priority > 0 {
		args["priority"] = priority
	}
	return callTool("tasks", args)
}

func remindCall(text string) *domain.RouteResult {
	message, minutes, ok := parseRelative(strings.TrimSpace(text))
	if !ok {
		return domain.RouteError(domain.NewDomainError("router", domain.ErrInvalidInput,
			`could not parse reminder time (try "remind me to X in 10 minutes")`))
	}
	return callTool("remind", map[string]any{"message": message, "in_minutes": minutes})
}

// looksLikePath guards the generic read pattern against bare words:
// "show status" is not a file read, "show notes.md" is.
func looksLikePath(s string) bool {
	return strings.ContainsAny(s, "./")
}
