package security

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// Keys whose values are redacted from audit output. Matched as substrings
// of the lowercased key, so "api_key" and "AccessToken" both hit.
var sensitiveKeySubstrings = []string{
	"password", "token", "secret", "credential", "key", "passphrase",
}

const (
	redactedPlaceholder = "[REDACTED]"
	maxAuditFieldLen    = 256
)

// SanitizeArgs prepares tool-call arguments for the audit log: sensitive
// keys are redacted, long free-text fields are truncated, and nested maps
// are walked. Input that is not a JSON object is kept as a truncated raw
// string so the audit entry still records what was attempted.
func SanitizeArgs(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}

	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return map[string]any{"_raw": truncateField(string(raw))}
	}
	return sanitizeMap(args)
}

func sanitizeMap(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		if isSensitiveKey(k) {
			out[k] = redactedPlaceholder
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case string:
		return truncateField(val)
	case map[string]any:
		return sanitizeMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(item)
		}
		return out
	default:
		return v
	}
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, sub := range sensitiveKeySubstrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

func truncateField(s string) string {
	if len(s) <= maxAuditFieldLen {
		return s
	}
	// Back up to a rune boundary so the cut never leaves invalid UTF-8
	// in the audit line.
	cut := maxAuditFieldLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "...(truncated)"
}
