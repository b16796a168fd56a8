package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer. Every user-visible failure wraps
// exactly one of these so that ErrorCodeOf can produce a stable code.
var (
	ErrInvalidInput       = fmt.Errorf("invalid input")
	ErrToolNotFound       = fmt.Errorf("tool not found")
	ErrToolFailure        = fmt.Errorf("tool execution failed")
	ErrToolDenied         = fmt.Errorf("tool is on the deny list")
	ErrAgentNotAllowed    = fmt.Errorf("tool not in agent allowlist")
	ErrNoAgentContext     = fmt.Errorf("no agent context: only safe tools may run")
	ErrPathOutsideSandbox = fmt.Errorf("path is outside sandbox boundary")
	ErrCommandNotAllowed  = fmt.Errorf("command not in allowlist")
	ErrConfirmRequired    = fmt.Errorf("explicit confirmation required")
	ErrSchemaValidation   = fmt.Errorf("arguments failed schema validation")
	ErrRateLimit          = fmt.Errorf("rate limit exceeded")
	ErrUpstream           = fmt.Errorf("upstream service error")
	ErrAuthInvalid        = fmt.Errorf("authentication failed")
	ErrRetriesExhausted   = fmt.Errorf("retries exhausted")
	ErrConfigLoad         = fmt.Errorf("failed to load configuration")
	ErrAuditWrite         = fmt.Errorf("audit log write failed")
	ErrTaskNotFound       = fmt.Errorf("task not found")
	ErrMemoryStore        = fmt.Errorf("memory store failed")
)

// DomainError wraps a sentinel error with operation context.
type DomainError struct {
	Op     string // operation name (e.g., "Sandbox.Resolve")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category. Denial codes discriminate
// which gate rejected a call; callers and tests match on these, never on
// message text.
type ErrorCode string

const (
	CodeUnknown              ErrorCode = "UNKNOWN"
	CodeValidationError      ErrorCode = "VALIDATION_ERROR"
	CodeToolNotFound         ErrorCode = "TOOL_NOT_FOUND"
	CodeToolFailure          ErrorCode = "TOOL_FAILURE"
	CodeDeniedToolBlocklist  ErrorCode = "DENIED_TOOL_BLOCKLIST"
	CodeDeniedAgentAllowlist ErrorCode = "DENIED_AGENT_ALLOWLIST"
	CodeDeniedNoAgent        ErrorCode = "DENIED_NO_AGENT"
	CodeDeniedPathAllowlist  ErrorCode = "DENIED_PATH_ALLOWLIST"
	CodeDeniedCmdAllowlist   ErrorCode = "DENIED_COMMAND_ALLOWLIST"
	CodeNeedsConfirmation    ErrorCode = "NEEDS_CONFIRMATION"
	CodeRateLimit            ErrorCode = "RATE_LIMIT"
	CodeUpstream             ErrorCode = "UPSTREAM_ERROR"
	CodeAuthInvalid          ErrorCode = "AUTH_INVALID"
	CodeRetriesExhausted     ErrorCode = "RETRIES_EXHAUSTED"
	CodeConfigLoad           ErrorCode = "CONFIG_LOAD"
	CodeAuditWrite           ErrorCode = "AUDIT_WRITE"
	CodeTaskNotFound         ErrorCode = "TASK_NOT_FOUND"
	CodeMemoryStore          ErrorCode = "MEMORY_STORE"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrInvalidInput:       CodeValidationError,
	ErrSchemaValidation:   CodeValidationError,
	ErrToolNotFound:       CodeToolNotFound,
	ErrToolFailure:        CodeToolFailure,
	ErrToolDenied:         CodeDeniedToolBlocklist,
	ErrAgentNotAllowed:    CodeDeniedAgentAllowlist,
	ErrNoAgentContext:     CodeDeniedNoAgent,
	ErrPathOutsideSandbox: CodeDeniedPathAllowlist,
	ErrCommandNotAllowed:  CodeDeniedCmdAllowlist,
	ErrConfirmRequired:    CodeNeedsConfirmation,
	ErrRateLimit:          CodeRateLimit,
	ErrUpstream:           CodeUpstream,
	ErrAuthInvalid:        CodeAuthInvalid,
	ErrRetriesExhausted:   CodeRetriesExhausted,
	ErrConfigLoad:         CodeConfigLoad,
	ErrAuditWrite:         CodeAuditWrite,
	ErrTaskNotFound:       CodeTaskNotFound,
	ErrMemoryStore:        CodeMemoryStore,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	// Walk the error chain with errors.Is.
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// IsDenial reports whether code is a permission denial (as opposed to a
// validation error or execution fault).
func (c ErrorCode) IsDenial() bool {
	switch c {
	case CodeDeniedToolBlocklist, CodeDeniedAgentAllowlist, CodeDeniedNoAgent,
		CodeDeniedPathAllowlist, CodeDeniedCmdAllowlist:
		return true
	}
	return false
}
