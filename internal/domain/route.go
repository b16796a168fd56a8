package domain

// RouteMode discriminates the populated variant of a RouteResult.
type RouteMode string

const (
	RouteModeToolCall RouteMode = "tool_call"
	RouteModeReply    RouteMode = "reply"
)

// RouteResult is the outcome of routing one piece of user input. Exactly one
// variant is populated: Error (no mode), or Mode=tool_call with ToolCall, or
// Mode=reply with Reply.
type RouteResult struct {
	Mode     RouteMode  `json:"mode,omitempty"`
	ToolCall *ToolCall  `json:"tool_call,omitempty"`
	Reply    string     `json:"reply,omitempty"`
	Error    *ToolError `json:"error,omitempty"`
}

// RouteReply builds a reply-mode result.
func RouteReply(text string) *RouteResult {
	return &RouteResult{Mode: RouteModeReply, Reply: text}
}

// RouteCall builds a tool-call-mode result.
func RouteCall(call *ToolCall) *RouteResult {
	return &RouteResult{Mode: RouteModeToolCall, ToolCall: call}
}

// RouteError builds an error result from any error, deriving the stable code.
func RouteError(err error) *RouteResult {
	return &RouteResult{Error: &ToolError{Code: ErrorCodeOf(err), Message: err.Error()}}
}
