package events

const (
	// KindToolCallStatus identifies a user-facing tool status transition.
	KindToolCallStatus Kind = "tool_call.status"
	// KindToolCallStarted identifies tool call execution start.
	KindToolCallStarted Kind = "tool_call.started"
	// KindToolCallCompleted identifies successful tool call completion.
	KindToolCallCompleted Kind = "tool_call.completed"
	// KindToolCallFailed identifies tool call failure.
	KindToolCallFailed Kind = "tool_call.failed"
)

type ToolPhase string

const (
	ToolPhaseLoading   ToolPhase = "loading"
	ToolPhaseUtilizing ToolPhase = "utilizing"
	ToolPhaseCompleted ToolPhase = "completed"
	ToolPhaseFailed    ToolPhase = "failed"
)

// ToolCallStatus is a discrete status transition meant for display.
type ToolCallStatus struct {
	Base
	ID    string
	Name  string
	Phase ToolPhase
}

// NewToolCallStatus creates a tool call status event.
func NewToolCallStatus(id, name string, phase ToolPhase, opts ...BaseOption) ToolCallStatus {
	return ToolCallStatus{Base: NewBase(KindToolCallStatus, opts...), ID: id, Name: name, Phase: phase}
}

// Description renders the status line, e.g. "utilizing tool: web_search".
func (s ToolCallStatus) Description() string {
	switch s.Phase {
	case ToolPhaseLoading, ToolPhaseUtilizing:
		return string(s.Phase) + " tool: " + s.Name
	case ToolPhaseCompleted:
		return "used tool: " + s.Name
	case ToolPhaseFailed:
		return "tool failed: " + s.Name
	}
	return s.Name
}

// ToolCallStarted marks start of tool execution.
type ToolCallStarted struct {
	Base
	ID        string
	Name      string
	Arguments string
}

// NewToolCallStarted creates a tool call started event.
func NewToolCallStarted(id, name, arguments string, opts ...BaseOption) ToolCallStarted {
	return ToolCallStarted{Base: NewBase(KindToolCallStarted, opts...), ID: id, Name: name, Arguments: arguments}
}

// ToolCallCompleted marks successful tool execution.
type ToolCallCompleted struct {
	Base
	ID        string
	Name      string
	Response  string
	Truncated bool
}

// NewToolCallCompleted creates a tool call completed event.
func NewToolCallCompleted(id, name, response string, truncated bool, opts ...BaseOption) ToolCallCompleted {
	return ToolCallCompleted{Base: NewBase(KindToolCallCompleted, opts...), ID: id, Name: name, Response: response, Truncated: truncated}
}

// ToolCallFailed marks failed tool execution.
type ToolCallFailed struct {
	Base
	ID    string
	Name  string
	Error string
}

// NewToolCallFailed creates a tool call failed event.
func NewToolCallFailed(id, name, err string, opts ...BaseOption) ToolCallFailed {
	return ToolCallFailed{Base: NewBase(KindToolCallFailed, opts...), ID: id, Name: name, Error: err}
}
