package envelope

// EventKind is the lifecycle moment being reported (hook_event_name).
type EventKind string

const (
	PreToolUse   EventKind = "PreToolUse"
	PostToolUse  EventKind = "PostToolUse"
	Notification EventKind = "Notification"
	Stop         EventKind = "Stop"
	SubagentStop EventKind = "SubagentStop"
)

// AllKinds returns every event kind the dispatcher understands.
func AllKinds() []EventKind {
	return []EventKind{PreToolUse, PostToolUse, Notification, Stop, SubagentStop}
}

// IsToolScoped reports whether events of this kind always carry a tool name.
func (k EventKind) IsToolScoped() bool {
	return k == PreToolUse || k == PostToolUse
}

// Known reports whether k is one of AllKinds.
func (k EventKind) Known() bool {
	switch k {
	case PreToolUse, PostToolUse, Notification, Stop, SubagentStop:
		return true
	}
	return false
}

// Tool names reported by the agent in tool_name.
const (
	ToolTask         = "Task"
	ToolBash         = "Bash"
	ToolGlob         = "Glob"
	ToolGrep         = "Grep"
	ToolLS           = "LS"
	ToolExitPlanMode = "exit_plan_mode"
	ToolRead         = "Read"
	ToolEdit         = "Edit"
	ToolMultiEdit    = "MultiEdit"
	ToolWrite        = "Write"
	ToolNotebookRead = "NotebookRead"
	ToolNotebookEdit = "NotebookEdit"
	ToolWebFetch     = "WebFetch"
	ToolWebSearch    = "WebSearch"
)

// IsFileMutation reports whether the tool rewrites a file on disk.
func IsFileMutation(tool string) bool {
	switch tool {
	case ToolWrite, ToolEdit, ToolMultiEdit:
		return true
	}
	return false
}
