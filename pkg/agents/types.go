package agents

import "encoding/json"

// Agent is a remote agent resource binding a model, instructions, and a toolset.
type Agent struct {
	ID           string           `json:"id"`
	Model        string           `json:"model"`
	Name         string           `json:"name"`
	Instructions string           `json:"instructions"`
	Tools        []ToolDescriptor `json:"tools"`
	Temperature  float32          `json:"temperature"`
}

// Thread is a remote conversation container holding ordered messages.
type Thread struct {
	ID      string `json:"id"`
	AgentID string `json:"agent_id,omitempty"`
}

// Message is a single entry in a thread.
type Message struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
	Role     string `json:"role"`
	Content  string `json:"content"`
}

// FileRef identifies a file uploaded to the service.
type FileRef struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Bytes    int64  `json:"bytes"`
	Purpose  string `json:"purpose,omitempty"`
}

// VectorStore is an indexed collection of uploaded files supporting
// semantic search.
type VectorStore struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	FileIDs []string `json:"file_ids"`
}

// Tool descriptor type tags.
const (
	ToolTypeFunction        = "function"
	ToolTypeFileSearch      = "file_search"
	ToolTypeCodeInterpreter = "code_interpreter"
)

// ToolDescriptor is a tagged variant describing one tool an agent may
// invoke. Exactly one of the detail fields is set, matching Type.
type ToolDescriptor struct {
	Type            string              `json:"type"`
	Function        *FunctionDef        `json:"function,omitempty"`
	FileSearch      *FileSearchDef      `json:"file_search,omitempty"`
	CodeInterpreter *CodeInterpreterDef `json:"code_interpreter,omitempty"`
}

// FunctionDef describes a callable function including its parameters schema.
type FunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// FileSearchDef binds a file-search tool to its vector stores.
type FileSearchDef struct {
	VectorStoreIDs []string `json:"vector_store_ids"`
}

// CodeInterpreterDef lists files attached to the sandbox.
type CodeInterpreterDef struct {
	FileIDs []string `json:"file_ids,omitempty"`
}

// ToolCall is a tool invocation requested by the agent during a run.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall contains the function name and arguments for a tool call.
type FunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolOutput is the result of one dispatched tool call, submitted back
// into the run that requested it.
type ToolOutput struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}

// Run is the remote execution of one turn against a thread and agent.
type Run struct {
	ID             string          `json:"id"`
	ThreadID       string          `json:"thread_id"`
	Status         string          `json:"status"`
	RequiredAction *RequiredAction `json:"required_action,omitempty"`
	LastError      *RunError       `json:"last_error,omitempty"`
}

// RequiredAction carries the tool calls a run is suspended on.
type RequiredAction struct {
	Type              string `json:"type"`
	SubmitToolOutputs struct {
		ToolCalls []ToolCall `json:"tool_calls"`
	} `json:"submit_tool_outputs"`
}

// RunError describes a terminal run failure.
type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RunOptions parameterizes a streamed run.
type RunOptions struct {
	MaxCompletionTokens int     `json:"max_completion_tokens,omitempty"`
	MaxPromptTokens     int     `json:"max_prompt_tokens,omitempty"`
	Temperature         float32 `json:"temperature,omitempty"`
	TopP                float32 `json:"top_p,omitempty"`
}

// EventKind tags the stream event variants.
type EventKind int

const (
	// EventMessageDelta carries an incremental chunk of agent output text.
	EventMessageDelta EventKind = iota
	// EventRequiresAction signals the run is suspended on tool calls.
	EventRequiresAction
	// EventRunCompleted signals the run reached its terminal success state.
	EventRunCompleted
	// EventRunFailed signals the run reached its terminal failure state.
	EventRunFailed
	// EventDone signals the end of the event stream.
	EventDone
)

// Event is one tagged event pulled from a run stream. Delta is set for
// EventMessageDelta; Run is set for the run-level events.
type Event struct {
	Kind  EventKind
	Delta string
	Run   *Run
}

// EventStream is a pull-based sequence of run events. Next returns io.EOF
// after the final event has been consumed.
type EventStream interface {
	Next() (Event, error)
	Close() error
}
