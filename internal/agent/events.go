package agent

// ToolCall is a single function call requested by the live model.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolResponse answers one ToolCall. Result is always JSON-serializable;
// error-shaped results carry "error" and "code" keys instead of throwing.
type ToolResponse struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Result map[string]any `json:"result"`
}

// ServerMessage is one event pushed by the upstream live connection.
type ServerMessage interface{ serverMessage() }

// ToolCallMessage carries a batch of function calls. The model blocks
// further generation until every call in the batch is answered.
type ToolCallMessage struct {
	Calls []ToolCall
}

// ContentMessage carries a streamed content chunk. Audio and Text may both
// be set in the same chunk.
type ContentMessage struct {
	Audio    []byte
	MimeType string
	Text     string
}

// TurnCompleteMessage is the logical last entry of a turn.
type TurnCompleteMessage struct{}

func (ToolCallMessage) serverMessage()     {}
func (ContentMessage) serverMessage()      {}
func (TurnCompleteMessage) serverMessage() {}

// EventSink receives turn output as it arrives. Implementations forward to
// the client transport (SSE in the HTTP layer); calls happen on the turn
// goroutine, in queue arrival order.
type EventSink interface {
	// Connected is emitted once, after the upstream session opens.
	Connected() error
	// FunctionCalls is emitted before the calls are dispatched, so a slow
	// tool does not delay the observer.
	FunctionCalls(calls []ToolCall) error
	AudioChunk(data []byte, mimeType string) error
	Text(text string) error
}
