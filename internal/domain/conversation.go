package domain

import "encoding/json"

// Role identifies who produced a turn in a channel conversation.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool_result"
)

// Image is an inline image attached to a user turn.
type Image struct {
	MediaType string // "image/png", "image/jpeg", "image/gif" or "image/webp"
	Data      []byte
}

// ToolInvocation is a single tool call requested by the model.
type ToolInvocation struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult is the outcome of a ToolInvocation, keyed by the invocation ID.
type ToolResult struct {
	InvocationID string `json:"invocation_id"`
	Content      string `json:"content"`
	IsError      bool   `json:"is_error"`
}

// Turn is one entry in a channel's conversation history. The ordered list of
// turns is sent to the model verbatim on every call.
type Turn struct {
	Role        Role
	Text        string
	Images      []Image
	ToolCalls   []ToolInvocation // assistant turns only
	ToolResults []ToolResult     // tool_result turns only
}

// UserTurn builds a user turn from inbound text and images.
func UserTurn(text string, images []Image) Turn {
	return Turn{Role: RoleUser, Text: text, Images: images}
}

// HasToolCalls reports whether an assistant turn requested any tools.
func (t Turn) HasToolCalls() bool {
	return len(t.ToolCalls) > 0
}
