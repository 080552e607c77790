// Package llm is the completion client: named model profiles resolved to a
// backend and model, and chat-style completion requests against that
// backend.
package llm

import "context"

// Provider is the abstraction over a completion backend (OpenAI, Anthropic,
// Ollama).
type Provider interface {
	// SendMessage sends a conversation and returns the model's reply.
	SendMessage(ctx context.Context, req *Request) (*Response, error)
	// Name returns the backend identifier (e.g. "anthropic").
	Name() string
}

// Request is a full conversation sent to a backend.
type Request struct {
	// Model is the backend-native model name, without a routing prefix.
	Model        string
	SystemPrompt string
	Messages     []Message
	MaxTokens    int
	// Temperature is omitted from the wire request when nil.
	Temperature *float64
	Tools       []ToolDefinition // nil = no tool use
}

// ToolDefinition describes a tool the model can invoke.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Role identifies who sent a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in the conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// Response is what the backend returns.
type Response struct {
	Content    string
	ToolCalls  []ToolCall
	Usage      Usage
	StopReason string // "end_turn", "tool_use", "max_tokens"
	// Backend and Model record where the reply came from.
	Backend string
	Model   string
}

// HasToolUse returns true if the model is requesting tool execution.
func (r *Response) HasToolUse() bool {
	return r.StopReason == "tool_use" || len(r.ToolCalls) > 0
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int
	OutputTokens int
}
