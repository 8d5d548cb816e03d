// Package letta is a client for the Letta agent platform REST API.
package letta

import (
	"encoding/json"
	"strings"
)

// Message types reported by the platform.
const (
	MessageTypeUser       = "user_message"
	MessageTypeAssistant  = "assistant_message"
	MessageTypeSystem     = "system_message"
	MessageTypeToolCall   = "tool_call_message"
	MessageTypeToolReturn = "tool_return_message"
	MessageTypeReasoning  = "reasoning_message"
	MessageTypeStopReason = "stop_reason"
	MessageTypeUsage      = "usage_statistics"
)

// Agent is a remote agent.
type Agent struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Model       string `json:"model,omitempty"`
}

// AgentPage is one page of an agent listing.
type AgentPage struct {
	Agents     []Agent
	NextCursor string
}

// ListAgentsParams filters an agent listing.
type ListAgentsParams struct {
	Name   string
	Cursor string
	Limit  int
}

// MemoryBlock is an inline block created together with an agent.
type MemoryBlock struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// CreateAgentParams describes a new agent.
type CreateAgentParams struct {
	Name         string        `json:"name"`
	MemoryBlocks []MemoryBlock `json:"memory_blocks,omitempty"`
	BlockIDs     []string      `json:"block_ids,omitempty"`
	Tools        []string      `json:"tools,omitempty"`
	Model        string        `json:"model,omitempty"`
	Embedding    string        `json:"embedding,omitempty"`
}

// Block is a standalone memory block that can be attached to many agents.
type Block struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
}

// ListBlocksParams filters a block listing.
type ListBlocksParams struct {
	Label string
	Limit int
}

// CreateBlockParams describes a new block.
type CreateBlockParams struct {
	Label       string `json:"label"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
}

// Message is one entry of an agent's stored conversation history.
type Message struct {
	ID          string          `json:"id"`
	MessageType string          `json:"message_type"`
	Content     json.RawMessage `json:"content,omitempty"`
}

// Text returns the message content as plain text.
func (m Message) Text() string {
	text, _ := ContentText(m.Content)
	return text
}

// ToolCallInfo is the tool invocation carried by a tool_call_message.
// Arguments is usually a JSON-encoded string but may be an object.
type ToolCallInfo struct {
	Name       string          `json:"name"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

// ArgumentsText returns the arguments as text.
func (c ToolCallInfo) ArgumentsText() string {
	return RawText(c.Arguments)
}

// Usage carries token accounting from a usage_statistics chunk.
type Usage struct {
	CompletionTokens int `json:"completion_tokens"`
	PromptTokens     int `json:"prompt_tokens"`
	TotalTokens      int `json:"total_tokens"`
	StepCount        int `json:"step_count"`
}

// StreamChunk is one decoded event of a streamed agent turn.
type StreamChunk struct {
	ID          string          `json:"id,omitempty"`
	MessageType string          `json:"message_type"`
	Content     json.RawMessage `json:"content,omitempty"`
	ToolCall    *ToolCallInfo   `json:"tool_call,omitempty"`
	ToolReturn  json.RawMessage `json:"tool_return,omitempty"`
	Reasoning   string          `json:"reasoning,omitempty"`
	StopReason  string          `json:"stop_reason,omitempty"`
	Usage
}

// ToolReturnText returns the tool result as text.
func (c StreamChunk) ToolReturnText() string {
	return RawText(c.ToolReturn)
}

// RawText returns a JSON string value unquoted and any other JSON value as
// its raw encoding. Null and missing values yield "".
func RawText(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return trimmed
}

// ContentPart is one element of a multi-part content list.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ContentText flattens message content into text. A JSON string is
// returned as is; a list of parts yields the concatenated text parts.
// ok is false for null, missing, or any other shape.
func ContentText(raw json.RawMessage) (text string, ok bool) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}

	var parts []ContentPart
	if err := json.Unmarshal(raw, &parts); err == nil {
		var b strings.Builder
		for _, p := range parts {
			if p.Type == "text" {
				b.WriteString(p.Text)
			}
		}
		return b.String(), true
	}
	return "", false
}
