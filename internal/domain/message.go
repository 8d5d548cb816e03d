package domain

import (
	"encoding/json"
	"fmt"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// StreamErrorContent replaces the assistant placeholder when a turn fails.
const StreamErrorContent = "Error: Could not get response."

// ChatMessage is one display-ready transcript entry.
type ChatMessage struct {
	ID          string      `json:"id"`
	Role        Role        `json:"role"`
	Content     *string     `json:"content"`
	IsStreaming bool        `json:"isStreaming"`
	ToolEvents  []ToolEvent `json:"toolEvents,omitempty"`
}

// Text returns the message content, or "" when it is null.
func (m ChatMessage) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// Clone returns a deep copy safe to hand to another goroutine.
func (m ChatMessage) Clone() ChatMessage {
	out := m
	if m.Content != nil {
		s := *m.Content
		out.Content = &s
	}
	if m.ToolEvents != nil {
		out.ToolEvents = append([]ToolEvent(nil), m.ToolEvents...)
	}
	return out
}

// MarshalJSON encodes tool events with their tag so clients can switch on "type".
func (m ChatMessage) MarshalJSON() ([]byte, error) {
	type alias ChatMessage
	events := make([]taggedToolEvent, 0, len(m.ToolEvents))
	for _, ev := range m.ToolEvents {
		events = append(events, taggedToolEvent{ev})
	}
	return json.Marshal(struct {
		alias
		ToolEvents []taggedToolEvent `json:"toolEvents"`
	}{alias: alias(m), ToolEvents: events})
}

// ToolEventKind tags a ToolEvent variant.
type ToolEventKind string

const (
	KindToolCall   ToolEventKind = "tool_call"
	KindToolReturn ToolEventKind = "tool_return"
	KindReasoning  ToolEventKind = "reasoning"
)

// ToolEvent is a closed set: ToolCall, ToolReturn and Reasoning.
type ToolEvent interface {
	Kind() ToolEventKind
	isToolEvent()
}

// ToolCall records the agent invoking a tool.
type ToolCall struct {
	Name      string `json:"name"`
	Arguments string `json:"data"`
}

// ToolReturn records a tool's result.
type ToolReturn struct {
	Data string `json:"data"`
}

// Reasoning records an agent reasoning trace.
type Reasoning struct {
	Data string `json:"data"`
}

func (ToolCall) Kind() ToolEventKind   { return KindToolCall }
func (ToolReturn) Kind() ToolEventKind { return KindToolReturn }
func (Reasoning) Kind() ToolEventKind  { return KindReasoning }

func (ToolCall) isToolEvent()   {}
func (ToolReturn) isToolEvent() {}
func (Reasoning) isToolEvent()  {}

type taggedToolEvent struct {
	ToolEvent
}

func (t taggedToolEvent) MarshalJSON() ([]byte, error) {
	switch ev := t.ToolEvent.(type) {
	case ToolCall:
		return json.Marshal(struct {
			Type ToolEventKind `json:"type"`
			ToolCall
		}{ev.Kind(), ev})
	case ToolReturn:
		return json.Marshal(struct {
			Type ToolEventKind `json:"type"`
			ToolReturn
		}{ev.Kind(), ev})
	case Reasoning:
		return json.Marshal(struct {
			Type ToolEventKind `json:"type"`
			Reasoning
		}{ev.Kind(), ev})
	default:
		return nil, fmt.Errorf("unknown tool event %T", t.ToolEvent)
	}
}

// ToolEventLabel is the one-line muted description of a tool event.
func ToolEventLabel(ev ToolEvent) string {
	switch e := ev.(type) {
	case ToolCall:
		return fmt.Sprintf("Called %s(%s)", e.Name, e.Arguments)
	case ToolReturn:
		return "Tool returned: " + e.Data
	case Reasoning:
		return "Reasoning: " + e.Data
	default:
		return ""
	}
}
