package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatMessageJSONTagsToolEvents(t *testing.T) {
	content := "hi"
	msg := ChatMessage{
		ID:      "m1",
		Role:    RoleAssistant,
		Content: &content,
		ToolEvents: []ToolEvent{
			ToolCall{Name: "web_search", Arguments: `{"q":"x"}`},
			ToolReturn{Data: "ok"},
			Reasoning{Data: "thinking"},
		},
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var got struct {
		ID          string           `json:"id"`
		Role        string           `json:"role"`
		Content     *string          `json:"content"`
		IsStreaming bool             `json:"isStreaming"`
		ToolEvents  []map[string]any `json:"toolEvents"`
	}
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, "assistant", got.Role)
	require.NotNil(t, got.Content)
	assert.Equal(t, "hi", *got.Content)
	require.Len(t, got.ToolEvents, 3)
	assert.Equal(t, "tool_call", got.ToolEvents[0]["type"])
	assert.Equal(t, "web_search", got.ToolEvents[0]["name"])
	assert.Equal(t, `{"q":"x"}`, got.ToolEvents[0]["data"])
	assert.Equal(t, "tool_return", got.ToolEvents[1]["type"])
	assert.Equal(t, "reasoning", got.ToolEvents[2]["type"])
}

func TestChatMessageNullContent(t *testing.T) {
	data, err := json.Marshal(ChatMessage{ID: "m1", Role: RoleUser})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"content":null`)
}

func TestCloneDoesNotAlias(t *testing.T) {
	content := "a"
	orig := ChatMessage{ID: "m", Content: &content, ToolEvents: []ToolEvent{Reasoning{Data: "r"}}}
	cp := orig.Clone()

	*cp.Content = "b"
	cp.ToolEvents[0] = ToolReturn{Data: "x"}

	assert.Equal(t, "a", orig.Text())
	assert.Equal(t, KindReasoning, orig.ToolEvents[0].Kind())
}

func TestAgentName(t *testing.T) {
	c := Character{Handle: "ada", Name: "Ada Lovelace"}
	assert.Equal(t, "character_ada", c.AgentName())
	assert.Equal(t, "Ad", c.Initials(2))
}

func TestToolEventLabel(t *testing.T) {
	assert.Equal(t, `Called web_search({"q":"x"})`, ToolEventLabel(ToolCall{Name: "web_search", Arguments: `{"q":"x"}`}))
	assert.Equal(t, "Tool returned: 42", ToolEventLabel(ToolReturn{Data: "42"}))
	assert.Equal(t, "Reasoning: think", ToolEventLabel(Reasoning{Data: "think"}))
	assert.Empty(t, ToolEventLabel(nil))
}
