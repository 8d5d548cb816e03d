// Package chat folds remote agent conversations into display transcripts.
package chat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ashureev/statefultalk/internal/domain"
	"github.com/ashureev/statefultalk/internal/letta"
)

// FormatHistory converts stored remote messages into transcript entries.
// Only user and assistant messages are kept. User messages whose content is
// a JSON object are platform-injected events (heartbeats, login notices) and
// are dropped.
func FormatHistory(msgs []letta.Message) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		var role domain.Role
		switch m.MessageType {
		case letta.MessageTypeUser:
			role = domain.RoleUser
		case letta.MessageTypeAssistant:
			role = domain.RoleAssistant
		default:
			continue
		}

		content := historyContent(m.Content)
		if role == domain.RoleUser && content != nil && isJSONObject(*content) {
			continue
		}

		id := m.ID
		if id == "" {
			id = "local"
		}
		out = append(out, domain.ChatMessage{
			ID:      fmt.Sprintf("hist-%d-%s", len(out), id),
			Role:    role,
			Content: content,
		})
	}
	return out
}

func historyContent(raw json.RawMessage) *string {
	if text, ok := letta.ContentText(raw); ok {
		return &text
	}
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil
	}
	return &s
}

func isJSONObject(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "{") && json.Valid([]byte(s))
}
