package chat

import (
	"log/slog"
	"strings"

	"github.com/ashureev/statefultalk/internal/domain"
	"github.com/ashureev/statefultalk/internal/letta"
)

// Reducer folds the chunks of one streamed turn into the assistant
// placeholder message. It is not safe for concurrent use.
type Reducer struct {
	msg    domain.ChatMessage
	text   strings.Builder
	logger *slog.Logger
}

// NewReducer starts a turn for placeholder.
func NewReducer(placeholder domain.ChatMessage, logger *slog.Logger) *Reducer {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reducer{msg: placeholder.Clone(), logger: logger}
	r.text.WriteString(placeholder.Text())
	r.msg.IsStreaming = true
	return r
}

// Apply folds one chunk and reports whether the message changed.
func (r *Reducer) Apply(chunk letta.StreamChunk) bool {
	switch chunk.MessageType {
	case letta.MessageTypeAssistant:
		if text, ok := letta.ContentText(chunk.Content); ok {
			r.text.WriteString(text)
		} else if s := strings.TrimSpace(string(chunk.Content)); s != "" && s != "null" {
			r.logger.Warn("assistant chunk content has unexpected shape", "message_id", r.msg.ID)
			r.text.WriteString(s)
		}
		r.setContent()
		return true

	case letta.MessageTypeToolCall:
		var call domain.ToolCall
		if chunk.ToolCall != nil {
			call = domain.ToolCall{Name: chunk.ToolCall.Name, Arguments: chunk.ToolCall.ArgumentsText()}
		}
		r.msg.ToolEvents = append(r.msg.ToolEvents, call)
		return true

	case letta.MessageTypeToolReturn:
		r.msg.ToolEvents = append(r.msg.ToolEvents, domain.ToolReturn{Data: chunk.ToolReturnText()})
		return true

	case letta.MessageTypeReasoning:
		if chunk.Reasoning == "" {
			return false
		}
		r.msg.ToolEvents = append(r.msg.ToolEvents, domain.Reasoning{Data: chunk.Reasoning})
		return true

	case letta.MessageTypeStopReason:
		r.logger.Debug("stream stopped", "message_id", r.msg.ID, "stop_reason", chunk.StopReason)
	case letta.MessageTypeUsage:
		r.logger.Debug("stream usage",
			"message_id", r.msg.ID,
			"prompt_tokens", chunk.PromptTokens,
			"completion_tokens", chunk.CompletionTokens,
			"total_tokens", chunk.TotalTokens,
		)
	}
	return false
}

// Message returns a copy of the current message.
func (r *Reducer) Message() domain.ChatMessage {
	return r.msg.Clone()
}

// Finish marks the turn complete and returns the final message.
func (r *Reducer) Finish() domain.ChatMessage {
	r.setContent()
	r.msg.IsStreaming = false
	return r.Message()
}

// Fail replaces the content with the error marker and ends the turn.
func (r *Reducer) Fail() domain.ChatMessage {
	s := domain.StreamErrorContent
	r.msg.Content = &s
	r.msg.IsStreaming = false
	return r.Message()
}

func (r *Reducer) setContent() {
	s := r.text.String()
	r.msg.Content = &s
}
