package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ashureev/statefultalk/internal/agents"
	"github.com/ashureev/statefultalk/internal/domain"
	"github.com/ashureev/statefultalk/internal/letta"
	"github.com/oklog/ulid/v2"
)

// ClientSource supplies the remote client and shared profile block id of
// the current device session.
type ClientSource interface {
	Client() (letta.Platform, error)
	SharedProfileBlockID() string
}

// Session is one open chat view with a character. At most one message is
// in flight at a time.
type Session struct {
	character domain.Character
	resolver  *agents.Resolver
	source    ClientSource
	logger    *slog.Logger

	mu         sync.Mutex
	agentID    string
	transcript []domain.ChatMessage
	sending    bool
}

// NewSession creates a chat view for character. Call Open before Send.
func NewSession(character domain.Character, resolver *agents.Resolver, source ClientSource, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		character: character,
		resolver:  resolver,
		source:    source,
		logger:    logger.With("character", character.Handle),
	}
}

// Character returns the character this view talks to.
func (s *Session) Character() domain.Character {
	return s.character
}

// AgentID returns the resolved agent id, or "" before Open succeeds.
func (s *Session) AgentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentID
}

// Sending reports whether a message is in flight.
func (s *Session) Sending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending
}

// Transcript returns a copy of the transcript.
func (s *Session) Transcript() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ChatMessage, len(s.transcript))
	for i, m := range s.transcript {
		out[i] = m.Clone()
	}
	return out
}

// Open resolves the character's agent and loads its history. It returns
// whether the agent was created by this call.
func (s *Session) Open(ctx context.Context) (created bool, err error) {
	client, err := s.source.Client()
	if err != nil {
		return false, err
	}

	agentID, created, err := s.resolver.Resolve(ctx, client, s.character.Handle, s.source.SharedProfileBlockID())
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	s.agentID = agentID
	s.mu.Unlock()

	history, err := client.ListMessages(ctx, agentID)
	if err != nil {
		return created, fmt.Errorf("load history: %w", err)
	}
	formatted := FormatHistory(history)

	s.mu.Lock()
	s.transcript = formatted
	s.mu.Unlock()

	s.logger.Info("chat opened",
		"agent_id", agentID,
		"created", created,
		"history", len(formatted),
	)
	return created, nil
}

// Send submits text and streams the reply into the transcript. onUpdate,
// when non-nil, receives a copy of every message that changes, in order.
// Blank text is rejected without touching the transcript. A transport
// failure marks the reply with an error and is returned.
func (s *Session) Send(ctx context.Context, text string, onUpdate func(domain.ChatMessage)) error {
	if strings.TrimSpace(text) == "" {
		return domain.ErrEmptyMessage
	}
	if onUpdate == nil {
		onUpdate = func(domain.ChatMessage) {}
	}

	client, err := s.source.Client()
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.sending {
		s.mu.Unlock()
		return domain.ErrSendInProgress
	}
	if s.agentID == "" {
		s.mu.Unlock()
		return domain.ErrAgentNotReady
	}
	agentID := s.agentID

	userText := text
	user := domain.ChatMessage{ID: ulid.Make().String(), Role: domain.RoleUser, Content: &userText}
	empty := ""
	placeholder := domain.ChatMessage{
		ID:          ulid.Make().String(),
		Role:        domain.RoleAssistant,
		Content:     &empty,
		IsStreaming: true,
		ToolEvents:  []domain.ToolEvent{},
	}
	s.transcript = append(s.transcript, user, placeholder)
	idx := len(s.transcript) - 1
	s.sending = true
	s.mu.Unlock()

	onUpdate(user.Clone())
	onUpdate(placeholder.Clone())

	log := s.logger.With("agent_id", agentID, "message_id", placeholder.ID)
	log.Info("chat message sent", "message_length", len(text))

	reducer := NewReducer(placeholder, log)
	var streamErr error
	chunks := 0
	for ev := range Pump(ctx, client.StreamMessage(ctx, agentID, text)) {
		if ev.Err != nil {
			streamErr = ev.Err
			break
		}
		chunks++
		if reducer.Apply(ev.Chunk) {
			onUpdate(s.replace(idx, reducer.Message()))
		}
	}
	if streamErr == nil && ctx.Err() != nil {
		streamErr = ctx.Err()
	}

	var final domain.ChatMessage
	if streamErr != nil {
		log.Error("chat stream failed", "chunks", chunks, "error", streamErr)
		final = reducer.Fail()
	} else {
		final = reducer.Finish()
		log.Info("chat reply complete", "chunks", chunks, "reply_length", len(final.Text()))
	}

	out := s.replace(idx, final)
	s.mu.Lock()
	s.sending = false
	s.mu.Unlock()
	onUpdate(out)

	if streamErr != nil {
		return fmt.Errorf("stream reply: %w", streamErr)
	}
	return nil
}

func (s *Session) replace(idx int, msg domain.ChatMessage) domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript[idx] = msg
	return msg.Clone()
}
