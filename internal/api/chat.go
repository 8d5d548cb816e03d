package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/statefultalk/internal/domain"
	"github.com/go-chi/chi/v5"
)

type openResponse struct {
	Character domain.Character     `json:"character"`
	AgentID   string               `json:"agentId"`
	Created   bool                 `json:"created"`
	Messages  []domain.ChatMessage `json:"messages"`
}

type messageRequest struct {
	Content string `json:"content"`
}

// OpenChat resolves the character's agent for the device and returns the
// conversation history. Opening again re-resolves.
func (h *Handler) OpenChat(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")
	s, err := h.device(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	view, created, err := h.views.Open(r.Context(), s.DeviceID(), handle, s)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	JSON(w, http.StatusOK, openResponse{
		Character: view.Character(),
		AgentID:   view.AgentID(),
		Created:   created,
		Messages:  view.Transcript(),
	})
}

// SendMessage sends a user message and streams the reply as server-sent
// events: "message" for every transcript update, then "done" or "error".
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")

	var req messageRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		h.fail(w, r, domain.ErrEmptyMessage)
		return
	}

	s, err := h.device(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !h.limiter.Allow(s.DeviceID()) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	view, err := h.views.GetOrOpen(r.Context(), s.DeviceID(), handle, s)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if view.Sending() {
		h.fail(w, r, domain.ErrSendInProgress)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log := h.logger.With("device_id", s.DeviceID(), "character", handle)
	sse := &sseWriter{w: w, flusher: flusher, logger: log}
	stop := sse.keepalive(h.cfg.Chat.SSEKeepalive)

	// The turn runs to completion even if the browser goes away, so the
	// transcript and the remote agent stay in step.
	err = view.Send(context.WithoutCancel(r.Context()), req.Content, func(m domain.ChatMessage) {
		sse.event("message", m)
	})
	stop()

	if err != nil {
		sse.event("error", map[string]any{"error": err.Error(), "status": StatusOf(err)})
		return
	}
	sse.event("done", map[string]string{"agentId": view.AgentID()})
}

// ResetChat deletes the character's agent. The next open creates a fresh
// one bound to the same shared profile.
func (h *Handler) ResetChat(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")
	s, err := h.device(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	client, err := s.Client()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	deleted, err := h.resolver.Reset(r.Context(), client, handle)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.views.Close(s.DeviceID(), handle)

	JSON(w, http.StatusOK, map[string]string{"deletedAgentId": deleted})
}

// sseWriter serializes event writes from the send loop and the keepalive
// ticker. After the first failed write it drops everything.
type sseWriter struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	logger  *slog.Logger
	broken  bool
}

func (s *sseWriter) event(event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("failed to marshal SSE event", "event", event, "error", err)
		return
	}
	s.write(event, string(data))
}

func (s *sseWriter) write(event, data string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken {
		return
	}
	if err := writeSSE(s.w, event, data); err != nil {
		s.broken = true
		s.logger.Debug("SSE client went away", "event", event, "error", err)
		return
	}
	s.flusher.Flush()
}

func (s *sseWriter) keepalive(every time.Duration) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.write("ping", `{"status":"alive"}`)
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
