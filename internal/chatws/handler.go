package chatws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/ashureev/statefultalk/internal/chat"
	"github.com/ashureev/statefultalk/internal/domain"
	"github.com/ashureev/statefultalk/internal/identity"
	"github.com/ashureev/statefultalk/internal/middleware"
	"github.com/ashureev/statefultalk/internal/session"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/containerd/errdefs/pkg/errhttp"
	"github.com/go-chi/chi/v5"
)

// Message types exchanged with the browser.
const (
	TypeSend    = "send"
	TypePing    = "ping"
	TypeHistory = "history"
	TypeMessage = "message"
	TypeDone    = "done"
	TypeError   = "error"
	TypePong    = "pong"
)

// ClientMessage is a frame sent by the browser.
type ClientMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// ServerMessage is a frame sent to the browser.
type ServerMessage struct {
	Type     string               `json:"type"`
	AgentID  string               `json:"agentId,omitempty"`
	Message  *domain.ChatMessage  `json:"message,omitempty"`
	Messages []domain.ChatMessage `json:"messages,omitempty"`
	Error    string               `json:"error,omitempty"`
	Status   int                  `json:"status,omitempty"`
}

// Handler upgrades /ws/chat/{handle} and drives one chat view per
// connection.
type Handler struct {
	sessions       *session.Registry
	views          *chat.Views
	limiter        *middleware.RateLimiter
	mgr            *Manager
	allowedOrigins []string
	isDev          bool
	logger         *slog.Logger
}

// NewHandler creates a WebSocket chat handler.
func NewHandler(sessions *session.Registry, views *chat.Views, limiter *middleware.RateLimiter, mgr *Manager, allowedOrigins []string, isDev bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sessions:       sessions,
		views:          views,
		limiter:        limiter,
		mgr:            mgr,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
		logger:         logger,
	}
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	deviceID := identity.DeviceIDFromContext(r.Context())
	handle := chi.URLParam(r, "handle")
	log := h.logger.With("device_id", deviceID, "character", handle)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			log.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	store, err := h.sessions.Get(ctx, deviceID)
	if err != nil {
		h.writeError(ctx, ws, err, log)
		return
	}
	view, err := h.views.GetOrOpen(ctx, deviceID, handle, store)
	if err != nil {
		log.Warn("open chat over websocket failed", "error", err)
		h.writeError(ctx, ws, err, log)
		return
	}

	h.mgr.Register(deviceID, handle, ws)
	defer h.mgr.Unregister(deviceID, handle, ws)

	if err := wsjson.Write(ctx, ws, ServerMessage{
		Type:     TypeHistory,
		AgentID:  view.AgentID(),
		Messages: view.Transcript(),
	}); err != nil {
		log.Debug("Failed to send history", "error", err)
		return
	}

	var turns sync.WaitGroup
	defer turns.Wait()
	h.readLoop(ctx, ws, view, deviceID, &turns, log)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || origin == allowed {
			return true
		}
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin)
	return false
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, view *chat.Session, deviceID string, turns *sync.WaitGroup, log *slog.Logger) {
	for {
		var msg ClientMessage
		if err := wsjson.Read(ctx, ws, &msg); err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				log.Debug("WebSocket closed by client")
			} else {
				log.Warn("WebSocket read error", "error", err)
			}
			return
		}

		switch msg.Type {
		case TypePing:
			if err := wsjson.Write(ctx, ws, ServerMessage{Type: TypePong}); err != nil {
				log.Debug("Failed to send pong", "error", err)
			}
		case TypeSend:
			if strings.TrimSpace(msg.Content) == "" {
				h.writeError(ctx, ws, domain.ErrEmptyMessage, log)
				continue
			}
			if !h.limiter.Allow(deviceID) {
				_ = wsjson.Write(ctx, ws, ServerMessage{Type: TypeError, Error: "rate limit exceeded", Status: http.StatusTooManyRequests})
				continue
			}
			turns.Add(1)
			go func(content string) {
				defer turns.Done()
				h.turn(ctx, ws, view, content, log)
			}(msg.Content)
		default:
			log.Debug("Ignoring unknown WebSocket message", "type", msg.Type)
		}
	}
}

// turn runs one send. It outlives the connection so the transcript and the
// remote agent stay in step; writes after a disconnect are dropped.
func (h *Handler) turn(ctx context.Context, ws *websocket.Conn, view *chat.Session, content string, log *slog.Logger) {
	err := view.Send(context.WithoutCancel(ctx), content, func(m domain.ChatMessage) {
		if ctx.Err() != nil {
			return
		}
		if err := wsjson.Write(ctx, ws, ServerMessage{Type: TypeMessage, Message: &m}); err != nil {
			log.Debug("Failed to send message update", "error", err)
		}
	})
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		h.writeError(ctx, ws, err, log)
		return
	}
	if err := wsjson.Write(ctx, ws, ServerMessage{Type: TypeDone, AgentID: view.AgentID()}); err != nil {
		log.Debug("Failed to send done", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, ws *websocket.Conn, err error, log *slog.Logger) {
	msg := ServerMessage{Type: TypeError, Error: err.Error(), Status: errhttp.ToHTTP(err)}
	if writeErr := wsjson.Write(ctx, ws, msg); writeErr != nil {
		log.Debug("Failed to send error", "error", writeErr)
	}
}
