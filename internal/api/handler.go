// Package api provides the HTTP handlers of the StatefulTalk server.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/statefultalk/internal/agents"
	"github.com/ashureev/statefultalk/internal/characters"
	"github.com/ashureev/statefultalk/internal/chat"
	"github.com/ashureev/statefultalk/internal/config"
	"github.com/ashureev/statefultalk/internal/identity"
	"github.com/ashureev/statefultalk/internal/middleware"
	"github.com/ashureev/statefultalk/internal/session"
	"github.com/ashureev/statefultalk/web"
	"github.com/containerd/errdefs/pkg/errhttp"
	"github.com/go-chi/chi/v5"
)

// ConnectionCloser closes the live chat connections of a device.
type ConnectionCloser interface {
	CloseDevice(deviceID string)
}

// Deps are the collaborators a Handler serves requests with.
type Deps struct {
	Config     *config.Config
	Sessions   *session.Registry
	Characters *characters.Directory
	// CharactersErr is the load error of the character directory, shown as a
	// data integrity banner. Characters is empty when it is set.
	CharactersErr error
	Resolver      *agents.Resolver
	Views         *chat.Views
	Limiter       *middleware.RateLimiter
	Pages         *web.Renderer
	Connections   ConnectionCloser // optional
	Logger        *slog.Logger
}

// Handler serves the JSON API and the server-rendered pages.
type Handler struct {
	cfg           *config.Config
	sessions      *session.Registry
	characters    *characters.Directory
	charactersErr error
	resolver      *agents.Resolver
	views         *chat.Views
	limiter       *middleware.RateLimiter
	pages         *web.Renderer
	conns         ConnectionCloser
	logger        *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Handler{
		cfg:           d.Config,
		sessions:      d.Sessions,
		characters:    d.Characters,
		charactersErr: d.CharactersErr,
		resolver:      d.Resolver,
		views:         d.Views,
		limiter:       d.Limiter,
		pages:         d.Pages,
		conns:         d.Connections,
		logger:        d.Logger,
	}
}

// RegisterRoutes registers the JSON API under /api.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/session", h.GetSession)
		r.Put("/credential", h.PutCredential)
		r.Delete("/credential", h.DeleteCredential)
		r.Get("/profile", h.GetProfile)
		r.Put("/profile", h.PutProfile)
		r.Get("/characters", h.ListCharacters)
		r.Get("/agents", h.ListAgents)
		r.Get("/notifications", h.Notifications)

		r.Route("/chat/{handle}", func(r chi.Router) {
			r.Post("/open", h.OpenChat)
			r.Post("/messages", h.SendMessage)
			r.Post("/reset", h.ResetChat)
		})
	})
}

// RegisterPages registers the browser pages and static assets.
func (h *Handler) RegisterPages(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(web.SecurityHeaders)
		r.Get("/", h.CharactersPage)
		r.Get("/chat/{handle}", h.ChatPage)
		r.Get("/settings", h.SettingsPage)
	})
	r.Handle("/static/*", web.Static())
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// StatusOf maps an error to its HTTP status through its errdefs class.
func StatusOf(err error) int {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return http.StatusRequestEntityTooLarge
	}
	return errhttp.ToHTTP(err)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	log := h.logger.With("path", r.URL.Path, "status", status, "device_id", identity.DeviceIDFromContext(r.Context()))
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "error", err)
	} else {
		log.Info("request rejected", "error", err)
	}
	Error(w, status, err.Error())
}

// forgetViews drops the device's open chats after its credential changed.
func (h *Handler) forgetViews(deviceID string) {
	h.views.CloseDevice(deviceID)
	if h.conns != nil {
		h.conns.CloseDevice(deviceID)
	}
}

// device returns the session of the requesting device.
func (h *Handler) device(r *http.Request) (*session.Store, error) {
	return h.sessions.Get(r.Context(), identity.DeviceIDFromContext(r.Context()))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Chat.MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		return invalidBody(err)
	}
	return nil
}
