package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ashureev/statefultalk/internal/agents"
	"github.com/ashureev/statefultalk/internal/domain"
	"github.com/ashureev/statefultalk/web"
	"github.com/go-chi/chi/v5"
)

const agentStatusTimeout = 10 * time.Second

// CharactersPage renders the directory with search and agent status badges.
func (h *Handler) CharactersPage(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	data := web.CharactersPageData{
		PageData: web.PageData{Title: "Characters", Nav: "characters"},
		Query:    query,
	}

	if h.charactersErr != nil {
		data.IntegrityError = h.charactersErr.Error()
		h.pages.Page(w, http.StatusOK, "characters", data)
		return
	}

	s, err := h.device(r)
	if err != nil {
		h.pageError(w, r, err)
		return
	}

	var bound map[string]string
	if client, err := s.Client(); err == nil {
		data.HasCredential = true
		ctx, cancel := context.WithTimeout(r.Context(), agentStatusTimeout)
		bound = agents.ListAllAgents(ctx, client, h.logger.With("device_id", s.DeviceID()))
		cancel()
	}

	for _, c := range h.characters.Search(query) {
		data.Characters = append(data.Characters, web.CharacterCard{
			Character: c,
			AgentID:   bound[c.AgentName()],
		})
	}
	h.pages.Page(w, http.StatusOK, "characters", data)
}

// ChatPage opens the chat view for a character and renders its transcript.
// Failures to open are shown on the page rather than as an error status.
func (h *Handler) ChatPage(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")
	if h.charactersErr != nil {
		h.pageError(w, r, h.charactersErr)
		return
	}
	character, err := h.characters.Get(handle)
	if err != nil {
		h.pageError(w, r, err)
		return
	}

	s, err := h.device(r)
	if err != nil {
		h.pageError(w, r, err)
		return
	}

	data := web.ChatPageData{
		PageData:  web.PageData{Title: character.Name, Nav: "characters"},
		Character: character,
	}
	if _, err := s.Client(); err != nil {
		h.pages.Page(w, http.StatusOK, "chat", data)
		return
	}
	data.HasCredential = true

	view, _, err := h.views.Open(r.Context(), s.DeviceID(), handle, s)
	if err != nil {
		h.logger.Warn("open chat failed", "device_id", s.DeviceID(), "character", handle, "error", err)
		data.Error = openErrorMessage(err)
		h.pages.Page(w, http.StatusOK, "chat", data)
		return
	}
	data.AgentID = view.AgentID()
	data.Messages = web.Messages(view.Transcript())
	h.pages.Page(w, http.StatusOK, "chat", data)
}

// SettingsPage renders the credential and shared profile forms.
func (h *Handler) SettingsPage(w http.ResponseWriter, r *http.Request) {
	s, err := h.device(r)
	if err != nil {
		h.pageError(w, r, err)
		return
	}
	s.EnsureProfileContent(r.Context())
	st := s.Snapshot()

	data := web.SettingsPageData{
		PageData:       web.PageData{Title: "Settings", Nav: "settings"},
		HasCredential:  st.HasCredential,
		ProfileBlockID: st.SharedProfileBlockID,
		ProfileLoading: st.ProfileLoading,
	}
	if st.SharedProfileContent != nil {
		data.ProfileContent = *st.SharedProfileContent
		data.ProfileLoaded = true
	}
	h.pages.Page(w, http.StatusOK, "settings", data)
}

func (h *Handler) pageError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("page failed", "path", r.URL.Path, "error", err)
	}
	h.pages.Error(w, status, err.Error())
}

func openErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrMissingSharedProfile):
		return "Your shared profile is still being set up. Reload the page in a moment."
	default:
		return "Could not start the chat: " + err.Error()
	}
}
