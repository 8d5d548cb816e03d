package api

import (
	"net/http"

	"github.com/ashureev/statefultalk/internal/agents"
	"github.com/ashureev/statefultalk/internal/domain"
)

// ListCharacters returns the character directory, filtered by ?q=.
func (h *Handler) ListCharacters(w http.ResponseWriter, r *http.Request) {
	if h.charactersErr != nil {
		h.fail(w, r, h.charactersErr)
		return
	}
	list := h.characters.Search(r.URL.Query().Get("q"))
	if list == nil {
		list = []domain.Character{}
	}
	JSON(w, http.StatusOK, map[string]any{"characters": list})
}

// ListAgents returns the agent directory of the device's account as a map
// of agent name to agent id. Listing failures degrade to a partial map.
func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
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
	dir := agents.ListAllAgents(r.Context(), client, h.logger.With("device_id", s.DeviceID()))
	JSON(w, http.StatusOK, map[string]any{"agents": dir})
}
