package api

import (
	"fmt"
	"net/http"

	"github.com/ashureev/statefultalk/internal/identity"
	"github.com/ashureev/statefultalk/internal/notify"
	"github.com/containerd/errdefs"
)

type credentialRequest struct {
	APIKey string `json:"apiKey"`
}

type profileRequest struct {
	Content string `json:"content"`
}

func invalidBody(err error) error {
	return fmt.Errorf("invalid request body (%s): %w", err.Error(), errdefs.ErrInvalidArgument)
}

// GetSession returns the device's session state.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.device(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, s.Snapshot())
}

// PutCredential validates an API key against the platform and saves it.
// Saving starts the shared profile bootstrap in the background.
func (h *Handler) PutCredential(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	s, err := h.device(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := s.ValidateCredential(r.Context(), req.APIKey); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := s.SetCredential(r.Context(), &req.APIKey); err != nil {
		h.fail(w, r, err)
		return
	}
	h.forgetViews(s.DeviceID())

	JSON(w, http.StatusOK, s.Snapshot())
}

// DeleteCredential removes the stored API key and everything derived from it.
func (h *Handler) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	s, err := h.device(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := s.SetCredential(r.Context(), nil); err != nil {
		h.fail(w, r, err)
		return
	}
	h.forgetViews(s.DeviceID())

	JSON(w, http.StatusOK, s.Snapshot())
}

// GetProfile returns the shared profile, fetching its content on first use.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	s, err := h.device(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s.EnsureProfileContent(r.Context())
	JSON(w, http.StatusOK, s.Snapshot())
}

// PutProfile replaces the shared profile content.
func (h *Handler) PutProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	s, err := h.device(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := s.UpdateSharedProfileContent(r.Context(), req.Content); err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, s.Snapshot())
}

// Notifications drains the device's pending notices.
func (h *Handler) Notifications(w http.ResponseWriter, r *http.Request) {
	notices := h.sessions.Notices().Drain(identity.DeviceIDFromContext(r.Context()))
	if notices == nil {
		notices = []notify.Notice{}
	}
	JSON(w, http.StatusOK, map[string]any{"notifications": notices})
}
