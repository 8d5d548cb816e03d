package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ashureev/statefultalk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func str(s string) *string { return &s }

func TestRenderMarkdown(t *testing.T) {
	html := string(RenderMarkdown("Hello **world**\n\n| a | b |\n|---|---|\n| 1 | 2 |"))
	assert.Contains(t, html, "<strong>world</strong>")
	assert.Contains(t, html, "<table>")

	raw := string(RenderMarkdown(`<script>alert("x")</script>`))
	assert.NotContains(t, raw, "<script>")
}

func TestMessages(t *testing.T) {
	views := Messages([]domain.ChatMessage{
		{ID: "u", Role: domain.RoleUser, Content: str("hi")},
		{ID: "a", Role: domain.RoleAssistant, Content: nil, IsStreaming: true},
	})
	require.Len(t, views, 2)
	assert.Contains(t, string(views[0].HTML), "<p>hi</p>")
	assert.Empty(t, strings.TrimSpace(string(views[1].HTML)))
}

func TestRendererPages(t *testing.T) {
	r, err := NewRenderer(nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r.Page(rec, http.StatusOK, "chat", ChatPageData{
		PageData:      PageData{Title: "Ada", Nav: "characters"},
		Character:     domain.Character{Handle: "ada", Name: "Ada Lovelace"},
		AgentID:       "agent-1",
		HasCredential: true,
		Messages: Messages([]domain.ChatMessage{{
			ID: "a", Role: domain.RoleAssistant, Content: str("*hi*"),
			ToolEvents: []domain.ToolEvent{domain.ToolCall{Name: "web_search", Arguments: "{}"}},
		}}),
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "<em>hi</em>")
	assert.Contains(t, body, "Called web_search")
	assert.Contains(t, body, `id="composer"`)

	rec = httptest.NewRecorder()
	r.Error(rec, http.StatusNotFound, "no such character")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "no such character")

	rec = httptest.NewRecorder()
	r.Page(rec, http.StatusOK, "missing", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStaticAndSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(Static())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/style.css", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "default-src 'self'")

	rec = httptest.NewRecorder()
	Static().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/avatars/ada.svg", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
