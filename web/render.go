package web

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/ashureev/statefultalk/internal/domain"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title string
	Nav   string // active nav item: "characters", "settings"
}

// CharacterCard is one entry on the characters page.
type CharacterCard struct {
	domain.Character
	AgentID string
}

// HasAgent reports whether a remote agent is already bound to the card.
func (c CharacterCard) HasAgent() bool {
	return c.AgentID != ""
}

// CharactersPageData is the template data for the directory page.
type CharactersPageData struct {
	PageData
	Query          string
	Characters     []CharacterCard
	HasCredential  bool
	IntegrityError string
}

// MessageView is a transcript entry with its content rendered to HTML.
type MessageView struct {
	domain.ChatMessage
	HTML template.HTML
}

// ChatPageData is the template data for a chat view.
type ChatPageData struct {
	PageData
	Character     domain.Character
	AgentID       string
	Messages      []MessageView
	HasCredential bool
	Error         string
}

// SettingsPageData is the template data for the settings page.
type SettingsPageData struct {
	PageData
	HasCredential  bool
	ProfileBlockID string
	ProfileContent string
	ProfileLoaded  bool
	ProfileLoading bool
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	logger    *slog.Logger
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// NewRenderer parses the embedded page templates.
func NewRenderer(logger *slog.Logger) (*Renderer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("template sub filesystem: %w", err)
	}

	funcMap := template.FuncMap{
		"markdown":  RenderMarkdown,
		"initials":  func(c domain.Character) string { return c.Initials(2) },
		"toolEvent": domain.ToolEventLabel,
	}
	layout, err := template.New("layout").Funcs(funcMap).ParseFS(sub, "layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	pages := map[string]string{
		"characters": "characters.html",
		"chat":       "chat.html",
		"settings":   "settings.html",
		"error":      "error.html",
	}
	templates := make(map[string]*template.Template, len(pages))
	for name, file := range pages {
		t, err := layout.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone layout for %s: %w", name, err)
		}
		if _, err := t.ParseFS(sub, file); err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		templates[name] = t
	}
	return &Renderer{templates: templates, logger: logger}, nil
}

// Page renders a named page with the given status code.
func (r *Renderer) Page(w http.ResponseWriter, status int, name string, data any) {
	t, ok := r.templates[name]
	if !ok {
		r.logger.Error("template not found", "template", name)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		r.logger.Error("template execution failed", "template", name, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// Error renders the error page.
func (r *Renderer) Error(w http.ResponseWriter, status int, message string) {
	r.Page(w, status, "error", ErrorPageData{
		PageData:   PageData{Title: http.StatusText(status)},
		StatusCode: status,
		Message:    message,
	})
}

// RenderMarkdown converts chat content to HTML. Raw HTML in the source is
// escaped, not passed through.
func RenderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String()) //nolint:gosec // goldmark output without the unsafe renderer option
}

// Messages renders a transcript for the chat page.
func Messages(transcript []domain.ChatMessage) []MessageView {
	out := make([]MessageView, 0, len(transcript))
	for _, m := range transcript {
		out = append(out, MessageView{ChatMessage: m, HTML: RenderMarkdown(m.Text())})
	}
	return out
}
