package tui

import (
	"strings"

	"github.com/ashureev/statefultalk/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

type styles struct {
	header    lipgloss.Style
	subtle    lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	tool      lipgloss.Style
	status    lipgloss.Style
	err       lipgloss.Style
	input     lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		header:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		subtle:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		user:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).MarginTop(1),
		assistant: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).MarginTop(1),
		tool:      lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("241")),
		status:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		err:       lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		input:     lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238")),
	}
}

// View implements tea.Model.
func (m Model) View() string {
	c := m.chat.Character()

	var sb strings.Builder
	sb.WriteString(m.styles.header.Render(c.Name))
	if c.ShortDescription != "" {
		sb.WriteString(" " + m.styles.subtle.Render(c.ShortDescription))
	}
	sb.WriteString("\n")
	sb.WriteString(m.viewport.View())
	sb.WriteString("\n")
	sb.WriteString(m.statusLine())
	sb.WriteString("\n")
	sb.WriteString(m.styles.input.Render(m.textarea.View()))
	return sb.String()
}

func (m Model) statusLine() string {
	switch {
	case m.sending:
		return m.spinner.View() + " " + m.styles.status.Render(m.chat.Character().Name+" is typing...")
	case m.status != "" && m.isError:
		return m.styles.err.Render(m.status)
	case m.status != "":
		return m.styles.status.Render(m.status)
	default:
		return m.styles.subtle.Render("Enter to send, Esc to quit")
	}
}

func (m Model) renderTranscript() string {
	if len(m.transcript) == 0 {
		return m.styles.subtle.Render("Say hello to start the conversation.")
	}
	name := m.chat.Character().Name

	var sb strings.Builder
	for _, msg := range m.transcript {
		if msg.Role == domain.RoleUser {
			sb.WriteString(m.styles.user.Render("You") + "\n")
			sb.WriteString(msg.Text() + "\n")
			continue
		}

		sb.WriteString(m.styles.assistant.Render(name) + "\n")
		for _, ev := range msg.ToolEvents {
			sb.WriteString(m.styles.tool.Render("  "+domain.ToolEventLabel(ev)) + "\n")
		}
		text := msg.Text()
		if text == "" && msg.IsStreaming {
			sb.WriteString(m.styles.subtle.Render("...") + "\n")
			continue
		}
		sb.WriteString(m.renderMarkdown(text))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m Model) renderMarkdown(text string) string {
	if m.renderer == nil {
		return text
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}
