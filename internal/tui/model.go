// Package tui is the terminal chat view used by the statefultalk CLI.
//
// The model drives one chat.Session: Enter sends the input, the transcript
// is re-rendered after every streamed update, and the input is disabled
// until the turn finishes.
package tui

import (
	"context"
	"strings"

	"github.com/ashureev/statefultalk/internal/domain"
	"github.com/ashureev/statefultalk/internal/notify"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
)

const (
	defaultWidth  = 80
	defaultHeight = 24
	inputHeight   = 3
	chromeHeight  = 4 // header, status line and input border
)

// Chat is the open chat view the model sends through.
type Chat interface {
	Character() domain.Character
	Transcript() []domain.ChatMessage
	Send(ctx context.Context, text string, onUpdate func(domain.ChatMessage)) error
}

// NoticeSource drains pending notifications for the status line.
type NoticeSource func() []notify.Notice

// updateMsg carries one streamed message update.
type updateMsg struct {
	message domain.ChatMessage
}

// turnDoneMsg ends a send.
type turnDoneMsg struct {
	err error
}

// Model is the bubbletea model of a chat.
type Model struct {
	ctx     context.Context
	chat    Chat
	notices NoticeSource

	transcript []domain.ChatMessage
	viewport   viewport.Model
	textarea   textarea.Model
	spinner    spinner.Model
	renderer   *glamour.TermRenderer
	styles     styles

	events  chan tea.Msg
	sending bool
	status  string
	isError bool
	width   int
}

// New creates a model over an opened chat. notices may be nil.
func New(ctx context.Context, chat Chat, notices NoticeSource) Model {
	ta := textarea.New()
	ta.Placeholder = "Message " + chat.Character().Name + "... (Enter to send, Esc to quit)"
	ta.ShowLineNumbers = false
	ta.SetHeight(inputHeight)
	ta.CharLimit = 0
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		ctx:        ctx,
		chat:       chat,
		notices:    notices,
		transcript: chat.Transcript(),
		textarea:   ta,
		spinner:    sp,
		styles:     defaultStyles(),
	}
	m.resize(defaultWidth, defaultHeight)
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.send()
		}
		if m.sending {
			return m, nil
		}
		var cmd tea.Cmd
		m.textarea, cmd = m.textarea.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case spinner.TickMsg:
		if !m.sending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case updateMsg:
		m.upsert(msg.message)
		m.refresh()
		return m, waitForEvent(m.events)

	case turnDoneMsg:
		m.sending = false
		m.events = nil
		m.status, m.isError = "", false
		if msg.err != nil {
			m.status, m.isError = msg.err.Error(), true
		}
		m.drainNotices()
		m.refresh()
		return m, m.textarea.Focus()

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

// send starts a turn with the input text. Blank input and input typed while
// a turn is running are ignored.
func (m Model) send() (tea.Model, tea.Cmd) {
	if m.sending {
		return m, nil
	}
	text := strings.TrimSpace(m.textarea.Value())
	if text == "" {
		return m, nil
	}
	m.textarea.Reset()
	m.textarea.Blur()
	m.sending = true
	m.status, m.isError = "", false

	events := make(chan tea.Msg, 16)
	m.events = events
	go func(ctx context.Context, chat Chat) {
		err := chat.Send(ctx, text, func(msg domain.ChatMessage) {
			events <- updateMsg{message: msg}
		})
		events <- turnDoneMsg{err: err}
		close(events)
	}(m.ctx, m.chat)

	return m, tea.Batch(m.spinner.Tick, waitForEvent(events))
}

func waitForEvent(events <-chan tea.Msg) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return nil
		}
		return msg
	}
}

// upsert replaces the message with the same id or appends it.
func (m *Model) upsert(msg domain.ChatMessage) {
	for i := len(m.transcript) - 1; i >= 0; i-- {
		if m.transcript[i].ID == msg.ID {
			m.transcript[i] = msg
			return
		}
	}
	m.transcript = append(m.transcript, msg)
}

func (m *Model) drainNotices() {
	if m.notices == nil {
		return
	}
	notices := m.notices()
	if len(notices) == 0 {
		return
	}
	last := notices[len(notices)-1]
	m.status = last.Title
	if last.Description != "" {
		m.status += ": " + last.Description
	}
	m.isError = last.Variant == notify.VariantDestructive
}

func (m *Model) resize(width, height int) {
	m.width = width
	vpHeight := height - inputHeight - chromeHeight
	if vpHeight < 1 {
		vpHeight = 1
	}
	m.viewport = viewport.New(width, vpHeight)
	m.textarea.SetWidth(max(width-2, 1))

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(max(width-4, 20)),
	)
	if err == nil {
		m.renderer = renderer
	}
	m.refresh()
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}
