package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"lanlink/internal/session"
)

// --- Messages ---
type historyMsg []string

// --- Redraw plumbing ---

// redrawer hands console snapshots to the bubbletea loop. The console calls
// render with its lock held, so render must never block on the UI: it keeps
// only the newest pending snapshot.
type redrawer struct {
	ch chan []string
}

func newRedrawer() *redrawer {
	return &redrawer{ch: make(chan []string, 1)}
}

func (r *redrawer) render(lines []string) {
	select {
	case r.ch <- lines:
		return
	default:
	}
	// Replace the stale snapshot. Only one render runs at a time.
	select {
	case <-r.ch:
	default:
	}
	select {
	case r.ch <- lines:
	default:
	}
}

func waitForHistory(ch <-chan []string) tea.Cmd {
	return func() tea.Msg { return historyMsg(<-ch) }
}

// --- Keys ---
type keyMap struct {
	Interrupt  key.Binding
	EndOfInput key.Binding
	Submit     key.Binding
	Backspace  key.Binding
	ClearLine  key.Binding
	Scroll     key.Binding
}

var keys = keyMap{
	Interrupt:  key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	EndOfInput: key.NewBinding(key.WithKeys("ctrl+d", "ctrl+z"), key.WithHelp("ctrl+d", "quit")),
	Submit:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
	Backspace:  key.NewBinding(key.WithKeys("backspace", "ctrl+h")),
	ClearLine:  key.NewBinding(key.WithKeys("ctrl+u"), key.WithHelp("ctrl+u", "clear line")),
	Scroll:     key.NewBinding(key.WithKeys("pgup", "pgdown", "up", "down")),
}

// --- Model ---
type model struct {
	ctx      context.Context
	sess     *session.Session
	history  <-chan []string
	redraw   func()
	viewport viewport.Model
	lines    []string
	width    int
	height   int
	ready    bool
}

func initialModel(ctx context.Context, sess *session.Session, r *redrawer, redraw func()) model {
	return model{
		ctx:      ctx,
		sess:     sess,
		history:  r.ch,
		redraw:   redraw,
		viewport: viewport.New(0, 0),
	}
}

func (m model) Init() tea.Cmd {
	return waitForHistory(m.history)
}

// --- Update ---
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Interrupt), key.Matches(msg, keys.EndOfInput):
			return m, tea.Quit
		case key.Matches(msg, keys.Submit):
			m.sess.Feed(m.ctx, '\n')
		case key.Matches(msg, keys.Backspace):
			m.sess.Input().Backspace()
		case key.Matches(msg, keys.ClearLine):
			m.sess.Input().Clear()
		case key.Matches(msg, keys.Scroll):
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case msg.Type == tea.KeyRunes, msg.Type == tea.KeySpace:
			for _, r := range msg.Runes {
				m.sess.Feed(m.ctx, r)
			}
		}
		return m, nil

	case historyMsg:
		m.lines = msg
		m.viewport.SetContent(strings.Join(m.lines, "\n"))
		m.viewport.GotoBottom()
		return m, waitForHistory(m.history)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resizeComponents(msg.Width, msg.Height)
		// The console redraws through the same channel, so the snapshot
		// arrives as a historyMsg like any appended line.
		if m.redraw != nil {
			m.redraw()
		}
		return m, nil
	}
	return m, nil
}

func (m *model) resizeComponents(width, height int) {
	// Border (2) + horizontal padding (2).
	contentWidth := max(width-4, 0)

	// Input box: 1 text line + 2 border. History box border: 2. Title: 1.
	viewportHeight := max(height-3-2-1, 0)

	m.viewport.Width = contentWidth
	m.viewport.Height = viewportHeight
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

// --- View ---
var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
)

func (m model) View() string {
	if !m.ready {
		return "\n  Starting lanlink...\n"
	}

	boxStyle := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).Width(m.width - 2)

	id := m.sess.Identity()
	title := titleStyle.Render("lanlink") + mutedStyle.Render(fmt.Sprintf("  you are %s | /nick /key /help | ctrl+c quit", id.Name()))

	history := boxStyle.Render(m.viewport.View())
	input := boxStyle.Render(promptStyle.Render("> ") + m.sess.Input().Line())

	return lipgloss.JoinVertical(lipgloss.Left, title, history, input)
}
