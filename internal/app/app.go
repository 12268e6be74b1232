// Package app is the full-screen watch mode: a status bar over a scrollable
// feed of the same text the printer writes.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/docfeed/dslisten/internal/event"
	"github.com/docfeed/dslisten/internal/theme"
	"github.com/docfeed/dslisten/internal/views/feed"
	"github.com/docfeed/dslisten/internal/views/status"
	"github.com/rs/zerolog/log"
)

// Feed delivers events one at a time. *client.Subscription implements it.
type Feed interface {
	Next(ctx context.Context) (event.Event, error)
}

// EventMsg carries one received event.
type EventMsg struct {
	Event event.Event
	At    time.Time
}

// DecodeErrorMsg reports a frame that could not be decoded.
type DecodeErrorMsg struct{ Err *event.DecodeError }

// FeedEndedMsg reports that the feed stopped. Err is nil after a clean close.
type FeedEndedMsg struct{ Err error }

// Model is the root Bubble Tea model.
type Model struct {
	src    Feed
	ctx    context.Context
	cancel context.CancelFunc

	keys   KeyMap
	width  int
	height int

	statusBar status.Model
	feed      feed.Model

	err error
	now func() time.Time
}

// New creates the root model reading from src.
func New(ctx context.Context, src Feed, principal, server string) Model {
	ctx, cancel := context.WithCancel(ctx)
	return Model{
		src:       src,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		statusBar: status.New(principal, server),
		feed:      feed.New(),
		now:       time.Now,
	}
}

// Init starts reading the feed.
func (m Model) Init() tea.Cmd {
	return m.next()
}

// next reads a single event; Update schedules it again after each one.
func (m Model) next() tea.Cmd {
	src, ctx, now := m.src, m.ctx, m.now
	return func() tea.Msg {
		ev, err := src.Next(ctx)
		if err != nil {
			var de *event.DecodeError
			if errors.As(err, &de) {
				return DecodeErrorMsg{Err: de}
			}
			if ctx.Err() != nil {
				return FeedEndedMsg{}
			}
			return FeedEndedMsg{Err: err}
		}
		return EventMsg{Event: ev, At: now()}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case EventMsg:
		m.add(msg)
		return m, m.next()

	case DecodeErrorMsg:
		m.statusBar.Dropped++
		log.Error().Err(msg.Err.Err).Uint64("seq", msg.Err.Seq).Str("raw", string(msg.Err.Raw)).Msg("malformed event skipped")
		return m, m.next()

	case FeedEndedMsg:
		m.statusBar.Connected = false
		m.statusBar.Err = msg.Err
		m.err = msg.Err
		return m, nil
	}

	return m, nil
}

// add records one event. A panic while rendering it is logged and the
// event is dropped; the feed carries on.
func (m *Model) add(msg EventMsg) {
	defer func() {
		if r := recover(); r != nil {
			m.statusBar.Dropped++
			log.Error().Interface("panic", r).Msg("event not shown")
		}
	}()
	m.feed.Add(msg.Event, msg.At)
	m.statusBar.Count(msg.Event.Kind())
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		m.feed.ScrollUp(1)

	case key.Matches(msg, m.keys.Down):
		m.feed.ScrollDown(1)

	case key.Matches(msg, m.keys.Top):
		m.feed.ScrollUp(1 << 30)

	case key.Matches(msg, m.keys.Bottom):
		m.feed.ScrollDown(1 << 30)

	case key.Matches(msg, m.keys.Clear):
		m.feed.Clear()
	}
	return m, nil
}

// Err returns the terminal feed error, if the feed ended with one.
func (m Model) Err() error { return m.err }

// View renders the full screen.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	bar := m.statusBar.View()
	help := theme.StyleDimmed.Render("  j/k:scroll  g/G:oldest/newest  c:clear  q:quit")
	feedHeight := m.height - lipgloss.Height(bar) - lipgloss.Height(help)

	return lipgloss.JoinVertical(lipgloss.Left,
		bar,
		m.feed.View(m.width, feedHeight),
		help,
	)
}

// Run shows the watch screen until the user quits or ctx is cancelled. It
// returns the feed's terminal error, if any.
func Run(ctx context.Context, src Feed, principal, server string) error {
	p := tea.NewProgram(New(ctx, src, principal, server), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	}
	if m, ok := final.(Model); ok {
		return m.Err()
	}
	return nil
}
