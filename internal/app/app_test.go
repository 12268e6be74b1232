package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/docfeed/dslisten/internal/event"
	"github.com/docfeed/dslisten/internal/views/feed"
)

type scriptedFeed struct {
	items []struct {
		ev  event.Event
		err error
	}
}

func (f *scriptedFeed) push(ev event.Event, err error) {
	f.items = append(f.items, struct {
		ev  event.Event
		err error
	}{ev, err})
}

func (f *scriptedFeed) Next(ctx context.Context) (event.Event, error) {
	if len(f.items) == 0 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	it := f.items[0]
	f.items = f.items[1:]
	return it.ev, it.err
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func objectEvent(h string) event.Event {
	return &event.ObjectEvent{Header: event.Header{EventKind: event.ObjectCreated, By: "admin"}, Object: event.Handle(h)}
}

// step runs cmd and feeds its message back into the model.
func step(t *testing.T, m Model, cmd tea.Cmd) (Model, tea.Cmd) {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	next, cmd := m.Update(cmd())
	return next.(Model), cmd
}

func TestFeedEventsAreShown(t *testing.T) {
	src := &scriptedFeed{}
	src.push(objectEvent("Document-1"), nil)
	src.push(&event.LinkEvent{Header: event.Header{EventKind: event.LinkChanged, By: "admin"}, LinkTypes: []string{"Version"}}, nil)

	m := New(context.Background(), src, "admin", "localhost:1099")
	m.now = func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }
	m, cmd := step(t, m, m.Init())
	m, _ = step(t, m, cmd)

	if len(m.feed.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(m.feed.Entries))
	}
	if m.statusBar.Total() != 2 {
		t.Errorf("status total = %d, want 2", m.statusBar.Total())
	}
	if m.statusBar.Counts[event.LinkChanged] != 1 {
		t.Errorf("LINK_CHANGED count = %d, want 1", m.statusBar.Counts[event.LinkChanged])
	}

	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	view := next.(Model).View()
	if !strings.Contains(view, "Modified object: Document-1") {
		t.Error("view should contain the printed object line")
	}
	if !strings.Contains(view, "Link Types: Version") {
		t.Error("view should contain the printed link line")
	}
}

func TestDecodeErrorKeepsReading(t *testing.T) {
	src := &scriptedFeed{}
	src.push(nil, &event.DecodeError{Seq: 4, Err: event.ErrMalformed})
	src.push(objectEvent("Document-2"), nil)

	m := New(context.Background(), src, "admin", "localhost:1099")
	m, cmd := step(t, m, m.Init())
	if m.statusBar.Dropped != 1 {
		t.Fatalf("Dropped = %d, want 1", m.statusBar.Dropped)
	}
	m, _ = step(t, m, cmd)
	if len(m.feed.Entries) != 1 {
		t.Fatalf("event after a malformed one was not shown")
	}
}

func TestFeedEndedWithError(t *testing.T) {
	boom := errors.New("connection reset")
	src := &scriptedFeed{}
	src.push(nil, boom)

	m := New(context.Background(), src, "admin", "localhost:1099")
	m, cmd := step(t, m, m.Init())
	if cmd != nil {
		t.Error("no further reads expected after the feed ends")
	}
	if !errors.Is(m.Err(), boom) {
		t.Errorf("Err() = %v, want %v", m.Err(), boom)
	}
	if m.statusBar.Connected {
		t.Error("status bar should show the feed as ended")
	}
}

func TestCancelledFeedEndsQuietly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := New(ctx, &scriptedFeed{}, "admin", "localhost:1099")
	m, _ = step(t, m, m.Init())
	if m.Err() != nil {
		t.Errorf("Err() = %v, want nil after cancellation", m.Err())
	}
}

func TestKeys(t *testing.T) {
	m := New(context.Background(), &scriptedFeed{}, "admin", "localhost:1099")
	for i := 0; i < 3; i++ {
		m.add(EventMsg{Event: objectEvent("Document-1"), At: time.Now()})
	}

	next, _ := m.Update(keyMsg("k"))
	m = next.(Model)
	if m.feed.Offset != 1 {
		t.Errorf("after k, Offset = %d, want 1", m.feed.Offset)
	}
	next, _ = m.Update(keyMsg("j"))
	m = next.(Model)
	if m.feed.Offset != 0 {
		t.Errorf("after j, Offset = %d, want 0", m.feed.Offset)
	}

	next, _ = m.Update(keyMsg("c"))
	m = next.(Model)
	if len(m.feed.Entries) != 0 {
		t.Errorf("after c, %d entries remain", len(m.feed.Entries))
	}

	_, cmd := m.Update(keyMsg("q"))
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
	if m.ctx.Err() == nil {
		t.Error("quitting should cancel the feed context")
	}
}

func TestFeedCapped(t *testing.T) {
	m := New(context.Background(), &scriptedFeed{}, "admin", "localhost:1099")
	for i := 0; i < feed.MaxEntries+25; i++ {
		m.add(EventMsg{Event: objectEvent("Document-1"), At: time.Now()})
	}
	if len(m.feed.Entries) != feed.MaxEntries {
		t.Errorf("entries = %d, want %d", len(m.feed.Entries), feed.MaxEntries)
	}
	if m.statusBar.Total() != feed.MaxEntries+25 {
		t.Errorf("total = %d, want %d", m.statusBar.Total(), feed.MaxEntries+25)
	}
}

func TestBrokenEventDoesNotStopFeed(t *testing.T) {
	m := New(context.Background(), &scriptedFeed{}, "admin", "localhost:1099")
	var broken *event.ObjectEvent
	m.add(EventMsg{Event: broken, At: time.Now()})
	m.add(EventMsg{Event: objectEvent("Document-3"), At: time.Now()})
	if m.statusBar.Dropped != 1 || len(m.feed.Entries) != 1 {
		t.Errorf("dropped=%d entries=%d, want 1 and 1", m.statusBar.Dropped, len(m.feed.Entries))
	}
}
