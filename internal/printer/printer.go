// Package printer renders events from the feed as console text.
package printer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/docfeed/dslisten/internal/event"
	"github.com/docfeed/dslisten/internal/theme"
	"github.com/rs/zerolog/log"
)

// Separator opens every printed event.
const Separator = "---------------------oo0oo---------------------"

// Source yields the feed. *client.Subscription implements it.
type Source interface {
	Events(ctx context.Context) iter.Seq2[event.Event, error]
}

type Option func(*Printer)

// WithColor turns styling of the separator and header line on or off. It is
// on by default; the renderer still drops it when out is not a terminal.
func WithColor(on bool) Option {
	return func(p *Printer) { p.color = on }
}

// Printer writes one block of text per event. Handle may be called from
// several goroutines; blocks never interleave.
type Printer struct {
	mu  sync.Mutex
	out io.Writer

	color     bool
	separator lipgloss.Style
	renderer  *lipgloss.Renderer

	printed int
	dropped int
}

func New(out io.Writer, opts ...Option) *Printer {
	p := &Printer{out: out, color: true}
	for _, opt := range opts {
		opt(p)
	}
	p.renderer = lipgloss.NewRenderer(out)
	p.separator = p.renderer.NewStyle().Foreground(theme.ColorDimmed)
	return p
}

// Handle prints ev. It always reports the event as handled: a panic while
// formatting or writing is logged with its stack and the event is dropped.
func (p *Printer) Handle(ev event.Event) (handled bool) {
	handled = true
	p.mu.Lock()
	defer p.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			p.dropped++
			log.Error().
				Str("event", fmt.Sprintf("%T", ev)).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("event not printed")
		}
	}()

	text := format(ev, p)
	if _, err := io.WriteString(p.out, text); err != nil {
		p.dropped++
		log.Error().Err(err).Str("kind", event.Name(ev.Kind())).Msg("write event")
		return
	}
	p.printed++
	return
}

// Run prints every event from src until the feed ends. Decode errors are
// logged and skipped. It returns nil when ctx is cancelled and the
// terminal error otherwise.
func (p *Printer) Run(ctx context.Context, src Source) error {
	for ev, err := range src.Events(ctx) {
		if err != nil {
			var de *event.DecodeError
			if errors.As(err, &de) {
				p.mu.Lock()
				p.dropped++
				p.mu.Unlock()
				log.Error().Err(de.Err).Uint64("seq", de.Seq).Str("raw", string(de.Raw)).Msg("malformed event skipped")
				continue
			}
			return err
		}
		p.Handle(ev)
	}
	return nil
}

// Stats returns how many events were printed and how many were dropped.
func (p *Printer) Stats() (printed, dropped int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.printed, p.dropped
}

func (p *Printer) styleSeparator(s string) string {
	if !p.color {
		return s
	}
	return p.separator.Render(s)
}

func (p *Printer) styleHeader(k event.Kind, s string) string {
	if !p.color {
		return s
	}
	return p.renderer.NewStyle().Bold(true).Foreground(theme.KindColor(k)).Render(s)
}

type styler interface {
	styleSeparator(s string) string
	styleHeader(k event.Kind, s string) string
}

type plain struct{}

func (plain) styleSeparator(s string) string { return s }
func (plain) styleHeader(_ event.Kind, s string) string { return s }

// Format renders ev as uncoloured text, exactly as Handle prints it with
// color off.
func Format(ev event.Event) string {
	return format(ev, plain{})
}

func format(ev event.Event, st styler) string {
	var b strings.Builder
	k := ev.Kind()

	b.WriteString("\n")
	b.WriteString(st.styleSeparator(Separator))
	b.WriteString("\n\n")
	b.WriteString(st.styleHeader(k, fmt.Sprintf("Event fired: %d (%s)", int(k), event.Name(k))))
	b.WriteString("\n")

	switch e := ev.(type) {
	case *event.LinkEvent:
		b.WriteString("     Link Types: ")
		for _, t := range e.LinkTypes {
			b.WriteString(t)
			b.WriteString("  ")
		}
		b.WriteString("\n")
		writePrincipal(&b, e)

	case *event.LoginEvent:
		// A failed login names the attempted identity instead of the principal.
		if e.Kind() == event.LoginFailed {
			fmt.Fprintf(&b, " %s -> %s\n", e.UserName, e.Domain)
		} else {
			writePrincipal(&b, e)
		}

	case *event.ObjectEvent:
		writePrincipal(&b, e)
		fmt.Fprintf(&b, "Modified object: %s\n", e.Object)
		for _, prop := range e.PropertyNames {
			fmt.Fprintf(&b, "Chg prop: %s  \n", prop)
		}
		for _, h := range e.OtherObjects {
			fmt.Fprintf(&b, "Other modified object: %s  \n", h)
		}

	case *event.ClassEvent:
		writePrincipal(&b, e)
		fmt.Fprintf(&b, "classes changed?: %t\n", e.ClassesChanged)
		fmt.Fprintf(&b, "data changed?: %t\n", e.DataChanged)
		fmt.Fprintf(&b, "string changed?: %t\n", e.StringsChanged)

	case *event.ConfigEvent:
		writePrincipal(&b, e)
		fmt.Fprintf(&b, "Description: %s\n", e.Description)
		fmt.Fprintf(&b, "Detail: %s\n", e.String())

	default:
		writePrincipal(&b, ev)
	}
	return b.String()
}

func writePrincipal(b *strings.Builder, ev event.Event) {
	b.WriteString(" ")
	b.WriteString(ev.Principal())
	b.WriteString("\n")
}
