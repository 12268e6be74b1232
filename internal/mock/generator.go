// Package mock drives the demo server with synthetic document activity so a
// listener has something to print without a real repository behind it.
package mock

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sort"
	"time"

	"github.com/docfeed/dslisten/internal/config"
	"github.com/docfeed/dslisten/internal/event"
	"github.com/rs/zerolog/log"
)

// Publisher receives generated events.
type Publisher interface {
	Publish(ev event.Event) uint64
}

var (
	propertyNames = []string{"Title", "Owner", "Keywords", "Summary", "Expiration"}
	linkTypes     = []string{"Version", "Rendition", "Parent", "Reference"}
)

// activity is one step of the simulated workload, weighted by how often it
// happens in a busy repository.
type activity struct {
	kind   event.Kind
	weight int
}

var workload = []activity{
	{event.ObjectCreated, 4},
	{event.PropertiesChanged, 6},
	{event.ContentChanged, 3},
	{event.LinkChanged, 3},
	{event.ObjectMoved, 2},
	{event.AccessChanged, 1},
	{event.ObjectDeleted, 1},
	{event.ClassLabelChanged, 1},
}

type Generator struct {
	pub      Publisher
	users    []string
	classes  []string
	interval time.Duration

	rng     *rand.Rand
	live    []event.Handle
	counter int
}

func NewGenerator(pub Publisher, cfg *config.Config) *Generator {
	g := &Generator{
		pub:      pub,
		interval: cfg.Mock.Interval,
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x6d6f636b)),
	}
	for _, u := range cfg.Users {
		if !u.Disabled {
			g.users = append(g.users, u.Name)
		}
	}
	if len(g.users) == 0 {
		g.users = []string{"admin"}
	}
	for name := range cfg.Classes {
		g.classes = append(g.classes, name)
	}
	sort.Strings(g.classes)
	if len(g.classes) == 0 {
		g.classes = []string{"Document"}
	}
	if g.interval <= 0 {
		g.interval = 2 * time.Second
	}
	return g
}

// Start publishes one event per interval until ctx is cancelled.
func (g *Generator) Start(ctx context.Context) {
	log.Info().Dur("interval", g.interval).Strs("users", g.users).Msg("mock generator started")
	go g.run(ctx)
}

func (g *Generator) run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.pub.Publish(g.Next())
		}
	}
}

// Next builds the next synthetic event. It is not safe for concurrent use.
func (g *Generator) Next() event.Event {
	kind := g.pick()
	h := event.Header{EventKind: kind, By: g.users[g.rng.IntN(len(g.users))]}

	// Everything but creation needs an object to act on.
	if kind != event.ObjectCreated && kind != event.ClassLabelChanged && len(g.live) == 0 {
		kind = event.ObjectCreated
		h.EventKind = kind
	}

	switch kind {
	case event.ObjectCreated:
		obj := g.newHandle(g.classes[g.rng.IntN(len(g.classes))])
		g.live = append(g.live, obj)
		return &event.ObjectEvent{Header: h, Object: obj}

	case event.PropertiesChanged:
		n := 1 + g.rng.IntN(3)
		props := slices.Clone(propertyNames)
		g.rng.Shuffle(len(props), func(i, j int) { props[i], props[j] = props[j], props[i] })
		return &event.ObjectEvent{Header: h, Object: g.anyLive(), PropertyNames: props[:n]}

	case event.ContentChanged:
		return &event.ObjectEvent{
			Header:        h,
			Object:        g.anyLive(),
			PropertyNames: []string{"Content"},
			OtherObjects:  []event.Handle{g.newHandle("Version")},
		}

	case event.ObjectMoved:
		return &event.ObjectEvent{
			Header:       h,
			Object:       g.anyLive(),
			OtherObjects: []event.Handle{g.newHandle("Collection"), g.newHandle("Collection")},
		}

	case event.AccessChanged:
		return &event.ObjectEvent{Header: h, Object: g.anyLive(), PropertyNames: []string{"ACL"}}

	case event.ObjectDeleted:
		i := g.rng.IntN(len(g.live))
		obj := g.live[i]
		g.live = slices.Delete(g.live, i, i+1)
		return &event.ObjectEvent{Header: h, Object: obj}

	case event.LinkChanged:
		n := 1 + g.rng.IntN(2)
		return &event.LinkEvent{Header: h, Source: g.anyLive(), LinkTypes: linkTypes[:n]}

	case event.ClassLabelChanged:
		return &event.ClassEvent{
			Header:      h,
			ClassNames:  []string{g.classes[g.rng.IntN(len(g.classes))]},
			DataChanged: true,
		}
	}
	return &event.UnknownEvent{Header: h}
}

func (g *Generator) pick() event.Kind {
	total := 0
	for _, a := range workload {
		total += a.weight
	}
	n := g.rng.IntN(total)
	for _, a := range workload {
		if n < a.weight {
			return a.kind
		}
		n -= a.weight
	}
	return workload[0].kind
}

func (g *Generator) anyLive() event.Handle {
	return g.live[g.rng.IntN(len(g.live))]
}

func (g *Generator) newHandle(class string) event.Handle {
	g.counter++
	return event.Handle(fmt.Sprintf("%s-%d", class, g.counter))
}
