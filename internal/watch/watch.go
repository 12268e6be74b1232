// Package watch reloads the demo server configuration when its file changes
// and tells listeners about it.
package watch

import (
	"context"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/docfeed/dslisten/internal/config"
	"github.com/docfeed/dslisten/internal/event"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Principal is reported as the originator of configuration events.
const Principal = "dsserver"

const defaultDebounce = 200 * time.Millisecond

// Reloader accepts a freshly loaded configuration.
type Reloader interface {
	Reload(cfg *config.Config)
}

// Publisher receives the change notifications.
type Publisher interface {
	Publish(ev event.Event) uint64
}

type Watcher struct {
	path     string
	target   Reloader
	pub      Publisher
	debounce time.Duration

	mu      sync.Mutex
	current *config.Config
}

// New watches path, whose contents are currently loaded as current.
func New(path string, current *config.Config, target Reloader, pub Publisher) *Watcher {
	return &Watcher{
		path:     filepath.Clean(path),
		target:   target,
		pub:      pub,
		debounce: defaultDebounce,
		current:  current,
	}
}

// Start begins watching the directory holding the file. Editors often
// replace the file rather than write it, so the directory is watched and
// events are filtered by name. Changes are debounced; the watcher stops
// when ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch %s: %w", w.path, err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return fmt.Errorf("watch %s: %w", w.path, err)
	}
	log.Info().Str("path", w.path).Msg("watching config")
	go w.loop(ctx, fw)
	return nil
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) {
	defer fw.Close()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			log.Debug().Str("op", ev.Op.String()).Msg("config file changed")
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("config watcher error")
		case <-timer.C:
			if err := w.Reload(); err != nil {
				log.Error().Err(err).Str("path", w.path).Msg("config reload failed, keeping previous config")
			}
		}
	}
}

// Reload loads the file, hands it to the target and publishes
// CONFIG_CHANGED, plus CLASS_LABEL_CHANGED when the classes differ. A file
// that fails to load changes nothing.
func (w *Watcher) Reload() error {
	next, err := config.Load(w.path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	prev := w.current
	w.current = next
	w.mu.Unlock()

	w.target.Reload(next)
	log.Info().Str("path", w.path).Int("users", len(next.Users)).Msg("config reloaded")

	w.pub.Publish(&event.ConfigEvent{
		Header:      event.Header{EventKind: event.ConfigChanged, By: Principal},
		Description: Describe(filepath.Base(w.path), prev, next),
	})

	names, classesChanged, stringsChanged := DiffClasses(prev.Classes, next.Classes)
	if classesChanged || stringsChanged {
		w.pub.Publish(&event.ClassEvent{
			Header:         event.Header{EventKind: event.ClassLabelChanged, By: Principal},
			ClassNames:     names,
			ClassesChanged: classesChanged,
			StringsChanged: stringsChanged,
		})
	}
	return nil
}

// Describe summarises which sections differ between prev and next.
func Describe(name string, prev, next *config.Config) string {
	var changed []string
	if prev.Domain != next.Domain {
		changed = append(changed, "domain")
	}
	if !slices.Equal(prev.Users, next.Users) {
		changed = append(changed, "users")
	}
	if prev.License != next.License {
		changed = append(changed, "license")
	}
	if !maps.Equal(prev.Classes, next.Classes) {
		changed = append(changed, "classes")
	}
	if prev.Mock != next.Mock {
		changed = append(changed, "mock (restart required)")
	}
	if prev.Server.Port != next.Server.Port || prev.Server.Host != next.Server.Host {
		changed = append(changed, "server (restart required)")
	}
	if len(changed) == 0 {
		return name + " reloaded, no changes"
	}
	return name + " reloaded: " + strings.Join(changed, ", ") + " changed"
}

// DiffClasses returns the sorted names of classes that were added, removed
// or relabelled. classesChanged is set when the set of names differs,
// stringsChanged when a class kept its name but not its label.
func DiffClasses(prev, next map[string]string) (names []string, classesChanged, stringsChanged bool) {
	for name, label := range next {
		old, ok := prev[name]
		switch {
		case !ok:
			classesChanged = true
			names = append(names, name)
		case old != label:
			stringsChanged = true
			names = append(names, name)
		}
	}
	for name := range prev {
		if _, ok := next[name]; !ok {
			classesChanged = true
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, classesChanged, stringsChanged
}
