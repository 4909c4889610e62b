package config

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Holder provides thread-safe access to the setup with reload on change.
// It backs "setup --watch": every successful reload is handed to the
// registered listeners, which re-run provisioning.
type Holder struct {
	mu       sync.RWMutex
	setup    *Setup
	path     string
	logger   zerolog.Logger
	watcher  *fsnotify.Watcher
	onChange []func(*Setup)
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewHolder creates a new holder and loads the initial setup.
func NewHolder(path string, logger zerolog.Logger) (*Holder, error) {
	setup, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("load setup: %w", err)
	}

	return &Holder{
		setup:  setup,
		path:   setup.Path(),
		logger: logger,
		stopCh: make(chan struct{}),
	}, nil
}

// Get returns the current setup (thread-safe).
func (h *Holder) Get() *Setup {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.setup
}

// Reload reloads the setup from disk.
// Returns error if loading fails (keeps old setup).
func (h *Holder) Reload() error {
	h.logger.Info().Str("path", h.path).Msg("reloading setup")

	newSetup, err := Load(h.path)
	if err != nil {
		h.logger.Error().Err(err).Msg("setup reload failed, keeping old setup")
		return fmt.Errorf("reload setup: %w", err)
	}

	h.mu.Lock()
	oldSetup := h.setup
	h.setup = newSetup
	listeners := make([]func(*Setup), len(h.onChange))
	copy(listeners, h.onChange)
	h.mu.Unlock()

	h.logChanges(oldSetup, newSetup)

	for _, fn := range listeners {
		fn(newSetup)
	}
	return nil
}

// OnChange registers a callback to be called when the setup changes.
func (h *Holder) OnChange(fn func(*Setup)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// WatchFile starts watching the setup file for changes.
func (h *Holder) WatchFile() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	h.watcher = watcher

	// Watch the directory (more reliable for editors that do atomic saves)
	dir := filepath.Dir(h.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}

	go h.watchLoop()

	h.logger.Info().Str("path", h.path).Msg("watching setup file for changes")
	return nil
}

// WatchSignals starts listening for SIGHUP to trigger reload.
func (h *Holder) WatchSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	go func() {
		for {
			select {
			case <-sigCh:
				h.logger.Info().Msg("received SIGHUP, reloading setup")
				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Msg("SIGHUP reload failed")
				}
			case <-h.stopCh:
				signal.Stop(sigCh)
				return
			}
		}
	}()
}

// Stop stops watching for file changes and signals.
func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		if h.watcher != nil {
			h.watcher.Close()
		}
	})
}

func (h *Holder) watchLoop() {
	filename := filepath.Base(h.path)

	for {
		select {
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}

			if filepath.Base(event.Name) != filename {
				continue
			}

			// React to write or create (atomic save = create)
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				h.logger.Debug().
					Str("event", event.Op.String()).
					Str("file", event.Name).
					Msg("setup file changed")

				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Msg("file watch reload failed")
				}
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Msg("file watcher error")

		case <-h.stopCh:
			return
		}
	}
}

func (h *Holder) logChanges(old, new *Setup) {
	if len(old.Databases) != len(new.Databases) {
		h.logger.Info().
			Int("old", len(old.Databases)).
			Int("new", len(new.Databases)).
			Msg("databases count changed")
	}

	if len(old.Scripts) != len(new.Scripts) {
		h.logger.Info().
			Int("old", len(old.Scripts)).
			Int("new", len(new.Scripts)).
			Msg("scripts count changed")
	}

	oldHosts, newHosts := 0, 0
	if old.Shards != nil {
		oldHosts = len(old.Shards.Hosts)
	}
	if new.Shards != nil {
		newHosts = len(new.Shards.Hosts)
	}
	if oldHosts != newHosts {
		h.logger.Info().
			Int("old", oldHosts).
			Int("new", newHosts).
			Msg("shard hosts count changed")
	}
}
