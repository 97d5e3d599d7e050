package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Tunables are the operational knobs that may change while the server is
// running. They are loaded from an optional yaml file and hot reloaded on
// write, so an operator can widen the timestamp window or slow the sweeper
// without a restart.
type Tunables struct {
	TimestampSkew       time.Duration `yaml:"timestampSkew"`
	SessionIdleWindow   time.Duration `yaml:"sessionIdleWindow"`
	DefaultFunnelWindow time.Duration `yaml:"defaultFunnelWindow"`
	SweepInterval       time.Duration `yaml:"sweepInterval"`
}

// DefaultTunables returns the built-in values used when no tunables file is
// configured or a field is left unset.
func DefaultTunables() Tunables {
	return Tunables{
		TimestampSkew:       5 * time.Minute,
		SessionIdleWindow:   30 * time.Minute,
		DefaultFunnelWindow: 7 * 24 * time.Hour,
		SweepInterval:       10 * time.Minute,
	}
}

var (
	tunablesMu sync.RWMutex
	tunables   = DefaultTunables()
)

// CurrentTunables returns the latest tunables snapshot.
func CurrentTunables() Tunables {
	tunablesMu.RLock()
	defer tunablesMu.RUnlock()
	return tunables
}

func setTunables(t Tunables) {
	defaults := DefaultTunables()
	if t.TimestampSkew <= 0 {
		t.TimestampSkew = defaults.TimestampSkew
	}
	if t.SessionIdleWindow <= 0 {
		t.SessionIdleWindow = defaults.SessionIdleWindow
	}
	if t.DefaultFunnelWindow <= 0 {
		t.DefaultFunnelWindow = defaults.DefaultFunnelWindow
	}
	if t.SweepInterval <= 0 {
		t.SweepInterval = defaults.SweepInterval
	}
	tunablesMu.Lock()
	tunables = t
	tunablesMu.Unlock()
}

func loadTunablesFile(path string) (Tunables, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Tunables{}, fmt.Errorf("read tunables %s: %w", path, err)
	}
	var t Tunables
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return Tunables{}, fmt.Errorf("parse tunables %s: %w", path, err)
	}
	return t, nil
}

// WatchTunables performs the initial load of the tunables file and starts a
// background goroutine that hot-reloads it on changes. A failed reload keeps
// the previous values. Call the returned stop function to clean up.
func WatchTunables(path string) (stop func(), err error) {
	t, err := loadTunablesFile(path)
	if err != nil {
		return nil, err
	}
	setTunables(t)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("tunables watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("tunables watcher add %s: %w", path, err)
	}

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					t, err := loadTunablesFile(path)
					if err != nil {
						continue
					}
					setTunables(t)
				}
			case <-w.Errors:
				// Keep serving with the last good values.
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }, nil
}
