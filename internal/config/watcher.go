package config

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watcher keeps the last valid configuration and reloads it when the file changes.
// Invalid edits are logged and ignored; the previous snapshot stays in effect.
type Watcher struct {
	v       *viper.Viper
	logger  *slog.Logger
	current atomic.Pointer[Config]

	mu        sync.Mutex
	listeners []func(Config)
}

// NewWatcher loads path and starts watching it.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config watcher requires a file path")
	}
	if logger == nil {
		logger = slog.Default()
	}

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	w := &Watcher{v: v, logger: logger.With("component", "config")}
	w.current.Store(cfg)

	v.OnConfigChange(func(evt fsnotify.Event) {
		w.reload(evt)
	})
	v.WatchConfig()
	return w, nil
}

// Static returns a watcher-compatible source that never changes.
func Static(cfg Config) *Watcher {
	w := &Watcher{logger: slog.Default()}
	w.current.Store(&cfg)
	return w
}

// Current returns a copy of the latest valid configuration.
func (w *Watcher) Current() Config {
	return *w.current.Load()
}

// OnChange registers fn to run after every accepted reload.
func (w *Watcher) OnChange(fn func(Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

func (w *Watcher) reload(evt fsnotify.Event) {
	if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
		return
	}
	cfg, err := decode(w.v)
	if err != nil {
		w.logger.Error("config reload rejected", "file", evt.Name, "error", err)
		return
	}
	w.apply(cfg)
}

func (w *Watcher) apply(cfg *Config) {
	prev := w.current.Swap(cfg)
	w.logger.Info("config reloaded", "mode", cfg.Mode, "previous_mode", prev.Mode)

	w.mu.Lock()
	listeners := append([]func(Config){}, w.listeners...)
	w.mu.Unlock()
	for _, fn := range listeners {
		fn(*cfg)
	}
}
