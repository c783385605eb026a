package config

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// WindowsWatcher reloads windows.yaml when it changes and re-applies the
// current config when the calendar day rolls over, so weekly windows keep
// extending over the horizon.
type WindowsWatcher struct {
	path     string
	interval time.Duration
	onUpdate func(*WindowsConfig)
	now      func() time.Time
	logger   zerolog.Logger

	current *WindowsConfig
	lastMod time.Time
	lastDay string
}

func NewWindowsWatcher(path string, interval time.Duration, logger *zerolog.Logger, onUpdate func(*WindowsConfig)) *WindowsWatcher {
	if path == "" {
		path = "configs/windows.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &WindowsWatcher{
		path:     path,
		interval: interval,
		onUpdate: onUpdate,
		now:      time.Now,
		logger:   logger.With().Str("component", "windows").Str("path", path).Logger(),
	}
}

// Start performs the initial load, then polls until ctx is done.
func (w *WindowsWatcher) Start(ctx context.Context) error {
	cfg, err := LoadWindowsConfig(w.path)
	if err != nil {
		return err
	}
	info, err := os.Stat(w.path)
	if err != nil {
		return err
	}
	w.apply(cfg, info.ModTime())

	ticker := time.NewTicker(w.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.poll()
			}
		}
	}()
	return nil
}

func (w *WindowsWatcher) poll() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.logger.Debug().Err(err).Msg("stat windows file")
		return
	}

	if info.ModTime().After(w.lastMod) {
		cfg, err := LoadWindowsConfig(w.path)
		if err != nil {
			w.logger.Warn().Err(err).Msg("windows file rejected, keeping previous")
			return
		}
		w.apply(cfg, info.ModTime())
		return
	}

	if w.current != nil && w.today() != w.lastDay {
		w.apply(w.current, w.lastMod)
	}
}

func (w *WindowsWatcher) apply(cfg *WindowsConfig, mod time.Time) {
	w.current, w.lastMod, w.lastDay = cfg, mod, w.today()
	if w.onUpdate != nil {
		w.onUpdate(cfg)
	}
}

func (w *WindowsWatcher) today() string {
	return w.now().Format("2006-01-02")
}
