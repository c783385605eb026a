package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"schedulease/internal/models"
	"schedulease/internal/store"
)

// WindowConfig is one dated availability window.
type WindowConfig struct {
	Date  string `yaml:"date"`  // "2025-01-10"
	Start string `yaml:"start"` // "09:00"
	End   string `yaml:"end"`   // "17:00"
}

// WeeklyConfig repeats a window on a weekday.
type WeeklyConfig struct {
	Weekday int    `yaml:"weekday"` // 1=Mon, 7=Sun
	Start   string `yaml:"start"`
	End     string `yaml:"end"`
}

// HolidayConfig suppresses weekly windows on a date.
type HolidayConfig struct {
	Date string `yaml:"date"`
	Name string `yaml:"name"`
}

// WindowsConfig is the root of windows.yaml.
type WindowsConfig struct {
	HorizonDays int             `yaml:"horizon_days"`
	Windows     []WindowConfig  `yaml:"windows"`
	Weekly      []WeeklyConfig  `yaml:"weekly"`
	Holidays    []HolidayConfig `yaml:"holidays"`
}

// LoadWindowsConfig loads and validates the availability-window file.
func LoadWindowsConfig(path string) (*WindowsConfig, error) {
	if path == "" {
		path = "configs/windows.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read windows config: %w", err)
	}

	var cfg WindowsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse windows config: %w", err)
	}
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = 30
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate windows config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *WindowsConfig) Validate() error {
	for i, w := range c.Windows {
		if _, err := models.ParseDate(w.Date); err != nil {
			return fmt.Errorf("windows[%d]: invalid date '%s', expected YYYY-MM-DD", i, w.Date)
		}
		if err := validateRange(w.Start, w.End, fmt.Sprintf("windows[%d]", i)); err != nil {
			return err
		}
	}
	for i, w := range c.Weekly {
		if w.Weekday < 1 || w.Weekday > 7 {
			return fmt.Errorf("weekly[%d]: invalid weekday %d, must be 1-7 (1=Mon, 7=Sun)", i, w.Weekday)
		}
		if err := validateRange(w.Start, w.End, fmt.Sprintf("weekly[%d]", i)); err != nil {
			return err
		}
	}
	for i, h := range c.Holidays {
		if _, err := models.ParseDate(h.Date); err != nil {
			return fmt.Errorf("holidays[%d]: invalid date '%s', expected YYYY-MM-DD", i, h.Date)
		}
	}
	return nil
}

func validateRange(start, end, prefix string) error {
	s, err := models.ParseClock(start)
	if err != nil {
		return fmt.Errorf("%s.start: invalid format '%s', expected HH:MM", prefix, start)
	}
	e, err := models.ParseClock(end)
	if err != nil {
		return fmt.Errorf("%s.end: invalid format '%s', expected HH:MM", prefix, end)
	}
	if e <= s {
		return fmt.Errorf("%s: end must be after start", prefix)
	}
	return nil
}

// Expand lists the concrete windows from today through the horizon.
// Dated windows are always included; weekly ones skip holidays.
func (c *WindowsConfig) Expand(today time.Time) []WindowConfig {
	holidays := make(map[string]bool, len(c.Holidays))
	for _, h := range c.Holidays {
		holidays[h.Date] = true
	}

	out := append([]WindowConfig(nil), c.Windows...)
	if len(c.Weekly) == 0 {
		return out
	}

	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	for d := 0; d < c.HorizonDays; d++ {
		day := start.AddDate(0, 0, d)
		date := day.Format(models.DateLayout)
		if holidays[date] {
			continue
		}
		weekday := int(day.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		for _, w := range c.Weekly {
			if w.Weekday == weekday {
				out = append(out, WindowConfig{Date: date, Start: w.Start, End: w.End})
			}
		}
	}
	return out
}

// SyncWindows creates the windows of cfg that do not exist yet and returns
// how many were added. Existing windows are never removed because booked
// sub-slots may reference them.
func SyncWindows(ctx context.Context, slots store.SlotStore, cfg *WindowsConfig, today time.Time) (int, error) {
	if cfg == nil {
		return 0, fmt.Errorf("windows config is nil")
	}

	existing := make(map[string]map[string]bool)
	created := 0
	for _, w := range cfg.Expand(today) {
		seen, ok := existing[w.Date]
		if !ok {
			list, err := slots.ListSlots(ctx, store.SlotFilter{Date: w.Date, Kind: models.SlotKindWindow})
			if err != nil {
				return created, fmt.Errorf("list windows on %s: %w", w.Date, err)
			}
			seen = make(map[string]bool, len(list))
			for _, s := range list {
				seen[s.TimeStart+"-"+s.TimeEnd] = true
			}
			existing[w.Date] = seen
		}

		start, err := models.NormalizeClock(w.Start)
		if err != nil {
			return created, fmt.Errorf("window %s: %w", w.Date, err)
		}
		end, err := models.NormalizeClock(w.End)
		if err != nil {
			return created, fmt.Errorf("window %s: %w", w.Date, err)
		}
		key := start + "-" + end
		if seen[key] {
			continue
		}
		slot := &models.Slot{Kind: models.SlotKindWindow, Date: w.Date, TimeStart: start, TimeEnd: end}
		if err := slots.CreateSlot(ctx, slot); err != nil {
			return created, fmt.Errorf("create window %s %s: %w", w.Date, key, err)
		}
		seen[key] = true
		created++
	}
	return created, nil
}
