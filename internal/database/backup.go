package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const snapshotPrefix = "schedulease_"

// BackupConfig controls the periodic snapshot loop.
type BackupConfig struct {
	Interval  time.Duration
	Dir       string
	Retention time.Duration
}

// Snapshot writes a consistent copy of the database into dir using
// VACUUM INTO and returns its path.
func (db *DB) Snapshot(ctx context.Context, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("backup dir: %w", err)
	}
	target := filepath.Join(dir, snapshotPrefix+time.Now().Format("20060102_150405.000")+".db")
	quoted := strings.ReplaceAll(target, "'", "''")
	if _, err := db.ExecContext(ctx, "VACUUM INTO '"+quoted+"'"); err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", target, err)
	}
	return target, nil
}

// PruneSnapshots deletes snapshots in dir last modified before now-retention
// and reports how many were removed. Files without the snapshot prefix are
// left alone.
func PruneSnapshots(dir string, retention time.Duration, now time.Time) (int, error) {
	if retention <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	cutoff := now.Add(-retention)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), snapshotPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// RunBackups snapshots db right away and then every cfg.Interval, pruning
// old snapshots after each one. It returns when ctx is done.
func RunBackups(ctx context.Context, db *DB, cfg BackupConfig, logger *zerolog.Logger) {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	log := logger.With().Str("component", "backup").Str("dir", cfg.Dir).Logger()
	log.Info().Dur("interval", cfg.Interval).Msg("backups scheduled")

	backup := func() {
		path, err := db.Snapshot(ctx, cfg.Dir)
		if err != nil {
			log.Error().Err(err).Msg("backup failed")
			return
		}
		log.Info().Str("path", path).Msg("backup written")

		n, err := PruneSnapshots(cfg.Dir, cfg.Retention, time.Now())
		if err != nil {
			log.Warn().Err(err).Msg("prune backups")
		} else if n > 0 {
			log.Info().Int("deleted", n).Msg("old backups pruned")
		}
	}

	backup()
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			backup()
		}
	}
}
