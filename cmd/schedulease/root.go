package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"schedulease/internal/audit"
	"schedulease/internal/config"
	"schedulease/internal/database"
	"schedulease/internal/mongostore"
	"schedulease/internal/store"
)

type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "schedulease",
		Short:        "SchedulEase appointment backend",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config.yaml (default $"+config.EnvPath+" or configs/config.yaml)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newExportAuditCommand(opts))
	cmd.AddCommand(newSyncSheetsCommand(opts))
	cmd.AddCommand(newTokenCommand(opts))
	return cmd
}

// loadConfig reads the config and builds the process logger from it.
func (o *rootOptions) loadConfig(out io.Writer) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(config.Path(o.configPath))
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	return cfg, newLogger(cfg, out), nil
}

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}
	if cfg.Logging.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil || cfg.Logging.Level == "" {
		level = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("app", cfg.App.Name).Logger()
}

// backend is a store that can also be dumped table by table.
type backend interface {
	store.Store
	audit.TableSource
}

// openStore connects the configured driver. sqlite is non-nil only for the
// sqlite driver and is what the backup loop snapshots.
func openStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (backend, *database.DB, error) {
	switch cfg.Database.Driver {
	case "mongo":
		st, err := mongostore.Open(ctx, cfg.Database.MongoURI, cfg.Database.MongoDatabase, logger)
		if err != nil {
			return nil, nil, err
		}
		return st, nil, nil
	default:
		db, err := database.NewDB(cfg.Database.Path, logger)
		if err != nil {
			return nil, nil, err
		}
		return db, db, nil
	}
}

// openRedis returns nil when no address is configured.
func openRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Redis.Address).Msg("redis unreachable, falling back to in-process locks")
		_ = rdb.Close()
		return nil
	}
	return rdb
}
