package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"schedulease/internal/analytics"
	"schedulease/internal/api"
	"schedulease/internal/audit"
	"schedulease/internal/availability"
	"schedulease/internal/booking"
	"schedulease/internal/config"
	"schedulease/internal/database"
	"schedulease/internal/events"
	"schedulease/internal/health"
	"schedulease/internal/lock"
	"schedulease/internal/metrics"
	"schedulease/internal/notify"
	"schedulease/internal/sheets"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with health, metrics and background jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.loadConfig(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := serve(ctx, cfg, &logger); err != nil {
				logger.Fatal().Err(err).Msg("schedulease failed")
			}
			return nil
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	st, sqlite, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	rdb := openRedis(ctx, cfg, logger)
	if rdb != nil {
		defer rdb.Close()
	}

	var locker lock.Locker = lock.NewLocal(cfg.LockWait())
	if rdb != nil {
		locker = lock.NewRedis(rdb, cfg.LockTTL(), cfg.LockWait(), logger)
	}
	checker := availability.NewChecker(st, locker, availability.Options{CheckSiblingOverlap: cfg.CheckSiblingOverlap()}, logger)

	dispatcher, err := newDispatcher(cfg, logger)
	if err != nil {
		return err
	}

	bus := events.NewEventBus(logger)
	manager := booking.NewManager(st, checker, dispatcher, booking.Options{TrustedRoles: cfg.TrustedRoles()}, logger).WithEvents(bus)

	dashboard := analytics.NewService(st, logger)
	if rdb != nil {
		dashboard.WithCache(rdb, cfg.AnalyticsCacheTTL())
		dashboard.Subscribe(bus)
	}

	if cfg.Sheets.Enabled {
		sheetsSvc, err := sheets.NewSheetsService(ctx, cfg.Sheets.CredentialsFile, cfg.Sheets.SpreadsheetID, cfg.Sheets.SheetName, st, logger)
		if err != nil {
			logger.Error().Err(err).Msg("google sheets disabled")
		} else {
			sheetsSvc.Subscribe(bus)
			go sheetsSvc.Run(ctx)
		}
	}

	startWindows(ctx, cfg, st, logger)

	if sqlite != nil && cfg.Backup.Enabled {
		go database.RunBackups(ctx, sqlite, database.BackupConfig{
			Interval:  cfg.BackupInterval(),
			Dir:       cfg.Backup.Path,
			Retention: time.Duration(cfg.Backup.RetentionDays) * 24 * time.Hour,
		}, logger)
	}

	startMonitoring(ctx, cfg, st, rdb, logger)

	srv := api.NewHTTPServer(api.Config{
		Port:           cfg.HTTP.Port,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RateLimitRPS:   cfg.HTTP.RateLimitRPS,
		RateLimitBurst: cfg.HTTP.RateLimitBurst,
	}, api.Deps{
		Lifecycle: manager,
		Dashboard: dashboard,
		Audit:     audit.NewExporter(st, logger),
		Mailer:    dispatcher,
		Auth:      api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.TokenTTL()),
	}, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	logger.Info().Str("driver", cfg.Database.Driver).Bool("redis", rdb != nil).Msg("SchedulEase started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info().Msg("SchedulEase stopped")
	return nil
}

func newDispatcher(cfg *config.Config, logger *zerolog.Logger) (*notify.EmailDispatcher, error) {
	renderer, err := notify.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	var transport notify.Transport = notify.NewLogTransport(logger)
	if cfg.SMTPEnabled() {
		transport, err = notify.NewSMTPTransport(notify.SMTPConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			FromName: cfg.Email.FromName,
			UseSSL:   cfg.EmailUseSSL(),
		})
		if err != nil {
			return nil, fmt.Errorf("smtp: %w", err)
		}
	} else {
		logger.Warn().Msg("smtp credentials missing, notifications are logged only")
	}

	d := notify.NewEmailDispatcher(renderer, transport, notify.EmailConfig{
		Retry:         notify.RetryConfig{MaxRetries: cfg.EmailMaxRetries(), RetryDelays: cfg.EmailRetryDelays()},
		RatePerSecond: cfg.Email.RatePerSecond,
		Burst:         cfg.Email.Burst,
	}, logger)

	if cfg.Telegram.BotToken != "" && cfg.Telegram.AlertChatID != 0 {
		alerter, err := notify.NewTelegramAlerter(cfg.Telegram.BotToken, cfg.Telegram.AlertChatID)
		if err != nil {
			logger.Error().Err(err).Msg("telegram alerts disabled")
		} else {
			d.WithAlerter(alerter)
		}
	}
	return d, nil
}

func startWindows(ctx context.Context, cfg *config.Config, st backend, logger *zerolog.Logger) {
	if cfg.Booking.WindowsFile == "" {
		return
	}
	watcher := config.NewWindowsWatcher(cfg.Booking.WindowsFile, cfg.WindowsPoll(), logger, func(w *config.WindowsConfig) {
		created, err := config.SyncWindows(ctx, st, w, time.Now().In(cfg.Location()))
		if err != nil {
			logger.Error().Err(err).Msg("failed to apply windows config")
			return
		}
		logger.Info().Int("created", created).Msg("windows config applied")
	})
	if err := watcher.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("windows watch failed")
	}
}

func startMonitoring(ctx context.Context, cfg *config.Config, st backend, rdb *redis.Client, logger *zerolog.Logger) {
	checker := health.NewChecker().Add("store", st)
	if rdb != nil {
		checker.Add("redis", health.RedisProbe(rdb))
	}
	go health.ServeHTTP(ctx, "health", cfg.Monitoring.HealthCheckPort, checker.Handler(), logger)

	if cfg.Monitoring.GRPCHealthPort > 0 {
		grpcHealth := health.NewGRPCServer(checker, 10*time.Second, logger)
		go func() {
			if err := grpcHealth.ListenAndServe(ctx, cfg.Monitoring.GRPCHealthPort); err != nil {
				logger.Error().Err(err).Msg("grpc health server error")
			}
		}()
	}

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go health.ServeHTTP(ctx, "metrics", cfg.Monitoring.PrometheusPort, health.MetricsHandler(), logger)
	}
}
