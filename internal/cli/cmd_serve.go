package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"onboarding/internal/backend"
	checkpointMetrics "onboarding/internal/checkpoint/metrics"
	"onboarding/internal/events"
	"onboarding/internal/expiring"
	"onboarding/internal/journey"
	"onboarding/internal/platform/config"
	"onboarding/internal/platform/httpserver"
	"onboarding/internal/platform/logger"
	"onboarding/internal/platform/metrics"
	"onboarding/internal/platform/postgres"
	"onboarding/internal/platform/redis"
	"onboarding/internal/session"
	httptransport "onboarding/internal/transport/http"
	verificationMetrics "onboarding/internal/verification/metrics"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the onboarding HTTP service",
		Long: `Run the onboarding HTTP service.

Configuration comes from defaults, then the YAML file given by --config (or
ONBOARDING_CONFIG), then environment variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if configPath == "" {
				cfg, err := config.FromEnv()
				if err != nil {
					return err
				}
				return serve(cmd.Context(), cfg)
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	return cmd
}

// serve wires the process dependencies and blocks until ctx is cancelled
// or a termination signal arrives.
func serve(ctx context.Context, cfg config.Server) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	store, ready, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	client, err := backend.New(cfg.Backend.URL,
		backend.WithHTTPClient(&http.Client{Timeout: cfg.Backend.Timeout}),
		backend.WithLogger(log),
	)
	if err != nil {
		return err
	}

	publisher, err := openPublisher(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer publisher.Close()

	appMetrics := metrics.New()
	registry, err := journey.NewRegistry(client, store,
		journey.WithLogger(log),
		journey.WithPublisher(publisher),
		journey.WithConfig(journeyConfig(cfg)),
		journey.WithMetrics(checkpointMetrics.New(), verificationMetrics.New()),
		journey.WithJourneyMetrics(appMetrics),
	)
	if err != nil {
		return err
	}
	defer registry.Close()
	go registry.Run(ctx, cfg.Journey.SweepInterval)

	router := httptransport.NewRouter(httptransport.Deps{
		Journeys: registry,
		Sessions: session.NewParser(cfg.JWTSigningKey),
		Logger:   log,
		Metrics:  appMetrics,
		Ready:    ready,
	})
	srv := httpserver.New(cfg.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting onboarding service", "addr", cfg.Addr, "backend", cfg.Backend.URL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func journeyConfig(cfg config.Server) journey.Config {
	jc := journey.DefaultConfig()
	if cfg.Checkpoint.FreshFor > 0 {
		jc.Checkpoint.FreshFor = cfg.Checkpoint.FreshFor
	}
	if cfg.Checkpoint.EvictAfter > 0 {
		jc.Checkpoint.EvictAfter = cfg.Checkpoint.EvictAfter
	}
	jc.Checkpoint.MaxRetries = cfg.Checkpoint.MaxRetries
	jc.MinSettled = cfg.Journey.MinSettled
	if cfg.Journey.IdleTimeout > 0 {
		jc.IdleTimeout = cfg.Journey.IdleTimeout
	}
	if cfg.Journey.ProfileTTL > 0 {
		jc.ProfileTTL = cfg.Journey.ProfileTTL
	}
	if len(cfg.Verification) > 0 {
		jc.Kinds = cfg.Verification
	}
	return jc
}

// openStore picks the profile value backend: Postgres, then Redis, then
// process memory. It returns the readiness probe and a close func.
func openStore(ctx context.Context, cfg config.Server, log *slog.Logger) (*expiring.Store, func(context.Context) error, func(), error) {
	var (
		be     expiring.Backend
		ready  func(context.Context) error
		closer = func() {}
	)

	pool, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, nil, err
	}
	switch {
	case pool != nil:
		pg := expiring.NewPostgresBackend(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		be, ready, closer = pg, pool.Ping, pool.Close
		go purgeLoop(ctx, pg, cfg.Journey.SweepInterval, log)
		log.Info("profile store: postgres")
	default:
		rc, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, nil, err
		}
		if rc != nil {
			be, ready = expiring.NewRedisBackend(rc.Client), rc.Health
			closer = func() { _ = rc.Close() }
			log.Info("profile store: redis")
		} else {
			be = expiring.NewMemoryBackend()
			log.Warn("profile store: memory, values are lost on restart")
		}
	}

	opts := []expiring.Option{expiring.WithLogger(log)}
	if cfg.SealKey != "" {
		sealer, err := expiring.NewSealer(cfg.SealKey)
		if err != nil {
			closer()
			return nil, nil, nil, err
		}
		opts = append(opts, expiring.WithSealer(sealer))
	}
	store, err := expiring.New(be, opts...)
	if err != nil {
		closer()
		return nil, nil, nil, err
	}
	return store, ready, closer, nil
}

func purgeLoop(ctx context.Context, pg *expiring.PostgresBackend, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := pg.Purge(ctx)
			if err != nil {
				log.Warn("purge expired profile values", "error", err)
				continue
			}
			if n > 0 {
				log.Info("purged expired profile values", "count", n)
			}
		}
	}
}

// openPublisher returns a Kafka publisher when brokers are configured,
// otherwise a log publisher.
func openPublisher(ctx context.Context, cfg config.Server, log *slog.Logger) (events.Publisher, error) {
	logPub := events.NewLogPublisher(log)
	if len(cfg.Kafka.Brokers) == 0 {
		return logPub, nil
	}
	kp, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic,
		events.WithLogger(log),
		events.WithFallback(logPub),
	)
	if err != nil {
		return nil, err
	}
	if err := kp.EnsureTopic(ctx, cfg.Kafka.Partitions, cfg.Kafka.Replication); err != nil {
		log.Warn("ensure kafka topic", "topic", cfg.Kafka.Topic, "error", err)
	}
	return kp, nil
}
