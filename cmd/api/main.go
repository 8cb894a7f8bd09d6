package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"recolha/internal/api"
	"recolha/internal/config"
	"recolha/internal/database"
	"recolha/internal/domain"
	"recolha/internal/events"
	"recolha/internal/logging"
	"recolha/internal/metrics"
	"recolha/internal/municipality"
	"recolha/internal/repository"
	"recolha/internal/service"
	"recolha/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, baseLogger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	location, err := cfg.App.Location()
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}

	db, err := database.NewDB(cfg.Database.Path, logging.Component(baseLogger, "database"))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer repository.Close(redisClient)
	}
	cache := initCache(redisClient, baseLogger)

	directory := municipality.NewDirectory(
		initMunicipalitySource(cfg),
		cache,
		cfg.Municipalities.CacheTTL,
		logging.Component(baseLogger, "municipalities"),
	)

	eventBus := events.NewEventBus()
	if cfg.Kafka.Enabled {
		forwarder := events.NewKafkaForwarder(events.NewKafkaWriter(cfg.Kafka), logging.Component(baseLogger, "kafka"))
		forwarder.Attach(eventBus)
		defer (func() { _ = forwarder.Close() })()
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka forwarding enabled")
	}

	bookingService := service.NewBookingService(db, directory, eventBus, service.Options{
		Denylist: cfg.Municipalities.Denylist,
		Location: location,
	}, logging.Component(baseLogger, "booking-service"))

	httpServer := api.NewHTTPServer(cfg.API, bookingService, directory, logging.Component(baseLogger, "http"))
	httpServer.SetHealthCheck(db.Healthy)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, &logger)
	startBackground(ctx, cfg, db, directory, baseLogger)

	return startServer(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, logger, closer, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(context.Background(), redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = repository.Close(redisClient)
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initCache prefers Redis with an in-memory fallback.
func initCache(redisClient *redis.Client, baseLogger *zerolog.Logger) domain.ListCache {
	memory := repository.NewMemoryListCache()
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverListCache(
		repository.NewRedisListCache(redisClient),
		memory,
		logging.Component(baseLogger, "cache"),
	)
}

func initMunicipalitySource(cfg *config.Config) municipality.Source {
	if cfg.Municipalities.File != "" {
		return municipality.FileSource{Path: cfg.Municipalities.File}
	}
	client := &http.Client{Timeout: cfg.Municipalities.RequestTimeout}
	return municipality.NewHTTPSource(cfg.Municipalities.SourceURL, client)
}

func startBackground(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	directory *municipality.Directory,
	baseLogger *zerolog.Logger,
) {
	refresher := worker.NewRefresher(
		directory,
		cfg.Municipalities.RefreshInterval,
		worker.RetryPolicy{},
		logging.Component(baseLogger, "municipality-refresher"),
	)
	go refresher.Start(ctx)

	backup := database.NewBackupService(db, cfg.Backup, logging.Component(baseLogger, "backup"))
	go backup.Start(ctx)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	metrics.Register()
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
