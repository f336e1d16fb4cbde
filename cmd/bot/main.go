package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arriendo/internal/bot"
	"arriendo/internal/client"
	"arriendo/internal/config"
	"arriendo/internal/domain"
	"arriendo/internal/events"
	"arriendo/internal/logging"
	"arriendo/internal/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const snapshotKeyPrefix = "arriendo:"

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	apiClient := client.NewFromConfig(cfg.API)
	if redisClient != nil && cfg.API.CacheTTL > 0 {
		apiClient.UseRedisCache(redisClient, time.Duration(cfg.API.CacheTTL)*time.Second, &logger)
	}

	store := initSnapshotStore(redisClient, &logger)

	eventBus := events.NewEventBus()
	eventBus.SubscribeAll(func(ev *events.Event) error {
		logger.Debug().Str("event", ev.Type).RawJSON("payload", ev.Payload).Msg("wizard event")
		return nil
	})

	if cfg.Monitoring.PrometheusEnabled {
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	return startBot(ctx, cfg, apiClient, store, eventBus, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.API.BaseURL == "" {
		return nil, zerolog.Logger{}, nil, errors.New("api.base_url is required for the bot")
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "bot-main").Logger()

	return cfg, logger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}
	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		// клиент оставляем: FailoverStore сам вернется на Redis после восстановления
		logger.Warn().Err(err).Msg("Redis unavailable")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}
	return redisClient
}

func initSnapshotStore(redisClient *redis.Client, logger *zerolog.Logger) domain.SnapshotStore {
	memory := repository.NewMemoryStore()
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverStore(repository.NewRedisStore(redisClient, snapshotKeyPrefix), memory, logger)
}

func startBot(
	ctx context.Context,
	cfg *config.Config,
	api domain.VisitsAPI,
	store domain.SnapshotStore,
	eventBus *events.EventBus,
	logger *zerolog.Logger,
) error {
	if cfg.Telegram.BotToken == "" || cfg.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		logger.Error().Msg("Задайте токен бота в config.yaml")
		return os.ErrInvalid
	}

	tg, err := bot.NewTelegramAPI(cfg.Telegram)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка создания BotAPI")
		return err
	}

	telegramBot, err := bot.NewBot(tg, api, store, eventBus, cfg, bot.NewMetrics(prometheus.DefaultRegisterer), logger)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка создания бота")
		return err
	}

	logger.Info().Msg("Бот запущен...")
	telegramBot.Start(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	telegramBot.Stop(stopCtx)

	logger.Info().Msg("Shutdown complete.")
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
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
