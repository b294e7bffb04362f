package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"wxsync/internal/api"
	"wxsync/internal/config"
	"wxsync/internal/database"
	"wxsync/internal/events"
	"wxsync/internal/logging"
	"wxsync/internal/metrics"
	"wxsync/internal/models"
	"wxsync/internal/queue"
	"wxsync/internal/repository"
	"wxsync/internal/service"
	"wxsync/internal/wxwork"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	yamlv2 "gopkg.in/yaml.v2"
)

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

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("database init failed")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := seedOperators(ctx, db, &logger); err != nil {
		return err
	}

	redisClient, tokenCache := initTokenCache(ctx, cfg, &logger)
	defer repository.Close(redisClient)

	wxClient := wxwork.NewClient(cfg.WeChatWork.BaseURL, time.Duration(cfg.WeChatWork.Timeout)*time.Second)

	eventBus := events.NewEventBus()
	subscribeTaskEvents(eventBus, &logger)

	credentials := service.NewCredentialService(db, tokenCache, wxClient, &logger)

	manager := queue.NewManager(redisClient, queue.ManagerConfig{
		Concurrency:     cfg.Queue.Concurrency,
		RateLimitMax:    cfg.Queue.RateLimitMax,
		RateLimitWindow: cfg.Queue.RateWindow(),
	}, &logger)

	taskService := service.NewTaskService(db, db, credentials, manager, eventBus, &logger)
	syncService := service.NewSyncService(db, db, credentials, wxClient, taskService, eventBus, &logger)
	customerService := service.NewCustomerService(db, credentials, &logger)
	rosterService := service.NewRosterService(db, credentials, wxClient, &logger)
	exportService := service.NewExportService(db, credentials, cfg.Exports.Path, &logger)

	if err := manager.Register(service.QueueCustomerSync, queue.Options{
		Attempts: cfg.Queue.Attempts,
		Backoff:  cfg.Queue.BackoffBase(),
	}, syncService.ProcessSyncJob); err != nil {
		return err
	}
	go manager.Start(ctx)

	scheduler := queue.NewScheduler(&logger)
	scheduler.Add(queue.Schedule{Name: "token_refresh", Interval: time.Hour, Run: credentials.RefreshAllTokens})
	scheduler.Add(queue.Schedule{Name: "task_sweep", Interval: 5 * time.Minute, Run: taskService.SweepRunningTasks})
	go scheduler.Start(ctx)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(cfg, &logger)
	}

	if cfg.API.Enabled {
		apiServer := api.NewHTTPServer(cfg.API, taskService, customerService, rosterService, exportService, db, &logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = apiServer.Shutdown(shutdownCtx)
		}()
	}

	logger.Info().Msg("wxsync started")
	<-ctx.Done()
	logger.Info().Msg("Shutdown complete.")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	logger := baseLogger.With().Str("component", "server-main").Logger()

	return cfg, logger, closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if cfg == nil {
		return os.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("database directory create failed")
		return err
	}
	if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
		logger.Error().Err(err).Msg("export directory create failed")
		return err
	}
	return nil
}

// seedOperators loads configs/operators.yaml, if present, and writes the corp
// credentials it lists into settings. Lets a fresh deployment come up
// configured without touching the API.
func seedOperators(ctx context.Context, db *database.DB, logger *zerolog.Logger) error {
	seedPath := os.Getenv("OPERATORS_PATH")
	if seedPath == "" {
		seedPath = "configs/operators.yaml"
	}

	data, err := os.ReadFile(seedPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		logger.Error().Err(err).Str("path", seedPath).Msg("operators seed read failed")
		return err
	}

	// Same ${VAR} expansion as the main config, secrets stay in the environment.
	data = []byte(os.ExpandEnv(string(data)))

	var seed struct {
		Operators []struct {
			OperatorID string `yaml:"operator_id"`
			CorpID     string `yaml:"corp_id"`
			CorpSecret string `yaml:"corp_secret"`
			Remark     string `yaml:"remark"`
		} `yaml:"operators"`
	}
	if err := yamlv2.Unmarshal(data, &seed); err != nil {
		logger.Error().Err(err).Msg("operators seed parse failed")
		return err
	}

	for _, op := range seed.Operators {
		if op.OperatorID == "" || op.CorpID == "" {
			continue
		}
		if err := db.SetSetting(ctx, op.OperatorID, models.SettingCorpID, op.CorpID); err != nil {
			return err
		}
		if op.CorpSecret != "" {
			if err := db.SetSetting(ctx, op.OperatorID, models.SettingCorpSecret, op.CorpSecret); err != nil {
				return err
			}
		}
		if op.Remark != "" {
			if err := db.SetSetting(ctx, op.OperatorID, models.SettingCorpRemark, op.Remark); err != nil {
				return err
			}
		}
		logger.Info().Str("operator_id", op.OperatorID).Msg("operator seeded from configs")
	}
	return nil
}

func initTokenCache(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, *repository.FailoverTokenCache) {
	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient = repository.NewRedisClient(cfg.Redis)
		if errPing := repository.Ping(ctx, redisClient); errPing != nil {
			logger.Warn().Err(errPing).Msg("Redis unavailable")
		}
	}

	primary := repository.NewRedisTokenCache(redisClient)
	fallback := repository.NewMemoryTokenCache()
	return redisClient, repository.NewFailoverTokenCache(primary, fallback, logger)
}

func startMetricsServer(cfg *config.Config, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort)
	logger.Info().Str("addr", addr).Msg("metrics server listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

func subscribeTaskEvents(bus *events.EventBus, logger *zerolog.Logger) {
	taskHandler := func(ev *events.Event) error {
		var payload events.TaskEventPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			logger.Error().Err(err).Str("event", ev.Type).Msg("event bus: decode payload")
			return nil
		}
		logger.Info().
			Str("event", ev.Type).
			Int64("task_id", payload.TaskID).
			Str("operator_id", payload.OperatorID).
			Str("status", payload.Status).
			Msg("task event")
		return nil
	}

	itemHandler := func(ev *events.Event) error {
		var payload events.ItemEventPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			logger.Error().Err(err).Str("event", ev.Type).Msg("event bus: decode payload")
			return nil
		}
		logger.Info().
			Str("event", ev.Type).
			Int64("task_id", payload.TaskID).
			Int64("task_item_id", payload.TaskItemID).
			Str("staff_id", payload.StaffID).
			Str("status", payload.Status).
			Msg("task item event")
		return nil
	}

	bus.Subscribe(events.EventTaskCreated, taskHandler)
	bus.Subscribe(events.EventTaskStarted, taskHandler)
	bus.Subscribe(events.EventTaskFinished, taskHandler)
	bus.Subscribe(events.EventItemCompleted, itemHandler)
	bus.Subscribe(events.EventItemFailed, itemHandler)
}
