package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"ensemble-signal-engine/config"
	"ensemble-signal-engine/internal/api"
	"ensemble-signal-engine/internal/bridge"
	"ensemble-signal-engine/internal/database"
	"ensemble-signal-engine/internal/ensemble"
	"ensemble-signal-engine/internal/events"
	"ensemble-signal-engine/internal/logging"
	"ensemble-signal-engine/internal/market"
	"ensemble-signal-engine/internal/metrics"
	"ensemble-signal-engine/internal/model"
	"ensemble-signal-engine/internal/notification"
	"ensemble-signal-engine/internal/performance"
	"ensemble-signal-engine/internal/validator"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logging.Setup(logging.Config{
		Level:      cfg.LoggingConfig.Level,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
	})
	logger := logging.Component("main")
	logger.Info().Msg("structured logging initialized")

	// Initialize event bus
	eventBus := events.NewEventBus()

	// Initialize notification manager
	if cfg.NotificationConfig.Enabled {
		notifyManager := notification.NewManager()

		if cfg.NotificationConfig.Telegram.Enabled {
			notifyManager.AddNotifier(notification.NewTelegramNotifier(notification.TelegramConfig{
				BotToken: cfg.NotificationConfig.Telegram.BotToken,
				ChatID:   cfg.NotificationConfig.Telegram.ChatID,
				Enabled:  cfg.NotificationConfig.Telegram.Enabled,
			}))
			logger.Info().Msg("telegram notifications enabled")
		}

		if cfg.NotificationConfig.Discord.Enabled {
			notifyManager.AddNotifier(notification.NewDiscordNotifier(notification.DiscordConfig{
				WebhookURL: cfg.NotificationConfig.Discord.WebhookURL,
				Enabled:    cfg.NotificationConfig.Discord.Enabled,
			}))
			logger.Info().Msg("discord notifications enabled")
		}

		notifyManager.BindBus(eventBus)
	}

	// Initialize metrics
	recorder := metrics.New()
	recorder.BindBus(eventBus)

	// Initialize database
	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Name,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.RunMigrations(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	store := database.NewStore(db)

	// Model loaders
	registry := model.NewRegistry()
	registry.Register(".json", model.LinearLoader())
	registry.Register(".rules", model.RulesLoader())

	// Build the agent pool from active registry rows. An agent whose model
	// fails to load is excluded rather than blocking startup.
	pool := ensemble.NewPool()
	predictTimeout := time.Duration(cfg.EnsembleConfig.PredictTimeoutMs) * time.Millisecond

	entries, err := store.ActiveModels(ctx)
	if err != nil {
		log.Fatalf("Failed to load model registry: %v", err)
	}
	for _, entry := range entries {
		path := entry.ModelPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(cfg.EnsembleConfig.ModelDir, path)
		}
		handle, err := registry.Load(path)
		if err != nil {
			logger.Error().Err(err).Str("agent", entry.AgentName).Str("path", path).
				Msg("model load failed, agent excluded")
			continue
		}
		agent := ensemble.NewAgent(entry.AgentName, ensemble.CategoryFromName(entry.AgentName),
			entry.Version, entry.Weight, handle, predictTimeout)
		pool.Replace(agent)
	}
	logger.Info().Int("agents", pool.Len()).Msg("agent pool initialized")

	// Signal validator
	val := validator.New(validator.Config{
		ConfidenceThreshold: cfg.ValidatorConfig.MinConfidence,
		WindowStartHour:     cfg.ValidatorConfig.TradingStartHour,
		WindowEndHour:       cfg.ValidatorConfig.TradingEndHour,
		MaxPerSymbol:        cfg.ValidatorConfig.MaxSignalsPerSymbol,
		LookBack:            cfg.ValidatorConfig.FrequencyLookback,
		MinInterval:         time.Duration(cfg.ValidatorConfig.MinIntervalSec) * time.Second,
		HistoryCap:          cfg.ValidatorConfig.HistoryCap,
	})

	// Decision engine
	engine := ensemble.NewEngine(pool, val, store, eventBus, ensemble.Config{
		ConfidenceThreshold: cfg.EnsembleConfig.ConfidenceThreshold,
	})

	// Transport bridges
	redisBridge := bridge.NewRedisBridge(bridge.RedisConfig{
		Addr:          cfg.RedisConfig.Address,
		Password:      cfg.RedisConfig.Password,
		DB:            cfg.RedisConfig.DB,
		SignalChannel: cfg.RedisConfig.SignalChannel,
		HeartbeatList: cfg.RedisConfig.HeartbeatList,
		ResponseList:  cfg.RedisConfig.ResponseList,
		SendTimeoutMs: cfg.RedisConfig.SendTimeoutMs,
	})
	wsBridge := bridge.NewWSBridge(bridge.WSConfig{
		ListenAddr:   cfg.WSBridgeConfig.ListenAddr,
		WriteTimeout: cfg.WSBridgeConfig.WriteTimeoutMs,
	})
	wsBridge.OnConnect = func(remote string) {
		eventBus.Publish(events.Event{
			Type: events.EventPeerConnected,
			Data: map[string]interface{}{"remote": remote},
		})
	}
	wsBridge.OnDisconnect = func(remote string) {
		eventBus.Publish(events.Event{
			Type: events.EventPeerDisconnected,
			Data: map[string]interface{}{"remote": remote},
		})
	}

	comm := bridge.NewManager(redisBridge, wsBridge, eventBus, bridge.ManagerConfig{
		FailoverEnabled:     cfg.CommConfig.FailoverEnabled,
		HealthCheckInterval: time.Duration(cfg.CommConfig.HealthCheckIntervalSec) * time.Second,
	})
	if err := comm.Start(); err != nil {
		log.Fatalf("Failed to start distribution layer: %v", err)
	}
	logger.Info().Str("active", comm.ActiveName()).Msg("distribution layer started")

	// Background performance loops
	tracker := performance.NewTracker(store, pool, eventBus, performance.TrackerConfig{
		Interval: cfg.PerformanceConfig.ScoringInterval(),
		Window:   cfg.PerformanceConfig.ScoringWindow(),
	})
	go tracker.Run(ctx)

	swapper := performance.NewSwapper(store, pool, registry, eventBus, performance.SwapperConfig{
		Interval:       cfg.PerformanceConfig.SwapInterval(),
		SwapThreshold:  cfg.PerformanceConfig.SwapThreshold,
		Freshness:      cfg.PerformanceConfig.Freshness(),
		PredictTimeout: predictTimeout,
	})
	go swapper.Run(ctx)

	// Market data
	provider := market.NewSimProvider()

	// Operator API
	server := api.NewServer(api.ServerConfig{
		Host:           cfg.ServerConfig.Host,
		Port:           cfg.ServerConfig.Port,
		AllowedOrigins: cfg.ServerConfig.AllowedOrigins,
		ProductionMode: cfg.LoggingConfig.JSONFormat,
	}, engine, comm, val, store, provider, recorder)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("api server stopped")
			cancel()
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-ctx.Done():
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api shutdown failed")
	}
	if err := comm.Stop(); err != nil {
		logger.Error().Err(err).Msg("bridge shutdown failed")
	}
	logger.Info().Msg("shutdown complete")
}
