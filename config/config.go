package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DatabaseConfig     DatabaseConfig     `json:"database"`
	RedisConfig        RedisConfig        `json:"redis"`
	WSBridgeConfig     WSBridgeConfig     `json:"ws_bridge"`
	CommConfig         CommConfig         `json:"comm"`
	EnsembleConfig     EnsembleConfig     `json:"ensemble"`
	ValidatorConfig    ValidatorConfig    `json:"validator"`
	PerformanceConfig  PerformanceConfig  `json:"performance"`
	ServerConfig       ServerConfig       `json:"server"`
	NotificationConfig NotificationConfig `json:"notification"`
	LoggingConfig      LoggingConfig      `json:"logging"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Name     string `json:"name"`
	SSLMode  string `json:"ssl_mode"`
}

// DSN builds a PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// RedisConfig holds settings for the broadcast bridge
type RedisConfig struct {
	Address       string `json:"address"`
	Password      string `json:"password"`
	DB            int    `json:"db"`
	SignalChannel string `json:"signal_channel"`
	HeartbeatList string `json:"heartbeat_list"`
	ResponseList  string `json:"response_list"`
	SendTimeoutMs int    `json:"send_timeout_ms"`
}

// WSBridgeConfig holds settings for the WebSocket bridge
type WSBridgeConfig struct {
	ListenAddr     string `json:"listen_addr"`
	WriteTimeoutMs int    `json:"write_timeout_ms"`
}

// CommConfig controls transport health monitoring and failover
type CommConfig struct {
	FailoverEnabled        bool `json:"failover_enabled"`
	HealthCheckIntervalSec int  `json:"health_check_interval_sec"`
}

// EnsembleConfig controls the decision engine
type EnsembleConfig struct {
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	PredictTimeoutMs    int     `json:"predict_timeout_ms"`
	ModelDir            string  `json:"model_dir"`
}

// ValidatorConfig controls the signal validation gates
type ValidatorConfig struct {
	MinConfidence        float64 `json:"min_confidence"`
	TradingStartHour     int     `json:"trading_start_hour"`
	TradingEndHour       int     `json:"trading_end_hour"`
	MaxSignalsPerSymbol  int     `json:"max_signals_per_symbol"`
	FrequencyLookback    int     `json:"frequency_lookback"`
	MinIntervalSec       int     `json:"min_interval_sec"`
	HistoryCap           int     `json:"history_cap"`
}

// PerformanceConfig controls agent scoring and hot-swapping
type PerformanceConfig struct {
	ScoringIntervalSec int     `json:"scoring_interval_sec"`
	ScoringWindowSec   int     `json:"scoring_window_sec"`
	SwapIntervalSec    int     `json:"swap_interval_sec"`
	SwapThreshold      float64 `json:"swap_threshold"`
	FreshnessSec       int     `json:"freshness_sec"`
}

// ServerConfig holds the operator HTTP API settings
type ServerConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

type DiscordConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // DEBUG, INFO, WARN, ERROR
	JSONFormat bool   `json:"json_format"` // Output as JSON
}

func Load() (*Config, error) {
	// First try to load base config from file
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// If no config file, start with empty config
		cfg = &Config{}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Database config
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", defaultStr(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", defaultInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", defaultStr(cfg.DatabaseConfig.User, "postgres"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Name = getEnvOrDefault("DB_NAME", defaultStr(cfg.DatabaseConfig.Name, "signal_engine"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSL_MODE", defaultStr(cfg.DatabaseConfig.SSLMode, "disable"))

	// Redis bridge config
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", defaultStr(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.SignalChannel = getEnvOrDefault("REDIS_SIGNAL_CHANNEL", defaultStr(cfg.RedisConfig.SignalChannel, "signals"))
	cfg.RedisConfig.HeartbeatList = getEnvOrDefault("REDIS_HEARTBEAT_LIST", defaultStr(cfg.RedisConfig.HeartbeatList, "heartbeat:requests"))
	cfg.RedisConfig.ResponseList = getEnvOrDefault("REDIS_RESPONSE_LIST", defaultStr(cfg.RedisConfig.ResponseList, "heartbeat:responses"))
	cfg.RedisConfig.SendTimeoutMs = getEnvIntOrDefault("REDIS_SEND_TIMEOUT_MS", defaultInt(cfg.RedisConfig.SendTimeoutMs, 500))

	// WebSocket bridge config
	cfg.WSBridgeConfig.ListenAddr = getEnvOrDefault("WS_LISTEN_ADDR", defaultStr(cfg.WSBridgeConfig.ListenAddr, "0.0.0.0:8765"))
	cfg.WSBridgeConfig.WriteTimeoutMs = getEnvIntOrDefault("WS_WRITE_TIMEOUT_MS", defaultInt(cfg.WSBridgeConfig.WriteTimeoutMs, 2000))

	// Comm config
	cfg.CommConfig.FailoverEnabled = getEnvOrDefault("COMM_FAILOVER_ENABLED", "true") == "true"
	cfg.CommConfig.HealthCheckIntervalSec = getEnvIntOrDefault("COMM_HEALTH_CHECK_INTERVAL_SEC", defaultInt(cfg.CommConfig.HealthCheckIntervalSec, 30))

	// Ensemble config
	cfg.EnsembleConfig.ConfidenceThreshold = getEnvFloatOrDefault("ENSEMBLE_CONFIDENCE_THRESHOLD", defaultFloat(cfg.EnsembleConfig.ConfidenceThreshold, 0.75))
	cfg.EnsembleConfig.PredictTimeoutMs = getEnvIntOrDefault("ENSEMBLE_PREDICT_TIMEOUT_MS", defaultInt(cfg.EnsembleConfig.PredictTimeoutMs, 2000))
	cfg.EnsembleConfig.ModelDir = getEnvOrDefault("ENSEMBLE_MODEL_DIR", defaultStr(cfg.EnsembleConfig.ModelDir, "models"))

	// Validator config
	cfg.ValidatorConfig.MinConfidence = getEnvFloatOrDefault("VALIDATOR_MIN_CONFIDENCE", defaultFloat(cfg.ValidatorConfig.MinConfidence, 0.75))
	cfg.ValidatorConfig.TradingStartHour = getEnvIntOrDefault("VALIDATOR_TRADING_START_HOUR", cfg.ValidatorConfig.TradingStartHour)
	cfg.ValidatorConfig.TradingEndHour = getEnvIntOrDefault("VALIDATOR_TRADING_END_HOUR", defaultInt(cfg.ValidatorConfig.TradingEndHour, 23))
	cfg.ValidatorConfig.MaxSignalsPerSymbol = getEnvIntOrDefault("VALIDATOR_MAX_SIGNALS_PER_SYMBOL", defaultInt(cfg.ValidatorConfig.MaxSignalsPerSymbol, 3))
	cfg.ValidatorConfig.FrequencyLookback = getEnvIntOrDefault("VALIDATOR_FREQUENCY_LOOKBACK", defaultInt(cfg.ValidatorConfig.FrequencyLookback, 20))
	cfg.ValidatorConfig.MinIntervalSec = getEnvIntOrDefault("VALIDATOR_MIN_INTERVAL_SEC", defaultInt(cfg.ValidatorConfig.MinIntervalSec, 60))
	cfg.ValidatorConfig.HistoryCap = getEnvIntOrDefault("VALIDATOR_HISTORY_CAP", defaultInt(cfg.ValidatorConfig.HistoryCap, 100))

	// Performance config
	cfg.PerformanceConfig.ScoringIntervalSec = getEnvIntOrDefault("PERF_SCORING_INTERVAL_SEC", defaultInt(cfg.PerformanceConfig.ScoringIntervalSec, 3600))
	cfg.PerformanceConfig.ScoringWindowSec = getEnvIntOrDefault("PERF_SCORING_WINDOW_SEC", defaultInt(cfg.PerformanceConfig.ScoringWindowSec, 86400))
	cfg.PerformanceConfig.SwapIntervalSec = getEnvIntOrDefault("PERF_SWAP_INTERVAL_SEC", defaultInt(cfg.PerformanceConfig.SwapIntervalSec, 300))
	cfg.PerformanceConfig.SwapThreshold = getEnvFloatOrDefault("PERF_SWAP_THRESHOLD", defaultFloat(cfg.PerformanceConfig.SwapThreshold, 0.45))
	cfg.PerformanceConfig.FreshnessSec = getEnvIntOrDefault("PERF_FRESHNESS_SEC", defaultInt(cfg.PerformanceConfig.FreshnessSec, 3600))

	// Server config
	cfg.ServerConfig.Host = getEnvOrDefault("SERVER_HOST", defaultStr(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", defaultInt(cfg.ServerConfig.Port, 8080))
	if origins := os.Getenv("SERVER_ALLOWED_ORIGINS"); origins != "" {
		cfg.ServerConfig.AllowedOrigins = strings.Split(origins, ",")
	}
	if len(cfg.ServerConfig.AllowedOrigins) == 0 {
		cfg.ServerConfig.AllowedOrigins = []string{"*"}
	}

	// Notification config
	cfg.NotificationConfig.Enabled = getEnvOrDefault("NOTIFICATION_ENABLED", boolStr(cfg.NotificationConfig.Enabled)) == "true"
	cfg.NotificationConfig.Telegram.Enabled = getEnvOrDefault("TELEGRAM_ENABLED", boolStr(cfg.NotificationConfig.Telegram.Enabled)) == "true"
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)
	cfg.NotificationConfig.Discord.Enabled = getEnvOrDefault("DISCORD_ENABLED", boolStr(cfg.NotificationConfig.Discord.Enabled)) == "true"
	cfg.NotificationConfig.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.NotificationConfig.Discord.WebhookURL)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", defaultStr(cfg.LoggingConfig.Level, "INFO"))
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", boolStr(cfg.LoggingConfig.JSONFormat)) == "true"
}

// ScoringInterval returns the performance scoring interval as a duration
func (c *PerformanceConfig) ScoringInterval() time.Duration {
	return time.Duration(c.ScoringIntervalSec) * time.Second
}

// ScoringWindow returns the trade outcome lookback window as a duration
func (c *PerformanceConfig) ScoringWindow() time.Duration {
	return time.Duration(c.ScoringWindowSec) * time.Second
}

// SwapInterval returns the hot-swap check interval as a duration
func (c *PerformanceConfig) SwapInterval() time.Duration {
	return time.Duration(c.SwapIntervalSec) * time.Second
}

// Freshness returns the registry freshness window as a duration
func (c *PerformanceConfig) Freshness() time.Duration {
	return time.Duration(c.FreshnessSec) * time.Second
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func defaultStr(current, fallback string) string {
	if current != "" {
		return current
	}
	return fallback
}

func defaultInt(current, fallback int) int {
	if current != 0 {
		return current
	}
	return fallback
}

func defaultFloat(current, fallback float64) float64 {
	if current != 0 {
		return current
	}
	return fallback
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	config := Config{
		DatabaseConfig: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			Name:    "signal_engine",
			SSLMode: "disable",
		},
		RedisConfig: RedisConfig{
			Address:       "localhost:6379",
			SignalChannel: "signals",
			HeartbeatList: "heartbeat:requests",
			ResponseList:  "heartbeat:responses",
			SendTimeoutMs: 500,
		},
		WSBridgeConfig: WSBridgeConfig{
			ListenAddr:     "0.0.0.0:8765",
			WriteTimeoutMs: 2000,
		},
		CommConfig: CommConfig{
			FailoverEnabled:        true,
			HealthCheckIntervalSec: 30,
		},
		EnsembleConfig: EnsembleConfig{
			ConfidenceThreshold: 0.75,
			PredictTimeoutMs:    2000,
			ModelDir:            "models",
		},
		ValidatorConfig: ValidatorConfig{
			MinConfidence:       0.75,
			TradingStartHour:    0,
			TradingEndHour:      23,
			MaxSignalsPerSymbol: 3,
			FrequencyLookback:   20,
			MinIntervalSec:      60,
			HistoryCap:          100,
		},
		PerformanceConfig: PerformanceConfig{
			ScoringIntervalSec: 3600,
			ScoringWindowSec:   86400,
			SwapIntervalSec:    300,
			SwapThreshold:      0.45,
			FreshnessSec:       3600,
		},
		ServerConfig: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			AllowedOrigins: []string{"*"},
		},
		NotificationConfig: NotificationConfig{
			Enabled: false,
			Telegram: TelegramConfig{
				Enabled:  false,
				BotToken: "",
				ChatID:   "",
			},
			Discord: DiscordConfig{
				Enabled:    false,
				WebhookURL: "",
			},
		},
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			JSONFormat: true,
		},
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
