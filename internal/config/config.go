package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	infisical "github.com/infisical/go-sdk"
	"gopkg.in/yaml.v3"

	"github.com/web3-frozen/lp-range-monitor/internal/monitor"
	"github.com/web3-frozen/lp-range-monitor/internal/monitor/sources"
)

// ErrConfig wraps every validation failure. The process must not start
// when Validate returns it.
var ErrConfig = errors.New("invalid configuration")

const (
	defaultPoolID     = "0x109830a1aaad605bbf02a9dfa7b0b92ec2fb7daa"
	defaultLowerPrice = 0.83832102
	defaultUpperPrice = 0.84252314
)

type Config struct {
	Port           string `yaml:"port"`
	FrontendOrigin string `yaml:"frontend_origin"`
	LogLevel       string `yaml:"log_level"`

	TelegramToken  string `yaml:"telegram_bot_token"`
	TelegramChatID string `yaml:"telegram_chat_id"`

	GraphAPIKey     string `yaml:"graph_api_key"`
	GraphGatewayURL string `yaml:"graph_gateway_url"`
	SubgraphID      string `yaml:"subgraph_id"`
	EtherscanAPIKey string `yaml:"etherscan_api_key"`
	EtherscanURL    string `yaml:"etherscan_api_url"`

	PoolID       string                `yaml:"pool_id"`
	Position     monitor.PositionRange `yaml:"position"`
	Thresholds   monitor.Thresholds    `yaml:"thresholds"`
	PollInterval time.Duration         `yaml:"poll_interval"`
	FetchTimeout time.Duration         `yaml:"fetch_timeout"`

	DatabaseURL     string        `yaml:"database_url"`
	RedisURL        string        `yaml:"redis_url"`
	RedisPassword   string        `yaml:"redis_password"`
	AlertDedupTTL   time.Duration `yaml:"alert_dedup_ttl"`
	DailyReportCron string        `yaml:"daily_report_cron"`
}

func defaults() Config {
	return Config{
		Port:            "8080",
		FrontendOrigin:  "*",
		LogLevel:        "info",
		GraphGatewayURL: sources.DefaultGraphGateway,
		SubgraphID:      sources.DefaultSubgraphID,
		EtherscanURL:    sources.DefaultEtherscanAPI,
		PoolID:          defaultPoolID,
		Position:        monitor.PositionRange{Lower: defaultLowerPrice, Upper: defaultUpperPrice},
		Thresholds:      monitor.DefaultThresholds(),
		PollInterval:    30 * time.Second,
		FetchTimeout:    10 * time.Second,
		// 00:00 UTC is 08:00 HKT.
		DailyReportCron: "0 0 0 * * *",
	}
}

// Load applies, in order: defaults, the YAML file at CONFIG_PATH (default
// config.yaml, optional), environment variables, then Infisical for any
// credential still empty.
func Load() (Config, error) {
	cfg := defaults()

	path := envOr("CONFIG_PATH", "config.yaml")
	if err := loadFile(&cfg, path); err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	// If Infisical credentials are available, fetch secrets from Infisical
	clientID := os.Getenv("INFISICAL_CLIENT_ID")
	clientSecret := os.Getenv("INFISICAL_CLIENT_SECRET")
	if clientID != "" && clientSecret != "" {
		loadFromInfisical(&cfg, clientID, clientSecret)
	}

	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"PORT":               &cfg.Port,
		"FRONTEND_ORIGIN":    &cfg.FrontendOrigin,
		"LOG_LEVEL":          &cfg.LogLevel,
		"TELEGRAM_BOT_TOKEN": &cfg.TelegramToken,
		"TELEGRAM_CHAT_ID":   &cfg.TelegramChatID,
		"GRAPH_API_KEY":      &cfg.GraphAPIKey,
		"GRAPH_GATEWAY_URL":  &cfg.GraphGatewayURL,
		"SUBGRAPH_ID":        &cfg.SubgraphID,
		"ETHERSCAN_API_KEY":  &cfg.EtherscanAPIKey,
		"ETHERSCAN_API_URL":  &cfg.EtherscanURL,
		"POOL_ID":            &cfg.PoolID,
		"DATABASE_URL":       &cfg.DatabaseURL,
		"REDIS_URL":          &cfg.RedisURL,
		"REDIS_PASSWORD":     &cfg.RedisPassword,
	}
	for key, target := range strs {
		*target = envOr(key, *target)
	}

	// An explicitly empty DAILY_REPORT_CRON disables the report.
	if v, ok := os.LookupEnv("DAILY_REPORT_CRON"); ok {
		cfg.DailyReportCron = v
	}

	floats := map[string]*float64{
		"POSITION_LOWER_PRICE": &cfg.Position.Lower,
		"POSITION_UPPER_PRICE": &cfg.Position.Upper,
	}
	for key, target := range floats {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrConfig, key, err)
		}
		*target = f
	}

	durations := map[string]*time.Duration{
		"POLL_INTERVAL":   &cfg.PollInterval,
		"FETCH_TIMEOUT":   &cfg.FetchTimeout,
		"ALERT_DEDUP_TTL": &cfg.AlertDedupTTL,
	}
	for key, target := range durations {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrConfig, key, err)
		}
		*target = d
	}
	return nil
}

// parseDuration accepts Go durations ("30s") or a plain number of seconds.
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// Validate checks required credentials and the position parameters.
func (c *Config) Validate() error {
	required := []struct{ key, val string }{
		{"TELEGRAM_BOT_TOKEN", c.TelegramToken},
		{"TELEGRAM_CHAT_ID", c.TelegramChatID},
		{"GRAPH_API_KEY", c.GraphAPIKey},
	}
	for _, r := range required {
		if r.val == "" {
			return fmt.Errorf("%w: %s is required", ErrConfig, r.key)
		}
	}
	if _, err := sources.NormalizePoolID(c.PoolID); err != nil {
		return fmt.Errorf("%w: POOL_ID: %v", ErrConfig, err)
	}
	if !(c.Position.Lower > 0) || !(c.Position.Lower < c.Position.Upper) {
		return fmt.Errorf("%w: position range must satisfy 0 < lower < upper, got %v - %v",
			ErrConfig, c.Position.Lower, c.Position.Upper)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: POLL_INTERVAL must be positive", ErrConfig)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("%w: FETCH_TIMEOUT must be positive", ErrConfig)
	}
	if c.AlertDedupTTL < 0 {
		return fmt.Errorf("%w: ALERT_DEDUP_TTL must not be negative", ErrConfig)
	}
	if err := c.Thresholds.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return nil
}

// SlogLevel parses LogLevel, falling back to info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func loadFromInfisical(cfg *Config, clientID, clientSecret string) {
	siteURL := envOr("INFISICAL_SITE_URL", "https://app.infisical.com")
	projectID := os.Getenv("INFISICAL_PROJECT_ID")
	envSlug := envOr("INFISICAL_ENV", "prod")

	if projectID == "" {
		slog.Warn("INFISICAL_PROJECT_ID not set, skipping Infisical")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := infisical.NewInfisicalClient(ctx, infisical.Config{
		SiteUrl:          siteURL,
		AutoTokenRefresh: false,
	})

	_, err := client.Auth().UniversalAuthLogin(clientID, clientSecret)
	if err != nil {
		slog.Error("infisical auth failed", "error", err)
		return
	}

	secrets := map[string]*string{
		"TELEGRAM_BOT_TOKEN": &cfg.TelegramToken,
		"TELEGRAM_CHAT_ID":   &cfg.TelegramChatID,
		"GRAPH_API_KEY":      &cfg.GraphAPIKey,
		"ETHERSCAN_API_KEY":  &cfg.EtherscanAPIKey,
		"DATABASE_URL":       &cfg.DatabaseURL,
		"REDIS_PASSWORD":     &cfg.RedisPassword,
	}

	for key, target := range secrets {
		if *target != "" {
			continue // env var already set, skip
		}
		secret, err := client.Secrets().Retrieve(infisical.RetrieveSecretOptions{
			SecretKey:   key,
			Environment: envSlug,
			ProjectID:   projectID,
			SecretPath:  "/",
		})
		if err != nil {
			slog.Warn("failed to retrieve secret from infisical", "key", key, "error", err)
			continue
		}
		*target = secret.SecretValue
		slog.Info("loaded secret from infisical", "key", key)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
