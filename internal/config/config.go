// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"telegram-group-subscription/internal/domain/model"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token    string  `yaml:"token"`
	Username string  `yaml:"username"`
	GroupID  int64   `yaml:"group_id"`
	Workers  int     `yaml:"workers"` // polling workers
	AdminIDs []int64 `yaml:"admin_ids"`
	Language string  `yaml:"language"`
	// Disabled runs without Telegram; messages are only logged.
	Disabled bool `yaml:"disabled"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	PublicURL      string        `yaml:"public_url"` // used to build the webhook url sent to the gateway
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

// RedisConfig is optional; with an empty URL sessions and webhook
// de-duplication stay in process memory.
type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type GatewayConfig struct {
	BaseURL       string        `yaml:"base_url"`
	ClientID      string        `yaml:"client_id"`
	APIKey        string        `yaml:"api_key"`
	WebhookSecret string        `yaml:"webhook_secret"`
	Timeout       time.Duration `yaml:"timeout"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	MaxAttempts   int           `yaml:"max_attempts"`
}

type PaymentConfig struct {
	Gateway              GatewayConfig `yaml:"gateway"`
	Currency             string        `yaml:"currency"`
	StarsToUSD           float64       `yaml:"stars_to_usd"`
	SessionTTL           time.Duration `yaml:"session_ttl"`
	LinkTTL              time.Duration `yaml:"link_ttl"`
	SignatureTolerance   time.Duration `yaml:"signature_tolerance"`
	PreCheckoutMaxAge    time.Duration `yaml:"pre_checkout_max_age"`
	WebhookDedupCapacity int           `yaml:"webhook_dedup_capacity"`
	WebhookWorkers       int           `yaml:"webhook_workers"`
}

type SchedulerConfig struct {
	DailyAt            string        `yaml:"daily_at"` // HH:MM, UTC
	ReminderDays       []int         `yaml:"reminder_days"`
	AuditRetentionDays int           `yaml:"audit_retention_days"`
	SweepInterval      time.Duration `yaml:"sweep_interval"`
	RunTimeout         time.Duration `yaml:"run_timeout"`
}

type AdminConfig struct {
	APIKey    string        `yaml:"api_key"`
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type Config struct {
	Bot       BotConfig       `yaml:"bot"`
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Payment   PaymentConfig   `yaml:"payment"`
	Plans     []model.Plan    `yaml:"plans"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Admin     AdminConfig     `yaml:"admin"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse decodes YAML, applies env overrides and defaults, and validates.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)

	// Minimal validation
	if cfg.Bot.Token == "" && !cfg.Bot.Disabled {
		return nil, errors.New("bot.token is required")
	}
	if cfg.Bot.GroupID == 0 {
		return nil, errors.New("bot.group_id is required")
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if _, _, err := ParseClock(cfg.Scheduler.DailyAt); err != nil {
		return nil, fmt.Errorf("scheduler.daily_at: %w", err)
	}
	if cfg.Payment.StarsToUSD <= 0 {
		return nil, errors.New("payment.stars_to_usd must be positive")
	}
	if _, err := model.NewPlanCatalog(cfg.Plans); err != nil {
		return nil, fmt.Errorf("plans: %w", err)
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	override(&cfg.Bot.Token, "BOT_TOKEN")
	override(&cfg.Database.URL, "DATABASE_URL")
	override(&cfg.Redis.URL, "REDIS_URL")
	override(&cfg.Payment.Gateway.ClientID, "AIRWALLEX_CLIENT_ID")
	override(&cfg.Payment.Gateway.APIKey, "AIRWALLEX_API_KEY")
	override(&cfg.Payment.Gateway.WebhookSecret, "AIRWALLEX_WEBHOOK_SECRET")
	override(&cfg.Admin.JWTSecret, "ADMIN_JWT_SECRET")
	override(&cfg.Admin.APIKey, "ADMIN_API_KEY")
}

func applyDefaults(cfg *Config) {
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 4
	}
	if cfg.Bot.Language == "" {
		cfg.Bot.Language = "en"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 10 * time.Second
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	gw := &cfg.Payment.Gateway
	if gw.BaseURL == "" {
		gw.BaseURL = "https://api.airwallex.com"
	}
	if gw.Timeout <= 0 {
		gw.Timeout = 30 * time.Second
	}
	if gw.RetryDelay <= 0 {
		gw.RetryDelay = time.Second
	}
	if gw.MaxAttempts <= 0 {
		gw.MaxAttempts = 3
	}

	p := &cfg.Payment
	if p.Currency == "" {
		p.Currency = "USD"
	}
	if p.StarsToUSD == 0 {
		p.StarsToUSD = 0.02
	}
	if p.SessionTTL <= 0 {
		p.SessionTTL = 24 * time.Hour
	}
	if p.LinkTTL <= 0 {
		p.LinkTTL = 24 * time.Hour
	}
	if p.SignatureTolerance <= 0 {
		p.SignatureTolerance = 300 * time.Second
	}
	if p.PreCheckoutMaxAge <= 0 {
		p.PreCheckoutMaxAge = 15 * time.Minute
	}
	if p.WebhookDedupCapacity <= 0 {
		p.WebhookDedupCapacity = 10000
	}
	if p.WebhookWorkers <= 0 {
		p.WebhookWorkers = 4
	}

	if len(cfg.Plans) == 0 {
		cfg.Plans = model.DefaultPlans()
	}

	s := &cfg.Scheduler
	if s.DailyAt == "" {
		s.DailyAt = "09:00"
	}
	if len(s.ReminderDays) == 0 {
		s.ReminderDays = []int{3, 1}
	}
	if s.AuditRetentionDays <= 0 {
		s.AuditRetentionDays = 30
	}
	if s.SweepInterval <= 0 {
		s.SweepInterval = 15 * time.Minute
	}
	if s.RunTimeout <= 0 {
		s.RunTimeout = 30 * time.Minute
	}

	if cfg.Admin.TokenTTL <= 0 {
		cfg.Admin.TokenTTL = 30 * time.Minute
	}
}

// ParseClock parses "HH:MM" into hour and minute.
func ParseClock(s string) (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
