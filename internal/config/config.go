package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string   `mapstructure:"PORT"`
	Env            string   `mapstructure:"ENV"`
	DatabaseURL    string   `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL       string   `mapstructure:"REDIS_URL"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`

	AuthIssuer   string `mapstructure:"AUTH_ISSUER"`
	AuthAudience string `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL  string `mapstructure:"AUTH_JWKS_URL"`

	// Channel provider settings.
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`

	SMSAPIURL      string `mapstructure:"SMS_API_URL"`
	SMSAPIKey      string `mapstructure:"SMS_API_KEY"`
	SMSSender      string `mapstructure:"SMS_SENDER"`
	WhatsAppAPIURL string `mapstructure:"WHATSAPP_API_URL"`
	WhatsAppAPIKey string `mapstructure:"WHATSAPP_API_KEY"`

	ChannelSendTimeout time.Duration `mapstructure:"CHANNEL_SEND_TIMEOUT"`

	// Fan-out behavior.
	MaxFanoutRecipients int    `mapstructure:"MAX_FANOUT_RECIPIENTS"`
	OfflineQueueCap     int    `mapstructure:"OFFLINE_QUEUE_CAP"`
	OfflineQueuePolicy  string `mapstructure:"OFFLINE_QUEUE_POLICY"`
	DistributeWorkers   int    `mapstructure:"DISTRIBUTE_WORKERS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("CHANNEL_SEND_TIMEOUT", "10s")
	v.SetDefault("MAX_FANOUT_RECIPIENTS", 200)
	v.SetDefault("OFFLINE_QUEUE_CAP", 100)
	v.SetDefault("OFFLINE_QUEUE_POLICY", "drop-oldest")
	v.SetDefault("DISTRIBUTE_WORKERS", 8)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"REDIS_URL", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL",
		"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_FROM",
		"SMS_API_URL", "SMS_API_KEY", "SMS_SENDER",
		"WHATSAPP_API_URL", "WHATSAPP_API_KEY",
		"CHANNEL_SEND_TIMEOUT", "MAX_FANOUT_RECIPIENTS",
		"OFFLINE_QUEUE_CAP", "OFFLINE_QUEUE_POLICY", "DISTRIBUTE_WORKERS",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run with.
func (c *Config) Validate() error {
	switch c.OfflineQueuePolicy {
	case "drop-oldest", "reject-new":
	default:
		return fmt.Errorf("OFFLINE_QUEUE_POLICY must be \"drop-oldest\" or \"reject-new\", got %q", c.OfflineQueuePolicy)
	}
	if c.OfflineQueueCap <= 0 {
		return fmt.Errorf("OFFLINE_QUEUE_CAP must be positive, got %d", c.OfflineQueueCap)
	}
	if c.MaxFanoutRecipients < 0 {
		return fmt.Errorf("MAX_FANOUT_RECIPIENTS must not be negative, got %d", c.MaxFanoutRecipients)
	}
	if c.DistributeWorkers <= 0 {
		return fmt.Errorf("DISTRIBUTE_WORKERS must be positive, got %d", c.DistributeWorkers)
	}
	if !c.IsDev() && c.AuthIssuer == "" {
		return fmt.Errorf("AUTH_ISSUER must be set when ENV is not development (current ENV=%q)", c.Env)
	}
	return nil
}
