package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	DBUrl    string `mapstructure:"DB_URL"`
	BotToken string `mapstructure:"BOT_TOKEN"`

	// Redis (dialogue session store)
	RedisAddr       string `mapstructure:"REDIS_ADDR"`
	SessionTTLHours int    `mapstructure:"SESSION_TTL_HOURS"`

	// RabbitMQ (notification delivery)
	AmqpURL string `mapstructure:"AMQP_URL"`

	// Posting policy
	PostMaxAttempts   int `mapstructure:"POST_MAX_ATTEMPTS"`
	PostBackoffBaseMs int `mapstructure:"POST_BACKOFF_BASE_MS"`
	PostBackoffCapMs  int `mapstructure:"POST_BACKOFF_CAP_MS"`
	PostTimeoutSec    int `mapstructure:"POST_TIMEOUT_SEC"`

	// Confirmation window in hours; 0 means use the campaign's own duration.
	ConfirmWindowHours int `mapstructure:"CONFIRM_WINDOW_HOURS"`

	// Verification policy
	MinSubscribers     int `mapstructure:"MIN_SUBSCRIBERS"`
	VerifyRecheckMin   int `mapstructure:"VERIFY_RECHECK_MINUTES"`
	VerifyTimeoutSec   int `mapstructure:"VERIFY_TIMEOUT_SEC"`
	DefaultTrustScore  int `mapstructure:"DEFAULT_TRUST_SCORE"`
	TrustPenalty       int `mapstructure:"TRUST_PENALTY"`

	// Campaign policy
	CampaignTTLHours int   `mapstructure:"CAMPAIGN_TTL_HOURS"`
	ExpirySweepMin   int   `mapstructure:"EXPIRY_SWEEP_MINUTES"`
	MaxBudget        int64 `mapstructure:"MAX_BUDGET"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()
	viper.AutomaticEnv()

	var c Config
	if err := viper.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

func (c *Config) validate() error {
	if c.DBUrl == "" {
		return fmt.Errorf("DB_URL is required")
	}
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.SessionTTLHours <= 0 {
		c.SessionTTLHours = 24
	}
	if c.PostMaxAttempts <= 0 {
		c.PostMaxAttempts = 3
	}
	if c.PostBackoffBaseMs <= 0 {
		c.PostBackoffBaseMs = 500
	}
	if c.PostBackoffCapMs <= 0 {
		c.PostBackoffCapMs = 8000
	}
	if c.PostTimeoutSec <= 0 {
		c.PostTimeoutSec = 30
	}
	if c.MinSubscribers <= 0 {
		c.MinSubscribers = 100
	}
	if c.VerifyRecheckMin <= 0 {
		c.VerifyRecheckMin = 5
	}
	if c.VerifyTimeoutSec <= 0 {
		c.VerifyTimeoutSec = 15
	}
	if c.DefaultTrustScore <= 0 {
		c.DefaultTrustScore = 100
	}
	if c.TrustPenalty <= 0 {
		c.TrustPenalty = 10
	}
	if c.CampaignTTLHours <= 0 {
		c.CampaignTTLHours = 168
	}
	if c.ExpirySweepMin <= 0 {
		c.ExpirySweepMin = 60
	}
	if c.MaxBudget <= 0 {
		c.MaxBudget = 1_000_000
	}
	return nil
}
