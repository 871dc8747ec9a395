// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"local"`
	PostgresDSN string `env:"POSTGRES_DSN,required"`
	BotToken    string `env:"BOT_TOKEN,required"`

	// TriggerSecret authenticates the external sweep trigger and signs
	// deep-link tokens. A single shared value, as in the original deployment.
	TriggerSecret string `env:"TRIGGER_SECRET,required"`
	AppBaseURL    string `env:"APP_BASE_URL"`

	BSEAPIURL  string `env:"BSE_API_URL" envDefault:"https://api.bseindia.com/BseIndiaAPI/api/AnnGetData/w"`
	PDFBaseURL string `env:"PDF_BASE_URL" envDefault:"https://www.bseindia.com/xml-data/corpfiling/AttachLive/"`

	SweepInterval   time.Duration `env:"SWEEP_INTERVAL" envDefault:"10m"`
	FetchWindowDays int           `env:"FETCH_WINDOW_DAYS" envDefault:"7"`
	CutoffWindow    time.Duration `env:"CUTOFF_WINDOW" envDefault:"24h"`
	SourceTimezone  string        `env:"SOURCE_TIMEZONE" envDefault:"Asia/Kolkata"`

	FetchTimeout    time.Duration `env:"FETCH_TIMEOUT" envDefault:"30s"`
	DownloadTimeout time.Duration `env:"DOWNLOAD_TIMEOUT" envDefault:"30s"`
	SendTimeout     time.Duration `env:"SEND_TIMEOUT" envDefault:"45s"`

	LLMAPIKey       string        `env:"LLM_API_KEY"`
	LLMModel        string        `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	LLMTimeout      time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`
	LLMRateLimitRPS int           `env:"LLM_RATE_LIMIT_RPS" envDefault:"1"`

	QuotesEnabled bool          `env:"QUOTES_ENABLED" envDefault:"true"`
	QuoteTimeout  time.Duration `env:"QUOTE_TIMEOUT" envDefault:"10s"`

	CaptionLimit       int           `env:"CAPTION_LIMIT" envDefault:"4096"`
	SendRateLimitRPS   float64       `env:"SEND_RATE_LIMIT_RPS" envDefault:"1"`
	DeepLinkTTL        time.Duration `env:"DEEP_LINK_TTL" envDefault:"72h"`
	HealthPort         int           `env:"HEALTH_PORT" envDefault:"8080"`
	MemorySoftLimitMB  float64       `env:"MEMORY_SOFT_LIMIT_MB" envDefault:"420"`
	MemoryPollInterval time.Duration `env:"MEMORY_POLL_INTERVAL" envDefault:"5s"`
	DisableAIOnLowMem  bool          `env:"DISABLE_AI_ON_LOW_MEMORY" envDefault:"true"`

	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"10"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"2"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}
