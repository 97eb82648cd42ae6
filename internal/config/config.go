package config

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	RegistryURL string `envconfig:"REGISTRY_URL" required:"true"` // user-preference registry endpoint
	SourcesURL  string `envconfig:"SOURCES_URL" required:"true"`  // upstream data-source endpoint

	DeliveryMode    string        `envconfig:"DELIVERY_MODE" default:"webhook"` // webhook|telegram
	DeliveryURL     string        `envconfig:"DELIVERY_URL"`                    // required in webhook mode
	BotToken        string        `envconfig:"BOT_TOKEN"`                       // required in telegram mode
	DeliveryTimeout time.Duration `envconfig:"DELIVERY_TIMEOUT" default:"15s"`

	OpenAIKey     string `envconfig:"OPENAI_API_KEY" required:"true"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"` // empty = api.openai.com
	OpenAIModel   string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	MaxBriefTokens int   `envconfig:"MAX_BRIEF_TOKENS" default:"1024"`

	DBPath   string `envconfig:"DB_PATH" default:"./data/briefs.db"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"` // operational surface
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`  // debug|info|warn|error

	SyncInterval   time.Duration `envconfig:"SYNC_INTERVAL" default:"1h"`
	CooldownWindow time.Duration `envconfig:"COOLDOWN_WINDOW" default:"50m"`
	FiringTimeout  time.Duration `envconfig:"FIRING_TIMEOUT" default:"5m"` // budget for one check→generate→deliver run

	CacheTTL       time.Duration `envconfig:"CACHE_TTL" default:"30s"`
	SourceTimeout  time.Duration `envconfig:"SOURCE_TIMEOUT" default:"30s"`
	RetryAttempts  int           `envconfig:"RETRY_ATTEMPTS" default:"3"`
	RetryBaseDelay time.Duration `envconfig:"RETRY_BASE_DELAY" default:"2s"`
	InterCallDelay time.Duration `envconfig:"INTER_CALL_DELAY" default:"1s"`

	QueueEnabled      bool          `envconfig:"QUEUE_ENABLED" default:"true"`
	QueueBatch        int           `envconfig:"QUEUE_BATCH" default:"10"`
	QueuePollInterval time.Duration `envconfig:"QUEUE_POLL_INTERVAL" default:"30s"`
}

// Load reads environment variables into Config and validates
// cross-field requirements.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DeliveryMode {
	case "webhook":
		if c.DeliveryURL == "" {
			return errors.New("DELIVERY_URL is required in webhook mode")
		}
	case "telegram":
		if c.BotToken == "" {
			return errors.New("BOT_TOKEN is required in telegram mode")
		}
	default:
		return errors.New("DELIVERY_MODE must be webhook or telegram")
	}
	return nil
}
