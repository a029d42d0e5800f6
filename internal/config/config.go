package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" mapstructure:"orchestrator"`
	Retry        RetryConfig        `yaml:"retry" mapstructure:"retry"`
	Circuit      CircuitConfig      `yaml:"circuit" mapstructure:"circuit"`
	Scorer       ScorerConfig       `yaml:"scorer" mapstructure:"scorer"`
	TasteDive    TasteDiveConfig    `yaml:"tastedive" mapstructure:"tastedive"`
	SearchIndex  SearchIndexConfig  `yaml:"searchindex" mapstructure:"searchindex"`
	Places       PlacesConfig       `yaml:"places" mapstructure:"places"`
	Anthropic    AnthropicConfig    `yaml:"anthropic" mapstructure:"anthropic"`
}

// StoreConfig configures the profile database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// OrchestratorConfig tunes the per-request pipeline.
type OrchestratorConfig struct {
	RequestBudgetSecs int `yaml:"request_budget_secs" mapstructure:"request_budget_secs"`
	PolishTopN        int `yaml:"polish_top_n" mapstructure:"polish_top_n"`
	MaxCandidates     int `yaml:"max_candidates" mapstructure:"max_candidates"`
}

// RequestBudget returns the wall-clock budget as a duration.
func (c OrchestratorConfig) RequestBudget() time.Duration {
	return time.Duration(c.RequestBudgetSecs) * time.Second
}

// RetryConfig tunes provider call retries.
type RetryConfig struct {
	MaxAttempts       int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs  int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffSecs    int `yaml:"max_backoff_secs" mapstructure:"max_backoff_secs"`
	JitterFractionPct int `yaml:"jitter_fraction_pct" mapstructure:"jitter_fraction_pct"`
}

// CircuitConfig tunes the per-provider circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CoolDownSecs     int `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
	CoolDownCapSecs  int `yaml:"cooldown_cap_secs" mapstructure:"cooldown_cap_secs"`
}

// ScorerConfig tunes candidate ranking.
type ScorerConfig struct {
	RelevanceWeight       float64 `yaml:"relevance_weight" mapstructure:"relevance_weight"`
	CulturalWeight        float64 `yaml:"cultural_weight" mapstructure:"cultural_weight"`
	PersonalizationWeight float64 `yaml:"personalization_weight" mapstructure:"personalization_weight"`
	AuthenticBonus        float64 `yaml:"authentic_bonus" mapstructure:"authentic_bonus"`
	HalfLifeDays          float64 `yaml:"half_life_days" mapstructure:"half_life_days"`
}

// TasteDiveConfig holds cultural similarity API settings.
type TasteDiveConfig struct {
	Key        string  `yaml:"key" mapstructure:"key"`
	BaseURL    string  `yaml:"base_url" mapstructure:"base_url"`
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst      int     `yaml:"burst" mapstructure:"burst"`
	QueueDepth int     `yaml:"queue_depth" mapstructure:"queue_depth"`
}

// SearchIndexConfig holds search index (Algolia) settings.
type SearchIndexConfig struct {
	AppID      string  `yaml:"app_id" mapstructure:"app_id"`
	APIKey     string  `yaml:"api_key" mapstructure:"api_key"`
	Index      string  `yaml:"index" mapstructure:"index"`
	TimeoutMs  int     `yaml:"timeout_ms" mapstructure:"timeout_ms"`
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst      int     `yaml:"burst" mapstructure:"burst"`
	QueueDepth int     `yaml:"queue_depth" mapstructure:"queue_depth"`
}

// PlacesConfig holds map places API settings.
type PlacesConfig struct {
	Key          string  `yaml:"key" mapstructure:"key"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	RadiusMeters int     `yaml:"radius_meters" mapstructure:"radius_meters"`
	RatePerSec   float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst        int     `yaml:"burst" mapstructure:"burst"`
	QueueDepth   int     `yaml:"queue_depth" mapstructure:"queue_depth"`
}

// AnthropicConfig holds language generation API settings.
type AnthropicConfig struct {
	Key        string  `yaml:"key" mapstructure:"key"`
	Model      string  `yaml:"model" mapstructure:"model"`
	MaxTokens  int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst      int     `yaml:"burst" mapstructure:"burst"`
	QueueDepth int     `yaml:"queue_depth" mapstructure:"queue_depth"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LOCALGUIDE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "localguide.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("orchestrator.request_budget_secs", 5)
	v.SetDefault("orchestrator.polish_top_n", 5)
	v.SetDefault("orchestrator.max_candidates", 10)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 1000)
	v.SetDefault("retry.max_backoff_secs", 30)
	v.SetDefault("retry.jitter_fraction_pct", 25)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.cooldown_secs", 30)
	v.SetDefault("circuit.cooldown_cap_secs", 240)
	v.SetDefault("scorer.relevance_weight", 0.4)
	v.SetDefault("scorer.cultural_weight", 0.35)
	v.SetDefault("scorer.personalization_weight", 0.25)
	v.SetDefault("scorer.authentic_bonus", 0.15)
	v.SetDefault("scorer.half_life_days", 30)
	v.SetDefault("tastedive.base_url", "https://tastedive.com/api")
	v.SetDefault("tastedive.rate_per_sec", 5)
	v.SetDefault("tastedive.burst", 5)
	v.SetDefault("tastedive.queue_depth", 16)
	v.SetDefault("searchindex.index", "seoul_places")
	v.SetDefault("searchindex.timeout_ms", 150)
	v.SetDefault("searchindex.rate_per_sec", 10)
	v.SetDefault("searchindex.burst", 10)
	v.SetDefault("searchindex.queue_depth", 32)
	v.SetDefault("places.base_url", "https://maps.googleapis.com/maps/api")
	v.SetDefault("places.radius_meters", 1500)
	v.SetDefault("places.rate_per_sec", 5)
	v.SetDefault("places.burst", 5)
	v.SetDefault("places.queue_depth", 16)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.rate_per_sec", 2)
	v.SetDefault("anthropic.burst", 2)
	v.SetDefault("anthropic.queue_depth", 8)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields the given mode depends on. Modes: "serve"
// needs a valid port and store wiring; "ask" needs only store wiring.
func (c *Config) Validate(mode string) error {
	var problems []string

	checkStore := func() {
		switch c.Store.Driver {
		case "sqlite":
			if c.Store.SQLitePath == "" {
				problems = append(problems, "store.sqlite_path is required for the sqlite driver")
			}
		case "postgres":
			if c.Store.DatabaseURL == "" {
				problems = append(problems, "store.database_url is required for the postgres driver")
			}
		default:
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		checkStore()
	case "ask":
		checkStore()
	case "status":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Orchestrator.RequestBudgetSecs <= 0 {
		problems = append(problems, "orchestrator.request_budget_secs must be > 0")
	}
	if c.Circuit.FailureThreshold <= 0 {
		problems = append(problems, "circuit.failure_threshold must be > 0")
	}
	if w := c.Scorer.RelevanceWeight + c.Scorer.CulturalWeight + c.Scorer.PersonalizationWeight; w <= 0 {
		problems = append(problems, "scorer weights must sum to > 0")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
