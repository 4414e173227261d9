package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	OCR       OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	AI        AIConfig        `yaml:"ai" mapstructure:"ai"`
	Firecrawl FirecrawlConfig `yaml:"firecrawl" mapstructure:"firecrawl"`
	Reconcile ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Ranking   RankingConfig   `yaml:"ranking" mapstructure:"ranking"`
	Providers ProvidersConfig `yaml:"providers" mapstructure:"providers"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite | postgres
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int    `yaml:"max_conns" mapstructure:"max_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// OCRConfig configures document text extraction.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"` // local | mistral | azure
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MistralKey    string `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel  string `yaml:"mistral_model" mapstructure:"mistral_model"`
	AzureEndpoint string `yaml:"azure_endpoint" mapstructure:"azure_endpoint"`
	AzureKey      string `yaml:"azure_key" mapstructure:"azure_key"`
	PollMillis    int    `yaml:"poll_millis" mapstructure:"poll_millis"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AIConfig configures the AI extractor.
type AIConfig struct {
	Provider            string `yaml:"provider" mapstructure:"provider"` // none | anthropic | gemini | openai
	AnthropicKey        string `yaml:"anthropic_api_key" mapstructure:"anthropic_api_key"`
	AnthropicModel      string `yaml:"anthropic_model" mapstructure:"anthropic_model"`
	GeminiKey           string `yaml:"gemini_api_key" mapstructure:"gemini_api_key"`
	GeminiModel         string `yaml:"gemini_model" mapstructure:"gemini_model"`
	OpenAIKey           string `yaml:"openai_api_key" mapstructure:"openai_api_key"`
	OpenAIModel         string `yaml:"openai_model" mapstructure:"openai_model"`
	OpenAIBaseURL       string `yaml:"openai_base_url" mapstructure:"openai_base_url"`
	MaxTokens           int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs         int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts         int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs    int    `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	BreakerThreshold    int    `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs int    `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// FirecrawlConfig configures offer page scraping.
type FirecrawlConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ReconcileConfig configures the merge policy.
type ReconcileConfig struct {
	PolicyFile        string  `yaml:"policy_file" mapstructure:"policy_file"`
	TemplateThreshold float64 `yaml:"template_threshold" mapstructure:"template_threshold"`
	AIThreshold       float64 `yaml:"ai_threshold" mapstructure:"ai_threshold"`
	ElectricityShare  float64 `yaml:"electricity_share" mapstructure:"electricity_share"`
	SplitCombined     bool    `yaml:"split_combined" mapstructure:"split_combined"`
}

// RankingConfig configures offer ranking.
type RankingConfig struct {
	DefaultKWh   float64 `yaml:"default_kwh" mapstructure:"default_kwh"`
	DefaultSmc   float64 `yaml:"default_smc" mapstructure:"default_smc"`
	CacheTTLMins int     `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
}

// ProvidersConfig configures provider resolution.
type ProvidersConfig struct {
	RulesFile       string `yaml:"rules_file" mapstructure:"rules_file"`
	CheckLinks      bool   `yaml:"check_links" mapstructure:"check_links"`
	LinkTimeoutSecs int    `yaml:"link_timeout_secs" mapstructure:"link_timeout_secs"`
}

// BatchConfig configures multi-document runs.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// Load reads configuration from ./config.yaml and BILL_* environment
// variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "bill-advisor.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_body_bytes", 5<<20)
	v.SetDefault("ocr.provider", "local")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.mistral_model", "mistral-ocr-latest")
	v.SetDefault("ocr.poll_millis", 1000)
	v.SetDefault("ocr.timeout_secs", 120)
	v.SetDefault("ai.provider", "none")
	v.SetDefault("ai.anthropic_model", "claude-haiku-4-5")
	v.SetDefault("ai.gemini_model", "gemini-2.5-flash")
	v.SetDefault("ai.openai_model", "gpt-4o-mini")
	v.SetDefault("ai.openai_base_url", "https://api.openai.com/v1")
	v.SetDefault("ai.max_tokens", 1024)
	v.SetDefault("ai.timeout_secs", 60)
	v.SetDefault("ai.max_attempts", 3)
	v.SetDefault("ai.initial_backoff_ms", 500)
	v.SetDefault("ai.breaker_threshold", 5)
	v.SetDefault("ai.breaker_cooldown_secs", 30)
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v2")
	v.SetDefault("firecrawl.rate_per_sec", 2.0)
	v.SetDefault("firecrawl.timeout_secs", 60)
	v.SetDefault("reconcile.template_threshold", 0.9)
	v.SetDefault("reconcile.ai_threshold", 0.9)
	v.SetDefault("reconcile.electricity_share", 0.6)
	v.SetDefault("ranking.cache_ttl_mins", 60)
	v.SetDefault("providers.link_timeout_secs", 5)
	v.SetDefault("batch.concurrency", 4)

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

// Validate checks the settings a command mode needs. Modes: "extract",
// "rank", "analyze", "serve", "scrape", "store".
func (c *Config) Validate(mode string) error {
	switch mode {
	case "extract", "rank", "analyze", "serve", "scrape", "store":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if mode == "serve" && c.Server.Port <= 0 {
		add("server.port must be > 0")
	}
	if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 64 {
		add("batch.concurrency must be in [1,64]")
	}
	if c.Ranking.DefaultKWh < 0 || c.Ranking.DefaultSmc < 0 {
		add("ranking defaults must not be negative")
	}

	if c.Reconcile.TemplateThreshold <= 0 || c.Reconcile.TemplateThreshold > 1 {
		add("reconcile.template_threshold must be in (0,1]")
	}
	if c.Reconcile.AIThreshold <= 0 || c.Reconcile.AIThreshold > 1 {
		add("reconcile.ai_threshold must be in (0,1]")
	}
	if c.Reconcile.ElectricityShare <= 0 || c.Reconcile.ElectricityShare >= 1 {
		add("reconcile.electricity_share must be in (0,1)")
	}

	needStore := mode == "analyze" || mode == "serve" || mode == "store"
	if needStore {
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			add("store.driver %q must be sqlite or postgres", c.Store.Driver)
		}
		if c.Store.DatabaseURL == "" {
			add("store.database_url is required")
		}
	}

	if mode == "extract" || mode == "analyze" || mode == "serve" {
		switch c.AI.Provider {
		case "", "none":
		case "anthropic":
			if c.AI.AnthropicKey == "" {
				add("ai.anthropic_api_key is required for provider anthropic")
			}
		case "gemini":
			if c.AI.GeminiKey == "" {
				add("ai.gemini_api_key is required for provider gemini")
			}
		case "openai":
			if c.AI.OpenAIKey == "" {
				add("ai.openai_api_key is required for provider openai")
			}
		default:
			add("ai.provider %q is unknown", c.AI.Provider)
		}

		switch c.OCR.Provider {
		case "", "local":
		case "mistral":
			if c.OCR.MistralKey == "" {
				add("ocr.mistral_api_key is required for provider mistral")
			}
		case "azure":
			if c.OCR.AzureEndpoint == "" || c.OCR.AzureKey == "" {
				add("ocr.azure_endpoint and ocr.azure_key are required for provider azure")
			}
		default:
			add("ocr.provider %q is unknown", c.OCR.Provider)
		}
	}

	if mode == "scrape" && c.Firecrawl.Key == "" {
		add("firecrawl.key is required")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
