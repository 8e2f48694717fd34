package config

import (
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig         `yaml:"store" mapstructure:"store"`
	Google    GoogleConfig        `yaml:"google" mapstructure:"google"`
	Anthropic AnthropicConfig     `yaml:"anthropic" mapstructure:"anthropic"`
	Pricing   PricingConfig       `yaml:"pricing" mapstructure:"pricing"`
	Quota     QuotaConfig         `yaml:"quota" mapstructure:"quota"`
	Collect   CollectConfig       `yaml:"collect" mapstructure:"collect"`
	Website   WebsiteConfig       `yaml:"website" mapstructure:"website"`
	Queue     QueueConfig         `yaml:"queue" mapstructure:"queue"`
	Batch     BatchConfig         `yaml:"batch" mapstructure:"batch"`
	Server    ServerConfig        `yaml:"server" mapstructure:"server"`
	Log       LogConfig           `yaml:"log" mapstructure:"log"`
	Niches    map[string][]string `yaml:"niches" mapstructure:"niches"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// GoogleConfig holds Google Places API settings.
type GoogleConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	Google    GooglePricing           `yaml:"google" mapstructure:"google"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// GooglePricing holds Places API quota units and USD rates per call.
type GooglePricing struct {
	TextSearchUnits int64   `yaml:"text_search_units" mapstructure:"text_search_units"`
	DetailsUnits    int64   `yaml:"details_units" mapstructure:"details_units"`
	TextSearchUSD   float64 `yaml:"text_search_usd" mapstructure:"text_search_usd"`
	DetailsUSD      float64 `yaml:"details_usd" mapstructure:"details_usd"`
}

// QuotaConfig configures the daily provider budget.
type QuotaConfig struct {
	DailyLimit int64  `yaml:"daily_limit" mapstructure:"daily_limit"`
	TimeZone   string `yaml:"time_zone" mapstructure:"time_zone"`
	Kind       string `yaml:"kind" mapstructure:"kind"`
}

// CollectConfig configures the place collection engine.
type CollectConfig struct {
	QueryTemplate     string        `yaml:"query_template" mapstructure:"query_template"`
	LanguageCode      string        `yaml:"language_code" mapstructure:"language_code"`
	RegionCode        string        `yaml:"region_code" mapstructure:"region_code"`
	PageTokenDelay    time.Duration `yaml:"page_token_delay" mapstructure:"page_token_delay"`
	TermDelay         time.Duration `yaml:"term_delay" mapstructure:"term_delay"`
	DedupMeters       float64       `yaml:"dedup_meters" mapstructure:"dedup_meters"`
	EnrichConcurrency int           `yaml:"enrich_concurrency" mapstructure:"enrich_concurrency"`
	RunTimeout        time.Duration `yaml:"run_timeout" mapstructure:"run_timeout"`
	FlushMargin       time.Duration `yaml:"flush_margin" mapstructure:"flush_margin"`
	NicheTermsPath    string        `yaml:"niche_terms_path" mapstructure:"niche_terms_path"`
}

// WebsiteConfig configures the website enrichment engine.
type WebsiteConfig struct {
	UserAgent       string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxPages        int           `yaml:"max_pages" mapstructure:"max_pages"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout" mapstructure:"fetch_timeout"`
	MinDelay        time.Duration `yaml:"min_delay" mapstructure:"min_delay"`
	MaxDelay        time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
	MaxCharsPerPage int           `yaml:"max_chars_per_page" mapstructure:"max_chars_per_page"`
	MaxTotalChars   int           `yaml:"max_total_chars" mapstructure:"max_total_chars"`
	ExtractTimeout  time.Duration `yaml:"extract_timeout" mapstructure:"extract_timeout"`
	RunTimeout      time.Duration `yaml:"run_timeout" mapstructure:"run_timeout"`
	SchemaPath      string        `yaml:"schema_path" mapstructure:"schema_path"`
	ExcludePaths    []string      `yaml:"exclude_paths" mapstructure:"exclude_paths"`
}

// QueueConfig configures the task queue.
type QueueConfig struct {
	VisibilityTimeout time.Duration `yaml:"visibility_timeout" mapstructure:"visibility_timeout"`
	MaxAttempts       int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	PollInterval      time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Size           int `yaml:"size" mapstructure:"size"`
	MaxConcurrency int `yaml:"max_concurrency" mapstructure:"max_concurrency"`
}

// ServerConfig configures the trigger server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PLACES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("google.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("google.requests_per_second", 5.0)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("pricing.google.text_search_units", 32)
	v.SetDefault("pricing.google.details_units", 17)
	v.SetDefault("pricing.google.text_search_usd", 0.032)
	v.SetDefault("pricing.google.details_usd", 0.017)
	v.SetDefault("quota.daily_limit", 20000)
	v.SetDefault("quota.time_zone", "America/Sao_Paulo")
	v.SetDefault("quota.kind", "google_places")
	v.SetDefault("collect.query_template", "{term} em {city}, {state}, Brasil")
	v.SetDefault("collect.language_code", "pt-BR")
	v.SetDefault("collect.region_code", "BR")
	v.SetDefault("collect.page_token_delay", 2*time.Second)
	v.SetDefault("collect.term_delay", time.Second)
	v.SetDefault("collect.dedup_meters", 50.0)
	v.SetDefault("collect.enrich_concurrency", 4)
	v.SetDefault("collect.run_timeout", 14*time.Minute)
	v.SetDefault("collect.flush_margin", 30*time.Second)
	v.SetDefault("website.user_agent", "AurisBot/1.0 (+https://auris.com.br/bot)")
	v.SetDefault("website.max_pages", 7)
	v.SetDefault("website.fetch_timeout", 10*time.Second)
	v.SetDefault("website.min_delay", 2*time.Second)
	v.SetDefault("website.max_delay", 3*time.Second)
	v.SetDefault("website.max_chars_per_page", 20000)
	v.SetDefault("website.max_total_chars", 300000)
	v.SetDefault("website.extract_timeout", 2*time.Minute)
	v.SetDefault("website.run_timeout", 5*time.Minute)
	v.SetDefault("website.schema_path", "schema.json")
	v.SetDefault("website.exclude_paths", []string{"/blog/*", "/news/*", "/noticia/*", "/artigo/*", "/category/*", "/tag/*", "/author/*"})
	v.SetDefault("queue.visibility_timeout", 15*time.Minute)
	v.SetDefault("queue.max_attempts", 5)
	v.SetDefault("queue.poll_interval", 5*time.Second)
	v.SetDefault("batch.size", 10)
	v.SetDefault("batch.max_concurrency", 2)

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

	if cfg.Collect.NicheTermsPath != "" {
		niches, err := LoadNicheTerms(cfg.Collect.NicheTermsPath)
		if err != nil {
			return nil, err
		}
		if cfg.Niches == nil {
			cfg.Niches = make(map[string][]string, len(niches))
		}
		for k, terms := range niches {
			cfg.Niches[k] = terms
		}
	}

	return &cfg, nil
}

// LoadNicheTerms reads a YAML file mapping niche keys to ordered search terms.
func LoadNicheTerms(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read niche terms %s", path)
	}
	var niches map[string][]string
	if err := yaml.Unmarshal(data, &niches); err != nil {
		return nil, eris.Wrapf(err, "config: parse niche terms %s", path)
	}
	return niches, nil
}

// SearchTerms returns the ordered terms for a niche. Niche keys are matched
// case-insensitively. A missing niche returns nil.
func (c *Config) SearchTerms(niche string) []string {
	key := strings.ToLower(strings.TrimSpace(niche))
	for k, terms := range c.Niches {
		if strings.ToLower(k) == key {
			return terms
		}
	}
	return nil
}

// Validate checks that the configuration carries what a command mode needs.
// Mode is one of "collect", "enrich", "worker", "serve", "migrate", or "quota".
func (c *Config) Validate(mode string) error {
	var errs []string
	needDB := func() {
		if c.Store.Driver != "sqlite" && c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	}

	switch mode {
	case "collect":
		needDB()
		if c.Google.Key == "" {
			errs = append(errs, "google.key is required")
		}
	case "enrich":
		needDB()
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
		if c.Website.SchemaPath == "" {
			errs = append(errs, "website.schema_path is required")
		}
	case "worker":
		needDB()
		if c.Google.Key == "" {
			errs = append(errs, "google.key is required")
		}
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
		if c.Batch.Size < 1 || c.Batch.Size > 100 {
			errs = append(errs, "batch.size must be between 1 and 100")
		}
	case "serve":
		needDB()
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "migrate", "quota":
		needDB()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Website.MinDelay > c.Website.MaxDelay {
		errs = append(errs, "website.min_delay must not exceed website.max_delay")
	}
	if c.Collect.EnrichConcurrency < 0 || c.Collect.EnrichConcurrency > 32 {
		errs = append(errs, "collect.enrich_concurrency must be between 0 and 32")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
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
