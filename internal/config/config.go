package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Data     DataConfig     `yaml:"data" mapstructure:"data"`
	Registry RegistryConfig `yaml:"registry" mapstructure:"registry"`
	Enrich   EnrichConfig   `yaml:"enrich" mapstructure:"enrich"`
	Matcher  MatcherConfig  `yaml:"matcher" mapstructure:"matcher"`
	Search   SearchConfig   `yaml:"search" mapstructure:"search"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// DataConfig points at input files preloaded into every web session.
type DataConfig struct {
	CRMPath      string `yaml:"crm_path" mapstructure:"crm_path"`
	RegistryPath string `yaml:"registry_path" mapstructure:"registry_path"`
}

// RegistryConfig configures the Brønnøysund API client.
type RegistryConfig struct {
	UnitsURL    string  `yaml:"units_url" mapstructure:"units_url"`
	AccountsURL string  `yaml:"accounts_url" mapstructure:"accounts_url"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retries     int     `yaml:"retries" mapstructure:"retries"`
	BackoffMs   int     `yaml:"backoff_ms" mapstructure:"backoff_ms"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	Burst       int     `yaml:"burst" mapstructure:"burst"`
}

// EnrichConfig configures the enrichment step.
type EnrichConfig struct {
	Enabled       bool `yaml:"enabled" mapstructure:"enabled"`
	Revenue       bool `yaml:"revenue" mapstructure:"revenue"`
	Workers       int  `yaml:"workers" mapstructure:"workers"` // 0 = four per CPU, at most 32
	CacheTTLHours int  `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// MatcherConfig configures name matching.
type MatcherConfig struct {
	Exclusive     bool     `yaml:"exclusive" mapstructure:"exclusive"`
	SortByRevenue bool     `yaml:"sort_by_revenue" mapstructure:"sort_by_revenue"`
	LegalSuffixes []string `yaml:"legal_suffixes" mapstructure:"legal_suffixes"` // empty = built-in list
	NoiseWords    []string `yaml:"noise_words" mapstructure:"noise_words"`       // empty = built-in list
}

// SearchConfig configures the registry search command.
type SearchConfig struct {
	MaxHits  int      `yaml:"max_hits" mapstructure:"max_hits"`
	PageSize int      `yaml:"page_size" mapstructure:"page_size"`
	OrgForms []string `yaml:"org_forms" mapstructure:"org_forms"`
}

// StoreConfig configures the optional persistent enrichment cache.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "", "sqlite" or "postgres"
	DSN         string `yaml:"dsn" mapstructure:"dsn"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the web UI.
type ServerConfig struct {
	Port              int      `yaml:"port" mapstructure:"port"`
	Password          string   `yaml:"password" mapstructure:"password"`
	MaxSessions       int      `yaml:"max_sessions" mapstructure:"max_sessions"`
	SessionTTLMinutes int      `yaml:"session_ttl_minutes" mapstructure:"session_ttl_minutes"`
	MaxUploadMB       int      `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
	AllowedOrigins    []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, file and environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("server.password", "MATCHER_SERVER_PASSWORD", "APP_PASSWORD"); err != nil {
		return nil, eris.Wrap(err, "config: bind env")
	}

	// Defaults
	v.SetDefault("registry.units_url", "https://data.brreg.no/enhetsregisteret/api/enheter")
	v.SetDefault("registry.accounts_url", "https://data.brreg.no/regnskapsregisteret/regnskap")
	v.SetDefault("registry.user_agent", "brreg-matcher/1.0")
	v.SetDefault("registry.timeout_secs", 8)
	v.SetDefault("registry.retries", 1)
	v.SetDefault("registry.backoff_ms", 400)
	v.SetDefault("registry.rate_limit", 20.0)
	v.SetDefault("registry.burst", 20)
	v.SetDefault("enrich.enabled", true)
	v.SetDefault("enrich.revenue", true)
	v.SetDefault("enrich.workers", 0)
	v.SetDefault("enrich.cache_ttl_hours", 24)
	v.SetDefault("matcher.exclusive", false)
	v.SetDefault("matcher.sort_by_revenue", true)
	v.SetDefault("search.max_hits", 2000)
	v.SetDefault("search.page_size", 100)
	v.SetDefault("search.org_forms", []string{"AS", "ASA", "SÆR", "FKF", "IKS", "SA"})
	v.SetDefault("store.driver", "")
	v.SetDefault("store.dsn", "brreg-matcher.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_sessions", 64)
	v.SetDefault("server.session_ttl_minutes", 720)
	v.SetDefault("server.max_upload_mb", 64)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the settings a command mode depends on and reports all
// problems at once. Modes: "serve", "match", "lookup", "search", "cache".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.Server.MaxSessions < 1 {
			errs = append(errs, "server.max_sessions must be >= 1")
		}
		if c.Server.MaxUploadMB < 1 {
			errs = append(errs, "server.max_upload_mb must be >= 1")
		}
	case "match", "lookup":
	case "search":
		if c.Search.MaxHits < 1 {
			errs = append(errs, "search.max_hits must be >= 1")
		}
		if c.Search.PageSize < 1 {
			errs = append(errs, "search.page_size must be >= 1")
		}
	case "cache":
		if c.Store.Driver == "" {
			errs = append(errs, "store.driver is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode != "cache" || c.Store.Driver != "" {
		errs = append(errs, c.validateStore()...)
	}
	errs = append(errs, c.validateRegistry()...)

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "", "none":
		return nil
	case "sqlite":
		if c.Store.DSN == "" {
			return []string{"store.dsn is required for sqlite"}
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required for postgres"}
		}
	default:
		return []string{fmt.Sprintf("store.driver %q is not one of sqlite, postgres", c.Store.Driver)}
	}
	return nil
}

func (c *Config) validateRegistry() []string {
	var errs []string
	if c.Registry.TimeoutSecs <= 0 {
		errs = append(errs, "registry.timeout_secs must be > 0")
	}
	if c.Registry.Retries < 0 || c.Registry.Retries > 10 {
		errs = append(errs, "registry.retries must be between 0 and 10")
	}
	if c.Registry.RateLimit < 0 {
		errs = append(errs, "registry.rate_limit must be >= 0")
	}
	if c.Enrich.Workers < 0 || c.Enrich.Workers > 256 {
		errs = append(errs, "enrich.workers must be between 0 and 256")
	}
	return errs
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
