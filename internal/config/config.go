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
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Datasets DatasetsConfig `yaml:"datasets" mapstructure:"datasets"`
	Analysis AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`
	PostGIS  PostGISConfig  `yaml:"postgis" mapstructure:"postgis"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Geonorge GeonorgeConfig `yaml:"geonorge" mapstructure:"geonorge"`
	HTTP     HTTPConfig     `yaml:"http" mapstructure:"http"`
	Breaker  BreakerConfig  `yaml:"breaker" mapstructure:"breaker"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// DatasetsConfig points at the dataset and quality configuration directory.
type DatasetsConfig struct {
	ConfigDir    string `yaml:"config_dir" mapstructure:"config_dir"`
	CacheTTLSecs int    `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
}

// CacheTTL returns the configuration reload interval.
func (c DatasetsConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSecs) * time.Second
}

// AnalysisConfig tunes the analysis pipeline.
type AnalysisConfig struct {
	EPSG                  int     `yaml:"epsg" mapstructure:"epsg"`
	SearchRadius          float64 `yaml:"search_radius" mapstructure:"search_radius"`
	MaxConcurrentDatasets int     `yaml:"max_concurrent_datasets" mapstructure:"max_concurrent_datasets"`
	QueryTimeoutSecs      int     `yaml:"query_timeout_secs" mapstructure:"query_timeout_secs"`
	PercentLocale         string  `yaml:"percent_locale" mapstructure:"percent_locale"`
}

// QueryTimeout returns the per-query timeout for feature services.
func (c AnalysisConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSecs) * time.Second
}

// PostGISConfig configures the spatial database.
type PostGISConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// CacheConfig configures the lookup cache. An empty RedisURL keeps entries in memory.
type CacheConfig struct {
	RedisURL         string `yaml:"redis_url" mapstructure:"redis_url"`
	GuidanceTTLHours int    `yaml:"guidance_ttl_hours" mapstructure:"guidance_ttl_hours"`
	CodelistTTLHours int    `yaml:"codelist_ttl_hours" mapstructure:"codelist_ttl_hours"`
	CatalogTTLHours  int    `yaml:"catalog_ttl_hours" mapstructure:"catalog_ttl_hours"`
}

// GeonorgeConfig holds the register and catalog endpoints.
type GeonorgeConfig struct {
	CatalogURL        string            `yaml:"catalog_url" mapstructure:"catalog_url"`
	GuidanceURL       string            `yaml:"guidance_url" mapstructure:"guidance_url"`
	LocalGuidanceFile string            `yaml:"local_guidance_file" mapstructure:"local_guidance_file"`
	LocalGuidanceIDs  []string          `yaml:"local_guidance_ids" mapstructure:"local_guidance_ids"`
	Codelists         map[string]string `yaml:"codelists" mapstructure:"codelists"`
}

// HTTPConfig configures outbound HTTP clients.
type HTTPConfig struct {
	UserAgent  string  `yaml:"user_agent" mapstructure:"user_agent"`
	RateLimit  float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	MaxRetries int     `yaml:"max_retries" mapstructure:"max_retries"`
}

// BreakerConfig configures the per-host circuit breakers.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DOKANALYSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 5001)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("datasets.config_dir", "./config")
	v.SetDefault("datasets.cache_ttl_secs", 300)
	v.SetDefault("analysis.epsg", 25833)
	v.SetDefault("analysis.search_radius", 20000)
	v.SetDefault("analysis.max_concurrent_datasets", 10)
	v.SetDefault("analysis.query_timeout_secs", 30)
	v.SetDefault("analysis.percent_locale", "nb")
	v.SetDefault("postgis.database_url", "")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.guidance_ttl_hours", 168)
	v.SetDefault("cache.codelist_ttl_hours", 24)
	v.SetDefault("cache.catalog_ttl_hours", 24)
	v.SetDefault("geonorge.catalog_url", "https://kartkatalog.geonorge.no")
	v.SetDefault("geonorge.guidance_url", "https://register.geonorge.no/geolett/api")
	v.SetDefault("geonorge.codelists", map[string]string{
		"fullstendighet_dekning": "https://register.geonorge.no/api/sosi-kodelister/fkb/generelle/fullstendighetsdekning.json",
	})
	v.SetDefault("http.user_agent", "dokanalyse")
	v.SetDefault("http.rate_limit", 10)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.reset_timeout_secs", 30)

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

// Validate checks settings every command relies on.
func (c *Config) Validate() error {
	if c.Analysis.EPSG <= 0 {
		return eris.Errorf("config: analysis.epsg must be positive, got %d", c.Analysis.EPSG)
	}
	if c.Analysis.MaxConcurrentDatasets < 1 {
		return eris.Errorf("config: analysis.max_concurrent_datasets must be at least 1, got %d", c.Analysis.MaxConcurrentDatasets)
	}
	if c.Datasets.ConfigDir == "" {
		return eris.New("config: datasets.config_dir is required")
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
