package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Scrape    ScrapeConfig    `mapstructure:"scrape"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Frontend  FrontendConfig  `mapstructure:"frontend"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// ScrapeConfig holds the site scraping and retry settings
type ScrapeConfig struct {
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
	MinDelay       time.Duration `mapstructure:"min_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	MaxRetries     int           `mapstructure:"max_retries"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Parallel       bool          `mapstructure:"parallel"`
	MaxContainers  int           `mapstructure:"max_containers"`
	MaxProducts    int           `mapstructure:"max_products"`
}

// CatalogEndpoint holds one site's product API settings
type CatalogEndpoint struct {
	BaseURL string `mapstructure:"base_url"`
	Token   string `mapstructure:"token"`
}

// CatalogConfig holds the product API settings used by method=api
type CatalogConfig struct {
	Flipkart      CatalogEndpoint `mapstructure:"flipkart"`
	Amazon        CatalogEndpoint `mapstructure:"amazon"`
	Reliance      CatalogEndpoint `mapstructure:"reliance"`
	Timeout       time.Duration   `mapstructure:"timeout"`
	RatePerSecond float64         `mapstructure:"rate_per_second"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Type     string        `mapstructure:"type"` // "memory" or "redis"
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// RateLimitConfig holds inbound rate limiting configuration
type RateLimitConfig struct {
	PerIP int `mapstructure:"per_ip"` // requests per minute, 0 disables
	Burst int `mapstructure:"burst"`
}

// FrontendConfig holds the static page settings
type FrontendConfig struct {
	IndexPath string `mapstructure:"index_path"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/pricepulse/")

	// Environment variable settings: PRICEPULSE_SCRAPE_MAX_RETRIES -> scrape.max_retries
	v.SetEnvPrefix("PRICEPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; using environment variables and defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// LoadEnvFiles loads variables from the given .env files into the process
// environment. Missing files are skipped and existing variables win.
func LoadEnvFiles(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("error loading %s: %w", path, err)
		}
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:*", "http://127.0.0.1:*"})
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("log.level", "info")

	// Scrape defaults
	v.SetDefault("scrape.http_timeout", "25s")
	v.SetDefault("scrape.min_delay", "1s")
	v.SetDefault("scrape.max_delay", "3s")
	v.SetDefault("scrape.max_retries", 2)
	v.SetDefault("scrape.backoff_base", "2s")
	v.SetDefault("scrape.request_timeout", "90s")
	v.SetDefault("scrape.parallel", true)
	v.SetDefault("scrape.max_containers", 5)
	v.SetDefault("scrape.max_products", 3)

	// Catalog defaults; a site's API is enabled by setting its base_url
	for _, site := range []string{"flipkart", "amazon", "reliance"} {
		v.SetDefault("catalog."+site+".base_url", "")
		v.SetDefault("catalog."+site+".token", "")
	}
	v.SetDefault("catalog.timeout", "10s")
	v.SetDefault("catalog.rate_per_second", 1.0)

	// Cache defaults
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", "10m")

	// Rate limit defaults
	v.SetDefault("ratelimit.per_ip", 30)
	v.SetDefault("ratelimit.burst", 5)

	v.SetDefault("frontend.index_path", "frontend/index.html")
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Cache.Type != "memory" && config.Cache.Type != "redis" {
		return fmt.Errorf("cache type must be 'memory' or 'redis', got: %s", config.Cache.Type)
	}

	if config.Cache.Type == "redis" && config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required when cache type is 'redis' (set PRICEPULSE_CACHE_REDIS_URL)")
	}

	if config.Scrape.MinDelay < 0 || config.Scrape.MinDelay > config.Scrape.MaxDelay {
		return fmt.Errorf("scrape delay range is invalid: min %s, max %s", config.Scrape.MinDelay, config.Scrape.MaxDelay)
	}

	if config.Scrape.MaxRetries < 0 {
		return fmt.Errorf("scrape max_retries cannot be negative, got: %d", config.Scrape.MaxRetries)
	}

	if config.Scrape.RequestTimeout <= 0 || config.Scrape.HTTPTimeout <= 0 {
		return fmt.Errorf("scrape timeouts must be positive")
	}

	if config.Scrape.MaxProducts <= 0 || config.Scrape.MaxContainers <= 0 {
		return fmt.Errorf("scrape max_products and max_containers must be positive")
	}

	if config.RateLimit.PerIP < 0 {
		return fmt.Errorf("ratelimit per_ip cannot be negative, got: %d", config.RateLimit.PerIP)
	}

	for _, proxy := range config.Server.TrustedProxies {
		if net.ParseIP(proxy) == nil {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return fmt.Errorf("trusted proxy must be an IP or CIDR, got: %s", proxy)
			}
		}
	}

	return nil
}
