package core

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "CHATWORK_"
	// ConfigFileName is the TOML file looked up in default locations.
	ConfigFileName = "cwthread.toml"
)

// ErrMissingToken is returned when a command needs the API token and none is configured.
var ErrMissingToken = errors.New("chatwork API token is not set (set CHATWORK_API_TOKEN or api.token)")

// Config is the resolved runtime configuration.
type Config struct {
	API APIConfig `koanf:"api"`
	DB  DBConfig  `koanf:"db"`
	Log LogConfig `koanf:"log"`

	// Source is the config file that was loaded, if any.
	Source string `koanf:"-"`
}

// APIConfig configures the chat service client.
type APIConfig struct {
	Token             string        `koanf:"token"`
	BaseURL           string        `koanf:"base_url"`
	Timeout           time.Duration `koanf:"timeout"`
	RetryAttempts     int           `koanf:"retry_attempts"`
	RetryDelay        time.Duration `koanf:"retry_delay"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Burst             int           `koanf:"burst"`
}

// DBConfig configures the local cache database.
type DBConfig struct {
	Path     string        `koanf:"path"`
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `koanf:"level"`
}

var defaultConfig = map[string]any{
	"api.base_url":            "https://api.chatwork.com/v2",
	"api.timeout":             "30s",
	"api.retry_attempts":      3,
	"api.retry_delay":         "1s",
	"api.requests_per_second": 1.0,
	"api.burst":               5,
	"db.path":                 filepath.Join(".", "data", "cwthread.db"),
	"db.cache_ttl":            "24h",
	"log.level":               "warn",
}

// LoadConfig resolves configuration from defaults, a TOML file and the environment.
// An explicit configPath must exist; default locations are optional.
func LoadConfig(configPath string) (*Config, error) {
	// Missing .env is fine.
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaultConfig, "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	source := ""
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", configPath, err)
		}
		source = configPath
	} else {
		for _, path := range defaultConfigPaths() {
			if _, err := os.Stat(path); err != nil {
				continue
			}
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, fmt.Errorf("load config %s: %w", path, err)
			}
			source = path
			break
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Source = source

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// envKey maps CHATWORK_API_BASE_URL to api.base_url.
func envKey(name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	return strings.Replace(key, "_", ".", 1)
}

func defaultConfigPaths() []string {
	paths := []string{filepath.Join(".", ConfigFileName)}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "cwthread", ConfigFileName))
	}
	return paths
}

// Validate checks value ranges. The token is checked separately by RequireToken
// since local-only commands run without it.
func (c *Config) Validate() error {
	base, err := url.Parse(c.API.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute URL: %q", c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if c.API.RetryAttempts < 0 {
		return fmt.Errorf("api.retry_attempts cannot be negative")
	}
	if c.API.RetryDelay < 0 {
		return fmt.Errorf("api.retry_delay cannot be negative")
	}
	if c.API.RequestsPerSecond <= 0 {
		return fmt.Errorf("api.requests_per_second must be positive")
	}
	if c.API.Burst < 1 {
		return fmt.Errorf("api.burst must be at least 1")
	}
	if strings.TrimSpace(c.DB.Path) == "" {
		return fmt.Errorf("db.path is required")
	}
	if c.DB.CacheTTL <= 0 {
		return fmt.Errorf("db.cache_ttl must be positive")
	}
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// RequireToken returns ErrMissingToken when no API token is configured.
func (c *Config) RequireToken() error {
	if strings.TrimSpace(c.API.Token) == "" {
		return ErrMissingToken
	}
	return nil
}
