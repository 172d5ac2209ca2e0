package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"orderline/internal/logger"
)

// Config models orderline.yml.
type Config struct {
	Server struct {
		Addr      string `yaml:"addr"`
		BasePath  string `yaml:"base_path"`
		RateLimit struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Database struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
	Log  logger.Config `yaml:"log"`
	Auth struct {
		// JWTSecret is read from ORDERLINE_JWT_SECRET, never from the file.
		JWTSecret              string        `yaml:"-"`
		AllowLegacyActorHeader bool          `yaml:"allow_legacy_actor_header"`
		TokenTTL               time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`
	Identity struct {
		CacheSize int           `yaml:"cache_size"`
		CacheTTL  time.Duration `yaml:"cache_ttl"`
	} `yaml:"identity"`
	Quote struct {
		EnforceBreakdownTotal bool   `yaml:"enforce_breakdown_total"`
		Currency              string `yaml:"currency"`
	} `yaml:"quote"`
	Media  MediaConfig `yaml:"media"`
	Notify struct {
		Redis RedisConfig `yaml:"redis"`
	} `yaml:"notify"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
}

type MediaConfig struct {
	Backend string `yaml:"backend"`
	Local   struct {
		Dir     string `yaml:"dir"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"local"`
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Endpoint  string `yaml:"endpoint"`
	PublicURL string `yaml:"public_url"`
	PathStyle bool   `yaml:"path_style"`
	// Credentials come from the environment or the default AWS chain.
	AccessKeyID     string `yaml:"-"`
	SecretAccessKey string `yaml:"-"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"-"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Server.RateLimit.RPS < 0 || c.Server.RateLimit.Burst < 0 {
		return fmt.Errorf("config.server.rate_limit must not be negative")
	}
	if c.Server.RateLimit.RPS > 0 && c.Server.RateLimit.Burst == 0 {
		return fmt.Errorf("config.server.rate_limit.burst is required when rps is set")
	}
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("config.database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("config.database.driver must be sqlite or postgres")
	}
	if c.Identity.CacheSize < 0 {
		return fmt.Errorf("config.identity.cache_size must not be negative")
	}
	if c.Quote.Currency == "" {
		return fmt.Errorf("config.quote.currency is required")
	}
	switch c.Media.Backend {
	case "local":
		if c.Media.Local.Dir == "" {
			return fmt.Errorf("config.media.local.dir is required")
		}
	case "s3":
		if c.Media.S3.Bucket == "" {
			return fmt.Errorf("config.media.s3.bucket is required")
		}
		if c.Media.S3.Region == "" {
			return fmt.Errorf("config.media.s3.region is required")
		}
	default:
		return fmt.Errorf("config.media.backend must be local or s3")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("config.metrics.path must start with /")
	}
	return nil
}

// ApplyEnv overlays secrets that never live in the file.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv("ORDERLINE_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := getenv("ORDERLINE_REDIS_PASSWORD"); v != "" {
		c.Notify.Redis.Password = v
	}
	if v := getenv("ORDERLINE_S3_ACCESS_KEY_ID"); v != "" {
		c.Media.S3.AccessKeyID = v
	}
	if v := getenv("ORDERLINE_S3_SECRET_ACCESS_KEY"); v != "" {
		c.Media.S3.SecretAccessKey = v
	}
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "orderline.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with ol init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional falls back to Default when the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the config described by DefaultYAML.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(DefaultYAML), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// FromYAML parses raw YAML over the defaults and validates the result.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// YAML renders cfg back to YAML. Secrets are omitted.
func (c *Config) YAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

const DefaultYAML = `server:
  addr: 127.0.0.1:8080
  base_path: /v0
  rate_limit:
    rps: 20
    burst: 40

database:
  driver: sqlite
  dsn: ""

log:
  level: info
  format: console
  output: stderr

auth:
  allow_legacy_actor_header: true
  token_ttl: 24h

identity:
  cache_size: 1024
  cache_ttl: 1m

quote:
  enforce_breakdown_total: false
  currency: USD

media:
  backend: local
  local:
    dir: .orderline/media
    base_url: http://127.0.0.1:8080/media

notify:
  redis:
    addr: ""
    db: 0
    channel: orderline

metrics:
  enabled: true
  path: /metrics
`
