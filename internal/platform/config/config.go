package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	pstrings "certproof/pkg/platform/strings"
)

// Backend selects the record store implementation at runtime. The pipeline
// itself never branches on this; only wiring in main does.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendFile     Backend = "file"
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
)

// Config captures everything the server needs at startup. Values load from an
// optional YAML file and are overridable via environment variables so
// containers can tweak single settings without a config volume.
type Config struct {
	Addr    string `yaml:"addr"`
	DataDir string `yaml:"data_dir"`

	Store       Backend `yaml:"store"`
	PostgresURL string  `yaml:"postgres_url"`
	RedisURL    string  `yaml:"redis_url"`

	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`

	FontPath string        `yaml:"font_path"`
	TokenTTL time.Duration `yaml:"-"`

	// SigningSecret is resolved by EnsureSecret, never read from YAML, so a
	// committed config file cannot leak it.
	SigningSecret string `yaml:"-"`
}

// UnmarshalYAML decodes the config, accepting token_ttl as a duration string
// ("24h") rather than raw nanoseconds.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type alias Config
	aux := struct {
		TokenTTL string `yaml:"token_ttl"`
		*alias   `yaml:",inline"`
	}{alias: (*alias)(c)}
	if err := node.Decode(&aux); err != nil {
		return err
	}
	if aux.TokenTTL != "" {
		d, err := time.ParseDuration(aux.TokenTTL)
		if err != nil {
			return fmt.Errorf("parse token_ttl: %w", err)
		}
		c.TokenTTL = d
	}
	return nil
}

// Load reads the YAML file at path when it exists, then applies environment
// overrides and defaults. A missing file is not an error; env-only deployments
// are the common case.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CERTPROOF_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("CERTPROOF_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("CERTPROOF_STORE"); v != "" {
		cfg.Store = Backend(v)
	}
	if v := os.Getenv("CERTPROOF_POSTGRES_URL"); v != "" {
		cfg.PostgresURL = v
	}
	if v := os.Getenv("CERTPROOF_REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("CERTPROOF_KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = pstrings.DedupeAndTrim(strings.Split(v, ","))
	}
	if v := os.Getenv("CERTPROOF_KAFKA_TOPIC"); v != "" {
		cfg.KafkaTopic = v
	}
	if v := os.Getenv("CERTPROOF_FONT_PATH"); v != "" {
		cfg.FontPath = v
	}
	if v := os.Getenv("CERTPROOF_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.TokenTTL = d
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.Store == "" {
		cfg.Store = BackendFile
	}
	if cfg.KafkaTopic == "" {
		cfg.KafkaTopic = "certproof.audit"
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = 7 * 24 * time.Hour
	}
}

func (cfg Config) validate() error {
	switch cfg.Store {
	case BackendMemory, BackendFile:
	case BackendPostgres:
		if cfg.PostgresURL == "" {
			return fmt.Errorf("store %q requires postgres_url", cfg.Store)
		}
	case BackendRedis:
		if cfg.RedisURL == "" {
			return fmt.Errorf("store %q requires redis_url", cfg.Store)
		}
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store)
	}
	return nil
}
