// Package config loads the ason configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/ason/internal/logging"
	"github.com/aretw0/ason/pkg/domain"
	"gopkg.in/yaml.v3"
)

// DefaultPath is looked up in the working directory when no file is given.
const DefaultPath = "ason.yaml"

// Config is the complete configuration surface.
type Config struct {
	Mode          domain.ExecutionMode `yaml:"mode" json:"mode"`
	Remote        Remote               `yaml:"remote" json:"remote"`
	MaxAttempts   int                  `yaml:"max_attempts" json:"max_attempts"`
	Denylist      []string             `yaml:"denylist" json:"denylist"`
	ExecutorPath  string               `yaml:"executor_path" json:"executor_path"`
	Container     Container            `yaml:"container" json:"container"`
	ReloadTimeout time.Duration        `yaml:"reload_timeout" json:"reload_timeout"`
	Log           Log                  `yaml:"log" json:"log"`
	Hub           Hub                  `yaml:"hub" json:"hub"`
	Generator     Generator            `yaml:"generator" json:"generator"`
}

type Remote struct {
	Enabled     bool          `yaml:"enabled" json:"enabled"`
	URL         string        `yaml:"url" json:"url"`
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
}

type Container struct {
	Runtime string `yaml:"runtime" json:"runtime"`
	Image   string `yaml:"image" json:"image"`
}

type Log struct {
	Level  string         `yaml:"level" json:"level"`
	Format logging.Format `yaml:"format" json:"format"`
}

// Generator selects the model that writes scripts. The API key is read from
// the environment variable named by APIKeyEnv, never from the file.
type Generator struct {
	Model     string `yaml:"model" json:"model"`
	APIKeyEnv string `yaml:"api_key_env" json:"api_key_env"`
	BaseURL   string `yaml:"base_url" json:"base_url"`
	Explain   bool   `yaml:"explain" json:"explain"`
}

// APIKey returns the key from the configured environment variable.
func (g Generator) APIKey() string {
	return os.Getenv(g.APIKeyEnv)
}

type Hub struct {
	Addr      string `yaml:"addr" json:"addr"`
	RedisAddr string `yaml:"redis_addr" json:"redis_addr"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Mode:          domain.ModeInProcess,
		Remote:        Remote{IdleTimeout: 5 * time.Minute},
		MaxAttempts:   2,
		Container:     Container{Runtime: "docker"},
		ReloadTimeout: 40 * time.Second,
		Log:           Log{Level: "info", Format: logging.FormatText},
		Hub:           Hub{Addr: ":8080"},
		Generator:     Generator{APIKeyEnv: "GEMINI_API_KEY", Explain: true},
	}
}

// Load reads a YAML (or, by extension, JSON) file over Default. A missing
// file at DefaultPath is not an error; a missing explicit file is.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must not be negative, got %d", c.MaxAttempts)
	}
	if c.Remote.Enabled && c.Remote.URL == "" {
		return fmt.Errorf("remote.enabled requires remote.url")
	}
	switch c.Log.Format {
	case logging.FormatText, logging.FormatJSON, "":
	default:
		return fmt.Errorf("unknown log.format %q", c.Log.Format)
	}
	return nil
}
