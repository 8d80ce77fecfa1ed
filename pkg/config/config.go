// Package config loads the callboard configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/callboard/pkg/domain"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	Lines        int           `yaml:"lines" json:"lines" validate:"min=1,max=8"`
	AutoHold     bool          `yaml:"auto_hold" json:"auto_hold"`
	LineSettings []LineEntry   `yaml:"line_settings" json:"line_settings" validate:"dive"`
	Log          LogConfig     `yaml:"log" json:"log"`
	HTTP         HTTPConfig    `yaml:"http" json:"http"`
	CallLog      CallLogConfig `yaml:"call_log" json:"call_log"`
	Redis        RedisConfig   `yaml:"redis" json:"redis"`
	Locking      LockConfig    `yaml:"locking" json:"locking"`
	Gateway      GatewayConfig `yaml:"gateway" json:"gateway"`
}

// LineEntry configures one line by number.
type LineEntry struct {
	Number            int `yaml:"number" json:"number" validate:"min=1,max=8"`
	domain.LineConfig `yaml:",inline"`
}

// UnmarshalYAML starts from domain.DefaultLineConfig so omitted keys keep their defaults.
func (e *LineEntry) UnmarshalYAML(value *yaml.Node) error {
	type plain LineEntry
	p := plain{LineConfig: domain.DefaultLineConfig()}
	if err := value.Decode(&p); err != nil {
		return err
	}
	*e = LineEntry(p)
	return nil
}

// UnmarshalJSON is the JSON counterpart of UnmarshalYAML.
func (e *LineEntry) UnmarshalJSON(data []byte) error {
	type plain LineEntry
	p := plain{LineConfig: domain.DefaultLineConfig()}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = LineEntry(p)
	return nil
}

type LogConfig struct {
	Level      string `yaml:"level" json:"level" validate:"omitempty,oneof=debug info warn error"`
	Format     string `yaml:"format" json:"format" validate:"omitempty,oneof=text json"`
	File       string `yaml:"file" json:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups" validate:"gte=0"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr" json:"addr" validate:"required"`
}

// CallLogConfig selects where ended calls are recorded.
type CallLogConfig struct {
	Backend  string `yaml:"backend" json:"backend" validate:"oneof=memory redis file"`
	Capacity int    `yaml:"capacity" json:"capacity" validate:"gte=0"`
	Path     string `yaml:"path" json:"path" validate:"required_if=Backend file"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db" validate:"gte=0"`
	Prefix   string `yaml:"prefix" json:"prefix"`
}

// LockConfig enables line ownership across instances (requires Redis).
type LockConfig struct {
	Distributed bool `yaml:"distributed" json:"distributed"`
	TTLSeconds  int  `yaml:"ttl_seconds" json:"ttl_seconds" validate:"gte=0"`
}

// GatewayConfig tunes the simulated gateway used by the CLI.
type GatewayConfig struct {
	LatencyMs int `yaml:"latency_ms" json:"latency_ms" validate:"gte=0"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Lines:    2,
		AutoHold: true,
		Log:      LogConfig{Level: "info", Format: "text"},
		HTTP:     HTTPConfig{Addr: ":8080"},
		CallLog:  CallLogConfig{Backend: "memory", Capacity: 100},
		Redis:    RedisConfig{Addr: "localhost:6379", Prefix: "callboard:"},
		Locking:  LockConfig{TTLSeconds: 30},
	}
}

// Load reads a YAML or JSON file (by extension) over the defaults and validates it.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	} else {
		// Default to YAML
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and that every line entry is within Lines.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", e.Namespace(), e.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	seen := make(map[int]bool, len(c.LineSettings))
	for _, entry := range c.LineSettings {
		if entry.Number > c.Lines {
			return fmt.Errorf("invalid config: %w: line_settings entry %d exceeds lines=%d",
				domain.ErrInvalidLineNumber, entry.Number, c.Lines)
		}
		if seen[entry.Number] {
			return fmt.Errorf("invalid config: line %d configured twice", entry.Number)
		}
		seen[entry.Number] = true
	}
	if c.Locking.Distributed && c.Redis.Addr == "" {
		return errors.New("invalid config: locking.distributed requires redis.addr")
	}
	return nil
}

// LineConfigs returns the per-line configuration, defaulting lines that have no entry.
func (c *Config) LineConfigs() map[domain.LineNumber]domain.LineConfig {
	out := make(map[domain.LineNumber]domain.LineConfig, c.Lines)
	for _, entry := range c.LineSettings {
		out[domain.LineNumber(entry.Number)] = entry.LineConfig
	}
	return out
}
