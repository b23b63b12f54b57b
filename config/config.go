// Package config loads settings from an optional YAML file, VOICENOTES_*
// environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"voicenotes/encoder"
	"voicenotes/kv"
	"voicenotes/notes"
	"voicenotes/transcriber"
)

const EnvPrefix = "VOICENOTES"

type Storage struct {
	Backend string `mapstructure:"backend" validate:"oneof=file sqlite memory"`
	Path    string `mapstructure:"path"`
	Key     string `mapstructure:"key" validate:"required"`
}

type Config struct {
	Provider         string        `mapstructure:"provider" validate:"omitempty,oneof=gemini groq openai"`
	APIKey           string        `mapstructure:"api_key"`
	Model            string        `mapstructure:"model"`
	PolishModel      string        `mapstructure:"polish_model"`
	Language         string        `mapstructure:"language"`
	Format           string        `mapstructure:"format" validate:"oneof=flac wav"`
	Device           string        `mapstructure:"device"`
	AutoSaveInterval time.Duration `mapstructure:"autosave_interval" validate:"gt=0"`
	TickInterval     time.Duration `mapstructure:"tick_interval" validate:"gt=0"`
	FrameInterval    time.Duration `mapstructure:"frame_interval" validate:"gt=0"`
	Storage          Storage       `mapstructure:"storage"`
	ExportDir        string        `mapstructure:"export_dir"`
	LogPath          string        `mapstructure:"log_path"`
	Hotkey           bool          `mapstructure:"hotkey"`
}

// NewViper returns a viper instance with defaults and environment binding
// in place. Flags may be bound to it before Load.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", "")
	v.SetDefault("api_key", "")
	v.SetDefault("model", "")
	v.SetDefault("polish_model", "")
	v.SetDefault("language", "")
	v.SetDefault("format", encoder.FormatFLAC)
	v.SetDefault("device", "")
	v.SetDefault("autosave_interval", notes.DefaultAutoSaveInterval)
	v.SetDefault("tick_interval", 50*time.Millisecond)
	v.SetDefault("frame_interval", 16*time.Millisecond)
	v.SetDefault("storage.backend", kv.BackendFile)
	v.SetDefault("storage.path", "")
	v.SetDefault("storage.key", notes.StorageKey)
	v.SetDefault("export_dir", "")
	v.SetDefault("log_path", "")
	v.SetDefault("hotkey", false)
}

// Load reads configuration using a fresh viper instance.
func Load(path string) (*Config, error) {
	return LoadViper(NewViper(), path)
}

// LoadViper reads the config file at path (or the default location when
// it exists), decodes v and validates the result.
func LoadViper(v *viper.Viper, path string) (*Config, error) {
	if path == "" {
		if p := DefaultFile(); p != "" {
			if _, err := os.Stat(p); err == nil {
				path = p
			}
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Format = strings.ToLower(cfg.Format)
	cfg.Storage.Backend = strings.ToLower(cfg.Storage.Backend)
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = defaultStoragePath(cfg.Storage.Backend)
	}
	return &cfg, nil
}

// Dir is the per-user configuration directory.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "voicenotes")
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "voicenotes")
}

func DefaultFile() string {
	d := Dir()
	if d == "" {
		return ""
	}
	return filepath.Join(d, "config.yaml")
}

func defaultStoragePath(backend string) string {
	d := Dir()
	if d == "" {
		d = "."
	}
	if backend == kv.BackendSQLite {
		return filepath.Join(d, "notes.db")
	}
	return filepath.Join(d, "notes")
}

// Credentials resolves the provider and API key. An explicit key wins;
// otherwise the provider's conventional environment variable is used, and
// with no provider configured the first provider with a key is picked.
func (c *Config) Credentials() (provider, key string, err error) {
	if c.Provider == "" {
		if c.APIKey != "" {
			return transcriber.ProviderGemini, c.APIKey, nil
		}
		return transcriber.Detect()
	}
	key = c.APIKey
	if key == "" {
		key = transcriber.KeyFromEnv(c.Provider)
	}
	if key == "" {
		return c.Provider, "", fmt.Errorf("%s: %w", c.Provider, ErrMissingKey)
	}
	return c.Provider, key, nil
}

var ErrMissingKey = errors.New("no API key configured")

// Models returns the per-stage models for provider, with configured
// overrides applied.
func (c *Config) Models(provider string) transcriber.Models {
	m := transcriber.DefaultModels(provider)
	if c.Model != "" {
		m.Transcribe = c.Model
		if c.PolishModel == "" {
			m.Polish = c.Model
		}
	}
	if c.PolishModel != "" {
		m.Polish = c.PolishModel
	}
	return m
}
