package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g. PEEPHOST_BASE_PORT.
const EnvPrefix = "PEEPHOST"

// DefaultRoot returns ~/.peephost, or a relative .peephost when the home
// directory cannot be resolved.
func DefaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".peephost"
	}
	return filepath.Join(home, ".peephost")
}

// DefaultFile is the config file consulted when no explicit path is given.
func DefaultFile() string {
	return filepath.Join(DefaultRoot(), "config.yaml")
}

// New returns a viper instance with defaults and environment bindings set.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads the optional YAML file at path (DefaultFile when empty) over the
// defaults and environment, and decodes the result.
func Load(path string) (HostConfig, error) {
	v := New()
	explicit := path != ""
	if !explicit {
		path = DefaultFile()
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
		if explicit || !missing {
			return HostConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return Decode(v)
}

// Decode unmarshals the settings held by v.
func Decode(v *viper.Viper) (HostConfig, error) {
	var cfg HostConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return HostConfig{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.expand()
	return cfg, nil
}

// Defaults returns the configuration used when no file or environment is set.
func Defaults() HostConfig {
	cfg, _ := Decode(New())
	return cfg
}

// Write stores cfg as YAML at path, creating parent directories. An existing
// file is left alone unless overwrite is set.
func Write(path string, cfg HostConfig, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config %s already exists", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
