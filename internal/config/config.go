package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type SearchConfig struct {
	CurrentCrate string `mapstructure:"current_crate" toml:"current_crate"`
	RootPath     string `mapstructure:"root_path" toml:"root_path"`
	Limit        int    `mapstructure:"limit" toml:"limit"`
}

type IndexConfig struct {
	Paths []string `mapstructure:"paths" toml:"paths"`
}

type DaemonConfig struct {
	ExpirationSeconds int `mapstructure:"expiration_seconds" toml:"expiration_seconds"`
}

type Config struct {
	Search SearchConfig `mapstructure:"search" toml:"search"`
	Index  IndexConfig  `mapstructure:"index" toml:"index"`
	Daemon DaemonConfig `mapstructure:"daemon" toml:"daemon"`
}

// cacheBase returns the base cache directory for ferrisfind.
// Checks XDG_CACHE_HOME, then ~/.cache, then /tmp/ferrisfind as fallback.
func cacheBase() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "ferrisfind")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "ferrisfind")
	}
	return filepath.Join(os.TempDir(), "ferrisfind")
}

// DBPath returns the path to the source registry database.
func DBPath() string {
	return filepath.Join(cacheBase(), "db.db")
}

// CASDir returns the path to the content-addressable storage directory.
func CASDir() string {
	return filepath.Join(cacheBase(), "cas")
}

// LogPath returns the path to the daemon's log file.
func LogPath() string {
	return filepath.Join(cacheBase(), "daemon.log")
}

// SocketPath returns the path to the daemon's unix socket.
func SocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "ferrisfind", "daemon.sock")
	}
	return filepath.Join(fmt.Sprintf("/run/user/%d", os.Getuid()), "ferrisfind", "daemon.sock")
}

func InitializeViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("toml")

	viper.AddConfigPath(".")
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		viper.AddConfigPath(filepath.Join(xdg, "ferrisfind"))
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".config", "ferrisfind"))
	}

	viper.SetDefault("search.current_crate", "")
	viper.SetDefault("search.root_path", "")
	viper.SetDefault("search.limit", 10)
	viper.SetDefault("index.paths", []string{})
	viper.SetDefault("daemon.expiration_seconds", 600)

	viper.SetEnvPrefix("FERRISFIND")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

// stringToPathListHookFunc lets index.paths be written as a single
// comma-separated string, which is the only form an env var can take.
func stringToPathListHookFunc() mapstructure.DecodeHookFunc {
	return func(f, t reflect.Type, data interface{}) (interface{}, error) {
		if t != reflect.TypeOf([]string{}) || f.Kind() != reflect.String {
			return data, nil
		}
		var out []string
		for _, p := range strings.Split(data.(string), ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	}
}

func Load() (*Config, error) {
	if err := InitializeViper(); err != nil {
		return nil, err
	}

	var config Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       stringToPathListHookFunc(),
		WeaklyTypedInput: true,
		Result:           &config,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(viper.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for i, p := range config.Index.Paths {
		config.Index.Paths[i] = expandHome(p)
	}
	if config.Search.Limit <= 0 {
		return nil, fmt.Errorf("search.limit must be positive, got %d", config.Search.Limit)
	}

	return &config, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path[2:])
	}
	return path
}
