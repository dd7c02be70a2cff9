package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/arlert/devmon/internal/logger"
	"github.com/arlert/devmon/internal/script"
	"github.com/arlert/devmon/internal/watcher"
)

// DefaultFile is looked up in the working directory when no --config flag
// is given.
const DefaultFile = "devmon.toml"

// HistoryConfig selects the optional lifecycle history sink.
type HistoryConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

// APIConfig selects the optional status HTTP API.
type APIConfig struct {
	Listen string `toml:"listen" mapstructure:"listen"`
}

// FileConfig is the top-level TOML structure:
//
//	fullscreen = true
//
//	[watcher]
//	paths = ["."]
//	exts = [".go"]
//	skip = ["testdata"]
//	interval = "350ms"
//
//	[log]
//	dir = "logs"
//
//	[history]
//	dsn = "sqlite://devmon.db"
//
//	[api]
//	listen = "127.0.0.1:9055"
//
//	[scripts.start]
//	cmd = "go run ."
//	pre = ["go build ./..."]
//	watch = true
type FileConfig struct {
	Fullscreen bool                  `toml:"fullscreen" mapstructure:"fullscreen"`
	Watcher    watcher.Config        `toml:"watcher" mapstructure:"watcher"`
	Log        logger.Config         `toml:"log" mapstructure:"log"`
	History    HistoryConfig         `toml:"history" mapstructure:"history"`
	API        APIConfig             `toml:"api" mapstructure:"api"`
	Scripts    map[string]script.Def `toml:"scripts" mapstructure:"scripts"`
}

// Load reads and validates a config file.
func Load(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := fc.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &fc, nil
}

// LoadDefault loads DefaultFile when present and otherwise returns a
// usable empty config so `devmon <cmd>` can run ad-hoc commands.
func LoadDefault() (*FileConfig, error) {
	if _, err := os.Stat(DefaultFile); err != nil {
		return &FileConfig{Scripts: map[string]script.Def{}}, nil
	}
	return Load(DefaultFile)
}

func (fc *FileConfig) validate() error {
	if fc.Scripts == nil {
		fc.Scripts = map[string]script.Def{}
	}
	for name, def := range fc.Scripts {
		if def.Cmd == "" {
			return fmt.Errorf("script %q: cmd is required", name)
		}
	}
	if fc.Watcher.Interval < 0 {
		return fmt.Errorf("watcher.interval must not be negative")
	}
	return nil
}
