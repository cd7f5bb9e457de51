package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
)

// EnvPrefix marks environment overrides. A double underscore nests keys, so
// SQUID_LOG__LEVEL sets log.level.
const EnvPrefix = "SQUID_"

type logConfig struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
	Dir   string `koanf:"dir"`
}

type mongoConfig struct {
	URI      string `koanf:"uri"`
	Database string `koanf:"database"`
}

type config struct {
	Addr      string `koanf:"addr"`
	Objective string `koanf:"objective"`
	OutputDir string `koanf:"output_dir"`
	// Template is run once at startup when set.
	Template     string      `koanf:"template"`
	ExitAfterRun bool        `koanf:"exit_after_run"`
	Log          logConfig   `koanf:"log"`
	Mongo        mongoConfig `koanf:"mongo"`
}

func defaultConfig() config {
	return config{
		Addr:      ":8000",
		OutputDir: "acquisitions",
		Log:       logConfig{Level: "info"},
		Mongo:     mongoConfig{Database: "squid"},
	}
}

// loadConfig layers defaults, the YAML file at path and the environment.
// A missing file is not an error.
func loadConfig(path string) (config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return config{}, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}
	err := k.Load(env.Provider(EnvPrefix, ".", func(key string) string {
		key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil)
	if err != nil {
		return config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg config
	if err := k.Unmarshal("", &cfg); err != nil {
		return config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}
