package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/metalagman/anvil/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

func resolveConfigPath(repoRoot, path string) string {
	if path == "" {
		path = config.DefaultConfigPath
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(repoRoot, path)
	}
	return path
}

// loadConfig reads the config file when it exists, applies ANVIL_ env overrides and
// returns the validated config. Without a file the language preset defaults are used.
func loadConfig(repoRoot string) (config.Config, error) {
	path := resolveConfigPath(repoRoot, viper.GetString("config"))
	viper.SetConfigFile(path)
	bindEnv(viper.GetViper())

	if _, err := os.Stat(path); err == nil {
		if err := viper.ReadInConfig(); err != nil {
			return config.Config{}, fmt.Errorf("read config: %w", err)
		}
	} else if errors.Is(err, fs.ErrNotExist) {
		log.Debug().Str("path", path).Msg("config file not found, using defaults")
	} else {
		return config.Config{}, fmt.Errorf("stat config: %w", err)
	}

	settings := viper.AllSettings()
	delete(settings, "config")
	if lang := viper.GetString("language"); lang != "" {
		settings["language"] = lang
	}

	cfg, err := config.Decode(settings)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

func viperConfigPath() string {
	if path := viper.GetString("config"); path != "" {
		return path
	}
	return config.DefaultConfigPath
}
