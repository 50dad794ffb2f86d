package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/metalagman/anvil/internal/codegen"
	"github.com/metalagman/anvil/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func initCmd() *cobra.Command {
	var language string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize an anvil project",
		Long:  "Initialize an anvil project by creating the .anvil directory and installing a default config for the chosen language preset.",
		RunE: func(cmd *cobra.Command, args []string) error {
			repoRoot, err := os.Getwd()
			if err != nil {
				return err
			}
			path, err := initProject(repoRoot, language, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "anvil initialized, config at %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&language, "language", config.LanguageRust, fmt.Sprintf("language preset %v", config.Languages()))
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func initProject(repoRoot, language string, force bool) (string, error) {
	dir := stateDir(repoRoot)
	log.Info().Str("dir", dir).Msg("creating anvil directory")
	for _, sub := range []string{"runs", "locks"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return "", fmt.Errorf("create %s dir: %w", sub, err)
		}
	}

	configPath := filepath.Join(repoRoot, config.DefaultConfigPath)
	_, err := os.Stat(configPath)
	switch {
	case err == nil && !force:
		log.Info().Str("path", configPath).Msg("config already exists, skipping")
		return configPath, nil
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("stat config: %w", err)
	}

	data, err := defaultConfigYAML(language)
	if err != nil {
		return "", err
	}
	log.Info().Str("path", configPath).Str("language", language).Msg("installing default config")
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write default config: %w", err)
	}
	return configPath, nil
}

func defaultConfigYAML(language string) ([]byte, error) {
	cfg := config.Config{Language: language}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, err
	}
	cfg.Generator.Temperature = codegen.DefaultTemperature
	cfg.Retention = config.RetentionPolicy{KeepLast: 50, KeepDays: 30}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal default config: %w", err)
	}
	return data, nil
}
