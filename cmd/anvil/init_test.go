package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/metalagman/anvil/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigYAML_IsLoadable(t *testing.T) {
	for _, lang := range config.Languages() {
		t.Run(lang, func(t *testing.T) {
			resetViper(t)
			root := t.TempDir()
			data, err := defaultConfigYAML(lang)
			require.NoError(t, err)
			require.NoError(t, writeTestFile(filepath.Join(root, config.DefaultConfigPath), string(data)))

			cfg, err := loadConfig(root)
			require.NoError(t, err)
			assert.Equal(t, lang, cfg.Language)
			assert.Equal(t, 50, cfg.Retention.KeepLast)
			assert.Equal(t, 30, cfg.Retention.KeepDays)
			assert.InDelta(t, 0.1, cfg.Generator.Temperature, 0.001)
		})
	}
}

func TestDefaultConfigYAML_UnknownLanguage(t *testing.T) {
	_, err := defaultConfigYAML("cobol")
	assert.Error(t, err)
}

func TestInitProject(t *testing.T) {
	root := t.TempDir()

	path, err := initProject(root, config.LanguageGo, false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, config.DefaultConfigPath), path)
	assert.DirExists(t, filepath.Join(root, ".anvil", "runs"))
	assert.DirExists(t, filepath.Join(root, ".anvil", "locks"))

	require.NoError(t, os.WriteFile(path, []byte("language: java\n"), 0o644))

	_, err = initProject(root, config.LanguageGo, false)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "language: java\n", string(data), "existing config is kept")

	_, err = initProject(root, config.LanguageGo, true)
	require.NoError(t, err)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "language: go")
}
