// Package config provides configuration loading and management for anvil.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultDir is the per-project state directory.
	DefaultDir = ".anvil"
	// DefaultConfigPath is the config location relative to the working directory.
	DefaultConfigPath = DefaultDir + "/config.yaml"

	defaultRetryLimit   = 2
	defaultWarmup       = 5 * time.Second
	defaultPollInterval = 250 * time.Millisecond
	defaultProbeTimeout = 5 * time.Second
	defaultHost         = "localhost"
	defaultPort         = 8080
	defaultProvider     = ProviderOpenAI
)

// Generator providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderExec   = "exec"
)

// Config is the root configuration.
type Config struct {
	Language  string          `json:"language"            mapstructure:"language"  yaml:"language"`
	Project   ProjectConfig   `json:"project"             mapstructure:"project"   yaml:"project"`
	Build     BuildConfig     `json:"build"               mapstructure:"build"     yaml:"build"`
	Server    ServerConfig    `json:"server"              mapstructure:"server"    yaml:"server"`
	Validate  ValidateConfig  `json:"validate"            mapstructure:"validate"  yaml:"validate"`
	Generator GeneratorConfig `json:"generator"           mapstructure:"generator" yaml:"generator"`
	Progress  ProgressConfig  `json:"progress"            mapstructure:"progress"  yaml:"progress"`
	Retention RetentionPolicy `json:"retention,omitempty" mapstructure:"retention" yaml:"retention"`
}

// ProjectConfig locates the generated project on disk.
type ProjectConfig struct {
	Dir          string `json:"dir"           mapstructure:"dir"           yaml:"dir"`
	TemplatePath string `json:"template_path" mapstructure:"template_path" yaml:"template_path"`
	SourcePath   string `json:"source_path"   mapstructure:"source_path"   yaml:"source_path"`
	SchemaPath   string `json:"schema_path"   mapstructure:"schema_path"   yaml:"schema_path"`
}

// BuildConfig describes the external build tool.
type BuildConfig struct {
	Cmd        []string `json:"cmd"         mapstructure:"cmd"         yaml:"cmd"`
	UpdateCmd  []string `json:"update_cmd"  mapstructure:"update_cmd"  yaml:"update_cmd"`
	RetryLimit *int     `json:"retry_limit" mapstructure:"retry_limit" yaml:"retry_limit"`
}

// Retries returns how many consecutive build failures are retried. Zero fails on the first one.
func (b BuildConfig) Retries() int {
	if b.RetryLimit == nil {
		return defaultRetryLimit
	}
	return *b.RetryLimit
}

// ServerConfig describes how the built artifact is launched and reached.
type ServerConfig struct {
	Cmd  []string `json:"cmd"  mapstructure:"cmd"  yaml:"cmd"`
	Host string   `json:"host" mapstructure:"host" yaml:"host"`
	Port int      `json:"port" mapstructure:"port" yaml:"port"`
}

// BaseURL returns the URL validated endpoints are resolved against.
func (s ServerConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", s.Host, s.Port)
}

// ValidateConfig holds live validation timings.
type ValidateConfig struct {
	Warmup       time.Duration `json:"warmup"        mapstructure:"warmup"        yaml:"warmup"`
	PollInterval time.Duration `json:"poll_interval" mapstructure:"poll_interval" yaml:"poll_interval"`
	ProbeTimeout time.Duration `json:"probe_timeout" mapstructure:"probe_timeout" yaml:"probe_timeout"`
}

// GeneratorConfig selects and configures the code generator.
type GeneratorConfig struct {
	Provider    string        `json:"provider"              mapstructure:"provider"    yaml:"provider"`
	Model       string        `json:"model,omitempty"       mapstructure:"model"       yaml:"model,omitempty"`
	BaseURL     string        `json:"base_url,omitempty"    mapstructure:"base_url"    yaml:"base_url,omitempty"`
	APIKey      string        `json:"api_key,omitempty"     mapstructure:"api_key"     yaml:"api_key,omitempty"`
	APIKeyEnv   string        `json:"api_key_env,omitempty" mapstructure:"api_key_env" yaml:"api_key_env,omitempty"`
	Temperature float32       `json:"temperature"           mapstructure:"temperature" yaml:"temperature"`
	Timeout     time.Duration `json:"timeout,omitempty"     mapstructure:"timeout"     yaml:"timeout,omitempty"`
	Cmd         []string      `json:"cmd,omitempty"         mapstructure:"cmd"         yaml:"cmd,omitempty"`
	UseTTY      *bool         `json:"use_tty,omitempty"     mapstructure:"use_tty"     yaml:"use_tty,omitempty"`
}

// ProgressConfig tunes the terminal indicator. A zero Interval keeps the frame rate of Style.
type ProgressConfig struct {
	Interval time.Duration `json:"interval" mapstructure:"interval" yaml:"interval,omitempty"`
	Style    string        `json:"style"    mapstructure:"style"    yaml:"style"`
}

// RetentionPolicy defines how many old runs to keep.
type RetentionPolicy struct {
	KeepLast int `json:"keep_last,omitempty" mapstructure:"keep_last" yaml:"keep_last,omitempty"`
	KeepDays int `json:"keep_days,omitempty" mapstructure:"keep_days" yaml:"keep_days,omitempty"`
}

// Default returns the configuration for the default language preset.
func Default() Config {
	var cfg Config
	cfg.Language = LanguageRust
	if err := cfg.ApplyDefaults(); err != nil {
		panic(err)
	}
	return cfg
}

// ApplyDefaults fills every unset field from the language preset and global defaults.
func (c *Config) ApplyDefaults() error {
	if c.Language == "" {
		c.Language = LanguageRust
	}
	c.Language = strings.ToLower(c.Language)
	preset, ok := presets[c.Language]
	if !ok {
		return fmt.Errorf("unknown language %q", c.Language)
	}

	if c.Project.Dir == "" {
		c.Project.Dir = preset.dir
	}
	if c.Project.TemplatePath == "" {
		c.Project.TemplatePath = filepath.Join(c.Project.Dir, preset.templatePath)
	}
	if c.Project.SourcePath == "" {
		c.Project.SourcePath = filepath.Join(c.Project.Dir, preset.sourcePath)
	}
	if c.Project.SchemaPath == "" {
		c.Project.SchemaPath = filepath.Join("schemas", "api_schema.json")
	}
	if len(c.Build.Cmd) == 0 {
		c.Build.Cmd = preset.buildCmd
	}
	if len(c.Build.UpdateCmd) == 0 {
		c.Build.UpdateCmd = preset.updateCmd
	}
	if c.Build.RetryLimit == nil {
		limit := defaultRetryLimit
		c.Build.RetryLimit = &limit
	}
	if len(c.Server.Cmd) == 0 {
		c.Server.Cmd = preset.runCmd
	}
	if c.Server.Host == "" {
		c.Server.Host = defaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Validate.Warmup <= 0 {
		c.Validate.Warmup = defaultWarmup
	}
	if c.Validate.PollInterval <= 0 {
		c.Validate.PollInterval = defaultPollInterval
	}
	if c.Validate.ProbeTimeout <= 0 {
		c.Validate.ProbeTimeout = defaultProbeTimeout
	}
	if c.Generator.Provider == "" {
		c.Generator.Provider = defaultProvider
	}
	if c.Progress.Style == "" {
		c.Progress.Style = "hammer"
	}
	return nil
}

// Check verifies cross-field constraints after defaults were applied.
func (c Config) Check() error {
	switch c.Generator.Provider {
	case ProviderOpenAI, ProviderGemini:
	case ProviderExec:
		if len(c.Generator.Cmd) == 0 {
			return fmt.Errorf("generator.cmd is required for the exec provider")
		}
	default:
		return fmt.Errorf("unknown generator provider %q", c.Generator.Provider)
	}
	if len(c.Build.Cmd) == 0 {
		return fmt.Errorf("build.cmd must not be empty")
	}
	if len(c.Server.Cmd) == 0 {
		return fmt.Errorf("server.cmd must not be empty")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be within 1..65535, got %d", c.Server.Port)
	}
	return nil
}
