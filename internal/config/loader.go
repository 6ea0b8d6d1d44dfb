package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. TOOLBELT_LOGGING_LEVEL.
const EnvPrefix = "TOOLBELT"

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}
	return filepath.Join(DefaultDataDir(), "toolbelt.yaml")
}

// Load reads the config file, applies environment overrides and fills
// derived paths. A missing file yields the defaults.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()
	defaults := DefaultConfig()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, defaults)

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		v.SetConfigType(configType(configPath))
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir()
	}
	if len(cfg.Toolkits.OrganizationDirs) == 0 {
		cfg.Toolkits.OrganizationDirs = []string{filepath.Join(cfg.DataDir, "toolkits")}
	}
	if cfg.Audit.Enabled && cfg.Audit.File == "" {
		cfg.Audit.File = filepath.Join(cfg.DataDir, "audit.log")
	}
	if len(cfg.Remote.ServiceDirs) == 0 {
		cfg.Remote.ServiceDirs = []string{filepath.Join(cfg.DataDir, "services")}
	}

	return cfg, nil
}

// setDefaults registers scalar defaults so environment variables override
// them even when no config file exists.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("registry.mode", d.Registry.Mode)
	v.SetDefault("registry.qualify_organization", d.Registry.QualifyOrganization)
	v.SetDefault("registry.metadata_fallback", d.Registry.MetadataFallback)
	v.SetDefault("registry.disable_internal_tools", d.Registry.DisableInternalTools)
	v.SetDefault("registry.reject_toolbox_override", d.Registry.RejectToolboxOverride)
	v.SetDefault("toolkits.organization", d.Toolkits.Organization)
	v.SetDefault("toolkits.project", d.Toolkits.Project)
	v.SetDefault("toolkits.project_dirs", d.Toolkits.ProjectDirs)
	v.SetDefault("toolkits.watch", d.Toolkits.Watch)
	v.SetDefault("toolkits.debounce_ms", d.Toolkits.DebounceMs)
	v.SetDefault("http.timeout_seconds", d.HTTP.TimeoutSeconds)
	v.SetDefault("http.weather_url", d.HTTP.WeatherURL)
	v.SetDefault("fanout.limit", d.Fanout.Limit)
	v.SetDefault("fanout.policy", d.Fanout.Policy)
	v.SetDefault("news.base_url", d.News.BaseURL)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.console", d.Logging.Console)
	v.SetDefault("logging.pretty", d.Logging.Pretty)
	v.SetDefault("logging.redaction", d.Logging.Redaction)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_ratio", d.Tracing.SampleRatio)
	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.file", d.Audit.File)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("data_dir", d.DataDir)
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
