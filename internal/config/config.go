package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config represents the main toolbelt configuration
type Config struct {
	// Registry merge behavior
	Registry RegistryConfig `json:"registry" mapstructure:"registry"`

	// Toolkit file locations
	Toolkits ToolkitsConfig `json:"toolkits" mapstructure:"toolkits"`

	// HTTP tool execution
	HTTP HTTPConfig `json:"http" mapstructure:"http"`

	// Remote services
	Remote RemoteConfig `json:"remote" mapstructure:"remote"`

	// Fan-out tools
	Fanout FanoutConfig `json:"fanout" mapstructure:"fanout"`

	// Internal news tool
	News NewsConfig `json:"news" mapstructure:"news"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics and tracing
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Audit trail of tool runs
	Audit AuditConfig `json:"audit" mapstructure:"audit"`

	// HTTP server for `toolbelt serve`
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// RegistryConfig controls how tiers are merged
type RegistryConfig struct {
	Mode                  string `json:"mode" mapstructure:"mode"` // override, strict
	QualifyOrganization   bool   `json:"qualify_organization" mapstructure:"qualify_organization"`
	MetadataFallback      string `json:"metadata_fallback" mapstructure:"metadata_fallback"` // first-tool, none
	DisableInternalTools  bool   `json:"disable_internal_tools" mapstructure:"disable_internal_tools"`
	RejectToolboxOverride bool   `json:"reject_toolbox_override" mapstructure:"reject_toolbox_override"`
}

// ToolkitsConfig lists where organization and project toolkit files live
type ToolkitsConfig struct {
	Organization     string   `json:"organization" mapstructure:"organization"`
	OrganizationDirs []string `json:"organization_dirs" mapstructure:"organization_dirs"`
	Project          string   `json:"project" mapstructure:"project"`
	ProjectDirs      []string `json:"project_dirs" mapstructure:"project_dirs"`
	Watch            bool     `json:"watch" mapstructure:"watch"`
	DebounceMs       int      `json:"debounce_ms" mapstructure:"debounce_ms"`
}

// HTTPConfig holds HTTP tool settings
type HTTPConfig struct {
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	WeatherURL     string `json:"weather_url" mapstructure:"weather_url"`
}

// RemoteConfig holds remote service settings
type RemoteConfig struct {
	ServiceDirs []string          `json:"service_dirs" mapstructure:"service_dirs"`
	MCPServers  []MCPServerConfig `json:"mcp_servers" mapstructure:"mcp_servers"`
}

// MCPServerConfig describes one MCP server process
type MCPServerConfig struct {
	Name           string   `json:"name" mapstructure:"name"`
	Command        string   `json:"command" mapstructure:"command"`
	Args           []string `json:"args" mapstructure:"args"`
	TimeoutSeconds int      `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// FanoutConfig bounds fan-out tools
type FanoutConfig struct {
	Limit  int    `json:"limit" mapstructure:"limit"`
	Policy string `json:"policy" mapstructure:"policy"` // fail-fast, collect-all
}

// NewsConfig configures the internal news tool
type NewsConfig struct {
	BaseURL string `json:"base_url" mapstructure:"base_url"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	// RedactPatterns are extra regular expressions masked in log output.
	RedactPatterns []string `json:"redact_patterns,omitempty" mapstructure:"redact_patterns"`
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" mapstructure:"service_name"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

// AuditConfig holds audit log settings
type AuditConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	File    string `json:"file" mapstructure:"file"` // default <data_dir>/audit.log
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Registry: RegistryConfig{
			Mode:             "override",
			MetadataFallback: "first-tool",
		},
		Toolkits: ToolkitsConfig{
			Organization: "org",
			Project:      "project",
			ProjectDirs:  []string{"toolkits"},
			DebounceMs:   200,
		},
		HTTP: HTTPConfig{
			TimeoutSeconds: 30,
		},
		Fanout: FanoutConfig{
			Limit:  5,
			Policy: "fail-fast",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			ServiceName: "toolbelt",
			SampleRatio: 1,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8088,
		},
	}
}

// DefaultDataDir returns ~/.toolbelt, or .toolbelt when there is no home directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".toolbelt"
	}
	return filepath.Join(home, ".toolbelt")
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
