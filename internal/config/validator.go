package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ValidationErrors collects every problem found in a config.
type ValidationErrors []error

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// Unwrap lets errors.Is and errors.As see individual problems.
func (e ValidationErrors) Unwrap() []error {
	return e
}

// Validate checks cfg and returns ValidationErrors, or nil when valid.
func Validate(cfg *Config) error {
	var errs ValidationErrors

	if err := oneOf("registry.mode", cfg.Registry.Mode, "override", "strict"); err != nil {
		errs = append(errs, err)
	}
	if err := oneOf("registry.metadata_fallback", cfg.Registry.MetadataFallback, "first-tool", "none"); err != nil {
		errs = append(errs, err)
	}
	if err := oneOf("fanout.policy", cfg.Fanout.Policy, "fail-fast", "collect-all"); err != nil {
		errs = append(errs, err)
	}
	if err := oneOf("logging.level", strings.ToLower(cfg.Logging.Level), "trace", "debug", "info", "warn", "error"); err != nil {
		errs = append(errs, err)
	}

	for _, p := range cfg.Logging.RedactPatterns {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("logging.redact_patterns: invalid pattern %q: %v", p, err))
		}
	}

	if cfg.Fanout.Limit < 1 {
		errs = append(errs, fmt.Errorf("fanout.limit must be >= 1"))
	}
	if cfg.HTTP.TimeoutSeconds < 1 {
		errs = append(errs, fmt.Errorf("http.timeout_seconds must be >= 1"))
	}
	if cfg.Toolkits.DebounceMs < 0 {
		errs = append(errs, fmt.Errorf("toolkits.debounce_ms must be >= 0"))
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_ratio must be between 0 and 1"))
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535"))
	}

	if cfg.Registry.QualifyOrganization && cfg.Toolkits.Organization == "" {
		errs = append(errs, fmt.Errorf("toolkits.organization is required when registry.qualify_organization is set"))
	}

	for _, field := range []struct{ name, value string }{
		{"http.weather_url", cfg.HTTP.WeatherURL},
		{"news.base_url", cfg.News.BaseURL},
	} {
		if field.value == "" {
			continue
		}
		if u, err := url.Parse(field.value); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s must be an absolute URL", field.name))
		}
	}

	seen := make(map[string]bool)
	for i, s := range cfg.Remote.MCPServers {
		switch {
		case s.Name == "":
			errs = append(errs, fmt.Errorf("remote.mcp_servers[%d]: name is required", i))
		case strings.Contains(s.Name, "."):
			errs = append(errs, fmt.Errorf("remote.mcp_servers[%d]: name %q must not contain '.'", i, s.Name))
		case seen[s.Name]:
			errs = append(errs, fmt.Errorf("remote.mcp_servers[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true
		if s.Command == "" {
			errs = append(errs, fmt.Errorf("remote.mcp_servers[%d]: command is required", i))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("invalid %s %q (must be one of: %s)", field, value, strings.Join(allowed, ", "))
}
