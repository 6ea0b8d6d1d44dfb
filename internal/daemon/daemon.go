package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/toolbelt/internal/audit"
	"github.com/harun/toolbelt/internal/config"
	"github.com/harun/toolbelt/internal/logger"
	"github.com/harun/toolbelt/internal/metrics"
	"github.com/harun/toolbelt/internal/server"
	"github.com/harun/toolbelt/internal/tracing"
	"github.com/harun/toolbelt/pkg/executor"
	"github.com/harun/toolbelt/pkg/fanout"
	"github.com/harun/toolbelt/pkg/registry"
	"github.com/harun/toolbelt/pkg/remote"
	"github.com/harun/toolbelt/pkg/stdlib"
	"github.com/harun/toolbelt/pkg/toolbox"
	"github.com/harun/toolbelt/pkg/workspace"
)

// Daemon owns the registry, the executor and the services around them.
// Commands that only read or run tools use it without calling Start.
type Daemon struct {
	config  *config.Config
	logger  *logger.Logger
	log     zerolog.Logger
	metrics *metrics.Metrics

	loader    *workspace.Loader
	internal  *toolbox.Toolbox
	mergeOpts []registry.MergeOption
	holder    *registry.Holder
	reloadMu  sync.Mutex

	plugins  *remote.PluginResolver
	mcp      *remote.MCPResolver
	static   *remote.StaticResolver
	executor *executor.Executor
	audit    *audit.Logger

	watcher *workspace.Watcher
	server  *server.Server

	startTime      time.Time
	running        bool
	mu             sync.RWMutex
	tracingEnabled bool
}

// Status describes a running daemon.
type Status struct {
	Running   bool          `json:"running"`
	StartTime time.Time     `json:"start_time,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
	Tools     int           `json:"tools"`
}

// New wires a daemon from cfg and performs the initial registry load.
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	policy, err := fanout.ParsePolicy(cfg.Fanout.Policy)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		config:  cfg,
		logger:  log,
		log:     log.Component("daemon"),
		metrics: metrics.NewMetrics(),
		static:  remote.NewStaticResolver(),
	}

	stdlibCfg := stdlib.Config{
		News: stdlib.NewsConfig{
			BaseURL:  cfg.News.BaseURL,
			Limit:    cfg.Fanout.Limit,
			Policy:   policy,
			InFlight: d.metrics.FanoutInflight,
		},
		WeatherURL: cfg.HTTP.WeatherURL,
	}

	var tbOpts []toolbox.Option
	if cfg.Registry.RejectToolboxOverride {
		tbOpts = append(tbOpts, toolbox.WithNoOverride())
	}
	tbOpts = append(tbOpts, toolbox.WithLogger(log.Component("toolbox")))

	if !cfg.Registry.DisableInternalTools {
		d.internal = stdlib.Toolbox(stdlibCfg, tbOpts...)
	}

	catalog := workspace.NewCatalog()
	if err := stdlib.Register(catalog, stdlibCfg); err != nil {
		return nil, fmt.Errorf("failed to register internal functions: %w", err)
	}
	d.loader = workspace.NewLoader(
		workspace.WithCatalog(catalog),
		workspace.WithLogger(log.Zerolog()),
		workspace.WithToolboxOptions(tbOpts...),
	)

	d.mergeOpts, err = mergeOptions(cfg.Registry)
	if err != nil {
		return nil, err
	}
	d.mergeOpts = append(d.mergeOpts,
		registry.WithLogger(log.Zerolog()),
		registry.WithRecorder(d.metrics),
	)

	d.holder = registry.NewHolder(nil)
	if _, err := d.Reload(); err != nil {
		return nil, err
	}

	d.plugins = remote.NewPluginResolver(log.Zerolog(), cfg.Remote.ServiceDirs...)
	if err := d.plugins.Discover(); err != nil {
		d.log.Warn().Err(err).Msg("Failed to discover remote services")
	}

	d.mcp = remote.NewMCPResolver()
	for _, s := range cfg.Remote.MCPServers {
		d.mcp.AddServer(remote.NewMCPClient(remote.MCPServerConfig{
			Name:    s.Name,
			Command: s.Command,
			Args:    s.Args,
			Timeout: time.Duration(s.TimeoutSeconds) * time.Second,
		}, log.Zerolog()))
	}

	execOpts := []executor.Option{
		executor.WithResolver(remote.Chain{d.static, d.plugins, d.mcp}),
		executor.WithDefaultTimeout(time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second),
		executor.WithLogger(log.Zerolog()),
		executor.WithRecorder(d.metrics),
	}
	if cfg.Audit.Enabled {
		d.audit, err = audit.New(cfg.Audit.File)
		if err != nil {
			_ = d.Close()
			return nil, err
		}
		execOpts = append(execOpts, executor.WithAuditor(d.audit))
	}
	d.executor = executor.New(d.holder, execOpts...)

	return d, nil
}

func mergeOptions(cfg config.RegistryConfig) ([]registry.MergeOption, error) {
	var opts []registry.MergeOption

	switch cfg.Mode {
	case "", "override":
		opts = append(opts, registry.WithMode(registry.ModeOverride))
	case "strict":
		opts = append(opts, registry.WithMode(registry.ModeStrict))
	default:
		return nil, fmt.Errorf("unknown registry mode %q", cfg.Mode)
	}

	switch cfg.MetadataFallback {
	case "", "first-tool":
		opts = append(opts, registry.WithMetadataFallback(registry.FallbackFirstTool))
	case "none":
		opts = append(opts, registry.WithMetadataFallback(registry.FallbackNone))
	default:
		return nil, fmt.Errorf("unknown metadata fallback %q", cfg.MetadataFallback)
	}

	if cfg.QualifyOrganization {
		opts = append(opts, registry.WithQualifiedOrganization())
	}
	return opts, nil
}

// Reload loads the organization and project toolkits again, merges them
// with the internal tools and publishes the result. On failure the previous
// registry stays in place.
func (d *Daemon) Reload() (*registry.Registry, error) {
	d.reloadMu.Lock()
	defer d.reloadMu.Unlock()

	reg, err := d.build()
	d.metrics.RecordReload(err == nil)
	if err != nil {
		return nil, err
	}

	d.holder.Swap(reg)
	d.log.Info().Int("tools", reg.Len()).Strs("namespaces", reg.Namespaces()).Msg("Registry published")
	return reg, nil
}

func (d *Daemon) build() (*registry.Registry, error) {
	tk := d.config.Toolkits

	org, err := d.loader.LoadDirs(tk.Organization, tk.OrganizationDirs...)
	if err != nil {
		return nil, fmt.Errorf("failed to load organization toolkits: %w", err)
	}
	project, err := d.loader.LoadDirs(tk.Project, tk.ProjectDirs...)
	if err != nil {
		return nil, fmt.Errorf("failed to load project toolkits: %w", err)
	}

	return registry.Merge(registry.Sources{
		Internal:     d.internal,
		Organization: org,
		Project:      project,
	}, d.mergeOpts...)
}

// Start begins watching toolkit directories and serving HTTP when enabled.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	if d.config.Tracing.Enabled {
		err := tracing.InitOpenTelemetry(tracing.Config{
			ServiceName: d.config.Tracing.ServiceName,
			SampleRatio: d.config.Tracing.SampleRatio,
		})
		if err != nil {
			d.log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			d.tracingEnabled = true
			d.log.Info().Msg("Tracing initialized")
		}
	}

	if d.config.Toolkits.Watch {
		dirs := append(append([]string{}, d.config.Toolkits.OrganizationDirs...), d.config.Toolkits.ProjectDirs...)
		w, err := workspace.NewWatcher(workspace.WatcherConfig{
			Dirs:     dirs,
			Debounce: time.Duration(d.config.Toolkits.DebounceMs) * time.Millisecond,
			OnReload: func() error {
				_, err := d.Reload()
				return err
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create toolkit watcher: %w", err)
		}
		if err := w.Start(); err != nil {
			return fmt.Errorf("failed to start toolkit watcher: %w", err)
		}
		d.watcher = w
	}

	srvCfg := server.Config{
		Host:   d.config.Server.Host,
		Port:   d.config.Server.Port,
		Tools:  d.holder,
		Runner: d.executor,
		Logger: d.logger.Component("server"),
	}
	if d.config.Metrics.Enabled {
		srvCfg.MetricsPath = d.config.Metrics.Path
		srvCfg.Metrics = d.metrics.Handler()
	}
	srv, err := server.New(srvCfg)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	d.server = srv

	d.log.Info().Msg("Toolbelt daemon started")
	return nil
}

// Stop shuts down the server and the watcher and releases remote services.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	wasRunning := d.running
	d.running = false
	d.mu.Unlock()

	var errs []error
	if d.server != nil {
		if err := d.server.Stop(); err != nil {
			errs = append(errs, err)
		}
		d.server = nil
	}
	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			errs = append(errs, err)
		}
		d.watcher = nil
	}
	if err := d.Close(); err != nil {
		errs = append(errs, err)
	}
	if d.tracingEnabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
			errs = append(errs, err)
		}
		cancel()
		d.tracingEnabled = false
	}

	if wasRunning {
		d.log.Info().Msg("Toolbelt daemon stopped")
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to stop daemon: %v", errs)
	}
	return nil
}

// Close releases plugin processes, MCP servers and the audit log.
func (d *Daemon) Close() error {
	var firstErr error
	if d.audit != nil {
		if err := d.audit.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		d.audit = nil
	}
	if d.plugins != nil {
		if err := d.plugins.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if d.mcp != nil {
		if err := d.mcp.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{Running: d.running}
	if r := d.holder.Load(); r != nil {
		status.Tools = r.Len()
	}
	if d.running {
		status.StartTime = d.startTime
		status.Uptime = time.Since(d.startTime)
	}
	return status
}

// Registry returns the current registry snapshot.
func (d *Daemon) Registry() *registry.Registry {
	return d.holder.Load()
}

// Executor returns the tool executor.
func (d *Daemon) Executor() *executor.Executor {
	return d.executor
}

// Loader returns the toolkit file loader.
func (d *Daemon) Loader() *workspace.Loader {
	return d.loader
}

// Services returns the resolver for in-process remote services.
func (d *Daemon) Services() *remote.StaticResolver {
	return d.static
}

// Metrics returns the daemon metrics.
func (d *Daemon) Metrics() *metrics.Metrics {
	return d.metrics
}

// Addr returns the server address once started.
func (d *Daemon) Addr() string {
	if d.server == nil {
		return ""
	}
	return d.server.Addr()
}
