package remote

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/hashicorp/go-plugin"
	"github.com/rs/zerolog"
)

// DiscoveredService is a manifest found on disk.
type DiscoveredService struct {
	Manifest Manifest
	Dir      string
	version  *semver.Version
}

// Key identifies one service version.
func (d DiscoveredService) Key() string {
	return d.Manifest.Slug + "@" + d.Manifest.Version
}

// process is a started service process. *plugin.Client satisfies it.
type process interface {
	Exited() bool
	Kill()
}

// PluginResolver resolves services to go-plugin processes. Processes are
// started on first use and kept until Close; one that has exited is started
// again on the next Resolve.
type PluginResolver struct {
	logger   zerolog.Logger
	loader   *ManifestLoader
	dirs     []string
	services map[string][]DiscoveredService
	clients  map[string]process
	running  map[string]Service
	launch   func(DiscoveredService) (Service, process, error)
	mu       sync.Mutex
}

// NewPluginResolver creates a resolver scanning dirs for service manifests.
// Call Discover before Resolve.
func NewPluginResolver(logger zerolog.Logger, dirs ...string) *PluginResolver {
	r := &PluginResolver{
		logger:   logger.With().Str("component", "plugin-resolver").Logger(),
		loader:   NewManifestLoader(logger),
		dirs:     dirs,
		services: make(map[string][]DiscoveredService),
		clients:  make(map[string]process),
		running:  make(map[string]Service),
	}
	r.launch = r.launchPlugin
	return r
}

// Discover scans every directory for <dir>/<service>/service.json. Invalid
// manifests are logged and skipped.
func (r *PluginResolver) Discover() error {
	services := make(map[string][]DiscoveredService)

	for _, dir := range r.dirs {
		found, err := r.scanDirectory(dir)
		if err != nil {
			return err
		}
		for _, d := range found {
			services[d.Manifest.Slug] = append(services[d.Manifest.Slug], d)
		}
	}

	for slug := range services {
		entries := services[slug]
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].version.GreaterThan(entries[j].version)
		})
	}

	r.mu.Lock()
	r.services = services
	r.mu.Unlock()

	r.logger.Info().Int("count", len(services)).Msg("Service discovery completed")
	return nil
}

func (r *PluginResolver) scanDirectory(dir string) ([]DiscoveredService, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			r.logger.Debug().Str("dir", dir).Msg("Directory does not exist, skipping")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var discovered []DiscoveredService
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		serviceDir := filepath.Join(dir, entry.Name())
		manifestPath := filepath.Join(serviceDir, ManifestFile)
		if _, err := os.Stat(manifestPath); err != nil {
			continue
		}

		manifest, err := r.loader.LoadManifest(manifestPath)
		if err != nil {
			r.logger.Warn().Err(err).Str("dir", serviceDir).Msg("Skipping invalid service manifest")
			continue
		}

		discovered = append(discovered, DiscoveredService{
			Manifest: *manifest,
			Dir:      serviceDir,
			version:  semver.MustParse(manifest.Version),
		})
		r.logger.Debug().
			Str("slug", manifest.Slug).
			Str("version", manifest.Version).
			Str("path", serviceDir).
			Msg("Discovered service")
	}

	return discovered, nil
}

// Services returns every discovered service, highest version first per slug.
func (r *PluginResolver) Services() []DiscoveredService {
	r.mu.Lock()
	defer r.mu.Unlock()

	slugs := make([]string, 0, len(r.services))
	for slug := range r.services {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)

	var all []DiscoveredService
	for _, slug := range slugs {
		all = append(all, r.services[slug]...)
	}
	return all
}

// Resolve implements Resolver.
func (r *PluginResolver) Resolve(ctx context.Context, slug, version string) (Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	candidates := r.services[slug]
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, slug)
	}

	versions := make([]*semver.Version, len(candidates))
	for i, c := range candidates {
		versions[i] = c.version
	}
	idx, err := selectVersion(versions, version)
	if err != nil {
		return nil, fmt.Errorf("service %s: %w", slug, err)
	}
	selected := candidates[idx]

	key := selected.Key()
	if svc, ok := r.running[key]; ok {
		if !r.clients[key].Exited() {
			return svc, nil
		}
		r.logger.Warn().Str("service", key).Msg("Service process exited, restarting")
		r.clients[key].Kill()
		delete(r.clients, key)
		delete(r.running, key)
	}

	svc, proc, err := r.launch(selected)
	if err != nil {
		return nil, err
	}
	r.clients[key] = proc
	r.running[key] = svc
	r.logger.Info().
		Str("slug", selected.Manifest.Slug).
		Str("version", selected.Manifest.Version).
		Msg("Service process started")
	return svc, nil
}

func (r *PluginResolver) launchPlugin(d DiscoveredService) (Service, process, error) {
	path := filepath.Join(d.Dir, d.Manifest.Main)
	if _, err := os.Stat(path); err != nil {
		return nil, nil, fmt.Errorf("service executable not found: %s", path)
	}

	cmd := exec.Command(path, d.Manifest.Args...)
	cmd.Dir = d.Dir
	cmd.Env = os.Environ()
	for k, v := range d.Manifest.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  Handshake,
		Plugins:          PluginMap,
		Cmd:              cmd,
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, nil, fmt.Errorf("failed to connect to service %s: %w", d.Key(), err)
	}

	raw, err := rpcClient.Dispense(PluginName)
	if err != nil {
		client.Kill()
		return nil, nil, fmt.Errorf("failed to dispense service %s: %w", d.Key(), err)
	}

	svc, ok := raw.(Service)
	if !ok {
		client.Kill()
		return nil, nil, fmt.Errorf("service %s: unexpected plugin type %T", d.Key(), raw)
	}

	return svc, client, nil
}

// Close stops every service process.
func (r *PluginResolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, client := range r.clients {
		client.Kill()
		delete(r.clients, key)
		delete(r.running, key)
	}
	return nil
}
