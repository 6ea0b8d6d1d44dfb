// Package remote locates and calls services that back RemoteProcedure tools.
//
// A Resolver turns a service slug and an optional semver constraint into a
// Service. Resolvers can be chained: StaticResolver serves in-process
// registrations, PluginResolver launches go-plugin processes described by
// service.json manifests, and MCPResolver talks to Model Context Protocol
// servers over stdio.
package remote

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"
)

// ErrServiceNotFound is returned when no resolver knows a slug or no
// registered version satisfies the constraint.
var ErrServiceNotFound = errors.New("remote service not found")

// Service executes one remote procedure.
type Service interface {
	Execute(ctx context.Context, input interface{}) (interface{}, error)
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context, input interface{}) (interface{}, error)

// Execute calls f.
func (f ServiceFunc) Execute(ctx context.Context, input interface{}) (interface{}, error) {
	return f(ctx, input)
}

// Resolver locates a service by slug. version is a semver constraint such as
// "^1.2"; empty accepts any version.
type Resolver interface {
	Resolve(ctx context.Context, slug, version string) (Service, error)
}

// Chain tries each resolver in order and returns the first match. Errors
// other than ErrServiceNotFound stop the search.
type Chain []Resolver

// Resolve implements Resolver.
func (c Chain) Resolve(ctx context.Context, slug, version string) (Service, error) {
	for _, r := range c {
		svc, err := r.Resolve(ctx, slug, version)
		if err == nil {
			return svc, nil
		}
		if !errors.Is(err, ErrServiceNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, slug)
}

type versioned struct {
	version *semver.Version
	service Service
}

// StaticResolver serves services registered in-process.
type StaticResolver struct {
	mu       sync.RWMutex
	services map[string][]versioned
}

// NewStaticResolver creates an empty resolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{
		services: make(map[string][]versioned),
	}
}

// Register adds svc under slug at version. version must be a valid semver
// version; empty means 0.0.0.
func (r *StaticResolver) Register(slug, version string, svc Service) error {
	if slug == "" {
		return fmt.Errorf("service slug cannot be empty")
	}
	if svc == nil {
		return fmt.Errorf("service %s cannot be nil", slug)
	}
	if version == "" {
		version = "0.0.0"
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("service %s: invalid version %q: %w", slug, version, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.services[slug]
	for _, e := range entries {
		if e.version.Equal(v) {
			return fmt.Errorf("service %s@%s already registered", slug, v)
		}
	}
	entries = append(entries, versioned{version: v, service: svc})
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].version.GreaterThan(entries[j].version)
	})
	r.services[slug] = entries
	return nil
}

// Resolve returns the highest registered version satisfying version.
func (r *StaticResolver) Resolve(ctx context.Context, slug, version string) (Service, error) {
	r.mu.RLock()
	entries := r.services[slug]
	r.mu.RUnlock()

	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, slug)
	}

	versions := make([]*semver.Version, len(entries))
	for i, e := range entries {
		versions[i] = e.version
	}
	idx, err := selectVersion(versions, version)
	if err != nil {
		return nil, fmt.Errorf("service %s: %w", slug, err)
	}
	return entries[idx].service, nil
}

// selectVersion returns the index of the first version, in the given order,
// satisfying constraint. Callers pass versions sorted highest first.
func selectVersion(versions []*semver.Version, constraint string) (int, error) {
	if constraint == "" {
		return 0, nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return -1, fmt.Errorf("invalid version constraint %q: %w", constraint, err)
	}
	for i, v := range versions {
		if c.Check(v) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: no version satisfies %s", ErrServiceNotFound, constraint)
}
