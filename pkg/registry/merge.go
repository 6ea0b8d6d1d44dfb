package registry

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/harun/toolbelt/pkg/tool"
	"github.com/harun/toolbelt/pkg/toolbox"
	"github.com/harun/toolbelt/pkg/workspace"
)

// Tier is a precedence level. Later tiers override earlier ones.
type Tier string

const (
	TierInternal     Tier = "internal"
	TierOrganization Tier = "organization"
	TierProject      Tier = "project"
)

// Sources are the three registration tiers, lowest precedence first.
// Any of them may be nil.
type Sources struct {
	Internal     *toolbox.Toolbox
	Organization *workspace.Workspace
	Project      *workspace.Workspace
}

// Mode controls how a full name registered by two tiers is handled.
type Mode int

const (
	// ModeOverride keeps the higher tier and logs a warning.
	ModeOverride Mode = iota
	// ModeStrict fails the merge with a RegistrationConflictError.
	ModeStrict
)

// MetadataFallback controls toolkit metadata when none was declared.
type MetadataFallback int

const (
	// FallbackFirstTool copies version, description and author from the
	// first tool of the toolkit by full name and marks the result Derived.
	FallbackFirstTool MetadataFallback = iota
	// FallbackNone leaves undeclared toolkit metadata empty.
	FallbackNone
)

// Recorder receives merge statistics.
type Recorder interface {
	RecordOverride(tier string)
	SetRegistrySize(tier string, n int)
}

type mergeConfig struct {
	mode       Mode
	qualifyOrg bool
	fallback   MetadataFallback
	logger     zerolog.Logger
	recorder   Recorder
}

// MergeOption configures Merge.
type MergeOption func(*mergeConfig)

// WithMode sets the collision mode. Default is ModeOverride.
func WithMode(mode Mode) MergeOption {
	return func(c *mergeConfig) {
		c.mode = mode
	}
}

// WithQualifiedOrganization registers organization tools as
// <owner>/<namespace>/<name> instead of <namespace>/<name>.
func WithQualifiedOrganization() MergeOption {
	return func(c *mergeConfig) {
		c.qualifyOrg = true
	}
}

// WithMetadataFallback sets how undeclared toolkit metadata is filled.
func WithMetadataFallback(f MetadataFallback) MergeOption {
	return func(c *mergeConfig) {
		c.fallback = f
	}
}

// WithLogger sets the logger used for merge warnings.
func WithLogger(logger zerolog.Logger) MergeOption {
	return func(c *mergeConfig) {
		c.logger = logger
	}
}

// WithRecorder reports merge statistics to r.
func WithRecorder(r Recorder) MergeOption {
	return func(c *mergeConfig) {
		c.recorder = r
	}
}

type merger struct {
	cfg      mergeConfig
	tools    map[string]Entry
	toolkits map[string]*toolkitEntry
	internal map[string]struct{}
	counts   map[Tier]int
}

// Merge builds a registry from the three tiers. Internal tools are keyed by
// simple name, organization and project tools by namespace/name. A full name
// supplied by more than one tier resolves to the highest tier.
func Merge(sources Sources, opts ...MergeOption) (*Registry, error) {
	cfg := mergeConfig{
		mode:     ModeOverride,
		fallback: FallbackFirstTool,
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.logger = cfg.logger.With().Str("component", "registry").Logger()

	m := &merger{
		cfg:      cfg,
		tools:    make(map[string]Entry),
		toolkits: make(map[string]*toolkitEntry),
		internal: make(map[string]struct{}),
		counts:   make(map[Tier]int),
	}

	if err := m.addInternal(sources.Internal); err != nil {
		return nil, err
	}

	orgPrefix := ""
	if cfg.qualifyOrg && sources.Organization != nil {
		orgPrefix = sources.Organization.Owner()
		if err := tool.ValidateSimpleName(orgPrefix); err != nil {
			return nil, fmt.Errorf("organization owner: %w", err)
		}
	}
	if err := m.addWorkspace(TierOrganization, sources.Organization, orgPrefix); err != nil {
		return nil, err
	}
	if err := m.addWorkspace(TierProject, sources.Project, ""); err != nil {
		return nil, err
	}

	if cfg.recorder != nil {
		for _, tier := range []Tier{TierInternal, TierOrganization, TierProject} {
			cfg.recorder.SetRegistrySize(string(tier), m.counts[tier])
		}
	}

	cfg.logger.Debug().
		Int("tools", len(m.tools)).
		Int("toolkits", len(m.toolkits)).
		Msg("Registry merged")

	return &Registry{
		tools:    m.tools,
		toolkits: m.toolkits,
		fallback: cfg.fallback,
	}, nil
}

func (m *merger) addInternal(tb *toolbox.Toolbox) error {
	if tb == nil {
		return nil
	}
	m.declareToolkit(tb.Namespace(), tb)

	for _, name := range tb.Names() {
		t, _ := tb.Get(name)
		if err := m.insert(Entry{FullName: name, Namespace: tb.Namespace(), Tier: TierInternal, Tool: t}); err != nil {
			return err
		}
		m.internal[name] = struct{}{}
	}
	return nil
}

func (m *merger) addWorkspace(tier Tier, ws *workspace.Workspace, prefix string) error {
	for _, ns := range ws.Namespaces() {
		if err := tool.ValidateSimpleName(ns); err != nil {
			return fmt.Errorf("%s namespace: %w", tier, err)
		}
		tb, _ := ws.Toolbox(ns)

		namespace := ns
		if prefix != "" {
			namespace = tool.FullName(prefix, ns)
		}
		m.declareToolkit(namespace, tb)

		for _, name := range tb.Names() {
			t, _ := tb.Get(name)
			if _, shadows := m.internal[name]; shadows {
				m.cfg.logger.Warn().
					Str("tool", tool.FullName(namespace, name)).
					Str("internal_tool", name).
					Str("tier", string(tier)).
					Msg("Tool shadows internal tool of the same name")
			}

			entry := Entry{
				FullName:  tool.FullName(namespace, name),
				Namespace: namespace,
				Tier:      tier,
				Tool:      t,
			}
			if err := m.insert(entry); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *merger) insert(e Entry) error {
	if prev, exists := m.tools[e.FullName]; exists {
		if m.cfg.mode == ModeStrict {
			return &tool.RegistrationConflictError{
				FullName: e.FullName,
				Existing: string(prev.Tier),
				Incoming: string(e.Tier),
			}
		}

		m.cfg.logger.Warn().
			Str("tool", e.FullName).
			Str("previous_tier", string(prev.Tier)).
			Str("tier", string(e.Tier)).
			Msg("Tool overridden by higher precedence tier")

		m.counts[prev.Tier]--
		if m.cfg.recorder != nil {
			m.cfg.recorder.RecordOverride(string(e.Tier))
		}
	}

	m.tools[e.FullName] = e
	m.counts[e.Tier]++
	m.toolkits[e.Namespace].members[e.FullName] = struct{}{}
	return nil
}

// declareToolkit registers namespace and records explicit metadata. Each call
// comes from a higher or equal tier than the last, so explicit metadata from
// the highest tier wins.
func (m *merger) declareToolkit(namespace string, tb *toolbox.Toolbox) {
	tk, ok := m.toolkits[namespace]
	if !ok {
		tk = &toolkitEntry{
			namespace: namespace,
			members:   make(map[string]struct{}),
		}
		m.toolkits[namespace] = tk
	}
	if meta, ok := tb.Metadata(); ok {
		meta.Name = namespace
		tk.metadata = &meta
	}
}
