package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/harun/toolbelt/pkg/schema"
	"github.com/harun/toolbelt/pkg/tool"
	"github.com/harun/toolbelt/pkg/toolbox"
)

// Loader reads declarative toolkit files and turns them into toolboxes.
type Loader struct {
	logger       zerolog.Logger
	catalog      *Catalog
	schemaLoader gojsonschema.JSONLoader
	builderOpts  []toolbox.Option
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithCatalog sets the catalog native tools are resolved against.
func WithCatalog(c *Catalog) LoaderOption {
	return func(l *Loader) {
		l.catalog = c
	}
}

// WithLogger sets the loader logger.
func WithLogger(logger zerolog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithToolboxOptions passes options to every toolbox builder the loader creates.
func WithToolboxOptions(opts ...toolbox.Option) LoaderOption {
	return func(l *Loader) {
		l.builderOpts = append(l.builderOpts, opts...)
	}
}

// NewLoader creates a toolkit loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		logger:       log.Logger,
		catalog:      NewCatalog(),
		schemaLoader: gojsonschema.NewStringLoader(DefinitionSchema),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With().Str("component", "toolkit-loader").Logger()
	return l
}

// IsToolkitFile reports whether path has a toolkit file extension.
func IsToolkitFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// LoadFile reads and validates a toolkit file.
func (l *Loader) LoadFile(path string) (*ToolkitFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read toolkit file: %w", err)
	}

	file, err := l.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	l.logger.Debug().
		Str("path", path).
		Str("namespace", file.Name).
		Int("tools", len(file.Tools)).
		Msg("Loaded toolkit file")

	return file, nil
}

// Parse decodes a YAML or JSON toolkit document and validates it.
func (l *Loader) Parse(data []byte) (*ToolkitFile, error) {
	// YAML is a superset of JSON, so one decoder serves both formats.
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse toolkit: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("toolkit document is empty")
	}

	doc, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode toolkit: %w", err)
	}

	if err := l.validateSchema(doc); err != nil {
		return nil, fmt.Errorf("toolkit schema validation failed: %w", err)
	}

	var file ToolkitFile
	if err := json.Unmarshal(doc, &file); err != nil {
		return nil, fmt.Errorf("failed to decode toolkit: %w", err)
	}

	if err := validateFile(&file); err != nil {
		return nil, err
	}

	return &file, nil
}

func (l *Loader) validateSchema(doc []byte) error {
	result, err := gojsonschema.Validate(l.schemaLoader, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, resErr := range result.Errors() {
			msgs = append(msgs, resErr.String())
		}
		return fmt.Errorf("schema validation errors: %s", strings.Join(msgs, "; "))
	}

	return nil
}

// validateFile checks what the JSON Schema cannot: semver syntax and the
// fields each implementation kind requires.
func validateFile(file *ToolkitFile) error {
	if file.Version != "" {
		if _, err := semver.StrictNewVersion(file.Version); err != nil {
			return fmt.Errorf("invalid toolkit version %q: %w", file.Version, err)
		}
	}

	for name, def := range file.Tools {
		impl := def.Implementation
		switch tool.Kind(impl.Kind) {
		case tool.KindNative:
			if impl.Function == "" {
				return fmt.Errorf("tool %s: native implementation requires function", name)
			}
		case tool.KindHTTP:
			if impl.URL == "" {
				return fmt.Errorf("tool %s: http implementation requires url", name)
			}
		case tool.KindRemote:
			if impl.Service == "" {
				return fmt.Errorf("tool %s: remote implementation requires service", name)
			}
		default:
			return fmt.Errorf("tool %s: unsupported implementation kind %q", name, impl.Kind)
		}

		if v := def.Metadata.Version; v != "" {
			if _, err := semver.StrictNewVersion(v); err != nil {
				return fmt.Errorf("tool %s: invalid version %q: %w", name, v, err)
			}
		}
		if c := def.Implementation.Version; c != "" {
			if _, err := semver.NewConstraint(c); err != nil {
				return fmt.Errorf("tool %s: invalid service version constraint %q: %w", name, c, err)
			}
		}
	}

	return nil
}

// Apply adds every tool declared in file to the matching namespace of b.
func (l *Loader) Apply(b *Builder, file *ToolkitFile) error {
	tb := b.Toolbox(file.Name)

	if file.Description != "" || file.Version != "" || file.Author != "" {
		tb.WithMetadata(tool.Metadata{
			Name:        file.Name,
			Description: file.Description,
			Version:     file.Version,
			Author:      file.Author,
		})
	}

	names := make([]string, 0, len(file.Tools))
	for name := range file.Tools {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		t, err := l.buildTool(name, file.Tools[name])
		if err != nil {
			return fmt.Errorf("toolkit %s: %w", file.Name, err)
		}
		if err := tb.AddTool(t); err != nil {
			return err
		}
	}

	return nil
}

// LoadDir loads every toolkit file under dir into a new workspace owned by owner.
func (l *Loader) LoadDir(dir, owner string) (*Workspace, error) {
	return l.LoadDirs(owner, dir)
}

// LoadDirs loads toolkit files from several directories into one workspace.
// Files are applied in lexical path order, so a later file re-declaring a
// tool overwrites the earlier one.
func (l *Loader) LoadDirs(owner string, dirs ...string) (*Workspace, error) {
	b := NewBuilder(owner, l.builderOpts...)

	for _, dir := range dirs {
		paths, err := l.findToolkitFiles(dir)
		if err != nil {
			return nil, err
		}

		for _, path := range paths {
			file, err := l.LoadFile(path)
			if err != nil {
				return nil, err
			}
			if err := l.Apply(b, file); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
		}
	}

	ws := b.Build()
	l.logger.Info().
		Str("owner", owner).
		Strs("namespaces", ws.Namespaces()).
		Int("tools", ws.Len()).
		Msg("Workspace loaded")

	return ws, nil
}

func (l *Loader) findToolkitFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Debug().Str("dir", dir).Msg("Toolkit directory does not exist, skipping")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat toolkit directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("toolkit path %s is not a directory", dir)
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || !IsToolkitFile(path) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan toolkit directory: %w", err)
	}

	sort.Strings(paths)
	return paths, nil
}

func (l *Loader) buildTool(name string, def ToolDefinition) (tool.Tool, error) {
	implDef := def.Implementation

	var in, out *schema.Schema
	var err error
	if implDef.InputSchema != nil {
		if in, err = schema.New(implDef.InputSchema); err != nil {
			return tool.Tool{}, fmt.Errorf("tool %s: input schema: %w", name, err)
		}
	}
	if implDef.OutputSchema != nil {
		if out, err = schema.New(implDef.OutputSchema); err != nil {
			return tool.Tool{}, fmt.Errorf("tool %s: output schema: %w", name, err)
		}
	}

	var impl tool.Implementation
	switch tool.Kind(implDef.Kind) {
	case tool.KindNative:
		fn, ok := l.catalog.Lookup(implDef.Function)
		if !ok {
			return tool.Tool{}, fmt.Errorf("tool %s: function %q is not registered", name, implDef.Function)
		}
		impl = tool.NativeFunction{Func: fn, InputSchema: in, OutputSchema: out}

	case tool.KindHTTP:
		var timeout time.Duration
		if implDef.Timeout != "" {
			if timeout, err = time.ParseDuration(implDef.Timeout); err != nil {
				return tool.Tool{}, fmt.Errorf("tool %s: invalid timeout: %w", name, err)
			}
		}
		impl = tool.HTTPEndpoint{
			URL:          implDef.URL,
			Method:       implDef.Method,
			Headers:      expandEnv(implDef.Headers),
			BodyMapping:  implDef.BodyMapping,
			Timeout:      timeout,
			InputSchema:  in,
			OutputSchema: out,
		}

	case tool.KindRemote:
		impl = tool.RemoteProcedure{
			Service:      implDef.Service,
			Version:      implDef.Version,
			InputSchema:  in,
			OutputSchema: out,
		}

	default:
		return tool.Tool{}, fmt.Errorf("tool %s: unsupported implementation kind %q", name, implDef.Kind)
	}

	return tool.Tool{
		Definition: tool.Definition{
			Name:        name,
			Description: def.Metadata.Description,
			Version:     def.Metadata.Version,
			Tags:        def.Metadata.Tags,
			Author:      def.Metadata.Author,
		},
		Implementation: impl,
	}, nil
}

// expandEnv substitutes ${VAR} references in header values so credentials
// stay out of toolkit files.
func expandEnv(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	expanded := make(map[string]string, len(headers))
	for k, v := range headers {
		expanded[k] = os.ExpandEnv(v)
	}
	return expanded
}
