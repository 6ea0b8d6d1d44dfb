package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolbelt/internal/config"
	"github.com/harun/toolbelt/internal/logger"
	"github.com/harun/toolbelt/pkg/registry"
	"github.com/harun/toolbelt/pkg/remote"
	"github.com/harun/toolbelt/pkg/tool"
)

const orgMath = `
name: math
tools:
  calc:
    metadata:
      description: organization calculator
    implementation:
      kind: native
      function: stdlib.calculator
  square:
    metadata:
      description: squares via the calculator
      version: 0.9.0
    implementation:
      kind: native
      function: stdlib.calculator
`

const projectMath = `
name: math
version: 2.0.0
description: project math
tools:
  calc:
    metadata:
      description: project calculator
    implementation:
      kind: native
      function: stdlib.calculator
      input_schema:
        type: object
        properties:
          expression: {type: string}
        required: [expression]
`

const projectGeo = `
name: geo
tools:
  solve:
    metadata:
      description: remote solver
    implementation:
      kind: remote
      service: solver
      version: "^1.0"
`

type fixture struct {
	cfg        *config.Config
	orgDir     string
	projectDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DataDir = root
	cfg.Toolkits.OrganizationDirs = []string{filepath.Join(root, "org")}
	cfg.Toolkits.ProjectDirs = []string{filepath.Join(root, "project")}
	cfg.Remote.ServiceDirs = []string{filepath.Join(root, "services")}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Toolkits.DebounceMs = 20

	f := &fixture{cfg: cfg, orgDir: cfg.Toolkits.OrganizationDirs[0], projectDir: cfg.Toolkits.ProjectDirs[0]}
	require.NoError(t, os.MkdirAll(f.orgDir, 0o755))
	require.NoError(t, os.MkdirAll(f.projectDir, 0o755))
	return f
}

func (f *fixture) write(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func (f *fixture) daemon(t *testing.T) *Daemon {
	t.Helper()
	log, err := logger.New(logger.Config{})
	require.NoError(t, err)

	d, err := New(f.cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Stop() })
	return d
}

func TestNew_MergesTiers(t *testing.T) {
	f := newFixture(t)
	f.write(t, f.orgDir, "math.yaml", orgMath)
	f.write(t, f.projectDir, "math.yaml", projectMath)

	d := f.daemon(t)
	reg := d.Registry()
	require.NotNil(t, reg)

	assert.Equal(t, []string{"calculator", "math/calc", "math/square", "news", "weather"}, reg.ListTools())

	calc, err := reg.Entry("math/calc")
	require.NoError(t, err)
	assert.Equal(t, registry.TierProject, calc.Tier)
	assert.Equal(t, "project calculator", calc.Tool.Definition.Description)

	square, err := reg.Entry("math/square")
	require.NoError(t, err)
	assert.Equal(t, registry.TierOrganization, square.Tier)

	m := d.Metrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RegistryOverridesTotal.WithLabelValues("project")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RegistryTools.WithLabelValues("internal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RegistryTools.WithLabelValues("organization")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RegistryTools.WithLabelValues("project")))
}

func TestNew_RunsToolkitTools(t *testing.T) {
	f := newFixture(t)
	f.write(t, f.projectDir, "math.yaml", projectMath)
	d := f.daemon(t)

	out, err := d.Executor().Run(context.Background(), "math/calc", map[string]interface{}{"expression": "(1 + 2) * 4"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"result": 12.0}, out)

	_, err = d.Executor().Run(context.Background(), "math/calc", map[string]interface{}{})
	var inErr *tool.InputValidationError
	assert.ErrorAs(t, err, &inErr)

	tk, err := d.Executor().Toolkit("math")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", tk.Metadata.Version)
	assert.False(t, tk.Metadata.Derived)
}

func TestNew_RemoteThroughStaticServices(t *testing.T) {
	f := newFixture(t)
	f.write(t, f.projectDir, "geo.yaml", projectGeo)
	d := f.daemon(t)

	require.NoError(t, d.Services().Register("solver", "1.3.0", remote.ServiceFunc(
		func(ctx context.Context, input interface{}) (interface{}, error) {
			return map[string]interface{}{"x": 2.0}, nil
		})))

	out, err := d.Executor().Run(context.Background(), "geo/solve", map[string]interface{}{"equation": "x + 1 = 3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"x": 2.0}, out)
}

func TestNew_StrictModeConflict(t *testing.T) {
	f := newFixture(t)
	f.cfg.Registry.Mode = "strict"
	f.write(t, f.orgDir, "math.yaml", orgMath)
	f.write(t, f.projectDir, "math.yaml", projectMath)

	log, err := logger.New(logger.Config{})
	require.NoError(t, err)

	_, err = New(f.cfg, log)
	var conflict *tool.RegistrationConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "math/calc", conflict.FullName)
}

func TestNew_DisableInternalTools(t *testing.T) {
	f := newFixture(t)
	f.cfg.Registry.DisableInternalTools = true
	d := f.daemon(t)
	assert.Equal(t, 0, d.Registry().Len())
}

func TestNew_InvalidSettings(t *testing.T) {
	log, err := logger.New(logger.Config{})
	require.NoError(t, err)

	cfg := newFixture(t).cfg
	cfg.Fanout.Policy = "sometimes"
	_, err = New(cfg, log)
	assert.ErrorContains(t, err, "unknown fan-out policy")

	cfg = newFixture(t).cfg
	cfg.Registry.Mode = "loose"
	_, err = New(cfg, log)
	assert.ErrorContains(t, err, "unknown registry mode")
}

func TestReload_KeepsPreviousRegistryOnError(t *testing.T) {
	f := newFixture(t)
	f.write(t, f.projectDir, "math.yaml", projectMath)
	d := f.daemon(t)
	before := d.Registry()

	f.write(t, f.projectDir, "broken.yaml", "name: [unterminated")
	_, err := d.Reload()
	require.Error(t, err)
	assert.Same(t, before, d.Registry())

	require.NoError(t, os.Remove(filepath.Join(f.projectDir, "broken.yaml")))
	f.write(t, f.projectDir, "geo.yaml", projectGeo)
	reg, err := d.Reload()
	require.NoError(t, err)
	assert.Same(t, reg, d.Registry())
	assert.Contains(t, reg.ListTools(), "geo/solve")

	m := d.Metrics()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RegistryReloadsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RegistryReloadsTotal.WithLabelValues("failure")))
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)
	f.cfg.Toolkits.Watch = true
	d := f.daemon(t)

	require.NoError(t, d.Start())
	assert.Error(t, d.Start())

	status := d.Status()
	assert.True(t, status.Running)
	assert.Equal(t, 3, status.Tools)

	resp, err := http.Get("http://" + d.Addr() + "/healthz")
	require.NoError(t, err)
	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "ok", health["status"])

	resp, err = http.Get("http://" + d.Addr() + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// The watcher picks up new toolkit files.
	f.write(t, f.projectDir, "math.yaml", projectMath)
	assert.Eventually(t, func() bool {
		_, err := d.Registry().GetTool("math/calc")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, d.Stop())
	assert.False(t, d.Status().Running)
	assert.Empty(t, d.Addr())
}

func TestNew_AuditLog(t *testing.T) {
	f := newFixture(t)
	f.cfg.Audit.Enabled = true
	f.cfg.Audit.File = filepath.Join(f.cfg.DataDir, "logs", "audit.log")
	d := f.daemon(t)

	_, err := d.Executor().Run(context.Background(), "calculator", map[string]interface{}{"expression": "6 * 7"})
	require.NoError(t, err)
	_, err = d.Executor().Run(context.Background(), "missing", nil)
	require.Error(t, err)
	require.NoError(t, d.Close())

	data, err := os.ReadFile(f.cfg.Audit.File)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var first, second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "calculator", first["tool"])
	assert.Equal(t, "success", first["outcome"])
	assert.Equal(t, "missing", second["tool"])
	assert.Equal(t, "TOOL_NOT_FOUND", second["code"])
}
