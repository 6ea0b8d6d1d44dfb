package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolbelt/pkg/tool"
)

const mathToolkit = `
name: math
description: Project math helpers
version: 1.0.0
tools:
  calc:
    metadata:
      description: Evaluates arithmetic
      tags: [math]
    implementation:
      kind: native
      function: stdlib.calculator
      input_schema:
        type: object
        properties:
          expression: {type: string}
        required: [expression]
`

// setup writes a config pointing at a temporary project toolkit directory
// and returns its path.
func setup(t *testing.T) (configPath, projectDir string) {
	t.Helper()
	root := t.TempDir()
	projectDir = filepath.Join(root, "project")
	require.NoError(t, os.MkdirAll(projectDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "math.yaml"), []byte(mathToolkit), 0o644))

	configPath = filepath.Join(root, "toolbelt.yaml")
	content := fmt.Sprintf(`
data_dir: %s
toolkits:
  project_dirs: [%s]
logging:
  console: false
`, root, projectDir)
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
	return configPath, projectDir
}

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := GetRootCmd()
	cmd.SetArgs(args)

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestListCommand(t *testing.T) {
	cfg, _ := setup(t)

	t.Run("table", func(t *testing.T) {
		out, _, err := execute(t, "--config", cfg, "list")
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 5)
		assert.True(t, strings.HasPrefix(lines[0], "NAME"))
		assert.Contains(t, out, "math/calc")
		assert.Contains(t, out, "project")
		assert.Contains(t, out, "calculator")
	})

	t.Run("json by namespace", func(t *testing.T) {
		out, _, err := execute(t, "--config", cfg, "list", "--format", "json", "--namespace", "math")
		require.NoError(t, err)

		var infos []map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(out), &infos))
		require.Len(t, infos, 1)
		assert.Equal(t, "math/calc", infos[0]["name"])
		assert.Equal(t, "native", infos[0]["kind"])
	})

	t.Run("empty namespace", func(t *testing.T) {
		out, _, err := execute(t, "--config", cfg, "list", "-o", "json", "--namespace", "nope")
		require.NoError(t, err)
		assert.Equal(t, "[]", strings.TrimSpace(out))
	})
}

func TestListCommand_LLMFormats(t *testing.T) {
	cfg, _ := setup(t)

	out, _, err := execute(t, "--config", cfg, "list", "--format", "openai")
	require.NoError(t, err)

	var openaiTools []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &openaiTools))
	require.Len(t, openaiTools, 4)
	var names []string
	for _, tl := range openaiTools {
		assert.Equal(t, "function", tl["type"])
		names = append(names, tl["function"].(map[string]interface{})["name"].(string))
	}
	assert.Contains(t, names, "math__calc")

	out, _, err = execute(t, "--config", cfg, "list", "--format", "anthropic")
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "math__calc"`)
	assert.Contains(t, out, `"input_schema"`)

	_, _, err = execute(t, "--config", cfg, "list", "--format", "xml")
	assert.ErrorContains(t, err, "unknown format")
}

func TestDescribeCommand(t *testing.T) {
	cfg, _ := setup(t)

	out, _, err := execute(t, "--config", cfg, "describe", "math/calc")
	require.NoError(t, err)

	var info map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "math/calc", info["name"])
	assert.Equal(t, "project", info["tier"])
	assert.Contains(t, info, "input_schema")

	out, _, err = execute(t, "--config", cfg, "describe", "--toolkit", "math")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, []interface{}{"math/calc"}, info["tools"])
	assert.Equal(t, "1.0.0", info["metadata"].(map[string]interface{})["version"])

	_, _, err = execute(t, "--config", cfg, "describe", "math:calc")
	var notFound *tool.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Contains(t, notFound.Hint, "math/calc")
}

func TestRunCommand(t *testing.T) {
	cfg, _ := setup(t)

	t.Run("internal tool", func(t *testing.T) {
		out, _, err := execute(t, "--config", cfg, "run", "calculator", "--input", `{"expression": "2 + 2 * 5"}`)
		require.NoError(t, err)

		var result map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(out), &result))
		assert.Equal(t, 12.0, result["result"])
	})

	t.Run("toolkit tool from file", func(t *testing.T) {
		input := filepath.Join(t.TempDir(), "input.json")
		require.NoError(t, os.WriteFile(input, []byte(`{"expression": "2 ^ 3"}`), 0o644))

		out, _, err := execute(t, "--config", cfg, "run", "math/calc", "--input-file", input)
		require.NoError(t, err)
		assert.Contains(t, out, `"result": 8`)
	})

	t.Run("input from stdin", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"--config", cfg, "run", "math/calc", "-f", "-"})
		cmd.SetIn(strings.NewReader(`{"expression": "10 / 4"}`))
		out := &bytes.Buffer{}
		cmd.SetOut(out)

		require.NoError(t, cmd.Execute())
		assert.Contains(t, out.String(), `"result": 2.5`)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, stderr, err := execute(t, "--config", cfg, "run", "math/calc", "--input", `{}`)

		var runErr *RunError
		require.True(t, errors.As(err, &runErr))
		assert.Equal(t, tool.CodeInvalidInput, runErr.Body.Code)
		assert.Equal(t, []string{"expression"}, runErr.Body.Fields)
		assert.Contains(t, stderr, "TOOL_INVALID_INPUT")

		var inErr *tool.InputValidationError
		assert.ErrorAs(t, err, &inErr)
	})

	t.Run("unknown tool", func(t *testing.T) {
		_, _, err := execute(t, "--config", cfg, "run", "missing")
		var runErr *RunError
		require.True(t, errors.As(err, &runErr))
		assert.Equal(t, tool.CodeNotFound, runErr.Body.Code)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, _, err := execute(t, "--config", cfg, "run", "calculator", "--input", `{`)
		assert.ErrorContains(t, err, "input is not valid JSON")
	})

	t.Run("input flags are exclusive", func(t *testing.T) {
		_, _, err := execute(t, "--config", cfg, "run", "calculator", "--input", `{}`, "--input-file", "x.json")
		assert.Error(t, err)
	})
}

func TestValidateCommand(t *testing.T) {
	cfg, projectDir := setup(t)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
name: broken
tools:
  thing:
    implementation:
      kind: native
      function: does.not.exist
`), 0o644))

	out, _, err := execute(t, "--config", cfg, "validate", filepath.Join(projectDir, "math.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "ok")

	out, _, err = execute(t, "--config", cfg, "validate", filepath.Join(projectDir, "math.yaml"), bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 toolkit files are invalid")
	assert.Contains(t, out, "FAIL "+bad)
}

func TestStatusCommand(t *testing.T) {
	t.Run("running", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/healthz", r.URL.Path)
			_, _ = w.Write([]byte(`{"status":"ok","tools":4}`))
		}))
		defer ts.Close()

		out, _, err := execute(t, "status", "--addr", strings.TrimPrefix(ts.URL, "http://"))
		require.NoError(t, err)
		assert.Contains(t, out, "Status: ok")
		assert.Contains(t, out, "Tools: 4")
	})

	t.Run("stopped", func(t *testing.T) {
		ts := httptest.NewServer(http.NotFoundHandler())
		addr := strings.TrimPrefix(ts.URL, "http://")
		ts.Close()

		out, _, err := execute(t, "status", "--addr", addr)
		require.NoError(t, err)
		assert.Contains(t, out, "Status: stopped")
	})
}

func TestConfigCommand(t *testing.T) {
	cfg, projectDir := setup(t)

	out, _, err := execute(t, "--config", cfg, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "# "+cfg)
	assert.Contains(t, out, projectDir)

	t.Setenv("TOOLBELT_FANOUT_LIMIT", "0")
	_, _, err = execute(t, "--config", cfg, "config")
	assert.ErrorContains(t, err, "fanout.limit")
}

func TestInvalidConfigIsReported(t *testing.T) {
	cfg, _ := setup(t)
	t.Setenv("TOOLBELT_REGISTRY_MODE", "chaos")

	_, _, err := execute(t, "--config", cfg, "list")
	assert.ErrorContains(t, err, "invalid registry.mode")
}
