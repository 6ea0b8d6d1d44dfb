package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/harun/toolbelt/pkg/tool"
)

// maxResponseBytes caps how much of an HTTP tool response is read.
const maxResponseBytes = 10 << 20

var placeholderRegex = regexp.MustCompile(`\{([A-Za-z0-9_-]+)\}`)

// statusError is a non-2xx response.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return http.StatusText(e.status)
	}
	return fmt.Sprintf("%s: %s", http.StatusText(e.status), e.body)
}

func (e *Executor) runHTTP(ctx context.Context, impl tool.HTTPEndpoint, input interface{}) (interface{}, error) {
	fields, _ := input.(map[string]interface{})

	target, err := expandURL(impl.URL, fields)
	if err != nil {
		return nil, err
	}

	method := impl.EffectiveMethod()
	var body io.Reader
	if hasBody(method) {
		payload, err := json.Marshal(projectBody(input, impl.BodyMapping))
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	timeout := impl.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range impl.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{status: resp.StatusCode, body: truncate(string(data), 512)}
	}
	if len(data) > maxResponseBytes {
		return nil, fmt.Errorf("response exceeds %d bytes", maxResponseBytes)
	}

	return decodeBody(data), nil
}

// expandURL fills {field} placeholders from fields. Values in the path are
// path-escaped and values in the query are query-escaped.
func expandURL(template string, fields map[string]interface{}) (string, error) {
	query := strings.Index(template, "?")

	var missing []string
	var b strings.Builder
	last := 0
	for _, m := range placeholderRegex.FindAllStringSubmatchIndex(template, -1) {
		b.WriteString(template[last:m[0]])
		last = m[1]

		name := template[m[2]:m[3]]
		value, ok := fields[name]
		if !ok || value == nil {
			missing = append(missing, name)
			continue
		}

		s := formatValue(value)
		if query >= 0 && m[0] > query {
			b.WriteString(url.QueryEscape(s))
		} else {
			b.WriteString(url.PathEscape(s))
		}
	}
	b.WriteString(template[last:])

	if len(missing) > 0 {
		return "", fmt.Errorf("missing URL parameters: %s", strings.Join(missing, ", "))
	}
	return b.String(), nil
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}

func hasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

// projectBody returns input unchanged when mapping is empty, otherwise a
// new object with body key -> input[field].
func projectBody(input interface{}, mapping map[string]string) interface{} {
	if len(mapping) == 0 {
		return input
	}
	fields, _ := input.(map[string]interface{})

	body := make(map[string]interface{}, len(mapping))
	for key, field := range mapping {
		if v, ok := fields[field]; ok {
			body[key] = v
		}
	}
	return body
}

// decodeBody parses JSON. Anything else is returned as a string for the
// output schema to judge.
func decodeBody(data []byte) interface{} {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return string(data)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
