package logger

import (
	"io"
	"regexp"
)

const redacted = "[REDACTED]"

type redaction struct {
	pattern     *regexp.Regexp
	replacement string
}

// Redactor masks credentials that end up in log lines, typically through
// HTTP tool headers or upstream error bodies.
type Redactor struct {
	rules []redaction
}

// NewRedactor creates a redactor with the default patterns.
func NewRedactor() *Redactor {
	return &Redactor{
		rules: []redaction{
			// JSON fields written by zerolog keep their key
			{
				regexp.MustCompile(`(?i)("(?:api_?key|token|secret|password|authorization)"\s*:\s*")[^"]*(")`),
				"${1}" + redacted + "${2}",
			},
			// key=value pairs in URLs and messages
			{
				regexp.MustCompile(`(?i)\b((?:api_?key|access_token|token|secret|password)=)[^&\s"]+`),
				"${1}" + redacted,
			},
			// Authorization header values
			{
				regexp.MustCompile(`\b(Bearer|Basic)\s+[A-Za-z0-9._~+/=-]+`),
				"${1} " + redacted,
			},
			// Provider API keys
			{
				regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`),
				redacted,
			},
		},
	}
}

// AddPattern adds a custom redaction pattern. Whole matches are replaced.
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.rules = append(r.rules, redaction{pattern: re, replacement: redacted})
	return nil
}

// Redact redacts sensitive information from a string
func (r *Redactor) Redact(s string) string {
	for _, rule := range r.rules {
		s = rule.pattern.ReplaceAllString(s, rule.replacement)
	}
	return s
}

// Wrap wraps an io.Writer to redact sensitive information
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{
		writer:   w,
		redactor: r,
	}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success so callers do not see a short write when
// redaction changes the length.
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
