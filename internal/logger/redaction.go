package logger

import (
	"io"
	"regexp"
)

// Redactor masks credentials that callers pass through request headers or
// ability input before they reach a log sink.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a redactor with the default patterns
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// Authorization header values
			regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._~+/=-]+`),
			regexp.MustCompile(`Basic\s+[a-zA-Z0-9+/=]{8,}`),

			// Application passwords: six groups of four characters
			regexp.MustCompile(`\b[a-zA-Z0-9]{4}(?: [a-zA-Z0-9]{4}){5}\b`),

			// Key/value secrets in JSON or query strings
			regexp.MustCompile(`(?i)"?(password|passwd|pwd)"?["\s:=]+[^\s",}]+"?`),
			regexp.MustCompile(`(?i)"?(api[_-]?key|secret|token)"?["\s:=]+"?[a-zA-Z0-9._-]{12,}"?`),
		},
	}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

// Redact masks sensitive substrings of s
func (r *Redactor) Redact(s string) string {
	for _, pattern := range r.patterns {
		s = pattern.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

// Wrap returns a writer that redacts before writing to w
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

// Write reports len(p) on success so zerolog does not treat the shorter
// redacted line as a short write.
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
