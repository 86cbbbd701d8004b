package gateway

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Built-in PII detectors. Caller-supplied values are redacted first so a
// specific prefix (e.g. IP_SRC) wins over the generic IP detector.
var (
	ipv4Pattern  = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
)

// RedactionMap is the per-request bidirectional real ⇄ placeholder mapping.
// Request-scoped, never shared across requests; the same real value always
// yields the same placeholder within one request.
type RedactionMap struct {
	realToPlaceholder map[string]string
	placeholderToReal map[string]string
	counters          map[string]int
}

// NewRedactionMap creates an empty request-scoped map.
func NewRedactionMap() *RedactionMap {
	return &RedactionMap{
		realToPlaceholder: make(map[string]string),
		placeholderToReal: make(map[string]string),
		counters:          make(map[string]int),
	}
}

// Placeholder returns the stable placeholder for a real value, allocating
// the next counter for the prefix on first sight (USER_001, IP_SRC_002, …).
func (m *RedactionMap) Placeholder(real, prefix string) string {
	if p, ok := m.realToPlaceholder[real]; ok {
		return p
	}
	m.counters[prefix]++
	p := fmt.Sprintf("%s_%03d", prefix, m.counters[prefix])
	m.realToPlaceholder[real] = p
	m.placeholderToReal[p] = real
	return p
}

// Real resolves a placeholder back to its original value.
func (m *RedactionMap) Real(placeholder string) (string, bool) {
	real, ok := m.placeholderToReal[placeholder]
	return real, ok
}

// Len returns the number of redacted values.
func (m *RedactionMap) Len() int {
	return len(m.realToPlaceholder)
}

// Pairs returns a copy of the real → placeholder mapping, for encrypted
// at-rest audit storage.
func (m *RedactionMap) Pairs() map[string]string {
	out := make(map[string]string, len(m.realToPlaceholder))
	for k, v := range m.realToPlaceholder {
		out[k] = v
	}
	return out
}

// Redactor pseudonymises PII before text leaves for an LLM provider.
type Redactor struct{}

// NewRedactor returns a redactor over the built-in detectors.
func NewRedactor() *Redactor {
	return &Redactor{}
}

// Redact replaces caller-supplied values and detected IPs/emails with
// stable placeholders, recording every substitution in the map. Custom
// values run first, longest first, so overlapping values cannot corrupt
// each other's placeholders.
func (r *Redactor) Redact(text string, custom map[string]string, rmap *RedactionMap) string {
	out := text

	customValues := make([]string, 0, len(custom))
	for v := range custom {
		if v != "" {
			customValues = append(customValues, v)
		}
	}
	sort.Slice(customValues, func(i, j int) bool {
		if len(customValues[i]) != len(customValues[j]) {
			return len(customValues[i]) > len(customValues[j])
		}
		return customValues[i] < customValues[j]
	})
	for _, v := range customValues {
		if !strings.Contains(out, v) {
			continue
		}
		out = strings.ReplaceAll(out, v, rmap.Placeholder(v, custom[v]))
	}

	out = ipv4Pattern.ReplaceAllStringFunc(out, func(ip string) string {
		return rmap.Placeholder(ip, "IP")
	})
	out = emailPattern.ReplaceAllStringFunc(out, func(email string) string {
		return rmap.Placeholder(email, "USER")
	})
	return out
}

// Deanonymise restores real values, replacing longest placeholders first so
// a placeholder that happens to prefix another (USER_001 vs USER_0011) can
// never be clobbered by a shorter replacement.
func (r *Redactor) Deanonymise(text string, rmap *RedactionMap) string {
	placeholders := make([]string, 0, len(rmap.placeholderToReal))
	for p := range rmap.placeholderToReal {
		placeholders = append(placeholders, p)
	}
	sort.Slice(placeholders, func(i, j int) bool {
		if len(placeholders[i]) != len(placeholders[j]) {
			return len(placeholders[i]) > len(placeholders[j])
		}
		return placeholders[i] < placeholders[j]
	})
	out := text
	for _, p := range placeholders {
		out = strings.ReplaceAll(out, p, rmap.placeholderToReal[p])
	}
	return out
}
