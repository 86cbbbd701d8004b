package gateway

import (
	"regexp"
)

// Replacement markers for sanitised input. Markup gets its own marker so
// analysts reviewing a redacted prompt can tell fenced blocks from inline
// injection attempts.
const (
	RedactedInjection = "[REDACTED_INJECTION_ATTEMPT]"
	RedactedMarkup    = "[REDACTED_MARKUP]"
)

// injectionPattern is one entry of the ordered sanitisation table.
type injectionPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// injectionPatterns is the fixed, ordered sanitisation table. Append-only:
// ordering matters, with longer and more specific patterns first so a broad
// pattern never eats the prefix of a narrow one. Compiled once at package
// init; reloading requires a restart to keep detection deterministic.
var injectionPatterns = []injectionPattern{
	{
		Name:        "fenced system markup",
		Regex:       regexp.MustCompile(`(?is)<\s*/?\s*(system|assistant|tool_use|tool_result|function_call)\b[^>]*>`),
		Replacement: RedactedMarkup,
	},
	{
		Name:        "fenced code block with role header",
		Regex:       regexp.MustCompile("(?is)```\\s*(system|assistant|tool)\\b.*?```"),
		Replacement: RedactedMarkup,
	},
	{
		Name:        "system prompt extraction",
		Regex:       regexp.MustCompile(`(?i)(repeat|print|reveal|show|output)\s+(me\s+)?(your|the)\s+(system\s+prompt|initial\s+instructions|hidden\s+instructions)`),
		Replacement: RedactedInjection,
	},
	{
		Name:        "instruction override",
		Regex:       regexp.MustCompile(`(?i)(ignore|disregard|forget|override)\s+(all\s+|any\s+)?(previous|prior|above|earlier|your)\s+(instructions?|prompts?|rules?|directives?)`),
		Replacement: RedactedInjection,
	},
	{
		Name:        "role change",
		Regex:       regexp.MustCompile(`(?i)(you\s+are\s+now|act\s+as|pretend\s+(to\s+be|you\s+are)|from\s+now\s+on\s+you\s+are)\s+(a|an|the)?\s*\w+`),
		Replacement: RedactedInjection,
	},
	{
		Name:        "new instructions marker",
		Regex:       regexp.MustCompile(`(?i)(new|updated|real|actual)\s+(instructions?|system\s+prompt)\s*:`),
		Replacement: RedactedInjection,
	},
	{
		Name:        "developer mode",
		Regex:       regexp.MustCompile(`(?i)(developer|debug|admin|god)\s+mode\s*(enabled|activated|on)?`),
		Replacement: RedactedInjection,
	},
	{
		Name:        "jailbreak marker",
		Regex:       regexp.MustCompile(`(?i)\b(DAN|jailbreak|jailbroken|do\s+anything\s+now)\b`),
		Replacement: RedactedInjection,
	},
	{
		Name:        "safety bypass",
		Regex:       regexp.MustCompile(`(?i)(bypass|disable|turn\s+off|remove)\s+(your\s+)?(safety|content|security)\s+(filter|guideline|restriction|polic)\w*`),
		Replacement: RedactedInjection,
	},
}

// Detection is one human-readable record of a sanitiser hit.
type Detection struct {
	Pattern string `json:"pattern"`
	Matched string `json:"matched"`
}

// Sanitizer scans untrusted input against the injection-pattern table.
type Sanitizer struct {
	patterns []injectionPattern
}

// NewSanitizer returns a sanitizer over the fixed pattern table.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{patterns: injectionPatterns}
}

// Sanitize replaces every pattern match and returns the cleaned text plus
// one detection per match. Patterns run in table order.
func (s *Sanitizer) Sanitize(input string) (string, []Detection) {
	var detections []Detection
	out := input
	for _, p := range s.patterns {
		matches := p.Regex.FindAllString(out, -1)
		for _, m := range matches {
			detections = append(detections, Detection{Pattern: p.Name, Matched: truncateMatch(m)})
		}
		if len(matches) > 0 {
			out = p.Regex.ReplaceAllString(out, p.Replacement)
		}
	}
	return out, detections
}

// MatchCount returns how many patterns fire on the input without rewriting
// it. Used by the injection classifier fast path.
func (s *Sanitizer) MatchCount(input string) int {
	count := 0
	for _, p := range s.patterns {
		count += len(p.Regex.FindAllStringIndex(input, -1))
	}
	return count
}

// Matches reports whether any injection pattern fires on the sentence.
func (s *Sanitizer) Matches(input string) bool {
	for _, p := range s.patterns {
		if p.Regex.MatchString(input) {
			return true
		}
	}
	return false
}

// truncateMatch keeps detection records short; the full text stays in the
// raw input which is never persisted to the audit stream.
func truncateMatch(m string) string {
	const max = 80
	if len(m) <= max {
		return m
	}
	return m[:max] + "…"
}
