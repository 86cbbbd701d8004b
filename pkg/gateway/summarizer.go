package gateway

import (
	"regexp"
	"strings"
)

// Entity patterns the summariser preserves sentences for. A sentence that
// carries an indicator is factual payload even when its phrasing is odd.
var entityPatterns = []*regexp.Regexp{
	ipv4Pattern,
	regexp.MustCompile(`\b(?:[0-9a-fA-F]{1,4}:){2,7}[0-9a-fA-F]{1,4}\b`), // IPv6
	regexp.MustCompile(`\b[a-fA-F0-9]{64}\b`),                            // SHA256
	regexp.MustCompile(`\b[a-fA-F0-9]{40}\b`),                            // SHA1
	regexp.MustCompile(`\b[a-fA-F0-9]{32}\b`),                            // MD5
	emailPattern,
	regexp.MustCompile(`\b[a-zA-Z0-9][a-zA-Z0-9-]{0,62}(?:\.[a-zA-Z0-9][a-zA-Z0-9-]{0,62})+\b`), // domain
}

// factualVerbs describe observed activity; sentences containing one are
// evidence, not instructions.
var factualVerbs = []string{
	"connected", "accessed", "executed", "downloaded", "uploaded",
	"created", "deleted", "modified", "logged", "authenticated",
	"launched", "spawned", "queried", "resolved", "transferred",
	"observed", "detected", "triggered", "originated", "sent", "received",
}

// instructionVerbs shape imperative sentences; a sentence led by one and
// matching no entity is instruction-shaped and gets dropped.
var instructionVerbs = []string{
	"ignore", "disregard", "forget", "override", "pretend", "act",
	"respond", "reply", "output", "print", "reveal", "repeat", "say",
	"tell", "write", "translate", "execute", "run", "follow", "obey",
}

var sentenceSplit = regexp.MustCompile(`(?s)[^.!?\n]+[.!?\n]?`)

// LossySummarizer rewrites suspicious input by deleting instruction-shaped
// sentences. No redaction markers are emitted: an attacker probing the
// filter learns nothing about which sentence tripped it.
type LossySummarizer struct {
	sanitizer *Sanitizer
}

// NewLossySummarizer creates a summariser over the shared pattern table.
func NewLossySummarizer(sanitizer *Sanitizer) *LossySummarizer {
	return &LossySummarizer{sanitizer: sanitizer}
}

// Summarize keeps the factual sentences and silently drops the rest.
// A sentence survives when it carries an extracted entity or a factual
// verb, and neither matches an injection pattern nor contains an
// instruction verb.
func (s *LossySummarizer) Summarize(input string) string {
	sentences := sentenceSplit.FindAllString(input, -1)
	kept := make([]string, 0, len(sentences))
	for _, sentence := range sentences {
		trimmed := strings.TrimSpace(sentence)
		if trimmed == "" {
			continue
		}
		if s.sanitizer.Matches(trimmed) {
			continue
		}
		hasEntity := containsEntity(trimmed)
		if containsVerb(trimmed, instructionVerbs) && !hasEntity {
			continue
		}
		if hasEntity || containsVerb(trimmed, factualVerbs) {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, " ")
}

func containsEntity(sentence string) bool {
	for _, p := range entityPatterns {
		if p.MatchString(sentence) {
			return true
		}
	}
	return false
}

func containsVerb(sentence string, verbs []string) bool {
	lower := strings.ToLower(sentence)
	for _, v := range verbs {
		if containsWord(lower, v) {
			return true
		}
	}
	return false
}

// containsWord reports whether lower contains v as a whole word.
func containsWord(lower, v string) bool {
	idx := 0
	for {
		i := strings.Index(lower[idx:], v)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(v)
		beforeOK := start == 0 || !isWordByte(lower[start-1])
		afterOK := end == len(lower) || !isWordByte(lower[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '_'
}
