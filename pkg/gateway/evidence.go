package gateway

import "strings"

// Evidence block delimiters. Untrusted alert fields are wrapped so the model
// can treat the span as data; the content is escaped so it cannot close the
// block early or open a nested one.
const (
	evidenceOpen  = "<evidence>"
	evidenceClose = "</evidence>"
)

// WrapEvidence encloses untrusted content in an evidence block with a label.
// Embedded evidence tags are stripped before escaping so untrusted content
// cannot break out structurally, then all remaining angle brackets are
// escaped.
func WrapEvidence(label, content string) string {
	cleaned := strings.ReplaceAll(content, evidenceOpen, "")
	cleaned = strings.ReplaceAll(cleaned, evidenceClose, "")
	cleaned = strings.ReplaceAll(cleaned, "<", "&lt;")
	cleaned = strings.ReplaceAll(cleaned, ">", "&gt;")

	var b strings.Builder
	b.WriteString(evidenceOpen)
	if label != "" {
		b.WriteString("\n<!-- ")
		b.WriteString(label)
		b.WriteString(" -->\n")
	} else {
		b.WriteString("\n")
	}
	b.WriteString(cleaned)
	b.WriteString("\n")
	b.WriteString(evidenceClose)
	return b.String()
}
