package gateway

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// techniquePattern matches ATT&CK technique ids (T1059, T1059.001) and
// ATLAS ids (AML.T0051). AML must be tried first so the T-part of an ATLAS
// id is not also reported as a bare ATT&CK id.
var techniquePattern = regexp.MustCompile(`\bAML\.T\d{4}\b|\bT\d{4}(?:\.\d{3})?\b`)

// ValidationError is one recorded schema violation. Non-fatal: the response
// is delivered with valid=false.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validator checks LLM output against a caller-supplied schema fragment and
// the known-technique taxonomy.
type Validator struct {
	// knownTechniques is the taxonomy allow-list. Nil disables taxonomy
	// validation entirely; empty quarantines everything.
	knownTechniques map[string]bool
}

// NewValidator creates a validator. Pass nil to disable taxonomy checking.
func NewValidator(knownTechniques map[string]bool) *Validator {
	return &Validator{knownTechniques: knownTechniques}
}

// CheckSchema validates content against the schema fragment. Returns one
// recorded violation per problem; an unparseable body is itself a violation.
func (v *Validator) CheckSchema(content string, schemaFragment []byte) []ValidationError {
	if len(schemaFragment) == 0 {
		return nil
	}

	schema, err := v.compile(schemaFragment)
	if err != nil {
		return []ValidationError{{Field: "$schema", Message: err.Error()}}
	}

	var doc any
	if err := json.Unmarshal([]byte(extractJSON(content)), &doc); err != nil {
		return []ValidationError{{Field: "$", Message: "output is not valid JSON: " + err.Error()}}
	}

	if err := schema.Validate(doc); err != nil {
		return flattenSchemaError(err)
	}
	return nil
}

// compile builds a fresh compiler per call: schema fragments vary per task
// type and the compiler caches resources by URL.
func (v *Validator) compile(fragment []byte) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("inline://response-schema", strings.NewReader(string(fragment))); err != nil {
		return nil, fmt.Errorf("invalid schema fragment: %w", err)
	}
	schema, err := compiler.Compile("inline://response-schema")
	if err != nil {
		return nil, fmt.Errorf("schema compile failed: %w", err)
	}
	return schema, nil
}

// flattenSchemaError converts jsonschema's hierarchical error into flat
// per-field violations.
func flattenSchemaError(err error) []ValidationError {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []ValidationError{{Field: "$", Message: err.Error()}}
	}

	leaves := ve.Causes
	if len(leaves) == 0 {
		leaves = []*jsonschema.ValidationError{ve}
	}
	out := make([]ValidationError, 0, len(leaves))
	for _, leaf := range leaves {
		field := leaf.InstanceLocation
		if field == "" {
			field = "$"
		}
		out = append(out, ValidationError{Field: field, Message: leaf.Message})
	}
	return out
}

// CheckTaxonomy extracts every technique id in the content and returns the
// ids absent from the known set. Nil known set disables the check.
func (v *Validator) CheckTaxonomy(content string) []string {
	if v.knownTechniques == nil {
		return nil
	}
	seen := make(map[string]bool)
	var quarantined []string
	for _, id := range techniquePattern.FindAllString(content, -1) {
		if seen[id] {
			continue
		}
		seen[id] = true
		if !v.knownTechniques[id] {
			quarantined = append(quarantined, id)
		}
	}
	return quarantined
}

// StripQuarantined removes each quarantined id from the content with
// word-boundary matching so a quarantined T9999 never mangles T99990 or a
// longer id containing it as a substring. The raw output is preserved
// elsewhere for audit.
func StripQuarantined(content string, quarantined []string) string {
	out := content
	for _, id := range quarantined {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(id) + `\b`)
		out = re.ReplaceAllString(out, "")
	}
	return out
}

// extractJSON strips markdown code fences models wrap JSON in despite
// instructions, and falls back to the outermost brace pair.
func extractJSON(content string) string {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		return strings.TrimSpace(trimmed)
	}
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return trimmed
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		return trimmed[start : end+1]
	}
	return trimmed
}
