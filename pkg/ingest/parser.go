// Package ingest holds the intake boundary: the reference entity parser for
// the normalised raw-entities payload and the optional Pub/Sub alert
// subscriber. Vendor-specific ingest adapters live outside the engine; they
// produce models.Alert values and hand them to the queue.
package ingest

import (
	"fmt"

	"github.com/argus-soc/argus/pkg/models"
)

// rawEntityKeys maps the normalised payload keys to entity types.
var rawEntityKeys = map[string]models.EntityType{
	"accounts":    models.EntityTypeAccount,
	"hosts":       models.EntityTypeHost,
	"ips":         models.EntityTypeIP,
	"files":       models.EntityTypeFile,
	"processes":   models.EntityTypeProcess,
	"urls":        models.EntityTypeURL,
	"dns":         models.EntityTypeDNS,
	"file_hashes": models.EntityTypeFileHash,
	"mailboxes":   models.EntityTypeMailbox,
	"other":       models.EntityTypeOther,
}

// rawIOCsKey carries bare indicator strings that the adapter could not type.
const rawIOCsKey = "iocs"

// Parser is the reference entity parser over the normalised raw-entities
// payload. Parse never fails: malformed fragments land in the bundle's
// parse-error list and everything well-formed is kept.
type Parser struct{}

// NewParser creates the parser.
func NewParser() *Parser { return &Parser{} }

// Parse builds the typed entity bundle from alert.RawEntities. Entries are
// either bare strings or objects with value/confidence/properties; adapter
// entities default to full confidence.
func (p *Parser) Parse(alert *models.Alert) models.EntityBundle {
	var bundle models.EntityBundle
	if alert == nil || len(alert.RawEntities) == 0 {
		return bundle
	}

	for key, raw := range alert.RawEntities {
		if key == rawIOCsKey {
			parseRawIOCs(&bundle, raw)
			continue
		}
		entityType, known := rawEntityKeys[key]
		if !known {
			bundle.ParseErrors = append(bundle.ParseErrors,
				fmt.Sprintf("unknown entity key %q", key))
			continue
		}
		items, ok := raw.([]any)
		if !ok {
			bundle.ParseErrors = append(bundle.ParseErrors,
				fmt.Sprintf("entity key %q is not a list", key))
			continue
		}
		for i, item := range items {
			entity, err := parseEntity(entityType, item)
			if err != nil {
				bundle.ParseErrors = append(bundle.ParseErrors,
					fmt.Sprintf("%s[%d]: %v", key, i, err))
				continue
			}
			bundle.Add(entity)
		}
	}
	return bundle
}

// parseEntity narrows one list item: a bare value string or an object form.
func parseEntity(t models.EntityType, item any) (models.Entity, error) {
	switch v := item.(type) {
	case string:
		if v == "" {
			return models.Entity{}, fmt.Errorf("empty value")
		}
		return models.Entity{Type: t, Value: v, Confidence: 1.0}, nil
	case map[string]any:
		value, _ := v["value"].(string)
		if value == "" {
			return models.Entity{}, fmt.Errorf("object without a value field")
		}
		entity := models.Entity{Type: t, Value: value, Confidence: 1.0}
		if c, ok := v["confidence"].(float64); ok && c >= 0 && c <= 1 {
			entity.Confidence = c
		}
		if props, ok := v["properties"].(map[string]any); ok {
			entity.Properties = props
		}
		if src, ok := v["source_id"].(string); ok {
			entity.SourceID = src
		}
		return entity, nil
	default:
		return models.Entity{}, fmt.Errorf("unsupported entry type %T", item)
	}
}

func parseRawIOCs(bundle *models.EntityBundle, raw any) {
	items, ok := raw.([]any)
	if !ok {
		bundle.ParseErrors = append(bundle.ParseErrors, "iocs is not a list")
		return
	}
	for i, item := range items {
		s, ok := item.(string)
		if !ok || s == "" {
			bundle.ParseErrors = append(bundle.ParseErrors,
				fmt.Sprintf("iocs[%d]: not a string", i))
			continue
		}
		bundle.RawIOCs = append(bundle.RawIOCs, s)
	}
}
