package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/argus-soc/argus/pkg/audit"
	"github.com/argus-soc/argus/pkg/gateway"
	"github.com/argus-soc/argus/pkg/models"
)

// extractionSchema validates the Tier-0 extraction output.
var extractionSchema = []byte(`{
	"type": "object",
	"required": ["iocs"],
	"properties": {
		"iocs": {"type": "array", "items": {"type": "string"}}
	}
}`)

const extractionPrompt = `You are an IOC extraction assistant. Extract every
indicator of compromise (IP addresses, domains, URLs, file hashes, email
addresses) present in the alert text. Respond with JSON only:
{"iocs": ["indicator", ...]}. Return an empty list when nothing is present.`

// runExtraction builds the entity bundle: the deterministic parser first,
// then a Tier-0 LLM pass over the alert text for IOCs the structured payload
// misses. LLM failure degrades to parser-only entities; only a spend-cap
// refusal is fatal.
func (o *Orchestrator) runExtraction(ctx context.Context, inv *models.Investigation) error {
	inv.Entities = o.parser.Parse(inv.Alert)

	resp, err := o.llm.Complete(ctx, gateway.Request{
		TaskType:    "ioc_extraction",
		Tier:        gateway.Tier0,
		TenantID:    inv.TenantID,
		TaskPrompt:  extractionPrompt,
		UserContent: gateway.WrapEvidence("alert", inv.Alert.Title+"\n"+inv.Alert.Description),
		Schema:      extractionSchema,
	})
	if err != nil {
		if errors.Is(err, gateway.ErrSpendExceeded) {
			return fmt.Errorf("ioc extraction: %w", err)
		}
		o.logger.Warn("IOC extraction LLM call failed, using parser entities only",
			"investigation_id", inv.ID, "error", err)
		inv.Entities.ParseErrors = append(inv.Entities.ParseErrors,
			"llm extraction unavailable: "+err.Error())
		return nil
	}
	inv.LLMCalls++
	inv.CostUSD += resp.Metrics.CostUSD

	var out struct {
		IOCs []string `json:"iocs"`
	}
	if err := json.Unmarshal([]byte(resp.Content), &out); err != nil {
		o.logger.Warn("IOC extraction output is not valid JSON",
			"investigation_id", inv.ID, "error", err)
		inv.Entities.ParseErrors = append(inv.Entities.ParseErrors,
			"llm extraction output unparseable")
		return nil
	}

	added := mergeIOCs(&inv.Entities, out.IOCs)
	entry := models.NewDecision(models.AgentIOCExtractor, "extracted").
		WithDetail(map[string]any{
			"parser_entities": inv.Entities.Count(),
			"llm_iocs":        added,
		})
	inv.Append(entry)
	o.emitter.Emit(ctx, audit.NewEvent(audit.EventIOCExtracted, inv.TenantID).
		WithInvestigation(inv.ID, inv.AlertID).
		WithEntities(inv.Entities.EntityIDs()).
		WithContext(map[string]any{"llm_iocs": added}))
	return nil
}

// mergeIOCs folds LLM-extracted indicators into the bundle, skipping values
// the parser already produced. Returns the count added.
func mergeIOCs(bundle *models.EntityBundle, iocs []string) int {
	known := make(map[string]bool)
	for _, e := range bundle.All() {
		known[strings.ToLower(e.Value)] = true
	}
	for _, v := range bundle.RawIOCs {
		known[strings.ToLower(v)] = true
	}

	added := 0
	for _, ioc := range iocs {
		ioc = strings.TrimSpace(ioc)
		if ioc == "" || known[strings.ToLower(ioc)] {
			continue
		}
		known[strings.ToLower(ioc)] = true
		bundle.RawIOCs = append(bundle.RawIOCs, ioc)
		bundle.Add(models.Entity{
			Type:       classifyIOC(ioc),
			Value:      ioc,
			Confidence: 0.7,
			SourceID:   "llm_extraction",
		})
		added++
	}
	return added
}

var (
	ipv4Pattern   = regexp.MustCompile(`^(\d{1,3}\.){3}\d{1,3}$`)
	hexPattern    = regexp.MustCompile(`^[0-9a-fA-F]+$`)
	emailPattern  = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	domainPattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?)+$`)
)

// classifyIOC maps a bare indicator string to an entity type.
func classifyIOC(ioc string) models.EntityType {
	switch {
	case strings.HasPrefix(ioc, "http://") || strings.HasPrefix(ioc, "https://"):
		return models.EntityTypeURL
	case ipv4Pattern.MatchString(ioc) || strings.Contains(ioc, "::"):
		return models.EntityTypeIP
	case hexPattern.MatchString(ioc) && (len(ioc) == 32 || len(ioc) == 40 || len(ioc) == 64):
		return models.EntityTypeFileHash
	case emailPattern.MatchString(ioc):
		return models.EntityTypeMailbox
	case domainPattern.MatchString(ioc):
		return models.EntityTypeDNS
	default:
		return models.EntityTypeOther
	}
}
