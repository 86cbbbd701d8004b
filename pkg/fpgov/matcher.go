// Package fpgov is the false-positive governance engine: the pre-LLM
// short-circuit matcher, the pattern approval lifecycle, canary promotion,
// tenant shadow mode, and the four-dimensional kill switches.
package fpgov

import (
	"context"
	"log/slog"
	"net"
	"net/netip"
	"regexp"

	"github.com/argus-soc/argus/pkg/models"
)

// matchThreshold is the minimum composite confidence for a short-circuit.
const matchThreshold = 0.90

// compiledEntityPattern is one entity check with its matcher pre-built.
type compiledEntityPattern struct {
	entityType models.EntityType
	valueRegex *regexp.Regexp
	valueCIDR  *net.IPNet
}

// compiledPattern is an FP pattern with its regexes compiled once at
// snapshot-build time so the hot path never compiles.
type compiledPattern struct {
	pattern   models.FPPattern
	nameRegex *regexp.Regexp
	entities  []compiledEntityPattern
}

// compilePattern builds the matchers for one pattern. Patterns with an
// invalid alert-name regex are skipped with a log line; an invalid entity
// pattern drops just that entity check.
func compilePattern(p models.FPPattern, logger *slog.Logger) (*compiledPattern, bool) {
	nameRegex, err := regexp.Compile("(?i)" + p.AlertNameRegex)
	if err != nil {
		logger.Error("Skipping pattern with invalid alert-name regex",
			"pattern_id", p.ID, "error", err)
		return nil, false
	}
	cp := &compiledPattern{pattern: p, nameRegex: nameRegex}
	for _, ep := range p.EntityPatterns {
		compiled := compiledEntityPattern{entityType: ep.Type}
		switch {
		case ep.ValueCIDR != "":
			_, ipnet, err := net.ParseCIDR(ep.ValueCIDR)
			if err != nil {
				logger.Error("Skipping entity pattern with invalid CIDR",
					"pattern_id", p.ID, "cidr", ep.ValueCIDR, "error", err)
				continue
			}
			compiled.valueCIDR = ipnet
		case ep.ValueRegex != "":
			re, err := regexp.Compile("(?i)" + ep.ValueRegex)
			if err != nil {
				logger.Error("Skipping entity pattern with invalid regex",
					"pattern_id", p.ID, "regex", ep.ValueRegex, "error", err)
				continue
			}
			compiled.valueRegex = re
		default:
			continue
		}
		cp.entities = append(cp.entities, compiled)
	}
	return cp, true
}

// MatchResult is a short-circuit hit.
type MatchResult struct {
	PatternID  string
	Confidence float64
}

// MatchInput carries the alert coordinates the matcher needs.
type MatchInput struct {
	Title      string
	TenantID   string
	RuleFamily string
	AssetClass string
	Datasource string
	Techniques []string
	Entities   *models.EntityBundle
}

// Matcher evaluates alerts against the hot pattern snapshot. One alert sees
// one snapshot for its whole evaluation; approval races are resolved by the
// status re-check against the snapshot's own copy at read time.
type Matcher struct {
	snapshot     *Snapshot
	killSwitches *KillSwitchStore
	logger       *slog.Logger
}

// NewMatcher creates a matcher over the snapshot and kill-switch store.
func NewMatcher(snapshot *Snapshot, killSwitches *KillSwitchStore) *Matcher {
	return &Matcher{
		snapshot:     snapshot,
		killSwitches: killSwitches,
		logger:       slog.Default().With("component", "fp-matcher"),
	}
}

// Match returns the first pattern that clears the threshold, or nil.
// Kill switches always win: any active switch on tenant, pattern,
// technique, or datasource skips the candidate regardless of confidence.
func (m *Matcher) Match(ctx context.Context, in MatchInput) *MatchResult {
	patterns := m.snapshot.Patterns()
	for _, cp := range patterns {
		p := cp.pattern
		if !p.Status.Matchable() {
			continue
		}
		if !p.Scope.Covers(in.RuleFamily, in.TenantID, in.AssetClass) {
			continue
		}
		if m.killed(ctx, in, p.ID) {
			m.logger.Info("Kill switch blocked FP candidate",
				"pattern_id", p.ID, "tenant_id", in.TenantID)
			continue
		}
		confidence := scorePattern(cp, in)
		if confidence >= matchThreshold {
			return &MatchResult{PatternID: p.ID, Confidence: confidence}
		}
	}
	return nil
}

// killed checks the four dimensions, trying each alert technique.
func (m *Matcher) killed(ctx context.Context, in MatchInput, patternID string) bool {
	if len(in.Techniques) == 0 {
		return m.killSwitches.IsKilled(ctx, in.TenantID, patternID, "", in.Datasource)
	}
	for _, technique := range in.Techniques {
		if m.killSwitches.IsKilled(ctx, in.TenantID, patternID, technique, in.Datasource) {
			return true
		}
	}
	return false
}

// scorePattern computes (alert_name_score + entity_score) / 2.
func scorePattern(cp *compiledPattern, in MatchInput) float64 {
	nameScore := 0.0
	if cp.nameRegex.MatchString(in.Title) {
		nameScore = 1.0
	}
	return (nameScore + entityScore(cp, in.Entities)) / 2
}

// entityScore is the fraction of entity patterns satisfied by at least one
// alert entity of the matching type. A pattern without entity checks scores
// a full 1 so name-only patterns remain expressible.
func entityScore(cp *compiledPattern, bundle *models.EntityBundle) float64 {
	if len(cp.entities) == 0 {
		return 1.0
	}
	if bundle == nil {
		return 0.0
	}
	matched := 0
	for _, ep := range cp.entities {
		for _, entity := range bundle.ByType(ep.entityType) {
			if entityMatches(ep, entity.Value) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(cp.entities))
}

func entityMatches(ep compiledEntityPattern, value string) bool {
	if ep.valueCIDR != nil {
		addr, err := netip.ParseAddr(value)
		if err != nil {
			return false
		}
		return ep.valueCIDR.Contains(net.IP(addr.AsSlice()))
	}
	if ep.valueRegex != nil {
		return ep.valueRegex.MatchString(value)
	}
	return false
}
