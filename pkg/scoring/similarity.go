// Package scoring ranks historical incidents by similarity to the current
// investigation, for the correlation enrichment agent.
package scoring

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Component weights of the composite score. These are tuned values; changing
// them invalidates the ranking thresholds downstream.
const (
	weightEntities   = 0.4
	weightTechniques = 0.3
	weightContext    = 0.15
	weightRecency    = 0.15
)

// Recency decay. The exponential term has a ~30-day half-life; the
// logarithmic term keeps multi-month incidents from vanishing entirely.
const (
	decayLambdaPerDay = 0.023
	expWeight         = 0.7
	logWeight         = 0.3

	// rareFloor keeps rare-but-important TTPs retrievable from the archive
	// no matter how old they are.
	rareFloor = 0.1
)

// Incident is the comparable projection of a closed investigation.
type Incident struct {
	ID             string
	EntityValues   []string
	Techniques     []string
	RuleFamily     string
	Datasource     string
	Classification string
	ClosedAt       time.Time

	// RareButImportant marks incidents flagged by analysts as reference
	// material (novel TTPs, major incidents).
	RareButImportant bool
}

// Similarity computes the composite score of a candidate against the
// current incident at the given evaluation time. Result is in [0,1].
func Similarity(current, candidate Incident, now time.Time) float64 {
	score := weightEntities*jaccard(current.EntityValues, candidate.EntityValues) +
		weightTechniques*jaccard(current.Techniques, candidate.Techniques) +
		weightContext*contextMatch(current, candidate) +
		weightRecency*Recency(candidate, now)
	return clamp01(score)
}

// Recency is the dual-decay freshness term in [0,1]: a short-horizon
// exponential plus a slow logarithmic tail, floored for rare-but-important
// incidents.
func Recency(candidate Incident, now time.Time) float64 {
	days := now.Sub(candidate.ClosedAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	exponential := math.Exp(-decayLambdaPerDay * days)
	logarithmic := 1 / (1 + math.Log1p(days/30))
	r := expWeight*exponential + logWeight*logarithmic
	if candidate.RareButImportant && r < rareFloor {
		r = rareFloor
	}
	return clamp01(r)
}

// contextMatch scores the detection context: same rule family is a full
// match, same datasource alone is a half match.
func contextMatch(a, b Incident) float64 {
	if a.RuleFamily != "" && strings.EqualFold(a.RuleFamily, b.RuleFamily) {
		return 1.0
	}
	if a.Datasource != "" && strings.EqualFold(a.Datasource, b.Datasource) {
		return 0.5
	}
	return 0.0
}

// jaccard is |A∩B| / |A∪B| over case-folded values; two empty sets score 0
// so absent evidence never counts as agreement.
func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := fold(a)
	setB := fold(b)
	intersection := 0
	for v := range setA {
		if setB[v] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func fold(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			set[v] = true
		}
	}
	return set
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Rank scores every candidate against the current incident and returns ids
// with scores at or above minScore, ordered best first.
func Rank(current Incident, candidates []Incident, now time.Time, minScore float64) []Scored {
	var out []Scored
	for _, c := range candidates {
		if c.ID == current.ID {
			continue
		}
		s := Similarity(current, c, now)
		if s >= minScore {
			out = append(out, Scored{Incident: c, Score: s})
		}
	}
	// Best first, id ascending on ties so ranking is deterministic.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Incident.ID < out[j].Incident.ID
	})
	return out
}

// Scored pairs a candidate with its composite score.
type Scored struct {
	Incident Incident
	Score    float64
}
