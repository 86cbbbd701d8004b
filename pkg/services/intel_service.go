package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/argus-soc/argus/pkg/models"
)

// Cache namespaces of the enrichment read-models. External feed pipelines
// own the writes; the core reads.
const (
	iocKeyPrefix      = "intel:ioc:"
	baselineKeyPrefix = "baseline:"
	exposureKeyPrefix = "exposure:"
)

// feedEntryTTL bounds staleness of feed-loaded entries.
const feedEntryTTL = 7 * 24 * time.Hour

// IOCReputation is the threat-intel verdict for one indicator.
type IOCReputation struct {
	Indicator  string    `json:"indicator"`
	Reputation string    `json:"reputation"`
	Source     string    `json:"source"`
	Confidence float64   `json:"confidence"`
	LastSeen   time.Time `json:"last_seen"`
}

// Baseline is the behavioural baseline for one entity in one tenant.
type Baseline struct {
	EntityValue  string           `json:"entity_value"`
	RiskState    models.RiskState `json:"risk_state"`
	Observations []string         `json:"observations,omitempty"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Exposure is one vulnerability/exposure correlation for a host.
type Exposure struct {
	HostValue   string  `json:"host_value"`
	ExposureID  string  `json:"exposure_id"`
	Description string  `json:"description,omitempty"`
	Severity    string  `json:"severity,omitempty"`
	CVSSScore   float64 `json:"cvss_score,omitempty"`
}

// IntelService is the read-model over the feed caches the enrichment agents
// query. Misses are empty results, never errors; feed outages degrade to
// empty enrichment, not failed investigations.
type IntelService struct {
	rdb *redis.Client
}

// NewIntelService creates the service.
func NewIntelService(rdb *redis.Client) *IntelService {
	return &IntelService{rdb: rdb}
}

// LookupIOC returns the reputation for one indicator, nil on miss.
func (s *IntelService) LookupIOC(ctx context.Context, indicator string) (*IOCReputation, error) {
	data, err := s.rdb.Get(ctx, iocKeyPrefix+indicator).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup ioc %s: %w", indicator, err)
	}
	var rep IOCReputation
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("decode ioc reputation %s: %w", indicator, err)
	}
	return &rep, nil
}

// LookupBaseline returns the behavioural baseline for one entity, nil when
// the tenant has no baseline for it.
func (s *IntelService) LookupBaseline(ctx context.Context, tenantID, entityValue string) (*Baseline, error) {
	data, err := s.rdb.Get(ctx, baselineKeyPrefix+tenantID+":"+entityValue).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup baseline %s/%s: %w", tenantID, entityValue, err)
	}
	var b Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode baseline %s/%s: %w", tenantID, entityValue, err)
	}
	return &b, nil
}

// LookupExposures returns the known exposures for one host, empty on miss.
func (s *IntelService) LookupExposures(ctx context.Context, tenantID, hostValue string) ([]Exposure, error) {
	data, err := s.rdb.Get(ctx, exposureKeyPrefix+tenantID+":"+hostValue).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup exposures %s/%s: %w", tenantID, hostValue, err)
	}
	var out []Exposure
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode exposures %s/%s: %w", tenantID, hostValue, err)
	}
	return out, nil
}

// PutIOC stores one reputation entry. Feed loaders and tests only.
func (s *IntelService) PutIOC(ctx context.Context, rep IOCReputation) error {
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal ioc reputation: %w", err)
	}
	return s.rdb.Set(ctx, iocKeyPrefix+rep.Indicator, data, feedEntryTTL).Err()
}

// PutBaseline stores one baseline entry. Feed loaders and tests only.
func (s *IntelService) PutBaseline(ctx context.Context, tenantID string, b Baseline) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal baseline: %w", err)
	}
	return s.rdb.Set(ctx, baselineKeyPrefix+tenantID+":"+b.EntityValue, data, feedEntryTTL).Err()
}

// PutExposures stores the exposure list for one host. Feed loaders and
// tests only.
func (s *IntelService) PutExposures(ctx context.Context, tenantID, hostValue string, exposures []Exposure) error {
	data, err := json.Marshal(exposures)
	if err != nil {
		return fmt.Errorf("marshal exposures: %w", err)
	}
	return s.rdb.Set(ctx, exposureKeyPrefix+tenantID+":"+hostValue, data, feedEntryTTL).Err()
}
