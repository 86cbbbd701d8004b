package models

import "time"

// SpendRecord is one append-only LLM spend entry. Monthly aggregates are
// derived from these records; the cache keeps the authoritative counter.
type SpendRecord struct {
	CostUSD   float64   `json:"cost_usd"`
	ModelID   string    `json:"model_id"`
	TaskType  string    `json:"task_type"`
	TenantID  string    `json:"tenant_id"`
	Timestamp time.Time `json:"timestamp"`
}

// SpendMonth returns the "YYYY-MM" bucket a timestamp falls into, in UTC.
func SpendMonth(t time.Time) string {
	return t.UTC().Format("2006-01")
}
