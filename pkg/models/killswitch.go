package models

import "time"

// KillSwitchDimension is one of the four axes a kill switch can block on.
type KillSwitchDimension string

const (
	KillSwitchTenant     KillSwitchDimension = "tenant"
	KillSwitchPattern    KillSwitchDimension = "pattern"
	KillSwitchTechnique  KillSwitchDimension = "technique"
	KillSwitchDatasource KillSwitchDimension = "datasource"
)

// IsValid checks if the dimension is a known value.
func (d KillSwitchDimension) IsValid() bool {
	switch d {
	case KillSwitchTenant, KillSwitchPattern, KillSwitchTechnique, KillSwitchDatasource:
		return true
	default:
		return false
	}
}

// KillSwitch blocks FP auto-close on one dimension/value pair while active.
type KillSwitch struct {
	Dimension   KillSwitchDimension `json:"dimension"`
	Value       string              `json:"value"`
	ActivatedBy string              `json:"activated_by"`
	ActivatedAt time.Time           `json:"activated_at"`
	Reason      string              `json:"reason"`
}
