package models

import (
	"time"

	"gorm.io/datatypes"
)

// RegionCapacitySetting holds the per-region daily limit for one scheduling
// domain. A missing record means unlimited.
type RegionCapacitySetting struct {
	Domain                   OrderKind `gorm:"primaryKey;size:16" json:"domain"`
	MaxOrdersPerRegionPerDay int       `gorm:"not null;default:0;check:max_orders_per_region_per_day >= 0" json:"max_orders_per_region_per_day"`
	AllowZeroLimit           bool      `gorm:"not null;default:false" json:"allow_zero_limit"`
	UpdatedAt                time.Time `json:"updated_at"`
}

func (RegionCapacitySetting) TableName() string {
	return "region_capacity_settings"
}

// PolicyMode is the interpreted state of a capacity setting
type PolicyMode string

const (
	PolicyUnlimited PolicyMode = "unlimited"
	PolicyCapped    PolicyMode = "capped"
	PolicyClosed    PolicyMode = "closed"
)

// CapacityPolicy is the three-state reading of a RegionCapacitySetting
type CapacityPolicy struct {
	Mode  PolicyMode `json:"mode"`
	Limit int        `json:"limit,omitempty"`
}

// Policy interprets the setting. Zero with AllowZeroLimit means unlimited;
// zero without it closes every region.
func (s *RegionCapacitySetting) Policy() CapacityPolicy {
	if s == nil {
		return CapacityPolicy{Mode: PolicyUnlimited}
	}
	if s.MaxOrdersPerRegionPerDay > 0 {
		return CapacityPolicy{Mode: PolicyCapped, Limit: s.MaxOrdersPerRegionPerDay}
	}
	if s.AllowZeroLimit {
		return CapacityPolicy{Mode: PolicyUnlimited}
	}
	return CapacityPolicy{Mode: PolicyClosed}
}

// CapacitySlot counts reservations for one (domain, region, day).
type CapacitySlot struct {
	ID       uint           `gorm:"primaryKey" json:"id"`
	Domain   OrderKind      `gorm:"size:16;not null;uniqueIndex:idx_capacity_slot" json:"domain"`
	RegionID string         `gorm:"size:36;not null;uniqueIndex:idx_capacity_slot" json:"region_id"`
	Day      datatypes.Date `gorm:"not null;uniqueIndex:idx_capacity_slot" json:"day"`
	Reserved int            `gorm:"not null;default:0" json:"reserved"`
}

func (CapacitySlot) TableName() string {
	return "capacity_slots"
}

// Counter is a named monotonically increasing sequence
type Counter struct {
	Name  string `gorm:"primaryKey;size:64"`
	Value int64  `gorm:"not null;default:0"`
}

func (Counter) TableName() string {
	return "counters"
}
