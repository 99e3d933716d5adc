package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableNames(t *testing.T) {
	tests := []struct {
		name     string
		model    interface{ TableName() string }
		expected string
	}{
		{"delivery orders", DeliveryOrder{}, "delivery_orders"},
		{"installation orders", InstallationOrder{}, "installation_orders"},
		{"capacity settings", RegionCapacitySetting{}, "region_capacity_settings"},
		{"capacity slots", CapacitySlot{}, "capacity_slots"},
		{"districts", District{}, "districts"},
		{"events", TransitionEvent{}, "transition_events"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.model.TableName())
		})
	}
}

func TestDeliveryStatusTransitions(t *testing.T) {
	tests := []struct {
		name     string
		from, to DeliveryStatus
		allowed  bool
	}{
		{"pending to completed", DeliveryPending, DeliveryCompleted, true},
		{"pending to cancelled", DeliveryPending, DeliveryCancelled, true},
		{"completed to archived", DeliveryCompleted, DeliveryArchived, true},
		{"pending to archived", DeliveryPending, DeliveryArchived, false},
		{"cancelled is terminal", DeliveryCancelled, DeliveryPending, false},
		{"archived is terminal", DeliveryArchived, DeliveryCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to))
		})
	}

	assert.True(t, DeliveryArchived.Terminal())
	assert.False(t, DeliveryPending.Terminal())
	assert.False(t, DeliveryStatus("shipped").Valid())
}

func TestInstallationStatusTransitions(t *testing.T) {
	tests := []struct {
		name     string
		from, to InstallationStatus
		allowed  bool
	}{
		{"new to confirmed", InstallationNew, InstallationConfirmed, true},
		{"confirmed to completed", InstallationConfirmed, InstallationCompleted, true},
		{"confirmed to archived", InstallationConfirmed, InstallationArchived, true},
		{"completed to archived", InstallationCompleted, InstallationArchived, true},
		{"new to completed skips confirmation", InstallationNew, InstallationCompleted, false},
		{"new to archived", InstallationNew, InstallationArchived, false},
		{"archived is terminal", InstallationArchived, InstallationNew, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to))
		})
	}
}

func TestCapacityPolicy(t *testing.T) {
	tests := []struct {
		name    string
		setting *RegionCapacitySetting
		want    CapacityPolicy
	}{
		{"no record is unlimited", nil, CapacityPolicy{Mode: PolicyUnlimited}},
		{"positive limit is capped", &RegionCapacitySetting{MaxOrdersPerRegionPerDay: 3}, CapacityPolicy{Mode: PolicyCapped, Limit: 3}},
		{"zero with allow flag is unlimited", &RegionCapacitySetting{AllowZeroLimit: true}, CapacityPolicy{Mode: PolicyUnlimited}},
		{"zero without allow flag is closed", &RegionCapacitySetting{}, CapacityPolicy{Mode: PolicyClosed}},
		{"positive limit ignores allow flag", &RegionCapacitySetting{MaxOrdersPerRegionPerDay: 1, AllowZeroLimit: true}, CapacityPolicy{Mode: PolicyCapped, Limit: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.setting.Policy())
		})
	}
}

func TestInstallationOrderEvidence(t *testing.T) {
	order := InstallationOrder{}
	assert.False(t, order.HasEvidence())
	assert.Empty(t, order.Blobs())

	order.BeforeImage = BlobRef{Key: "installations/1/before.png", Name: "before.png"}
	assert.False(t, order.HasEvidence(), "one image is not enough")
	assert.Len(t, order.Blobs(), 1)

	order.AfterImage = BlobRef{Key: "installations/1/after.png", Name: "after.png"}
	assert.True(t, order.HasEvidence())
	assert.Len(t, order.Blobs(), 2)
	assert.Equal(t, "after.png", order.Image(EvidenceAfter).Name)
}

func TestDates(t *testing.T) {
	d, err := ParseDate("2024-02-28")
	require.NoError(t, err)

	assert.Equal(t, "2024-02-29", FormatDate(AddDays(d, 1)))
	assert.Equal(t, "2024-03-01", FormatDate(AddDays(d, 2)))
	assert.True(t, SameDate(d, NewDate(2024, time.February, 28)))

	_, err = ParseDate("28/02/2024")
	assert.Error(t, err)
}
