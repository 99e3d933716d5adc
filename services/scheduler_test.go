package services

import (
	"context"
	"sync"
	"testing"

	"github.com/kendall-kelly/installations-scheduling-api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyFromSetting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// No record means unlimited
	policy, err := f.scheduler.Policy(ctx, models.KindDelivery)
	require.NoError(t, err)
	assert.Equal(t, models.PolicyUnlimited, policy.Mode)

	tests := []struct {
		name      string
		max       int
		allowZero bool
		expected  models.CapacityPolicy
	}{
		{"positive limit caps", 3, false, models.CapacityPolicy{Mode: models.PolicyCapped, Limit: 3}},
		{"zero closes", 0, false, models.CapacityPolicy{Mode: models.PolicyClosed}},
		{"zero with allow zero is unlimited", 0, true, models.CapacityPolicy{Mode: models.PolicyUnlimited}},
		{"allow zero does not affect positive limit", 2, true, models.CapacityPolicy{Mode: models.PolicyCapped, Limit: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.setCapacity(t, models.KindDelivery, tt.max, tt.allowZero)
			policy, err := f.scheduler.Policy(ctx, models.KindDelivery)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, policy)
		})
	}
}

func TestSaveSettingValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.scheduler.SaveSetting(ctx, models.RegionCapacitySetting{Domain: "pickup", MaxOrdersPerRegionPerDay: 1})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.scheduler.SaveSetting(ctx, models.RegionCapacitySetting{Domain: models.KindDelivery, MaxOrdersPerRegionPerDay: -1})
	assert.ErrorIs(t, err, ErrInvalidInput)

	setting, err := f.scheduler.Setting(ctx, models.KindInstallation)
	require.NoError(t, err)
	assert.Nil(t, setting)
}

func TestPlaceMovesToNextDayWhenFull(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setCapacity(t, models.KindDelivery, 2, false)

	req := PlacementRequest{Domain: models.KindDelivery, RegionID: "reg-east", RequestedDate: mustDate(t, "2024-03-01")}

	first, err := f.scheduler.Place(ctx, req)
	require.NoError(t, err)
	second, err := f.scheduler.Place(ctx, req)
	require.NoError(t, err)
	third, err := f.scheduler.Place(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, "2024-03-01", models.FormatDate(first.Date))
	assert.False(t, first.WasAdjusted)
	assert.Equal(t, "2024-03-01", models.FormatDate(second.Date))
	assert.False(t, second.WasAdjusted)
	assert.Equal(t, "2024-03-02", models.FormatDate(third.Date))
	assert.True(t, third.WasAdjusted)
	assert.True(t, third.Reserved)

	assert.Equal(t, 2, f.reserved(t, models.KindDelivery, "reg-east", "2024-03-01"))
	assert.Equal(t, 1, f.reserved(t, models.KindDelivery, "reg-east", "2024-03-02"))

	// Other regions are counted separately
	west, err := f.scheduler.Place(ctx, PlacementRequest{Domain: models.KindDelivery, RegionID: "reg-west", RequestedDate: mustDate(t, "2024-03-01")})
	require.NoError(t, err)
	assert.False(t, west.WasAdjusted)

	// And so are domains
	inst, err := f.scheduler.Place(ctx, PlacementRequest{Domain: models.KindInstallation, RegionID: "reg-east", RequestedDate: mustDate(t, "2024-03-01")})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", models.FormatDate(inst.Date))
}

func TestPlaceSeedsFromExistingOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setCapacity(t, models.KindDelivery, 2, false)

	// Two orders stored before any slot existed
	f.insertDelivery(t, nil)
	f.insertDelivery(t, nil)

	p, err := f.scheduler.Place(ctx, PlacementRequest{Domain: models.KindDelivery, RegionID: "reg-east", RequestedDate: mustDate(t, "2024-03-01")})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-02", models.FormatDate(p.Date))
	assert.True(t, p.WasAdjusted)
}

func TestPlaceClosedRegion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setCapacity(t, models.KindInstallation, 0, false)

	for _, region := range []string{"reg-east", "reg-west"} {
		_, err := f.scheduler.Place(ctx, PlacementRequest{Domain: models.KindInstallation, RegionID: region, RequestedDate: mustDate(t, "2024-03-01")})
		assert.ErrorIs(t, err, ErrRegionClosed)

		_, err = f.scheduler.Preview(ctx, PlacementRequest{Domain: models.KindInstallation, RegionID: region, RequestedDate: mustDate(t, "2024-03-01")})
		assert.ErrorIs(t, err, ErrRegionClosed)
	}
	assert.Equal(t, 0, f.reserved(t, models.KindInstallation, "reg-east", "2024-03-01"))
}

func TestPlaceUnlimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setCapacity(t, models.KindDelivery, 0, true)

	for i := 0; i < 5; i++ {
		p, err := f.scheduler.Place(ctx, PlacementRequest{Domain: models.KindDelivery, RegionID: "reg-east", RequestedDate: mustDate(t, "2024-03-01")})
		require.NoError(t, err)
		assert.Equal(t, "2024-03-01", models.FormatDate(p.Date))
		assert.False(t, p.WasAdjusted)
	}
	// Counters are still kept so a later cap starts from the right count
	assert.Equal(t, 5, f.reserved(t, models.KindDelivery, "reg-east", "2024-03-01"))
}

func TestPlaceKeepsCurrentSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setCapacity(t, models.KindDelivery, 1, false)

	day := mustDate(t, "2024-03-01")
	p, err := f.scheduler.Place(ctx, PlacementRequest{Domain: models.KindDelivery, RegionID: "reg-east", RequestedDate: day})
	require.NoError(t, err)
	require.True(t, p.Reserved)

	// The order holding the only unit is edited without changing its date
	again, err := f.scheduler.Place(ctx, PlacementRequest{
		Domain:        models.KindDelivery,
		RegionID:      "reg-east",
		RequestedDate: day,
		OrderID:       "order-1",
		Current:       &Slot{RegionID: "reg-east", Day: day},
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", models.FormatDate(again.Date))
	assert.False(t, again.WasAdjusted)
	assert.False(t, again.Reserved)
	assert.Equal(t, 1, f.reserved(t, models.KindDelivery, "reg-east", "2024-03-01"))
}

func TestPlaceProbeExhausted(t *testing.T) {
	f := newFixture(t, WithMaxProbeDays(2))
	ctx := context.Background()
	f.setCapacity(t, models.KindDelivery, 1, false)

	req := PlacementRequest{Domain: models.KindDelivery, RegionID: "reg-east", RequestedDate: mustDate(t, "2024-03-01")}
	for i := 0; i < 3; i++ {
		_, err := f.scheduler.Place(ctx, req)
		require.NoError(t, err)
	}

	_, err := f.scheduler.Place(ctx, req)
	assert.ErrorIs(t, err, ErrNoCapacityFound)

	_, err = f.scheduler.Preview(ctx, req)
	assert.ErrorIs(t, err, ErrNoCapacityFound)
}

func TestPreviewFollowsSlotCounters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setCapacity(t, models.KindDelivery, 1, false)

	// A reservation with no stored order yet still fills the day
	req := PlacementRequest{Domain: models.KindDelivery, RegionID: "reg-east", RequestedDate: mustDate(t, "2024-03-01")}
	_, err := f.scheduler.Place(ctx, req)
	require.NoError(t, err)

	preview, err := f.scheduler.Preview(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-02", models.FormatDate(preview.Date))
	assert.True(t, preview.WasAdjusted)

	placed, err := f.scheduler.Place(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, preview.Date, placed.Date)
}

func TestPlaceStopsAtSlotAlreadyHeld(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setCapacity(t, models.KindDelivery, 1, false)

	f.insertDelivery(t, nil)
	mine := f.insertDelivery(t, func(o *models.DeliveryOrder) {
		o.DeliveryDate = models.NewDate(2024, 3, 2)
	})

	req := PlacementRequest{
		Domain:        models.KindDelivery,
		RegionID:      "reg-east",
		RequestedDate: mustDate(t, "2024-03-01"),
		OrderID:       mine.ID,
	}
	preview, err := f.scheduler.Preview(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-02", models.FormatDate(preview.Date))

	req.Current = &Slot{RegionID: "reg-east", Day: mine.DeliveryDate}
	placed, err := f.scheduler.Place(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, preview.Date, placed.Date)
	assert.True(t, placed.WasAdjusted)
	assert.False(t, placed.Reserved)
	assert.Equal(t, 0, f.reserved(t, models.KindDelivery, "reg-east", "2024-03-02"), "the held day is not counted twice")
	assert.Equal(t, 0, f.reserved(t, models.KindDelivery, "reg-east", "2024-03-03"))
}

func TestPlaceValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.scheduler.Place(ctx, PlacementRequest{Domain: models.KindDelivery, RequestedDate: mustDate(t, "2024-03-01")})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.scheduler.Place(ctx, PlacementRequest{Domain: "pickup", RegionID: "reg-east", RequestedDate: mustDate(t, "2024-03-01")})
	assert.ErrorIs(t, err, ErrInvalidInput)

	// No date means nothing to place
	p, err := f.scheduler.Place(ctx, PlacementRequest{Domain: models.KindDelivery, RegionID: "reg-east"})
	require.NoError(t, err)
	assert.False(t, p.Reserved)
}

func TestPreviewIsReadOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setCapacity(t, models.KindDelivery, 1, false)

	existing := f.insertDelivery(t, nil)
	req := PlacementRequest{Domain: models.KindDelivery, RegionID: "reg-east", RequestedDate: mustDate(t, "2024-03-01")}

	for i := 0; i < 3; i++ {
		p, err := f.scheduler.Preview(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "2024-03-02", models.FormatDate(p.Date))
		assert.True(t, p.WasAdjusted)
	}

	var slots int64
	require.NoError(t, f.db.Model(&models.CapacitySlot{}).Count(&slots).Error)
	assert.Equal(t, int64(0), slots)

	// An order editing itself does not count against its own day
	req.OrderID = existing.ID
	p, err := f.scheduler.Preview(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", models.FormatDate(p.Date))
	assert.False(t, p.WasAdjusted)
}

func TestPlaceConcurrentNeverExceedsLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setCapacity(t, models.KindDelivery, 3, false)

	const callers = 10
	day := mustDate(t, "2024-03-01")
	results := make([]Placement, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.scheduler.Place(ctx, PlacementRequest{
				Domain:        models.KindDelivery,
				RegionID:      "reg-east",
				RequestedDate: day,
			})
		}(i)
	}
	wg.Wait()

	perDay := map[string]int{}
	for i := range results {
		require.NoError(t, errs[i])
		perDay[models.FormatDate(results[i].Date)]++
	}
	for day, n := range perDay {
		assert.LessOrEqual(t, n, 3, "day %s over capacity", day)
		assert.Equal(t, n, f.reserved(t, models.KindDelivery, "reg-east", day))
	}
	assert.Equal(t, 3, perDay["2024-03-01"])
}

func TestSettleAndRelease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := mustDate(t, "2024-03-01")
	next := mustDate(t, "2024-03-05")

	p, err := f.scheduler.Place(ctx, PlacementRequest{Domain: models.KindDelivery, RegionID: "reg-east", RequestedDate: day})
	require.NoError(t, err)

	// A failed write gives the new unit back
	f.scheduler.Settle(ctx, models.KindDelivery, "reg-east", p, nil, assert.AnError)
	assert.Equal(t, 0, f.reserved(t, models.KindDelivery, "reg-east", "2024-03-01"))

	// A successful move releases the previous slot
	p, err = f.scheduler.Place(ctx, PlacementRequest{Domain: models.KindDelivery, RegionID: "reg-east", RequestedDate: day})
	require.NoError(t, err)
	f.scheduler.Settle(ctx, models.KindDelivery, "reg-east", p, nil, nil)

	moved, err := f.scheduler.Place(ctx, PlacementRequest{
		Domain:        models.KindDelivery,
		RegionID:      "reg-east",
		RequestedDate: next,
		Current:       &Slot{RegionID: "reg-east", Day: day},
	})
	require.NoError(t, err)
	f.scheduler.Settle(ctx, models.KindDelivery, "reg-east", moved, &Slot{RegionID: "reg-east", Day: day}, nil)
	assert.Equal(t, 0, f.reserved(t, models.KindDelivery, "reg-east", "2024-03-01"))
	assert.Equal(t, 1, f.reserved(t, models.KindDelivery, "reg-east", "2024-03-05"))

	// A cancelled request still gives its unit back
	p, err = f.scheduler.Place(ctx, PlacementRequest{Domain: models.KindDelivery, RegionID: "reg-east", RequestedDate: next})
	require.NoError(t, err)
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	f.scheduler.Settle(cancelled, models.KindDelivery, "reg-east", p, nil, context.Canceled)
	assert.Equal(t, 1, f.reserved(t, models.KindDelivery, "reg-east", "2024-03-05"))

	// Releasing an empty slot never goes negative
	require.NoError(t, f.scheduler.Release(ctx, models.KindDelivery, Slot{RegionID: "reg-east", Day: day}))
	require.NoError(t, f.scheduler.Release(ctx, models.KindDelivery, Slot{RegionID: "reg-east", Day: day}))
	assert.Equal(t, 0, f.reserved(t, models.KindDelivery, "reg-east", "2024-03-01"))
}
