package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kendall-kelly/installations-scheduling-api/logger"
	"github.com/kendall-kelly/installations-scheduling-api/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultMaxProbeDays bounds how far past the requested date placement looks
const DefaultMaxProbeDays = 365

// Slot identifies the region-day an order is counted against
type Slot struct {
	RegionID string
	Day      datatypes.Date
}

// PlacementRequest asks for a date in a region. OrderID and Current are set
// when an existing order is being edited.
type PlacementRequest struct {
	Domain        models.OrderKind
	RegionID      string
	RequestedDate datatypes.Date
	OrderID       string
	Current       *Slot
}

// Placement is the effective date chosen for a request. Reserved is set when
// Place took a new unit that the caller must release if its write fails.
type Placement struct {
	Date        datatypes.Date `json:"date"`
	WasAdjusted bool           `json:"was_adjusted"`
	Reserved    bool           `json:"-"`
}

// CapacityScheduler decides on which date an order in a region lands, given a
// per-region per-day limit. Counts include every stored order dated that day
// regardless of status; slot counters are seeded from that count the first
// time a day is touched and are not corrected afterwards.
type CapacityScheduler struct {
	db           *gorm.DB
	log          logger.Logger
	timeout      time.Duration
	locker       PlacementLocker
	metrics      *Metrics
	maxProbeDays int
}

// SchedulerOption customizes a CapacityScheduler
type SchedulerOption func(*CapacityScheduler)

// WithPlacementLocker sets the cross-instance slot locker
func WithPlacementLocker(l PlacementLocker) SchedulerOption {
	return func(s *CapacityScheduler) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithMaxProbeDays overrides DefaultMaxProbeDays
func WithMaxProbeDays(n int) SchedulerOption {
	return func(s *CapacityScheduler) {
		if n > 0 {
			s.maxProbeDays = n
		}
	}
}

// WithSchedulerMetrics records placement outcomes
func WithSchedulerMetrics(m *Metrics) SchedulerOption {
	return func(s *CapacityScheduler) {
		s.metrics = m
	}
}

// NewCapacityScheduler creates a scheduler over db
func NewCapacityScheduler(db *gorm.DB, log logger.Logger, timeout time.Duration, opts ...SchedulerOption) *CapacityScheduler {
	s := &CapacityScheduler{
		db:           db,
		log:          log,
		timeout:      timeout,
		locker:       noopLocker{},
		maxProbeDays: DefaultMaxProbeDays,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Setting returns the capacity record for domain, or nil when none exists
func (s *CapacityScheduler) Setting(ctx context.Context, domain models.OrderKind) (*models.RegionCapacitySetting, error) {
	if !domain.Valid() {
		return nil, invalidInput("unknown scheduling domain %q", domain)
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var setting models.RegionCapacitySetting
	err := s.db.WithContext(ctx).Where("domain = ?", domain).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err, "")
	}
	return &setting, nil
}

// SaveSetting creates or replaces the capacity record for a domain
func (s *CapacityScheduler) SaveSetting(ctx context.Context, setting models.RegionCapacitySetting) (*models.RegionCapacitySetting, error) {
	if !setting.Domain.Valid() {
		return nil, invalidInput("unknown scheduling domain %q", setting.Domain)
	}
	if setting.MaxOrdersPerRegionPerDay < 0 {
		return nil, invalidInput("max orders per region per day must not be negative")
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.db.WithContext(ctx).Save(&setting).Error; err != nil {
		return nil, classify(err, "")
	}
	s.log.Info("capacity setting saved",
		"domain", setting.Domain,
		"max", setting.MaxOrdersPerRegionPerDay,
		"allow_zero_limit", setting.AllowZeroLimit)
	return &setting, nil
}

// Policy returns the three-state interpretation of the domain's setting
func (s *CapacityScheduler) Policy(ctx context.Context, domain models.OrderKind) (models.CapacityPolicy, error) {
	setting, err := s.Setting(ctx, domain)
	if err != nil {
		return models.CapacityPolicy{}, err
	}
	return setting.Policy(), nil
}

// Preview answers which date a request would land on without reserving
// anything. A day's load is the larger of its slot counter and its stored
// orders, the same figure Place competes for. The answer may be stale by the
// time the order is saved.
func (s *CapacityScheduler) Preview(ctx context.Context, req PlacementRequest) (Placement, error) {
	if err := validatePlacement(req); err != nil {
		return Placement{}, err
	}
	policy, err := s.Policy(ctx, req.Domain)
	if err != nil {
		return Placement{}, err
	}
	if policy.Mode == models.PolicyClosed {
		return Placement{}, newError(CodeRegionClosed, "", "%s scheduling is closed", req.Domain)
	}
	if policy.Mode == models.PolicyUnlimited || isZeroDate(req.RequestedDate) {
		return Placement{Date: req.RequestedDate}, nil
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	db := s.db.WithContext(ctx)
	for i := 0; i <= s.maxProbeDays; i++ {
		day := models.AddDays(req.RequestedDate, i)
		if holdsSlot(req.Current, req.RegionID, day) {
			return Placement{Date: day, WasAdjusted: i > 0}, nil
		}
		total, err := countOrders(db, req.Domain, req.RegionID, day, "")
		if err != nil {
			return Placement{}, classify(err, req.OrderID)
		}
		if req.OrderID != "" {
			others, err := countOrders(db, req.Domain, req.RegionID, day, req.OrderID)
			if err != nil {
				return Placement{}, classify(err, req.OrderID)
			}
			if others < total {
				// The order already sits on this day
				return Placement{Date: day, WasAdjusted: i > 0}, nil
			}
		}
		reserved, err := slotReserved(db, req.Domain, req.RegionID, day)
		if err != nil {
			return Placement{}, classify(err, req.OrderID)
		}
		if max(total, reserved) < int64(policy.Limit) {
			return Placement{Date: day, WasAdjusted: i > 0}, nil
		}
	}
	return Placement{}, s.exhausted(req)
}

// Place picks the first date at or after the requested one with spare
// capacity and reserves one unit on it. An order that already holds the
// requested slot keeps it without a new reservation. Callers release
// req.Current after persisting a move, or the new slot if persisting fails.
func (s *CapacityScheduler) Place(ctx context.Context, req PlacementRequest) (Placement, error) {
	if err := validatePlacement(req); err != nil {
		return Placement{}, err
	}
	policy, err := s.Policy(ctx, req.Domain)
	if err != nil {
		return Placement{}, err
	}
	if policy.Mode == models.PolicyClosed {
		s.metrics.placement(string(req.Domain), "closed")
		return Placement{}, newError(CodeRegionClosed, req.OrderID, "%s scheduling is closed", req.Domain)
	}
	if isZeroDate(req.RequestedDate) {
		return Placement{}, nil
	}
	if holdsSlot(req.Current, req.RegionID, req.RequestedDate) {
		s.metrics.placement(string(req.Domain), "unchanged")
		return Placement{Date: req.RequestedDate}, nil
	}

	limit := 0
	if policy.Mode == models.PolicyCapped {
		limit = policy.Limit
	}
	for i := 0; i <= s.maxProbeDays; i++ {
		day := models.AddDays(req.RequestedDate, i)
		if holdsSlot(req.Current, req.RegionID, day) {
			// Probing forward reached the unit the order already holds
			s.metrics.placement(string(req.Domain), "adjusted")
			return Placement{Date: day, WasAdjusted: true}, nil
		}
		won, err := s.reserve(ctx, req.Domain, req.RegionID, day, limit)
		if err != nil {
			return Placement{}, classify(err, req.OrderID)
		}
		if !won {
			continue
		}
		outcome := "accepted"
		if i > 0 {
			outcome = "adjusted"
		}
		s.metrics.placement(string(req.Domain), outcome)
		return Placement{Date: day, WasAdjusted: i > 0, Reserved: true}, nil
	}
	return Placement{}, s.exhausted(req)
}

// Settle finishes a placement once the order write is known: on success the
// previous slot is released, on failure the new reservation is.
func (s *CapacityScheduler) Settle(ctx context.Context, domain models.OrderKind, regionID string, p Placement, previous *Slot, writeErr error) {
	if !p.Reserved {
		return
	}
	release := previous
	if writeErr != nil {
		release = &Slot{RegionID: regionID, Day: p.Date}
	}
	if release == nil {
		return
	}
	if err := s.Release(ctx, domain, *release); err != nil {
		s.log.Warn("failed to release capacity slot",
			"domain", domain, "region_id", release.RegionID, "day", models.FormatDate(release.Day), "error", err)
	}
}

// Release gives back one unit of a slot. Releasing an empty slot is a no-op.
// It still runs when ctx is already cancelled, since it usually follows a
// write that failed for exactly that reason.
func (s *CapacityScheduler) Release(ctx context.Context, domain models.OrderKind, slot Slot) error {
	if slot.RegionID == "" || isZeroDate(slot.Day) {
		return nil
	}
	ctx, cancel := withTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	err := s.db.WithContext(ctx).Model(&models.CapacitySlot{}).
		Where("domain = ? AND region_id = ? AND day = ? AND reserved > 0", domain, slot.RegionID, slot.Day).
		Update("reserved", gorm.Expr("reserved - 1")).Error
	return classify(err, "")
}

// reserve takes one unit of (domain, region, day) if fewer than limit are
// taken. A limit of zero reserves unconditionally so counters stay accurate
// while the policy is unlimited.
func (s *CapacityScheduler) reserve(ctx context.Context, domain models.OrderKind, regionID string, day datatypes.Date, limit int) (bool, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	unlock := s.locker.Lock(ctx, slotKey(domain, regionID, day))
	defer unlock()

	won := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureSlot(tx, domain, regionID, day); err != nil {
			return err
		}
		q := tx.Model(&models.CapacitySlot{}).
			Where("domain = ? AND region_id = ? AND day = ?", domain, regionID, day)
		if limit > 0 {
			q = q.Where("reserved < ?", limit)
		}
		res := q.Update("reserved", gorm.Expr("reserved + 1"))
		if res.Error != nil {
			return res.Error
		}
		won = res.RowsAffected == 1
		return nil
	})
	return won, err
}

func (s *CapacityScheduler) exhausted(req PlacementRequest) error {
	s.metrics.placement(string(req.Domain), "exhausted")
	return newError(CodeNoCapacityFound, req.OrderID,
		"no capacity in region %s within %d days of %s", req.RegionID, s.maxProbeDays, models.FormatDate(req.RequestedDate))
}

// ensureSlot creates the counter row for a day, seeded with the orders
// already stored on it. A concurrent creator wins silently.
func ensureSlot(tx *gorm.DB, domain models.OrderKind, regionID string, day datatypes.Date) error {
	var existing int64
	if err := tx.Model(&models.CapacitySlot{}).
		Where("domain = ? AND region_id = ? AND day = ?", domain, regionID, day).
		Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return nil
	}

	n, err := countOrders(tx, domain, regionID, day, "")
	if err != nil {
		return err
	}
	slot := models.CapacitySlot{Domain: domain, RegionID: regionID, Day: day, Reserved: int(n)}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "domain"}, {Name: "region_id"}, {Name: "day"}},
		DoNothing: true,
	}).Create(&slot).Error
}

// countOrders counts stored orders of a domain in a region on day,
// optionally ignoring one order.
func countOrders(db *gorm.DB, domain models.OrderKind, regionID string, day datatypes.Date, excludeID string) (int64, error) {
	var q *gorm.DB
	switch domain {
	case models.KindDelivery:
		q = db.Model(&models.DeliveryOrder{}).Where("region_id = ? AND delivery_date = ?", regionID, day)
	case models.KindInstallation:
		q = db.Model(&models.InstallationOrder{}).Where("region_id = ? AND installation_date = ?", regionID, day)
	default:
		return 0, invalidInput("unknown scheduling domain %q", domain)
	}
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

// slotReserved reads a day's counter without creating it
func slotReserved(db *gorm.DB, domain models.OrderKind, regionID string, day datatypes.Date) (int64, error) {
	var slots []models.CapacitySlot
	err := db.Where("domain = ? AND region_id = ? AND day = ?", domain, regionID, day).Limit(1).Find(&slots).Error
	if err != nil || len(slots) == 0 {
		return 0, err
	}
	return int64(slots[0].Reserved), nil
}

func holdsSlot(current *Slot, regionID string, day datatypes.Date) bool {
	return current != nil && current.RegionID == regionID && models.SameDate(current.Day, day)
}

func validatePlacement(req PlacementRequest) error {
	if !req.Domain.Valid() {
		return invalidInput("unknown scheduling domain %q", req.Domain)
	}
	if req.RegionID == "" {
		return invalidInput("region is required for scheduling")
	}
	return nil
}

func slotKey(domain models.OrderKind, regionID string, day datatypes.Date) string {
	return fmt.Sprintf("capacity:%s:%s:%s", domain, regionID, models.FormatDate(day))
}

func isZeroDate(d datatypes.Date) bool {
	return time.Time(d).IsZero()
}
