package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/kendall-kelly/installations-scheduling-api/models"
	"github.com/kendall-kelly/installations-scheduling-api/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// maxNumberAttempts allows one retry when a generated number collides
const maxNumberAttempts = 2

// CreateDeliveryCommand carries a new delivery order from the order form
type CreateDeliveryCommand struct {
	BranchID             string `validate:"required"`
	DistrictID           string `validate:"required"`
	Address              string `validate:"max=512"`
	CustomerName         string `validate:"required,max=255"`
	CustomerPhone        string `validate:"required"`
	TechnicianID         *string
	DeliveryDate         datatypes.Date
	RequiresInstallation bool
	Notes                string
	Actor                string
}

// RescheduleDeliveryCommand moves a pending delivery to another date and,
// optionally, another district.
type RescheduleDeliveryCommand struct {
	ID         string `validate:"required"`
	DistrictID string
	Date       datatypes.Date
	Actor      string
}

// DeliveryService manages delivery orders
type DeliveryService struct {
	deps Dependencies
}

// NewDeliveryService creates the delivery order service
func NewDeliveryService(deps Dependencies) *DeliveryService {
	return &DeliveryService{deps: deps.withDefaults()}
}

// Create validates, places and numbers a new delivery order. The returned
// placement reports whether the requested date had to be moved.
func (s *DeliveryService) Create(ctx context.Context, cmd CreateDeliveryCommand) (*models.DeliveryOrder, Placement, error) {
	if err := validateStruct(cmd); err != nil {
		return nil, Placement{}, err
	}
	if !utils.ValidCustomerPhone(cmd.CustomerPhone) {
		return nil, Placement{}, invalidInput("customer phone must be exactly %d digits", utils.CustomerPhoneLength)
	}
	if isZeroDate(cmd.DeliveryDate) {
		return nil, Placement{}, invalidInput("delivery date is required")
	}

	ctx, cancel := withTimeout(ctx, s.deps.Timeout)
	defer cancel()

	branch, ok, err := s.deps.Directory.Branch(ctx, cmd.BranchID)
	if err != nil {
		return nil, Placement{}, classify(err, "")
	}
	if !ok {
		return nil, Placement{}, invalidInput("unknown branch %q", cmd.BranchID)
	}
	loc, err := s.deps.Directory.ResolveDistrict(ctx, cmd.DistrictID)
	if err != nil {
		return nil, Placement{}, err
	}
	if cmd.TechnicianID != nil {
		if _, err := activeTechnician(ctx, s.deps.Directory, *cmd.TechnicianID); err != nil {
			return nil, Placement{}, err
		}
	}

	placement, err := s.deps.Scheduler.Place(ctx, PlacementRequest{
		Domain:        models.KindDelivery,
		RegionID:      loc.RegionID,
		RequestedDate: cmd.DeliveryDate,
	})
	if err != nil {
		return nil, Placement{}, err
	}

	order := &models.DeliveryOrder{
		ID:                   uuid.NewString(),
		BranchID:             branch.ID,
		Address:              cmd.Address,
		CustomerName:         cmd.CustomerName,
		CustomerPhone:        cmd.CustomerPhone,
		TechnicianID:         cmd.TechnicianID,
		DeliveryDate:         placement.Date,
		RequiresInstallation: cmd.RequiresInstallation,
		Status:               models.DeliveryPending,
		Notes:                cmd.Notes,
	}
	order.SetLocation(loc)

	err = s.insertNumbered(ctx, order, branch.Code)
	s.deps.Scheduler.Settle(ctx, models.KindDelivery, loc.RegionID, placement, nil, err)
	if err != nil {
		return nil, Placement{}, classify(err, order.ID)
	}

	recordTransition(ctx, s.deps, models.KindDelivery, order.ID, "", string(order.Status), cmd.Actor, "created")
	s.deps.Log.Info("delivery order created",
		"order_id", order.ID,
		"invoice_number", order.InvoiceNumber,
		"delivery_date", models.FormatDate(order.DeliveryDate),
		"was_adjusted", placement.WasAdjusted)
	return order, placement, nil
}

// insertNumbered assigns the next invoice number and inserts the order,
// drawing a fresh number when a collision is reported.
func (s *DeliveryService) insertNumbered(ctx context.Context, order *models.DeliveryOrder, branchCode string) error {
	year := currentYear()
	var err error
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		var seq int64
		seq, err = s.deps.Sequence.Next(ctx, InvoiceCounter(branchCode, year))
		if err != nil {
			return err
		}
		order.InvoiceNumber = FormatInvoiceNumber(branchCode, year, seq)
		err = s.deps.DB.WithContext(ctx).Create(order).Error
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
		s.deps.Log.Warn("invoice number collision, retrying", "invoice_number", order.InvoiceNumber)
	}
	return err
}

// Reschedule moves a pending delivery through the scheduler, keeping its slot
// when neither region nor date changes.
func (s *DeliveryService) Reschedule(ctx context.Context, cmd RescheduleDeliveryCommand) (*models.DeliveryOrder, Placement, error) {
	if err := validateStruct(cmd); err != nil {
		return nil, Placement{}, err
	}
	if isZeroDate(cmd.Date) {
		return nil, Placement{}, invalidInput("delivery date is required")
	}
	ctx, cancel := withTimeout(ctx, s.deps.Timeout)
	defer cancel()

	order, err := s.Get(ctx, cmd.ID)
	if err != nil {
		return nil, Placement{}, err
	}
	if order.Status != models.DeliveryPending {
		return nil, Placement{}, invalidTransition(order.ID, "only pending deliveries can be rescheduled (status %s)", order.Status)
	}

	loc := order.Location()
	if cmd.DistrictID != "" {
		if loc, err = s.deps.Directory.ResolveDistrict(ctx, cmd.DistrictID); err != nil {
			return nil, Placement{}, err
		}
	}
	if loc.RegionID == "" {
		return nil, Placement{}, invalidInput("order has no district; choose one to schedule it")
	}

	current := &Slot{RegionID: order.RegionID, Day: order.DeliveryDate}
	placement, err := s.deps.Scheduler.Place(ctx, PlacementRequest{
		Domain:        models.KindDelivery,
		RegionID:      loc.RegionID,
		RequestedDate: cmd.Date,
		OrderID:       order.ID,
		Current:       current,
	})
	if err != nil {
		return nil, Placement{}, err
	}

	err = compareAndSet(s.deps.DB.WithContext(ctx), &models.DeliveryOrder{}, order.ID, string(order.Status), order.StatusVersion,
		map[string]interface{}{
			"delivery_date":  placement.Date,
			"district_id":    loc.DistrictID,
			"region_id":      loc.RegionID,
			"governorate_id": loc.GovernorateID,
		})
	s.deps.Scheduler.Settle(ctx, models.KindDelivery, loc.RegionID, placement, current, err)
	if err != nil {
		return nil, Placement{}, classify(err, order.ID)
	}

	updated, err := s.Get(ctx, order.ID)
	return updated, placement, err
}

// Transition moves one delivery along its transition table
func (s *DeliveryService) Transition(ctx context.Context, cmd TransitionCommand) (*models.DeliveryOrder, error) {
	to := models.DeliveryStatus(cmd.To)
	if !to.Valid() {
		return nil, invalidInput("unknown delivery status %q", cmd.To)
	}
	ctx, cancel := withTimeout(ctx, s.deps.Timeout)
	defer cancel()

	order, err := s.Get(ctx, cmd.ID)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransition(to) {
		return nil, invalidTransition(order.ID, "cannot move delivery from %s to %s", order.Status, to)
	}

	from := order.Status
	err = compareAndSet(s.deps.DB.WithContext(ctx), &models.DeliveryOrder{}, order.ID, string(from), order.StatusVersion,
		map[string]interface{}{"status": to})
	if err != nil {
		return nil, classify(err, order.ID)
	}
	order.Status = to
	order.StatusVersion++

	recordTransition(ctx, s.deps, models.KindDelivery, order.ID, string(from), string(to), cmd.Actor, "")
	return order, nil
}

// ArchiveMany archives each id independently and reports per-id outcomes
func (s *DeliveryService) ArchiveMany(ctx context.Context, ids []string, actor string) *PartialFailure {
	report := runBatch(ctx, ids, s.deps.Concurrency, func(ctx context.Context, id string) error {
		_, err := s.Transition(ctx, TransitionCommand{ID: id, To: string(models.DeliveryArchived), Actor: actor})
		return err
	})
	for _, id := range report.FailedIDs() {
		s.deps.Log.Warn("delivery archive failed", "order_id", id, "code", CodeOf(report.Failed[id]))
	}
	return report
}

// AttachFile stores the delivery's single attachment, replacing any
// previous one.
func (s *DeliveryService) AttachFile(ctx context.Context, id, filename string, data []byte) (*models.DeliveryOrder, error) {
	ctx, cancel := withTimeout(ctx, s.deps.Timeout)
	defer cancel()

	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status == models.DeliveryArchived {
		return nil, invalidTransition(order.ID, "archived orders cannot be changed")
	}

	ref := models.BlobRef{Key: utils.ObjectKey(fmt.Sprintf("deliveries/%s", order.ID), filename), Name: filename}
	if err := s.deps.Blobs.Put(ctx, ref.Key, data, http.DetectContentType(data)); err != nil {
		return nil, classify(err, order.ID)
	}

	err = compareAndSet(s.deps.DB.WithContext(ctx), &models.DeliveryOrder{}, order.ID, string(order.Status), order.StatusVersion,
		map[string]interface{}{"attachment_key": ref.Key, "attachment_name": ref.Name})
	if err != nil {
		replaceBlob(ctx, s.deps, ref)
		return nil, classify(err, order.ID)
	}
	replaceBlob(ctx, s.deps, order.Attachment)

	order.Attachment = ref
	order.StatusVersion++
	return order, nil
}

// Get loads one delivery order
func (s *DeliveryService) Get(ctx context.Context, id string) (*models.DeliveryOrder, error) {
	var order models.DeliveryOrder
	if err := s.deps.DB.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, classify(err, id)
	}
	return &order, nil
}

// List returns delivery orders ordered by date
func (s *DeliveryService) List(ctx context.Context, f ListFilter) ([]models.DeliveryOrder, error) {
	ctx, cancel := withTimeout(ctx, s.deps.Timeout)
	defer cancel()

	q, err := applyListFilter(s.deps.DB.WithContext(ctx).Model(&models.DeliveryOrder{}), f, "delivery_date")
	if err != nil {
		return nil, err
	}
	var orders []models.DeliveryOrder
	if err := q.Order("delivery_date ASC, invoice_number ASC").Find(&orders).Error; err != nil {
		return nil, classify(err, "")
	}
	return orders, nil
}

// History returns the transition events for a delivery
func (s *DeliveryService) History(ctx context.Context, id string) ([]models.TransitionEvent, error) {
	ctx, cancel := withTimeout(ctx, s.deps.Timeout)
	defer cancel()
	events, err := s.deps.Events.History(ctx, models.KindDelivery, id)
	return events, classify(err, id)
}

// activeTechnician returns the technician when it exists and is active
func activeTechnician(ctx context.Context, dir *DirectoryCache, id string) (models.Technician, error) {
	tech, ok, err := dir.Technician(ctx, id)
	if err != nil {
		return models.Technician{}, classify(err, "")
	}
	if !ok {
		return models.Technician{}, newError(CodeTechnicianUnavailable, "", "unknown technician %q", id)
	}
	if tech.Status != models.TechnicianActive {
		return models.Technician{}, newError(CodeTechnicianUnavailable, "", "technician %s is %s", tech.Name, tech.Status)
	}
	return tech, nil
}
