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

// CreateInstallationCommand carries a manually entered installation order.
// When InstallationDate is set the order is placed and confirmed at once.
type CreateInstallationCommand struct {
	DistrictID       string `validate:"required"`
	Address          string `validate:"max=512"`
	CustomerName     string `validate:"required,max=255"`
	CustomerPhone    string
	ServiceTypes     []models.ServiceType
	InstallationDate *datatypes.Date
	Notes            string
	Actor            string
}

// ConfirmCommand schedules an installation, moving it to confirmed
type ConfirmCommand struct {
	ID    string `validate:"required"`
	Date  datatypes.Date
	Actor string
}

// InstallationService manages installation orders and their transitions
type InstallationService struct {
	deps Dependencies
}

// NewInstallationService creates the installation order service
func NewInstallationService(deps Dependencies) *InstallationService {
	return &InstallationService{deps: deps.withDefaults()}
}

// Create stores a manual installation order
func (s *InstallationService) Create(ctx context.Context, cmd CreateInstallationCommand) (*models.InstallationOrder, Placement, error) {
	if err := validateStruct(cmd); err != nil {
		return nil, Placement{}, err
	}
	if cmd.CustomerPhone != "" && !utils.ValidCustomerPhone(cmd.CustomerPhone) {
		return nil, Placement{}, invalidInput("customer phone must be exactly %d digits", utils.CustomerPhoneLength)
	}
	services, err := normalizeServiceTypes(cmd.ServiceTypes)
	if err != nil {
		return nil, Placement{}, err
	}

	ctx, cancel := withTimeout(ctx, s.deps.Timeout)
	defer cancel()

	loc, err := s.deps.Directory.ResolveDistrict(ctx, cmd.DistrictID)
	if err != nil {
		return nil, Placement{}, err
	}

	order := &models.InstallationOrder{
		ID:            uuid.NewString(),
		SourceType:    models.SourceManual,
		Address:       cmd.Address,
		CustomerName:  cmd.CustomerName,
		CustomerPhone: cmd.CustomerPhone,
		ServiceTypes:  services,
		Status:        models.InstallationNew,
		Notes:         cmd.Notes,
	}
	order.SetLocation(loc)

	var placement Placement
	if cmd.InstallationDate != nil && !isZeroDate(*cmd.InstallationDate) {
		placement, err = s.deps.Scheduler.Place(ctx, PlacementRequest{
			Domain:        models.KindInstallation,
			RegionID:      loc.RegionID,
			RequestedDate: *cmd.InstallationDate,
		})
		if err != nil {
			return nil, Placement{}, err
		}
		day := placement.Date
		order.InstallationDate = &day
		order.Status = models.InstallationConfirmed
	}

	err = insertInstallation(ctx, s.deps, order)
	s.deps.Scheduler.Settle(ctx, models.KindInstallation, loc.RegionID, placement, nil, err)
	if err != nil {
		return nil, Placement{}, classify(err, order.ID)
	}

	recordTransition(ctx, s.deps, models.KindInstallation, order.ID, "", string(order.Status), cmd.Actor, "created")
	s.deps.Log.Info("installation order created", "order_id", order.ID, "sequence_number", order.SequenceNumber)
	return order, placement, nil
}

// insertInstallation numbers and inserts an installation order. A unique
// violation on source_id means another import won and yields
// ALREADY_IMPORTED; a number collision draws a fresh number.
func insertInstallation(ctx context.Context, deps Dependencies, order *models.InstallationOrder) error {
	var err error
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		var seq int64
		seq, err = deps.Sequence.Next(ctx, installationCounter)
		if err != nil {
			return err
		}
		order.SequenceNumber = FormatInstallationNumber(seq)
		err = deps.DB.WithContext(ctx).Create(order).Error
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
		if order.SourceID != nil {
			var n int64
			if cerr := deps.DB.WithContext(ctx).Model(&models.InstallationOrder{}).
				Where("source_id = ?", *order.SourceID).Count(&n).Error; cerr == nil && n > 0 {
				return newError(CodeAlreadyImported, *order.SourceID, "delivery order was already imported")
			}
		}
		deps.Log.Warn("installation number collision, retrying", "sequence_number", order.SequenceNumber)
	}
	return err
}

// Confirm places the installation date and moves new orders to confirmed.
// Confirmed orders are rescheduled in place.
func (s *InstallationService) Confirm(ctx context.Context, cmd ConfirmCommand) (*models.InstallationOrder, Placement, error) {
	if err := validateStruct(cmd); err != nil {
		return nil, Placement{}, err
	}
	if isZeroDate(cmd.Date) {
		return nil, Placement{}, invalidInput("installation date is required")
	}
	ctx, cancel := withTimeout(ctx, s.deps.Timeout)
	defer cancel()

	order, err := s.Get(ctx, cmd.ID)
	if err != nil {
		return nil, Placement{}, err
	}
	if order.Status != models.InstallationNew && order.Status != models.InstallationConfirmed {
		return nil, Placement{}, invalidTransition(order.ID, "cannot schedule an order in status %s", order.Status)
	}
	if order.RegionID == "" {
		return nil, Placement{}, invalidInput("order has no district; complete the address before scheduling")
	}

	var current *Slot
	if order.InstallationDate != nil {
		current = &Slot{RegionID: order.RegionID, Day: *order.InstallationDate}
	}
	placement, err := s.deps.Scheduler.Place(ctx, PlacementRequest{
		Domain:        models.KindInstallation,
		RegionID:      order.RegionID,
		RequestedDate: cmd.Date,
		OrderID:       order.ID,
		Current:       current,
	})
	if err != nil {
		return nil, Placement{}, err
	}

	from := order.Status
	err = compareAndSet(s.deps.DB.WithContext(ctx), &models.InstallationOrder{}, order.ID, string(from), order.StatusVersion,
		map[string]interface{}{
			"installation_date": placement.Date,
			"status":            models.InstallationConfirmed,
		})
	s.deps.Scheduler.Settle(ctx, models.KindInstallation, order.RegionID, placement, current, err)
	if err != nil {
		return nil, Placement{}, classify(err, order.ID)
	}

	day := placement.Date
	order.InstallationDate = &day
	order.Status = models.InstallationConfirmed
	order.StatusVersion++
	note := ""
	if from == models.InstallationConfirmed {
		note = "rescheduled"
	}
	recordTransition(ctx, s.deps, models.KindInstallation, order.ID, string(from), string(order.Status), cmd.Actor, note)
	return order, placement, nil
}

// SetDistrict completes or corrects an order's location. A scheduled order is
// re-placed in the new region on the same date.
func (s *InstallationService) SetDistrict(ctx context.Context, id, districtID, address, actor string) (*models.InstallationOrder, error) {
	ctx, cancel := withTimeout(ctx, s.deps.Timeout)
	defer cancel()

	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status == models.InstallationArchived {
		return nil, invalidTransition(order.ID, "archived orders cannot be changed")
	}
	loc, err := s.deps.Directory.ResolveDistrict(ctx, districtID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"district_id":        loc.DistrictID,
		"region_id":          loc.RegionID,
		"governorate_id":     loc.GovernorateID,
		"address_incomplete": false,
	}
	if address != "" {
		updates["address"] = address
	}

	var (
		placement Placement
		current   *Slot
	)
	if order.InstallationDate != nil {
		current = &Slot{RegionID: order.RegionID, Day: *order.InstallationDate}
		placement, err = s.deps.Scheduler.Place(ctx, PlacementRequest{
			Domain:        models.KindInstallation,
			RegionID:      loc.RegionID,
			RequestedDate: *order.InstallationDate,
			OrderID:       order.ID,
			Current:       current,
		})
		if err != nil {
			return nil, err
		}
		updates["installation_date"] = placement.Date
	}

	err = compareAndSet(s.deps.DB.WithContext(ctx), &models.InstallationOrder{}, order.ID, string(order.Status), order.StatusVersion, updates)
	s.deps.Scheduler.Settle(ctx, models.KindInstallation, loc.RegionID, placement, current, err)
	if err != nil {
		return nil, classify(err, order.ID)
	}
	s.deps.Log.Info("installation location updated", "order_id", order.ID, "district_id", loc.DistrictID, "actor", actor)
	return s.Get(ctx, order.ID)
}

// AssignTechnician sets the technician on any non-archived order. Only
// active technicians can be assigned.
func (s *InstallationService) AssignTechnician(ctx context.Context, id, technicianID, actor string) (*models.InstallationOrder, error) {
	ctx, cancel := withTimeout(ctx, s.deps.Timeout)
	defer cancel()

	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status == models.InstallationArchived {
		return nil, invalidTransition(order.ID, "archived orders cannot be reassigned")
	}
	tech, err := activeTechnician(ctx, s.deps.Directory, technicianID)
	if err != nil {
		var oe *OrderError
		if errors.As(err, &oe) {
			oe.ID = order.ID
		}
		return nil, err
	}

	err = compareAndSet(s.deps.DB.WithContext(ctx), &models.InstallationOrder{}, order.ID, string(order.Status), order.StatusVersion,
		map[string]interface{}{
			"technician_id":    tech.ID,
			"technician_name":  tech.Name,
			"technician_phone": tech.Phone,
		})
	if err != nil {
		return nil, classify(err, order.ID)
	}

	order.TechnicianID = &tech.ID
	order.TechnicianName = tech.Name
	order.TechnicianPhone = tech.Phone
	order.StatusVersion++
	recordTransition(ctx, s.deps, models.KindInstallation, order.ID, string(order.Status), string(order.Status), actor,
		fmt.Sprintf("technician %s assigned", tech.ID))
	return order, nil
}

// AttachImage uploads a before or after evidence image, replacing the
// previous image in that slot.
func (s *InstallationService) AttachImage(ctx context.Context, id string, slot models.EvidenceSlot, filename string, data []byte) (*models.InstallationOrder, error) {
	if slot != models.EvidenceBefore && slot != models.EvidenceAfter {
		return nil, invalidInput("unknown image slot %q", slot)
	}
	ctx, cancel := withTimeout(ctx, s.deps.Timeout)
	defer cancel()

	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status == models.InstallationArchived {
		return nil, invalidTransition(order.ID, "archived orders cannot be changed")
	}

	ref := models.BlobRef{Key: utils.ObjectKey(fmt.Sprintf("installations/%s/%s", order.ID, slot), filename), Name: filename}
	if err := s.deps.Blobs.Put(ctx, ref.Key, data, http.DetectContentType(data)); err != nil {
		return nil, classify(err, order.ID)
	}

	prefix := string(slot) + "_image_"
	err = compareAndSet(s.deps.DB.WithContext(ctx), &models.InstallationOrder{}, order.ID, string(order.Status), order.StatusVersion,
		map[string]interface{}{prefix + "key": ref.Key, prefix + "name": ref.Name})
	if err != nil {
		replaceBlob(ctx, s.deps, ref)
		return nil, classify(err, order.ID)
	}
	replaceBlob(ctx, s.deps, order.Image(slot))

	if slot == models.EvidenceAfter {
		order.AfterImage = ref
	} else {
		order.BeforeImage = ref
	}
	order.StatusVersion++
	return order, nil
}

// Transition moves one installation along its transition table, enforcing
// the date precondition for confirmed and the evidence precondition for
// completed.
func (s *InstallationService) Transition(ctx context.Context, cmd TransitionCommand) (*models.InstallationOrder, error) {
	to := models.InstallationStatus(cmd.To)
	if !to.Valid() {
		return nil, invalidInput("unknown installation status %q", cmd.To)
	}
	ctx, cancel := withTimeout(ctx, s.deps.Timeout)
	defer cancel()

	order, err := s.Get(ctx, cmd.ID)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransition(to) {
		return nil, invalidTransition(order.ID, "cannot move installation from %s to %s", order.Status, to)
	}
	switch to {
	case models.InstallationConfirmed:
		if order.InstallationDate == nil {
			return nil, invalidTransition(order.ID, "an installation date is required before confirming")
		}
	case models.InstallationCompleted:
		if !order.HasEvidence() {
			return nil, invalidTransition(order.ID, "both before and after images are required to complete")
		}
	}

	from := order.Status
	err = compareAndSet(s.deps.DB.WithContext(ctx), &models.InstallationOrder{}, order.ID, string(from), order.StatusVersion,
		map[string]interface{}{"status": to})
	if err != nil {
		return nil, classify(err, order.ID)
	}
	order.Status = to
	order.StatusVersion++

	recordTransition(ctx, s.deps, models.KindInstallation, order.ID, string(from), string(to), cmd.Actor, "")
	return order, nil
}

// Complete marks a confirmed installation as done
func (s *InstallationService) Complete(ctx context.Context, id, actor string) (*models.InstallationOrder, error) {
	return s.Transition(ctx, TransitionCommand{ID: id, To: string(models.InstallationCompleted), Actor: actor})
}

// Archive archives a confirmed or completed installation
func (s *InstallationService) Archive(ctx context.Context, id, actor string) (*models.InstallationOrder, error) {
	return s.Transition(ctx, TransitionCommand{ID: id, To: string(models.InstallationArchived), Actor: actor})
}

// ArchiveMany archives each id independently and reports per-id outcomes
func (s *InstallationService) ArchiveMany(ctx context.Context, ids []string, actor string) *PartialFailure {
	report := runBatch(ctx, ids, s.deps.Concurrency, func(ctx context.Context, id string) error {
		_, err := s.Archive(ctx, id, actor)
		return err
	})
	for _, id := range report.FailedIDs() {
		s.deps.Log.Warn("installation archive failed", "order_id", id, "code", CodeOf(report.Failed[id]))
	}
	return report
}

// Get loads one installation order
func (s *InstallationService) Get(ctx context.Context, id string) (*models.InstallationOrder, error) {
	var order models.InstallationOrder
	if err := s.deps.DB.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, classify(err, id)
	}
	return &order, nil
}

// List returns installation orders ordered by sequence number
func (s *InstallationService) List(ctx context.Context, f ListFilter) ([]models.InstallationOrder, error) {
	ctx, cancel := withTimeout(ctx, s.deps.Timeout)
	defer cancel()

	q, err := applyListFilter(s.deps.DB.WithContext(ctx).Model(&models.InstallationOrder{}), f, "installation_date")
	if err != nil {
		return nil, err
	}
	var orders []models.InstallationOrder
	if err := q.Order("sequence_number ASC").Find(&orders).Error; err != nil {
		return nil, classify(err, "")
	}
	return orders, nil
}

// History returns the transition events for an installation
func (s *InstallationService) History(ctx context.Context, id string) ([]models.TransitionEvent, error) {
	ctx, cancel := withTimeout(ctx, s.deps.Timeout)
	defer cancel()
	events, err := s.deps.Events.History(ctx, models.KindInstallation, id)
	return events, classify(err, id)
}

// ImageURL returns a temporary URL for an evidence image
func (s *InstallationService) ImageURL(ctx context.Context, order *models.InstallationOrder, slot models.EvidenceSlot) (string, error) {
	ref := order.Image(slot)
	if ref.IsZero() {
		return "", nil
	}
	url, err := s.deps.Blobs.URL(ctx, ref.Key)
	return url, classify(err, order.ID)
}

// normalizeServiceTypes defaults to install and rejects unknown or
// duplicate entries.
func normalizeServiceTypes(in []models.ServiceType) ([]models.ServiceType, error) {
	if len(in) == 0 {
		return []models.ServiceType{models.ServiceInstall}, nil
	}
	seen := make(map[models.ServiceType]bool, len(in))
	out := make([]models.ServiceType, 0, len(in))
	for _, t := range in {
		if !t.Valid() {
			return nil, invalidInput("unknown service type %q", t)
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out, nil
}
