package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/kendall-kelly/installations-scheduling-api/models"
)

// ImportDraft is the installation order created from a delivery order.
// AddressIncomplete is set when the delivery's location could not be
// matched to a district and an operator must complete it.
type ImportDraft struct {
	Order             *models.InstallationOrder `json:"order"`
	AddressIncomplete bool                      `json:"address_incomplete"`
}

// Importer turns completed deliveries that need installation into
// installation orders, at most once per delivery.
type Importer struct {
	deps Dependencies
}

// NewImporter creates the importer
func NewImporter(deps Dependencies) *Importer {
	return &Importer{deps: deps.withDefaults()}
}

var importableStatuses = []models.DeliveryStatus{models.DeliveryCompleted, models.DeliveryArchived}

func importable(o *models.DeliveryOrder) bool {
	if !o.RequiresInstallation {
		return false
	}
	for _, s := range importableStatuses {
		if o.Status == s {
			return true
		}
	}
	return false
}

// ImportedSourceIDs scans installation orders for the deliveries they were
// imported from. The orders themselves are the ledger.
func (i *Importer) ImportedSourceIDs(ctx context.Context) (map[string]struct{}, error) {
	ctx, cancel := withTimeout(ctx, i.deps.Timeout)
	defer cancel()

	var ids []string
	err := i.deps.DB.WithContext(ctx).Model(&models.InstallationOrder{}).
		Where("source_type = ? AND source_id IS NOT NULL", models.SourceImported).
		Pluck("source_id", &ids).Error
	if err != nil {
		return nil, classify(err, "")
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// Candidates lists deliveries eligible for import that have not been
// imported yet.
func (i *Importer) Candidates(ctx context.Context) ([]models.DeliveryOrder, error) {
	imported, err := i.ImportedSourceIDs(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, i.deps.Timeout)
	defer cancel()

	var orders []models.DeliveryOrder
	err = i.deps.DB.WithContext(ctx).
		Where("requires_installation = ? AND status IN ?", true, importableStatuses).
		Order("delivery_date ASC, invoice_number ASC").
		Find(&orders).Error
	if err != nil {
		return nil, classify(err, "")
	}

	candidates := make([]models.DeliveryOrder, 0, len(orders))
	for _, o := range orders {
		if _, done := imported[o.ID]; !done {
			candidates = append(candidates, o)
		}
	}
	return candidates, nil
}

// Import creates an installation order from one delivery. A second import of
// the same delivery, even a concurrent one, fails with ALREADY_IMPORTED and
// never replaces the first.
func (i *Importer) Import(ctx context.Context, sourceID, actor string) (*ImportDraft, error) {
	if sourceID == "" {
		return nil, invalidInput("source order id is required")
	}
	ctx, cancel := withTimeout(ctx, i.deps.Timeout)
	defer cancel()

	var source models.DeliveryOrder
	if err := i.deps.DB.WithContext(ctx).Where("id = ?", sourceID).First(&source).Error; err != nil {
		i.deps.Metrics.imported("not_found")
		return nil, classify(err, sourceID)
	}
	if !importable(&source) {
		i.deps.Metrics.imported("ineligible")
		return nil, newError(CodeInvalidInput, sourceID,
			"delivery must be completed or archived and require installation (status %s)", source.Status)
	}

	var existing int64
	if err := i.deps.DB.WithContext(ctx).Model(&models.InstallationOrder{}).
		Where("source_id = ?", sourceID).Count(&existing).Error; err != nil {
		return nil, classify(err, sourceID)
	}
	if existing > 0 {
		i.deps.Metrics.imported("duplicate")
		return nil, newError(CodeAlreadyImported, sourceID, "delivery order was already imported")
	}

	loc, incomplete, err := i.resolveLocation(ctx, &source)
	if err != nil {
		return nil, err
	}

	src := source.ID
	order := &models.InstallationOrder{
		ID:                uuid.NewString(),
		SourceType:        models.SourceImported,
		SourceID:          &src,
		DocumentNumber:    source.InvoiceNumber,
		Address:           source.Address,
		AddressIncomplete: incomplete,
		CustomerName:      source.CustomerName,
		CustomerPhone:     source.CustomerPhone,
		ServiceTypes:      []models.ServiceType{models.ServiceInstall},
		Status:            models.InstallationNew,
		Notes:             source.Notes,
	}
	order.SetLocation(loc)

	if err := insertInstallation(ctx, i.deps, order); err != nil {
		if CodeOf(classify(err, sourceID)) == CodeAlreadyImported {
			i.deps.Metrics.imported("duplicate")
		}
		return nil, classify(err, sourceID)
	}

	i.deps.Metrics.imported("imported")
	recordTransition(ctx, i.deps, models.KindInstallation, order.ID, "", string(order.Status), actor, "imported from "+source.InvoiceNumber)
	i.deps.Log.Info("delivery imported",
		"source_id", sourceID,
		"order_id", order.ID,
		"sequence_number", order.SequenceNumber,
		"address_incomplete", incomplete)
	return &ImportDraft{Order: order, AddressIncomplete: incomplete}, nil
}

// resolveLocation re-derives the location from the delivery's district, or
// from its legacy free-text location by exact district name. No match leaves
// the location blank and flags the address incomplete.
func (i *Importer) resolveLocation(ctx context.Context, source *models.DeliveryOrder) (models.Location, bool, error) {
	if source.DistrictID != "" {
		loc, err := i.deps.Directory.ResolveDistrict(ctx, source.DistrictID)
		if err == nil {
			return loc, false, nil
		}
		if CodeOf(err) != CodeInvalidInput {
			return models.Location{}, false, err
		}
		// District no longer in the directory; keep what the delivery stored.
		return source.Location(), false, nil
	}

	d, ok, err := i.deps.Directory.FindDistrictByName(ctx, source.LocationName)
	if err != nil {
		return models.Location{}, false, classify(err, source.ID)
	}
	if !ok {
		return models.Location{}, true, nil
	}
	return models.Location{DistrictID: d.ID, RegionID: d.RegionID, GovernorateID: d.GovernorateID}, false, nil
}
