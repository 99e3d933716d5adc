package services

import (
	"context"
	"errors"

	"github.com/kendall-kelly/installations-scheduling-api/models"
	"gorm.io/datatypes"
)

// DeletionService permanently removes archived orders together with every
// blob they reference.
type DeletionService struct {
	deps Dependencies
}

// NewDeletionService creates the deletion service
func NewDeletionService(deps Dependencies) *DeletionService {
	return &DeletionService{deps: deps.withDefaults()}
}

// deletable is the part of an order deletion needs
type deletable struct {
	id       string
	archived bool
	blobs    []models.BlobRef
	slot     Slot
	table    interface{}
}

// DeletePermanently deletes each id independently. Ids that are not archived
// are rejected before the blob store is contacted. For the rest every blob is
// deleted first, a missing blob counting as deleted, and only then the
// record; a blob failure keeps the record so the id can be retried.
func (s *DeletionService) DeletePermanently(ctx context.Context, kind models.OrderKind, ids []string) (*DeletionReport, error) {
	if !kind.Valid() {
		return nil, invalidInput("unknown order kind %q", kind)
	}
	report := runBatch(ctx, ids, s.deps.Concurrency, func(ctx context.Context, id string) error {
		return s.deleteOne(ctx, kind, id)
	})

	for _, id := range report.Succeeded {
		s.deps.Metrics.deletion(string(kind), "deleted")
		s.deps.Log.Info("order permanently deleted", "kind", kind, "order_id", id)
	}
	for _, id := range report.FailedIDs() {
		s.deps.Metrics.deletion(string(kind), "failed")
		s.deps.Log.Warn("order deletion failed", "kind", kind, "order_id", id, "error", report.Failed[id])
	}
	return report, nil
}

func (s *DeletionService) deleteOne(ctx context.Context, kind models.OrderKind, id string) error {
	ctx, cancel := withTimeout(ctx, s.deps.Timeout)
	defer cancel()

	target, err := s.load(ctx, kind, id)
	if err != nil {
		return err
	}
	if !target.archived {
		return invalidTransition(id, "only archived orders can be deleted permanently")
	}

	for _, ref := range target.blobs {
		err := s.deps.Blobs.Delete(ctx, ref.Key)
		if errors.Is(err, ErrBlobNotFound) {
			s.deps.Metrics.blobMissing()
			s.deps.Log.Debug("blob already gone", "order_id", id, "key", ref.Key)
			continue
		}
		if err != nil {
			return classify(err, id)
		}
	}

	res := s.deps.DB.WithContext(ctx).
		Where("id = ? AND status = ?", id, archivedStatus(kind)).
		Delete(target.table)
	if res.Error != nil {
		return classify(res.Error, id)
	}
	if res.RowsAffected == 0 {
		return newError(CodeConflict, id, "order changed while it was being deleted")
	}

	if err := s.deps.Scheduler.Release(ctx, kind, target.slot); err != nil {
		s.deps.Log.Warn("failed to release slot of deleted order", "order_id", id, "error", err)
	}
	return nil
}

func (s *DeletionService) load(ctx context.Context, kind models.OrderKind, id string) (*deletable, error) {
	db := s.deps.DB.WithContext(ctx)
	switch kind {
	case models.KindDelivery:
		var o models.DeliveryOrder
		if err := db.Where("id = ?", id).First(&o).Error; err != nil {
			return nil, classify(err, id)
		}
		return &deletable{
			id:       o.ID,
			archived: o.Status == models.DeliveryArchived,
			blobs:    o.Blobs(),
			slot:     Slot{RegionID: o.RegionID, Day: o.DeliveryDate},
			table:    &models.DeliveryOrder{},
		}, nil
	default:
		var o models.InstallationOrder
		if err := db.Where("id = ?", id).First(&o).Error; err != nil {
			return nil, classify(err, id)
		}
		var day datatypes.Date
		if o.InstallationDate != nil {
			day = *o.InstallationDate
		}
		return &deletable{
			id:       o.ID,
			archived: o.Status == models.InstallationArchived,
			blobs:    o.Blobs(),
			slot:     Slot{RegionID: o.RegionID, Day: day},
			table:    &models.InstallationOrder{},
		}, nil
	}
}

func archivedStatus(kind models.OrderKind) string {
	if kind == models.KindDelivery {
		return string(models.DeliveryArchived)
	}
	return string(models.InstallationArchived)
}
