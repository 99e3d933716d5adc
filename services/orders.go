package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kendall-kelly/installations-scheduling-api/logger"
	"github.com/kendall-kelly/installations-scheduling-api/models"
	"gorm.io/gorm"
)

// Dependencies wires the collaborators shared by the order services
type Dependencies struct {
	DB          *gorm.DB
	Directory   *DirectoryCache
	Scheduler   *CapacityScheduler
	Sequence    Sequence
	Blobs       BlobStore
	Events      EventLog
	Metrics     *Metrics
	Log         logger.Logger
	Timeout     time.Duration
	Concurrency int
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Log == nil {
		d.Log = logger.NewNop()
	}
	if d.Events == nil {
		d.Events = NewGormEventLog(d.DB)
	}
	if d.Sequence == nil {
		d.Sequence = NewGormSequence(d.DB, OrderCountSeed(d.DB))
	}
	if d.Concurrency <= 0 {
		d.Concurrency = 8
	}
	return d
}

// TransitionCommand asks to move one order to a new status
type TransitionCommand struct {
	ID    string
	To    string
	Actor string
}

// ListFilter narrows order listings; zero fields are ignored
type ListFilter struct {
	Status       string
	RegionID     string
	TechnicianID string
	Date         string
	Limit        int
	Offset       int
}

var validate = validator.New()

// validateStruct runs struct tag validation and reports failures as
// INVALID_INPUT listing field:tag pairs.
func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return invalidInput("%v", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s:%s", fe.Field(), fe.Tag()))
	}
	sort.Strings(fields)
	return invalidInput("invalid fields %s", strings.Join(fields, ", "))
}

// compareAndSet applies updates only while the row is still at the status
// and version the caller read. Losing the race yields CONFLICT.
func compareAndSet(tx *gorm.DB, model interface{}, id, status string, version int, updates map[string]interface{}) error {
	updates["status_version"] = version + 1
	res := tx.Model(model).
		Where("id = ? AND status = ? AND status_version = ?", id, status, version).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return newError(CodeConflict, id, "order was modified concurrently")
	}
	return nil
}

// recordTransition appends to the event log. A failed append is logged and
// never undoes the transition.
func recordTransition(ctx context.Context, d Dependencies, kind models.OrderKind, id, from, to, actor, note string) {
	d.Metrics.transition(string(kind), to)
	event := &models.TransitionEvent{
		OrderKind:  kind,
		OrderID:    id,
		FromStatus: from,
		ToStatus:   to,
		Actor:      actor,
		Note:       note,
	}
	if err := d.Events.Append(ctx, event); err != nil {
		d.Log.Warn("failed to append transition event",
			"kind", kind, "order_id", id, "from", from, "to", to, "error", err)
	}
}

// replaceBlob deletes a superseded blob, tolerating a missing object
func replaceBlob(ctx context.Context, d Dependencies, old models.BlobRef) {
	if old.IsZero() {
		return
	}
	if err := d.Blobs.Delete(ctx, old.Key); err != nil && !errors.Is(err, ErrBlobNotFound) {
		d.Log.Warn("failed to delete replaced blob", "key", old.Key, "error", err)
	}
}

// applyListFilter adds the common listing conditions
func applyListFilter(q *gorm.DB, f ListFilter, dateColumn string) (*gorm.DB, error) {
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.RegionID != "" {
		q = q.Where("region_id = ?", f.RegionID)
	}
	if f.TechnicianID != "" {
		q = q.Where("technician_id = ?", f.TechnicianID)
	}
	if f.Date != "" {
		day, err := models.ParseDate(f.Date)
		if err != nil {
			return nil, invalidInput("%v", err)
		}
		q = q.Where(dateColumn+" = ?", day)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return q.Limit(limit).Offset(f.Offset), nil
}
