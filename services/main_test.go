package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/kendall-kelly/installations-scheduling-api/logger"
	"github.com/kendall-kelly/installations-scheduling-api/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB opens a private in-memory SQLite database. A single connection
// keeps the in-memory database alive and serializes writers.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// seedDirectory creates one governorate with two regions:
//
//	reg-east: dist-nasr "Nasr City", dist-helio "Heliopolis"
//	reg-west: dist-dokki "Dokki"
func seedDirectory(t *testing.T, db *gorm.DB) {
	t.Helper()
	records := []interface{}{
		&models.Governorate{ID: "gov-cairo", Name: "Cairo"},
		&models.Region{ID: "reg-east", Name: "East Cairo", GovernorateID: "gov-cairo"},
		&models.Region{ID: "reg-west", Name: "West Cairo", GovernorateID: "gov-cairo"},
		&models.District{ID: "dist-nasr", Name: "Nasr City", RegionID: "reg-east", GovernorateID: "gov-cairo"},
		&models.District{ID: "dist-helio", Name: "Heliopolis", RegionID: "reg-east", GovernorateID: "gov-cairo"},
		&models.District{ID: "dist-dokki", Name: "Dokki", RegionID: "reg-west", GovernorateID: "gov-cairo"},
		&models.Technician{ID: "tech-1", Name: "Omar", Phone: "01011111111", Status: models.TechnicianActive},
		&models.Technician{ID: "tech-2", Name: "Karim", Phone: "01022222222", Status: models.TechnicianActive},
		&models.Technician{ID: "tech-3", Name: "Hany", Phone: "01033333333", Status: models.TechnicianOnLeave},
		&models.Technician{ID: "tech-4", Name: "Sami", Phone: "", Status: models.TechnicianActive},
		&models.Branch{ID: "br-1", Code: "CAI", Name: "Cairo Main"},
	}
	for _, r := range records {
		require.NoError(t, db.Create(r).Error)
	}
}

type fixture struct {
	db        *gorm.DB
	blobs     *MockBlobStore
	scheduler *CapacityScheduler
	deps      Dependencies
}

func newFixture(t *testing.T, opts ...SchedulerOption) *fixture {
	t.Helper()
	db := newTestDB(t)
	seedDirectory(t, db)

	log := logger.NewNop()
	metrics := NewMetrics("test", prometheus.NewRegistry())
	scheduler := NewCapacityScheduler(db, log, 0, append([]SchedulerOption{WithSchedulerMetrics(metrics)}, opts...)...)
	blobs := NewMockBlobStore()

	previousYear := currentYear
	currentYear = func() int { return 2024 }
	t.Cleanup(func() { currentYear = previousYear })

	return &fixture{
		db:        db,
		blobs:     blobs,
		scheduler: scheduler,
		deps: Dependencies{
			DB:          db,
			Directory:   NewDirectoryCache(db, 0),
			Scheduler:   scheduler,
			Blobs:       blobs,
			Metrics:     metrics,
			Log:         log,
			Concurrency: 4,
		}.withDefaults(),
	}
}

func (f *fixture) setCapacity(t *testing.T, domain models.OrderKind, max int, allowZero bool) {
	t.Helper()
	_, err := f.scheduler.SaveSetting(context.Background(), models.RegionCapacitySetting{
		Domain:                   domain,
		MaxOrdersPerRegionPerDay: max,
		AllowZeroLimit:           allowZero,
	})
	require.NoError(t, err)
}

func (f *fixture) reserved(t *testing.T, domain models.OrderKind, regionID string, day string) int {
	t.Helper()
	var slot models.CapacitySlot
	err := f.db.Where("domain = ? AND region_id = ? AND day = ?", domain, regionID, mustDate(t, day)).First(&slot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0
	}
	require.NoError(t, err)
	return slot.Reserved
}

func (f *fixture) insertDelivery(t *testing.T, mutate func(o *models.DeliveryOrder)) *models.DeliveryOrder {
	t.Helper()
	o := &models.DeliveryOrder{
		ID:            uuid.NewString(),
		InvoiceNumber: "INV-CAI-24-" + uuid.NewString()[:8],
		BranchID:      "br-1",
		DistrictID:    "dist-nasr",
		RegionID:      "reg-east",
		GovernorateID: "gov-cairo",
		Address:       "12 Makram Ebeid St",
		CustomerName:  "Mona Adel",
		CustomerPhone: "1012345678",
		DeliveryDate:  models.NewDate(2024, 3, 1),
		Status:        models.DeliveryPending,
	}
	if mutate != nil {
		mutate(o)
	}
	require.NoError(t, f.db.Create(o).Error)
	return o
}

func (f *fixture) insertInstallation(t *testing.T, mutate func(o *models.InstallationOrder)) *models.InstallationOrder {
	t.Helper()
	id := uuid.NewString()
	o := &models.InstallationOrder{
		ID:             id,
		SequenceNumber: "INS-T" + id[:8],
		SourceType:     models.SourceManual,
		DistrictID:     "dist-nasr",
		RegionID:       "reg-east",
		GovernorateID:  "gov-cairo",
		Address:        "5 Abbas El Akkad St",
		CustomerName:   "Youssef Nabil",
		CustomerPhone:  "1098765432",
		ServiceTypes:   []models.ServiceType{models.ServiceInstall},
		Status:         models.InstallationNew,
	}
	if mutate != nil {
		mutate(o)
	}
	require.NoError(t, f.db.Create(o).Error)
	return o
}

func mustDate(t *testing.T, s string) datatypes.Date {
	t.Helper()
	d, err := models.ParseDate(s)
	require.NoError(t, err)
	return d
}

// recordingPublisher captures published messages
type recordingPublisher struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}
