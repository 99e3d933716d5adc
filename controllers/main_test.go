package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kendall-kelly/installations-scheduling-api/logger"
	"github.com/kendall-kelly/installations-scheduling-api/middleware"
	"github.com/kendall-kelly/installations-scheduling-api/models"
	"github.com/kendall-kelly/installations-scheduling-api/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testServer struct {
	router    *gin.Engine
	db        *gorm.DB
	blobs     *services.MockBlobStore
	scheduler *services.CapacityScheduler
	publisher *capturePublisher
}

// capturePublisher records dispatched messages
type capturePublisher struct {
	messages []services.Message
}

func (p *capturePublisher) Publish(_ context.Context, msg services.Message) error {
	p.messages = append(p.messages, msg)
	return nil
}

func newTestServer(t *testing.T, deleteGuard ...gin.HandlerFunc) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

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

	seed := []interface{}{
		&models.Governorate{ID: "gov-cairo", Name: "Cairo"},
		&models.Region{ID: "reg-east", Name: "East Cairo", GovernorateID: "gov-cairo"},
		&models.District{ID: "dist-nasr", Name: "Nasr City", RegionID: "reg-east", GovernorateID: "gov-cairo"},
		&models.District{ID: "dist-helio", Name: "Heliopolis", RegionID: "reg-east", GovernorateID: "gov-cairo"},
		&models.Technician{ID: "tech-1", Name: "Omar", Phone: "01011111111", Status: models.TechnicianActive},
		&models.Technician{ID: "tech-2", Name: "Karim", Phone: "01022222222", Status: models.TechnicianActive},
		&models.Branch{ID: "br-1", Code: "CAI", Name: "Cairo Main"},
	}
	for _, r := range seed {
		require.NoError(t, db.Create(r).Error)
	}

	log := logger.NewNop()
	metrics := services.NewMetrics("test", prometheus.NewRegistry())
	scheduler := services.NewCapacityScheduler(db, log, 0, services.WithSchedulerMetrics(metrics))
	blobs := services.NewMockBlobStore()
	publisher := &capturePublisher{}

	h := NewHandlers(services.Dependencies{
		DB:          db,
		Directory:   services.NewDirectoryCache(db, 0),
		Scheduler:   scheduler,
		Blobs:       blobs,
		Metrics:     metrics,
		Log:         log,
		Concurrency: 4,
	}, services.NotificationConfig{CountryCode: "20", DeepLinkBaseURL: "https://ops.example.com"}, publisher)

	router := gin.New()
	api := router.Group("/api/v1")
	api.Use(middleware.TrustOperatorHeader())
	RegisterRoutes(api, h, deleteGuard...)

	return &testServer{router: router, db: db, blobs: blobs, scheduler: scheduler, publisher: publisher}
}

// do sends a JSON request as operator op-1 and decodes the envelope
func (s *testServer) do(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.OperatorHeader, "op-1")
	return s.serve(t, req)
}

// upload sends a multipart request with one file field
func (s *testServer) upload(t *testing.T, path, field, filename string, data []byte) (int, map[string]interface{}) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return s.serve(t, req)
}

func (s *testServer) serve(t *testing.T, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	return w.Code, response
}

func (s *testServer) setCapacity(t *testing.T, domain models.OrderKind, max int) {
	t.Helper()
	code, _ := s.do(t, http.MethodPut, "/api/v1/capacity/settings/"+string(domain), map[string]interface{}{
		"max_orders_per_region_per_day": max,
	})
	require.Equal(t, http.StatusOK, code)
}

func errorCode(response map[string]interface{}) string {
	errBody, ok := response["error"].(map[string]interface{})
	if !ok {
		return ""
	}
	code, _ := errBody["code"].(string)
	return code
}

func dataMap(t *testing.T, response map[string]interface{}) map[string]interface{} {
	t.Helper()
	data, ok := response["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object: %v", response)
	return data
}
