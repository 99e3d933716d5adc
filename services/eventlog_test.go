package services

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/kendall-kelly/installations-scheduling-api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func exerciseEventLog(t *testing.T, log EventLog) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	events := []*models.TransitionEvent{
		{OrderKind: models.KindInstallation, OrderID: "order-1", ToStatus: "new", CreatedAt: base},
		{OrderKind: models.KindInstallation, OrderID: "order-1", FromStatus: "new", ToStatus: "confirmed", Actor: "operator-1", CreatedAt: base.Add(time.Minute)},
		{OrderKind: models.KindDelivery, OrderID: "order-1", ToStatus: "pending", CreatedAt: base},
	}
	for _, e := range events {
		require.NoError(t, log.Append(ctx, e))
	}

	history, err := log.History(ctx, models.KindInstallation, "order-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "new", history[0].ToStatus)
	assert.Equal(t, "confirmed", history[1].ToStatus)
	assert.Equal(t, "operator-1", history[1].Actor)

	empty, err := log.History(ctx, models.KindDelivery, "order-2")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestGormEventLog(t *testing.T) {
	exerciseEventLog(t, NewGormEventLog(newTestDB(t)))
}

// TestMongoEventLog runs only when a MongoDB server is available
func TestMongoEventLog(t *testing.T) {
	uri := os.Getenv("TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("TEST_MONGODB_URI not set")
	}
	ctx := context.Background()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	db := client.Database(fmt.Sprintf("events_test_%d", time.Now().UnixNano()))
	t.Cleanup(func() { _ = db.Drop(context.Background()) })

	log, err := NewMongoEventLog(ctx, db)
	require.NoError(t, err)
	exerciseEventLog(t, log)
}
