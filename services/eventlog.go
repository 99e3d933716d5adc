package services

import (
	"context"
	"time"

	"github.com/kendall-kelly/installations-scheduling-api/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/gorm"
)

// EventLog is the append-only history of status transitions
type EventLog interface {
	Append(ctx context.Context, event *models.TransitionEvent) error
	History(ctx context.Context, kind models.OrderKind, orderID string) ([]models.TransitionEvent, error)
}

// GormEventLog stores events in the transition_events table
type GormEventLog struct {
	db *gorm.DB
}

// NewGormEventLog creates a table-backed event log
func NewGormEventLog(db *gorm.DB) *GormEventLog {
	return &GormEventLog{db: db}
}

func (l *GormEventLog) Append(ctx context.Context, event *models.TransitionEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	return l.db.WithContext(ctx).Create(event).Error
}

func (l *GormEventLog) History(ctx context.Context, kind models.OrderKind, orderID string) ([]models.TransitionEvent, error) {
	var events []models.TransitionEvent
	err := l.db.WithContext(ctx).
		Where("order_kind = ? AND order_id = ?", kind, orderID).
		Order("created_at ASC, id ASC").
		Find(&events).Error
	return events, err
}

// MongoEventLog stores events in a MongoDB collection
type MongoEventLog struct {
	collection *mongo.Collection
}

// NewMongoEventLog creates the collection indexes and returns the log
func NewMongoEventLog(ctx context.Context, db *mongo.Database) (*MongoEventLog, error) {
	collection := db.Collection("transition_events")

	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "order_kind", Value: 1},
			{Key: "order_id", Value: 1},
			{Key: "created_at", Value: 1},
		},
	})
	if err != nil {
		return nil, err
	}
	return &MongoEventLog{collection: collection}, nil
}

func (l *MongoEventLog) Append(ctx context.Context, event *models.TransitionEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	_, err := l.collection.InsertOne(ctx, event)
	return err
}

func (l *MongoEventLog) History(ctx context.Context, kind models.OrderKind, orderID string) ([]models.TransitionEvent, error) {
	cursor, err := l.collection.Find(ctx,
		bson.M{"order_kind": kind, "order_id": orderID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var events []models.TransitionEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}
