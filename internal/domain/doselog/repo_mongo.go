package doselog

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/medtrack/medtrack/internal/platform/mongodb"
)

type eventDoc struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	DeviceID      string             `bson:"deviceId"`
	Date          string             `bson:"date"`
	Meal          string             `bson:"meal"`
	Timing        string             `bson:"timing"`
	ScheduledTime string             `bson:"scheduledTime"`
	Status        string             `bson:"status"`
	Timestamp     time.Time          `bson:"timestamp"`
}

func (d *eventDoc) toEvent() *Event {
	return &Event{
		ID:            d.ID.Hex(),
		DeviceID:      d.DeviceID,
		Date:          d.Date,
		Meal:          d.Meal,
		Timing:        d.Timing,
		ScheduledTime: d.ScheduledTime,
		Status:        d.Status,
		Timestamp:     d.Timestamp,
	}
}

type eventRepoMongo struct {
	coll *mongo.Collection
}

func NewRepoMongo(db *mongo.Database) Repository {
	return &eventRepoMongo{coll: db.Collection(mongodb.CollectionDoseLogs)}
}

func (r *eventRepoMongo) Append(ctx context.Context, e *Event) error {
	doc := eventDoc{
		ID:            primitive.NewObjectID(),
		DeviceID:      e.DeviceID,
		Date:          e.Date,
		Meal:          e.Meal,
		Timing:        e.Timing,
		ScheduledTime: e.ScheduledTime,
		Status:        e.Status,
		Timestamp:     e.Timestamp,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert dose event: %w", err)
	}
	e.ID = doc.ID.Hex()
	return nil
}

func (r *eventRepoMongo) ListByDevice(ctx context.Context, deviceID string, limit int) ([]*Event, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := r.coll.Find(ctx, bson.D{{Key: "deviceId", Value: deviceID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("find dose events: %w", err)
	}
	defer cur.Close(ctx)

	events := make([]*Event, 0)
	for cur.Next(ctx) {
		var doc eventDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode dose event: %w", err)
		}
		events = append(events, doc.toEvent())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate dose events: %w", err)
	}
	return events, nil
}
