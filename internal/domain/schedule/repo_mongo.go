package schedule

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/medtrack/medtrack/internal/platform/mongodb"
)

// scheduleDoc is keyed by device id so each device has one document.
type scheduleDoc struct {
	ID        string     `bson:"_id"`
	DeviceID  string     `bson:"deviceId"`
	Morning   Slot       `bson:"morning"`
	Afternoon Slot       `bson:"afternoon"`
	Night     Slot       `bson:"night"`
	UpdatedAt *time.Time `bson:"updatedAt,omitempty"`
}

func (d *scheduleDoc) toSchedule() *Schedule {
	return &Schedule{
		ID:        d.ID,
		DeviceID:  d.DeviceID,
		Morning:   d.Morning,
		Afternoon: d.Afternoon,
		Night:     d.Night,
		UpdatedAt: d.UpdatedAt,
	}
}

type scheduleRepoMongo struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewRepoMongo(db *mongo.Database) Repository {
	return &scheduleRepoMongo{coll: db.Collection(mongodb.CollectionDoseTimes), now: time.Now}
}

// patchUpdate builds the upsert for p. Only the named slots are set.
func patchUpdate(p *Patch, now time.Time) bson.D {
	set := bson.D{{Key: "deviceId", Value: p.DeviceID}}
	for _, f := range p.Fields {
		set = append(set, bson.E{Key: f.Key(), Value: f.Value})
	}
	set = append(set, bson.E{Key: "updatedAt", Value: now})
	return bson.D{{Key: "$set", Value: set}}
}

func (r *scheduleRepoMongo) Get(ctx context.Context, deviceID string) (*Schedule, error) {
	var doc scheduleDoc
	if err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: deviceID}}).Decode(&doc); err != nil {
		if mongodb.IsNoDocuments(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find schedule: %w", err)
	}
	return doc.toSchedule(), nil
}

func (r *scheduleRepoMongo) Apply(ctx context.Context, p *Patch) (*Schedule, error) {
	var doc scheduleDoc
	err := r.coll.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: p.DeviceID}},
		patchUpdate(p, r.now().UTC()),
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("upsert schedule: %w", err)
	}
	return doc.toSchedule(), nil
}
