package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ActiveDeviceIndex enforces that at most one active patient holds a given
// device id.
const ActiveDeviceIndex = "uniq_active_device"

// IndexModels lists the indexes for every collection.
func IndexModels() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		CollectionUsers: {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetName("uniq_email").SetUnique(true),
			},
		},
		CollectionPatients: {
			{
				Keys:    bson.D{{Key: "userId", Value: 1}},
				Options: options.Index().SetName("user_id"),
			},
			{
				Keys:    bson.D{{Key: "caregivers", Value: 1}},
				Options: options.Index().SetName("caregivers"),
			},
			{
				Keys:    bson.D{{Key: "patientEmail", Value: 1}},
				Options: options.Index().SetName("patient_email"),
			},
			{
				Keys: bson.D{{Key: "deviceId", Value: 1}},
				Options: options.Index().
					SetName(ActiveDeviceIndex).
					SetUnique(true).
					SetPartialFilterExpression(bson.D{
						{Key: "deviceActive", Value: true},
						{Key: "deviceId", Value: bson.D{{Key: "$type", Value: "string"}}},
					}),
			},
		},
		CollectionDoseLogs: {
			{
				Keys:    bson.D{{Key: "deviceId", Value: 1}, {Key: "timestamp", Value: -1}},
				Options: options.Index().SetName("device_timestamp"),
			},
		},
	}
}

// EnsureIndexes creates any missing indexes. Existing indexes with the same
// definition are left untouched by the server. Indexes are built one at a
// time: a unique index that existing documents already violate is skipped
// and reported once the rest are built, and the returned error then
// satisfies IsDuplicateKey. Any other failure stops immediately.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	var conflicts []error
	for coll, models := range IndexModels() {
		for _, m := range models {
			_, err := db.Collection(coll).Indexes().CreateOne(ctx, m)
			switch {
			case err == nil:
			case IsDuplicateKey(err):
				conflicts = append(conflicts, fmt.Errorf("create index %s on %s: %w", indexName(m), coll, err))
			default:
				return fmt.Errorf("create index %s on %s: %w", indexName(m), coll, err)
			}
		}
	}
	return errors.Join(conflicts...)
}

func indexName(m mongo.IndexModel) string {
	if m.Options != nil && m.Options.Name != nil {
		return *m.Options.Name
	}
	return "unnamed"
}
