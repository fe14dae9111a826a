package patient

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

type patientDoc struct {
	ID             primitive.ObjectID   `bson:"_id,omitempty"`
	UserID         primitive.ObjectID   `bson:"userId"`
	Caregivers     []primitive.ObjectID `bson:"caregivers"`
	Name           string               `bson:"name"`
	Age            *int                 `bson:"age,omitempty"`
	CaregiverName  string               `bson:"caregiverName,omitempty"`
	CaregiverPhone string               `bson:"caregiverPhone,omitempty"`
	PatientEmail   *string              `bson:"patientEmail"`
	DeviceID       *string              `bson:"deviceId"`
	DeviceActive   bool                 `bson:"deviceActive"`
	DeviceLastSeen *time.Time           `bson:"deviceLastSeen"`
	CreatedAt      time.Time            `bson:"createdAt"`
	UpdatedAt      time.Time            `bson:"updatedAt"`
}

func (d *patientDoc) toPatient() *Patient {
	p := &Patient{
		ID:             d.ID.Hex(),
		UserID:         d.UserID.Hex(),
		Caregivers:     make([]string, 0, len(d.Caregivers)),
		Name:           d.Name,
		Age:            d.Age,
		CaregiverName:  d.CaregiverName,
		CaregiverPhone: d.CaregiverPhone,
		PatientEmail:   d.PatientEmail,
		DeviceID:       d.DeviceID,
		DeviceActive:   d.DeviceActive,
		DeviceLastSeen: d.DeviceLastSeen,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	for _, id := range d.Caregivers {
		p.Caregivers = append(p.Caregivers, id.Hex())
	}
	return p
}

type patientRepoMongo struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewRepoMongo(db *mongo.Database) Repository {
	return &patientRepoMongo{coll: db.Collection(mongodb.CollectionPatients), now: time.Now}
}

// visibleFilter matches patient id when userID owns it or is a caregiver.
// ok is false when either id is malformed and nothing can match.
func visibleFilter(id, userID string) (bson.D, bool) {
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, false
	}
	filter := bson.D{}
	if id != "" {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return nil, false
		}
		filter = append(filter, bson.E{Key: "_id", Value: oid})
	}
	filter = append(filter, bson.E{Key: "$or", Value: bson.A{
		bson.D{{Key: "userId", Value: uid}},
		bson.D{{Key: "caregivers", Value: uid}},
	}})
	return filter, true
}

func activeDeviceFilter(deviceID string) bson.D {
	return bson.D{{Key: "deviceId", Value: deviceID}, {Key: "deviceActive", Value: true}}
}

// updateSet builds the $set document for a profile edit.
func updateSet(req UpdateRequest, now time.Time) bson.D {
	set := bson.D{}
	if req.Name != nil {
		set = append(set, bson.E{Key: "name", Value: *req.Name})
	}
	if req.Age != nil {
		set = append(set, bson.E{Key: "age", Value: *req.Age})
	}
	if req.CaregiverName != nil {
		set = append(set, bson.E{Key: "caregiverName", Value: *req.CaregiverName})
	}
	if req.CaregiverPhone != nil {
		set = append(set, bson.E{Key: "caregiverPhone", Value: *req.CaregiverPhone})
	}
	if req.PatientEmail != nil {
		if *req.PatientEmail == "" {
			set = append(set, bson.E{Key: "patientEmail", Value: nil})
		} else {
			set = append(set, bson.E{Key: "patientEmail", Value: *req.PatientEmail})
		}
	}
	return append(set, bson.E{Key: "updatedAt", Value: now})
}

func (r *patientRepoMongo) findOne(ctx context.Context, filter bson.D) (*Patient, error) {
	var doc patientDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if mongodb.IsNoDocuments(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find patient: %w", err)
	}
	return doc.toPatient(), nil
}

func (r *patientRepoMongo) Create(ctx context.Context, p *Patient) error {
	uid, err := primitive.ObjectIDFromHex(p.UserID)
	if err != nil {
		return fmt.Errorf("invalid owner id %q: %w", p.UserID, err)
	}
	now := r.now().UTC()
	doc := patientDoc{
		ID:             primitive.NewObjectID(),
		UserID:         uid,
		Caregivers:     []primitive.ObjectID{},
		Name:           p.Name,
		Age:            p.Age,
		CaregiverName:  p.CaregiverName,
		CaregiverPhone: p.CaregiverPhone,
		PatientEmail:   p.PatientEmail,
		DeviceID:       p.DeviceID,
		DeviceActive:   p.DeviceActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, id := range p.Caregivers {
		cid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return fmt.Errorf("invalid caregiver id %q: %w", id, err)
		}
		doc.Caregivers = append(doc.Caregivers, cid)
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongodb.IsDuplicateKey(err) {
			return ErrDeviceInUse
		}
		return fmt.Errorf("insert patient: %w", err)
	}
	p.ID = doc.ID.Hex()
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

func (r *patientRepoMongo) GetVisible(ctx context.Context, id, userID string) (*Patient, error) {
	filter, ok := visibleFilter(id, userID)
	if !ok || id == "" {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, filter)
}

func (r *patientRepoMongo) ListVisible(ctx context.Context, userID string) ([]*Patient, error) {
	filter, ok := visibleFilter("", userID)
	if !ok {
		return []*Patient{}, nil
	}
	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find patients: %w", err)
	}
	defer cur.Close(ctx)

	patients := []*Patient{}
	for cur.Next(ctx) {
		var doc patientDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode patient: %w", err)
		}
		patients = append(patients, doc.toPatient())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate patients: %w", err)
	}
	return patients, nil
}

func (r *patientRepoMongo) Update(ctx context.Context, id, userID string, req UpdateRequest) (*Patient, error) {
	filter, ok := visibleFilter(id, userID)
	if !ok || id == "" {
		return nil, ErrNotFound
	}
	var doc patientDoc
	err := r.coll.FindOneAndUpdate(ctx, filter,
		bson.D{{Key: "$set", Value: updateSet(req, r.now().UTC())}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if mongodb.IsNoDocuments(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update patient: %w", err)
	}
	return doc.toPatient(), nil
}

func (r *patientRepoMongo) Delete(ctx context.Context, id, userID string) error {
	filter, ok := visibleFilter(id, userID)
	if !ok || id == "" {
		return ErrNotFound
	}
	res, err := r.coll.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *patientRepoMongo) ClaimByEmail(ctx context.Context, email, userID string) (int64, error) {
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q: %w", userID, err)
	}
	res, err := r.coll.UpdateMany(ctx,
		bson.D{{Key: "patientEmail", Value: email}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "userId", Value: uid},
			{Key: "updatedAt", Value: r.now().UTC()},
		}}},
	)
	if err != nil {
		return 0, fmt.Errorf("claim patients: %w", err)
	}
	return res.ModifiedCount, nil
}

func (r *patientRepoMongo) FindActiveByDevice(ctx context.Context, deviceID string) (*Patient, error) {
	return r.findOne(ctx, activeDeviceFilter(deviceID))
}

func (r *patientRepoMongo) DeviceInUse(ctx context.Context, deviceID, excludeID string) (bool, error) {
	filter := activeDeviceFilter(deviceID)
	if excludeID != "" {
		if oid, err := primitive.ObjectIDFromHex(excludeID); err == nil {
			filter = append(filter, bson.E{Key: "_id", Value: bson.D{{Key: "$ne", Value: oid}}})
		}
	}
	n, err := r.coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count device holders: %w", err)
	}
	return n > 0, nil
}

func (r *patientRepoMongo) SetDevice(ctx context.Context, id string, deviceID *string, active bool) (*Patient, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	var doc patientDoc
	err = r.coll.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "deviceId", Value: deviceID},
			{Key: "deviceActive", Value: active},
			{Key: "updatedAt", Value: r.now().UTC()},
		}}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		switch {
		case mongodb.IsNoDocuments(err):
			return nil, ErrNotFound
		case mongodb.IsDuplicateKey(err):
			return nil, ErrDeviceInUse
		}
		return nil, fmt.Errorf("set device: %w", err)
	}
	return doc.toPatient(), nil
}

func (r *patientRepoMongo) TouchDevice(ctx context.Context, deviceID string, at time.Time) error {
	res, err := r.coll.UpdateOne(ctx, activeDeviceFilter(deviceID),
		bson.D{{Key: "$set", Value: bson.D{{Key: "deviceLastSeen", Value: at.UTC()}}}},
	)
	if err != nil {
		return fmt.Errorf("touch device: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
