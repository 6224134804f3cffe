// Package mongo implements the directory, ledger and device repositories on MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"facekiosk/internal/attendance"
	"facekiosk/internal/errs"
	"facekiosk/internal/worker"
)

const (
	workersCollection    = "workers"
	attendanceCollection = "attendance"
	devicesCollection    = "devices"
	tokensCollection     = "refresh_tokens"
)

type workerDoc struct {
	ID                primitive.ObjectID `bson:"_id,omitempty"`
	Name              string             `bson:"name"`
	Role              string             `bson:"role"`
	ReferencePhotoURL string             `bson:"reference_photo_url"`
	CreatedAt         time.Time          `bson:"created_at"`
}

func (d workerDoc) profile() worker.Profile {
	return worker.Profile{
		ID:                d.ID.Hex(),
		Name:              d.Name,
		Role:              d.Role,
		ReferencePhotoURL: d.ReferencePhotoURL,
		CreatedAt:         d.CreatedAt,
	}
}

type recordDoc struct {
	ID         primitive.ObjectID   `bson:"_id,omitempty"`
	WorkerID   string               `bson:"worker_id"`
	WorkerName string               `bson:"worker_name"`
	Timestamp  time.Time            `bson:"timestamp"`
	Location   *attendance.Location `bson:"location,omitempty"`
	Method     string               `bson:"method"`
	Verified   bool                 `bson:"verified"`
	UserAgent  string               `bson:"user_agent,omitempty"`
}

func (d recordDoc) record() attendance.Record {
	return attendance.Record{
		ID:         d.ID.Hex(),
		WorkerID:   d.WorkerID,
		WorkerName: d.WorkerName,
		Timestamp:  d.Timestamp,
		Location:   d.Location,
		Method:     attendance.Method(d.Method),
		Verified:   d.Verified,
		UserAgent:  d.UserAgent,
	}
}

// Repository persists workers, attendance records and devices in one database.
type Repository struct {
	client  *mongo.Client
	workers *mongo.Collection
	records *mongo.Collection
	devices *mongo.Collection
	tokens  *mongo.Collection
	now     func() time.Time
}

// Connect opens a client for uri and pings it.
func Connect(ctx context.Context, uri, database string) (*Repository, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return New(client, database), nil
}

// New wraps an existing client.
func New(client *mongo.Client, database string) *Repository {
	db := client.Database(database)
	return &Repository{
		client:  client,
		workers: db.Collection(workersCollection),
		records: db.Collection(attendanceCollection),
		devices: db.Collection(devicesCollection),
		tokens:  db.Collection(tokensCollection),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// EnsureIndexes creates the timestamp index used for newest-first listing.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	_, err := r.records.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "timestamp", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create attendance index: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (r *Repository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// Healthy pings the primary.
func (r *Repository) Healthy(ctx context.Context) bool {
	return r.client.Ping(ctx, nil) == nil
}

// -------- Workers --------

func (r *Repository) InsertWorker(ctx context.Context, p worker.Profile) (worker.Profile, error) {
	doc := workerDoc{
		ID:                primitive.NewObjectID(),
		Name:              p.Name,
		Role:              p.Role,
		ReferencePhotoURL: p.ReferencePhotoURL,
		CreatedAt:         r.now(),
	}
	if _, err := r.workers.InsertOne(ctx, doc); err != nil {
		return worker.Profile{}, err
	}
	return doc.profile(), nil
}

func (r *Repository) ListWorkers(ctx context.Context) ([]worker.Profile, error) {
	cursor, err := r.workers.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	var docs []workerDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	res := make([]worker.Profile, 0, len(docs))
	for _, d := range docs {
		res = append(res, d.profile())
	}
	return res, nil
}

func (r *Repository) GetWorker(ctx context.Context, id string) (worker.Profile, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return worker.Profile{}, errs.ErrNotFound
	}
	var doc workerDoc
	err = r.workers.FindOne(ctx, bson.M{"_id": objID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return worker.Profile{}, errs.ErrNotFound
	}
	if err != nil {
		return worker.Profile{}, err
	}
	return doc.profile(), nil
}

func (r *Repository) DeleteWorker(ctx context.Context, id string) error {
	return deleteByID(ctx, r.workers, id)
}

// -------- Attendance --------

func (r *Repository) InsertRecord(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	doc := recordDoc{
		ID:         primitive.NewObjectID(),
		WorkerID:   rec.WorkerID,
		WorkerName: rec.WorkerName,
		Timestamp:  r.now(),
		Location:   rec.Location,
		Method:     string(rec.Method),
		Verified:   rec.Verified,
		UserAgent:  rec.UserAgent,
	}
	if _, err := r.records.InsertOne(ctx, doc); err != nil {
		return attendance.Record{}, err
	}
	return doc.record(), nil
}

func (r *Repository) ListRecords(ctx context.Context) ([]attendance.Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	cursor, err := r.records.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	var docs []recordDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	res := make([]attendance.Record, 0, len(docs))
	for _, d := range docs {
		res = append(res, d.record())
	}
	return res, nil
}

func (r *Repository) DeleteRecord(ctx context.Context, id string) error {
	return deleteByID(ctx, r.records, id)
}

// -------- Devices --------

func (r *Repository) UpsertDevice(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return errs.Required("device_id")
	}
	_, err := r.devices.UpdateOne(ctx,
		bson.M{"_id": deviceID},
		bson.M{"$setOnInsert": bson.M{"registered_at": r.now()}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *Repository) SaveRefreshToken(ctx context.Context, deviceID, token string, expiresAt time.Time) error {
	_, err := r.tokens.InsertOne(ctx, bson.M{
		"_id":        token,
		"device_id":  deviceID,
		"expires_at": expiresAt,
		"revoked":    false,
	})
	return err
}

func (r *Repository) ConsumeRefreshToken(ctx context.Context, token string) (string, error) {
	var doc struct {
		DeviceID string `bson:"device_id"`
	}
	err := r.tokens.FindOneAndUpdate(ctx,
		bson.M{"_id": token, "revoked": false, "expires_at": bson.M{"$gt": r.now()}},
		bson.M{"$set": bson.M{"revoked": true}},
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", errs.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return doc.DeviceID, nil
}

func deleteByID(ctx context.Context, coll *mongo.Collection, id string) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return errs.ErrNotFound
	}
	res, err := coll.DeleteOne(ctx, bson.M{"_id": objID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return errs.ErrNotFound
	}
	return nil
}
