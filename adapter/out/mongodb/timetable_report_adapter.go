// Package mongodb implements MongoDB adapters for the application.
package mongodb

import (
	"context"

	"timetable_server/core/port/out"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionSyncReports = "sync_reports"

// ReportAdapter implements out.SyncReportRepository using MongoDB.
type ReportAdapter struct {
	db         *mongo.Database
	collection *mongo.Collection
}

var _ out.SyncReportRepository = (*ReportAdapter)(nil)

// NewReportAdapter creates a new MongoDB report adapter.
func NewReportAdapter(db *mongo.Database) *ReportAdapter {
	return &ReportAdapter{
		db:         db,
		collection: db.Collection(collectionSyncReports),
	}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *ReportAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "started_at", Value: -1},
			},
		},
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "week_start", Value: 1},
			},
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// Save archives one run outcome.
func (a *ReportAdapter) Save(ctx context.Context, report *out.SyncReport) error {
	opts := options.Replace().SetUpsert(true)
	_, err := a.collection.ReplaceOne(ctx, bson.M{"id": report.ID}, report, opts)
	return err
}

// ListByUser returns the most recent reports for a user, newest first.
func (a *ReportAdapter) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*out.SyncReport, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := a.collection.Find(ctx, bson.M{"user_id": userID.String()}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var reports []*out.SyncReport
	if err := cursor.All(ctx, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}
