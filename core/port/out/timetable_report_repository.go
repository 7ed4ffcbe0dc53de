package out

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SyncReport is the archived outcome of one sync/recovery/cleanup run.
type SyncReport struct {
	ID            string    `bson:"id" json:"id"`
	UserID        string    `bson:"user_id" json:"user_id"`
	WeekStart     time.Time `bson:"week_start" json:"week_start"`
	Operation     string    `bson:"operation" json:"operation"`
	Created       int       `bson:"created" json:"created"`
	Updated       int       `bson:"updated" json:"updated"`
	Replaced      int       `bson:"replaced" json:"replaced"`
	Deleted       int       `bson:"deleted" json:"deleted"`
	Failed        int       `bson:"failed" json:"failed"`
	Skipped       int       `bson:"skipped" json:"skipped"`
	ReauthNeeded  bool      `bson:"reauth_needed" json:"reauth_needed"`
	StartedAt     time.Time `bson:"started_at" json:"started_at"`
	DurationMilli int64     `bson:"duration_ms" json:"duration_ms"`
}

// SyncReportRepository archives sync run outcomes.
type SyncReportRepository interface {
	Save(ctx context.Context, report *SyncReport) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*SyncReport, error)
}
