// Package in defines inbound ports (driving ports) for the application.
package in

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SyncSummary is the caller-facing action count summary of one engine run.
// ReauthRequired is set when the batch aborted on a dead credential and the
// user must re-consent.
type SyncSummary struct {
	Created        int  `json:"created"`
	Updated        int  `json:"updated"`
	Replaced       int  `json:"replaced"`
	Deleted        int  `json:"deleted"`
	Failed         int  `json:"failed"`
	Skipped        int  `json:"skipped"`
	Linked         int  `json:"linked,omitempty"`
	Relinked       int  `json:"relinked,omitempty"`
	Orphaned       int  `json:"orphaned,omitempty"`
	ReauthRequired bool `json:"reauth_required,omitempty"`
}

// Add folds another summary into this one. Used by multi-week resync.
func (s *SyncSummary) Add(o *SyncSummary) {
	s.Created += o.Created
	s.Updated += o.Updated
	s.Replaced += o.Replaced
	s.Deleted += o.Deleted
	s.Failed += o.Failed
	s.Skipped += o.Skipped
	s.Linked += o.Linked
	s.Relinked += o.Relinked
	s.Orphaned += o.Orphaned
	s.ReauthRequired = s.ReauthRequired || o.ReauthRequired
}

// SyncService is the caller-facing operation surface of the reconciliation
// engine. All operations are request-scoped and run to completion within
// the call.
type SyncService interface {
	// RunSync reconciles one (user, week) pair against the external
	// calendar. explicitDeletes are remote event ids the caller wants gone
	// (cleared cells), honored independently of slot matching.
	RunSync(ctx context.Context, userID uuid.UUID, weekStart time.Time, explicitDeletes []string) (*SyncSummary, error)

	// ForceResync reruns the full reconciliation for weeks consecutive
	// weeks starting at fromWeek.
	ForceResync(ctx context.Context, userID uuid.UUID, fromWeek time.Time, weeks int) (*SyncSummary, error)

	// Recover rebuilds or links local slots from tagged remote events.
	// Strictly additive, safe to invoke on every schedule load.
	Recover(ctx context.Context, userID uuid.UUID, weekStart time.Time) (*SyncSummary, error)

	// CleanupOrphans removes local slots whose remote twin vanished, after
	// a best-effort re-link attempt.
	CleanupOrphans(ctx context.Context, userID uuid.UUID, weekStart time.Time) (*SyncSummary, error)
}
