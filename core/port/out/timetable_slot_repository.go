package out

import (
	"context"
	"time"

	"timetable_server/core/domain"

	"github.com/google/uuid"
)

// SlotRepository is the local store for schedule slots, keyed by
// (user, week, weekday, period range).
type SlotRepository interface {
	// ListWeek returns all slots for one (user, week), ordered by weekday
	// then period start.
	ListWeek(ctx context.Context, userID uuid.UUID, weekStart time.Time) ([]*domain.ScheduleSlot, error)

	// Create inserts a single slot.
	Create(ctx context.Context, slot *domain.ScheduleSlot) error

	// Delete removes a single slot by id.
	Delete(ctx context.Context, slotID int64) error

	// DeleteByIDs removes a batch of slots in one statement. Used by the
	// orphan collector so a week with many vanished events costs one
	// round trip.
	DeleteByIDs(ctx context.Context, slotIDs []int64) error

	// DeleteWeek removes every slot of one (user, week).
	DeleteWeek(ctx context.Context, userID uuid.UUID, weekStart time.Time) error

	// ReplaceWeek atomically swaps the full slot set of one (user, week).
	// Used by the grid write path, distinct from incremental sync.
	ReplaceWeek(ctx context.Context, userID uuid.UUID, weekStart time.Time, slots []*domain.ScheduleSlot) error

	// SetExternalID assigns or clears (nil) a slot's remote event link.
	// Only the sync executor calls this.
	SetExternalID(ctx context.Context, slotID int64, externalID *string) error
}
