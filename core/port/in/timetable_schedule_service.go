package in

import (
	"context"
	"time"

	"timetable_server/core/domain"

	"github.com/google/uuid"
)

// SaveWeekRequest carries a full week grid edit.
type SaveWeekRequest struct {
	WeekStart string              `json:"week_start"`
	Cells     []domain.PeriodCell `json:"cells"`
}

// ScheduleService is the caller-facing schedule read/write surface.
type ScheduleService interface {
	// GetWeek returns the slots of one (user, week). Implementations may
	// run the recovery scanner best-effort before reading.
	GetWeek(ctx context.Context, userID uuid.UUID, weekStart time.Time) ([]*domain.ScheduleSlot, error)

	// SaveWeek merges the grid cells into slots and atomically replaces
	// the week's slot set.
	SaveWeek(ctx context.Context, userID uuid.UUID, weekStart time.Time, cells []domain.PeriodCell) ([]*domain.ScheduleSlot, error)

	// ClearWeek removes every slot of one (user, week) from the local
	// store only.
	ClearWeek(ctx context.Context, userID uuid.UUID, weekStart time.Time) error
}
