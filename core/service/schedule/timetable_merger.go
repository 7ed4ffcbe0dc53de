// Package schedule builds canonical weekly slots from per-period grid
// edits.
package schedule

import (
	"fmt"
	"sort"
	"time"

	"timetable_server/core/domain"
	"timetable_server/pkg/snowflake"

	"github.com/google/uuid"
)

// Merger turns a per-period grid into the minimal ordered slot list for a
// week. Contiguous periods of the same course merge into one slot, except
// across the lunch boundary, which always forces a split.
type Merger struct {
	ids *snowflake.Generator
}

// NewMerger creates a merger. ids assigns slot IDs to the produced slots.
func NewMerger(ids *snowflake.Generator) *Merger {
	return &Merger{ids: ids}
}

type groupKey struct {
	weekday   int
	courseKey string
}

// BuildSlots merges grid cells into slots. Cells without a course identity
// are ignored (empty grid positions); a later cell at the same position
// wins over an earlier one. Output is ordered by weekday, then period
// start.
func (m *Merger) BuildSlots(userID uuid.UUID, weekStart time.Time, cells []domain.PeriodCell) ([]*domain.ScheduleSlot, error) {
	// Last write wins per grid position.
	byPos := make(map[[2]int]domain.PeriodCell)
	for _, cell := range cells {
		if cell.CourseKey() == "" {
			continue
		}
		if cell.Weekday < domain.MinWeekday || cell.Weekday > domain.MaxWeekday {
			return nil, fmt.Errorf("cell weekday %d out of range", cell.Weekday)
		}
		if cell.Period < domain.MinPeriod || cell.Period > domain.MaxPeriod {
			return nil, fmt.Errorf("cell period %d out of range", cell.Period)
		}
		byPos[[2]int{cell.Weekday, cell.Period}] = cell
	}

	groups := make(map[groupKey][]domain.PeriodCell)
	for _, cell := range byPos {
		key := groupKey{weekday: cell.Weekday, courseKey: cell.CourseKey()}
		groups[key] = append(groups[key], cell)
	}

	now := time.Now().UTC()
	var slots []*domain.ScheduleSlot

	for key, group := range groups {
		sort.Slice(group, func(i, j int) bool { return group[i].Period < group[j].Period })

		var current *domain.ScheduleSlot
		flush := func() {
			if current != nil {
				slots = append(slots, current)
				current = nil
			}
		}

		for _, cell := range group {
			if current != nil &&
				cell.Period == current.PeriodEnd+1 &&
				current.PeriodEnd != domain.LunchAfterPeriod {
				current.PeriodEnd = cell.Period
				continue
			}
			flush()
			current = &domain.ScheduleSlot{
				ID:          m.ids.MustGenerate(),
				UserID:      userID,
				WeekStart:   weekStart,
				Weekday:     key.weekday,
				PeriodStart: cell.Period,
				PeriodEnd:   cell.Period,
				CourseID:    cell.CourseID,
				CourseName:  cell.CourseName,
				Location:    cell.LocationLabel(),
				CreatedAt:   now,
				UpdatedAt:   now,
			}
		}
		flush()
	}

	sort.Slice(slots, func(i, j int) bool {
		if slots[i].Weekday != slots[j].Weekday {
			return slots[i].Weekday < slots[j].Weekday
		}
		if slots[i].PeriodStart != slots[j].PeriodStart {
			return slots[i].PeriodStart < slots[j].PeriodStart
		}
		return slots[i].CourseKey() < slots[j].CourseKey()
	})

	return slots, nil
}
