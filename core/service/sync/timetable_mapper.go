// Package sync implements the schedule-to-calendar reconciliation engine.
package sync

import (
	"errors"
	"time"

	"timetable_server/core/domain"
	"timetable_server/core/port/out"

	"github.com/google/uuid"
)

// ErrUnrecoverableEvent marks a tagged remote event whose metadata could
// not be parsed from either channel. Such events are skipped, never
// deleted.
var ErrUnrecoverableEvent = errors.New("remote event metadata unrecoverable")

// Mapper translates between schedule slots and remote calendar events.
// The translation is deterministic in both directions.
type Mapper struct{}

func NewMapper() *Mapper {
	return &Mapper{}
}

// ToEvent renders a slot as a remote calendar event. Metadata goes out
// twice: once as structured private properties and once as a JSON block
// inside the description, so that external edits stripping one channel do
// not destroy recoverability.
func (m *Mapper) ToEvent(slot *domain.ScheduleSlot) *out.ProviderEvent {
	start, end := domain.SlotTimes(slot.WeekStart, slot.Weekday, slot.PeriodStart, slot.PeriodEnd)

	meta := &domain.SlotMeta{
		Weekday:     slot.Weekday,
		PeriodStart: slot.PeriodStart,
		PeriodEnd:   slot.PeriodEnd,
	}
	if slot.CourseID != nil {
		meta.CourseID = *slot.CourseID
	}
	if slot.SeriesID != nil {
		meta.SeriesID = *slot.SeriesID
	}

	return &out.ProviderEvent{
		Title:       slot.CourseName,
		Description: domain.AppendMetaBlock("", meta),
		Location:    slot.Location,
		StartTime:   start,
		EndTime:     end,
		Private:     meta.ToProperties(),
	}
}

// FromEvent reconstructs a slot from a tagged remote event. Structured
// properties win; the description block is the fallback. Returns
// ErrUnrecoverableEvent when neither channel parses.
func (m *Mapper) FromEvent(userID uuid.UUID, weekStart time.Time, event *out.ProviderEvent) (*domain.ScheduleSlot, error) {
	meta, ok := domain.MetaFromProperties(event.Private)
	if !ok {
		meta, ok = domain.MetaFromDescription(event.Description)
	}
	if !ok {
		return nil, ErrUnrecoverableEvent
	}

	externalID := event.ID
	slot := &domain.ScheduleSlot{
		UserID:      userID,
		WeekStart:   weekStart,
		Weekday:     meta.Weekday,
		PeriodStart: meta.PeriodStart,
		PeriodEnd:   meta.PeriodEnd,
		CourseName:  event.Title,
		Location:    event.Location,
		ExternalID:  &externalID,
	}
	if meta.CourseID != "" {
		courseID := meta.CourseID
		slot.CourseID = &courseID
	}
	if meta.SeriesID != "" {
		seriesID := meta.SeriesID
		slot.SeriesID = &seriesID
	}

	if err := slot.Validate(); err != nil {
		return nil, ErrUnrecoverableEvent
	}
	return slot, nil
}

// EventSlotKey derives the matching key of a tagged remote event via
// reverse mapping. The second return is false for unrecoverable events.
func (m *Mapper) EventSlotKey(userID uuid.UUID, weekStart time.Time, event *out.ProviderEvent) (string, bool) {
	slot, err := m.FromEvent(userID, weekStart, event)
	if err != nil {
		return "", false
	}
	return slot.SlotKey(), true
}
