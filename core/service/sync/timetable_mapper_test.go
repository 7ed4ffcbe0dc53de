package sync

import (
	"strings"
	"testing"
	"time"

	"timetable_server/core/domain"
	"timetable_server/core/port/out"

	"github.com/google/uuid"
)

var testWeekStart = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // a Monday

func strPtr(s string) *string { return &s }

func testSlot() *domain.ScheduleSlot {
	return &domain.ScheduleSlot{
		ID:          1,
		UserID:      uuid.New(),
		WeekStart:   testWeekStart,
		Weekday:     2,
		PeriodStart: 1,
		PeriodEnd:   2,
		CourseID:    strPtr("course-9"),
		CourseName:  "Algebra",
		Location:    "Main - 204",
	}
}

func TestToEvent_TimesAndContent(t *testing.T) {
	slot := testSlot()
	ev := NewMapper().ToEvent(slot)

	wantStart := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2026, 3, 3, 10, 50, 0, 0, time.UTC)
	if !ev.StartTime.Equal(wantStart) {
		t.Errorf("start = %v, want %v", ev.StartTime, wantStart)
	}
	if !ev.EndTime.Equal(wantEnd) {
		t.Errorf("end = %v, want %v", ev.EndTime, wantEnd)
	}
	if ev.Title != "Algebra" || ev.Location != "Main - 204" {
		t.Errorf("title/location = %q/%q", ev.Title, ev.Location)
	}
}

func TestToEvent_AfternoonClock(t *testing.T) {
	slot := testSlot()
	slot.PeriodStart, slot.PeriodEnd = 5, 6
	ev := NewMapper().ToEvent(slot)

	wantStart := time.Date(2026, 3, 3, 14, 0, 0, 0, time.UTC)
	if !ev.StartTime.Equal(wantStart) {
		t.Errorf("period 5 start = %v, want %v (after lunch)", ev.StartTime, wantStart)
	}
}

func TestToEvent_WritesBothMetadataChannels(t *testing.T) {
	ev := NewMapper().ToEvent(testSlot())

	if ev.Private[domain.MetaAppKey] != domain.MetaAppValue {
		t.Error("structured properties missing namespace tag")
	}
	if ev.Private[domain.MetaKeyWeekday] != "2" {
		t.Errorf("weekday property = %q", ev.Private[domain.MetaKeyWeekday])
	}
	if !strings.Contains(ev.Description, "timetable:v1") {
		t.Error("description missing the delimited metadata block")
	}
}

func TestFromEvent_RoundTrip(t *testing.T) {
	slot := testSlot()
	m := NewMapper()
	ev := m.ToEvent(slot)
	ev.ID = "remote-1"

	got, err := m.FromEvent(slot.UserID, testWeekStart, ev)
	if err != nil {
		t.Fatalf("FromEvent() error = %v", err)
	}
	if !got.ContentMatches(slot) {
		t.Errorf("round-tripped slot differs: got %+v", got)
	}
	if got.ExternalID == nil || *got.ExternalID != "remote-1" {
		t.Error("external link not carried over")
	}
	if got.SlotKey() != slot.SlotKey() {
		t.Errorf("slot key %q != %q", got.SlotKey(), slot.SlotKey())
	}
}

func TestFromEvent_FallsBackToDescriptionBlock(t *testing.T) {
	slot := testSlot()
	m := NewMapper()
	ev := m.ToEvent(slot)
	ev.ID = "remote-2"
	// An external edit stripped the structured properties.
	ev.Private = nil

	got, err := m.FromEvent(slot.UserID, testWeekStart, ev)
	if err != nil {
		t.Fatalf("FromEvent() with description-only metadata error = %v", err)
	}
	if got.Weekday != 2 || got.PeriodStart != 1 || got.PeriodEnd != 2 {
		t.Errorf("recovered position = (%d, %d-%d)", got.Weekday, got.PeriodStart, got.PeriodEnd)
	}
	if got.CourseID == nil || *got.CourseID != "course-9" {
		t.Error("course ref lost in description fallback")
	}
}

func TestFromEvent_UnrecoverableWhenBothChannelsGone(t *testing.T) {
	ev := &out.ProviderEvent{
		ID:          "remote-3",
		Title:       "Algebra",
		Description: "hand-edited, markers removed",
	}
	if _, err := NewMapper().FromEvent(uuid.New(), testWeekStart, ev); err != ErrUnrecoverableEvent {
		t.Fatalf("error = %v, want ErrUnrecoverableEvent", err)
	}
}

func TestFromEvent_RejectsCorruptMetadata(t *testing.T) {
	ev := &out.ProviderEvent{
		ID:    "remote-4",
		Title: "Algebra",
		Private: map[string]string{
			domain.MetaAppKey:         domain.MetaAppValue,
			domain.MetaKeyWeekday:     "9",
			domain.MetaKeyPeriodStart: "1",
			domain.MetaKeyPeriodEnd:   "2",
		},
	}
	if _, err := NewMapper().FromEvent(uuid.New(), testWeekStart, ev); err != ErrUnrecoverableEvent {
		t.Fatalf("error = %v, want ErrUnrecoverableEvent for weekday 9", err)
	}
}
