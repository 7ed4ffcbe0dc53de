// Package domain holds the core schedule entities.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Weekday bounds. 1 = Monday .. 7 = Sunday; WeekStart is always the Monday.
const (
	MinWeekday = 1
	MaxWeekday = 7
)

// ScheduleSlot is one course occupying a contiguous period range on one
// weekday of one week. ExternalID links it to its calendar event and is
// assigned or cleared only by the sync executor.
type ScheduleSlot struct {
	ID          int64      `json:"id" db:"id"`
	UserID      uuid.UUID  `json:"user_id" db:"user_id"`
	WeekStart   time.Time  `json:"week_start" db:"week_start"`
	Weekday     int        `json:"weekday" db:"weekday"`
	PeriodStart int        `json:"period_start" db:"period_start"`
	PeriodEnd   int        `json:"period_end" db:"period_end"`
	CourseID    *string    `json:"course_id,omitempty" db:"course_id"`
	CourseName  string     `json:"course_name" db:"course_name"`
	Location    string     `json:"location,omitempty" db:"location"`
	SeriesID    *string    `json:"series_id,omitempty" db:"series_id"`
	ExternalID  *string    `json:"external_id,omitempty" db:"external_id"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// CourseKey is the course identity used for slot matching: the opaque
// course reference when present, otherwise the display name.
func (s *ScheduleSlot) CourseKey() string {
	if s.CourseID != nil && *s.CourseID != "" {
		return *s.CourseID
	}
	return s.CourseName
}

// SlotKey identifies a slot position within a week for local/remote
// matching: weekday, period range and course identity.
func (s *ScheduleSlot) SlotKey() string {
	return fmt.Sprintf("%d-%d-%d-%s", s.Weekday, s.PeriodStart, s.PeriodEnd, s.CourseKey())
}

// Validate checks field ranges and course identity. Invalid slots are
// skipped before any external call.
func (s *ScheduleSlot) Validate() error {
	if s.Weekday < MinWeekday || s.Weekday > MaxWeekday {
		return fmt.Errorf("weekday %d out of range [%d,%d]", s.Weekday, MinWeekday, MaxWeekday)
	}
	if s.PeriodStart < MinPeriod || s.PeriodStart > MaxPeriod {
		return fmt.Errorf("period_start %d out of range [%d,%d]", s.PeriodStart, MinPeriod, MaxPeriod)
	}
	if s.PeriodEnd < MinPeriod || s.PeriodEnd > MaxPeriod {
		return fmt.Errorf("period_end %d out of range [%d,%d]", s.PeriodEnd, MinPeriod, MaxPeriod)
	}
	if s.PeriodEnd < s.PeriodStart {
		return fmt.Errorf("period_end %d before period_start %d", s.PeriodEnd, s.PeriodStart)
	}
	if (s.CourseID == nil || *s.CourseID == "") && s.CourseName == "" {
		return fmt.Errorf("slot has neither course reference nor course name")
	}
	return nil
}

// ContentMatches reports whether two slots describe the same class at the
// same position: used to decide no-op vs replace during reconciliation.
func (s *ScheduleSlot) ContentMatches(o *ScheduleSlot) bool {
	return s.Weekday == o.Weekday &&
		s.PeriodStart == o.PeriodStart &&
		s.PeriodEnd == o.PeriodEnd &&
		s.CourseKey() == o.CourseKey() &&
		s.CourseName == o.CourseName &&
		s.Location == o.Location
}

// PeriodCell is a single cell of the editable week grid: one period on one
// weekday assigned to one course. The merger turns cells into slots.
type PeriodCell struct {
	Weekday    int     `json:"weekday"`
	Period     int     `json:"period"`
	CourseID   *string `json:"course_id,omitempty"`
	CourseName string  `json:"course_name"`
	Base       string  `json:"base,omitempty"`
	Room       string  `json:"room,omitempty"`
}

// LocationLabel renders "base - room", or whichever half is present.
func (c *PeriodCell) LocationLabel() string {
	switch {
	case c.Base != "" && c.Room != "":
		return c.Base + " - " + c.Room
	case c.Base != "":
		return c.Base
	default:
		return c.Room
	}
}

// CourseKey mirrors ScheduleSlot.CourseKey for grid cells.
func (c *PeriodCell) CourseKey() string {
	if c.CourseID != nil && *c.CourseID != "" {
		return *c.CourseID
	}
	return c.CourseName
}

// WeekStartOf truncates t to the Monday of its week, at midnight UTC.
func WeekStartOf(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	return day.AddDate(0, 0, -offset)
}
