package schedule

import (
	"testing"
	"time"

	"timetable_server/core/domain"
	"timetable_server/pkg/snowflake"

	"github.com/google/uuid"
)

func newTestMerger(t *testing.T) *Merger {
	t.Helper()
	gen, err := snowflake.NewGenerator(1)
	if err != nil {
		t.Fatal(err)
	}
	return NewMerger(gen)
}

func cell(weekday, period int, course string) domain.PeriodCell {
	return domain.PeriodCell{Weekday: weekday, Period: period, CourseName: course}
}

type wantSlot struct {
	weekday     int
	periodStart int
	periodEnd   int
	courseName  string
}

func TestBuildSlots_Merging(t *testing.T) {
	userID := uuid.New()
	weekStart := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // a Monday

	tests := []struct {
		name  string
		cells []domain.PeriodCell
		want  []wantSlot
	}{
		{
			name: "contiguous morning periods merge into one slot",
			cells: []domain.PeriodCell{
				cell(2, 1, "Algebra"), cell(2, 2, "Algebra"),
				cell(2, 3, "Algebra"), cell(2, 4, "Algebra"),
			},
			want: []wantSlot{{2, 1, 4, "Algebra"}},
		},
		{
			name: "lunch boundary always splits even for the same course",
			cells: []domain.PeriodCell{
				cell(2, 1, "Algebra"), cell(2, 2, "Algebra"),
				cell(2, 3, "Algebra"), cell(2, 4, "Algebra"),
				cell(2, 5, "Algebra"),
			},
			want: []wantSlot{{2, 1, 4, "Algebra"}, {2, 5, 5, "Algebra"}},
		},
		{
			name: "gap in periods splits the slot",
			cells: []domain.PeriodCell{
				cell(1, 1, "Biology"), cell(1, 3, "Biology"),
			},
			want: []wantSlot{{1, 1, 1, "Biology"}, {1, 3, 3, "Biology"}},
		},
		{
			name: "different courses never merge",
			cells: []domain.PeriodCell{
				cell(1, 1, "Biology"), cell(1, 2, "Algebra"),
			},
			want: []wantSlot{{1, 1, 1, "Biology"}, {1, 2, 2, "Algebra"}},
		},
		{
			name: "afternoon contiguous periods merge",
			cells: []domain.PeriodCell{
				cell(3, 5, "History"), cell(3, 6, "History"), cell(3, 7, "History"),
			},
			want: []wantSlot{{3, 5, 7, "History"}},
		},
		{
			name: "output ordered by weekday then period start",
			cells: []domain.PeriodCell{
				cell(5, 1, "Music"), cell(1, 3, "Art"), cell(1, 1, "Art"),
			},
			want: []wantSlot{{1, 1, 1, "Art"}, {1, 3, 3, "Art"}, {5, 1, 1, "Music"}},
		},
		{
			name: "empty cells are ignored",
			cells: []domain.PeriodCell{
				cell(1, 1, "Art"), {Weekday: 1, Period: 2},
			},
			want: []wantSlot{{1, 1, 1, "Art"}},
		},
		{
			name:  "empty grid yields no slots",
			cells: nil,
			want:  nil,
		},
	}

	m := newTestMerger(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.BuildSlots(userID, weekStart, tt.cells)
			if err != nil {
				t.Fatalf("BuildSlots() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("BuildSlots() returned %d slots, want %d", len(got), len(tt.want))
			}
			for i, w := range tt.want {
				s := got[i]
				if s.Weekday != w.weekday || s.PeriodStart != w.periodStart ||
					s.PeriodEnd != w.periodEnd || s.CourseName != w.courseName {
					t.Errorf("slot[%d] = (%d, %d-%d, %q), want (%d, %d-%d, %q)",
						i, s.Weekday, s.PeriodStart, s.PeriodEnd, s.CourseName,
						w.weekday, w.periodStart, w.periodEnd, w.courseName)
				}
				if s.ExternalID != nil {
					t.Errorf("slot[%d] has an external ref before any sync", i)
				}
				if err := s.Validate(); err != nil {
					t.Errorf("slot[%d] invalid: %v", i, err)
				}
			}
		})
	}
}

func TestBuildSlots_CourseRefGroupsAcrossNameChanges(t *testing.T) {
	userID := uuid.New()
	weekStart := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	courseID := "course-77"

	cells := []domain.PeriodCell{
		{Weekday: 1, Period: 1, CourseID: &courseID, CourseName: "Algebra"},
		{Weekday: 1, Period: 2, CourseID: &courseID, CourseName: "Algebra II"},
	}

	got, err := newTestMerger(t).BuildSlots(userID, weekStart, cells)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("cells sharing a course ref should merge, got %d slots", len(got))
	}
	if got[0].PeriodStart != 1 || got[0].PeriodEnd != 2 {
		t.Errorf("merged range = %d-%d, want 1-2", got[0].PeriodStart, got[0].PeriodEnd)
	}
}

func TestBuildSlots_LastCellWinsPerPosition(t *testing.T) {
	userID := uuid.New()
	weekStart := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	cells := []domain.PeriodCell{
		cell(1, 1, "Biology"),
		cell(1, 1, "Algebra"),
	}

	got, err := newTestMerger(t).BuildSlots(userID, weekStart, cells)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d slots, want 1", len(got))
	}
	if got[0].CourseName != "Algebra" {
		t.Errorf("course = %q, want the later edit %q", got[0].CourseName, "Algebra")
	}
}

func TestBuildSlots_RejectsOutOfRangeCells(t *testing.T) {
	userID := uuid.New()
	weekStart := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	m := newTestMerger(t)

	if _, err := m.BuildSlots(userID, weekStart, []domain.PeriodCell{cell(8, 1, "Art")}); err == nil {
		t.Error("weekday 8 should be rejected")
	}
	if _, err := m.BuildSlots(userID, weekStart, []domain.PeriodCell{cell(1, 9, "Art")}); err == nil {
		t.Error("period 9 should be rejected")
	}
}
