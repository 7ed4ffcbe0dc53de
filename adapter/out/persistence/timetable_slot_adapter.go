// Package persistence implements the local store adapters on PostgreSQL.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"timetable_server/core/domain"
	"timetable_server/core/port/out"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// SlotAdapter implements out.SlotRepository using PostgreSQL.
type SlotAdapter struct {
	db *sqlx.DB
}

var _ out.SlotRepository = (*SlotAdapter)(nil)

// NewSlotAdapter creates a new SlotAdapter.
func NewSlotAdapter(db *sqlx.DB) *SlotAdapter {
	return &SlotAdapter{db: db}
}

// slotRow represents the database row for a schedule slot.
type slotRow struct {
	ID          int64          `db:"id"`
	UserID      string         `db:"user_id"`
	WeekStart   time.Time      `db:"week_start"`
	Weekday     int            `db:"weekday"`
	PeriodStart int            `db:"period_start"`
	PeriodEnd   int            `db:"period_end"`
	CourseID    sql.NullString `db:"course_id"`
	CourseName  string         `db:"course_name"`
	Location    sql.NullString `db:"location"`
	SeriesID    sql.NullString `db:"series_id"`
	ExternalID  sql.NullString `db:"external_id"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r *slotRow) toEntity() (*domain.ScheduleSlot, error) {
	userID, err := uuid.Parse(r.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", r.UserID, err)
	}

	slot := &domain.ScheduleSlot{
		ID:          r.ID,
		UserID:      userID,
		WeekStart:   r.WeekStart.UTC(),
		Weekday:     r.Weekday,
		PeriodStart: r.PeriodStart,
		PeriodEnd:   r.PeriodEnd,
		CourseName:  r.CourseName,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}

	if r.CourseID.Valid {
		slot.CourseID = &r.CourseID.String
	}
	if r.Location.Valid {
		slot.Location = r.Location.String
	}
	if r.SeriesID.Valid {
		slot.SeriesID = &r.SeriesID.String
	}
	if r.ExternalID.Valid {
		slot.ExternalID = &r.ExternalID.String
	}

	return slot, nil
}

// ListWeek returns all slots for one (user, week), ordered by weekday then
// period start.
func (a *SlotAdapter) ListWeek(ctx context.Context, userID uuid.UUID, weekStart time.Time) ([]*domain.ScheduleSlot, error) {
	query := `
		SELECT * FROM schedule_slots
		WHERE user_id = $1 AND week_start = $2
		ORDER BY weekday, period_start
	`

	var rows []slotRow
	if err := a.db.SelectContext(ctx, &rows, query, userID.String(), weekStart); err != nil {
		return nil, err
	}

	slots := make([]*domain.ScheduleSlot, 0, len(rows))
	for i := range rows {
		slot, err := rows[i].toEntity()
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

// Create inserts a single slot.
func (a *SlotAdapter) Create(ctx context.Context, slot *domain.ScheduleSlot) error {
	query := `
		INSERT INTO schedule_slots (
			id, user_id, week_start, weekday, period_start, period_end,
			course_id, course_name, location, series_id, external_id
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			NULLIF($7, ''), $8, NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, '')
		)
		RETURNING created_at, updated_at
	`

	err := a.db.QueryRowxContext(ctx, query,
		slot.ID, slot.UserID.String(), slot.WeekStart,
		slot.Weekday, slot.PeriodStart, slot.PeriodEnd,
		derefOrEmpty(slot.CourseID), slot.CourseName, slot.Location,
		derefOrEmpty(slot.SeriesID), derefOrEmpty(slot.ExternalID),
	).Scan(&slot.CreatedAt, &slot.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// Delete removes a single slot by id.
func (a *SlotAdapter) Delete(ctx context.Context, slotID int64) error {
	result, err := a.db.ExecContext(ctx, `DELETE FROM schedule_slots WHERE id = $1`, slotID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteWeek removes every slot of one (user, week).
func (a *SlotAdapter) DeleteWeek(ctx context.Context, userID uuid.UUID, weekStart time.Time) error {
	_, err := a.db.ExecContext(ctx,
		`DELETE FROM schedule_slots WHERE user_id = $1 AND week_start = $2`,
		userID.String(), weekStart)
	return err
}

// ReplaceWeek atomically swaps the full slot set of one (user, week).
// Links already assigned for an identical position survive the swap so an
// unchanged grid save does not force a full resync.
func (a *SlotAdapter) ReplaceWeek(ctx context.Context, userID uuid.UUID, weekStart time.Time, slots []*domain.ScheduleSlot) error {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Remember existing links keyed by position before wiping the week.
	var linked []slotRow
	err = tx.SelectContext(ctx, &linked, `
		SELECT * FROM schedule_slots
		WHERE user_id = $1 AND week_start = $2 AND external_id IS NOT NULL
	`, userID.String(), weekStart)
	if err != nil {
		return err
	}
	links := make(map[string]string, len(linked))
	for i := range linked {
		prev, err := linked[i].toEntity()
		if err != nil {
			return err
		}
		links[prev.SlotKey()] = *prev.ExternalID
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM schedule_slots WHERE user_id = $1 AND week_start = $2`,
		userID.String(), weekStart)
	if err != nil {
		return err
	}

	insert := `
		INSERT INTO schedule_slots (
			id, user_id, week_start, weekday, period_start, period_end,
			course_id, course_name, location, series_id, external_id
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			NULLIF($7, ''), $8, NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, '')
		)
	`
	for _, slot := range slots {
		if prev, ok := links[slot.SlotKey()]; ok && slot.ExternalID == nil {
			slot.ExternalID = &prev
		}
		_, err = tx.ExecContext(ctx, insert,
			slot.ID, userID.String(), weekStart,
			slot.Weekday, slot.PeriodStart, slot.PeriodEnd,
			derefOrEmpty(slot.CourseID), slot.CourseName, slot.Location,
			derefOrEmpty(slot.SeriesID), derefOrEmpty(slot.ExternalID))
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SetExternalID assigns or clears a slot's remote event link.
func (a *SlotAdapter) SetExternalID(ctx context.Context, slotID int64, externalID *string) error {
	query := `
		UPDATE schedule_slots
		SET external_id = $2, updated_at = NOW()
		WHERE id = $1
	`
	result, err := a.db.ExecContext(ctx, query, slotID, externalID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByIDs removes a batch of slots in one statement.
func (a *SlotAdapter) DeleteByIDs(ctx context.Context, slotIDs []int64) error {
	if len(slotIDs) == 0 {
		return nil
	}
	_, err := a.db.ExecContext(ctx,
		`DELETE FROM schedule_slots WHERE id = ANY($1)`,
		pq.Array(slotIDs))
	return err
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// isUniqueViolation reports a PostgreSQL unique constraint violation.
// The pool speaks pgx, so driver errors surface as *pgconn.PgError.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
