package schedule

import (
	"context"
	"fmt"
	"time"

	"timetable_server/core/domain"
	"timetable_server/core/port/in"
	"timetable_server/core/port/out"
	"timetable_server/pkg/cache"
	"timetable_server/pkg/logger"

	"github.com/google/uuid"
)

// Service implements in.ScheduleService: the grid read/write path on top of
// the slot store, with a best-effort recovery scan on reads.
type Service struct {
	slots    out.SlotRepository
	merger   *Merger
	recovery in.SyncService
	cache    *cache.RedisCache
	cacheTTL time.Duration
}

// NewService creates the schedule service. recovery and cache may be nil;
// both are optional collaborators.
func NewService(slots out.SlotRepository, merger *Merger, recovery in.SyncService, c *cache.RedisCache, cacheTTL time.Duration) *Service {
	return &Service{
		slots:    slots,
		merger:   merger,
		recovery: recovery,
		cache:    c,
		cacheTTL: cacheTTL,
	}
}

func weekCacheKey(userID uuid.UUID, weekStart time.Time) string {
	return fmt.Sprintf("schedule:%s:%s", userID, weekStart.Format("2006-01-02"))
}

func userCachePrefix(userID uuid.UUID) string {
	return fmt.Sprintf("schedule:%s:", userID)
}

// GetWeek returns one week's slots. The recovery scanner runs first,
// best-effort: it is strictly additive and safe on every load, and repairs
// linkage lost to out-of-band calendar edits.
func (s *Service) GetWeek(ctx context.Context, userID uuid.UUID, weekStart time.Time) ([]*domain.ScheduleSlot, error) {
	weekStart = domain.WeekStartOf(weekStart)

	if s.recovery != nil {
		summary, err := s.recovery.Recover(ctx, userID, weekStart)
		if err != nil {
			logger.WithError(err).Warn("Recovery scan on load failed for user %s week %s",
				userID, weekStart.Format("2006-01-02"))
		} else if summary.Created > 0 || summary.Linked > 0 {
			s.invalidate(ctx, userID)
		}
	}

	if s.cache != nil {
		var cached []*domain.ScheduleSlot
		if ok, err := s.cache.GetJSON(ctx, weekCacheKey(userID, weekStart), &cached); err == nil && ok {
			return cached, nil
		}
	}

	slots, err := s.slots.ListWeek(ctx, userID, weekStart)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, weekCacheKey(userID, weekStart), slots, s.cacheTTL); err != nil {
			logger.WithError(err).Debug("Failed to cache schedule week")
		}
	}

	return slots, nil
}

// SaveWeek merges the grid and atomically replaces the week's slot set.
// External linkage is re-established by the next sync run via slot-key
// matching, so the fresh slots carry no externalRef.
func (s *Service) SaveWeek(ctx context.Context, userID uuid.UUID, weekStart time.Time, cells []domain.PeriodCell) ([]*domain.ScheduleSlot, error) {
	weekStart = domain.WeekStartOf(weekStart)

	slots, err := s.merger.BuildSlots(userID, weekStart, cells)
	if err != nil {
		return nil, err
	}

	if err := s.slots.ReplaceWeek(ctx, userID, weekStart, slots); err != nil {
		return nil, err
	}

	s.invalidate(ctx, userID)
	return slots, nil
}

// ClearWeek removes the week's slots from the local store only.
func (s *Service) ClearWeek(ctx context.Context, userID uuid.UUID, weekStart time.Time) error {
	weekStart = domain.WeekStartOf(weekStart)

	if err := s.slots.DeleteWeek(ctx, userID, weekStart); err != nil {
		return err
	}

	s.invalidate(ctx, userID)
	return nil
}

func (s *Service) invalidate(ctx context.Context, userID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPrefix(ctx, userCachePrefix(userID)); err != nil {
		logger.WithError(err).Debug("Failed to invalidate schedule cache")
	}
}

var _ in.ScheduleService = (*Service)(nil)
