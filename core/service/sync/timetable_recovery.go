package sync

import (
	"context"
	"time"

	"timetable_server/core/domain"
	"timetable_server/core/port/in"
	"timetable_server/core/port/out"
	"timetable_server/pkg/snowflake"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// Recovery repairs drift between the two stores in the directions the
// planner does not cover: remote events with no local linkage (scanner)
// and local slots whose remote event vanished (orphan collector).
type Recovery struct {
	provider out.CalendarProviderPort
	slots    out.SlotRepository
	mapper   *Mapper
	ids      *snowflake.Generator
	log      zerolog.Logger
}

func NewRecovery(provider out.CalendarProviderPort, slots out.SlotRepository, mapper *Mapper, ids *snowflake.Generator, log zerolog.Logger) *Recovery {
	return &Recovery{
		provider: provider,
		slots:    slots,
		mapper:   mapper,
		ids:      ids,
		log:      log.With().Str("component", "sync_recovery").Logger(),
	}
}

// ============================================================================
// Recovery Scanner
// ============================================================================

// Scan links or rebuilds local slots from tagged remote events that no
// local slot references. Strictly additive: it never deletes local or
// remote data, so it is safe to run on every schedule load.
func (r *Recovery) Scan(ctx context.Context, token *oauth2.Token, userID uuid.UUID, weekStart time.Time) (*in.SyncSummary, error) {
	summary := &in.SyncSummary{}

	events, err := r.provider.ListWeekEvents(ctx, token, weekStart)
	if err != nil {
		return summary, err
	}
	localSlots, err := r.slots.ListWeek(ctx, userID, weekStart)
	if err != nil {
		return summary, err
	}

	referenced := make(map[string]bool, len(localSlots))
	for _, slot := range localSlots {
		if slot.ExternalID != nil {
			referenced[*slot.ExternalID] = true
		}
	}

	for _, ev := range events {
		if referenced[ev.ID] {
			continue
		}

		remote, err := r.mapper.FromEvent(userID, weekStart, ev)
		if err != nil {
			r.log.Warn().Str("event_id", ev.ID).Msg("skipping unrecoverable remote event")
			summary.Skipped++
			continue
		}

		if match := findUnlinkedMatch(localSlots, remote); match != nil {
			eventID := ev.ID
			if err := r.slots.SetExternalID(ctx, match.ID, &eventID); err != nil {
				r.log.Warn().Err(err).
					Int64("slot_id", match.ID).
					Str("event_id", ev.ID).
					Msg("failed to link slot to event")
				summary.Failed++
				continue
			}
			match.ExternalID = &eventID
			referenced[eventID] = true
			summary.Linked++
			continue
		}

		remote.ID = r.ids.MustGenerate()
		if err := r.slots.Create(ctx, remote); err != nil {
			r.log.Warn().Err(err).Str("event_id", ev.ID).Msg("failed to rebuild slot from event")
			summary.Failed++
			continue
		}
		localSlots = append(localSlots, remote)
		referenced[ev.ID] = true
		summary.Created++
	}

	return summary, nil
}

// findUnlinkedMatch returns a local slot with the same content as the
// reverse-mapped event and no external link yet, or nil.
func findUnlinkedMatch(slots []*domain.ScheduleSlot, remote *domain.ScheduleSlot) *domain.ScheduleSlot {
	for _, slot := range slots {
		if slot.ExternalID != nil && *slot.ExternalID != "" {
			continue
		}
		if slot.Weekday == remote.Weekday &&
			slot.PeriodStart == remote.PeriodStart &&
			slot.PeriodEnd == remote.PeriodEnd &&
			slot.CourseName == remote.CourseName {
			return slot
		}
	}
	return nil
}

// ============================================================================
// Orphan Collector
// ============================================================================

// CollectOrphans removes local slots whose linked remote event vanished
// from the listing. Before deleting, each candidate gets one re-link
// attempt against unclaimed tagged events at the same time window and
// title; only a true orphan is removed. The deletion is deliberate: the
// remote event was removed by direct user action in the external calendar
// and must not be silently resurrected.
func (r *Recovery) CollectOrphans(ctx context.Context, token *oauth2.Token, userID uuid.UUID, weekStart time.Time) (*in.SyncSummary, error) {
	summary := &in.SyncSummary{}

	events, err := r.provider.ListWeekEvents(ctx, token, weekStart)
	if err != nil {
		return summary, err
	}
	localSlots, err := r.slots.ListWeek(ctx, userID, weekStart)
	if err != nil {
		return summary, err
	}

	byID := make(map[string]*out.ProviderEvent, len(events))
	for _, ev := range events {
		byID[ev.ID] = ev
	}
	claimed := make(map[string]bool, len(localSlots))
	for _, slot := range localSlots {
		if slot.ExternalID != nil && byID[*slot.ExternalID] != nil {
			claimed[*slot.ExternalID] = true
		}
	}

	var orphanIDs []int64
	for _, slot := range localSlots {
		if slot.ExternalID == nil || *slot.ExternalID == "" {
			continue
		}
		if _, present := byID[*slot.ExternalID]; present {
			continue
		}

		if match := findRelinkCandidate(events, claimed, slot); match != nil {
			eventID := match.ID
			if err := r.slots.SetExternalID(ctx, slot.ID, &eventID); err != nil {
				r.log.Warn().Err(err).
					Int64("slot_id", slot.ID).
					Str("event_id", match.ID).
					Msg("failed to relink slot to event")
				summary.Failed++
				continue
			}
			claimed[eventID] = true
			summary.Relinked++
			continue
		}

		orphanIDs = append(orphanIDs, slot.ID)
	}

	if len(orphanIDs) > 0 {
		if err := r.slots.DeleteByIDs(ctx, orphanIDs); err != nil {
			r.log.Warn().Err(err).
				Int("count", len(orphanIDs)).
				Msg("failed to delete orphaned slots")
			summary.Failed += len(orphanIDs)
			return summary, nil
		}
		summary.Orphaned += len(orphanIDs)
	}

	return summary, nil
}

// findRelinkCandidate matches a dangling slot against unclaimed events by
// time window and title.
func findRelinkCandidate(events []*out.ProviderEvent, claimed map[string]bool, slot *domain.ScheduleSlot) *out.ProviderEvent {
	start, end := domain.SlotTimes(slot.WeekStart, slot.Weekday, slot.PeriodStart, slot.PeriodEnd)
	for _, ev := range events {
		if claimed[ev.ID] {
			continue
		}
		if ev.Title == slot.CourseName && ev.StartTime.Equal(start) && ev.EndTime.Equal(end) {
			return ev
		}
	}
	return nil
}
