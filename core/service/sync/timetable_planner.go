package sync

import (
	"sort"
	"time"

	"timetable_server/core/domain"
	"timetable_server/core/port/out"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ============================================================================
// Plan types
// ============================================================================

// ReplaceAction swaps the remote event(s) of one slot: stale events are
// deleted, then a fresh event is created from the slot's current content.
type ReplaceAction struct {
	Slot             *domain.ScheduleSlot
	StaleExternalIDs []string
}

// LinkAction adopts an existing remote event for an unlinked slot and
// refreshes its title/location.
type LinkAction struct {
	Slot  *domain.ScheduleSlot
	Event *out.ProviderEvent
}

// SyncPlan is the ephemeral per-week action plan. Built fresh on every
// run, never persisted. The executor applies the action groups in the
// order they are declared here.
type SyncPlan struct {
	// Deletes holds caller-requested deletions first, then remote
	// duplicates at already-claimed slot keys.
	Deletes  []string
	Replaces []ReplaceAction
	Creates  []*domain.ScheduleSlot
	Links    []LinkAction

	// Orphans are linked slots whose remote event vanished. The planner
	// only flags them; the orphan collector decides their fate.
	Orphans []*domain.ScheduleSlot

	// Skipped counts local slots dropped before any external call.
	Skipped int
}

// Empty reports whether the plan carries no mutations.
func (p *SyncPlan) Empty() bool {
	return len(p.Deletes) == 0 && len(p.Replaces) == 0 &&
		len(p.Creates) == 0 && len(p.Links) == 0
}

// ============================================================================
// Planner
// ============================================================================

// Planner diffs local slots against tagged remote events for one week and
// produces the typed action plan. It never inspects events lacking the
// namespace tag; the provider adapter filters those out before we see
// them.
type Planner struct {
	mapper *Mapper
	log    zerolog.Logger
}

func NewPlanner(mapper *Mapper, log zerolog.Logger) *Planner {
	return &Planner{
		mapper: mapper,
		log:    log.With().Str("component", "sync_planner").Logger(),
	}
}

// remoteGroup is the set of tagged remote events sharing one slot key.
type remoteGroup struct {
	events []*out.ProviderEvent
}

// canonical picks the one event of a group that survives deduplication:
// the event a local slot is linked to when one qualifies, otherwise the
// earliest created, with the lexically smallest id breaking ties.
func (g *remoteGroup) canonical(preferredID string) *out.ProviderEvent {
	if preferredID != "" {
		for _, ev := range g.events {
			if ev.ID == preferredID {
				return ev
			}
		}
	}
	best := g.events[0]
	for _, ev := range g.events[1:] {
		if ev.Created.Before(best.Created) ||
			(ev.Created.Equal(best.Created) && ev.ID < best.ID) {
			best = ev
		}
	}
	return best
}

// BuildPlan computes the reconciliation plan for one (user, week).
// explicitDeletes are remote event ids the caller wants gone regardless of
// slot matching.
func (p *Planner) BuildPlan(
	userID uuid.UUID,
	weekStart time.Time,
	localSlots []*domain.ScheduleSlot,
	remoteEvents []*out.ProviderEvent,
	explicitDeletes []string,
) *SyncPlan {
	plan := &SyncPlan{Deletes: append([]string(nil), explicitDeletes...)}
	explicitSet := make(map[string]bool, len(explicitDeletes))
	for _, id := range explicitDeletes {
		explicitSet[id] = true
	}

	// Index remote events by id and by slot key. Unrecoverable events are
	// left untouched.
	byID := make(map[string]*out.ProviderEvent, len(remoteEvents))
	byKey := make(map[string]*remoteGroup)
	for _, ev := range remoteEvents {
		if explicitSet[ev.ID] {
			continue
		}
		byID[ev.ID] = ev
		key, ok := p.mapper.EventSlotKey(userID, weekStart, ev)
		if !ok {
			p.log.Warn().
				Str("event_id", ev.ID).
				Str("user_id", userID.String()).
				Msg("skipping unrecoverable remote event")
			continue
		}
		group := byKey[key]
		if group == nil {
			group = &remoteGroup{}
			byKey[key] = group
		}
		group.events = append(group.events, ev)
	}

	// Event ids consumed by a slot decision, by replace-stale queues, or
	// selected as a group's canonical survivor.
	claimed := make(map[string]bool)

	for _, slot := range localSlots {
		if err := slot.Validate(); err != nil {
			p.log.Warn().Err(err).
				Int64("slot_id", slot.ID).
				Str("user_id", userID.String()).
				Msg("skipping invalid slot")
			plan.Skipped++
			continue
		}
		key := slot.SlotKey()

		if slot.ExternalID == nil || *slot.ExternalID == "" {
			group := byKey[key]
			if group == nil {
				plan.Creates = append(plan.Creates, slot)
				continue
			}
			ev := group.canonical("")
			claimed[ev.ID] = true
			plan.Links = append(plan.Links, LinkAction{Slot: slot, Event: ev})
			continue
		}

		ev, found := byID[*slot.ExternalID]
		if !found {
			plan.Orphans = append(plan.Orphans, slot)
			continue
		}

		remote, err := p.mapper.FromEvent(userID, weekStart, ev)
		if err == nil && slot.ContentMatches(remote) {
			claimed[ev.ID] = true
			continue
		}

		// A different course now occupies this position: delete the stale
		// event and any tagged events already sitting at the new key, then
		// recreate.
		stale := []string{ev.ID}
		claimed[ev.ID] = true
		if group := byKey[key]; group != nil {
			for _, dup := range group.events {
				if !claimed[dup.ID] {
					stale = append(stale, dup.ID)
					claimed[dup.ID] = true
				}
			}
		}
		plan.Replaces = append(plan.Replaces, ReplaceAction{Slot: slot, StaleExternalIDs: stale})
	}

	// Deduplicate the remaining groups: exactly one canonical event
	// survives per slot key, everything else is queued for deletion.
	keys := make([]string, 0, len(byKey))
	for key := range byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		group := byKey[key]
		if len(group.events) < 2 {
			continue
		}
		survivor := group.canonical(claimedID(group, claimed))
		for _, ev := range group.events {
			if ev.ID != survivor.ID && !claimed[ev.ID] {
				plan.Deletes = append(plan.Deletes, ev.ID)
				claimed[ev.ID] = true
			}
		}
	}

	return plan
}

// claimedID returns the id of a group member already claimed by a slot
// decision, or "" when none is.
func claimedID(group *remoteGroup, claimed map[string]bool) string {
	for _, ev := range group.events {
		if claimed[ev.ID] {
			return ev.ID
		}
	}
	return ""
}
