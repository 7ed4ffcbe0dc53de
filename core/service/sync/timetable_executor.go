package sync

import (
	"context"
	"errors"
	"fmt"

	"timetable_server/core/domain"
	"timetable_server/core/port/in"
	"timetable_server/core/port/out"
	"timetable_server/pkg/apperr"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// errLinkTargetGone marks a link whose remote event vanished between
// planning and execution. The slot stays unlinked so the next plan
// recreates it.
var errLinkTargetGone = errors.New("link target no longer exists")

// Executor applies a SyncPlan against the remote calendar and the local
// store. Action groups run in a fixed order: deletes, replaces, creates,
// links. Each remote mutation is followed immediately by its local store
// update so the inconsistency window never spans more than one action.
type Executor struct {
	provider out.CalendarProviderPort
	slots    out.SlotRepository
	mapper   *Mapper
	log      zerolog.Logger
}

func NewExecutor(provider out.CalendarProviderPort, slots out.SlotRepository, mapper *Mapper, log zerolog.Logger) *Executor {
	return &Executor{
		provider: provider,
		slots:    slots,
		mapper:   mapper,
		log:      log.With().Str("component", "sync_executor").Logger(),
	}
}

// Apply executes the plan. An authorization failure on any action aborts
// the rest of the batch and surfaces as the returned error; every other
// per-action failure is counted and the batch continues. The partial
// summary is returned even on abort.
func (e *Executor) Apply(ctx context.Context, token *oauth2.Token, plan *SyncPlan) (*in.SyncSummary, error) {
	summary := &in.SyncSummary{Skipped: plan.Skipped}

	for _, eventID := range plan.Deletes {
		if err := e.deleteEvent(ctx, token, eventID); err != nil {
			if isAuthFailure(err) {
				summary.ReauthRequired = apperr.IsReauthRequired(err)
				return summary, err
			}
			e.log.Warn().Err(err).Str("event_id", eventID).Msg("remote delete failed")
			summary.Failed++
			continue
		}
		summary.Deleted++
	}

	for _, action := range plan.Replaces {
		if err := e.applyReplace(ctx, token, action, summary); err != nil {
			if isAuthFailure(err) {
				summary.ReauthRequired = apperr.IsReauthRequired(err)
				return summary, err
			}
			e.log.Warn().Err(err).Int64("slot_id", action.Slot.ID).Msg("replace failed")
			summary.Failed++
		}
	}

	for _, slot := range plan.Creates {
		if err := e.applyCreate(ctx, token, slot); err != nil {
			if isAuthFailure(err) {
				summary.ReauthRequired = apperr.IsReauthRequired(err)
				return summary, err
			}
			e.log.Warn().Err(err).Int64("slot_id", slot.ID).Msg("create failed")
			summary.Failed++
			continue
		}
		summary.Created++
	}

	for _, action := range plan.Links {
		if err := e.applyLink(ctx, token, action); err != nil {
			if errors.Is(err, errLinkTargetGone) {
				e.log.Debug().
					Int64("slot_id", action.Slot.ID).
					Str("event_id", action.Event.ID).
					Msg("link target vanished, deferring to the next plan")
				summary.Skipped++
				continue
			}
			if isAuthFailure(err) {
				summary.ReauthRequired = apperr.IsReauthRequired(err)
				return summary, err
			}
			e.log.Warn().Err(err).Int64("slot_id", action.Slot.ID).Msg("link failed")
			summary.Failed++
			continue
		}
		summary.Linked++
		summary.Updated++
	}

	return summary, nil
}

// deleteEvent removes a remote event. A missing event counts as success.
func (e *Executor) deleteEvent(ctx context.Context, token *oauth2.Token, eventID string) error {
	err := e.provider.DeleteEvent(ctx, token, eventID)
	if err != nil && apperr.IsRemoteNotFound(err) {
		return nil
	}
	return err
}

// applyReplace deletes the stale remote events of one slot and recreates
// it. The local link is cleared between the delete and the create so that
// a mid-replace failure never leaves the slot pointing at a dead event.
func (e *Executor) applyReplace(ctx context.Context, token *oauth2.Token, action ReplaceAction, summary *in.SyncSummary) error {
	for _, staleID := range action.StaleExternalIDs {
		if err := e.deleteEvent(ctx, token, staleID); err != nil {
			return fmt.Errorf("delete stale event %s: %w", staleID, err)
		}
	}
	if err := e.slots.SetExternalID(ctx, action.Slot.ID, nil); err != nil {
		e.logDriftRisk(action.Slot, err)
	}

	created, err := e.provider.CreateEvent(ctx, token, e.mapper.ToEvent(action.Slot))
	if err != nil {
		return fmt.Errorf("recreate event: %w", err)
	}
	if err := e.slots.SetExternalID(ctx, action.Slot.ID, &created.ID); err != nil {
		e.logDriftRisk(action.Slot, err)
	}
	summary.Replaced++
	return nil
}

func (e *Executor) applyCreate(ctx context.Context, token *oauth2.Token, slot *domain.ScheduleSlot) error {
	created, err := e.provider.CreateEvent(ctx, token, e.mapper.ToEvent(slot))
	if err != nil {
		return err
	}
	if err := e.slots.SetExternalID(ctx, slot.ID, &created.ID); err != nil {
		e.logDriftRisk(slot, err)
	}
	return nil
}

// applyLink refreshes the adopted event's content and records the link.
// Not-found on the update means the event was removed after listing; the
// slot is left unlinked so the next plan recreates it.
func (e *Executor) applyLink(ctx context.Context, token *oauth2.Token, action LinkAction) error {
	if _, err := e.provider.UpdateEvent(ctx, token, action.Event.ID, e.mapper.ToEvent(action.Slot)); err != nil {
		if apperr.IsRemoteNotFound(err) {
			return errLinkTargetGone
		}
		return err
	}
	eventID := action.Event.ID
	if err := e.slots.SetExternalID(ctx, action.Slot.ID, &eventID); err != nil {
		e.logDriftRisk(action.Slot, err)
	}
	return nil
}

// logDriftRisk records a local write failure after a successful remote
// mutation. The stores have drifted; a later recovery or cleanup run is
// expected to heal it, so the batch continues.
func (e *Executor) logDriftRisk(slot *domain.ScheduleSlot, err error) {
	e.log.Error().Err(err).
		Int64("slot_id", slot.ID).
		Str("user_id", slot.UserID.String()).
		Str("week", slot.WeekStart.Format("2006-01-02")).
		Msg("drift risk: local link update failed after remote mutation")
}

// isAuthFailure reports whether an action error must abort the batch.
func isAuthFailure(err error) bool {
	return apperr.IsReauthRequired(err) || apperr.IsAuthTransient(err)
}
