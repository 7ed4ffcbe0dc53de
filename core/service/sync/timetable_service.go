package sync

import (
	"context"
	"errors"
	"time"

	"timetable_server/core/domain"
	"timetable_server/core/port/in"
	"timetable_server/core/port/out"
	"timetable_server/pkg/apperr"
	"timetable_server/pkg/lock"
	"timetable_server/pkg/snowflake"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// TokenSource yields a usable access token for a user. Satisfied by the
// auth token guard.
type TokenSource interface {
	EnsureToken(ctx context.Context, userID uuid.UUID) (*oauth2.Token, error)
}

// Locker serializes engine runs per (user, week).
type Locker interface {
	Acquire(ctx context.Context, userID uuid.UUID, weekStart time.Time) (*lock.Lease, error)
}

// Service is the reconciliation engine facade. Every operation runs to
// completion inside the calling request under a per-(user, week) lock; a
// concurrent run against the same pair is rejected, not queued.
type Service struct {
	locker   Locker
	tokens   TokenSource
	provider out.CalendarProviderPort
	slots    out.SlotRepository
	reports  out.SyncReportRepository
	mapper   *Mapper
	planner  *Planner
	executor *Executor
	recovery *Recovery
	ids      *snowflake.Generator
	log      zerolog.Logger
}

var _ in.SyncService = (*Service)(nil)

func NewService(
	locker Locker,
	tokens TokenSource,
	provider out.CalendarProviderPort,
	slots out.SlotRepository,
	reports out.SyncReportRepository,
	ids *snowflake.Generator,
	log zerolog.Logger,
) *Service {
	mapper := NewMapper()
	return &Service{
		locker:   locker,
		tokens:   tokens,
		provider: provider,
		slots:    slots,
		reports:  reports,
		mapper:   mapper,
		planner:  NewPlanner(mapper, log),
		executor: NewExecutor(provider, slots, mapper, log),
		recovery: NewRecovery(provider, slots, mapper, ids, log),
		ids:      ids,
		log:      log.With().Str("component", "sync_service").Logger(),
	}
}

// ============================================================================
// Operations
// ============================================================================

// RunSync reconciles one (user, week) pair against the external calendar.
func (s *Service) RunSync(ctx context.Context, userID uuid.UUID, weekStart time.Time, explicitDeletes []string) (*in.SyncSummary, error) {
	weekStart = domain.WeekStartOf(weekStart)
	return s.runLocked(ctx, userID, weekStart, "sync", func(token *oauth2.Token) (*in.SyncSummary, error) {
		return s.syncOnce(ctx, token, userID, weekStart, explicitDeletes)
	})
}

// ForceResync reruns the full reconciliation for a run of consecutive
// weeks. Aborts at the first week that requires reauthentication.
func (s *Service) ForceResync(ctx context.Context, userID uuid.UUID, fromWeek time.Time, weeks int) (*in.SyncSummary, error) {
	if weeks < 1 {
		weeks = 1
	}
	total := &in.SyncSummary{}
	week := domain.WeekStartOf(fromWeek)
	for i := 0; i < weeks; i++ {
		summary, err := s.RunSync(ctx, userID, week, nil)
		if summary != nil {
			total.Add(summary)
		}
		if err != nil {
			if apperr.IsReauthRequired(err) {
				return total, err
			}
			s.log.Warn().Err(err).
				Str("week", week.Format("2006-01-02")).
				Str("user_id", userID.String()).
				Msg("force resync week failed, continuing")
		}
		week = week.AddDate(0, 0, 7)
	}
	return total, nil
}

// Recover rebuilds or links local slots from tagged remote events.
func (s *Service) Recover(ctx context.Context, userID uuid.UUID, weekStart time.Time) (*in.SyncSummary, error) {
	weekStart = domain.WeekStartOf(weekStart)
	return s.runLocked(ctx, userID, weekStart, "recover", func(token *oauth2.Token) (*in.SyncSummary, error) {
		return s.recovery.Scan(ctx, token, userID, weekStart)
	})
}

// CleanupOrphans removes local slots whose remote twin vanished.
func (s *Service) CleanupOrphans(ctx context.Context, userID uuid.UUID, weekStart time.Time) (*in.SyncSummary, error) {
	weekStart = domain.WeekStartOf(weekStart)
	return s.runLocked(ctx, userID, weekStart, "cleanup", func(token *oauth2.Token) (*in.SyncSummary, error) {
		return s.recovery.CollectOrphans(ctx, token, userID, weekStart)
	})
}

// ============================================================================
// Internals
// ============================================================================

// runLocked wraps one engine operation: lock, token, run with a single
// transient-auth retry, report.
func (s *Service) runLocked(
	ctx context.Context,
	userID uuid.UUID,
	weekStart time.Time,
	operation string,
	run func(token *oauth2.Token) (*in.SyncSummary, error),
) (*in.SyncSummary, error) {
	lease, err := s.locker.Acquire(ctx, userID, weekStart)
	if err != nil {
		if errors.Is(err, lock.ErrAlreadyLocked) {
			return nil, apperr.SyncLocked(userID.String(), weekStart.Format("2006-01-02"))
		}
		return nil, apperr.ExternalError("lock", err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn().Err(err).Str("user_id", userID.String()).Msg("failed to release sync lock")
		}
	}()

	startedAt := time.Now()
	summary, err := s.runWithAuthRetry(ctx, userID, run)
	s.archiveReport(ctx, userID, weekStart, operation, startedAt, summary)
	return summary, err
}

// runWithAuthRetry runs the operation, retrying exactly once after a
// transient auth failure with a freshly ensured token. A second
// authorization failure escalates to reauthentication-required.
func (s *Service) runWithAuthRetry(
	ctx context.Context,
	userID uuid.UUID,
	run func(token *oauth2.Token) (*in.SyncSummary, error),
) (*in.SyncSummary, error) {
	token, err := s.tokens.EnsureToken(ctx, userID)
	if err != nil {
		if apperr.IsAuthTransient(err) {
			token, err = s.tokens.EnsureToken(ctx, userID)
		}
		if err != nil {
			return &in.SyncSummary{ReauthRequired: apperr.IsReauthRequired(err)}, err
		}
	}

	summary, err := run(token)
	if err != nil && apperr.IsAuthTransient(err) {
		token, tokenErr := s.tokens.EnsureToken(ctx, userID)
		if tokenErr != nil {
			return summary, s.escalate(tokenErr, summary)
		}
		retrySummary, retryErr := run(token)
		if retrySummary != nil {
			summary = retrySummary
		}
		if retryErr != nil {
			return summary, s.escalate(retryErr, summary)
		}
		return summary, nil
	}
	return summary, err
}

// escalate promotes a repeated authorization failure to the terminal
// reauthentication signal; anything else passes through.
func (s *Service) escalate(err error, summary *in.SyncSummary) error {
	if apperr.IsAuthTransient(err) || apperr.IsReauthRequired(err) {
		if summary != nil {
			summary.ReauthRequired = true
		}
		return apperr.ReauthRequired(err)
	}
	return err
}

// syncOnce lists, plans, and executes one reconciliation pass.
func (s *Service) syncOnce(ctx context.Context, token *oauth2.Token, userID uuid.UUID, weekStart time.Time, explicitDeletes []string) (*in.SyncSummary, error) {
	events, err := s.provider.ListWeekEvents(ctx, token, weekStart)
	if err != nil {
		return &in.SyncSummary{}, err
	}
	localSlots, err := s.slots.ListWeek(ctx, userID, weekStart)
	if err != nil {
		return &in.SyncSummary{}, apperr.Persistence("list week slots", err)
	}

	plan := s.planner.BuildPlan(userID, weekStart, localSlots, events, explicitDeletes)
	summary, err := s.executor.Apply(ctx, token, plan)
	if err != nil {
		return summary, err
	}

	// Slots flagged as orphans get one cleanup pass in the same run so a
	// plain sync converges without a separate cleanup call.
	if len(plan.Orphans) > 0 {
		cleanup, err := s.recovery.CollectOrphans(ctx, token, userID, weekStart)
		if cleanup != nil {
			summary.Add(cleanup)
		}
		if err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// archiveReport stores the run outcome for later inspection. Best effort;
// an archive failure never fails the run.
func (s *Service) archiveReport(ctx context.Context, userID uuid.UUID, weekStart time.Time, operation string, startedAt time.Time, summary *in.SyncSummary) {
	if s.reports == nil || summary == nil {
		return
	}
	report := &out.SyncReport{
		ID:            uuid.NewString(),
		UserID:        userID.String(),
		WeekStart:     weekStart,
		Operation:     operation,
		Created:       summary.Created,
		Updated:       summary.Updated,
		Replaced:      summary.Replaced,
		Deleted:       summary.Deleted,
		Failed:        summary.Failed,
		Skipped:       summary.Skipped,
		ReauthNeeded:  summary.ReauthRequired,
		StartedAt:     startedAt,
		DurationMilli: time.Since(startedAt).Milliseconds(),
	}
	if err := s.reports.Save(context.WithoutCancel(ctx), report); err != nil {
		s.log.Warn().Err(err).
			Str("operation", operation).
			Str("user_id", userID.String()).
			Msg("failed to archive report")
	}
}
