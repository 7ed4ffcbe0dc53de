package sync

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"timetable_server/core/domain"
	"timetable_server/core/port/out"
	"timetable_server/pkg/apperr"
	"timetable_server/pkg/lock"
	"timetable_server/pkg/snowflake"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// ============================================================================
// Fakes
// ============================================================================

type fakeProvider struct {
	events  map[string]*out.ProviderEvent
	nextID  int
	creates int
	updates int
	deletes int

	// callErr fails every call when set; used to simulate auth failures.
	callErr error

	// updateErr fails only UpdateEvent when set.
	updateErr error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{events: make(map[string]*out.ProviderEvent)}
}

func (p *fakeProvider) ListWeekEvents(_ context.Context, _ *oauth2.Token, weekStart time.Time) ([]*out.ProviderEvent, error) {
	if p.callErr != nil {
		return nil, p.callErr
	}
	weekEnd := weekStart.AddDate(0, 0, 7)
	ids := make([]string, 0, len(p.events))
	for id, ev := range p.events {
		if ev.StartTime.Before(weekStart) || !ev.StartTime.Before(weekEnd) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	list := make([]*out.ProviderEvent, 0, len(ids))
	for _, id := range ids {
		ev := *p.events[id]
		list = append(list, &ev)
	}
	return list, nil
}

func (p *fakeProvider) CreateEvent(_ context.Context, _ *oauth2.Token, event *out.ProviderEvent) (*out.ProviderEvent, error) {
	if p.callErr != nil {
		return nil, p.callErr
	}
	p.creates++
	p.nextID++
	stored := *event
	stored.ID = fmt.Sprintf("ev-%d", p.nextID)
	stored.Created = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(p.nextID) * time.Minute)
	p.events[stored.ID] = &stored
	result := stored
	return &result, nil
}

func (p *fakeProvider) UpdateEvent(_ context.Context, _ *oauth2.Token, eventID string, event *out.ProviderEvent) (*out.ProviderEvent, error) {
	if p.callErr != nil {
		return nil, p.callErr
	}
	if p.updateErr != nil {
		return nil, p.updateErr
	}
	existing, ok := p.events[eventID]
	if !ok {
		return nil, apperr.RemoteNotFound(eventID)
	}
	p.updates++
	updated := *event
	updated.ID = eventID
	updated.Created = existing.Created
	p.events[eventID] = &updated
	result := updated
	return &result, nil
}

func (p *fakeProvider) DeleteEvent(_ context.Context, _ *oauth2.Token, eventID string) error {
	if p.callErr != nil {
		return p.callErr
	}
	if _, ok := p.events[eventID]; !ok {
		return apperr.RemoteNotFound(eventID)
	}
	p.deletes++
	delete(p.events, eventID)
	return nil
}

// seed inserts a remote event directly, bypassing the mutation counters.
func (p *fakeProvider) seed(ev *out.ProviderEvent) {
	p.events[ev.ID] = ev
}

type fakeSlotRepo struct {
	slots        map[int64]*domain.ScheduleSlot
	batchDeletes int
}

func newFakeSlotRepo() *fakeSlotRepo {
	return &fakeSlotRepo{slots: make(map[int64]*domain.ScheduleSlot)}
}

func (r *fakeSlotRepo) ListWeek(_ context.Context, userID uuid.UUID, weekStart time.Time) ([]*domain.ScheduleSlot, error) {
	var list []*domain.ScheduleSlot
	for _, s := range r.slots {
		if s.UserID == userID && s.WeekStart.Equal(weekStart) {
			c := *s
			list = append(list, &c)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Weekday != list[j].Weekday {
			return list[i].Weekday < list[j].Weekday
		}
		return list[i].PeriodStart < list[j].PeriodStart
	})
	return list, nil
}

func (r *fakeSlotRepo) Create(_ context.Context, slot *domain.ScheduleSlot) error {
	c := *slot
	r.slots[slot.ID] = &c
	return nil
}

func (r *fakeSlotRepo) Delete(_ context.Context, slotID int64) error {
	delete(r.slots, slotID)
	return nil
}

func (r *fakeSlotRepo) DeleteByIDs(_ context.Context, slotIDs []int64) error {
	r.batchDeletes++
	for _, id := range slotIDs {
		delete(r.slots, id)
	}
	return nil
}

func (r *fakeSlotRepo) DeleteWeek(_ context.Context, userID uuid.UUID, weekStart time.Time) error {
	for id, s := range r.slots {
		if s.UserID == userID && s.WeekStart.Equal(weekStart) {
			delete(r.slots, id)
		}
	}
	return nil
}

func (r *fakeSlotRepo) ReplaceWeek(_ context.Context, userID uuid.UUID, weekStart time.Time, slots []*domain.ScheduleSlot) error {
	if err := r.DeleteWeek(context.Background(), userID, weekStart); err != nil {
		return err
	}
	for _, s := range slots {
		c := *s
		r.slots[s.ID] = &c
	}
	return nil
}

func (r *fakeSlotRepo) SetExternalID(_ context.Context, slotID int64, externalID *string) error {
	s, ok := r.slots[slotID]
	if !ok {
		return fmt.Errorf("slot %d not found", slotID)
	}
	if externalID == nil {
		s.ExternalID = nil
		return nil
	}
	id := *externalID
	s.ExternalID = &id
	return nil
}

type fakeTokenSource struct {
	errs  []error // consumed one per call; nil entry means success
	calls int
}

func (f *fakeTokenSource) EnsureToken(_ context.Context, _ uuid.UUID) (*oauth2.Token, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &oauth2.Token{AccessToken: "test-access"}, nil
}

type fakeLocker struct {
	held bool
}

func (f *fakeLocker) Acquire(_ context.Context, _ uuid.UUID, _ time.Time) (*lock.Lease, error) {
	if f.held {
		return nil, lock.ErrAlreadyLocked
	}
	return &lock.Lease{}, nil
}

type fakeReportRepo struct {
	saved []*out.SyncReport
}

func (f *fakeReportRepo) Save(_ context.Context, report *out.SyncReport) error {
	f.saved = append(f.saved, report)
	return nil
}

func (f *fakeReportRepo) ListByUser(_ context.Context, _ uuid.UUID, _ int) ([]*out.SyncReport, error) {
	return f.saved, nil
}

// ============================================================================
// Harness
// ============================================================================

type engineFixture struct {
	userID   uuid.UUID
	week     time.Time
	provider *fakeProvider
	repo     *fakeSlotRepo
	tokens   *fakeTokenSource
	locker   *fakeLocker
	reports  *fakeReportRepo
	service  *Service
	nextID   int64
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	gen, err := snowflake.NewGenerator(1)
	if err != nil {
		t.Fatal(err)
	}
	f := &engineFixture{
		userID:   uuid.New(),
		week:     time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		provider: newFakeProvider(),
		repo:     newFakeSlotRepo(),
		tokens:   &fakeTokenSource{},
		locker:   &fakeLocker{},
		reports:  &fakeReportRepo{},
	}
	f.service = NewService(f.locker, f.tokens, f.provider, f.repo, f.reports, gen, zerolog.Nop())
	return f
}

func (f *engineFixture) addSlot(weekday, pStart, pEnd int, course string) *domain.ScheduleSlot {
	f.nextID++
	slot := &domain.ScheduleSlot{
		ID:          f.nextID,
		UserID:      f.userID,
		WeekStart:   f.week,
		Weekday:     weekday,
		PeriodStart: pStart,
		PeriodEnd:   pEnd,
		CourseName:  course,
	}
	f.repo.slots[slot.ID] = slot
	return slot
}

func (f *engineFixture) slot(id int64) *domain.ScheduleSlot {
	return f.repo.slots[id]
}

// ============================================================================
// Sync scenarios
// ============================================================================

func TestRunSync_CreatesUnlinkedSlot(t *testing.T) {
	f := newEngineFixture(t)
	slot := f.addSlot(1, 1, 2, "Algebra")

	summary, err := f.service.RunSync(context.Background(), f.userID, f.week, nil)
	if err != nil {
		t.Fatalf("RunSync() error = %v", err)
	}
	if summary.Created != 1 {
		t.Errorf("created = %d, want 1", summary.Created)
	}
	stored := f.slot(slot.ID)
	if stored.ExternalID == nil {
		t.Fatal("slot did not receive its external link")
	}
	if _, ok := f.provider.events[*stored.ExternalID]; !ok {
		t.Error("slot links to an event the provider does not hold")
	}
}

func TestRunSync_SecondRunIsNoOp(t *testing.T) {
	f := newEngineFixture(t)
	f.addSlot(1, 1, 2, "Algebra")
	f.addSlot(3, 5, 6, "History")

	if _, err := f.service.RunSync(context.Background(), f.userID, f.week, nil); err != nil {
		t.Fatal(err)
	}
	second, err := f.service.RunSync(context.Background(), f.userID, f.week, nil)
	if err != nil {
		t.Fatal(err)
	}
	if second.Created != 0 || second.Updated != 0 || second.Deleted != 0 || second.Replaced != 0 {
		t.Errorf("second run not idempotent: %+v", second)
	}
}

func TestRunSync_CourseChangeReplacesEvent(t *testing.T) {
	f := newEngineFixture(t)
	slot := f.addSlot(1, 1, 2, "Algebra")

	if _, err := f.service.RunSync(context.Background(), f.userID, f.week, nil); err != nil {
		t.Fatal(err)
	}
	oldRef := *f.slot(slot.ID).ExternalID
	f.provider.creates, f.provider.deletes = 0, 0

	f.slot(slot.ID).CourseName = "Biology"

	summary, err := f.service.RunSync(context.Background(), f.userID, f.week, nil)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Replaced != 1 {
		t.Errorf("replaced = %d, want 1", summary.Replaced)
	}
	if f.provider.deletes != 1 || f.provider.creates != 1 {
		t.Errorf("remote calls = %d deletes, %d creates, want 1 and 1",
			f.provider.deletes, f.provider.creates)
	}
	newRef := *f.slot(slot.ID).ExternalID
	if newRef == oldRef {
		t.Error("external link still points at the replaced event")
	}
	if _, gone := f.provider.events[oldRef]; gone {
		t.Error("stale remote event survived the replace")
	}
	if len(f.provider.events) != 1 {
		t.Errorf("%d remote events remain, want exactly 1", len(f.provider.events))
	}
}

func TestRunSync_LinksMatchingRemoteEvent(t *testing.T) {
	f := newEngineFixture(t)
	slot := f.addSlot(1, 1, 2, "Algebra")

	// A remote twin exists (created by an earlier install) but the local
	// slot lost its link.
	ev := NewMapper().ToEvent(f.slot(slot.ID))
	ev.ID = "ev-existing"
	ev.Created = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f.provider.seed(ev)

	summary, err := f.service.RunSync(context.Background(), f.userID, f.week, nil)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Linked != 1 {
		t.Errorf("linked = %d, want 1", summary.Linked)
	}
	if summary.Created != 0 {
		t.Errorf("created = %d, adoption must not duplicate the event", summary.Created)
	}
	if got := f.slot(slot.ID).ExternalID; got == nil || *got != "ev-existing" {
		t.Error("slot not linked to the existing remote event")
	}
	if f.provider.updates != 1 {
		t.Errorf("updates = %d, link must refresh the event", f.provider.updates)
	}
}

func TestRunSync_LinkTargetVanishedDefersToNextRun(t *testing.T) {
	f := newEngineFixture(t)
	slot := f.addSlot(1, 1, 2, "Algebra")

	ev := NewMapper().ToEvent(f.slot(slot.ID))
	ev.ID = "ev-fleeting"
	f.provider.seed(ev)
	// The event is removed externally between the listing and the adoption
	// update.
	f.provider.updateErr = apperr.RemoteNotFound("ev-fleeting")

	summary, err := f.service.RunSync(context.Background(), f.userID, f.week, nil)
	if err != nil {
		t.Fatalf("RunSync() error = %v", err)
	}
	if summary.Failed != 0 {
		t.Errorf("failed = %d, a vanished link target is not a failure", summary.Failed)
	}
	if summary.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", summary.Skipped)
	}
	if f.slot(slot.ID).ExternalID != nil {
		t.Error("slot must stay unlinked so the next run can recreate it")
	}

	// The next run sees the event gone and converges via the create path.
	delete(f.provider.events, "ev-fleeting")
	f.provider.updateErr = nil

	second, err := f.service.RunSync(context.Background(), f.userID, f.week, nil)
	if err != nil {
		t.Fatal(err)
	}
	if second.Created != 1 {
		t.Errorf("created = %d on the follow-up run, want 1", second.Created)
	}
	if f.slot(slot.ID).ExternalID == nil {
		t.Error("slot not linked after the follow-up run")
	}
}

func TestRunSync_DeduplicatesRemoteEvents(t *testing.T) {
	f := newEngineFixture(t)
	slot := f.addSlot(1, 1, 2, "Algebra")

	base := NewMapper().ToEvent(f.slot(slot.ID))
	older := *base
	older.ID = "ev-b"
	older.Created = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := *base
	newer.ID = "ev-a"
	newer.Created = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	f.provider.seed(&older)
	f.provider.seed(&newer)

	summary, err := f.service.RunSync(context.Background(), f.userID, f.week, nil)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Deleted != 1 {
		t.Errorf("deleted = %d, want the duplicate gone", summary.Deleted)
	}
	if _, ok := f.provider.events["ev-b"]; !ok {
		t.Error("earliest-created event must survive as canonical")
	}
	if _, ok := f.provider.events["ev-a"]; ok {
		t.Error("later duplicate must be deleted")
	}
	if got := f.slot(slot.ID).ExternalID; got == nil || *got != "ev-b" {
		t.Error("slot must link to the canonical event")
	}
}

func TestRunSync_HonorsExplicitDeletes(t *testing.T) {
	f := newEngineFixture(t)
	f.provider.seed(&out.ProviderEvent{ID: "ev-cleared", Title: "Old"})

	summary, err := f.service.RunSync(context.Background(), f.userID, f.week, []string{"ev-cleared", "ev-already-gone"})
	if err != nil {
		t.Fatal(err)
	}
	// The missing id counts as a successful idempotent delete.
	if summary.Deleted != 2 {
		t.Errorf("deleted = %d, want 2", summary.Deleted)
	}
	if _, ok := f.provider.events["ev-cleared"]; ok {
		t.Error("explicitly requested event still present")
	}
}

func TestRunSync_SkipsInvalidSlots(t *testing.T) {
	f := newEngineFixture(t)
	bad := f.addSlot(1, 1, 2, "Algebra")
	bad.CourseName = "" // no course identity left

	summary, err := f.service.RunSync(context.Background(), f.userID, f.week, nil)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Skipped != 1 || summary.Created != 0 {
		t.Errorf("summary = %+v, want 1 skipped and nothing created", summary)
	}
	if f.provider.creates != 0 {
		t.Error("invalid slot reached the provider")
	}
}

func TestRunSync_ReauthAbortsBatch(t *testing.T) {
	f := newEngineFixture(t)
	f.tokens.errs = []error{apperr.ReauthRequired(nil)}

	summary, err := f.service.RunSync(context.Background(), f.userID, f.week, nil)
	if !apperr.IsReauthRequired(err) {
		t.Fatalf("error = %v, want reauth required", err)
	}
	if summary == nil || !summary.ReauthRequired {
		t.Error("summary must carry the reauth signal")
	}
}

func TestRunSync_TransientAuthRetriesOnceThenEscalates(t *testing.T) {
	f := newEngineFixture(t)
	f.addSlot(1, 1, 2, "Algebra")
	f.provider.callErr = apperr.AuthTransient(fmt.Errorf("token rejected"))

	_, err := f.service.RunSync(context.Background(), f.userID, f.week, nil)
	if !apperr.IsReauthRequired(err) {
		t.Fatalf("error = %v, want escalation to reauth required", err)
	}
	// Initial token, then one fresh token for the single retry.
	if f.tokens.calls != 2 {
		t.Errorf("token source consulted %d times, want 2", f.tokens.calls)
	}
}

func TestRunSync_TransientAuthRecoversOnRetry(t *testing.T) {
	f := newEngineFixture(t)
	f.addSlot(1, 1, 2, "Algebra")
	f.tokens.errs = []error{apperr.AuthTransient(fmt.Errorf("endpoint hiccup")), nil}

	summary, err := f.service.RunSync(context.Background(), f.userID, f.week, nil)
	if err != nil {
		t.Fatalf("RunSync() error = %v, want recovery on second token attempt", err)
	}
	if summary.Created != 1 {
		t.Errorf("created = %d, want 1", summary.Created)
	}
}

func TestRunSync_RejectsConcurrentRun(t *testing.T) {
	f := newEngineFixture(t)
	f.locker.held = true

	_, err := f.service.RunSync(context.Background(), f.userID, f.week, nil)
	if !apperr.HasCode(err, apperr.CodeSyncLocked) {
		t.Fatalf("error = %v, want sync-in-progress", err)
	}
}

func TestRunSync_ArchivesReport(t *testing.T) {
	f := newEngineFixture(t)
	f.addSlot(1, 1, 2, "Algebra")

	if _, err := f.service.RunSync(context.Background(), f.userID, f.week, nil); err != nil {
		t.Fatal(err)
	}
	if len(f.reports.saved) != 1 {
		t.Fatalf("reports saved = %d, want 1", len(f.reports.saved))
	}
	report := f.reports.saved[0]
	if report.Operation != "sync" || report.Created != 1 {
		t.Errorf("report = %+v", report)
	}
}

// ============================================================================
// Recovery and cleanup scenarios
// ============================================================================

func TestRecover_RebuildsSlotFromRemoteEvent(t *testing.T) {
	f := newEngineFixture(t)
	seedSlot := &domain.ScheduleSlot{
		UserID: f.userID, WeekStart: f.week,
		Weekday: 1, PeriodStart: 1, PeriodEnd: 2,
		CourseName: "Algebra", Location: "Main - 101",
	}
	ev := NewMapper().ToEvent(seedSlot)
	ev.ID = "ev-remote-only"
	f.provider.seed(ev)

	summary, err := f.service.Recover(context.Background(), f.userID, f.week)
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	if summary.Created != 1 {
		t.Errorf("created = %d, want 1", summary.Created)
	}
	slots, _ := f.repo.ListWeek(context.Background(), f.userID, f.week)
	if len(slots) != 1 {
		t.Fatalf("%d local slots, want 1", len(slots))
	}
	got := slots[0]
	if got.Weekday != 1 || got.PeriodStart != 1 || got.PeriodEnd != 2 || got.CourseName != "Algebra" {
		t.Errorf("rebuilt slot = %+v", got)
	}
	if got.ExternalID == nil || *got.ExternalID != "ev-remote-only" {
		t.Error("rebuilt slot not linked to its source event")
	}
}

func TestRecover_RoundTripAfterLocalLoss(t *testing.T) {
	f := newEngineFixture(t)
	slot := f.addSlot(2, 1, 4, "Chemistry")

	if _, err := f.service.RunSync(context.Background(), f.userID, f.week, nil); err != nil {
		t.Fatal(err)
	}
	ref := *f.slot(slot.ID).ExternalID

	// The local row is lost; the remote event survives.
	delete(f.repo.slots, slot.ID)

	summary, err := f.service.Recover(context.Background(), f.userID, f.week)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Created != 1 {
		t.Errorf("created = %d, want the slot rebuilt", summary.Created)
	}
	slots, _ := f.repo.ListWeek(context.Background(), f.userID, f.week)
	if len(slots) != 1 {
		t.Fatalf("%d local slots after recovery", len(slots))
	}
	got := slots[0]
	if got.Weekday != 2 || got.PeriodStart != 1 || got.PeriodEnd != 4 || got.CourseName != "Chemistry" {
		t.Errorf("recovered slot = %+v", got)
	}
	if got.ExternalID == nil || *got.ExternalID != ref {
		t.Error("recovered slot must restore the original external link")
	}
}

func TestRecover_LinksExistingUnlinkedSlot(t *testing.T) {
	f := newEngineFixture(t)
	slot := f.addSlot(1, 1, 2, "Algebra")

	ev := NewMapper().ToEvent(f.slot(slot.ID))
	ev.ID = "ev-match"
	f.provider.seed(ev)

	summary, err := f.service.Recover(context.Background(), f.userID, f.week)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Linked != 1 || summary.Created != 0 {
		t.Errorf("summary = %+v, want one link and no new slot", summary)
	}
	if got := f.slot(slot.ID).ExternalID; got == nil || *got != "ev-match" {
		t.Error("existing slot not linked")
	}
}

func TestRecover_NeverDeletes(t *testing.T) {
	f := newEngineFixture(t)
	f.addSlot(1, 1, 2, "Algebra") // local-only, unlinked
	f.provider.seed(&out.ProviderEvent{
		ID: "ev-untagged-like", Title: "Mystery",
		Description: "no metadata at all",
		StartTime:   f.week.Add(10 * time.Hour),
	})

	summary, err := f.service.Recover(context.Background(), f.userID, f.week)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Skipped != 1 {
		t.Errorf("skipped = %d, unrecoverable event must be logged and skipped", summary.Skipped)
	}
	if f.provider.deletes != 0 {
		t.Error("recovery deleted a remote event")
	}
	if len(f.repo.slots) != 1 {
		t.Error("recovery deleted a local slot")
	}
}

func TestCleanupOrphans_DeletesTrueOrphan(t *testing.T) {
	f := newEngineFixture(t)
	slot := f.addSlot(1, 1, 2, "Algebra")
	ref := "ev-vanished"
	f.slot(slot.ID).ExternalID = &ref

	summary, err := f.service.CleanupOrphans(context.Background(), f.userID, f.week)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Orphaned != 1 {
		t.Errorf("orphaned = %d, want 1", summary.Orphaned)
	}
	if _, ok := f.repo.slots[slot.ID]; ok {
		t.Error("orphaned slot must be deleted, not resurrected")
	}
}

func TestCleanupOrphans_BatchesDeletions(t *testing.T) {
	f := newEngineFixture(t)
	first := f.addSlot(1, 1, 2, "Algebra")
	second := f.addSlot(2, 3, 4, "History")
	deadA, deadB := "ev-gone-a", "ev-gone-b"
	f.slot(first.ID).ExternalID = &deadA
	f.slot(second.ID).ExternalID = &deadB

	summary, err := f.service.CleanupOrphans(context.Background(), f.userID, f.week)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Orphaned != 2 {
		t.Errorf("orphaned = %d, want 2", summary.Orphaned)
	}
	if len(f.repo.slots) != 0 {
		t.Errorf("%d slots remain, want 0", len(f.repo.slots))
	}
	if f.repo.batchDeletes != 1 {
		t.Errorf("batch deletes = %d, want one statement for the whole week", f.repo.batchDeletes)
	}
}

func TestCleanupOrphans_RelinksBeforeDeleting(t *testing.T) {
	f := newEngineFixture(t)
	slot := f.addSlot(1, 1, 2, "Algebra")
	dead := "ev-dead"
	f.slot(slot.ID).ExternalID = &dead

	// The event was recreated externally under a new id with the same
	// time window and title.
	replacement := NewMapper().ToEvent(f.slot(slot.ID))
	replacement.ID = "ev-recreated"
	f.provider.seed(replacement)

	summary, err := f.service.CleanupOrphans(context.Background(), f.userID, f.week)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Relinked != 1 || summary.Orphaned != 0 {
		t.Errorf("summary = %+v, want a relink instead of deletion", summary)
	}
	if got := f.slot(slot.ID).ExternalID; got == nil || *got != "ev-recreated" {
		t.Error("slot not relinked to the recreated event")
	}
}

func TestRunSync_OrphanedSlotCleanedInSameRun(t *testing.T) {
	f := newEngineFixture(t)
	slot := f.addSlot(1, 1, 2, "Algebra")
	dead := "ev-long-gone"
	f.slot(slot.ID).ExternalID = &dead

	summary, err := f.service.RunSync(context.Background(), f.userID, f.week, nil)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Orphaned != 1 {
		t.Errorf("orphaned = %d, want the dangling slot collected", summary.Orphaned)
	}
	if _, ok := f.repo.slots[slot.ID]; ok {
		t.Error("dangling slot survived the sync run")
	}
}

// ============================================================================
// Force resync
// ============================================================================

func TestForceResync_CoversConsecutiveWeeks(t *testing.T) {
	f := newEngineFixture(t)
	week2 := f.week.AddDate(0, 0, 7)
	f.addSlot(1, 1, 2, "Algebra")
	f.nextID++
	s2 := &domain.ScheduleSlot{
		ID: f.nextID, UserID: f.userID, WeekStart: week2,
		Weekday: 1, PeriodStart: 1, PeriodEnd: 2, CourseName: "Algebra",
	}
	f.repo.slots[s2.ID] = s2

	summary, err := f.service.ForceResync(context.Background(), f.userID, f.week, 2)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Created != 2 {
		t.Errorf("created = %d across two weeks, want 2", summary.Created)
	}
}

func TestForceResync_StopsOnReauth(t *testing.T) {
	f := newEngineFixture(t)
	f.tokens.errs = []error{apperr.ReauthRequired(nil)}

	summary, err := f.service.ForceResync(context.Background(), f.userID, f.week, 4)
	if !apperr.IsReauthRequired(err) {
		t.Fatalf("error = %v, want reauth required", err)
	}
	if !summary.ReauthRequired {
		t.Error("aggregate summary must carry the reauth signal")
	}
	// One failed token attempt, no per-week retries afterwards.
	if f.tokens.calls != 1 {
		t.Errorf("token source consulted %d times, want 1", f.tokens.calls)
	}
}
