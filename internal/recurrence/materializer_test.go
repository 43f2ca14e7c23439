package recurrence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mmynk/splitledger/internal/errs"
	"github.com/mmynk/splitledger/internal/metrics"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/internal/storage/memory"
	"github.com/mmynk/splitledger/internal/storage/storagetest"
	"github.com/mmynk/splitledger/pkg/clock"
)

// farFuture lists every pending link regardless of due date.
var farFuture = date(2100, 1, 1)

type fixture struct {
	store storage.Store
	group *models.Group
	frame *models.Obligation
}

// newRecurring creates a group with one recurring rent obligation and its chain.
func newRecurring(t *testing.T, store storage.Store, cadence models.Cadence, anchor time.Time) fixture {
	t.Helper()
	ctx := context.Background()
	group := storagetest.NewGroup(t, store, "Flat", "Alice", "Bob")
	alice, bob := group.Participants[0].ID, group.Participants[1].ID

	frame := &models.Obligation{
		GroupID:     group.ID,
		Title:       "Rent",
		Category:    "housing",
		Amount:      120000,
		PayerID:     alice,
		Date:        anchor,
		SplitPolicy: models.SplitByShares,
		Shares: []models.Share{
			{ParticipantID: alice, Weight: 1},
			{ParticipantID: bob, Weight: 2},
		},
		Cadence: cadence,
	}
	m := NewMaterializer(store, clock.NewFixed(anchor))
	err := store.InTx(ctx, func(tx storage.Store) error {
		if err := tx.CreateObligation(ctx, frame); err != nil {
			return err
		}
		return m.SyncCadence(ctx, tx, frame)
	})
	if err != nil {
		t.Fatalf("failed to create recurring obligation: %v", err)
	}
	return fixture{store: store, group: group, frame: frame}
}

func (f fixture) obligations(t *testing.T) []*models.Obligation {
	t.Helper()
	list, err := f.store.ListObligations(context.Background(), f.group.ID)
	if err != nil {
		t.Fatalf("ListObligations failed: %v", err)
	}
	return list
}

func (f fixture) pending(t *testing.T) []*models.RecurrenceLink {
	t.Helper()
	links, err := f.store.ListPendingRecurrenceLinks(context.Background(), f.group.ID, farFuture)
	if err != nil {
		t.Fatalf("ListPendingRecurrenceLinks failed: %v", err)
	}
	return links
}

func dates(list []*models.Obligation) []string {
	out := make([]string, len(list))
	for i, o := range list {
		out[i] = o.Date.Format(time.DateOnly)
	}
	return out
}

func TestMaterializeDue(t *testing.T) {
	tests := []struct {
		name         string
		cadence      models.Cadence
		anchor       time.Time
		now          time.Time
		wantCreated  int
		wantDates    []string
		wantNextDate time.Time
	}{
		{
			name:         "three missed monthly periods",
			cadence:      models.CadenceMonthly,
			anchor:       date(2024, 1, 15),
			now:          date(2024, 4, 20),
			wantCreated:  3,
			wantDates:    []string{"2024-01-15", "2024-02-15", "2024-03-15", "2024-04-15"},
			wantNextDate: date(2024, 5, 15),
		},
		{
			name:         "due exactly now",
			cadence:      models.CadenceMonthly,
			anchor:       date(2024, 1, 15),
			now:          date(2024, 2, 15),
			wantCreated:  1,
			wantDates:    []string{"2024-01-15", "2024-02-15"},
			wantNextDate: date(2024, 3, 15),
		},
		{
			name:         "nothing due yet",
			cadence:      models.CadenceMonthly,
			anchor:       date(2024, 1, 15),
			now:          date(2024, 2, 14),
			wantCreated:  0,
			wantDates:    []string{"2024-01-15"},
			wantNextDate: date(2024, 2, 15),
		},
		{
			name:         "month end drift is carried forward",
			cadence:      models.CadenceMonthly,
			anchor:       date(2024, 1, 31),
			now:          date(2024, 4, 30),
			wantCreated:  3,
			wantDates:    []string{"2024-01-31", "2024-02-29", "2024-03-29", "2024-04-29"},
			wantNextDate: date(2024, 5, 29),
		},
		{
			name:         "weekly across a month",
			cadence:      models.CadenceWeekly,
			anchor:       date(2024, 1, 29),
			now:          date(2024, 2, 13),
			wantCreated:  2,
			wantDates:    []string{"2024-01-29", "2024-02-05", "2024-02-12"},
			wantNextDate: date(2024, 2, 19),
		},
		{
			name:         "daily",
			cadence:      models.CadenceDaily,
			anchor:       date(2024, 2, 28),
			now:          date(2024, 3, 1),
			wantCreated:  2,
			wantDates:    []string{"2024-02-28", "2024-02-29", "2024-03-01"},
			wantNextDate: date(2024, 3, 2),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRecurring(t, memory.New(), tt.cadence, tt.anchor)
			m := NewMaterializer(f.store, clock.NewFixed(tt.now))

			res, err := m.MaterializeDue(context.Background(), f.group.ID)
			if err != nil {
				t.Fatalf("MaterializeDue failed: %v", err)
			}
			if res.Created != tt.wantCreated || len(res.Failures) != 0 {
				t.Fatalf("result = %+v, want %d created and no failures", res, tt.wantCreated)
			}

			list := f.obligations(t)
			got := dates(list)
			if len(got) != len(tt.wantDates) {
				t.Fatalf("dates = %v, want %v", got, tt.wantDates)
			}
			for i := range got {
				if got[i] != tt.wantDates[i] {
					t.Errorf("dates = %v, want %v", got, tt.wantDates)
					break
				}
			}

			pending := f.pending(t)
			if len(pending) != 1 {
				t.Fatalf("expected exactly one pending link, got %d", len(pending))
			}
			last := list[len(list)-1]
			if pending[0].ObligationID != last.ID {
				t.Errorf("pending link frame = %s, want newest obligation %s", pending[0].ObligationID, last.ID)
			}
			if !pending[0].NextDate.Equal(tt.wantNextDate) {
				t.Errorf("next date = %s, want %s", pending[0].NextDate.Format(time.DateOnly), tt.wantNextDate.Format(time.DateOnly))
			}
		})
	}
}

func TestMaterializeDue_ClonesFrame(t *testing.T) {
	f := newRecurring(t, memory.New(), models.CadenceMonthly, date(2024, 1, 10))
	m := NewMaterializer(f.store, clock.NewFixed(date(2024, 2, 10)))

	if _, err := m.MaterializeDue(context.Background(), f.group.ID); err != nil {
		t.Fatalf("MaterializeDue failed: %v", err)
	}

	list := f.obligations(t)
	if len(list) != 2 {
		t.Fatalf("expected 2 obligations, got %d", len(list))
	}
	next := list[1]
	if next.Title != f.frame.Title || next.Category != f.frame.Category || next.Amount != f.frame.Amount ||
		next.PayerID != f.frame.PayerID || next.SplitPolicy != f.frame.SplitPolicy || next.Cadence != f.frame.Cadence {
		t.Errorf("successor does not match frame: got %+v", next)
	}
	if len(next.Shares) != len(f.frame.Shares) {
		t.Fatalf("expected %d shares, got %d", len(f.frame.Shares), len(next.Shares))
	}
	for i := range next.Shares {
		if next.Shares[i] != f.frame.Shares[i] {
			t.Errorf("share %d = %+v, want %+v", i, next.Shares[i], f.frame.Shares[i])
		}
	}
}

func TestMaterializeDue_IsIdempotent(t *testing.T) {
	f := newRecurring(t, memory.New(), models.CadenceMonthly, date(2024, 1, 15))
	m := NewMaterializer(f.store, clock.NewFixed(date(2024, 4, 20)))
	ctx := context.Background()

	before := testutil.ToFloat64(metrics.ObligationsMaterialized)
	if _, err := m.MaterializeDue(ctx, f.group.ID); err != nil {
		t.Fatalf("MaterializeDue failed: %v", err)
	}
	res, err := m.MaterializeDue(ctx, f.group.ID)
	if err != nil {
		t.Fatalf("second MaterializeDue failed: %v", err)
	}
	if res.Created != 0 {
		t.Errorf("expected re-run to create nothing, created %d", res.Created)
	}
	if got := len(f.obligations(t)); got != 4 {
		t.Errorf("expected 4 obligations, got %d", got)
	}
	if delta := testutil.ToFloat64(metrics.ObligationsMaterialized) - before; delta != 3 {
		t.Errorf("materialized counter moved by %v, want 3", delta)
	}
}

func TestMaterializeDue_RepointsAttachments(t *testing.T) {
	f := newRecurring(t, memory.New(), models.CadenceMonthly, date(2024, 1, 1))
	ctx := context.Background()
	lease := &models.Attachment{ObligationID: f.frame.ID, Name: "lease.pdf", URL: "s3://docs/lease.pdf"}
	if err := f.store.AddAttachment(ctx, lease); err != nil {
		t.Fatalf("AddAttachment failed: %v", err)
	}

	m := NewMaterializer(f.store, clock.NewFixed(date(2024, 3, 1)))
	if _, err := m.MaterializeDue(ctx, f.group.ID); err != nil {
		t.Fatalf("MaterializeDue failed: %v", err)
	}

	list := f.obligations(t)
	for i, o := range list {
		want := 0
		if i == len(list)-1 {
			want = 1
		}
		if len(o.Attachments) != want {
			t.Errorf("obligation %s has %d attachments, want %d", o.Date.Format(time.DateOnly), len(o.Attachments), want)
		}
	}
	if got := list[len(list)-1].Attachments; len(got) == 1 && got[0].ID != lease.ID {
		t.Errorf("attachment was copied instead of moved: %+v", got[0])
	}
}

// faultyStore fails the n-th CreateObligation call made through it or any of
// its transactional views.
type faultyStore struct {
	storage.Store
	faults *faults
}

type faults struct {
	mu     sync.Mutex
	calls  int
	failOn int
}

func (f *faultyStore) InTx(ctx context.Context, fn func(tx storage.Store) error) error {
	return f.Store.InTx(ctx, func(tx storage.Store) error {
		return fn(&faultyStore{Store: tx, faults: f.faults})
	})
}

func (f *faultyStore) CreateObligation(ctx context.Context, o *models.Obligation) error {
	f.faults.mu.Lock()
	f.faults.calls++
	fail := f.faults.calls == f.faults.failOn
	f.faults.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.Store.CreateObligation(ctx, o)
}

func TestMaterializeDue_FailureDoesNotAdvanceChain(t *testing.T) {
	f := newRecurring(t, memory.New(), models.CadenceMonthly, date(2024, 1, 15))
	ctx := context.Background()
	now := clock.NewFixed(date(2024, 4, 20))

	// Fail the second period.
	faulty := &faultyStore{Store: f.store, faults: &faults{failOn: 2}}
	m := NewMaterializer(faulty, now)

	failuresBefore := testutil.ToFloat64(metrics.MaterializationFailures)
	res, err := m.MaterializeDue(ctx, f.group.ID)
	if err != nil {
		t.Fatalf("MaterializeDue failed: %v", err)
	}
	if res.Created != 1 {
		t.Errorf("expected 1 obligation before the failure, created %d", res.Created)
	}
	if len(res.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %v", res.Failures)
	}
	var merr *errs.MaterializationError
	if !errors.As(res.Failures[0], &merr) {
		t.Fatalf("expected MaterializationError, got %T", res.Failures[0])
	}
	if delta := testutil.ToFloat64(metrics.MaterializationFailures) - failuresBefore; delta != 1 {
		t.Errorf("failure counter moved by %v, want 1", delta)
	}

	list := f.obligations(t)
	if len(list) != 2 {
		t.Fatalf("expected 2 obligations after partial pass, got %v", dates(list))
	}
	if merr.ObligationID != list[1].ID {
		t.Errorf("failure names obligation %s, want frame %s", merr.ObligationID, list[1].ID)
	}
	pending := f.pending(t)
	if len(pending) != 1 || pending[0].ObligationID != list[1].ID {
		t.Fatalf("expected the chain to stay pending on the last good frame, got %+v", pending)
	}

	// Next pass resumes where the failed one stopped.
	res, err = NewMaterializer(f.store, now).MaterializeDue(ctx, f.group.ID)
	if err != nil {
		t.Fatalf("MaterializeDue failed: %v", err)
	}
	if res.Created != 2 || len(res.Failures) != 0 {
		t.Errorf("resume result = %+v, want 2 created", res)
	}
	want := []string{"2024-01-15", "2024-02-15", "2024-03-15", "2024-04-15"}
	if got := dates(f.obligations(t)); len(got) != len(want) || got[3] != want[3] {
		t.Errorf("dates = %v, want %v", got, want)
	}
}

func TestMaterializeDue_ConcurrentPassesDoNotDuplicate(t *testing.T) {
	f := newRecurring(t, memory.New(), models.CadenceMonthly, date(2024, 1, 15))
	now := clock.NewFixed(date(2024, 4, 20))

	// Separate materializers have separate in-process locks, so only the
	// conditional claim keeps them apart.
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := NewMaterializer(f.store, now).MaterializeDue(context.Background(), f.group.ID)
			if err != nil {
				t.Errorf("MaterializeDue failed: %v", err)
				return
			}
			mu.Lock()
			created += res.Created
			mu.Unlock()
		}()
	}
	wg.Wait()

	if created != 3 {
		t.Errorf("passes created %d obligations in total, want 3", created)
	}
	if got := len(f.obligations(t)); got != 4 {
		t.Errorf("expected 4 obligations, got %d", got)
	}
	if got := len(f.pending(t)); got != 1 {
		t.Errorf("expected 1 pending link, got %d", got)
	}
}

// doubledStore reports every pending link twice.
type doubledStore struct {
	storage.Store
}

func (d *doubledStore) ListPendingRecurrenceLinks(ctx context.Context, groupID string, asOf time.Time) ([]*models.RecurrenceLink, error) {
	links, err := d.Store.ListPendingRecurrenceLinks(ctx, groupID, asOf)
	if err != nil {
		return nil, err
	}
	var out []*models.RecurrenceLink
	for _, l := range links {
		dup := *l
		dup.ID = l.ID + "-dup"
		out = append(out, l, &dup)
	}
	return out, nil
}

func TestMaterializeDue_TwoPendingLinksIsConsistencyError(t *testing.T) {
	f := newRecurring(t, memory.New(), models.CadenceMonthly, date(2024, 1, 15))
	m := NewMaterializer(&doubledStore{Store: f.store}, clock.NewFixed(date(2024, 4, 20)))

	res, err := m.MaterializeDue(context.Background(), f.group.ID)
	if err != nil {
		t.Fatalf("MaterializeDue failed: %v", err)
	}
	if res.Created != 0 {
		t.Errorf("expected the chain to be skipped, created %d", res.Created)
	}
	if len(res.Failures) != 1 || !errs.IsConsistency(res.Failures[0]) {
		t.Errorf("expected one ConsistencyError, got %v", res.Failures)
	}
}

func TestWithGroupLock_ExcludesMaterialization(t *testing.T) {
	ctx := context.Background()
	f := newRecurring(t, memory.New(), models.CadenceMonthly, date(2024, 1, 15))
	m := NewMaterializer(f.store, clock.NewFixed(date(2024, 4, 20)))

	done := make(chan Result, 1)
	err := m.WithGroupLock(ctx, f.group.ID, func() error {
		go func() {
			res, err := m.MaterializeDue(ctx, f.group.ID)
			if err != nil {
				t.Errorf("MaterializeDue failed: %v", err)
			}
			done <- res
		}()

		select {
		case <-done:
			t.Error("MaterializeDue ran while the group lock was held")
		case <-time.After(50 * time.Millisecond):
		}
		if got := len(f.obligations(t)); got != 1 {
			t.Errorf("expected only the frame under the lock, got %d obligations", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithGroupLock failed: %v", err)
	}

	select {
	case res := <-done:
		if res.Created != 3 {
			t.Errorf("expected 3 created after the lock was released, got %d", res.Created)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("MaterializeDue did not run after the lock was released")
	}
}

func TestWithGroupLock_ReturnsCallbackError(t *testing.T) {
	m := NewMaterializer(memory.New(), clock.NewFixed(date(2024, 1, 1)))
	want := errors.New("boom")
	if err := m.WithGroupLock(context.Background(), "g1", func() error { return want }); !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}

	// The lock is released after a failing callback.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.WithGroupLock(ctx, "g1", func() error { return nil }); err != nil {
		t.Errorf("expected lock to be free, got %v", err)
	}
}

func TestMaterializeAll(t *testing.T) {
	store := memory.New()
	a := newRecurring(t, store, models.CadenceMonthly, date(2024, 1, 15))
	b := newRecurring(t, store, models.CadenceWeekly, date(2024, 2, 1))

	m := NewMaterializer(store, clock.NewFixed(date(2024, 2, 20)), WithConcurrency(2))
	res, err := m.MaterializeAll(context.Background())
	if err != nil {
		t.Fatalf("MaterializeAll failed: %v", err)
	}
	// a: Feb 15. b: Feb 8, Feb 15.
	if res.Created != 3 || len(res.Failures) != 0 {
		t.Errorf("result = %+v, want 3 created", res)
	}
	if got := len(a.obligations(t)); got != 2 {
		t.Errorf("group a has %d obligations, want 2", got)
	}
	if got := len(b.obligations(t)); got != 3 {
		t.Errorf("group b has %d obligations, want 3", got)
	}
}

func TestSyncCadence(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name         string
		initial      models.Cadence
		update       func(o *models.Obligation)
		wantPending  bool
		wantCadence  models.Cadence
		wantNextDate time.Time
	}{
		{
			name:        "none stays without link",
			initial:     models.CadenceNone,
			update:      func(o *models.Obligation) { o.Amount = 500 },
			wantPending: false,
		},
		{
			name:         "none to monthly creates link",
			initial:      models.CadenceNone,
			update:       func(o *models.Obligation) { o.Cadence = models.CadenceMonthly },
			wantPending:  true,
			wantCadence:  models.CadenceMonthly,
			wantNextDate: date(2024, 2, 10),
		},
		{
			name:         "monthly to weekly updates link",
			initial:      models.CadenceMonthly,
			update:       func(o *models.Obligation) { o.Cadence = models.CadenceWeekly },
			wantPending:  true,
			wantCadence:  models.CadenceWeekly,
			wantNextDate: date(2024, 1, 17),
		},
		{
			name:         "date change recomputes next date",
			initial:      models.CadenceMonthly,
			update:       func(o *models.Obligation) { o.Date = date(2024, 1, 20) },
			wantPending:  true,
			wantCadence:  models.CadenceMonthly,
			wantNextDate: date(2024, 2, 20),
		},
		{
			name:        "monthly to none deletes link",
			initial:     models.CadenceMonthly,
			update:      func(o *models.Obligation) { o.Cadence = models.CadenceNone },
			wantPending: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRecurring(t, memory.New(), tt.initial, date(2024, 1, 10))
			m := NewMaterializer(f.store, clock.NewFixed(date(2024, 1, 10)))

			tt.update(f.frame)
			err := f.store.InTx(ctx, func(tx storage.Store) error {
				if err := tx.UpdateObligation(ctx, f.frame); err != nil {
					return err
				}
				return m.SyncCadence(ctx, tx, f.frame)
			})
			if err != nil {
				t.Fatalf("update failed: %v", err)
			}

			pending := f.pending(t)
			if !tt.wantPending {
				if len(pending) != 0 {
					t.Errorf("expected no pending link, got %+v", pending)
				}
				return
			}
			if len(pending) != 1 {
				t.Fatalf("expected one pending link, got %d", len(pending))
			}
			if pending[0].Cadence != tt.wantCadence || !pending[0].NextDate.Equal(tt.wantNextDate) {
				t.Errorf("link = %s %s, want %s %s", pending[0].Cadence, pending[0].NextDate.Format(time.DateOnly),
					tt.wantCadence, tt.wantNextDate.Format(time.DateOnly))
			}
		})
	}
}

func TestSyncCadence_HistoricalFrameDoesNotTouchFuture(t *testing.T) {
	ctx := context.Background()
	f := newRecurring(t, memory.New(), models.CadenceMonthly, date(2024, 1, 10))
	m := NewMaterializer(f.store, clock.NewFixed(date(2024, 2, 10)))
	if _, err := m.MaterializeDue(ctx, f.group.ID); err != nil {
		t.Fatalf("MaterializeDue failed: %v", err)
	}
	before := f.pending(t)

	// The original frame is now history; turning its recurrence off must
	// leave the generated successor and its pending link alone.
	f.frame.Cadence = models.CadenceNone
	err := f.store.InTx(ctx, func(tx storage.Store) error {
		if err := tx.UpdateObligation(ctx, f.frame); err != nil {
			return err
		}
		return m.SyncCadence(ctx, tx, f.frame)
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	after := f.pending(t)
	if len(after) != 1 || after[0].ID != before[0].ID || !after[0].NextDate.Equal(before[0].NextDate) {
		t.Errorf("pending link changed: before %+v, after %+v", before, after)
	}
	link, err := f.store.GetRecurrenceLinkByObligation(ctx, f.frame.ID)
	if err != nil {
		t.Fatalf("GetRecurrenceLinkByObligation failed: %v", err)
	}
	if link.IsPending() {
		t.Error("historical link became pending again")
	}
}

func TestScheduler_RunsUntilCancelled(t *testing.T) {
	f := newRecurring(t, memory.New(), models.CadenceMonthly, date(2024, 1, 15))
	clk := clock.NewManual(date(2024, 1, 20))
	s := NewScheduler(NewMaterializer(f.store, clk), 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	clk.Set(date(2024, 2, 16))
	deadline := time.After(2 * time.Second)
	for len(f.obligations(t)) < 2 {
		select {
		case <-deadline:
			cancel()
			t.Fatal("scheduler did not materialize the due period")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
