package service

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mmynk/splitledger/internal/metrics"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/recurrence"
	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/internal/storage/sqlite"
	"github.com/mmynk/splitledger/pkg/api"
)

func TestCreateObligation(t *testing.T) {
	srv := setupTestServer(t)
	group := srv.createGroup(t, "Alice", "Bob")
	alice, bob := group.Participants[0].ID, group.Participants[1].ID

	tests := []struct {
		name         string
		input        *api.ObligationInput
		wantCode     connect.Code
		validateFunc func(t *testing.T, o *api.Obligation)
	}{
		{
			name: "evenly with default weights",
			input: &api.ObligationInput{
				Title: "Groceries", Amount: 1000, PayerID: alice, Date: "2024-04-01",
				Shares: evenly(alice, bob),
			},
			validateFunc: func(t *testing.T, o *api.Obligation) {
				if o.ID == "" {
					t.Error("expected obligation ID to be set")
				}
				if o.SplitPolicy != string(models.SplitEvenly) {
					t.Errorf("expected policy EVENLY, got %s", o.SplitPolicy)
				}
				if o.Shares[0].Weight != 1 {
					t.Errorf("expected default weight 1, got %d", o.Shares[0].Weight)
				}
			},
		},
		{
			name: "decimal amount text",
			input: &api.ObligationInput{
				Title: "Coffee", AmountText: "12.50", PayerID: bob, Date: "2024-04-02",
				SplitPolicy: "BY_PERCENTAGE",
				Shares:      []*api.Share{
					{ParticipantID: alice, Weight: 2500},
					{ParticipantID: bob, Weight: 7500},
				},
			},
			validateFunc: func(t *testing.T, o *api.Obligation) {
				if o.Amount != 1250 {
					t.Errorf("expected amount 1250, got %d", o.Amount)
				}
				if !strings.Contains(o.AmountDisplay, "12.50") {
					t.Errorf("expected display to contain 12.50, got %q", o.AmountDisplay)
				}
			},
		},
		{
			name: "unknown payer",
			input: &api.ObligationInput{
				Title: "Rent", Amount: 1000, PayerID: "stranger", Date: "2024-04-01",
				Shares: evenly(alice),
			},
			wantCode: connect.CodeInvalidArgument,
		},
		{
			name: "unknown payee",
			input: &api.ObligationInput{
				Title: "Rent", Amount: 1000, PayerID: alice, Date: "2024-04-01",
				Shares: evenly("stranger"),
			},
			wantCode: connect.CodeInvalidArgument,
		},
		{
			name: "no payees",
			input: &api.ObligationInput{
				Title: "Rent", Amount: 1000, PayerID: alice, Date: "2024-04-01",
			},
			wantCode: connect.CodeInvalidArgument,
		},
		{
			name: "percentages do not sum to 100",
			input: &api.ObligationInput{
				Title: "Rent", Amount: 1000, PayerID: alice, Date: "2024-04-01",
				SplitPolicy: "BY_PERCENTAGE",
				Shares:      []*api.Share{
					{ParticipantID: alice, Weight: 5000},
					{ParticipantID: bob, Weight: 4000},
				},
			},
			wantCode: connect.CodeInvalidArgument,
		},
		{
			name: "negative amount",
			input: &api.ObligationInput{
				Title: "Refund", Amount: -100, PayerID: alice, Date: "2024-04-01",
				Shares: evenly(bob),
			},
			wantCode: connect.CodeInvalidArgument,
		},
		{
			name: "malformed date",
			input: &api.ObligationInput{
				Title: "Rent", Amount: 1000, PayerID: alice, Date: "04/01/2024",
				Shares: evenly(bob),
			},
			wantCode: connect.CodeInvalidArgument,
		},
		{
			name: "unknown cadence",
			input: &api.ObligationInput{
				Title: "Rent", Amount: 1000, PayerID: alice, Date: "2024-04-01",
				Shares: evenly(bob), Cadence: "YEARLY",
			},
			wantCode: connect.CodeInvalidArgument,
		},
		{
			name: "unknown policy",
			input: &api.ObligationInput{
				Title: "Rent", Amount: 1000, PayerID: alice, Date: "2024-04-01",
				Shares: evenly(bob), SplitPolicy: "RANDOM",
			},
			wantCode: connect.CodeInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := srv.expenses.CreateObligation(context.Background(), connect.NewRequest(&api.CreateObligationRequest{
				GroupID:    group.ID,
				Obligation: tt.input,
			}))
			if tt.wantCode != 0 {
				assertCode(t, err, tt.wantCode)
				return
			}
			if err != nil {
				t.Fatalf("CreateObligation failed: %v", err)
			}
			tt.validateFunc(t, resp.Msg.Obligation)
		})
	}

	t.Run("unknown group", func(t *testing.T) {
		_, err := srv.expenses.CreateObligation(context.Background(), connect.NewRequest(&api.CreateObligationRequest{
			GroupID:    "missing",
			Obligation: &api.ObligationInput{Title: "Rent", Amount: 1, PayerID: alice, Date: "2024-04-01", Shares: evenly(alice)},
		}))
		assertCode(t, err, connect.CodeNotFound)
	})
}

func TestListObligations_MaterializesDueRecurrences(t *testing.T) {
	srv := setupTestServer(t)
	group := srv.createGroup(t, "Alice", "Bob")
	alice, bob := group.Participants[0].ID, group.Participants[1].ID

	srv.createObligation(t, group.ID, &api.ObligationInput{
		Title:       "Rent",
		Amount:      150000,
		PayerID:     alice,
		Date:        "2024-01-31",
		SplitPolicy: "BY_SHARES",
		Shares:      []*api.Share{
			{ParticipantID: alice, Weight: 1},
			{ParticipantID: bob, Weight: 2},
		},
		Cadence: "MONTHLY",
	})

	// Month-end drift carries: Feb 29 is followed by Mar 29, and Apr 29 is not yet due.
	got := srv.listObligations(t, group.ID)
	want := []string{"2024-01-31", "2024-02-29", "2024-03-29"}
	if !sameStrings(dates(got), want) {
		t.Fatalf("expected dates %v, got %v", want, dates(got))
	}
	for _, o := range got {
		if o.Amount != 150000 || o.SplitPolicy != "BY_SHARES" || len(o.Shares) != 2 {
			t.Errorf("occurrence %s does not clone the frame: %+v", o.Date, o)
		}
	}

	// Listing again is idempotent.
	if again := srv.listObligations(t, group.ID); len(again) != 3 {
		t.Errorf("expected 3 obligations on second read, got %d", len(again))
	}

	srv.clock.Set(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	if later := srv.listObligations(t, group.ID); len(later) != 4 {
		t.Errorf("expected 4 obligations after the clock moved, got %d", len(later))
	}
}

func TestUpdateObligation(t *testing.T) {
	ctx := context.Background()

	rent := func(alice, bob, date, cadence string, amount int64) *api.ObligationInput {
		return &api.ObligationInput{
			Title:   "Rent",
			Amount:  amount,
			PayerID: alice,
			Date:    date,
			Shares:  evenly(alice, bob),
			Cadence: cadence,
		}
	}

	t.Run("replaces fields and shares", func(t *testing.T) {
		srv := setupTestServer(t)
		group := srv.createGroup(t, "Alice", "Bob")
		alice, bob := group.Participants[0].ID, group.Participants[1].ID
		o := srv.createObligation(t, group.ID, rent(alice, bob, "2024-04-01", "", 1000))

		in := rent(alice, bob, "2024-04-02", "", 2000)
		in.SplitPolicy = "BY_AMOUNT"
		in.Shares = []*api.Share{{ParticipantID: bob, Weight: 2000}}
		resp, err := srv.expenses.UpdateObligation(ctx, connect.NewRequest(&api.UpdateObligationRequest{
			ObligationID: o.ID,
			Obligation:   in,
		}))
		if err != nil {
			t.Fatalf("UpdateObligation failed: %v", err)
		}
		if resp.Msg.Obligation.ID != o.ID || resp.Msg.Obligation.Amount != 2000 {
			t.Errorf("unexpected obligation: %+v", resp.Msg.Obligation)
		}

		bal := srv.balances(t, group.ID)
		if bal.Balances[0].Net != 2000 || bal.Balances[1].Net != -2000 {
			t.Errorf("expected nets 2000/-2000, got %d/%d", bal.Balances[0].Net, bal.Balances[1].Net)
		}
	})

	t.Run("clearing cadence stops the chain", func(t *testing.T) {
		srv := setupTestServer(t)
		group := srv.createGroup(t, "Alice", "Bob")
		alice, bob := group.Participants[0].ID, group.Participants[1].ID
		o := srv.createObligation(t, group.ID, rent(alice, bob, "2024-04-10", "MONTHLY", 1000))

		_, err := srv.expenses.UpdateObligation(ctx, connect.NewRequest(&api.UpdateObligationRequest{
			ObligationID: o.ID,
			Obligation:   rent(alice, bob, "2024-04-10", "", 1000),
		}))
		if err != nil {
			t.Fatalf("UpdateObligation failed: %v", err)
		}

		srv.clock.Set(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))
		if got := srv.listObligations(t, group.ID); len(got) != 1 {
			t.Errorf("expected 1 obligation, got %d", len(got))
		}
	})

	t.Run("setting cadence starts a chain", func(t *testing.T) {
		srv := setupTestServer(t)
		group := srv.createGroup(t, "Alice", "Bob")
		alice, bob := group.Participants[0].ID, group.Participants[1].ID
		o := srv.createObligation(t, group.ID, rent(alice, bob, "2024-04-01", "", 1000))

		_, err := srv.expenses.UpdateObligation(ctx, connect.NewRequest(&api.UpdateObligationRequest{
			ObligationID: o.ID,
			Obligation:   rent(alice, bob, "2024-04-01", "WEEKLY", 1000),
		}))
		if err != nil {
			t.Fatalf("UpdateObligation failed: %v", err)
		}

		want := []string{"2024-04-01", "2024-04-08", "2024-04-15"}
		if got := srv.listObligations(t, group.ID); !sameStrings(dates(got), want) {
			t.Errorf("expected dates %v, got %v", want, dates(got))
		}
	})

	t.Run("historical frame does not alter generated future", func(t *testing.T) {
		srv := setupTestServer(t)
		group := srv.createGroup(t, "Alice", "Bob")
		alice, bob := group.Participants[0].ID, group.Participants[1].ID
		first := srv.createObligation(t, group.ID, rent(alice, bob, "2024-02-10", "MONTHLY", 1000))

		if got := srv.listObligations(t, group.ID); len(got) != 3 {
			t.Fatalf("expected 3 obligations, got %d", len(got))
		}

		_, err := srv.expenses.UpdateObligation(ctx, connect.NewRequest(&api.UpdateObligationRequest{
			ObligationID: first.ID,
			Obligation:   rent(alice, bob, "2024-02-10", "", 999),
		}))
		if err != nil {
			t.Fatalf("UpdateObligation failed: %v", err)
		}

		srv.clock.Set(time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC))
		got := srv.listObligations(t, group.ID)
		if len(got) != 4 {
			t.Fatalf("expected chain to continue to 4 obligations, got %d", len(got))
		}
		if got[3].Amount != 1000 || got[3].Cadence != "MONTHLY" {
			t.Errorf("expected future occurrence from the current frame, got %+v", got[3])
		}
	})

	t.Run("unknown obligation", func(t *testing.T) {
		srv := setupTestServer(t)
		group := srv.createGroup(t, "Alice", "Bob")
		alice, bob := group.Participants[0].ID, group.Participants[1].ID
		_, err := srv.expenses.UpdateObligation(ctx, connect.NewRequest(&api.UpdateObligationRequest{
			ObligationID: "missing",
			Obligation:   rent(alice, bob, "2024-04-01", "", 1000),
		}))
		assertCode(t, err, connect.CodeNotFound)
	})
}

func TestDeleteObligation(t *testing.T) {
	ctx := context.Background()
	srv := setupTestServer(t)
	group := srv.createGroup(t, "Alice", "Bob")
	alice, bob := group.Participants[0].ID, group.Participants[1].ID

	o := srv.createObligation(t, group.ID, &api.ObligationInput{
		Title:   "Gym",
		Amount:  5000,
		PayerID: alice,
		Date:    "2024-04-10",
		Shares:  evenly(alice, bob),
		Cadence: "MONTHLY",
	})

	if _, err := srv.expenses.DeleteObligation(ctx, connect.NewRequest(&api.DeleteObligationRequest{ObligationID: o.ID})); err != nil {
		t.Fatalf("DeleteObligation failed: %v", err)
	}

	srv.clock.Set(time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC))
	if got := srv.listObligations(t, group.ID); len(got) != 0 {
		t.Errorf("expected deleted frame to end the chain, got %d obligations", len(got))
	}

	_, err := srv.expenses.DeleteObligation(ctx, connect.NewRequest(&api.DeleteObligationRequest{ObligationID: o.ID}))
	assertCode(t, err, connect.CodeNotFound)
}

func TestAddAttachment_FollowsNewestOccurrence(t *testing.T) {
	ctx := context.Background()
	srv := setupTestServer(t)
	group := srv.createGroup(t, "Alice", "Bob")
	alice, bob := group.Participants[0].ID, group.Participants[1].ID

	o := srv.createObligation(t, group.ID, &api.ObligationInput{
		Title:   "Internet",
		Amount:  6000,
		PayerID: alice,
		Date:    "2024-03-01",
		Shares:  evenly(alice, bob),
		Cadence: "MONTHLY",
	})

	resp, err := srv.expenses.AddAttachment(ctx, connect.NewRequest(&api.AddAttachmentRequest{
		ObligationID: o.ID,
		Name:         "contract.pdf",
		URL:          "https://files.example.com/contract.pdf",
	}))
	if err != nil {
		t.Fatalf("AddAttachment failed: %v", err)
	}

	got := srv.listObligations(t, group.ID)
	if len(got) != 2 {
		t.Fatalf("expected 2 obligations, got %d", len(got))
	}
	if len(got[0].Attachments) != 0 {
		t.Errorf("expected attachment to leave the old frame, got %+v", got[0].Attachments)
	}
	if len(got[1].Attachments) != 1 || got[1].Attachments[0].ID != resp.Msg.Attachment.ID {
		t.Errorf("expected attachment on newest occurrence, got %+v", got[1].Attachments)
	}

	t.Run("validation", func(t *testing.T) {
		_, err := srv.expenses.AddAttachment(ctx, connect.NewRequest(&api.AddAttachmentRequest{
			ObligationID: o.ID,
			Name:         "receipt.png",
		}))
		assertCode(t, err, connect.CodeInvalidArgument)

		_, err = srv.expenses.AddAttachment(ctx, connect.NewRequest(&api.AddAttachmentRequest{
			ObligationID: "missing",
			Name:         "receipt.png",
			URL:          "https://files.example.com/receipt.png",
		}))
		assertCode(t, err, connect.CodeNotFound)
	})
}

func TestRecordReimbursement_SettlesGroup(t *testing.T) {
	ctx := context.Background()
	srv := setupTestServer(t)
	group := srv.createGroup(t, "Alice", "Bob", "Charlie")
	alice, bob, charlie := group.Participants[0].ID, group.Participants[1].ID, group.Participants[2].ID

	srv.createObligation(t, group.ID, &api.ObligationInput{
		Title:   "Dinner",
		Amount:  3000,
		PayerID: alice,
		Date:    "2024-04-10",
		Shares:  evenly(alice, bob, charlie),
	})

	for _, s := range srv.balances(t, group.ID).Settlements {
		resp, err := srv.expenses.RecordReimbursement(ctx, connect.NewRequest(&api.RecordReimbursementRequest{
			GroupID: group.ID,
			FromID:  s.From,
			ToID:    s.To,
			Amount:  s.Amount,
		}))
		if err != nil {
			t.Fatalf("RecordReimbursement failed: %v", err)
		}
		o := resp.Msg.Obligation
		if !o.IsReimbursement || o.SplitPolicy != "BY_AMOUNT" || o.Date != "2024-04-15" {
			t.Errorf("unexpected reimbursement: %+v", o)
		}
	}

	bal := srv.balances(t, group.ID)
	for _, b := range bal.Balances {
		if b.Net != 0 {
			t.Errorf("%s: expected settled net 0, got %d", b.ParticipantName, b.Net)
		}
	}
	if len(bal.Settlements) != 0 {
		t.Errorf("expected no settlements, got %d", len(bal.Settlements))
	}

	t.Run("validation", func(t *testing.T) {
		tests := []struct {
			name string
			req  *api.RecordReimbursementRequest
		}{
			{"same participant", &api.RecordReimbursementRequest{GroupID: group.ID, FromID: bob, ToID: bob, Amount: 100}},
			{"zero amount", &api.RecordReimbursementRequest{GroupID: group.ID, FromID: bob, ToID: alice}},
			{"unknown receiver", &api.RecordReimbursementRequest{GroupID: group.ID, FromID: bob, ToID: "stranger", Amount: 100}},
			{"bad amount text", &api.RecordReimbursementRequest{GroupID: group.ID, FromID: bob, ToID: alice, AmountText: "ten"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := srv.expenses.RecordReimbursement(ctx, connect.NewRequest(tt.req))
				assertCode(t, err, connect.CodeInvalidArgument)
			})
		}
	})
}

func TestMaterializeDue(t *testing.T) {
	ctx := context.Background()
	srv := setupTestServer(t)
	group := srv.createGroup(t, "Alice", "Bob")
	alice, bob := group.Participants[0].ID, group.Participants[1].ID

	srv.createObligation(t, group.ID, &api.ObligationInput{
		Title:   "Rent",
		Amount:  1000,
		PayerID: alice,
		Date:    "2024-01-15",
		Shares:  evenly(alice, bob),
		Cadence: "MONTHLY",
	})

	resp, err := srv.expenses.MaterializeDue(ctx, connect.NewRequest(&api.MaterializeDueRequest{GroupID: group.ID}))
	if err != nil {
		t.Fatalf("MaterializeDue failed: %v", err)
	}
	if resp.Msg.Created != 3 || resp.Msg.Failed != 0 {
		t.Errorf("expected 3 created and 0 failed, got %+v", resp.Msg)
	}

	resp, err = srv.expenses.MaterializeDue(ctx, connect.NewRequest(&api.MaterializeDueRequest{GroupID: group.ID}))
	if err != nil {
		t.Fatalf("MaterializeDue failed: %v", err)
	}
	if resp.Msg.Created != 0 {
		t.Errorf("expected second pass to create nothing, got %d", resp.Msg.Created)
	}

	_, err = srv.expenses.MaterializeDue(ctx, connect.NewRequest(&api.MaterializeDueRequest{GroupID: "missing"}))
	assertCode(t, err, connect.CodeNotFound)
}

func TestGetBalances_FailsClosedOnCorruptObligation(t *testing.T) {
	srv := setupTestServer(t)
	group := srv.createGroup(t, "Alice", "Bob")
	alice, bob := group.Participants[0].ID, group.Participants[1].ID

	// Written below the service layer, so the shares never went through validation.
	err := srv.store.CreateObligation(context.Background(), &models.Obligation{
		GroupID:     group.ID,
		Title:       "Broken",
		Amount:      1000,
		PayerID:     alice,
		Date:        time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		SplitPolicy: models.SplitByAmount,
		Shares:      []models.Share{{ParticipantID: bob, Weight: 500}},
	})
	if err != nil {
		t.Fatalf("CreateObligation failed: %v", err)
	}

	before := testutil.ToFloat64(metrics.ConsistencyErrors)
	_, err = srv.groups.GetBalances(context.Background(), connect.NewRequest(&api.GetBalancesRequest{GroupID: group.ID}))
	assertCode(t, err, connect.CodeInternal)

	if delta := testutil.ToFloat64(metrics.ConsistencyErrors) - before; delta != 1 {
		t.Errorf("expected consistency counter to grow by 1, got %v", delta)
	}
}

// doubledLinkStore reports every pending recurrence link twice, as a store
// with a forked chain would.
type doubledLinkStore struct {
	storage.Store
}

func (d *doubledLinkStore) ListPendingRecurrenceLinks(ctx context.Context, groupID string, asOf time.Time) ([]*models.RecurrenceLink, error) {
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

func TestReads_FailClosedOnForkedChain(t *testing.T) {
	ctx := context.Background()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	srv := setupTestServerWithStore(t, &doubledLinkStore{Store: store})
	group := srv.createGroup(t, "Alice", "Bob")
	alice, bob := group.Participants[0].ID, group.Participants[1].ID

	srv.createObligation(t, group.ID, &api.ObligationInput{
		Title:   "Rent",
		Amount:  1000,
		PayerID: alice,
		Date:    "2024-01-15",
		Shares:  evenly(alice, bob),
		Cadence: "MONTHLY",
	})

	tests := []struct {
		name string
		call func() error
	}{
		{
			name: "GetBalances",
			call: func() error {
				_, err := srv.groups.GetBalances(ctx, connect.NewRequest(&api.GetBalancesRequest{GroupID: group.ID}))
				return err
			},
		},
		{
			name: "ListObligations",
			call: func() error {
				_, err := srv.expenses.ListObligations(ctx, connect.NewRequest(&api.ListObligationsRequest{GroupID: group.ID}))
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(metrics.ConsistencyErrors)
			assertCode(t, tt.call(), connect.CodeInternal)
			if delta := testutil.ToFloat64(metrics.ConsistencyErrors) - before; delta != 1 {
				t.Errorf("expected consistency counter to grow by 1, got %v", delta)
			}
		})
	}

	// The forked chain was skipped, not materialized.
	obligations, err := store.ListObligations(ctx, group.ID)
	if err != nil {
		t.Fatalf("ListObligations failed: %v", err)
	}
	if len(obligations) != 1 {
		t.Errorf("expected only the frame, got %d obligations", len(obligations))
	}
}

// recordingLocker records every key it locks.
type recordingLocker struct {
	recurrence.Locker

	mu   sync.Mutex
	keys []string
}

func (r *recordingLocker) Lock(ctx context.Context, key string) (func(), error) {
	r.mu.Lock()
	r.keys = append(r.keys, key)
	r.mu.Unlock()
	return r.Locker.Lock(ctx, key)
}

func (r *recordingLocker) locked() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.keys)
}

func TestUpdateObligation_HoldsGroupMaterializationLock(t *testing.T) {
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	locker := &recordingLocker{Locker: recurrence.NewKeyedMutex()}
	srv := setupTestServerWithStore(t, store, recurrence.WithLocker(locker))
	group := srv.createGroup(t, "Alice", "Bob")
	alice, bob := group.Participants[0].ID, group.Participants[1].ID

	o := srv.createObligation(t, group.ID, &api.ObligationInput{
		Title:   "Rent",
		Amount:  1000,
		PayerID: alice,
		Date:    "2024-04-10",
		Shares:  evenly(alice, bob),
		Cadence: "MONTHLY",
	})
	if got := locker.locked(); len(got) != 0 {
		t.Fatalf("expected no locks before the update, got %v", got)
	}

	_, err = srv.expenses.UpdateObligation(context.Background(), connect.NewRequest(&api.UpdateObligationRequest{
		ObligationID: o.ID,
		Obligation: &api.ObligationInput{
			Title:   "Rent",
			Amount:  1000,
			PayerID: alice,
			Date:    "2024-04-10",
			Shares:  evenly(alice, bob),
			Cadence: "WEEKLY",
		},
	}))
	if err != nil {
		t.Fatalf("UpdateObligation failed: %v", err)
	}

	want := []string{"splitledger:materialize:" + group.ID}
	if got := locker.locked(); !sameStrings(got, want) {
		t.Errorf("expected locks %v, got %v", want, got)
	}
}
