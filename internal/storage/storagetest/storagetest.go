// Package storagetest holds the behaviour every storage.Store backend must share.
// Backend test files call Run with a constructor for a fresh store.
package storagetest

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/splitledger/internal/errs"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

// Run exercises store against the storage.Store contract.
func Run(t *testing.T, store storage.Store) {
	t.Helper()
	ctx := context.Background()

	// Chain IDs are unique per run so a reused database does not collide.
	chain := func(name string) string { return name + "-" + uuid.NewString() }

	t.Run("CreateGroup generates IDs and keeps roster order", func(t *testing.T) {
		group := NewGroup(t, store, "Roommates", "Zed", "Amy", "Mo")

		if group.ID == "" || group.CreatedAt == 0 {
			t.Fatalf("expected ID and CreatedAt to be generated, got %+v", group)
		}

		got, err := store.GetGroup(ctx, group.ID)
		if err != nil {
			t.Fatalf("GetGroup failed: %v", err)
		}
		if got.Name != "Roommates" || got.Currency != "USD" {
			t.Errorf("group mismatch: got %+v", got)
		}
		names := make([]string, len(got.Participants))
		for i, p := range got.Participants {
			names[i] = p.Name
			if p.GroupID != group.ID {
				t.Errorf("participant %s has group %s, want %s", p.Name, p.GroupID, group.ID)
			}
		}
		if want := []string{"Zed", "Amy", "Mo"}; !slices.Equal(names, want) {
			t.Errorf("roster order = %v, want %v", names, want)
		}
	})

	t.Run("GetGroup returns ErrNotFound for nonexistent group", func(t *testing.T) {
		_, err := store.GetGroup(ctx, "nonexistent-id")
		if !errors.Is(err, errs.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListGroups includes created groups", func(t *testing.T) {
		a := NewGroup(t, store, "List A", "X")
		b := NewGroup(t, store, "List B", "Y")

		groups, err := store.ListGroups(ctx)
		if err != nil {
			t.Fatalf("ListGroups failed: %v", err)
		}
		found := map[string]bool{}
		for _, g := range groups {
			found[g.ID] = true
		}
		if !found[a.ID] || !found[b.ID] {
			t.Errorf("expected both groups to be listed, got %d groups", len(groups))
		}
	})

	t.Run("AddParticipant appends and rejects duplicate names", func(t *testing.T) {
		group := NewGroup(t, store, "Trip", "Alice")

		p := &models.Participant{GroupID: group.ID, Name: "Bob"}
		if err := store.AddParticipant(ctx, p); err != nil {
			t.Fatalf("AddParticipant failed: %v", err)
		}
		if p.ID == "" {
			t.Error("expected participant ID to be generated")
		}

		dup := &models.Participant{GroupID: group.ID, Name: "Alice"}
		if err := store.AddParticipant(ctx, dup); !errors.Is(err, errs.ErrConflict) {
			t.Errorf("expected ErrConflict for duplicate name, got %v", err)
		}

		missing := &models.Participant{GroupID: "nonexistent-id", Name: "Carol"}
		if err := store.AddParticipant(ctx, missing); !errors.Is(err, errs.ErrNotFound) {
			t.Errorf("expected ErrNotFound for missing group, got %v", err)
		}

		got, err := store.GetGroup(ctx, group.ID)
		if err != nil {
			t.Fatalf("GetGroup failed: %v", err)
		}
		if len(got.Participants) != 2 || got.Participants[1].ID != p.ID {
			t.Errorf("expected Bob appended to roster, got %+v", got.Participants)
		}
	})

	t.Run("RemoveParticipant refuses referenced participants", func(t *testing.T) {
		group := NewGroup(t, store, "Flat", "Alice", "Bob", "Carol")
		alice, bob, carol := group.Participants[0].ID, group.Participants[1].ID, group.Participants[2].ID
		NewObligation(t, store, group.ID, alice, 1000, Date(2024, 1, 1), bob)

		if err := store.RemoveParticipant(ctx, group.ID, bob); !errors.Is(err, errs.ErrParticipantInUse) {
			t.Errorf("expected ErrParticipantInUse for payee, got %v", err)
		}
		if err := store.RemoveParticipant(ctx, group.ID, alice); !errors.Is(err, errs.ErrParticipantInUse) {
			t.Errorf("expected ErrParticipantInUse for payer, got %v", err)
		}
		if err := store.RemoveParticipant(ctx, group.ID, carol); err != nil {
			t.Errorf("RemoveParticipant failed: %v", err)
		}
		if err := store.RemoveParticipant(ctx, group.ID, carol); !errors.Is(err, errs.ErrNotFound) {
			t.Errorf("expected ErrNotFound on second removal, got %v", err)
		}
	})

	t.Run("CreateObligation round trips fields and share order", func(t *testing.T) {
		group := NewGroup(t, store, "Dinner", "Alice", "Bob", "Carol")
		alice, bob, carol := group.Participants[0].ID, group.Participants[1].ID, group.Participants[2].ID

		o := &models.Obligation{
			GroupID:     group.ID,
			Title:       "Dinner",
			Category:    "food",
			Amount:      9000,
			PayerID:     alice,
			Date:        Date(2024, 3, 9),
			SplitPolicy: models.SplitByShares,
			Shares: []models.Share{
				{ParticipantID: carol, Weight: 1},
				{ParticipantID: alice, Weight: 2},
				{ParticipantID: bob, Weight: 3},
			},
			Cadence: models.CadenceMonthly,
			Notes:   "birthday",
		}
		if err := store.CreateObligation(ctx, o); err != nil {
			t.Fatalf("CreateObligation failed: %v", err)
		}
		if o.ID == "" || o.CreatedAt == 0 {
			t.Fatal("expected ID and CreatedAt to be generated")
		}

		got, err := store.GetObligation(ctx, o.ID)
		if err != nil {
			t.Fatalf("GetObligation failed: %v", err)
		}
		if got.Title != o.Title || got.Category != o.Category || got.Amount != o.Amount ||
			got.PayerID != o.PayerID || got.SplitPolicy != o.SplitPolicy ||
			got.Cadence != o.Cadence || got.Notes != o.Notes || got.IsReimbursement {
			t.Errorf("obligation mismatch: got %+v, want %+v", got, o)
		}
		if !got.Date.Equal(o.Date) {
			t.Errorf("Date = %s, want %s", got.Date, o.Date)
		}
		if len(got.Shares) != 3 {
			t.Fatalf("expected 3 shares, got %d", len(got.Shares))
		}
		for i, s := range got.Shares {
			if s != o.Shares[i] {
				t.Errorf("share %d = %+v, want %+v", i, s, o.Shares[i])
			}
		}
	})

	t.Run("GetObligation returns ErrNotFound for nonexistent obligation", func(t *testing.T) {
		_, err := store.GetObligation(ctx, "nonexistent-id")
		if !errors.Is(err, errs.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListObligations orders by date", func(t *testing.T) {
		group := NewGroup(t, store, "Ordering", "Alice", "Bob")
		alice, bob := group.Participants[0].ID, group.Participants[1].ID
		late := NewObligation(t, store, group.ID, alice, 300, Date(2024, 5, 1), bob)
		early := NewObligation(t, store, group.ID, alice, 100, Date(2024, 1, 1), bob)
		mid := NewObligation(t, store, group.ID, bob, 200, Date(2024, 3, 1), alice)

		list, err := store.ListObligations(ctx, group.ID)
		if err != nil {
			t.Fatalf("ListObligations failed: %v", err)
		}
		var ids []string
		for _, o := range list {
			ids = append(ids, o.ID)
			if len(o.Shares) != 1 {
				t.Errorf("obligation %s has %d shares, want 1", o.ID, len(o.Shares))
			}
		}
		if want := []string{early.ID, mid.ID, late.ID}; !slices.Equal(ids, want) {
			t.Errorf("order = %v, want %v", ids, want)
		}
	})

	t.Run("UpdateObligation replaces shares", func(t *testing.T) {
		group := NewGroup(t, store, "Update", "Alice", "Bob", "Carol")
		alice, bob, carol := group.Participants[0].ID, group.Participants[1].ID, group.Participants[2].ID
		o := NewObligation(t, store, group.ID, alice, 600, Date(2024, 2, 1), alice, bob)

		o.Amount = 900
		o.Title = "Updated"
		o.Shares = []models.Share{{ParticipantID: carol, Weight: 1}}
		if err := store.UpdateObligation(ctx, o); err != nil {
			t.Fatalf("UpdateObligation failed: %v", err)
		}

		got, err := store.GetObligation(ctx, o.ID)
		if err != nil {
			t.Fatalf("GetObligation failed: %v", err)
		}
		if got.Amount != 900 || got.Title != "Updated" {
			t.Errorf("fields not updated: %+v", got)
		}
		if len(got.Shares) != 1 || got.Shares[0].ParticipantID != carol {
			t.Errorf("shares not replaced: %+v", got.Shares)
		}

		missing := &models.Obligation{ID: "nonexistent-id", GroupID: group.ID, PayerID: alice,
			SplitPolicy: models.SplitEvenly, Date: Date(2024, 1, 1)}
		if err := store.UpdateObligation(ctx, missing); !errors.Is(err, errs.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Attachments are listed and repointed", func(t *testing.T) {
		group := NewGroup(t, store, "Docs", "Alice")
		alice := group.Participants[0].ID
		from := NewObligation(t, store, group.ID, alice, 100, Date(2024, 1, 1), alice)
		to := NewObligation(t, store, group.ID, alice, 100, Date(2024, 2, 1), alice)

		a := &models.Attachment{ObligationID: from.ID, Name: "lease.pdf", URL: "s3://docs/lease.pdf"}
		if err := store.AddAttachment(ctx, a); err != nil {
			t.Fatalf("AddAttachment failed: %v", err)
		}
		bad := &models.Attachment{ObligationID: "nonexistent-id", Name: "x", URL: "y"}
		if err := store.AddAttachment(ctx, bad); !errors.Is(err, errs.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}

		if err := store.RepointAttachments(ctx, from.ID, to.ID); err != nil {
			t.Fatalf("RepointAttachments failed: %v", err)
		}

		gotFrom, _ := store.GetObligation(ctx, from.ID)
		gotTo, _ := store.GetObligation(ctx, to.ID)
		if len(gotFrom.Attachments) != 0 {
			t.Errorf("expected source to have no attachments, got %d", len(gotFrom.Attachments))
		}
		if len(gotTo.Attachments) != 1 || gotTo.Attachments[0].ID != a.ID {
			t.Errorf("expected attachment on target, got %+v", gotTo.Attachments)
		}
	})

	t.Run("DeleteObligation removes links and attachments", func(t *testing.T) {
		group := NewGroup(t, store, "Delete", "Alice")
		alice := group.Participants[0].ID
		o := NewObligation(t, store, group.ID, alice, 100, Date(2024, 1, 1), alice)
		if err := store.AddAttachment(ctx, &models.Attachment{ObligationID: o.ID, Name: "r", URL: "u"}); err != nil {
			t.Fatalf("AddAttachment failed: %v", err)
		}
		NewLink(t, store, o, chain("delete"), Date(2024, 2, 1))

		if err := store.DeleteObligation(ctx, o.ID); err != nil {
			t.Fatalf("DeleteObligation failed: %v", err)
		}
		if _, err := store.GetObligation(ctx, o.ID); !errors.Is(err, errs.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if _, err := store.GetRecurrenceLinkByObligation(ctx, o.ID); !errors.Is(err, errs.ErrNotFound) {
			t.Errorf("expected link to be deleted, got %v", err)
		}
		if err := store.DeleteObligation(ctx, o.ID); !errors.Is(err, errs.ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}
	})

	t.Run("Recurrence links enforce one pending link per chain", func(t *testing.T) {
		group := NewGroup(t, store, "Rent", "Alice")
		alice := group.Participants[0].ID
		first := NewObligation(t, store, group.ID, alice, 100, Date(2024, 1, 1), alice)
		second := NewObligation(t, store, group.ID, alice, 100, Date(2024, 2, 1), alice)

		rent := chain("rent")
		link := NewLink(t, store, first, rent, Date(2024, 2, 1))

		dup := &models.RecurrenceLink{ChainID: rent, GroupID: group.ID, Cadence: models.CadenceMonthly,
			ObligationID: second.ID, NextDate: Date(2024, 3, 1)}
		if err := store.CreateRecurrenceLink(ctx, dup); !errors.Is(err, errs.ErrConflict) {
			t.Fatalf("expected ErrConflict for second pending link, got %v", err)
		}

		for _, bad := range []time.Time{{}, time.Unix(0, 0), time.Unix(-60, 0)} {
			if err := store.MarkMaterialized(ctx, link.ID, bad); !errs.IsValidation(err) {
				t.Errorf("expected ValidationError for materialized_at %v, got %v", bad, err)
			}
		}
		if pending, err := store.GetRecurrenceLinkByObligation(ctx, first.ID); err != nil || !pending.IsPending() {
			t.Fatalf("expected link to stay pending after rejected marks, got %+v, %v", pending, err)
		}

		at := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)
		if err := store.MarkMaterialized(ctx, link.ID, at); err != nil {
			t.Fatalf("MarkMaterialized failed: %v", err)
		}
		if err := store.MarkMaterialized(ctx, link.ID, at); !errors.Is(err, errs.ErrConflict) {
			t.Errorf("expected ErrConflict on second MarkMaterialized, got %v", err)
		}
		if err := store.MarkMaterialized(ctx, "nonexistent-id", at); !errors.Is(err, errs.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}

		got, err := store.GetRecurrenceLinkByObligation(ctx, first.ID)
		if err != nil {
			t.Fatalf("GetRecurrenceLinkByObligation failed: %v", err)
		}
		if got.IsPending() || got.MaterializedAt != at.Unix() {
			t.Errorf("expected materialized link, got %+v", got)
		}

		// A materialized link is history.
		got.NextDate = Date(2025, 1, 1)
		if err := store.UpdateRecurrenceLink(ctx, got); !errors.Is(err, errs.ErrConflict) {
			t.Errorf("expected ErrConflict updating materialized link, got %v", err)
		}
		if err := store.DeleteRecurrenceLink(ctx, got.ID); !errors.Is(err, errs.ErrConflict) {
			t.Errorf("expected ErrConflict deleting materialized link, got %v", err)
		}

		// The chain may now take its next pending link.
		if err := store.CreateRecurrenceLink(ctx, dup); err != nil {
			t.Errorf("CreateRecurrenceLink after materialize failed: %v", err)
		}
	})

	t.Run("ListPendingRecurrenceLinks filters by due date", func(t *testing.T) {
		group := NewGroup(t, store, "Due", "Alice")
		alice := group.Participants[0].ID
		a := NewObligation(t, store, group.ID, alice, 100, Date(2024, 1, 1), alice)
		b := NewObligation(t, store, group.ID, alice, 100, Date(2024, 1, 1), alice)
		c := NewObligation(t, store, group.ID, alice, 100, Date(2024, 1, 1), alice)
		later := NewLink(t, store, a, chain("a"), Date(2024, 3, 1))
		sooner := NewLink(t, store, b, chain("b"), Date(2024, 2, 1))
		NewLink(t, store, c, chain("c"), Date(2024, 6, 1))

		due, err := store.ListPendingRecurrenceLinks(ctx, group.ID, Date(2024, 3, 1))
		if err != nil {
			t.Fatalf("ListPendingRecurrenceLinks failed: %v", err)
		}
		if len(due) != 2 || due[0].ID != sooner.ID || due[1].ID != later.ID {
			t.Fatalf("expected [chain-b chain-a], got %+v", due)
		}

		sooner.Cadence = models.CadenceWeekly
		sooner.NextDate = Date(2024, 12, 1)
		if err := store.UpdateRecurrenceLink(ctx, sooner); err != nil {
			t.Fatalf("UpdateRecurrenceLink failed: %v", err)
		}
		if err := store.DeleteRecurrenceLink(ctx, later.ID); err != nil {
			t.Fatalf("DeleteRecurrenceLink failed: %v", err)
		}

		due, err = store.ListPendingRecurrenceLinks(ctx, group.ID, Date(2024, 3, 1))
		if err != nil {
			t.Fatalf("ListPendingRecurrenceLinks failed: %v", err)
		}
		if len(due) != 0 {
			t.Errorf("expected no due links, got %+v", due)
		}
	})

	t.Run("InTx commits on success and discards on error", func(t *testing.T) {
		group := NewGroup(t, store, "Tx", "Alice")
		alice := group.Participants[0].ID

		boom := errors.New("boom")
		var discarded models.Obligation
		err := store.InTx(ctx, func(tx storage.Store) error {
			discarded = *newObligation(group.ID, alice, 100, Date(2024, 1, 1), alice)
			if err := tx.CreateObligation(ctx, &discarded); err != nil {
				return err
			}
			if _, err := tx.GetObligation(ctx, discarded.ID); err != nil {
				t.Errorf("write not visible inside transaction: %v", err)
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected callback error, got %v", err)
		}
		if _, err := store.GetObligation(ctx, discarded.ID); !errors.Is(err, errs.ErrNotFound) {
			t.Errorf("expected rolled back obligation to be absent, got %v", err)
		}

		var kept models.Obligation
		err = store.InTx(ctx, func(tx storage.Store) error {
			kept = *newObligation(group.ID, alice, 100, Date(2024, 1, 1), alice)
			return tx.CreateObligation(ctx, &kept)
		})
		if err != nil {
			t.Fatalf("InTx failed: %v", err)
		}
		if _, err := store.GetObligation(ctx, kept.ID); err != nil {
			t.Errorf("expected committed obligation, got %v", err)
		}
	})
}

// Date returns midnight UTC on the given day.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewGroup creates a USD group with the named participants.
func NewGroup(t *testing.T, store storage.Store, name string, participants ...string) *models.Group {
	t.Helper()
	group := &models.Group{Name: name, Currency: "USD"}
	for _, p := range participants {
		group.Participants = append(group.Participants, models.Participant{Name: p})
	}
	if err := store.CreateGroup(context.Background(), group); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	return group
}

// NewObligation creates an evenly split obligation.
func NewObligation(t *testing.T, store storage.Store, groupID, payerID string, amount int64, date time.Time, payees ...string) *models.Obligation {
	t.Helper()
	o := newObligation(groupID, payerID, amount, date, payees...)
	if err := store.CreateObligation(context.Background(), o); err != nil {
		t.Fatalf("CreateObligation failed: %v", err)
	}
	return o
}

// NewLink creates a pending monthly link with o as its frame.
func NewLink(t *testing.T, store storage.Store, o *models.Obligation, chainID string, next time.Time) *models.RecurrenceLink {
	t.Helper()
	link := &models.RecurrenceLink{
		ChainID:      chainID,
		GroupID:      o.GroupID,
		Cadence:      models.CadenceMonthly,
		ObligationID: o.ID,
		NextDate:     next,
	}
	if err := store.CreateRecurrenceLink(context.Background(), link); err != nil {
		t.Fatalf("CreateRecurrenceLink failed: %v", err)
	}
	return link
}

func newObligation(groupID, payerID string, amount int64, date time.Time, payees ...string) *models.Obligation {
	o := &models.Obligation{
		GroupID:     groupID,
		Title:       "Expense",
		Amount:      amount,
		PayerID:     payerID,
		Date:        date,
		SplitPolicy: models.SplitEvenly,
	}
	for _, p := range payees {
		o.Shares = append(o.Shares, models.Share{ParticipantID: p, Weight: 1})
	}
	return o
}
