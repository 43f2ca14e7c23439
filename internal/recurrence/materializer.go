package recurrence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/splitledger/internal/errs"
	"github.com/mmynk/splitledger/internal/metrics"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/pkg/clock"
)

// DefaultConcurrency bounds how many groups MaterializeAll processes at once.
const DefaultConcurrency = 4

// errClaimLost means another pass materialized the link first.
var errClaimLost = errors.New("recurrence link already materialized")

// Result summarizes a materialization pass.
type Result struct {
	// Created is the number of obligations created.
	Created int

	// Failures holds one *errs.MaterializationError or *errs.ConsistencyError
	// per chain that could not be brought up to date. Those chains are retried
	// on the next pass.
	Failures []error
}

func (r *Result) merge(other Result) {
	r.Created += other.Created
	r.Failures = append(r.Failures, other.Failures...)
}

// Materializer catches recurrence chains up to the present.
//
// Each period is committed in its own transaction whose first write flips the
// link from PENDING to MATERIALIZED. A pass that loses that race stops
// without writing, so concurrent passes never duplicate an obligation, and a
// failure never advances past an incompletely created period.
type Materializer struct {
	store       storage.Store
	clock       clock.Clock
	locker      Locker
	concurrency int
}

// Option configures a Materializer.
type Option func(*Materializer)

// WithLocker replaces the default in-process per-group lock.
func WithLocker(l Locker) Option {
	return func(m *Materializer) { m.locker = l }
}

// WithConcurrency sets how many groups MaterializeAll works on in parallel.
func WithConcurrency(n int) Option {
	return func(m *Materializer) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// NewMaterializer creates a Materializer over store using clk for "now".
func NewMaterializer(store storage.Store, clk clock.Clock, opts ...Option) *Materializer {
	m := &Materializer{
		store:       store,
		clock:       clk,
		locker:      NewKeyedMutex(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MaterializeDue creates every obligation of groupID whose occurrence date is
// at or before now. Per-chain failures are logged, counted and reported in
// the Result; the returned error is reserved for failures that prevented the
// pass from starting (lock or listing).
func (m *Materializer) MaterializeDue(ctx context.Context, groupID string) (Result, error) {
	var res Result

	unlock, err := m.locker.Lock(ctx, lockKey(groupID))
	if err != nil {
		return res, fmt.Errorf("failed to lock group %s: %w", groupID, err)
	}
	defer unlock()

	now := m.clock.Now()
	links, err := m.store.ListPendingRecurrenceLinks(ctx, groupID, now)
	if err != nil {
		return res, fmt.Errorf("failed to list pending recurrence links: %w", err)
	}

	for _, chain := range byChain(links) {
		if len(chain) > 1 {
			cerr := &errs.ConsistencyError{
				GroupID: groupID,
				Reason:  fmt.Sprintf("chain %s has %d pending links", chain[0].ChainID, len(chain)),
			}
			slog.Error("skipping recurrence chain", "group_id", groupID, "chain_id", chain[0].ChainID, "error", cerr)
			metrics.ConsistencyErrors.Inc()
			res.Failures = append(res.Failures, cerr)
			continue
		}

		created, err := m.catchUp(ctx, chain[0], now)
		res.Created += created
		if err != nil {
			res.Failures = append(res.Failures, err)
		}
	}

	if res.Created > 0 {
		slog.Info("materialized recurring obligations", "group_id", groupID, "created", res.Created)
	}
	return res, nil
}

// WithGroupLock runs fn while holding the lock MaterializeDue takes for
// groupID, so fn observes no recurrence link changing state underneath it.
func (m *Materializer) WithGroupLock(ctx context.Context, groupID string, fn func() error) error {
	unlock, err := m.locker.Lock(ctx, lockKey(groupID))
	if err != nil {
		return fmt.Errorf("failed to lock group %s: %w", groupID, err)
	}
	defer unlock()
	return fn()
}

// MaterializeAll runs MaterializeDue for every group with bounded parallelism.
// A group that cannot be processed does not stop the others.
func (m *Materializer) MaterializeAll(ctx context.Context) (Result, error) {
	var total Result

	groups, err := m.store.ListGroups(ctx)
	if err != nil {
		return total, fmt.Errorf("failed to list groups: %w", err)
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(m.concurrency)
	for _, group := range groups {
		g.Go(func() error {
			res, err := m.MaterializeDue(ctx, group.ID)
			if err != nil {
				slog.Error("materialization pass failed", "group_id", group.ID, "error", err)
				res.Failures = append(res.Failures, err)
			}
			mu.Lock()
			total.merge(res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return total, nil
}

// catchUp materializes link and its successors while they are due.
func (m *Materializer) catchUp(ctx context.Context, link *models.RecurrenceLink, now time.Time) (int, error) {
	created := 0
	for !link.NextDate.After(now) {
		next, err := m.materializeOne(ctx, link, now)
		if errors.Is(err, errClaimLost) {
			slog.Debug("recurrence link claimed by another pass", "link_id", link.ID, "chain_id", link.ChainID)
			return created, nil
		}
		if err != nil {
			merr := &errs.MaterializationError{
				ChainID:      link.ChainID,
				LinkID:       link.ID,
				ObligationID: link.ObligationID,
				Err:          err,
			}
			slog.Error("failed to materialize recurring obligation",
				"obligation_id", link.ObligationID,
				"link_id", link.ID,
				"chain_id", link.ChainID,
				"error", err,
			)
			metrics.MaterializationFailures.Inc()
			return created, merr
		}

		created++
		metrics.ObligationsMaterialized.Inc()
		link = next
	}
	return created, nil
}

// materializeOne commits a single period and returns the chain's new pending link.
func (m *Materializer) materializeOne(ctx context.Context, link *models.RecurrenceLink, now time.Time) (*models.RecurrenceLink, error) {
	var next *models.RecurrenceLink
	err := m.store.InTx(ctx, func(tx storage.Store) error {
		// Claim first: a pass that loses here has written nothing.
		if err := tx.MarkMaterialized(ctx, link.ID, now); err != nil {
			if errors.Is(err, errs.ErrConflict) {
				return errClaimLost
			}
			return err
		}

		frame, err := tx.GetObligation(ctx, link.ObligationID)
		if err != nil {
			return fmt.Errorf("failed to load current frame: %w", err)
		}

		o := successor(frame, link)
		if err := tx.CreateObligation(ctx, o); err != nil {
			return err
		}
		if err := tx.RepointAttachments(ctx, frame.ID, o.ID); err != nil {
			return err
		}

		nextDate, err := NextDate(link.Cadence, o.Date)
		if err != nil {
			return err
		}
		next = &models.RecurrenceLink{
			ChainID:      link.ChainID,
			GroupID:      link.GroupID,
			Cadence:      link.Cadence,
			ObligationID: o.ID,
			NextDate:     nextDate,
		}
		return tx.CreateRecurrenceLink(ctx, next)
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// successor clones the chain frame into the occurrence due at link.NextDate.
func successor(frame *models.Obligation, link *models.RecurrenceLink) *models.Obligation {
	return &models.Obligation{
		ID:          uuid.New().String(),
		GroupID:     frame.GroupID,
		Title:       frame.Title,
		Category:    frame.Category,
		Amount:      frame.Amount,
		PayerID:     frame.PayerID,
		Date:        link.NextDate,
		SplitPolicy: frame.SplitPolicy,
		Shares:      slices.Clone(frame.Shares),
		Cadence:     link.Cadence,
	}
}

// SyncCadence reconciles the recurrence link of o after o was created or
// updated through tx:
//
//	no link,      cadence set     -> create a pending link on a new chain
//	pending link, cadence none    -> delete the link
//	pending link, cadence/date    -> update cadence and next date
//	materialized link             -> untouched; o is a historical frame
func (m *Materializer) SyncCadence(ctx context.Context, tx storage.Store, o *models.Obligation) error {
	link, err := tx.GetRecurrenceLinkByObligation(ctx, o.ID)
	if errors.Is(err, errs.ErrNotFound) {
		if o.Cadence == models.CadenceNone {
			return nil
		}
		next, err := NextDate(o.Cadence, o.Date)
		if err != nil {
			return err
		}
		return tx.CreateRecurrenceLink(ctx, &models.RecurrenceLink{
			ChainID:      uuid.New().String(),
			GroupID:      o.GroupID,
			Cadence:      o.Cadence,
			ObligationID: o.ID,
			NextDate:     next,
		})
	}
	if err != nil {
		return err
	}

	if !link.IsPending() {
		return nil
	}
	if o.Cadence == models.CadenceNone {
		return tx.DeleteRecurrenceLink(ctx, link.ID)
	}

	next, err := NextDate(o.Cadence, o.Date)
	if err != nil {
		return err
	}
	if link.Cadence == o.Cadence && link.NextDate.Equal(next) {
		return nil
	}
	link.Cadence = o.Cadence
	link.NextDate = next
	return tx.UpdateRecurrenceLink(ctx, link)
}

// byChain groups links by chain ID, keeping the order of first appearance.
func byChain(links []*models.RecurrenceLink) [][]*models.RecurrenceLink {
	index := make(map[string]int)
	var chains [][]*models.RecurrenceLink
	for _, l := range links {
		i, ok := index[l.ChainID]
		if !ok {
			i = len(chains)
			index[l.ChainID] = i
			chains = append(chains, nil)
		}
		chains[i] = append(chains[i], l)
	}
	return chains
}

func lockKey(groupID string) string {
	return "splitledger:materialize:" + groupID
}
