// Package memory provides an in-process storage.Store.
//
// Every write works on a copy of the current state and swaps it in only on
// success, so a failed operation or a failed InTx callback leaves no trace.
// InTx holds the write lock for the whole callback.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/splitledger/internal/errs"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

// Ensure Store implements storage.Store
var _ storage.Store = (*Store)(nil)

// Store is an in-memory storage.Store.
type Store struct {
	mu   sync.RWMutex
	st   *state
	inTx bool
}

// New creates an empty store.
func New() *Store {
	return &Store{st: newState()}
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// InTx runs fn against a private copy of the state and publishes it if fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(tx storage.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Store{st: s.st.clone(), inTx: true}
	if err := fn(tx); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

func (s *Store) view(fn func(st *state) error) error {
	if !s.inTx {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}
	return fn(s.st)
}

func (s *Store) update(fn func(st *state) error) error {
	if !s.inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	next := s.st.clone()
	if err := fn(next); err != nil {
		return err
	}
	s.st = next
	return nil
}

type groupRecord struct {
	group models.Group
	seq   int64
}

type obligationRecord struct {
	obligation models.Obligation
	seq        int64
}

type attachmentRecord struct {
	attachment models.Attachment
	seq        int64
}

type linkRecord struct {
	link models.RecurrenceLink
	seq  int64
}

type state struct {
	seq         int64
	groups      map[string]*groupRecord
	obligations map[string]*obligationRecord
	attachments map[string]*attachmentRecord
	links       map[string]*linkRecord
}

func newState() *state {
	return &state{
		groups:      make(map[string]*groupRecord),
		obligations: make(map[string]*obligationRecord),
		attachments: make(map[string]*attachmentRecord),
		links:       make(map[string]*linkRecord),
	}
}

func (st *state) clone() *state {
	next := &state{
		seq:         st.seq,
		groups:      make(map[string]*groupRecord, len(st.groups)),
		obligations: make(map[string]*obligationRecord, len(st.obligations)),
		attachments: make(map[string]*attachmentRecord, len(st.attachments)),
		links:       make(map[string]*linkRecord, len(st.links)),
	}
	for id, r := range st.groups {
		c := *r
		c.group.Participants = slices.Clone(r.group.Participants)
		next.groups[id] = &c
	}
	for id, r := range st.obligations {
		c := *r
		c.obligation.Shares = slices.Clone(r.obligation.Shares)
		next.obligations[id] = &c
	}
	for id, r := range st.attachments {
		c := *r
		next.attachments[id] = &c
	}
	for id, r := range st.links {
		c := *r
		next.links[id] = &c
	}
	return next
}

func (st *state) nextSeq() int64 {
	st.seq++
	return st.seq
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s not found: %s: %w", kind, id, errs.ErrNotFound)
}

// CreateGroup persists a group and its roster.
func (s *Store) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt == 0 {
		group.CreatedAt = time.Now().Unix()
	}
	for i := range group.Participants {
		fillParticipant(&group.Participants[i], group.ID)
	}

	return s.update(func(st *state) error {
		if _, ok := st.groups[group.ID]; ok {
			return fmt.Errorf("group %s already exists: %w", group.ID, errs.ErrConflict)
		}
		seen := make(map[string]bool, len(group.Participants))
		for _, p := range group.Participants {
			if seen[p.Name] {
				return fmt.Errorf("participant name %q already in group: %w", p.Name, errs.ErrConflict)
			}
			seen[p.Name] = true
		}
		st.groups[group.ID] = &groupRecord{group: copyGroup(group), seq: st.nextSeq()}
		return nil
	})
}

// GetGroup retrieves a group with its roster.
func (s *Store) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	var out *models.Group
	err := s.view(func(st *state) error {
		r, ok := st.groups[groupID]
		if !ok {
			return notFound("group", groupID)
		}
		g := copyGroup(&r.group)
		out = &g
		return nil
	})
	return out, err
}

// ListGroups retrieves all groups ordered by creation.
func (s *Store) ListGroups(ctx context.Context) ([]*models.Group, error) {
	var out []*models.Group
	err := s.view(func(st *state) error {
		records := make([]*groupRecord, 0, len(st.groups))
		for _, r := range st.groups {
			records = append(records, r)
		}
		slices.SortFunc(records, func(a, b *groupRecord) int { return cmp.Compare(a.seq, b.seq) })
		for _, r := range records {
			g := copyGroup(&r.group)
			out = append(out, &g)
		}
		return nil
	})
	return out, err
}

// AddParticipant appends a participant to the roster.
func (s *Store) AddParticipant(ctx context.Context, p *models.Participant) error {
	fillParticipant(p, p.GroupID)
	return s.update(func(st *state) error {
		r, ok := st.groups[p.GroupID]
		if !ok {
			return notFound("group", p.GroupID)
		}
		for _, existing := range r.group.Participants {
			if existing.Name == p.Name {
				return fmt.Errorf("participant name %q already in group: %w", p.Name, errs.ErrConflict)
			}
		}
		r.group.Participants = append(r.group.Participants, *p)
		return nil
	})
}

// RemoveParticipant removes a participant no obligation references.
func (s *Store) RemoveParticipant(ctx context.Context, groupID, participantID string) error {
	return s.update(func(st *state) error {
		r, ok := st.groups[groupID]
		if !ok || !r.group.HasParticipant(participantID) {
			return notFound("participant", participantID)
		}
		for _, o := range st.obligations {
			if o.obligation.GroupID == groupID && o.obligation.References(participantID) {
				return fmt.Errorf("participant %s: %w", participantID, errs.ErrParticipantInUse)
			}
		}
		r.group.Participants = slices.DeleteFunc(r.group.Participants, func(p models.Participant) bool {
			return p.ID == participantID
		})
		return nil
	})
}

// CreateObligation persists an obligation and its shares.
func (s *Store) CreateObligation(ctx context.Context, o *models.Obligation) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.CreatedAt == 0 {
		o.CreatedAt = time.Now().Unix()
	}

	return s.update(func(st *state) error {
		if _, ok := st.groups[o.GroupID]; !ok {
			return notFound("group", o.GroupID)
		}
		if _, ok := st.obligations[o.ID]; ok {
			return fmt.Errorf("obligation %s already exists: %w", o.ID, errs.ErrConflict)
		}
		st.obligations[o.ID] = &obligationRecord{obligation: copyObligation(o), seq: st.nextSeq()}
		return nil
	})
}

// GetObligation retrieves an obligation with its shares and attachments.
func (s *Store) GetObligation(ctx context.Context, obligationID string) (*models.Obligation, error) {
	var out *models.Obligation
	err := s.view(func(st *state) error {
		r, ok := st.obligations[obligationID]
		if !ok {
			return notFound("obligation", obligationID)
		}
		out = st.materialize(r)
		return nil
	})
	return out, err
}

// ListObligations retrieves a group's obligations ordered by date, then creation.
func (s *Store) ListObligations(ctx context.Context, groupID string) ([]*models.Obligation, error) {
	var out []*models.Obligation
	err := s.view(func(st *state) error {
		var records []*obligationRecord
		for _, r := range st.obligations {
			if r.obligation.GroupID == groupID {
				records = append(records, r)
			}
		}
		slices.SortFunc(records, func(a, b *obligationRecord) int {
			if c := a.obligation.Date.Compare(b.obligation.Date); c != 0 {
				return c
			}
			return cmp.Compare(a.seq, b.seq)
		})
		for _, r := range records {
			out = append(out, st.materialize(r))
		}
		return nil
	})
	return out, err
}

// UpdateObligation replaces an obligation's fields and shares.
func (s *Store) UpdateObligation(ctx context.Context, o *models.Obligation) error {
	return s.update(func(st *state) error {
		r, ok := st.obligations[o.ID]
		if !ok {
			return notFound("obligation", o.ID)
		}
		updated := copyObligation(o)
		updated.GroupID = r.obligation.GroupID
		updated.CreatedAt = r.obligation.CreatedAt
		r.obligation = updated
		return nil
	})
}

// DeleteObligation removes an obligation with its attachments and links.
func (s *Store) DeleteObligation(ctx context.Context, obligationID string) error {
	return s.update(func(st *state) error {
		if _, ok := st.obligations[obligationID]; !ok {
			return notFound("obligation", obligationID)
		}
		for id, r := range st.links {
			if r.link.ObligationID == obligationID {
				delete(st.links, id)
			}
		}
		for id, r := range st.attachments {
			if r.attachment.ObligationID == obligationID {
				delete(st.attachments, id)
			}
		}
		delete(st.obligations, obligationID)
		return nil
	})
}

// AddAttachment attaches a document reference to an obligation.
func (s *Store) AddAttachment(ctx context.Context, a *models.Attachment) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt == 0 {
		a.CreatedAt = time.Now().Unix()
	}
	return s.update(func(st *state) error {
		if _, ok := st.obligations[a.ObligationID]; !ok {
			return notFound("obligation", a.ObligationID)
		}
		st.attachments[a.ID] = &attachmentRecord{attachment: *a, seq: st.nextSeq()}
		return nil
	})
}

// RepointAttachments moves every attachment of one obligation to another.
func (s *Store) RepointAttachments(ctx context.Context, fromObligationID, toObligationID string) error {
	return s.update(func(st *state) error {
		for _, r := range st.attachments {
			if r.attachment.ObligationID == fromObligationID {
				r.attachment.ObligationID = toObligationID
			}
		}
		return nil
	})
}

// ListPendingRecurrenceLinks returns pending links due at or before asOf.
func (s *Store) ListPendingRecurrenceLinks(ctx context.Context, groupID string, asOf time.Time) ([]*models.RecurrenceLink, error) {
	var out []*models.RecurrenceLink
	err := s.view(func(st *state) error {
		var records []*linkRecord
		for _, r := range st.links {
			if r.link.GroupID == groupID && r.link.IsPending() && !r.link.NextDate.After(asOf) {
				records = append(records, r)
			}
		}
		slices.SortFunc(records, func(a, b *linkRecord) int {
			if c := a.link.NextDate.Compare(b.link.NextDate); c != 0 {
				return c
			}
			return cmp.Compare(a.seq, b.seq)
		})
		for _, r := range records {
			l := r.link
			out = append(out, &l)
		}
		return nil
	})
	return out, err
}

// GetRecurrenceLinkByObligation returns the link whose frame is obligationID.
func (s *Store) GetRecurrenceLinkByObligation(ctx context.Context, obligationID string) (*models.RecurrenceLink, error) {
	var out *models.RecurrenceLink
	err := s.view(func(st *state) error {
		for _, r := range st.links {
			if r.link.ObligationID == obligationID {
				l := r.link
				out = &l
				return nil
			}
		}
		return notFound("recurrence link for obligation", obligationID)
	})
	return out, err
}

// CreateRecurrenceLink persists a new pending link.
func (s *Store) CreateRecurrenceLink(ctx context.Context, link *models.RecurrenceLink) error {
	if link.ID == "" {
		link.ID = uuid.New().String()
	}
	if link.CreatedAt == 0 {
		link.CreatedAt = time.Now().Unix()
	}
	link.MaterializedAt = 0

	return s.update(func(st *state) error {
		if _, ok := st.obligations[link.ObligationID]; !ok {
			return notFound("obligation", link.ObligationID)
		}
		for _, r := range st.links {
			if r.link.ChainID == link.ChainID && r.link.IsPending() {
				return fmt.Errorf("chain %s already has a pending link: %w", link.ChainID, errs.ErrConflict)
			}
			if r.link.ObligationID == link.ObligationID {
				return fmt.Errorf("obligation %s already has a link: %w", link.ObligationID, errs.ErrConflict)
			}
		}
		st.links[link.ID] = &linkRecord{link: *link, seq: st.nextSeq()}
		return nil
	})
}

// UpdateRecurrenceLink changes the cadence and next date of a pending link.
func (s *Store) UpdateRecurrenceLink(ctx context.Context, link *models.RecurrenceLink) error {
	return s.update(func(st *state) error {
		r, err := st.pendingLink(link.ID)
		if err != nil {
			return err
		}
		r.link.Cadence = link.Cadence
		r.link.NextDate = link.NextDate
		return nil
	})
}

// DeleteRecurrenceLink removes a pending link.
func (s *Store) DeleteRecurrenceLink(ctx context.Context, linkID string) error {
	return s.update(func(st *state) error {
		if _, err := st.pendingLink(linkID); err != nil {
			return err
		}
		delete(st.links, linkID)
		return nil
	})
}

// MarkMaterialized flips a pending link to materialized.
func (s *Store) MarkMaterialized(ctx context.Context, linkID string, at time.Time) error {
	if err := storage.CheckMaterializedAt(at); err != nil {
		return err
	}
	return s.update(func(st *state) error {
		r, err := st.pendingLink(linkID)
		if err != nil {
			return err
		}
		r.link.MaterializedAt = at.Unix()
		return nil
	})
}

func (st *state) pendingLink(linkID string) (*linkRecord, error) {
	r, ok := st.links[linkID]
	if !ok {
		return nil, notFound("recurrence link", linkID)
	}
	if !r.link.IsPending() {
		return nil, fmt.Errorf("recurrence link %s is not pending: %w", linkID, errs.ErrConflict)
	}
	return r, nil
}

// materialize returns a detached copy of r with its attachments joined in.
func (st *state) materialize(r *obligationRecord) *models.Obligation {
	o := copyObligation(&r.obligation)
	var records []*attachmentRecord
	for _, a := range st.attachments {
		if a.attachment.ObligationID == o.ID {
			records = append(records, a)
		}
	}
	slices.SortFunc(records, func(a, b *attachmentRecord) int { return cmp.Compare(a.seq, b.seq) })
	for _, a := range records {
		o.Attachments = append(o.Attachments, a.attachment)
	}
	return &o
}

func fillParticipant(p *models.Participant, groupID string) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt == 0 {
		p.CreatedAt = time.Now().Unix()
	}
	p.GroupID = groupID
}

func copyGroup(g *models.Group) models.Group {
	c := *g
	c.Participants = slices.Clone(g.Participants)
	return c
}

func copyObligation(o *models.Obligation) models.Obligation {
	c := *o
	c.Shares = slices.Clone(o.Shares)
	c.Attachments = nil
	return c
}
