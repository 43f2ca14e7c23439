// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"time"

	"github.com/mmynk/splitledger/internal/errs"
	"github.com/mmynk/splitledger/internal/models"
)

// Store is the obligation store the ledger core talks to.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL,
// in-memory) without changing the service or recurrence layers. The core
// never issues ad-hoc queries; it only calls these named operations.
//
// Lookups of missing records return an error wrapping errs.ErrNotFound.
type Store interface {
	GroupStore
	ObligationStore
	RecurrenceStore

	// InTx runs fn against a transactional view of the store.
	// All writes made through tx commit together when fn returns nil and are
	// discarded otherwise. Calling InTx on a transactional view runs fn inline.
	InTx(ctx context.Context, fn func(tx Store) error) error

	// Close releases any resources held by the store.
	Close() error
}

// GroupStore manages groups and their rosters.
type GroupStore interface {
	// CreateGroup persists a group and its participants atomically.
	// Empty IDs and CreatedAt fields are populated by the store.
	CreateGroup(ctx context.Context, group *models.Group) error

	// GetGroup retrieves a group with its roster in insertion order.
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// ListGroups retrieves all groups.
	ListGroups(ctx context.Context) ([]*models.Group, error)

	// AddParticipant appends a participant to a group's roster.
	// Returns errs.ErrConflict if the name is already taken in the group.
	AddParticipant(ctx context.Context, p *models.Participant) error

	// RemoveParticipant removes a participant that no obligation references.
	// Returns errs.ErrParticipantInUse otherwise.
	RemoveParticipant(ctx context.Context, groupID, participantID string) error
}

// ObligationStore manages obligations, their shares and attachments.
type ObligationStore interface {
	// CreateObligation persists an obligation and its shares as one unit.
	// Empty ID and CreatedAt fields are populated by the store.
	CreateObligation(ctx context.Context, o *models.Obligation) error

	// GetObligation retrieves an obligation with its shares and attachments.
	GetObligation(ctx context.Context, obligationID string) (*models.Obligation, error)

	// ListObligations retrieves a group's obligations ordered by date, then creation.
	ListObligations(ctx context.Context, groupID string) ([]*models.Obligation, error)

	// UpdateObligation replaces an obligation's fields and shares as one unit.
	UpdateObligation(ctx context.Context, o *models.Obligation) error

	// DeleteObligation removes an obligation, its shares, its attachments and
	// any recurrence link whose frame it is.
	DeleteObligation(ctx context.Context, obligationID string) error

	// AddAttachment attaches a document reference to an obligation.
	AddAttachment(ctx context.Context, a *models.Attachment) error

	// RepointAttachments moves every attachment of one obligation to another.
	RepointAttachments(ctx context.Context, fromObligationID, toObligationID string) error
}

// RecurrenceStore manages recurrence chains.
type RecurrenceStore interface {
	// ListPendingRecurrenceLinks returns a group's PENDING links whose next
	// date is at or before asOf, ordered by next date.
	ListPendingRecurrenceLinks(ctx context.Context, groupID string, asOf time.Time) ([]*models.RecurrenceLink, error)

	// GetRecurrenceLinkByObligation returns the link whose frame is obligationID.
	GetRecurrenceLinkByObligation(ctx context.Context, obligationID string) (*models.RecurrenceLink, error)

	// CreateRecurrenceLink persists a new PENDING link.
	// Returns errs.ErrConflict if the chain already has a PENDING link.
	CreateRecurrenceLink(ctx context.Context, link *models.RecurrenceLink) error

	// UpdateRecurrenceLink changes the cadence and next date of a PENDING link.
	// Returns errs.ErrConflict if the link is no longer pending.
	UpdateRecurrenceLink(ctx context.Context, link *models.RecurrenceLink) error

	// DeleteRecurrenceLink removes a PENDING link.
	// Returns errs.ErrConflict if the link is no longer pending.
	DeleteRecurrenceLink(ctx context.Context, linkID string) error

	// MarkMaterialized flips a link from PENDING to MATERIALIZED.
	// Returns errs.ErrConflict if the link was not pending, so that two
	// concurrent passes cannot both advance the same link. An at that is not
	// after the Unix epoch is rejected with a *errs.ValidationError.
	MarkMaterialized(ctx context.Context, linkID string, at time.Time) error
}

// CheckMaterializedAt rejects timestamps that would store as the PENDING
// marker (zero) or before it.
func CheckMaterializedAt(at time.Time) error {
	if at.Unix() <= 0 {
		return errs.Invalid("materialized_at", "must be after the Unix epoch, got %s", at.UTC().Format(time.RFC3339))
	}
	return nil
}
