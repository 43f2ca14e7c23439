package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/splitledger/internal/errs"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

const linkColumns = "id, chain_id, group_id, obligation_id, cadence, next_date, materialized_at, created_at"

func scanLink(row rowScanner) (*models.RecurrenceLink, error) {
	l := &models.RecurrenceLink{}
	var (
		cadence        string
		nextDate       int64
		materializedAt sql.NullInt64
	)
	err := row.Scan(&l.ID, &l.ChainID, &l.GroupID, &l.ObligationID, &cadence, &nextDate,
		&materializedAt, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	l.Cadence = models.Cadence(cadence)
	l.NextDate = time.Unix(nextDate, 0).UTC()
	l.MaterializedAt = materializedAt.Int64
	return l, nil
}

// ListPendingRecurrenceLinks returns the group's pending links due at or before asOf.
func (s *Store) ListPendingRecurrenceLinks(ctx context.Context, groupID string, asOf time.Time) ([]*models.RecurrenceLink, error) {
	rows, err := s.query(ctx, `
		SELECT `+linkColumns+` FROM recurrence_links
		WHERE group_id = ? AND materialized_at IS NULL AND next_date <= ?
		ORDER BY next_date, created_at, id`,
		groupID, asOf.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list recurrence links: %w", err)
	}
	defer rows.Close()

	var links []*models.RecurrenceLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recurrence link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recurrence links: %w", err)
	}
	return links, nil
}

// GetRecurrenceLinkByObligation returns the link whose frame is obligationID.
func (s *Store) GetRecurrenceLinkByObligation(ctx context.Context, obligationID string) (*models.RecurrenceLink, error) {
	l, err := scanLink(s.queryRow(ctx,
		"SELECT "+linkColumns+" FROM recurrence_links WHERE obligation_id = ?", obligationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("recurrence link for obligation", obligationID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recurrence link: %w", err)
	}
	return l, nil
}

// CreateRecurrenceLink persists a new pending link.
func (s *Store) CreateRecurrenceLink(ctx context.Context, link *models.RecurrenceLink) error {
	if link.ID == "" {
		link.ID = uuid.New().String()
	}
	if link.CreatedAt == 0 {
		link.CreatedAt = time.Now().Unix()
	}

	return s.atomic(ctx, func(tx *Store) error {
		pending, err := tx.exists(ctx,
			"SELECT 1 FROM recurrence_links WHERE chain_id = ? AND materialized_at IS NULL",
			link.ChainID,
		)
		if err != nil {
			return fmt.Errorf("failed to check pending link: %w", err)
		}
		if pending {
			return fmt.Errorf("chain %s already has a pending link: %w", link.ChainID, errs.ErrConflict)
		}

		_, err = tx.exec(ctx, `
			INSERT INTO recurrence_links (`+linkColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, NULL, ?)`,
			link.ID, link.ChainID, link.GroupID, link.ObligationID, string(link.Cadence),
			link.NextDate.Unix(), link.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert recurrence link: %w", err)
		}
		link.MaterializedAt = 0
		return nil
	})
}

// UpdateRecurrenceLink changes the cadence and next date of a pending link.
func (s *Store) UpdateRecurrenceLink(ctx context.Context, link *models.RecurrenceLink) error {
	result, err := s.exec(ctx, `
		UPDATE recurrence_links SET cadence = ?, next_date = ?
		WHERE id = ? AND materialized_at IS NULL`,
		string(link.Cadence), link.NextDate.Unix(), link.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update recurrence link: %w", err)
	}
	return s.checkPendingWrite(ctx, result, link.ID)
}

// DeleteRecurrenceLink removes a pending link.
func (s *Store) DeleteRecurrenceLink(ctx context.Context, linkID string) error {
	result, err := s.exec(ctx,
		"DELETE FROM recurrence_links WHERE id = ? AND materialized_at IS NULL", linkID)
	if err != nil {
		return fmt.Errorf("failed to delete recurrence link: %w", err)
	}
	return s.checkPendingWrite(ctx, result, linkID)
}

// MarkMaterialized flips a pending link to materialized.
func (s *Store) MarkMaterialized(ctx context.Context, linkID string, at time.Time) error {
	if err := storage.CheckMaterializedAt(at); err != nil {
		return err
	}
	result, err := s.exec(ctx, `
		UPDATE recurrence_links SET materialized_at = ?
		WHERE id = ? AND materialized_at IS NULL`,
		at.Unix(), linkID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark recurrence link materialized: %w", err)
	}
	return s.checkPendingWrite(ctx, result, linkID)
}

// checkPendingWrite turns a conditional write that touched no row into
// ErrNotFound or ErrConflict depending on whether the link exists.
func (s *Store) checkPendingWrite(ctx context.Context, result sql.Result, linkID string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	ok, err := s.exists(ctx, "SELECT 1 FROM recurrence_links WHERE id = ?", linkID)
	if err != nil {
		return fmt.Errorf("failed to check recurrence link existence: %w", err)
	}
	if !ok {
		return notFound("recurrence link", linkID)
	}
	return fmt.Errorf("recurrence link %s is not pending: %w", linkID, errs.ErrConflict)
}
