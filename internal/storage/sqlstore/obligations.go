package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/splitledger/internal/models"
)

const obligationColumns = `id, group_id, title, category, amount, payer_id, occurred_on,
	split_policy, cadence, is_reimbursement, notes, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObligation(row rowScanner) (*models.Obligation, error) {
	o := &models.Obligation{}
	var (
		occurredOn int64
		policy     string
		cadence    string
	)
	err := row.Scan(&o.ID, &o.GroupID, &o.Title, &o.Category, &o.Amount, &o.PayerID, &occurredOn,
		&policy, &cadence, &o.IsReimbursement, &o.Notes, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	o.Date = time.Unix(occurredOn, 0).UTC()
	o.SplitPolicy = models.SplitPolicy(policy)
	o.Cadence = models.Cadence(cadence)
	return o, nil
}

// CreateObligation persists an obligation and its shares.
func (s *Store) CreateObligation(ctx context.Context, o *models.Obligation) error {
	// Generate ID if not set
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.CreatedAt == 0 {
		o.CreatedAt = time.Now().Unix()
	}

	return s.atomic(ctx, func(tx *Store) error {
		_, err := tx.exec(ctx, `
			INSERT INTO obligations (`+obligationColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			o.ID, o.GroupID, o.Title, o.Category, o.Amount, o.PayerID, o.Date.Unix(),
			string(o.SplitPolicy), string(o.Cadence), o.IsReimbursement, o.Notes, o.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert obligation: %w", err)
		}
		return tx.insertShares(ctx, o.ID, o.Shares)
	})
}

// GetObligation retrieves an obligation by ID with its shares and attachments.
func (s *Store) GetObligation(ctx context.Context, obligationID string) (*models.Obligation, error) {
	o, err := scanObligation(s.queryRow(ctx,
		"SELECT "+obligationColumns+" FROM obligations WHERE id = ?", obligationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("obligation", obligationID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get obligation: %w", err)
	}

	shares, err := s.loadShares(ctx, "s.obligation_id = ?", obligationID)
	if err != nil {
		return nil, err
	}
	attachments, err := s.loadAttachments(ctx, "a.obligation_id = ?", obligationID)
	if err != nil {
		return nil, err
	}
	o.Shares = shares[o.ID]
	o.Attachments = attachments[o.ID]
	return o, nil
}

// ListObligations retrieves every obligation of a group ordered by date, then creation.
func (s *Store) ListObligations(ctx context.Context, groupID string) ([]*models.Obligation, error) {
	rows, err := s.query(ctx, `
		SELECT `+obligationColumns+` FROM obligations
		WHERE group_id = ?
		ORDER BY occurred_on, created_at, id`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list obligations: %w", err)
	}

	var obligations []*models.Obligation
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan obligation: %w", err)
		}
		obligations = append(obligations, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate obligations: %w", err)
	}

	shares, err := s.loadShares(ctx, "o.group_id = ?", groupID)
	if err != nil {
		return nil, err
	}
	attachments, err := s.loadAttachments(ctx, "o.group_id = ?", groupID)
	if err != nil {
		return nil, err
	}
	for _, o := range obligations {
		o.Shares = shares[o.ID]
		o.Attachments = attachments[o.ID]
	}
	return obligations, nil
}

// UpdateObligation replaces an obligation's fields and its full share set.
func (s *Store) UpdateObligation(ctx context.Context, o *models.Obligation) error {
	return s.atomic(ctx, func(tx *Store) error {
		result, err := tx.exec(ctx, `
			UPDATE obligations
			SET title = ?, category = ?, amount = ?, payer_id = ?, occurred_on = ?,
				split_policy = ?, cadence = ?, is_reimbursement = ?, notes = ?
			WHERE id = ?`,
			o.Title, o.Category, o.Amount, o.PayerID, o.Date.Unix(),
			string(o.SplitPolicy), string(o.Cadence), o.IsReimbursement, o.Notes, o.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update obligation: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return notFound("obligation", o.ID)
		}

		if _, err := tx.exec(ctx, "DELETE FROM shares WHERE obligation_id = ?", o.ID); err != nil {
			return fmt.Errorf("failed to delete shares: %w", err)
		}
		return tx.insertShares(ctx, o.ID, o.Shares)
	})
}

// DeleteObligation removes an obligation and everything hanging off it.
func (s *Store) DeleteObligation(ctx context.Context, obligationID string) error {
	return s.atomic(ctx, func(tx *Store) error {
		ok, err := tx.exists(ctx, "SELECT 1 FROM obligations WHERE id = ?", obligationID)
		if err != nil {
			return fmt.Errorf("failed to check obligation existence: %w", err)
		}
		if !ok {
			return notFound("obligation", obligationID)
		}

		for _, stmt := range []string{
			"DELETE FROM recurrence_links WHERE obligation_id = ?",
			"DELETE FROM attachments WHERE obligation_id = ?",
			"DELETE FROM shares WHERE obligation_id = ?",
			"DELETE FROM obligations WHERE id = ?",
		} {
			if _, err := tx.exec(ctx, stmt, obligationID); err != nil {
				return fmt.Errorf("failed to delete obligation: %w", err)
			}
		}
		return nil
	})
}

// AddAttachment attaches a document reference to an existing obligation.
func (s *Store) AddAttachment(ctx context.Context, a *models.Attachment) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt == 0 {
		a.CreatedAt = time.Now().Unix()
	}

	return s.atomic(ctx, func(tx *Store) error {
		ok, err := tx.exists(ctx, "SELECT 1 FROM obligations WHERE id = ?", a.ObligationID)
		if err != nil {
			return fmt.Errorf("failed to check obligation existence: %w", err)
		}
		if !ok {
			return notFound("obligation", a.ObligationID)
		}

		_, err = tx.exec(ctx,
			"INSERT INTO attachments (id, obligation_id, name, url, created_at) VALUES (?, ?, ?, ?, ?)",
			a.ID, a.ObligationID, a.Name, a.URL, a.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert attachment: %w", err)
		}
		return nil
	})
}

// RepointAttachments moves every attachment from one obligation to another.
func (s *Store) RepointAttachments(ctx context.Context, fromObligationID, toObligationID string) error {
	_, err := s.exec(ctx,
		"UPDATE attachments SET obligation_id = ? WHERE obligation_id = ?",
		toObligationID, fromObligationID,
	)
	if err != nil {
		return fmt.Errorf("failed to repoint attachments: %w", err)
	}
	return nil
}

func (s *Store) insertShares(ctx context.Context, obligationID string, shares []models.Share) error {
	for i, share := range shares {
		_, err := s.exec(ctx,
			"INSERT INTO shares (obligation_id, participant_id, weight, position) VALUES (?, ?, ?, ?)",
			obligationID, share.ParticipantID, share.Weight, i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert share: %w", err)
		}
	}
	return nil
}

// loadShares returns shares keyed by obligation ID, each slice in insertion order.
// where filters on the shares (s) or obligations (o) table.
func (s *Store) loadShares(ctx context.Context, where string, args ...any) (map[string][]models.Share, error) {
	rows, err := s.query(ctx, `
		SELECT s.obligation_id, s.participant_id, s.weight
		FROM shares s JOIN obligations o ON o.id = s.obligation_id
		WHERE `+where+`
		ORDER BY s.obligation_id, s.position`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get shares: %w", err)
	}
	defer rows.Close()

	shares := make(map[string][]models.Share)
	for rows.Next() {
		var (
			obligationID string
			share        models.Share
		)
		if err := rows.Scan(&obligationID, &share.ParticipantID, &share.Weight); err != nil {
			return nil, fmt.Errorf("failed to scan share: %w", err)
		}
		shares[obligationID] = append(shares[obligationID], share)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate shares: %w", err)
	}
	return shares, nil
}

// loadAttachments returns attachments keyed by obligation ID in creation order.
func (s *Store) loadAttachments(ctx context.Context, where string, args ...any) (map[string][]models.Attachment, error) {
	rows, err := s.query(ctx, `
		SELECT a.id, a.obligation_id, a.name, a.url, a.created_at
		FROM attachments a JOIN obligations o ON o.id = a.obligation_id
		WHERE `+where+`
		ORDER BY a.created_at, a.id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get attachments: %w", err)
	}
	defer rows.Close()

	attachments := make(map[string][]models.Attachment)
	for rows.Next() {
		var a models.Attachment
		if err := rows.Scan(&a.ID, &a.ObligationID, &a.Name, &a.URL, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments[a.ObligationID] = append(attachments[a.ObligationID], a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attachments: %w", err)
	}
	return attachments, nil
}
