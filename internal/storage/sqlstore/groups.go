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
)

// CreateGroup persists a new group and its roster.
func (s *Store) CreateGroup(ctx context.Context, group *models.Group) error {
	// Generate ID if not set
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt == 0 {
		group.CreatedAt = time.Now().Unix()
	}

	return s.atomic(ctx, func(tx *Store) error {
		_, err := tx.exec(ctx,
			"INSERT INTO groups (id, name, currency, created_at) VALUES (?, ?, ?, ?)",
			group.ID, group.Name, group.Currency, group.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert group: %w", err)
		}

		for i := range group.Participants {
			p := &group.Participants[i]
			p.GroupID = group.ID
			if err := tx.insertParticipant(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetGroup retrieves a group by ID, including its roster.
func (s *Store) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	group := &models.Group{}
	err := s.queryRow(ctx,
		"SELECT id, name, currency, created_at FROM groups WHERE id = ?",
		groupID,
	).Scan(&group.ID, &group.Name, &group.Currency, &group.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("group", groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	group.Participants, err = s.listParticipants(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return group, nil
}

// ListGroups retrieves all groups ordered by creation time.
func (s *Store) ListGroups(ctx context.Context) ([]*models.Group, error) {
	rows, err := s.query(ctx, "SELECT id, name, currency, created_at FROM groups ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}

	var groups []*models.Group
	for rows.Next() {
		group := &models.Group{}
		if err := rows.Scan(&group.ID, &group.Name, &group.Currency, &group.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, group)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}

	// Rosters are loaded after the group cursor is closed; a single-connection
	// pool cannot serve a second query while rows are open.
	for _, group := range groups {
		group.Participants, err = s.listParticipants(ctx, group.ID)
		if err != nil {
			return nil, err
		}
	}
	return groups, nil
}

// AddParticipant appends a participant to the group roster.
func (s *Store) AddParticipant(ctx context.Context, p *models.Participant) error {
	return s.atomic(ctx, func(tx *Store) error {
		ok, err := tx.exists(ctx, "SELECT 1 FROM groups WHERE id = ?", p.GroupID)
		if err != nil {
			return fmt.Errorf("failed to check group existence: %w", err)
		}
		if !ok {
			return notFound("group", p.GroupID)
		}
		return tx.insertParticipant(ctx, p)
	})
}

// RemoveParticipant deletes a participant no obligation refers to.
func (s *Store) RemoveParticipant(ctx context.Context, groupID, participantID string) error {
	return s.atomic(ctx, func(tx *Store) error {
		ok, err := tx.exists(ctx,
			"SELECT 1 FROM participants WHERE id = ? AND group_id = ?",
			participantID, groupID,
		)
		if err != nil {
			return fmt.Errorf("failed to check participant existence: %w", err)
		}
		if !ok {
			return notFound("participant", participantID)
		}

		inUse, err := tx.exists(ctx, `
			SELECT 1 FROM obligations WHERE payer_id = ?
			UNION ALL
			SELECT 1 FROM shares WHERE participant_id = ?
			LIMIT 1`,
			participantID, participantID,
		)
		if err != nil {
			return fmt.Errorf("failed to check participant references: %w", err)
		}
		if inUse {
			return fmt.Errorf("participant %s: %w", participantID, errs.ErrParticipantInUse)
		}

		if _, err := tx.exec(ctx, "DELETE FROM participants WHERE id = ?", participantID); err != nil {
			return fmt.Errorf("failed to delete participant: %w", err)
		}
		return nil
	})
}

// insertParticipant appends p at the end of its group's roster.
func (s *Store) insertParticipant(ctx context.Context, p *models.Participant) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt == 0 {
		p.CreatedAt = time.Now().Unix()
	}

	taken, err := s.exists(ctx,
		"SELECT 1 FROM participants WHERE group_id = ? AND name = ?",
		p.GroupID, p.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to check participant name: %w", err)
	}
	if taken {
		return fmt.Errorf("participant name %q already in group: %w", p.Name, errs.ErrConflict)
	}

	_, err = s.exec(ctx, `
		INSERT INTO participants (id, group_id, name, position, created_at)
		VALUES (?, ?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM participants WHERE group_id = ?), ?)`,
		p.ID, p.GroupID, p.Name, p.GroupID, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert participant: %w", err)
	}
	return nil
}

func (s *Store) listParticipants(ctx context.Context, groupID string) ([]models.Participant, error) {
	rows, err := s.query(ctx,
		"SELECT id, group_id, name, created_at FROM participants WHERE group_id = ? ORDER BY position",
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ID, &p.GroupID, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}
	return participants, nil
}
