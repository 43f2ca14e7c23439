package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/splitledger/internal/errs"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/recurrence"
	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/pkg/api"
	"github.com/mmynk/splitledger/pkg/api/apiconnect"
	"github.com/mmynk/splitledger/pkg/clock"
)

// Ensure ExpenseService implements the handler interface
var _ apiconnect.ExpenseServiceHandler = (*ExpenseService)(nil)

// ExpenseService implements the Connect ExpenseService: the obligation write
// path, attachments, reimbursements and on-demand materialization.
type ExpenseService struct {
	store        storage.Store
	materializer *recurrence.Materializer
	clock        clock.Clock
}

// NewExpenseService creates a new ExpenseService.
func NewExpenseService(store storage.Store, materializer *recurrence.Materializer, clk clock.Clock) *ExpenseService {
	return &ExpenseService{store: store, materializer: materializer, clock: clk}
}

// CreateObligation records an obligation. A cadence starts a new recurrence
// chain in the same transaction.
func (s *ExpenseService) CreateObligation(ctx context.Context, req *connect.Request[api.CreateObligationRequest]) (*connect.Response[api.CreateObligationResponse], error) {
	slog.Info("CreateObligation request received", "group_id", req.Msg.GroupID)

	group, err := s.store.GetGroup(ctx, req.Msg.GroupID)
	if err != nil {
		slog.Error("CreateObligation failed", "group_id", req.Msg.GroupID, "error", err)
		return nil, connectError(err)
	}

	o, err := obligationFromInput(group, req.Msg.Obligation)
	if err != nil {
		slog.Warn("CreateObligation rejected", "group_id", group.ID, "error", err)
		return nil, connectError(err)
	}

	err = s.store.InTx(ctx, func(tx storage.Store) error {
		if err := tx.CreateObligation(ctx, o); err != nil {
			return err
		}
		return s.materializer.SyncCadence(ctx, tx, o)
	})
	if err != nil {
		slog.Error("CreateObligation failed", "group_id", group.ID, "error", err)
		return nil, connectError(err)
	}

	slog.Info("Obligation created",
		"group_id", group.ID,
		"obligation_id", o.ID,
		"amount", o.Amount,
		"cadence", o.Cadence,
	)

	return connect.NewResponse(&api.CreateObligationResponse{
		Obligation: toAPIObligation(o, group.Currency),
	}), nil
}

// UpdateObligation replaces an obligation's fields and shares, then reconciles
// its recurrence link. Historical frames of a chain keep their materialized link.
func (s *ExpenseService) UpdateObligation(ctx context.Context, req *connect.Request[api.UpdateObligationRequest]) (*connect.Response[api.UpdateObligationResponse], error) {
	slog.Info("UpdateObligation request received", "obligation_id", req.Msg.ObligationID)

	existing, err := s.store.GetObligation(ctx, req.Msg.ObligationID)
	if err != nil {
		slog.Error("UpdateObligation failed", "obligation_id", req.Msg.ObligationID, "error", err)
		return nil, connectError(err)
	}
	group, err := s.store.GetGroup(ctx, existing.GroupID)
	if err != nil {
		slog.Error("UpdateObligation failed", "obligation_id", existing.ID, "error", err)
		return nil, connectError(err)
	}

	o, err := obligationFromInput(group, req.Msg.Obligation)
	if err != nil {
		slog.Warn("UpdateObligation rejected", "obligation_id", existing.ID, "error", err)
		return nil, connectError(err)
	}

	// The group lock keeps materialization from claiming the frame's link
	// between the reads below and SyncCadence.
	err = s.materializer.WithGroupLock(ctx, group.ID, func() error {
		return s.store.InTx(ctx, func(tx storage.Store) error {
			current, err := tx.GetObligation(ctx, existing.ID)
			if err != nil {
				return err
			}
			o.ID = current.ID
			o.CreatedAt = current.CreatedAt
			o.IsReimbursement = current.IsReimbursement
			o.Attachments = current.Attachments

			if err := tx.UpdateObligation(ctx, o); err != nil {
				return err
			}
			return s.materializer.SyncCadence(ctx, tx, o)
		})
	})
	if err != nil {
		slog.Error("UpdateObligation failed", "obligation_id", existing.ID, "error", err)
		return nil, connectError(err)
	}

	slog.Info("Obligation updated", "obligation_id", o.ID)

	return connect.NewResponse(&api.UpdateObligationResponse{
		Obligation: toAPIObligation(o, group.Currency),
	}), nil
}

// DeleteObligation removes an obligation. Deleting the current frame of a
// recurrence chain ends the chain.
func (s *ExpenseService) DeleteObligation(ctx context.Context, req *connect.Request[api.DeleteObligationRequest]) (*connect.Response[api.DeleteObligationResponse], error) {
	slog.Info("DeleteObligation request received", "obligation_id", req.Msg.ObligationID)

	if err := s.store.DeleteObligation(ctx, req.Msg.ObligationID); err != nil {
		slog.Error("DeleteObligation failed", "obligation_id", req.Msg.ObligationID, "error", err)
		return nil, connectError(err)
	}

	return connect.NewResponse(&api.DeleteObligationResponse{}), nil
}

// ListObligations returns a group's obligations ordered by date, after
// materializing any due recurrences.
func (s *ExpenseService) ListObligations(ctx context.Context, req *connect.Request[api.ListObligationsRequest]) (*connect.Response[api.ListObligationsResponse], error) {
	slog.Info("ListObligations request received", "group_id", req.Msg.GroupID)

	group, err := s.store.GetGroup(ctx, req.Msg.GroupID)
	if err != nil {
		slog.Error("ListObligations failed", "group_id", req.Msg.GroupID, "error", err)
		return nil, connectError(err)
	}

	if err := catchUp(ctx, s.materializer, group.ID); err != nil {
		logConsistency(err)
		return nil, connectError(err)
	}

	obligations, err := s.store.ListObligations(ctx, group.ID)
	if err != nil {
		slog.Error("ListObligations failed", "group_id", group.ID, "error", err)
		return nil, connectError(err)
	}

	out := make([]*api.Obligation, len(obligations))
	for i, o := range obligations {
		out[i] = toAPIObligation(o, group.Currency)
	}

	slog.Info("ListObligations successful", "group_id", group.ID, "count", len(out))

	return connect.NewResponse(&api.ListObligationsResponse{Obligations: out}), nil
}

// AddAttachment attaches a document reference to an obligation.
func (s *ExpenseService) AddAttachment(ctx context.Context, req *connect.Request[api.AddAttachmentRequest]) (*connect.Response[api.AddAttachmentResponse], error) {
	slog.Info("AddAttachment request received", "obligation_id", req.Msg.ObligationID)

	a := &models.Attachment{
		ObligationID: req.Msg.ObligationID,
		Name:         strings.TrimSpace(req.Msg.Name),
		URL:          strings.TrimSpace(req.Msg.URL),
	}
	if a.Name == "" {
		return nil, connectError(errs.Invalid("name", "is required"))
	}
	if a.URL == "" {
		return nil, connectError(errs.Invalid("url", "is required"))
	}

	if err := s.store.AddAttachment(ctx, a); err != nil {
		slog.Error("AddAttachment failed", "obligation_id", a.ObligationID, "error", err)
		return nil, connectError(err)
	}

	return connect.NewResponse(&api.AddAttachmentResponse{
		Attachment: &api.Attachment{
			ID:        a.ID,
			Name:      a.Name,
			URL:       a.URL,
			CreatedAt: a.CreatedAt,
		},
	}), nil
}

// RecordReimbursement records a payment from one participant to another as
// an obligation paid by the sender and owed entirely by the receiver.
func (s *ExpenseService) RecordReimbursement(ctx context.Context, req *connect.Request[api.RecordReimbursementRequest]) (*connect.Response[api.RecordReimbursementResponse], error) {
	msg := req.Msg
	slog.Info("RecordReimbursement request received",
		"group_id", msg.GroupID,
		"from", msg.FromID,
		"to", msg.ToID,
	)

	group, err := s.store.GetGroup(ctx, msg.GroupID)
	if err != nil {
		slog.Error("RecordReimbursement failed", "group_id", msg.GroupID, "error", err)
		return nil, connectError(err)
	}

	o, err := s.reimbursement(group, msg)
	if err != nil {
		slog.Warn("RecordReimbursement rejected", "group_id", group.ID, "error", err)
		return nil, connectError(err)
	}

	if err := s.store.CreateObligation(ctx, o); err != nil {
		slog.Error("RecordReimbursement failed", "group_id", group.ID, "error", err)
		return nil, connectError(err)
	}

	slog.Info("Reimbursement recorded", "group_id", group.ID, "obligation_id", o.ID, "amount", o.Amount)

	return connect.NewResponse(&api.RecordReimbursementResponse{
		Obligation: toAPIObligation(o, group.Currency),
	}), nil
}

func (s *ExpenseService) reimbursement(group *models.Group, msg *api.RecordReimbursementRequest) (*models.Obligation, error) {
	if !group.HasParticipant(msg.FromID) {
		return nil, errs.Invalid("from_id", "unknown participant %q", msg.FromID)
	}
	if !group.HasParticipant(msg.ToID) {
		return nil, errs.Invalid("to_id", "unknown participant %q", msg.ToID)
	}
	if msg.FromID == msg.ToID {
		return nil, errs.Invalid("to_id", "must differ from from_id")
	}

	amount, err := parseAmount(group.Currency, msg.Amount, msg.AmountText)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, errs.Invalid("amount", "must be positive, got %d", amount)
	}

	date := s.clock.Now().UTC().Truncate(24 * time.Hour)
	if msg.Date != "" {
		if date, err = parseDate(msg.Date); err != nil {
			return nil, err
		}
	}

	return &models.Obligation{
		GroupID:         group.ID,
		Title:           "Reimbursement",
		Amount:          amount,
		PayerID:         msg.FromID,
		Date:            date,
		SplitPolicy:     models.SplitByAmount,
		Shares:          []models.Share{{ParticipantID: msg.ToID, Weight: amount}},
		IsReimbursement: true,
		Notes:           msg.Notes,
	}, nil
}

// MaterializeDue runs a materialization pass for one group and reports how
// many obligations it created and how many chains failed.
func (s *ExpenseService) MaterializeDue(ctx context.Context, req *connect.Request[api.MaterializeDueRequest]) (*connect.Response[api.MaterializeDueResponse], error) {
	slog.Info("MaterializeDue request received", "group_id", req.Msg.GroupID)

	if _, err := s.store.GetGroup(ctx, req.Msg.GroupID); err != nil {
		slog.Error("MaterializeDue failed", "group_id", req.Msg.GroupID, "error", err)
		return nil, connectError(err)
	}

	res, err := s.materializer.MaterializeDue(ctx, req.Msg.GroupID)
	if err != nil {
		slog.Error("MaterializeDue failed", "group_id", req.Msg.GroupID, "error", err)
		return nil, connectError(err)
	}

	return connect.NewResponse(&api.MaterializeDueResponse{
		Created: int32(res.Created),
		Failed:  int32(len(res.Failures)),
	}), nil
}
