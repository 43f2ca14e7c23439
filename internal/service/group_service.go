package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/errs"
	"github.com/mmynk/splitledger/internal/metrics"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
	"github.com/mmynk/splitledger/internal/recurrence"
	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/pkg/api"
	"github.com/mmynk/splitledger/pkg/api/apiconnect"
)

// Ensure GroupService implements the handler interface
var _ apiconnect.GroupServiceHandler = (*GroupService)(nil)

// GroupService implements the Connect GroupService
type GroupService struct {
	store           storage.Store
	materializer    *recurrence.Materializer
	defaultCurrency string
}

// NewGroupService creates a new GroupService with the given storage backend.
// Groups created without a currency use defaultCurrency.
func NewGroupService(store storage.Store, materializer *recurrence.Materializer, defaultCurrency string) *GroupService {
	return &GroupService{
		store:           store,
		materializer:    materializer,
		defaultCurrency: defaultCurrency,
	}
}

// CreateGroup creates a new group and its roster.
func (s *GroupService) CreateGroup(ctx context.Context, req *connect.Request[api.CreateGroupRequest]) (*connect.Response[api.CreateGroupResponse], error) {
	slog.Info("CreateGroup request received",
		"name", req.Msg.Name,
		"participants_count", len(req.Msg.Participants),
	)

	group, err := s.newGroup(req.Msg)
	if err != nil {
		slog.Warn("CreateGroup rejected", "error", err)
		return nil, connectError(err)
	}

	if err := s.store.CreateGroup(ctx, group); err != nil {
		slog.Error("CreateGroup failed", "error", err)
		return nil, connectError(err)
	}

	slog.Info("Group created", "group_id", group.ID)

	return connect.NewResponse(&api.CreateGroupResponse{Group: toAPIGroup(group)}), nil
}

func (s *GroupService) newGroup(msg *api.CreateGroupRequest) (*models.Group, error) {
	name := strings.TrimSpace(msg.Name)
	if name == "" {
		return nil, errs.Invalid("name", "is required")
	}

	currency := strings.ToUpper(strings.TrimSpace(msg.Currency))
	if currency == "" {
		currency = s.defaultCurrency
	}
	if !money.ValidCurrency(currency) {
		return nil, errs.Invalid("currency", "unknown currency %q", currency)
	}

	group := &models.Group{Name: name, Currency: currency}
	seen := make(map[string]bool, len(msg.Participants))
	for _, p := range msg.Participants {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, errs.Invalid("participants", "names must not be empty")
		}
		if seen[p] {
			return nil, errs.Invalid("participants", "duplicate name %q", p)
		}
		seen[p] = true
		group.Participants = append(group.Participants, models.Participant{Name: p})
	}
	return group, nil
}

// GetGroup retrieves a group by ID.
func (s *GroupService) GetGroup(ctx context.Context, req *connect.Request[api.GetGroupRequest]) (*connect.Response[api.GetGroupResponse], error) {
	slog.Info("GetGroup request received", "group_id", req.Msg.GroupID)

	group, err := s.store.GetGroup(ctx, req.Msg.GroupID)
	if err != nil {
		slog.Error("GetGroup failed", "group_id", req.Msg.GroupID, "error", err)
		return nil, connectError(err)
	}

	return connect.NewResponse(&api.GetGroupResponse{Group: toAPIGroup(group)}), nil
}

// ListGroups retrieves all groups.
func (s *GroupService) ListGroups(ctx context.Context, req *connect.Request[api.ListGroupsRequest]) (*connect.Response[api.ListGroupsResponse], error) {
	slog.Info("ListGroups request received")

	groups, err := s.store.ListGroups(ctx)
	if err != nil {
		slog.Error("ListGroups failed", "error", err)
		return nil, connectError(err)
	}

	out := make([]*api.Group, len(groups))
	for i, g := range groups {
		out[i] = toAPIGroup(g)
	}

	slog.Info("ListGroups successful", "count", len(out))

	return connect.NewResponse(&api.ListGroupsResponse{Groups: out}), nil
}

// AddParticipant appends a participant to a group's roster.
func (s *GroupService) AddParticipant(ctx context.Context, req *connect.Request[api.AddParticipantRequest]) (*connect.Response[api.AddParticipantResponse], error) {
	slog.Info("AddParticipant request received", "group_id", req.Msg.GroupID, "name", req.Msg.Name)

	name := strings.TrimSpace(req.Msg.Name)
	if name == "" {
		return nil, connectError(errs.Invalid("name", "is required"))
	}

	p := &models.Participant{GroupID: req.Msg.GroupID, Name: name}
	if err := s.store.AddParticipant(ctx, p); err != nil {
		slog.Error("AddParticipant failed", "group_id", req.Msg.GroupID, "error", err)
		return nil, connectError(err)
	}

	slog.Info("Participant added", "group_id", p.GroupID, "participant_id", p.ID)

	return connect.NewResponse(&api.AddParticipantResponse{
		Participant: &api.Participant{ID: p.ID, Name: p.Name},
	}), nil
}

// RemoveParticipant removes a participant no obligation references.
func (s *GroupService) RemoveParticipant(ctx context.Context, req *connect.Request[api.RemoveParticipantRequest]) (*connect.Response[api.RemoveParticipantResponse], error) {
	slog.Info("RemoveParticipant request received",
		"group_id", req.Msg.GroupID,
		"participant_id", req.Msg.ParticipantID,
	)

	if err := s.store.RemoveParticipant(ctx, req.Msg.GroupID, req.Msg.ParticipantID); err != nil {
		slog.Error("RemoveParticipant failed", "participant_id", req.Msg.ParticipantID, "error", err)
		return nil, connectError(err)
	}

	return connect.NewResponse(&api.RemoveParticipantResponse{}), nil
}

// GetBalances computes every participant's net position and the transfers
// that would settle the group. Due recurrences are materialized first.
func (s *GroupService) GetBalances(ctx context.Context, req *connect.Request[api.GetBalancesRequest]) (*connect.Response[api.GetBalancesResponse], error) {
	slog.Info("GetBalances request received", "group_id", req.Msg.GroupID)

	group, err := s.store.GetGroup(ctx, req.Msg.GroupID)
	if err != nil {
		slog.Error("GetBalances failed", "group_id", req.Msg.GroupID, "error", err)
		return nil, connectError(err)
	}

	if err := catchUp(ctx, s.materializer, group.ID); err != nil {
		logConsistency(err)
		return nil, connectError(err)
	}

	obligations, err := s.store.ListObligations(ctx, group.ID)
	if err != nil {
		slog.Error("GetBalances failed", "group_id", group.ID, "error", err)
		return nil, connectError(err)
	}

	balances, err := calculator.Aggregate(group.ParticipantIDs(), obligations)
	if err != nil {
		// A stored obligation that no longer validates is an inconsistency.
		err = &errs.ConsistencyError{GroupID: group.ID, Reason: err.Error()}
	} else {
		err = calculator.CheckConsistency(group.ID, balances, obligations)
	}
	if err != nil {
		logConsistency(err)
		metrics.ConsistencyErrors.Inc()
		return nil, connectError(err)
	}

	names := make(map[string]string, len(group.Participants))
	for _, p := range group.Participants {
		names[p.ID] = p.Name
	}

	resp := &api.GetBalancesResponse{
		Tolerance: calculator.RoundingTolerance(obligations),
	}
	for _, b := range balances {
		resp.Balances = append(resp.Balances, &api.Balance{
			ParticipantID:   b.ParticipantID,
			ParticipantName: names[b.ParticipantID],
			Paid:            b.Paid,
			Owed:            b.Owed,
			Net:             b.Net,
			NetDisplay:      money.Format(group.Currency, b.Net),
		})
	}
	for _, t := range calculator.SuggestSettlements(balances) {
		resp.Settlements = append(resp.Settlements, &api.SettlementTransfer{
			From:          t.From,
			To:            t.To,
			Amount:        t.Amount,
			AmountDisplay: money.Format(group.Currency, t.Amount),
		})
	}

	slog.Info("GetBalances successful",
		"group_id", group.ID,
		"obligations_count", len(obligations),
		"settlements_count", len(resp.Settlements),
	)

	return connect.NewResponse(resp), nil
}

func logConsistency(err error) {
	var cerr *errs.ConsistencyError
	if !errors.As(err, &cerr) {
		slog.Error("ledger inconsistent", "error", err)
		return
	}
	slog.Error("ledger inconsistent",
		"group_id", cerr.GroupID,
		"residual", cerr.Residual,
		"tolerance", cerr.Tolerance,
		"reason", cerr.Reason,
	)
}
