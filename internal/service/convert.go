package service

import (
	"strings"
	"time"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/errs"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
	"github.com/mmynk/splitledger/pkg/api"
)

// dateLayout is the wire format of obligation dates.
const dateLayout = "2006-01-02"

func toAPIGroup(g *models.Group) *api.Group {
	participants := make([]*api.Participant, len(g.Participants))
	for i, p := range g.Participants {
		participants[i] = &api.Participant{ID: p.ID, Name: p.Name}
	}
	return &api.Group{
		ID:           g.ID,
		Name:         g.Name,
		Currency:     g.Currency,
		Participants: participants,
		CreatedAt:    g.CreatedAt,
	}
}

func toAPIObligation(o *models.Obligation, currency string) *api.Obligation {
	shares := make([]*api.Share, len(o.Shares))
	for i, s := range o.Shares {
		shares[i] = &api.Share{ParticipantID: s.ParticipantID, Weight: s.Weight}
	}
	var attachments []*api.Attachment
	for _, a := range o.Attachments {
		attachments = append(attachments, &api.Attachment{
			ID:        a.ID,
			Name:      a.Name,
			URL:       a.URL,
			CreatedAt: a.CreatedAt,
		})
	}
	return &api.Obligation{
		ID:              o.ID,
		GroupID:         o.GroupID,
		Title:           o.Title,
		Category:        o.Category,
		Amount:          o.Amount,
		AmountDisplay:   money.Format(currency, o.Amount),
		PayerID:         o.PayerID,
		Date:            o.Date.Format(dateLayout),
		SplitPolicy:     string(o.SplitPolicy),
		Shares:          shares,
		Cadence:         string(o.Cadence),
		IsReimbursement: o.IsReimbursement,
		Notes:           o.Notes,
		Attachments:     attachments,
		CreatedAt:       o.CreatedAt,
	}
}

// parseDate parses a YYYY-MM-DD calendar day as midnight UTC.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errs.Invalid("date", "is required")
	}
	d, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, errs.Invalid("date", "want YYYY-MM-DD, got %q", s)
	}
	return d, nil
}

// parseAmount prefers the decimal text form when present.
func parseAmount(currency string, minor int64, text string) (int64, error) {
	if text == "" {
		return minor, nil
	}
	amt, err := money.Parse(currency, text)
	if err != nil {
		return 0, errs.Invalid("amount", "%v", err)
	}
	return amt, nil
}

// obligationFromInput validates in against the group roster and builds the
// obligation fields it describes. Identity fields are left to the caller.
func obligationFromInput(group *models.Group, in *api.ObligationInput) (*models.Obligation, error) {
	if in == nil {
		return nil, errs.Invalid("obligation", "is required")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, errs.Invalid("title", "is required")
	}

	amount, err := parseAmount(group.Currency, in.Amount, in.AmountText)
	if err != nil {
		return nil, err
	}
	date, err := parseDate(in.Date)
	if err != nil {
		return nil, err
	}

	policy := models.SplitPolicy(in.SplitPolicy)
	if policy == "" {
		policy = models.SplitEvenly
	}
	cadence := models.Cadence(in.Cadence)
	if !cadence.Valid() {
		return nil, errs.Invalid("cadence", "unknown cadence %q", in.Cadence)
	}

	if !group.HasParticipant(in.PayerID) {
		return nil, errs.Invalid("payer_id", "unknown participant %q", in.PayerID)
	}
	shares := make([]models.Share, 0, len(in.Shares))
	for _, s := range in.Shares {
		if s == nil {
			continue
		}
		if !group.HasParticipant(s.ParticipantID) {
			return nil, errs.Invalid("shares", "unknown participant %q", s.ParticipantID)
		}
		weight := s.Weight
		if policy == models.SplitEvenly && weight == 0 {
			weight = 1
		}
		shares = append(shares, models.Share{ParticipantID: s.ParticipantID, Weight: weight})
	}
	if err := calculator.ValidateShares(amount, policy, shares); err != nil {
		return nil, err
	}

	return &models.Obligation{
		GroupID:     group.ID,
		Title:       title,
		Category:    strings.TrimSpace(in.Category),
		Amount:      amount,
		PayerID:     in.PayerID,
		Date:        date,
		SplitPolicy: policy,
		Shares:      shares,
		Cadence:     cadence,
		Notes:       in.Notes,
	}, nil
}
