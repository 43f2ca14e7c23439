// Package api defines the request and response messages of the ledger RPCs.
//
// Messages travel as JSON with lowerCamelCase field names. Amounts are
// integer minor units; the *Display fields carry the same amount formatted in
// the group currency. Dates are calendar days in YYYY-MM-DD form.
package api

// Participant is a member of a group.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Group is a set of participants sharing one currency.
type Group struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Currency     string         `json:"currency"`
	Participants []*Participant `json:"participants"`
	CreatedAt    int64          `json:"createdAt"`
}

// Share is one payee of an obligation. Weight is interpreted by the split policy.
type Share struct {
	ParticipantID string `json:"participantId"`
	Weight        int64  `json:"weight"`
}

// Attachment is a document reference held by the newest occurrence of an obligation.
type Attachment struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	CreatedAt int64  `json:"createdAt"`
}

// Obligation is a recorded expense or reimbursement.
type Obligation struct {
	ID              string        `json:"id"`
	GroupID         string        `json:"groupId"`
	Title           string        `json:"title"`
	Category        string        `json:"category,omitempty"`
	Amount          int64         `json:"amount"`
	AmountDisplay   string        `json:"amountDisplay"`
	PayerID         string        `json:"payerId"`
	Date            string        `json:"date"`
	SplitPolicy     string        `json:"splitPolicy"`
	Shares          []*Share      `json:"shares"`
	Cadence         string        `json:"cadence,omitempty"`
	IsReimbursement bool          `json:"isReimbursement"`
	Notes           string        `json:"notes,omitempty"`
	Attachments     []*Attachment `json:"attachments,omitempty"`
	CreatedAt       int64         `json:"createdAt"`
}

// ObligationInput carries the writable fields of an obligation.
// Either Amount (minor units) or AmountText (decimal, e.g. "12.50") is used;
// AmountText wins when both are set.
type ObligationInput struct {
	Title       string   `json:"title"`
	Category    string   `json:"category,omitempty"`
	Amount      int64    `json:"amount"`
	AmountText  string   `json:"amountText,omitempty"`
	PayerID     string   `json:"payerId"`
	Date        string   `json:"date"`
	SplitPolicy string   `json:"splitPolicy"`
	Shares      []*Share `json:"shares"`
	Cadence     string   `json:"cadence,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

// Balance is a participant's derived position.
type Balance struct {
	ParticipantID   string `json:"participantId"`
	ParticipantName string `json:"participantName"`
	Paid            int64  `json:"paid"`
	Owed            int64  `json:"owed"`
	Net             int64  `json:"net"`
	NetDisplay      string `json:"netDisplay"`
}

// SettlementTransfer is a suggested payment from a debtor to a creditor.
type SettlementTransfer struct {
	From          string `json:"from"`
	To            string `json:"to"`
	Amount        int64  `json:"amount"`
	AmountDisplay string `json:"amountDisplay"`
}

type CreateGroupRequest struct {
	Name         string   `json:"name"`
	Currency     string   `json:"currency,omitempty"`
	Participants []string `json:"participants"`
}

type CreateGroupResponse struct {
	Group *Group `json:"group"`
}

type GetGroupRequest struct {
	GroupID string `json:"groupId"`
}

type GetGroupResponse struct {
	Group *Group `json:"group"`
}

type ListGroupsRequest struct{}

type ListGroupsResponse struct {
	Groups []*Group `json:"groups"`
}

type AddParticipantRequest struct {
	GroupID string `json:"groupId"`
	Name    string `json:"name"`
}

type AddParticipantResponse struct {
	Participant *Participant `json:"participant"`
}

type RemoveParticipantRequest struct {
	GroupID       string `json:"groupId"`
	ParticipantID string `json:"participantId"`
}

type RemoveParticipantResponse struct{}

type GetBalancesRequest struct {
	GroupID string `json:"groupId"`
}

// GetBalancesResponse lists balances in roster order and the suggested
// settlements. Tolerance is the rounding slack the nets were checked against.
type GetBalancesResponse struct {
	Balances    []*Balance            `json:"balances"`
	Settlements []*SettlementTransfer `json:"settlements"`
	Tolerance   int64                 `json:"tolerance"`
}

type CreateObligationRequest struct {
	GroupID    string           `json:"groupId"`
	Obligation *ObligationInput `json:"obligation"`
}

type CreateObligationResponse struct {
	Obligation *Obligation `json:"obligation"`
}

type UpdateObligationRequest struct {
	ObligationID string           `json:"obligationId"`
	Obligation   *ObligationInput `json:"obligation"`
}

type UpdateObligationResponse struct {
	Obligation *Obligation `json:"obligation"`
}

type DeleteObligationRequest struct {
	ObligationID string `json:"obligationId"`
}

type DeleteObligationResponse struct{}

type ListObligationsRequest struct {
	GroupID string `json:"groupId"`
}

type ListObligationsResponse struct {
	Obligations []*Obligation `json:"obligations"`
}

type AddAttachmentRequest struct {
	ObligationID string `json:"obligationId"`
	Name         string `json:"name"`
	URL          string `json:"url"`
}

type AddAttachmentResponse struct {
	Attachment *Attachment `json:"attachment"`
}

// RecordReimbursementRequest records a payment from one participant to another.
type RecordReimbursementRequest struct {
	GroupID    string `json:"groupId"`
	FromID     string `json:"fromId"`
	ToID       string `json:"toId"`
	Amount     int64  `json:"amount"`
	AmountText string `json:"amountText,omitempty"`
	Date       string `json:"date,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

type RecordReimbursementResponse struct {
	Obligation *Obligation `json:"obligation"`
}

type MaterializeDueRequest struct {
	GroupID string `json:"groupId"`
}

type MaterializeDueResponse struct {
	Created int32 `json:"created"`
	Failed  int32 `json:"failed"`
}
