package models

import "time"

// SplitPolicy decides how an obligation's amount is divided among its payees.
type SplitPolicy string

const (
	// SplitEvenly divides the amount by the number of payees. Share weights are ignored.
	SplitEvenly SplitPolicy = "EVENLY"
	// SplitByShares divides the amount proportionally to integer weights.
	SplitByShares SplitPolicy = "BY_SHARES"
	// SplitByAmount uses each weight verbatim as the payee's share in minor units.
	SplitByAmount SplitPolicy = "BY_AMOUNT"
	// SplitByPercentage uses weights as basis points out of 10000.
	SplitByPercentage SplitPolicy = "BY_PERCENTAGE"
)

// BasisPointsTotal is the sum required for BY_PERCENTAGE weights.
const BasisPointsTotal = 10000

// Valid reports whether p is one of the known policies.
func (p SplitPolicy) Valid() bool {
	switch p {
	case SplitEvenly, SplitByShares, SplitByAmount, SplitByPercentage:
		return true
	}
	return false
}

// Obligation represents a recorded shared expense (or reimbursement).
// Obligations and their shares are always written as a unit.
type Obligation struct {
	// ID is the unique identifier for the obligation (UUID format).
	ID string

	// GroupID is the group this obligation belongs to.
	GroupID string

	// Title is the human-readable name (e.g., "Rent", "Groceries").
	Title string

	// Category is a free-form classification label. May be empty.
	Category string

	// Amount is the total in minor units. Never negative.
	Amount int64

	// PayerID is the participant who paid. The payer need not be a payee.
	PayerID string

	// Date is the occurrence date (midnight UTC).
	Date time.Time

	// SplitPolicy decides how Shares are interpreted.
	SplitPolicy SplitPolicy

	// Shares are the payees in insertion order. At least one is required.
	Shares []Share

	// Cadence is the recurrence cadence; CadenceNone for one-off obligations.
	Cadence Cadence

	// IsReimbursement marks a recorded payment between participants.
	IsReimbursement bool

	// Notes is an optional free-text description.
	Notes string

	// Attachments are loaded with the obligation; they are written separately.
	Attachments []Attachment

	// CreatedAt is the Unix timestamp when the obligation was created.
	CreatedAt int64
}

// Share represents one payee's portion-defining record within an obligation.
type Share struct {
	// ParticipantID is the payee.
	ParticipantID string

	// Weight is a share count, a minor-unit amount or basis points
	// depending on the obligation's SplitPolicy.
	Weight int64
}

// Attachment is a document reference. Recurring occurrences share attachments:
// materialization moves them to the newest obligation instead of copying.
type Attachment struct {
	// ID is the unique identifier for the attachment (UUID format).
	ID string

	// ObligationID is the obligation currently holding the attachment.
	ObligationID string

	// Name is the display file name.
	Name string

	// URL locates the stored document.
	URL string

	// CreatedAt is the Unix timestamp when the attachment was added.
	CreatedAt int64
}

// References reports whether the obligation names participantID as payer or payee.
func (o *Obligation) References(participantID string) bool {
	if o.PayerID == participantID {
		return true
	}
	for _, s := range o.Shares {
		if s.ParticipantID == participantID {
			return true
		}
	}
	return false
}
