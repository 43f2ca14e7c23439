package models

import "time"

// Cadence is the period of a recurring obligation.
type Cadence string

const (
	CadenceNone    Cadence = ""
	CadenceDaily   Cadence = "DAILY"
	CadenceWeekly  Cadence = "WEEKLY"
	CadenceMonthly Cadence = "MONTHLY"
)

// Valid reports whether c is one of the known cadences, including none.
func (c Cadence) Valid() bool {
	switch c {
	case CadenceNone, CadenceDaily, CadenceWeekly, CadenceMonthly:
		return true
	}
	return false
}

// RecurrenceLink is one step of a recurrence chain.
//
// A link is PENDING while MaterializedAt is zero and MATERIALIZED afterwards.
// Materialization never rewrites a materialized link: it creates the next
// obligation and a fresh PENDING link pointing at it. Each chain has exactly
// one PENDING link at a time.
type RecurrenceLink struct {
	// ID is the unique identifier for the link (UUID format).
	ID string

	// ChainID identifies the chain; every link of one chain shares it.
	ChainID string

	// GroupID is the group owning the chain.
	GroupID string

	// Cadence is the chain's period.
	Cadence Cadence

	// ObligationID is the chain's current frame: the obligation this link generated from.
	ObligationID string

	// NextDate is when the successor of ObligationID is due.
	NextDate time.Time

	// MaterializedAt is the Unix timestamp when this link produced its successor.
	// Zero means PENDING.
	MaterializedAt int64

	// CreatedAt is the Unix timestamp when the link was created.
	CreatedAt int64
}

// IsPending reports whether the link has not yet produced its successor.
func (l *RecurrenceLink) IsPending() bool {
	return l.MaterializedAt == 0
}
