package models

// Balance is one participant's derived position in a group. Never persisted.
type Balance struct {
	// ParticipantID is the participant this balance belongs to.
	ParticipantID string

	// Paid is the sum of obligation amounts where the participant is the payer.
	Paid int64

	// Owed is the sum of computed shares where the participant is a payee.
	Owed int64

	// Net is Paid - Owed. Positive = others owe them, negative = they owe others.
	Net int64
}

// SettlementTransfer is a suggested payment from a debtor to a creditor.
// Recording it is a separate reimbursement obligation.
type SettlementTransfer struct {
	// From is the participant who should pay (debtor).
	From string

	// To is the participant who should receive (creditor).
	To string

	// Amount is the transfer in minor units. Always positive.
	Amount int64
}
