// Package models defines the core domain models for the shared-expense ledger.
//
// # Models
//
//   - Group: a set of participants who share expenses, with one currency
//   - Participant: a member of exactly one group
//   - Obligation: a recorded expense (or reimbursement) paid by one participant
//     and owed by one or more payees through Shares
//   - Share: one payee's weight within an obligation; its meaning depends on
//     the obligation's SplitPolicy
//   - Attachment: a document reference shared across all occurrences of a
//     recurring obligation
//   - RecurrenceLink: one step of a recurrence chain
//   - Balance, SettlementTransfer: derived read models, never persisted
//
// # Design Principles
//
//  1. **Integer money**: all amounts are int64 minor units (cents)
//  2. **Avoid circular references**: Use ID strings instead of pointers for relationships
//  3. **Append-only chains**: a materialized RecurrenceLink is history; the
//     successor gets a new link instead of mutating the old one
package models
