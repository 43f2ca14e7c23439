package models

// Group represents a set of participants who share expenses.
// Groups own obligations, participants and recurrence chains.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string

	// Name is the display name of the group (e.g., "Roommates", "Work Lunch").
	Name string

	// Currency is the ISO 4217 code every amount in the group is denominated in.
	Currency string

	// Participants is the group roster in insertion order.
	// The order is the tie-break order for settlement suggestions.
	Participants []Participant

	// CreatedAt is the Unix timestamp when the group was created.
	CreatedAt int64
}

// Participant is a member of exactly one group.
// Once an obligation references a participant it can no longer be removed.
type Participant struct {
	// ID is the unique identifier for the participant (UUID format).
	ID string

	// GroupID is the group this participant belongs to.
	GroupID string

	// Name is the display name, unique within the group.
	Name string

	// CreatedAt is the Unix timestamp when the participant was added.
	CreatedAt int64
}

// ParticipantIDs returns the roster IDs in insertion order.
func (g *Group) ParticipantIDs() []string {
	ids := make([]string, len(g.Participants))
	for i, p := range g.Participants {
		ids[i] = p.ID
	}
	return ids
}

// HasParticipant reports whether id is on the group roster.
func (g *Group) HasParticipant(id string) bool {
	for _, p := range g.Participants {
		if p.ID == id {
			return true
		}
	}
	return false
}
