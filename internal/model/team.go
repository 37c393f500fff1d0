package model

import "time"

// DefaultMemberWeight is the participation multiplier given to a member
// when they create or join a team.
const DefaultMemberWeight = 1.0

// Team is a named collective. Names need not be unique.
type Team struct {
	ID        string    `json:"team_id"`
	Name      string    `json:"team_name"`
	CreatedAt time.Time `json:"created_at"`
}

// Membership relates one user to one team. A (TeamID, UserID) pair exists
// at most once.
type Membership struct {
	TeamID   string    `json:"team_id"`
	UserID   string    `json:"user_id"`
	Weight   float64   `json:"weight"`
	JoinedAt time.Time `json:"joined_at"`
}

// CheckIn is an append-only engagement event for a team. PostURL is an
// opaque reference (usually a social post); CheckedInAt is assigned by the
// server clock, never by the client.
type CheckIn struct {
	ID          string    `json:"id"`
	TeamID      string    `json:"team_id"`
	UserID      string    `json:"user_id"`
	PostURL     string    `json:"post_url"`
	CheckedInAt time.Time `json:"checked_in_at"`
}
