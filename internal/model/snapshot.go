package model

import "time"

// MemberSnapshot is the part of a membership that scoring looks at.
type MemberSnapshot struct {
	UserID string
	Weight float64
	IsNew  bool
}

// CheckInStats summarises a team's check-in history. First and Last are
// zero when Count is 0.
type CheckInStats struct {
	Count int
	First time.Time
	Last  time.Time
}

// TeamSnapshot is a consistent view of one team's members and check-ins,
// read at a single point in time.
type TeamSnapshot struct {
	TeamID   string
	TeamName string
	Members  []MemberSnapshot
	CheckIns CheckInStats
}

// RankingEntry is one row of the leaderboard.
type RankingEntry struct {
	TeamID   string  `json:"team_id"`
	TeamName string  `json:"team_name"`
	Score    float64 `json:"score"`
}
