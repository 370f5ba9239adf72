package model

import "time"

// LeaderboardEntry is one ranked row. Rank is a 1-based dense ordinal derived
// from sort position, never stored.
type LeaderboardEntry struct {
	Rank      int       `json:"rank"`
	ID        string    `json:"id"`   // user or team id
	Name      string    `json:"name"` // display name or team name
	Points    int       `json:"points"`
	UpdatedAt time.Time `json:"updated_at"`
}
