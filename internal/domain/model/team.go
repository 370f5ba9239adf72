package model

import (
	"time"
)

type Team struct {
	ID           string    `json:"id"`
	TournamentID string    `json:"tournament_id"`
	Name         string    `json:"name"`
	InviteCode   string    `json:"invite_code,omitempty"` // visible to members only
	LeaderUserID string    `json:"leader_user_id"`
	CreatedAt    time.Time `json:"created_at"`

	Members []TeamMember `json:"members,omitempty"`
	Score   *TeamScore   `json:"score,omitempty"`
}

type TeamMember struct {
	ID          string    `json:"id"`
	TeamID      string    `json:"team_id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
}

// TeamScore is a team's running total within its tournament, kept in lockstep
// with tournament_submitted rows.
type TeamScore struct {
	ID           string    `json:"id"`
	TeamID       string    `json:"team_id"`
	TournamentID string    `json:"tournament_id"`
	Total        int       `json:"total"`
	UpdatedAt    time.Time `json:"updated_at"`
}
