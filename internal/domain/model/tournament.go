package model

import (
	"time"
)

type TournamentVisibility string

const (
	VisibilityPublic  TournamentVisibility = "public"
	VisibilityPrivate TournamentVisibility = "private"
)

type Tournament struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	EnrollStart   time.Time            `json:"enroll_start"`
	EnrollEnd     time.Time            `json:"enroll_end"`
	EventStart    time.Time            `json:"event_start"`
	EventEnd      time.Time            `json:"event_end"`
	Visibility    TournamentVisibility `json:"visibility"`
	JoinCode      *string              `json:"join_code,omitempty"` // private tournaments, admin only view
	TeamLimit     int                  `json:"team_limit"`
	TeamSizeLimit int                  `json:"team_size_limit"`
	CreatedAt     time.Time            `json:"created_at"`
}

// ValidateWindows checks enroll_start < enroll_end <= event_start < event_end.
func (t *Tournament) ValidateWindows() bool {
	return t.EnrollStart.Before(t.EnrollEnd) &&
		!t.EventStart.Before(t.EnrollEnd) &&
		t.EventStart.Before(t.EventEnd)
}

// EnrollmentOpen reports whether now falls in [enroll_start, enroll_end).
func (t *Tournament) EnrollmentOpen(now time.Time) bool {
	now = now.UTC()
	return !now.Before(t.EnrollStart.UTC()) && now.Before(t.EnrollEnd.UTC())
}

// EventOpen reports whether now falls in [event_start, event_end). The start
// boundary is inclusive, the end exclusive.
func (t *Tournament) EventOpen(now time.Time) bool {
	now = now.UTC()
	return !now.Before(t.EventStart.UTC()) && now.Before(t.EventEnd.UTC())
}

// QuestionTournament attaches a question to a tournament. Its surrogate id is
// the join key tournament submissions reference.
type QuestionTournament struct {
	ID           string `json:"id"`
	QuestionID   string `json:"question_id"`
	TournamentID string `json:"tournament_id"`
}

// TournamentSubmitted mirrors Submitted for tournament play, keyed by
// (team, question_tournament) for the solved-already check.
type TournamentSubmitted struct {
	ID                   string    `json:"id"`
	UserID               string    `json:"user_id"`
	TournamentID         string    `json:"tournament_id"`
	QuestionTournamentID string    `json:"question_tournament_id"`
	TeamID               string    `json:"team_id"`
	CreatedAt            time.Time `json:"created_at"`
}

// TournamentPoints is a user's running total within one tournament.
type TournamentPoints struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	TournamentID string    `json:"tournament_id"`
	Points       int       `json:"points"`
	UpdatedAt    time.Time `json:"updated_at"`
}
