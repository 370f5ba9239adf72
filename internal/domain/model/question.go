package model

import (
	"time"
)

type QuestionDifficulty string
type QuestionMode string

const (
	DifficultyEasy   QuestionDifficulty = "Easy"
	DifficultyMedium QuestionDifficulty = "Medium"
	DifficultyHard   QuestionDifficulty = "Hard"

	ModePractice    QuestionMode = "Practice"
	ModeTournament  QuestionMode = "Tournament"
	ModeUnpublished QuestionMode = "Unpublished"
)

// MaxHintsPerQuestion caps how many hints a question may carry.
const MaxHintsPerQuestion = 3

type Question struct {
	ID           string             `json:"id"`
	Title        string             `json:"title"`
	Description  string             `json:"description"`
	Answer       []byte             `json:"-"` // nonce||ciphertext, never serialized
	Points       int                `json:"points"`
	Difficulty   QuestionDifficulty `json:"difficulty"`
	CategoryID   string             `json:"category_id"`
	CategoryName string             `json:"category_name,omitempty"`
	FilePath     *string            `json:"file_path,omitempty"` // admin only view
	Author       string             `json:"author"`
	Practice     bool               `json:"practice"`
	Tournament   bool               `json:"tournament"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	Hints        []Hint             `json:"hints,omitempty"`
}

// Mode derives the publication context from the two flags. The flags are
// mutually exclusive; both false means unpublished.
func (q *Question) Mode() QuestionMode {
	switch {
	case q.Practice:
		return ModePractice
	case q.Tournament:
		return ModeTournament
	default:
		return ModeUnpublished
	}
}

// HasFile reports whether an attachment exists without exposing its path.
func (q *Question) HasFile() bool {
	return q.FilePath != nil && *q.FilePath != ""
}

type Hint struct {
	ID          string `json:"id"`
	QuestionID  string `json:"question_id"`
	Description string `json:"description,omitempty"` // hidden until revealed
	Penalty     int    `json:"penalty"`
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Submitted marks a practice question solved by a user. Its existence implies
// the user's point total already includes the question's value.
type Submitted struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	QuestionID string    `json:"question_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// HintUsed is the idempotency marker for a hint reveal. TeamID is nil on the
// practice path and set on the tournament path.
type HintUsed struct {
	ID        string    `json:"id"`
	HintID    string    `json:"hint_id"`
	UserID    string    `json:"user_id"`
	TeamID    *string   `json:"team_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
