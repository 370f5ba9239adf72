package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ctf_arena/internal/common"
	"ctf_arena/internal/domain/model"

	"github.com/jackc/pgx/v5/pgconn"
)

type SubmissionRepository interface {
	// Practice submissions.
	FindSubmitted(ctx context.Context, userID, questionID string) (*model.Submitted, error)
	CreateSubmitted(ctx context.Context, tx *sql.Tx, s *model.Submitted) error
	ListSubmittedByQuestion(ctx context.Context, questionID string) ([]model.Submitted, error)
	DeleteSubmittedByQuestion(ctx context.Context, tx *sql.Tx, questionID string) error

	// Tournament submissions, keyed by (team, question_tournament link).
	FindTournamentSubmitted(ctx context.Context, teamID, questionTournamentID string) (*model.TournamentSubmitted, error)
	CreateTournamentSubmitted(ctx context.Context, tx *sql.Tx, s *model.TournamentSubmitted) error
	ListTournamentSubmittedByLink(ctx context.Context, questionTournamentID string) ([]model.TournamentSubmitted, error)
	DeleteTournamentSubmittedByLink(ctx context.Context, tx *sql.Tx, questionTournamentID string) error

	// Hint-use idempotency markers.
	FindHintUsedByUser(ctx context.Context, hintID, userID string) (*model.HintUsed, error)
	FindHintUsedByTeam(ctx context.Context, hintID, teamID string) (*model.HintUsed, error)
	CreateHintUsed(ctx context.Context, tx *sql.Tx, hu *model.HintUsed) error
	DeleteHintUsedByQuestion(ctx context.Context, tx *sql.Tx, questionID string) error
	ListHintUsedByQuestionAndTournament(ctx context.Context, questionID, tournamentID string) ([]model.HintUsed, error)
	DeleteHintUsedByQuestionAndTournament(ctx context.Context, tx *sql.Tx, questionID, tournamentID string) error
}

type pgSubmissionRepository struct {
	db *sql.DB
}

func NewPgSubmissionRepository(db *sql.DB) SubmissionRepository {
	return &pgSubmissionRepository{db: db}
}

func (r *pgSubmissionRepository) FindSubmitted(ctx context.Context, userID, questionID string) (*model.Submitted, error) {
	query := `SELECT id, user_id, question_id, created_at FROM submitted
	          WHERE user_id = $1 AND question_id = $2`
	s := &model.Submitted{}
	err := r.db.QueryRowContext(ctx, query, userID, questionID).Scan(&s.ID, &s.UserID, &s.QuestionID, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgSubmissionRepository.FindSubmitted: %w", err)
	}
	return s, nil
}

func (r *pgSubmissionRepository) CreateSubmitted(ctx context.Context, tx *sql.Tx, s *model.Submitted) error {
	query := `INSERT INTO submitted (id, user_id, question_id) VALUES ($1, $2, $3)`
	_, err := pick(r.db, tx).ExecContext(ctx, query, s.ID, s.UserID, s.QuestionID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("question already submitted: %w", common.ErrConflict)
		}
		return fmt.Errorf("pgSubmissionRepository.CreateSubmitted: %w", err)
	}
	return nil
}

func (r *pgSubmissionRepository) ListSubmittedByQuestion(ctx context.Context, questionID string) ([]model.Submitted, error) {
	query := `SELECT id, user_id, question_id, created_at FROM submitted WHERE question_id = $1`
	rows, err := r.db.QueryContext(ctx, query, questionID)
	if err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.ListSubmittedByQuestion query: %w", err)
	}
	defer rows.Close()

	var subs []model.Submitted
	for rows.Next() {
		var s model.Submitted
		if err := rows.Scan(&s.ID, &s.UserID, &s.QuestionID, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgSubmissionRepository.ListSubmittedByQuestion scan: %w", err)
		}
		subs = append(subs, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.ListSubmittedByQuestion rows.Err: %w", err)
	}
	return subs, nil
}

func (r *pgSubmissionRepository) DeleteSubmittedByQuestion(ctx context.Context, tx *sql.Tx, questionID string) error {
	if _, err := pick(r.db, tx).ExecContext(ctx, `DELETE FROM submitted WHERE question_id = $1`, questionID); err != nil {
		return fmt.Errorf("pgSubmissionRepository.DeleteSubmittedByQuestion: %w", err)
	}
	return nil
}

func (r *pgSubmissionRepository) FindTournamentSubmitted(ctx context.Context, teamID, questionTournamentID string) (*model.TournamentSubmitted, error) {
	query := `SELECT id, user_id, tournament_id, question_tournament_id, team_id, created_at
	          FROM tournament_submitted
	          WHERE team_id = $1 AND question_tournament_id = $2`
	s := &model.TournamentSubmitted{}
	err := r.db.QueryRowContext(ctx, query, teamID, questionTournamentID).Scan(
		&s.ID, &s.UserID, &s.TournamentID, &s.QuestionTournamentID, &s.TeamID, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgSubmissionRepository.FindTournamentSubmitted: %w", err)
	}
	return s, nil
}

func (r *pgSubmissionRepository) CreateTournamentSubmitted(ctx context.Context, tx *sql.Tx, s *model.TournamentSubmitted) error {
	query := `INSERT INTO tournament_submitted (id, user_id, tournament_id, question_tournament_id, team_id)
	          VALUES ($1, $2, $3, $4, $5)`
	_, err := pick(r.db, tx).ExecContext(ctx, query, s.ID, s.UserID, s.TournamentID, s.QuestionTournamentID, s.TeamID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("question already solved by this team: %w", common.ErrConflict)
		}
		return fmt.Errorf("pgSubmissionRepository.CreateTournamentSubmitted: %w", err)
	}
	return nil
}

func (r *pgSubmissionRepository) ListTournamentSubmittedByLink(ctx context.Context, questionTournamentID string) ([]model.TournamentSubmitted, error) {
	query := `SELECT id, user_id, tournament_id, question_tournament_id, team_id, created_at
	          FROM tournament_submitted WHERE question_tournament_id = $1`
	rows, err := r.db.QueryContext(ctx, query, questionTournamentID)
	if err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.ListTournamentSubmittedByLink query: %w", err)
	}
	defer rows.Close()

	var subs []model.TournamentSubmitted
	for rows.Next() {
		var s model.TournamentSubmitted
		if err := rows.Scan(&s.ID, &s.UserID, &s.TournamentID, &s.QuestionTournamentID, &s.TeamID, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgSubmissionRepository.ListTournamentSubmittedByLink scan: %w", err)
		}
		subs = append(subs, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.ListTournamentSubmittedByLink rows.Err: %w", err)
	}
	return subs, nil
}

func (r *pgSubmissionRepository) DeleteTournamentSubmittedByLink(ctx context.Context, tx *sql.Tx, questionTournamentID string) error {
	if _, err := pick(r.db, tx).ExecContext(ctx, `DELETE FROM tournament_submitted WHERE question_tournament_id = $1`, questionTournamentID); err != nil {
		return fmt.Errorf("pgSubmissionRepository.DeleteTournamentSubmittedByLink: %w", err)
	}
	return nil
}

func (r *pgSubmissionRepository) FindHintUsedByUser(ctx context.Context, hintID, userID string) (*model.HintUsed, error) {
	query := `SELECT id, hint_id, user_id, team_id, created_at FROM hint_used
	          WHERE hint_id = $1 AND user_id = $2 AND team_id IS NULL`
	return r.scanHintUsed(r.db.QueryRowContext(ctx, query, hintID, userID), "FindHintUsedByUser")
}

func (r *pgSubmissionRepository) FindHintUsedByTeam(ctx context.Context, hintID, teamID string) (*model.HintUsed, error) {
	query := `SELECT id, hint_id, user_id, team_id, created_at FROM hint_used
	          WHERE hint_id = $1 AND team_id = $2`
	return r.scanHintUsed(r.db.QueryRowContext(ctx, query, hintID, teamID), "FindHintUsedByTeam")
}

func (r *pgSubmissionRepository) scanHintUsed(row *sql.Row, method string) (*model.HintUsed, error) {
	hu := &model.HintUsed{}
	err := row.Scan(&hu.ID, &hu.HintID, &hu.UserID, &hu.TeamID, &hu.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgSubmissionRepository.%s: %w", method, err)
	}
	return hu, nil
}

func (r *pgSubmissionRepository) CreateHintUsed(ctx context.Context, tx *sql.Tx, hu *model.HintUsed) error {
	query := `INSERT INTO hint_used (id, hint_id, user_id, team_id) VALUES ($1, $2, $3, $4)`
	_, err := pick(r.db, tx).ExecContext(ctx, query, hu.ID, hu.HintID, hu.UserID, hu.TeamID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("hint already used: %w", common.ErrConflict)
		}
		return fmt.Errorf("pgSubmissionRepository.CreateHintUsed: %w", err)
	}
	return nil
}

func (r *pgSubmissionRepository) DeleteHintUsedByQuestion(ctx context.Context, tx *sql.Tx, questionID string) error {
	query := `DELETE FROM hint_used WHERE hint_id IN (SELECT id FROM hints WHERE question_id = $1)`
	if _, err := pick(r.db, tx).ExecContext(ctx, query, questionID); err != nil {
		return fmt.Errorf("pgSubmissionRepository.DeleteHintUsedByQuestion: %w", err)
	}
	return nil
}

// ListHintUsedByQuestionAndTournament returns the team hint markers for one
// question within one tournament; detach refunds each marker's charge before
// deleting it.
func (r *pgSubmissionRepository) ListHintUsedByQuestionAndTournament(ctx context.Context, questionID, tournamentID string) ([]model.HintUsed, error) {
	query := `SELECT hu.id, hu.hint_id, hu.user_id, hu.team_id, hu.created_at
	          FROM hint_used hu
	          JOIN hints h ON hu.hint_id = h.id
	          JOIN teams t ON hu.team_id = t.id
	          WHERE h.question_id = $1 AND t.tournament_id = $2`
	rows, err := r.db.QueryContext(ctx, query, questionID, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.ListHintUsedByQuestionAndTournament query: %w", err)
	}
	defer rows.Close()

	var uses []model.HintUsed
	for rows.Next() {
		var hu model.HintUsed
		if err := rows.Scan(&hu.ID, &hu.HintID, &hu.UserID, &hu.TeamID, &hu.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgSubmissionRepository.ListHintUsedByQuestionAndTournament scan: %w", err)
		}
		uses = append(uses, hu)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.ListHintUsedByQuestionAndTournament rows.Err: %w", err)
	}
	return uses, nil
}

// DeleteHintUsedByQuestionAndTournament clears team hint markers for one
// question within one tournament, leaving practice markers untouched.
func (r *pgSubmissionRepository) DeleteHintUsedByQuestionAndTournament(ctx context.Context, tx *sql.Tx, questionID, tournamentID string) error {
	query := `DELETE FROM hint_used
	          WHERE hint_id IN (SELECT id FROM hints WHERE question_id = $1)
	            AND team_id IN (SELECT id FROM teams WHERE tournament_id = $2)`
	if _, err := pick(r.db, tx).ExecContext(ctx, query, questionID, tournamentID); err != nil {
		return fmt.Errorf("pgSubmissionRepository.DeleteHintUsedByQuestionAndTournament: %w", err)
	}
	return nil
}
