package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ctf_arena/internal/common"
	"ctf_arena/internal/domain/model"

	"github.com/jackc/pgx/v5/pgconn"
)

type TournamentRepository interface {
	Create(ctx context.Context, tournament *model.Tournament) error
	Delete(ctx context.Context, tx *sql.Tx, id string) error
	FindByID(ctx context.Context, id string) (*model.Tournament, error)
	FindByJoinCode(ctx context.Context, code string) (*model.Tournament, error)
	List(ctx context.Context) ([]model.Tournament, error)
	ListEnrollable(ctx context.Context, now time.Time) ([]model.Tournament, error)

	AttachQuestion(ctx context.Context, tx *sql.Tx, link *model.QuestionTournament) error
	FindLink(ctx context.Context, questionID, tournamentID string) (*model.QuestionTournament, error)
	FindLinkByID(ctx context.Context, linkID string) (*model.QuestionTournament, error)
	ListLinksByQuestion(ctx context.Context, tx *sql.Tx, questionID string) ([]model.QuestionTournament, error)
	ListLinksByTournament(ctx context.Context, tournamentID string) ([]model.QuestionTournament, error)
	DeleteLink(ctx context.Context, tx *sql.Tx, linkID string) error
}

type pgTournamentRepository struct {
	db *sql.DB
}

func NewPgTournamentRepository(db *sql.DB) TournamentRepository {
	return &pgTournamentRepository{db: db}
}

const tournamentColumns = `id, name, enroll_start, enroll_end, event_start, event_end,
	visibility, join_code, team_limit, team_size_limit, created_at`

func (r *pgTournamentRepository) Create(ctx context.Context, t *model.Tournament) error {
	query := `INSERT INTO tournaments (id, name, enroll_start, enroll_end, event_start, event_end,
	              visibility, join_code, team_limit, team_size_limit)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.ExecContext(ctx, query, t.ID, t.Name, t.EnrollStart, t.EnrollEnd, t.EventStart, t.EventEnd,
		t.Visibility, t.JoinCode, t.TeamLimit, t.TeamSizeLimit)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("tournament with this name already exists: %w", common.ErrConflict)
		}
		return fmt.Errorf("pgTournamentRepository.Create: %w", err)
	}
	return nil
}

func (r *pgTournamentRepository) Delete(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := pick(r.db, tx).ExecContext(ctx, `DELETE FROM tournaments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("pgTournamentRepository.Delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *pgTournamentRepository) FindByID(ctx context.Context, id string) (*model.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments WHERE id = $1`
	return r.scanTournament(r.db.QueryRowContext(ctx, query, id), "FindByID")
}

func (r *pgTournamentRepository) FindByJoinCode(ctx context.Context, code string) (*model.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments WHERE join_code = $1`
	return r.scanTournament(r.db.QueryRowContext(ctx, query, code), "FindByJoinCode")
}

func (r *pgTournamentRepository) scanTournament(row *sql.Row, method string) (*model.Tournament, error) {
	t := &model.Tournament{}
	err := row.Scan(&t.ID, &t.Name, &t.EnrollStart, &t.EnrollEnd, &t.EventStart, &t.EventEnd,
		&t.Visibility, &t.JoinCode, &t.TeamLimit, &t.TeamSizeLimit, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgTournamentRepository.%s: %w", method, err)
	}
	return t, nil
}

func (r *pgTournamentRepository) List(ctx context.Context) ([]model.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments ORDER BY event_start DESC`
	return r.listTournaments(ctx, query)
}

func (r *pgTournamentRepository) ListEnrollable(ctx context.Context, now time.Time) ([]model.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments
	          WHERE enroll_start <= $1 AND $1 < enroll_end
	          ORDER BY event_start ASC`
	return r.listTournaments(ctx, query, now.UTC())
}

func (r *pgTournamentRepository) listTournaments(ctx context.Context, query string, args ...interface{}) ([]model.Tournament, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgTournamentRepository.listTournaments query: %w", err)
	}
	defer rows.Close()

	tournaments := []model.Tournament{}
	for rows.Next() {
		var t model.Tournament
		if err := rows.Scan(&t.ID, &t.Name, &t.EnrollStart, &t.EnrollEnd, &t.EventStart, &t.EventEnd,
			&t.Visibility, &t.JoinCode, &t.TeamLimit, &t.TeamSizeLimit, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgTournamentRepository.listTournaments scan: %w", err)
		}
		tournaments = append(tournaments, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgTournamentRepository.listTournaments rows.Err: %w", err)
	}
	return tournaments, nil
}

func (r *pgTournamentRepository) AttachQuestion(ctx context.Context, tx *sql.Tx, link *model.QuestionTournament) error {
	query := `INSERT INTO question_tournament (id, question_id, tournament_id) VALUES ($1, $2, $3)`
	_, err := pick(r.db, tx).ExecContext(ctx, query, link.ID, link.QuestionID, link.TournamentID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("question already attached to this tournament: %w", common.ErrConflict)
		}
		return fmt.Errorf("pgTournamentRepository.AttachQuestion: %w", err)
	}
	return nil
}

func (r *pgTournamentRepository) FindLink(ctx context.Context, questionID, tournamentID string) (*model.QuestionTournament, error) {
	query := `SELECT id, question_id, tournament_id FROM question_tournament
	          WHERE question_id = $1 AND tournament_id = $2`
	return r.scanLink(r.db.QueryRowContext(ctx, query, questionID, tournamentID), "FindLink")
}

func (r *pgTournamentRepository) FindLinkByID(ctx context.Context, linkID string) (*model.QuestionTournament, error) {
	query := `SELECT id, question_id, tournament_id FROM question_tournament WHERE id = $1`
	return r.scanLink(r.db.QueryRowContext(ctx, query, linkID), "FindLinkByID")
}

func (r *pgTournamentRepository) scanLink(row *sql.Row, method string) (*model.QuestionTournament, error) {
	link := &model.QuestionTournament{}
	err := row.Scan(&link.ID, &link.QuestionID, &link.TournamentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgTournamentRepository.%s: %w", method, err)
	}
	return link, nil
}

// ListLinksByQuestion accepts a tx so callers that just deleted links can see
// the uncommitted state when deciding on the question's tournament flag.
func (r *pgTournamentRepository) ListLinksByQuestion(ctx context.Context, tx *sql.Tx, questionID string) ([]model.QuestionTournament, error) {
	query := `SELECT id, question_id, tournament_id FROM question_tournament WHERE question_id = $1`
	return r.listLinks(ctx, pick(r.db, tx), query, questionID)
}

func (r *pgTournamentRepository) ListLinksByTournament(ctx context.Context, tournamentID string) ([]model.QuestionTournament, error) {
	query := `SELECT id, question_id, tournament_id FROM question_tournament WHERE tournament_id = $1`
	return r.listLinks(ctx, r.db, query, tournamentID)
}

func (r *pgTournamentRepository) listLinks(ctx context.Context, q dbtx, query string, args ...interface{}) ([]model.QuestionTournament, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgTournamentRepository.listLinks query: %w", err)
	}
	defer rows.Close()

	links := []model.QuestionTournament{}
	for rows.Next() {
		var link model.QuestionTournament
		if err := rows.Scan(&link.ID, &link.QuestionID, &link.TournamentID); err != nil {
			return nil, fmt.Errorf("pgTournamentRepository.listLinks scan: %w", err)
		}
		links = append(links, link)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgTournamentRepository.listLinks rows.Err: %w", err)
	}
	return links, nil
}

func (r *pgTournamentRepository) DeleteLink(ctx context.Context, tx *sql.Tx, linkID string) error {
	res, err := pick(r.db, tx).ExecContext(ctx, `DELETE FROM question_tournament WHERE id = $1`, linkID)
	if err != nil {
		return fmt.Errorf("pgTournamentRepository.DeleteLink: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}
