package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ctf_arena/internal/common"
	"ctf_arena/internal/domain/model"
)

// ScoreRepository owns the three point pools: practice points,
// per-tournament user points and per-tournament team scores. All Add*
// mutations lock the target row (SELECT ... FOR UPDATE semantics via UPDATE)
// and must run inside the caller's transaction alongside the submission or
// hint row they correspond to.
type ScoreRepository interface {
	CreatePoint(ctx context.Context, tx *sql.Tx, p *model.Point) error
	FindPointByUserID(ctx context.Context, userID string) (*model.Point, error)
	LockPointForUpdate(ctx context.Context, tx *sql.Tx, userID string) (*model.Point, error)
	AddPoints(ctx context.Context, tx *sql.Tx, userID string, delta int) error

	CreateTournamentPoints(ctx context.Context, tx *sql.Tx, tp *model.TournamentPoints) error
	FindTournamentPoints(ctx context.Context, userID, tournamentID string) (*model.TournamentPoints, error)
	LockTournamentPointsForUpdate(ctx context.Context, tx *sql.Tx, userID, tournamentID string) (*model.TournamentPoints, error)
	AddTournamentPoints(ctx context.Context, tx *sql.Tx, userID, tournamentID string, delta int) error
	DeleteTournamentPoints(ctx context.Context, tx *sql.Tx, userID, tournamentID string) error

	CreateTeamScore(ctx context.Context, tx *sql.Tx, ts *model.TeamScore) error
	FindTeamScore(ctx context.Context, teamID, tournamentID string) (*model.TeamScore, error)
	AddTeamScore(ctx context.Context, tx *sql.Tx, teamID, tournamentID string, delta int) error

	ListPracticeLeaderboard(ctx context.Context) ([]model.LeaderboardEntry, error)
	ListTeamLeaderboard(ctx context.Context, tournamentID string) ([]model.LeaderboardEntry, error)
}

type pgScoreRepository struct {
	db *sql.DB
}

func NewPgScoreRepository(db *sql.DB) ScoreRepository {
	return &pgScoreRepository{db: db}
}

func (r *pgScoreRepository) CreatePoint(ctx context.Context, tx *sql.Tx, p *model.Point) error {
	query := `INSERT INTO points (id, user_id, points) VALUES ($1, $2, $3)
	          ON CONFLICT (user_id) DO NOTHING`
	if _, err := pick(r.db, tx).ExecContext(ctx, query, p.ID, p.UserID, p.Points); err != nil {
		return fmt.Errorf("pgScoreRepository.CreatePoint: %w", err)
	}
	return nil
}

func (r *pgScoreRepository) FindPointByUserID(ctx context.Context, userID string) (*model.Point, error) {
	query := `SELECT id, user_id, points, updated_at FROM points WHERE user_id = $1`
	p := &model.Point{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&p.ID, &p.UserID, &p.Points, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgScoreRepository.FindPointByUserID: %w", err)
	}
	return p, nil
}

func (r *pgScoreRepository) LockPointForUpdate(ctx context.Context, tx *sql.Tx, userID string) (*model.Point, error) {
	query := `SELECT id, user_id, points, updated_at FROM points WHERE user_id = $1 FOR UPDATE`
	p := &model.Point{}
	err := tx.QueryRowContext(ctx, query, userID).Scan(&p.ID, &p.UserID, &p.Points, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgScoreRepository.LockPointForUpdate: %w", err)
	}
	return p, nil
}

func (r *pgScoreRepository) AddPoints(ctx context.Context, tx *sql.Tx, userID string, delta int) error {
	query := `UPDATE points SET points = points + $1, updated_at = CURRENT_TIMESTAMP WHERE user_id = $2`
	res, err := pick(r.db, tx).ExecContext(ctx, query, delta, userID)
	if err != nil {
		return fmt.Errorf("pgScoreRepository.AddPoints: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *pgScoreRepository) CreateTournamentPoints(ctx context.Context, tx *sql.Tx, tp *model.TournamentPoints) error {
	query := `INSERT INTO tournament_points (id, user_id, tournament_id, points) VALUES ($1, $2, $3, $4)
	          ON CONFLICT (user_id, tournament_id) DO NOTHING`
	if _, err := pick(r.db, tx).ExecContext(ctx, query, tp.ID, tp.UserID, tp.TournamentID, tp.Points); err != nil {
		return fmt.Errorf("pgScoreRepository.CreateTournamentPoints: %w", err)
	}
	return nil
}

func (r *pgScoreRepository) FindTournamentPoints(ctx context.Context, userID, tournamentID string) (*model.TournamentPoints, error) {
	query := `SELECT id, user_id, tournament_id, points, updated_at FROM tournament_points
	          WHERE user_id = $1 AND tournament_id = $2`
	tp := &model.TournamentPoints{}
	err := r.db.QueryRowContext(ctx, query, userID, tournamentID).Scan(
		&tp.ID, &tp.UserID, &tp.TournamentID, &tp.Points, &tp.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgScoreRepository.FindTournamentPoints: %w", err)
	}
	return tp, nil
}

func (r *pgScoreRepository) LockTournamentPointsForUpdate(ctx context.Context, tx *sql.Tx, userID, tournamentID string) (*model.TournamentPoints, error) {
	query := `SELECT id, user_id, tournament_id, points, updated_at FROM tournament_points
	          WHERE user_id = $1 AND tournament_id = $2 FOR UPDATE`
	tp := &model.TournamentPoints{}
	err := tx.QueryRowContext(ctx, query, userID, tournamentID).Scan(
		&tp.ID, &tp.UserID, &tp.TournamentID, &tp.Points, &tp.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgScoreRepository.LockTournamentPointsForUpdate: %w", err)
	}
	return tp, nil
}

func (r *pgScoreRepository) AddTournamentPoints(ctx context.Context, tx *sql.Tx, userID, tournamentID string, delta int) error {
	query := `UPDATE tournament_points SET points = points + $1, updated_at = CURRENT_TIMESTAMP
	          WHERE user_id = $2 AND tournament_id = $3`
	res, err := pick(r.db, tx).ExecContext(ctx, query, delta, userID, tournamentID)
	if err != nil {
		return fmt.Errorf("pgScoreRepository.AddTournamentPoints: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *pgScoreRepository) DeleteTournamentPoints(ctx context.Context, tx *sql.Tx, userID, tournamentID string) error {
	query := `DELETE FROM tournament_points WHERE user_id = $1 AND tournament_id = $2`
	if _, err := pick(r.db, tx).ExecContext(ctx, query, userID, tournamentID); err != nil {
		return fmt.Errorf("pgScoreRepository.DeleteTournamentPoints: %w", err)
	}
	return nil
}

func (r *pgScoreRepository) CreateTeamScore(ctx context.Context, tx *sql.Tx, ts *model.TeamScore) error {
	query := `INSERT INTO team_scores (id, team_id, tournament_id, total) VALUES ($1, $2, $3, $4)`
	if _, err := pick(r.db, tx).ExecContext(ctx, query, ts.ID, ts.TeamID, ts.TournamentID, ts.Total); err != nil {
		return fmt.Errorf("pgScoreRepository.CreateTeamScore: %w", err)
	}
	return nil
}

func (r *pgScoreRepository) FindTeamScore(ctx context.Context, teamID, tournamentID string) (*model.TeamScore, error) {
	query := `SELECT id, team_id, tournament_id, total, updated_at FROM team_scores
	          WHERE team_id = $1 AND tournament_id = $2`
	ts := &model.TeamScore{}
	err := r.db.QueryRowContext(ctx, query, teamID, tournamentID).Scan(
		&ts.ID, &ts.TeamID, &ts.TournamentID, &ts.Total, &ts.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgScoreRepository.FindTeamScore: %w", err)
	}
	return ts, nil
}

func (r *pgScoreRepository) AddTeamScore(ctx context.Context, tx *sql.Tx, teamID, tournamentID string, delta int) error {
	query := `UPDATE team_scores SET total = total + $1, updated_at = CURRENT_TIMESTAMP
	          WHERE team_id = $2 AND tournament_id = $3`
	res, err := pick(r.db, tx).ExecContext(ctx, query, delta, teamID, tournamentID)
	if err != nil {
		return fmt.Errorf("pgScoreRepository.AddTeamScore: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *pgScoreRepository) ListPracticeLeaderboard(ctx context.Context) ([]model.LeaderboardEntry, error) {
	// Ties rank the earlier achiever first.
	query := `SELECT u.id, u.display_name, p.points, p.updated_at
	          FROM points p
	          JOIN users u ON p.user_id = u.id
	          WHERE u.role = 'user'
	          ORDER BY p.points DESC, p.updated_at ASC`
	return r.listLeaderboard(ctx, query)
}

func (r *pgScoreRepository) ListTeamLeaderboard(ctx context.Context, tournamentID string) ([]model.LeaderboardEntry, error) {
	query := `SELECT t.id, t.name, ts.total, ts.updated_at
	          FROM team_scores ts
	          JOIN teams t ON ts.team_id = t.id
	          WHERE ts.tournament_id = $1
	          ORDER BY ts.total DESC, ts.updated_at ASC`
	return r.listLeaderboard(ctx, query, tournamentID)
}

func (r *pgScoreRepository) listLeaderboard(ctx context.Context, query string, args ...interface{}) ([]model.LeaderboardEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgScoreRepository.listLeaderboard query: %w", err)
	}
	defer rows.Close()

	entries := []model.LeaderboardEntry{}
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.Points, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("pgScoreRepository.listLeaderboard scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgScoreRepository.listLeaderboard rows.Err: %w", err)
	}
	return entries, nil
}
