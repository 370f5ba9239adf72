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

type TeamRepository interface {
	Create(ctx context.Context, tx *sql.Tx, team *model.Team) error
	Delete(ctx context.Context, tx *sql.Tx, teamID string) error
	FindByID(ctx context.Context, teamID string) (*model.Team, error)
	FindByInviteCode(ctx context.Context, code string) (*model.Team, error)
	CountInTournament(ctx context.Context, tournamentID string) (int, error)
	CountMembers(ctx context.Context, teamID string) (int, error)

	CreateMember(ctx context.Context, tx *sql.Tx, member *model.TeamMember) error
	DeleteMember(ctx context.Context, tx *sql.Tx, teamID, userID string) error
	DeleteMembersByTeam(ctx context.Context, tx *sql.Tx, teamID string) error
	FindMember(ctx context.Context, teamID, userID string) (*model.TeamMember, error)
	// FindMembershipInTournament enforces at-most-one-team-per-tournament.
	FindMembershipInTournament(ctx context.Context, tournamentID, userID string) (*model.TeamMember, error)
	ListMembers(ctx context.Context, teamID string) ([]model.TeamMember, error)
	ListMemberUserIDs(ctx context.Context, tx *sql.Tx, teamID string) ([]string, error)
}

type pgTeamRepository struct {
	db *sql.DB
}

func NewPgTeamRepository(db *sql.DB) TeamRepository {
	return &pgTeamRepository{db: db}
}

func (r *pgTeamRepository) Create(ctx context.Context, tx *sql.Tx, team *model.Team) error {
	query := `INSERT INTO teams (id, tournament_id, name, invite_code, leader_user_id)
	          VALUES ($1, $2, $3, $4, $5)`
	_, err := pick(r.db, tx).ExecContext(ctx, query, team.ID, team.TournamentID, team.Name, team.InviteCode, team.LeaderUserID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("team name or invite code already taken: %w", common.ErrConflict)
		}
		return fmt.Errorf("pgTeamRepository.Create: %w", err)
	}
	return nil
}

func (r *pgTeamRepository) Delete(ctx context.Context, tx *sql.Tx, teamID string) error {
	res, err := pick(r.db, tx).ExecContext(ctx, `DELETE FROM teams WHERE id = $1`, teamID)
	if err != nil {
		return fmt.Errorf("pgTeamRepository.Delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *pgTeamRepository) FindByID(ctx context.Context, teamID string) (*model.Team, error) {
	query := `SELECT id, tournament_id, name, invite_code, leader_user_id, created_at
	          FROM teams WHERE id = $1`
	return r.scanTeam(r.db.QueryRowContext(ctx, query, teamID), "FindByID")
}

func (r *pgTeamRepository) FindByInviteCode(ctx context.Context, code string) (*model.Team, error) {
	query := `SELECT id, tournament_id, name, invite_code, leader_user_id, created_at
	          FROM teams WHERE invite_code = $1`
	return r.scanTeam(r.db.QueryRowContext(ctx, query, code), "FindByInviteCode")
}

func (r *pgTeamRepository) scanTeam(row *sql.Row, method string) (*model.Team, error) {
	t := &model.Team{}
	err := row.Scan(&t.ID, &t.TournamentID, &t.Name, &t.InviteCode, &t.LeaderUserID, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgTeamRepository.%s: %w", method, err)
	}
	return t, nil
}

func (r *pgTeamRepository) CountInTournament(ctx context.Context, tournamentID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM teams WHERE tournament_id = $1`, tournamentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("pgTeamRepository.CountInTournament: %w", err)
	}
	return count, nil
}

func (r *pgTeamRepository) CountMembers(ctx context.Context, teamID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM team_members WHERE team_id = $1`, teamID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("pgTeamRepository.CountMembers: %w", err)
	}
	return count, nil
}

func (r *pgTeamRepository) CreateMember(ctx context.Context, tx *sql.Tx, member *model.TeamMember) error {
	query := `INSERT INTO team_members (id, team_id, user_id) VALUES ($1, $2, $3)`
	_, err := pick(r.db, tx).ExecContext(ctx, query, member.ID, member.TeamID, member.UserID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("user already on this team: %w", common.ErrConflict)
		}
		return fmt.Errorf("pgTeamRepository.CreateMember: %w", err)
	}
	return nil
}

func (r *pgTeamRepository) DeleteMember(ctx context.Context, tx *sql.Tx, teamID, userID string) error {
	res, err := pick(r.db, tx).ExecContext(ctx, `DELETE FROM team_members WHERE team_id = $1 AND user_id = $2`, teamID, userID)
	if err != nil {
		return fmt.Errorf("pgTeamRepository.DeleteMember: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *pgTeamRepository) DeleteMembersByTeam(ctx context.Context, tx *sql.Tx, teamID string) error {
	if _, err := pick(r.db, tx).ExecContext(ctx, `DELETE FROM team_members WHERE team_id = $1`, teamID); err != nil {
		return fmt.Errorf("pgTeamRepository.DeleteMembersByTeam: %w", err)
	}
	return nil
}

func (r *pgTeamRepository) FindMember(ctx context.Context, teamID, userID string) (*model.TeamMember, error) {
	query := `SELECT id, team_id, user_id, joined_at FROM team_members WHERE team_id = $1 AND user_id = $2`
	m := &model.TeamMember{}
	err := r.db.QueryRowContext(ctx, query, teamID, userID).Scan(&m.ID, &m.TeamID, &m.UserID, &m.JoinedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgTeamRepository.FindMember: %w", err)
	}
	return m, nil
}

func (r *pgTeamRepository) FindMembershipInTournament(ctx context.Context, tournamentID, userID string) (*model.TeamMember, error) {
	query := `SELECT tm.id, tm.team_id, tm.user_id, tm.joined_at
	          FROM team_members tm
	          JOIN teams t ON tm.team_id = t.id
	          WHERE t.tournament_id = $1 AND tm.user_id = $2`
	m := &model.TeamMember{}
	err := r.db.QueryRowContext(ctx, query, tournamentID, userID).Scan(&m.ID, &m.TeamID, &m.UserID, &m.JoinedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgTeamRepository.FindMembershipInTournament: %w", err)
	}
	return m, nil
}

func (r *pgTeamRepository) ListMembers(ctx context.Context, teamID string) ([]model.TeamMember, error) {
	query := `SELECT tm.id, tm.team_id, tm.user_id, u.display_name, tm.joined_at
	          FROM team_members tm
	          JOIN users u ON tm.user_id = u.id
	          WHERE tm.team_id = $1
	          ORDER BY tm.joined_at ASC`
	rows, err := r.db.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("pgTeamRepository.ListMembers query: %w", err)
	}
	defer rows.Close()

	members := []model.TeamMember{}
	for rows.Next() {
		var m model.TeamMember
		if err := rows.Scan(&m.ID, &m.TeamID, &m.UserID, &m.DisplayName, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("pgTeamRepository.ListMembers scan: %w", err)
		}
		members = append(members, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgTeamRepository.ListMembers rows.Err: %w", err)
	}
	return members, nil
}

func (r *pgTeamRepository) ListMemberUserIDs(ctx context.Context, tx *sql.Tx, teamID string) ([]string, error) {
	rows, err := pick(r.db, tx).QueryContext(ctx, `SELECT user_id FROM team_members WHERE team_id = $1`, teamID)
	if err != nil {
		return nil, fmt.Errorf("pgTeamRepository.ListMemberUserIDs query: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("pgTeamRepository.ListMemberUserIDs scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgTeamRepository.ListMemberUserIDs rows.Err: %w", err)
	}
	return ids, nil
}
