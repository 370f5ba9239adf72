package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ctf_arena/internal/common"
	"ctf_arena/internal/common/security"
	"ctf_arena/internal/domain/model"
	"ctf_arena/internal/domain/repository"

	"github.com/google/uuid"
)

// TeamService owns the team lifecycle. Leadership is an explicit column set
// at creation; only the leader (or an admin) may delete the team or kick
// members, and a leader cannot leave without dissolving the team.
type TeamService struct {
	teamRepo       repository.TeamRepository
	tournamentRepo repository.TournamentRepository
	scoreRepo      repository.ScoreRepository
	db             *sql.DB

	now func() time.Time
}

func NewTeamService(
	teamRepo repository.TeamRepository,
	tournamentRepo repository.TournamentRepository,
	scoreRepo repository.ScoreRepository,
	db *sql.DB,
) *TeamService {
	return &TeamService{
		teamRepo:       teamRepo,
		tournamentRepo: tournamentRepo,
		scoreRepo:      scoreRepo,
		db:             db,
		now:            time.Now,
	}
}

type CreateTeamRequest struct {
	TournamentID string `json:"tournament_id"`
	Name         string `json:"name"`
}

type JoinTeamRequest struct {
	Code     string `json:"code"`
	TeamName string `json:"team_name,omitempty"` // creation-join into a private tournament
}

// Create starts a new team in a public tournament with the caller as leader.
func (s *TeamService) Create(ctx context.Context, caller *model.User, req CreateTeamRequest) (*model.Team, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("team name is required: %w", common.ErrBadRequest)
	}
	tournament, err := s.tournamentRepo.FindByID(ctx, req.TournamentID)
	if err != nil {
		return nil, err
	}
	if tournament.Visibility != model.VisibilityPublic {
		return nil, fmt.Errorf("private tournaments are joined by code: %w", common.ErrForbidden)
	}
	return s.createTeam(ctx, caller, tournament, strings.TrimSpace(req.Name))
}

// Join resolves the code explicitly: a team invite code joins that team, a
// private tournament join code creates a fresh team on the fly.
func (s *TeamService) Join(ctx context.Context, caller *model.User, req JoinTeamRequest) (*model.Team, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, fmt.Errorf("code is required: %w", common.ErrBadRequest)
	}

	team, err := s.teamRepo.FindByInviteCode(ctx, code)
	if err == nil {
		return s.joinExisting(ctx, caller, team)
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	tournament, err := s.tournamentRepo.FindByJoinCode(ctx, code)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("unknown invite code: %w", common.ErrNotFound)
		}
		return nil, err
	}
	if tournament.Visibility != model.VisibilityPrivate {
		return nil, fmt.Errorf("unknown invite code: %w", common.ErrNotFound)
	}
	if strings.TrimSpace(req.TeamName) == "" {
		return nil, fmt.Errorf("team_name is required when joining by tournament code: %w", common.ErrBadRequest)
	}
	return s.createTeam(ctx, caller, tournament, strings.TrimSpace(req.TeamName))
}

func (s *TeamService) joinExisting(ctx context.Context, caller *model.User, team *model.Team) (*model.Team, error) {
	tournament, err := s.tournamentRepo.FindByID(ctx, team.TournamentID)
	if err != nil {
		return nil, err
	}
	if !tournament.EnrollmentOpen(s.now().UTC()) {
		return nil, fmt.Errorf("enrollment is closed: %w", common.ErrForbidden)
	}

	members, err := s.teamRepo.CountMembers(ctx, team.ID)
	if err != nil {
		return nil, err
	}
	if members >= tournament.TeamSizeLimit {
		return nil, fmt.Errorf("team is full: %w", common.ErrConflict)
	}

	if _, err := s.teamRepo.FindMembershipInTournament(ctx, tournament.ID, caller.ID); err == nil {
		return nil, fmt.Errorf("already on a team in this tournament: %w", common.ErrConflict)
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		member := &model.TeamMember{ID: uuid.NewString(), TeamID: team.ID, UserID: caller.ID}
		if err := s.teamRepo.CreateMember(ctx, tx, member); err != nil {
			return err
		}
		tp := &model.TournamentPoints{ID: uuid.NewString(), UserID: caller.ID, TournamentID: tournament.ID}
		return s.scoreRepo.CreateTournamentPoints(ctx, tx, tp)
	})
	if err != nil {
		return nil, err
	}
	return team, nil
}

// createTeam covers both the public create and the private creation-join: a
// team row, the leader membership, the score aggregate and the leader's
// tournament point account, atomically.
func (s *TeamService) createTeam(ctx context.Context, caller *model.User, tournament *model.Tournament, name string) (*model.Team, error) {
	if !tournament.EnrollmentOpen(s.now().UTC()) {
		return nil, fmt.Errorf("enrollment is closed: %w", common.ErrForbidden)
	}

	if tournament.TeamLimit > 0 {
		count, err := s.teamRepo.CountInTournament(ctx, tournament.ID)
		if err != nil {
			return nil, err
		}
		if count >= tournament.TeamLimit {
			return nil, fmt.Errorf("tournament has reached its team limit: %w", common.ErrConflict)
		}
	}

	if _, err := s.teamRepo.FindMembershipInTournament(ctx, tournament.ID, caller.ID); err == nil {
		return nil, fmt.Errorf("already on a team in this tournament: %w", common.ErrConflict)
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	inviteCode, err := security.GenerateCode(security.TeamInviteCodeLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate invite code: %w", err)
	}

	team := &model.Team{
		ID:           uuid.NewString(),
		TournamentID: tournament.ID,
		Name:         name,
		InviteCode:   inviteCode,
		LeaderUserID: caller.ID,
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.teamRepo.Create(ctx, tx, team); err != nil {
			return err
		}
		member := &model.TeamMember{ID: uuid.NewString(), TeamID: team.ID, UserID: caller.ID}
		if err := s.teamRepo.CreateMember(ctx, tx, member); err != nil {
			return err
		}
		score := &model.TeamScore{ID: uuid.NewString(), TeamID: team.ID, TournamentID: tournament.ID}
		if err := s.scoreRepo.CreateTeamScore(ctx, tx, score); err != nil {
			return err
		}
		tp := &model.TournamentPoints{ID: uuid.NewString(), UserID: caller.ID, TournamentID: tournament.ID}
		return s.scoreRepo.CreateTournamentPoints(ctx, tx, tp)
	})
	if err != nil {
		return nil, err
	}
	return team, nil
}

// Get returns a team with members and score. The invite code is visible to
// members and admins only.
func (s *TeamService) Get(ctx context.Context, caller *model.User, tournamentID, teamID string) (*model.Team, error) {
	team, err := s.teamRepo.FindByID(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team.TournamentID != tournamentID {
		return nil, common.ErrNotFound
	}

	members, err := s.teamRepo.ListMembers(ctx, teamID)
	if err != nil {
		return nil, err
	}
	team.Members = members

	if score, err := s.scoreRepo.FindTeamScore(ctx, teamID, tournamentID); err == nil {
		team.Score = score
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	if caller.Role != model.RoleAdmin && !memberOf(members, caller.ID) {
		team.InviteCode = ""
	}
	return team, nil
}

func memberOf(members []model.TeamMember, userID string) bool {
	for _, m := range members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

func (s *TeamService) Members(ctx context.Context, teamID string) ([]model.TeamMember, error) {
	if _, err := s.teamRepo.FindByID(ctx, teamID); err != nil {
		return nil, err
	}
	return s.teamRepo.ListMembers(ctx, teamID)
}

// Kick removes another member. Leader only; the leader kicks via Delete if
// they want out themselves.
func (s *TeamService) Kick(ctx context.Context, caller *model.User, teamID, userID string) error {
	team, err := s.teamRepo.FindByID(ctx, teamID)
	if err != nil {
		return err
	}
	if team.LeaderUserID != caller.ID && caller.Role != model.RoleAdmin {
		return fmt.Errorf("only the team leader may kick members: %w", common.ErrForbidden)
	}
	if userID == team.LeaderUserID {
		return fmt.Errorf("the leader cannot be kicked; delete the team instead: %w", common.ErrBadRequest)
	}
	if _, err := s.teamRepo.FindMember(ctx, teamID, userID); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.teamRepo.DeleteMember(ctx, tx, teamID, userID); err != nil {
			return err
		}
		if err := s.scoreRepo.DeleteTournamentPoints(ctx, tx, userID, team.TournamentID); err != nil {
			return err
		}
		remaining, err := s.teamRepo.ListMemberUserIDs(ctx, tx, teamID)
		if err != nil {
			return err
		}
		if len(remaining) == 0 {
			return s.teamRepo.Delete(ctx, tx, teamID)
		}
		return nil
	})
}

// Leave removes the caller from their team. The leader must delete the team
// (or kick everyone else) instead; the last member leaving dissolves it.
func (s *TeamService) Leave(ctx context.Context, caller *model.User, teamID string) error {
	team, err := s.teamRepo.FindByID(ctx, teamID)
	if err != nil {
		return err
	}
	if _, err := s.teamRepo.FindMember(ctx, teamID, caller.ID); err != nil {
		return err
	}
	if team.LeaderUserID == caller.ID {
		return fmt.Errorf("the leader must delete the team or kick all other members first: %w", common.ErrConflict)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.teamRepo.DeleteMember(ctx, tx, teamID, caller.ID); err != nil {
			return err
		}
		if err := s.scoreRepo.DeleteTournamentPoints(ctx, tx, caller.ID, team.TournamentID); err != nil {
			return err
		}
		remaining, err := s.teamRepo.ListMemberUserIDs(ctx, tx, teamID)
		if err != nil {
			return err
		}
		if len(remaining) == 0 {
			return s.teamRepo.Delete(ctx, tx, teamID)
		}
		return nil
	})
}

// Delete dissolves the team: memberships, members' tournament point rows and
// the team row go together (team scores follow by cascade).
func (s *TeamService) Delete(ctx context.Context, caller *model.User, teamID string) error {
	team, err := s.teamRepo.FindByID(ctx, teamID)
	if err != nil {
		return err
	}
	if team.LeaderUserID != caller.ID && caller.Role != model.RoleAdmin {
		return fmt.Errorf("only the team leader may delete the team: %w", common.ErrForbidden)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		memberIDs, err := s.teamRepo.ListMemberUserIDs(ctx, tx, teamID)
		if err != nil {
			return err
		}
		for _, userID := range memberIDs {
			if err := s.scoreRepo.DeleteTournamentPoints(ctx, tx, userID, team.TournamentID); err != nil {
				return err
			}
		}
		if err := s.teamRepo.DeleteMembersByTeam(ctx, tx, teamID); err != nil {
			return err
		}
		return s.teamRepo.Delete(ctx, tx, teamID)
	})
}

func (s *TeamService) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return common.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return common.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
