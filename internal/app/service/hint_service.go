package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ctf_arena/internal/common"
	"ctf_arena/internal/domain/model"
	"ctf_arena/internal/domain/repository"

	"github.com/google/uuid"
)

// HintService reveals hint text, charging the penalty exactly once. The
// charge account and idempotency key depend on context: practice charges the
// user's global points keyed by (hint, user); tournament play charges the
// user's tournament points keyed by (hint, team).
type HintService struct {
	questionRepo   repository.QuestionRepository
	submissionRepo repository.SubmissionRepository
	scoreRepo      repository.ScoreRepository
	teamRepo       repository.TeamRepository
	tournamentRepo repository.TournamentRepository
	leaderboard    *LeaderboardService
	db             *sql.DB

	eventZone *time.Location
	now       func() time.Time
}

func NewHintService(
	questionRepo repository.QuestionRepository,
	submissionRepo repository.SubmissionRepository,
	scoreRepo repository.ScoreRepository,
	teamRepo repository.TeamRepository,
	tournamentRepo repository.TournamentRepository,
	leaderboard *LeaderboardService,
	db *sql.DB,
	eventZone *time.Location,
) *HintService {
	if eventZone == nil {
		eventZone = time.UTC
	}
	return &HintService{
		questionRepo:   questionRepo,
		submissionRepo: submissionRepo,
		scoreRepo:      scoreRepo,
		teamRepo:       teamRepo,
		tournamentRepo: tournamentRepo,
		leaderboard:    leaderboard,
		db:             db,
		eventZone:      eventZone,
		now:            time.Now,
	}
}

type HintReveal struct {
	HintID      string `json:"hint_id"`
	Description string `json:"description"`
	Penalty     int    `json:"penalty"`
	Charged     bool   `json:"charged"`
}

func (s *HintService) UseHint(ctx context.Context, caller *model.User, hintID, tournamentID string) (*HintReveal, error) {
	hint, err := s.questionRepo.FindHintByID(ctx, hintID)
	if err != nil {
		return nil, err
	}

	// Admins read hints free of charge, no bookkeeping.
	if caller.Role == model.RoleAdmin {
		return &HintReveal{HintID: hint.ID, Description: hint.Description, Penalty: hint.Penalty}, nil
	}

	if tournamentID == "" {
		return s.usePracticeHint(ctx, caller, hint)
	}
	return s.useTournamentHint(ctx, caller, hint, tournamentID)
}

func (s *HintService) usePracticeHint(ctx context.Context, caller *model.User, hint *model.Hint) (*HintReveal, error) {
	if _, err := s.submissionRepo.FindHintUsedByUser(ctx, hint.ID, caller.ID); err == nil {
		return &HintReveal{HintID: hint.ID, Description: hint.Description, Penalty: hint.Penalty}, nil
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		point, err := s.scoreRepo.LockPointForUpdate(ctx, tx, caller.ID)
		if err != nil {
			return err
		}
		if point.Points < hint.Penalty {
			return fmt.Errorf("need %d points to reveal this hint: %w", hint.Penalty, common.ErrInsufficientPoints)
		}
		if err := s.scoreRepo.AddPoints(ctx, tx, caller.ID, -hint.Penalty); err != nil {
			return err
		}
		used := &model.HintUsed{ID: uuid.NewString(), HintID: hint.ID, UserID: caller.ID}
		// A conflict here means a concurrent request already charged; the
		// rollback undoes our deduction and the reveal is served below.
		return s.submissionRepo.CreateHintUsed(ctx, tx, used)
	})
	if err != nil {
		if errors.Is(err, common.ErrConflict) {
			// Idempotent replay: the marker exists, so the cost was paid.
			return &HintReveal{HintID: hint.ID, Description: hint.Description, Penalty: hint.Penalty}, nil
		}
		return nil, err
	}

	s.leaderboard.InvalidatePractice(ctx)
	return &HintReveal{HintID: hint.ID, Description: hint.Description, Penalty: hint.Penalty, Charged: true}, nil
}

func (s *HintService) useTournamentHint(ctx context.Context, caller *model.User, hint *model.Hint, tournamentID string) (*HintReveal, error) {
	tournament, err := s.tournamentRepo.FindByID(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if !tournament.EventOpen(s.now().In(s.eventZone).UTC()) {
		return nil, fmt.Errorf("tournament is not running: %w", common.ErrForbidden)
	}
	if _, err := s.tournamentRepo.FindLink(ctx, hint.QuestionID, tournamentID); err != nil {
		return nil, fmt.Errorf("hint's question is not part of this tournament: %w", err)
	}

	membership, err := s.teamRepo.FindMembershipInTournament(ctx, tournamentID, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("user has no team in this tournament: %w", err)
	}

	if _, err := s.submissionRepo.FindHintUsedByTeam(ctx, hint.ID, membership.TeamID); err == nil {
		return &HintReveal{HintID: hint.ID, Description: hint.Description, Penalty: hint.Penalty}, nil
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		tp, err := s.scoreRepo.LockTournamentPointsForUpdate(ctx, tx, caller.ID, tournamentID)
		if err != nil {
			return err
		}
		if tp.Points < hint.Penalty {
			return fmt.Errorf("need %d points to reveal this hint: %w", hint.Penalty, common.ErrInsufficientPoints)
		}
		if err := s.scoreRepo.AddTournamentPoints(ctx, tx, caller.ID, tournamentID, -hint.Penalty); err != nil {
			return err
		}
		used := &model.HintUsed{ID: uuid.NewString(), HintID: hint.ID, UserID: caller.ID, TeamID: &membership.TeamID}
		return s.submissionRepo.CreateHintUsed(ctx, tx, used)
	})
	if err != nil {
		if errors.Is(err, common.ErrConflict) {
			return &HintReveal{HintID: hint.ID, Description: hint.Description, Penalty: hint.Penalty}, nil
		}
		return nil, err
	}

	return &HintReveal{HintID: hint.ID, Description: hint.Description, Penalty: hint.Penalty, Charged: true}, nil
}

func (s *HintService) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
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
