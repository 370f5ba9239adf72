package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ctf_arena/internal/common"
	"ctf_arena/internal/common/security"
	"ctf_arena/internal/domain/model"
	"ctf_arena/internal/domain/repository"

	"github.com/google/uuid"
)

// SubmissionService decides answer correctness and applies the scoring
// transaction: the submission marker and the point award are written
// together or not at all.
type SubmissionService struct {
	submissionRepo repository.SubmissionRepository
	questionRepo   repository.QuestionRepository
	scoreRepo      repository.ScoreRepository
	teamRepo       repository.TeamRepository
	tournamentRepo repository.TournamentRepository
	cipher         *security.AnswerCipher
	leaderboard    *LeaderboardService
	db             *sql.DB

	answerPrefix string
	eventZone    *time.Location
	now          func() time.Time
}

func NewSubmissionService(
	submissionRepo repository.SubmissionRepository,
	questionRepo repository.QuestionRepository,
	scoreRepo repository.ScoreRepository,
	teamRepo repository.TeamRepository,
	tournamentRepo repository.TournamentRepository,
	cipher *security.AnswerCipher,
	leaderboard *LeaderboardService,
	db *sql.DB,
	answerPrefix string,
	eventZone *time.Location,
) *SubmissionService {
	if eventZone == nil {
		eventZone = time.UTC
	}
	return &SubmissionService{
		submissionRepo: submissionRepo,
		questionRepo:   questionRepo,
		scoreRepo:      scoreRepo,
		teamRepo:       teamRepo,
		tournamentRepo: tournamentRepo,
		cipher:         cipher,
		leaderboard:    leaderboard,
		db:             db,
		answerPrefix:   answerPrefix,
		eventZone:      eventZone,
		now:            time.Now,
	}
}

type CheckAnswerRequest struct {
	QuestionID   string `json:"question_id"`
	TournamentID string `json:"tournament_id,omitempty"`
	Answer       string `json:"answer"`
}

type CheckAnswerResult struct {
	Correct bool `json:"correct"`
}

// eventNow is the comparison instant for tournament windows: wall clock read
// in the configured event zone, compared as UTC.
func (s *SubmissionService) eventNow() time.Time {
	return s.now().In(s.eventZone).UTC()
}

// CheckPracticeAnswer verifies a practice submission and, on a first correct
// answer, awards the question's points. A repeat correct answer reports
// success without re-awarding. Admins get the verdict with no bookkeeping.
func (s *SubmissionService) CheckPracticeAnswer(ctx context.Context, caller *model.User, req CheckAnswerRequest) (*CheckAnswerResult, error) {
	question, err := s.questionRepo.FindByID(ctx, req.QuestionID)
	if err != nil {
		return nil, err
	}
	if !question.Practice && caller.Role != model.RoleAdmin {
		return nil, fmt.Errorf("question is not open for practice: %w", common.ErrNotFound)
	}

	// Decryption failure means the stored answer cannot be evaluated. That
	// is an internal fault, never a wrong answer.
	secret, err := s.cipher.Decrypt(question.Answer)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate answer: %w", err)
	}
	if req.Answer != security.FormatPracticeAnswer(s.answerPrefix, secret) {
		return &CheckAnswerResult{Correct: false}, nil
	}

	// Admins practice without polluting the leaderboard.
	if caller.Role == model.RoleAdmin {
		return &CheckAnswerResult{Correct: true}, nil
	}

	if _, err := s.scoreRepo.FindPointByUserID(ctx, caller.ID); err != nil {
		return nil, fmt.Errorf("no point account for user: %w", err)
	}

	if _, err := s.submissionRepo.FindSubmitted(ctx, caller.ID, question.ID); err == nil {
		return &CheckAnswerResult{Correct: true}, nil // already solved, no-op
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.scoreRepo.LockPointForUpdate(ctx, tx, caller.ID); err != nil {
			return err
		}
		sub := &model.Submitted{ID: uuid.NewString(), UserID: caller.ID, QuestionID: question.ID}
		if err := s.submissionRepo.CreateSubmitted(ctx, tx, sub); err != nil {
			// Lost the race to a concurrent submission of the same answer.
			if errors.Is(err, common.ErrConflict) {
				return nil
			}
			return err
		}
		return s.scoreRepo.AddPoints(ctx, tx, caller.ID, question.Points)
	})
	if err != nil {
		return nil, err
	}

	s.leaderboard.InvalidatePractice(ctx)
	return &CheckAnswerResult{Correct: true}, nil
}

// CheckTournamentAnswer mirrors the practice path but is keyed by the
// caller's team and the question-tournament link, and the award lands on two
// aggregates: the user's tournament points and the team's score.
func (s *SubmissionService) CheckTournamentAnswer(ctx context.Context, caller *model.User, req CheckAnswerRequest) (*CheckAnswerResult, error) {
	if req.TournamentID == "" {
		return nil, fmt.Errorf("tournament_id is required: %w", common.ErrBadRequest)
	}

	question, err := s.questionRepo.FindByID(ctx, req.QuestionID)
	if err != nil {
		return nil, err
	}
	if question.Practice {
		return nil, fmt.Errorf("practice questions cannot be submitted in a tournament: %w", common.ErrBadRequest)
	}

	link, err := s.tournamentRepo.FindLink(ctx, question.ID, req.TournamentID)
	if err != nil {
		return nil, fmt.Errorf("question is not part of this tournament: %w", err)
	}

	tournament, err := s.tournamentRepo.FindByID(ctx, req.TournamentID)
	if err != nil {
		return nil, err
	}
	isAdmin := caller.Role == model.RoleAdmin
	if !isAdmin && !tournament.EventOpen(s.eventNow()) {
		return nil, fmt.Errorf("tournament is not running: %w", common.ErrForbidden)
	}

	secret, err := s.cipher.Decrypt(question.Answer)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate answer: %w", err)
	}
	if req.Answer != secret {
		return &CheckAnswerResult{Correct: false}, nil
	}

	if isAdmin {
		return &CheckAnswerResult{Correct: true}, nil
	}

	membership, err := s.teamRepo.FindMembershipInTournament(ctx, tournament.ID, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("user has no team in this tournament: %w", err)
	}

	if _, err := s.submissionRepo.FindTournamentSubmitted(ctx, membership.TeamID, link.ID); err == nil {
		return &CheckAnswerResult{Correct: true}, nil // team already solved it
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.scoreRepo.LockTournamentPointsForUpdate(ctx, tx, caller.ID, tournament.ID); err != nil {
			return err
		}
		sub := &model.TournamentSubmitted{
			ID:                   uuid.NewString(),
			UserID:               caller.ID,
			TournamentID:         tournament.ID,
			QuestionTournamentID: link.ID,
			TeamID:               membership.TeamID,
		}
		if err := s.submissionRepo.CreateTournamentSubmitted(ctx, tx, sub); err != nil {
			if errors.Is(err, common.ErrConflict) {
				return nil // concurrent teammate got there first
			}
			return err
		}
		if err := s.scoreRepo.AddTournamentPoints(ctx, tx, caller.ID, tournament.ID, question.Points); err != nil {
			return err
		}
		return s.scoreRepo.AddTeamScore(ctx, tx, membership.TeamID, tournament.ID, question.Points)
	})
	if err != nil {
		return nil, err
	}

	s.leaderboard.InvalidateTournament(ctx, tournament.ID)
	return &CheckAnswerResult{Correct: true}, nil
}

func (s *SubmissionService) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
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
