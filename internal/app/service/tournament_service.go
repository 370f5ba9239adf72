package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"ctf_arena/internal/common"
	"ctf_arena/internal/common/security"
	"ctf_arena/internal/domain/model"
	"ctf_arena/internal/domain/repository"

	"github.com/google/uuid"
)

// TournamentService manages tournaments and the question-tournament links.
// All operations here are admin-only except the listings and Get; the
// handlers enforce that, the service enforces data integrity.
type TournamentService struct {
	tournamentRepo repository.TournamentRepository
	questionRepo   repository.QuestionRepository
	submissionRepo repository.SubmissionRepository
	scoreRepo      repository.ScoreRepository
	leaderboard    *LeaderboardService
	db             *sql.DB

	now func() time.Time
}

func NewTournamentService(
	tournamentRepo repository.TournamentRepository,
	questionRepo repository.QuestionRepository,
	submissionRepo repository.SubmissionRepository,
	scoreRepo repository.ScoreRepository,
	leaderboard *LeaderboardService,
	db *sql.DB,
) *TournamentService {
	return &TournamentService{
		tournamentRepo: tournamentRepo,
		questionRepo:   questionRepo,
		submissionRepo: submissionRepo,
		scoreRepo:      scoreRepo,
		leaderboard:    leaderboard,
		db:             db,
		now:            time.Now,
	}
}

type TournamentRequest struct {
	Name          string    `json:"name"`
	EnrollStart   time.Time `json:"enroll_start"`
	EnrollEnd     time.Time `json:"enroll_end"`
	EventStart    time.Time `json:"event_start"`
	EventEnd      time.Time `json:"event_end"`
	Visibility    string    `json:"visibility"`
	TeamLimit     int       `json:"team_limit"`
	TeamSizeLimit int       `json:"team_size_limit"`
}

func (s *TournamentService) Create(ctx context.Context, req TournamentRequest) (*model.Tournament, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("tournament name is required: %w", common.ErrValidation)
	}
	visibility := model.TournamentVisibility(req.Visibility)
	if visibility != model.VisibilityPublic && visibility != model.VisibilityPrivate {
		return nil, fmt.Errorf("visibility must be public or private: %w", common.ErrValidation)
	}
	if req.TeamSizeLimit < 1 {
		return nil, fmt.Errorf("team_size_limit must be at least 1: %w", common.ErrValidation)
	}
	if req.TeamLimit < 0 {
		return nil, fmt.Errorf("team_limit cannot be negative: %w", common.ErrValidation)
	}

	tournament := &model.Tournament{
		ID:            uuid.NewString(),
		Name:          strings.TrimSpace(req.Name),
		EnrollStart:   req.EnrollStart.UTC(),
		EnrollEnd:     req.EnrollEnd.UTC(),
		EventStart:    req.EventStart.UTC(),
		EventEnd:      req.EventEnd.UTC(),
		Visibility:    visibility,
		TeamLimit:     req.TeamLimit,
		TeamSizeLimit: req.TeamSizeLimit,
	}
	if !tournament.ValidateWindows() {
		return nil, fmt.Errorf("windows must satisfy enroll_start < enroll_end <= event_start < event_end: %w", common.ErrValidation)
	}

	if visibility == model.VisibilityPrivate {
		code, err := security.GenerateCode(security.TournamentJoinCodeLength)
		if err != nil {
			return nil, fmt.Errorf("failed to generate join code: %w", err)
		}
		tournament.JoinCode = &code
	}

	if err := s.tournamentRepo.Create(ctx, tournament); err != nil {
		return nil, err
	}
	return tournament, nil
}

// List returns all tournaments. Join codes are for admins only; public
// listings never carry them.
func (s *TournamentService) List(ctx context.Context, caller *model.User) ([]model.Tournament, error) {
	tournaments, err := s.tournamentRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	if caller.Role != model.RoleAdmin {
		redactJoinCodes(tournaments)
	}
	return tournaments, nil
}

// ListEnrollable returns tournaments whose enrollment window contains now.
func (s *TournamentService) ListEnrollable(ctx context.Context, caller *model.User) ([]model.Tournament, error) {
	tournaments, err := s.tournamentRepo.ListEnrollable(ctx, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if caller.Role != model.RoleAdmin {
		redactJoinCodes(tournaments)
	}
	return tournaments, nil
}

func (s *TournamentService) Get(ctx context.Context, caller *model.User, id string) (*model.Tournament, error) {
	tournament, err := s.tournamentRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller.Role != model.RoleAdmin {
		tournament.JoinCode = nil
	}
	return tournament, nil
}

func redactJoinCodes(tournaments []model.Tournament) {
	for i := range tournaments {
		tournaments[i].JoinCode = nil
	}
}

// Delete removes a tournament and everything hanging off it. Questions
// survive; their tournament flag is cleared when this was their last link.
func (s *TournamentService) Delete(ctx context.Context, id string) error {
	if _, err := s.tournamentRepo.FindByID(ctx, id); err != nil {
		return err
	}
	links, err := s.tournamentRepo.ListLinksByTournament(ctx, id)
	if err != nil {
		return err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		for _, link := range links {
			if err := s.submissionRepo.DeleteTournamentSubmittedByLink(ctx, tx, link.ID); err != nil {
				return err
			}
		}
		// Teams, memberships, scores, point rows and the links themselves
		// follow the tournament row by FK cascade.
		if err := s.tournamentRepo.Delete(ctx, tx, id); err != nil {
			return err
		}
		for _, link := range links {
			if err := s.clearTournamentFlagIfUnlinked(ctx, tx, link.QuestionID, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.leaderboard.InvalidateTournament(ctx, id)
	return nil
}

type AttachQuestionsRequest struct {
	QuestionIDs []string `json:"question_ids"`
}

// AttachQuestions links questions into a tournament and marks them as
// tournament questions. Practice questions are refused; the flag split is a
// hard boundary, not a default.
func (s *TournamentService) AttachQuestions(ctx context.Context, tournamentID string, req AttachQuestionsRequest) ([]model.QuestionTournament, error) {
	if len(req.QuestionIDs) == 0 {
		return nil, fmt.Errorf("question_ids is required: %w", common.ErrValidation)
	}
	if _, err := s.tournamentRepo.FindByID(ctx, tournamentID); err != nil {
		return nil, err
	}

	questions := make([]*model.Question, 0, len(req.QuestionIDs))
	for _, questionID := range req.QuestionIDs {
		question, err := s.questionRepo.FindByID(ctx, questionID)
		if err != nil {
			return nil, err
		}
		if question.Practice {
			return nil, fmt.Errorf("practice question %q cannot join a tournament: %w", question.Title, common.ErrConflict)
		}
		questions = append(questions, question)
	}

	links := make([]model.QuestionTournament, 0, len(questions))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, question := range questions {
			link := model.QuestionTournament{
				ID:           uuid.NewString(),
				QuestionID:   question.ID,
				TournamentID: tournamentID,
			}
			if err := s.tournamentRepo.AttachQuestion(ctx, tx, &link); err != nil {
				return err
			}
			if !question.Tournament {
				if err := s.questionRepo.SetTournamentFlag(ctx, tx, question.ID, true); err != nil {
					return err
				}
			}
			links = append(links, link)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return links, nil
}

// DetachQuestion unlinks a question, backing out every solve recorded
// against the link so the scoring invariant holds after removal.
func (s *TournamentService) DetachQuestion(ctx context.Context, tournamentID, questionID string) error {
	link, err := s.tournamentRepo.FindLink(ctx, questionID, tournamentID)
	if err != nil {
		return err
	}
	question, err := s.questionRepo.FindByID(ctx, questionID)
	if err != nil {
		return err
	}
	subs, err := s.submissionRepo.ListTournamentSubmittedByLink(ctx, link.ID)
	if err != nil {
		return err
	}
	hints, err := s.questionRepo.GetHintsByQuestionID(ctx, questionID)
	if err != nil {
		return err
	}
	hintUses, err := s.submissionRepo.ListHintUsedByQuestionAndTournament(ctx, questionID, tournamentID)
	if err != nil {
		return err
	}
	penaltyByHint := make(map[string]int, len(hints))
	for _, h := range hints {
		penaltyByHint[h.ID] = h.Penalty
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		for _, sub := range subs {
			if err := s.scoreRepo.AddTournamentPoints(ctx, tx, sub.UserID, sub.TournamentID, -question.Points); err != nil {
				return err
			}
			if err := s.scoreRepo.AddTeamScore(ctx, tx, sub.TeamID, sub.TournamentID, -question.Points); err != nil {
				return err
			}
		}
		if err := s.submissionRepo.DeleteTournamentSubmittedByLink(ctx, tx, link.ID); err != nil {
			return err
		}
		// Each hint charge is refunded to the user who paid it before its
		// marker goes away; a later re-attach charges the team afresh.
		for _, hu := range hintUses {
			if err := s.scoreRepo.AddTournamentPoints(ctx, tx, hu.UserID, tournamentID, penaltyByHint[hu.HintID]); err != nil {
				return err
			}
		}
		if err := s.submissionRepo.DeleteHintUsedByQuestionAndTournament(ctx, tx, questionID, tournamentID); err != nil {
			return err
		}
		if err := s.tournamentRepo.DeleteLink(ctx, tx, link.ID); err != nil {
			return err
		}
		return s.clearTournamentFlagIfUnlinked(ctx, tx, questionID, tournamentID)
	})
	if err != nil {
		return err
	}

	s.leaderboard.InvalidateTournament(ctx, tournamentID)
	return nil
}

// clearTournamentFlagIfUnlinked drops the question's tournament flag once no
// link outside the given tournament remains. The link read runs on the
// transaction so deletes earlier in the same tx are visible.
func (s *TournamentService) clearTournamentFlagIfUnlinked(ctx context.Context, tx *sql.Tx, questionID, excludeTournamentID string) error {
	links, err := s.tournamentRepo.ListLinksByQuestion(ctx, tx, questionID)
	if err != nil {
		return err
	}
	for _, l := range links {
		if l.TournamentID != excludeTournamentID {
			return nil
		}
	}
	return s.questionRepo.SetTournamentFlag(ctx, tx, questionID, false)
}

// Questions lists a tournament's question set, redacted for non-admins.
func (s *TournamentService) Questions(ctx context.Context, caller *model.User, tournamentID string) ([]model.Question, error) {
	if _, err := s.tournamentRepo.FindByID(ctx, tournamentID); err != nil {
		return nil, err
	}
	links, err := s.tournamentRepo.ListLinksByTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	questions := make([]model.Question, 0, len(links))
	for _, link := range links {
		question, err := s.questionRepo.FindByID(ctx, link.QuestionID)
		if err != nil {
			return nil, err
		}
		if caller.Role != model.RoleAdmin {
			RedactQuestion(question)
		}
		questions = append(questions, *question)
	}
	return questions, nil
}

func (s *TournamentService) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
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
