package service

import (
	"context"
	"database/sql"
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"ctf_arena/internal/common"
	"ctf_arena/internal/common/security"
	"ctf_arena/internal/domain/model"
	"ctf_arena/internal/domain/repository"
	"ctf_arena/internal/platform/storage"

	"github.com/google/uuid"
)

// QuestionPageSize is the fixed page size for question listings.
const QuestionPageSize = 12

type QuestionService struct {
	questionRepo   repository.QuestionRepository
	submissionRepo repository.SubmissionRepository
	scoreRepo      repository.ScoreRepository
	tournamentRepo repository.TournamentRepository
	categoryRepo   repository.CategoryRepository
	fileStore      *storage.FileStore
	cipher         *security.AnswerCipher
	leaderboard    *LeaderboardService
	db             *sql.DB
}

func NewQuestionService(
	questionRepo repository.QuestionRepository,
	submissionRepo repository.SubmissionRepository,
	scoreRepo repository.ScoreRepository,
	tournamentRepo repository.TournamentRepository,
	categoryRepo repository.CategoryRepository,
	fileStore *storage.FileStore,
	cipher *security.AnswerCipher,
	leaderboard *LeaderboardService,
	db *sql.DB,
) *QuestionService {
	return &QuestionService{
		questionRepo:   questionRepo,
		submissionRepo: submissionRepo,
		scoreRepo:      scoreRepo,
		tournamentRepo: tournamentRepo,
		categoryRepo:   categoryRepo,
		fileStore:      fileStore,
		cipher:         cipher,
		leaderboard:    leaderboard,
		db:             db,
	}
}

type HintRequest struct {
	Description string `json:"description"`
	Penalty     int    `json:"penalty"`
}

type QuestionRequest struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Answer      string             `json:"answer"`
	Points      int                `json:"points"`
	Difficulty  string             `json:"difficulty"`
	CategoryID  string             `json:"category_id"`
	Author      string             `json:"author"`
	Mode        string             `json:"mode"` // Practice | Tournament | Unpublished
	Hints       []HintRequest      `json:"hints"`

	File *multipart.FileHeader `json:"-"`
}

func (s *QuestionService) validate(req *QuestionRequest) error {
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Description) == "" ||
		strings.TrimSpace(req.Answer) == "" || strings.TrimSpace(req.Author) == "" {
		return fmt.Errorf("title, description, answer and author are required: %w", common.ErrValidation)
	}
	if req.Points <= 0 {
		return fmt.Errorf("points must be positive: %w", common.ErrValidation)
	}
	switch model.QuestionDifficulty(req.Difficulty) {
	case model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard:
	default:
		return fmt.Errorf("invalid difficulty %q: %w", req.Difficulty, common.ErrValidation)
	}
	switch model.QuestionMode(req.Mode) {
	case model.ModePractice, model.ModeTournament, model.ModeUnpublished:
	default:
		return fmt.Errorf("invalid mode %q: %w", req.Mode, common.ErrValidation)
	}
	if err := ValidateHintBudget(req.Hints, req.Points); err != nil {
		return err
	}
	if req.File != nil && !storage.IsAllowedMIMEType(req.File.Header.Get("Content-Type")) {
		return fmt.Errorf("attachment must be an archive: %w", common.ErrValidation)
	}
	return nil
}

// ValidateHintBudget enforces the hint count cap and keeps the total penalty
// within the question's own point value.
func ValidateHintBudget(hints []HintRequest, questionPoints int) error {
	if len(hints) > model.MaxHintsPerQuestion {
		return fmt.Errorf("at most %d hints per question: %w", model.MaxHintsPerQuestion, common.ErrValidation)
	}
	total := 0
	for _, h := range hints {
		if h.Penalty < 0 {
			return fmt.Errorf("hint penalty must not be negative: %w", common.ErrValidation)
		}
		total += h.Penalty
	}
	if total > questionPoints {
		return fmt.Errorf("hint penalties (%d) exceed question points (%d): %w", total, questionPoints, common.ErrValidation)
	}
	return nil
}

func (s *QuestionService) Create(ctx context.Context, req QuestionRequest) (*model.Question, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	if _, err := s.categoryRepo.FindByID(ctx, req.CategoryID); err != nil {
		return nil, fmt.Errorf("category not found: %w", err)
	}

	encrypted, err := s.cipher.Encrypt(req.Answer)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt answer: %w", err)
	}

	question := &model.Question{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Answer:      encrypted,
		Points:      req.Points,
		Difficulty:  model.QuestionDifficulty(req.Difficulty),
		CategoryID:  req.CategoryID,
		Author:      req.Author,
		Practice:    model.QuestionMode(req.Mode) == model.ModePractice,
		Tournament:  model.QuestionMode(req.Mode) == model.ModeTournament,
	}

	// The upload happens outside the transaction; roll it back by deleting
	// the file if the transaction fails.
	var filePath string
	if req.File != nil {
		filePath, err = s.fileStore.Save(question.Title, req.File)
		if err != nil {
			return nil, fmt.Errorf("failed to store attachment: %w", err)
		}
		question.FilePath = &filePath
	}

	hints := make([]model.Hint, 0, len(req.Hints))
	for _, h := range req.Hints {
		hints = append(hints, model.Hint{
			ID:          uuid.NewString(),
			QuestionID:  question.ID,
			Description: h.Description,
			Penalty:     h.Penalty,
		})
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.questionRepo.Create(ctx, tx, question); err != nil {
			return err
		}
		return s.questionRepo.AddHints(ctx, tx, question.ID, hints)
	})
	if err != nil {
		if filePath != "" {
			s.fileStore.Remove(filePath)
		}
		return nil, err
	}

	question.Hints = hints
	return question, nil
}

func (s *QuestionService) Update(ctx context.Context, id string, req QuestionRequest) (*model.Question, error) {
	existing, err := s.questionRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	active, err := s.questionRepo.HasActivity(ctx, id)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, fmt.Errorf("question has submissions or hint uses and cannot be edited: %w", common.ErrConflict)
	}

	if err := s.validate(&req); err != nil {
		return nil, err
	}
	if _, err := s.categoryRepo.FindByID(ctx, req.CategoryID); err != nil {
		return nil, fmt.Errorf("category not found: %w", err)
	}

	// A question already offered in a tournament can never go to practice.
	if model.QuestionMode(req.Mode) == model.ModePractice {
		links, err := s.tournamentRepo.ListLinksByQuestion(ctx, nil, id)
		if err != nil {
			return nil, err
		}
		if len(links) > 0 {
			return nil, fmt.Errorf("question is attached to a tournament and cannot become practice: %w", common.ErrConflict)
		}
	}

	encrypted, err := s.cipher.Encrypt(req.Answer)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt answer: %w", err)
	}

	updated := &model.Question{
		ID:          id,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Answer:      encrypted,
		Points:      req.Points,
		Difficulty:  model.QuestionDifficulty(req.Difficulty),
		CategoryID:  req.CategoryID,
		Author:      req.Author,
		Practice:    model.QuestionMode(req.Mode) == model.ModePractice,
		Tournament:  model.QuestionMode(req.Mode) == model.ModeTournament,
		FilePath:    existing.FilePath,
	}

	var newFilePath string
	if req.File != nil {
		newFilePath, err = s.fileStore.Save(updated.Title, req.File)
		if err != nil {
			return nil, fmt.Errorf("failed to store attachment: %w", err)
		}
		updated.FilePath = &newFilePath
	}

	hints := make([]model.Hint, 0, len(req.Hints))
	for _, h := range req.Hints {
		hints = append(hints, model.Hint{
			ID:          uuid.NewString(),
			QuestionID:  id,
			Description: h.Description,
			Penalty:     h.Penalty,
		})
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.questionRepo.Update(ctx, tx, updated); err != nil {
			return err
		}
		if err := s.questionRepo.DeleteHintsByQuestionID(ctx, tx, id); err != nil {
			return err
		}
		return s.questionRepo.AddHints(ctx, tx, id, hints)
	})
	if err != nil {
		if newFilePath != "" {
			s.fileStore.Remove(newFilePath)
		}
		return nil, err
	}

	if newFilePath != "" && existing.HasFile() && *existing.FilePath != newFilePath {
		s.fileStore.Remove(*existing.FilePath)
	}

	updated.Hints = hints
	return updated, nil
}

// Delete removes a question and reverses every award derived from it: each
// practice solver loses the question's points, each tournament solve is
// subtracted from the user's tournament points and the team's score, and all
// dependent rows go away in the same transaction.
func (s *QuestionService) Delete(ctx context.Context, id string) error {
	question, err := s.questionRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	practiceSubs, err := s.submissionRepo.ListSubmittedByQuestion(ctx, id)
	if err != nil {
		return err
	}
	links, err := s.tournamentRepo.ListLinksByQuestion(ctx, nil, id)
	if err != nil {
		return err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		for _, sub := range practiceSubs {
			if err := s.scoreRepo.AddPoints(ctx, tx, sub.UserID, -question.Points); err != nil {
				return err
			}
		}
		if err := s.submissionRepo.DeleteSubmittedByQuestion(ctx, tx, id); err != nil {
			return err
		}

		for _, link := range links {
			if err := s.reverseLinkSubmissions(ctx, tx, &link, question.Points); err != nil {
				return err
			}
		}

		if err := s.submissionRepo.DeleteHintUsedByQuestion(ctx, tx, id); err != nil {
			return err
		}
		if err := s.questionRepo.DeleteHintsByQuestionID(ctx, tx, id); err != nil {
			return err
		}
		// question_tournament links go with the question row (FK cascade).
		return s.questionRepo.Delete(ctx, tx, id)
	})
	if err != nil {
		return err
	}

	if question.HasFile() {
		s.fileStore.Remove(*question.FilePath)
	}
	s.leaderboard.InvalidatePractice(ctx)
	for _, link := range links {
		s.leaderboard.InvalidateTournament(ctx, link.TournamentID)
	}
	return nil
}

// reverseLinkSubmissions backs out every tournament solve recorded against
// one question-tournament link.
func (s *QuestionService) reverseLinkSubmissions(ctx context.Context, tx *sql.Tx, link *model.QuestionTournament, points int) error {
	subs, err := s.submissionRepo.ListTournamentSubmittedByLink(ctx, link.ID)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if err := s.scoreRepo.AddTournamentPoints(ctx, tx, sub.UserID, sub.TournamentID, -points); err != nil {
			return err
		}
		if err := s.scoreRepo.AddTeamScore(ctx, tx, sub.TeamID, sub.TournamentID, -points); err != nil {
			return err
		}
	}
	return s.submissionRepo.DeleteTournamentSubmittedByLink(ctx, tx, link.ID)
}

// Get returns one question, redacted for non-admin callers. With a
// tournament context the question must actually be offered in it.
func (s *QuestionService) Get(ctx context.Context, caller *model.User, id, tournamentID string) (*model.Question, error) {
	question, err := s.questionRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if tournamentID != "" {
		if _, err := s.tournamentRepo.FindLink(ctx, id, tournamentID); err != nil {
			return nil, err
		}
	}

	hints, err := s.questionRepo.GetHintsByQuestionID(ctx, id)
	if err != nil {
		return nil, err
	}
	question.Hints = hints

	if caller.Role != model.RoleAdmin {
		RedactQuestion(question)
	}
	return question, nil
}

// RedactQuestion strips fields regular users must not see. Hint text stays
// hidden until the hint is paid for.
func RedactQuestion(q *model.Question) {
	q.Answer = nil
	q.FilePath = nil
	for i := range q.Hints {
		q.Hints[i].Description = ""
	}
}

type ListQuestionsRequest struct {
	Page       int
	Categories []string
	Difficulty string
	Mode       string
	SortBy     string
	Admin      bool
}

// sortKeys is the whitelist of sortable columns.
var sortKeys = map[string]string{
	"points":     "q.points",
	"difficulty": "q.difficulty",
	"title":      "q.title",
	"created_at": "q.created_at",
}

type QuestionPage struct {
	Questions []model.Question `json:"questions"`
	Total     int              `json:"total"`
	Page      int              `json:"page"`
	PageSize  int              `json:"page_size"`
}

func (s *QuestionService) List(ctx context.Context, req ListQuestionsRequest) (*QuestionPage, error) {
	page := req.Page
	if page <= 0 {
		page = 1
	}

	mode := model.QuestionMode(req.Mode)
	if !req.Admin && mode != model.ModeTournament {
		// Users filter within the published modes only; unpublished and
		// unknown values fall back to the practice listing.
		mode = model.ModePractice
	}

	orderBy := ""
	if col, ok := sortKeys[req.SortBy]; ok {
		orderBy = col + " ASC, q.created_at DESC"
	} else if mode == model.ModePractice {
		orderBy = "q.points ASC, q.created_at DESC"
	}

	filter := repository.QuestionFilter{
		Categories: req.Categories,
		Difficulty: model.QuestionDifficulty(req.Difficulty),
		Mode:       mode,
		OrderBy:    orderBy,
	}

	questions, total, err := s.questionRepo.List(ctx, QuestionPageSize, (page-1)*QuestionPageSize, filter)
	if err != nil {
		return nil, err
	}

	if !req.Admin {
		for i := range questions {
			RedactQuestion(&questions[i])
		}
	}

	return &QuestionPage{Questions: questions, Total: total, Page: page, PageSize: QuestionPageSize}, nil
}

// Download opens the stored attachment for streaming. The caller closes the
// returned file.
func (s *QuestionService) Download(ctx context.Context, id string) (*os.File, string, error) {
	question, err := s.questionRepo.FindByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if !question.HasFile() {
		return nil, "", fmt.Errorf("question has no attachment: %w", common.ErrNotFound)
	}
	f, err := s.fileStore.Open(*question.FilePath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open attachment: %w", err)
	}
	return f, filepath.Base(*question.FilePath), nil
}

func (s *QuestionService) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
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
