package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"ctf_arena/internal/common"
	"ctf_arena/internal/domain/model"

	"github.com/jackc/pgx/v5/pgconn"
)

// QuestionFilter narrows ListQuestions. Categories holds category names.
// OrderBy must come from the service-level whitelist; it is interpolated into
// the query verbatim.
type QuestionFilter struct {
	Categories []string
	Difficulty model.QuestionDifficulty
	Mode       model.QuestionMode
	OrderBy    string
}

type QuestionRepository interface {
	Create(ctx context.Context, tx *sql.Tx, question *model.Question) error
	Update(ctx context.Context, tx *sql.Tx, question *model.Question) error
	Delete(ctx context.Context, tx *sql.Tx, id string) error
	FindByID(ctx context.Context, id string) (*model.Question, error)
	List(ctx context.Context, limit, offset int, filter QuestionFilter) ([]model.Question, int, error)
	SetTournamentFlag(ctx context.Context, tx *sql.Tx, id string, flag bool) error

	// HasActivity reports whether any submission or hint use references the
	// question; edits are blocked while it is true.
	HasActivity(ctx context.Context, questionID string) (bool, error)

	AddHints(ctx context.Context, tx *sql.Tx, questionID string, hints []model.Hint) error
	GetHintsByQuestionID(ctx context.Context, questionID string) ([]model.Hint, error)
	DeleteHintsByQuestionID(ctx context.Context, tx *sql.Tx, questionID string) error
	FindHintByID(ctx context.Context, hintID string) (*model.Hint, error)
}

type pgQuestionRepository struct {
	db *sql.DB
}

func NewPgQuestionRepository(db *sql.DB) QuestionRepository {
	return &pgQuestionRepository{db: db}
}

func (r *pgQuestionRepository) Create(ctx context.Context, tx *sql.Tx, q *model.Question) error {
	query := `INSERT INTO questions (id, title, description, answer, points, difficulty, category_id, file_path, author, practice, tournament)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := pick(r.db, tx).ExecContext(ctx, query,
		q.ID, q.Title, q.Description, q.Answer, q.Points, q.Difficulty, q.CategoryID, q.FilePath, q.Author, q.Practice, q.Tournament)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("question with this title already exists: %w", common.ErrConflict)
		}
		return fmt.Errorf("pgQuestionRepository.Create: %w", err)
	}
	return nil
}

func (r *pgQuestionRepository) Update(ctx context.Context, tx *sql.Tx, q *model.Question) error {
	query := `UPDATE questions SET
	            title = $1, description = $2, answer = $3, points = $4, difficulty = $5,
	            category_id = $6, file_path = $7, author = $8, practice = $9, tournament = $10,
	            updated_at = CURRENT_TIMESTAMP
	          WHERE id = $11`
	res, err := pick(r.db, tx).ExecContext(ctx, query,
		q.Title, q.Description, q.Answer, q.Points, q.Difficulty, q.CategoryID, q.FilePath, q.Author, q.Practice, q.Tournament, q.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("question with this title already exists: %w", common.ErrConflict)
		}
		return fmt.Errorf("pgQuestionRepository.Update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *pgQuestionRepository) Delete(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := pick(r.db, tx).ExecContext(ctx, `DELETE FROM questions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("pgQuestionRepository.Delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// SetTournamentFlag flips only the tournament flag; attach and detach call it
// from inside their transactions.
func (r *pgQuestionRepository) SetTournamentFlag(ctx context.Context, tx *sql.Tx, id string, flag bool) error {
	query := `UPDATE questions SET tournament = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`
	res, err := pick(r.db, tx).ExecContext(ctx, query, flag, id)
	if err != nil {
		return fmt.Errorf("pgQuestionRepository.SetTournamentFlag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *pgQuestionRepository) FindByID(ctx context.Context, id string) (*model.Question, error) {
	query := `
	    SELECT q.id, q.title, q.description, q.answer, q.points, q.difficulty,
	           q.category_id, c.name, q.file_path, q.author, q.practice, q.tournament,
	           q.created_at, q.updated_at
	    FROM questions q
	    JOIN categories c ON q.category_id = c.id
	    WHERE q.id = $1`

	q := &model.Question{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&q.ID, &q.Title, &q.Description, &q.Answer, &q.Points, &q.Difficulty,
		&q.CategoryID, &q.CategoryName, &q.FilePath, &q.Author, &q.Practice, &q.Tournament,
		&q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgQuestionRepository.FindByID: %w", err)
	}
	return q, nil
}

func (r *pgQuestionRepository) List(ctx context.Context, limit, offset int, filter QuestionFilter) ([]model.Question, int, error) {
	var baseQuery strings.Builder
	baseQuery.WriteString(`
	    SELECT q.id, q.title, q.description, q.points, q.difficulty,
	           q.category_id, c.name, q.file_path, q.author, q.practice, q.tournament,
	           q.created_at, q.updated_at
	    FROM questions q
	    JOIN categories c ON q.category_id = c.id`)

	var countQueryBuilder strings.Builder
	countQueryBuilder.WriteString(`SELECT COUNT(*) FROM questions q JOIN categories c ON q.category_id = c.id`)

	var conditions []string
	var args []interface{}
	argID := 1

	if len(filter.Categories) > 0 {
		placeholders := make([]string, len(filter.Categories))
		for i := range filter.Categories {
			placeholders[i] = fmt.Sprintf("$%d", argID)
			args = append(args, filter.Categories[i])
			argID++
		}
		conditions = append(conditions, fmt.Sprintf("c.name IN (%s)", strings.Join(placeholders, ",")))
	}

	if filter.Difficulty != "" {
		conditions = append(conditions, fmt.Sprintf("q.difficulty = $%d", argID))
		args = append(args, filter.Difficulty)
		argID++
	}

	switch filter.Mode {
	case model.ModePractice:
		conditions = append(conditions, "q.practice = TRUE")
	case model.ModeTournament:
		conditions = append(conditions, "q.tournament = TRUE")
	case model.ModeUnpublished:
		conditions = append(conditions, "q.practice = FALSE AND q.tournament = FALSE")
	}

	if len(conditions) > 0 {
		whereClause := " WHERE " + strings.Join(conditions, " AND ")
		baseQuery.WriteString(whereClause)
		countQueryBuilder.WriteString(whereClause)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQueryBuilder.String(), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgQuestionRepository.List count: %w", err)
	}

	orderBy := filter.OrderBy
	if orderBy == "" {
		orderBy = "q.created_at DESC"
	}
	baseQuery.WriteString(fmt.Sprintf(" ORDER BY %s LIMIT $%d OFFSET $%d", orderBy, argID, argID+1))
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, baseQuery.String(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgQuestionRepository.List query: %w", err)
	}
	defer rows.Close()

	questions := []model.Question{}
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.Title, &q.Description, &q.Points, &q.Difficulty,
			&q.CategoryID, &q.CategoryName, &q.FilePath, &q.Author, &q.Practice, &q.Tournament,
			&q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("pgQuestionRepository.List scan: %w", err)
		}
		questions = append(questions, q)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("pgQuestionRepository.List rows.Err: %w", err)
	}

	return questions, total, nil
}

func (r *pgQuestionRepository) HasActivity(ctx context.Context, questionID string) (bool, error) {
	query := `
	    SELECT EXISTS(SELECT 1 FROM submitted WHERE question_id = $1)
	        OR EXISTS(SELECT 1 FROM tournament_submitted ts
	                  JOIN question_tournament qt ON ts.question_tournament_id = qt.id
	                  WHERE qt.question_id = $1)
	        OR EXISTS(SELECT 1 FROM hint_used hu
	                  JOIN hints h ON hu.hint_id = h.id
	                  WHERE h.question_id = $1)`
	var active bool
	if err := r.db.QueryRowContext(ctx, query, questionID).Scan(&active); err != nil {
		return false, fmt.Errorf("pgQuestionRepository.HasActivity: %w", err)
	}
	return active, nil
}

func (r *pgQuestionRepository) AddHints(ctx context.Context, tx *sql.Tx, questionID string, hints []model.Hint) error {
	if len(hints) == 0 {
		return nil
	}
	query := `INSERT INTO hints (id, question_id, description, penalty) VALUES ($1, $2, $3, $4)`
	for _, h := range hints {
		if _, err := pick(r.db, tx).ExecContext(ctx, query, h.ID, questionID, h.Description, h.Penalty); err != nil {
			return fmt.Errorf("pgQuestionRepository.AddHints exec for hint %s: %w", h.ID, err)
		}
	}
	return nil
}

func (r *pgQuestionRepository) GetHintsByQuestionID(ctx context.Context, questionID string) ([]model.Hint, error) {
	query := `SELECT id, question_id, description, penalty FROM hints WHERE question_id = $1 ORDER BY penalty ASC`
	rows, err := r.db.QueryContext(ctx, query, questionID)
	if err != nil {
		return nil, fmt.Errorf("pgQuestionRepository.GetHintsByQuestionID query: %w", err)
	}
	defer rows.Close()

	var hints []model.Hint
	for rows.Next() {
		var h model.Hint
		if err := rows.Scan(&h.ID, &h.QuestionID, &h.Description, &h.Penalty); err != nil {
			return nil, fmt.Errorf("pgQuestionRepository.GetHintsByQuestionID scan: %w", err)
		}
		hints = append(hints, h)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgQuestionRepository.GetHintsByQuestionID rows.Err: %w", err)
	}
	return hints, nil
}

func (r *pgQuestionRepository) DeleteHintsByQuestionID(ctx context.Context, tx *sql.Tx, questionID string) error {
	if _, err := pick(r.db, tx).ExecContext(ctx, `DELETE FROM hints WHERE question_id = $1`, questionID); err != nil {
		return fmt.Errorf("pgQuestionRepository.DeleteHintsByQuestionID: %w", err)
	}
	return nil
}

func (r *pgQuestionRepository) FindHintByID(ctx context.Context, hintID string) (*model.Hint, error) {
	query := `SELECT id, question_id, description, penalty FROM hints WHERE id = $1`
	h := &model.Hint{}
	err := r.db.QueryRowContext(ctx, query, hintID).Scan(&h.ID, &h.QuestionID, &h.Description, &h.Penalty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgQuestionRepository.FindHintByID: %w", err)
	}
	return h, nil
}
