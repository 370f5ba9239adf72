package service

import (
	"context"
	"fmt"
	"strings"

	"ctf_arena/internal/common"
	"ctf_arena/internal/domain/model"
	"ctf_arena/internal/domain/repository"

	"github.com/google/uuid"
)

type CategoryService struct {
	categoryRepo repository.CategoryRepository
}

func NewCategoryService(categoryRepo repository.CategoryRepository) *CategoryService {
	return &CategoryService{categoryRepo: categoryRepo}
}

type CategoryRequest struct {
	Name string `json:"name"`
}

func (s *CategoryService) Create(ctx context.Context, req CategoryRequest) (*model.Category, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("category name is required: %w", common.ErrBadRequest)
	}

	category := &model.Category{ID: uuid.NewString(), Name: name}
	if err := s.categoryRepo.Create(ctx, category); err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	return category, nil
}

func (s *CategoryService) Update(ctx context.Context, id string, req CategoryRequest) (*model.Category, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("category name is required: %w", common.ErrBadRequest)
	}

	category := &model.Category{ID: id, Name: name}
	if err := s.categoryRepo.Update(ctx, category); err != nil {
		return nil, fmt.Errorf("failed to update category: %w", err)
	}
	return category, nil
}

func (s *CategoryService) Delete(ctx context.Context, id string) error {
	count, err := s.categoryRepo.CountQuestions(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to count questions: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("category still has %d questions: %w", count, common.ErrConflict)
	}
	return s.categoryRepo.Delete(ctx, id)
}

func (s *CategoryService) List(ctx context.Context) ([]model.Category, error) {
	return s.categoryRepo.List(ctx)
}
