package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"ctf_arena/internal/common"
	"ctf_arena/internal/common/security"
	"ctf_arena/internal/domain/model"
	"ctf_arena/internal/domain/repository"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// AuthService bridges the institutional OAuth provider: it exchanges an
// authorization code, resolves the profile to a local user (creating the user
// and its practice point row on first login) and issues the session token.
type AuthService struct {
	userRepo    repository.UserRepository
	scoreRepo   repository.ScoreRepository
	oauthConfig *oauth2.Config
	userInfoURL string
	db          *sql.DB
}

func NewAuthService(
	userRepo repository.UserRepository,
	scoreRepo repository.ScoreRepository,
	oauthConfig *oauth2.Config,
	userInfoURL string,
	db *sql.DB,
) *AuthService {
	return &AuthService{
		userRepo:    userRepo,
		scoreRepo:   scoreRepo,
		oauthConfig: oauthConfig,
		userInfoURL: userInfoURL,
		db:          db,
	}
}

type OAuthLoginRequest struct {
	Code string `json:"code"`
}

type AuthResponse struct {
	User   *model.User `json:"user"`
	Points int         `json:"points"`
	Token  string      `json:"-"` // delivered as a cookie, not in the body
}

// userInfo is the subset of the provider's profile payload we consume.
type userInfo struct {
	Sub       string `json:"sub"`
	Name      string `json:"name"`
	StudentNo *int64 `json:"student_no,omitempty"`
}

func (s *AuthService) OAuthLogin(ctx context.Context, req OAuthLoginRequest) (*AuthResponse, error) {
	if req.Code == "" {
		return nil, fmt.Errorf("authorization code is required: %w", common.ErrBadRequest)
	}

	token, err := s.oauthConfig.Exchange(ctx, req.Code)
	if err != nil {
		return nil, fmt.Errorf("code exchange rejected by identity provider: %w", common.ErrUnauthorized)
	}

	info, err := s.fetchUserInfo(ctx, token)
	if err != nil {
		return nil, err
	}
	if info.Sub == "" {
		return nil, fmt.Errorf("identity provider returned no subject: %w", common.ErrUnauthorized)
	}

	user, err := s.userRepo.FindByOAuthID(ctx, info.Sub)
	if errors.Is(err, common.ErrNotFound) {
		user, err = s.provisionUser(ctx, info)
	}
	if err != nil {
		return nil, err
	}

	point, err := s.scoreRepo.FindPointByUserID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load points: %w", err)
	}

	sessionToken, err := security.GenerateToken(user.ID, user.DisplayName)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	return &AuthResponse{User: user, Points: point.Points, Token: sessionToken}, nil
}

func (s *AuthService) fetchUserInfo(ctx context.Context, token *oauth2.Token) (*userInfo, error) {
	client := s.oauthConfig.Client(ctx, token)
	resp, err := client.Get(s.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity provider rejected profile request (%d): %w", resp.StatusCode, common.ErrUnauthorized)
	}

	info := &userInfo{}
	if err := json.NewDecoder(resp.Body).Decode(info); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	return info, nil
}

// provisionUser creates the user row together with its practice point row so
// that scoring never observes a user without a point account.
func (s *AuthService) provisionUser(ctx context.Context, info *userInfo) (*model.User, error) {
	user := &model.User{
		ID:          uuid.NewString(),
		OAuthID:     info.Sub,
		StudentNo:   info.StudentNo,
		DisplayName: info.Name,
		Role:        model.RoleUser,
	}
	if user.DisplayName == "" {
		user.DisplayName = info.Sub
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, common.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.userRepo.Create(ctx, tx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	point := &model.Point{ID: uuid.NewString(), UserID: user.ID, Points: 0}
	if err := s.scoreRepo.CreatePoint(ctx, tx, point); err != nil {
		return nil, fmt.Errorf("failed to create point account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, common.Errorf("failed to commit transaction: %w", err)
	}
	return user, nil
}

// Me returns the current user's profile plus practice total.
func (s *AuthService) Me(ctx context.Context, user *model.User) (*AuthResponse, error) {
	point, err := s.scoreRepo.FindPointByUserID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return &AuthResponse{User: user, Points: 0}, nil
		}
		return nil, fmt.Errorf("failed to load points: %w", err)
	}
	return &AuthResponse{User: user, Points: point.Points}, nil
}
