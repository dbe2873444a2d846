// Package auth はユーザー名とパスワードによるログイン、ログアウトを提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/schedboard/internal/credential"
	"github.com/hitoshi/schedboard/internal/model"
	"github.com/hitoshi/schedboard/internal/repository"
	"github.com/hitoshi/schedboard/internal/validation"
)

// SessionManager はセッションの発行と無効化のインターフェース。
type SessionManager interface {
	Create(ctx context.Context, userID string) (*model.Session, error)
	Invalidate(ctx context.Context, token string) error
}

type loginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	sessions SessionManager
	hasher   credential.Hasher
	validate *validation.Validator
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessions SessionManager,
	hasher credential.Hasher,
	validate *validation.Validator,
) *Service {
	return &Service{
		userRepo: userRepo,
		sessions: sessions,
		hasher:   hasher,
		validate: validate,
	}
}

// Login は資格情報を検証し、新しいセッションを発行する。
// 未登録ユーザーとパスワード不一致はどちらもINVALID_CREDENTIALSを返す。
func (s *Service) Login(ctx context.Context, username, password string) (*model.Session, error) {
	in := loginInput{Username: strings.TrimSpace(username), Password: password}
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	u, err := s.userRepo.FindByUsername(ctx, in.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if u == nil || !s.hasher.Verify(in.Password, u.PasswordHash) {
		slog.Warn("login rejected", slog.String("username", in.Username))
		return nil, model.NewInvalidCredentialsError()
	}

	sess, err := s.sessions.Create(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user logged in", slog.String("user_id", u.ID))
	return sess, nil
}

// Logout はセッションを破棄する。トークンが空または未知でも成功する。
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.sessions.Invalidate(ctx, token); err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}
	if token != "" {
		slog.Info("user logged out")
	}
	return nil
}

// CurrentUser はセッションに紐づくユーザーを返す。
func (s *Service) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError(userID)
	}
	return u, nil
}
