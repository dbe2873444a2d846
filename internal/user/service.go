// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/schedboard/internal/credential"
	"github.com/hitoshi/schedboard/internal/model"
	"github.com/hitoshi/schedboard/internal/repository"
	"github.com/hitoshi/schedboard/internal/validation"
)

// SessionInvalidator はユーザーの全セッションを無効化するインターフェース。
type SessionInvalidator interface {
	InvalidateUser(ctx context.Context, userID string) error
}

// credentialsInput はユーザー名とパスワードの検証ルール。
type credentialsInput struct {
	Username string `json:"username" validate:"required,max=20"`
	Password string `json:"password" validate:"required,pwlen"`
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo repository.UserRepository
	sessions SessionInvalidator
	hasher   credential.Hasher
	validate *validation.Validator
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessions SessionInvalidator,
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

// Register はユーザーを登録する。
// ユーザー名が既に使われている場合はDUPLICATE_USERNAMEを返す。
func (s *Service) Register(ctx context.Context, username, password string) (*model.User, error) {
	in := credentialsInput{Username: strings.TrimSpace(username), Password: password}
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	existing, err := s.userRepo.FindByUsername(ctx, in.Username)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateUsernameError(in.Username)
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	u := &model.User{
		ID:           uuid.New().String(),
		Username:     in.Username,
		PasswordHash: digest,
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		// 事前確認と挿入の間に同名ユーザーが作られた場合
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateUsernameError(in.Username)
		}
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	slog.Info("ユーザーを登録しました",
		slog.String("user_id", u.ID),
		slog.String("username", u.Username),
	)
	return u, nil
}

// List は全ユーザーを登録順に返す。
func (s *Service) List(ctx context.Context) ([]*model.User, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// Get は指定IDのユーザーを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.User, error) {
	u, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError(id)
	}
	return u, nil
}

// Update はユーザー名とパスワードを変更する。本人以外はFORBIDDEN。
// パスワードは毎回ハッシュし直す。
func (s *Service) Update(ctx context.Context, callerID, id, username, password string) (*model.User, error) {
	in := credentialsInput{Username: strings.TrimSpace(username), Password: password}
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	// 行ロック中にbcryptを実行しないよう先にハッシュする
	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	updated, err := s.userRepo.Update(ctx, id, func(u *model.User) error {
		if u.ID != callerID {
			return model.NewForbiddenError("ユーザー")
		}
		u.Username = in.Username
		u.PasswordHash = digest
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound):
		return nil, model.NewUserNotFoundError(id)
	case errors.Is(err, repository.ErrDuplicate):
		return nil, model.NewDuplicateUsernameError(in.Username)
	default:
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		return nil, fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}

	slog.Info("ユーザーを更新しました", slog.String("user_id", id))
	return updated, nil
}

// Delete はユーザーを削除する。本人以外はFORBIDDEN。
// 予定・コメント・セッションはCASCADE削除される。
// セッションストアがDB外（Redis）の場合に備え、明示的にも無効化する。
func (s *Service) Delete(ctx context.Context, callerID, id string) error {
	err := s.userRepo.DeleteByID(ctx, id, func(u *model.User) error {
		if u.ID != callerID {
			return model.NewForbiddenError("ユーザー")
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError(id)
		}
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return apiErr
		}
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	if s.sessions != nil {
		if err := s.sessions.InvalidateUser(ctx, id); err != nil {
			slog.Error("削除済みユーザーのセッション無効化に失敗しました",
				slog.String("user_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	slog.Info("ユーザーを削除しました", slog.String("user_id", id))
	return nil
}
