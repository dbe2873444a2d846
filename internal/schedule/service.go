// Package schedule は予定管理のドメインロジックを提供する。
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hitoshi/schedboard/internal/model"
	"github.com/hitoshi/schedboard/internal/repository"
	"github.com/hitoshi/schedboard/internal/security"
	"github.com/hitoshi/schedboard/internal/validation"
)

type scheduleInput struct {
	Title   string `json:"title" validate:"required,max=50"`
	Content string `json:"content" validate:"required"`
}

// Service は予定管理のサービス層。
type Service struct {
	scheduleRepo repository.ScheduleRepository
	userRepo     repository.UserRepository
	sanitizer    security.TextSanitizer
	validate     *validation.Validator
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	scheduleRepo repository.ScheduleRepository,
	userRepo repository.UserRepository,
	sanitizer security.TextSanitizer,
	validate *validation.Validator,
) *Service {
	return &Service{
		scheduleRepo: scheduleRepo,
		userRepo:     userRepo,
		sanitizer:    sanitizer,
		validate:     validate,
	}
}

// input はタグ除去後の値を検証して返す。
func (s *Service) input(title, content string) (scheduleInput, error) {
	in := scheduleInput{
		Title:   s.sanitizer.Sanitize(title),
		Content: s.sanitizer.Sanitize(content),
	}
	if err := s.validate.Struct(in); err != nil {
		return in, err
	}
	return in, nil
}

// Create はuserIDを所有者とする予定を作成する。
// ユーザーが存在しない場合はUSER_NOT_FOUNDを返し、何も保存しない。
func (s *Service) Create(ctx context.Context, userID, title, content string) (*model.Schedule, error) {
	in, err := s.input(title, content)
	if err != nil {
		return nil, err
	}

	owner, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if owner == nil {
		return nil, model.NewUserNotFoundError(userID)
	}

	sc := &model.Schedule{
		ID:      uuid.New().String(),
		Title:   in.Title,
		Content: in.Content,
		UserID:  userID,
	}
	if err := s.scheduleRepo.Create(ctx, sc); err != nil {
		// 確認後にユーザーが削除された場合
		if errors.Is(err, repository.ErrReferenceMissing) {
			return nil, model.NewUserNotFoundError(userID)
		}
		return nil, fmt.Errorf("予定の作成に失敗しました: %w", err)
	}

	slog.Info("予定を作成しました",
		slog.String("schedule_id", sc.ID),
		slog.String("user_id", userID),
	)
	return sc, nil
}

// List は予定を作成順に返す。filterUserIDが空でなければそのユーザーの予定に絞り込む。
func (s *Service) List(ctx context.Context, filterUserID string) ([]*model.Schedule, error) {
	var (
		schedules []*model.Schedule
		err       error
	)
	if filterUserID == "" {
		schedules, err = s.scheduleRepo.List(ctx)
	} else {
		schedules, err = s.scheduleRepo.ListByUserID(ctx, filterUserID)
	}
	if err != nil {
		return nil, fmt.Errorf("予定一覧の取得に失敗しました: %w", err)
	}
	return schedules, nil
}

// Get は指定IDの予定を返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Schedule, error) {
	sc, err := s.scheduleRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("予定の取得に失敗しました: %w", err)
	}
	if sc == nil {
		return nil, model.NewScheduleNotFoundError(id)
	}
	return sc, nil
}

// Update はタイトルと内容を変更する。所有者以外はFORBIDDEN。
// 同時更新は後勝ちで、途中状態が混ざることはない。
func (s *Service) Update(ctx context.Context, callerID, id, title, content string) (*model.Schedule, error) {
	in, err := s.input(title, content)
	if err != nil {
		return nil, err
	}

	updated, err := s.scheduleRepo.Update(ctx, id, func(sc *model.Schedule) error {
		if sc.UserID != callerID {
			return model.NewForbiddenError("予定")
		}
		sc.Title = in.Title
		sc.Content = in.Content
		return nil
	})
	if err != nil {
		return nil, mapMutationError(err, id, "予定の更新に失敗しました")
	}

	slog.Info("予定を更新しました", slog.String("schedule_id", id))
	return updated, nil
}

// Delete は予定を削除する。所有者以外はFORBIDDEN。関連コメントはCASCADE削除される。
func (s *Service) Delete(ctx context.Context, callerID, id string) error {
	err := s.scheduleRepo.DeleteByID(ctx, id, func(sc *model.Schedule) error {
		if sc.UserID != callerID {
			return model.NewForbiddenError("予定")
		}
		return nil
	})
	if err != nil {
		return mapMutationError(err, id, "予定の削除に失敗しました")
	}

	slog.Info("予定を削除しました", slog.String("schedule_id", id))
	return nil
}

func mapMutationError(err error, id, msg string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewScheduleNotFoundError(id)
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return fmt.Errorf("%s: %w", msg, err)
}
