// Package comment は予定へのコメントのドメインロジックを提供する。
package comment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/schedboard/internal/model"
	"github.com/hitoshi/schedboard/internal/repository"
	"github.com/hitoshi/schedboard/internal/security"
	"github.com/hitoshi/schedboard/internal/validation"
)

type commentInput struct {
	Content string `json:"content" validate:"required"`
}

type createInput struct {
	ScheduleID string `json:"schedule_id" validate:"required"`
	Content    string `json:"content" validate:"required"`
}

// Service はコメント管理のサービス層。
type Service struct {
	commentRepo  repository.CommentRepository
	scheduleRepo repository.ScheduleRepository
	userRepo     repository.UserRepository
	sanitizer    security.TextSanitizer
	validate     *validation.Validator
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	commentRepo repository.CommentRepository,
	scheduleRepo repository.ScheduleRepository,
	userRepo repository.UserRepository,
	sanitizer security.TextSanitizer,
	validate *validation.Validator,
) *Service {
	return &Service{
		commentRepo:  commentRepo,
		scheduleRepo: scheduleRepo,
		userRepo:     userRepo,
		sanitizer:    sanitizer,
		validate:     validate,
	}
}

func (s *Service) input(content string) (commentInput, error) {
	in := commentInput{Content: s.sanitizer.Sanitize(content)}
	return in, s.validate.Struct(in)
}

// Create はuserIDを作成者としてscheduleIDの予定にコメントする。
// ユーザーまたは予定が存在しない場合はNOT_FOUNDを返し、何も保存しない。
func (s *Service) Create(ctx context.Context, userID, scheduleID, content string) (*model.Comment, error) {
	in := createInput{
		ScheduleID: strings.TrimSpace(scheduleID),
		Content:    s.sanitizer.Sanitize(content),
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	scheduleID = in.ScheduleID

	author, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if author == nil {
		return nil, model.NewUserNotFoundError(userID)
	}

	sc, err := s.scheduleRepo.FindByID(ctx, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("予定の取得に失敗しました: %w", err)
	}
	if sc == nil {
		return nil, model.NewScheduleNotFoundError(scheduleID)
	}

	c := &model.Comment{
		ID:         uuid.New().String(),
		Content:    in.Content,
		UserID:     userID,
		ScheduleID: scheduleID,
	}
	if err := s.commentRepo.Create(ctx, c); err != nil {
		// 確認後に予定またはユーザーが削除された場合。予定側を優先して報告する。
		if errors.Is(err, repository.ErrReferenceMissing) {
			return nil, model.NewScheduleNotFoundError(scheduleID)
		}
		return nil, fmt.Errorf("コメントの作成に失敗しました: %w", err)
	}

	slog.Info("コメントを作成しました",
		slog.String("comment_id", c.ID),
		slog.String("schedule_id", scheduleID),
		slog.String("user_id", userID),
	)
	return c, nil
}

// ListBySchedule は予定に紐づくコメントを作成順に返す。
// 予定が存在しない場合はSCHEDULE_NOT_FOUNDを返す。
func (s *Service) ListBySchedule(ctx context.Context, scheduleID string) ([]*model.Comment, error) {
	sc, err := s.scheduleRepo.FindByID(ctx, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("予定の取得に失敗しました: %w", err)
	}
	if sc == nil {
		return nil, model.NewScheduleNotFoundError(scheduleID)
	}

	comments, err := s.commentRepo.ListByScheduleID(ctx, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}
	return comments, nil
}

// Update はコメント本文を変更する。作成者以外はFORBIDDEN。
func (s *Service) Update(ctx context.Context, callerID, id, content string) (*model.Comment, error) {
	in, err := s.input(content)
	if err != nil {
		return nil, err
	}

	updated, err := s.commentRepo.Update(ctx, id, func(c *model.Comment) error {
		if c.UserID != callerID {
			return model.NewForbiddenError("コメント")
		}
		c.Content = in.Content
		return nil
	})
	if err != nil {
		return nil, mapMutationError(err, id, "コメントの更新に失敗しました")
	}

	slog.Info("コメントを更新しました", slog.String("comment_id", id))
	return updated, nil
}

// Delete はコメントを削除する。作成者以外はFORBIDDEN。
func (s *Service) Delete(ctx context.Context, callerID, id string) error {
	err := s.commentRepo.DeleteByID(ctx, id, func(c *model.Comment) error {
		if c.UserID != callerID {
			return model.NewForbiddenError("コメント")
		}
		return nil
	})
	if err != nil {
		return mapMutationError(err, id, "コメントの削除に失敗しました")
	}

	slog.Info("コメントを削除しました", slog.String("comment_id", id))
	return nil
}

func mapMutationError(err error, id, msg string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewCommentNotFoundError(id)
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return fmt.Errorf("%s: %w", msg, err)
}
