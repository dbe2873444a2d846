// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/schedboard/internal/model"
)

// リポジトリの変更系操作が返す番兵エラー。
// 参照系（FindByID等）は見つからない場合にnil, nilを返す。
var (
	// ErrNotFound は更新・削除対象のレコードが存在しないことを示す。
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate は一意制約違反を示す。
	ErrDuplicate = errors.New("duplicate record")
	// ErrReferenceMissing は外部キーの参照先が存在しないことを示す。
	ErrReferenceMissing = errors.New("referenced record not found")
)

// UserMutator はトランザクション内でユーザーを変更する関数。
// エラーを返すと変更は破棄され、そのエラーがそのまま呼び出し元に返る。
type UserMutator func(user *model.User) error

// ScheduleMutator はトランザクション内で予定を変更・検査する関数。
type ScheduleMutator func(schedule *model.Schedule) error

// CommentMutator はトランザクション内でコメントを変更・検査する関数。
type CommentMutator func(comment *model.Comment) error

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// List は全ユーザーを作成順に返す。
	List(ctx context.Context) ([]*model.User, error)

	// Create はユーザーを作成し、CreatedAt/UpdatedAtを設定する。
	// ユーザー名が重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// Update は行ロックを取得したうえでmutateを適用し、同一トランザクションで保存する。
	// 対象が存在しない場合はErrNotFound、ユーザー名が重複する場合はErrDuplicateを返す。
	Update(ctx context.Context, id string, mutate UserMutator) (*model.User, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するschedules、comments、sessionsはCASCADE削除される。
	// checkがnilでなければ削除前に同一トランザクション内で呼び出す。
	// 対象が存在しない場合はErrNotFoundを返す。
	DeleteByID(ctx context.Context, id string, check UserMutator) error
}

// ScheduleRepository は予定データの永続化インターフェース。
type ScheduleRepository interface {
	// FindByID は指定IDの予定を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Schedule, error)

	// List は全ユーザーの予定を作成順に返す。
	List(ctx context.Context) ([]*model.Schedule, error)

	// ListByUserID は指定ユーザーが所有する予定を作成順に返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Schedule, error)

	// Create は予定を作成する。所有ユーザーが存在しない場合はErrReferenceMissingを返す。
	Create(ctx context.Context, schedule *model.Schedule) error

	// Update は行ロックを取得したうえでmutateを適用し、同一トランザクションで保存する。
	Update(ctx context.Context, id string, mutate ScheduleMutator) (*model.Schedule, error)

	// DeleteByID は指定IDの予定を削除する。関連するcommentsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string, check ScheduleMutator) error
}

// CommentRepository はコメントデータの永続化インターフェース。
type CommentRepository interface {
	// FindByID は指定IDのコメントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Comment, error)

	// ListByScheduleID は予定に紐づくコメントを作成順に返す。
	ListByScheduleID(ctx context.Context, scheduleID string) ([]*model.Comment, error)

	// Create はコメントを作成する。
	// 作成者または予定が存在しない場合はErrReferenceMissingを返す。
	Create(ctx context.Context, comment *model.Comment) error

	// Update は行ロックを取得したうえでmutateを適用し、同一トランザクションで保存する。
	Update(ctx context.Context, id string, mutate CommentMutator) (*model.Comment, error)

	// DeleteByID は指定IDのコメントを削除する。
	DeleteByID(ctx context.Context, id string, check CommentMutator) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
