// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, schedule, comment, user, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeDuplicateUsername  = "DUPLICATE_USERNAME"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeScheduleNotFound   = "SCHEDULE_NOT_FOUND"
	ErrCodeCommentNotFound    = "COMMENT_NOT_FOUND"
	ErrCodeUnauthenticated    = "UNAUTHENTICATED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeCSRFInvalid        = "CSRF_INVALID"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// HasCode はerrがAPIErrorであり、指定コードを持つかどうかを返す。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力値が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewDuplicateUsernameError はユーザー名重複エラーを生成する。
func NewDuplicateUsernameError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateUsername,
		Message:  fmt.Sprintf("このユーザー名は既に使用されています: %s", username),
		Category: "user",
		Action:   "別のユーザー名を指定してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("指定されたユーザーが見つかりません: %s", userID),
		Category: "user",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewScheduleNotFoundError は予定が見つからない場合のエラーを生成する。
func NewScheduleNotFoundError(scheduleID string) *APIError {
	return &APIError{
		Code:     ErrCodeScheduleNotFound,
		Message:  fmt.Sprintf("指定された予定が見つかりません: %s", scheduleID),
		Category: "schedule",
		Action:   "予定IDを確認してください。",
	}
}

// NewCommentNotFoundError はコメントが見つからない場合のエラーを生成する。
func NewCommentNotFoundError(commentID string) *APIError {
	return &APIError{
		Code:     ErrCodeCommentNotFound,
		Message:  fmt.Sprintf("指定されたコメントが見つかりません: %s", commentID),
		Category: "comment",
		Action:   "コメントIDを確認してください。",
	}
}

// NewUnauthenticatedError は未認証アクセスのエラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "unauthenticated: 認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// ユーザー名の存在有無を推測されないよう、未登録とパスワード不一致を区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "ユーザー名またはパスワードが一致しません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewForbiddenError は所有者以外による変更操作のエラーを生成する。
func NewForbiddenError(resource string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  fmt.Sprintf("この%sを変更する権限がありません。", resource),
		Category: "auth",
		Action:   "自分が作成したデータのみ変更できます。",
	}
}

// NewRateLimitedError はレート制限超過のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエスト数が上限を超えました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewCSRFInvalidError はCSRFトークン検証失敗のエラーを生成する。
func NewCSRFInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewInternalError は内部エラーのレスポンス用エラーを生成する。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
