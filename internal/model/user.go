package model

import "time"

// Timestamps は永続化される全エンティティが持つ作成・更新日時。
// 値はストア側で書き込み時に設定され、クライアントからは変更できない。
type Timestamps struct {
	CreatedAt time.Time
	UpdatedAt time.Time
}

// User はサービス利用ユーザーを表す。
// PasswordHash はハッシュ化済みのダイジェストのみを保持し、生パスワードは持たない。
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Timestamps
}

// Session はユーザーのログインセッションを表す。
// ID はCookieで受け渡す不透明なトークン。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired はセッションが指定時刻において期限切れかどうかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
