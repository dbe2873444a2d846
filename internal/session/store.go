// Package session はログインセッションの発行・参照・無効化を提供する。
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/hitoshi/schedboard/internal/model"
	"github.com/hitoshi/schedboard/internal/repository"
)

// DefaultMaxAge はセッションの既定有効期間。
const DefaultMaxAge = 7 * 24 * time.Hour

// tokenBytes はセッショントークンの乱数バイト長。
const tokenBytes = 32

// Store はセッションストア。永続化先はSessionRepositoryの実装で切り替える。
// 並行呼び出しに対して安全であることはリポジトリ実装が保証する。
type Store struct {
	repo   repository.SessionRepository
	maxAge time.Duration
	now    func() time.Time
}

// NewStore はStoreを生成する。maxAgeが0以下の場合はDefaultMaxAgeを使用する。
func NewStore(repo repository.SessionRepository, maxAge time.Duration) *Store {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Store{repo: repo, maxAge: maxAge, now: time.Now}
}

// MaxAge はセッションの有効期間を返す。Cookieの有効期限に使用する。
func (s *Store) MaxAge() time.Duration {
	return s.maxAge
}

// Create はユーザーの新しいセッションを発行する。
// 同一ユーザーの既存セッションはそのまま有効。
func (s *Store) Create(ctx context.Context, userID string) (*model.Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	now := s.now()
	sess := &model.Session{
		ID:        token,
		UserID:    userID,
		ExpiresAt: now.Add(s.maxAge),
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return sess, nil
}

// Get はトークンに対応する有効なセッションを返す。
// 空・未知・期限切れのトークンはnil, nilを返す。
func (s *Store) Get(ctx context.Context, token string) (*model.Session, error) {
	if token == "" {
		return nil, nil
	}

	sess, err := s.repo.FindByID(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if sess == nil || sess.UserID == "" || sess.Expired(s.now()) {
		return nil, nil
	}
	return sess, nil
}

// Invalidate はセッションを無効化する。未知のトークンでも成功する。
func (s *Store) Invalidate(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.repo.DeleteByID(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// InvalidateUser はユーザーの全セッションを無効化する。
func (s *Store) InvalidateUser(ctx context.Context, userID string) error {
	if err := s.repo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

// generateToken は暗号的に安全なセッショントークンを生成する。
func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
