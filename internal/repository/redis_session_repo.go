package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/schedboard/internal/model"
)

const (
	redisSessionKeyPrefix     = "session:"
	redisUserSessionKeyPrefix = "user_sessions:"
)

// RedisSessionRepo はRedisを使用したセッションリポジトリ。
// セッション本体は有効期限付きのキーとして保存し、
// ユーザー単位の一括削除のためにユーザーごとのセッションID集合を持つ。
type RedisSessionRepo struct {
	rdb *redis.Client
}

// NewRedisSessionRepo はRedisSessionRepoを生成する。
func NewRedisSessionRepo(rdb *redis.Client) *RedisSessionRepo {
	return &RedisSessionRepo{rdb: rdb}
}

type redisSession struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func sessionKey(id string) string { return redisSessionKeyPrefix + id }

func userSessionsKey(userID string) string { return redisUserSessionKeyPrefix + userID }

// Create はセッションを作成する。TTLはExpiresAtまでの残り時間。
func (r *RedisSessionRepo) Create(ctx context.Context, session *model.Session) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("failed to create session: already expired")
	}

	payload, err := json.Marshal(redisSession{
		UserID:    session.UserID,
		ExpiresAt: session.ExpiresAt,
		CreatedAt: session.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := r.pruneUserSessions(ctx, session.UserID); err != nil {
		return err
	}

	setKey := userSessionsKey(session.UserID)
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(session.ID), payload, ttl)
		pipe.SAdd(ctx, setKey, session.ID)
		// セッションの有効期間は一律のため、最後に作成したセッションに合わせて延長する。
		pipe.Expire(ctx, setKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れまたは存在しない場合はnilを返す。
func (r *RedisSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	session, err := r.load(ctx, id)
	if err != nil || session == nil {
		return nil, err
	}
	if session.Expired(time.Now()) {
		return nil, nil
	}
	return session, nil
}

// load は有効期限を問わずセッションキーを読む。キーが無い場合はnilを返す。
func (r *RedisSessionRepo) load(ctx context.Context, id string) (*model.Session, error) {
	raw, err := r.rdb.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	var rs redisSession
	if err := json.Unmarshal(raw, &rs); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &model.Session{
		ID:        id,
		UserID:    rs.UserID,
		ExpiresAt: rs.ExpiresAt,
		CreatedAt: rs.CreatedAt,
	}, nil
}

// DeleteByID は指定IDのセッションを削除する。存在しない場合もエラーにしない。
// キーが既に失効していた集合側のIDは、次回のCreate時に除去される。
func (r *RedisSessionRepo) DeleteByID(ctx context.Context, id string) error {
	session, err := r.load(ctx, id)
	if err != nil {
		return err
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(id))
		if session != nil {
			pipe.SRem(ctx, userSessionsKey(session.UserID), id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// pruneUserSessions はキーが失効したセッションIDをユーザーの集合から取り除く。
func (r *RedisSessionRepo) pruneUserSessions(ctx context.Context, userID string) error {
	setKey := userSessionsKey(userID)
	ids, err := r.rdb.SMembers(ctx, setKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list user sessions: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	exists := make([]*redis.IntCmd, len(ids))
	_, err = r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			exists[i] = pipe.Exists(ctx, sessionKey(id))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to check user sessions: %w", err)
	}

	var stale []any
	for i, cmd := range exists {
		if cmd.Val() == 0 {
			stale = append(stale, ids[i])
		}
	}
	if len(stale) == 0 {
		return nil
	}
	if err := r.rdb.SRem(ctx, setKey, stale...).Err(); err != nil {
		return fmt.Errorf("failed to prune user sessions: %w", err)
	}
	return nil
}

// DeleteByUserID は指定ユーザーの全セッションを削除する。
// 集合に失効済みのIDが残っていても、存在しないキーのDELは無視される。
func (r *RedisSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	setKey := userSessionsKey(userID)
	ids, err := r.rdb.SMembers(ctx, setKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list user sessions: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKey(id))
	}
	keys = append(keys, setKey)

	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

// DeleteExpired はRedisのキー有効期限に削除を任せるため、常に0件を返す。
func (r *RedisSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

// compile-time interface check
var _ SessionRepository = (*RedisSessionRepo)(nil)
