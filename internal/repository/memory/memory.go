// Package memory はプロセス内メモリによるリポジトリ実装を提供する。
// 開発用（STORE_BACKEND=memory）とテスト用。
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hitoshi/schedboard/internal/model"
	"github.com/hitoshi/schedboard/internal/repository"
)

// Store は全エンティティを1つのミューテックスで保護するインメモリストア。
// 変更系操作はロックを保持したまま検査と書き込みを行うため、
// PostgreSQLのSELECT ... FOR UPDATEと同じ直列化が得られる。
// 外部キーのCASCADE削除も再現する。
type Store struct {
	mu        sync.Mutex
	users     []*model.User
	schedules []*model.Schedule
	comments  []*model.Comment
	sessions  map[string]*model.Session

	now func() time.Time
}

// New は空のStoreを生成する。
func New() *Store {
	return &Store{
		sessions: make(map[string]*model.Session),
		now:      time.Now,
	}
}

// SetClock は時刻取得関数を差し替える。テスト用。
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Users はUserRepositoryとしてのビューを返す。
func (s *Store) Users() *UserRepo { return &UserRepo{s: s} }

// Schedules はScheduleRepositoryとしてのビューを返す。
func (s *Store) Schedules() *ScheduleRepo { return &ScheduleRepo{s: s} }

// Comments はCommentRepositoryとしてのビューを返す。
func (s *Store) Comments() *CommentRepo { return &CommentRepo{s: s} }

// Sessions はSessionRepositoryとしてのビューを返す。
func (s *Store) Sessions() *SessionRepo { return &SessionRepo{s: s} }

// PingContext は常に成功する。ヘルスチェック用。
func (s *Store) PingContext(ctx context.Context) error { return nil }

var (
	_ repository.UserRepository     = (*UserRepo)(nil)
	_ repository.ScheduleRepository = (*ScheduleRepo)(nil)
	_ repository.CommentRepository  = (*CommentRepo)(nil)
	_ repository.SessionRepository  = (*SessionRepo)(nil)
)

// 呼び出しはロック保持中に限る。
func (s *Store) userIndex(id string) int {
	for i, u := range s.users {
		if u.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) scheduleIndex(id string) int {
	for i, sc := range s.schedules {
		if sc.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) commentIndex(id string) int {
	for i, c := range s.comments {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) usernameTaken(username, exceptID string) bool {
	for _, u := range s.users {
		if u.Username == username && u.ID != exceptID {
			return true
		}
	}
	return false
}

// deleteUserCascade はユーザーと、そのユーザーに紐づく予定・コメント・セッションを削除する。
func (s *Store) deleteUserCascade(idx int) {
	userID := s.users[idx].ID
	s.users = append(s.users[:idx], s.users[idx+1:]...)

	kept := s.schedules[:0]
	for _, sc := range s.schedules {
		if sc.UserID == userID {
			s.dropCommentsWhere(func(c *model.Comment) bool { return c.ScheduleID == sc.ID })
			continue
		}
		kept = append(kept, sc)
	}
	s.schedules = kept

	s.dropCommentsWhere(func(c *model.Comment) bool { return c.UserID == userID })

	for id, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, id)
		}
	}
}

func (s *Store) deleteScheduleCascade(idx int) {
	scheduleID := s.schedules[idx].ID
	s.schedules = append(s.schedules[:idx], s.schedules[idx+1:]...)
	s.dropCommentsWhere(func(c *model.Comment) bool { return c.ScheduleID == scheduleID })
}

func (s *Store) dropCommentsWhere(match func(*model.Comment) bool) {
	kept := s.comments[:0]
	for _, c := range s.comments {
		if !match(c) {
			kept = append(kept, c)
		}
	}
	s.comments = kept
}

// --- UserRepository ---

// UserRepo はStoreのユーザー操作。
type UserRepo struct{ s *Store }

// FindByID は指定IDのユーザーの複製を返す。見つからない場合はnil。
func (r *UserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if i := r.s.userIndex(id); i >= 0 {
		u := *r.s.users[i]
		return &u, nil
	}
	return nil, nil
}

// FindByUsername はユーザー名でユーザーを検索する。
func (r *UserRepo) FindByUsername(_ context.Context, username string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Username == username {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

// List は全ユーザーを登録順に返す。
func (r *UserRepo) List(_ context.Context) ([]*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*model.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		c := *u
		out = append(out, &c)
	}
	return out, nil
}

// Create はユーザーを追加する。
func (r *UserRepo) Create(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.usernameTaken(user.Username, "") {
		return fmt.Errorf("%w: username %s", repository.ErrDuplicate, user.Username)
	}
	now := r.s.now()
	user.CreatedAt = now
	user.UpdatedAt = now
	c := *user
	r.s.users = append(r.s.users, &c)
	return nil
}

// Update はロック保持中にmutateを複製へ適用し、成功時のみ書き戻す。
func (r *UserRepo) Update(_ context.Context, id string, mutate repository.UserMutator) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := r.s.userIndex(id)
	if i < 0 {
		return nil, repository.ErrNotFound
	}
	draft := *r.s.users[i]
	if err := mutate(&draft); err != nil {
		return nil, err
	}
	if r.s.usernameTaken(draft.Username, id) {
		return nil, fmt.Errorf("%w: username %s", repository.ErrDuplicate, draft.Username)
	}
	draft.ID = id
	draft.CreatedAt = r.s.users[i].CreatedAt
	draft.UpdatedAt = r.s.now()
	stored := draft
	r.s.users[i] = &stored
	return &draft, nil
}

// DeleteByID はユーザーを削除し、関連データを連鎖削除する。
func (r *UserRepo) DeleteByID(_ context.Context, id string, check repository.UserMutator) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := r.s.userIndex(id)
	if i < 0 {
		return repository.ErrNotFound
	}
	if check != nil {
		u := *r.s.users[i]
		if err := check(&u); err != nil {
			return err
		}
	}
	r.s.deleteUserCascade(i)
	return nil
}

// --- ScheduleRepository ---

// ScheduleRepo はStoreの予定操作。
type ScheduleRepo struct{ s *Store }

// FindByID は指定IDの予定の複製を返す。見つからない場合はnil。
func (r *ScheduleRepo) FindByID(_ context.Context, id string) (*model.Schedule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if i := r.s.scheduleIndex(id); i >= 0 {
		sc := *r.s.schedules[i]
		return &sc, nil
	}
	return nil, nil
}

// List は全予定を作成順に返す。
func (r *ScheduleRepo) List(ctx context.Context) ([]*model.Schedule, error) {
	return r.filter(func(*model.Schedule) bool { return true }), nil
}

// ListByUserID は指定ユーザーの予定を作成順に返す。
func (r *ScheduleRepo) ListByUserID(_ context.Context, userID string) ([]*model.Schedule, error) {
	return r.filter(func(sc *model.Schedule) bool { return sc.UserID == userID }), nil
}

func (r *ScheduleRepo) filter(match func(*model.Schedule) bool) []*model.Schedule {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.Schedule{}
	for _, sc := range r.s.schedules {
		if match(sc) {
			c := *sc
			out = append(out, &c)
		}
	}
	return out
}

// Create は予定を追加する。所有ユーザーが存在しない場合はErrReferenceMissing。
func (r *ScheduleRepo) Create(_ context.Context, schedule *model.Schedule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.userIndex(schedule.UserID) < 0 {
		return fmt.Errorf("%w: user %s", repository.ErrReferenceMissing, schedule.UserID)
	}
	now := r.s.now()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now
	c := *schedule
	r.s.schedules = append(r.s.schedules, &c)
	return nil
}

// Update はロック保持中にmutateを複製へ適用し、タイトルと内容のみ書き戻す。
func (r *ScheduleRepo) Update(_ context.Context, id string, mutate repository.ScheduleMutator) (*model.Schedule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := r.s.scheduleIndex(id)
	if i < 0 {
		return nil, repository.ErrNotFound
	}
	draft := *r.s.schedules[i]
	if err := mutate(&draft); err != nil {
		return nil, err
	}
	stored := *r.s.schedules[i]
	stored.Title = draft.Title
	stored.Content = draft.Content
	stored.UpdatedAt = r.s.now()
	r.s.schedules[i] = &stored
	out := stored
	return &out, nil
}

// DeleteByID は予定を削除し、関連コメントを連鎖削除する。
func (r *ScheduleRepo) DeleteByID(_ context.Context, id string, check repository.ScheduleMutator) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := r.s.scheduleIndex(id)
	if i < 0 {
		return repository.ErrNotFound
	}
	if check != nil {
		sc := *r.s.schedules[i]
		if err := check(&sc); err != nil {
			return err
		}
	}
	r.s.deleteScheduleCascade(i)
	return nil
}

// --- CommentRepository ---

// CommentRepo はStoreのコメント操作。
type CommentRepo struct{ s *Store }

// FindByID は指定IDのコメントの複製を返す。見つからない場合はnil。
func (r *CommentRepo) FindByID(_ context.Context, id string) (*model.Comment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if i := r.s.commentIndex(id); i >= 0 {
		c := *r.s.comments[i]
		return &c, nil
	}
	return nil, nil
}

// ListByScheduleID は予定に紐づくコメントを作成順に返す。
func (r *CommentRepo) ListByScheduleID(_ context.Context, scheduleID string) ([]*model.Comment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.Comment{}
	for _, c := range r.s.comments {
		if c.ScheduleID == scheduleID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Create はコメントを追加する。作成者または予定が存在しない場合はErrReferenceMissing。
func (r *CommentRepo) Create(_ context.Context, comment *model.Comment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.userIndex(comment.UserID) < 0 {
		return fmt.Errorf("%w: user %s", repository.ErrReferenceMissing, comment.UserID)
	}
	if r.s.scheduleIndex(comment.ScheduleID) < 0 {
		return fmt.Errorf("%w: schedule %s", repository.ErrReferenceMissing, comment.ScheduleID)
	}
	now := r.s.now()
	comment.CreatedAt = now
	comment.UpdatedAt = now
	c := *comment
	r.s.comments = append(r.s.comments, &c)
	return nil
}

// Update はロック保持中にmutateを複製へ適用し、本文のみ書き戻す。
func (r *CommentRepo) Update(_ context.Context, id string, mutate repository.CommentMutator) (*model.Comment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := r.s.commentIndex(id)
	if i < 0 {
		return nil, repository.ErrNotFound
	}
	draft := *r.s.comments[i]
	if err := mutate(&draft); err != nil {
		return nil, err
	}
	stored := *r.s.comments[i]
	stored.Content = draft.Content
	stored.UpdatedAt = r.s.now()
	r.s.comments[i] = &stored
	out := stored
	return &out, nil
}

// DeleteByID はコメントを削除する。
func (r *CommentRepo) DeleteByID(_ context.Context, id string, check repository.CommentMutator) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i := r.s.commentIndex(id)
	if i < 0 {
		return repository.ErrNotFound
	}
	if check != nil {
		c := *r.s.comments[i]
		if err := check(&c); err != nil {
			return err
		}
	}
	r.s.comments = append(r.s.comments[:i], r.s.comments[i+1:]...)
	return nil
}

// --- SessionRepository ---

// SessionRepo はStoreのセッション操作。
type SessionRepo struct{ s *Store }

// Create はセッションを追加する。ユーザーが存在しない場合はErrReferenceMissing。
func (r *SessionRepo) Create(_ context.Context, session *model.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.userIndex(session.UserID) < 0 {
		return fmt.Errorf("%w: user %s", repository.ErrReferenceMissing, session.UserID)
	}
	c := *session
	r.s.sessions[session.ID] = &c
	return nil
}

// FindByID は有効なセッションを返す。期限切れまたは存在しない場合はnil。
func (r *SessionRepo) FindByID(_ context.Context, id string) (*model.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[id]
	if !ok || sess.Expired(r.s.now()) {
		return nil, nil
	}
	c := *sess
	return &c, nil
}

// DeleteByID はセッションを削除する。存在しない場合も成功する。
func (r *SessionRepo) DeleteByID(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.sessions, id)
	return nil
}

// DeleteByUserID は指定ユーザーの全セッションを削除する。
func (r *SessionRepo) DeleteByUserID(_ context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, sess := range r.s.sessions {
		if sess.UserID == userID {
			delete(r.s.sessions, id)
		}
	}
	return nil
}

// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
func (r *SessionRepo) DeleteExpired(_ context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	var n int64
	for id, sess := range r.s.sessions {
		if sess.Expired(now) {
			delete(r.s.sessions, id)
			n++
		}
	}
	return n, nil
}
