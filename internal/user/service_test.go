package user

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hitoshi/schedboard/internal/model"
	"github.com/hitoshi/schedboard/internal/repository"
	"github.com/hitoshi/schedboard/internal/repository/memory"
	"github.com/hitoshi/schedboard/internal/validation"
)

// --- モック ---

// plainHasher はテスト用の高速なHasher。
type plainHasher struct{}

func (plainHasher) Hash(raw string) (string, error) { return "hashed:" + raw, nil }
func (plainHasher) Verify(raw, digest string) bool  { return digest == "hashed:"+raw }

type mockSessionInvalidator struct {
	invalidateUserFn func(ctx context.Context, userID string) error
	calledWith       []string
}

func (m *mockSessionInvalidator) InvalidateUser(ctx context.Context, userID string) error {
	m.calledWith = append(m.calledWith, userID)
	if m.invalidateUserFn != nil {
		return m.invalidateUserFn(ctx, userID)
	}
	return nil
}

// mockUserRepo はUserRepositoryのモック。未設定のメソッドはmemoryストアに委譲する。
type mockUserRepo struct {
	repository.UserRepository
	findByUsernameFn func(ctx context.Context, username string) (*model.User, error)
	createFn         func(ctx context.Context, user *model.User) error
}

func (m *mockUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	if m.findByUsernameFn != nil {
		return m.findByUsernameFn(ctx, username)
	}
	return m.UserRepository.FindByUsername(ctx, username)
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return m.UserRepository.Create(ctx, user)
}

func newTestService(t *testing.T) (*Service, *memory.Store, *mockSessionInvalidator) {
	t.Helper()
	mem := memory.New()
	inv := &mockSessionInvalidator{}
	return NewService(mem.Users(), inv, plainHasher{}, validation.New()), mem, inv
}

// --- テスト ---

func TestService_Register(t *testing.T) {
	svc, _, _ := newTestService(t)

	u, err := svc.Register(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.ID == "" || u.Username != "alice" {
		t.Errorf("unexpected user: %+v", u)
	}
	if u.PasswordHash == "secret" || u.PasswordHash != "hashed:secret" {
		t.Errorf("password must be stored hashed, got %q", u.PasswordHash)
	}
}

func TestService_Register_Duplicate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "p1"); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	_, err := svc.Register(ctx, "alice", "p2")
	if !model.HasCode(err, model.ErrCodeDuplicateUsername) {
		t.Errorf("error = %v, want DUPLICATE_USERNAME", err)
	}

	users, _ := svc.List(ctx)
	if len(users) != 1 {
		t.Errorf("user count = %d, want 1", len(users))
	}
}

func TestService_Register_DuplicateRaceMapsToDuplicate(t *testing.T) {
	mem := memory.New()
	repo := &mockUserRepo{
		UserRepository: mem.Users(),
		// 事前確認では見つからないが、挿入時に一意制約違反となるケース
		findByUsernameFn: func(context.Context, string) (*model.User, error) { return nil, nil },
		createFn: func(context.Context, *model.User) error {
			return repository.ErrDuplicate
		},
	}
	svc := NewService(repo, nil, plainHasher{}, validation.New())

	_, err := svc.Register(context.Background(), "alice", "p")
	if !model.HasCode(err, model.ErrCodeDuplicateUsername) {
		t.Errorf("error = %v, want DUPLICATE_USERNAME", err)
	}
}

func TestService_Register_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"empty username", "", "p"},
		{"blank username", "   ", "p"},
		{"username over 20", strings.Repeat("a", 21), "p"},
		{"empty password", "alice", ""},
		{"password over 72 bytes", "alice", strings.Repeat("x", 73)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.username, tt.password)
			if !model.HasCode(err, model.ErrCodeValidation) {
				t.Errorf("error = %v, want VALIDATION_ERROR", err)
			}
		})
	}
}

func TestService_Register_RepoError(t *testing.T) {
	mem := memory.New()
	boom := errors.New("db down")
	repo := &mockUserRepo{
		UserRepository: mem.Users(),
		createFn:       func(context.Context, *model.User) error { return boom },
	}
	svc := NewService(repo, nil, plainHasher{}, validation.New())

	_, err := svc.Register(context.Background(), "alice", "p")
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped repo error", err)
	}
}

func TestService_List_InsertionOrder(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	names := []string{"carol", "alice", "bob"}
	for _, n := range names {
		if _, err := svc.Register(ctx, n, "p"); err != nil {
			t.Fatalf("Register(%s): %v", n, err)
		}
	}

	users, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for i, u := range users {
		if u.Username != names[i] {
			t.Errorf("users[%d] = %q, want %q", i, u.Username, names[i])
		}
	}
}

func TestService_Update(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	u, _ := svc.Register(ctx, "alice", "old")

	updated, err := svc.Update(ctx, u.ID, u.ID, "alice2", "new")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Username != "alice2" || updated.PasswordHash != "hashed:new" {
		t.Errorf("unexpected user: %+v", updated)
	}
}

func TestService_Update_Errors(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	alice, _ := svc.Register(ctx, "alice", "p")
	bob, _ := svc.Register(ctx, "bob", "p")

	tests := []struct {
		name     string
		callerID string
		id       string
		username string
		wantCode string
	}{
		{"missing user", alice.ID, "no-such-id", "x", model.ErrCodeUserNotFound},
		{"other user", bob.ID, alice.ID, "hacked", model.ErrCodeForbidden},
		{"rename onto existing", bob.ID, bob.ID, "alice", model.ErrCodeDuplicateUsername},
		{"invalid username", bob.ID, bob.ID, "", model.ErrCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Update(ctx, tt.callerID, tt.id, tt.username, "p")
			if !model.HasCode(err, tt.wantCode) {
				t.Errorf("error = %v, want %s", err, tt.wantCode)
			}
		})
	}

	got, _ := svc.Get(ctx, alice.ID)
	if got.Username != "alice" {
		t.Errorf("alice should be unchanged, got %q", got.Username)
	}
}

func TestService_Delete(t *testing.T) {
	svc, mem, inv := newTestService(t)
	ctx := context.Background()
	u, _ := svc.Register(ctx, "alice", "p")
	_ = mem.Schedules().Create(ctx, &model.Schedule{ID: "s1", Title: "t", Content: "c", UserID: u.ID})

	if err := svc.Delete(ctx, u.ID, u.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(inv.calledWith) != 1 || inv.calledWith[0] != u.ID {
		t.Errorf("InvalidateUser calls = %v, want [%s]", inv.calledWith, u.ID)
	}
	if s, _ := mem.Schedules().FindByID(ctx, "s1"); s != nil {
		t.Error("schedules should be cascade-deleted")
	}

	err := svc.Delete(ctx, u.ID, u.ID)
	if !model.HasCode(err, model.ErrCodeUserNotFound) {
		t.Errorf("second Delete error = %v, want USER_NOT_FOUND", err)
	}
}

func TestService_Delete_Forbidden(t *testing.T) {
	svc, _, inv := newTestService(t)
	ctx := context.Background()
	alice, _ := svc.Register(ctx, "alice", "p")
	bob, _ := svc.Register(ctx, "bob", "p")

	err := svc.Delete(ctx, bob.ID, alice.ID)
	if !model.HasCode(err, model.ErrCodeForbidden) {
		t.Errorf("error = %v, want FORBIDDEN", err)
	}
	if len(inv.calledWith) != 0 {
		t.Error("sessions must not be invalidated when delete is rejected")
	}
	if _, err := svc.Get(ctx, alice.ID); err != nil {
		t.Errorf("alice should still exist: %v", err)
	}
}

func TestService_Delete_SessionInvalidationFailureIsNotFatal(t *testing.T) {
	mem := memory.New()
	inv := &mockSessionInvalidator{
		invalidateUserFn: func(context.Context, string) error { return errors.New("redis down") },
	}
	svc := NewService(mem.Users(), inv, plainHasher{}, validation.New())
	ctx := context.Background()
	u, _ := svc.Register(ctx, "alice", "p")

	if err := svc.Delete(ctx, u.ID, u.ID); err != nil {
		t.Errorf("Delete should succeed once the user row is gone: %v", err)
	}
}

func TestService_Get_NotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Get(context.Background(), "nope")
	if !model.HasCode(err, model.ErrCodeUserNotFound) {
		t.Errorf("error = %v, want USER_NOT_FOUND", err)
	}
}
