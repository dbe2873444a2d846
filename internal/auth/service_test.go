package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/schedboard/internal/model"
	"github.com/hitoshi/schedboard/internal/repository/memory"
	"github.com/hitoshi/schedboard/internal/session"
	"github.com/hitoshi/schedboard/internal/validation"
)

// --- モック ---

type plainHasher struct{}

func (plainHasher) Hash(raw string) (string, error) { return "hashed:" + raw, nil }
func (plainHasher) Verify(raw, digest string) bool  { return digest == "hashed:"+raw }

type mockSessionManager struct {
	createFn     func(ctx context.Context, userID string) (*model.Session, error)
	invalidateFn func(ctx context.Context, token string) error
}

func (m *mockSessionManager) Create(ctx context.Context, userID string) (*model.Session, error) {
	return m.createFn(ctx, userID)
}

func (m *mockSessionManager) Invalidate(ctx context.Context, token string) error {
	return m.invalidateFn(ctx, token)
}

func setup(t *testing.T) (*Service, *session.Store) {
	t.Helper()
	mem := memory.New()
	if err := mem.Users().Create(context.Background(), &model.User{ID: "u1", Username: "alice", PasswordHash: "hashed:secret"}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	store := session.NewStore(mem.Sessions(), time.Hour)
	return NewService(mem.Users(), store, plainHasher{}, validation.New()), store
}

// --- テスト ---

func TestService_Login_Success(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()

	sess, err := svc.Login(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	got, _ := store.Get(ctx, sess.ID)
	if got == nil || got.UserID != "u1" {
		t.Errorf("session should resolve to u1, got %+v", got)
	}
}

func TestService_Login_EachCallIssuesNewSession(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()

	a, _ := svc.Login(ctx, "alice", "secret")
	b, _ := svc.Login(ctx, "alice", "secret")
	if a.ID == b.ID {
		t.Fatal("each login should issue a distinct token")
	}
	if got, _ := store.Get(ctx, a.ID); got == nil {
		t.Error("earlier session should remain valid")
	}
}

func TestService_Login_InvalidCredentials(t *testing.T) {
	svc, _ := setup(t)

	tests := []struct {
		name, username, password string
	}{
		{"unknown user", "nobody", "secret"},
		{"wrong password", "alice", "wrong"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, err := svc.Login(context.Background(), tt.username, tt.password)
			if sess != nil {
				t.Error("no session should be issued")
			}
			if !model.HasCode(err, model.ErrCodeInvalidCredentials) {
				t.Errorf("error = %v, want INVALID_CREDENTIALS", err)
			}
		})
	}
}

func TestService_Login_MissingFields(t *testing.T) {
	svc, _ := setup(t)
	_, err := svc.Login(context.Background(), "", "")
	if !model.HasCode(err, model.ErrCodeValidation) {
		t.Errorf("error = %v, want VALIDATION_ERROR", err)
	}
}

func TestService_Login_SessionCreateFails(t *testing.T) {
	mem := memory.New()
	_ = mem.Users().Create(context.Background(), &model.User{ID: "u1", Username: "alice", PasswordHash: "hashed:secret"})
	boom := errors.New("store down")
	sessions := &mockSessionManager{
		createFn: func(context.Context, string) (*model.Session, error) { return nil, boom },
	}
	svc := NewService(mem.Users(), sessions, plainHasher{}, validation.New())

	if _, err := svc.Login(context.Background(), "alice", "secret"); !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped store error", err)
	}
}

func TestService_Logout(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	sess, _ := svc.Login(ctx, "alice", "secret")

	if err := svc.Logout(ctx, sess.ID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if got, _ := store.Get(ctx, sess.ID); got != nil {
		t.Error("session should be invalidated")
	}

	// 冪等: 2回目・未知トークン・空トークンも成功する
	for _, token := range []string{sess.ID, "unknown", ""} {
		if err := svc.Logout(ctx, token); err != nil {
			t.Errorf("Logout(%q) = %v, want nil", token, err)
		}
	}
}

func TestService_CurrentUser(t *testing.T) {
	svc, _ := setup(t)

	u, err := svc.CurrentUser(context.Background(), "u1")
	if err != nil || u.Username != "alice" {
		t.Errorf("CurrentUser = %v, %v", u, err)
	}
	if _, err := svc.CurrentUser(context.Background(), "gone"); !model.HasCode(err, model.ErrCodeUserNotFound) {
		t.Errorf("error = %v, want USER_NOT_FOUND", err)
	}
}
