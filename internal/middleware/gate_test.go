package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/schedboard/internal/model"
)

// mockSessionResolver はSessionResolverのモック実装。
type mockSessionResolver struct {
	getFn func(ctx context.Context, token string) (*model.Session, error)
	calls int
}

func (m *mockSessionResolver) Get(ctx context.Context, token string) (*model.Session, error) {
	m.calls++
	if m.getFn != nil {
		return m.getFn(ctx, token)
	}
	return nil, nil
}

func validResolver(token, userID string) *mockSessionResolver {
	return &mockSessionResolver{
		getFn: func(ctx context.Context, got string) (*model.Session, error) {
			if got != token {
				return nil, nil
			}
			return &model.Session{ID: token, UserID: userID, ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
}

func TestExemptRule_Matches(t *testing.T) {
	tests := []struct {
		name   string
		rule   ExemptRule
		method string
		path   string
		want   bool
	}{
		{"exact path", ExemptRule{Path: "/auth/login"}, http.MethodPost, "/auth/login", true},
		{"sub path", ExemptRule{Path: "/health"}, http.MethodGet, "/health/ready", true},
		{"prefix without boundary", ExemptRule{Path: "/auth/login"}, http.MethodPost, "/auth/loginx", false},
		{"users prefix is not a match", ExemptRule{Method: http.MethodPost, Path: "/users"}, http.MethodPost, "/usersettings", false},
		{"method restricted match", ExemptRule{Method: http.MethodPost, Path: "/users"}, http.MethodPost, "/users", true},
		{"method restricted mismatch", ExemptRule{Method: http.MethodPost, Path: "/users"}, http.MethodGet, "/users", false},
		{"method restricted sub path", ExemptRule{Method: http.MethodPost, Path: "/users"}, http.MethodDelete, "/users/1", false},
		{"case insensitive method", ExemptRule{Method: http.MethodPost, Path: "/users"}, "post", "/users", true},
		{"trailing slash rule", ExemptRule{Path: "/metrics/"}, http.MethodGet, "/metrics/x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule.Matches(tt.method, tt.path); got != tt.want {
				t.Errorf("Matches(%q, %q) = %v, want %v", tt.method, tt.path, got, tt.want)
			}
		})
	}
}

func TestDefaultExemptRules(t *testing.T) {
	rules := DefaultExemptRules()

	exempt := []struct{ method, path string }{
		{http.MethodPost, "/auth/login"},
		{http.MethodPost, "/auth/logout"},
		{http.MethodGet, "/auth/csrf-token"},
		{http.MethodGet, "/health"},
		{http.MethodGet, "/metrics"},
		{http.MethodPost, "/users"},
	}
	for _, e := range exempt {
		if !IsExempt(rules, e.method, e.path) {
			t.Errorf("%s %s should be exempt", e.method, e.path)
		}
	}

	protected := []struct{ method, path string }{
		{http.MethodGet, "/users"},
		{http.MethodGet, "/users/abc"},
		{http.MethodPut, "/users/abc"},
		{http.MethodGet, "/auth/me"},
		{http.MethodGet, "/schedules"},
		{http.MethodPost, "/comments"},
		{http.MethodGet, "/"},
	}
	for _, p := range protected {
		if IsExempt(rules, p.method, p.path) {
			t.Errorf("%s %s should require a session", p.method, p.path)
		}
	}
}

func TestAuthGate_ValidSession_InjectsUserID(t *testing.T) {
	resolver := validResolver("token-1", "user-1")

	var captured string
	handler := NewAuthGate(resolver, DefaultExemptRules(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/schedules", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "token-1"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if captured != "user-1" {
		t.Errorf("userID = %q, want %q", captured, "user-1")
	}
}

func TestAuthGate_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		cookie     string
		resolver   *mockSessionResolver
		wantReason string
	}{
		{"no cookie", "", validResolver("token-1", "user-1"), RejectNoCookie},
		{"unknown token", "other", validResolver("token-1", "user-1"), RejectInvalidSession},
		{"resolver error", "token-1", &mockSessionResolver{
			getFn: func(ctx context.Context, token string) (*model.Session, error) {
				return nil, errors.New("store down")
			},
		}, RejectLookupError},
		{"session without user", "token-1", &mockSessionResolver{
			getFn: func(ctx context.Context, token string) (*model.Session, error) {
				return &model.Session{ID: token}, nil
			},
		}, RejectInvalidSession},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reasons []string
			handler := NewAuthGate(tt.resolver, DefaultExemptRules(), func(reason string) {
				reasons = append(reasons, reason)
			})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			}))

			req := httptest.NewRequest(http.MethodGet, "/schedules", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			var body ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if body.Code != model.ErrCodeUnauthenticated {
				t.Errorf("code = %q, want %q", body.Code, model.ErrCodeUnauthenticated)
			}
			if len(reasons) != 1 || reasons[0] != tt.wantReason {
				t.Errorf("reasons = %v, want [%s]", reasons, tt.wantReason)
			}
		})
	}
}

func TestAuthGate_ExemptPath_SkipsLookup(t *testing.T) {
	resolver := &mockSessionResolver{}
	called := false
	handler := NewAuthGate(resolver, DefaultExemptRules(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, err := UserIDFromContext(r.Context()); err == nil {
			t.Error("exempt request should not carry a user ID")
		}
	}))

	req := httptest.NewRequest(http.MethodPost, "/users", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !called {
		t.Fatal("handler should have been called")
	}
	if resolver.calls != 0 {
		t.Errorf("resolver calls = %d, want 0", resolver.calls)
	}
}

func TestAuthGate_EmptyRules_ProtectsEverything(t *testing.T) {
	handler := NewAuthGate(&mockSessionResolver{}, nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestUserIDFromContext(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); err == nil {
		t.Error("expected error for empty context")
	}
	if _, err := UserIDFromContext(ContextWithUserID(context.Background(), "")); err == nil {
		t.Error("expected error for empty user ID")
	}
	got, err := UserIDFromContext(ContextWithUserID(context.Background(), "user-9"))
	if err != nil || got != "user-9" {
		t.Errorf("UserIDFromContext = %q, %v; want %q, nil", got, err, "user-9")
	}
}
