package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/schedboard/internal/middleware"
	"github.com/hitoshi/schedboard/internal/model"
)

func newTestAuthHandler(svc AuthServiceInterface, observer LoginObserver) *AuthHandler {
	return NewAuthHandler(svc, AuthHandlerConfig{
		CookieDomain:  "",
		CookieSecure:  true,
		SessionMaxAge: 86400,
	}, observer)
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == middleware.SessionCookieName {
			return c
		}
	}
	return nil
}

func TestAuthHandler_Login_Success_SetsCookie(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, username, password string) (*model.Session, error) {
			if username != "alice" || password != "secret" {
				t.Errorf("Login(%q, %q)", username, password)
			}
			return &model.Session{ID: "token-abc", UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	observer := &mockLoginObserver{}
	h := newTestAuthHandler(svc, observer)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"alice","password":"secret"}`))
	w := httptest.NewRecorder()
	h.Login(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	c := sessionCookie(resp)
	if c == nil {
		t.Fatal("session_id cookie not set")
	}
	if c.Value != "token-abc" {
		t.Errorf("cookie value = %q, want %q", c.Value, "token-abc")
	}
	if !c.HttpOnly || !c.Secure {
		t.Errorf("cookie HttpOnly=%v Secure=%v, want both true", c.HttpOnly, c.Secure)
	}
	if c.MaxAge != 86400 {
		t.Errorf("cookie MaxAge = %d, want 86400", c.MaxAge)
	}

	var body messageResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Message == "" {
		t.Error("message should not be empty")
	}
	if len(observer.results) != 1 || observer.results[0] != loginResultSuccess || observer.sessions != 1 {
		t.Errorf("observer = %+v, want one success and one session", observer)
	}
}

func TestAuthHandler_Login_EmailAlias(t *testing.T) {
	var gotUsername string
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, username, password string) (*model.Session, error) {
			gotUsername = username
			return &model.Session{ID: "t", UserID: "u"}, nil
		},
	}
	h := newTestAuthHandler(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"alice","password":"secret"}`))
	w := httptest.NewRecorder()
	h.Login(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotUsername != "alice" {
		t.Errorf("username = %q, want %q", gotUsername, "alice")
	}
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, username, password string) (*model.Session, error) {
			return nil, model.NewInvalidCredentialsError()
		},
	}
	observer := &mockLoginObserver{}
	h := newTestAuthHandler(svc, observer)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"alice","password":"wrong"}`))
	w := httptest.NewRecorder()
	h.Login(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if sessionCookie(w.Result()) != nil {
		t.Error("session cookie must not be set on failure")
	}
	if len(observer.results) != 1 || observer.results[0] != loginResultFailure || observer.sessions != 0 {
		t.Errorf("observer = %+v, want one failure", observer)
	}
}

func TestAuthHandler_Login_ValidationError(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, username, password string) (*model.Session, error) {
			return nil, model.NewValidationError("username は必須です")
		},
	}
	observer := &mockLoginObserver{}
	h := newTestAuthHandler(svc, observer)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	h.Login(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if len(observer.results) != 0 {
		t.Errorf("validation errors should not be counted as login attempts: %v", observer.results)
	}
}

func TestAuthHandler_Login_MalformedBody(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`not json`))
	w := httptest.NewRecorder()
	h.Login(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestAuthHandler_Logout_InvalidatesAndClearsCookie(t *testing.T) {
	var loggedOut string
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, token string) error {
			loggedOut = token
			return nil
		},
	}
	h := newTestAuthHandler(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "token-abc"})
	w := httptest.NewRecorder()
	h.Logout(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if loggedOut != "token-abc" {
		t.Errorf("Logout token = %q, want %q", loggedOut, "token-abc")
	}
	c := sessionCookie(w.Result())
	if c == nil || c.MaxAge >= 0 {
		t.Errorf("session cookie should be cleared, got %+v", c)
	}
}

func TestAuthHandler_Logout_WithoutCookie_Succeeds(t *testing.T) {
	called := false
	h := newTestAuthHandler(&mockAuthService{
		logoutFn: func(ctx context.Context, token string) error {
			called = true
			return nil
		},
	}, nil)

	w := httptest.NewRecorder()
	h.Logout(w, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if called {
		t.Error("service Logout should not be called without a cookie")
	}
}

func TestAuthHandler_Logout_ServiceErrorStillClearsCookie(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{
		logoutFn: func(ctx context.Context, token string) error {
			return errors.New("store down")
		},
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "token"})
	w := httptest.NewRecorder()
	h.Logout(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if sessionCookie(w.Result()) == nil {
		t.Error("session cookie should be cleared")
	}
}

func TestAuthHandler_Me_ReturnsUser(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{
		currentUserFn: func(ctx context.Context, userID string) (*model.User, error) {
			return &model.User{ID: userID, Username: "alice", PasswordHash: "digest"}, nil
		},
	}, nil)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/auth/me", nil), "user-1")
	w := httptest.NewRecorder()
	h.Me(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if strings.Contains(w.Body.String(), "digest") {
		t.Error("password hash must not be exposed")
	}
	var body userResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.ID != "user-1" || body.Username != "alice" {
		t.Errorf("body = %+v", body)
	}
}

func TestAuthHandler_Me_NoUserID_ReturnsUnauthorized(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{}, nil)

	w := httptest.NewRecorder()
	h.Me(w, httptest.NewRequest(http.MethodGet, "/auth/me", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
