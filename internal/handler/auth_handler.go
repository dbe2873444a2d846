package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/schedboard/internal/middleware"
	"github.com/hitoshi/schedboard/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, username, password string) (*model.Session, error)
	Logout(ctx context.Context, token string) error
	CurrentUser(ctx context.Context, userID string) (*model.User, error)
}

// LoginObserver はログイン結果の通知先。メトリクス収集に使う。
type LoginObserver interface {
	RecordLogin(result string)
	RecordSessionCreated()
}

// ログイン結果の通知値。
const (
	loginResultSuccess = "success"
	loginResultFailure = "failure"
)

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はログイン・ログアウト関連のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	config   AuthHandlerConfig
	observer LoginObserver
}

// NewAuthHandler はAuthHandlerを生成する。observerはnilでもよい。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig, observer LoginObserver) *AuthHandler {
	return &AuthHandler{
		service:  service,
		config:   config,
		observer: observer,
	}
}

// loginRequest はログインリクエストのボディ。
// emailはusernameの別名として受け付ける。
type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login は資格情報を検証し、セッションCookieを発行する。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	username := req.Username
	if username == "" {
		username = req.Email
	}

	session, err := h.service.Login(r.Context(), username, req.Password)
	if err != nil {
		if model.HasCode(err, model.ErrCodeInvalidCredentials) {
			h.recordLogin(loginResultFailure)
		}
		handleServiceError(w, err)
		return
	}
	h.recordLogin(loginResultSuccess)

	// セッションCookieを設定（HTTP Only）
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, messageResponse{Message: "ログインしました。"})
}

// Logout はセッションを破棄する。セッションが無い場合も200を返す。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err == nil && cookie.Value != "" {
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
			// ログアウト失敗してもCookieはクリアする
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, messageResponse{Message: "ログアウトしました。"})
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	user, err := h.service.CurrentUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *AuthHandler) recordLogin(result string) {
	if h.observer == nil {
		return
	}
	h.observer.RecordLogin(result)
	if result == loginResultSuccess {
		h.observer.RecordSessionCreated()
	}
}
