// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/schedboard/internal/model"
)

// SessionCookieName はセッショントークンを保持するCookie名。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// 認証ゲートが拒否した理由。メトリクスのラベルに使う。
const (
	RejectNoCookie       = "no_cookie"
	RejectInvalidSession = "invalid_session"
	RejectLookupError    = "lookup_error"
)

// SessionResolver はセッショントークンから有効なセッションを引くインターフェース。
// 空・未知・期限切れのトークンにはnil, nilを返す。
type SessionResolver interface {
	Get(ctx context.Context, token string) (*model.Session, error)
}

// ExemptRule は認証ゲートを通さずに到達できるエンドポイント。
// Methodが空の場合は全メソッドに一致する。
// PathはパスがPathと等しいか、Path+"/"で始まる場合に一致する（セグメント単位）。
type ExemptRule struct {
	Method string
	Path   string
}

// Matches はリクエストのメソッドとパスが規則に一致するかを返す。
func (e ExemptRule) Matches(method, path string) bool {
	if e.Method != "" && !strings.EqualFold(e.Method, method) {
		return false
	}
	if path == e.Path {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(e.Path, "/")+"/")
}

// DefaultExemptRules は認証不要なエンドポイントの既定の許可リスト。
func DefaultExemptRules() []ExemptRule {
	return []ExemptRule{
		{Path: "/auth/login"},
		{Path: "/auth/logout"},
		{Path: "/auth/csrf-token"},
		{Path: "/health"},
		{Path: "/metrics"},
		{Method: http.MethodPost, Path: "/users"},
	}
}

// IsExempt はリクエストが許可リストのいずれかに一致するかを返す。
func IsExempt(rules []ExemptRule, method, path string) bool {
	for _, rule := range rules {
		if rule.Matches(method, path) {
			return true
		}
	}
	return false
}

// NewAuthGate は許可リスト外の全リクエストにログインセッションを要求するミドルウェアを返す。
// セッションが有効な場合はユーザーIDをリクエストコンテキストに注入する。
// 無効な場合は401のJSONエラーで応答し、後続のハンドラーは呼ばれない。
// onRejectがnilでなければ拒否理由を通知する。
func NewAuthGate(resolver SessionResolver, rules []ExemptRule, onReject func(reason string)) func(next http.Handler) http.Handler {
	reject := func(w http.ResponseWriter, reason string) {
		if onReject != nil {
			onReject(reason)
		}
		WriteAPIError(w, model.NewUnauthenticatedError())
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsExempt(rules, r.Method, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			// 1. Cookieからセッショントークンを取得
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				reject(w, RejectNoCookie)
				return
			}

			// 2. セッションの有効性を検証
			sess, err := resolver.Get(r.Context(), cookie.Value)
			if err != nil {
				slog.Error("failed to resolve session",
					slog.String("error", err.Error()),
				)
				reject(w, RejectLookupError)
				return
			}
			if sess == nil || sess.UserID == "" {
				reject(w, RejectInvalidSession)
				return
			}

			// 3. 認証済みユーザーIDをコンテキストに注入
			recordUserID(r.Context(), sess.UserID)
			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), sess.UserID)))
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証ゲートを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
