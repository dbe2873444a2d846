package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/schedboard/internal/middleware"
	"github.com/hitoshi/schedboard/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	loginFn       func(ctx context.Context, username, password string) (*model.Session, error)
	logoutFn      func(ctx context.Context, token string) error
	currentUserFn func(ctx context.Context, userID string) (*model.User, error)
}

func (m *mockAuthService) Login(ctx context.Context, username, password string) (*model.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, username, password)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, token string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, token)
	}
	return nil
}

func (m *mockAuthService) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	if m.currentUserFn != nil {
		return m.currentUserFn(ctx, userID)
	}
	return nil, nil
}

type mockLoginObserver struct {
	results  []string
	sessions int
}

func (m *mockLoginObserver) RecordLogin(result string) { m.results = append(m.results, result) }
func (m *mockLoginObserver) RecordSessionCreated()     { m.sessions++ }

type mockUserService struct {
	registerFn func(ctx context.Context, username, password string) (*model.User, error)
	listFn     func(ctx context.Context) ([]*model.User, error)
	updateFn   func(ctx context.Context, callerID, id, username, password string) (*model.User, error)
	deleteFn   func(ctx context.Context, callerID, id string) error
}

func (m *mockUserService) Register(ctx context.Context, username, password string) (*model.User, error) {
	return m.registerFn(ctx, username, password)
}

func (m *mockUserService) List(ctx context.Context) ([]*model.User, error) {
	return m.listFn(ctx)
}

func (m *mockUserService) Update(ctx context.Context, callerID, id, username, password string) (*model.User, error) {
	return m.updateFn(ctx, callerID, id, username, password)
}

func (m *mockUserService) Delete(ctx context.Context, callerID, id string) error {
	return m.deleteFn(ctx, callerID, id)
}

type mockScheduleService struct {
	createFn func(ctx context.Context, userID, title, content string) (*model.Schedule, error)
	listFn   func(ctx context.Context, filterUserID string) ([]*model.Schedule, error)
	getFn    func(ctx context.Context, id string) (*model.Schedule, error)
	updateFn func(ctx context.Context, callerID, id, title, content string) (*model.Schedule, error)
	deleteFn func(ctx context.Context, callerID, id string) error
}

func (m *mockScheduleService) Create(ctx context.Context, userID, title, content string) (*model.Schedule, error) {
	return m.createFn(ctx, userID, title, content)
}

func (m *mockScheduleService) List(ctx context.Context, filterUserID string) ([]*model.Schedule, error) {
	return m.listFn(ctx, filterUserID)
}

func (m *mockScheduleService) Get(ctx context.Context, id string) (*model.Schedule, error) {
	return m.getFn(ctx, id)
}

func (m *mockScheduleService) Update(ctx context.Context, callerID, id, title, content string) (*model.Schedule, error) {
	return m.updateFn(ctx, callerID, id, title, content)
}

func (m *mockScheduleService) Delete(ctx context.Context, callerID, id string) error {
	return m.deleteFn(ctx, callerID, id)
}

type mockCommentService struct {
	createFn func(ctx context.Context, userID, scheduleID, content string) (*model.Comment, error)
	listFn   func(ctx context.Context, scheduleID string) ([]*model.Comment, error)
	updateFn func(ctx context.Context, callerID, id, content string) (*model.Comment, error)
	deleteFn func(ctx context.Context, callerID, id string) error
}

func (m *mockCommentService) Create(ctx context.Context, userID, scheduleID, content string) (*model.Comment, error) {
	return m.createFn(ctx, userID, scheduleID, content)
}

func (m *mockCommentService) ListBySchedule(ctx context.Context, scheduleID string) ([]*model.Comment, error) {
	return m.listFn(ctx, scheduleID)
}

func (m *mockCommentService) Update(ctx context.Context, callerID, id, content string) (*model.Comment, error) {
	return m.updateFn(ctx, callerID, id, content)
}

func (m *mockCommentService) Delete(ctx context.Context, callerID, id string) error {
	return m.deleteFn(ctx, callerID, id)
}

// withUserID はリクエストコンテキストに認証済みユーザーIDを注入する。
func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}
