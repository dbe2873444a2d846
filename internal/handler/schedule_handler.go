package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/schedboard/internal/model"
)

// ScheduleServiceInterface は予定ハンドラーが必要とするサービスインターフェース。
type ScheduleServiceInterface interface {
	Create(ctx context.Context, userID, title, content string) (*model.Schedule, error)
	List(ctx context.Context, filterUserID string) ([]*model.Schedule, error)
	Get(ctx context.Context, id string) (*model.Schedule, error)
	Update(ctx context.Context, callerID, id, title, content string) (*model.Schedule, error)
	Delete(ctx context.Context, callerID, id string) error
}

// ScheduleHandler は予定管理のHTTPハンドラー。
type ScheduleHandler struct {
	service ScheduleServiceInterface
}

// NewScheduleHandler はScheduleHandlerを生成する。
func NewScheduleHandler(service ScheduleServiceInterface) *ScheduleHandler {
	return &ScheduleHandler{
		service: service,
	}
}

// scheduleRequest は予定の作成・更新リクエストのボディ。
// 所有者はセッションから決まるため、ボディでは受け付けない。
type scheduleRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Create はログインユーザーを所有者として予定を作成する。
// POST /schedules
func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req scheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	schedule, err := h.service.Create(r.Context(), userID, req.Title, req.Content)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toScheduleResponse(schedule))
}

// List は予定を作成順に返す。?user_id= で所有者を絞り込める。
// GET /schedules
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.service.List(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]scheduleResponse, 0, len(schedules))
	for _, s := range schedules {
		resp = append(resp, toScheduleResponse(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get は予定を1件返す。
// GET /schedules/{id}
func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	schedule, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toScheduleResponse(schedule))
}

// Update は予定のタイトルと内容を変更する。所有者のみ可能。
// PUT /schedules/{id}
func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	callerID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req scheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	schedule, err := h.service.Update(r.Context(), callerID, chi.URLParam(r, "id"), req.Title, req.Content)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toScheduleResponse(schedule))
}

// Delete は予定を削除する。所有者のみ可能。
// DELETE /schedules/{id}
func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	callerID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), callerID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
