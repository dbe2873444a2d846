package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/schedboard/internal/model"
)

// CommentServiceInterface はコメントハンドラーが必要とするサービスインターフェース。
type CommentServiceInterface interface {
	Create(ctx context.Context, userID, scheduleID, content string) (*model.Comment, error)
	ListBySchedule(ctx context.Context, scheduleID string) ([]*model.Comment, error)
	Update(ctx context.Context, callerID, id, content string) (*model.Comment, error)
	Delete(ctx context.Context, callerID, id string) error
}

// CommentHandler はコメント管理のHTTPハンドラー。
type CommentHandler struct {
	service CommentServiceInterface
}

// NewCommentHandler はCommentHandlerを生成する。
func NewCommentHandler(service CommentServiceInterface) *CommentHandler {
	return &CommentHandler{
		service: service,
	}
}

type createCommentRequest struct {
	ScheduleID string `json:"schedule_id"`
	Content    string `json:"content"`
}

type updateCommentRequest struct {
	Content string `json:"content"`
}

// Create はログインユーザーを投稿者としてコメントを作成する。
// POST /comments
func (h *CommentHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createCommentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	comment, err := h.service.Create(r.Context(), userID, req.ScheduleID, req.Content)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toCommentResponse(comment))
}

// ListBySchedule は予定に付いたコメントを投稿順に返す。
// GET /comments/schedule/{scheduleId}
func (h *CommentHandler) ListBySchedule(w http.ResponseWriter, r *http.Request) {
	comments, err := h.service.ListBySchedule(r.Context(), chi.URLParam(r, "scheduleId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]commentResponse, 0, len(comments))
	for _, c := range comments {
		resp = append(resp, toCommentResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Update はコメント本文を変更する。投稿者のみ可能。
// PUT /comments/{id}
func (h *CommentHandler) Update(w http.ResponseWriter, r *http.Request) {
	callerID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updateCommentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	comment, err := h.service.Update(r.Context(), callerID, chi.URLParam(r, "id"), req.Content)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toCommentResponse(comment))
}

// Delete はコメントを削除する。投稿者のみ可能。
// DELETE /comments/{id}
func (h *CommentHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
