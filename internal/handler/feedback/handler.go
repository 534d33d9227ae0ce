package feedback

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/tara-call/backend/internal/model/feedback"
	feedbackservice "github.com/zhouzirui/tara-call/backend/internal/service/feedback"
	"github.com/zhouzirui/tara-call/backend/pkg/utils"
)

// maxBodyBytes 限制反馈请求体大小，正常提交远小于此值。
const maxBodyBytes = 64 << 10

// Submitter 持久化一条反馈。
type Submitter interface {
	Submit(ctx context.Context, sub feedback.Submission) error
}

// Handler 反馈接口的HTTP处理器
type Handler struct {
	sink Submitter
}

// New 创建反馈处理器
func New(sink Submitter) *Handler {
	return &Handler{sink: sink}
}

// RegisterRoutes 注册反馈路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/feedback", h.handleSubmit)
}

// handleSubmit 校验并保存通话后反馈，失败不重试
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sub, err := feedbackservice.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		log.Warn().Err(err).Str("component", "feedback").Msg("rejected feedback payload")
		utils.RespondError(w, http.StatusBadRequest, "Invalid feedback data")
		return
	}

	if err := h.sink.Submit(r.Context(), sub); err != nil {
		if errors.Is(err, feedbackservice.ErrInvalidPayload) {
			utils.RespondError(w, http.StatusBadRequest, "Invalid feedback data")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "Failed to save feedback")
		return
	}

	utils.RespondSuccess(w)
}
