package connection

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/tara-call/backend/internal/middleware"
	"github.com/zhouzirui/tara-call/backend/internal/model/call"
	"github.com/zhouzirui/tara-call/backend/internal/service/credentials"
	"github.com/zhouzirui/tara-call/backend/pkg/utils"
)

// Issuer 签发房间连接凭证。
type Issuer interface {
	Issue(ctx context.Context, agentID string) (call.ConnectionDetails, error)
}

// Handler 连接凭证接口的HTTP处理器
type Handler struct {
	issuer Issuer
}

// New 创建连接凭证处理器
func New(issuer Issuer) *Handler {
	return &Handler{issuer: issuer}
}

// RegisterRoutes 注册连接凭证路由，所有响应都带 no-store。
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.NoStore).Get("/connection-details", h.handleConnectionDetails)
}

// handleConnectionDetails 为当前标签页签发一次性的入会凭证
func (h *Handler) handleConnectionDetails(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent")

	details, err := h.issuer.Issue(r.Context(), agentID)
	switch {
	case err == nil:
		utils.RespondJSON(w, http.StatusOK, details)
	case errors.Is(err, credentials.ErrUnknownAgent):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Str("component", "connection").Msg("error generating connection details")
		utils.RespondError(w, http.StatusInternalServerError, errors.Cause(err).Error())
	}
}
