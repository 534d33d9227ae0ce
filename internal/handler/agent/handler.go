package agent

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/tara-call/backend/internal/model/agent"
	"github.com/zhouzirui/tara-call/backend/pkg/utils"
)

// Handler 坐席资料的HTTP处理器
type Handler struct {
	agents agent.Store
}

// New 创建坐席处理器
func New(agents agent.Store) *Handler {
	return &Handler{agents: agents}
}

// RegisterRoutes 注册坐席相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/agents", h.handleListAgents)
	r.Get("/agents/{agentID}", h.handleGetAgent)
}

// handleListAgents 列出所有坐席
func (h *Handler) handleListAgents(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.agents.List())
}

func (h *Handler) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	found, ok := h.agents.FindByID(chi.URLParam(r, "agentID"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "agent not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, found)
}
