package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/tara-call/backend/internal/config"
	agentHandler "github.com/zhouzirui/tara-call/backend/internal/handler/agent"
	"github.com/zhouzirui/tara-call/backend/internal/handler/connection"
	feedbackHandler "github.com/zhouzirui/tara-call/backend/internal/handler/feedback"
	"github.com/zhouzirui/tara-call/backend/internal/handler/session"
	middlewarePkg "github.com/zhouzirui/tara-call/backend/internal/middleware"
	"github.com/zhouzirui/tara-call/backend/internal/metrics"
	"github.com/zhouzirui/tara-call/backend/internal/model/agent"
	credentialService "github.com/zhouzirui/tara-call/backend/internal/service/credentials"
	feedbackService "github.com/zhouzirui/tara-call/backend/internal/service/feedback"
	"github.com/zhouzirui/tara-call/backend/pkg/utils"
)

// Deps 是路由需要的全部服务，由 cmd/api 在启动时显式构造。
type Deps struct {
	Agents      agent.Store
	Credentials *credentialService.Service
	Feedback    *feedbackService.Service
	Call        config.CallConfig
	Metrics     *metrics.Recorder
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		agentHandler.New(deps.Agents).RegisterRoutes(api)
		connection.New(deps.Credentials).RegisterRoutes(api)
		feedbackHandler.New(deps.Feedback).RegisterRoutes(api)
		session.New(deps.Credentials, deps.Feedback, deps.Agents, deps.Call, deps.Metrics).RegisterRoutes(api)
	})

	return r
}
