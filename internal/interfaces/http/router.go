package http

import (
	"io/fs"
	"net/http"

	"github.com/dreschagin/monitor-dw/internal/interfaces/http/handler"
	"github.com/dreschagin/monitor-dw/internal/interfaces/http/middleware"
	"github.com/dreschagin/monitor-dw/pkg/logger"
)

// Handlers набор handler'ов, которые монтирует router
type Handlers struct {
	Dashboard *handler.DashboardHandler
	WebSocket *handler.WebSocketHandler
	Status    *handler.StatusAPIHandler
	Alerts    *handler.AlertsAPIHandler
	History   *handler.HistoryAPIHandler
	Kestra    *handler.KestraAPIHandler
	Auth      *handler.AuthAPIHandler
}

// Probes health/readiness и метрики. Любое поле может быть nil.
type Probes struct {
	Ready   func() (bool, string)
	Metrics http.Handler
	Observe func(http.Handler) http.Handler
}

// Router настраивает маршруты приложения
type Router struct {
	mux         *http.ServeMux
	handlers    Handlers
	probes      Probes
	auth        middleware.AuthConfig
	testLimiter *middleware.IPRateLimiter
	logger      *logger.Logger
}

// NewRouter создает новый router. testLimiter ограничивает ручные тестовые отправки.
func NewRouter(
	handlers Handlers,
	probes Probes,
	auth middleware.AuthConfig,
	testLimiter *middleware.IPRateLimiter,
	logger *logger.Logger,
) *Router {
	return &Router{
		mux:         http.NewServeMux(),
		handlers:    handlers,
		probes:      probes,
		auth:        auth,
		testLimiter: testLimiter,
		logger:      logger,
	}
}

// Setup настраивает все маршруты
func (rt *Router) Setup() http.Handler {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic("failed to initialize embedded static assets: " + err.Error())
	}
	rt.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServerFS(staticFS)))

	// Пробы и /metrics без авторизации
	rt.mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	rt.mux.HandleFunc("/readyz", rt.readyz)
	if rt.probes.Metrics != nil {
		rt.mux.Handle("/metrics", rt.probes.Metrics)
	}

	protect := middleware.Auth(rt.auth, rt.logger)
	h := rt.handlers

	// Dashboard
	rt.mux.Handle("/", protect(http.HandlerFunc(h.Dashboard.ShowDashboard)))

	// WebSocket
	rt.mux.Handle("/ws", protect(http.HandlerFunc(h.WebSocket.HandleConnection)))

	// API endpoints
	rt.mux.HandleFunc("/api/v1/auth/login", h.Auth.Login)
	rt.mux.HandleFunc("/api/v1/auth/logout", h.Auth.Logout)
	rt.mux.HandleFunc("/api/v1/auth/status", h.Auth.Status)

	rt.mux.Handle("/api/v1/status", protect(http.HandlerFunc(h.Status.GetStatus)))
	rt.mux.Handle("/api/v1/cycle/run", protect(http.HandlerFunc(h.Status.RunCycle)))

	var sendTest http.Handler = http.HandlerFunc(h.Alerts.SendTest)
	if rt.testLimiter != nil {
		sendTest = middleware.RateLimit(rt.testLimiter)(sendTest)
	}
	rt.mux.Handle("/api/v1/alerts/test", protect(sendTest))
	rt.mux.Handle("/api/v1/alerts/resume", protect(http.HandlerFunc(h.Alerts.Resume)))
	rt.mux.Handle("/api/v1/alerts/history", protect(http.HandlerFunc(h.Alerts.History)))

	rt.mux.Handle("/api/v1/history", protect(http.HandlerFunc(h.History.GetHistory)))

	rt.mux.Handle("/api/v1/kestra/flows", protect(http.HandlerFunc(h.Kestra.ListFlows)))
	rt.mux.Handle("/api/v1/kestra/executions", protect(http.HandlerFunc(h.Kestra.Executions)))
	rt.mux.Handle("/api/v1/kestra/executions/{id}", protect(http.HandlerFunc(h.Kestra.GetExecution)))

	// Применяем middleware
	var handler http.Handler = rt.mux
	handler = middleware.Compression(handler)
	if rt.probes.Observe != nil {
		handler = rt.probes.Observe(handler)
	}
	handler = middleware.Logger(rt.logger)(handler)
	handler = middleware.Recovery(rt.logger)(handler)
	handler = middleware.RequestID(handler)

	return handler
}

func (rt *Router) readyz(w http.ResponseWriter, _ *http.Request) {
	if rt.probes.Ready != nil {
		if ok, reason := rt.probes.Ready(); !ok {
			http.Error(w, "not ready: "+reason, http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
