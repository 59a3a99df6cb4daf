package handler

import (
	"net/http"
	"time"

	"github.com/dreschagin/monitor-dw/internal/application/dto"
	"github.com/dreschagin/monitor-dw/internal/interfaces/view"
	"github.com/dreschagin/monitor-dw/pkg/logger"
)

// StatusSource последний разосланный статус
type StatusSource interface {
	LastStatus() *dto.StatusDTO
}

// DashboardHandler обрабатывает запросы к dashboard
type DashboardHandler struct {
	source StatusSource
	page   view.PageData
	logger *logger.Logger
}

// NewDashboardHandler создает новый handler. page задает статические части страницы.
func NewDashboardHandler(source StatusSource, page view.PageData, logger *logger.Logger) *DashboardHandler {
	return &DashboardHandler{
		source: source,
		page:   page,
		logger: logger,
	}
}

// ShowDashboard отображает главную страницу dashboard
func (h *DashboardHandler) ShowDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/dashboard" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data := h.page
	data.Status = h.source.LastStatus()
	data.GeneratedAt = time.Now()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	// Рендерим Templ компонент
	if err := view.Dashboard(data).Render(r.Context(), w); err != nil {
		h.logger.Error("Failed to render dashboard", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
}
