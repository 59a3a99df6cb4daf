package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dreschagin/monitor-dw/internal/application/usecase"
	"github.com/dreschagin/monitor-dw/internal/interfaces/http/middleware"
	"github.com/dreschagin/monitor-dw/pkg/logger"
)

// HistoryAPIHandler обрабатывает API запросы истории инцидентов
type HistoryAPIHandler struct {
	getHistoryUC *usecase.GetHistoryUseCase
	logger       *logger.Logger
}

// NewHistoryAPIHandler создает новый handler. getHistoryUC == nil, когда база истории выключена.
func NewHistoryAPIHandler(getHistoryUC *usecase.GetHistoryUseCase, logger *logger.Logger) *HistoryAPIHandler {
	return &HistoryAPIHandler{
		getHistoryUC: getHistoryUC,
		logger:       logger,
	}
}

// GetHistory возвращает статистику ошибок и дневные сводки за ?days=N
func (h *HistoryAPIHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.getHistoryUC == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "history database is not configured")
		return
	}

	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "invalid days")
			return
		}
		days = parsed
	}

	history, err := h.getHistoryUC.Execute(r.Context(), days)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidArgument) {
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("Failed to get history", err, "days", days)
		middleware.WriteError(w, http.StatusInternalServerError, "failed to fetch history")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, history)
}
