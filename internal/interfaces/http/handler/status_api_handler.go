package handler

import (
	"net/http"
	"time"

	"github.com/dreschagin/monitor-dw/internal/application/dto"
	"github.com/dreschagin/monitor-dw/internal/application/usecase"
	"github.com/dreschagin/monitor-dw/internal/cycle"
	"github.com/dreschagin/monitor-dw/internal/interfaces/http/middleware"
	"github.com/dreschagin/monitor-dw/pkg/logger"
)

// StatusAPIHandler отдает статус последнего цикла и запускает цикл вручную
type StatusAPIHandler struct {
	runner    *cycle.Runner
	monitorUC *usecase.MonitorCycleUseCase
	logger    *logger.Logger
}

type statusResponse struct {
	Status       *dto.StatusDTO `json:"status"`
	LastRunAt    *time.Time     `json:"last_run_at,omitempty"`
	LastError    string         `json:"last_error,omitempty"`
	Runs         int            `json:"runs"`
	SkippedTicks int            `json:"skipped_ticks"`
	Interval     string         `json:"interval"`
}

func NewStatusAPIHandler(runner *cycle.Runner, monitorUC *usecase.MonitorCycleUseCase, logger *logger.Logger) *StatusAPIHandler {
	return &StatusAPIHandler{
		runner:    runner,
		monitorUC: monitorUC,
		logger:    logger,
	}
}

// GetStatus возвращает последний отчет. До первого цикла status == null.
func (h *StatusAPIHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snapshot := h.runner.Snapshot()
	response := statusResponse{
		LastError:    snapshot.LastError,
		Runs:         snapshot.Runs,
		SkippedTicks: snapshot.SkippedTicks,
		Interval:     snapshot.Interval.String(),
	}
	if !snapshot.LastRunAt.IsZero() {
		lastRun := snapshot.LastRunAt.UTC()
		response.LastRunAt = &lastRun
	}
	if snapshot.LastReport != nil {
		response.Status = h.monitorUC.StatusFor(snapshot.LastReport)
	}

	middleware.WriteJSON(w, http.StatusOK, response)
}

// RunCycle выполняет цикл немедленно
func (h *StatusAPIHandler) RunCycle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	report, err := h.runner.RunOnce(r.Context())
	if err != nil {
		middleware.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	middleware.WriteJSON(w, http.StatusOK, h.monitorUC.StatusFor(report))
}
