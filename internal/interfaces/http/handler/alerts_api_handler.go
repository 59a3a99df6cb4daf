package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dreschagin/monitor-dw/internal/application/port"
	"github.com/dreschagin/monitor-dw/internal/application/usecase"
	"github.com/dreschagin/monitor-dw/internal/interfaces/http/middleware"
	"github.com/dreschagin/monitor-dw/pkg/logger"
)

const (
	maxTestPayloadBytes = 16 * 1024
	maxTestTextLength   = 2000
)

// ArchiveLinker выдает ссылку на сохраненный payload алерта
type ArchiveLinker interface {
	GetObjectURL(ctx context.Context, key string) (string, error)
}

// AlertsAPIHandler ручная отправка, снятие блокировки и журнал отправок
type AlertsAPIHandler struct {
	dispatcher *usecase.AlertDispatcher
	ledgerUC   *usecase.ListDispatchLedgerUseCase
	archive    ArchiveLinker
	now        func() time.Time
	logger     *logger.Logger
}

type testAlertRequest struct {
	Text       string `json:"text"`
	WebhookURL string `json:"webhook_url"`
}

type resumeResponse struct {
	AlertsSuspended bool   `json:"alerts_suspended"`
	Caption         string `json:"caption"`
}

// NewAlertsAPIHandler создает новый handler. archive может быть nil.
func NewAlertsAPIHandler(
	dispatcher *usecase.AlertDispatcher,
	ledgerUC *usecase.ListDispatchLedgerUseCase,
	archive ArchiveLinker,
	log *logger.Logger,
) *AlertsAPIHandler {
	return &AlertsAPIHandler{
		dispatcher: dispatcher,
		ledgerUC:   ledgerUC,
		archive:    archive,
		now:        time.Now,
		logger:     log,
	}
}

// SendTest отправляет тестовое сообщение в Slack
func (h *AlertsAPIHandler) SendTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxTestPayloadBytes)
	defer r.Body.Close()

	var req testAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	text := strings.TrimSpace(req.Text)
	if len([]rune(text)) > maxTestTextLength {
		middleware.WriteError(w, http.StatusBadRequest, "text is too long")
		return
	}

	result := h.dispatcher.SendTest(r.Context(), text, strings.TrimSpace(req.WebhookURL), h.now())

	status := http.StatusOK
	switch {
	case result.Success != nil && *result.Success:
	case result.ErrorKind == port.DeliveryConfigError:
		status = http.StatusBadRequest
	default:
		status = http.StatusBadGateway
	}

	middleware.WriteJSON(w, status, result.ToDTO())
}

// Resume вручную снимает блокировку алертов
func (h *AlertsAPIHandler) Resume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.dispatcher.Resume(r.Context(), h.now())
	state := h.dispatcher.Status().State

	middleware.WriteJSON(w, http.StatusOK, resumeResponse{
		AlertsSuspended: state.AlertsSuspended,
		Caption:         "🔔 Slack alerts re-enabled",
	})
}

// History возвращает страницу журнала отправок
func (h *AlertsAPIHandler) History(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	cmd := usecase.ListDispatchLedgerCommand{
		Trigger: query.Get("trigger"),
		Cursor:  query.Get("cursor"),
	}

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			middleware.WriteError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		cmd.Limit = limit
	}

	var err error
	if cmd.From, err = parseTimeParam(query.Get("from")); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid from, expected RFC3339")
		return
	}
	if cmd.To, err = parseTimeParam(query.Get("to")); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid to, expected RFC3339")
		return
	}

	page, err := h.ledgerUC.Execute(r.Context(), cmd)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrLedgerDisabled):
			middleware.WriteError(w, http.StatusServiceUnavailable, err.Error())
		case errors.Is(err, usecase.ErrInvalidArgument), errors.Is(err, port.ErrInvalidCursor):
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
		default:
			middleware.WriteError(w, http.StatusInternalServerError, "failed to load dispatch ledger")
		}
		return
	}

	if h.archive != nil {
		for _, item := range page.Items {
			if item.ArchiveKey == "" {
				continue
			}
			url, err := h.archive.GetObjectURL(r.Context(), item.ArchiveKey)
			if err != nil {
				h.logger.Warn("Failed to sign archive URL", "key", item.ArchiveKey, "error", err.Error())
				continue
			}
			item.ArchiveURL = url
		}
	}

	middleware.WriteJSON(w, http.StatusOK, page)
}

func parseTimeParam(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
