package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/dreschagin/monitor-dw/internal/application/port"
	"github.com/dreschagin/monitor-dw/internal/infrastructure/workflow/kestra"
	"github.com/dreschagin/monitor-dw/internal/interfaces/http/middleware"
	"github.com/dreschagin/monitor-dw/pkg/logger"
)

const (
	defaultExecutionsSize = 10
	maxExecutionsSize     = 100
	maxTriggerBodyBytes   = 64 * 1024
)

type KestraAPIHandler struct {
	client    port.WorkflowClient
	namespace string
	logger    *logger.Logger
}

type triggerExecutionRequest struct {
	Namespace string            `json:"namespace"`
	FlowID    string            `json:"flow_id"`
	Inputs    map[string]string `json:"inputs"`
}

// NewKestraAPIHandler создает handler. client == nil означает, что Kestra выключена.
func NewKestraAPIHandler(client port.WorkflowClient, namespace string, log *logger.Logger) *KestraAPIHandler {
	return &KestraAPIHandler{
		client:    client,
		namespace: strings.TrimSpace(namespace),
		logger:    log,
	}
}

func (h *KestraAPIHandler) ListFlows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.enabled(w) {
		return
	}

	namespace := h.namespaceFrom(r.URL.Query().Get("namespace"))
	flows, err := h.client.ListFlows(r.Context(), namespace)
	if err != nil {
		h.writeUpstreamError(w, err, "list flows")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"namespace": namespace,
		"flows":     flows,
	})
}

// Executions GET перечисляет запуски flow, POST запускает новый
func (h *KestraAPIHandler) Executions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listExecutions(w, r)
	case http.MethodPost:
		h.triggerExecution(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *KestraAPIHandler) listExecutions(w http.ResponseWriter, r *http.Request) {
	if !h.enabled(w) {
		return
	}

	query := r.URL.Query()
	flowID := strings.TrimSpace(query.Get("flow_id"))
	if flowID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "flow_id is required")
		return
	}

	size := defaultExecutionsSize
	if raw := query.Get("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			middleware.WriteError(w, http.StatusBadRequest, "invalid size")
			return
		}
		size = min(parsed, maxExecutionsSize)
	}

	namespace := h.namespaceFrom(query.Get("namespace"))
	executions, err := h.client.ListExecutions(r.Context(), namespace, flowID, size)
	if err != nil {
		h.writeUpstreamError(w, err, "list executions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"namespace":  namespace,
		"flow_id":    flowID,
		"executions": executions,
	})
}

func (h *KestraAPIHandler) GetExecution(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.enabled(w) {
		return
	}

	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		middleware.WriteError(w, http.StatusBadRequest, "execution id is required")
		return
	}

	execution, err := h.client.GetExecution(r.Context(), id)
	if err != nil {
		h.writeUpstreamError(w, err, "get execution")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, execution)
}

func (h *KestraAPIHandler) triggerExecution(w http.ResponseWriter, r *http.Request) {
	if !h.enabled(w) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxTriggerBodyBytes)
	defer r.Body.Close()

	var req triggerExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.FlowID) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "flow_id is required")
		return
	}

	namespace := h.namespaceFrom(req.Namespace)
	executionID, err := h.client.TriggerExecution(r.Context(), namespace, strings.TrimSpace(req.FlowID), req.Inputs)
	if err != nil {
		h.writeUpstreamError(w, err, "trigger execution")
		return
	}

	h.logger.Info("Kestra execution triggered", "namespace", namespace, "flow_id", req.FlowID, "execution_id", executionID)
	middleware.WriteJSON(w, http.StatusCreated, map[string]string{
		"execution_id": executionID,
	})
}

func (h *KestraAPIHandler) enabled(w http.ResponseWriter) bool {
	if h.client == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, kestra.ErrNotConfigured.Error())
		return false
	}
	return true
}

func (h *KestraAPIHandler) namespaceFrom(raw string) string {
	if ns := strings.TrimSpace(raw); ns != "" {
		return ns
	}
	return h.namespace
}

func (h *KestraAPIHandler) writeUpstreamError(w http.ResponseWriter, err error, action string) {
	if errors.Is(err, kestra.ErrNotConfigured) {
		middleware.WriteError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	var apiErr *kestra.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		middleware.WriteError(w, http.StatusNotFound, "not found in kestra")
		return
	}

	h.logger.Error("Kestra request failed", err, "action", action)
	middleware.WriteError(w, http.StatusBadGateway, "kestra is unavailable")
}
