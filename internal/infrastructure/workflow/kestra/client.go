package kestra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dreschagin/monitor-dw/internal/application/port"
)

const (
	DefaultAPIKeyHeader = "X-EVINO-KESTRA-API-KEY"
	DefaultTenant       = "main"
	userAgent           = "MonitorDW/1.0"
)

// ErrNotConfigured is returned when no base URL is set.
var ErrNotConfigured = errors.New("kestra is not configured")

// APIError is a non-2xx response from the Kestra API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kestra API returned %d: %s", e.StatusCode, e.Body)
}

type Config struct {
	BaseURL      string
	Tenant       string
	APIKey       string
	APIKeyHeader string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// Client talks to the Kestra REST API. It implements port.WorkflowClient.
type Client struct {
	baseURL      string
	tenant       string
	apiKey       string
	apiKeyHeader string
	http         *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Tenant == "" {
		cfg.Tenant = DefaultTenant
	}
	if cfg.APIKeyHeader == "" {
		cfg.APIKeyHeader = DefaultAPIKeyHeader
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		tenant:       cfg.Tenant,
		apiKey:       cfg.APIKey,
		apiKeyHeader: cfg.APIKeyHeader,
		http:         cfg.HTTPClient,
	}
}

type flowDTO struct {
	ID          string `json:"id"`
	Namespace   string `json:"namespace"`
	Description string `json:"description"`
	Disabled    bool   `json:"disabled"`
}

type executionDTO struct {
	ID        string `json:"id"`
	FlowID    string `json:"flowId"`
	Namespace string `json:"namespace"`
	State     struct {
		Current   string  `json:"current"`
		StartDate *string `json:"startDate"`
		EndDate   *string `json:"endDate"`
	} `json:"state"`
}

// ListFlows returns the tenant's flows, filtered by namespace when one is given.
func (c *Client) ListFlows(ctx context.Context, namespace string) ([]port.Flow, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/flows", nil, &raw); err != nil {
		return nil, err
	}

	var dtos []flowDTO
	if err := decodeList(raw, &dtos); err != nil {
		return nil, fmt.Errorf("failed to decode flows: %w", err)
	}

	flows := make([]port.Flow, 0, len(dtos))
	for _, d := range dtos {
		if namespace != "" && d.Namespace != namespace {
			continue
		}
		flows = append(flows, port.Flow{ID: d.ID, Namespace: d.Namespace, Description: d.Description, Disabled: d.Disabled})
	}
	return flows, nil
}

func (c *Client) ListExecutions(ctx context.Context, namespace, flowID string, size int) ([]port.Execution, error) {
	if flowID == "" {
		return nil, fmt.Errorf("flow id is required")
	}
	if namespace == "" {
		namespace = DefaultTenant
	}
	if size <= 0 {
		size = 10
	}

	path := fmt.Sprintf("/executions/flows/%s/%s?size=%s",
		url.PathEscape(namespace), url.PathEscape(flowID), strconv.Itoa(size))

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}

	var dtos []executionDTO
	if err := decodeList(raw, &dtos); err != nil {
		return nil, fmt.Errorf("failed to decode executions: %w", err)
	}
	if len(dtos) > size {
		dtos = dtos[:size]
	}

	executions := make([]port.Execution, 0, len(dtos))
	for _, d := range dtos {
		executions = append(executions, toExecution(d))
	}
	return executions, nil
}

func (c *Client) GetExecution(ctx context.Context, executionID string) (port.Execution, error) {
	if executionID == "" {
		return port.Execution{}, fmt.Errorf("execution id is required")
	}

	var d executionDTO
	if err := c.do(ctx, http.MethodGet, "/executions/"+url.PathEscape(executionID), nil, &d); err != nil {
		return port.Execution{}, err
	}
	return toExecution(d), nil
}

// TriggerExecution starts a flow and returns the new execution id.
func (c *Client) TriggerExecution(ctx context.Context, namespace, flowID string, inputs map[string]string) (string, error) {
	if flowID == "" {
		return "", fmt.Errorf("flow id is required")
	}
	if namespace == "" {
		namespace = DefaultTenant
	}

	payload := map[string]interface{}{
		"flowId":    flowID,
		"namespace": namespace,
	}
	if len(inputs) > 0 {
		payload["inputs"] = inputs
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/executions", payload, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}, dest interface{}) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	endpoint := fmt.Sprintf("%s/api/v1/%s%s", c.baseURL, url.PathEscape(c.tenant), path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(c.apiKeyHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("kestra request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(excerpt))}
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode kestra response: %w", err)
	}
	return nil
}

// decodeList accepts a bare array or a {"results": [...]} page.
func decodeList(raw json.RawMessage, dest interface{}) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, dest)
	}

	var page struct {
		Results json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return err
	}
	if len(page.Results) == 0 {
		return nil
	}
	return json.Unmarshal(page.Results, dest)
}

func toExecution(d executionDTO) port.Execution {
	e := port.Execution{
		ID:        d.ID,
		FlowID:    d.FlowID,
		Namespace: d.Namespace,
		State:     d.State.Current,
		StartDate: parseTime(d.State.StartDate),
		EndDate:   parseTime(d.State.EndDate),
	}
	if e.State == "" {
		e.State = "UNKNOWN"
	}
	if e.StartDate != nil && e.EndDate != nil {
		e.Duration = e.EndDate.Sub(*e.StartDate)
	}
	e.Message = stateMessage(e.State)
	return e
}

func stateMessage(state string) string {
	switch state {
	case "SUCCESS":
		return "Execution succeeded"
	case "FAILED":
		return "Execution failed"
	case "RUNNING":
		return "Execution in progress"
	case "KILLED":
		return "Execution cancelled"
	default:
		return "Status: " + state
	}
}

func parseTime(value *string) *time.Time {
	if value == nil || *value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, *value)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
