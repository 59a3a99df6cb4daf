package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
)

const (
	jiraCountPath  = "/rest/api/3/search/approximate-count"
	jiraSearchPath = "/rest/api/3/search/jql"
	jiraTimeLayout = "2006-01-02T15:04:05.000-0700"
)

// JiraConfig параметры подключения к Jira Cloud
type JiraConfig struct {
	BaseURL    string
	Email      string
	APIToken   string
	JQL        string
	MaxResults int
	Timeout    time.Duration
	HTTPClient *http.Client
}

// JiraCollector считает открытые задачи по JQL.
// Реализует port.TicketCollector
type JiraCollector struct {
	baseURL    string
	email      string
	token      string
	jql        string
	maxResults int
	client     *http.Client
}

// NewJiraCollector создает collector
func NewJiraCollector(cfg JiraConfig) *JiraCollector {
	if cfg.MaxResults <= 0 || cfg.MaxResults > valueobject.MaxTicketRows {
		cfg.MaxResults = valueobject.MaxTicketRows
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 12 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &JiraCollector{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		email:      cfg.Email,
		token:      cfg.APIToken,
		jql:        cfg.JQL,
		maxResults: cfg.MaxResults,
		client:     cfg.HTTPClient,
	}
}

type jiraIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary string `json:"summary"`
		Status  *struct {
			Name string `json:"name"`
		} `json:"status"`
		Assignee *struct {
			DisplayName string `json:"displayName"`
		} `json:"assignee"`
		Updated string `json:"updated"`
	} `json:"fields"`
}

// CollectTickets возвращает приблизительное число задач и последние обновленные.
// Ошибка любого из двух запросов отменяет результат целиком.
func (c *JiraCollector) CollectTickets(ctx context.Context) (valueobject.TicketMetric, error) {
	if c.baseURL == "" {
		return valueobject.TicketMetric{}, fmt.Errorf("jira base URL is not configured")
	}

	var count struct {
		Count int `json:"count"`
	}
	if err := c.post(ctx, jiraCountPath, map[string]interface{}{"jql": c.jql}, &count); err != nil {
		return valueobject.TicketMetric{}, fmt.Errorf("jira approximate count: %w", err)
	}

	var search struct {
		Issues []jiraIssue `json:"issues"`
	}
	payload := map[string]interface{}{
		"jql":        c.jql + " ORDER BY updated DESC",
		"maxResults": c.maxResults,
		"fields":     []string{"summary", "status", "assignee", "updated"},
	}
	if err := c.post(ctx, jiraSearchPath, payload, &search); err != nil {
		return valueobject.TicketMetric{}, fmt.Errorf("jira search: %w", err)
	}

	rows := make([]valueobject.TicketSummary, 0, len(search.Issues))
	for _, issue := range search.Issues {
		rows = append(rows, c.toSummary(issue))
	}

	return valueobject.NewTicketMetric(count.Count, rows), nil
}

// BrowseURL ссылка на задачу
func (c *JiraCollector) BrowseURL(key string) string {
	return c.baseURL + "/browse/" + key
}

func (c *JiraCollector) toSummary(issue jiraIssue) valueobject.TicketSummary {
	s := valueobject.TicketSummary{
		Key:      issue.Key,
		Summary:  strings.TrimSpace(issue.Fields.Summary),
		Status:   "N/A",
		Assignee: "—",
		URL:      c.BrowseURL(issue.Key),
	}
	if s.Summary == "" {
		s.Summary = "N/A"
	}
	if issue.Fields.Status != nil && issue.Fields.Status.Name != "" {
		s.Status = issue.Fields.Status.Name
	}
	if issue.Fields.Assignee != nil && issue.Fields.Assignee.DisplayName != "" {
		s.Assignee = issue.Fields.Assignee.DisplayName
	}
	if t, err := time.Parse(jiraTimeLayout, issue.Fields.Updated); err == nil {
		s.UpdatedAt = t.UTC()
	}
	return s
}

func (c *JiraCollector) post(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.email, c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
