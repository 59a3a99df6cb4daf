package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dreschagin/monitor-dw/internal/application/port"
	"github.com/dreschagin/monitor-dw/internal/domain/entity"
	"github.com/dreschagin/monitor-dw/pkg/logger"
)

const (
	// DefaultWebhookPrefix is the only URL shape accepted by default.
	DefaultWebhookPrefix = "https://hooks.slack.com/services/"

	defaultMaxAttempts    = 4
	defaultTimeout        = 10 * time.Second
	initialBackoff        = 1 * time.Second
	maxBackoff            = 8 * time.Second
	defaultRetryAfterSecs = 1
	maxBodyExcerpt        = 200
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// WebhookConfig holds configuration for the Slack webhook client.
type WebhookConfig struct {
	URL         string
	Prefix      string
	Timeout     time.Duration
	MaxAttempts int
	HTTPClient  *http.Client
	Sleep       Sleeper
}

// WebhookClient delivers alert messages to a Slack incoming webhook.
// It implements port.AlertDelivery.
type WebhookClient struct {
	url         string
	prefix      string
	maxAttempts int
	httpClient  *http.Client
	sleep       Sleeper
	logger      *logger.Logger
}

// NewWebhookClient creates a webhook client. An empty URL is allowed;
// Deliver then fails with a config error and no network call.
func NewWebhookClient(cfg WebhookConfig, log *logger.Logger) *WebhookClient {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultWebhookPrefix
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Sleep == nil {
		cfg.Sleep = contextSleep
	}

	return &WebhookClient{
		url:         strings.TrimSpace(cfg.URL),
		prefix:      cfg.Prefix,
		maxAttempts: cfg.MaxAttempts,
		httpClient:  cfg.HTTPClient,
		sleep:       cfg.Sleep,
		logger:      log,
	}
}

// Configured reports whether a webhook URL is set.
func (c *WebhookClient) Configured() bool {
	return c.url != ""
}

// Deliver posts msg to the configured webhook.
func (c *WebhookClient) Deliver(ctx context.Context, msg *entity.AlertMessage) error {
	return c.DeliverTo(ctx, c.url, msg)
}

// DeliverTo posts msg to webhookURL with retries.
func (c *WebhookClient) DeliverTo(ctx context.Context, webhookURL string, msg *entity.AlertMessage) error {
	webhookURL = strings.TrimSpace(webhookURL)
	if err := c.validateURL(webhookURL); err != nil {
		return err
	}

	body, err := c.Render(msg)
	if err != nil {
		return &port.DeliveryError{Kind: port.DeliveryConfigError, Err: fmt.Errorf("failed to render payload: %w", err)}
	}

	return c.postWithRetry(ctx, webhookURL, body)
}

// Render returns the JSON body that would be posted for msg.
func (c *WebhookClient) Render(msg *entity.AlertMessage) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("nil alert message")
	}
	return json.Marshal(BuildPayload(msg))
}

func (c *WebhookClient) validateURL(webhookURL string) error {
	if webhookURL == "" {
		return &port.DeliveryError{Kind: port.DeliveryConfigError, Err: fmt.Errorf("webhook URL is not configured")}
	}
	if !strings.HasPrefix(webhookURL, c.prefix) {
		shown := webhookURL
		if len(shown) > 50 {
			shown = shown[:50] + "..."
		}
		return &port.DeliveryError{
			Kind: port.DeliveryConfigError,
			Err:  fmt.Errorf("webhook URL looks invalid, expected %s..., got %s", c.prefix, shown),
		}
	}
	return nil
}

// postWithRetry makes up to maxAttempts requests. 429 waits Retry-After+1 seconds,
// 5xx and transport errors back off from 1s doubling up to 8s. There is no wait
// after the final attempt.
func (c *WebhookClient) postWithRetry(ctx context.Context, webhookURL string, body []byte) error {
	var lastErr *port.DeliveryError
	backoff := initialBackoff

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		status, respBody, retryAfter, err := c.post(ctx, webhookURL, body)

		var wait time.Duration
		switch {
		case err != nil:
			lastErr = &port.DeliveryError{
				Kind:     port.DeliveryTransportError,
				Network:  classifyNetworkError(err),
				Attempts: attempt,
				Err:      err,
			}
			if ctx.Err() != nil {
				return lastErr
			}
			wait = backoff
			backoff = nextBackoff(backoff)

		case status == http.StatusOK || status == http.StatusNoContent:
			if attempt > 1 {
				c.logger.Info("Slack webhook delivered after retries", "attempts", attempt)
			}
			return nil

		case status == http.StatusNotFound && strings.Contains(strings.ToLower(respBody), "no_service"):
			return &port.DeliveryError{
				Kind:       port.DeliveryWebhookRevoked,
				StatusCode: status,
				Body:       respBody,
				Attempts:   attempt,
			}

		case status == http.StatusTooManyRequests:
			lastErr = &port.DeliveryError{
				Kind:       port.DeliveryRateLimited,
				StatusCode: status,
				Body:       respBody,
				Attempts:   attempt,
			}
			wait = time.Duration(retryAfter+1) * time.Second

		case status >= 500 && status < 600:
			lastErr = &port.DeliveryError{
				Kind:       port.DeliveryServerError,
				StatusCode: status,
				Body:       respBody,
				Attempts:   attempt,
			}
			wait = backoff
			backoff = nextBackoff(backoff)

		default:
			return &port.DeliveryError{
				Kind:       port.DeliveryClientError,
				StatusCode: status,
				Body:       respBody,
				Attempts:   attempt,
			}
		}

		if attempt == c.maxAttempts {
			break
		}

		c.logger.Warn("Slack webhook attempt failed, retrying",
			"attempt", attempt,
			"error_kind", string(lastErr.Kind),
			"wait", wait.String())

		if err := c.sleep(ctx, wait); err != nil {
			return lastErr
		}
	}

	return lastErr
}

func (c *WebhookClient) post(ctx context.Context, webhookURL string, body []byte) (int, string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", 0, err
	}
	defer resp.Body.Close()

	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyExcerpt))
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, string(excerpt), parseRetryAfter(resp.Header.Get("Retry-After")), nil
}

// parseRetryAfter reads Retry-After in seconds, defaulting to 1.
func parseRetryAfter(value string) int {
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds < 0 {
		return defaultRetryAfterSecs
	}
	return seconds
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func contextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
