package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	webhookAttempts = 3
	// maxRetryAfter ограничивает паузу, которую может запросить получатель.
	maxRetryAfter = 10 * time.Second
)

// WebhookClient отправляет события POST-запросом на внешний адрес уведомлений.
type WebhookClient struct {
	url        string
	httpClient *http.Client
	maxWait    time.Duration
}

// NewWebhookClient создаёт HTTP-клиент для отправки событий по указанному адресу.
func NewWebhookClient(url string) *WebhookClient {
	url = strings.TrimRight(url, "/")
	if url != "" && !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	return &WebhookClient{
		url: url,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		maxWait: maxRetryAfter,
	}
}

// Send отправляет пачку событий одним запросом. При ответе 429 возвращает
// код и паузу из заголовка Retry-After без ошибки.
func (c *WebhookClient) Send(ctx context.Context, evs []Event) (int, time.Duration, error) {
	if c == nil || c.url == "" {
		return 0, 0, fmt.Errorf("webhook client not configured")
	}

	body, err := json.Marshal(evs)
	if err != nil {
		return 0, 0, fmt.Errorf("encode events: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return resp.StatusCode, retryAfter, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return resp.StatusCode, 0, nil
}

// Publish отправляет события, повторяя запрос после паузы Retry-After.
// Пауза не превышает maxRetryAfter, число попыток ограничено.
func (c *WebhookClient) Publish(ctx context.Context, evs ...Event) error {
	if len(evs) == 0 {
		return nil
	}

	for attempt := 1; ; attempt++ {
		code, retryAfter, err := c.Send(ctx, evs)
		if err != nil {
			return err
		}
		if code != http.StatusTooManyRequests {
			return nil
		}
		if attempt == webhookAttempts {
			return fmt.Errorf("webhook rate limited after %d attempts", attempt)
		}
		if retryAfter <= 0 {
			retryAfter = time.Second
		}
		retryAfter = min(retryAfter, c.maxWait)

		timer := time.NewTimer(retryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
