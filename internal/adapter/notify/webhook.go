package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"switchd/internal/domain"
)

// WebhookPayload is the JSON body posted by WebhookNotifier.
type WebhookPayload struct {
	Title     string    `json:"title"`
	Subtitle  string    `json:"subtitle"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// WebhookNotifier POSTs a JSON payload to an arbitrary URL.
type WebhookNotifier struct {
	url     string
	headers map[string]string
	client  *http.Client
}

func NewWebhookNotifier(url string, headers map[string]string, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookNotifier{url: url, headers: headers, client: client}
}

func (w *WebhookNotifier) Name() string { return "webhook" }

func (w *WebhookNotifier) Notify(ctx context.Context, title, subtitle string) error {
	body, err := json.Marshal(WebhookPayload{
		Title:     title,
		Subtitle:  subtitle,
		Source:    "switchd",
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return domain.WrapOp("WebhookNotifier.Notify", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return domain.NewSubSystemError("notify", "WebhookNotifier.Notify", domain.ErrNotifyFailed, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "switchd")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return domain.NewSubSystemError("notify", "WebhookNotifier.Notify", domain.ErrNotifyFailed, err.Error())
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.NewSubSystemError("notify", "WebhookNotifier.Notify", domain.ErrNotifyFailed,
			fmt.Sprintf("webhook returned status %d", resp.StatusCode))
	}
	return nil
}
