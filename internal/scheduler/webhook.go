package scheduler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Webhook request headers.
const (
	SignatureHeader = "X-Econcal-Signature"
	TimestampHeader = "X-Econcal-Timestamp"
)

// WebhookDeliverer posts each notification as JSON to a fixed URL. When a
// secret is set the body is signed with HMAC-SHA256 over "timestamp.body".
type WebhookDeliverer struct {
	url        string
	secret     []byte
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

func NewWebhookDeliverer(url, secret string, client *http.Client, logger *slog.Logger) *WebhookDeliverer {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &WebhookDeliverer{
		url:        url,
		secret:     []byte(secret),
		httpClient: client,
		logger:     logger,
		now:        time.Now,
	}
}

// Deliver posts n. Any non-2xx response is an error so the notification is
// retried on the next check.
func (d *WebhookDeliverer) Deliver(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if len(d.secret) > 0 {
		ts := strconv.FormatInt(d.now().Unix(), 10)
		req.Header.Set(TimestampHeader, ts)
		req.Header.Set(SignatureHeader, Sign(d.secret, ts, body))
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(msg))
	}

	d.logger.Debug("notification posted",
		"kind", n.Kind,
		"subscriber", n.Subscriber.ID,
		"event_id", n.Event.ID())
	return nil
}

// Sign returns the hex HMAC-SHA256 of "timestamp.body" under secret.
func Sign(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
