package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/alanyoungcy/pumpfight/internal/crypto"
)

// WebhookSender posts the full message as JSON to an operator endpoint.
// Every delivery carries HMAC timestamp and signature headers so the
// receiver can authenticate it.
type WebhookSender struct {
	url    string
	signer *crypto.WebhookSigner
	client *http.Client
	now    func() time.Time
}

// NewWebhookSender creates a WebhookSender signing with secret.
func NewWebhookSender(url, secret string) *WebhookSender {
	return &WebhookSender{
		url:    url,
		signer: crypto.NewWebhookSigner(secret),
		client: newHTTPClient(),
		now:    time.Now,
	}
}

type webhookBody struct {
	Event  string            `json:"event"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Fields map[string]string `json:"fields,omitempty"`
	SentAt time.Time         `json:"sent_at"`
}

// Send signs and posts msg.
func (w *WebhookSender) Send(ctx context.Context, msg Message) error {
	now := w.now().UTC()
	body, err := json.Marshal(webhookBody{
		Event:  msg.Event,
		Title:  msg.Title,
		Body:   msg.Body,
		Fields: msg.Fields,
		SentAt: now,
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}
	if err := postJSON(ctx, w.client, w.url, body, w.signer.Headers(body, now)); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

func (w *WebhookSender) Name() string { return "webhook" }
