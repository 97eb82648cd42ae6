package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Webhook posts finished briefs to the downstream delivery endpoint.
// Delivery is one-shot: a failed POST is reported to the caller and
// never retried here, the dedup cooldown decides when the next attempt
// may happen.
type Webhook struct {
	url    string
	client *http.Client
	log    *zap.Logger
}

func NewWebhook(url string, timeout time.Duration, log *zap.Logger) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

type webhookRequest struct {
	RecipientID string `json:"recipient_id"`
	Content     string `json:"content"`
}

type webhookResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (w *Webhook) Deliver(ctx context.Context, recipientID, content string) error {
	body, err := json.Marshal(webhookRequest{RecipientID: recipientID, Content: content})
	if err != nil {
		return fmt.Errorf("marshal delivery request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post delivery: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("delivery endpoint returned %s", resp.Status)
	}

	var wr webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return fmt.Errorf("decode delivery response: %w", err)
	}
	if !wr.Success {
		if wr.Error != "" {
			return fmt.Errorf("delivery rejected: %s", wr.Error)
		}
		return fmt.Errorf("delivery rejected")
	}

	w.log.Debug("webhook delivery accepted", zap.String("recipient", recipientID))
	return nil
}
