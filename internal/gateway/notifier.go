package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// WebhookNotifier delivers user notifications by POSTing them to the
// bridge callback URL. The bridge side turns them into chat messages.
type WebhookNotifier struct {
	url    string
	token  string
	client *http.Client
	logger zerolog.Logger
}

// NewWebhookNotifier creates a notifier for the given callback URL.
func NewWebhookNotifier(url, token string, logger zerolog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.With().Str("component", "notifier").Logger(),
	}
}

type notification struct {
	UserID int64  `json:"user_id"`
	Text   string `json:"text"`
}

// Notify posts one message for the user to the bridge.
func (n *WebhookNotifier) Notify(ctx context.Context, userID int64, text string) error {
	body, err := json.Marshal(notification{UserID: userID, Text: text})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.token)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("bridge callback returned %s", resp.Status)
	}
	n.logger.Debug().Int64("user_id", userID).Msg("Notification delivered")
	return nil
}
