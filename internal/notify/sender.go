package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Sender is one delivery channel for operator alerts.
type Sender interface {
	// Send delivers one alert with a short title and a message body.
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel in logs and errors.
	Name() string
}

// senderTimeout caps one delivery attempt. Alerts are best-effort; a slow
// channel must not stall the trading loops.
const senderTimeout = 10 * time.Second

// postJSON does the HTTP legwork shared by the webhook-style channels.
func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet)
	}
	return nil
}
