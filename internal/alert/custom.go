package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/convoy-ops/convoy/internal/types"
)

// Custom sends the full alert as JSON to a user-provided URL.
type Custom struct {
	url    string
	client *http.Client
}

// NewCustom creates a generic webhook sink.
func NewCustom(url string) *Custom {
	return &Custom{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Name returns the sink name for logging.
func (c *Custom) Name() string { return "custom" }

// Send posts the alert as JSON to the configured URL.
func (c *Custom) Send(ctx context.Context, alert *types.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
