package alert

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/convoy-ops/convoy/internal/types"
)

// Ntfy sends alerts to an ntfy topic URL.
type Ntfy struct {
	url      string
	username string
	password string
	client   *http.Client
}

// NewNtfy creates an ntfy sink. URL must include the topic, e.g.
// "https://ntfy.sh/convoy-alerts".
func NewNtfy(url, username, password string) *Ntfy {
	return &Ntfy{
		url:      strings.TrimRight(url, "/"),
		username: username,
		password: password,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Name returns the sink name for logging.
func (n *Ntfy) Name() string { return "ntfy" }

// Send posts the alert body to the ntfy topic.
func (n *Ntfy) Send(ctx context.Context, alert *types.Alert) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, strings.NewReader(formatBody(alert)))
	if err != nil {
		return fmt.Errorf("create ntfy request: %w", err)
	}
	if n.username != "" {
		req.SetBasicAuth(n.username, n.password)
	}
	req.Header.Set("X-Title", formatTitle(alert))
	req.Header.Set("X-Priority", ntfyPriority(alert))

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned %s", resp.Status)
	}
	return nil
}

// ntfyPriority maps severity to ntfy's 1-5 priority scale.
func ntfyPriority(alert *types.Alert) string {
	if alert.Resolved {
		return "3"
	}
	switch alert.Severity {
	case types.SeverityCritical:
		return "5"
	case types.SeverityWarning:
		return "4"
	default:
		return "3"
	}
}
