// Package alert delivers alerts to configured alerter endpoints.
package alert

import (
	"context"

	"github.com/convoy-ops/convoy/internal/oops"
	"github.com/convoy-ops/convoy/internal/types"
)

// Sink sends alerts to one external system.
type Sink interface {
	Send(ctx context.Context, alert *types.Alert) error
	Name() string
}

// SinkFor builds the sink matching an alerter's endpoint variant.
func SinkFor(endpoint types.AlerterEndpoint) (Sink, error) {
	p := endpoint.Params
	switch endpoint.Type {
	case "Slack":
		return NewSlack(p.URL), nil
	case "Discord":
		return NewDiscord(p.URL), nil
	case "Ntfy":
		return NewNtfy(p.URL, p.Username, p.Password), nil
	case "Custom":
		return NewCustom(p.URL), nil
	case "Mqtt":
		return NewMQTT(p.Broker, p.Topic, p.Username, p.Password), nil
	default:
		return nil, oops.New(oops.InvalidConfig, "unknown alerter endpoint type %q", endpoint.Type)
	}
}
