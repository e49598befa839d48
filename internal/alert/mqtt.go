package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/convoy-ops/convoy/internal/types"
)

// MQTT publishes alerts as JSON messages to an MQTT broker.
type MQTT struct {
	broker   string
	topic    string
	username string
	password string
}

// NewMQTT creates an MQTT sink.
func NewMQTT(broker, topic, username, password string) *MQTT {
	if topic == "" {
		topic = "convoy/alerts"
	}
	return &MQTT{
		broker:   broker,
		topic:    topic,
		username: username,
		password: password,
	}
}

// Name returns the sink name for logging.
func (m *MQTT) Name() string { return "mqtt" }

// Send publishes the alert to the configured topic.
func (m *MQTT) Send(ctx context.Context, alert *types.Alert) error {
	opts := mqtt.NewClientOptions().
		SetClientID("convoy-core").
		AddBroker(m.broker).
		SetConnectTimeout(10 * time.Second).
		SetWriteTimeout(10 * time.Second)
	if m.username != "" {
		opts.SetUsername(m.username)
		opts.SetPassword(m.password)
	}

	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt connect timeout")
	}
	if tok.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", tok.Error())
	}
	defer client.Disconnect(250)

	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal mqtt payload: %w", err)
	}

	pub := client.Publish(m.topic, 1, false, body)
	if !pub.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt publish timeout")
	}
	if pub.Error() != nil {
		return fmt.Errorf("mqtt publish: %w", pub.Error())
	}
	return nil
}
