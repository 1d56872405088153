package telemetry

import (
	"encoding/json"
	"fmt"

	"github.com/telegate/telegate/internal/infrastructure/mqtt"
)

// CommandTransport is the slice of the MQTT client the publisher needs.
type CommandTransport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Publisher sends commands to devices over MQTT.
//
// Commands are fire-and-forget at QoS 0: a device that is offline simply
// misses the command, matching field behaviour where a stale command
// replayed on reconnect is worse than a dropped one. Authorization is the
// caller's responsibility.
type Publisher struct {
	transport CommandTransport // nil when the broker was never configured
	template  string
	logger    Logger
}

// NewPublisher creates a command publisher.
// The transport may be nil when ingestion is disabled; SendCommand then
// returns ErrTransportUnavailable.
func NewPublisher(transport CommandTransport, template string) *Publisher {
	return &Publisher{
		transport: transport,
		template:  template,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the publisher.
func (p *Publisher) SetLogger(logger Logger) {
	p.logger = logger
}

// SendCommand publishes a JSON command to a device's command topic.
// A nil payload is sent as an empty JSON object.
func (p *Publisher) SendCommand(imei string, payload map[string]any) error {
	if p.transport == nil {
		return ErrTransportUnavailable
	}
	if imei == "" {
		return fmt.Errorf("imei is required")
	}

	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling command: %w", err)
	}

	topic := mqtt.RenderCommandTopic(p.template, imei)
	if err := p.transport.Publish(topic, body, 0, false); err != nil {
		return fmt.Errorf("publishing command to %s: %w", topic, err)
	}

	p.logger.Debug("command sent", "imei", imei, "topic", topic)
	return nil
}
