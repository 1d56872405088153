package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/telegate/telegate/internal/device"
	"github.com/telegate/telegate/internal/infrastructure/mqtt"
)

// DeviceDirectory is the slice of the device registry the ingestor needs.
type DeviceDirectory interface {
	ResolveByIMEI(ctx context.Context, imei string) (*device.Device, error)
	SetTelemetry(ctx context.Context, id string, payload device.Payload, seenAt time.Time) error
}

// Transport is the slice of the MQTT client the ingestor needs.
type Transport interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// EventPublisher publishes events to bus subscribers.
type EventPublisher interface {
	Publish(evt Event)
}

// MetricsWriter mirrors numeric telemetry to a time-series store.
// Writes are fire-and-forget.
type MetricsWriter interface {
	WriteTelemetryMetric(deviceID, imei string, payload map[string]any, receivedAt time.Time)
}

// Ingestor wires the MQTT transport to the telemetry store and event bus.
//
// Messages are processed one at a time on the transport's router goroutine
// (ordered delivery is enabled on the client), so per-device FIFO holds
// without any locking here.
type Ingestor struct {
	transport Transport
	pattern   string
	qos       byte
	devices   DeviceDirectory
	records   Repository
	bus       EventPublisher
	metrics   MetricsWriter // optional, nil when InfluxDB is disabled
	logger    Logger
}

// NewIngestor creates an ingestor. The metrics writer may be nil.
func NewIngestor(transport Transport, pattern string, qos byte, devices DeviceDirectory, records Repository, bus EventPublisher) *Ingestor {
	return &Ingestor{
		transport: transport,
		pattern:   pattern,
		qos:       qos,
		devices:   devices,
		records:   records,
		bus:       bus,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the ingestor.
func (i *Ingestor) SetLogger(logger Logger) {
	i.logger = logger
}

// SetMetricsWriter enables best-effort mirroring to a time-series store.
func (i *Ingestor) SetMetricsWriter(w MetricsWriter) {
	i.metrics = w
}

// Start subscribes to the telemetry topic pattern.
// The subscription survives reconnects (tracked by the transport client).
func (i *Ingestor) Start(ctx context.Context) error {
	err := i.transport.Subscribe(i.pattern, i.qos, func(topic string, payload []byte) error {
		return i.HandleMessage(ctx, topic, payload)
	})
	if err != nil {
		return fmt.Errorf("subscribing to telemetry pattern: %w", err)
	}

	i.logger.Info("telemetry ingestion started", "pattern", i.pattern, "qos", i.qos)
	return nil
}

// HandleMessage processes a single inbound telemetry message.
//
// Unknown topics and unprovisioned devices are dropped silently; a broker
// will happily deliver retained junk from topics nobody owns, and logging
// each one at Warn would flood the logs. The only ordering invariant is
// record-before-event: the bus never announces a record that was not
// persisted.
func (i *Ingestor) HandleMessage(ctx context.Context, topic string, raw []byte) error {
	imei := ExtractIMEI(topic)
	if imei == "" {
		i.logger.Debug("ignoring message on unrecognised topic", "topic", topic)
		return nil
	}

	dev, err := i.devices.ResolveByIMEI(ctx, imei)
	if errors.Is(err, device.ErrDeviceNotFound) {
		i.logger.Debug("dropping telemetry from unknown device", "imei", imei)
		return nil
	}
	if err != nil {
		i.logger.Error("device lookup failed", "imei", imei, "error", err)
		return fmt.Errorf("resolving device: %w", err)
	}

	payload := DecodePayload(raw)
	receivedAt := time.Now().UTC()

	// Last-seen bookkeeping failing must not lose the record.
	if err := i.devices.SetTelemetry(ctx, dev.ID, payload, receivedAt); err != nil {
		i.logger.Warn("failed to update device telemetry state",
			"device_id", dev.ID,
			"error", err,
		)
	}

	record := &Record{
		DeviceID:   dev.ID,
		IMEI:       imei,
		Payload:    payload,
		ReceivedAt: receivedAt,
	}
	if err := i.records.Append(ctx, record); err != nil {
		i.logger.Error("failed to append telemetry record",
			"device_id", dev.ID,
			"imei", imei,
			"error", err,
		)
		return fmt.Errorf("appending telemetry record: %w", err)
	}

	i.bus.Publish(Event{
		DeviceID:   dev.ID,
		IMEI:       imei,
		Payload:    payload,
		ReceivedAt: receivedAt,
	})

	if i.metrics != nil {
		i.metrics.WriteTelemetryMetric(dev.ID, imei, payload, receivedAt)
	}

	return nil
}
