package telemetry

import (
	"time"

	"github.com/telegate/telegate/internal/device"
)

// Record is an immutable, append-only telemetry row.
//
// Records are never updated; deletion happens only through device cascade
// or retention pruning.
type Record struct {
	ID         int64          `json:"id"`
	DeviceID   string         `json:"device_id"`
	IMEI       string         `json:"imei"`
	Payload    device.Payload `json:"payload"`
	ReceivedAt time.Time      `json:"received_at"`
}

// Event is the in-process notification published after a record has been
// persisted. Subscribers (the WebSocket hub) receive it synchronously on
// the ingestion goroutine and must not block.
type Event struct {
	DeviceID   string         `json:"deviceId"`
	IMEI       string         `json:"imei"`
	Payload    device.Payload `json:"payload"`
	ReceivedAt time.Time      `json:"receivedAt"`
}
