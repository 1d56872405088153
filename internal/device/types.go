package device

import "time"

// Mode describes how a device is being operated.
type Mode string

// Operating modes.
const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

// Payload holds a decoded telemetry document as a JSON map.
//
// Keys and value types are device-defined; the gateway treats the payload
// as opaque apart from number/bool coercion in the metrics mirror.
//
// Examples:
//
//	{"temperature": 21.5, "humidity": 60, "charging": true}
//	{"value": "raw non-JSON line"}
type Payload map[string]any

// Device represents a provisioned telemetry device.
//
// The IMEI is the wire identity: it appears in MQTT topic segments and is
// immutable after creation. The ID is the internal identity used by the
// API, access control, and telemetry storage.
type Device struct {
	ID         string  `json:"id"`
	IMEI       string  `json:"imei"`
	Name       string  `json:"name"`
	Mode       Mode    `json:"mode"`
	IsOn       bool    `json:"is_on"`
	TemplateID *string `json:"template_id,omitempty"`

	// LastSeenAt is the receipt time of the most recent telemetry message.
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`

	// LastTelemetry is the most recent decoded payload.
	LastTelemetry Payload `json:"last_telemetry,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy creates a completely independent copy of the device.
// This is critical for cache safety: callers can modify the returned
// device without affecting the cached version.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d // Shallow copy of value fields

	// Deep copy the payload map
	cpy.LastTelemetry = deepCopyMap(d.LastTelemetry)

	// Pointer fields (*string, *time.Time) don't need deep copy
	// because strings and time.Time are immutable in Go

	return &cpy
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		// Primitives (string, bool, int, float64, etc.) are safe to copy by value
		return v
	}
}
