package telemetry

import (
	"encoding/json"
	"strings"

	"github.com/telegate/telegate/internal/device"
)

// topicNamespace is the literal first segment of every device topic.
const topicNamespace = "devices"

// ExtractIMEI pulls the device IMEI out of a telemetry topic.
//
// Topics follow the shape devices/{imei}/telemetry. The topic must have at
// least three segments and begin with the devices namespace; anything else
// returns "" and the message is dropped upstream.
func ExtractIMEI(topic string) string {
	segments := strings.Split(topic, "/")
	if len(segments) < 3 {
		return ""
	}
	if segments[0] != topicNamespace {
		return ""
	}
	return segments[1]
}

// DecodePayload parses a raw message body into a payload map.
//
// Well-formed JSON objects decode directly. JSON scalars and arrays are
// wrapped under a "value" key, as is any body that fails to parse at all.
// Devices in the field emit plenty of malformed lines; nothing here is
// allowed to error, so every message remains recordable.
func DecodePayload(raw []byte) device.Payload {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return device.Payload{"value": string(raw)}
	}

	if obj, ok := decoded.(map[string]any); ok {
		return device.Payload(obj)
	}

	// Scalar or array payload: wrap it so the shape stays uniform.
	return device.Payload{"value": decoded}
}
