package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteTelemetryMetric mirrors the numeric and boolean fields of a decoded
// telemetry payload to InfluxDB.
//
// Strings, nested objects and arrays are skipped: the time-series mirror only
// carries values that can be graphed. Booleans are recorded as 0/1. The write
// is non-blocking; data is batched and sent asynchronously. A payload with no
// graphable fields writes nothing.
//
// Parameters:
//   - deviceID: Internal device identifier (tag)
//   - imei: Device external identifier (tag)
//   - payload: Decoded telemetry payload
//   - receivedAt: Timestamp of the original message
//
// Example:
//
//	client.WriteTelemetryMetric("dev-01", "358000000000001",
//	    map[string]any{"temperature": 21.5, "charging": true}, time.Now())
func (c *Client) WriteTelemetryMetric(deviceID, imei string, payload map[string]any, receivedAt time.Time) {
	if !c.IsConnected() {
		return
	}

	fields := make(map[string]interface{})
	for key, value := range payload {
		switch v := value.(type) {
		case float64:
			fields[key] = v
		case float32:
			fields[key] = float64(v)
		case int:
			fields[key] = float64(v)
		case int64:
			fields[key] = float64(v)
		case bool:
			if v {
				fields[key] = 1.0
			} else {
				fields[key] = 0.0
			}
		}
	}

	if len(fields) == 0 {
		return
	}

	point := write.NewPoint(
		"telemetry",
		map[string]string{
			"device_id": deviceID,
			"imei":      imei,
		},
		fields,
		receivedAt,
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("gateway_stats",
//	    map[string]string{"host": "core-01"},
//	    map[string]interface{}{"ws_clients": 12, "messages_per_sec": 340.0})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
