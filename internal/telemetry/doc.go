// Package telemetry implements the ingestion pipeline: MQTT messages in,
// SQLite records and in-process events out.
//
// # Flow
//
//	broker -> mqtt.Client -> Ingestor.HandleMessage
//	    -> device.Registry.SetTelemetry   (last seen / last payload)
//	    -> Repository.Append              (immutable record)
//	    -> Bus.Publish                    (fan-out to WebSocket hub)
//	    -> influxdb mirror                (optional, best effort)
//
// The one hard ordering rule is record-before-event: an event is published
// only after its record is durable. Bookkeeping failures upstream of the
// append are logged and tolerated.
//
// # Components
//
//   - ExtractIMEI / DecodePayload: topic and body decoding, never fail loudly
//   - Ingestor: per-message pipeline, runs on the transport router goroutine
//   - Bus: synchronous in-process pub/sub for telemetry events
//   - Repository: append-only SQLite record store with retention pruning
//   - Publisher: outbound device commands at QoS 0
package telemetry
