// Package influxdb provides InfluxDB connectivity for Telegate.
//
// It wraps the official influxdb-client-go v2 library with Telegate-specific
// patterns for connection management, metric writing, and health monitoring.
//
// # Purpose
//
// This package mirrors numeric and boolean telemetry fields to a time-series
// store so dashboards can graph device history without querying SQLite.
// The mirror is optional and best-effort: SQLite remains the source of truth
// for telemetry records.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "telegate",
//	    Bucket: "telemetry",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteTelemetryMetric("dev-01", "358000000000001",
//	    map[string]any{"temperature": 21.5}, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead for high-frequency telemetry data.
package influxdb
