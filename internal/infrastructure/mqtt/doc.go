// Package mqtt provides MQTT client connectivity for Telegate.
//
// This package manages:
//   - Connection to the broker with auto-reconnect and connect-retry
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support and ordered delivery
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Telegate uses MQTT as the transport between field devices and the
// ingestion pipeline. Devices publish telemetry to devices/{imei}/telemetry
// and receive commands on devices/{imei}/command.
//
//	Devices ↔ MQTT Broker ↔ Telegate Core ↔ WebSocket clients
//
// The broker being unreachable is not fatal: Connect returns a client that
// keeps retrying in the background, and subscriptions registered meanwhile
// are installed when the session comes up.
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to telemetry from every device
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceTelemetry(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a command
//	topic := mqtt.Topics{}.DeviceCommand("358000000000001")
//	client.Publish(topic, []byte(`{"on":true}`), 0, false)
package mqtt
