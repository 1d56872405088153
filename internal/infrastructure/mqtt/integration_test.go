//go:build integration

package mqtt

import (
	"context"
	"testing"
	"time"

	"github.com/telegate/telegate/internal/infrastructure/config"
)

// Integration tests for MQTT connectivity and delivery.
// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...
//
// Note: Some tests may be flaky in CI due to timing dependencies.
// Consider running with: go test -tags=integration -count=1 -v ...

func integrationConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "telegate-integration-test",
			TLS:      false,
		},
		Auth: config.MQTTAuthConfig{
			Username: "",
			Password: "",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     2,
		},
	}
}

func TestIntegration_ConnectAndClose(t *testing.T) {
	cfg := integrationConfig()

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	if client.IsConnected() {
		t.Error("IsConnected() = true after Close(), want false")
	}
}

func TestIntegration_UnreachableBrokerRetriesInBackground(t *testing.T) {
	cfg := integrationConfig()
	cfg.Broker.Port = 19999 // nothing listening

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v, want nil (background retry)", err)
	}
	defer client.Close()

	if client.IsConnected() {
		t.Error("IsConnected() = true for unreachable broker, want false")
	}

	// Subscriptions made while disconnected are tracked for later install.
	topic := Topics{}.AllDeviceTelemetry()
	if err := client.Subscribe(topic, 1, func(string, []byte) error { return nil }); err != nil {
		t.Errorf("Subscribe() while disconnected error = %v", err)
	}
	if !client.HasSubscription(topic) {
		t.Error("HasSubscription() = false, want true")
	}
}

func TestIntegration_PublishSubscribeRoundtrip(t *testing.T) {
	cfg := integrationConfig()
	cfg.Broker.ClientID = "telegate-test-pub"

	pubClient, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() publisher error = %v", err)
	}
	defer pubClient.Close()

	cfg.Broker.ClientID = "telegate-test-sub"
	subClient, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() subscriber error = %v", err)
	}
	defer subClient.Close()

	topic := Topics{}.DeviceTelemetry("358000000000099")
	expectedPayload := `{"temperature":21.5}`
	received := make(chan string, 1)

	err = subClient.Subscribe(topic, 1, func(t string, payload []byte) error {
		received <- string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	// Give subscription time to register
	time.Sleep(100 * time.Millisecond)

	if err := pubClient.PublishString(topic, expectedPayload, 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case payload := <-received:
		if payload != expectedPayload {
			t.Errorf("Received payload = %q, want %q", payload, expectedPayload)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for message")
	}
}

func TestIntegration_WildcardDeliveryInOrder(t *testing.T) {
	cfg := integrationConfig()
	cfg.Broker.ClientID = "telegate-test-order-pub"

	pubClient, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() publisher error = %v", err)
	}
	defer pubClient.Close()

	cfg.Broker.ClientID = "telegate-test-order-sub"
	subClient, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() subscriber error = %v", err)
	}
	defer subClient.Close()

	received := make(chan string, 16)
	err = subClient.Subscribe(Topics{}.AllDeviceTelemetry(), 1,
		func(topic string, payload []byte) error {
			received <- string(payload)
			return nil
		})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	topic := Topics{}.DeviceTelemetry("358000000000050")
	payloads := []string{`{"seq":1}`, `{"seq":2}`, `{"seq":3}`}
	for _, p := range payloads {
		if err := pubClient.PublishString(topic, p, 1, false); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	// Ordered delivery: per-topic sequence must be preserved.
	for _, want := range payloads {
		select {
		case got := <-received:
			if got != want {
				t.Errorf("received %q, want %q (out of order)", got, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("Timeout waiting for ordered messages")
		}
	}
}
