package mqtt

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// testClient returns a client that has never connected.
// Broker-dependent behaviour is covered in integration_test.go.
func testClient() *Client {
	return &Client{
		subscriptions: make(map[string]subscription),
	}
}

// =============================================================================
// Connection State Tests
// =============================================================================

func TestIsConnected_InitialState(t *testing.T) {
	client := testClient()

	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	err := client.Close()
	if err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	client := testClient()

	err := client.HealthCheck(context.Background())
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	client := testClient()

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	err := client.HealthCheck(ctx)
	if err == nil {
		t.Error("HealthCheck() expected error for cancelled context")
	}
}

// =============================================================================
// Publish Validation Tests
// =============================================================================

func TestPublishEmptyTopic(t *testing.T) {
	client := testClient()

	err := client.Publish("", []byte("test"), 1, false)
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Publish() error = %v, want ErrInvalidTopic", err)
	}
}

func TestPublishInvalidQoS(t *testing.T) {
	client := testClient()

	err := client.Publish("test/topic", []byte("test"), 3, false)
	if !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Publish() error = %v, want ErrInvalidQoS", err)
	}
}

func TestPublishOversizedPayload(t *testing.T) {
	client := testClient()

	payload := make([]byte, maxPayloadSize+1)
	err := client.Publish("test/topic", payload, 1, false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
}

func TestPublishDisconnected(t *testing.T) {
	client := testClient()

	err := client.Publish("test/topic", []byte("test"), 1, false)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Subscribe Tracking Tests
// =============================================================================

func TestSubscribeEmptyTopic(t *testing.T) {
	client := testClient()

	err := client.Subscribe("", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe() error = %v, want ErrInvalidTopic", err)
	}
}

func TestSubscribeInvalidQoS(t *testing.T) {
	client := testClient()

	err := client.Subscribe("test/topic", 3, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe() error = %v, want ErrInvalidQoS", err)
	}
}

func TestSubscribeNilHandler(t *testing.T) {
	client := testClient()

	err := client.Subscribe("test/topic", 1, nil)
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
}

func TestSubscribeDisconnected_Tracked(t *testing.T) {
	// Subscribing before the broker is reachable must succeed: the
	// subscription is installed by the on-connect handler later.
	client := testClient()

	topic := Topics{}.AllDeviceTelemetry()
	err := client.Subscribe(topic, 1, func(string, []byte) error { return nil })
	if err != nil {
		t.Fatalf("Subscribe() while disconnected error = %v, want nil", err)
	}

	if !client.HasSubscription(topic) {
		t.Error("HasSubscription() = false, want true")
	}

	if client.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", client.SubscriptionCount())
	}
}

func TestUnsubscribeEmptyTopic(t *testing.T) {
	client := testClient()

	err := client.Unsubscribe("")
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe() error = %v, want ErrInvalidTopic", err)
	}
}

func TestUnsubscribeDisconnected_RemovesTracking(t *testing.T) {
	client := testClient()

	topic := Topics{}.AllDeviceTelemetry()
	if err := client.Subscribe(topic, 1, func(string, []byte) error { return nil }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := client.Unsubscribe(topic); err != nil {
		t.Errorf("Unsubscribe() while disconnected error = %v, want nil", err)
	}

	if client.HasSubscription(topic) {
		t.Error("HasSubscription() = true after Unsubscribe(), want false")
	}

	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", client.SubscriptionCount())
	}
}

func TestMultipleSubscriptionsTracked(t *testing.T) {
	client := testClient()

	topics := []string{
		Topics{}.DeviceTelemetry("358000000000001"),
		Topics{}.DeviceTelemetry("358000000000002"),
		Topics{}.AllDeviceTelemetry(),
	}

	handler := func(string, []byte) error { return nil }

	for _, topic := range topics {
		if err := client.Subscribe(topic, 1, handler); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}

	if client.SubscriptionCount() != 3 {
		t.Errorf("SubscriptionCount() = %d, want 3", client.SubscriptionCount())
	}

	for _, topic := range topics {
		if !client.HasSubscription(topic) {
			t.Errorf("HasSubscription(%s) = false, want true", topic)
		}
	}
}

func TestHasSubscription_NotSubscribed(t *testing.T) {
	client := testClient()

	if client.HasSubscription("nonexistent/topic") {
		t.Error("HasSubscription() should be false for unsubscribed topic")
	}
}

// =============================================================================
// Topics Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name     string
		builder  func() string
		expected string
	}{
		{
			name: "DeviceTelemetry",
			builder: func() string {
				return Topics{}.DeviceTelemetry("358000000000001")
			},
			expected: "devices/358000000000001/telemetry",
		},
		{
			name: "DeviceCommand",
			builder: func() string {
				return Topics{}.DeviceCommand("358000000000001")
			},
			expected: "devices/358000000000001/command",
		},
		{
			name: "AllDeviceTelemetry",
			builder: func() string {
				return Topics{}.AllDeviceTelemetry()
			},
			expected: "devices/+/telemetry",
		},
		{
			name: "SystemStatus",
			builder: func() string {
				return Topics{}.SystemStatus()
			},
			expected: "telegate/system/status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.builder()
			if result != tt.expected {
				t.Errorf("%s() = %q, want %q", tt.name, result, tt.expected)
			}
		})
	}
}

func TestRenderCommandTopic(t *testing.T) {
	tests := []struct {
		name     string
		template string
		imei     string
		expected string
	}{
		{
			name:     "default template",
			template: "devices/{imei}/command",
			imei:     "358000000000001",
			expected: "devices/358000000000001/command",
		},
		{
			name:     "custom template",
			template: "fleet/{imei}/cmd",
			imei:     "42",
			expected: "fleet/42/cmd",
		},
		{
			name:     "no placeholder returns template unchanged",
			template: "devices/command",
			imei:     "358000000000001",
			expected: "devices/command",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RenderCommandTopic(tt.template, tt.imei)
			if result != tt.expected {
				t.Errorf("RenderCommandTopic() = %q, want %q", result, tt.expected)
			}
		})
	}
}

// =============================================================================
// Status Payload Tests
// =============================================================================

func TestStatusPayloads(t *testing.T) {
	online := buildOnlinePayload("telegate-core")
	if !strings.Contains(online, `"status":"online"`) {
		t.Errorf("online payload missing status field: %s", online)
	}
	if !strings.Contains(online, `"client_id":"telegate-core"`) {
		t.Errorf("online payload missing client_id field: %s", online)
	}

	offline := buildOfflinePayload("telegate-core")
	if !strings.Contains(offline, `"status":"offline"`) {
		t.Errorf("offline payload missing status field: %s", offline)
	}
	if !strings.Contains(offline, `"reason":"graceful_shutdown"`) {
		t.Errorf("offline payload missing reason field: %s", offline)
	}
}
