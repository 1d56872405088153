package api

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/telegate/telegate/internal/device"
	"github.com/telegate/telegate/internal/infrastructure/config"
	"github.com/telegate/telegate/internal/infrastructure/logging"
	"github.com/telegate/telegate/internal/telemetry"
)

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")
}

func newTestHub() *Hub {
	return NewHub(testWSConfig(), &mockAccess{}, testLogger())
}

// newHubClient builds a client without a network connection, for driving
// the hub directly.
func newHubClient(hub *Hub, userID string) *WSClient {
	return &WSClient{
		hub:           hub,
		send:          make(chan []byte, 16),
		userID:        userID,
		subscriptions: make(map[string]struct{}),
	}
}

// checkInvariant verifies the bidirectional index invariant: every
// subscription a client holds appears in the reverse index, and every
// reverse-index entry points at a registered client holding that
// subscription.
func checkInvariant(t *testing.T, hub *Hub) {
	t.Helper()
	hub.mu.Lock()
	defer hub.mu.Unlock()

	for client := range hub.clients {
		for deviceID := range client.subscriptions {
			if _, ok := hub.deviceSubscribers[deviceID][client]; !ok {
				t.Fatalf("client subscription %s missing from reverse index", deviceID)
			}
		}
	}
	for deviceID, subscribers := range hub.deviceSubscribers {
		if len(subscribers) == 0 {
			t.Fatalf("empty reverse-index entry for %s not pruned", deviceID)
		}
		for client := range subscribers {
			if _, ok := hub.clients[client]; !ok {
				t.Fatalf("reverse index for %s points at unregistered client", deviceID)
			}
			if _, ok := client.subscriptions[deviceID]; !ok {
				t.Fatalf("reverse index for %s points at client without the subscription", deviceID)
			}
		}
	}
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	hub := newTestHub()
	client := newHubClient(hub, "alice")
	hub.Register(client)

	if !hub.Subscribe(client, "dev-1") {
		t.Fatal("Subscribe() = false for registered client")
	}
	if hub.SubscriberCount("dev-1") != 1 {
		t.Errorf("SubscriberCount() = %d, want 1", hub.SubscriberCount("dev-1"))
	}
	checkInvariant(t, hub)

	hub.Unsubscribe(client, "dev-1")
	if hub.SubscriberCount("dev-1") != 0 {
		t.Errorf("SubscriberCount() = %d after unsubscribe, want 0", hub.SubscriberCount("dev-1"))
	}
	checkInvariant(t, hub)
}

func TestHub_SubscribeUnregisteredClient(t *testing.T) {
	hub := newTestHub()
	client := newHubClient(hub, "alice")

	if hub.Subscribe(client, "dev-1") {
		t.Error("Subscribe() = true for unregistered client")
	}
	if hub.SubscriberCount("dev-1") != 0 {
		t.Error("unregistered client must not enter the reverse index")
	}
}

func TestHub_UnregisterCleansReverseIndex(t *testing.T) {
	hub := newTestHub()
	client := newHubClient(hub, "alice")
	hub.Register(client)
	hub.Subscribe(client, "dev-1")
	hub.Subscribe(client, "dev-2")

	hub.Unregister(client)

	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", hub.ClientCount())
	}
	if hub.SubscriberCount("dev-1") != 0 || hub.SubscriberCount("dev-2") != 0 {
		t.Error("Unregister() must strip the client from every reverse-index entry")
	}
	checkInvariant(t, hub)
}

func TestHub_UnregisterIdempotent(t *testing.T) {
	hub := newTestHub()
	client := newHubClient(hub, "alice")
	hub.Register(client)

	// Double unregister must not double-close the send channel.
	hub.Unregister(client)
	hub.Unregister(client)
}

func TestHub_DispatchSkipsFullBuffers(t *testing.T) {
	hub := newTestHub()

	slow := &WSClient{hub: hub, send: make(chan []byte, 1), userID: "slow", subscriptions: make(map[string]struct{})}
	fast := newHubClient(hub, "fast")
	hub.Register(slow)
	hub.Register(fast)
	hub.Subscribe(slow, "dev-1")
	hub.Subscribe(fast, "dev-1")

	evt := telemetry.Event{
		DeviceID:   "dev-1",
		IMEI:       "358000000000001",
		Payload:    device.Payload{"n": 1.0},
		ReceivedAt: time.Now().UTC(),
	}

	// Fill the slow client's buffer, then dispatch twice more.
	hub.DispatchEvent(evt)
	hub.DispatchEvent(evt)
	hub.DispatchEvent(evt)

	if got := len(slow.send); got != 1 {
		t.Errorf("slow client buffered %d frames, want 1 (overflow dropped)", got)
	}
	if got := len(fast.send); got != 3 {
		t.Errorf("fast client buffered %d frames, want 3", got)
	}
}

func TestHub_DispatchToClosedClient(t *testing.T) {
	hub := newTestHub()
	client := newHubClient(hub, "alice")
	other := newHubClient(hub, "bob")
	hub.Register(client)
	hub.Register(other)
	hub.Subscribe(client, "dev-1")
	hub.Subscribe(other, "dev-1")

	// Simulate a racing teardown: channel closed while dispatch snapshot
	// still holds the client.
	hub.mu.Lock()
	close(client.send)
	hub.mu.Unlock()

	// Must not panic, and the healthy client still gets the frame.
	hub.DispatchEvent(telemetry.Event{
		DeviceID:   "dev-1",
		Payload:    device.Payload{"n": 1.0},
		ReceivedAt: time.Now().UTC(),
	})

	if len(other.send) != 1 {
		t.Errorf("healthy client buffered %d frames, want 1", len(other.send))
	}
}

// Randomized churn: the bidirectional invariant must hold after any
// interleaving of register, subscribe, unsubscribe, and unregister.
func TestHub_RandomizedChurnHoldsInvariant(t *testing.T) {
	hub := newTestHub()
	rng := rand.New(rand.NewSource(42))

	devices := []string{"dev-1", "dev-2", "dev-3", "dev-4"}
	var clients []*WSClient
	registered := make(map[*WSClient]bool)

	for i := 0; i < 500; i++ {
		switch op := rng.Intn(5); op {
		case 0: // register new client
			c := newHubClient(hub, fmt.Sprintf("user-%d", i))
			hub.Register(c)
			clients = append(clients, c)
			registered[c] = true
		case 1, 2: // subscribe
			if len(clients) > 0 {
				c := clients[rng.Intn(len(clients))]
				hub.Subscribe(c, devices[rng.Intn(len(devices))])
			}
		case 3: // unsubscribe
			if len(clients) > 0 {
				c := clients[rng.Intn(len(clients))]
				hub.Unsubscribe(c, devices[rng.Intn(len(devices))])
			}
		case 4: // unregister
			if len(clients) > 0 {
				c := clients[rng.Intn(len(clients))]
				if registered[c] {
					hub.Unregister(c)
					registered[c] = false
				}
			}
		}
		checkInvariant(t, hub)
	}
}
