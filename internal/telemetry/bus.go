package telemetry

import "sync"

// Logger defines the logging interface used by this package.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Bus is the process-wide telemetry event bus.
//
// Publish delivers synchronously to listeners in registration order, on the
// publisher's goroutine. There is no replay and no persistence: a listener
// registered after an event was published never sees it. Listeners must not
// block; slow consumers buffer on their own side (the WebSocket hub uses
// per-client send channels).
//
// All methods are safe for concurrent use.
type Bus struct {
	mu        sync.Mutex
	listeners []*listener
	nextID    int
	logger    Logger
}

type listener struct {
	id int
	fn func(Event)
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{logger: noopLogger{}}
}

// SetLogger sets the logger for the bus.
func (b *Bus) SetLogger(logger Logger) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
}

// Subscribe registers a listener and returns a function that removes it.
// The unsubscribe function is idempotent.
func (b *Bus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	l := &listener{id: b.nextID, fn: fn}
	b.nextID++
	b.listeners = append(b.listeners, l)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, cur := range b.listeners {
			if cur.id == l.id {
				b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers an event to all listeners in registration order.
// A panicking listener is recovered and logged; remaining listeners
// still run.
func (b *Bus) Publish(evt Event) {
	b.mu.Lock()
	snapshot := make([]*listener, len(b.listeners))
	copy(snapshot, b.listeners)
	logger := b.logger
	b.mu.Unlock()

	for _, l := range snapshot {
		b.deliver(l, evt, logger)
	}
}

// ListenerCount returns the number of registered listeners.
func (b *Bus) ListenerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

func (b *Bus) deliver(l *listener, evt Event, logger Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in telemetry event listener",
				"panic", r,
				"device_id", evt.DeviceID,
			)
		}
	}()
	l.fn(evt)
}
