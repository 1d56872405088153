package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger defines the logging interface used by the Registry.
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

// Registry provides device management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups.
//
// Alongside the ID-keyed cache it maintains an IMEI index so the ingestion
// hot path can resolve a topic's IMEI to a device without touching SQLite.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by cache-invalidating CRUD operations.
//
// All public methods are thread-safe.
type Registry struct {
	repo      Repository
	cache     map[string]*Device // Cached devices by ID
	imeiIndex map[string]string  // IMEI -> device ID
	cacheMu   sync.RWMutex       // Protects cache and imeiIndex
	logger    Logger
}

// NewRegistry creates a new device registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:      repo,
		cache:     make(map[string]*Device),
		imeiIndex: make(map[string]string),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all devices from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	// Clear and rebuild cache with deep copies
	r.cache = make(map[string]*Device, len(devices))
	r.imeiIndex = make(map[string]string, len(devices))
	for i := range devices {
		d := devices[i]
		r.cache[d.ID] = d.DeepCopy()
		r.imeiIndex[d.IMEI] = d.ID
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// GetDevice retrieves a device by ID.
// Returns ErrDeviceNotFound if the device does not exist.
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	// Try cache first
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		// Return a deep copy to prevent external mutation of cache
		return cached.DeepCopy(), nil
	}

	// Fall back to repository (might be a new device not yet cached)
	device, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Cache for future lookups (store a deep copy)
	r.cacheMu.Lock()
	r.cache[device.ID] = device.DeepCopy()
	r.imeiIndex[device.IMEI] = device.ID
	r.cacheMu.Unlock()

	return device, nil
}

// ResolveByIMEI retrieves a device by its wire identity.
// Returns ErrDeviceNotFound for unknown IMEIs.
// The returned device is a deep copy; callers can safely modify it.
//
// This is the ingestion hot path: one message arriving per device per
// reporting interval resolves through here, so cache hits must not block
// on the repository.
func (r *Registry) ResolveByIMEI(ctx context.Context, imei string) (*Device, error) {
	r.cacheMu.RLock()
	id, ok := r.imeiIndex[imei]
	var cached *Device
	if ok {
		cached = r.cache[id]
	}
	r.cacheMu.RUnlock()

	if cached != nil {
		return cached.DeepCopy(), nil
	}

	// Fall back to repository (might be a device provisioned after startup)
	device, err := r.repo.GetByIMEI(ctx, imei)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[device.ID] = device.DeepCopy()
	r.imeiIndex[device.IMEI] = device.ID
	r.cacheMu.Unlock()

	return device, nil
}

// ListDevices retrieves all devices.
// The returned devices are deep copies; callers can safely modify them.
func (r *Registry) ListDevices(ctx context.Context) ([]Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	// Return from cache if populated
	if len(r.cache) > 0 {
		devices := make([]Device, 0, len(r.cache))
		for _, d := range r.cache {
			// Deep copy to prevent external mutation of cache
			devices = append(devices, *d.DeepCopy())
		}
		return devices, nil
	}

	// Fall back to repository
	return r.repo.List(ctx)
}

// CreateDevice creates a new device.
// It generates an ID if needed and persists the device.
func (r *Registry) CreateDevice(ctx context.Context, device *Device) error {
	// Generate ID if not provided
	if device.ID == "" {
		device.ID = GenerateID()
	}
	if device.Mode == "" {
		device.Mode = ModeAuto
	}

	// Persist
	if err := r.repo.Create(ctx, device); err != nil {
		return err
	}

	// Update cache (store a deep copy to prevent external modification)
	r.cacheMu.Lock()
	r.cache[device.ID] = device.DeepCopy()
	r.imeiIndex[device.IMEI] = device.ID
	r.cacheMu.Unlock()

	r.logger.Info("device created", "id", device.ID, "imei", device.IMEI, "name", device.Name)
	return nil
}

// UpdateDevice updates an existing device.
// The IMEI is immutable; attempts to change it are rejected.
func (r *Registry) UpdateDevice(ctx context.Context, device *Device) error {
	existing, err := r.GetDevice(ctx, device.ID)
	if err != nil {
		return err
	}
	if device.IMEI != "" && device.IMEI != existing.IMEI {
		return fmt.Errorf("%w: imei is immutable", ErrInvalidIMEI)
	}
	device.IMEI = existing.IMEI

	// Persist
	if err := r.repo.Update(ctx, device); err != nil {
		return err
	}

	// Update cache (store a deep copy to prevent external modification)
	r.cacheMu.Lock()
	r.cache[device.ID] = device.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("device updated", "id", device.ID, "name", device.Name)
	return nil
}

// DeleteDevice removes a device.
func (r *Registry) DeleteDevice(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	// Update cache
	r.cacheMu.Lock()
	if cached, ok := r.cache[id]; ok {
		delete(r.imeiIndex, cached.IMEI)
	}
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("device deleted", "id", id)
	return nil
}

// SetTelemetry records the latest payload and receipt time for a device.
// This is optimised for frequent updates from the ingestion pipeline.
func (r *Registry) SetTelemetry(ctx context.Context, id string, payload Payload, seenAt time.Time) error {
	if err := r.repo.UpdateTelemetry(ctx, id, payload, seenAt); err != nil {
		return err
	}

	// Update cache using deep copy to prevent race conditions
	r.cacheMu.Lock()
	if cached, ok := r.cache[id]; ok {
		// Create a deep copy with updated telemetry (atomic replacement)
		updated := cached.DeepCopy()
		updated.LastTelemetry = deepCopyMap(payload)
		seen := seenAt.UTC()
		updated.LastSeenAt = &seen
		r.cache[id] = updated
	}
	r.cacheMu.Unlock()

	r.logger.Debug("device telemetry updated", "id", id)
	return nil
}

// GetDeviceCount returns the number of cached devices.
func (r *Registry) GetDeviceCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// GenerateID returns a new unique device ID.
func GenerateID() string {
	return uuid.New().String()
}
