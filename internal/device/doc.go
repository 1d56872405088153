// Package device provides the device directory: the mapping between wire
// identities (IMEIs embedded in MQTT topics) and provisioned devices.
//
// # Architecture
//
// The package has two layers:
//
//   - Repository: SQLite persistence (SQLiteRepository)
//   - Registry: thread-safe in-memory cache over a Repository, with an
//     IMEI index for the ingestion hot path
//
// The Registry is the entry point for the rest of the application. Direct
// Repository use is reserved for tests and migrations tooling.
//
// # Cache semantics
//
// Every device handed out by the Registry is a deep copy; callers can
// mutate the result freely without corrupting the cache. Writes go through
// the repository first and update the cache only on success, so the cache
// never holds state the database rejected.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB())
//	registry := device.NewRegistry(repo)
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	d, err := registry.ResolveByIMEI(ctx, "358000000000001")
package device
