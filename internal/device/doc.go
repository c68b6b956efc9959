// Package device provides the device session registry for Farsight Core.
//
// The registry is the broker's source of truth for which devices are
// currently connected: a mapping from stable device identifiers to live
// connection references plus metadata. The relay router resolves command
// targets through it, and the roster pushed to controllers is built from
// its snapshots.
//
// # Architecture
//
//	┌────────────────────────────────────────────────────────────────────┐
//	│                         device package                             │
//	│                                                                    │
//	│  ┌────────────────┐   ┌────────────────┐   ┌────────────────┐     │
//	│  │    Registry    │   │    Identity    │   │   Repository   │     │
//	│  │ (registry.go)  │   │ (identity.go)  │   │(repository.go) │     │
//	│  │                │   │                │   │                │     │
//	│  │ • live sessions│   │ • role resolve │   │ • SQLite       │     │
//	│  │ • owner-guarded│   │ • surrogate ids│   │   directory    │     │
//	│  │   eviction     │   │                │   │ • upsert/list  │     │
//	│  └────────────────┘   └────────────────┘   └────────────────┘     │
//	└────────────────────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - Session: a live device registration (ID, name, connection, liveness)
//   - Identity: resolved role and identifiers for an accepted connection
//   - Record: a persisted directory entry surviving restarts
//   - ConnRef: opaque, identity-compared handle to a transport connection
//
// # Usage
//
//	registry := device.NewRegistry()
//	registry.SetLogger(log)
//
//	ident := device.ResolveIdentity(r.URL.Query())
//	if ident.Role == device.RoleDevice {
//	    if prev := registry.Register(ident, conn); prev != nil {
//	        prev.Close() // superseded connection
//	    }
//	}
//
//	// On disconnect: only the owning connection evicts the entry.
//	registry.Unregister(ident.DeviceID, conn)
//
// # Thread Safety
//
// The Registry is safe for concurrent use. All operations are protected by
// a read-write mutex and are individually atomic. Reads return copies.
package device
