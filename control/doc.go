// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime settings, metrics and debug introspection layer of the worker.
//
// Provides concurrent-safe state handling primitives including:
//   - Immutable settings snapshots with validated updates
//   - Synchronous reload hooks for settings changes
//   - Prometheus collectors for transports and the association registry
//   - Debug probe registration used by the dump method
//
// This package is cross-platform and build-tag-partitioned as needed.
package control
