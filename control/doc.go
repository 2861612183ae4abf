// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, hot-reload, metrics and debug introspection for bridge
// deployments.
//
// Provides:
//   - Snapshot configuration reads and merged updates from YAML files
//   - File watching that reloads the store and notifies listeners
//   - Prometheus collectors implementing the transport and pool recorders
//   - Named debug probes served as JSON
//
// Platform probes are build-tag-partitioned.
package control
