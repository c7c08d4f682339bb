// Package daemon coordinates the long-running aurax process.
//
// It wires configuration, the run store, and the workflow manager into a
// single lifecycle with flock-based locking to prevent multiple instances
// sharing one state directory. When an API bind address is configured the
// daemon also serves the HTTP run API (submit, list, inspect, progress,
// cancel, status) behind optional bearer-token auth.
//
// Keep orchestration logic here: generation behaviour lives in the workflow
// and pipeline packages while the daemon focuses on startup, shutdown, and
// transport.
package daemon
