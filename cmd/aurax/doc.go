// Package main hosts the aurax CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into HTTP
// calls against the daemon's run API (generate, status, runs, cancel), runs
// a single generation in-process without a daemon (run), serves the daemon
// itself (serve), and scaffolds configuration. It centralizes configuration
// resolution and API client construction so subcommands can focus on user
// experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
