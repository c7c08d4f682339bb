// Package notifications delivers run events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when notifications are disabled.
// Enumerated events cover run outcomes and queue milestones so the workflow
// manager can emit consistent messages without duplicating HTTP glue. Each
// outcome event can be switched off individually under [notifications].
package notifications
