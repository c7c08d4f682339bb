// Package services defines shared utilities consumed by the pipeline stages
// and the external collaborator clients.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, attempt numbers, and
//     correlation identifiers for logging and tracing.
//   - The error taxonomy: run-level markers (stage timeout, stage failure,
//     non-retryable failure, invalid request), collaborator markers (resource
//     exhaustion, transient, validation), and the StageError/Wrap helpers
//     that keep both the marker and the cause visible to errors.Is.
//
// Collaborator clients live in subpackages (inference, llm).
package services
