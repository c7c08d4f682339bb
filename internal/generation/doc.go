// Package generation defines the value types that flow through a music
// generation run: the immutable Request, the per-attempt Intent, stage
// results with their cost telemetry, quality assessments, the run-owned
// AttemptState, and the terminal Result with its per-attempt trail.
//
// Request values are never mutated once validated; regeneration derives a new
// Request through WithPrompt/WithStyle.
package generation
