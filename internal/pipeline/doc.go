// Package pipeline runs one generation attempt: intent analysis, generation,
// arrangement, mixing, mastering, and quality evaluation, strictly in that
// order, each wrapped in its timeout and retry policy. The orchestrator never
// decides to loop; regeneration belongs to the workflow controller.
package pipeline
