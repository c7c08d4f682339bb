// Package llm provides the language-model collaborators of the pipeline:
// intent analysis and prompt enhancement.
//
// # Client
//
// Client wraps an OpenAI-compatible chat completion API through openai-go.
// Requests ask for JSON only; replies are decoded with DecodeLLMJSON, which
// tolerates code fences and prose around the object. Cost is derived from
// token usage with a per-model pricing table.
//
// The client performs a single request per call. Retries belong to the stage
// retry policy, so SDK retries are disabled and failures are tagged with the
// services error markers (429/5xx/timeouts transient, other 4xx validation).
//
// # Heuristic
//
// Without an API key, Heuristic serves both capabilities locally: the prompt
// passes through, style is inferred from genre keywords, and enhancement
// appends the configured quality suffix.
package llm
