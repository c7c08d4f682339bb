// Package inference talks to the GPU compute service that generates,
// arranges, mixes, masters, evaluates and separates audio.
//
// Every stage is one JSON POST. Audio travels either as a URL the service
// can fetch or as base64 bytes. Failures are tagged with the services error
// markers so stage retry policies can classify them: HTTP 507 and the
// out_of_memory/resource_exhausted error codes are resource exhaustion,
// 408/429/5xx and network timeouts are transient, other 4xx are validation
// failures.
package inference
