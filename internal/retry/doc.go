// Package retry implements per-stage retry policies: exponential backoff
// between tries, a ceiling on tries, and classification of errors that must
// never be retried. Sleeping is injectable so tests never wait on backoff.
package retry
