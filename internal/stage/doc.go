// Package stage defines the named pipeline stages, the capability interfaces
// each external collaborator implements, pass-through defaults for the
// optional post-processing capabilities, and the Invoker that executes one
// collaborator call under a bounded timeout.
//
// The collaborator Set is constructed explicitly and injected; nothing in
// this package keeps process-wide lookup state.
package stage
