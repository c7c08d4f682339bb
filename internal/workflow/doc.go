// Package workflow drives generation runs from submission to a terminal
// result.
//
// The Controller owns the bounded regeneration loop: it runs one attempt
// through the pipeline orchestrator, applies the quality gate, and either
// accepts the result, gives up at the attempt ceiling with a best-effort
// result, or enhances the prompt, relaxes the threshold and tries again.
//
// The Manager wraps the controller for the daemon. Worker lanes poll the run
// store for pending runs, heartbeat the runs they own, reclaim runs whose
// worker died, persist progress and attempt trails, hand final payloads to
// the filestore, and publish notifications when runs and the queue finish.
// Submit, Run, Progress, Cancel and Status are the entry points used by the
// HTTP API and the CLI.
package workflow
