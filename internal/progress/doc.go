// Package progress publishes read-only snapshots of running generation runs.
//
// A Tracker is written by the single goroutine that owns a run and read by
// any number of status queries. Writers build a fresh Snapshot and swap it in
// through an atomic pointer, so readers never block the run and never observe
// a torn update.
package progress
