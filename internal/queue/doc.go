// Package queue persists generation runs and their attempt trails in SQLite.
//
// The Store manages database connections, schema initialization, claiming of
// pending runs by worker lanes, heartbeat tracking, stale-run recovery, and
// terminal bookkeeping. A run row carries its request, live progress fields
// and, once finished, the serialized result; each attempt of the
// regeneration loop is stored as its own row so a run's trail survives
// restarts of the daemon.
//
// The database is treated as transient storage for in-flight and recent runs
// rather than a long-term archive. Schema changes are appended to the
// migration list in schema.go; opening a database written by a newer build
// fails with ErrSchemaMismatch.
package queue
