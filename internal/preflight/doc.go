// Package preflight provides readiness checks for external services
// and filesystem paths that aurax depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs every failing check, so a
//     misconfigured inference endpoint is visible before the first run.
//   - The CLI "aurax status" command shows the same results next to the
//     queue summary.
//
// Checks for optional collaborators are skipped when they are not
// configured.
package preflight
