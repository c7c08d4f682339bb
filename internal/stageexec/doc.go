// Package stageexec runs a single pipeline stage: it applies the stage's
// retry policy around timeout-bounded collaborator calls, emits the
// stage_start/stage_retry/stage_complete/stage_failure log events, and
// classifies the terminal failure.
package stageexec
