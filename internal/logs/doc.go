// Package logs reads run log files for the API and the CLI.
//
// Tail returns either the last N lines of a file or everything written after
// a byte offset. Follow mode blocks, up to a caller supplied wait, until new
// lines appear so `aurax logs --follow` can poll without spinning. Memory use
// is bounded by the requested line count, not the file size.
package logs
