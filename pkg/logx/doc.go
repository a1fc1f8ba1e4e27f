// Package logx configures taskward's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - Per-task log files JSON-structured
//   - Optional systemd journal sink (min-level + rate limiting)
//
// The Service owns the shared sinks and hands out per-task loggers; one log
// file per (user, task) pair holds the detail of a run, while the console
// only carries the pass summary unless verbose output is requested.
package logx
