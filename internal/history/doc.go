package history

// Package history persists one record per attempted task so past passes
// can be reviewed later.
//
// It currently supports:
//   - Outcome appends (one record per attempt)
//   - Recent-run queries (newest first, optionally filtered by user)
