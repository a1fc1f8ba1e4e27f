// Package schedule decides when tasks run.
//
// It holds the pure pieces of the scheduler: the run-window clock, the
// due-now evaluator, and the pass ordering. Nothing here touches the
// filesystem or spawns processes.
package schedule
