// Package queue owns the candidate item lifecycle: enqueueing with
// deduplication, atomic selection, marking items used, skip/expiry
// bookkeeping, stale-selection recovery, and the diversity-constrained
// balanced selection that decides which items feed a generation run.
//
// All mutations go through the Manager, which delegates the actual
// conditional transitions to the store so that concurrent callers race
// at the storage layer, never in application code.
package queue
