// Package service composes the queue and the generation pipeline into
// end-to-end operations: one article run selects a balanced batch,
// reserves it against concurrent runs, streams the pipeline's events,
// and settles each item according to how its section fared.
package service
