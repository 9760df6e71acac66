// Package pipeline runs the two-pass article generation: one planning
// call that fixes section order and framing, then a bounded pool of
// writers producing section text concurrently. Sections complete in
// whatever order the external service returns them; the orchestrator
// consumes result slots strictly in planned order, so the emitted event
// stream always shows sections in final document order without
// serializing the generation work itself.
package pipeline
