// Package generation is the adapter boundary between the pipeline and
// the external text-completion service. It owns prompt construction,
// the tolerant parsing of free-text model output into a typed
// ArticlePlan, and all plan repair: every structural invariant of a plan
// is enforced here and nowhere else.
//
// Planning failure is never fatal. A call failure or unparseable
// response degrades to a deterministic fallback plan; a failed section
// call degrades to a clearly marked stand-in section.
package generation
