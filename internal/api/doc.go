// Package api handles incoming HTTP requests, routing, request
// validation, and response formatting. It adapts external clients to the
// internal queue and generation services, including the NDJSON event
// stream for article generation.
package api
