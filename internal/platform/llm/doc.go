// Package llm provides the concrete text-completion clients behind the
// generation.Completer interface: Google Gemini and Anthropic Claude,
// selected by configuration. Retry policy for transient API failures
// lives here, at the call boundary; semantic recovery (fallback plans,
// stand-in sections) stays in the generation package.
package llm
