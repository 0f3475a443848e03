// Package analysis implements the Analyze stage: it identifies scored
// narrative moments in a transcript and replaces the project's moments.
//
// The default provider asks an OpenAI-compatible chat model for a JSON list
// of moments and tolerates the usual response quirks (a bare array, an
// object with a "moments" key, a single object, code fences). Scores are
// clamped into range, moments are clamped to the transcript duration, and
// moments with unusable bounds are dropped.
//
// When the provider cannot deliver (malformed output, or retries exhausted)
// the stage degrades to FallbackPolicy: fixed-interval windows over the
// transcript, each marked Fallback, so later stages still have material.
package analysis
