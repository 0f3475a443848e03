// Package llm provides an OpenAI-compatible chat completion client used by
// moment analysis and text asset generation.
//
// Each call makes exactly one HTTP request. Failures are tagged so the retry
// controller can classify them:
//
//   - ErrServiceUnavailable (transient): HTTP 408/429/5xx, network errors,
//     empty completions. Retry-After is exposed as a hint.
//   - ErrRequestRejected (validation): any other 4xx, such as a bad key.
//   - ErrMalformedResponse (validation): an undecodable response envelope.
//
// DecodeLLMJSON tolerates the usual model formatting quirks (code fences,
// prose around the JSON value) when callers decode the returned content.
package llm
