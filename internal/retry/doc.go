// Package retry runs external provider calls with bounded attempts and
// exponential backoff.
//
// Do classifies each failure as Retryable or Terminal. Terminal errors stop at
// once; retryable ones sleep base*2^(n-1) (capped, with symmetric jitter) and
// try again until the attempt budget is spent. Either way the caller receives
// a *Error that records how many attempts ran and wraps the last cause, so
// errors.Is still matches provider sentinels and service markers.
package retry
