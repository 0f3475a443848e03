// Package fanout runs independent asset units on a bounded worker pool.
//
// A unit's error or panic is recorded against its key and never stops its
// siblings. The Report lists results in input order regardless of which unit
// finished first, and maps onto a stage Result: HardFailure only when every
// unit failed, PartialSuccess when some did, Success otherwise.
package fanout
