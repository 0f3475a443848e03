// Package progress owns the status, stage and percentage of a project.
//
// The Tracker is the only writer of those fields. Percentages never decrease,
// stages advance one at a time in pipeline order, and completed or failed
// projects accept no further transitions. Each transition is written through
// the Store first; the caller's snapshot is replaced only after the write
// succeeds, so a failed write leaves memory and database in agreement.
package progress
