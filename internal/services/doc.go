// Package services defines shared utilities consumed by the pipeline stages
// and their external providers.
//
// Key responsibilities:
//   - Context helpers that stamp project IDs, stage names, unit keys, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures carry a
//     retry classification and a stable failure code.
//
// Use these helpers when wiring new providers so retry decisions and the
// persisted failure reasons stay uniform across the pipeline.
package services
