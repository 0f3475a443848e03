// Package preflight provides readiness checks for the filesystem paths and
// external services fission depends on.
//
// These checks run in two contexts:
//   - The workflow manager calls RunAll before it starts polling. If any
//     check fails the daemon refuses to start instead of failing every
//     project at its first stage.
//   - The CLI "fission status" command uses the individual checks to display
//     service health.
//
// The LLM check is skipped when no API key is configured; analysis then
// relies on fallback segmentation and text assets on templates.
package preflight
