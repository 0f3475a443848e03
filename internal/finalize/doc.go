// Package finalize implements the Finalize stage.
//
// Finalize makes no external calls. It checks that the project carries the
// outputs every later consumer depends on (a transcript and at least one
// moment), then writes a JSON manifest describing the project's assets.
// Failed assets are listed in the manifest rather than failing the stage.
package finalize
