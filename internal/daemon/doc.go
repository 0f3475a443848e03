// Package daemon coordinates the long-running fission process.
//
// It wires configuration, project storage, the workflow manager and the
// metrics listener into a single lifecycle, with flock-based locking to
// prevent two daemons from polling the same database. Stage logic lives in the
// stage packages; the daemon only owns startup, shutdown and the status
// snapshot reported by the CLI.
package daemon
