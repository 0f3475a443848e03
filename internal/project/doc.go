// Package project persists content projects and their derived artifacts in
// SQLite.
//
// A Project moves through the ordered pipeline stages declared here; its
// Transcript, Moments, and Assets are written at stage boundaries by the
// stage handlers. The store also carries the durable run claim and heartbeat
// used by the workflow manager to keep a single active run per project and to
// reclaim runs orphaned by a crashed process.
package project
