// Command fission runs the content pipeline daemon and manages projects.
//
// Project commands talk to the SQLite database directly, so they work whether
// or not the daemon is running; the daemon picks up new and retried projects
// on its next poll.
package main
