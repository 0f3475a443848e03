// Package notifications delivers project lifecycle events via pluggable
// notifiers.
//
// Two transports are available: ntfy push messages for operators, and an
// AMQP queue carrying JSON event envelopes for downstream services. Either is
// enabled by configuring its destination; with neither configured NewService
// returns a no-op. Workflow code depends only on the Service interface.
package notifications
