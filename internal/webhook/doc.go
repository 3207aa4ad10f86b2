// Package webhook delivers job lifecycle events to caller-supplied URLs.
//
// Delivery is best effort: one POST per event, a bounded timeout, no retries.
// A failed delivery is logged by the caller and never affects the job itself.
// Code that finishes jobs depends only on the Notifier interface; NewNop
// covers tests and deployments without webhooks.
package webhook
