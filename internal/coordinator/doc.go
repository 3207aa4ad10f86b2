// Package coordinator owns the lifecycle of composition jobs.
//
// Submit validates a request and persists a pending job; Begin claims it;
// Drive runs the render pipeline and lands the job on exactly one terminal
// status. Every status change goes through the store's guarded transition, so
// concurrent drivers, cancels, and retries resolve to a single winner. Webhook
// delivery happens once per terminal transition and never fails the job.
package coordinator
