// Package health aggregates collaborator probes into one report: database
// and Redis connectivity, free disk space on the output volume, active job
// count, and process identity.
package health
