// Package jobs persists composition jobs in SQLite and owns their lifecycle
// semantics.
//
// The Store manages database connections, schema initialization, filtered
// listing, progress writes, and the status transition table. Transition is
// the single path through which a job changes status; it checks the legal
// transition table and guards the write with the expected from-status so two
// drivers can never move the same job concurrently.
//
// The database is transient storage for in-flight and recent jobs, not an
// archive: records past their expiration are swept by the scheduler. Schema
// changes bump the version in schema.go; users delete the database to adopt
// the new schema.
package jobs
