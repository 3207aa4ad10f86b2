// Package scheduler turns pending jobs into running renders.
//
// A poll loop claims the highest-priority pending job through the guarded
// pending->processing transition and hands it to the coordinator on a worker
// slot; a second loop sweeps expired jobs. Stop cancels both loops and waits
// for in-flight renders to land on a terminal status.
package scheduler
