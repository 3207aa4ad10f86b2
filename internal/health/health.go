package health

import (
	"context"
	"time"

	"golang.org/x/sys/unix"

	"scenecast/internal/jobs"
	"scenecast/internal/ratelimit"
)

// lowDiskFloor marks the report degraded when the output volume drops under it.
const lowDiskFloor = 100 << 20

// ProcessInfo identifies the running daemon. It is constructed at startup and
// passed in explicitly rather than read from globals.
type ProcessInfo struct {
	Version   string
	StartedAt time.Time
}

// Report is the health snapshot returned by Check.
type Report struct {
	Status             string  `json:"status"`
	Version            string  `json:"version"`
	UptimeSeconds      float64 `json:"uptime"`
	DatabaseConnected  bool    `json:"database_connected"`
	RedisConnected     bool    `json:"redis_connected"`
	DiskSpaceAvailable uint64  `json:"disk_space_available"`
	ActiveJobs         int     `json:"active_jobs"`
}

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (available uint64, err error)

// Checker aggregates collaborator probes into one health report.
type Checker struct {
	store     *jobs.Store
	limiter   ratelimit.Limiter
	outputDir string
	process   ProcessInfo
	statfs    statfsFunc
}

// NewChecker builds a health checker over the daemon's collaborators.
func NewChecker(store *jobs.Store, limiter ratelimit.Limiter, outputDir string, process ProcessInfo) *Checker {
	return &Checker{
		store:     store,
		limiter:   limiter,
		outputDir: outputDir,
		process:   process,
		statfs:    realStatfs,
	}
}

// Check probes every collaborator. It always returns a report; the status
// field degrades instead of the call failing.
func (c *Checker) Check(ctx context.Context) Report {
	report := Report{
		Status:        "healthy",
		Version:       c.process.Version,
		UptimeSeconds: time.Since(c.process.StartedAt).Seconds(),
	}

	if c.store != nil {
		if err := c.store.Ping(ctx); err == nil {
			report.DatabaseConnected = true
			if active, err := c.store.CountActive(ctx); err == nil {
				report.ActiveJobs = active
			}
		}
	}
	if !report.DatabaseConnected {
		report.Status = "unhealthy"
	}

	if c.limiter != nil {
		if err := c.limiter.Ping(ctx); err == nil {
			report.RedisConnected = true
		} else if report.Status == "healthy" {
			report.Status = "degraded"
		}
	}

	if available, err := c.statfs(c.outputDir); err == nil {
		report.DiskSpaceAvailable = available
		if available < lowDiskFloor && report.Status == "healthy" {
			report.Status = "degraded"
		}
	}
	return report
}

func realStatfs(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return uint64(stat.Bavail) * uint64(stat.Bsize), nil
}
