// Command scenecast is the operator CLI for the composition daemon: job
// inspection and lifecycle management, config scaffolding, and health checks
// against the running daemon.
package main
