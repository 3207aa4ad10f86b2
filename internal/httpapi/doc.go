// Package httpapi is the HTTP transport over the coordinator: submission,
// job inspection, cancel/retry/delete, result download, and health. Callers
// authenticate with a bearer API key that also scopes job ownership; admission
// passes through the rate limiter before reaching any handler.
package httpapi
