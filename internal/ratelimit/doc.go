// Package ratelimit gates request admission with a Redis fixed-window
// counter keyed by API key. Redis outages fail open.
package ratelimit
