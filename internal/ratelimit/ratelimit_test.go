package ratelimit_test

import (
	"context"
	"testing"

	"scenecast/internal/logging"
	"scenecast/internal/ratelimit"
	"scenecast/internal/testsupport"
)

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.RateLimit.Enabled = false

	limiter := ratelimit.New(cfg, logging.NewNop())
	defer limiter.Close()

	for i := 0; i < 100; i++ {
		decision, err := limiter.Allow(context.Background(), "caller")
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !decision.Allowed {
			t.Fatalf("request %d denied by disabled limiter", i)
		}
	}
	// A zero limit signals that no quota headers should be emitted.
	decision, _ := limiter.Allow(context.Background(), "caller")
	if decision.Limit != 0 {
		t.Fatalf("limit = %d", decision.Limit)
	}
	if err := limiter.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
