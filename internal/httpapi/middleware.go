package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"scenecast/internal/logging"
	"scenecast/internal/ratelimit"
)

type contextKey string

const ownerKeyContext contextKey = "owner_key"

// ownerKey returns the authenticated API key for the request.
func ownerKey(r *http.Request) string {
	key, _ := r.Context().Value(ownerKeyContext).(string)
	return key
}

// requireAuth validates the bearer token. With no configured keys any
// non-empty token is accepted; the token still scopes job ownership.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Missing or malformed Authorization header")
			return
		}

		if len(s.apiKeys) > 0 {
			allowed := false
			for _, key := range s.apiKeys {
				if token == key {
					allowed = true
					break
				}
			}
			if !allowed {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid API key")
				return
			}
		}

		ctx := context.WithValue(r.Context(), ownerKeyContext, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimit counts the request against the caller's window and annotates the
// response with quota headers.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision, err := s.limiter.Allow(r.Context(), ownerKey(r))
		if err != nil {
			s.logger.Warn("rate limit check", logging.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		setRateHeaders(w, decision)
		if !decision.Allowed {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func setRateHeaders(w http.ResponseWriter, decision ratelimit.Decision) {
	if decision.Limit == 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
}
