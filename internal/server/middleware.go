package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/polisai/gatekeeper/internal/governance"
)

// RequestIDHeader carries the correlation id of a request.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLength = 128

type contextKey string

const requestIDContextKey contextKey = "requestID"

// RequestIDFromContext returns the id assigned by the request id middleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

// requestIDMiddleware echoes a supplied X-Request-ID or assigns a new uuid.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := context.WithValue(r.Context(), requestIDContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimitMiddleware admits requests per client address through limiter.
type rateLimitMiddleware struct {
	limiter *governance.RateLimiter
	metrics *Metrics
	logger  *slog.Logger
}

func (m *rateLimitMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Probes and scrapes are never limited.
		if r.URL.Path != evaluatePath {
			next.ServeHTTP(w, r)
			return
		}

		key := clientKey(r)
		allowed := m.limiter.Allow(key)
		if stats, ok := m.limiter.Stats(key); ok {
			governance.WriteRateLimitHeaders(w, stats.Limit, int(stats.Available), time.Now().Add(time.Second))
		}
		if allowed {
			next.ServeHTTP(w, r)
			return
		}

		m.metrics.RecordRateLimited()
		m.logger.Warn("request rate limited",
			"client", key,
			"path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()),
		)
		writeError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
