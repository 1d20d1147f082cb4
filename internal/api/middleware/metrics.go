package middleware

import (
	"net/http"
	"sync/atomic"
)

// MetricsCollector counts requests, error responses, and issued payment
// challenges (402s). Counters are owned by the caller so the /metrics handler
// can read them without a dependency on this package.
type MetricsCollector struct {
	requestCount   *atomic.Int64
	errorCount     *atomic.Int64
	challengeCount *atomic.Int64
}

func NewMetricsCollector(requestCount, errorCount, challengeCount *atomic.Int64) *MetricsCollector {
	return &MetricsCollector{
		requestCount:   requestCount,
		errorCount:     errorCount,
		challengeCount: challengeCount,
	}
}

// Middleware counts each request and classifies the response status. A 402 is
// part of the normal payment handshake, not an error.
func (mc *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mc.requestCount.Add(1)

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		switch {
		case rw.statusCode == http.StatusPaymentRequired:
			mc.challengeCount.Add(1)
		case rw.statusCode >= 400:
			mc.errorCount.Add(1)
		}
	})
}
