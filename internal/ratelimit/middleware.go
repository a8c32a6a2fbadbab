package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// RejectFunc writes the response for a rejected request.
type RejectFunc func(w http.ResponseWriter, r *http.Request, d Decision)

// Middleware admits each request through l before invoking the next handler.
// Requests are keyed by client address alone, so every route mounted on the
// same Limiter draws from one window per caller; perMinute and perHour are
// the thresholds this route applies to that shared history. Run chi's
// middleware.RealIP ahead of it to honour forwarding headers.
func Middleware(l *Limiter, perMinute, perHour int, onReject RejectFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := l.Admit(ClientIP(r), perMinute, perHour)
			if !d.Allowed {
				if onReject != nil {
					onReject(w, r, d)
					return
				}
				http.Error(w, d.Reason, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the host part of the request's remote address.
func ClientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	if addr == "" {
		return "unknown"
	}
	return addr
}
