package ratelimit

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"
)

// clientKeyHeader identifies the caller when present; the game backend
// forwards the player's API key here. Requests without it fall back to the
// remote IP, so anonymous browsers still get per-origin limits.
const clientKeyHeader = "X-Api-Key"

// rejection is the JSON body returned with a 429 response.
type rejection struct {
	Error      string `json:"error"`
	RetryAfter int64  `json:"retryAfter"`
	Remaining  int    `json:"remaining"`
	Reset      int64  `json:"reset"`
}

// Middleware returns an [http.Handler] wrapper that gates requests through
// l using cfg. Rejected requests receive 429 with a Retry-After header and
// a JSON body; allowed requests proceed with X-RateLimit-* headers set.
//
// onReject, when non-nil, is invoked once per rejection (used to bump the
// rejection metric).
func Middleware(l *Limiter, cfg Config, onReject func(identifier string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := Identify(r)
			res := l.Check(id, cfg)
			SetHeaders(w.Header(), cfg, res)

			if !res.Allowed {
				if onReject != nil {
					onReject(id)
				}
				retry := int64(res.RetryAfter / time.Second)
				w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(rejection{
					Error:      "rate limit exceeded",
					RetryAfter: retry,
					Remaining:  res.Remaining,
					Reset:      res.Reset.Unix(),
				})
				slog.Debug("request rate limited",
					"identifier", id,
					"path", r.URL.Path,
					"retry_after", res.RetryAfter,
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Identify derives the rate-limit identifier for a request: the API key
// header when present, otherwise the remote host without port.
func Identify(r *http.Request) string {
	if key := r.Header.Get(clientKeyHeader); key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// SetHeaders writes the standard X-RateLimit-* response headers for res.
func SetHeaders(h http.Header, cfg Config, res Result) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.MaxRequests))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.Reset.Unix(), 10))
}
