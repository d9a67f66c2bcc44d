package middleware

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/searchktools/mini-server/core/http"
)

// Common gate implementations

// RequireHeader rejects requests to path unless header has exactly value.
// Rejections get 401 with body "Unauthorized".
func RequireHeader(path, header, value string) Gate {
	return func(req *http.Request, res *http.Response) Result {
		if req.Path != path {
			return Continue
		}
		if req.GetHeader(header) == value {
			return Continue
		}
		res.StatusCode = 401
		res.Body = []byte("Unauthorized")
		return Stop
	}
}

// Logger logs every request that carries a path
func Logger(log zerolog.Logger) Gate {
	return func(req *http.Request, res *http.Response) Result {
		if req.Path != "" {
			log.Info().Str("method", req.Method).Str("path", req.Path).Msg("request")
		}
		return Continue
	}
}

// CORS adds CORS headers and answers preflight requests with 204
func CORS() Gate {
	return func(req *http.Request, res *http.Response) Result {
		res.SetHeader("Access-Control-Allow-Origin", "*")
		res.SetHeader("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		res.SetHeader("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if req.Method == "OPTIONS" {
			res.StatusCode = 204
			res.Body = nil
			return Stop
		}
		return Continue
	}
}

// RateLimiter allows requestsPerSecond requests per one-second window,
// shared across all connections
func RateLimiter(requestsPerSecond int) Gate {
	var (
		tokens     int
		lastRefill time.Time
		mu         sync.Mutex
	)

	tokens = requestsPerSecond
	lastRefill = time.Now()

	return func(req *http.Request, res *http.Response) Result {
		mu.Lock()

		now := time.Now()
		if now.Sub(lastRefill) > time.Second {
			tokens = requestsPerSecond
			lastRefill = now
		}

		if tokens > 0 {
			tokens--
			mu.Unlock()
			return Continue
		}

		mu.Unlock()

		res.StatusCode = 429
		res.ContentType = http.ContentTypeJSON
		res.Body = []byte(`{"error":"Too Many Requests"}`)
		return Stop
	}
}

// RequestID sets a monotonically increasing X-Request-ID header
func RequestID() Gate {
	var counter uint64

	return func(req *http.Request, res *http.Response) Result {
		id := atomic.AddUint64(&counter, 1)
		res.SetHeader("X-Request-ID", strconv.FormatUint(id, 10))
		return Continue
	}
}
