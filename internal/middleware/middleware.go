package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"caseTasks/internal/engine"
	"caseTasks/internal/logger"
	"caseTasks/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const (
	RequestIdKey contextKey = "request_id"
	viewerKey    contextKey = "viewer"
)

// UserIDHeader carries the caller's user id. Authentication happens in front of this service.
const UserIDHeader = "X-User-ID"

func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestId := r.Header.Get("X-Request-ID")
		if requestId == "" {
			requestId = uuid.New().String()
		}

		w.Header().Set("X-Request-ID", requestId)

		ctx := context.WithValue(r.Context(), RequestIdKey, requestId)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type loggingWriter struct {
	http.ResponseWriter
	status      int
	size        int
	wroteHeader bool
}

func (lw *loggingWriter) WriteHeader(code int) {
	if !lw.wroteHeader {
		lw.status = code
		lw.wroteHeader = true
		lw.ResponseWriter.WriteHeader(code)
	}
}

func (lw *loggingWriter) Write(b []byte) (int, error) {
	if !lw.wroteHeader {
		lw.WriteHeader(http.StatusOK)
	}

	n, err := lw.ResponseWriter.Write(b)
	lw.size += n
	return n, err
}

func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestId := GetRequestID(r.Context())

		logger.HttpRequestInfo(r, "HTTP_IN: request started", zap.String("request_id", requestId))

		lw := &loggingWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(lw, r)

		logLevel := zap.InfoLevel
		if lw.status >= 400 && lw.status < 500 {
			logLevel = zap.WarnLevel
		} else if lw.status >= 500 {
			logLevel = zap.ErrorLevel
		}
		logger.Log(
			logLevel,
			"HTTP_OUT: request finished",
			zap.String("request_id", requestId),
			zap.Int("status", lw.status),
			zap.Int("bytes_written", lw.size),
			zap.Duration("ms", time.Since(start)),
		)
	})
}

func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIdKey).(string); ok {
		return id
	}
	return ""
}

// Timeout puts a deadline on the request context. Handlers and storage calls
// observe it; the response is written by whichever of them notices first.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if timeout <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))

			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				logger.Warn("HTTP: request timed out",
					zap.String("request_id", GetRequestID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Duration("timeout", timeout))
			}
		})
	}
}

type clientInfo struct {
	count   int
	resetAt time.Time
}

// rateLimiter counts requests per client in fixed windows. Clients whose window
// ran out are swept once per window so the map only holds recent callers.
type rateLimiter struct {
	rpm       int
	window    time.Duration
	now       func() time.Time
	mtx       sync.Mutex
	clients   map[string]*clientInfo
	nextSweep time.Time
}

func newRateLimiter(rpm int, window time.Duration, now func() time.Time) *rateLimiter {
	return &rateLimiter{
		rpm:       rpm,
		window:    window,
		now:       now,
		clients:   make(map[string]*clientInfo),
		nextSweep: now().Add(window),
	}
}

// allow records a request from ip. It returns what is left in the window and
// when the window resets; ok is false once the limit is reached.
func (l *rateLimiter) allow(ip string) (remaining int, resetAt time.Time, ok bool) {
	now := l.now()

	l.mtx.Lock()
	defer l.mtx.Unlock()

	if now.After(l.nextSweep) {
		l.sweep(now)
	}

	info, exists := l.clients[ip]
	switch {
	case !exists:
		info = &clientInfo{count: 1, resetAt: now.Add(l.window)}
		l.clients[ip] = info
	case now.After(info.resetAt):
		info.count = 1
		info.resetAt = now.Add(l.window)
	case info.count >= l.rpm:
		return 0, info.resetAt, false
	default:
		info.count++
	}
	return l.rpm - info.count, info.resetAt, true
}

func (l *rateLimiter) sweep(now time.Time) {
	for ip, info := range l.clients {
		if now.After(info.resetAt) {
			delete(l.clients, ip)
		}
	}
	l.nextSweep = now.Add(l.window)
}

func (l *rateLimiter) tracked() int {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return len(l.clients)
}

func RateLimit(rpm int) func(http.Handler) http.Handler {
	return rateLimit(newRateLimiter(rpm, time.Minute, time.Now))
}

func rateLimit(limiter *rateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter.rpm <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			remaining, resetAt, ok := limiter.allow(getIp(r))
			if !ok {
				writeJSON(w, http.StatusTooManyRequests, map[string]any{
					"code":        "RATE_LIMITED",
					"message":     "too many requests, try again later",
					"retry_after": int(resetAt.Sub(limiter.now()).Seconds()),
					"request_id":  GetRequestID(r.Context()),
				})
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.rpm))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			next.ServeHTTP(w, r)
		})
	}
}

// IdentifyFunc resolves a caller id into a viewer.
type IdentifyFunc func(ctx context.Context, id uuid.UUID) (engine.Viewer, error)

// Identify reads X-User-ID and stores the resolved viewer in the request
// context. An absent, malformed or unknown id is answered with 401.
func Identify(identify IdentifyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(UserIDHeader)
			id, err := uuid.Parse(raw)
			if err != nil {
				logger.Warn("HTTP: caller id missing or malformed",
					zap.String("request_id", GetRequestID(r.Context())),
					zap.String("client_ip", r.RemoteAddr))
				unauthenticated(w, r, "X-User-ID header must carry a user id")
				return
			}

			v, err := identify(r.Context(), id)
			if err != nil {
				var berr *service.BusinessError
				if errors.As(err, &berr) && berr.Code == service.CodeUnauthenticated {
					logger.Warn("HTTP: unknown caller",
						zap.String("user_id", id.String()),
						zap.String("request_id", GetRequestID(r.Context())))
					unauthenticated(w, r, berr.Message)
					return
				}
				logger.Error("HTTP: identifying caller", err, zap.String("request_id", GetRequestID(r.Context())))
				writeJSON(w, http.StatusInternalServerError, map[string]any{
					"code":    "INTERNAL_ERROR",
					"message": "internal server error",
				})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithViewer(r.Context(), v)))
		})
	}
}

func WithViewer(ctx context.Context, v engine.Viewer) context.Context {
	return context.WithValue(ctx, viewerKey, v)
}

func ViewerFrom(ctx context.Context) (engine.Viewer, bool) {
	v, ok := ctx.Value(viewerKey).(engine.Viewer)
	return v, ok
}

func unauthenticated(w http.ResponseWriter, r *http.Request, message string) {
	writeJSON(w, http.StatusUnauthorized, map[string]any{
		"code":       service.CodeUnauthenticated,
		"message":    message,
		"request_id": GetRequestID(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, code int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func getIp(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
