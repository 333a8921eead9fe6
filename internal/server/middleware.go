// Package server implements the Lona HTTP API.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/lonalabs/lona/internal/auth"
	"github.com/lonalabs/lona/internal/model"
	"github.com/lonalabs/lona/internal/ratelimit"
)

type contextKey string

const (
	contextKeyRequestID contextKey = "request_id"
	contextKeyIdentity  contextKey = "identity"
)

// RequestIDFromContext extracts the request ID from the context.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return v
	}
	return ""
}

// IdentityFromContext extracts the resolved identity from the context.
func IdentityFromContext(ctx context.Context) *auth.Identity {
	if v, ok := ctx.Value(contextKeyIdentity).(*auth.Identity); ok {
		return v
	}
	return nil
}

// requestContext builds the tenant/user/request triple every service call
// requires. Auth middleware guarantees an identity on all non-health routes.
func requestContext(r *http.Request) model.RequestContext {
	rctx := model.RequestContext{RequestID: RequestIDFromContext(r.Context())}
	if id := IdentityFromContext(r.Context()); id != nil {
		rctx.TenantID = id.TenantID
		rctx.UserID = id.UserID
	}
	return rctx
}

// requestIDMiddleware assigns a unique request ID to each request.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		ctx := context.WithValue(r.Context(), contextKeyRequestID, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// securityHeadersMiddleware sets conservative defaults for an API-only server.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs each request with structured fields.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", RequestIDFromContext(r.Context()),
		}
		if tid := traceIDFromContext(r.Context()); tid != "" {
			attrs = append(attrs, "trace_id", tid)
		}
		if id := IdentityFromContext(r.Context()); id != nil {
			attrs = append(attrs, "tenant_id", id.TenantID, "user_id", id.UserID)
		}

		level := slog.LevelInfo
		if wrapped.statusCode >= 500 {
			level = slog.LevelError
		} else if wrapped.statusCode >= 400 {
			level = slog.LevelWarn
		}
		logger.Log(r.Context(), level, "http request", attrs...)
	})
}

type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

var (
	tracer    = otel.Tracer("lona/http")
	httpMeter = otel.GetMeterProvider().Meter("lona/http")
)

// tracingMiddleware creates an OTEL span for each HTTP request
// and records request count and duration metrics.
func tracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.url", r.URL.Path),
				attribute.String("http.request_id", RequestIDFromContext(r.Context())),
			),
		)
		defer span.End()

		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r.WithContext(ctx))

		duration := time.Since(start)
		span.SetAttributes(
			attribute.Int("http.status_code", wrapped.statusCode),
		)

		attrs := []attribute.KeyValue{
			attribute.String("http.method", r.Method),
			attribute.String("http.route", r.URL.Path),
			attribute.String("http.status_code", strconv.Itoa(wrapped.statusCode)),
		}
		if id := IdentityFromContext(ctx); id != nil {
			span.SetAttributes(attribute.String("lona.tenant_id", id.TenantID))
			attrs = append(attrs, attribute.String("lona.tenant_id", id.TenantID))
		}

		// Record metrics (best-effort, instruments lazily created).
		if counter, err := httpMeter.Int64Counter("http.server.request_count"); err == nil {
			counter.Add(ctx, 1, otelmetric.WithAttributes(attrs...))
		}
		if hist, err := httpMeter.Float64Histogram("http.server.duration",
			otelmetric.WithUnit("ms")); err == nil {
			hist.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(attrs...))
		}
	})
}

// traceIDFromContext extracts the OTEL trace ID from the context, if any.
func traceIDFromContext(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// authMiddleware resolves an identity from a bearer token or API key.
//
// A Bearer credential is tried as an HS256 token first; anything that fails
// token validation is treated as an API key and checked against the
// allowlist. X-API-Key is accepted as an alternative carrier. After
// resolution, a present-but-mismatched X-Tenant-Id or X-User-Id header is an
// identity mismatch; absent headers are fine.
func authMiddleware(jwtMgr *auth.JWTManager, allowlist *auth.KeyAllowlist, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		identity, ok := resolveIdentity(jwtMgr, allowlist, r)
		if !ok {
			writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized,
				"missing or invalid credentials")
			return
		}

		if hdr := r.Header.Get("X-Tenant-Id"); hdr != "" && hdr != identity.TenantID {
			writeError(w, r, http.StatusUnauthorized, model.ErrCodeIdentityMismatch,
				"X-Tenant-Id does not match the authenticated tenant")
			return
		}
		if hdr := r.Header.Get("X-User-Id"); hdr != "" && hdr != identity.UserID {
			writeError(w, r, http.StatusUnauthorized, model.ErrCodeIdentityMismatch,
				"X-User-Id does not match the authenticated user")
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyIdentity, &identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func resolveIdentity(jwtMgr *auth.JWTManager, allowlist *auth.KeyAllowlist, r *http.Request) (auth.Identity, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return auth.Identity{}, false
		}
		credential := strings.TrimSpace(parts[1])
		if identity, err := jwtMgr.ValidateToken(credential); err == nil {
			return identity, true
		}
		if allowlist.Verify(credential) {
			return auth.APIKeyIdentity(credential), true
		}
		return auth.Identity{}, false
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		if allowlist.Verify(key) {
			return auth.APIKeyIdentity(key), true
		}
	}
	return auth.Identity{}, false
}

// recoveryMiddleware converts panics into opaque 500 responses.
func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("panic recovered",
					"panic", rec,
					"path", r.URL.Path,
					"request_id", RequestIDFromContext(r.Context()),
					"stack", string(debug.Stack()))
				writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal,
					"an unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware throttles command endpoints per tenant. A nil limiter
// disables limiting; limiter errors fail open.
func rateLimitMiddleware(limiter ratelimit.Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + r.RemoteAddr
			if id := IdentityFromContext(r.Context()); id != nil {
				key = "tenant:" + id.TenantID
			}
			ok, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Error("rate limiter error", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				w.Header().Set("Retry-After", "1")
				writeError(w, r, http.StatusTooManyRequests, model.ErrCodeRateLimited,
					"rate limit exceeded, retry later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
