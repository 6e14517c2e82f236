package http

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	stdhttp "net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

const (
	requestIDHeader    = "X-Request-ID"
	rateLimitMessage   = "Too many quiz requests. Please wait a moment and try again."
	panicMessage       = "Something went wrong while handling this request."
	problemContentType = "application/problem+json"
	healthPath         = "/healthz"
	sentryFlushTimeout = 2 * time.Second
)

type contextKey string

const requestIDContextKey contextKey = "wikiquiz/request-id"

// RequestIDFromContext returns the request identifier assigned by the server, if any.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

// requestIDMiddleware keeps a caller-supplied UUID and mints one otherwise.
func (s *Server) requestIDMiddleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		id := strings.TrimSpace(ctx.Header(requestIDHeader))
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}

		goCtx := context.WithValue(ctx.Context(), requestIDContextKey, id)
		if hub := sentry.GetHubFromContext(goCtx); hub != nil {
			hub.Scope().SetTag("request_id", id)
		}

		ctx.SetHeader(requestIDHeader, id)
		next(huma.WithContext(ctx, goCtx))
	}
}

func (s *Server) rateLimitMiddleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if s.rateLimiter == nil || routeOf(ctx) == healthPath {
			next(ctx)
			return
		}

		req, _ := humago.Unwrap(ctx)
		client := clientIPFromRequest(req)
		allowed, wait := s.rateLimiter.Allow(client)
		if allowed {
			next(ctx)
			return
		}

		if s.logger != nil {
			s.logger.WithFields(s.requestFields(ctx, logrus.Fields{
				"client_ip": client,
				"wait_ms":   wait.Milliseconds(),
			})).Warn("request rate limited")
		}

		ctx.SetHeader("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
		s.writeProblem(ctx, stdhttp.StatusTooManyRequests, rateLimitMessage)
	}
}

func (s *Server) loggingMiddleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if s.logger == nil {
			next(ctx)
			return
		}

		start := time.Now()
		next(ctx)

		status := ctx.Status()
		if status == 0 {
			status = stdhttp.StatusOK
		}

		fields := logrus.Fields{
			"method":      ctx.Method(),
			"route":       routeOf(ctx),
			"status":      status,
			"duration_ms": float64(time.Since(start).Microseconds()) / 1000,
		}
		if req, _ := humago.Unwrap(ctx); req != nil {
			fields["path"] = req.URL.Path
			fields["client_ip"] = clientIPFromRequest(req)
		}

		entry := s.logger.WithFields(s.requestFields(ctx, fields))
		switch {
		case status >= 500:
			entry.Error("request failed")
		case status >= 400:
			entry.Warn("request rejected")
		default:
			entry.Info("request completed")
		}
	}
}

// recoveryMiddleware answers API routes with a problem document and page routes with the error view.
func (s *Server) recoveryMiddleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			err, ok := rec.(error)
			if !ok {
				err = fmt.Errorf("panic: %v", rec)
			}
			s.recordError(ctx.Context(), eris.Wrap(err, "panic recovered"), "panic recovered", logrus.Fields{"route": routeOf(ctx)})

			if strings.HasPrefix(routeOf(ctx), "/api/") {
				s.writeProblem(ctx, stdhttp.StatusInternalServerError, panicMessage)
				return
			}

			resp, renderErr := s.renderErrorResponse(ctx.Context(), stdhttp.StatusInternalServerError, panicMessage)
			if renderErr != nil || resp == nil {
				s.writeProblem(ctx, stdhttp.StatusInternalServerError, panicMessage)
				return
			}
			ctx.SetHeader("Content-Type", resp.ContentType)
			ctx.SetStatus(resp.Status)
			_, _ = ctx.BodyWriter().Write(resp.Body)
		}()

		next(ctx)
	}
}

func (s *Server) sentryMiddleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if s.sentry == nil {
			next(ctx)
			return
		}

		hub := s.sentry.Clone()
		hub.Scope().SetTags(map[string]string{
			"http.method": ctx.Method(),
			"http.route":  routeOf(ctx),
		})
		defer hub.Flush(sentryFlushTimeout)

		next(huma.WithContext(ctx, sentry.SetHubOnContext(ctx.Context(), hub)))
	}
}

func (s *Server) writeProblem(ctx huma.Context, status int, detail string) {
	body, err := json.Marshal(&huma.ErrorModel{
		Title:  stdhttp.StatusText(status),
		Status: status,
		Detail: detail,
	})
	if err != nil {
		s.recordError(ctx.Context(), err, "encoding problem response", nil)
	}

	ctx.SetHeader("Content-Type", problemContentType)
	ctx.SetStatus(status)
	if len(body) > 0 {
		_, _ = ctx.BodyWriter().Write(body)
	}
}

func (s *Server) requestFields(ctx huma.Context, fields logrus.Fields) logrus.Fields {
	if id := RequestIDFromContext(ctx.Context()); id != "" {
		fields["request_id"] = id
	}
	return fields
}

func routeOf(ctx huma.Context) string {
	if op := ctx.Operation(); op != nil {
		return op.Path
	}
	return ""
}

func retryAfterSeconds(wait time.Duration) int {
	return max(int(math.Ceil(wait.Seconds())), 1)
}

// clientIPFromRequest prefers proxy headers over the socket address.
func clientIPFromRequest(req *stdhttp.Request) string {
	if req == nil {
		return ""
	}

	if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if candidate := strings.TrimSpace(first); candidate != "" {
			return candidate
		}
	}
	if realIP := strings.TrimSpace(req.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}
