package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/audionode/internal/auth"
	"github.com/smazurov/audionode/internal/logging"
)

// HTTPLoggingMiddleware logs HTTP requests with levels keyed to the
// response status.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	logger := logging.GetLogger("http")

	method := ctx.Method()
	path := ctx.URL().Path
	query := ctx.URL().RawQuery

	logAttrs := []slog.Attr{
		slog.String("method", method),
		slog.String("path", path),
		slog.String("remote_addr", ctx.RemoteAddr()),
	}
	if query != "" {
		logAttrs = append(logAttrs, slog.String("query", query))
	}
	if ua := ctx.Header("User-Agent"); ua != "" {
		logAttrs = append(logAttrs, slog.String("user_agent", ua))
	}

	next(ctx)

	status := ctx.Status()
	logAttrs = append(logAttrs,
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
	)

	message := "HTTP request completed"
	switch {
	case method == http.MethodOptions:
		logger.LogAttrs(ctx.Context(), slog.LevelDebug, message, logAttrs...)
	case status >= 500:
		logger.LogAttrs(ctx.Context(), slog.LevelError, message, logAttrs...)
	case status >= 400:
		logger.LogAttrs(ctx.Context(), slog.LevelWarn, message, logAttrs...)
	default:
		logger.LogAttrs(ctx.Context(), slog.LevelInfo, message, logAttrs...)
	}
}

// authMiddleware accepts either basic credentials or a bearer token
// issued by /api/auth/token. Operations declaring no security
// requirements pass through.
func (s *Server) authMiddleware() func(huma.Context, func(huma.Context)) {
	svc := s.options.Auth
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op != nil && op.Security != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		header := ctx.Header("Authorization")
		if header == "" {
			// SSE clients can't set headers; accept the token as a
			// query parameter there.
			if tok := ctx.Query("token"); tok != "" {
				header = "Bearer " + tok
			}
		}

		var err error
		switch {
		case strings.HasPrefix(header, "Bearer "):
			err = svc.VerifyBearer(header)
		case strings.HasPrefix(header, "Basic "):
			var username, password string
			username, password, err = auth.DecodeBasic(header)
			if err == nil {
				err = svc.CheckCredentials(username, password)
			}
		default:
			err = auth.ErrBadCredentials
		}

		if err != nil {
			ctx.SetHeader("WWW-Authenticate", `Basic realm="Audionode API"`)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Authentication required")
			return
		}
		next(ctx)
	}
}
