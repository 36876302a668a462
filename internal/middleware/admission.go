package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	"github.com/BradenHooton/gatekeeper/internal/models"
	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
)

// RequestChecker decides whether a request may reach any handler
type RequestChecker interface {
	CheckRequest(ctx context.Context, identity models.Identity, path string) models.Decision
}

// Admission resolves the client identity once, stores it in the request
// context and turns away identities the checker denies.
func Admission(checker RequestChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			meta := models.RequestMeta{
				Identity:  pkghttp.ResolveIdentity(r),
				UserAgent: r.UserAgent(),
				Path:      r.URL.Path,
			}
			ctx := auth.WithRequestMeta(r.Context(), meta)

			decision := checker.CheckRequest(ctx, meta.Identity, meta.Path)
			if !decision.Allowed {
				logger.Debug("request denied",
					slog.String("identity", meta.Identity.String()),
					slog.String("path", meta.Path),
					slog.String("reason", string(decision.Reason)))
				pkghttp.WriteAccessDenied(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
