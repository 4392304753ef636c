package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/breatheroute/pacekeeper/internal/api/models"
	"github.com/breatheroute/pacekeeper/internal/auth"
)

// AccessTokenQueryParam carries the bearer token on websocket upgrades,
// where browsers cannot set an Authorization header.
const AccessTokenQueryParam = "access_token"

type runnerIDKey struct{}

// Auth creates authentication middleware that validates JWT bearer tokens
// and stores the runner id in the request context.
func Auth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, detail := bearerToken(r)
			if tokenString == "" {
				writeUnauthorized(w, r, detail)
				return
			}

			claims, err := jwtService.ValidateAccessToken(tokenString)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrAccessTokenExpired):
					writeUnauthorized(w, r, "access token has expired")
				case errors.Is(err, auth.ErrInvalidAccessToken):
					writeUnauthorized(w, r, "invalid access token")
				default:
					writeUnauthorized(w, r, "authentication failed")
				}
				return
			}

			ctx := WithRunnerID(r.Context(), claims.RunnerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from the Authorization header, or from the
// access_token query parameter on websocket upgrades. When no token is found
// it returns a reason for the 401.
func bearerToken(r *http.Request) (string, string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if isWebsocketUpgrade(r) {
			if token := r.URL.Query().Get(AccessTokenQueryParam); token != "" {
				return token, ""
			}
		}
		return "", "missing authorization header"
	}

	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", "invalid authorization header format"
	}

	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", "missing bearer token"
	}
	return token, ""
}

func isWebsocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// writeUnauthorized writes the 401 problem directly; the response package
// imports middleware.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	problem := models.NewUnauthorized(GetRequestID(r.Context()), detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// WithRunnerID returns a copy of ctx carrying the authenticated runner id.
func WithRunnerID(ctx context.Context, runnerID string) context.Context {
	return context.WithValue(ctx, runnerIDKey{}, runnerID)
}

// GetRunnerID retrieves the authenticated runner ID from the context.
// Returns an empty string if not authenticated.
func GetRunnerID(ctx context.Context) string {
	if id, ok := ctx.Value(runnerIDKey{}).(string); ok {
		return id
	}
	return ""
}
