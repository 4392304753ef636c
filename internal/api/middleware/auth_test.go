package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/pacekeeper/internal/api/middleware"
	"github.com/breatheroute/pacekeeper/internal/api/models"
	"github.com/breatheroute/pacekeeper/internal/auth"
)

func newTestJWTService(clock func() time.Time) *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{
		SigningKey: "test-secret-key-for-testing-only",
		Issuer:     "https://pacekeeper.example",
		Audience:   "pacekeeper-api",
		Clock:      clock,
	})
}

func runnerEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(middleware.GetRunnerID(r.Context())))
	})
}

func TestAuth(t *testing.T) {
	svc := newTestJWTService(nil)
	token, _, err := svc.GenerateAccessToken("rnr_abc")
	require.NoError(t, err)

	past := func() time.Time { return time.Now().Add(-24 * time.Hour) }
	expired, _, err := newTestJWTService(past).GenerateAccessToken("rnr_abc")
	require.NoError(t, err)

	tests := []struct {
		name       string
		target     string
		headers    map[string]string
		wantStatus int
		wantBody   string
		wantDetail string
	}{
		{
			name:       "valid bearer token",
			target:     "/v1/runs",
			headers:    map[string]string{"Authorization": "Bearer " + token},
			wantStatus: http.StatusOK,
			wantBody:   "rnr_abc",
		},
		{
			name:       "lowercase scheme",
			target:     "/v1/runs",
			headers:    map[string]string{"Authorization": "bearer " + token},
			wantStatus: http.StatusOK,
			wantBody:   "rnr_abc",
		},
		{
			name:       "missing header",
			target:     "/v1/runs",
			wantStatus: http.StatusUnauthorized,
			wantDetail: "missing authorization header",
		},
		{
			name:       "basic auth",
			target:     "/v1/runs",
			headers:    map[string]string{"Authorization": "Basic dXNlcjpwYXNz"},
			wantStatus: http.StatusUnauthorized,
			wantDetail: "invalid authorization header format",
		},
		{
			name:       "empty bearer",
			target:     "/v1/runs",
			headers:    map[string]string{"Authorization": "Bearer    "},
			wantStatus: http.StatusUnauthorized,
			wantDetail: "missing bearer token",
		},
		{
			name:       "garbage token",
			target:     "/v1/runs",
			headers:    map[string]string{"Authorization": "Bearer not-a-jwt"},
			wantStatus: http.StatusUnauthorized,
			wantDetail: "invalid access token",
		},
		{
			name:       "expired token",
			target:     "/v1/runs",
			headers:    map[string]string{"Authorization": "Bearer " + expired},
			wantStatus: http.StatusUnauthorized,
			wantDetail: "access token has expired",
		},
		{
			name:       "query token on websocket upgrade",
			target:     "/v1/runs/run_1/stream?access_token=" + token,
			headers:    map[string]string{"Upgrade": "websocket", "Connection": "Upgrade"},
			wantStatus: http.StatusOK,
			wantBody:   "rnr_abc",
		},
		{
			name:       "query token on plain request",
			target:     "/v1/runs?access_token=" + token,
			wantStatus: http.StatusUnauthorized,
			wantDetail: "missing authorization header",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, http.NoBody)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()

			middleware.Auth(svc)(runnerEcho()).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantBody, w.Body.String())
				return
			}

			var problem models.Problem
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
			assert.Equal(t, models.ProblemTypeUnauthorized, problem.Type)
			assert.Equal(t, tt.wantDetail, problem.Detail)
			assert.Equal(t, req.URL.Path, problem.Instance)
		})
	}
}

func TestGetRunnerID_Unauthenticated(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	assert.Empty(t, middleware.GetRunnerID(req.Context()))

	ctx := middleware.WithRunnerID(req.Context(), "rnr_1")
	assert.Equal(t, "rnr_1", middleware.GetRunnerID(ctx))
}
