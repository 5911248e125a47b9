package httpserver

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/psabridge/internal/config"
)

type fakeReadiness struct {
	lastRefresh time.Time
	err         error
}

func (f *fakeReadiness) LastRefresh() (time.Time, error) {
	return f.lastRefresh, f.err
}

func newTestServer(t *testing.T, readiness Readiness) *Server {
	t.Helper()
	mcpHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("mcp"))
	})

	srv, err := NewServer(config.ServerConfig{
		HTTPPort:        0,
		ShutdownTimeout: config.Duration(time.Second),
	}, mcpHandler, readiness, zap.NewNop())
	require.NoError(t, err)
	return srv
}

func TestNewServerRequiresDeps(t *testing.T) {
	_, err := NewServer(config.ServerConfig{}, nil, &fakeReadiness{}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewServer(config.ServerConfig{}, http.NewServeMux(), nil, zap.NewNop())
	assert.Error(t, err)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeReadiness{})

	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"service":"psabridge"`)
}

func TestReadyEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		readiness  *fakeReadiness
		wantCode   int
		wantStatus string
	}{
		{
			name:       "never refreshed",
			readiness:  &fakeReadiness{},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "initializing",
		},
		{
			name:       "healthy",
			readiness:  &fakeReadiness{lastRefresh: time.Now()},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name: "stale but serving",
			readiness: &fakeReadiness{
				lastRefresh: time.Now().Add(-time.Hour),
				err:         errors.New("fetch resources: timeout"),
			},
			wantCode:   http.StatusOK,
			wantStatus: "degraded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.readiness)

			rec := httptest.NewRecorder()
			srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantStatus)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeReadiness{})

	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMCPEndpointMounted(t *testing.T) {
	srv := newTestServer(t, &fakeReadiness{})

	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mcp", rec.Body.String())
}

func TestRequestIDAssigned(t *testing.T) {
	srv := newTestServer(t, &fakeReadiness{})

	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.NotEmpty(t, rec.Header().Get(echoRequestIDHeader))
}

const echoRequestIDHeader = "X-Request-Id"
