package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/harhit22/new-auto-attendace/internal/config"
	"github.com/harhit22/new-auto-attendace/internal/enroll"
	"github.com/harhit22/new-auto-attendace/internal/face"
	"github.com/harhit22/new-auto-attendace/internal/metrics"
	"github.com/harhit22/new-auto-attendace/internal/store"
	"github.com/harhit22/new-auto-attendace/internal/verify"
	"github.com/harhit22/new-auto-attendace/internal/web/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopPipeline struct{}

func (noopPipeline) Verify(context.Context, verify.Request) face.VerificationResult {
	return face.VerificationResult{}
}

type noopEnroller struct{}

func (noopEnroller) Enroll(context.Context, enroll.Request, enroll.ProgressFunc) (enroll.Report, error) {
	return enroll.Report{}, nil
}

type noopStore struct{}

func (noopStore) Delete(context.Context, string) (bool, error) { return false, nil }

func newTestServer(t *testing.T, keys []string) *Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.ObserveVerification("identity", true)

	return NewServer(config.ServerConfig{Addr: ":0", APIKeys: keys}, Deps{
		Pipeline:   noopPipeline{},
		Enroller:   noopEnroller{},
		Identities: noopStore{},
		Gallery:    store.NewGallery(),
		Gatherer:   reg,
	}, nil)
}

func TestServer_Routes(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/v1/health", http.StatusOK},
		{http.MethodGet, "/api/v1/identities", http.StatusOK},
		{http.MethodDelete, "/api/v1/identities/e1", http.StatusNotFound},
		{http.MethodPost, "/api/v1/verify", http.StatusBadRequest},
		{http.MethodPost, "/api/v1/identify", http.StatusBadRequest},
		{http.MethodPost, "/api/v1/identities/e1/enroll", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/verify", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Router().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, rec.Code)
			assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
		})
	}
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `faceverify_verifications_total{gate="none",outcome="accepted"} 1`)
}

func TestServer_APIKey(t *testing.T) {
	s := newTestServer(t, []string{"secret"})

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/identities", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/identities", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health stays open")
}
