package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServer_DisabledRegistry(t *testing.T) {
	if IsEnabled() {
		t.Skip("registry already initialized")
	}
	s := NewServer(ServerConfig{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Nil(t, NewDumpDirMetrics())
}

func TestServer_Metrics(t *testing.T) {
	InitRegistry()
	s := NewServer(ServerConfig{Address: "127.0.0.1:0"})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
