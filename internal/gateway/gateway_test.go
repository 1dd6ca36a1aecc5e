package gateway

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agency-studio/content-pipeline/internal/config"
)

func setupGateway(handlerURL string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{Role: "gateway", HandlerURL: handlerURL, LLMTimeout: time.Second}
	gw := NewGateway(cfg, zap.NewNop())

	router := gin.New()
	router.GET("/health", gw.HealthCheck)
	gw.RegisterRoutes(router.Group("/api/v1"))
	return router
}

func TestGateway_ProxiesResourceRoutes(t *testing.T) {
	type seen struct {
		method, path, query, body, contentType string
	}
	var got seen
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = seen{r.Method, r.URL.Path, r.URL.RawQuery, string(body), r.Header.Get("Content-Type")}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Request-Id", "req-1")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"a1"}}`))
	}))
	defer upstream.Close()

	router := setupGateway(upstream.URL)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/assets/asset-1/annotations?x=1", strings.NewReader(`{"x":10,"y":20,"text":"hi"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"data":{"id":"a1"}}`, w.Body.String())
	assert.Equal(t, "req-1", w.Header().Get("X-Request-Id"))
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/api/v1/assets/asset-1/annotations", got.path)
	assert.Equal(t, "x=1", got.query)
	assert.Equal(t, `{"x":10,"y":20,"text":"hi"}`, got.body)
	assert.Equal(t, "application/json", got.contentType)
}

func TestGateway_ForwardsEveryResource(t *testing.T) {
	var paths []string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	router := setupGateway(upstream.URL)
	for _, p := range []string{
		"/api/v1/pipelines",
		"/api/v1/pipelines/p1/generate",
		"/api/v1/annotations/a1/resolve",
		"/api/v1/content-items/calendar",
		"/api/v1/channels/instagram/best-times",
	} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, p, nil))
		require.Equal(t, http.StatusOK, w.Code, p)
	}

	assert.Len(t, paths, 5)
}

func TestGateway_UpstreamDown(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := upstream.URL
	upstream.Close()

	router := setupGateway(url)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/content-items", nil))

	assert.Contains(t, []int{http.StatusServiceUnavailable, http.StatusBadGateway}, w.Code)
}

func TestGateway_HealthCheck(t *testing.T) {
	router := setupGateway("http://localhost:1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"gateway"`)
}
