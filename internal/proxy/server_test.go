package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gemini-shim/internal/config"
	"gemini-shim/internal/services"
	"gemini-shim/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func newTestRelay(t *testing.T, upstreamURL, apiKey string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	t.Setenv("UPSTREAM_BASE_URL", upstreamURL)
	t.Setenv("UPSTREAM_API_KEY", apiKey)
	t.Setenv("AUTH_KEY", "test-key")
	t.Setenv("DATABASE_DSN", "")

	cm, err := config.NewManager()
	require.NoError(t, err)

	logService := services.NewRequestLogService(nil, cm)
	ps := NewProxyServer(cm, &http.Client{}, logService)

	router := gin.New()
	router.Any("/v1/*path", ps.HandleProxy)
	return router
}

func TestHandleProxy_RelaysRequest(t *testing.T) {
	var (
		gotMethod string
		gotPath   string
		gotQuery  string
		gotAuth   string
		gotProxy  string
		gotCustom string
		gotBody   []byte
	)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		gotProxy = r.Header.Get("Proxy-Authorization")
		gotCustom = r.Header.Get("X-Custom")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Upstream", "yes")
		w.Write([]byte(`{"id":"chatcmpl-1"}`))
	}))
	defer upstream.Close()

	router := newTestRelay(t, upstream.URL, "sk-upstream")

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions?beta=1", strings.NewReader(`{"model":"gemini-pro"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer client-key")
	req.Header.Set("Proxy-Authorization", "Basic abc")
	req.Header.Set("X-Custom", "kept")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/v1/chat/completions", gotPath)
	assert.Equal(t, "beta=1", gotQuery)
	assert.Equal(t, `{"model":"gemini-pro"}`, string(gotBody))

	// Upstream credential replaces the client's, hop headers are dropped,
	// end-to-end headers survive.
	assert.Equal(t, "Bearer sk-upstream", gotAuth)
	assert.Empty(t, gotProxy)
	assert.Equal(t, "kept", gotCustom)

	assert.Equal(t, "yes", w.Header().Get("X-Upstream"))
	assert.Equal(t, `{"id":"chatcmpl-1"}`, w.Body.String())
}

func TestHandleProxy_KeepsClientAuthWithoutUpstreamKey(t *testing.T) {
	var gotAuth string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	router := newTestRelay(t, upstream.URL, "")

	req := httptest.NewRequest(http.MethodPost, "/v1/models", nil)
	req.Header.Set("Authorization", "Bearer client-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "Bearer client-key", gotAuth)
}

func TestHandleProxy_UpstreamUnreachable(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	upstream.Close()

	router := newTestRelay(t, upstream.URL, "")

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "BAD_GATEWAY", gjson.Get(w.Body.String(), "code").String())
}

func TestHandleProxy_PreservesUpstreamStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer upstream.Close()

	router := newTestRelay(t, upstream.URL, "")

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate limited")
}

func TestHandleProxy_StreamsSSEVerbatim(t *testing.T) {
	stream := "data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\ndata: [DONE]\n\n"
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(stream))
	}))
	defer upstream.Close()

	router := newTestRelay(t, upstream.URL, "")

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"stream":true}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, stream, w.Body.String())
}

func TestBuildUpstreamRequest_JoinsPath(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ps := &ProxyServer{upstream: types.UpstreamConfig{BaseURL: "https://gateway.example.com"}}

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/v1/models?page=2", nil)

	req, err := ps.buildUpstreamRequest(c, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://gateway.example.com/v1/models?page=2", req.URL.String())
	assert.Equal(t, "gateway.example.com", req.Host)
}
