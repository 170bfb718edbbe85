package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	app_errors "gemini-shim/internal/errors"
	"gemini-shim/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuthRouter(key string) *gin.Engine {
	router := gin.New()
	router.Use(Auth(types.AuthConfig{Key: key}))
	router.GET("/api/logs", func(c *gin.Context) { c.String(200, "ok") })
	router.GET("/health", func(c *gin.Context) { c.String(200, "healthy") })
	return router
}

func TestAuth(t *testing.T) {
	tests := []struct {
		name       string
		configKey  string
		path       string
		setup      func(*http.Request)
		wantStatus int
	}{
		{
			name:       "bearer token accepted",
			configKey:  "secret",
			path:       "/api/logs",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer secret") },
			wantStatus: 200,
		},
		{
			name:       "x-api-key accepted",
			configKey:  "secret",
			path:       "/api/logs",
			setup:      func(r *http.Request) { r.Header.Set("X-Api-Key", "secret") },
			wantStatus: 200,
		},
		{
			name:       "query key accepted",
			configKey:  "secret",
			path:       "/api/logs?key=secret",
			setup:      func(r *http.Request) {},
			wantStatus: 200,
		},
		{
			name:       "wrong key rejected",
			configKey:  "secret",
			path:       "/api/logs",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer wrong") },
			wantStatus: 401,
		},
		{
			name:       "missing key rejected",
			configKey:  "secret",
			path:       "/api/logs",
			setup:      func(r *http.Request) {},
			wantStatus: 401,
		},
		{
			name:       "open when no key configured",
			configKey:  "",
			path:       "/api/logs",
			setup:      func(r *http.Request) {},
			wantStatus: 200,
		},
		{
			name:       "health bypasses auth",
			configKey:  "secret",
			path:       "/health",
			setup:      func(r *http.Request) {},
			wantStatus: 200,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newAuthRouter(tt.configKey)
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestAuth_QueryKeyStrippedFromURL(t *testing.T) {
	var seenQuery string
	router := gin.New()
	router.Use(Auth(types.AuthConfig{Key: "secret"}))
	router.GET("/api/logs", func(c *gin.Context) {
		seenQuery = c.Request.URL.RawQuery
		c.String(200, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/logs?key=secret&page=2", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "page=2", seenQuery)
}

func newCORSRouter(cfg types.CORSConfig) *gin.Engine {
	router := gin.New()
	router.Use(CORS(cfg))
	router.GET("/api/settings", func(c *gin.Context) { c.String(200, "ok") })
	return router
}

func TestCORS(t *testing.T) {
	cfg := types.CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"https://app.example.com"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}

	t.Run("allowed origin", func(t *testing.T) {
		router := newCORSRouter(cfg)
		req := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
		req.Header.Set("Origin", "https://app.example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "GET, POST", w.Header().Get("Access-Control-Allow-Methods"))
	})

	t.Run("disallowed origin gets no headers", func(t *testing.T) {
		router := newCORSRouter(cfg)
		req := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight short-circuits", func(t *testing.T) {
		router := newCORSRouter(cfg)
		req := httptest.NewRequest(http.MethodOptions, "/api/settings", nil)
		req.Header.Set("Origin", "https://app.example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, 204, w.Code)
		assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("wildcard without credentials", func(t *testing.T) {
		router := newCORSRouter(types.CORSConfig{
			Enabled:        true,
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET"},
		})
		req := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
		req.Header.Set("Origin", "https://anywhere.example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("disabled is transparent", func(t *testing.T) {
		router := newCORSRouter(types.CORSConfig{Enabled: false})
		req := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
		req.Header.Set("Origin", "https://app.example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, 200, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestErrorHandler(t *testing.T) {
	t.Run("api error rendered", func(t *testing.T) {
		router := gin.New()
		router.Use(ErrorHandler())
		router.GET("/boom", func(c *gin.Context) {
			c.Error(app_errors.ErrResourceNotFound)
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "NOT_FOUND")
	})

	t.Run("unknown error becomes 500", func(t *testing.T) {
		router := gin.New()
		router.Use(ErrorHandler())
		router.GET("/boom", func(c *gin.Context) {
			c.Error(assert.AnError)
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "INTERNAL_SERVER_ERROR")
	})
}

func TestRecovery(t *testing.T) {
	router := gin.New()
	router.Use(Recovery())
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_SERVER_ERROR")
}
