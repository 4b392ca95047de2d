/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/labsync/labsync/config"
	"github.com/stretchr/testify/assert"
)

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	ok := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) }
	r.GET("/budgets", ok)
	r.GET("/health", ok)
	return r
}

func TestSecretKeyAuthMiddleware(t *testing.T) {
	tests := []struct {
		name         string
		secret       string
		path         string
		header       string
		expectedCode int
		expectedBody string
	}{
		{
			name:         "Valid key",
			secret:       "s3cret",
			path:         "/budgets",
			header:       "s3cret",
			expectedCode: http.StatusOK,
		},
		{
			name:         "Missing key",
			secret:       "s3cret",
			path:         "/budgets",
			expectedCode: http.StatusUnauthorized,
			expectedBody: "Missing secret key",
		},
		{
			name:         "Wrong key",
			secret:       "s3cret",
			path:         "/budgets",
			header:       "guess",
			expectedCode: http.StatusUnauthorized,
			expectedBody: "Invalid secret key",
		},
		{
			name:         "Public path",
			secret:       "s3cret",
			path:         "/health",
			expectedCode: http.StatusOK,
		},
		{
			name:         "Secret not configured",
			path:         "/budgets",
			header:       "anything",
			expectedCode: http.StatusInternalServerError,
			expectedBody: "Secret key is not configured",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(SecretKeyAuthMiddleware(tt.secret, "/health"))
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set(SecretKeyHeader, tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedCode, w.Code)
			if tt.expectedBody != "" {
				assert.Contains(t, w.Body.String(), tt.expectedBody)
			}
		})
	}
}

func limitedConfig(rps float64, burst int) config.RateLimitConfig {
	cleanup := 60
	return config.RateLimitConfig{
		RequestsPerSecond:  &rps,
		Burst:              &burst,
		CleanupIntervalSec: &cleanup,
	}
}

func get(router *gin.Engine, path, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("disabled without settings", func(t *testing.T) {
		router := newRouter(RateLimitMiddleware(config.RateLimitConfig{}))
		for i := 0; i < 5; i++ {
			assert.Equal(t, http.StatusOK, get(router, "/budgets", "").Code)
		}
	})

	t.Run("rejects requests over the burst", func(t *testing.T) {
		router := newRouter(RateLimitMiddleware(limitedConfig(1, 1)))

		assert.Equal(t, http.StatusOK, get(router, "/budgets", "").Code)

		w := get(router, "/budgets", "")
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, w.Body.String(), "Too many requests")
		assert.Equal(t, "1", w.Header().Get("Retry-After"))
	})

	t.Run("limits each client separately", func(t *testing.T) {
		router := newRouter(RateLimitMiddleware(limitedConfig(1, 1)))

		assert.Equal(t, http.StatusOK, get(router, "/budgets", "10.0.0.1:1234").Code)
		assert.Equal(t, http.StatusTooManyRequests, get(router, "/budgets", "10.0.0.1:1234").Code)
		assert.Equal(t, http.StatusOK, get(router, "/budgets", "10.0.0.2:1234").Code)
	})

	t.Run("exempt paths are not limited", func(t *testing.T) {
		router := newRouter(RateLimitMiddleware(limitedConfig(1, 1), "/health"))

		for i := 0; i < 5; i++ {
			assert.Equal(t, http.StatusOK, get(router, "/health", "149.154.167.1:443").Code)
		}
		assert.Equal(t, http.StatusOK, get(router, "/budgets", "149.154.167.1:443").Code)
		assert.Equal(t, http.StatusTooManyRequests, get(router, "/budgets", "149.154.167.1:443").Code)
	})
}
