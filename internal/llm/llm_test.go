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

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labsync/labsync/internal/cache"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain object", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", "Here you go: {\"a\":{\"b\":2}} hope it helps", `{"a":{"b":2}}`},
		{"greedy span", `{"a":1} and {"b":2}`, `{"a":1} and {"b":2}`},
		{"no braces", "  not json  ", "not json"},
		{"trailing comma", `{"a":[1,2,],}`, `{"a":[1,2]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.in))
		})
	}
}

func TestAPIErrorCarriesStatus(t *testing.T) {
	var err error = &APIError{Code: 429, Status: "RESOURCE_EXHAUSTED", Message: "quota"}
	var sc interface{ StatusCode() int }
	require.True(t, errors.As(err, &sc))
	assert.Equal(t, 429, sc.StatusCode())
	assert.Contains(t, err.Error(), "RESOURCE_EXHAUSTED")
}

func TestKeyManagerRotatesAndSkipsPlaceholders(t *testing.T) {
	m, err := NewKeyManager([]string{"key-a", "", "YOUR_GEMINI_KEY", "key-b", "key-a"}, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())

	assert.Equal(t, "key-a", m.Next())
	assert.Equal(t, "key-b", m.Next())
	assert.Equal(t, "key-a", m.Next())
}

func TestKeyManagerDisablesFailingKey(t *testing.T) {
	m, err := NewKeyManager([]string{"key-a", "key-b"}, 2)
	require.NoError(t, err)

	m.ReportError("key-a")
	assert.Equal(t, 2, m.Available())
	m.ReportError("key-a")
	assert.Equal(t, 1, m.Available())

	for i := 0; i < 3; i++ {
		assert.Equal(t, "key-b", m.Next())
	}

	m.ReportSuccess("key-a")
	assert.Equal(t, 2, m.Available())
}

func TestKeyManagerResetsWhenAllDisabled(t *testing.T) {
	m, err := NewKeyManager([]string{"only"}, 1)
	require.NoError(t, err)

	m.ReportError("only")
	assert.Equal(t, 0, m.Available())
	assert.Equal(t, "only", m.Next())
	assert.Equal(t, 1, m.Available())
}

func TestNewKeyManagerWithoutKeys(t *testing.T) {
	_, err := NewKeyManager([]string{"", "YOUR_API_KEY"}, 3)
	assert.ErrorIs(t, err, ErrNoAPIKeys)
}

func newGeminiTestServer(t *testing.T, handler http.HandlerFunc) *Gemini {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	g, err := NewGemini(context.Background(), GeminiConfig{
		APIKeys: []string{"test-key"},
		Model:   "gemini-test",
		Timeout: 5 * time.Second,
		BaseURL: srv.URL,
	})
	require.NoError(t, err)
	return g
}

func TestGeminiGenerate(t *testing.T) {
	var gotPath, gotBody string
	g := newGeminiTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"project_name\":\"Atlas\"}"}]}}]}`))
	})

	text, err := g.Generate(context.Background(), "extract this")
	require.NoError(t, err)
	assert.Equal(t, `{"project_name":"Atlas"}`, text)
	assert.Contains(t, gotPath, "gemini-test:generateContent")
	assert.Contains(t, gotBody, "extract this")
}

func TestGeminiGenerateConvertsQuotaError(t *testing.T) {
	g := newGeminiTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"Quota exceeded. Please retry in 7s.","status":"RESOURCE_EXHAUSTED"}}`))
	})

	_, err := g.Generate(context.Background(), "prompt")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 429, apiErr.Code)
	assert.Contains(t, apiErr.Message, "retry in 7s")
	assert.Equal(t, 1, g.keys.keys[0].errors)
}

type countingGenerator struct {
	calls atomic.Int32
	reply string
}

func (c *countingGenerator) Generate(context.Context, string) (string, error) {
	c.calls.Add(1)
	return c.reply, nil
}

func newMiniredisCache(t *testing.T) cache.Cache {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewCache(client, 0)
}

func TestCachedGeneratorReusesJSONResponses(t *testing.T) {
	inner := &countingGenerator{reply: "```json\n{\"ok\":true}\n```"}
	g := NewCachedGenerator(inner, newMiniredisCache(t), "test", time.Hour)

	for i := 0; i < 3; i++ {
		text, err := g.Generate(context.Background(), "same prompt")
		require.NoError(t, err)
		assert.Equal(t, inner.reply, text)
	}
	assert.Equal(t, int32(1), inner.calls.Load())

	_, err := g.Generate(context.Background(), "other prompt")
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestCachedGeneratorSkipsNonJSON(t *testing.T) {
	inner := &countingGenerator{reply: "sorry, I cannot help with that"}
	g := NewCachedGenerator(inner, newMiniredisCache(t), "test", time.Hour)

	for i := 0; i < 2; i++ {
		_, err := g.Generate(context.Background(), "prompt")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestGeneratorFunc(t *testing.T) {
	g := GeneratorFunc(func(_ context.Context, prompt string) (string, error) {
		return strings.ToUpper(prompt), nil
	})
	out, err := g.Generate(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "HI", out)

	var decoded map[string]bool
	require.NoError(t, json.Unmarshal([]byte(ExtractJSON("x {\"ok\":true} y")), &decoded))
	assert.True(t, decoded["ok"])
}
