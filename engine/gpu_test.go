package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGPUTestServer(t *testing.T, bufferBytes int64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/capabilities", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(gpuCapabilitiesResponse{MaxStorageBufferBindingSize: bufferBytes})
	})
	mux.HandleFunc("/v1/models/load", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(struct{}{})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(gpuGenerateResponse{Content: "hello from gpu"})
	})
	return httptest.NewServer(mux)
}

func TestGPUEngineInitializeClassifiesTier(t *testing.T) {
	srv := newGPUTestServer(t, int64(3*(1<<30)))
	defer srv.Close()

	e := NewGPUEngine(srv.URL)
	require.NoError(t, e.Initialize(context.Background(), "chat-model", nil))
	require.True(t, e.IsReady())
	assert.Equal(t, TierDiscrete, e.Capabilities().Tier)
}

func TestGPUEngineInitializeIdempotent(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/capabilities", func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(gpuCapabilitiesResponse{MaxStorageBufferBindingSize: 1 << 30})
	})
	mux.HandleFunc("/v1/models/load", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(struct{}{})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := NewGPUEngine(srv.URL)
	ctx := context.Background()
	require.NoError(t, e.Initialize(ctx, "m", nil))
	require.NoError(t, e.Initialize(ctx, "m", nil))
	assert.Equal(t, 1, calls, "expected exactly 1 capability probe")
}

func TestGPUEngineEmbeddingUnsupported(t *testing.T) {
	srv := newGPUTestServer(t, 1<<30)
	defer srv.Close()

	e := NewGPUEngine(srv.URL)
	e.Initialize(context.Background(), "m", nil)

	_, err := e.GenerateEmbedding(context.Background(), "text")
	require.ErrorIs(t, err, ErrEmbeddingUnsupported)

	_, err = e.GenerateEmbeddingsBatch(context.Background(), []string{"a"}, 2, nil)
	require.ErrorIs(t, err, ErrEmbeddingUnsupported)
}

func TestGPUEngineGenerateTextRequiresReady(t *testing.T) {
	e := NewGPUEngine("http://unused")
	_, err := e.GenerateText(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, GenerateOptions{})
	require.ErrorIs(t, err, ErrModelNotLoaded)
}

func TestGPUEngineGenerateText(t *testing.T) {
	srv := newGPUTestServer(t, 1<<30)
	defer srv.Close()

	e := NewGPUEngine(srv.URL)
	require.NoError(t, e.Initialize(context.Background(), "m", nil))
	out, err := e.GenerateText(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hello from gpu", out)
}

func TestGPUEngineReset(t *testing.T) {
	srv := newGPUTestServer(t, 1<<30)
	defer srv.Close()

	e := NewGPUEngine(srv.URL)
	e.Initialize(context.Background(), "m", nil)
	e.Reset()
	assert.False(t, e.IsReady(), "expected engine to not be ready after Reset")
}
