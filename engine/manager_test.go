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

func newManagerTestServers(t *testing.T) (gpuURL, wasmURL string, cleanup func()) {
	t.Helper()
	gpuMux := http.NewServeMux()
	gpuMux.HandleFunc("/v1/capabilities", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(gpuCapabilitiesResponse{MaxStorageBufferBindingSize: 3 << 30})
	})
	gpuMux.HandleFunc("/v1/models/load", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(struct{}{})
	})
	gpuSrv := httptest.NewServer(gpuMux)

	wasmMux := http.NewServeMux()
	wasmMux.HandleFunc("/v1/models/load", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(struct{}{})
	})
	wasmMux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(wasmEmbedResponse{Embedding: []float32{1}})
	})
	wasmSrv := httptest.NewServer(wasmMux)

	return gpuSrv.URL, wasmSrv.URL, func() { gpuSrv.Close(); wasmSrv.Close() }
}

func TestManagerSelectChatModelPolicy(t *testing.T) {
	m := NewManager(Config{})
	tests := []struct {
		name    string
		profile DeviceProfile
		want    string
	}{
		{"low memory", DeviceProfile{MemoryGB: 1, HasWebGPU: true}, DefaultCatalog.Smallest.ID},
		{"no webgpu", DeviceProfile{MemoryGB: 8, HasWebGPU: false}, DefaultCatalog.Small.ID},
		{"default", DeviceProfile{MemoryGB: 8, HasWebGPU: true}, DefaultCatalog.Default.ID},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, m.selectChatModel(tt.profile), tt.name)
	}
}

func TestManagerGetChatEnginePrefersGPU(t *testing.T) {
	gpuURL, wasmURL, cleanup := newManagerTestServers(t)
	defer cleanup()

	m := NewManager(Config{GPUEngineURL: gpuURL, WasmEngineURL: wasmURL})
	eng, err := m.GetChatEngine(context.Background(), "", DeviceProfile{HasWebGPU: true, MemoryGB: 8}, nil)
	require.NoError(t, err)
	assert.Equal(t, KindGPU, eng.Capabilities().Kind, "expected GPU engine when HasWebGPU")
}

func TestManagerGetChatEngineFallsBackToWasm(t *testing.T) {
	_, wasmURL, cleanup := newManagerTestServers(t)
	defer cleanup()

	m := NewManager(Config{WasmEngineURL: wasmURL})
	eng, err := m.GetChatEngine(context.Background(), "", DeviceProfile{HasWebGPU: false, MemoryGB: 8}, nil)
	require.NoError(t, err)
	assert.Equal(t, KindWasm, eng.Capabilities().Kind, "expected WASM engine when !HasWebGPU")
}

func TestManagerGetChatEngineReusesLoadedModel(t *testing.T) {
	gpuURL, wasmURL, cleanup := newManagerTestServers(t)
	defer cleanup()

	m := NewManager(Config{GPUEngineURL: gpuURL, WasmEngineURL: wasmURL})
	profile := DeviceProfile{HasWebGPU: true, MemoryGB: 8}
	e1, err := m.GetChatEngine(context.Background(), "", profile, nil)
	require.NoError(t, err)
	e2, err := m.GetChatEngine(context.Background(), "", profile, nil)
	require.NoError(t, err)
	assert.Same(t, e1, e2, "expected the same engine instance to be reused for the same model")
}

func TestManagerGetChatEngineSwapsOnModelChange(t *testing.T) {
	gpuURL, wasmURL, cleanup := newManagerTestServers(t)
	defer cleanup()

	m := NewManager(Config{GPUEngineURL: gpuURL, WasmEngineURL: wasmURL})
	profile := DeviceProfile{HasWebGPU: true, MemoryGB: 8}
	e1, err := m.GetChatEngine(context.Background(), DefaultCatalog.Default.ID, profile, nil)
	require.NoError(t, err)
	e2, err := m.GetChatEngine(context.Background(), DefaultCatalog.Smallest.ID, profile, nil)
	require.NoError(t, err)
	assert.NotSame(t, e1, e2, "expected a new engine instance after model name changes")
	assert.False(t, e1.IsReady(), "expected the old engine to be released (Reset) after swap")
}

func TestManagerGetEmbeddingEngineAlwaysWasm(t *testing.T) {
	_, wasmURL, cleanup := newManagerTestServers(t)
	defer cleanup()

	m := NewManager(Config{WasmEngineURL: wasmURL})
	eng, err := m.GetEmbeddingEngine(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Equal(t, KindWasm, eng.Capabilities().Kind, "expected WASM embedding engine")
}

func TestManagerResetAll(t *testing.T) {
	gpuURL, wasmURL, cleanup := newManagerTestServers(t)
	defer cleanup()

	m := NewManager(Config{GPUEngineURL: gpuURL, WasmEngineURL: wasmURL})
	profile := DeviceProfile{HasWebGPU: true, MemoryGB: 8}
	eng, _ := m.GetChatEngine(context.Background(), "", profile, nil)
	m.ResetAll()
	assert.False(t, eng.IsReady(), "expected chat engine to be released by ResetAll")
	assert.Nil(t, m.chatEngine, "expected Manager to hold no engines after ResetAll")
	assert.Nil(t, m.embeddingEngine, "expected Manager to hold no engines after ResetAll")
}

func TestManagerSetChatEngineRequiresReadyBeforeReuse(t *testing.T) {
	m := NewManager(Config{})
	fake := NewGPUEngine("http://unused")
	m.SetChatEngine(fake, "custom-model")

	// The installed instance has not been Initialize()d, so it is not
	// ready yet: callers must get the explicit not-initialized error
	// rather than a silently unusable engine (spec §4.4).
	_, err := m.GetChatEngine(context.Background(), "custom-model", DeviceProfile{}, nil)
	require.ErrorIs(t, err, ErrNotInitialized)
}
