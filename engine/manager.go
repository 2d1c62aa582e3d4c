package engine

import (
	"context"
	"fmt"
	"sync"
)

// DeviceProfile is the cold-start detection input for automatic model
// selection (spec §4.4).
type DeviceProfile struct {
	HasWebGPU bool
	MemoryGB  float64
	GPUTier   Tier
}

// CatalogEntry maps a chat model identifier to the GGUF artifact the
// WASM runtime loads when no GPU runtime is available.
type CatalogEntry struct {
	ID      string
	GGUFURL string
}

// Catalog is the fixed chat-model mapping table (spec §4.4). Ordered
// smallest to largest; Smallest/Small/Default pick specific entries.
type Catalog struct {
	Smallest CatalogEntry
	Small    CatalogEntry
	Default  CatalogEntry
}

// DefaultCatalog is the built-in chat-model catalog used when Config
// does not override it.
var DefaultCatalog = Catalog{
	Smallest: CatalogEntry{ID: "qwen2.5-0.5b-instruct", GGUFURL: "https://models.local/qwen2.5-0.5b-instruct.Q4_K_M.gguf"},
	Small:    CatalogEntry{ID: "qwen2.5-1.5b-instruct", GGUFURL: "https://models.local/qwen2.5-1.5b-instruct.Q4_K_M.gguf"},
	Default:  CatalogEntry{ID: "qwen2.5-3b-instruct", GGUFURL: "https://models.local/qwen2.5-3b-instruct.Q4_K_M.gguf"},
}

// EmbeddingModelID is the single embedding model identifier the WASM
// runtime always loads (spec §4.4: the embedding engine is always WASM).
const EmbeddingModelID = "bge-small-en-v1.5"

// Config configures a Manager's engine factories and selection catalog.
type Config struct {
	GPUEngineURL  string
	WasmEngineURL string
	Catalog       Catalog
}

// Manager is the process-wide single-instance registry for chat and
// embedding engines (spec §4.4). Holds at most one of each.
type Manager struct {
	cfg Config

	mu                 sync.Mutex
	chatEngine         ModelEngine
	chatModelName      string
	embeddingEngine    ModelEngine
	embeddingModelName string
}

// NewManager returns a Manager with the given configuration. Zero-value
// Catalog falls back to DefaultCatalog.
func NewManager(cfg Config) *Manager {
	if cfg.Catalog == (Catalog{}) {
		cfg.Catalog = DefaultCatalog
	}
	return &Manager{cfg: cfg}
}

// GetChatEngine returns the current chat engine, initializing or
// swapping it if modelName differs from what is currently loaded. An
// empty modelName triggers cold-start auto-selection against profile.
func (m *Manager) GetChatEngine(ctx context.Context, modelName string, profile DeviceProfile, onProgress ProgressFunc) (ModelEngine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if modelName == "" {
		modelName = m.selectChatModel(profile)
	}

	if m.chatEngine != nil && m.chatModelName == modelName {
		if !m.chatEngine.IsReady() {
			return nil, ErrNotInitialized
		}
		return m.chatEngine, nil
	}

	if m.chatEngine != nil {
		m.chatEngine.Reset()
	}

	eng, initID, err := m.newChatEngine(modelName, profile)
	if err != nil {
		return nil, err
	}
	if err := eng.Initialize(ctx, initID, onProgress); err != nil {
		return nil, err
	}
	if !eng.IsReady() {
		return nil, ErrNotInitialized
	}

	m.chatEngine = eng
	m.chatModelName = modelName
	return eng, nil
}

// newChatEngine picks the GPU or WASM runtime per spec §4.4: GPU when
// the profile reports WebGPU support, WASM (resolving modelName to a
// GGUF URL) otherwise.
func (m *Manager) newChatEngine(modelName string, profile DeviceProfile) (ModelEngine, string, error) {
	if profile.HasWebGPU {
		if m.cfg.GPUEngineURL == "" {
			return nil, "", fmt.Errorf("%w: no GPU engine URL configured", ErrNoComputeDevice)
		}
		return NewGPUEngine(m.cfg.GPUEngineURL), modelName, nil
	}

	if m.cfg.WasmEngineURL == "" {
		return nil, "", fmt.Errorf("%w: no WASM engine URL configured", ErrUnsupportedEnvironment)
	}
	ggufURL, err := m.resolveGGUF(modelName)
	if err != nil {
		return nil, "", err
	}
	return NewWasmEngine(m.cfg.WasmEngineURL), ggufURL, nil
}

func (m *Manager) resolveGGUF(modelName string) (string, error) {
	for _, e := range []CatalogEntry{m.cfg.Catalog.Smallest, m.cfg.Catalog.Small, m.cfg.Catalog.Default} {
		if e.ID == modelName {
			return e.GGUFURL, nil
		}
	}
	return "", fmt.Errorf("%w: unknown chat model %q", ErrUnsupportedEnvironment, modelName)
}

// selectChatModel implements the cold-start auto-selection policy (spec
// §4.4): smallest if memory-constrained, small if no GPU, default
// mid-size otherwise.
func (m *Manager) selectChatModel(profile DeviceProfile) string {
	switch {
	case profile.MemoryGB > 0 && profile.MemoryGB < 2:
		return m.cfg.Catalog.Smallest.ID
	case !profile.HasWebGPU:
		return m.cfg.Catalog.Small.ID
	default:
		return m.cfg.Catalog.Default.ID
	}
}

// GetEmbeddingEngine returns the current embedding engine, always the
// WASM runtime (spec §4.4). An empty modelName uses EmbeddingModelID.
func (m *Manager) GetEmbeddingEngine(ctx context.Context, modelName string, onProgress ProgressFunc) (ModelEngine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if modelName == "" {
		modelName = EmbeddingModelID
	}

	if m.embeddingEngine != nil && m.embeddingModelName == modelName {
		if !m.embeddingEngine.IsReady() {
			return nil, ErrNotInitialized
		}
		return m.embeddingEngine, nil
	}

	if m.embeddingEngine != nil {
		m.embeddingEngine.Reset()
	}

	if m.cfg.WasmEngineURL == "" {
		return nil, fmt.Errorf("%w: no WASM engine URL configured", ErrUnsupportedEnvironment)
	}
	eng := NewWasmEngine(m.cfg.WasmEngineURL)
	if err := eng.Initialize(ctx, modelName, onProgress); err != nil {
		return nil, err
	}
	if !eng.IsReady() {
		return nil, ErrNotInitialized
	}

	m.embeddingEngine = eng
	m.embeddingModelName = modelName
	return eng, nil
}

// SetChatEngine installs a caller-provided engine instance directly,
// bypassing auto-selection (spec §4.4 setChatEngine).
func (m *Manager) SetChatEngine(eng ModelEngine, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chatEngine != nil && m.chatEngine != eng {
		m.chatEngine.Reset()
	}
	m.chatEngine = eng
	m.chatModelName = name
}

// SetEmbeddingEngine installs a caller-provided embedding engine instance.
func (m *Manager) SetEmbeddingEngine(eng ModelEngine, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.embeddingEngine != nil && m.embeddingEngine != eng {
		m.embeddingEngine.Reset()
	}
	m.embeddingEngine = eng
	m.embeddingModelName = name
}

// ResetChatEngine releases the current chat engine, if any.
func (m *Manager) ResetChatEngine() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chatEngine != nil {
		m.chatEngine.Reset()
	}
	m.chatEngine = nil
	m.chatModelName = ""
}

// ResetEmbeddingEngine releases the current embedding engine, if any.
func (m *Manager) ResetEmbeddingEngine() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.embeddingEngine != nil {
		m.embeddingEngine.Reset()
	}
	m.embeddingEngine = nil
	m.embeddingModelName = ""
}

// ResetAll releases both engines.
func (m *Manager) ResetAll() {
	m.ResetChatEngine()
	m.ResetEmbeddingEngine()
}
