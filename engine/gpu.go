package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// GPUEngine is the compute-shader-backed ModelEngine variant (spec
// §4.3): text generation only, classified into a device tier on init by
// the adapter's probed storage-buffer-size limit.
type GPUEngine struct {
	http *httpClient

	mu      sync.RWMutex
	ready   bool
	modelID string
	tier    Tier
}

// NewGPUEngine returns a GPUEngine that talks to the local GPU-runtime
// sidecar at baseURL.
func NewGPUEngine(baseURL string) *GPUEngine {
	return &GPUEngine{http: newHTTPClient(baseURL)}
}

type gpuCapabilitiesResponse struct {
	MaxStorageBufferBindingSize int64 `json:"maxStorageBufferBindingSize"`
}

type gpuInitRequest struct {
	Model string `json:"model"`
}

func (e *GPUEngine) Initialize(ctx context.Context, modelIdentifier string, onProgress ProgressFunc) error {
	e.mu.RLock()
	already := e.ready && e.modelID == modelIdentifier
	e.mu.RUnlock()
	if already {
		return nil
	}

	if onProgress != nil {
		onProgress(0, "probing GPU adapter limits")
	}

	var caps gpuCapabilitiesResponse
	if err := e.http.postJSON(ctx, "/v1/capabilities", struct{}{}, &caps); err != nil {
		return fmt.Errorf("%w: gpu capability probe failed: %v", ErrNoComputeDevice, err)
	}
	tier := classifyTier(caps.MaxStorageBufferBindingSize)

	if onProgress != nil {
		onProgress(20, "loading model")
	}
	if err := e.http.postJSON(ctx, "/v1/models/load", gpuInitRequest{Model: modelIdentifier}, nil); err != nil {
		return fmt.Errorf("loading gpu model %s: %w", modelIdentifier, err)
	}
	if onProgress != nil {
		onProgress(100, "ready")
	}

	e.mu.Lock()
	e.ready = true
	e.modelID = modelIdentifier
	e.tier = tier
	e.mu.Unlock()
	return nil
}

func (e *GPUEngine) IsReady() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ready
}

func (e *GPUEngine) Capabilities() Capabilities {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Capabilities{
		Kind:              KindGPU,
		SupportsEmbedding: false,
		SupportsText:      true,
		Tier:              e.tier,
	}
}

// GenerateEmbedding always fails: the GPU runtime variant does not
// support embeddings (spec §4.3).
func (e *GPUEngine) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrEmbeddingUnsupported
}

func (e *GPUEngine) GenerateEmbeddingsBatch(ctx context.Context, texts []string, maxConcurrent int, onProgress ProgressFunc) ([][]float32, error) {
	return nil, ErrEmbeddingUnsupported
}

type gpuGenerateRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	TopP        float64       `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type gpuGenerateResponse struct {
	Content string `json:"content"`
}

type gpuStreamChunk struct {
	Delta string `json:"delta"`
	Done  bool   `json:"done"`
}

func (e *GPUEngine) GenerateText(ctx context.Context, messages []ChatMessage, opts GenerateOptions) (string, error) {
	if !e.IsReady() {
		return "", ErrModelNotLoaded
	}

	e.mu.RLock()
	model := e.modelID
	e.mu.RUnlock()

	req := gpuGenerateRequest{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		TopP:        opts.TopP,
		Stop:        opts.Stop,
	}

	if opts.OnStream == nil {
		var resp gpuGenerateResponse
		if err := e.http.postJSON(ctx, "/v1/chat/completions", req, &resp); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInferenceFailed, err)
		}
		return resp.Content, nil
	}

	req.Stream = true
	var full []byte
	err := e.http.streamJSON(ctx, "/v1/chat/completions", req, func(line []byte) error {
		var chunk gpuStreamChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return err
		}
		if chunk.Delta != "" {
			opts.OnStream(chunk.Delta)
			full = append(full, chunk.Delta...)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInferenceFailed, err)
	}
	return string(full), nil
}

func (e *GPUEngine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ready = false
	e.modelID = ""
	e.tier = ""
}
