package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// maxEmbedChars is the fixed character budget embedding inputs are
// truncated to before tokenization (spec §4.3).
const maxEmbedChars = 8000

// WasmEngine is the CPU-bound ModelEngine variant (spec §4.3): supports
// both embeddings and text generation, at a thread count derived from
// the host's detected core count.
type WasmEngine struct {
	http *httpClient

	mu      sync.RWMutex
	ready   bool
	modelID string
	threads int
}

// NewWasmEngine returns a WasmEngine that talks to the local WASM-runtime
// sidecar at baseURL.
func NewWasmEngine(baseURL string) *WasmEngine {
	return &WasmEngine{http: newHTTPClient(baseURL)}
}

type wasmInitRequest struct {
	Model   string `json:"model"`
	Threads int    `json:"threads"`
}

func (e *WasmEngine) Initialize(ctx context.Context, modelIdentifier string, onProgress ProgressFunc) error {
	e.mu.RLock()
	already := e.ready && e.modelID == modelIdentifier
	e.mu.RUnlock()
	if already {
		return nil
	}

	if !hasSIMD() {
		return fmt.Errorf("%w: required vector instructions not present on this host", ErrUnsupportedEnvironment)
	}
	threads := threadCount()

	if onProgress != nil {
		onProgress(0, "loading model")
	}
	if err := e.http.postJSON(ctx, "/v1/models/load", wasmInitRequest{Model: modelIdentifier, Threads: threads}, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	if onProgress != nil {
		onProgress(100, "ready")
	}

	e.mu.Lock()
	e.ready = true
	e.modelID = modelIdentifier
	e.threads = threads
	e.mu.Unlock()
	return nil
}

func (e *WasmEngine) IsReady() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ready
}

func (e *WasmEngine) Capabilities() Capabilities {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Capabilities{
		Kind:              KindWasm,
		SupportsEmbedding: true,
		SupportsText:      true,
		Threads:           e.threads,
	}
}

// truncateForEmbedding enforces maxEmbedChars as a rune count, not a byte
// count, so a multibyte UTF-8 rune straddling the cut point is never split.
func truncateForEmbedding(text string) string {
	if len(text) <= maxEmbedChars {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxEmbedChars {
		return text
	}
	return string(runes[:maxEmbedChars])
}

type wasmEmbedRequest struct {
	Model string `json:"model"`
	Text  string `json:"text"`
}

type wasmEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (e *WasmEngine) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if !e.IsReady() {
		return nil, ErrModelNotLoaded
	}
	e.mu.RLock()
	model := e.modelID
	e.mu.RUnlock()

	var resp wasmEmbedResponse
	req := wasmEmbedRequest{Model: model, Text: truncateForEmbedding(text)}
	if err := e.http.postJSON(ctx, "/v1/embeddings", req, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInferenceFailed, err)
	}
	return resp.Embedding, nil
}

// GenerateEmbeddingsBatch fans out to GenerateEmbedding with at most
// maxConcurrent requests in flight, preserving input order (spec §4.3).
func (e *WasmEngine) GenerateEmbeddingsBatch(ctx context.Context, texts []string, maxConcurrent int, onProgress ProgressFunc) ([][]float32, error) {
	if !e.IsReady() {
		return nil, ErrModelNotLoaded
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	out := make([][]float32, len(texts))
	var done int32
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			vec, err := e.GenerateEmbedding(gctx, text)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			out[i] = vec

			if onProgress != nil {
				mu.Lock()
				done++
				pct := int(float64(done) / float64(len(texts)) * 100)
				mu.Unlock()
				onProgress(pct, fmt.Sprintf("embedded %d/%d", done, len(texts)))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

type wasmGenerateRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	TopP        float64       `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type wasmGenerateResponse struct {
	Content string `json:"content"`
}

type wasmStreamChunk struct {
	Delta string `json:"delta"`
}

func (e *WasmEngine) GenerateText(ctx context.Context, messages []ChatMessage, opts GenerateOptions) (string, error) {
	if !e.IsReady() {
		return "", ErrModelNotLoaded
	}
	e.mu.RLock()
	model := e.modelID
	e.mu.RUnlock()

	req := wasmGenerateRequest{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		TopP:        opts.TopP,
		Stop:        opts.Stop,
	}

	if opts.OnStream == nil {
		var resp wasmGenerateResponse
		if err := e.http.postJSON(ctx, "/v1/chat/completions", req, &resp); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInferenceFailed, err)
		}
		return resp.Content, nil
	}

	req.Stream = true
	var full []byte
	err := e.http.streamJSON(ctx, "/v1/chat/completions", req, func(line []byte) error {
		var chunk wasmStreamChunk
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

func (e *WasmEngine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ready = false
	e.modelID = ""
	e.threads = 0
}
