// Package engine implements the ModelEngine capability (spec §4.3): a
// local-only chat/embedding backend reachable over HTTP, with two
// variants (GPU-class, WASM-class) selected by the manager in manager.go.
package engine

import "context"

// Tier classifies the compute device a GPU-class engine is running on,
// by probed storage-buffer-size thresholds (<0.8GB, <2GB, >=2GB).
type Tier string

const (
	TierMobile     Tier = "mobile"
	TierIntegrated Tier = "integrated"
	TierDiscrete   Tier = "discrete"
)

// Kind identifies which runtime backs a ModelEngine instance.
type Kind string

const (
	KindGPU  Kind = "gpu"
	KindWasm Kind = "wasm"
)

// ProgressFunc reports load/download progress as a percentage in [0,100]
// plus a human-readable status message.
type ProgressFunc func(pct int, msg string)

// StreamFunc is invoked once per emitted token/piece of a streamed
// generation, with the incremental delta.
type StreamFunc func(delta string)

// GenerateOptions configures a GenerateText call.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
	TopP        float64 // 0 means unset
	Stop        []string
	OnStream    StreamFunc
}

// ChatMessage is one turn of a chat-style prompt.
type ChatMessage struct {
	Role    string
	Content string
}

// Capabilities describes what a ModelEngine instance can do, fixed per
// Kind (spec §4.3: the GPU variant never supports embeddings).
type Capabilities struct {
	Kind              Kind
	SupportsEmbedding bool
	SupportsText      bool
	Tier              Tier // GPU variant only; zero value for WASM
	Threads           int  // WASM variant only; 0 for GPU
}

// ModelEngine is the capability every chat/embedding backend implements
// (spec §4.3). Initialize is idempotent given the same modelIdentifier:
// calling it again with an already-loaded identifier is a no-op.
type ModelEngine interface {
	Initialize(ctx context.Context, modelIdentifier string, onProgress ProgressFunc) error
	IsReady() bool
	Capabilities() Capabilities

	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateEmbeddingsBatch(ctx context.Context, texts []string, maxConcurrent int, onProgress ProgressFunc) ([][]float32, error)

	// GenerateText accepts either a bare prompt (messages of length 1,
	// role "user") or a full chat history.
	GenerateText(ctx context.Context, messages []ChatMessage, opts GenerateOptions) (string, error)

	Reset()
}
