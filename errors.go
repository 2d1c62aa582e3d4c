package localrag

import "errors"

// Sentinel errors map onto the error taxonomy: each kind surfaces at a
// documented boundary and is either fatal for the call, fatal for the
// owning document/URL/provider, or silently skipped. Each variable's
// comment states its propagation policy.
var (
	// ErrUnsupportedEnvironment is returned when a model engine's host
	// capability probe fails (no required SIMD instructions, etc). Fatal
	// for that engine.
	ErrUnsupportedEnvironment = errors.New("localrag: unsupported environment for this engine")

	// ErrNoComputeDevice is returned when a GPU-class engine is requested
	// but no compute backend is reachable. Callers should fall back to
	// the WASM-class engine.
	ErrNoComputeDevice = errors.New("localrag: no compute device available")

	// ErrModelNotLoaded is returned when a core operation is invoked
	// before its engine reports ready.
	ErrModelNotLoaded = errors.New("localrag: model not loaded")

	// ErrDownloadFailed is returned when fetching model weights fails.
	ErrDownloadFailed = errors.New("localrag: model download failed")

	// ErrLoadFailed is returned when engine initialization fails after
	// weights are present.
	ErrLoadFailed = errors.New("localrag: model load failed")

	// ErrParseFailed is returned by a document parser.
	ErrParseFailed = errors.New("localrag: document parse failed")

	// ErrChunkFailed is returned when chunking a document's text fails.
	ErrChunkFailed = errors.New("localrag: chunking failed")

	// ErrEmbedFailed is returned when embedding generation fails mid-ingest.
	ErrEmbedFailed = errors.New("localrag: embedding generation failed")

	// ErrEmbeddingUnsupported is returned by engines whose capability set
	// excludes embeddings (the GPU chat engine).
	ErrEmbeddingUnsupported = errors.New("localrag: engine does not support embeddings")

	// ErrKVCacheFull is returned when a generation/embedding call exhausts
	// the engine's context window.
	ErrKVCacheFull = errors.New("localrag: context window exhausted")

	// ErrInferenceFailed is returned for a single failed generate/embed call;
	// the engine itself remains usable.
	ErrInferenceFailed = errors.New("localrag: inference failed")

	// ErrSearchFailed is returned by a single web-search provider.
	ErrSearchFailed = errors.New("localrag: search provider failed")

	// ErrNoResults is returned when an aggregate web search yields nothing.
	ErrNoResults = errors.New("localrag: no results found")

	// ErrRateLimited is returned when a provider's rolling rate-limit
	// window is exceeded; the provider is skipped for that call.
	ErrRateLimited = errors.New("localrag: provider rate limited")

	// ErrFetchFailed is returned for a single failed page fetch.
	ErrFetchFailed = errors.New("localrag: page fetch failed")

	// ErrUserCancelled is returned when a URL confirmation step is
	// cancelled by the caller.
	ErrUserCancelled = errors.New("localrag: cancelled by user")

	// ErrWorkerError is returned when a worker reports an unrecoverable
	// error; all pending requests on that worker are rejected.
	ErrWorkerError = errors.New("localrag: worker error")

	// ErrWorkerTimeout is returned when a worker request exceeds its
	// deadline with no terminal response.
	ErrWorkerTimeout = errors.New("localrag: worker request timed out")

	// ErrDocumentNotFound is returned when a document id does not exist.
	ErrDocumentNotFound = errors.New("localrag: document not found")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("localrag: store is closed")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("localrag: invalid configuration")
)
