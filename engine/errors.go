package engine

import "errors"

// Sentinel errors local to the engine package. The root facade maps
// these onto its own error taxonomy (errors.go) at the package
// boundary via errors.Is, since engine cannot import the root package
// without creating an import cycle.
var (
	ErrUnsupportedEnvironment = errors.New("engine: unsupported environment")
	ErrNoComputeDevice        = errors.New("engine: no compute device available")
	ErrModelNotLoaded         = errors.New("engine: model not loaded")
	ErrLoadFailed             = errors.New("engine: model load failed")
	ErrEmbeddingUnsupported   = errors.New("engine: embeddings not supported by this runtime")
	ErrInferenceFailed        = errors.New("engine: inference failed")
	ErrNotInitialized         = errors.New("engine: not initialized")
)
