package rag

import "errors"

// Local to rag to avoid an import cycle with the root localrag package,
// which maps these onto its own sentinel taxonomy (spec §7) at the
// Engine.Ingest boundary.
var (
	ErrChunkFailed = errors.New("rag: chunking failed")
	ErrEmbedFailed = errors.New("rag: embedding generation failed")
)
