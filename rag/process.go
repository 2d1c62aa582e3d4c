// Package rag implements the two core pipeline operations: turning a
// parsed document's text into persisted, embedded chunks
// (ProcessDocument, spec §4.6), and answering a query against them
// (CompleteRAGFlow, spec §4.6).
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kestrelai/localrag/chunker"
	"github.com/kestrelai/localrag/engine"
	"github.com/kestrelai/localrag/store"
)

// Stage names reported via ProgressFunc (spec §4.6 processDocument).
const (
	StageChunking = "chunking"
	StageEmbed    = "embedding"
	StageComplete = "complete"
	StageError    = "error"
)

// ProgressEvent reports one step of ProcessDocument's pipeline (spec §3
// ProcessingStatus entity, minus the "parsing" stage which happens
// upstream of this package).
type ProgressEvent struct {
	DocumentID int64
	Stage      string
	Progress   int // 0-100
	Message    string
	Error      string // only set when Stage is StageError
}

// ProgressFunc receives ProcessDocument's progress events.
type ProgressFunc func(ProgressEvent)

// embedBatchConcurrency is the default bounded-concurrency fan-out for
// embedding generation (spec §4.6 step 3).
const embedBatchConcurrency = 4

// ProcessDocument chunks text, persists the chunks, generates and
// persists their embeddings, and transitions documentID's status
// through processing -> ready (or -> error on any failure), reporting
// progress at each stage (spec §4.6 processDocument).
func ProcessDocument(ctx context.Context, s *store.Store, chunkr *chunker.Chunker, embeddingEngine engine.ModelEngine, embeddingModel string, documentID int64, text string, onProgress ProgressFunc) error {
	report := func(stage string, pct int, message string) {
		if onProgress != nil {
			onProgress(ProgressEvent{DocumentID: documentID, Stage: stage, Progress: pct, Message: message})
		}
	}

	fail := func(err error) error {
		slog.Error("rag: processing document failed", "document_id", documentID, "error", err)
		if uerr := s.UpdateDocumentStatus(ctx, documentID, store.DocumentError, err.Error()); uerr != nil {
			slog.Error("rag: failed to record document error status", "document_id", documentID, "error", uerr)
		}
		if onProgress != nil {
			onProgress(ProgressEvent{DocumentID: documentID, Stage: StageError, Progress: 0, Message: err.Error(), Error: err.Error()})
		}
		return err
	}

	if err := s.UpdateDocumentStatus(ctx, documentID, store.DocumentProcessing, ""); err != nil {
		return fail(fmt.Errorf("transitioning to processing: %w", err))
	}
	report(StageChunking, 10, "chunking text into pieces")

	chunkStart := time.Now()
	pieces := chunkr.Chunk(text)
	chunks := make([]store.Chunk, len(pieces))
	for i, p := range pieces {
		startChar, endChar := p.StartChar, p.EndChar
		chunks[i] = store.Chunk{
			DocumentID:  documentID,
			Content:     p.Content,
			Index:       p.Index,
			Tokens:      p.Tokens,
			StartChar:   &startChar,
			EndChar:     &endChar,
			Type:        p.Type,
			PrevContext: p.PrevContext,
			NextContext: p.NextContext,
			TotalChunks: p.TotalChunks,
		}
	}

	chunkIDs, err := s.InsertChunks(ctx, chunks)
	if err != nil {
		return fail(fmt.Errorf("%w: inserting chunks: %v", ErrChunkFailed, err))
	}
	slog.Info("rag: chunking complete", "document_id", documentID, "chunks", len(chunks), "elapsed", time.Since(chunkStart).Round(time.Millisecond))

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	embedStart := time.Now()
	vectors, err := embeddingEngine.GenerateEmbeddingsBatch(ctx, texts, embedBatchConcurrency, func(pct int, msg string) {
		// Map the engine's own [0,100] progress into the pipeline's
		// [30,90] band (spec §4.6 step 3).
		report(StageEmbed, 30+int(float64(pct)*0.6), msg)
	})
	if err != nil {
		return fail(fmt.Errorf("%w: generating embeddings: %v", ErrEmbedFailed, err))
	}
	slog.Info("rag: embedding complete", "document_id", documentID, "chunks", len(chunks), "elapsed", time.Since(embedStart).Round(time.Millisecond))

	embeddings := make([]store.Embedding, len(vectors))
	for i, v := range vectors {
		embeddings[i] = store.Embedding{
			ChunkID:    chunkIDs[i],
			DocumentID: documentID,
			Vector:     v,
			Model:      embeddingModel,
		}
	}
	if _, err := s.InsertEmbeddings(ctx, embeddings); err != nil {
		return fail(fmt.Errorf("%w: inserting embeddings: %v", ErrEmbedFailed, err))
	}

	if err := s.UpdateDocumentStatus(ctx, documentID, store.DocumentReady, ""); err != nil {
		return fail(fmt.Errorf("transitioning to ready: %w", err))
	}
	report(StageComplete, 100, "processing complete")
	return nil
}
