// Package retrieval implements vector search over persisted embeddings
// (spec §4.5): brute-force cosine similarity ranking plus the context
// string assembly fed into the generation prompt.
package retrieval

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"sort"

	"github.com/kestrelai/localrag/store"
)

// Result is one ranked hit, joined against its source chunk and
// document (spec §4.5: "{ chunk, document, score, embedding }").
type Result struct {
	Chunk     store.Chunk
	Document  store.Document
	Score     float32
	Embedding []float32
}

// SearchSimilarChunks ranks every persisted embedding (optionally
// restricted to documentIDs) against queryVector by cosine similarity,
// returning the top topK hits joined with their chunk and document
// (spec §4.5). Winners whose chunk or document has since been deleted
// are dropped rather than erroring.
func SearchSimilarChunks(ctx context.Context, s *store.Store, queryVector []float32, topK int, documentIDs []int64) ([]Result, error) {
	embeddings, err := s.GetEmbeddings(ctx, documentIDs)
	if err != nil {
		return nil, err
	}

	type scored struct {
		emb   store.Embedding
		score float32
		order int
	}
	ranked := make([]scored, len(embeddings))
	for i, e := range embeddings {
		ranked[i] = scored{emb: e, score: cosineSimilarity(queryVector, e.Vector), order: i}
	}

	// Descending by score; ties keep original insertion order (spec §4.5).
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	var out []Result
	for _, r := range ranked {
		if len(out) >= topK {
			break
		}

		chunk, err := s.GetChunk(ctx, r.emb.ChunkID)
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			continue
		}

		doc, err := s.GetDocument(ctx, r.emb.DocumentID)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}

		out = append(out, Result{
			Chunk:     *chunk,
			Document:  *doc,
			Score:     r.score,
			Embedding: r.emb.Vector,
		})
	}
	return out, nil
}

// cosineSimilarity computes dot(a,b)/(||a||*||b||); a zero-norm vector
// yields similarity 0 rather than NaN (spec §4.5). Vectors of unequal
// dimension are a programmer error and panic, mirroring an index
// out-of-range rather than silently truncating.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		panic("retrieval: cosineSimilarity called with mismatched vector dimensions")
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
