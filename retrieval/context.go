package retrieval

import (
	"fmt"
	"strings"
)

// CreateRAGContext assembles the prompt-ready context string from ranked
// search results (spec §4.5): each result renders as
// "[Documento {i}: {docName} ({score%} relevancia)]\n{chunkContent}",
// joined by a horizontal rule.
func CreateRAGContext(results []Result) string {
	blocks := make([]string, len(results))
	for i, r := range results {
		pct := r.Score * 100
		blocks[i] = fmt.Sprintf("[Documento %d: %s (%.0f%% relevancia)]\n%s", i+1, r.Document.Name, pct, r.Chunk.Content)
	}
	return strings.Join(blocks, "\n\n---\n\n")
}
