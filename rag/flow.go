package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kestrelai/localrag/engine"
	"github.com/kestrelai/localrag/retrieval"
	"github.com/kestrelai/localrag/store"
)

// noContextAnswer is the fixed phrase the model is instructed to use
// when the retrieved context is insufficient to answer (spec §4.6 step
// 4e).
const noContextAnswer = "no tengo suficiente información"

// RAGResult summarizes the retrieval half of a completed flow (spec
// §4.6 step 6).
type RAGResult struct {
	Chunks        []retrieval.Result
	TotalSearched int
	SearchTime    time.Duration
}

// FlowResult is CompleteRAGFlow's return value.
type FlowResult struct {
	Answer string
	RAG    RAGResult
}

// CompleteRAGFlow embeds query, retrieves the topK most similar chunks
// (optionally scoped to documentIDs), assembles a grounded prompt with
// the last historyLimit turns of conversation, and generates the answer
// (spec §4.6 completeRAGFlow).
func CompleteRAGFlow(ctx context.Context, s *store.Store, embeddingEngine, chatEngine engine.ModelEngine, query string, topK int, documentIDs []int64, history []store.Message, historyLimit int, onStream engine.StreamFunc) (*FlowResult, error) {
	queryVec, err := embeddingEngine.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	searchStart := time.Now()
	results, err := retrieval.SearchSimilarChunks(ctx, s, queryVec, topK, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	searchTime := time.Since(searchStart)

	prompt := buildPrompt(query, results, history, historyLimit)

	answer, err := chatEngine.GenerateText(ctx, []engine.ChatMessage{{Role: "user", Content: prompt}}, engine.GenerateOptions{
		Temperature: 0.7,
		MaxTokens:   1024,
		OnStream:    onStream,
	})
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	return &FlowResult{
		Answer: answer,
		RAG: RAGResult{
			Chunks:        results,
			TotalSearched: len(results),
			SearchTime:    searchTime,
		},
	}, nil
}

// buildPrompt implements spec §4.6 step 3-4: a minimal template with no
// document context when nothing was retrieved, otherwise a grounded
// prompt carrying conversation history and the assembled RAG context.
func buildPrompt(query string, results []retrieval.Result, history []store.Message, historyLimit int) string {
	if len(results) == 0 {
		return fmt.Sprintf("Responde de forma concisa a la siguiente pregunta: %s", query)
	}

	var b strings.Builder
	b.WriteString("Responde la pregunta usando únicamente el contexto proporcionado, manteniendo coherencia con el historial de la conversación. ")
	b.WriteString(fmt.Sprintf("Si el contexto no es suficiente para responder, di exactamente: \"%s\".\n\n", noContextAnswer))

	if rendered := renderHistory(history, historyLimit); rendered != "" {
		b.WriteString("Historial de la conversación:\n")
		b.WriteString(rendered)
		b.WriteString("\n\n")
	}

	b.WriteString("Contexto:\n")
	b.WriteString(retrieval.CreateRAGContext(results))
	b.WriteString("\n\n")
	b.WriteString("Pregunta: ")
	b.WriteString(query)

	return b.String()
}

// renderHistory renders the last historyLimit turns as Usuario:/Asistente:
// lines (spec §4.6 step 4b).
func renderHistory(history []store.Message, historyLimit int) string {
	if len(history) == 0 {
		return ""
	}
	if historyLimit > 0 && len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}

	var b strings.Builder
	for _, m := range history {
		switch m.Role {
		case store.RoleUser:
			b.WriteString("Usuario: ")
		case store.RoleAssistant:
			b.WriteString("Asistente: ")
		default:
			continue
		}
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
