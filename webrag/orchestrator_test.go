//go:build cgo

package webrag

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelai/localrag/chunker"
	"github.com/kestrelai/localrag/engine"
	"github.com/kestrelai/localrag/extractor"
	"github.com/kestrelai/localrag/store"
	"github.com/kestrelai/localrag/websearch"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), 3)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestChunker() *chunker.Chunker {
	return chunker.New(chunker.Config{ChunkSize: 200, MinSize: 20})
}

// fakeEngine is a deterministic ModelEngine double: GenerateText
// branches on the prompt's content to play each of the three chat
// roles a Search call exercises (query rewrite, URL selection, final
// answer), and GenerateEmbedding returns a fixed-length vector derived
// from text length.
type fakeEngine struct {
	answer string
}

func (f *fakeEngine) Initialize(ctx context.Context, modelIdentifier string, onProgress engine.ProgressFunc) error {
	return nil
}
func (f *fakeEngine) IsReady() bool                     { return true }
func (f *fakeEngine) Capabilities() engine.Capabilities { return engine.Capabilities{SupportsEmbedding: true, SupportsText: true} }
func (f *fakeEngine) Reset()                            {}

func (f *fakeEngine) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	n := float32(len(text)%7 + 1)
	return []float32{n, n * 2, n * 3}, nil
}

func (f *fakeEngine) GenerateEmbeddingsBatch(ctx context.Context, texts []string, maxConcurrent int, onProgress engine.ProgressFunc) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if onProgress != nil {
			onProgress((i+1)*100/len(texts), "embedding")
		}
		v, _ := f.GenerateEmbedding(ctx, t)
		out[i] = v
	}
	return out, nil
}

func (f *fakeEngine) GenerateText(ctx context.Context, messages []engine.ChatMessage, opts engine.GenerateOptions) (string, error) {
	prompt := messages[0].Content
	switch {
	case strings.Contains(prompt, "consulta de búsqueda web corta"):
		return "X 2025", nil
	case strings.Contains(prompt, "Responde únicamente con JSON"):
		return `{"indices":[0,2]}`, nil
	default:
		answer := f.answer
		if answer == "" {
			answer = "respuesta final"
		}
		if opts.OnStream != nil {
			opts.OnStream(answer)
		}
		return answer, nil
	}
}

// fakeProvider is a canned websearch.Provider double.
type fakeProvider struct {
	name    string
	results []websearch.SearchResult
}

func (p *fakeProvider) Name() string      { return p.name }
func (p *fakeProvider) IsAvailable() bool { return true }
func (p *fakeProvider) Search(ctx context.Context, query string, opts websearch.Options) ([]websearch.SearchResult, error) {
	return p.results, nil
}

// fakeBrowserHelper fetches canned HTML bodies keyed by URL and runs
// them through the real extractor, the way the browser-side helper
// would before handing clean text back (spec §4.9 step 5b/6).
type fakeBrowserHelper struct {
	bodies map[string]string
}

func (b *fakeBrowserHelper) Connected() bool { return true }

func (b *fakeBrowserHelper) FetchAndExtract(ctx context.Context, urls []string) ([]FetchedPage, error) {
	var pages []FetchedPage
	for _, u := range urls {
		body, ok := b.bodies[u]
		if !ok {
			continue
		}
		result, err := extractor.Extract(body, u, extractor.Options{})
		if err != nil {
			continue
		}
		pages = append(pages, FetchedPage{URL: u, Title: result.Title, Content: result.Text})
	}
	return pages, nil
}

func articleHTML(title string, words int) string {
	var b strings.Builder
	b.WriteString("<html><head><title>" + title + "</title></head><body><article><h1>" + title + "</h1><p>")
	for i := 0; i < words; i++ {
		b.WriteString("palabra ")
	}
	b.WriteString("</p></article></body></html>")
	return b.String()
}

func TestSearchHappyPathEmitsStepSequenceAndUsesTwoSources(t *testing.T) {
	s := newTestStore(t)
	eng := &fakeEngine{answer: "respuesta final"}
	searchResults := []websearch.SearchResult{
		{Title: "Result A", Snippet: "snippet a", URL: "https://example.com/a", Source: "fake"},
		{Title: "Result B", Snippet: "snippet b", URL: "https://example.com/b", Source: "fake"},
		{Title: "Result C", Snippet: "snippet c", URL: "https://example.com/c", Source: "fake"},
	}
	svc := websearch.NewService([]websearch.Provider{&fakeProvider{name: "fake", results: searchResults}})
	defer svc.Close()

	browser := &fakeBrowserHelper{bodies: map[string]string{
		"https://example.com/a": articleHTML("Article A", 150),
		"https://example.com/c": articleHTML("Article C", 150),
	}}

	o := New(s, newTestChunker(), eng, eng, "test-embed", svc, browser, nil)

	var steps []string
	result, err := o.Search(context.Background(), "what happened in 2025", Options{
		MaxSearchResults: 5,
		MaxURLsToFetch:   3,
		TopK:             3,
	}, func(ev ProgressEvent) {
		steps = append(steps, ev.Step)
	})
	require.NoError(t, err)

	wantPrefix := []string{
		StepQueryGeneration, StepWebSearch, StepURLSelection, StepPageFetch,
		StepContentExtraction, StepChunking,
	}
	require.GreaterOrEqual(t, len(steps), len(wantPrefix), "full sequence: %v", steps)
	for i, want := range wantPrefix {
		assert.Equalf(t, want, steps[i], "step %d (full sequence: %v)", i, steps)
	}
	assert.Equal(t, StepCompleted, steps[len(steps)-1])

	var sawVectorSearch, sawAnswerGeneration bool
	for _, st := range steps {
		if st == StepVectorSearch {
			sawVectorSearch = true
		}
		if st == StepAnswerGeneration {
			sawAnswerGeneration = true
		}
	}
	assert.True(t, sawVectorSearch, "expected a vector_search step, got %v", steps)
	assert.True(t, sawAnswerGeneration, "expected an answer_generation step, got %v", steps)

	assert.Equal(t, 2, result.Metadata.SourcesUsed)
	assert.Equal(t, "respuesta final", result.Answer)
}

func TestSearchNoResultsFails(t *testing.T) {
	s := newTestStore(t)
	eng := &fakeEngine{}
	svc := websearch.NewService([]websearch.Provider{&fakeProvider{name: "empty"}})
	defer svc.Close()

	o := New(s, newTestChunker(), eng, eng, "test-embed", svc, nil, nil)

	var errStep string
	_, err := o.Search(context.Background(), "anything", Options{}, func(ev ProgressEvent) {
		if ev.Step == StepError {
			errStep = ev.Step
		}
	})
	require.Error(t, err)
	assert.Equal(t, StepError, errStep, "expected a terminal error event")

	docs, err := s.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs, "expected no documents created on a no-results failure")
}

func TestSearchUserCancellationLeavesNoDocuments(t *testing.T) {
	s := newTestStore(t)
	eng := &fakeEngine{}
	searchResults := []websearch.SearchResult{
		{Title: "Result A", Snippet: "a", URL: "https://example.com/a", Source: "fake"},
	}
	svc := websearch.NewService([]websearch.Provider{&fakeProvider{name: "fake", results: searchResults}})
	defer svc.Close()

	o := New(s, newTestChunker(), eng, eng, "test-embed", svc, nil, nil)

	_, err := o.Search(context.Background(), "anything", Options{
		RequireConfirmation: true,
		OnConfirmationRequest: func(ctx context.Context, candidates []websearch.SearchResult) ([]websearch.SearchResult, error) {
			return nil, nil
		},
	}, nil)
	require.Error(t, err)

	docs, err := s.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs, "expected no documents created on user cancellation")
}
