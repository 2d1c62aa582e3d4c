// Package webrag implements the Web-RAG orchestrator (spec §4.9): one
// call advances deterministically through query generation, web
// search, URL selection, page fetch, content extraction, chunking and
// embedding, and answer generation, emitting a progress event at each
// step.
package webrag

import (
	"context"
	"time"

	"github.com/kestrelai/localrag/engine"
	"github.com/kestrelai/localrag/rag"
	"github.com/kestrelai/localrag/store"
	"github.com/kestrelai/localrag/websearch"
)

// Step names reported via ProgressFunc, in the order the state machine
// emits them on a happy-path run (spec §4.9).
const (
	StepQueryGeneration   = "query_generation"
	StepWebSearch         = "web_search"
	StepURLSelection      = "url_selection"
	StepURLConfirmation   = "url_confirmation"
	StepPageFetch         = "page_fetch"
	StepContentExtraction = "content_extraction"
	StepChunking          = "chunking"
	StepEmbedding         = "embedding"
	StepVectorSearch      = "vector_search"
	StepAnswerGeneration  = "answer_generation"
	StepCompleted         = "completed"
	StepError             = "error"
)

// ProgressEvent reports one step of Search's state machine.
type ProgressEvent struct {
	Step    string
	Pct     int
	Message string
	Data    any
}

// ProgressFunc receives Search's progress events. May be nil.
type ProgressFunc func(ProgressEvent)

// ConfirmationFunc is invoked at the url_confirmation step when
// Options.RequireConfirmation is set. Returning a nil or empty slice
// cancels the whole call (spec §4.9 step 4).
type ConfirmationFunc func(ctx context.Context, candidates []websearch.SearchResult) ([]websearch.SearchResult, error)

// Options configures a Search call.
type Options struct {
	MaxSearchResults       int
	Sources                []string
	MaxURLsToFetch         int
	RequireConfirmation    bool
	OnConfirmationRequest ConfirmationFunc

	TopK         int
	History      []store.Message
	HistoryLimit int
	OnStream     engine.StreamFunc

	// FetchTimeout and FetchMaxSize bound strategy (c), the
	// worker-resident fetcher (spec §4.9 step 5c).
	FetchTimeout time.Duration
	FetchMaxSize int64
}

// ExtractedPage is one page's cleaned, extracted content, ready to
// become a temporary Document (spec §4.9 step 6-7).
type ExtractedPage struct {
	URL     string
	Title   string
	Content string
}

// Result is Search's return value (spec §4.9).
type Result struct {
	Query           string
	SearchQuery     string
	SearchResults   []websearch.SearchResult
	SelectedURLs    []string
	CleanedContents []ExtractedPage
	RAG             rag.RAGResult
	Answer          string
	Metadata        Metadata
}

// Metadata carries the call's summary statistics (spec §4.9).
type Metadata struct {
	TotalTime   time.Duration
	SourcesUsed int
	Timestamps  map[string]time.Time
}

// FetchedPage is a page successfully retrieved by strategy (b),
// already extracted to clean text (spec §4.9 steps 5-6).
type FetchedPage struct {
	URL     string
	Title   string
	Content string
}

// BrowserHelper is the browser-side fetch+extract helper used by
// strategy (b): when connected, it fetches and extracts a batch of URLs
// in one round trip (spec §4.9 step 5b). Pages that fail are simply
// omitted from the returned slice.
type BrowserHelper interface {
	Connected() bool
	FetchAndExtract(ctx context.Context, urls []string) ([]FetchedPage, error)
}
