package webrag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/kestrelai/localrag/chunker"
	"github.com/kestrelai/localrag/engine"
	"github.com/kestrelai/localrag/extractor"
	"github.com/kestrelai/localrag/rag"
	"github.com/kestrelai/localrag/store"
	"github.com/kestrelai/localrag/websearch"
	"github.com/kestrelai/localrag/workerpool"
)

// ErrNoResults is returned when the web_search step yields nothing
// (spec §4.9 step 2).
var ErrNoResults = errors.New("webrag: no results")

// ErrUserCancelled is returned when url_confirmation's callback returns
// no confirmed URLs (spec §4.9 step 4).
var ErrUserCancelled = errors.New("webrag: cancelled by user")

// ErrAllPagesFailed is returned when every selected URL fails strategy
// (a)/(b)/(c) in turn (spec §4.9 step 5).
var ErrAllPagesFailed = errors.New("webrag: all page fetches failed")

const webFetchWorker = "webfetch"

const (
	defaultFetchTimeout = 20 * time.Second
	defaultFetchMaxSize = 5 * 1024 * 1024 // 5MB
	minExtractedWords   = 50
)

// Orchestrator wires the subsystems a Search call composes: the chat/
// embedding engines, the web search aggregator, an optional browser
// helper (strategy b), and an optional worker pool providing the
// worker-resident fetcher (strategy c).
type Orchestrator struct {
	Store           *store.Store
	Chunker         *chunker.Chunker
	EmbeddingEngine engine.ModelEngine
	ChatEngine      engine.ModelEngine
	EmbeddingModel  string
	SearchService   *websearch.Service
	Browser         BrowserHelper
	Workers         *workerpool.Pool
}

// New builds an Orchestrator and, if workers is non-nil, registers the
// worker-resident page fetcher under the "webfetch" role (spec §4.9
// step 5c, spec §4.10's named worker roles).
func New(s *store.Store, chunkr *chunker.Chunker, embeddingEngine, chatEngine engine.ModelEngine, embeddingModel string, searchService *websearch.Service, browser BrowserHelper, workers *workerpool.Pool) *Orchestrator {
	o := &Orchestrator{
		Store:           s,
		Chunker:         chunkr,
		EmbeddingEngine: embeddingEngine,
		ChatEngine:      chatEngine,
		EmbeddingModel:  embeddingModel,
		SearchService:   searchService,
		Browser:         browser,
		Workers:         workers,
	}
	if workers != nil {
		workers.RegisterWorker(webFetchWorker, o.webFetchHandler)
	}
	return o
}

// Search advances through the 9-step state machine (spec §4.9),
// emitting a progress event at each step, and returns the final
// grounded answer. Any step may fail, which rejects the call and emits
// a terminal (error, 0, msg) event; cleanup of the temporary documents
// created along the way is scheduled in the background and never
// blocks the returned result.
func (o *Orchestrator) Search(ctx context.Context, userQuery string, opts Options, onProgress ProgressFunc) (*Result, error) {
	start := time.Now()
	timestamps := map[string]time.Time{}
	report := func(step string, pct int, msg string, data any) {
		timestamps[step] = time.Now()
		if onProgress != nil {
			onProgress(ProgressEvent{Step: step, Pct: pct, Message: msg, Data: data})
		}
	}
	fail := func(step string, err error) (*Result, error) {
		slog.Error("webrag: step failed", "step", step, "error", err)
		report(StepError, 0, err.Error(), nil)
		return nil, err
	}

	// Step 1: query_generation (pct 10).
	searchQuery, err := o.generateSearchQuery(ctx, userQuery)
	if err != nil {
		return fail(StepQueryGeneration, fmt.Errorf("generating search query: %w", err))
	}
	report(StepQueryGeneration, 10, searchQuery, nil)

	// Step 2: web_search (pct 20).
	maxResults := opts.MaxSearchResults
	if maxResults <= 0 {
		maxResults = 5
	}
	results, err := o.SearchService.Search(ctx, searchQuery, websearch.Options{MaxResults: maxResults, Sources: opts.Sources})
	if err != nil {
		return fail(StepWebSearch, fmt.Errorf("searching web: %w", err))
	}
	if len(results) == 0 {
		return fail(StepWebSearch, ErrNoResults)
	}
	report(StepWebSearch, 20, "", results)

	// Step 3: url_selection (pct 30).
	maxURLs := opts.MaxURLsToFetch
	if maxURLs <= 0 {
		maxURLs = 3
	}
	selected := o.selectURLs(ctx, searchQuery, results, maxURLs)
	report(StepURLSelection, 30, "", selected)

	// Step 4: url_confirmation (pct 35, optional).
	if opts.RequireConfirmation && opts.OnConfirmationRequest != nil {
		confirmed, err := opts.OnConfirmationRequest(ctx, selected)
		if err != nil {
			return fail(StepURLConfirmation, fmt.Errorf("confirming urls: %w", err))
		}
		if len(confirmed) == 0 {
			return fail(StepURLConfirmation, ErrUserCancelled)
		}
		selected = confirmed
		report(StepURLConfirmation, 35, "", selected)
	}

	selectedURLs := make([]string, len(selected))
	for i, r := range selected {
		selectedURLs[i] = r.URL
	}

	// Step 5: page_fetch (pct 40).
	pages, err := o.fetchPages(ctx, selected, opts)
	if err != nil {
		return fail(StepPageFetch, err)
	}
	report(StepPageFetch, 40, "", pages)

	// Step 6: content_extraction (pct 50). Extraction already happened
	// inside fetchPages for every strategy; this step is reported for
	// state-machine visibility only.
	report(StepContentExtraction, 50, "", nil)

	// Step 7: chunking + embedding (pct 60-80).
	documentIDs, err := o.ingestPages(ctx, pages, report)
	if err != nil {
		return fail(StepChunking, err)
	}

	// Step 8: vector_search + answer_generation (pct 85-100).
	report(StepVectorSearch, 85, "", nil)
	flow, err := rag.CompleteRAGFlow(ctx, o.Store, o.EmbeddingEngine, o.ChatEngine, userQuery, topKOrDefault(opts.TopK), documentIDs, opts.History, opts.HistoryLimit, opts.OnStream)
	if err != nil {
		o.scheduleCleanup(documentIDs)
		return fail(StepAnswerGeneration, fmt.Errorf("completing rag flow: %w", err))
	}
	report(StepAnswerGeneration, 95, "", nil)

	// Step 9: cleanup — scheduled, non-blocking.
	o.scheduleCleanup(documentIDs)

	result := &Result{
		Query:           userQuery,
		SearchQuery:     searchQuery,
		SearchResults:   results,
		SelectedURLs:    selectedURLs,
		CleanedContents: pages,
		RAG:             flow.RAG,
		Answer:          flow.Answer,
		Metadata: Metadata{
			TotalTime:   time.Since(start),
			SourcesUsed: len(pages),
			Timestamps:  timestamps,
		},
	}
	report(StepCompleted, 100, "", result)
	return result, nil
}

func topKOrDefault(topK int) int {
	if topK <= 0 {
		return 5
	}
	return topK
}

// generateSearchQuery rewrites userQuery into a short, quote-free
// search query (spec §4.9 step 1).
func (o *Orchestrator) generateSearchQuery(ctx context.Context, userQuery string) (string, error) {
	prompt := fmt.Sprintf("Reescribe la siguiente pregunta como una consulta de búsqueda web corta (5 a 7 palabras, sin comillas): %q", userQuery)
	raw, err := o.ChatEngine.GenerateText(ctx, []engine.ChatMessage{{Role: "user", Content: prompt}}, engine.GenerateOptions{Temperature: 0.3, MaxTokens: 64})
	if err != nil {
		return "", err
	}
	return sanitizeSearchQuery(raw), nil
}

func sanitizeSearchQuery(raw string) string {
	q := strings.TrimSpace(raw)
	q = strings.Trim(q, "\"'“”‘’")
	q = strings.TrimSpace(q)
	runes := []rune(q)
	if len(runes) > 100 {
		q = string(runes[:100])
	}
	return q
}

// urlSelectionReply is the tolerant JSON shape requested from the chat
// engine at url_selection (spec §4.9 step 3).
type urlSelectionReply struct {
	Indices []int `json:"indices"`
}

var jsonObjectPattern = regexp.MustCompile(`\{[^{}]*\}`)

// selectURLs asks the chat engine which search results to fetch,
// falling back to the first maxURLs results if the reply is missing,
// malformed, or names no in-bounds indices (spec §4.9 step 3).
func (o *Orchestrator) selectURLs(ctx context.Context, searchQuery string, results []websearch.SearchResult, maxURLs int) []websearch.SearchResult {
	var listing strings.Builder
	for i, r := range results {
		fmt.Fprintf(&listing, "%d: %s - %s\n", i, r.Title, r.Snippet)
	}
	prompt := fmt.Sprintf("Consulta: %s\n\nResultados:\n%sResponde únicamente con JSON de la forma {\"indices\":[...]} indicando hasta %d resultados más relevantes para responder la consulta.", searchQuery, listing.String(), maxURLs)

	raw, err := o.ChatEngine.GenerateText(ctx, []engine.ChatMessage{{Role: "user", Content: prompt}}, engine.GenerateOptions{Temperature: 0.1, MaxTokens: 256})
	if err != nil {
		slog.Warn("webrag: url selection call failed, falling back to first results", "error", err)
		return firstN(results, maxURLs)
	}

	indices := parseSelectionIndices(raw)
	var selected []websearch.SearchResult
	for _, idx := range indices {
		if idx >= 0 && idx < len(results) {
			selected = append(selected, results[idx])
		}
	}
	if len(selected) == 0 {
		return firstN(results, maxURLs)
	}
	if len(selected) > maxURLs {
		selected = selected[:maxURLs]
	}
	return selected
}

func parseSelectionIndices(raw string) []int {
	match := jsonObjectPattern.FindString(raw)
	if match == "" {
		return nil
	}
	var reply urlSelectionReply
	if err := json.Unmarshal([]byte(match), &reply); err != nil {
		return nil
	}
	return reply.Indices
}

func firstN(results []websearch.SearchResult, n int) []websearch.SearchResult {
	if n >= len(results) {
		return results
	}
	return results[:n]
}

// fetchPages applies the three-strategy fallback chain per selected
// result (spec §4.9 step 5): inline content first, then the connected
// browser helper, then the worker-resident fetcher. A page that fails
// every applicable strategy is omitted; if none succeed, the call
// fails.
func (o *Orchestrator) fetchPages(ctx context.Context, selected []websearch.SearchResult, opts Options) ([]ExtractedPage, error) {
	var pages []ExtractedPage
	var needsFetch []websearch.SearchResult

	for _, r := range selected {
		if strings.TrimSpace(r.Content) != "" {
			pages = append(pages, ExtractedPage{URL: r.URL, Title: r.Title, Content: r.Content})
			continue
		}
		needsFetch = append(needsFetch, r)
	}

	if len(needsFetch) > 0 && o.Browser != nil && o.Browser.Connected() {
		urls := make([]string, len(needsFetch))
		for i, r := range needsFetch {
			urls[i] = r.URL
		}
		fetched, err := o.Browser.FetchAndExtract(ctx, urls)
		if err != nil {
			slog.Warn("webrag: browser helper fetch failed, falling back to worker fetcher", "error", err)
		} else {
			byURL := make(map[string]FetchedPage, len(fetched))
			for _, f := range fetched {
				byURL[f.URL] = f
			}
			var remaining []websearch.SearchResult
			for _, r := range needsFetch {
				if f, ok := byURL[r.URL]; ok {
					pages = append(pages, ExtractedPage{URL: f.URL, Title: f.Title, Content: f.Content})
					continue
				}
				remaining = append(remaining, r)
			}
			needsFetch = remaining
		}
	}

	if len(needsFetch) > 0 && o.Workers != nil {
		for _, r := range needsFetch {
			page, err := o.workerFetch(ctx, r.URL, opts)
			if err != nil {
				slog.Warn("webrag: page fetch failed, omitting", "url", r.URL, "error", err)
				continue
			}
			pages = append(pages, page)
		}
	}

	if len(pages) == 0 {
		return nil, ErrAllPagesFailed
	}
	return pages, nil
}

// workerFetch submits a fetch+extract request to the "webfetch" worker
// role, strategy (c) (spec §4.9 step 5c).
func (o *Orchestrator) workerFetch(ctx context.Context, url string, opts Options) (ExtractedPage, error) {
	if !websearch.IsFetchable(url) {
		return ExtractedPage{}, fmt.Errorf("url not fetchable: %s", url)
	}
	timeout := opts.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	maxSize := opts.FetchMaxSize
	if maxSize <= 0 {
		maxSize = defaultFetchMaxSize
	}

	payload, err := o.Workers.Submit(ctx, webFetchWorker, "fetch", fetchRequest{URL: url, MaxSize: maxSize, Timeout: timeout}, nil)
	if err != nil {
		return ExtractedPage{}, err
	}
	resp, ok := payload.(fetchResponse)
	if !ok {
		return ExtractedPage{}, fmt.Errorf("webrag: unexpected webfetch payload type %T", payload)
	}
	if wordCount(resp.Content) < minExtractedWords {
		return ExtractedPage{}, fmt.Errorf("extracted content too short for %s", url)
	}
	return ExtractedPage{URL: url, Title: resp.Title, Content: resp.Content}, nil
}

type fetchRequest struct {
	URL     string
	MaxSize int64
	Timeout time.Duration
}

type fetchResponse struct {
	Title   string
	Content string
}

// webFetchHandler is the workerpool.Handler backing the "webfetch" role:
// a bounded GET followed by content extraction (spec §4.9 step 5c, 6).
func (o *Orchestrator) webFetchHandler(ctx context.Context, req workerpool.Request, progress workerpool.ProgressFunc) (any, error) {
	payload, ok := req.Payload.(fetchRequest)
	if !ok {
		return nil, fmt.Errorf("webrag: unexpected webfetch request payload type %T", req.Payload)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, payload.Timeout)
	defer cancel()

	progress(10, "fetching")
	httpReq, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, payload.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetching %s: status %d", payload.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, payload.MaxSize))
	if err != nil {
		return nil, err
	}

	progress(60, "extracting")
	result, err := extractor.Extract(string(body), payload.URL, extractor.Options{})
	if err != nil {
		return nil, err
	}
	progress(100, "done")
	return fetchResponse{Title: result.Title, Content: result.Text}, nil
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// ingestPages turns every fetched page into a temporary Document and
// runs the normal chunk+embed pipeline over it (spec §4.9 step 7),
// returning the created document ids. A single page failing its own
// processing does not abort the others; only a failure with zero
// successful ingests fails the step.
func (o *Orchestrator) ingestPages(ctx context.Context, pages []ExtractedPage, report func(step string, pct int, msg string, data any)) ([]int64, error) {
	report(StepChunking, 60, "", nil)

	var documentIDs []int64
	total := len(pages)
	for i, page := range pages {
		docID, err := o.Store.CreateDocument(ctx, store.Document{
			Name:    page.Title,
			Type:    store.DocumentWeb,
			Content: page.Content,
			Size:    int64(len(page.Content)),
			Status:  store.DocumentPending,
		})
		if err != nil {
			slog.Warn("webrag: creating temporary document failed", "url", page.URL, "error", err)
			continue
		}

		err = rag.ProcessDocument(ctx, o.Store, o.Chunker, o.EmbeddingEngine, o.EmbeddingModel, docID, page.Content, func(ev rag.ProgressEvent) {
			if ev.Stage != rag.StageEmbed {
				return
			}
			// Spread each page's [30,90]-banded embedding progress
			// across this step's overall [60,80] band.
			pageSpan := 20.0 / float64(total)
			base := 60.0 + float64(i)*pageSpan
			report(StepEmbedding, int(base+pageSpan*float64(ev.Progress)/100.0), "", nil)
		})
		if err != nil {
			slog.Warn("webrag: processing temporary document failed", "url", page.URL, "document_id", docID, "error", err)
			continue
		}
		documentIDs = append(documentIDs, docID)
	}

	if len(documentIDs) == 0 {
		return nil, fmt.Errorf("webrag: all page ingests failed")
	}
	report(StepEmbedding, 80, "", nil)
	return documentIDs, nil
}

// scheduleCleanup deletes the temporary documents created during this
// call in the background; it never blocks the returned answer (spec
// §4.9 step 9).
func (o *Orchestrator) scheduleCleanup(documentIDs []int64) {
	if len(documentIDs) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		for _, id := range documentIDs {
			if err := o.Store.DeleteDocument(ctx, id); err != nil {
				slog.Warn("webrag: cleanup failed to delete temporary document", "document_id", id, "error", err)
			}
		}
	}()
}
