// Package localrag composes the persistent store, chunker, parser
// registry, model-engine manager, retrieval, RAG pipeline, web search,
// and Web-RAG orchestrator into the single entry point applications
// embed: ingest a document, ask a question, or run a web-grounded
// search.
package localrag

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gopsutilmem "github.com/shirou/gopsutil/v3/mem"

	"github.com/kestrelai/localrag/chunker"
	"github.com/kestrelai/localrag/conversation"
	"github.com/kestrelai/localrag/engine"
	"github.com/kestrelai/localrag/parser"
	"github.com/kestrelai/localrag/rag"
	"github.com/kestrelai/localrag/retrieval"
	"github.com/kestrelai/localrag/signals"
	"github.com/kestrelai/localrag/store"
	"github.com/kestrelai/localrag/webcache"
	"github.com/kestrelai/localrag/webrag"
	"github.com/kestrelai/localrag/websearch"
	"github.com/kestrelai/localrag/workerpool"
)

// Source is a retrieved chunk backing an Answer (spec §4.5 "{ chunk,
// document, score }", surfaced at the facade boundary).
type Source struct {
	DocumentID   int64
	DocumentName string
	ChunkID      int64
	Content      string
	Score        float64
}

// Answer is Query's return value (spec §4.6 completeRAGFlow step 6).
type Answer struct {
	Text          string
	Sources       []Source
	TotalSearched int
	SearchTime    time.Duration
}

// Document mirrors store.Document for callers that only need the
// facade package.
type Document struct {
	ID           int64
	Name         string
	Type         string
	Status       string
	ErrorMessage string
	Metadata     map[string]string
	UploadedAt   time.Time
	ProcessedAt  *time.Time
}

// IngestOption configures an Ingest call.
type IngestOption func(*ingestOptions)

type ingestOptions struct {
	metadata   map[string]string
	onProgress rag.ProgressFunc
}

// WithMetadata attaches caller-supplied metadata to the ingested document.
func WithMetadata(metadata map[string]string) IngestOption {
	return func(o *ingestOptions) { o.metadata = metadata }
}

// WithIngestProgress reports ProcessDocument's stage progress (spec §4.6).
func WithIngestProgress(fn rag.ProgressFunc) IngestOption {
	return func(o *ingestOptions) { o.onProgress = fn }
}

// QueryOption configures a Query call.
type QueryOption func(*queryOptions)

type queryOptions struct {
	topK           int
	documentIDs    []int64
	conversationID *int64
	onStream       engine.StreamFunc
}

// WithTopK overrides the configured default top-K for this query.
func WithTopK(n int) QueryOption {
	return func(o *queryOptions) { o.topK = n }
}

// WithDocuments restricts retrieval to the given document ids.
func WithDocuments(ids []int64) QueryOption {
	return func(o *queryOptions) { o.documentIDs = ids }
}

// WithConversation threads the query through an existing conversation:
// its history is rendered into the prompt and both turns are appended
// on return.
func WithConversation(id int64) QueryOption {
	return func(o *queryOptions) { o.conversationID = &id }
}

// WithStream receives each generated token delta as it is produced.
func WithStream(fn engine.StreamFunc) QueryOption {
	return func(o *queryOptions) { o.onStream = fn }
}

// Engine is the process-wide facade applications embed (spec §1-2): it
// owns the store and wires every core subsystem around it.
type Engine struct {
	cfg Config

	store         *store.Store
	chunkr        *chunker.Chunker
	parsers       *parser.Registry
	manager       *engine.Manager
	searchSvc     *websearch.Service
	extension     *websearch.ExtensionProvider
	webCache      *webcache.Cache
	conversations *conversation.Store
	workers       *workerpool.Pool

	Signals *signals.Registry

	profile engine.DeviceProfile

	mu      sync.Mutex
	browser webrag.BrowserHelper
}

// New wires a new Engine from cfg: opens the store, builds the chunker,
// parser registry, engine manager, web-search aggregator, web-page
// cache, conversation store, worker pool, and reactive-signal registry
// (spec §2's component list).
func New(cfg Config) (*Engine, error) {
	if cfg.EmbeddingDim == 0 {
		cfg.EmbeddingDim = 768
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dbPath := cfg.ResolveDBPath()
	s, err := store.Open(dbPath, cfg.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	chunkr := chunker.New(chunker.Config{ChunkSize: cfg.ChunkSize, MinSize: cfg.ChunkSize / 2})
	parsers := parser.NewRegistry()
	mgr := engine.NewManager(engine.Config{GPUEngineURL: cfg.GPUEngineURL, WasmEngineURL: cfg.WasmEngineURL})

	extensionSecret, err := resolveExtensionSecret(context.Background(), s, cfg.ExtensionSecret)
	if err != nil {
		return nil, fmt.Errorf("resolving extension secret: %w", err)
	}
	extProvider := websearch.NewExtensionProvider(extensionSecret)

	searchSvc := websearch.NewService([]websearch.Provider{
		websearch.NewWikipediaProvider(cfg.WebSearchProxyURL),
		websearch.NewDuckDuckGoProvider(cfg.WebSearchProxyURL),
		extProvider,
	})

	ttl := time.Duration(cfg.WebPageCacheTTLSeconds) * time.Second
	cache := webcache.New(s, ttl, ttl)

	sig := signals.NewRegistry()

	e := &Engine{
		cfg:           cfg,
		store:         s,
		chunkr:        chunkr,
		parsers:       parsers,
		manager:       mgr,
		searchSvc:     searchSvc,
		extension:     extProvider,
		webCache:      cache,
		conversations: conversation.New(s, sig),
		workers:       workerpool.New(),
		Signals:       sig,
		profile:       detectDeviceProfile(cfg),
	}

	if err := e.refreshDocuments(context.Background()); err != nil {
		slog.Warn("localrag: initial documents signal refresh failed", "error", err)
	}
	e.conversations.Refresh(context.Background())

	return e, nil
}

// extensionSecretSettingKey persists a generated extension JWT secret so
// previously minted tokens stay valid across restarts.
const extensionSecretSettingKey = "extension_secret"

// resolveExtensionSecret returns configured as the secret if set,
// otherwise the secret persisted from a prior run, otherwise a freshly
// generated one that is saved for next time.
func resolveExtensionSecret(ctx context.Context, s *store.Store, configured string) ([]byte, error) {
	if configured != "" {
		return []byte(configured), nil
	}
	if existing, ok, err := s.GetSetting(ctx, extensionSecretSettingKey); err != nil {
		return nil, err
	} else if ok && existing != "" {
		return []byte(existing), nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generating extension secret: %w", err)
	}
	secret := hex.EncodeToString(buf)
	if err := s.PutSetting(ctx, extensionSecretSettingKey, secret); err != nil {
		return nil, err
	}
	return []byte(secret), nil
}

// detectDeviceProfile implements spec §4.4's cold-start detection of
// {hasWebGPU, memoryGB, gpuTier} for the native reimplementation: a
// reachable GPU-runtime sidecar stands in for "browser reports WebGPU",
// and host memory stands in for the browser's memory estimate. GPUTier
// is left at its zero value here — it is only known after the GPU
// engine's own capability probe at Initialize time (engine/gpu.go).
func detectDeviceProfile(cfg Config) engine.DeviceProfile {
	profile := engine.DeviceProfile{HasWebGPU: cfg.GPUEngineURL != ""}

	vm, err := gopsutilmem.VirtualMemory()
	if err != nil {
		slog.Warn("localrag: host memory probe failed", "error", err)
		return profile
	}
	profile.MemoryGB = float64(vm.Total) / (1 << 30)
	return profile
}

// stageParsing is the one ProcessingStatus stage that happens before
// rag.ProcessDocument is ever called (spec §3's stage enum includes
// "parsing" alongside rag's own chunking/embedding/complete/error).
const stageParsing = "parsing"

// Ingest parses path with the parser registered for its extension,
// chunks and embeds the result, and persists it as a ready Document
// (spec §4.6 processDocument, fed by the §6 parser contract). Every
// stage transition, including parsing, is mirrored into
// Signals.Processing (spec §4.13/§3 ProcessingStatus).
func (e *Engine) Ingest(ctx context.Context, path string, opts ...IngestOption) (int64, error) {
	options := &ingestOptions{}
	for _, o := range opts {
		o(options)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("resolving path: %w", err)
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(absPath), "."))
	docType := ext
	if docType == "markdown" {
		docType = string(store.DocumentMarkdown)
	}

	p, err := e.parsers.Get(ext)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}

	e.Signals.Processing.Set(signals.ProcessingStatus{Stage: stageParsing, Progress: 0, Message: "parsing " + filepath.Base(absPath)})

	slog.Info("localrag: parsing document", "file", absPath, "format", ext)
	parseStart := time.Now()
	parsed, err := p.Parse(ctx, absPath)
	if err != nil {
		e.Signals.Processing.Set(signals.ProcessingStatus{Stage: stageParsing, Message: "parsing failed", Error: err.Error()})
		return 0, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}
	slog.Info("localrag: parsing complete", "file", absPath, "sections", len(parsed.Sections), "elapsed", time.Since(parseStart).Round(time.Millisecond))
	e.Signals.Processing.Set(signals.ProcessingStatus{Stage: stageParsing, Progress: 100, Message: "parsing complete"})

	var metadataJSON string
	if merged := mergeMetadata(parsed.Metadata, options.metadata); len(merged) > 0 {
		data, _ := json.Marshal(merged)
		metadataJSON = string(data)
	}

	text := renderSections(parsed.Sections)

	docID, err := e.store.CreateDocument(ctx, store.Document{
		Name:     filepath.Base(absPath),
		Type:     store.DocumentType(docType),
		Content:  text,
		Size:     int64(len(text)),
		Status:   store.DocumentPending,
		Metadata: metadataJSON,
	})
	if err != nil {
		return 0, fmt.Errorf("creating document: %w", err)
	}

	embedEngine, err := e.loadEmbeddingEngine(ctx, nil)
	if err != nil {
		return 0, err
	}

	onProgress := func(ev rag.ProgressEvent) {
		e.Signals.Processing.Set(signals.ProcessingStatus{
			DocumentID: ev.DocumentID,
			Stage:      ev.Stage,
			Progress:   ev.Progress,
			Message:    ev.Message,
			Error:      ev.Error,
		})
		if options.onProgress != nil {
			options.onProgress(ev)
		}
	}

	if err := rag.ProcessDocument(ctx, e.store, e.chunkr, embedEngine, e.cfg.EmbeddingModel, docID, text, onProgress); err != nil {
		return docID, translateRagErr(err)
	}

	if err := e.refreshDocuments(ctx); err != nil {
		slog.Warn("localrag: documents signal refresh failed", "error", err)
	}
	return docID, nil
}

// mergeMetadata combines parser-derived metadata (e.g. a PDF's page count)
// with caller-supplied metadata; caller values win on key collision.
func mergeMetadata(parsed, caller map[string]string) map[string]string {
	if len(parsed) == 0 {
		return caller
	}
	merged := make(map[string]string, len(parsed)+len(caller))
	for k, v := range parsed {
		merged[k] = v
	}
	for k, v := range caller {
		merged[k] = v
	}
	return merged
}

// renderSections flattens a parsed document's sections into a single
// text blob, one blank line between sections, headings on their own line.
func renderSections(sections []parser.Section) string {
	var b strings.Builder
	for i, sec := range sections {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if sec.Heading != "" {
			b.WriteString(sec.Heading)
			b.WriteString("\n")
		}
		b.WriteString(sec.Content)
	}
	return b.String()
}

// Query embeds question, retrieves the configured top-K most similar
// chunks, and generates a grounded answer (spec §4.6 completeRAGFlow).
// With WithConversation, the conversation's history is rendered into
// the prompt and both turns are appended once the answer is generated.
func (e *Engine) Query(ctx context.Context, question string, opts ...QueryOption) (*Answer, error) {
	options := &queryOptions{topK: e.cfg.TopK}
	for _, o := range opts {
		o(options)
	}
	if options.topK <= 0 {
		options.topK = e.cfg.TopK
	}

	embedEngine, err := e.loadEmbeddingEngine(ctx, nil)
	if err != nil {
		return nil, err
	}
	chatEngine, err := e.loadChatEngine(ctx, nil)
	if err != nil {
		return nil, err
	}

	var history []store.Message
	if options.conversationID != nil {
		history, err = e.conversations.Messages(ctx, *options.conversationID)
		if err != nil {
			return nil, fmt.Errorf("loading conversation history: %w", err)
		}
	}

	result, err := rag.CompleteRAGFlow(ctx, e.store, embedEngine, chatEngine, question, options.topK, options.documentIDs, history, e.cfg.HistoryLimit, options.onStream)
	if err != nil {
		return nil, err
	}

	if options.conversationID != nil {
		if _, err := e.conversations.AddMessage(ctx, store.Message{ConversationID: *options.conversationID, Role: store.RoleUser, Content: question}); err != nil {
			slog.Warn("localrag: failed to persist user message", "error", err)
		}
		if _, err := e.conversations.AddMessage(ctx, store.Message{ConversationID: *options.conversationID, Role: store.RoleAssistant, Content: result.Answer, Model: e.cfg.ChatModel}); err != nil {
			slog.Warn("localrag: failed to persist assistant message", "error", err)
		}
	}

	return &Answer{
		Text:          result.Answer,
		Sources:       toSources(result.RAG.Chunks),
		TotalSearched: result.RAG.TotalSearched,
		SearchTime:    result.RAG.SearchTime,
	}, nil
}

func toSources(results []retrieval.Result) []Source {
	sources := make([]Source, len(results))
	for i, r := range results {
		sources[i] = Source{
			DocumentID:   r.Document.ID,
			DocumentName: r.Document.Name,
			ChunkID:      r.Chunk.ID,
			Content:      r.Chunk.Content,
			Score:        float64(r.Score),
		}
	}
	return sources
}

// SetBrowserHelper installs the browser-side fetch+extract helper used
// by SearchWeb's page-fetch strategy (b) (spec §4.9 step 5b). A nil
// helper disables strategy (b); strategy (c), the worker-resident
// fetcher, is always available.
func (e *Engine) SetBrowserHelper(b webrag.BrowserHelper) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.browser = b
}

// SearchWeb runs the Web-RAG orchestrator's 9-step state machine (spec
// §4.9): rewrite userQuery into a search query, search the web, select
// and fetch candidate pages, ingest them as temporary documents, and
// answer userQuery grounded in that ephemeral corpus.
func (e *Engine) SearchWeb(ctx context.Context, userQuery string, opts webrag.Options, onProgress webrag.ProgressFunc) (*webrag.Result, error) {
	embedEngine, err := e.loadEmbeddingEngine(ctx, nil)
	if err != nil {
		return nil, err
	}
	chatEngine, err := e.loadChatEngine(ctx, nil)
	if err != nil {
		return nil, err
	}

	if opts.TopK <= 0 {
		opts.TopK = e.cfg.TopK
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = e.cfg.HistoryLimit
	}
	if len(opts.Sources) == 0 {
		opts.Sources = e.cfg.WebSearchSources
	}
	if opts.MaxURLsToFetch <= 0 {
		opts.MaxURLsToFetch = e.cfg.WebSearchMaxURLs
	}

	e.mu.Lock()
	browser := e.browser
	e.mu.Unlock()

	orch := webrag.New(e.store, e.chunkr, embedEngine, chatEngine, e.cfg.EmbeddingModel, e.searchSvc, browser, e.workers)
	result, err := orch.Search(ctx, userQuery, opts, onProgress)
	if err != nil {
		return nil, translateWebragErr(err)
	}
	return result, nil
}

// Delete removes a document and cascades to its chunks and embeddings
// in one transaction (spec §3 "Destroying a Document removes its
// Chunks and Embeddings in one atomic transaction").
func (e *Engine) Delete(ctx context.Context, documentID int64) error {
	if _, err := e.store.GetDocument(ctx, documentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: document %d", ErrDocumentNotFound, documentID)
		}
		return err
	}
	if err := e.store.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	return e.refreshDocuments(ctx)
}

// ListDocuments returns every persisted document, newest first.
func (e *Engine) ListDocuments(ctx context.Context) ([]Document, error) {
	docs, err := e.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]Document, len(docs))
	for i, d := range docs {
		result[i] = toDocument(d)
	}
	return result, nil
}

func toDocument(d store.Document) Document {
	doc := Document{
		ID:           d.ID,
		Name:         d.Name,
		Type:         string(d.Type),
		Status:       string(d.Status),
		ErrorMessage: d.ErrorMessage,
		UploadedAt:   d.UploadedAt,
		ProcessedAt:  d.ProcessedAt,
	}
	if d.Metadata != "" {
		_ = json.Unmarshal([]byte(d.Metadata), &doc.Metadata)
	}
	return doc
}

func (e *Engine) refreshDocuments(ctx context.Context) error {
	docs, err := e.store.ListDocuments(ctx)
	if err != nil {
		return err
	}
	e.Signals.Documents.Set(docs)
	return nil
}

// Store returns the underlying store for diagnostic or CLI access.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Conversations returns the conversation store (spec §4.12).
func (e *Engine) Conversations() *conversation.Store {
	return e.conversations
}

// WebCache returns the web-page cache (spec §4.11).
func (e *Engine) WebCache() *webcache.Cache {
	return e.webCache
}

// ExtensionProvider returns the browser-extension search provider (spec
// §4.7's third provider). It is always constructed and already part of
// SearchWeb's provider set, but reports unavailable until a caller
// attaches a live browser-extension socket to it through this accessor
// (e.g. an HTTP /ws upgrade route).
func (e *Engine) ExtensionProvider() *websearch.ExtensionProvider {
	return e.extension
}

// Close releases every owned resource: the worker pool, web-search
// sweep loop, web-page cache sweep loop, engines, and the store itself.
func (e *Engine) Close() error {
	e.workers.TerminateAll()
	e.searchSvc.Close()
	e.webCache.Close()
	e.manager.ResetAll()
	return e.store.Close()
}

// loadEmbeddingEngine fetches the process-singleton embedding engine
// (spec §4.4: always the WASM runtime), translating manager errors onto
// the facade's sentinel taxonomy (spec §7).
func (e *Engine) loadEmbeddingEngine(ctx context.Context, onProgress engine.ProgressFunc) (engine.ModelEngine, error) {
	eng, err := e.manager.GetEmbeddingEngine(ctx, e.cfg.EmbeddingModel, onProgress)
	if err != nil {
		return nil, translateEngineErr(err)
	}
	e.Signals.Models.Update(func(s signals.ModelsState) signals.ModelsState {
		s.EmbeddingReady = true
		return s
	})
	return eng, nil
}

// loadChatEngine fetches the process-singleton chat engine, applying
// spec §4.4's cold-start auto-selection policy via e.profile when
// e.cfg.ChatModel is empty.
func (e *Engine) loadChatEngine(ctx context.Context, onProgress engine.ProgressFunc) (engine.ModelEngine, error) {
	eng, err := e.manager.GetChatEngine(ctx, e.cfg.ChatModel, e.profile, onProgress)
	if err != nil {
		return nil, translateEngineErr(err)
	}
	e.Signals.Models.Update(func(s signals.ModelsState) signals.ModelsState {
		s.ChatReady = true
		return s
	})
	return eng, nil
}

// translateEngineErr maps engine package sentinels onto this package's
// error taxonomy (spec §7); engine cannot import localrag without an
// import cycle, so the mapping lives at this boundary.
func translateEngineErr(err error) error {
	switch {
	case errors.Is(err, engine.ErrNoComputeDevice):
		return fmt.Errorf("%w: %v", ErrNoComputeDevice, err)
	case errors.Is(err, engine.ErrUnsupportedEnvironment):
		return fmt.Errorf("%w: %v", ErrUnsupportedEnvironment, err)
	case errors.Is(err, engine.ErrNotInitialized), errors.Is(err, engine.ErrModelNotLoaded):
		return fmt.Errorf("%w: %v", ErrModelNotLoaded, err)
	case errors.Is(err, engine.ErrEmbeddingUnsupported):
		return fmt.Errorf("%w: %v", ErrEmbeddingUnsupported, err)
	case errors.Is(err, engine.ErrInferenceFailed):
		return fmt.Errorf("%w: %v", ErrInferenceFailed, err)
	default:
		return fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
}

// translateWebragErr maps webrag/workerpool sentinels onto this
// package's error taxonomy (spec §7's no-results/user-cancelled/
// fetch-failed/worker-error rows).
func translateWebragErr(err error) error {
	var fatal *workerpool.FatalError
	switch {
	case errors.Is(err, webrag.ErrNoResults):
		return fmt.Errorf("%w: %v", ErrNoResults, err)
	case errors.Is(err, webrag.ErrUserCancelled):
		return fmt.Errorf("%w: %v", ErrUserCancelled, err)
	case errors.Is(err, webrag.ErrAllPagesFailed):
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	case errors.Is(err, workerpool.ErrUnknownWorker):
		return fmt.Errorf("%w: %v", ErrWorkerError, err)
	case errors.Is(err, workerpool.ErrWorkerTerminated), errors.Is(err, workerpool.ErrWorkerTimeout):
		return fmt.Errorf("%w: %v", ErrWorkerTimeout, err)
	case errors.As(err, &fatal):
		return fmt.Errorf("%w: %v", ErrWorkerError, err)
	default:
		return translateEngineErr(err)
	}
}

// translateRagErr maps rag package sentinels onto this package's error
// taxonomy (spec §7's chunk-failed/embed-failed rows); rag cannot import
// localrag without an import cycle, so the mapping lives at this
// boundary, same as translateEngineErr and translateWebragErr.
func translateRagErr(err error) error {
	switch {
	case errors.Is(err, rag.ErrChunkFailed):
		return fmt.Errorf("%w: %v", ErrChunkFailed, err)
	case errors.Is(err, rag.ErrEmbedFailed):
		return fmt.Errorf("%w: %v", ErrEmbedFailed, err)
	default:
		return err
	}
}
