//go:build cgo

package localrag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelai/localrag/engine"
	"github.com/kestrelai/localrag/rag"
	"github.com/kestrelai/localrag/signals"
	"github.com/kestrelai/localrag/webrag"
	"github.com/kestrelai/localrag/workerpool"
)

// fakeModelEngine is a minimal engine.ModelEngine double: always ready,
// produces fixed-dimension vectors deterministically from input length.
type fakeModelEngine struct {
	dim       int
	generated string
	caps      engine.Capabilities
}

func (f *fakeModelEngine) Initialize(ctx context.Context, modelIdentifier string, onProgress engine.ProgressFunc) error {
	return nil
}
func (f *fakeModelEngine) IsReady() bool                     { return true }
func (f *fakeModelEngine) Capabilities() engine.Capabilities { return f.caps }
func (f *fakeModelEngine) Reset()                            {}

func (f *fakeModelEngine) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, f.dim)
	for i := range vec {
		vec[i] = float32(len(text) + i)
	}
	return vec, nil
}

func (f *fakeModelEngine) GenerateEmbeddingsBatch(ctx context.Context, texts []string, maxConcurrent int, onProgress engine.ProgressFunc) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = f.GenerateEmbedding(ctx, t)
	}
	return out, nil
}

func (f *fakeModelEngine) GenerateText(ctx context.Context, messages []engine.ChatMessage, opts engine.GenerateOptions) (string, error) {
	if opts.OnStream != nil {
		opts.OnStream(f.generated)
	}
	return f.generated, nil
}

// newTestEngine builds an *Engine over a temp SQLite file with fake chat
// and embedding engines pre-installed (bypassing the manager's
// URL-based GPU/WASM construction, per engine.Manager's Set*Engine
// escape hatch).
func newTestEngine(t *testing.T, answer string) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "test.db")
	cfg.EmbeddingDim = 3
	cfg.ChunkSize = 200

	e, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	e.manager.SetEmbeddingEngine(&fakeModelEngine{dim: 3}, cfg.EmbeddingModel)
	e.manager.SetChatEngine(&fakeModelEngine{dim: 3, generated: answer}, cfg.ChatModel)
	return e
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngestAndQueryRoundTrip(t *testing.T) {
	e := newTestEngine(t, "the answer is 42")
	ctx := context.Background()

	path := writeTempFile(t, "doc.txt", "First paragraph of reasonable length for chunking.\n\nSecond paragraph follows with more content here to chunk.")
	docID, err := e.Ingest(ctx, path)
	require.NoError(t, err)
	require.Positive(t, docID)

	docs, err := e.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "ready", docs[0].Status)
	assert.Equal(t, "txt", docs[0].Type)

	answer, err := e.Query(ctx, "what is the answer?")
	require.NoError(t, err)
	assert.Equal(t, "the answer is 42", answer.Text)
	assert.NotEmpty(t, answer.Sources, "expected retrieved chunks from the ingested document")
	assert.Equal(t, docID, answer.Sources[0].DocumentID)
}

func TestIngestWithMetadataPersists(t *testing.T) {
	e := newTestEngine(t, "ok")
	ctx := context.Background()

	path := writeTempFile(t, "doc.txt", "Some content to ingest and chunk for the metadata test case here.")
	docID, err := e.Ingest(ctx, path, WithMetadata(map[string]string{"source": "unit-test"}))
	require.NoError(t, err)

	docs, err := e.ListDocuments(ctx)
	require.NoError(t, err)
	var found *Document
	for i := range docs {
		if docs[i].ID == docID {
			found = &docs[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, "unit-test", found.Metadata["source"])
}

func TestIngestReportsProcessingSignalThroughAllStages(t *testing.T) {
	e := newTestEngine(t, "ok")
	ctx := context.Background()

	var stages []string
	unsub := e.Signals.Processing.Subscribe(func(s signals.ProcessingStatus) {
		stages = append(stages, s.Stage)
	})
	defer unsub()

	path := writeTempFile(t, "doc.txt", "Some content to ingest and chunk for the processing signal test here.")
	docID, err := e.Ingest(ctx, path)
	require.NoError(t, err)

	require.NotEmpty(t, stages)
	assert.Equal(t, stageParsing, stages[0])
	assert.Contains(t, stages, rag.StageChunking)
	assert.Contains(t, stages, rag.StageComplete)

	final := e.Signals.Processing.Get()
	assert.Equal(t, rag.StageComplete, final.Stage)
	assert.Equal(t, docID, final.DocumentID)
	assert.Equal(t, 100, final.Progress)
}

func TestIngestFailureReportsParsingStageError(t *testing.T) {
	e := newTestEngine(t, "ok")
	ctx := context.Background()

	_, err := e.Ingest(ctx, filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)

	final := e.Signals.Processing.Get()
	assert.Equal(t, stageParsing, final.Stage)
	assert.NotEmpty(t, final.Error)
}

func TestExtensionProviderConstructedButUnavailableUntilAttached(t *testing.T) {
	e := newTestEngine(t, "ok")

	ext := e.ExtensionProvider()
	require.NotNil(t, ext)
	assert.False(t, ext.IsAvailable())
	assert.Equal(t, "extension", ext.Name())
}

func TestResolveExtensionSecretUsesConfiguredValue(t *testing.T) {
	e := newTestEngine(t, "ok")
	secret, err := resolveExtensionSecret(context.Background(), e.store, "configured-secret")
	require.NoError(t, err)
	assert.Equal(t, "configured-secret", string(secret))
}

func TestResolveExtensionSecretPersistsAcrossCalls(t *testing.T) {
	e := newTestEngine(t, "ok")
	ctx := context.Background()

	first, err := resolveExtensionSecret(ctx, e.store, "")
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := resolveExtensionSecret(ctx, e.store, "")
	require.NoError(t, err)
	assert.Equal(t, first, second, "a regenerated-each-call secret would invalidate previously minted tokens")
}

func TestQueryNoDocumentsUsesMinimalPrompt(t *testing.T) {
	e := newTestEngine(t, "no context needed answer")
	ctx := context.Background()

	answer, err := e.Query(ctx, "anything")
	require.NoError(t, err)
	assert.Equal(t, "no context needed answer", answer.Text)
	assert.Empty(t, answer.Sources)
	assert.Equal(t, 0, answer.TotalSearched)
}

func TestQueryWithConversationPersistsBothTurns(t *testing.T) {
	e := newTestEngine(t, "conversation answer")
	ctx := context.Background()

	convID, err := e.Conversations().Create(ctx, "New Conversation", "")
	require.NoError(t, err)

	_, err = e.Query(ctx, "hello there", WithConversation(convID))
	require.NoError(t, err)

	messages, err := e.Conversations().Messages(ctx, convID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "hello there", messages[0].Content)
	assert.Equal(t, "conversation answer", messages[1].Content)
}

func TestDeleteCascadesChunksAndEmbeddings(t *testing.T) {
	e := newTestEngine(t, "ok")
	ctx := context.Background()

	path := writeTempFile(t, "doc.txt", "Content long enough to produce at least one chunk for deletion testing.")
	docID, err := e.Ingest(ctx, path)
	require.NoError(t, err)

	chunks, err := e.Store().GetChunksByDocument(ctx, docID)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	require.NoError(t, e.Delete(ctx, docID))

	docs, err := e.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)

	embs, err := e.Store().GetEmbeddings(ctx, []int64{docID})
	require.NoError(t, err)
	assert.Empty(t, embs, "expected cascaded embeddings to be gone")
}

func TestDeleteUnknownDocumentReturnsNotFound(t *testing.T) {
	e := newTestEngine(t, "ok")
	err := e.Delete(context.Background(), 999)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestTranslateEngineErrMapsKnownSentinels(t *testing.T) {
	cases := []struct {
		in   error
		want error
	}{
		{engine.ErrNoComputeDevice, ErrNoComputeDevice},
		{engine.ErrUnsupportedEnvironment, ErrUnsupportedEnvironment},
		{engine.ErrNotInitialized, ErrModelNotLoaded},
		{engine.ErrEmbeddingUnsupported, ErrEmbeddingUnsupported},
		{engine.ErrInferenceFailed, ErrInferenceFailed},
		{errors.New("unrelated"), ErrLoadFailed},
	}
	for _, tt := range cases {
		assert.ErrorIsf(t, translateEngineErr(tt.in), tt.want, "translateEngineErr(%v)", tt.in)
	}
}

func TestTranslateRagErrMapsKnownSentinels(t *testing.T) {
	cases := []struct {
		in   error
		want error
	}{
		{rag.ErrChunkFailed, ErrChunkFailed},
		{rag.ErrEmbedFailed, ErrEmbedFailed},
		{errors.New("unrelated"), nil},
	}
	for _, tt := range cases {
		got := translateRagErr(tt.in)
		if tt.want == nil {
			assert.Same(t, tt.in, got, "unrecognized errors pass through unchanged")
			continue
		}
		assert.ErrorIsf(t, got, tt.want, "translateRagErr(%v)", tt.in)
	}
}

// failingEmbedEngine fails embedding generation, exercising Ingest's
// rag.ErrEmbedFailed translation path.
type failingEmbedEngine struct{ fakeModelEngine }

func (f *failingEmbedEngine) GenerateEmbeddingsBatch(ctx context.Context, texts []string, maxConcurrent int, onProgress engine.ProgressFunc) ([][]float32, error) {
	return nil, errors.New("backend unreachable")
}

func TestIngestWrapsEmbeddingFailureAsErrEmbedFailed(t *testing.T) {
	e := newTestEngine(t, "ok")
	ctx := context.Background()
	e.manager.SetEmbeddingEngine(&failingEmbedEngine{fakeModelEngine{dim: 3}}, e.cfg.EmbeddingModel)

	path := writeTempFile(t, "doc.txt", "Content long enough to attempt chunking and then fail at the embedding stage.")
	_, err := e.Ingest(ctx, path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbedFailed)
}

func TestTranslateWebragErrMapsKnownSentinels(t *testing.T) {
	cases := []struct {
		in   error
		want error
	}{
		{webrag.ErrNoResults, ErrNoResults},
		{webrag.ErrUserCancelled, ErrUserCancelled},
		{webrag.ErrAllPagesFailed, ErrFetchFailed},
		{workerpool.ErrUnknownWorker, ErrWorkerError},
		{workerpool.ErrWorkerTerminated, ErrWorkerTimeout},
		{&workerpool.FatalError{Err: errors.New("boom")}, ErrWorkerError},
	}
	for _, tt := range cases {
		assert.ErrorIsf(t, translateWebragErr(tt.in), tt.want, "translateWebragErr(%v)", tt.in)
	}
}
