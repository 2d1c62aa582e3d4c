package signals

import (
	"github.com/kestrelai/localrag/store"
)

// ModelsState tracks whether the chat/embedding engines are currently
// loaded, keyed by the spec's "both set" definition of modelsReady.
type ModelsState struct {
	ChatReady      bool
	EmbeddingReady bool
}

// ProcessingStatus is the single-valued, process-wide document
// processing signal (spec §3 ProcessingStatus entity). Stage is one of
// "parsing", "chunking", "embedding", "complete", or "error"; Error is
// only set when Stage is "error".
type ProcessingStatus struct {
	DocumentID int64
	Stage      string
	Progress   int // 0-100
	Message    string
	Error      string
}

// Registry is the process-wide set of observable cells (spec §4.13).
// It is not a singleton itself — callers construct one at startup and
// share the pointer — but its cells are meant to have exactly one
// process-wide instance in practice.
type Registry struct {
	Documents            *Cell[[]store.Document]
	Models               *Cell[ModelsState]
	Conversations        *Cell[[]store.Conversation]
	ActiveConversationID *Cell[*int64]
	Processing           *Cell[ProcessingStatus]

	// ModelsReady and HasReadyDocuments are computed cells re-evaluated
	// on every write to the cells they depend on.
	ModelsReady       *Cell[bool]
	HasReadyDocuments *Cell[bool]
}

// NewRegistry builds a Registry with all cells at their zero values and
// wires the two computed cells.
func NewRegistry() *Registry {
	r := &Registry{
		Documents:            NewCell([]store.Document(nil)),
		Models:               NewCell(ModelsState{}),
		Conversations:        NewCell([]store.Conversation(nil)),
		ActiveConversationID: NewCell[*int64](nil),
		Processing:           NewCell(ProcessingStatus{}),
	}
	r.ModelsReady = Computed(r.Models, func(m ModelsState) bool {
		return m.ChatReady && m.EmbeddingReady
	})
	r.HasReadyDocuments = Computed(r.Documents, func(docs []store.Document) bool {
		for _, d := range docs {
			if d.Status == store.DocumentReady {
				return true
			}
		}
		return false
	})
	return r
}
