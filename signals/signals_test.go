package signals

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelai/localrag/store"
)

func TestCellGetSet(t *testing.T) {
	c := NewCell(1)
	assert.Equal(t, 1, c.Get())
	c.Set(2)
	assert.Equal(t, 2, c.Get())
}

func TestCellSubscribeNotifiedOnSet(t *testing.T) {
	c := NewCell(0)
	var got []int
	c.Subscribe(func(v int) { got = append(got, v) })

	c.Set(5)
	c.Set(10)

	require.Equal(t, []int{5, 10}, got)
}

func TestCellUnsubscribeStopsNotifications(t *testing.T) {
	c := NewCell(0)
	var calls int
	unsub := c.Subscribe(func(int) { calls++ })
	c.Set(1)
	unsub()
	c.Set(2)

	assert.Equal(t, 1, calls)
}

func TestCellUpdate(t *testing.T) {
	c := NewCell(10)
	c.Update(func(v int) int { return v + 5 })
	assert.Equal(t, 15, c.Get())
}

func TestComputedReevaluatesOnSourceChange(t *testing.T) {
	source := NewCell(2)
	doubled := Computed(source, func(v int) int { return v * 2 })

	assert.Equal(t, 4, doubled.Get())
	source.Set(3)
	assert.Equal(t, 6, doubled.Get())
}

func TestComputed2ReevaluatesOnEitherSourceChange(t *testing.T) {
	a := NewCell(1)
	b := NewCell(10)
	sum := Computed2(a, b, func(x, y int) int { return x + y })

	assert.Equal(t, 11, sum.Get())
	a.Set(2)
	assert.Equal(t, 12, sum.Get())
	b.Set(20)
	assert.Equal(t, 22, sum.Get())
}

func TestRegistryModelsReadyRequiresBoth(t *testing.T) {
	r := NewRegistry()
	require.False(t, r.ModelsReady.Get(), "ModelsReady should start false")

	r.Models.Set(ModelsState{ChatReady: true})
	require.False(t, r.ModelsReady.Get(), "ModelsReady should stay false with only chat ready")

	r.Models.Set(ModelsState{ChatReady: true, EmbeddingReady: true})
	require.True(t, r.ModelsReady.Get(), "ModelsReady should be true once both are ready")
}

func TestRegistryProcessingStartsZeroValue(t *testing.T) {
	r := NewRegistry()
	require.Equal(t, ProcessingStatus{}, r.Processing.Get())

	r.Processing.Set(ProcessingStatus{DocumentID: 7, Stage: "chunking", Progress: 10, Message: "chunking text into pieces"})
	got := r.Processing.Get()
	assert.Equal(t, int64(7), got.DocumentID)
	assert.Equal(t, "chunking", got.Stage)
	assert.Equal(t, 10, got.Progress)
	assert.Empty(t, got.Error)
}

func TestRegistryHasReadyDocuments(t *testing.T) {
	r := NewRegistry()
	require.False(t, r.HasReadyDocuments.Get(), "HasReadyDocuments should start false")

	r.Documents.Set([]store.Document{{ID: 1, Status: store.DocumentProcessing}})
	require.False(t, r.HasReadyDocuments.Get(), "HasReadyDocuments should stay false with only a processing document")

	r.Documents.Set([]store.Document{{ID: 1, Status: store.DocumentReady}})
	require.True(t, r.HasReadyDocuments.Get(), "HasReadyDocuments should be true once a ready document exists")
}
