package parser

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextParserReportsLineCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("line one\nline two\nline three"), 0o644))

	p := &TextParser{}
	result, err := p.Parse(context.Background(), path)
	require.NoError(t, err)

	require.Len(t, result.Sections, 1)
	assert.Equal(t, "doc.txt", result.Sections[0].Heading)
	assert.Equal(t, "3", result.Metadata["line_count"])
}

func TestTextParserEmptyFileSkipsMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	p := &TextParser{}
	result, err := p.Parse(context.Background(), path)
	require.NoError(t, err)

	assert.Empty(t, result.Sections)
	assert.Nil(t, result.Metadata)
}
