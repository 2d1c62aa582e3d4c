package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// MarkdownParser handles Markdown (.md, .markdown) files. It hands the raw
// text through as a single mixed-content section; heading/list/paragraph
// classification happens later in the chunker, not here.
type MarkdownParser struct{}

func (p *MarkdownParser) SupportedFormats() []string { return []string{"md", "markdown"} }

func (p *MarkdownParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading markdown file: %w", err)
	}

	content := string(data)
	if content == "" {
		return &ParseResult{Method: "native"}, nil
	}

	return &ParseResult{
		Sections: []Section{
			{
				Heading: filepath.Base(path),
				Content: content,
				Level:   1,
				Type:    "mixed",
			},
		},
		Method: "native",
	}, nil
}
