package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kestrelai/localrag/webrag"
)

func NewWebsearchCmd() *cobra.Command {
	var maxResults, maxURLs, topK int
	var sources []string

	cmd := &cobra.Command{
		Use:   "websearch <query>",
		Short: "Run a web-grounded search and answer (spec's Web-RAG orchestrator)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine()
			if err != nil {
				return fmt.Errorf("creating engine: %w", err)
			}
			defer eng.Close()

			opts := webrag.Options{
				MaxSearchResults: maxResults,
				Sources:          sources,
				MaxURLsToFetch:   maxURLs,
				TopK:             topK,
			}

			onProgress := func(ev webrag.ProgressEvent) {
				fmt.Fprintf(cmd.ErrOrStderr(), "  [%3d%%] %s %s\n", ev.Pct, ev.Step, ev.Message)
			}

			result, err := eng.SearchWeb(context.Background(), args[0], opts, onProgress)
			if err != nil {
				return fmt.Errorf("web search failed: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), result.Answer)
			fmt.Fprintf(cmd.OutOrStdout(), "\nsources used: %d, selected URLs: %v\n", result.Metadata.SourcesUsed, result.SelectedURLs)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxResults, "max-results", 0, "Maximum search results to consider (0 = config default)")
	cmd.Flags().IntVar(&maxURLs, "max-urls", 0, "Maximum URLs to fetch (0 = config default)")
	cmd.Flags().IntVar(&topK, "top-k", 0, "Number of chunks to retrieve from fetched pages (0 = config default)")
	cmd.Flags().StringSliceVar(&sources, "sources", nil, "Search providers to use (wikipedia, duckduckgo)")
	return cmd
}
