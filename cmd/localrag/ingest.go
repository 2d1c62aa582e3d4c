package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kestrelai/localrag"
	"github.com/kestrelai/localrag/rag"
)

func NewIngestCmd() *cobra.Command {
	var metadata []string

	cmd := &cobra.Command{
		Use:   "ingest <path>",
		Short: "Ingest a document (.pdf, .txt, .md)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine()
			if err != nil {
				return fmt.Errorf("creating engine: %w", err)
			}
			defer eng.Close()

			var opts []localrag.IngestOption
			if md := parseMetadataFlags(metadata); len(md) > 0 {
				opts = append(opts, localrag.WithMetadata(md))
			}
			opts = append(opts, localrag.WithIngestProgress(func(ev rag.ProgressEvent) {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s: %d%%\n", ev.Stage, ev.Progress)
			}))

			docID, err := eng.Ingest(context.Background(), args[0], opts...)
			if err != nil {
				return fmt.Errorf("ingesting %s: %w", args[0], err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "ingested document %d from %s\n", docID, args[0])
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&metadata, "meta", nil, "Metadata key=value pair (repeatable)")
	return cmd
}

// parseMetadataFlags turns "key=value" flag values into a map, skipping
// anything that doesn't contain "=".
func parseMetadataFlags(pairs []string) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}
