package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func NewDocumentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "List or delete ingested documents",
	}

	cmd.AddCommand(newDocumentsListCmd())
	cmd.AddCommand(newDocumentsDeleteCmd())
	return cmd
}

func newDocumentsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List ingested documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine()
			if err != nil {
				return fmt.Errorf("creating engine: %w", err)
			}
			defer eng.Close()

			docs, err := eng.ListDocuments(context.Background())
			if err != nil {
				return fmt.Errorf("listing documents: %w", err)
			}
			if len(docs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no documents ingested")
				return nil
			}

			for _, d := range docs {
				fmt.Fprintf(cmd.OutOrStdout(), "%-5d %-30s %-10s %-8s uploaded %s\n",
					d.ID, d.Name, d.Type, d.Status, humanize.Time(d.UploadedAt))
			}
			return nil
		},
	}
}

func newDocumentsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a document and its chunks/embeddings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid document id %q", args[0])
			}

			eng, err := newEngine()
			if err != nil {
				return fmt.Errorf("creating engine: %w", err)
			}
			defer eng.Close()

			if err := eng.Delete(context.Background(), id); err != nil {
				return fmt.Errorf("deleting document %d: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted document %d\n", id)
			return nil
		},
	}
}
