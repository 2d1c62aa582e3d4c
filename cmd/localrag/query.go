package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kestrelai/localrag"
)

func NewQueryCmd() *cobra.Command {
	var topK int
	var conversationID int64

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask a question against the ingested documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine()
			if err != nil {
				return fmt.Errorf("creating engine: %w", err)
			}
			defer eng.Close()

			var opts []localrag.QueryOption
			if topK > 0 {
				opts = append(opts, localrag.WithTopK(topK))
			}
			if conversationID > 0 {
				opts = append(opts, localrag.WithConversation(conversationID))
			}
			opts = append(opts, localrag.WithStream(func(delta string) {
				fmt.Fprint(cmd.OutOrStdout(), delta)
			}))

			answer, err := eng.Query(context.Background(), args[0], opts...)
			if err != nil {
				return fmt.Errorf("query failed: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout())
			if len(answer.Sources) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "\nsources (%d of %d searched):\n", len(answer.Sources), answer.TotalSearched)
				for _, s := range answer.Sources {
					fmt.Fprintf(cmd.OutOrStdout(), "  [%d] %s (score %.3f)\n", s.DocumentID, s.DocumentName, s.Score)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&topK, "top-k", 0, "Number of chunks to retrieve (0 = config default)")
	cmd.Flags().Int64Var(&conversationID, "conversation", 0, "Continue an existing conversation by id")
	return cmd
}
