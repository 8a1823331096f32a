package cmd

import (
	"log/slog"

	"github.com/nfrund/chatsync/cmd/chatsync/internal/display"
	"github.com/nfrund/chatsync/internal/api"
	"github.com/nfrund/chatsync/internal/conversation"
	"github.com/nfrund/chatsync/internal/metrics"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

var historyOlder int

var historyCmd = &cobra.Command{
	Use:   "history <chatId>",
	Short: "Print the message history of a chat",
	Long: `Load the latest page of a chat through the message window synchronizer,
optionally walking back --older pages, and print the transcript oldest first.

Examples:
  chatsync history 6f1c...
  chatsync history 6f1c... --older 3`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := do.Invoke[*api.Client](container)
		if err != nil {
			return err
		}
		window := conversation.New(args[0], cfg.UserID, client,
			conversation.WithLogger(do.MustInvoke[*slog.Logger](container).With("component", "conversation")),
			conversation.WithMetrics(do.MustInvoke[*metrics.Metrics](container)),
		)
		defer window.Close()

		ctx := cmd.Context()
		if err := window.FetchMessages(ctx, false); err != nil {
			return err
		}
		for i := 0; i < historyOlder && window.HasMore(); i++ {
			if err := window.FetchMessages(ctx, true); err != nil {
				return err
			}
		}
		display.Messages(cmd.OutOrStdout(), window.Messages())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyOlder, "older", 0, "Number of older pages to load")
}
