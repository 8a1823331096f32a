package cmd

import (
	"log/slog"

	"github.com/nfrund/chatsync/cmd/chatsync/internal/display"
	"github.com/nfrund/chatsync/internal/api"
	"github.com/nfrund/chatsync/internal/chatlist"
	"github.com/nfrund/chatsync/internal/metrics"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

var chatsPage int

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "Print a page of the chat list",
	Long: `Fetch one page of the viewer's chats through the chat list synchronizer and
print it, most recently active first.

Examples:
  chatsync chats
  chatsync chats --page 2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := do.Invoke[*api.Client](container)
		if err != nil {
			return err
		}
		list := chatlist.New(client, cfg.UserID,
			chatlist.WithLogger(do.MustInvoke[*slog.Logger](container).With("component", "chatlist")),
			chatlist.WithMetrics(do.MustInvoke[*metrics.Metrics](container)),
		)
		if err := list.FetchPage(cmd.Context(), chatsPage, false); err != nil {
			return err
		}
		display.ChatsTable(cmd.OutOrStdout(), cfg.UserID, list.Chats())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chatsCmd)
	chatsCmd.Flags().IntVar(&chatsPage, "page", 1, "Page number, starting at 1")
}
