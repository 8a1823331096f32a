package cmd

import (
	"fmt"
	"strings"

	"github.com/nfrund/chatsync/internal/api"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <chatId> <text>...",
	Short: "Post a message",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := do.Invoke[*api.Client](container)
		if err != nil {
			return err
		}
		msg, err := client.SendMessage(cmd.Context(), args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
}
