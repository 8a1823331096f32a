package cmd

import (
	"fmt"

	"github.com/nfrund/chatsync/cmd/chatsync/internal/display"
	_ "github.com/nfrund/chatsync/internal/events" // registers the event catalogue
	"github.com/nfrund/chatsync/internal/topicmgr"
	"github.com/spf13/cobra"
)

var (
	eventsDirection string
	eventsFormat    string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Explore the realtime event catalogue",
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every registered realtime event",
	Long: `List the WebSocket events the client understands. Inbound events are pushed by
the server; outbound events are the only names the client may emit.

Examples:
  chatsync events list
  chatsync events list --direction outbound
  chatsync events list --format json

Output formats:
  table - Human-readable table format (default)
  json  - Machine-readable JSON format with metadata`,
	RunE: func(cmd *cobra.Command, args []string) error {
		manager := topicmgr.Default()

		list := manager.List()
		if eventsDirection != "" {
			dir, err := topicmgr.ParseDirection(eventsDirection)
			if err != nil {
				return err
			}
			list = manager.ListByDirection(dir)
		}

		switch eventsFormat {
		case "json":
			return display.EventsJSON(cmd.OutOrStdout(), list)
		case "table":
			display.EventsTable(cmd.OutOrStdout(), list)
			return nil
		default:
			return fmt.Errorf("unsupported output format %q, use table or json", eventsFormat)
		}
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsListCmd)
	eventsListCmd.Flags().StringVarP(&eventsDirection, "direction", "d", "", "Filter by direction (inbound, outbound)")
	eventsListCmd.Flags().StringVarP(&eventsFormat, "format", "f", "table", "Output format (table, json)")
}
