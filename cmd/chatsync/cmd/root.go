package cmd

import (
	"fmt"
	"os"

	"github.com/nfrund/chatsync/internal/config"
	"github.com/nfrund/chatsync/internal/logging"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

var (
	flagAPIURL    string
	flagWSURL     string
	flagToken     string
	flagUser      string
	flagLogFormat string
	flagLogLevel  string

	cfg       *config.Config
	container do.Injector
)

var rootCmd = &cobra.Command{
	Use:   "chatsync",
	Short: "Chat synchronization client and dev server",
	Long: `chatsync keeps a local view of chats, message history and typing indicators in
sync with a REST + WebSocket chat backend.

Available commands:
  serve     Run the in-memory dev backend
  seed      Generate a fake data set for the dev backend
  token     Print a dev bearer token
  chats     Print a page of the chat list
  history   Print the message history of a chat
  send      Post a message
  watch     Stay connected and log every change
  events    Explore the realtime event catalogue

Use "chatsync [command] --help" for more information about a specific command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.New()
		if err != nil {
			return err
		}
		applyFlagOverrides(cmd, loaded)
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded
		logging.NewWithWriter(os.Stderr, cfg.LogFormat, cfg.LogLevel)
		container = newContainer(cmd.Context(), cfg)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		shutdownContainer(container)
	},
}

// Execute runs the root command and exits with status 1 on any error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		shutdownContainer(container)
		os.Exit(1)
	}
}

func applyFlagOverrides(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("api-url") {
		c.APIURL = flagAPIURL
	}
	if flags.Changed("ws-url") {
		c.WSURL = flagWSURL
	}
	if flags.Changed("token") {
		c.Token = flagToken
	}
	if flags.Changed("user") {
		c.UserID = flagUser
	}
	if flags.Changed("log-format") {
		c.LogFormat = flagLogFormat
	}
	if flags.Changed("log-level") {
		c.LogLevel = flagLogLevel
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagAPIURL, "api-url", config.DefaultAPIURL, "REST base URL (CHATSYNC_API_URL)")
	pf.StringVar(&flagWSURL, "ws-url", config.DefaultWSURL, "WebSocket URL (CHATSYNC_WS_URL)")
	pf.StringVar(&flagToken, "token", "", "Bearer token (CHATSYNC_TOKEN)")
	pf.StringVar(&flagUser, "user", "", "Viewer user id (CHATSYNC_USER_ID)")
	pf.StringVar(&flagLogFormat, "log-format", "text", "Log format: text or json (LOG_FORMAT)")
	pf.StringVar(&flagLogLevel, "log-level", "info", "Log level: debug, info, warn, error (LOG_LEVEL)")
}
