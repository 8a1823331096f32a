package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nfrund/chatsync/internal/auth"
	"github.com/nfrund/chatsync/internal/devserver"
	"github.com/samber/do/v2"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	serveAddr string
	serveSeed string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the in-memory dev backend",
	Long: `Run a reference chat backend that speaks the REST and WebSocket contract the
synchronizers expect. State lives in memory; --seed preloads a fixture written by
"chatsync seed".

Examples:
  chatsync serve
  chatsync serve --addr :9090 --seed seed.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.ServerAddr
		if cmd.Flags().Changed("addr") {
			addr = serveAddr
		}
		seedPath := cfg.SeedFile
		if cmd.Flags().Changed("seed") {
			seedPath = serveSeed
		}

		logger := do.MustInvoke[*slog.Logger](container).With("component", "devserver")
		store := devserver.NewStore(nil)
		if seedPath != "" {
			fx, err := devserver.LoadFixture(afero.NewOsFs(), seedPath)
			if err != nil {
				return err
			}
			if err := store.Load(fx); err != nil {
				return err
			}
			logger.Info("Loaded seed fixture", "path", seedPath, "users", len(fx.Users), "chats", len(fx.Chats))
		}

		tokens, err := do.Invoke[*auth.Tokens](container)
		if err != nil {
			return err
		}
		srv := devserver.New(tokens, devserver.WithStore(store), devserver.WithLogger(logger))

		ctx, stop := signalContext(cmd.Context())
		defer stop()
		if err := srv.Start(ctx, addr); err != nil {
			return fmt.Errorf("dev server: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address (CHATSYNC_ADDR)")
	serveCmd.Flags().StringVar(&serveSeed, "seed", "", "Fixture file to preload (CHATSYNC_SEED_FILE)")
}

// signalContext is shared by the long-running client commands.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
