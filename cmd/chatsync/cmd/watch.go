package cmd

import (
	"log/slog"

	"github.com/nfrund/chatsync/internal/api"
	"github.com/nfrund/chatsync/internal/chatlist"
	"github.com/nfrund/chatsync/internal/conversation"
	"github.com/nfrund/chatsync/internal/metrics"
	"github.com/nfrund/chatsync/internal/pubsub"
	"github.com/nfrund/chatsync/internal/realtime"
	"github.com/nfrund/chatsync/internal/session"
	"github.com/nfrund/chatsync/internal/typing"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

var watchChat string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stay connected and log every change",
	Long: `Open a realtime session, keep the chat list (and optionally one conversation)
synchronized, and log each change until interrupted or the server goes away.

Examples:
  chatsync watch
  chatsync watch --chat 6f1c... --log-level debug`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := do.Invoke[*api.Client](container)
		if err != nil {
			return err
		}
		rt, err := do.Invoke[*realtime.Client](container)
		if err != nil {
			return err
		}
		bus := do.MustInvoke[*pubsub.WatermillBridge](container)
		defer bus.Close()
		logger := do.MustInvoke[*slog.Logger](container).With("component", "watch")

		var sess *session.Session
		onList := func() {
			list := sess.ChatList()
			logger.Info("Chat list changed", "chats", len(list.Chats()), "unread", list.UnreadTotal())
		}
		onWindow := func() {
			if conv := sess.Active(); conv != nil {
				msgs := conv.Window.Messages()
				if n := len(msgs); n > 0 {
					last := msgs[n-1]
					logger.Info("Conversation changed", "chat", conv.Window.ChatID(), "messages", n,
						"last_sender", last.SenderID, "last", last.Content)
				}
			}
		}
		onTyping := func() {
			if conv := sess.Active(); conv != nil {
				logger.Info("Typing changed", "chat", conv.Window.ChatID(), "typing", conv.Typing.Typing())
			}
		}

		sess = session.New(cfg.UserID, client, rt,
			session.WithLogger(do.MustInvoke[*slog.Logger](container).With("component", "session")),
			session.WithMetrics(do.MustInvoke[*metrics.Metrics](container)),
			session.WithChatListOptions(chatlist.WithOnChange(onList)),
			session.WithWindowOptions(conversation.WithOnChange(onWindow)),
			session.WithTypingOptions(typing.WithOnChange(onTyping)),
		)
		defer sess.Close()

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		if err := sess.Start(ctx); err != nil {
			return err
		}
		if watchChat != "" {
			if _, err := sess.Open(ctx, watchChat); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			logger.Info("Interrupted, closing session")
		case <-rt.Done():
			logger.Warn("Server closed the connection")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchChat, "chat", "", "Also open this conversation")
}
